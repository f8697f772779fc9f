package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medtrack"

type Metrics struct {
	registry *prometheus.Registry

	medicationsAdded    prometheus.Counter
	medicationsDeleted  prometheus.Counter
	dosesRecorded       *prometheus.CounterVec
	dosesDeduplicated   prometheus.Counter
	persistenceFailures *prometheus.CounterVec
	malformedDocuments  prometheus.Counter
	reportsGenerated    *prometheus.CounterVec
	storeOpDuration     *prometheus.HistogramVec
	usersLoaded         prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// New builds a Metrics instance on its own registry so tests and multiple
// servers in one process never collide on registration.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		medicationsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "medications_added_total",
			Help:      "Medications created.",
		}),
		medicationsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "medications_deleted_total",
			Help:      "Medications removed.",
		}),
		dosesRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "doses_recorded_total",
			Help:      "Dose events appended to medication history.",
		}, []string{"status"}),
		dosesDeduplicated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "doses_deduplicated_total",
			Help:      "Dose submissions ignored because their slot id was already recorded.",
		}),
		persistenceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Storage reads or writes that did not complete.",
		}, []string{"op"}),
		malformedDocuments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_documents_total",
			Help:      "Persisted user documents discarded because they could not be decoded.",
		}),
		reportsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_generated_total",
			Help:      "Adherence report requests by outcome.",
		}, []string{"result"}),
		storeOpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_seconds",
			Help:      "Latency of medication store operations including persistence.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"op"}),
		usersLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "users_loaded",
			Help:      "User collections held in memory.",
		}),
	}

	reg.MustRegister(
		m.medicationsAdded,
		m.medicationsDeleted,
		m.dosesRecorded,
		m.dosesDeduplicated,
		m.persistenceFailures,
		m.malformedDocuments,
		m.reportsGenerated,
		m.storeOpDuration,
		m.usersLoaded,
	)

	return m
}

func (m *Metrics) RecordMedicationAdded() {
	m.medicationsAdded.Inc()
}

func (m *Metrics) RecordMedicationDeleted() {
	m.medicationsDeleted.Inc()
}

func (m *Metrics) RecordDose(status string) {
	m.dosesRecorded.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordDoseDeduplicated() {
	m.dosesDeduplicated.Inc()
}

func (m *Metrics) RecordPersistenceFailure(op string) {
	m.persistenceFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) RecordMalformedDocument() {
	m.malformedDocuments.Inc()
}

func (m *Metrics) RecordReport(result string) {
	m.reportsGenerated.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveStoreOp(op string, d time.Duration) {
	m.storeOpDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) SetUsersLoaded(n int) {
	m.usersLoaded.Set(float64(n))
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func RecordMedicationAdded() {
	Default().RecordMedicationAdded()
}

func RecordMedicationDeleted() {
	Default().RecordMedicationDeleted()
}

func RecordDose(status string) {
	Default().RecordDose(status)
}

func RecordPersistenceFailure(op string) {
	Default().RecordPersistenceFailure(op)
}

func RecordReport(result string) {
	Default().RecordReport(result)
}

func Handler() http.Handler {
	return Default().Handler()
}
