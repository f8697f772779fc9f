package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
	}
	if m.Registry() == nil {
		t.Error("New() must create a registry")
	}
}

func TestDefault(t *testing.T) {
	m1 := Default()
	m2 := Default()

	if m1 != m2 {
		t.Error("Default() should return same instance")
	}
}

func TestRecordDose(t *testing.T) {
	m := New()
	m.RecordDose("taken")
	m.RecordDose("taken")
	m.RecordDose("missed")

	if got := testutil.ToFloat64(m.dosesRecorded.WithLabelValues("taken")); got != 2 {
		t.Errorf("expected 2 taken doses, got %v", got)
	}
	if got := testutil.ToFloat64(m.dosesRecorded.WithLabelValues("missed")); got != 1 {
		t.Errorf("expected 1 missed dose, got %v", got)
	}
}

func TestRecordMedicationLifecycle(t *testing.T) {
	m := New()
	m.RecordMedicationAdded()
	m.RecordMedicationAdded()
	m.RecordMedicationDeleted()

	if got := testutil.ToFloat64(m.medicationsAdded); got != 2 {
		t.Errorf("expected 2 added, got %v", got)
	}
	if got := testutil.ToFloat64(m.medicationsDeleted); got != 1 {
		t.Errorf("expected 1 deleted, got %v", got)
	}
}

func TestRecordPersistenceFailure(t *testing.T) {
	m := New()
	m.RecordPersistenceFailure("put")

	if got := testutil.ToFloat64(m.persistenceFailures.WithLabelValues("put")); got != 1 {
		t.Errorf("expected 1 put failure, got %v", got)
	}
}

func TestSetUsersLoaded(t *testing.T) {
	m := New()
	m.SetUsersLoaded(3)

	if got := testutil.ToFloat64(m.usersLoaded); got != 3 {
		t.Errorf("expected gauge 3, got %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordReport("ok")
	m.ObserveStoreOp("add", 3*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`medtrack_reports_generated_total{result="ok"} 1`,
		"medtrack_store_operation_seconds_bucket",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
