// Package adherence derives adherence rates, due-dose views and report data
// from medication collections. It holds no state of its own.
package adherence

import (
	"context"
	"slices"
	"time"

	apperrors "github.com/gmsas95/medtrack/internal/errors"
	"github.com/gmsas95/medtrack/internal/medication"
)

// DefaultHistoryLimit is how many recent dose events a report row carries
const DefaultHistoryLimit = 5

// Reader is the read side of the medication store
type Reader interface {
	ListMedications(ctx context.Context, userID string) []medication.Medication
}

type Engine struct {
	meds         Reader
	interpreter  Interpreter
	now          func() time.Time
	historyLimit int
}

type Option func(*Engine)

func WithInterpreter(i Interpreter) Option {
	return func(e *Engine) { e.interpreter = i }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithHistoryLimit sets how many recent events each report row keeps
func WithHistoryLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.historyLimit = n
		}
	}
}

func NewEngine(meds Reader, opts ...Option) *Engine {
	e := &Engine{
		meds:         meds,
		interpreter:  KeywordInterpreter{},
		now:          time.Now,
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AdherenceRate returns the rate for one medication, or across all of the
// user's medications when medicationID is empty. A medication with no
// recorded doses reports 100.0 and an unknown medication reports 0.0; use
// LookupRate to tell the two apart.
func (e *Engine) AdherenceRate(ctx context.Context, userID, medicationID string) float64 {
	meds := e.meds.ListMedications(ctx, userID)
	if medicationID == "" {
		return overallRate(meds)
	}
	if m := find(meds, medicationID); m != nil {
		return m.Adherence.Rate()
	}
	return 0.0
}

// LookupRate is AdherenceRate for a single medication that fails with
// ErrMedicationNotFound instead of returning 0.0.
func (e *Engine) LookupRate(ctx context.Context, userID, medicationID string) (float64, error) {
	m := find(e.meds.ListMedications(ctx, userID), medicationID)
	if m == nil {
		return 0, apperrors.ErrMedicationNotFound
	}
	return m.Adherence.Rate(), nil
}

func find(meds []medication.Medication, id string) *medication.Medication {
	for i := range meds {
		if meds[i].ID == id {
			return &meds[i]
		}
	}
	return nil
}

func totals(meds []medication.Medication) (total, taken, missed int) {
	for _, m := range meds {
		total += m.Adherence.TotalDoses
		taken += m.Adherence.TakenDoses
		missed += m.Adherence.MissedDoses
	}
	return total, taken, missed
}

func overallRate(meds []medication.Medication) float64 {
	total, taken, _ := totals(meds)
	return medication.RoundedRate(taken, total)
}

// DueMedications returns the user's active medications whose schedule has
// a dose within hoursWindow of now, in insertion order.
func (e *Engine) DueMedications(ctx context.Context, userID string, hoursWindow int) []medication.Medication {
	now := e.now()
	due := []medication.Medication{}
	for _, m := range e.meds.ListMedications(ctx, userID) {
		if !m.ActiveAt(now) {
			continue
		}
		if e.interpreter.Interpret(m.Frequency).Due(now, hoursWindow) {
			due = append(due, m)
		}
	}
	return due
}

// Stats summarizes a user's medications and dose history
type Stats struct {
	TotalMedications  int     `json:"total_medications"`
	ActiveMedications int     `json:"active_medications"`
	OverallRate       float64 `json:"overall_rate"`
	TotalDoses        int     `json:"total_doses"`
	TakenDoses        int     `json:"taken_doses"`
	MissedDoses       int     `json:"missed_doses"`
	TakenToday        int     `json:"taken_today"`
	MissedToday       int     `json:"missed_today"`
}

// Stats computes the summary. "Today" is the calendar day of the engine
// clock in its own location.
func (e *Engine) Stats(ctx context.Context, userID string) Stats {
	now := e.now()
	meds := e.meds.ListMedications(ctx, userID)

	st := Stats{TotalMedications: len(meds)}
	st.TotalDoses, st.TakenDoses, st.MissedDoses = totals(meds)
	st.OverallRate = medication.RoundedRate(st.TakenDoses, st.TotalDoses)

	y, mo, d := now.Date()
	for _, m := range meds {
		if m.ActiveAt(now) {
			st.ActiveMedications++
		}
		for _, ev := range m.Adherence.History {
			ey, emo, ed := ev.Date.In(now.Location()).Date()
			if ey != y || emo != mo || ed != d {
				continue
			}
			if ev.Status == medication.DoseTaken {
				st.TakenToday++
			} else {
				st.MissedToday++
			}
		}
	}
	return st
}

// ReportRow is one medication's section of a report
type ReportRow struct {
	ID            string
	Name          string
	Dosage        string
	Frequency     string
	StartDate     time.Time
	EndDate       *time.Time
	Notes         *string
	Rate          float64
	Taken         int
	Missed        int
	RecentHistory []medication.DoseEvent // newest first
}

// ReportData is everything a renderer needs for one user's report
type ReportData struct {
	UserID      string
	GeneratedAt time.Time
	OverallRate float64
	TotalDoses  int
	TakenDoses  int
	MissedDoses int
	Medications []ReportRow
}

// TakenShare and MissedShare split 100% between taken and missed doses for
// the pie chart. Both are zero when nothing was recorded.
func (r *ReportData) TakenShare() float64 {
	if r.TotalDoses == 0 {
		return 0
	}
	return float64(r.TakenDoses) / float64(r.TotalDoses) * 100
}

func (r *ReportData) MissedShare() float64 {
	if r.TotalDoses == 0 {
		return 0
	}
	return float64(r.MissedDoses) / float64(r.TotalDoses) * 100
}

// BuildReport assembles report data. A user without medications yields
// ErrNoReportData rather than an empty report.
func (e *Engine) BuildReport(ctx context.Context, userID string) (*ReportData, error) {
	meds := e.meds.ListMedications(ctx, userID)
	if len(meds) == 0 {
		return nil, apperrors.ErrNoReportData
	}

	data := &ReportData{
		UserID:      userID,
		GeneratedAt: e.now(),
		OverallRate: overallRate(meds),
		Medications: make([]ReportRow, 0, len(meds)),
	}
	data.TotalDoses, data.TakenDoses, data.MissedDoses = totals(meds)

	for _, m := range meds {
		data.Medications = append(data.Medications, ReportRow{
			ID:            m.ID,
			Name:          m.Name,
			Dosage:        m.Dosage,
			Frequency:     m.Frequency,
			StartDate:     m.StartDate,
			EndDate:       m.EndDate,
			Notes:         m.Notes,
			Rate:          m.Adherence.Rate(),
			Taken:         m.Adherence.TakenDoses,
			Missed:        m.Adherence.MissedDoses,
			RecentHistory: recent(m.Adherence.History, e.historyLimit),
		})
	}
	return data, nil
}

func recent(history []medication.DoseEvent, limit int) []medication.DoseEvent {
	out := slices.Clone(history)
	slices.SortStableFunc(out, func(a, b medication.DoseEvent) int {
		return b.Date.Compare(a.Date)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
