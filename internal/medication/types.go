package medication

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	apperrors "github.com/gmsas95/medtrack/internal/errors"
)

// DoseStatus is the outcome of one scheduled dose
type DoseStatus string

const (
	DoseTaken  DoseStatus = "taken"
	DoseMissed DoseStatus = "missed"
)

// ParseDoseStatus accepts "taken" or "missed" in any case
func ParseDoseStatus(s string) (DoseStatus, error) {
	switch DoseStatus(strings.ToLower(strings.TrimSpace(s))) {
	case DoseTaken:
		return DoseTaken, nil
	case DoseMissed:
		return DoseMissed, nil
	}
	return "", apperrors.Malformed("dose status must be %q or %q, got %q", DoseTaken, DoseMissed, s)
}

// DoseEvent is one entry of the append-only dose history
type DoseEvent struct {
	Date   time.Time  `json:"date"`
	Status DoseStatus `json:"status"`
	SlotID string     `json:"slot_id,omitempty"` // caller-supplied dose occurrence id
}

// UnmarshalJSON accepts any ISO-8601 form ParseTime understands, so
// documents with naive or date-only timestamps load as well as RFC3339 ones.
// Encoding is left to time.Time and stays RFC3339.
func (e *DoseEvent) UnmarshalJSON(b []byte) error {
	type plain DoseEvent
	var raw struct {
		plain
		Date string `json:"date"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	date, err := parseStoredTime("date", raw.Date)
	if err != nil {
		return err
	}
	*e = DoseEvent(raw.plain)
	e.Date = date
	return nil
}

// Adherence is the aggregate embedded in every medication.
// TotalDoses == TakenDoses + MissedDoses == len(History) always holds.
type Adherence struct {
	TotalDoses  int         `json:"total_doses"`
	TakenDoses  int         `json:"taken_doses"`
	MissedDoses int         `json:"missed_doses"`
	History     []DoseEvent `json:"history"`
}

// Rate returns the percentage of taken doses rounded to one decimal.
// With no recorded doses the rate is 100, which means "no data yet".
func (a Adherence) Rate() float64 {
	return RoundedRate(a.TakenDoses, a.TotalDoses)
}

// RoundedRate computes taken/total*100 rounded to one decimal, or 100 when
// total is zero.
func RoundedRate(taken, total int) float64 {
	if total == 0 {
		return 100.0
	}
	return math.Round(float64(taken)/float64(total)*1000) / 10
}

func (a *Adherence) record(ev DoseEvent) {
	a.History = append(a.History, ev)
	a.TotalDoses++
	if ev.Status == DoseTaken {
		a.TakenDoses++
	} else {
		a.MissedDoses++
	}
}

func (a Adherence) hasSlot(slotID string) bool {
	if slotID == "" {
		return false
	}
	for _, ev := range a.History {
		if ev.SlotID == slotID {
			return true
		}
	}
	return false
}

// Medication is a prescribed medication owned by one user
type Medication struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Dosage    string     `json:"dosage"`    // e.g. "10mg"
	Frequency string     `json:"frequency"` // free text: "daily", "every 8 hours", "weekly"
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date"` // nil means ongoing
	Notes     *string    `json:"notes"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Adherence Adherence  `json:"adherence"`
}

// UnmarshalJSON reads medication documents with the same timestamp leniency
// as DoseEvent.
func (m *Medication) UnmarshalJSON(b []byte) error {
	type plain Medication
	var raw struct {
		plain
		StartDate string  `json:"start_date"`
		EndDate   *string `json:"end_date"`
		CreatedAt string  `json:"created_at"`
		UpdatedAt string  `json:"updated_at"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*m = Medication(raw.plain)
	var err error
	if m.StartDate, err = parseStoredTime("start_date", raw.StartDate); err != nil {
		return err
	}
	if m.CreatedAt, err = parseStoredTime("created_at", raw.CreatedAt); err != nil {
		return err
	}
	if m.UpdatedAt, err = parseStoredTime("updated_at", raw.UpdatedAt); err != nil {
		return err
	}
	m.EndDate = nil
	if raw.EndDate != nil && *raw.EndDate != "" {
		end, err := parseStoredTime("end_date", *raw.EndDate)
		if err != nil {
			return err
		}
		m.EndDate = &end
	}
	return nil
}

// parseStoredTime is ParseTime for persisted fields; an empty value is the
// zero time.
func parseStoredTime(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := ParseTime(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", field, err)
	}
	return t, nil
}

// ActiveAt reports whether t falls inside the medication's active window.
// Both bounds are inclusive.
func (m *Medication) ActiveAt(t time.Time) bool {
	if t.Before(m.StartDate) {
		return false
	}
	if m.EndDate != nil && t.After(*m.EndDate) {
		return false
	}
	return true
}

// Clone returns a deep copy that shares no memory with m
func (m Medication) Clone() Medication {
	out := m
	if m.EndDate != nil {
		end := *m.EndDate
		out.EndDate = &end
	}
	if m.Notes != nil {
		notes := *m.Notes
		out.Notes = &notes
	}
	out.Adherence.History = make([]DoseEvent, len(m.Adherence.History))
	copy(out.Adherence.History, m.Adherence.History)
	return out
}

// NewMedication is the input to Store.AddMedication
type NewMedication struct {
	Name      string
	Dosage    string
	Frequency string
	StartDate time.Time
	EndDate   *time.Time
	Notes     *string
}

func (n NewMedication) validate() error {
	var missing []string
	if strings.TrimSpace(n.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(n.Dosage) == "" {
		missing = append(missing, "dosage")
	}
	if strings.TrimSpace(n.Frequency) == "" {
		missing = append(missing, "frequency")
	}
	if n.StartDate.IsZero() {
		missing = append(missing, "start_date")
	}
	if len(missing) > 0 {
		return apperrors.Malformed("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Update lists the mutable fields of a medication. Nil pointers leave the
// field untouched; the Clear flags reset optional fields to null.
// id, created_at and adherence cannot be changed through an Update.
type Update struct {
	Name         *string
	Dosage       *string
	Frequency    *string
	StartDate    *time.Time
	EndDate      *time.Time
	ClearEndDate bool
	Notes        *string
	ClearNotes   bool
}

// Empty reports whether the update touches no field
func (u Update) Empty() bool {
	return u.Name == nil && u.Dosage == nil && u.Frequency == nil && u.StartDate == nil &&
		u.EndDate == nil && !u.ClearEndDate && u.Notes == nil && !u.ClearNotes
}

func (u Update) validate() error {
	for field, v := range map[string]*string{"name": u.Name, "dosage": u.Dosage, "frequency": u.Frequency} {
		if v != nil && strings.TrimSpace(*v) == "" {
			return apperrors.Malformed("%s must not be empty", field)
		}
	}
	if u.StartDate != nil && u.StartDate.IsZero() {
		return apperrors.Malformed("start_date must not be empty")
	}
	return nil
}

func (u Update) apply(m *Medication) {
	if u.Name != nil {
		m.Name = *u.Name
	}
	if u.Dosage != nil {
		m.Dosage = *u.Dosage
	}
	if u.Frequency != nil {
		m.Frequency = *u.Frequency
	}
	if u.StartDate != nil {
		m.StartDate = *u.StartDate
	}
	if u.ClearEndDate {
		m.EndDate = nil
	} else if u.EndDate != nil {
		end := *u.EndDate
		m.EndDate = &end
	}
	if u.ClearNotes {
		m.Notes = nil
	} else if u.Notes != nil {
		notes := *u.Notes
		m.Notes = &notes
	}
}

// DoseInput describes one dose to record
type DoseInput struct {
	Status DoseStatus
	At     time.Time // zero means now
	SlotID string    // optional; a repeated slot id is not appended twice
}
