package api

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gmsas95/medtrack/internal/adherence"
	apperrors "github.com/gmsas95/medtrack/internal/errors"
	"github.com/gmsas95/medtrack/internal/medication"
)

type createMedicationRequest struct {
	Name      string  `json:"name"`
	Dosage    string  `json:"dosage"`
	Frequency string  `json:"frequency"`
	StartDate string  `json:"start_date"`
	EndDate   *string `json:"end_date"`
	Notes     *string `json:"notes"`
}

func (r createMedicationRequest) toNew() (medication.NewMedication, error) {
	in := medication.NewMedication{
		Name:      r.Name,
		Dosage:    r.Dosage,
		Frequency: r.Frequency,
		Notes:     r.Notes,
	}
	if strings.TrimSpace(r.StartDate) != "" {
		start, err := medication.ParseTime(r.StartDate)
		if err != nil {
			return in, err
		}
		in.StartDate = start
	}
	if r.EndDate != nil {
		end, err := medication.ParseOptionalTime(*r.EndDate)
		if err != nil {
			return in, err
		}
		in.EndDate = end
	}
	return in, nil
}

// parseUpdate reads a partial JSON object. Keys that are not mutable
// (id, created_at, updated_at, adherence) and unknown keys are ignored.
// An explicit null clears end_date or notes.
func parseUpdate(body []byte) (medication.Update, error) {
	var u medication.Update

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return u, apperrors.Malformed("request body must be a JSON object")
	}

	str := func(key string) (*string, bool, error) {
		raw, ok := fields[key]
		if !ok {
			return nil, false, nil
		}
		if string(raw) == "null" {
			return nil, true, nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, true, apperrors.Malformed("%s must be a string", key)
		}
		return &s, true, nil
	}

	for _, key := range []string{"name", "dosage", "frequency"} {
		v, present, err := str(key)
		if err != nil {
			return u, err
		}
		if !present {
			continue
		}
		if v == nil {
			return u, apperrors.Malformed("%s must not be null", key)
		}
		switch key {
		case "name":
			u.Name = v
		case "dosage":
			u.Dosage = v
		case "frequency":
			u.Frequency = v
		}
	}

	if v, present, err := str("start_date"); err != nil {
		return u, err
	} else if present {
		if v == nil {
			return u, apperrors.Malformed("start_date must not be null")
		}
		start, err := medication.ParseTime(*v)
		if err != nil {
			return u, err
		}
		u.StartDate = &start
	}

	if v, present, err := str("end_date"); err != nil {
		return u, err
	} else if present {
		end, err := medication.ParseOptionalTime(deref(v))
		if err != nil {
			return u, err
		}
		u.EndDate = end
		u.ClearEndDate = end == nil
	}

	if v, present, err := str("notes"); err != nil {
		return u, err
	} else if present {
		u.Notes = v
		u.ClearNotes = v == nil
	}

	return u, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type doseRequest struct {
	Status string `json:"status"`
	Date   string `json:"date"`
	SlotID string `json:"slot_id"`
}

func (r doseRequest) toInput() (medication.DoseInput, error) {
	status, err := medication.ParseDoseStatus(r.Status)
	if err != nil {
		return medication.DoseInput{}, err
	}
	in := medication.DoseInput{Status: status, SlotID: strings.TrimSpace(r.SlotID)}
	if strings.TrimSpace(r.Date) != "" {
		at, err := medication.ParseTime(r.Date)
		if err != nil {
			return in, err
		}
		in.At = at
	}
	return in, nil
}

type rateResponse struct {
	UserID        string  `json:"user_id"`
	MedicationID  string  `json:"medication_id,omitempty"`
	AdherenceRate float64 `json:"adherence_rate"`
}

type dueResponse struct {
	UserID      string                  `json:"user_id"`
	WindowHours int                     `json:"window_hours"`
	Medications []medication.Medication `json:"medications"`
}

type statsResponse struct {
	UserID string `json:"user_id"`
	adherence.Stats
	GeneratedAt time.Time `json:"generated_at"`
}
