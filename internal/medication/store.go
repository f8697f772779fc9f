package medication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/medtrack/internal/errors"
	"github.com/gmsas95/medtrack/internal/metrics"
	"github.com/gmsas95/medtrack/internal/store"
)

// Store keeps every user's medication collection in memory and mirrors each
// change to a store.Backend before the call returns. Memory is the source
// of truth after Load; the backend is never re-read.
//
// Mutations on one user are serialized by that user's lock, so persistence
// I/O for one user never blocks another. A mutation is applied to a copy of
// the collection and only swapped in once the backend write succeeded.
type Store struct {
	backend store.Backend
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string

	mu    sync.RWMutex
	users map[string]*collection
}

type collection struct {
	mu        sync.RWMutex
	meds      []Medication
	persisted bool
}

// Option configures a Store
type Option func(*Store)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator replaces the UUID generator used for medication ids
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// WithMetrics records store metrics on m instead of the process default
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// NewStore creates a store over backend. Call Load before serving requests.
func NewStore(backend store.Backend, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		logger:  logger,
		metrics: metrics.Default(),
		now:     time.Now,
		newID:   uuid.NewString,
		users:   make(map[string]*collection),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store's clock reading
func (s *Store) Now() time.Time {
	return s.now()
}

// Load enumerates every persisted user document and parses it into memory.
// Unreadable or malformed documents are logged and skipped; that user then
// behaves as if they had no medications.
func (s *Store) Load(ctx context.Context) error {
	ids, err := s.backend.List(ctx)
	if err != nil {
		s.metrics.RecordPersistenceFailure("list")
		return apperrors.Persistence("list user documents", err)
	}

	loaded := make(map[string]*collection, len(ids))
	for _, userID := range ids {
		doc, err := s.backend.Get(ctx, userID)
		if err != nil {
			s.metrics.RecordPersistenceFailure("get")
			s.logger.Error("Failed to read medication document",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			continue
		}

		meds, err := decodeDocument(userID, doc)
		if err == nil {
			err = s.normalize(userID, meds)
		}
		if err != nil {
			s.metrics.RecordMalformedDocument()
			s.logger.Error("Discarding malformed medication document",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			continue
		}

		loaded[userID] = &collection{meds: meds, persisted: true}
	}

	s.mu.Lock()
	for userID, c := range loaded {
		if _, exists := s.users[userID]; !exists {
			s.users[userID] = c
		}
	}
	count := len(s.users)
	s.mu.Unlock()

	s.metrics.SetUsersLoaded(count)
	s.logger.Info("Medication documents loaded",
		zap.String("backend", store.Name(s.backend)),
		zap.Int("users", len(loaded)),
		zap.Int("skipped", len(ids)-len(loaded)),
	)
	return nil
}

// normalize checks dose statuses and rebuilds counters from history when
// they disagree. History is authoritative.
func (s *Store) normalize(userID string, meds []Medication) error {
	for i := range meds {
		m := &meds[i]
		if m.ID == "" {
			return fmt.Errorf("medication at index %d has no id", i)
		}
		if m.Adherence.History == nil {
			m.Adherence.History = []DoseEvent{}
		}

		taken, missed := 0, 0
		for _, ev := range m.Adherence.History {
			switch ev.Status {
			case DoseTaken:
				taken++
			case DoseMissed:
				missed++
			default:
				return fmt.Errorf("medication %s has unknown dose status %q", m.ID, ev.Status)
			}
		}

		a := &m.Adherence
		if a.TakenDoses != taken || a.MissedDoses != missed || a.TotalDoses != taken+missed {
			s.logger.Warn("Rebuilt adherence counters from history",
				zap.String("user_id", userID),
				zap.String("medication_id", m.ID),
				zap.Int("stored_total", a.TotalDoses),
				zap.Int("history_len", len(a.History)),
			)
			a.TakenDoses, a.MissedDoses, a.TotalDoses = taken, missed, taken+missed
		}
	}
	return nil
}

func encodeDocument(userID string, meds []Medication) ([]byte, error) {
	return json.MarshalIndent(map[string][]Medication{userID: meds}, "", "  ")
}

// decodeDocument accepts {"<user_id>": [...]} and, for older files, a bare
// JSON array of medications.
func decodeDocument(userID string, doc []byte) ([]Medication, error) {
	var wrapped map[string][]Medication
	if err := json.Unmarshal(doc, &wrapped); err == nil {
		meds, ok := wrapped[userID]
		if !ok {
			return nil, fmt.Errorf("document has no entry for user %q", userID)
		}
		if meds == nil {
			meds = []Medication{}
		}
		return meds, nil
	}

	var bare []Medication
	if err := json.Unmarshal(doc, &bare); err != nil {
		return nil, err
	}
	if bare == nil {
		bare = []Medication{}
	}
	return bare, nil
}

func (s *Store) collection(userID string, create bool) *collection {
	s.mu.RLock()
	c, ok := s.users[userID]
	s.mu.RUnlock()
	if ok || !create {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.users[userID]; ok {
		return c
	}
	c = &collection{meds: []Medication{}}
	s.users[userID] = c
	s.metrics.SetUsersLoaded(len(s.users))
	return c
}

func (s *Store) persist(ctx context.Context, op, userID string, meds []Medication) error {
	doc, err := encodeDocument(userID, meds)
	if err != nil {
		s.metrics.RecordPersistenceFailure(op)
		return apperrors.Persistence("encode medications", err)
	}

	if err := s.backend.Put(ctx, userID, doc); err != nil {
		s.metrics.RecordPersistenceFailure(op)
		s.logger.Error("Failed to persist medications",
			zap.String("op", op),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		return apperrors.Persistence("write user document", err)
	}
	return nil
}

func (s *Store) observe(op string, start time.Time) {
	s.metrics.ObserveStoreOp(op, time.Since(start))
}

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return apperrors.Malformed("user id is required")
	}
	return nil
}

func indexOf(meds []Medication, id string) int {
	for i := range meds {
		if meds[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneAll(meds []Medication) []Medication {
	out := make([]Medication, len(meds))
	for i := range meds {
		out[i] = meds[i].Clone()
	}
	return out
}

// UserMedications returns the user's medications in insertion order. A user
// seen for the first time gets an empty collection that is persisted
// immediately. It never fails; a failed initial write is logged and retried
// on the next call.
func (s *Store) UserMedications(ctx context.Context, userID string) []Medication {
	defer s.observe("list", time.Now())

	if strings.TrimSpace(userID) == "" {
		return []Medication{}
	}

	c := s.collection(userID, true)

	c.mu.RLock()
	if c.persisted {
		out := cloneAll(c.meds)
		c.mu.RUnlock()
		return out
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.persisted {
		if err := s.persist(ctx, "init", userID, c.meds); err != nil {
			s.logger.Warn("Could not persist new medication collection",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		} else {
			c.persisted = true
		}
	}
	return cloneAll(c.meds)
}

// ListMedications returns a copy of the user's medications without creating
// anything. Unknown users yield an empty list.
func (s *Store) ListMedications(ctx context.Context, userID string) []Medication {
	c := s.collection(userID, false)
	if c == nil {
		return []Medication{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneAll(c.meds)
}

// GetMedication looks up one medication
func (s *Store) GetMedication(ctx context.Context, userID, medicationID string) (*Medication, bool) {
	c := s.collection(userID, false)
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	idx := indexOf(c.meds, medicationID)
	if idx < 0 {
		return nil, false
	}
	med := c.meds[idx].Clone()
	return &med, true
}

// AddMedication creates a medication with a fresh id and empty adherence
// data and appends it to the user's collection. Names need not be unique.
func (s *Store) AddMedication(ctx context.Context, userID string, in NewMedication) (*Medication, error) {
	defer s.observe("add", time.Now())

	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	med := Medication{
		ID:        s.newID(),
		Name:      strings.TrimSpace(in.Name),
		Dosage:    strings.TrimSpace(in.Dosage),
		Frequency: strings.TrimSpace(in.Frequency),
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		Notes:     in.Notes,
		CreatedAt: now,
		UpdatedAt: now,
		Adherence: Adherence{History: []DoseEvent{}},
	}
	med = med.Clone()

	c := s.collection(userID, true)
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make([]Medication, len(c.meds), len(c.meds)+1)
	copy(next, c.meds)
	next = append(next, med)

	if err := s.persist(ctx, "add", userID, next); err != nil {
		return nil, err
	}
	c.meds = next
	c.persisted = true

	s.metrics.RecordMedicationAdded()
	s.logger.Info("Medication added",
		zap.String("user_id", userID),
		zap.String("medication_id", med.ID),
		zap.String("name", med.Name),
	)

	out := med.Clone()
	return &out, nil
}

// UpdateMedication applies u to the medication and bumps updated_at. It
// returns ErrMedicationNotFound when the id is unknown for that user.
func (s *Store) UpdateMedication(ctx context.Context, userID, medicationID string, u Update) (*Medication, error) {
	defer s.observe("update", time.Now())

	if err := u.validate(); err != nil {
		return nil, err
	}

	c := s.collection(userID, false)
	if c == nil {
		return nil, apperrors.ErrMedicationNotFound
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := indexOf(c.meds, medicationID)
	if idx < 0 {
		return nil, apperrors.ErrMedicationNotFound
	}

	updated := c.meds[idx].Clone()
	u.apply(&updated)
	updated.UpdatedAt = s.now()

	next := make([]Medication, len(c.meds))
	copy(next, c.meds)
	next[idx] = updated

	if err := s.persist(ctx, "update", userID, next); err != nil {
		return nil, err
	}
	c.meds = next
	c.persisted = true

	s.logger.Info("Medication updated",
		zap.String("user_id", userID),
		zap.String("medication_id", medicationID),
	)

	out := updated.Clone()
	return &out, nil
}

// DeleteMedication removes a medication. It reports false when the id is
// unknown; an error means the removal could not be persisted and nothing
// changed.
func (s *Store) DeleteMedication(ctx context.Context, userID, medicationID string) (bool, error) {
	defer s.observe("delete", time.Now())

	c := s.collection(userID, false)
	if c == nil {
		return false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := indexOf(c.meds, medicationID)
	if idx < 0 {
		return false, nil
	}

	next := make([]Medication, 0, len(c.meds)-1)
	next = append(next, c.meds[:idx]...)
	next = append(next, c.meds[idx+1:]...)

	if err := s.persist(ctx, "delete", userID, next); err != nil {
		return false, err
	}
	c.meds = next
	c.persisted = true

	s.metrics.RecordMedicationDeleted()
	s.logger.Info("Medication deleted",
		zap.String("user_id", userID),
		zap.String("medication_id", medicationID),
	)
	return true, nil
}

// RecordDose appends a dose event and bumps the matching counters. It
// reports false when the medication is unknown. Recording never rewrites
// history; when d.SlotID repeats an already recorded slot the call succeeds
// without appending.
func (s *Store) RecordDose(ctx context.Context, userID, medicationID string, d DoseInput) (bool, error) {
	defer s.observe("record_dose", time.Now())

	if d.Status != DoseTaken && d.Status != DoseMissed {
		return false, apperrors.Malformed("dose status must be %q or %q, got %q", DoseTaken, DoseMissed, d.Status)
	}

	c := s.collection(userID, false)
	if c == nil {
		return false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := indexOf(c.meds, medicationID)
	if idx < 0 {
		return false, nil
	}

	if c.meds[idx].Adherence.hasSlot(d.SlotID) {
		s.metrics.RecordDoseDeduplicated()
		s.logger.Debug("Dose slot already recorded",
			zap.String("user_id", userID),
			zap.String("medication_id", medicationID),
			zap.String("slot_id", d.SlotID),
		)
		return true, nil
	}

	at := d.At
	if at.IsZero() {
		at = s.now()
	}

	updated := c.meds[idx].Clone()
	updated.Adherence.record(DoseEvent{Date: at, Status: d.Status, SlotID: d.SlotID})

	next := make([]Medication, len(c.meds))
	copy(next, c.meds)
	next[idx] = updated

	if err := s.persist(ctx, "record_dose", userID, next); err != nil {
		return false, err
	}
	c.meds = next
	c.persisted = true

	s.metrics.RecordDose(string(d.Status))
	return true, nil
}

// RecordTaken records a taken dose at the given time, or now if zero
func (s *Store) RecordTaken(ctx context.Context, userID, medicationID string, at time.Time) (bool, error) {
	return s.RecordDose(ctx, userID, medicationID, DoseInput{Status: DoseTaken, At: at})
}

// RecordMissed records a missed dose at the given time, or now if zero
func (s *Store) RecordMissed(ctx context.Context, userID, medicationID string, at time.Time) (bool, error) {
	return s.RecordDose(ctx, userID, medicationID, DoseInput{Status: DoseMissed, At: at})
}
