package medication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/medtrack/internal/errors"
	"github.com/gmsas95/medtrack/internal/metrics"
	"github.com/gmsas95/medtrack/internal/store"
)

var fixedNow = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func setupTestStore(t *testing.T) (*Store, *store.MemoryBackend) {
	backend := store.NewMemoryBackend()
	s := newTestStore(t, backend)
	return s, backend
}

func newTestStore(t *testing.T, backend store.Backend) *Store {
	seq := 0
	s := NewStore(backend, zap.NewNop(),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("med-%d", seq)
		}),
		WithMetrics(metrics.New()),
	)
	require.NoError(t, s.Load(context.Background()))
	return s
}

func aspirin() NewMedication {
	return NewMedication{
		Name:      "Aspirin",
		Dosage:    "81mg",
		Frequency: "daily",
		StartDate: fixedNow.AddDate(0, 0, -7),
	}
}

func assertInvariant(t *testing.T, m Medication) {
	t.Helper()
	a := m.Adherence
	assert.Equal(t, a.TotalDoses, a.TakenDoses+a.MissedDoses)
	assert.Equal(t, a.TotalDoses, len(a.History))
}

func TestStore_AddMedication(t *testing.T) {
	ctx := context.Background()
	s, backend := setupTestStore(t)

	med, err := s.AddMedication(ctx, "alice", aspirin())
	require.NoError(t, err)

	assert.Equal(t, "med-1", med.ID)
	assert.Equal(t, "Aspirin", med.Name)
	assert.Equal(t, fixedNow, med.CreatedAt)
	assert.Equal(t, fixedNow, med.UpdatedAt)
	assert.Nil(t, med.EndDate)
	assert.Nil(t, med.Notes)
	assert.Equal(t, 0, med.Adherence.TotalDoses)
	assert.NotNil(t, med.Adherence.History)

	list := s.UserMedications(ctx, "alice")
	require.Len(t, list, 1)
	assert.Equal(t, med.ID, list[0].ID)

	doc, err := backend.Get(ctx, "alice")
	require.NoError(t, err)
	var persisted map[string][]Medication
	require.NoError(t, json.Unmarshal(doc, &persisted))
	require.Len(t, persisted["alice"], 1)
	assert.Equal(t, "Aspirin", persisted["alice"][0].Name)
}

func TestStore_AddMedicationRejectsMissingFields(t *testing.T) {
	ctx := context.Background()
	s, backend := setupTestStore(t)

	in := aspirin()
	in.Dosage = "  "
	_, err := s.AddMedication(ctx, "alice", in)
	assert.ErrorIs(t, err, apperrors.ErrMalformedInput)

	_, err = s.AddMedication(ctx, "", aspirin())
	assert.ErrorIs(t, err, apperrors.ErrMalformedInput)

	assert.Equal(t, 0, backend.Puts())
}

func TestStore_DuplicateNamesGetDistinctIDs(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStore(t)

	first, err := s.AddMedication(ctx, "alice", aspirin())
	require.NoError(t, err)
	second, err := s.AddMedication(ctx, "alice", aspirin())
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, s.UserMedications(ctx, "alice"), 2)
}

func TestStore_UserMedicationsCreatesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, backend := setupTestStore(t)

	first := s.UserMedications(ctx, "bob")
	assert.Empty(t, first)
	assert.NotNil(t, first)
	assert.Equal(t, 1, backend.Puts())

	second := s.UserMedications(ctx, "bob")
	assert.Equal(t, first, second)
	assert.Equal(t, 1, backend.Puts())

	doc, err := backend.Get(ctx, "bob")
	require.NoError(t, err)
	assert.JSONEq(t, `{"bob":[]}`, string(doc))
}

func TestStore_UserMedicationsRetriesFailedInitialWrite(t *testing.T) {
	ctx := context.Background()
	s, backend := setupTestStore(t)

	backend.FailPuts(errors.New("read-only filesystem"))
	assert.Empty(t, s.UserMedications(ctx, "bob"))

	backend.FailPuts(nil)
	assert.Empty(t, s.UserMedications(ctx, "bob"))
	assert.Equal(t, 1, backend.Puts())
}

func TestStore_ReturnedValuesAreCopies(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStore(t)

	med, err := s.AddMedication(ctx, "alice", aspirin())
	require.NoError(t, err)

	list := s.UserMedications(ctx, "alice")
	list[0].Name = "Mutated"
	list[0].Adherence.History = append(list[0].Adherence.History, DoseEvent{Status: DoseTaken})

	got, ok := s.GetMedication(ctx, "alice", med.ID)
	require.True(t, ok)
	assert.Equal(t, "Aspirin", got.Name)
	assert.Empty(t, got.Adherence.History)
}

func TestStore_UpdateMedication(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStore(t)

	med, err := s.AddMedication(ctx, "alice", aspirin())
	require.NoError(t, err)

	later := fixedNow.Add(time.Hour)
	s.now = func() time.Time { return later }

	dosage := "100mg"
	notes := "with food"
	end := fixedNow.AddDate(0, 1, 0)
	updated, err := s.UpdateMedication(ctx, "alice", med.ID, Update{
		Dosage:  &dosage,
		Notes:   &notes,
		EndDate: &end,
	})
	require.NoError(t, err)

	assert.Equal(t, "100mg", updated.Dosage)
	assert.Equal(t, "Aspirin", updated.Name)
	require.NotNil(t, updated.Notes)
	assert.Equal(t, "with food", *updated.Notes)
	require.NotNil(t, updated.EndDate)
	assert.True(t, end.Equal(*updated.EndDate))
	assert.Equal(t, med.ID, updated.ID)
	assert.Equal(t, fixedNow, updated.CreatedAt)
	assert.Equal(t, later, updated.UpdatedAt)

	updated, err = s.UpdateMedication(ctx, "alice", med.ID, Update{ClearEndDate: true, ClearNotes: true})
	require.NoError(t, err)
	assert.Nil(t, updated.EndDate)
	assert.Nil(t, updated.Notes)
}

func TestStore_UpdateMedicationErrors(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStore(t)

	name := "Ibuprofen"
	_, err := s.UpdateMedication(ctx, "alice", "missing", Update{Name: &name})
	assert.ErrorIs(t, err, apperrors.ErrMedicationNotFound)

	med, err := s.AddMedication(ctx, "alice", aspirin())
	require.NoError(t, err)

	_, err = s.UpdateMedication(ctx, "alice", "missing", Update{Name: &name})
	assert.ErrorIs(t, err, apperrors.ErrMedicationNotFound)

	empty := ""
	_, err = s.UpdateMedication(ctx, "alice", med.ID, Update{Name: &empty})
	assert.ErrorIs(t, err, apperrors.ErrMalformedInput)
}

func TestStore_DeleteMedication(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStore(t)

	first, err := s.AddMedication(ctx, "alice", aspirin())
	require.NoError(t, err)
	second, err := s.AddMedication(ctx, "alice", aspirin())
	require.NoError(t, err)

	ok, err := s.DeleteMedication(ctx, "alice", first.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	list := s.UserMedications(ctx, "alice")
	require.Len(t, list, 1)
	assert.Equal(t, second.ID, list[0].ID)

	ok, err = s.DeleteMedication(ctx, "alice", first.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.DeleteMedication(ctx, "nobody", first.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_RecordDose(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStore(t)

	med, err := s.AddMedication(ctx, "alice", aspirin())
	require.NoError(t, err)

	ok, err := s.RecordTaken(ctx, "alice", med.ID, time.Time{})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.RecordTaken(ctx, "alice", med.ID, fixedNow.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.RecordMissed(ctx, "alice", med.ID, time.Time{})
	require.NoError(t, err)
	assert.True(t, ok)

	got, found := s.GetMedication(ctx, "alice", med.ID)
	require.True(t, found)
	assertInvariant(t, *got)
	assert.Equal(t, 3, got.Adherence.TotalDoses)
	assert.Equal(t, 2, got.Adherence.TakenDoses)
	assert.Equal(t, 1, got.Adherence.MissedDoses)
	assert.Equal(t, 66.7, got.Adherence.Rate())

	assert.Equal(t, fixedNow, got.Adherence.History[0].Date)
	assert.Equal(t, fixedNow.Add(-time.Hour), got.Adherence.History[1].Date)
	assert.Equal(t, DoseMissed, got.Adherence.History[2].Status)

	// dose recording does not touch updated_at
	assert.Equal(t, fixedNow, got.UpdatedAt)
}

func TestStore_RecordDoseUnknownTargets(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStore(t)

	ok, err := s.RecordTaken(ctx, "ghost", "med-1", time.Time{})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.AddMedication(ctx, "alice", aspirin())
	require.NoError(t, err)

	ok, err = s.RecordMissed(ctx, "alice", "nope", time.Time{})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.RecordDose(ctx, "alice", "med-1", DoseInput{Status: "skipped"})
	assert.ErrorIs(t, err, apperrors.ErrMalformedInput)
}

func TestStore_RecordDoseSlotDedupe(t *testing.T) {
	ctx := context.Background()
	s, backend := setupTestStore(t)

	med, err := s.AddMedication(ctx, "alice", aspirin())
	require.NoError(t, err)
	puts := backend.Puts()

	in := DoseInput{Status: DoseTaken, SlotID: "2024-03-10T08:00"}
	for i := 0; i < 3; i++ {
		ok, err := s.RecordDose(ctx, "alice", med.ID, in)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	got, _ := s.GetMedication(ctx, "alice", med.ID)
	assert.Equal(t, 1, got.Adherence.TotalDoses)
	assert.Equal(t, "2024-03-10T08:00", got.Adherence.History[0].SlotID)
	assert.Equal(t, puts+1, backend.Puts())
}

func TestStore_ConcurrentRecordDose(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStore(t)

	med, err := s.AddMedication(ctx, "alice", aspirin())
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := DoseTaken
			if i%2 == 0 {
				status = DoseMissed
			}
			ok, err := s.RecordDose(ctx, "alice", med.ID, DoseInput{Status: status})
			assert.NoError(t, err)
			assert.True(t, ok)
		}(i)
	}
	wg.Wait()

	got, _ := s.GetMedication(ctx, "alice", med.ID)
	assertInvariant(t, *got)
	assert.Equal(t, n, got.Adherence.TotalDoses)
	assert.Equal(t, n/2, got.Adherence.TakenDoses)
}

func TestStore_FailedPersistLeavesMemoryUnchanged(t *testing.T) {
	ctx := context.Background()
	s, backend := setupTestStore(t)

	med, err := s.AddMedication(ctx, "alice", aspirin())
	require.NoError(t, err)

	backend.FailPuts(errors.New("disk full"))

	_, err = s.AddMedication(ctx, "alice", aspirin())
	assert.ErrorIs(t, err, apperrors.ErrPersistence)

	ok, err := s.RecordTaken(ctx, "alice", med.ID, time.Time{})
	assert.ErrorIs(t, err, apperrors.ErrPersistence)
	assert.False(t, ok)

	name := "Other"
	_, err = s.UpdateMedication(ctx, "alice", med.ID, Update{Name: &name})
	assert.ErrorIs(t, err, apperrors.ErrPersistence)

	ok, err = s.DeleteMedication(ctx, "alice", med.ID)
	assert.ErrorIs(t, err, apperrors.ErrPersistence)
	assert.False(t, ok)

	list := s.UserMedications(ctx, "alice")
	require.Len(t, list, 1)
	assert.Equal(t, "Aspirin", list[0].Name)
	assert.Equal(t, 0, list[0].Adherence.TotalDoses)
}

func TestStore_LoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, backend := setupTestStore(t)

	notes := "morning"
	in := aspirin()
	in.Notes = &notes
	med, err := s.AddMedication(ctx, "alice", in)
	require.NoError(t, err)
	_, err = s.RecordTaken(ctx, "alice", med.ID, fixedNow.Add(-2*time.Hour))
	require.NoError(t, err)

	reloaded := newTestStore(t, backend)
	list := reloaded.ListMedications(ctx, "alice")
	require.Len(t, list, 1)
	assert.Equal(t, med.ID, list[0].ID)
	require.NotNil(t, list[0].Notes)
	assert.Equal(t, "morning", *list[0].Notes)
	assert.True(t, list[0].StartDate.Equal(in.StartDate))
	assert.Equal(t, 1, list[0].Adherence.TakenDoses)
	assert.True(t, list[0].Adherence.History[0].Date.Equal(fixedNow.Add(-2*time.Hour)))
}

func TestStore_LoadSkipsMalformedDocuments(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryBackend()
	backend.Seed("broken", []byte(`{"broken": "not a list"`))
	backend.Seed("wrong_status", []byte(`{"wrong_status":[{"id":"x","adherence":{"history":[{"date":"2024-01-01T00:00:00Z","status":"skipped"}]}}]}`))
	backend.Seed("good", []byte(`{"good":[{"id":"m1","name":"A","dosage":"1","frequency":"daily","start_date":"2024-01-01T00:00:00Z","adherence":{"total_doses":0,"taken_doses":0,"missed_doses":0,"history":[]}}]}`))

	s := newTestStore(t, backend)

	assert.Empty(t, s.ListMedications(ctx, "broken"))
	assert.Empty(t, s.ListMedications(ctx, "wrong_status"))
	assert.Len(t, s.ListMedications(ctx, "good"), 1)
}

func TestStore_LoadAcceptsNaiveTimestampsAndRepairsCounters(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryBackend()
	backend.Seed("legacy", []byte(`[{"id": "m1", "name": "Metformin", "dosage": "500mg", "frequency": "every 12 hours",
		"start_date": "2024-01-01", "end_date": null, "notes": null,
		"created_at": "2024-01-01T10:00:00.123456", "updated_at": "2024-01-01T10:00:00.123456",
		"adherence": {"total_doses": 9, "taken_doses": 9, "missed_doses": 0,
		"history": [{"date": "2024-01-02T08:00:00.000001", "status": "taken"},
			{"date": "2024-01-03T08:00:00", "status": "missed"}]}}]`))

	s := newTestStore(t, backend)

	list := s.ListMedications(ctx, "legacy")
	require.Len(t, list, 1)
	med := list[0]
	assertInvariant(t, med)
	assert.Equal(t, 2, med.Adherence.TotalDoses)
	assert.Equal(t, 1, med.Adherence.TakenDoses)
	assert.Equal(t, 1, med.Adherence.MissedDoses)

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local), med.StartDate)
	assert.Nil(t, med.EndDate)
	assert.Nil(t, med.Notes)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 123456000, time.Local), med.CreatedAt)
	assert.Equal(t, time.Date(2024, 1, 2, 8, 0, 0, 1000, time.Local), med.Adherence.History[0].Date)

	// the next write stores RFC3339
	_, err := s.RecordTaken(ctx, "legacy", "m1", time.Time{})
	require.NoError(t, err)
	doc, err := backend.Get(ctx, "legacy")
	require.NoError(t, err)
	assert.Contains(t, string(doc), `"start_date": "2024-01-01T00:00:00`)
	assert.NotContains(t, string(doc), `"start_date": "2024-01-01",`)
}

func TestStore_LoadRejectsUnparseableTimestamps(t *testing.T) {
	backend := store.NewMemoryBackend()
	backend.Seed("bad", []byte(`{"bad": [{"id": "m1", "name": "A", "dosage": "1", "frequency": "daily",
		"start_date": "next week", "adherence": {"history": []}}]}`))

	s := newTestStore(t, backend)
	assert.Empty(t, s.ListMedications(context.Background(), "bad"))
}

func TestStore_LoadSkipsUnreadableDocuments(t *testing.T) {
	backend := store.NewMemoryBackend()
	backend.Seed("alice", []byte(`{"alice":[]}`))
	backend.FailGets(errors.New("permission denied"))

	s := newTestStore(t, backend)
	assert.Empty(t, s.ListMedications(context.Background(), "alice"))
}

func TestStore_UsersAreIsolated(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStore(t)

	med, err := s.AddMedication(ctx, "alice", aspirin())
	require.NoError(t, err)

	assert.Empty(t, s.UserMedications(ctx, "bob"))
	_, ok := s.GetMedication(ctx, "bob", med.ID)
	assert.False(t, ok)

	found, err := s.RecordTaken(ctx, "bob", med.ID, time.Time{})
	require.NoError(t, err)
	assert.False(t, found)
}
