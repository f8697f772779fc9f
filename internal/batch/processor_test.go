package batch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gmsas95/medtrack/internal/medication"
	"github.com/gmsas95/medtrack/internal/metrics"
	"github.com/gmsas95/medtrack/internal/store"
)

func setupTestStore(t *testing.T) (*medication.Store, map[string]string) {
	meds := medication.NewStore(store.NewMemoryBackend(), zap.NewNop(), medication.WithMetrics(metrics.New()))
	require.NoError(t, meds.Load(context.Background()))

	ids := make(map[string]string)
	for _, uid := range []string{"alice", "bob"} {
		med, err := meds.AddMedication(context.Background(), uid, medication.NewMedication{
			Name:      "Aspirin",
			Dosage:    "100mg",
			Frequency: "daily",
			StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		ids[uid] = med.ID
	}
	return meds, ids
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxConcurrency)
	assert.True(t, cfg.SkipInvalid)
}

func TestLoadItems_JSONArray(t *testing.T) {
	items, err := LoadItems(strings.NewReader(`  [
		{"user_id": "alice", "medication_id": "m1", "status": "taken"},
		{"user_id": "bob", "medication_id": "m2", "status": "missed", "date": "2024-03-01T08:00:00Z", "slot_id": "s1"}
	]`))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "bob", items[1].UserID)
	assert.Equal(t, "s1", items[1].SlotID)
}

func TestLoadItems_JSONLines(t *testing.T) {
	items, err := LoadItems(strings.NewReader(`# exported from dispenser
{"user_id": "alice", "medication_id": "m1", "status": "taken"}

{"user_id": "alice", "medication_id": "m1", "status": "missed"}
`))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "missed", items[1].Status)
}

func TestLoadItems_Errors(t *testing.T) {
	items, err := LoadItems(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = LoadItems(strings.NewReader("{\"user_id\": \"alice\"}\nnot json\n"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestProcess_RecordsDoses(t *testing.T) {
	ctx := context.Background()
	meds, ids := setupTestStore(t)

	var items []InputItem
	for i := 0; i < 10; i++ {
		status := "taken"
		if i%5 == 0 {
			status = "missed"
		}
		items = append(items,
			InputItem{UserID: "alice", MedicationID: ids["alice"], Status: status},
			InputItem{UserID: "bob", MedicationID: ids["bob"], Status: "taken"},
		)
	}

	p := NewProcessor(meds, DefaultConfig(), zap.NewNop())
	result := p.Process(ctx, items)

	assert.Equal(t, 20, result.Total)
	assert.Equal(t, 20, result.Success)
	assert.Zero(t, result.Failed)

	alice, ok := meds.GetMedication(ctx, "alice", ids["alice"])
	require.True(t, ok)
	assert.Equal(t, 10, alice.Adherence.TotalDoses)
	assert.Equal(t, 8, alice.Adherence.TakenDoses)
	assert.Equal(t, 80.0, alice.Adherence.Rate())
	assert.Equal(t, medication.DoseMissed, alice.Adherence.History[0].Status)
	assert.Equal(t, medication.DoseMissed, alice.Adherence.History[5].Status)
}

func TestProcess_InvalidAndUnknownItems(t *testing.T) {
	ctx := context.Background()
	meds, ids := setupTestStore(t)

	items := []InputItem{
		{UserID: "alice", MedicationID: ids["alice"], Status: "taken", SlotID: "mon-am"},
		{UserID: "alice", MedicationID: ids["alice"], Status: "taken", SlotID: "mon-am"},
		{UserID: "alice", MedicationID: ids["alice"], Status: "skipped"},
		{UserID: "alice", MedicationID: ids["alice"], Status: "taken", At: "yesterday"},
		{UserID: "", MedicationID: "x", Status: "taken"},
		{UserID: "alice", MedicationID: "unknown", Status: "taken"},
	}

	p := NewProcessor(meds, Config{MaxConcurrency: 2, SkipInvalid: true}, zap.NewNop())
	result := p.Process(ctx, items)

	assert.Equal(t, 2, result.Success)
	assert.Equal(t, 3, result.Skipped)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, "medication not found", result.Items[5].Error)

	alice, _ := meds.GetMedication(ctx, "alice", ids["alice"])
	assert.Equal(t, 1, alice.Adherence.TotalDoses)

	p = NewProcessor(meds, Config{MaxConcurrency: 1}, zap.NewNop())
	result = p.Process(ctx, items[2:3])
	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, result.Skipped)
}

func TestProcessFile(t *testing.T) {
	ctx := context.Background()
	meds, ids := setupTestStore(t)

	path := filepath.Join(t.TempDir(), "doses.jsonl")
	content := `{"user_id": "bob", "medication_id": "` + ids["bob"] + `", "status": "taken", "date": "2024-03-01T08:00:00Z"}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	p := NewProcessor(meds, DefaultConfig(), zap.NewNop())
	result, err := p.ProcessFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Success)
	assert.Contains(t, result.Summary(), "Success:   1")

	out, err := result.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, out, `"success": 1`)

	_, err = p.ProcessFile(ctx, filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
