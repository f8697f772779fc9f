package medication

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gmsas95/medtrack/internal/errors"
)

func TestRoundedRate(t *testing.T) {
	tests := []struct {
		taken, total int
		want         float64
	}{
		{0, 0, 100.0},
		{1, 2, 50.0},
		{2, 3, 66.7},
		{1, 3, 33.3},
		{0, 4, 0.0},
		{5, 5, 100.0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, RoundedRate(tt.taken, tt.total), "%d/%d", tt.taken, tt.total)
	}
}

func TestParseDoseStatus(t *testing.T) {
	s, err := ParseDoseStatus(" Taken ")
	require.NoError(t, err)
	assert.Equal(t, DoseTaken, s)

	s, err = ParseDoseStatus("missed")
	require.NoError(t, err)
	assert.Equal(t, DoseMissed, s)

	_, err = ParseDoseStatus("late")
	assert.ErrorIs(t, err, apperrors.ErrMalformedInput)
}

func TestMedication_ActiveAt(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	m := Medication{StartDate: start, EndDate: &end}

	assert.True(t, m.ActiveAt(start))
	assert.True(t, m.ActiveAt(end))
	assert.True(t, m.ActiveAt(start.AddDate(0, 0, 10)))
	assert.False(t, m.ActiveAt(start.Add(-time.Second)))
	assert.False(t, m.ActiveAt(end.Add(time.Second)))

	m.EndDate = nil
	assert.True(t, m.ActiveAt(start.AddDate(5, 0, 0)))
}

func TestMedication_Clone(t *testing.T) {
	end := time.Now()
	notes := "n"
	m := Medication{EndDate: &end, Notes: &notes}
	m.Adherence.record(DoseEvent{Status: DoseTaken})

	c := m.Clone()
	*c.EndDate = end.Add(time.Hour)
	*c.Notes = "changed"
	c.Adherence.History[0].Status = DoseMissed

	assert.Equal(t, end, *m.EndDate)
	assert.Equal(t, "n", *m.Notes)
	assert.Equal(t, DoseTaken, m.Adherence.History[0].Status)
}

func TestUpdate_Empty(t *testing.T) {
	assert.True(t, Update{}.Empty())
	assert.False(t, Update{ClearNotes: true}.Empty())
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-03-10T08:30:00Z", time.Date(2024, 3, 10, 8, 30, 0, 0, time.UTC)},
		{"2024-03-10T08:30:00+02:00", time.Date(2024, 3, 10, 6, 30, 0, 0, time.UTC)},
		{"2024-03-10T08:30:00.123456", time.Date(2024, 3, 10, 8, 30, 0, 123456000, time.Local)},
		{"2024-03-10T08:30", time.Date(2024, 3, 10, 8, 30, 0, 0, time.Local)},
		{"2024-03-10 08:30:00", time.Date(2024, 3, 10, 8, 30, 0, 0, time.Local)},
		{"2024-03-10", time.Date(2024, 3, 10, 0, 0, 0, 0, time.Local)},
	}

	for _, tt := range tests {
		got, err := ParseTime(tt.in)
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), "%s: got %s", tt.in, got)
	}

	_, err := ParseTime("yesterday")
	assert.ErrorIs(t, err, apperrors.ErrMalformedInput)
	_, err = ParseTime("")
	assert.ErrorIs(t, err, apperrors.ErrMalformedInput)

	opt, err := ParseOptionalTime("  ")
	require.NoError(t, err)
	assert.Nil(t, opt)
}
