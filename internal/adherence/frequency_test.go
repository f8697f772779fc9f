package adherence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeywordInterpreter(t *testing.T) {
	tests := []struct {
		in    string
		kind  Kind
		hours int
	}{
		{"daily", Daily, 0},
		{"Twice DAILY with food", Daily, 0},
		{"every 8 hours", Hourly, 8},
		{"Every 12 Hours", Hourly, 12},
		{"every 4-6 hours", Hourly, 4},
		{"every hour", Unparsed, 0},
		{"every 0 hours", Unparsed, 0},
		{"weekly", Weekly, 0},
		{"monthly", Monthly, 0},
		{"as needed", Unparsed, 0},
		{"", Unparsed, 0},
	}

	var interp KeywordInterpreter
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			s := interp.Interpret(tt.in)
			assert.Equal(t, tt.kind, s.Kind)
			assert.Equal(t, tt.hours, s.Hours)
			assert.Equal(t, tt.in, s.Raw)
		})
	}
}

func TestSchedule_Due(t *testing.T) {
	at := func(hour int) time.Time {
		return time.Date(2024, 3, 10, hour, 15, 0, 0, time.UTC)
	}

	tests := []struct {
		name   string
		s      Schedule
		now    time.Time
		window int
		want   bool
	}{
		{"daily always", Schedule{Kind: Daily}, at(3), 0, true},
		{"unparsed always", Schedule{Kind: Unparsed, Raw: "as needed"}, at(3), 0, true},
		{"hourly inside window", Schedule{Kind: Hourly, Hours: 8}, at(10), 2, true},
		{"hourly outside window", Schedule{Kind: Hourly, Hours: 8}, at(15), 2, false},
		{"hourly zero remainder", Schedule{Kind: Hourly, Hours: 6}, at(12), 0, true},
		{"hourly bad interval", Schedule{Kind: Hourly, Hours: 0}, at(12), 0, true},
		{"weekly short window", Schedule{Kind: Weekly}, at(9), 24, false},
		{"weekly full week", Schedule{Kind: Weekly}, at(9), 168, true},
		{"monthly short window", Schedule{Kind: Monthly}, at(9), 168, false},
		{"monthly thirty days", Schedule{Kind: Monthly}, at(9), 720, true},
		{"negative window", Schedule{Kind: Hourly, Hours: 5}, at(10), -3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.s.Due(tt.now, tt.window))
		})
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "hourly", Hourly.String())
	assert.Equal(t, "unparsed", Kind(42).String())
}
