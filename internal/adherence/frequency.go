package adherence

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind classifies a free-text frequency
type Kind int

const (
	Unparsed Kind = iota
	Hourly
	Daily
	Weekly
	Monthly
)

func (k Kind) String() string {
	switch k {
	case Hourly:
		return "hourly"
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	default:
		return "unparsed"
	}
}

// Schedule is the interpreted form of a medication's frequency text.
// Hours is set only for Hourly schedules.
type Schedule struct {
	Kind  Kind
	Hours int
	Raw   string
}

// Interpreter turns free-text frequency into a Schedule
type Interpreter interface {
	Interpret(frequency string) Schedule
}

// KeywordInterpreter matches case-insensitive keywords. "every N hours"
// takes the first run of digits as N; text it cannot classify, including
// an hourly schedule without a usable number, is Unparsed.
type KeywordInterpreter struct{}

var digitRun = regexp.MustCompile(`\d+`)

func (KeywordInterpreter) Interpret(frequency string) Schedule {
	lower := strings.ToLower(frequency)

	switch {
	case strings.Contains(lower, "every") && strings.Contains(lower, "hour"):
		n, err := strconv.Atoi(digitRun.FindString(lower))
		if err != nil || n <= 0 {
			return Schedule{Kind: Unparsed, Raw: frequency}
		}
		return Schedule{Kind: Hourly, Hours: n, Raw: frequency}
	case strings.Contains(lower, "daily"):
		return Schedule{Kind: Daily, Raw: frequency}
	case strings.Contains(lower, "weekly"):
		return Schedule{Kind: Weekly, Raw: frequency}
	case strings.Contains(lower, "monthly"):
		return Schedule{Kind: Monthly, Raw: frequency}
	}
	return Schedule{Kind: Unparsed, Raw: frequency}
}

const (
	hoursPerWeek  = 7 * 24
	hoursPerMonth = 30 * 24
)

// Due reports whether the schedule has a dose within windowHours of now.
// This is window membership, not an exact next-dose instant. Unparsed
// schedules are always due so an unreadable schedule is never hidden.
func (s Schedule) Due(now time.Time, windowHours int) bool {
	if windowHours < 0 {
		windowHours = 0
	}

	switch s.Kind {
	case Hourly:
		if s.Hours <= 0 {
			return true
		}
		return now.Hour()%s.Hours <= windowHours
	case Daily:
		return true
	case Weekly:
		return windowHours >= hoursPerWeek
	case Monthly:
		return windowHours >= hoursPerMonth
	default:
		return true
	}
}
