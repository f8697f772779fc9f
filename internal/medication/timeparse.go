package medication

import (
	"strings"
	"time"

	apperrors "github.com/gmsas95/medtrack/internal/errors"
)

// Layouts accepted for ISO-8601 input. Values without a zone are read in
// the local time zone.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses an ISO-8601 date or date-time string
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, apperrors.Malformed("empty date")
	}
	for _, layout := range isoLayouts {
		var (
			t   time.Time
			err error
		)
		if strings.Contains(layout, "Z07") {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, time.Local)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, apperrors.Malformed("invalid ISO-8601 date %q", s)
}

// ParseOptionalTime returns nil for an empty string
func ParseOptionalTime(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := ParseTime(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
