package stringutil

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateTimeLayout is the layout used for start times in job files and logs.
const DateTimeLayout = "2006-01-02 15:04:05.000000"

// ErrInvalidTime is returned when a time string matches no accepted layout.
var ErrInvalidTime = errors.New("invalid time")

var timeLayouts = []string{
	DateTimeLayout,
	time.DateTime,
	time.RFC3339Nano,
	time.RFC3339,
}

// ParseTime parses s as a local timestamp. It accepts DateTimeLayout (with or
// without fractional seconds) and RFC 3339.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
}

// FormatTime formats t with DateTimeLayout, or returns "-" for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(DateTimeLayout)
}

// RemoveQuotes strips one pair of surrounding double quotes.
func RemoveQuotes(s string) string {
	if len(s) > 1 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
