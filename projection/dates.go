package projection

import (
	"strings"
	"time"
)

// Layouts accepted for source dates, most specific first. Statements use the
// day-first local format; the UI sends ISO dates.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02.01.2006",
	"2006-01",
	"01/2006",
	"2006",
}

// ParseDate parses s with the accepted layouts. ok is false for empty or
// unrecognized input.
func ParseDate(s string) (t time.Time, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// yearMonth returns the year and month of s, or (fallbackYear, January) when
// s cannot be parsed.
func yearMonth(s string, fallbackYear int) (int, time.Month) {
	t, ok := ParseDate(s)
	if !ok {
		return fallbackYear, time.January
	}
	return t.Year(), t.Month()
}

// endYear returns the last active year of s, or ok=false for open-ended.
func endYear(s string) (int, bool) {
	t, ok := ParseDate(s)
	if !ok {
		return 0, false
	}
	return t.Year(), true
}
