// Package parser turns natural language dates and times from the command
// line into instants in the prayer timezone.
package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/markusmobius/go-dateparser"
)

var layouts = []string{
	"2006-01-02",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	time.RFC3339,
}

// ParseWhen parses input relative to now. Exact layouts are tried first;
// anything else goes through go-dateparser ("tomorrow", "next friday",
// "9pm"). The wall clock of the result is read in loc.
func ParseWhen(input string, now time.Time, loc *time.Location) (time.Time, error) {
	input = strings.TrimSpace(input)
	now = now.In(loc)
	if input == "" || strings.EqualFold(input, "now") {
		return now, nil
	}

	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, input, loc); err == nil {
			return t.In(loc), nil
		}
	}

	cfg := &dateparser.Configuration{
		CurrentTime: now,
	}
	result, err := dateparser.Parse(cfg, input)
	if err != nil {
		return time.Time{}, fmt.Errorf("could not parse %q as a date or time", input)
	}

	t := result.Time
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), nil
}

// ParseDate is ParseWhen truncated to midnight in loc.
func ParseDate(input string, now time.Time, loc *time.Location) (time.Time, error) {
	t, err := ParseWhen(input, now, loc)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
}
