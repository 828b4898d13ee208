package analytics

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidDateRange = errors.New("invalid date range")

// DateRange is a reporting window; a nil bound is open.
type DateRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// Bounded reports whether at least one side of the window is set.
func (r DateRange) Bounded() bool {
	return r.Start != nil || r.End != nil
}

// Contains reports whether t falls inside the window, bounds included.
func (r DateRange) Contains(t time.Time) bool {
	if r.Start != nil && t.Before(*r.Start) {
		return false
	}
	if r.End != nil && t.After(*r.End) {
		return false
	}
	return true
}

// ParseDateRange reads YYYY-MM-DD or RFC3339 bounds. A plain start date
// begins at 00:00 and a plain end date runs to the last instant of that day,
// both in loc.
func ParseDateRange(start, end string, loc *time.Location) (DateRange, error) {
	if loc == nil {
		loc = time.UTC
	}
	var r DateRange

	if s := strings.TrimSpace(start); s != "" {
		t, dateOnly, err := parseBound(s, loc)
		if err != nil {
			return DateRange{}, fmt.Errorf("%w: start_date %q", ErrInvalidDateRange, start)
		}
		if dateOnly {
			t = StartOfDay(t)
		}
		r.Start = &t
	}
	if s := strings.TrimSpace(end); s != "" {
		t, dateOnly, err := parseBound(s, loc)
		if err != nil {
			return DateRange{}, fmt.Errorf("%w: end_date %q", ErrInvalidDateRange, end)
		}
		if dateOnly {
			t = EndOfDay(t)
		}
		r.End = &t
	}

	if r.Start != nil && r.End != nil && r.End.Before(*r.Start) {
		return DateRange{}, fmt.Errorf("%w: end_date before start_date", ErrInvalidDateRange)
	}
	return r, nil
}

func parseBound(s string, loc *time.Location) (time.Time, bool, error) {
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.In(loc), false, nil
}

func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// MonthRange is the whole calendar month containing t.
func MonthRange(t time.Time) DateRange {
	y, m, _ := t.Date()
	start := time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return DateRange{Start: &start, End: &end}
}
