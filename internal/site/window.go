package site

import (
	"errors"
	"fmt"
	"time"
)

// ErrEmptyWindow is returned for a window whose end is not after its start.
var ErrEmptyWindow = errors.New("crawl window is empty")

// Window is the half-open time range [Start, End) to crawl, in site-local time.
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowEndingAt returns the window of the given length that ends at now,
// expressed in loc.
func WindowEndingAt(now time.Time, length time.Duration, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	end := now.In(loc)
	return Window{Start: end.Add(-length), End: end}
}

// Validate checks the window is non-empty.
func (w Window) Validate() error {
	if !w.End.After(w.Start) {
		return fmt.Errorf("%w: start=%s end=%s", ErrEmptyWindow, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	}
	return nil
}

// Days returns the calendar dates the window touches, in the window's
// location, oldest first. End is exclusive, so a window ending exactly at
// midnight does not include the following day.
func (w Window) Days() []time.Time {
	if w.Validate() != nil {
		return nil
	}
	loc := w.Start.Location()
	last := w.End.Add(-time.Nanosecond).In(loc)

	day := truncateDay(w.Start)
	lastDay := truncateDay(last)

	var days []time.Time
	for !day.After(lastDay) {
		days = append(days, day)
		day = day.AddDate(0, 0, 1)
	}
	return days
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
