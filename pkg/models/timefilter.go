package models

import (
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// TimeFilter restricts list views to a recent window. The zero value means
// no filtering.
type TimeFilter int

const (
	TimeFilterNone TimeFilter = iota
	TimeFilterHour
	TimeFilterFourHours
	TimeFilterTwelveHours
	TimeFilterDay
	TimeFilterWeek
)

// Window returns the filter's duration, or 0 for TimeFilterNone.
func (f TimeFilter) Window() time.Duration {
	switch f {
	case TimeFilterHour:
		return time.Hour
	case TimeFilterFourHours:
		return 4 * time.Hour
	case TimeFilterTwelveHours:
		return 12 * time.Hour
	case TimeFilterDay:
		return 24 * time.Hour
	case TimeFilterWeek:
		return 7 * 24 * time.Hour
	}
	return 0
}

// Label returns the short display label.
func (f TimeFilter) Label() string {
	switch f {
	case TimeFilterHour:
		return "1h"
	case TimeFilterFourHours:
		return "4h"
	case TimeFilterTwelveHours:
		return "12h"
	case TimeFilterDay:
		return "24h"
	case TimeFilterWeek:
		return "7d"
	}
	return "all"
}

// Cycle advances through the fixed windows and wraps back to no filter.
func (f TimeFilter) Cycle() TimeFilter {
	if f == TimeFilterWeek {
		return TimeFilterNone
	}
	return f + 1
}

// Cutoff returns the earliest admissible timestamp relative to now, or 0
// when unfiltered.
func (f TimeFilter) Cutoff(now time.Time) nostr.Timestamp {
	w := f.Window()
	if w == 0 {
		return 0
	}
	return nostr.Timestamp(now.Add(-w).Unix())
}

// Admits reports whether ts falls inside the window ending at now.
func (f TimeFilter) Admits(ts nostr.Timestamp, now time.Time) bool {
	if f == TimeFilterNone {
		return true
	}
	return ts >= f.Cutoff(now)
}
