// Package timegrid holds the pure time arithmetic the engine is built on:
// wall-clock HH:MM values as comparable minute offsets, slot enumeration for
// an operating day, and zone-anchored date classification.
package timegrid

import (
	"errors"
	"fmt"
	"time"
)

const (
	DateLayout = "2006-01-02"
	timeLayout = "15:04"

	minutesPerDay = 24 * 60
)

var (
	ErrMalformedTime = errors.New("timegrid: time must be HH:MM between 00:00 and 23:59")
	ErrMalformedDate = errors.New("timegrid: date must be YYYY-MM-DD")
)

// ToMinutes parses a 24-hour HH:MM wall-clock value into minutes since
// midnight.
func ToMinutes(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatMinutes is the inverse of ToMinutes for values within one day.
func FormatMinutes(m int) string {
	m = ((m % minutesPerDay) + minutesPerDay) % minutesPerDay
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Overlaps is the single overlap law for two half-open minute intervals.
// Back-to-back intervals sharing only a boundary point do not overlap.
func Overlaps(s1, e1, s2, e2 int) bool {
	return s1 < e2 && s2 < e1
}

// Slot is one half-open interval of a day's availability grid.
type Slot struct {
	StartMin int
	EndMin   int
}

// SlotBoundaries enumerates half-open slots of durationMin from dayStart to
// dayEnd, discarding a trailing slot that would run past dayEnd. A duration
// covering the whole operating window collapses to a single all-day slot.
func SlotBoundaries(dayStartMin, dayEndMin, durationMin int) []Slot {
	if durationMin <= 0 || dayEndMin <= dayStartMin {
		return nil
	}
	if durationMin >= dayEndMin-dayStartMin {
		return []Slot{{StartMin: dayStartMin, EndMin: dayEndMin}}
	}

	var slots []Slot
	for start := dayStartMin; start+durationMin <= dayEndMin; start += durationMin {
		slots = append(slots, Slot{StartMin: start, EndMin: start + durationMin})
	}
	return slots
}

// Grid anchors date interpretation to one configured IANA zone. The server
// and its operators may sit in different offsets, so date boundaries must
// never come from the process-local zone.
type Grid struct {
	loc *time.Location
}

func New(loc *time.Location) *Grid {
	if loc == nil {
		loc = time.UTC
	}
	return &Grid{loc: loc}
}

// ParseDate validates a calendar date in the grid's zone.
func (g *Grid) ParseDate(date string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, date, g.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedDate, date)
	}
	return t, nil
}

// DayBounds returns the zone-anchored start and end of the calendar date.
func (g *Grid) DayBounds(date string) (time.Time, time.Time, error) {
	start, err := g.ParseDate(date)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 0, 1), nil
}

// Today renders the reference instant's calendar date in the grid's zone.
func (g *Grid) Today(now time.Time) string {
	return now.In(g.loc).Format(DateLayout)
}

// IsPast reports whether a slot starting at minutesSinceMidnight on date has
// already begun: true for any earlier date, and on the reference day only
// when the slot start precedes now's time-of-day in the grid's zone.
func (g *Grid) IsPast(date string, minutesSinceMidnight int, now time.Time) bool {
	local := now.In(g.loc)
	today := local.Format(DateLayout)
	if date < today {
		return true
	}
	if date > today {
		return false
	}
	return minutesSinceMidnight < local.Hour()*60+local.Minute()
}
