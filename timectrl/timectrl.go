package timectrl

import (
	"fmt"
	"time"
)

// Day is the integration step used by the daily drift products.
const Day = 24 * time.Hour

// Calendar maps dates onto the time axis of a daily velocity field. Index 0
// is the Reference date; each subsequent index is one Step later.
type Calendar struct {
	Reference time.Time
	Step      time.Duration
}

// NewCalendar constructs a calendar. A zero step defaults to one day.
func NewCalendar(reference time.Time, step time.Duration) Calendar {
	if step <= 0 {
		step = Day
	}
	return Calendar{Reference: truncateDay(reference), Step: step}
}

// ForYear returns a daily calendar whose index 0 is January 1st of year.
func ForYear(year int) Calendar {
	return NewCalendar(time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC), Day)
}

// Index returns the time index of t, counted in whole steps from the
// reference. Dates before the reference are rejected.
func (c Calendar) Index(t time.Time) (int, error) {
	d := truncateDay(t).Sub(c.Reference)
	if d < 0 {
		return 0, fmt.Errorf("date %s precedes calendar reference %s",
			t.Format(time.DateOnly), c.Reference.Format(time.DateOnly))
	}
	return int(d / c.step()), nil
}

// At returns the date of time index i.
func (c Calendar) At(i int) time.Time {
	return c.Reference.Add(time.Duration(i) * c.step())
}

// Steps returns the number of whole steps between start and end.
func (c Calendar) Steps(start, end time.Time) int {
	d := truncateDay(end).Sub(truncateDay(start))
	if d <= 0 {
		return 0
	}
	return int(d / c.step())
}

func (c Calendar) step() time.Duration {
	if c.Step <= 0 {
		return Day
	}
	return c.Step
}

// truncateDay drops the clock part so that a fix logged at 12:00 still
// counts as that calendar day.
func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
