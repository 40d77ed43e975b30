package timectrl

import (
	"testing"
	"time"
)

func TestCalendarIndexFromYearStart(t *testing.T) {
	cal := ForYear(2016)

	cases := []struct {
		date time.Time
		want int
	}{
		{time.Date(2016, time.January, 1, 0, 0, 0, 0, time.UTC), 0},
		{time.Date(2016, time.January, 2, 0, 0, 0, 0, time.UTC), 1},
		{time.Date(2016, time.March, 1, 0, 0, 0, 0, time.UTC), 60}, // leap year
		{time.Date(2017, time.January, 1, 0, 0, 0, 0, time.UTC), 366},
		{time.Date(2016, time.January, 3, 18, 30, 0, 0, time.UTC), 2},
	}
	for _, tc := range cases {
		got, err := cal.Index(tc.date)
		if err != nil {
			t.Fatalf("Index(%s) error: %v", tc.date, err)
		}
		if got != tc.want {
			t.Fatalf("Index(%s) = %d, want %d", tc.date.Format(time.DateOnly), got, tc.want)
		}
	}
}

func TestCalendarIndexBeforeReference(t *testing.T) {
	cal := ForYear(2016)
	if _, err := cal.Index(time.Date(2015, time.December, 31, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Fatalf("expected error for date before reference")
	}
}

func TestCalendarSteps(t *testing.T) {
	cal := NewCalendar(time.Date(2016, time.January, 1, 0, 0, 0, 0, time.UTC), 0)
	start := time.Date(2016, time.October, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2016, time.October, 31, 0, 0, 0, 0, time.UTC)

	if got := cal.Steps(start, end); got != 30 {
		t.Fatalf("Steps = %d, want 30", got)
	}
	if got := cal.Steps(end, start); got != 0 {
		t.Fatalf("reversed Steps = %d, want 0", got)
	}
}

func TestCalendarAtInvertsIndex(t *testing.T) {
	cal := ForYear(2017)
	for i := range 400 {
		d := cal.At(i)
		got, err := cal.Index(d)
		if err != nil {
			t.Fatalf("Index(At(%d)) error: %v", i, err)
		}
		if got != i {
			t.Fatalf("Index(At(%d)) = %d", i, got)
		}
	}
}
