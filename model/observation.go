package model

import (
	"fmt"
	"time"
)

// ObservationSample is one daily buoy fix.
type ObservationSample struct {
	Date  time.Time
	Lat   float64
	Lon   float64
	Speed float64 // scalar drift speed as logged by the buoy
}

// Observation is a buoy record: daily samples ordered by date.
type Observation struct {
	Name          string
	ReferenceYear int
	Samples       []ObservationSample
}

// Validate checks that the record has at least one sample and that sample
// days strictly increase: at most one fix per calendar day.
func (o *Observation) Validate() error {
	if o == nil || len(o.Samples) == 0 {
		return fmt.Errorf("observation has no samples")
	}
	for i := 1; i < len(o.Samples); i++ {
		if !calendarDay(o.Samples[i].Date).After(calendarDay(o.Samples[i-1].Date)) {
			return fmt.Errorf("observation %q: sample %d date %s does not follow %s",
				o.Name, i,
				o.Samples[i].Date.Format(time.DateOnly),
				o.Samples[i-1].Date.Format(time.DateOnly))
		}
	}
	return nil
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Start returns the first observed position.
func (o *Observation) Start() GeographicPoint {
	s := o.Samples[0]
	return GeographicPoint{Lat: s.Lat, Lon: s.Lon}
}

// FirstDate returns the date of the first sample.
func (o *Observation) FirstDate() time.Time { return o.Samples[0].Date }

// LastDate returns the date of the last sample.
func (o *Observation) LastDate() time.Time { return o.Samples[len(o.Samples)-1].Date }

// Positions returns the observed track as geographic points.
func (o *Observation) Positions() []GeographicPoint {
	out := make([]GeographicPoint, len(o.Samples))
	for i, s := range o.Samples {
		out[i] = GeographicPoint{Lat: s.Lat, Lon: s.Lon}
	}
	return out
}
