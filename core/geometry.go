package core

import (
	"math"
	"time"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"

	"github.com/signalsfoundry/icedrift/model"
	"github.com/signalsfoundry/icedrift/timectrl"
)

// EarthRadiusKm is the authalic radius both grid projections are built on.
const EarthRadiusKm = 6371.228

// GreatCircleKm returns the surface distance between two points.
func GreatCircleKm(a, b model.GeographicPoint) float64 {
	return angleKm(latLng(a).Distance(latLng(b)))
}

func latLng(p model.GeographicPoint) s2.LatLng {
	return s2.LatLngFromDegrees(p.Lat, p.Lon)
}

func angleKm(a s1.Angle) float64 {
	return a.Radians() * EarthRadiusKm
}

// Deviation is the distance between a reconstructed point and the buoy
// position observed on the same day.
type Deviation struct {
	Day  int // offset from the trace start
	Date time.Time
	Km   float64
}

// TraceDeviation pairs each observation sample with the trace point of the
// same day. Samples past the end of the trace are skipped.
func TraceDeviation(tr *model.Trace, obs *model.Observation) []Deviation {
	if tr.Len() == 0 || obs == nil || len(obs.Samples) == 0 {
		return nil
	}
	cal := timectrl.NewCalendar(obs.FirstDate(), timectrl.Day)
	out := make([]Deviation, 0, len(obs.Samples))
	for _, s := range obs.Samples {
		day := cal.Steps(obs.FirstDate(), s.Date)
		if day >= tr.Len() {
			continue
		}
		out = append(out, Deviation{
			Day:  day,
			Date: s.Date,
			Km:   GreatCircleKm(tr.Points[day], model.GeographicPoint{Lat: s.Lat, Lon: s.Lon}),
		})
	}
	return out
}

// MeanDeviationKm averages devs; it is NaN for an empty slice.
func MeanDeviationKm(devs []Deviation) float64 {
	if len(devs) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, d := range devs {
		sum += d.Km
	}
	return sum / float64(len(devs))
}

// EnsembleSpread returns, per step, the largest distance of any member from
// the centre member.
func EnsembleSpread(res *EnsembleResult) []float64 {
	center := res.Center()
	if center == nil || center.Trace.Len() == 0 {
		return nil
	}
	spread := make([]float64, center.Trace.Len())
	for _, m := range res.Members {
		for k := 0; k < len(spread) && k < m.Trace.Len(); k++ {
			spread[k] = math.Max(spread[k], GreatCircleKm(center.Trace.Points[k], m.Trace.Points[k]))
		}
	}
	return spread
}
