package model

import (
	"fmt"
	"math"
)

// Resolution identifies a supported satellite grid by its nominal cell size
// in kilometres. Each resolution has its own projection.
type Resolution float64

const (
	Resolution25km   Resolution = 25   // NSIDC azimuthal grid
	Resolution62_5km Resolution = 62.5 // OSI SAF polar stereographic grid
)

// Km returns the nominal cell size in kilometres.
func (r Resolution) Km() float64 { return float64(r) }

// Metres returns the nominal cell size in metres.
func (r Resolution) Metres() float64 { return float64(r) * 1000 }

func (r Resolution) String() string {
	return fmt.Sprintf("%gkm", float64(r))
}

// GeographicPoint is a latitude/longitude pair in degrees.
type GeographicPoint struct {
	Lat float64
	Lon float64
}

// GridPoint is a fractional planar grid position with the grid-relative
// velocity (m/s) sampled there.
type GridPoint struct {
	X float64
	Y float64
	U float64
	V float64
}

// OnNode reports whether the point sits exactly on an integer grid node.
func (p GridPoint) OnNode() bool {
	return p.X == math.Trunc(p.X) && p.Y == math.Trunc(p.Y)
}

// Trace is the ordered output of one integration run. U and V, when present,
// hold the velocity at each traced point and are parallel to Points.
type Trace struct {
	Points []GeographicPoint
	U      []float64
	V      []float64
}

// Len returns the number of traced points.
func (t *Trace) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Points)
}
