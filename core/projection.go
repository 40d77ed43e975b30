package core

import (
	"math"

	"github.com/signalsfoundry/icedrift/model"
)

// Projection maps between geographic degrees and fractional planar grid
// coordinates for one satellite grid.
type Projection interface {
	ToPlanar(lat, lon float64) (x, y float64)
	ToGeographic(x, y float64) (lat, lon float64)
}

// AzimuthalProjection is the azimuthal pole-centred projection of the
// 25 km NSIDC ice motion grid.
type AzimuthalProjection struct {
	EarthRadiusKm float64
	CellKm        float64
	OriginX       float64 // map origin column
	OriginY       float64 // map origin row (stored negated, as in the product)
	Precision     float64 // axis snapping tolerance in grid units
}

// DefaultAzimuthal25km returns the projection of the 361x361 25 km grid.
func DefaultAzimuthal25km() AzimuthalProjection {
	return AzimuthalProjection{
		EarthRadiusKm: 6371.228,
		CellKm:        25,
		OriginX:       180,
		OriginY:       -180,
		Precision:     1e-4,
	}
}

// ToPlanar maps latitude/longitude degrees to grid coordinates.
func (p AzimuthalProjection) ToPlanar(lat, lon float64) (x, y float64) {
	φ := toRad(lat)
	λ := toRad(lon)
	k := 2 * p.EarthRadiusKm / p.CellKm * math.Sin(math.Pi/4-φ/2)
	x = k*math.Sin(λ) + p.OriginX
	y = -(k*math.Cos(λ) + p.OriginY)
	return x, y
}

// ToGeographic maps grid coordinates back to latitude/longitude degrees.
// Longitude is in (-180, 180].
func (p AzimuthalProjection) ToGeographic(x, y float64) (lat, lon float64) {
	dx := x - p.OriginX
	dy := y + p.OriginY // -k·cos(λ)
	scale := p.CellKm / (2 * p.EarthRadiusKm)
	onX := math.Abs(dx) < p.Precision
	onY := math.Abs(dy) < p.Precision

	switch {
	case onX && onY:
		return 90, 0
	case onY && dx > 0:
		return toDeg(2 * (math.Pi/4 - math.Asin(scale*dx))), 90
	case onY && dx < 0:
		return toDeg(2 * (math.Pi/4 + math.Asin(scale*dx))), -90
	case onX && dy < 0:
		return toDeg(2 * (math.Pi/4 - math.Asin(-scale*dy))), 0
	case onX && dy > 0:
		return toDeg(2 * (math.Pi/4 + math.Asin(-scale*dy))), 180
	}

	λ := math.Atan(-dx / dy)
	switch {
	case dy > 0 && dx < 0:
		λ -= math.Pi
	case dy > 0 && dx > 0:
		λ += math.Pi
	}
	φ := 2 * (math.Pi/4 - math.Asin(-dy*scale/math.Cos(λ)))
	return toDeg(φ), toDeg(λ)
}

// StereographicProjection is the ellipsoidal polar stereographic projection
// of the 62.5 km OSI SAF low resolution drift grid. The grid axes are
// rotated by AxisRotationDeg against true north.
type StereographicProjection struct {
	EarthRadiusKm   float64
	Eccentricity2   float64
	StandardLatDeg  float64
	CellKm          float64
	OriginX         float64
	OriginY         float64
	AxisRotationDeg float64
}

// DefaultStereographic62_5km returns the projection of the 62.5 km grid.
func DefaultStereographic62_5km() StereographicProjection {
	return StereographicProjection{
		EarthRadiusKm:   6371.228,
		Eccentricity2:   0.006693883,
		StandardLatDeg:  70,
		CellKm:          62.5,
		OriginX:         60,
		OriginY:         92,
		AxisRotationDeg: 45,
	}
}

// poleRadiusKm is the radial distance below which a point is the pole.
const poleRadiusKm = 0.1

// ToPlanar maps latitude/longitude degrees to grid coordinates.
func (p StereographicProjection) ToPlanar(lat, lon float64) (x, y float64) {
	rot := toRad(p.AxisRotationDeg)
	λ := toRad(lon)
	if λ >= math.Pi-rot && λ < math.Pi {
		λ -= 2*math.Pi - rot
	} else {
		λ += rot
	}

	φ := toRad(lat)
	var X, Y float64
	if math.Abs(φ) < math.Pi/2 {
		ρ := p.radius(φ)
		X = ρ * math.Sin(λ)
		Y = -ρ * math.Cos(λ)
	}
	return X/p.CellKm + p.OriginX, p.OriginY - Y/p.CellKm
}

// ToGeographic maps grid coordinates back to latitude/longitude degrees.
func (p StereographicProjection) ToGeographic(x, y float64) (lat, lon float64) {
	X := (x - p.OriginX) * p.CellKm
	Y := (p.OriginY - y) * p.CellKm
	ρ := math.Hypot(X, Y)

	if ρ > poleRadiusKm {
		e2 := p.Eccentricity2
		var t float64
		if p.trueAtPole() {
			e := math.Sqrt(e2)
			t = ρ * math.Sqrt(math.Pow(1+e, 1+e)*math.Pow(1-e, 1-e)) / (2 * p.EarthRadiusKm)
		} else {
			sl := toRad(p.StandardLatDeg)
			t = ρ * p.isometric(sl) / (p.EarthRadiusKm * p.scale(sl))
		}
		χ := math.Pi/2 - 2*math.Atan(t)
		φ := χ +
			(e2/2+5*e2*e2/24+e2*e2*e2/12)*math.Sin(2*χ) +
			(7*e2*e2/48+29*e2*e2*e2/240)*math.Sin(4*χ) +
			(7*e2*e2*e2/120)*math.Sin(6*χ)
		lat = toDeg(φ)
		lon = toDeg(math.Atan2(X, -Y))
	} else {
		lat, lon = 90, 0
	}

	rot := p.AxisRotationDeg
	if lon >= -180 && lon < -180+rot {
		lon += 360 - rot
	} else {
		lon -= rot
	}
	return lat, lon
}

// radius is the polar stereographic distance from the pole in km.
func (p StereographicProjection) radius(φ float64) float64 {
	t := p.isometric(φ)
	if p.trueAtPole() {
		e := math.Sqrt(p.Eccentricity2)
		return 2 * p.EarthRadiusKm * t / math.Sqrt(math.Pow(1+e, 1+e)*math.Pow(1-e, 1-e))
	}
	sl := toRad(p.StandardLatDeg)
	return p.EarthRadiusKm * p.scale(sl) * t / p.isometric(sl)
}

func (p StereographicProjection) isometric(φ float64) float64 {
	e := math.Sqrt(p.Eccentricity2)
	es := e * math.Sin(φ)
	return math.Tan(math.Pi/4-φ/2) / math.Pow((1-es)/(1+es), e/2)
}

func (p StereographicProjection) scale(φ float64) float64 {
	s := math.Sin(φ)
	return math.Cos(φ) / math.Sqrt(1-p.Eccentricity2*s*s)
}

func (p StereographicProjection) trueAtPole() bool {
	return math.Abs(p.StandardLatDeg-90) < 1e-5
}

// ProjectionFor returns the default projection of a supported resolution.
func ProjectionFor(res model.Resolution) (Projection, error) {
	prof, err := profileFor(res)
	if err != nil {
		return nil, err
	}
	return prof.projection(), nil
}

// ToPlanar converts latitude/longitude degrees to grid coordinates of the
// given resolution.
func ToPlanar(lat, lon float64, res model.Resolution) (x, y float64, err error) {
	p, err := ProjectionFor(res)
	if err != nil {
		return 0, 0, err
	}
	x, y = p.ToPlanar(lat, lon)
	return x, y, nil
}

// ToGeographic converts grid coordinates of the given resolution to
// latitude/longitude degrees.
func ToGeographic(x, y float64, res model.Resolution) (lat, lon float64, err error) {
	p, err := ProjectionFor(res)
	if err != nil {
		return 0, 0, err
	}
	lat, lon = p.ToGeographic(x, y)
	return lat, lon, nil
}

func toRad(d float64) float64 { return d * math.Pi / 180 }
func toDeg(r float64) float64 { return r * 180 / math.Pi }
