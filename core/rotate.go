package core

import "math"

// VelocityFrame describes how a grid's x/y axes relate to local geographic
// axes. VSign is applied to v before rotating by RotationOffset.
type VelocityFrame struct {
	RotationOffset float64 // radians
	VSign          float64
}

// RotateVelocity rotates a grid-relative velocity by (-lon + offset) so that
// it is expressed along local geographic axes. lon is in degrees, offset in
// radians.
func RotateVelocity(u, v, lat, lon, offset float64) (uLat, vLon float64) {
	θ := -toRad(lon) + offset
	sin, cos := math.Sincos(θ)
	uLat = u*cos - v*sin
	vLon = u*sin + v*cos
	return uLat, vLon
}

// ToGeographic rotates a grid-relative velocity observed at (lat, lon).
func (f VelocityFrame) ToGeographic(u, v, lat, lon float64) (uLat, vLon float64) {
	sign := f.VSign
	if sign == 0 {
		sign = 1
	}
	return RotateVelocity(u, sign*v, lat, lon, f.RotationOffset)
}

// ToGeographicSeries rotates parallel velocity series observed along a
// sequence of positions. The inputs are not modified.
func (f VelocityFrame) ToGeographicSeries(u, v, lat, lon []float64) (uLat, vLon []float64) {
	uLat = make([]float64, len(u))
	vLon = make([]float64, len(v))
	for i := range u {
		uLat[i], vLon[i] = f.ToGeographic(u[i], v[i], lat[i], lon[i])
	}
	return uLat, vLon
}
