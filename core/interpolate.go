package core

import (
	"fmt"
	"math"
	"strings"
)

// Method selects the interpolation kernel used to sample a VelocityField.
type Method int

const (
	MethodIDW Method = iota + 1
	MethodBilinear
	MethodBicubic
)

func (m Method) String() string {
	switch m {
	case MethodIDW:
		return "IDW"
	case MethodBilinear:
		return "BL"
	case MethodBicubic:
		return "BC"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// Valid reports whether m is a known kernel.
func (m Method) Valid() bool {
	return m == MethodIDW || m == MethodBilinear || m == MethodBicubic
}

// ParseMethod accepts the short product tags (IDW, BL, BC) and the long
// names, case-insensitively.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "idw", "inverse-distance":
		return MethodIDW, nil
	case "bl", "bilinear":
		return MethodBilinear, nil
	case "bc", "bicubic":
		return MethodBicubic, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidInterpolationMethod, s)
	}
}

// Sample is an interpolated grid-relative velocity. Masked is set when a
// contributing cell had no data, in which case U and V are zero.
type Sample struct {
	U, V   float64
	Masked bool
}

var maskedSample = Sample{Masked: true}

// Interpolate samples f at the fractional grid position (x, y) and time
// index t. At an exact grid node every method returns the stored cell.
func Interpolate(f *VelocityField, x, y float64, t int, m Method) (Sample, error) {
	if !m.Valid() {
		return Sample{}, fmt.Errorf("%w: %v", ErrInvalidInterpolationMethod, m)
	}
	if f == nil {
		return Sample{}, fmt.Errorf("interpolate: velocity field is nil")
	}
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return Sample{}, fmt.Errorf("%w: position (%v, %v)", ErrOutOfBoundsNeighborhood, x, y)
	}
	if t < 0 || t >= f.Times {
		return Sample{}, fmt.Errorf("%w: time index %d outside [0, %d)", ErrOutOfBoundsNeighborhood, t, f.Times)
	}

	fx, fy := math.Floor(x), math.Floor(y)
	col, row := int(fx), int(fy)

	if x == fx && y == fy {
		if !f.Contains(t, row, col) {
			return Sample{}, outOfBounds(m, x, y, t)
		}
		u, v, ok := f.At(t, row, col)
		if !ok {
			return maskedSample, nil
		}
		return Sample{U: u, V: v}, nil
	}

	switch m {
	case MethodIDW:
		return idw(f, x, y, t, row, col)
	case MethodBilinear:
		return bilinear(f, x-fx, y-fy, t, row, col)
	default:
		return bicubic(f, x-fx, y-fy, t, row, col)
	}
}

func outOfBounds(m Method, x, y float64, t int) error {
	return fmt.Errorf("%w: %v window at (%.4f, %.4f) t=%d", ErrOutOfBoundsNeighborhood, m, x, y, t)
}

// idw weights the four corners of the enclosing cell by inverse planar
// distance.
func idw(f *VelocityField, x, y float64, t, row, col int) (Sample, error) {
	if !f.containsWindow(t, row, row+1, col, col+1) {
		return Sample{}, outOfBounds(MethodIDW, x, y, t)
	}

	corners := [4][2]int{{row, col}, {row, col + 1}, {row + 1, col + 1}, {row + 1, col}}
	var u, v, total float64
	var w [4]float64
	for i, c := range corners {
		if f.Masked(t, c[0], c[1]) {
			return maskedSample, nil
		}
		w[i] = 1 / math.Hypot(x-float64(c[1]), y-float64(c[0]))
		total += w[i]
	}
	for i, c := range corners {
		cu, cv, _ := f.At(t, c[0], c[1])
		u += cu * w[i] / total
		v += cv * w[i] / total
	}
	return Sample{U: u, V: v}, nil
}

// bilinear interpolates along x on rows row and row+1, then along y.
// dx and dy are the offsets from the (row, col) node.
func bilinear(f *VelocityField, dx, dy float64, t, row, col int) (Sample, error) {
	if !f.containsWindow(t, row, row+1, col, col+1) {
		return Sample{}, outOfBounds(MethodBilinear, float64(col)+dx, float64(row)+dy, t)
	}

	u00, v00, ok00 := f.At(t, row, col)
	u01, v01, ok01 := f.At(t, row, col+1)
	u10, v10, ok10 := f.At(t, row+1, col)
	u11, v11, ok11 := f.At(t, row+1, col+1)
	if !ok00 || !ok01 || !ok10 || !ok11 {
		return maskedSample, nil
	}

	u0 := u00*(1-dx) + u01*dx
	v0 := v00*(1-dx) + v01*dx
	u1 := u10*(1-dx) + u11*dx
	v1 := v10*(1-dx) + v11*dx
	return Sample{
		U: u0*(1-dy) + u1*dy,
		V: v0*(1-dy) + v1*dy,
	}, nil
}

// bicubic applies the separable cubic convolution kernel over the 4x4
// window rows/cols -1..+2 around the (row, col) node.
func bicubic(f *VelocityField, dx, dy float64, t, row, col int) (Sample, error) {
	if !f.containsWindow(t, row-1, row+2, col-1, col+2) {
		return Sample{}, outOfBounds(MethodBicubic, float64(col)+dx, float64(row)+dy, t)
	}

	var bu, bv [4][4]float64
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			u, v, ok := f.At(t, row-1+r, col-1+c)
			if !ok {
				return maskedSample, nil
			}
			bu[r][c], bv[r][c] = u, v
		}
	}

	wy := cubicWeights(dy) // A: row weights
	wx := cubicWeights(dx) // C: column weights
	var u, v float64
	for i := 0; i < 4; i++ {
		var ru, rv float64
		for j := 0; j < 4; j++ {
			ru += bu[i][j] * wx[j]
			rv += bv[i][j] * wx[j]
		}
		u += wy[i] * ru
		v += wy[i] * rv
	}
	return Sample{U: u, V: v}, nil
}

func cubicWeights(d float64) [4]float64 {
	return [4]float64{
		cubicKernel(d+1, bicubicA),
		cubicKernel(d, bicubicA),
		cubicKernel(d-1, bicubicA),
		cubicKernel(d-2, bicubicA),
	}
}

// bicubicA is the free parameter of the Keys convolution kernel.
const bicubicA = -0.5

// cubicKernel is the piecewise cubic convolution weight S(t).
func cubicKernel(t, a float64) float64 {
	at := math.Abs(t)
	switch {
	case at < 1:
		return (a+2)*at*at*at - (a+3)*at*at + 1
	case at < 2:
		return a*at*at*at - 5*a*at*at + 8*a*at - 4*a
	default:
		return 0
	}
}
