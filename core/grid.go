package core

import (
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/icedrift/model"
	"github.com/signalsfoundry/icedrift/timectrl"
)

// resolutionProfile bundles everything that differs between supported
// grids. Adding a grid means adding an entry here.
type resolutionProfile struct {
	projection func() Projection
	frame      VelocityFrame
}

var profiles = map[model.Resolution]resolutionProfile{
	model.Resolution25km: {
		projection: func() Projection { return DefaultAzimuthal25km() },
		frame:      VelocityFrame{RotationOffset: 0, VSign: 1},
	},
	model.Resolution62_5km: {
		projection: func() Projection { return DefaultStereographic62_5km() },
		frame:      VelocityFrame{RotationOffset: -math.Pi / 4, VSign: -1},
	},
}

func profileFor(res model.Resolution) (resolutionProfile, error) {
	prof, ok := profiles[res]
	if !ok {
		return resolutionProfile{}, fmt.Errorf("%w: %v", ErrInvalidResolution, res)
	}
	return prof, nil
}

// FrameFor returns the default velocity frame of a supported resolution.
func FrameFor(res model.Resolution) (VelocityFrame, error) {
	prof, err := profileFor(res)
	if err != nil {
		return VelocityFrame{}, err
	}
	return prof.frame, nil
}

// Grid is a satellite velocity product: its projection, cell-centre
// coordinates and the daily velocity field. A Grid is not modified after
// construction.
type Grid struct {
	Resolution    model.Resolution
	Projection    Projection
	Frame         VelocityFrame
	ReferenceDate time.Time // date of field time index 0

	X   []float64   // projected x of each column
	Y   []float64   // projected y of each row
	Lat [][]float64 // [row][col] cell-centre latitude
	Lon [][]float64 // [row][col] cell-centre longitude

	Field *VelocityField
}

// GridOption customises a Grid under construction.
type GridOption func(*Grid)

// WithProjection overrides the default projection of the resolution.
func WithProjection(p Projection) GridOption {
	return func(g *Grid) { g.Projection = p }
}

// WithFrame overrides the default velocity frame of the resolution.
func WithFrame(f VelocityFrame) GridOption {
	return func(g *Grid) { g.Frame = f }
}

// WithCoordinates attaches coordinate arrays. lat and lon are [row][col].
func WithCoordinates(x, y []float64, lat, lon [][]float64) GridOption {
	return func(g *Grid) {
		g.X, g.Y, g.Lat, g.Lon = x, y, lat, lon
	}
}

// NewGrid validates and assembles a Grid. The resolution must be supported
// even when a custom projection is supplied, because it sets the cell size
// used to convert velocities into grid units.
func NewGrid(res model.Resolution, field *VelocityField, reference time.Time, opts ...GridOption) (*Grid, error) {
	prof, err := profileFor(res)
	if err != nil {
		return nil, err
	}
	if field == nil {
		return nil, fmt.Errorf("grid %v: velocity field is nil", res)
	}

	g := &Grid{
		Resolution:    res,
		Projection:    prof.projection(),
		Frame:         prof.frame,
		ReferenceDate: reference,
		Field:         field,
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.Projection == nil {
		return nil, fmt.Errorf("grid %v: projection is nil", res)
	}
	if g.X != nil && len(g.X) != field.Cols {
		return nil, fmt.Errorf("grid %v: %d x coordinates for %d columns", res, len(g.X), field.Cols)
	}
	if g.Y != nil && len(g.Y) != field.Rows {
		return nil, fmt.Errorf("grid %v: %d y coordinates for %d rows", res, len(g.Y), field.Rows)
	}
	if err := checkCellArray("latitude", g.Lat, field); err != nil {
		return nil, fmt.Errorf("grid %v: %w", res, err)
	}
	if err := checkCellArray("longitude", g.Lon, field); err != nil {
		return nil, fmt.Errorf("grid %v: %w", res, err)
	}
	return g, nil
}

func checkCellArray(name string, a [][]float64, field *VelocityField) error {
	if a == nil {
		return nil
	}
	if len(a) != field.Rows {
		return fmt.Errorf("%s has %d rows, field has %d", name, len(a), field.Rows)
	}
	for i, row := range a {
		if len(row) != field.Cols {
			return fmt.Errorf("%s row %d has %d columns, field has %d", name, i, len(row), field.Cols)
		}
	}
	return nil
}

// Calendar returns the daily calendar of the grid's time axis.
func (g *Grid) Calendar() timectrl.Calendar {
	return timectrl.NewCalendar(g.ReferenceDate, timectrl.Day)
}

// CalendarFor returns the calendar used to index obs into the field. A grid
// without a reference date is taken to start on January 1st of the
// observation's reference year.
func (g *Grid) CalendarFor(obs *model.Observation) timectrl.Calendar {
	if !g.ReferenceDate.IsZero() {
		return g.Calendar()
	}
	year := obs.ReferenceYear
	if year == 0 {
		year = obs.FirstDate().Year()
	}
	return timectrl.ForYear(year)
}

// ToPlanar projects a geographic point onto the grid.
func (g *Grid) ToPlanar(p model.GeographicPoint) (x, y float64) {
	return g.Projection.ToPlanar(p.Lat, p.Lon)
}

// ToGeographic maps a grid position back to latitude/longitude.
func (g *Grid) ToGeographic(x, y float64) model.GeographicPoint {
	lat, lon := g.Projection.ToGeographic(x, y)
	return model.GeographicPoint{Lat: lat, Lon: lon}
}

// cellsPerMetre converts metres of displacement into grid units.
func (g *Grid) cellsPerMetre() float64 {
	return 1 / g.Resolution.Metres()
}
