package core

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/signalsfoundry/icedrift/model"
)

const dateLayout = time.DateOnly

// Scenario is everything decoded from a scenario document.
type Scenario struct {
	Grids        []*Grid
	Observations []*model.Observation
}

// internal JSON shapes; unexported so the document format can evolve.
type scenarioJSON struct {
	Grids        []gridJSON        `json:"grids"`
	Observations []observationJSON `json:"observations"`
}

type gridJSON struct {
	Resolution    float64         `json:"resolution"`
	ReferenceDate string          `json:"reference_date"`
	Projection    *projectionJSON `json:"projection,omitempty"`
	// U and V are [time][row][col] in m/s; null marks a masked cell.
	U   [][][]*float64 `json:"u"`
	V   [][][]*float64 `json:"v"`
	X   []float64      `json:"x,omitempty"`
	Y   []float64      `json:"y,omitempty"`
	Lat [][]float64    `json:"lat,omitempty"`
	Lon [][]float64    `json:"lon,omitempty"`
}

// projectionJSON overrides the grid origin of the resolution's default
// projection, which is how cropped products are described.
type projectionJSON struct {
	OriginX *float64 `json:"origin_x"`
	OriginY *float64 `json:"origin_y"`
}

type observationJSON struct {
	Name          string       `json:"name"`
	ReferenceYear int          `json:"reference_year"`
	Samples       []sampleJSON `json:"samples"`
}

type sampleJSON struct {
	Date  string  `json:"date"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Speed float64 `json:"speed"`
}

// LoadScenario decodes a JSON scenario from r. Grids and observations are
// validated as they are built; the first problem aborts the load.
func LoadScenario(r io.Reader) (*Scenario, error) {
	var payload scenarioJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadScenario: decode failed: %w", err)
	}

	sc := &Scenario{
		Grids:        make([]*Grid, 0, len(payload.Grids)),
		Observations: make([]*model.Observation, 0, len(payload.Observations)),
	}
	for i, gj := range payload.Grids {
		g, err := gj.build()
		if err != nil {
			return nil, fmt.Errorf("LoadScenario: grid %d: %w", i, err)
		}
		sc.Grids = append(sc.Grids, g)
	}
	for i, oj := range payload.Observations {
		o, err := oj.build()
		if err != nil {
			return nil, fmt.Errorf("LoadScenario: observation %d (%q): %w", i, oj.Name, err)
		}
		sc.Observations = append(sc.Observations, o)
	}
	return sc, nil
}

func (gj gridJSON) build() (*Grid, error) {
	res := model.Resolution(gj.Resolution)
	prof, err := profileFor(res)
	if err != nil {
		return nil, err
	}
	var ref time.Time
	if strings.TrimSpace(gj.ReferenceDate) != "" {
		if ref, err = parseDate(gj.ReferenceDate); err != nil {
			return nil, fmt.Errorf("reference_date: %w", err)
		}
	}
	field, err := buildField(gj.U, gj.V)
	if err != nil {
		return nil, err
	}

	opts := []GridOption{WithCoordinates(gj.X, gj.Y, gj.Lat, gj.Lon)}
	if gj.Projection != nil {
		p, err := gj.Projection.apply(prof.projection())
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithProjection(p))
	}
	return NewGrid(res, field, ref, opts...)
}

func (pj *projectionJSON) apply(base Projection) (Projection, error) {
	switch p := base.(type) {
	case AzimuthalProjection:
		if pj.OriginX != nil {
			p.OriginX = *pj.OriginX
		}
		if pj.OriginY != nil {
			p.OriginY = *pj.OriginY
		}
		return p, nil
	case StereographicProjection:
		if pj.OriginX != nil {
			p.OriginX = *pj.OriginX
		}
		if pj.OriginY != nil {
			p.OriginY = *pj.OriginY
		}
		return p, nil
	default:
		return nil, fmt.Errorf("projection override not supported for %T", base)
	}
}

func buildField(u, v [][][]*float64) (*VelocityField, error) {
	if len(u) == 0 || len(u[0]) == 0 || len(u[0][0]) == 0 {
		return nil, fmt.Errorf("velocity field is empty")
	}
	times, rows, cols := len(u), len(u[0]), len(u[0][0])
	if len(v) != times {
		return nil, fmt.Errorf("u has %d time steps, v has %d", times, len(v))
	}
	f, err := NewVelocityField(times, rows, cols)
	if err != nil {
		return nil, err
	}
	for t := 0; t < times; t++ {
		if len(u[t]) != rows || len(v[t]) != rows {
			return nil, fmt.Errorf("time %d: expected %d rows", t, rows)
		}
		for r := 0; r < rows; r++ {
			if len(u[t][r]) != cols || len(v[t][r]) != cols {
				return nil, fmt.Errorf("time %d row %d: expected %d columns", t, r, cols)
			}
			for c := 0; c < cols; c++ {
				uc, vc := u[t][r][c], v[t][r][c]
				if uc == nil || vc == nil {
					continue // cells start masked
				}
				f.Set(t, r, c, *uc, *vc)
			}
		}
	}
	return f, nil
}

func (oj observationJSON) build() (*model.Observation, error) {
	if strings.TrimSpace(oj.Name) == "" {
		return nil, fmt.Errorf("name is required")
	}
	o := &model.Observation{
		Name:          oj.Name,
		ReferenceYear: oj.ReferenceYear,
		Samples:       make([]model.ObservationSample, 0, len(oj.Samples)),
	}
	for i, sj := range oj.Samples {
		d, err := parseDate(sj.Date)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		o.Samples = append(o.Samples, model.ObservationSample{
			Date:  d,
			Lat:   sj.Lat,
			Lon:   sj.Lon,
			Speed: sj.Speed,
		})
	}
	if o.ReferenceYear == 0 && len(o.Samples) > 0 {
		o.ReferenceYear = o.Samples[0].Date.Year()
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
