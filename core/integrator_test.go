package core

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/icedrift/model"
)

var refDate = time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)

// recorder captures MetricsRecorder calls.
type recorder struct {
	mu           sync.Mutex
	trajectories int
	steps        int
	masked       int
	failures     int
	ensembles    []int
}

func (r *recorder) RecordTrajectory(method, resolution string, steps, masked int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trajectories++
	r.steps += steps
	r.masked += masked
	if err != nil {
		r.failures++
	}
}

func (r *recorder) RecordEnsemble(members int, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensembles = append(r.ensembles, members)
}

// poleGrid builds a size x size 25 km grid whose centre node is the pole.
func poleGrid(t *testing.T, times, size int) *Grid {
	t.Helper()
	f, err := NewVelocityField(times, size, size)
	if err != nil {
		t.Fatalf("NewVelocityField error: %v", err)
	}
	p := DefaultAzimuthal25km()
	half := float64(size / 2)
	p.OriginX, p.OriginY = half, -half
	g, err := NewGrid(model.Resolution25km, f, refDate, WithProjection(p))
	if err != nil {
		t.Fatalf("NewGrid error: %v", err)
	}
	return g
}

func dailyObservation(name string, start time.Time, days int, first model.GeographicPoint) *model.Observation {
	o := &model.Observation{Name: name, ReferenceYear: start.Year()}
	for i := 0; i < days; i++ {
		o.Samples = append(o.Samples, model.ObservationSample{
			Date: start.AddDate(0, 0, i),
			Lat:  first.Lat,
			Lon:  first.Lon,
		})
	}
	return o
}

func newTestIntegrator(t *testing.T, m Method, opts ...Option) *Integrator {
	t.Helper()
	in, err := NewIntegrator(IntegratorConfig{Method: m}, opts...)
	if err != nil {
		t.Fatalf("NewIntegrator error: %v", err)
	}
	return in
}

// latAlongAxis is the latitude of a point dx grid units from the pole on a
// 25 km grid axis.
func latAlongAxis(dx float64) float64 {
	return toDeg(2 * (math.Pi/4 - math.Asin(25/(2*6371.228)*dx)))
}

func TestIntegrateUniformDriftFromPole(t *testing.T) {
	g := poleGrid(t, 3, 3)
	g.Field.Fill(0.1, 0)
	obs := dailyObservation("pole", refDate, 3, model.GeographicPoint{Lat: 90, Lon: 0})

	tr, err := newTestIntegrator(t, MethodBilinear).Integrate(context.Background(), g, obs)
	if err != nil {
		t.Fatalf("Integrate error: %v", err)
	}
	if tr.Len() != 3 {
		t.Fatalf("trace has %d points, want 3", tr.Len())
	}
	if tr.Points[0] != (model.GeographicPoint{Lat: 90, Lon: 0}) {
		t.Fatalf("first point = %+v, want the observed start", tr.Points[0])
	}
	for k, dx := range []float64{0.3456, 0.6912} {
		p := tr.Points[k+1]
		if p.Lon != 90 {
			t.Fatalf("point %d lon = %v, want 90", k+1, p.Lon)
		}
		if want := latAlongAxis(dx); math.Abs(p.Lat-want) > 1e-9 {
			t.Fatalf("point %d lat = %v, want %v", k+1, p.Lat, want)
		}
	}
	if tr.U != nil || tr.V != nil {
		t.Fatalf("Integrate should not record velocities")
	}
}

func TestIntegrateBicubicNeedsMargin(t *testing.T) {
	g := poleGrid(t, 3, 3)
	g.Field.Fill(0.1, 0)
	obs := dailyObservation("pole", refDate, 3, model.GeographicPoint{Lat: 90, Lon: 0})

	tr, err := newTestIntegrator(t, MethodBicubic).Integrate(context.Background(), g, obs)
	if !errors.Is(err, ErrOutOfBoundsNeighborhood) {
		t.Fatalf("err = %v, want ErrOutOfBoundsNeighborhood", err)
	}
	if tr != nil {
		t.Fatalf("partial trace returned on failure")
	}
}

func TestIntegrateFromSamplesSuccessiveTimeIndices(t *testing.T) {
	g := poleGrid(t, 4, 5)
	for ti := 0; ti < 4; ti++ {
		for r := 0; r < 5; r++ {
			for c := 0; c < 5; c++ {
				g.Field.Set(ti, r, c, 0.05*float64(ti+1), 0)
			}
		}
	}
	start := refDate.AddDate(0, 0, 1) // time index 1
	obs := dailyObservation("ramp", start, 3, model.GeographicPoint{Lat: 90, Lon: 0})

	tr, err := newTestIntegrator(t, MethodIDW).IntegrateFrom(context.Background(), g, obs, 2, 2, obs.Start())
	if err != nil {
		t.Fatalf("IntegrateFrom error: %v", err)
	}
	wantU := []float64{0.1, 0.15, 0.2}
	if len(tr.U) != 3 || len(tr.V) != 3 {
		t.Fatalf("velocity lengths %d/%d, want 3", len(tr.U), len(tr.V))
	}
	for i, w := range wantU {
		if math.Abs(tr.U[i]-w) > velTol || math.Abs(tr.V[i]) > velTol {
			t.Fatalf("velocity %d = (%v, %v), want (%v, 0)", i, tr.U[i], tr.V[i], w)
		}
	}
	scale := SecondsPerDay / 25000
	if want := latAlongAxis(0.1*scale + 0.15*scale); math.Abs(tr.Points[2].Lat-want) > 1e-9 {
		t.Fatalf("final lat = %v, want %v", tr.Points[2].Lat, want)
	}
}

func TestIntegrateDeterministic(t *testing.T) {
	f, err := NewVelocityField(6, 180, 120)
	if err != nil {
		t.Fatalf("NewVelocityField error: %v", err)
	}
	f.Fill(0.05, -0.02)
	g, err := NewGrid(model.Resolution62_5km, f, refDate)
	if err != nil {
		t.Fatalf("NewGrid error: %v", err)
	}
	obs := dailyObservation("S02", refDate, 5, model.GeographicPoint{Lat: 80, Lon: 0})

	for _, m := range allMethods {
		in := newTestIntegrator(t, m)
		a, err := in.Integrate(context.Background(), g, obs)
		if err != nil {
			t.Fatalf("%v Integrate error: %v", m, err)
		}
		b, err := in.Integrate(context.Background(), g, obs)
		if err != nil {
			t.Fatalf("%v Integrate error: %v", m, err)
		}
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("%v: repeated runs differ", m)
		}
		if a.Len() != 5 {
			t.Fatalf("%v: trace length %d, want 5", m, a.Len())
		}
	}
}

func TestIntegrateMaskedFieldHoldsPosition(t *testing.T) {
	g := poleGrid(t, 3, 3) // every cell starts masked
	obs := dailyObservation("still", refDate, 3, model.GeographicPoint{Lat: 90, Lon: 0})
	rec := &recorder{}

	tr, err := newTestIntegrator(t, MethodIDW, WithMetrics(rec)).Integrate(context.Background(), g, obs)
	if err != nil {
		t.Fatalf("Integrate error: %v", err)
	}
	for i, p := range tr.Points {
		if p != (model.GeographicPoint{Lat: 90, Lon: 0}) {
			t.Fatalf("point %d = %+v, want the pole", i, p)
		}
	}
	if rec.trajectories != 1 || rec.steps != 2 || rec.masked != 3 || rec.failures != 0 {
		t.Fatalf("recorder = %+v, want 1 trajectory, 2 steps, 3 masked", rec)
	}
}

func TestIntegrateSingleSample(t *testing.T) {
	g := poleGrid(t, 1, 3)
	g.Field.Fill(0.1, 0.1)
	obs := dailyObservation("one", refDate, 1, model.GeographicPoint{Lat: 90, Lon: 0})

	tr, err := newTestIntegrator(t, MethodBilinear).Integrate(context.Background(), g, obs)
	if err != nil {
		t.Fatalf("Integrate error: %v", err)
	}
	if tr.Len() != 1 {
		t.Fatalf("trace length %d, want 1", tr.Len())
	}
}

func TestIntegrateErrors(t *testing.T) {
	g := poleGrid(t, 3, 3)
	g.Field.Fill(0.1, 0)
	obs := dailyObservation("pole", refDate, 3, model.GeographicPoint{Lat: 90, Lon: 0})
	in := newTestIntegrator(t, MethodBilinear)

	if _, err := NewIntegrator(IntegratorConfig{Method: Method(7)}); !errors.Is(err, ErrInvalidInterpolationMethod) {
		t.Fatalf("NewIntegrator err = %v, want ErrInvalidInterpolationMethod", err)
	}
	if _, err := NewIntegrator(IntegratorConfig{Method: MethodIDW, TimeStepSeconds: -1}); err == nil {
		t.Fatalf("expected negative time step to fail")
	}

	bad := *g
	bad.Resolution = 10
	if _, err := in.Integrate(context.Background(), &bad, obs); !errors.Is(err, ErrInvalidResolution) {
		t.Fatalf("resolution err = %v, want ErrInvalidResolution", err)
	}

	early := dailyObservation("early", refDate.AddDate(0, 0, -1), 2, model.GeographicPoint{Lat: 90, Lon: 0})
	if _, err := in.Integrate(context.Background(), g, early); err == nil {
		t.Fatalf("expected observation before the reference date to fail")
	}

	long := dailyObservation("long", refDate, 5, model.GeographicPoint{Lat: 90, Lon: 0})
	if _, err := in.Integrate(context.Background(), g, long); !errors.Is(err, ErrOutOfBoundsNeighborhood) {
		t.Fatalf("time range err = %v, want ErrOutOfBoundsNeighborhood", err)
	}

	if _, err := in.Integrate(context.Background(), g, &model.Observation{Name: "empty"}); err == nil {
		t.Fatalf("expected empty observation to fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := in.Integrate(ctx, g, obs); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled err = %v, want context.Canceled", err)
	}
}

func TestStateString(t *testing.T) {
	if StateInitialized.String() != "initialized" || StateStepping.String() != "stepping" || StateComplete.String() != "complete" {
		t.Fatalf("unexpected state names")
	}
}

func TestIntegrateWithoutGridReferenceDate(t *testing.T) {
	g := poleGrid(t, 3, 3)
	g.Field.Fill(0.1, 0)
	obs := dailyObservation("pole", refDate.AddDate(0, 0, 1), 2, model.GeographicPoint{Lat: 90, Lon: 0})
	in := newTestIntegrator(t, MethodBilinear)

	want, err := in.Integrate(context.Background(), g, obs)
	if err != nil {
		t.Fatalf("Integrate error: %v", err)
	}

	g.ReferenceDate = time.Time{}
	got, err := in.Integrate(context.Background(), g, obs)
	if err != nil {
		t.Fatalf("Integrate without reference date error: %v", err)
	}
	if !reflect.DeepEqual(got.Points, want.Points) {
		t.Fatalf("points = %+v, want %+v", got.Points, want.Points)
	}

	// A year earlier puts the first sample past the end of the time axis.
	obs.ReferenceYear = 2015
	if _, err := in.Integrate(context.Background(), g, obs); !errors.Is(err, ErrOutOfBoundsNeighborhood) {
		t.Fatalf("err = %v, want ErrOutOfBoundsNeighborhood", err)
	}
}
