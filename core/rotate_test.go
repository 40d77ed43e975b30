package core

import (
	"math"
	"testing"
)

func TestRotateVelocityIdentityAtZeroLongitude(t *testing.T) {
	u, v := RotateVelocity(0.3, -0.2, 80, 0, 0)
	if math.Abs(u-0.3) > velTol || math.Abs(v+0.2) > velTol {
		t.Fatalf("rotation at lon 0 = (%v, %v), want (0.3, -0.2)", u, v)
	}
}

func TestRotateVelocityQuarterTurn(t *testing.T) {
	u, v := RotateVelocity(1, 0, 80, 90, 0)
	if math.Abs(u) > velTol || math.Abs(v+1) > velTol {
		t.Fatalf("rotation at lon 90 = (%v, %v), want (0, -1)", u, v)
	}
}

func TestRotateVelocityPreservesSpeed(t *testing.T) {
	for _, lon := range []float64{-170, -45, 12.5, 133} {
		u, v := RotateVelocity(0.4, 0.3, 75, lon, -math.Pi/4)
		if got := math.Hypot(u, v); math.Abs(got-0.5) > velTol {
			t.Fatalf("lon %v: speed %v, want 0.5", lon, got)
		}
	}
}

func TestFrameSignAndOffset(t *testing.T) {
	f, err := FrameFor(62.5)
	if err != nil {
		t.Fatalf("FrameFor error: %v", err)
	}
	// At lon -45 the offset cancels the longitude term; only the v sign remains.
	u, v := f.ToGeographic(0.2, 0.1, 80, -45)
	if math.Abs(u-0.2) > velTol || math.Abs(v+0.1) > velTol {
		t.Fatalf("62.5km frame = (%v, %v), want (0.2, -0.1)", u, v)
	}

	var zero VelocityFrame
	u, v = zero.ToGeographic(0.2, 0.1, 80, 0)
	if u != 0.2 || v != 0.1 {
		t.Fatalf("zero frame = (%v, %v), want identity", u, v)
	}
}

func TestToGeographicSeries(t *testing.T) {
	f, err := FrameFor(25)
	if err != nil {
		t.Fatalf("FrameFor error: %v", err)
	}
	u := []float64{1, 0, 0.5}
	v := []float64{0, 1, 0.5}
	lat := []float64{80, 81, 82}
	lon := []float64{0, 90, -30}

	gu, gv := f.ToGeographicSeries(u, v, lat, lon)
	if len(gu) != 3 || len(gv) != 3 {
		t.Fatalf("series lengths %d/%d, want 3", len(gu), len(gv))
	}
	for i := range u {
		wu, wv := f.ToGeographic(u[i], v[i], lat[i], lon[i])
		if gu[i] != wu || gv[i] != wv {
			t.Fatalf("element %d = (%v, %v), want (%v, %v)", i, gu[i], gv[i], wu, wv)
		}
	}
	if u[0] != 1 || v[1] != 1 {
		t.Fatalf("inputs were modified")
	}
}
