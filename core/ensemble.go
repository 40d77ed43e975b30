package core

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/icedrift/internal/logging"
	"github.com/signalsfoundry/icedrift/model"
)

// EnsembleConfig describes the lattice of perturbed start points.
type EnsembleConfig struct {
	DistanceKm  float64 // spacing between adjacent start points
	AreaRangeKm float64 // side of the square covered by the lattice
	Workers     int     // concurrent members; <= 0 means runtime.NumCPU()
}

// DefaultEnsembleConfig mirrors the product's usual buoy position
// uncertainty: a 3 km square sampled every 300 m.
func DefaultEnsembleConfig() EnsembleConfig {
	return EnsembleConfig{DistanceKm: 0.3, AreaRangeKm: 3}
}

// MaxLatticeSize bounds the lattice side, so at most MaxLatticeSize²
// members are allocated.
const MaxLatticeSize = 201

func (c EnsembleConfig) validate() error {
	if !isFinite(c.DistanceKm) || c.DistanceKm <= 0 {
		return fmt.Errorf("ensemble distance must be positive and finite, got %v km", c.DistanceKm)
	}
	if !isFinite(c.AreaRangeKm) || c.AreaRangeKm < 0 {
		return fmt.Errorf("ensemble area must be non-negative and finite, got %v km", c.AreaRangeKm)
	}
	if side := 2*math.Floor(c.AreaRangeKm/(2*c.DistanceKm)) + 1; side > MaxLatticeSize {
		return fmt.Errorf("ensemble lattice of %v km every %v km needs %v points per side, limit is %d",
			c.AreaRangeKm, c.DistanceKm, side, MaxLatticeSize)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// LatticeSize returns the odd number of start points per lattice side.
func LatticeSize(areaRangeKm, distanceKm float64) int {
	return 2*int(areaRangeKm/(2*distanceKm)) + 1
}

// EnsembleMember is one perturbed trajectory. Trace.U/V hold grid-relative
// velocities; East/North hold the same velocities in the geographic frame.
type EnsembleMember struct {
	Index int // position in EnsembleResult.Members
	I, J  int // lattice column and row
	Start model.GridPoint
	Trace *model.Trace
	East  []float64
	North []float64
}

// EnsembleResult holds Size*Size members in lattice order: index I*Size+J.
type EnsembleResult struct {
	Size    int
	Members []EnsembleMember
}

// Center returns the unperturbed member.
func (r *EnsembleResult) Center() *EnsembleMember {
	if r == nil || len(r.Members) == 0 {
		return nil
	}
	return &r.Members[len(r.Members)/2]
}

// Ensemble integrates every start point of a square lattice centred on the
// observation's first position. Members run concurrently; the first failing
// member cancels the rest and fails the whole ensemble.
func (in *Integrator) Ensemble(ctx context.Context, grid *Grid, obs *model.Observation, cfg EnsembleConfig) (res *EnsembleResult, err error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := checkInputs(grid, obs); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	log := logging.LoggerFromContext(ctx)
	if log == nil {
		log = in.log
	}

	n := LatticeSize(cfg.AreaRangeKm, cfg.DistanceKm)
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ctx, span := in.tracer.Start(ctx, "core.Ensemble", trace.WithAttributes(
		attribute.String("drift.method", in.cfg.Method.String()),
		attribute.String("drift.resolution", grid.Resolution.String()),
		attribute.String("drift.observation", obs.Name),
		attribute.Int("drift.lattice_size", n),
		attribute.Int("drift.workers", workers),
	))
	started := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if in.metrics != nil && err == nil {
			in.metrics.RecordEnsemble(len(res.Members), time.Since(started))
		}
	}()

	origin := obs.Start()
	x0, y0 := grid.ToPlanar(origin)
	half := (n - 1) / 2
	delta := cfg.DistanceKm / grid.Resolution.Km()

	members := make([]EnsembleMember, n*n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			idx := i*n + j
			start := model.GridPoint{
				X: x0 + float64(i-half)*delta,
				Y: y0 + float64(j-half)*delta,
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				geo := origin
				if i != half || j != half {
					geo = grid.ToGeographic(start.X, start.Y)
				}
				tr, err := in.integrate(gctx, grid, obs, start.X, start.Y, geo, true, idx)
				if err != nil {
					return fmt.Errorf("ensemble member %d: %w", idx, err)
				}
				east, north := grid.Frame.ToGeographicSeries(tr.U, tr.V, lats(tr), lons(tr))
				members[idx] = EnsembleMember{
					Index: idx, I: i, J: j,
					Start: start,
					Trace: tr,
					East:  east,
					North: north,
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info(ctx, "ensemble complete",
		logging.String("observation", obs.Name),
		logging.String("method", in.cfg.Method.String()),
		logging.Int("members", len(members)),
		logging.Any("elapsed", time.Since(started).String()),
	)
	return &EnsembleResult{Size: n, Members: members}, nil
}

func lats(t *model.Trace) []float64 {
	out := make([]float64, len(t.Points))
	for i, p := range t.Points {
		out[i] = p.Lat
	}
	return out
}

func lons(t *model.Trace) []float64 {
	out := make([]float64, len(t.Points))
	for i, p := range t.Points {
		out[i] = p.Lon
	}
	return out
}
