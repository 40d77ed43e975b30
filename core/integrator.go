package core

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/icedrift/internal/logging"
	"github.com/signalsfoundry/icedrift/model"
)

const tracerName = "github.com/signalsfoundry/icedrift/core"

// AttrEnsembleMember tags the core.Integrate span of an ensemble member with
// its lattice index. Standalone trajectories do not carry it.
const AttrEnsembleMember = attribute.Key("drift.ensemble_member")

// noMember marks a trajectory that is not part of an ensemble.
const noMember = -1

// SecondsPerDay is the default integration step.
const SecondsPerDay = 86400.0

// MetricsRecorder receives per-run counters. observability.DriftCollector
// satisfies it.
type MetricsRecorder interface {
	RecordTrajectory(method, resolution string, steps, masked int, err error)
	RecordEnsemble(members int, d time.Duration)
}

// IntegratorConfig is the per-call configuration of a trajectory run.
type IntegratorConfig struct {
	Method          Method
	TimeStepSeconds float64
}

// DefaultIntegratorConfig returns IDW sampling with a one day step.
func DefaultIntegratorConfig() IntegratorConfig {
	return IntegratorConfig{Method: MethodIDW, TimeStepSeconds: SecondsPerDay}
}

// Integrator advances a drifting point through a Grid's velocity field one
// step at a time. It holds no per-run state and is safe for concurrent use.
type Integrator struct {
	cfg     IntegratorConfig
	log     logging.Logger
	metrics MetricsRecorder
	tracer  trace.Tracer
}

// Option customises an Integrator.
type Option func(*Integrator)

// WithLogger sets the base logger. Runs log through the context logger when
// one is attached.
func WithLogger(l logging.Logger) Option {
	return func(in *Integrator) {
		if l != nil {
			in.log = l
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(in *Integrator) { in.metrics = m }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(in *Integrator) {
		if t != nil {
			in.tracer = t
		}
	}
}

// NewIntegrator validates cfg and builds an Integrator. A zero time step
// means one day.
func NewIntegrator(cfg IntegratorConfig, opts ...Option) (*Integrator, error) {
	if !cfg.Method.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInterpolationMethod, cfg.Method)
	}
	if cfg.TimeStepSeconds == 0 {
		cfg.TimeStepSeconds = SecondsPerDay
	}
	if cfg.TimeStepSeconds < 0 {
		return nil, fmt.Errorf("time step must be positive, got %v s", cfg.TimeStepSeconds)
	}
	in := &Integrator{
		cfg:    cfg,
		log:    logging.Noop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in, nil
}

// Config returns the integrator's configuration.
func (in *Integrator) Config() IntegratorConfig { return in.cfg }

// withMethod returns a copy of the integrator sampling with m.
func (in *Integrator) withMethod(m Method) *Integrator {
	c := *in
	c.cfg.Method = m
	return &c
}

// State is the phase of a single trajectory run.
type State int

const (
	StateInitialized State = iota
	StateStepping
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateStepping:
		return "stepping"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Integrate reconstructs the drift of obs's first sample through grid until
// obs's last date. The trace has one point per day including the start.
func (in *Integrator) Integrate(ctx context.Context, grid *Grid, obs *model.Observation) (*model.Trace, error) {
	if err := checkInputs(grid, obs); err != nil {
		return nil, err
	}
	x, y := grid.ToPlanar(obs.Start())
	return in.integrate(ctx, grid, obs, x, y, obs.Start(), false, noMember)
}

// IntegrateFrom runs the same integration as Integrate from an arbitrary
// planar start, recording the grid-relative velocity at every traced point.
// start is used as the first geographic point of the trace.
func (in *Integrator) IntegrateFrom(ctx context.Context, grid *Grid, obs *model.Observation, x, y float64, start model.GeographicPoint) (*model.Trace, error) {
	if err := checkInputs(grid, obs); err != nil {
		return nil, err
	}
	return in.integrate(ctx, grid, obs, x, y, start, true, noMember)
}

func checkInputs(grid *Grid, obs *model.Observation) error {
	if grid == nil || grid.Field == nil || grid.Projection == nil {
		return fmt.Errorf("integrate: grid is incomplete")
	}
	if _, err := profileFor(grid.Resolution); err != nil {
		return err
	}
	if err := obs.Validate(); err != nil {
		return fmt.Errorf("integrate: %w", err)
	}
	return nil
}

func (in *Integrator) integrate(ctx context.Context, grid *Grid, obs *model.Observation, x, y float64, start model.GeographicPoint, withVelocity bool, member int) (tr *model.Trace, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logging.LoggerFromContext(ctx)
	if log == nil {
		log = in.log
	}

	cal := grid.CalendarFor(obs)
	steps := cal.Steps(obs.FirstDate(), obs.LastDate())

	attrs := []attribute.KeyValue{
		attribute.String("drift.method", in.cfg.Method.String()),
		attribute.String("drift.resolution", grid.Resolution.String()),
		attribute.String("drift.observation", obs.Name),
		attribute.Int("drift.steps", steps),
	}
	if member != noMember {
		attrs = append(attrs, AttrEnsembleMember.Int(member))
	}
	ctx, span := in.tracer.Start(ctx, "core.Integrate", trace.WithAttributes(attrs...))
	r := &run{
		grid:         grid,
		method:       in.cfg.Method,
		dt:           in.cfg.TimeStepSeconds,
		steps:        steps,
		withVelocity: withVelocity,
		log:          log,
	}
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("drift.masked_samples", r.masked))
		span.End()
		if in.metrics != nil {
			in.metrics.RecordTrajectory(in.cfg.Method.String(), grid.Resolution.String(), r.k, r.masked, err)
		}
	}()

	t0, err := cal.Index(obs.FirstDate())
	if err != nil {
		return nil, fmt.Errorf("integrate %q: %w", obs.Name, err)
	}
	if err := r.initialize(ctx, x, y, start, t0); err != nil {
		return nil, fmt.Errorf("integrate %q: %w", obs.Name, err)
	}
	for r.state != StateComplete {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.step(ctx); err != nil {
			return nil, fmt.Errorf("integrate %q step %d: %w", obs.Name, r.k+1, err)
		}
	}

	log.Debug(ctx, "trajectory complete",
		logging.String("observation", obs.Name),
		logging.String("method", in.cfg.Method.String()),
		logging.String("resolution", grid.Resolution.String()),
		logging.Int("steps", steps),
		logging.Int("masked_samples", r.masked),
	)
	return r.trace, nil
}

// run carries the mutable state of one trajectory. It never outlives the
// integrate call that created it.
type run struct {
	grid         *Grid
	method       Method
	dt           float64
	steps        int
	withVelocity bool
	log          logging.Logger

	state  State
	t0     int
	k      int
	point  model.GridPoint
	trace  *model.Trace
	masked int
}

func (r *run) initialize(ctx context.Context, x, y float64, start model.GeographicPoint, t0 int) error {
	r.t0 = t0
	r.point = model.GridPoint{X: x, Y: y}
	r.trace = &model.Trace{Points: make([]model.GeographicPoint, 0, r.steps+1)}
	if r.withVelocity {
		r.trace.U = make([]float64, 0, r.steps+1)
		r.trace.V = make([]float64, 0, r.steps+1)
	}

	s, err := Interpolate(r.grid.Field, x, y, t0, r.method)
	if err != nil {
		return err
	}
	r.accept(ctx, start, s, t0)

	r.state = StateStepping
	if r.steps == 0 {
		r.state = StateComplete
	}
	return nil
}

func (r *run) step(ctx context.Context) error {
	scale := r.dt * r.grid.cellsPerMetre()
	next := model.GridPoint{
		X: r.point.X + r.point.U*scale,
		Y: r.point.Y + r.point.V*scale,
	}
	geo := r.grid.ToGeographic(next.X, next.Y)
	t := r.t0 + r.k + 1

	var s Sample
	var err error
	if next.OnNode() {
		s, err = nodeVelocity(r.grid.Field, next, t)
	} else {
		s, err = Interpolate(r.grid.Field, next.X, next.Y, t, r.method)
	}
	if err != nil {
		return err
	}

	r.point = next
	r.accept(ctx, geo, s, t)
	r.k++
	if r.k == r.steps {
		r.state = StateComplete
	}
	return nil
}

// accept appends a traced point and adopts its velocity.
func (r *run) accept(ctx context.Context, geo model.GeographicPoint, s Sample, t int) {
	if s.Masked {
		r.masked++
		r.log.Debug(ctx, ErrMissingVelocityData.Error()+": using zero velocity",
			logging.Float64("x", r.point.X),
			logging.Float64("y", r.point.Y),
			logging.Int("time_index", t),
			logging.String("method", r.method.String()),
		)
	}
	r.point.U, r.point.V = s.U, s.V
	r.trace.Points = append(r.trace.Points, geo)
	if r.withVelocity {
		r.trace.U = append(r.trace.U, s.U)
		r.trace.V = append(r.trace.V, s.V)
	}
}

// nodeVelocity reads the stored cell under a point that sits exactly on a
// grid node; interpolation would return the same value.
func nodeVelocity(f *VelocityField, p model.GridPoint, t int) (Sample, error) {
	row, col := int(p.Y), int(p.X)
	if !f.Contains(t, row, col) {
		return Sample{}, fmt.Errorf("%w: node (%d, %d) t=%d", ErrOutOfBoundsNeighborhood, col, row, t)
	}
	u, v, ok := f.At(t, row, col)
	if !ok {
		return maskedSample, nil
	}
	return Sample{U: u, V: v}, nil
}
