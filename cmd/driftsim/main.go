package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/signalsfoundry/icedrift/core"
	"github.com/signalsfoundry/icedrift/internal/logging"
	"github.com/signalsfoundry/icedrift/internal/observability"
	"github.com/signalsfoundry/icedrift/kb"
	"github.com/signalsfoundry/icedrift/model"
)

func main() {
	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, log); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Error(ctx, "driftsim failed", logging.String("error", err.Error()))
		os.Exit(1)
	}
}

type options struct {
	scenario    string
	mode        string
	method      string
	methods     string
	observation string
	resolution  float64
	timestep    float64
	distance    float64
	area        float64
	workers     int
	format      string
	out         string
	metricsAddr string
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("driftsim", flag.ContinueOnError)
	defaults := core.DefaultEnsembleConfig()
	o := &options{}
	fs.StringVar(&o.scenario, "scenario", "", "path to a JSON scenario with grids and buoy observations")
	fs.StringVar(&o.mode, "mode", "single", "single | compare | ensemble")
	fs.StringVar(&o.method, "method", "IDW", "interpolation method: IDW, BL or BC")
	fs.StringVar(&o.methods, "methods", "IDW,BL,BC", "comma-separated methods for -mode compare")
	fs.StringVar(&o.observation, "observation", "", "observation name (default: first by name)")
	fs.Float64Var(&o.resolution, "resolution", 0, "grid resolution in km, 25 or 62.5 (default: finest loaded)")
	fs.Float64Var(&o.timestep, "timestep", core.SecondsPerDay, "integration step in seconds")
	fs.Float64Var(&o.distance, "distance", defaults.DistanceKm, "ensemble start point spacing in km")
	fs.Float64Var(&o.area, "area", defaults.AreaRangeKm, "ensemble lattice side in km")
	fs.IntVar(&o.workers, "workers", runtime.NumCPU(), "concurrent ensemble members")
	fs.StringVar(&o.format, "format", "json", "output format: json | msgpack")
	fs.StringVar(&o.out, "out", "", "output file (default: stdout)")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "HTTP address for Prometheus /metrics; empty disables")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.scenario == "" {
		return nil, fmt.Errorf("-scenario is required")
	}
	switch o.format {
	case "json", "msgpack":
	default:
		return nil, fmt.Errorf("unsupported -format %q", o.format)
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdout io.Writer, base logging.Logger) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	ctx, log := logging.WithRunLogger(ctx, base)
	ctx = logging.ContextWithLogger(ctx, log)
	runID := logging.RunIDFromContext(ctx)

	tracing, err := observability.TracingConfigFromEnv()
	if err != nil {
		return err
	}
	tracing.RunID = runID
	shutdown, err := observability.InitTracing(ctx, tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	var metrics core.MetricsRecorder
	if opts.metricsAddr != "" {
		collector, err := observability.NewDriftCollector(nil)
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		srv := serveMetrics(opts.metricsAddr, collector, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		metrics = collector
	}

	catalog := kb.NewCatalog()
	catalog.Subscribe(func(e kb.Event) {
		switch e.Type {
		case kb.EventGridAdded:
			log.Debug(ctx, "grid loaded", logging.String("resolution", e.Resolution.String()))
		case kb.EventObservationAdded:
			log.Debug(ctx, "observation loaded", logging.String("name", e.Observation))
		}
	})
	if err := loadScenario(catalog, opts.scenario); err != nil {
		return err
	}
	log.Info(ctx, "loaded scenario",
		logging.String("path", opts.scenario),
		logging.Int("grids", len(catalog.ListGrids())),
		logging.Int("observations", len(catalog.ListObservations())),
	)

	grid, obs, err := selectInputs(catalog, opts)
	if err != nil {
		return err
	}
	method, err := core.ParseMethod(opts.method)
	if err != nil {
		return err
	}
	integrator, err := core.NewIntegrator(
		core.IntegratorConfig{Method: method, TimeStepSeconds: opts.timestep},
		core.WithLogger(log),
		core.WithMetrics(metrics),
		core.WithTracer(observability.Tracer("github.com/signalsfoundry/icedrift/cmd/driftsim")),
	)
	if err != nil {
		return err
	}

	rep := &report{
		RunID:       runID,
		Mode:        opts.mode,
		Observation: obs.Name,
		Resolution:  grid.Resolution.String(),
		Observed:    toPoints(obs.Positions()),
	}
	switch opts.mode {
	case "single":
		tr, err := integrator.Integrate(ctx, grid, obs)
		if err != nil {
			return err
		}
		rep.Traces = []traceOut{newTraceOut(method, tr, core.TraceDeviation(tr, obs))}
	case "compare":
		methods, err := parseMethods(opts.methods)
		if err != nil {
			return err
		}
		results, err := integrator.Compare(ctx, grid, obs, methods...)
		if err != nil {
			return err
		}
		for _, r := range results {
			rep.Traces = append(rep.Traces, newTraceOut(r.Method, r.Trace, r.Deviations))
		}
	case "ensemble":
		res, err := integrator.Ensemble(ctx, grid, obs, core.EnsembleConfig{
			DistanceKm:  opts.distance,
			AreaRangeKm: opts.area,
			Workers:     opts.workers,
		})
		if err != nil {
			return err
		}
		rep.Ensemble = newEnsembleOut(res)
	default:
		return fmt.Errorf("unknown -mode %q", opts.mode)
	}

	w := stdout
	if opts.out != "" {
		f, err := os.Create(opts.out)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := writeReport(w, opts.format, rep); err != nil {
		return err
	}
	log.Info(ctx, "run complete", logging.String("mode", opts.mode), logging.String("format", opts.format))
	return nil
}

func loadScenario(catalog *kb.Catalog, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open scenario %q: %w", path, err)
	}
	defer f.Close()

	sc, err := core.LoadScenario(f)
	if err != nil {
		return err
	}
	return catalog.AddScenario(sc)
}

func selectInputs(catalog *kb.Catalog, opts *options) (*core.Grid, *model.Observation, error) {
	var grid *core.Grid
	if opts.resolution != 0 {
		grid = catalog.Grid(model.Resolution(opts.resolution))
		if grid == nil {
			return nil, nil, fmt.Errorf("no grid loaded for resolution %vkm", opts.resolution)
		}
	} else if grids := catalog.ListGrids(); len(grids) > 0 {
		grid = grids[0]
	} else {
		return nil, nil, fmt.Errorf("scenario has no grids")
	}

	var obs *model.Observation
	if opts.observation != "" {
		obs = catalog.Observation(opts.observation)
		if obs == nil {
			return nil, nil, fmt.Errorf("observation %q not found", opts.observation)
		}
	} else if all := catalog.ListObservations(); len(all) > 0 {
		obs = all[0]
	} else {
		return nil, nil, fmt.Errorf("scenario has no observations")
	}
	return grid, obs, nil
}

func parseMethods(s string) ([]core.Method, error) {
	var out []core.Method
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		m, err := core.ParseMethod(part)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func serveMetrics(addr string, collector *observability.DriftCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.String("error", err.Error()))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

type pointOut struct {
	Lat float64 `json:"lat" msgpack:"lat"`
	Lon float64 `json:"lon" msgpack:"lon"`
}

type traceOut struct {
	Method          string     `json:"method" msgpack:"method"`
	Points          []pointOut `json:"points" msgpack:"points"`
	DeviationKm     []float64  `json:"deviation_km,omitempty" msgpack:"deviation_km,omitempty"`
	MeanDeviationKm *float64   `json:"mean_deviation_km,omitempty" msgpack:"mean_deviation_km,omitempty"`
}

type memberOut struct {
	Index  int        `json:"index" msgpack:"index"`
	I      int        `json:"i" msgpack:"i"`
	J      int        `json:"j" msgpack:"j"`
	Points []pointOut `json:"points" msgpack:"points"`
	East   []float64  `json:"east" msgpack:"east"`
	North  []float64  `json:"north" msgpack:"north"`
}

type ensembleOut struct {
	Size     int         `json:"size" msgpack:"size"`
	SpreadKm []float64   `json:"spread_km" msgpack:"spread_km"`
	Members  []memberOut `json:"members" msgpack:"members"`
}

type report struct {
	RunID       string       `json:"run_id" msgpack:"run_id"`
	Mode        string       `json:"mode" msgpack:"mode"`
	Observation string       `json:"observation" msgpack:"observation"`
	Resolution  string       `json:"resolution" msgpack:"resolution"`
	Observed    []pointOut   `json:"observed" msgpack:"observed"`
	Traces      []traceOut   `json:"traces,omitempty" msgpack:"traces,omitempty"`
	Ensemble    *ensembleOut `json:"ensemble,omitempty" msgpack:"ensemble,omitempty"`
}

func toPoints(ps []model.GeographicPoint) []pointOut {
	out := make([]pointOut, len(ps))
	for i, p := range ps {
		out[i] = pointOut{Lat: p.Lat, Lon: p.Lon}
	}
	return out
}

func newTraceOut(m core.Method, tr *model.Trace, devs []core.Deviation) traceOut {
	t := traceOut{Method: m.String(), Points: toPoints(tr.Points)}
	for _, d := range devs {
		t.DeviationKm = append(t.DeviationKm, d.Km)
	}
	if mean := core.MeanDeviationKm(devs); !math.IsNaN(mean) {
		t.MeanDeviationKm = &mean
	}
	return t
}

func newEnsembleOut(res *core.EnsembleResult) *ensembleOut {
	e := &ensembleOut{
		Size:     res.Size,
		SpreadKm: core.EnsembleSpread(res),
		Members:  make([]memberOut, len(res.Members)),
	}
	for i, m := range res.Members {
		e.Members[i] = memberOut{
			Index:  m.Index,
			I:      m.I,
			J:      m.J,
			Points: toPoints(m.Trace.Points),
			East:   m.East,
			North:  m.North,
		}
	}
	return e
}

func writeReport(w io.Writer, format string, rep *report) error {
	switch format {
	case "msgpack":
		if err := msgpack.NewEncoder(w).Encode(rep); err != nil {
			return fmt.Errorf("encode msgpack: %w", err)
		}
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
	}
	return nil
}
