package observability

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/icedrift/core"
	"github.com/signalsfoundry/icedrift/internal/logging"
)

const serviceName = "driftsim"

// TracingConfig selects where driftsim sends its run traces.
//
// A run produces one root span: core.Integrate for a single trajectory,
// core.Ensemble for an ensemble. SampleRatio is applied to that root span
// only, so a run is either traced whole or not at all. Ensemble member
// spans are dropped unless MemberSpans is set; an 11x11 lattice would
// otherwise emit 121 spans per run.
type TracingConfig struct {
	Enabled     bool
	Exporter    string // stdout | otlp
	Endpoint    string // otlp collector host:port
	SampleRatio float64
	MemberSpans bool
	RunID       string
}

// TracingConfigFromEnv reads DRIFT_TRACING_* variables. A malformed sample
// ratio or member flag is an error rather than a silent default.
func TracingConfigFromEnv() (TracingConfig, error) {
	cfg := TracingConfig{
		Enabled:     strings.EqualFold(os.Getenv("DRIFT_TRACING_ENABLED"), "true"),
		Exporter:    strings.ToLower(os.Getenv("DRIFT_TRACING_EXPORTER")),
		Endpoint:    os.Getenv("DRIFT_OTLP_ENDPOINT"),
		SampleRatio: 1,
	}
	if cfg.Exporter == "" {
		cfg.Exporter = "stdout"
	}
	if raw := os.Getenv("DRIFT_TRACING_SAMPLE_RATIO"); raw != "" {
		ratio, err := strconv.ParseFloat(raw, 64)
		if err != nil || ratio < 0 || ratio > 1 {
			return TracingConfig{}, fmt.Errorf("DRIFT_TRACING_SAMPLE_RATIO=%q: want a number in [0, 1]", raw)
		}
		cfg.SampleRatio = ratio
	}
	if raw := os.Getenv("DRIFT_TRACING_MEMBER_SPANS"); raw != "" {
		on, err := strconv.ParseBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("DRIFT_TRACING_MEMBER_SPANS=%q: %w", raw, err)
		}
		cfg.MemberSpans = on
	}
	return cfg, nil
}

// InitTracing installs the global tracer provider for one driftsim run and
// returns the function that flushes it.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}
	otel.SetTextMapPropagator(propagation.TraceContext{})
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	exp, err := exporterFor(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(runAttributes(cfg)...))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	sampler := newRunSampler(cfg.SampleRatio, cfg.MemberSpans)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("sampler", sampler.Description()),
	)
	return tp.Shutdown, nil
}

func runAttributes(cfg TracingConfig) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", serviceName),
		attribute.String("service.namespace", "icedrift"),
	}
	if cfg.RunID != "" {
		attrs = append(attrs, attribute.String("drift.run_id", cfg.RunID))
	}
	return attrs
}

func exporterFor(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "stdout", "":
		// stdout carries the report.
		return stdouttrace.New(
			stdouttrace.WithWriter(os.Stderr),
			stdouttrace.WithoutTimestamps(),
		)
	case "otlp":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		))
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}
}

// runSampler samples whole runs. Root spans are kept at the configured
// ratio and children follow their parent, except ensemble member spans,
// which are dropped unless member spans were requested.
type runSampler struct {
	base        sdktrace.Sampler
	memberSpans bool
}

func newRunSampler(ratio float64, memberSpans bool) sdktrace.Sampler {
	return runSampler{
		base:        sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio)),
		memberSpans: memberSpans,
	}
}

func (s runSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	if !s.memberSpans && isEnsembleMember(p.Attributes) {
		return sdktrace.SamplingResult{
			Decision:   sdktrace.Drop,
			Tracestate: trace.SpanContextFromContext(p.ParentContext).TraceState(),
		}
	}
	return s.base.ShouldSample(p)
}

func (s runSampler) Description() string {
	return fmt.Sprintf("DriftRun{%s,memberSpans=%t}", s.base.Description(), s.memberSpans)
}

func isEnsembleMember(attrs []attribute.KeyValue) bool {
	for _, kv := range attrs {
		if kv.Key == core.AttrEnsembleMember {
			return true
		}
	}
	return false
}

// Tracer returns the named tracer of the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// ShutdownWithTimeout flushes buffered spans, giving up after five seconds.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.String("error", err.Error()))
	}
}
