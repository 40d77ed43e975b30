package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DriftCollector bundles Prometheus metrics for trajectory integration and
// ensemble runs.
type DriftCollector struct {
	gatherer prometheus.Gatherer

	Trajectories     *prometheus.CounterVec
	Steps            prometheus.Counter
	MaskedSamples    *prometheus.CounterVec
	EnsembleDuration prometheus.Histogram
	EnsembleMembers  prometheus.Gauge
}

// NewDriftCollector registers drift metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewDriftCollector(reg prometheus.Registerer) (*DriftCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	trajectories, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drift_trajectories_total",
		Help: "Trajectory integrations, labeled by interpolation method, grid resolution and outcome.",
	}, []string{"method", "resolution", "outcome"}), "drift_trajectories_total")
	if err != nil {
		return nil, err
	}

	steps, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "drift_integration_steps_total",
		Help: "Daily integration steps completed across all trajectories.",
	}), "drift_integration_steps_total")
	if err != nil {
		return nil, err
	}

	masked, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drift_masked_samples_total",
		Help: "Velocity samples replaced by zero because a contributing cell was masked.",
	}, []string{"method"}), "drift_masked_samples_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "drift_ensemble_duration_seconds",
		Help:    "Wall time of a complete ensemble run.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}), "drift_ensemble_duration_seconds")
	if err != nil {
		return nil, err
	}

	members, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "drift_ensemble_members",
		Help: "Number of lattice members in the most recent ensemble run.",
	}), "drift_ensemble_members")
	if err != nil {
		return nil, err
	}

	return &DriftCollector{
		gatherer:         gatherer,
		Trajectories:     trajectories,
		Steps:            steps,
		MaskedSamples:    masked,
		EnsembleDuration: duration,
		EnsembleMembers:  members,
	}, nil
}

// RecordTrajectory counts one finished integration. A non-nil err marks the
// run as failed; steps and masked samples are only counted for successes.
func (c *DriftCollector) RecordTrajectory(method, resolution string, steps, masked int, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if c.Trajectories != nil {
		c.Trajectories.WithLabelValues(method, resolution, outcome).Inc()
	}
	if err != nil {
		return
	}
	if c.Steps != nil {
		c.Steps.Add(float64(steps))
	}
	if c.MaskedSamples != nil && masked > 0 {
		c.MaskedSamples.WithLabelValues(method).Add(float64(masked))
	}
}

// RecordEnsemble records the size and wall time of an ensemble run.
func (c *DriftCollector) RecordEnsemble(members int, d time.Duration) {
	if c == nil {
		return
	}
	if c.EnsembleMembers != nil {
		c.EnsembleMembers.Set(float64(members))
	}
	if c.EnsembleDuration != nil {
		c.EnsembleDuration.Observe(d.Seconds())
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *DriftCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
