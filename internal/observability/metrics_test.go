package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordTrajectoryCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewDriftCollector(reg)
	if err != nil {
		t.Fatalf("NewDriftCollector: %v", err)
	}

	collector.RecordTrajectory("BL", "25km", 30, 2, nil)
	collector.RecordTrajectory("BL", "25km", 12, 1, errors.New("out of bounds"))

	if got := testutil.ToFloat64(collector.Trajectories.WithLabelValues("BL", "25km", "ok")); got != 1 {
		t.Fatalf("drift_trajectories_total ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Trajectories.WithLabelValues("BL", "25km", "error")); got != 1 {
		t.Fatalf("drift_trajectories_total error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Steps); got != 30 {
		t.Fatalf("drift_integration_steps_total = %v, want 30", got)
	}
	if got := testutil.ToFloat64(collector.MaskedSamples.WithLabelValues("BL")); got != 2 {
		t.Fatalf("drift_masked_samples_total = %v, want 2", got)
	}
}

func TestRecordEnsemble(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewDriftCollector(reg)
	if err != nil {
		t.Fatalf("NewDriftCollector: %v", err)
	}

	collector.RecordEnsemble(121, 250*time.Millisecond)

	if got := testutil.ToFloat64(collector.EnsembleMembers); got != 121 {
		t.Fatalf("drift_ensemble_members = %v, want 121", got)
	}
	if count := histogramSampleCount(t, reg, "drift_ensemble_duration_seconds", nil); count != 1 {
		t.Fatalf("drift_ensemble_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *DriftCollector
	c.RecordTrajectory("IDW", "25km", 1, 0, nil)
	c.RecordEnsemble(1, time.Second)
}

func TestNewDriftCollectorReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewDriftCollector(reg)
	if err != nil {
		t.Fatalf("NewDriftCollector: %v", err)
	}
	second, err := NewDriftCollector(reg)
	if err != nil {
		t.Fatalf("second NewDriftCollector: %v", err)
	}
	first.RecordTrajectory("BC", "62.5km", 5, 0, nil)
	if got := testutil.ToFloat64(second.Steps); got != 5 {
		t.Fatalf("shared steps counter = %v, want 5", got)
	}
}

func TestMetricsHandlerExposesDriftMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewDriftCollector(reg)
	if err != nil {
		t.Fatalf("NewDriftCollector: %v", err)
	}
	collector.RecordTrajectory("IDW", "62.5km", 7, 3, nil)
	collector.RecordEnsemble(9, time.Second)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"drift_trajectories_total",
		"drift_integration_steps_total 7",
		"drift_masked_samples_total",
		"drift_ensemble_duration_seconds",
		"drift_ensemble_members 9",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output:\n%s", metric, body)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
