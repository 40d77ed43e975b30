package core

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/icedrift/model"
)

// MethodComparison is the outcome of one interpolation method against the
// observed track.
type MethodComparison struct {
	Method     Method
	Trace      *model.Trace
	Deviations []Deviation
	MeanKm     float64
}

// Compare integrates obs once per method and scores each trace against the
// observed positions. With no methods it compares IDW, BL and BC.
func (in *Integrator) Compare(ctx context.Context, grid *Grid, obs *model.Observation, methods ...Method) ([]MethodComparison, error) {
	if len(methods) == 0 {
		methods = []Method{MethodIDW, MethodBilinear, MethodBicubic}
	}
	out := make([]MethodComparison, 0, len(methods))
	for _, m := range methods {
		if !m.Valid() {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInterpolationMethod, m)
		}
		tr, err := in.withMethod(m).Integrate(ctx, grid, obs)
		if err != nil {
			return nil, fmt.Errorf("compare %v: %w", m, err)
		}
		devs := TraceDeviation(tr, obs)
		out = append(out, MethodComparison{
			Method:     m,
			Trace:      tr,
			Deviations: devs,
			MeanKm:     MeanDeviationKm(devs),
		})
	}
	return out, nil
}
