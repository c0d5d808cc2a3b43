package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/fabriqa/takt/internal/actions"
	"github.com/fabriqa/takt/internal/factory"
	"github.com/fabriqa/takt/internal/logging"
	"github.com/fabriqa/takt/pkg/schema"
)

// FallbackEstimator is the degraded stand-in for the simulation backend.
// It computes a deterministic completion estimate from routing master data
// alone: no stochastic draws, no machine contention model. The result is
// tagged with the estimator's identity and a fixed confidence below the
// ceiling so callers can always tell it from an authoritative simulation.
type FallbackEstimator struct {
	provider   *factory.Provider
	confidence float64
	now        func() time.Time
	logger     *slog.Logger
}

// NewFallbackEstimator wires the estimator to the master data provider.
func NewFallbackEstimator(provider *factory.Provider, logger *slog.Logger) *FallbackEstimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackEstimator{
		provider:   provider,
		confidence: schema.FallbackConfidence,
		now:        time.Now,
		logger:     logger,
	}
}

// Estimate produces the fallback prediction for a simulate action whose
// backend was unreachable. cause is the backend error being absorbed; it is
// recorded as provenance, never surfaced as a failure.
//
// The model: the first unit completes after the product's nominal lead time
// (mean processing plus transit); each further unit adds the bottleneck
// step's mean, since the slowest machine paces a pipelined batch.
func (f *FallbackEstimator) Estimate(ctx context.Context, req actions.Request, cause error) (*schema.Prediction, error) {
	productID, ok := req.LookupString("product_id")
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"simulate action %q names no product_id", req.Action.ID)
	}
	quantity, ok := req.LookupInt("quantity")
	if !ok {
		quantity = 1
	}
	if quantity < 1 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"simulate action %q quantity must be positive, got %d", req.Action.ID, quantity)
	}

	md := f.provider.Current()
	leadMinutes, err := md.NominalLeadTime(productID)
	if err != nil {
		return nil, err
	}

	bottleneck, err := bottleneckMinutes(md, productID)
	if err != nil {
		return nil, err
	}

	start := f.now().UTC()
	firstDone := start.Add(minutesToDuration(leadMinutes))
	makespan := leadMinutes + float64(quantity-1)*bottleneck

	reason := cause.Error()
	if te, isTakt := schema.AsTaktError(cause); isTakt {
		reason = te.Code + ": " + te.Message
	}

	confidence := f.confidence
	if confidence > schema.ConfidenceCeiling {
		confidence = schema.ConfidenceCeiling
	}

	logging.LogWith(ctx, f.logger).WarnContext(ctx,
		"simulation backend unavailable, serving fallback estimate",
		"action", req.Action.ID, "product_id", productID, "quantity", quantity, "cause", reason)

	return &schema.Prediction{
		Source:                  schema.SourceFallbackEstimator,
		Fallback:                true,
		PredictedCompletionTime: firstDone,
		MakespanMinutes:         makespan,
		Confidence:              confidence,
		FallbackReason:          reason,
	}, nil
}

// bottleneckMinutes returns the largest mean step duration in a product's
// routing.
func bottleneckMinutes(md *factory.MasterData, productID string) (float64, error) {
	product, ok := md.Product(productID)
	if !ok {
		return 0, schema.NewErrorf(schema.ErrCodeNotFound,
			"product %q not in master data", productID)
	}

	var max float64
	for _, step := range product.Routing {
		mean, err := step.Duration.MeanMinutes()
		if err != nil {
			return 0, err
		}
		if mean > max {
			max = mean
		}
	}
	return max, nil
}

func minutesToDuration(minutes float64) time.Duration {
	return time.Duration(minutes * float64(time.Minute))
}
