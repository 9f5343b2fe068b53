package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/menu-cli/internal/model"
	"github.com/sells-group/menu-cli/internal/vision"
)

// Aggregation modes.
const (
	AggregationLocal = "local"
	AggregationLLM   = "llm"
)

// LocalAggregator merges duplicates deterministically without a remote call.
type LocalAggregator struct {
	Threshold float64
}

// Aggregate implements vision.Aggregator.
func (a LocalAggregator) Aggregate(_ context.Context, items []model.LineItem, _ model.EntityContext) ([]model.MenuItem, model.Usage, error) {
	return MergeLineItems(items, a.Threshold), model.Usage{}, nil
}

// MergingAggregator consolidates through a remote aggregator and then runs the
// local merge over its output to catch duplicates it left behind.
type MergingAggregator struct {
	Next      vision.Aggregator
	Threshold float64
}

// Aggregate implements vision.Aggregator.
func (a MergingAggregator) Aggregate(ctx context.Context, items []model.LineItem, ectx model.EntityContext) ([]model.MenuItem, model.Usage, error) {
	out, usage, err := a.Next.Aggregate(ctx, items, ectx)
	if err != nil {
		return nil, usage, err
	}
	return MergeItems(out, a.Threshold), usage, nil
}

// NewAggregator returns the aggregator for a configured mode. Unknown modes
// fall back to local merging.
func NewAggregator(mode string, remote vision.Aggregator, threshold float64) vision.Aggregator {
	if mode == AggregationLLM && remote != nil {
		return MergingAggregator{Next: remote, Threshold: threshold}
	}
	return LocalAggregator{Threshold: threshold}
}

// AggregateItems consolidates raw line items into the final menu. Empty input
// returns an empty result without calling the aggregator. When the aggregator
// fails the raw items are returned one-for-one with FailedOpen set.
func AggregateItems(ctx context.Context, items []model.LineItem, ectx model.EntityContext, aggregator vision.Aggregator) model.AggregationResult {
	if len(items) == 0 {
		return model.AggregationResult{}
	}

	out, usage, err := aggregator.Aggregate(ctx, items, ectx)
	if err != nil {
		zap.L().Warn("aggregate: failing open with raw items",
			zap.String("place_id", ectx.PlaceID),
			zap.Int("items", len(items)),
			zap.Error(err),
		)
		raw := toMenuItems(items)
		return model.AggregationResult{
			Items:      raw,
			Categories: categories(raw),
			Usage:      usage,
			FailedOpen: true,
			Error:      err.Error(),
		}
	}

	zap.L().Debug("aggregate: consolidated",
		zap.String("place_id", ectx.PlaceID),
		zap.Int("raw_items", len(items)),
		zap.Int("final_items", len(out)),
	)
	return model.AggregationResult{
		Items:      out,
		Categories: categories(out),
		Usage:      usage,
	}
}

// categories lists distinct categories in first-appearance order.
func categories(items []model.MenuItem) []string {
	var out []string
	seen := make(map[string]bool)
	for _, it := range items {
		if it.Category == nil {
			continue
		}
		c := strings.TrimSpace(*it.Category)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
