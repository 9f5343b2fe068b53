package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/menu-cli/internal/model"
	"github.com/sells-group/menu-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of extraction health.
type MetricsSnapshot struct {
	// Restaurant status counts (all time).
	StatusCounts map[model.RestaurantStatus]int `json:"status_counts"`
	Total        int                            `json:"total"`
	Pending      int                            `json:"pending"`
	Processing   int                            `json:"processing"`
	Finished     int                            `json:"finished"`
	Errored      int                            `json:"errored"`
	FailRate     float64                        `json:"fail_rate"`

	// Model calls within the lookback window.
	Calls        int                 `json:"calls"`
	CallFailures int                 `json:"call_failures"`
	InputTokens  int64               `json:"input_tokens"`
	OutputTokens int64               `json:"output_tokens"`
	CostUSD      decimal.Decimal     `json:"cost_usd"`
	Stages       []model.CostSummary `json:"stages,omitempty"`

	// Restaurants moved out of processing by the stale sweep.
	StaleReset int64 `json:"stale_reset"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of status counts plus the cost of model calls
// made within the lookback window. A non-positive window covers all time.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
		CostUSD:       decimal.Zero,
	}

	counts, err := c.store.CountByStatus(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count by status")
	}
	snap.StatusCounts = counts
	for status, n := range counts {
		snap.Total += n
		switch status {
		case model.StatusNew, model.StatusPending:
			snap.Pending += n
		case model.StatusProcessing:
			snap.Processing += n
		case model.StatusFinished:
			snap.Finished += n
		case model.StatusError:
			snap.Errored += n
		}
	}
	if done := snap.Finished + snap.Errored; done > 0 {
		snap.FailRate = float64(snap.Errored) / float64(done)
	}

	var filter store.CostFilter
	if lookbackHours > 0 {
		filter.Since = now.Add(-time.Duration(lookbackHours) * time.Hour)
	}
	stages, err := c.store.CostSummary(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: cost summary")
	}
	snap.Stages = stages
	for _, s := range stages {
		snap.Calls += s.Calls
		snap.CallFailures += s.Failures
		snap.InputTokens += s.InputTokens
		snap.OutputTokens += s.OutputTokens
		snap.CostUSD = snap.CostUSD.Add(s.Cost)
	}

	return snap, nil
}
