package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/menu-cli/internal/config"
	"github.com/sells-group/menu-cli/internal/store"
)

// Checker runs periodic alert checks in the background. When StuckAfterMins
// is set it also returns restaurants stuck in processing to pending.
type Checker struct {
	store     store.Store
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
}

// NewChecker creates a background alert checker.
func NewChecker(st store.Store, collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		store:     st,
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx, log)
		}
	}
}

// Check runs one sweep and alert evaluation and returns the alerts raised.
func (c *Checker) Check(ctx context.Context, log *zap.Logger) []Alert {
	var reset int64
	if c.cfg.StuckAfterMins > 0 && c.store != nil {
		n, err := c.store.ResetStale(ctx, time.Duration(c.cfg.StuckAfterMins)*time.Minute)
		if err != nil {
			log.Error("monitoring: stale sweep failed", zap.Error(err))
		} else {
			reset = n
		}
	}

	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return nil
	}
	snap.StaleReset = reset

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts triggered")
		return nil
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
	return alerts
}
