package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/menu-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailureRate  AlertType = "extraction_failure_rate"
	AlertCostOverrun  AlertType = "cost_overrun"
	AlertStaleRuns    AlertType = "stale_runs_reset"
	AlertCallFailures AlertType = "model_call_failures"
)

// minFinishedForRate is the number of terminal restaurants needed before the
// failure rate is meaningful.
const minFinishedForRate = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	done := snap.Finished + snap.Errored
	if done >= minFinishedForRate && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Extraction failure rate %.1f%% exceeds threshold %.1f%% (%d errored / %d terminal)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100, snap.Errored, done,
			),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"errored":      snap.Errored,
				"terminal":     done,
			},
			Timestamp: now,
		})
	}

	if snap.Calls >= minFinishedForRate && snap.CallFailures*2 > snap.Calls {
		alerts = append(alerts, Alert{
			Type:     AlertCallFailures,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d of %d model calls failed in last %dh",
				snap.CallFailures, snap.Calls, snap.LookbackHours,
			),
			Details: map[string]any{
				"failures": snap.CallFailures,
				"calls":    snap.Calls,
			},
			Timestamp: now,
		})
	}

	limit := decimal.NewFromFloat(a.cfg.CostThresholdUSD)
	if a.cfg.CostThresholdUSD > 0 && snap.CostUSD.GreaterThan(limit) {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "high",
			Message: fmt.Sprintf(
				"Model cost $%s exceeds threshold $%s in last %dh",
				snap.CostUSD.StringFixed(2), limit.StringFixed(2), snap.LookbackHours,
			),
			Details: map[string]any{
				"cost_usd":      snap.CostUSD.String(),
				"threshold_usd": a.cfg.CostThresholdUSD,
				"calls":         snap.Calls,
			},
			Timestamp: now,
		})
	}

	if snap.StaleReset > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertStaleRuns,
			Severity: "medium",
			Message:  fmt.Sprintf("%d restaurant(s) stuck in processing were reset to pending", snap.StaleReset),
			Details: map[string]any{
				"reset":            snap.StaleReset,
				"stuck_after_mins": a.cfg.StuckAfterMins,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
