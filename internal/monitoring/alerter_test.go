package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/menu-cli/internal/config"
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		FailureRateThreshold: 0.10,
		CostThresholdUSD:     50.0,
	})

	snap := &MetricsSnapshot{
		Finished:      95,
		Errored:       5,
		FailRate:      0.05,
		Calls:         300,
		CallFailures:  3,
		CostUSD:       decimal.NewFromFloat(12.5),
		LookbackHours: 24,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10})

	snap := &MetricsSnapshot{
		Finished: 12,
		Errored:  8,
		FailRate: 0.4,
		CostUSD:  decimal.Zero,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
}

func TestAlerter_Evaluate_MinimumTerminalRequired(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10})

	// Three terminal restaurants is below the minimum for a rate alert.
	snap := &MetricsSnapshot{
		Finished: 1,
		Errored:  2,
		FailRate: 0.666,
		CostUSD:  decimal.Zero,
	}
	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_CallFailures(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 1})

	alerts := a.Evaluate(&MetricsSnapshot{
		Calls:         10,
		CallFailures:  6,
		CostUSD:       decimal.Zero,
		LookbackHours: 6,
	})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCallFailures, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "6 of 10")
}

func TestAlerter_Evaluate_CostOverrun(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		FailureRateThreshold: 0.10,
		CostThresholdUSD:     100.0,
	})

	snap := &MetricsSnapshot{
		Calls:         50,
		CostUSD:       decimal.RequireFromString("250"),
		LookbackHours: 24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCostOverrun, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "$250.00")
	assert.Contains(t, alerts[0].Message, "$100.00")
}

func TestAlerter_Evaluate_ZeroCostThreshold(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{CostThresholdUSD: 0})

	snap := &MetricsSnapshot{CostUSD: decimal.NewFromInt(999)}
	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_StaleReset(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{StuckAfterMins: 30})

	alerts := a.Evaluate(&MetricsSnapshot{StaleReset: 2, CostUSD: decimal.Zero})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertStaleRuns, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "2 restaurant(s)")
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		FailureRateThreshold: 0.10,
		CostThresholdUSD:     100.0,
	})

	snap := &MetricsSnapshot{
		Finished:     10,
		Errored:      10,
		FailRate:     0.5,
		Calls:        40,
		CallFailures: 30,
		CostUSD:      decimal.NewFromInt(300),
		StaleReset:   1,
	}

	alerts := a.Evaluate(snap)
	assert.Len(t, alerts, 4)

	types := make(map[AlertType]bool)
	for _, a := range alerts {
		types[a.Type] = true
	}
	assert.True(t, types[AlertFailureRate])
	assert.True(t, types[AlertCallFailures])
	assert.True(t, types[AlertCostOverrun])
	assert.True(t, types[AlertStaleRuns])
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&alert)) {
			return
		}
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertFailureRate, Severity: "high", Message: "rate"},
		{Type: AlertStaleRuns, Severity: "medium", Message: "stale"},
	})
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertFailureRate, Message: "test"}})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{WebhookURL: "http://example.com"})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), nil))
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertCostOverrun, Message: "test"}})
	assert.Equal(t, 0, sent)
}
