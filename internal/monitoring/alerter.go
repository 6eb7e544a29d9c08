package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/scrape-cleaner/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertQualityDegraded AlertType = "quality_degraded"
	AlertInvalidRate     AlertType = "invalid_rate"
	AlertDuplicateRate   AlertType = "duplicate_rate"
)

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
// A window with no scored runs raises nothing.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	if snap == nil || snap.Runs == 0 {
		return nil
	}

	var alerts []Alert
	now := time.Now().UTC()

	if snap.AvgOverall < a.cfg.MinOverallScore {
		alerts = append(alerts, Alert{
			Type:     AlertQualityDegraded,
			Severity: severityFor(a.cfg.MinOverallScore-snap.AvgOverall, 0.2),
			Message: fmt.Sprintf(
				"Average overall quality %.2f is below %.2f (%d runs in last %dh)",
				snap.AvgOverall, a.cfg.MinOverallScore, snap.Runs, snap.LookbackHours,
			),
			Details: map[string]any{
				"avg_overall":      snap.AvgOverall,
				"avg_completeness": snap.AvgCompleteness,
				"avg_accuracy":     snap.AvgAccuracy,
				"threshold":        a.cfg.MinOverallScore,
				"runs":             snap.Runs,
			},
			Timestamp: now,
		})
	}

	if snap.InvalidRate > a.cfg.MaxInvalidRate {
		alerts = append(alerts, Alert{
			Type:     AlertInvalidRate,
			Severity: severityFor(snap.InvalidRate-a.cfg.MaxInvalidRate, 0.2),
			Message: fmt.Sprintf(
				"Invalid record rate %.1f%% exceeds %.1f%% (%d records in last %dh)",
				snap.InvalidRate*100, a.cfg.MaxInvalidRate*100, snap.Records, snap.LookbackHours,
			),
			Details: map[string]any{
				"invalid_rate": snap.InvalidRate,
				"threshold":    a.cfg.MaxInvalidRate,
				"records":      snap.Records,
			},
			Timestamp: now,
		})
	}

	if snap.DuplicateRate > a.cfg.MaxDuplicateRate {
		alerts = append(alerts, Alert{
			Type:     AlertDuplicateRate,
			Severity: severityFor(snap.DuplicateRate-a.cfg.MaxDuplicateRate, 0.2),
			Message: fmt.Sprintf(
				"Duplicate record rate %.1f%% exceeds %.1f%% (%d records in last %dh)",
				snap.DuplicateRate*100, a.cfg.MaxDuplicateRate*100, snap.Records, snap.LookbackHours,
			),
			Details: map[string]any{
				"duplicate_rate": snap.DuplicateRate,
				"threshold":      a.cfg.MaxDuplicateRate,
				"records":        snap.Records,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// severityFor escalates to high once a threshold is missed by more than margin.
func severityFor(miss, margin float64) string {
	if miss > margin {
		return "high"
	}
	return "medium"
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

// sendWebhook posts a single alert to the webhook URL.
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
