package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dd0wney/mulewatch/pkg/engine"
	"github.com/dd0wney/mulewatch/pkg/logging"
)

const maxAttempts = 2

// WebhookNotifier POSTs a run summary to a configured URL after each
// completed analysis. Delivery is best effort with a short retry.
type WebhookNotifier struct {
	url        string
	client     *http.Client
	retryDelay time.Duration
	logger     logging.Logger
}

// WebhookPayload is the body delivered to the webhook URL.
type WebhookPayload struct {
	Event              string    `json:"event"`
	RunID              string    `json:"run_id"`
	GeneratedAt        time.Time `json:"generated_at"`
	FraudRingsDetected int       `json:"fraud_rings_detected"`
	AccountsFlagged    int       `json:"accounts_flagged"`
	HighSeverityCount  int       `json:"high_severity_count"`
}

func NewWebhookNotifier(url string, logger logging.Logger) *WebhookNotifier {
	if logger == nil {
		logger = logging.With(logging.Component("webhook"))
	}
	return &WebhookNotifier{
		url:        url,
		client:     &http.Client{Timeout: 10 * time.Second},
		retryDelay: time.Second,
		logger:     logger,
	}
}

// NotifyRunComplete delivers the summary of a completed run, retrying once
// on failure.
func (n *WebhookNotifier) NotifyRunComplete(report *engine.Report) {
	highSeverity := 0
	for _, acc := range report.SuspiciousAccounts {
		if acc.Severity == "high" {
			highSeverity++
		}
	}

	payload := WebhookPayload{
		Event:              "analysis.completed",
		RunID:              report.RunID,
		GeneratedAt:        report.GeneratedAt,
		FraudRingsDetected: len(report.FraudRings),
		AccountsFlagged:    report.Summary.SuspiciousAccountsFlagged,
		HighSeverityCount:  highSeverity,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("webhook payload marshal failed", logging.Error(err))
		return
	}

	timer := logging.StartTimer(n.logger, "webhook delivery", logging.RunID(report.RunID))
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = n.deliver(body); err == nil {
			timer.End()
			return
		}
		n.logger.Warn("webhook delivery failed",
			logging.RunID(report.RunID),
			logging.Int("attempt", attempt),
			logging.Error(err))
		if attempt < maxAttempts {
			time.Sleep(time.Duration(attempt) * n.retryDelay)
		}
	}
	timer.EndError(err)
}

func (n *WebhookNotifier) deliver(body []byte) error {
	resp, err := n.client.Post(n.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return &webhookStatusError{status: resp.StatusCode}
	}
	return nil
}

type webhookStatusError struct {
	status int
}

func (e *webhookStatusError) Error() string {
	return fmt.Sprintf("webhook returned status %d", e.status)
}
