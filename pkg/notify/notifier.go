package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/helios/pkg/eventbus"
	"mercator-hq/helios/pkg/governance"
	"mercator-hq/helios/pkg/telemetry/tracing"
)

// DefaultWebhookTimeout bounds a webhook request.
const DefaultWebhookTimeout = 5 * time.Second

// Notification is the alert handed to notifiers.
type Notification struct {
	Kind      eventbus.Kind       `json:"kind"`
	Seq       uint64              `json:"seq"`
	PolicyID  string              `json:"policy_id,omitempty"`
	Severity  governance.Severity `json:"severity,omitempty"`
	Summary   string              `json:"summary"`
	Timestamp time.Time           `json:"timestamp"`
	Details   any                 `json:"details,omitempty"`
}

// Notifier sends notifications to one destination.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, n Notification) error
}

// Webhook POSTs each notification as JSON.
type Webhook struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhook creates a webhook notifier. A zero timeout uses
// DefaultWebhookTimeout.
func NewWebhook(url string, headers map[string]string, timeout time.Duration) (*Webhook, error) {
	if url == "" {
		return nil, governance.NewValidationError("notification.webhook.url", "url is required")
	}
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	return &Webhook{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Name implements Notifier.
func (w *Webhook) Name() string { return "webhook" }

// Notify sends n. Any non-2xx response is an error.
func (w *Webhook) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range w.headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	tracing.Inject(ctx, req.Header)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Log writes each notification to a logger.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log notifier. A nil logger uses slog.Default.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger.With("component", "notify.log")}
}

// Name implements Notifier.
func (l *Log) Name() string { return "log" }

// Notify logs n. Violations log at warn level.
func (l *Log) Notify(ctx context.Context, n Notification) error {
	level := slog.LevelInfo
	if n.Kind == eventbus.ViolationDetected {
		level = slog.LevelWarn
	}
	attrs := []any{"kind", n.Kind, "seq", n.Seq, "policy_id", n.PolicyID}
	if n.Severity != "" {
		attrs = append(attrs, "severity", n.Severity)
	}
	l.logger.Log(ctx, level, n.Summary, attrs...)
	return nil
}
