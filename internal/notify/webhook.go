// Package notify delivers outage notifications to an HTTP webhook.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/HerbHall/campusnet/internal/event"
)

const defaultTimeout = 10 * time.Second

// Compile-time interface guard.
var _ Sender = (*Webhook)(nil)

// WebhookConfig describes the receiving endpoint.
type WebhookConfig struct {
	URL       string
	Secret    string // signs the body with HMAC-SHA256 when set
	Timeout   time.Duration
	UserAgent string
}

// webhookPayload is the JSON body POSTed to the endpoint.
type webhookPayload struct {
	EventType string    `json:"event_type"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Webhook POSTs events as JSON.
type Webhook struct {
	client *http.Client
	cfg    WebhookConfig
}

// NewWebhook creates a webhook sender.
func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "campusnet-webhook"
	}
	return &Webhook{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
	}
}

// Send delivers e. Any non-2xx response is an error.
func (w *Webhook) Send(ctx context.Context, e event.Event) error {
	body, err := json.Marshal(webhookPayload{
		EventType: e.Topic,
		EventID:   e.ID,
		Timestamp: e.Timestamp,
		Data:      e.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", w.cfg.UserAgent)
	if w.cfg.Secret != "" {
		req.Header.Set("X-Signature", Sign(w.cfg.Secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook POST %s: %w", w.cfg.URL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain body for connection reuse

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook POST %s: status %d", w.cfg.URL, resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret, as sent in
// the X-Signature header.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
