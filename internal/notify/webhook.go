package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// WebhookPayload is the JSON body posted to a generic webhook.
type WebhookPayload struct {
	Source    string  `json:"source"`
	Kind      Kind    `json:"kind"`
	Summary   string  `json:"summary"`
	At        string  `json:"at"`
	Fields    []Field `json:"fields,omitempty"`
	Generated string  `json:"generated_at"`
}

// Webhook posts alerts as JSON.
type Webhook struct {
	logger zerolog.Logger
	source string
	poster *httpPoster
}

// NewWebhook creates a Webhook notifier, or returns nil when url is empty.
func NewWebhook(logger zerolog.Logger, url, source string) *Webhook {
	if url == "" {
		return nil
	}
	if source == "" {
		source = "drip-controller"
	}
	return &Webhook{
		logger: logger,
		source: source,
		poster: newHTTPPoster(logger, "webhook", url, "application/json", defaultTiming),
	}
}

// Notify implements Notifier.
func (n *Webhook) Notify(ctx context.Context, alert Alert) error {
	if n == nil {
		return nil
	}
	if err := n.poster.waitForRateLimit(ctx, alert.Kind); err != nil {
		return err
	}

	payload, err := json.Marshal(WebhookPayload{
		Source:    n.source,
		Kind:      alert.Kind,
		Summary:   alert.Summary,
		At:        alert.At.UTC().Format(time.RFC3339),
		Fields:    alert.Fields,
		Generated: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	if err := n.poster.postWithRetry(ctx, payload); err != nil {
		return err
	}

	n.logger.Debug().Str("kind", string(alert.Kind)).Msg("webhook notification sent")
	return nil
}
