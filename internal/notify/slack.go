package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

// Slack posts alerts to a Slack incoming webhook as Block Kit messages.
type Slack struct {
	logger zerolog.Logger
	timing timingConfig
	poster *httpPoster
}

// SlackOption customizes Slack behavior.
type SlackOption func(*Slack)

// WithSlackTiming overrides timing parameters (primarily for testing).
func WithSlackTiming(rateInterval time.Duration, rateBurst int, backoffInitial, backoffMax, backoffMaxElapsed time.Duration) SlackOption {
	return func(s *Slack) {
		s.timing.rateInterval = rateInterval
		s.timing.rateBurst = rateBurst
		s.timing.backoffInitial = backoffInitial
		s.timing.backoffMax = backoffMax
		s.timing.backoffMaxElapsed = backoffMaxElapsed
	}
}

// NewSlack creates a Slack notifier or a noop notifier when the webhook is empty.
func NewSlack(logger zerolog.Logger, webhookURL string, opts ...SlackOption) Notifier {
	if webhookURL == "" {
		return NewNoop(logger, "slack webhook not configured; slack alerts disabled")
	}
	n := &Slack{logger: logger, timing: defaultTiming}
	for _, opt := range opts {
		opt(n)
	}
	n.poster = newHTTPPoster(logger, "slack", webhookURL, "application/json", n.timing)
	return n
}

// Notify implements Notifier.
func (n *Slack) Notify(ctx context.Context, alert Alert) error {
	if err := n.poster.waitForRateLimit(ctx, alert.Kind); err != nil {
		return err
	}
	payload, err := json.Marshal(buildSlackMessage(alert))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	if err := n.poster.postWithRetry(ctx, payload); err != nil {
		return err
	}
	n.logger.Debug().Str("kind", string(alert.Kind)).Msg("slack notification sent")
	return nil
}

func buildSlackMessage(alert Alert) slack.WebhookMessage {
	summary := fmt.Sprintf("%s %s", kindEmoji(alert.Kind), alert.Summary)
	header := slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", summary, false, false))
	ctxBlock := slack.NewContextBlock("",
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*%s* at %s", alert.Kind, alert.At.UTC().Format(time.RFC3339)), false, false),
	)

	blocks := []slack.Block{header, ctxBlock}
	if len(alert.Fields) > 0 {
		fields := make([]*slack.TextBlockObject, 0, len(alert.Fields))
		for _, f := range alert.Fields {
			fields = append(fields, slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*%s:*\n%s", f.Name, f.Value), false, false))
		}
		blocks = append(blocks, slack.NewSectionBlock(nil, fields, nil))
	}

	return slack.WebhookMessage{
		Text:   summary,
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
}

func kindEmoji(kind Kind) string {
	switch kind {
	case KindSafetyTrip:
		return ":rotating_light:"
	case KindActuationTimeout:
		return ":hourglass:"
	default:
		return ":warning:"
	}
}
