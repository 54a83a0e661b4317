package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Noop drops alerts.
type Noop struct {
	reason string
}

// NewNoop returns a notifier that logs reason once and does nothing thereafter.
func NewNoop(logger zerolog.Logger, reason string) *Noop {
	if reason != "" {
		logger.Info().Msg(reason)
	}
	return &Noop{reason: reason}
}

// Notify implements Notifier.
func (n *Noop) Notify(context.Context, Alert) error {
	return nil
}
