// Package clock holds the context-aware waits shared by the actuation code.
package clock

import (
	"context"
	"time"
)

// Sleep waits for d or until ctx is done, whichever comes first.
// A non-positive d returns immediately unless ctx is already done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
