// Package watchdog reports readiness and liveness to systemd.
package watchdog

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"
)

// Notifier sends sd_notify states. daemon.SdNotify in production.
type Notifier func(unsetEnvironment bool, state string) (bool, error)

// Watchdog pings systemd while the daemon is healthy.
type Watchdog struct {
	notify   Notifier
	interval time.Duration
	healthy  func() bool
	logger   zerolog.Logger
}

// New creates a Watchdog. The ping interval is half of WATCHDOG_USEC;
// when the unit has no watchdog configured, Run only sends READY and
// STOPPING. healthy may be nil.
func New(healthy func() bool, logger zerolog.Logger) *Watchdog {
	logger = logger.With().Str("component", "watchdog").Logger()
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn().Err(err).Msg("invalid systemd watchdog settings")
		interval = 0
	}
	return newWatchdog(daemon.SdNotify, interval/2, healthy, logger)
}

func newWatchdog(notify Notifier, interval time.Duration, healthy func() bool, logger zerolog.Logger) *Watchdog {
	if healthy == nil {
		healthy = func() bool { return true }
	}
	return &Watchdog{notify: notify, interval: interval, healthy: healthy, logger: logger}
}

// Run sends READY, pings until ctx is cancelled, then sends STOPPING.
func (w *Watchdog) Run(ctx context.Context) {
	w.send(daemon.SdNotifyReady)
	defer w.send(daemon.SdNotifyStopping)

	if w.interval <= 0 {
		<-ctx.Done()
		return
	}
	w.logger.Info().Dur("interval", w.interval).Msg("systemd watchdog enabled")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !w.healthy() {
				w.logger.Warn().Msg("unhealthy, withholding watchdog ping")
				continue
			}
			w.send(daemon.SdNotifyWatchdog)
		}
	}
}

func (w *Watchdog) send(state string) {
	sent, err := w.notify(false, state)
	if err != nil {
		w.logger.Warn().Err(err).Str("state", state).Msg("sd_notify failed")
		return
	}
	if !sent {
		w.logger.Debug().Str("state", state).Msg("not running under systemd")
	}
}
