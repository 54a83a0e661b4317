// Package watering drives the tank-refill and pot-fill state machines.
// Each run is a bounded polling loop racing an edge event from a level
// sensor, so a failed sensor can never leave a pump running.
package watering

import (
	"errors"
	"time"
)

// Outcome is the terminal state of a refill or pot fill.
type Outcome string

const (
	// OutcomeFull means the level sensor confirmed completion.
	OutcomeFull Outcome = "FULL"
	// OutcomeTimedOut means the tick cap was exhausted; the pump was forced off.
	OutcomeTimedOut Outcome = "TIMED_OUT"
	// OutcomeInterlocked means the safety interlock vetoed or stopped the run.
	OutcomeInterlocked Outcome = "INTERLOCKED"
	// OutcomeFailed means a pin operation failed or the run was cancelled.
	OutcomeFailed Outcome = "FAILED"
)

// ErrUnknownPot is returned for an out-of-range pot index.
var ErrUnknownPot = errors.New("unknown pot")

const (
	DefaultPollInterval   = 100 * time.Millisecond
	DefaultSettle         = 100 * time.Millisecond
	DefaultRefillTimeout  = 45 * time.Second
	DefaultPotFillTimeout = 60 * time.Second
)

// Config bounds the polling loops. Tick caps are timeout / poll interval.
type Config struct {
	PollInterval   time.Duration
	Settle         time.Duration
	RefillTimeout  time.Duration
	PotFillTimeout time.Duration
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		PollInterval:   DefaultPollInterval,
		Settle:         DefaultSettle,
		RefillTimeout:  DefaultRefillTimeout,
		PotFillTimeout: DefaultPotFillTimeout,
	}
}

// TickCap returns how many poll ticks fit in timeout, rounded up.
func TickCap(timeout, poll time.Duration) int {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if timeout <= 0 {
		return 0
	}
	return int((timeout + poll - 1) / poll)
}

// Result reports how a run ended.
type Result struct {
	Outcome  Outcome
	Ticks    int
	Duration time.Duration
	Err      error
}

// Interlock reports whether watering is vetoed.
type Interlock interface {
	Active() bool
}
