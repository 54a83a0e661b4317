// Package safety implements the flood interlock: independent safety
// switches that force the main tank pump off and veto watering for a
// cooldown window.
package safety

import (
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/sweeney/drip-controller/internal/gpio"
	"github.com/sweeney/drip-controller/internal/history"
)

// DefaultReenableInterval is how long watering stays vetoed after a trip.
const DefaultReenableInterval = 3 * time.Hour

// State is a point-in-time view of the interlock.
// ReenableAt is set iff Active and a re-enable timer is pending.
type State struct {
	Active     bool
	ReenableAt *time.Time
}

// Trip describes one unsafe check.
type Trip struct {
	At time.Time
	// Unsafe lists the indices of switches that read unsafe or failed.
	Unsafe []int
	// First is true when the interlock was inactive before this trip.
	First      bool
	ReenableAt time.Time
}

// Timer is the subset of *time.Timer the interlock needs.
type Timer interface {
	Stop() bool
}

// Interlock monitors the safety switches. Safe for concurrent use.
type Interlock struct {
	switches  []gpio.Pin
	pump      gpio.Pin
	log       *history.ShutdownLog
	reenable  time.Duration
	now       func() time.Time
	afterFunc func(time.Duration, func()) Timer
	onTrip    func(Trip)
	logger    zerolog.Logger

	mu         sync.Mutex
	active     bool
	reenableAt *time.Time
	timer      Timer
}

// Option customizes an Interlock.
type Option func(*Interlock)

// WithReenableInterval overrides the cooldown window.
func WithReenableInterval(d time.Duration) Option {
	return func(l *Interlock) {
		l.reenable = d
	}
}

// WithClock overrides time sources, for tests.
func WithClock(now func() time.Time, afterFunc func(time.Duration, func()) Timer) Option {
	return func(l *Interlock) {
		if now != nil {
			l.now = now
		}
		if afterFunc != nil {
			l.afterFunc = afterFunc
		}
	}
}

// WithTripHandler registers a callback invoked after every trip,
// outside the interlock's lock.
func WithTripHandler(fn func(Trip)) Option {
	return func(l *Interlock) {
		l.onTrip = fn
	}
}

// New creates an Interlock over the given switches guarding pump.
func New(switches []gpio.Pin, pump gpio.Pin, log *history.ShutdownLog, logger zerolog.Logger, opts ...Option) *Interlock {
	l := &Interlock{
		switches: switches,
		pump:     pump,
		log:      log,
		reenable: DefaultReenableInterval,
		now:      time.Now,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		logger: logger.With().Str("component", "safety").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check reads every switch. Safe is logic low; a failed read counts as
// unsafe. On an unsafe reading the interlock trips and Check returns true.
func (l *Interlock) Check() bool {
	var unsafe []int
	for i, sw := range l.switches {
		level, err := sw.Read()
		if err != nil {
			l.logger.Warn().Err(err).Int("switch", i).Msg("safety switch read failed, treating as unsafe")
			unsafe = append(unsafe, i)
			continue
		}
		if level != gpio.Low {
			unsafe = append(unsafe, i)
		}
	}
	if len(unsafe) == 0 {
		return false
	}
	l.trip(unsafe)
	return true
}

func (l *Interlock) trip(unsafe []int) {
	at := l.now()

	l.mu.Lock()
	first := !l.active
	l.active = true

	// Force the main pump off before anything else; the write is safe no
	// matter what the actuator is doing.
	if err := l.pump.Write(gpio.High); err != nil {
		l.logger.Error().Err(err).Msg("failed to force main pump off")
	}

	if l.log != nil {
		l.log.Record(at)
	}

	if l.reenableAt == nil {
		reenableAt := at.Add(l.reenable)
		l.reenableAt = &reenableAt
		l.timer = l.afterFunc(l.reenable, l.clear)
	}
	trip := Trip{
		At:         at,
		Unsafe:     unsafe,
		First:      first,
		ReenableAt: *l.reenableAt,
	}
	l.mu.Unlock()

	event := l.logger.Warn()
	if first {
		event = l.logger.Error()
	}
	event.Ints("unsafe_switches", unsafe).
		Bool("first", first).
		Time("reenable_at", trip.ReenableAt).
		Str("reenable_in", humanize.RelTime(trip.ReenableAt, at, "ago", "from now")).
		Msg("safety interlock tripped")

	if l.onTrip != nil {
		l.onTrip(trip)
	}
}

func (l *Interlock) clear() {
	l.mu.Lock()
	l.active = false
	l.reenableAt = nil
	l.timer = nil
	l.mu.Unlock()
	l.logger.Info().Msg("safety interlock re-enabled watering")
}

// Active reports whether watering is currently vetoed.
func (l *Interlock) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// State returns a snapshot of the interlock.
func (l *Interlock) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := State{Active: l.active}
	if l.reenableAt != nil {
		at := *l.reenableAt
		s.ReenableAt = &at
	}
	return s
}

// Stop cancels a pending re-enable timer. The interlock stays in its
// current state; used at process shutdown.
func (l *Interlock) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timer != nil {
		l.timer.Stop()
	}
}
