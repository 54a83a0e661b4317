package watering

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sweeney/drip-controller/internal/clock"
	"github.com/sweeney/drip-controller/internal/gpio"
)

// Pins wires the actuator to hardware. Pumps are active-low relays
// (HIGH = off); sensor power lines are active-high.
type Pins struct {
	MainPump gpio.Pin

	// Small-tank top sensor: reads low once the small tank is full.
	TopPower  gpio.Pin
	TopSensor gpio.Pin

	// Small-tank bottom sensor: reads high once the small tank has
	// drained into the pot being filled.
	BottomPower  gpio.Pin
	BottomSensor gpio.Pin

	PotPumps []gpio.Pin
}

// Actuator runs one refill or pot fill at a time. Callers serialize
// invocations; the main pump may still be forced off by the interlock
// from another goroutine at any moment.
type Actuator struct {
	pins      Pins
	interlock Interlock
	cfg       Config
	logger    zerolog.Logger
}

// New creates an Actuator.
func New(pins Pins, interlock Interlock, cfg Config, logger zerolog.Logger) *Actuator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Actuator{
		pins:      pins,
		interlock: interlock,
		cfg:       cfg,
		logger:    logger.With().Str("component", "watering").Logger(),
	}
}

// RefillTank fills the small reservoir from the main tank.
// It is rejected without any pin activity while the interlock is active.
func (a *Actuator) RefillTank(ctx context.Context) Result {
	if a.interlock != nil && a.interlock.Active() {
		a.logger.Warn().Msg("tank refill rejected, interlock active")
		return Result{Outcome: OutcomeInterlocked}
	}
	return a.run(ctx, fillSpec{
		name:        "tank_refill",
		pump:        a.pins.MainPump,
		sensorPower: a.pins.TopPower,
		sensor:      a.pins.TopSensor,
		edge:        gpio.EdgeFalling,
		complete:    gpio.Low,
		timeout:     a.cfg.RefillTimeout,
	})
}

// FillPot runs pot's pump until the small tank drains or the cap expires.
func (a *Actuator) FillPot(ctx context.Context, pot int) Result {
	if pot < 0 || pot >= len(a.pins.PotPumps) {
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("%w: %d", ErrUnknownPot, pot)}
	}
	if a.interlock != nil && a.interlock.Active() {
		a.logger.Warn().Int("pot", pot).Msg("pot fill rejected, interlock active")
		return Result{Outcome: OutcomeInterlocked}
	}
	return a.run(ctx, fillSpec{
		name:        "pot_fill",
		pot:         pot,
		pump:        a.pins.PotPumps[pot],
		sensorPower: a.pins.BottomPower,
		sensor:      a.pins.BottomSensor,
		edge:        gpio.EdgeRising,
		complete:    gpio.High,
		timeout:     a.cfg.PotFillTimeout,
	})
}

// Pots returns the number of pot pumps.
func (a *Actuator) Pots() int {
	return len(a.pins.PotPumps)
}

type fillSpec struct {
	name        string
	pot         int
	pump        gpio.Pin
	sensorPower gpio.Pin
	sensor      gpio.Pin
	edge        gpio.Edge
	complete    gpio.Level
	timeout     time.Duration
}

// completion carries the edge from the pin's event goroutine to the
// polling loop. Once closed, late edges are ignored.
type completion struct {
	mu        sync.Mutex
	pump      gpio.Pin
	want      gpio.Level
	interlock Interlock
	fired     bool
	closed    bool
	done      chan struct{}
}

func newCompletion(pump gpio.Pin, want gpio.Level, interlock Interlock) *completion {
	return &completion{pump: pump, want: want, interlock: interlock, done: make(chan struct{}, 1)}
}

func (c *completion) handle(level gpio.Level) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.fired || level != c.want {
		return
	}
	c.fired = true
	_ = c.pump.Write(gpio.High)
	c.done <- struct{}{}
}

func (c *completion) vetoed() bool {
	return c.interlock != nil && c.interlock.Active()
}

// energize starts the pump unless the edge already fired or the interlock
// is active. It returns an empty Outcome once the pump is running. A trip
// that lands between the check and the write is caught by the second
// check, since the interlock sets Active before forcing the pump off.
func (c *completion) energize() (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fired {
		return OutcomeFull, nil
	}
	if c.vetoed() {
		return OutcomeInterlocked, nil
	}
	if err := c.pump.Write(gpio.Low); err != nil {
		return "", err
	}
	if c.vetoed() {
		_ = c.pump.Write(gpio.High)
		return OutcomeInterlocked, nil
	}
	return "", nil
}

func (c *completion) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (a *Actuator) run(ctx context.Context, job fillSpec) (res Result) {
	logger := a.logger.With().Str("op", job.name).Logger()
	if job.name == "pot_fill" {
		logger = logger.With().Int("pot", job.pot).Logger()
	}
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		event := logger.Info()
		if res.Outcome != OutcomeFull {
			event = logger.Warn()
		}
		event.Str("outcome", string(res.Outcome)).
			Int("ticks", res.Ticks).
			Dur("duration", res.Duration).
			Err(res.Err).
			Msg("fill finished")
	}()

	if err := job.sensorPower.Write(gpio.High); err != nil {
		_ = job.sensorPower.Write(gpio.Low)
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("energize sensor: %w", err)}
	}
	defer func() {
		if err := job.sensorPower.Write(gpio.Low); err != nil {
			logger.Error().Err(err).Msg("failed to de-energize sensor")
		}
	}()

	if err := clock.Sleep(ctx, a.cfg.Settle); err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}
	if a.interlock != nil && a.interlock.Active() {
		logger.Warn().Msg("interlock tripped during settle, pump not started")
		return Result{Outcome: OutcomeInterlocked}
	}

	// Already at the target level: the edge would never come.
	if level, err := job.sensor.Read(); err == nil && level == job.complete {
		logger.Debug().Msg("level already reached, pump not started")
		return Result{Outcome: OutcomeFull}
	}

	c := newCompletion(job.pump, job.complete, a.interlock)
	if err := job.sensor.Watch(job.edge, c.handle); err != nil {
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("watch sensor: %w", err)}
	}
	defer func() {
		c.close()
		if err := job.sensor.Unwatch(); err != nil {
			logger.Error().Err(err).Msg("failed to unwatch sensor")
		}
		if err := job.pump.Write(gpio.High); err != nil {
			logger.Error().Err(err).Msg("failed to force pump off")
		}
	}()

	outcome, err := c.energize()
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("energize pump: %w", err)}
	}
	if outcome != "" {
		return Result{Outcome: outcome}
	}

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	maxTicks := TickCap(job.timeout, a.cfg.PollInterval)
	for tick := 0; tick < maxTicks; tick++ {
		select {
		case <-c.done:
			return Result{Outcome: OutcomeFull, Ticks: tick}
		case <-ctx.Done():
			return Result{Outcome: OutcomeFailed, Ticks: tick, Err: ctx.Err()}
		case <-ticker.C:
		}
		if a.interlock != nil && a.interlock.Active() {
			_ = job.pump.Write(gpio.High)
			return Result{Outcome: OutcomeInterlocked, Ticks: tick + 1}
		}
	}

	select {
	case <-c.done:
		return Result{Outcome: OutcomeFull, Ticks: maxTicks}
	default:
	}
	return Result{Outcome: OutcomeTimedOut, Ticks: maxTicks}
}
