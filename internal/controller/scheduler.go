package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	DefaultIrrigationInterval = 2 * time.Hour
	DefaultThermalInterval    = 15 * time.Minute
	DefaultSafetyInterval     = 5 * time.Second
	DefaultFlushInterval      = time.Minute
	DefaultHeartbeatInterval  = 15 * time.Minute

	shutdownTimeout = 30 * time.Second
)

// Intervals sets the cadence of each cycle. A zero interval disables the
// cycle's timer.
type Intervals struct {
	Irrigation time.Duration
	Thermal    time.Duration
	Safety     time.Duration
	Flush      time.Duration
	Heartbeat  time.Duration
}

// DefaultIntervals returns the production cadences.
func DefaultIntervals() Intervals {
	return Intervals{
		Irrigation: DefaultIrrigationInterval,
		Thermal:    DefaultThermalInterval,
		Safety:     DefaultSafetyInterval,
		Flush:      DefaultFlushInterval,
		Heartbeat:  DefaultHeartbeatInterval,
	}
}

func (iv Intervals) of(c Cycle) time.Duration {
	switch c {
	case CycleIrrigation:
		return iv.Irrigation
	case CycleThermal:
		return iv.Thermal
	case CycleSafety:
		return iv.Safety
	case CycleFlush:
		return iv.Flush
	case CycleHeartbeat:
		return iv.Heartbeat
	}
	return 0
}

// Scheduler runs every cycle on its own fixed interval.
type Scheduler struct {
	state     *State
	intervals Intervals
	logger    zerolog.Logger
}

// NewScheduler creates a Scheduler for state.
func NewScheduler(state *State, intervals Intervals, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		state:     state,
		intervals: intervals,
		logger:    logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run arms the timers, runs irrigation and thermal once straight away and
// blocks until ctx is cancelled. On the way out it waits for running
// cycles and shuts the hardware down.
func (sc *Scheduler) Run(ctx context.Context) error {
	cl := cronLogger{sc.logger}
	c := cron.New(
		cron.WithChain(cron.Recover(cl)),
		cron.WithLogger(cl),
	)

	launch := func(cycle Cycle) {
		if err := sc.state.RunCycle(ctx, cycle); err != nil && !errors.Is(err, ErrBusy) {
			sc.logger.Debug().Err(err).Str("cycle", string(cycle)).Msg("cycle returned error")
		}
	}

	for _, cycle := range allCycles {
		every := sc.intervals.of(cycle)
		if every <= 0 {
			sc.logger.Info().Str("cycle", string(cycle)).Msg("cycle disabled")
			continue
		}
		cycle := cycle
		c.Schedule(cron.Every(every), cron.FuncJob(func() { launch(cycle) }))
		sc.logger.Info().Str("cycle", string(cycle)).Dur("interval", every).Msg("cycle scheduled")
	}
	c.Start()

	var initial sync.WaitGroup
	for _, cycle := range []Cycle{CycleIrrigation, CycleThermal} {
		cycle := cycle
		initial.Add(1)
		go func() {
			defer initial.Done()
			defer func() {
				if r := recover(); r != nil {
					sc.logger.Error().Interface("panic", r).Str("cycle", string(cycle)).Msg("initial cycle panicked")
				}
			}()
			launch(cycle)
		}()
	}

	<-ctx.Done()
	sc.logger.Info().Msg("scheduler stopping")

	<-c.Stop().Done()
	initial.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return sc.state.Shutdown(shutdownCtx)
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
