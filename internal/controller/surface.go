package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/drip-controller/internal/clock"
	"github.com/sweeney/drip-controller/internal/gpio"
)

// pulse holds a pin at on for d, then drives it to off.
func pulse(ctx context.Context, pin gpio.Pin, on, off gpio.Level, d time.Duration) error {
	if err := pin.Write(on); err != nil {
		_ = pin.Write(off)
		return err
	}
	sleepErr := clock.Sleep(ctx, d)
	if err := pin.Write(off); err != nil {
		return err
	}
	return sleepErr
}

// SelfTest pulses every actuator in turn so an operator can watch each
// relay click. The safety switches are checked first and the main pump is
// skipped while the interlock is active.
func (s *State) SelfTest(ctx context.Context) error {
	guard := s.guards[CycleIrrigation]
	if !guard.TryLock() {
		return ErrBusy
	}
	defer guard.Unlock()

	type step struct {
		name    string
		pin     gpio.Pin
		on, off gpio.Level
	}
	var steps []step
	if s.SafetyCycle() || s.interlock.Active() {
		s.logger.Warn().Msg("self-test skipping main pump, safety interlock active")
	} else {
		steps = append(steps, step{"main_pump", s.hw.MainPump, gpio.Low, gpio.High})
	}
	for i, p := range s.hw.PotPumps {
		steps = append(steps, step{fmt.Sprintf("pot_pump_%d", i), p, gpio.Low, gpio.High})
	}
	steps = append(steps,
		step{"moisture_power", s.hw.MoisturePower, gpio.High, gpio.Low},
		step{"top_sensor_power", s.hw.TopPower, gpio.High, gpio.Low},
		step{"bottom_sensor_power", s.hw.BottomPower, gpio.High, gpio.Low},
		step{"fan", s.hw.Fan, gpio.Low, gpio.High},
	)

	var errs []error
	for _, st := range steps {
		s.logger.Info().Str("actuator", st.name).Dur("pulse", s.cfg.SelfTestPulse).Msg("self-test pulse")
		if err := pulse(ctx, st.pin, st.on, st.off, s.cfg.SelfTestPulse); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error().Err(err).Str("actuator", st.name).Msg("self-test pulse failed")
			errs = append(errs, fmt.Errorf("%s: %w", st.name, err))
		}
	}
	// Leave the fan where the thermal controller last wanted it.
	if s.thermal.State().CoolingActive {
		_ = s.hw.Fan.Write(gpio.Low)
	}
	s.logger.Info().Int("actuators", len(steps)).Int("failed", len(errs)).Msg("self-test finished")
	return errors.Join(errs...)
}

// ManualPause forces every pot pump off for d, then restores the levels
// they had before. It holds the irrigation guard for the whole pause.
func (s *State) ManualPause(ctx context.Context, d time.Duration) error {
	guard := s.guards[CycleIrrigation]
	if !guard.TryLock() {
		return ErrBusy
	}
	defer guard.Unlock()

	prev := make([]gpio.Level, len(s.hw.PotPumps))
	for i, p := range s.hw.PotPumps {
		level, err := p.Read()
		if err != nil {
			level = gpio.High
		}
		prev[i] = level
		if err := p.Write(gpio.High); err != nil {
			s.logger.Error().Err(err).Int("pot", i).Msg("failed to stop pot pump")
		}
	}
	s.logger.Info().Dur("duration", d).Msg("manual pause started")

	sleepErr := clock.Sleep(ctx, d)

	var errs []error
	for i, p := range s.hw.PotPumps {
		if err := p.Write(prev[i]); err != nil {
			errs = append(errs, fmt.Errorf("restore pot pump %d: %w", i, err))
		}
	}
	s.logger.Info().Msg("manual pause finished")
	if sleepErr != nil {
		errs = append(errs, sleepErr)
	}
	return errors.Join(errs...)
}

// Shutdown stops the interlock timer, forces every pump and the fan off
// and flushes history one last time.
func (s *State) Shutdown(ctx context.Context) error {
	s.interlock.Stop()

	var errs []error
	if err := s.hw.MainPump.Write(gpio.High); err != nil {
		errs = append(errs, fmt.Errorf("main pump off: %w", err))
	}
	for i, p := range s.hw.PotPumps {
		if err := p.Write(gpio.High); err != nil {
			errs = append(errs, fmt.Errorf("pot pump %d off: %w", i, err))
		}
	}
	if err := s.thermal.Off(); err != nil {
		errs = append(errs, fmt.Errorf("fan off: %w", err))
	}
	if err := s.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	s.WaitAlerts()
	return errors.Join(errs...)
}
