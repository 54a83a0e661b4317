// Package moisture reads the per-pot soil moisture sensors.
package moisture

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sweeney/drip-controller/internal/clock"
	"github.com/sweeney/drip-controller/internal/gpio"
	"github.com/sweeney/drip-controller/internal/history"
)

const (
	DefaultSettle    = 100 * time.Millisecond
	DefaultInterRead = 50 * time.Millisecond
)

// Result is one sampling window. Failed lists pot indices whose read
// failed; those pots are reported dry.
type Result struct {
	Snapshot history.MoistureSnapshot
	Failed   []int
}

// Sampler powers the shared sense line and reads every sensor in order.
type Sampler struct {
	power     gpio.Pin
	sensors   []gpio.Pin
	settle    time.Duration
	interRead time.Duration
	logger    zerolog.Logger
}

// Option customizes a Sampler.
type Option func(*Sampler)

// WithTiming overrides the settle and inter-read delays.
func WithTiming(settle, interRead time.Duration) Option {
	return func(s *Sampler) {
		s.settle = settle
		s.interRead = interRead
	}
}

// NewSampler creates a Sampler for sensors sharing the power line.
func NewSampler(power gpio.Pin, sensors []gpio.Pin, logger zerolog.Logger, opts ...Option) *Sampler {
	s := &Sampler{
		power:     power,
		sensors:   sensors,
		settle:    DefaultSettle,
		interRead: DefaultInterRead,
		logger:    logger.With().Str("component", "moisture").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sample energizes the sense line, waits for it to settle, reads each
// sensor with a short gap to avoid cross-talk, and de-energizes the line
// on every exit path. Dry is logic high.
func (s *Sampler) Sample(ctx context.Context) (res Result, err error) {
	if err := s.power.Write(gpio.High); err != nil {
		_ = s.power.Write(gpio.Low)
		return Result{}, fmt.Errorf("energize sense line: %w", err)
	}
	defer func() {
		if offErr := s.power.Write(gpio.Low); offErr != nil {
			s.logger.Error().Err(offErr).Msg("failed to de-energize sense line")
			if err == nil {
				err = fmt.Errorf("de-energize sense line: %w", offErr)
			}
		}
	}()

	if err := clock.Sleep(ctx, s.settle); err != nil {
		return Result{}, err
	}

	res.Snapshot = make(history.MoistureSnapshot, len(s.sensors))
	for i, sensor := range s.sensors {
		if i > 0 {
			if err := clock.Sleep(ctx, s.interRead); err != nil {
				return Result{}, err
			}
		}
		level, readErr := sensor.Read()
		if readErr != nil {
			s.logger.Warn().Err(readErr).Int("pot", i).Msg("moisture read failed, assuming dry")
			res.Snapshot[i] = true
			res.Failed = append(res.Failed, i)
			continue
		}
		res.Snapshot[i] = level == gpio.High
	}
	return res, nil
}

// Pots returns the number of sensors.
func (s *Sampler) Pots() int {
	return len(s.sensors)
}
