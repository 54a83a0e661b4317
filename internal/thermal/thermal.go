// Package thermal switches the cooling fan from air temperature.
package thermal

import (
	"math"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sweeney/drip-controller/internal/climate"
	"github.com/sweeney/drip-controller/internal/gpio"
)

const (
	DefaultStartCoolingC   = 30.0
	DefaultHumidityJumpPct = 5.0
)

// State is the controller's view after the last successful sample.
type State struct {
	CoolingActive   bool     `json:"cooling_active"`
	LastTemperature *float64 `json:"last_temperature_c,omitempty"`
	LastHumidity    *float64 `json:"last_humidity_pct,omitempty"`
}

// Config holds the cooling thresholds.
type Config struct {
	// StartCoolingC turns cooling on when exceeded.
	StartCoolingC float64
	// HysteresisC keeps cooling on until the temperature falls to
	// StartCoolingC - HysteresisC. Zero switches at a single threshold.
	HysteresisC float64
	// HumidityJumpPct is the change between samples that gets logged.
	HumidityJumpPct float64
}

// Controller drives the fan relay (active-low) from a climate sensor.
type Controller struct {
	mu     sync.Mutex
	sensor climate.Sensor
	fan    gpio.Pin
	cfg    Config
	state  State
	logger zerolog.Logger
}

// New creates a Controller. The fan is assumed off.
func New(sensor climate.Sensor, fan gpio.Pin, cfg Config, logger zerolog.Logger) *Controller {
	if cfg.HumidityJumpPct <= 0 {
		cfg.HumidityJumpPct = DefaultHumidityJumpPct
	}
	return &Controller{
		sensor: sensor,
		fan:    fan,
		cfg:    cfg,
		logger: logger.With().Str("component", "thermal").Logger(),
	}
}

// Cycle samples once and switches the fan. A failed sample leaves the
// fan and state untouched and returns the error.
func (c *Controller) Cycle() (State, error) {
	reading, err := c.sensor.Sample()
	if err != nil {
		c.logger.Warn().Err(err).Msg("climate sample failed")
		return c.State(), err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if prev := c.state.LastHumidity; prev != nil {
		if delta := reading.HumidityPct - *prev; math.Abs(delta) > c.cfg.HumidityJumpPct {
			c.logger.Info().
				Float64("from", *prev).
				Float64("to", reading.HumidityPct).
				Msg("humidity changed sharply")
		}
	}

	cooling := c.decide(reading.TemperatureC)
	if cooling != c.state.CoolingActive {
		level := gpio.High
		if cooling {
			level = gpio.Low
		}
		if err := c.fan.Write(level); err != nil {
			c.logger.Error().Err(err).Bool("cooling", cooling).Msg("failed to switch fan")
			return c.snapshot(), err
		}
		c.logger.Info().
			Bool("cooling", cooling).
			Float64("temperature_c", reading.TemperatureC).
			Msg("cooling switched")
	}

	temp, hum := reading.TemperatureC, reading.HumidityPct
	c.state = State{CoolingActive: cooling, LastTemperature: &temp, LastHumidity: &hum}
	return c.snapshot(), nil
}

func (c *Controller) decide(tempC float64) bool {
	if tempC > c.cfg.StartCoolingC {
		return true
	}
	if c.state.CoolingActive && c.cfg.HysteresisC > 0 {
		return tempC > c.cfg.StartCoolingC-c.cfg.HysteresisC
	}
	return false
}

// Off forces the fan off and clears the cooling flag.
func (c *Controller) Off() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.CoolingActive = false
	return c.fan.Write(gpio.High)
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() State {
	s := State{CoolingActive: c.state.CoolingActive}
	if c.state.LastTemperature != nil {
		v := *c.state.LastTemperature
		s.LastTemperature = &v
	}
	if c.state.LastHumidity != nil {
		v := *c.state.LastHumidity
		s.LastHumidity = &v
	}
	return s
}
