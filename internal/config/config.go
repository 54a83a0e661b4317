// Package config loads daemon configuration from DRIP_ environment
// variables, an optional .env file and an optional YAML pin map.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sweeney/drip-controller/internal/climate"
	"github.com/sweeney/drip-controller/internal/controller"
	"github.com/sweeney/drip-controller/internal/safety"
	"github.com/sweeney/drip-controller/internal/thermal"
	"github.com/sweeney/drip-controller/internal/watering"
)

const (
	envIrrigationInterval = "DRIP_IRRIGATION_INTERVAL"
	envThermalInterval    = "DRIP_THERMAL_INTERVAL"
	envSafetyInterval     = "DRIP_SAFETY_INTERVAL"
	envFlushInterval      = "DRIP_FLUSH_INTERVAL"
	envHeartbeatInterval  = "DRIP_HEARTBEAT_INTERVAL"
	envDayLimit           = "DRIP_DAY_IRRIGATION_LIMIT"
	envWindowStart        = "DRIP_WINDOW_START_HOUR"
	envWindowEnd          = "DRIP_WINDOW_END_HOUR"
	envCoolingLimit       = "DRIP_START_COOLING_TEMPERATURE"
	envHysteresis         = "DRIP_COOLING_HYSTERESIS"
	envReenable           = "DRIP_SAFETY_REENABLE"
	envManualPause        = "DRIP_MANUAL_PAUSE"
	envRefillTimeout      = "DRIP_REFILL_TIMEOUT"
	envPotFillTimeout     = "DRIP_POT_FILL_TIMEOUT"
	envBroker             = "DRIP_MQTT_BROKER"
	envClientID           = "DRIP_MQTT_CLIENT_ID"
	envDBPath             = "DRIP_DB_PATH"
	envHTTPAddr           = "DRIP_HTTP_ADDR"
	envWebhookURL         = "DRIP_WEBHOOK_URL"
	envSlackWebhookURL    = "DRIP_SLACK_WEBHOOK_URL"
	envClimateDevice      = "DRIP_CLIMATE_DEVICE"
	envPinsFile           = "DRIP_PINS_FILE"
)

const (
	DefaultManualPause = 60 * time.Second
	DefaultBroker      = "tcp://localhost:1883"
	DefaultClientID    = "drip-controller"
	DefaultDBPath      = "/var/lib/drip-controller/history.db"
	DefaultHTTPAddr    = ":8080"
)

// Config describes runtime configuration.
type Config struct {
	Intervals controller.Intervals

	DayIrrigationLimit int
	WindowStartHour    int
	WindowEndHour      int
	StartCoolingC      float64
	CoolingHysteresisC float64
	SafetyReenable     time.Duration
	ManualPause        time.Duration
	RefillTimeout      time.Duration
	PotFillTimeout     time.Duration

	Broker          string
	ClientID        string
	DBPath          string
	HTTPAddr        string
	WebhookURL      string
	SlackWebhookURL string
	ClimateDevice   string

	Pins Pins
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Intervals:          controller.DefaultIntervals(),
		DayIrrigationLimit: controller.DefaultDayIrrigationLimit,
		WindowStartHour:    controller.DefaultWindowStartHour,
		WindowEndHour:      controller.DefaultWindowEndHour,
		StartCoolingC:      thermal.DefaultStartCoolingC,
		SafetyReenable:     safety.DefaultReenableInterval,
		ManualPause:        DefaultManualPause,
		RefillTimeout:      watering.DefaultRefillTimeout,
		PotFillTimeout:     watering.DefaultPotFillTimeout,
		Broker:             DefaultBroker,
		ClientID:           DefaultClientID,
		DBPath:             DefaultDBPath,
		HTTPAddr:           DefaultHTTPAddr,
		ClimateDevice:      climate.DefaultIIODevice,
		Pins:               DefaultPins(),
	}
}

// Load reads configuration from environment variables and a local .env file if present.
// Existing environment variables take precedence over values in .env.
func Load() (Config, error) {
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return Config{}, err
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	cfg := Default()

	durations := []struct {
		key string
		dst *time.Duration
		// zero disables the cycle instead of being rejected
		allowZero bool
	}{
		{envIrrigationInterval, &cfg.Intervals.Irrigation, false},
		{envThermalInterval, &cfg.Intervals.Thermal, false},
		{envSafetyInterval, &cfg.Intervals.Safety, false},
		{envFlushInterval, &cfg.Intervals.Flush, false},
		{envHeartbeatInterval, &cfg.Intervals.Heartbeat, true},
		{envReenable, &cfg.SafetyReenable, false},
		{envManualPause, &cfg.ManualPause, false},
		{envRefillTimeout, &cfg.RefillTimeout, false},
		{envPotFillTimeout, &cfg.PotFillTimeout, false},
	}
	for _, d := range durations {
		value, ok := lookupTrimmed(d.key)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if parsed < 0 || (parsed == 0 && !d.allowZero) {
			return Config{}, fmt.Errorf("%s must be greater than zero", d.key)
		}
		*d.dst = parsed
	}

	ints := []struct {
		key string
		dst *int
	}{
		{envDayLimit, &cfg.DayIrrigationLimit},
		{envWindowStart, &cfg.WindowStartHour},
		{envWindowEnd, &cfg.WindowEndHour},
	}
	for _, i := range ints {
		value, ok := lookupTrimmed(i.key)
		if !ok {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", i.key, err)
		}
		*i.dst = parsed
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{envCoolingLimit, &cfg.StartCoolingC},
		{envHysteresis, &cfg.CoolingHysteresisC},
	}
	for _, f := range floats {
		value, ok := lookupTrimmed(f.key)
		if !ok {
			continue
		}
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", f.key, err)
		}
		*f.dst = parsed
	}

	strs := []struct {
		key string
		dst *string
	}{
		{envBroker, &cfg.Broker},
		{envClientID, &cfg.ClientID},
		{envDBPath, &cfg.DBPath},
		{envHTTPAddr, &cfg.HTTPAddr},
		{envWebhookURL, &cfg.WebhookURL},
		{envSlackWebhookURL, &cfg.SlackWebhookURL},
		{envClimateDevice, &cfg.ClimateDevice},
	}
	for _, s := range strs {
		if value, ok := lookupTrimmed(s.key); ok {
			*s.dst = value
		}
	}

	if path, ok := lookupTrimmed(envPinsFile); ok && path != "" {
		pins, err := LoadPinsFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg.Pins = pins
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	if c.DayIrrigationLimit < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", envDayLimit))
	}
	if c.WindowStartHour < 0 || c.WindowStartHour > 23 {
		errs = append(errs, fmt.Errorf("%s must be within 0..23", envWindowStart))
	}
	if c.WindowEndHour < 0 || c.WindowEndHour > 23 {
		errs = append(errs, fmt.Errorf("%s must be within 0..23", envWindowEnd))
	}
	if c.WindowStartHour > c.WindowEndHour {
		errs = append(errs, fmt.Errorf("irrigation window start %d is after end %d", c.WindowStartHour, c.WindowEndHour))
	}
	if c.CoolingHysteresisC < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", envHysteresis))
	}
	iv := c.Intervals
	if iv.Irrigation <= 0 || iv.Thermal <= 0 || iv.Safety <= 0 || iv.Flush <= 0 {
		errs = append(errs, errors.New("cycle intervals must be greater than zero"))
	}
	if iv.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", envHeartbeatInterval))
	}
	if err := c.Pins.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Controller returns the control parameters for controller.New.
func (c Config) Controller() controller.Config {
	cc := controller.DefaultConfig()
	cc.DayIrrigationLimit = c.DayIrrigationLimit
	cc.WindowStartHour = c.WindowStartHour
	cc.WindowEndHour = c.WindowEndHour
	cc.SafetyReenable = c.SafetyReenable
	cc.Watering.RefillTimeout = c.RefillTimeout
	cc.Watering.PotFillTimeout = c.PotFillTimeout
	cc.Thermal.StartCoolingC = c.StartCoolingC
	cc.Thermal.HysteresisC = c.CoolingHysteresisC
	return cc
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func loadDotEnvIfPresent(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return nil
	}

	return err
}
