// Package controller ties the irrigation components together: it owns
// their state, runs each cycle kind under a single-flight guard, and
// reports outcomes to telemetry, metrics, alerts and the status tracker.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sweeney/drip-controller/internal/climate"
	"github.com/sweeney/drip-controller/internal/gpio"
	"github.com/sweeney/drip-controller/internal/history"
	"github.com/sweeney/drip-controller/internal/metrics"
	"github.com/sweeney/drip-controller/internal/moisture"
	"github.com/sweeney/drip-controller/internal/mqtt"
	"github.com/sweeney/drip-controller/internal/notify"
	"github.com/sweeney/drip-controller/internal/persist"
	"github.com/sweeney/drip-controller/internal/safety"
	"github.com/sweeney/drip-controller/internal/status"
	"github.com/sweeney/drip-controller/internal/thermal"
	"github.com/sweeney/drip-controller/internal/watering"
)

// Cycle names a periodic job.
type Cycle string

const (
	CycleIrrigation Cycle = "irrigation"
	CycleThermal    Cycle = "thermal"
	CycleSafety     Cycle = "safety"
	CycleFlush      Cycle = "flush"
	CycleHeartbeat  Cycle = "heartbeat"
)

var allCycles = []Cycle{CycleIrrigation, CycleThermal, CycleSafety, CycleFlush, CycleHeartbeat}

const (
	DefaultDayIrrigationLimit = 2
	DefaultWindowStartHour    = 8
	DefaultWindowEndHour      = 23
	DefaultSelfTestPulse      = time.Second

	alertTimeout = 2 * time.Minute
	flushTimeout = 10 * time.Second
)

// Hardware is every pin the controller drives or reads.
type Hardware struct {
	MainPump      gpio.Pin
	TankLevel     gpio.Pin
	Fan           gpio.Pin
	MoisturePower gpio.Pin
	Moisture      []gpio.Pin
	PotPumps      []gpio.Pin
	TopPower      gpio.Pin
	TopSensor     gpio.Pin
	BottomPower   gpio.Pin
	BottomSensor  gpio.Pin
	Safety        []gpio.Pin
}

// Config holds the control parameters.
type Config struct {
	DayIrrigationLimit int
	// Irrigation runs only when the local hour is within
	// [WindowStartHour, WindowEndHour], both inclusive.
	WindowStartHour  int
	WindowEndHour    int
	HistoryCapacity  int
	ShutdownCapacity int
	SafetyReenable   time.Duration
	SelfTestPulse    time.Duration

	MoistureSettle    time.Duration
	MoistureInterRead time.Duration

	Watering watering.Config
	Thermal  thermal.Config
}

// DefaultConfig returns the production parameters.
func DefaultConfig() Config {
	return Config{
		DayIrrigationLimit: DefaultDayIrrigationLimit,
		WindowStartHour:    DefaultWindowStartHour,
		WindowEndHour:      DefaultWindowEndHour,
		HistoryCapacity:    history.DefaultCapacity,
		ShutdownCapacity:   history.DefaultShutdownCapacity,
		SafetyReenable:     safety.DefaultReenableInterval,
		SelfTestPulse:      DefaultSelfTestPulse,
		MoistureSettle:     moisture.DefaultSettle,
		MoistureInterRead:  moisture.DefaultInterRead,
		Watering:           watering.DefaultConfig(),
		Thermal:            thermal.Config{StartCoolingC: thermal.DefaultStartCoolingC},
	}
}

// Deps are the optional collaborators. Nil fields are replaced with
// no-ops.
type Deps struct {
	Sink       persist.Sink
	Publisher  mqtt.Publisher
	Connection mqtt.ConnectionStatus
	Notifier   notify.Notifier
	Metrics    *metrics.Metrics
	Tracker    *status.Tracker
	Network    func() *status.NetworkInfo

	Now   func() time.Time
	NewID func() string

	SafetyOptions []safety.Option
}

// State owns every component for the lifetime of the process.
type State struct {
	cfg Config
	hw  Hardware

	sampler   *moisture.Sampler
	interlock *safety.Interlock
	actuator  *watering.Actuator
	thermal   *thermal.Controller
	history   *history.Store
	shutdowns *history.ShutdownLog

	sink       persist.Sink
	publisher  mqtt.Publisher
	connection mqtt.ConnectionStatus
	notifier   notify.Notifier
	metrics    *metrics.Metrics
	tracker    *status.Tracker
	network    func() *status.NetworkInfo

	now    func() time.Time
	newID  func() string
	logger zerolog.Logger

	guards map[Cycle]*sync.Mutex
	alerts sync.WaitGroup

	flushMu      sync.Mutex
	flushFailing bool

	// Unix nanoseconds of the last safety check, or of New.
	lastSafety atomic.Int64
}

// New validates hw against cfg and builds every component.
func New(hw Hardware, sensor climate.Sensor, cfg Config, deps Deps, logger zerolog.Logger) (*State, error) {
	if err := validateHardware(hw); err != nil {
		return nil, err
	}
	if cfg.DayIrrigationLimit < 0 {
		return nil, fmt.Errorf("day irrigation limit must not be negative")
	}

	s := &State{
		cfg:        cfg,
		hw:         hw,
		history:    history.NewStore(cfg.HistoryCapacity, len(hw.PotPumps)),
		shutdowns:  history.NewShutdownLog(cfg.ShutdownCapacity),
		sink:       deps.Sink,
		publisher:  deps.Publisher,
		connection: deps.Connection,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		tracker:    deps.Tracker,
		network:    deps.Network,
		now:        deps.Now,
		newID:      deps.NewID,
		logger:     logger.With().Str("component", "controller").Logger(),
		guards:     make(map[Cycle]*sync.Mutex, len(allCycles)),
	}
	for _, c := range allCycles {
		s.guards[c] = &sync.Mutex{}
	}
	if s.sink == nil {
		s.sink = persist.Noop{}
	}
	if s.notifier == nil {
		s.notifier = notify.NewNoop(logger, "")
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.NewString() }
	}
	s.lastSafety.Store(s.now().UnixNano())

	s.sampler = moisture.NewSampler(hw.MoisturePower, hw.Moisture, logger,
		moisture.WithTiming(cfg.MoistureSettle, cfg.MoistureInterRead))

	safetyOpts := []safety.Option{
		safety.WithReenableInterval(cfg.SafetyReenable),
		safety.WithTripHandler(s.onSafetyTrip),
	}
	s.interlock = safety.New(hw.Safety, hw.MainPump, s.shutdowns, logger,
		append(safetyOpts, deps.SafetyOptions...)...)

	s.actuator = watering.New(watering.Pins{
		MainPump:     hw.MainPump,
		TopPower:     hw.TopPower,
		TopSensor:    hw.TopSensor,
		BottomPower:  hw.BottomPower,
		BottomSensor: hw.BottomSensor,
		PotPumps:     hw.PotPumps,
	}, s.interlock, cfg.Watering, logger)

	s.thermal = thermal.New(sensor, hw.Fan, cfg.Thermal, logger)
	return s, nil
}

func validateHardware(hw Hardware) error {
	var errs []error
	required := map[string]gpio.Pin{
		"main pump":           hw.MainPump,
		"tank level":          hw.TankLevel,
		"fan":                 hw.Fan,
		"moisture power":      hw.MoisturePower,
		"top sensor power":    hw.TopPower,
		"top sensor":          hw.TopSensor,
		"bottom sensor power": hw.BottomPower,
		"bottom sensor":       hw.BottomSensor,
	}
	for name, pin := range required {
		if pin == nil {
			errs = append(errs, fmt.Errorf("%s pin missing", name))
		}
	}
	if len(hw.PotPumps) == 0 {
		errs = append(errs, errors.New("no pot pumps"))
	}
	if len(hw.Moisture) != len(hw.PotPumps) {
		errs = append(errs, fmt.Errorf("%d moisture sensors for %d pot pumps", len(hw.Moisture), len(hw.PotPumps)))
	}
	if len(hw.Safety) == 0 {
		errs = append(errs, errors.New("no safety switches"))
	}
	return errors.Join(errs...)
}

// Restore reloads persisted history. Missing snapshots are not an error.
func (s *State) Restore(loader persist.Loader) error {
	var errs []error

	var entries []history.Entry
	switch err := loader.Load(history.MoistureHistoryName, &entries); {
	case err == nil:
		s.history.Restore(entries)
	case !errors.Is(err, persist.ErrNotFound):
		errs = append(errs, err)
	}

	var shutdowns []history.ShutdownEntry
	switch err := loader.Load(history.ShutdownLogName, &shutdowns); {
	case err == nil:
		s.shutdowns.Restore(shutdowns)
	case !errors.Is(err, persist.ErrNotFound):
		errs = append(errs, err)
	}

	s.logger.Info().
		Int("moisture_entries", s.history.Len()).
		Int("shutdown_entries", s.shutdowns.Len()).
		Msg("history restored")
	return errors.Join(errs...)
}

// History returns the moisture history store.
func (s *State) History() *history.Store { return s.history }

// Shutdowns returns the safety shutdown log.
func (s *State) Shutdowns() *history.ShutdownLog { return s.shutdowns }

// Interlock returns the safety interlock.
func (s *State) Interlock() *safety.Interlock { return s.interlock }

// Thermal returns the thermal controller.
func (s *State) Thermal() *thermal.Controller { return s.thermal }

// InWindow reports whether irrigation may run at t.
func (s *State) InWindow(t time.Time) bool {
	h := history.LocalHour(t)
	return h >= s.cfg.WindowStartHour && h <= s.cfg.WindowEndHour
}

// WaitAlerts blocks until in-flight alert deliveries finish.
func (s *State) WaitAlerts() {
	s.alerts.Wait()
}

func (s *State) alert(a notify.Alert) {
	s.alerts.Add(1)
	go func() {
		defer s.alerts.Done()
		ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, a); err != nil {
			s.logger.Warn().Err(err).Str("kind", string(a.Kind)).Msg("alert delivery failed")
		}
	}()
}
