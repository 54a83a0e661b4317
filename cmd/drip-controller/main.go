// Command drip-controller runs the drip-irrigation rig: it waters dry pots,
// drives the cooling fan, enforces the flood interlock and publishes
// telemetry to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/sweeney/drip-controller/internal/climate"
	"github.com/sweeney/drip-controller/internal/clock"
	"github.com/sweeney/drip-controller/internal/config"
	"github.com/sweeney/drip-controller/internal/controller"
	"github.com/sweeney/drip-controller/internal/gpio"
	"github.com/sweeney/drip-controller/internal/logging"
	"github.com/sweeney/drip-controller/internal/metrics"
	"github.com/sweeney/drip-controller/internal/moisture"
	"github.com/sweeney/drip-controller/internal/mqtt"
	"github.com/sweeney/drip-controller/internal/notify"
	"github.com/sweeney/drip-controller/internal/persist"
	"github.com/sweeney/drip-controller/internal/status"
	"github.com/sweeney/drip-controller/internal/watchdog"
	"github.com/sweeney/drip-controller/internal/web"
)

const serviceName = "drip-controller"

type options struct {
	printState bool
	selfTest   bool
}

func main() {
	logger := logging.NewWithLevel(os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	printState := flag.Bool("print-state", false, "Read every sensor once, print and exit")
	selfTest := flag.Bool("self-test", true, "Pulse every actuator at startup")
	flag.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "HTTP status address (empty to disable)")
	flag.StringVar(&cfg.Broker, "broker", cfg.Broker, "MQTT broker address (empty to disable)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "History database path (empty to disable)")
	flag.Parse()

	opts := options{printState: *printState, selfTest: *selfTest}
	if err := run(cfg, opts, logger); err != nil {
		logger.Fatal().Err(err).Msg("fatal")
	}
}

func run(cfg config.Config, opts options, logger zerolog.Logger) error {
	chip, err := gpio.NewRealChip(cfg.Pins.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer chip.Close()

	hw, err := cfg.Pins.Request(chip)
	if err != nil {
		return fmt.Errorf("request pins: %w", err)
	}
	sensor := climate.NewIIOSensor(cfg.ClimateDevice, climate.DefaultRetryInterval, climate.DefaultRetries)

	if opts.printState {
		return printState(context.Background(), os.Stdout, hw, sensor)
	}

	var sinks []persist.Sink
	var store *persist.BoltStore
	if cfg.DBPath != "" {
		store, err = persist.OpenBolt(cfg.DBPath)
		if err != nil {
			logger.Error().Err(err).Str("path", cfg.DBPath).Msg("history database unavailable, history will not survive restarts")
		} else {
			defer store.Close()
			sinks = append(sinks, store)
		}
	}

	var publisher mqtt.Publisher
	var connection mqtt.ConnectionStatus
	if cfg.Broker != "" {
		rp := mqtt.NewRealPublisher(cfg.Broker, cfg.ClientID, mqtt.DefaultBufferSize, logger)
		defer rp.Close()
		publisher, connection = rp, rp
		sinks = append(sinks, rp)
	}

	notifier := buildNotifier(cfg, logger)
	m := metrics.New()

	tracker := status.NewTracker(time.Now(), status.Config{
		IrrigationInterval: cfg.Intervals.Irrigation,
		ThermalInterval:    cfg.Intervals.Thermal,
		SafetyInterval:     cfg.Intervals.Safety,
		FlushInterval:      cfg.Intervals.Flush,
		HeartbeatInterval:  cfg.Intervals.Heartbeat,
		DayLimit:           cfg.DayIrrigationLimit,
		WindowStartHour:    cfg.WindowStartHour,
		WindowEndHour:      cfg.WindowEndHour,
		CoolingLimitC:      cfg.StartCoolingC,
		Broker:             cfg.Broker,
		HTTPPort:           cfg.HTTPAddr,
	})

	state, err := controller.New(hw, sensor, cfg.Controller(), controller.Deps{
		Sink:       persist.NewMulti(sinks...),
		Publisher:  publisher,
		Connection: connection,
		Notifier:   notifier,
		Metrics:    m,
		Tracker:    tracker,
		Network:    readNetworkInfo,
	}, logger)
	if err != nil {
		return fmt.Errorf("init controller: %w", err)
	}

	if store != nil {
		if err := state.Restore(store); err != nil {
			logger.Error().Err(err).Msg("failed to restore history")
		}
	}

	if opts.selfTest {
		if err := state.SelfTest(context.Background()); err != nil {
			logger.Error().Err(err).Msg("self-test reported failures")
		}
	}

	if publisher != nil {
		snap := state.StatusSnapshot()
		startup := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startup); err != nil {
			logger.Warn().Err(err).Msg("failed to publish startup event")
		} else {
			logger.Info().Msg("published startup event")
		}
	}

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, state, m.Handler(), logger)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http status server listening")
	}

	logger.Info().
		Dur("irrigation", cfg.Intervals.Irrigation).
		Dur("thermal", cfg.Intervals.Thermal).
		Dur("safety", cfg.Intervals.Safety).
		Dur("heartbeat", cfg.Intervals.Heartbeat).
		Int("day_limit", cfg.DayIrrigationLimit).
		Str("broker", cfg.Broker).
		Msg("started")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wd := watchdog.New(safetyHealth(state, cfg.Intervals.Safety), logger)
	wdDone := make(chan struct{})
	go func() {
		defer close(wdDone)
		wd.Run(ctx)
	}()
	// STOPPING must reach systemd before run returns.
	defer func() {
		cancel()
		<-wdDone
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	defer signal.Stop(sigCh)

	sched := controller.NewScheduler(state, cfg.Intervals, logger)
	return runLoop(ctx, state, sched.Run, publisher, cfg.ManualPause, sigCh, logger)
}

// safetyHealth reports the daemon unhealthy once the safety switches
// have gone unread for three safety intervals.
func safetyHealth(state *controller.State, interval time.Duration) func() bool {
	if interval <= 0 {
		return nil
	}
	return func() bool {
		return state.SafetyCheckedWithin(3 * interval)
	}
}

// runLoop runs the scheduler until SIGINT or SIGTERM. SIGUSR1 starts a
// manual pause.
func runLoop(ctx context.Context, state *controller.State, runScheduler func(context.Context) error, publisher mqtt.Publisher, pause time.Duration, sig <-chan os.Signal, logger zerolog.Logger) error {
	var pauses sync.WaitGroup
	defer pauses.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- runScheduler(ctx) }()

	for {
		select {
		case err := <-errCh:
			return err

		case s := <-sig:
			if s == syscall.SIGUSR1 {
				pauses.Add(1)
				go func() {
					defer pauses.Done()
					if err := state.ManualPause(ctx, pause); err != nil && !errors.Is(err, context.Canceled) {
						logger.Warn().Err(err).Msg("manual pause not applied")
					}
				}()
				continue
			}

			signalName := "UNKNOWN"
			switch s {
			case syscall.SIGINT:
				signalName = "SIGINT"
			case syscall.SIGTERM:
				signalName = "SIGTERM"
			}
			logger.Info().Str("signal", signalName).Msg("shutting down")

			if publisher != nil {
				snap := state.StatusSnapshot()
				event := mqtt.SystemEvent{
					Timestamp:  snap.Now,
					Event:      "SHUTDOWN",
					Reason:     signalName,
					Retained:   true,
					RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
				}
				if err := publisher.PublishSystem(event); err != nil {
					logger.Warn().Err(err).Msg("failed to publish shutdown event")
				} else {
					logger.Info().Msg("published shutdown event")
				}
			}

			cancel()
			return <-errCh
		}
	}
}

func buildNotifier(cfg config.Config, logger zerolog.Logger) notify.Notifier {
	multi := notify.NewMulti(
		notify.NewWebhook(logger, cfg.WebhookURL, serviceName),
		notify.NewSlack(logger, cfg.SlackWebhookURL),
	)
	if multi.Len() == 0 {
		return notify.NewNoop(logger, "no alert webhook configured")
	}
	return multi
}

// printState reads every sensor once and writes a line per role.
func printState(ctx context.Context, w io.Writer, hw controller.Hardware, sensor climate.Sensor) error {
	sample, err := moisture.NewSampler(hw.MoisturePower, hw.Moisture, zerolog.Nop()).Sample(ctx)
	if err != nil {
		return fmt.Errorf("read moisture: %w", err)
	}
	for pot, dry := range sample.Snapshot {
		fmt.Fprintf(w, "pot %d: %s\n", pot, wetDry(dry))
	}

	tank, err := hw.TankLevel.Read()
	fmt.Fprintf(w, "tank: %s\n", levelString(tank == gpio.High, "OK", "EMPTY", err))

	top, err := readPowered(ctx, hw.TopPower, hw.TopSensor)
	fmt.Fprintf(w, "small tank top: %s\n", levelString(top == gpio.Low, "FULL", "NOT FULL", err))
	bottom, err := readPowered(ctx, hw.BottomPower, hw.BottomSensor)
	fmt.Fprintf(w, "small tank bottom: %s\n", levelString(bottom == gpio.High, "WET", "DRY", err))

	for i, sw := range hw.Safety {
		level, err := sw.Read()
		fmt.Fprintf(w, "safety %d: %s\n", i, levelString(level == gpio.Low, "SAFE", "UNSAFE", err))
	}

	if r, err := sensor.Sample(); err != nil {
		fmt.Fprintf(w, "climate: ERROR (%v)\n", err)
	} else {
		fmt.Fprintf(w, "climate: %.1fC %.1f%%\n", r.TemperatureC, r.HumidityPct)
	}
	return nil
}

func readPowered(ctx context.Context, power, sensor gpio.Pin) (gpio.Level, error) {
	if err := power.Write(gpio.High); err != nil {
		return gpio.Low, err
	}
	defer power.Write(gpio.Low)
	if err := clock.Sleep(ctx, moisture.DefaultSettle); err != nil {
		return gpio.Low, err
	}
	return sensor.Read()
}

func wetDry(dry bool) string {
	if dry {
		return "DRY"
	}
	return "WET"
}

func levelString(ok bool, yes, no string, err error) string {
	if err != nil {
		return fmt.Sprintf("ERROR (%v)", err)
	}
	if ok {
		return yes
	}
	return no
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
