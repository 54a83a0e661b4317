package internal

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sweeney/drip-controller/internal/climate"
	"github.com/sweeney/drip-controller/internal/config"
	"github.com/sweeney/drip-controller/internal/controller"
	"github.com/sweeney/drip-controller/internal/gpio"
	"github.com/sweeney/drip-controller/internal/metrics"
	"github.com/sweeney/drip-controller/internal/mqtt"
	"github.com/sweeney/drip-controller/internal/notify"
	"github.com/sweeney/drip-controller/internal/persist"
	"github.com/sweeney/drip-controller/internal/status"
	"github.com/sweeney/drip-controller/internal/watering"
)

// 13:00 local.
var start = time.Date(2026, 6, 1, 11, 0, 0, 0, time.UTC)

type rig struct {
	chip      *gpio.FakeChip
	pins      config.Pins
	state     *controller.State
	publisher *mqtt.FakePublisher
	notifier  *notify.FakeNotifier
	tracker   *status.Tracker
	now       time.Time
}

func newRig(t *testing.T, sink persist.Sink) *rig {
	t.Helper()
	r := &rig{
		chip:      gpio.NewFakeChip(),
		pins:      config.DefaultPins(),
		publisher: mqtt.NewFakePublisher(),
		notifier:  &notify.FakeNotifier{},
		now:       start,
	}
	r.tracker = status.NewTracker(start, status.Config{DayLimit: 2})

	// Main tank full; small tank top sensor reads not-full until pumped.
	r.chip.InputLevels[r.pins.TankLevel] = gpio.High
	r.chip.InputLevels[r.pins.TopSensor] = gpio.High

	hw, err := r.pins.Request(r.chip)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	cfg := controller.DefaultConfig()
	cfg.MoistureSettle = 0
	cfg.MoistureInterRead = 0
	cfg.Watering = watering.Config{
		PollInterval:   5 * time.Millisecond,
		Settle:         time.Millisecond,
		RefillTimeout:  2 * time.Second,
		PotFillTimeout: 2 * time.Second,
	}

	r.state, err = controller.New(hw, climate.NewFakeSensor(climate.Reading{TemperatureC: 25, HumidityPct: 50}), cfg, controller.Deps{
		Sink:      sink,
		Publisher: r.publisher,
		Notifier:  r.notifier,
		Metrics:   metrics.New(),
		Tracker:   r.tracker,
		Now:       func() time.Time { return r.now },
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("controller.New: %v", err)
	}
	t.Cleanup(r.state.Interlock().Stop)
	r.plumb()
	return r
}

func (r *rig) pin(offset int) *gpio.FakePin { return r.chip.Pin(offset) }

// plumb wires the fake level sensors to the pumps.
func (r *rig) plumb() {
	top := r.pin(r.pins.TopSensor)
	r.pin(r.pins.MainPump).OnWrite = func(level gpio.Level) {
		if level == gpio.Low {
			go func() {
				time.Sleep(5 * time.Millisecond)
				top.Trigger(gpio.Low)
			}()
			return
		}
		top.Set(gpio.High)
	}
	bottom := r.pin(r.pins.BottomSensor)
	for _, offset := range r.pins.PotPumps {
		r.pin(offset).OnWrite = func(level gpio.Level) {
			if level == gpio.Low {
				go func() {
					time.Sleep(5 * time.Millisecond)
					bottom.Trigger(gpio.High)
				}()
				return
			}
			bottom.Set(gpio.Low)
		}
	}
}

func (r *rig) setDry(dry ...bool) {
	for i, d := range dry {
		level := gpio.Low
		if d {
			level = gpio.High
		}
		r.pin(r.pins.Moisture[i]).Set(level)
	}
}

func (r *rig) wateredPots(t *testing.T) []int {
	t.Helper()
	report, err := r.state.IrrigationCycle(context.Background())
	if err != nil {
		t.Fatalf("IrrigationCycle: %v", err)
	}
	return report.WateredPots()
}

// TestIntegrationWateringAcrossRestart waters, flushes to bbolt, restarts
// and checks the daily limit still holds.
func TestIntegrationWateringAcrossRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	store, err := persist.OpenBolt(dbPath)
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}

	r := newRig(t, store)
	r.setDry(true, false, true, false, false, false)

	if got := r.wateredPots(t); len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Fatalf("first cycle watered %v, want [0 2]", got)
	}
	r.now = start.Add(2 * time.Hour)
	if got := r.wateredPots(t); len(got) != 2 {
		t.Fatalf("second cycle watered %v, want [0 2]", got)
	}

	// MQTT payloads for the first pot of the first cycle.
	events := r.publisher.WateringEvents()
	if len(events) != 12 {
		t.Fatalf("watering events = %d, want 12", len(events))
	}
	payload, err := mqtt.FormatWateringPayload(events[0])
	if err != nil {
		t.Fatalf("FormatWateringPayload: %v", err)
	}
	var wp mqtt.WateringPayload
	if err := json.Unmarshal(payload, &wp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if wp.Watering.Outcome != "FULL" || wp.Watering.Refill != "FULL" || wp.Watering.Pot != 0 {
		t.Errorf("payload = %+v", wp.Watering)
	}

	if err := r.state.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Restart.
	store, err = persist.OpenBolt(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	r2 := newRig(t, store)
	if err := r2.state.Restore(store); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if r2.state.History().Len() != 2 {
		t.Fatalf("restored history len = %d, want 2", r2.state.History().Len())
	}

	r2.now = start.Add(4 * time.Hour)
	r2.setDry(true, false, true, false, false, true)
	got := r2.wateredPots(t)
	if len(got) != 1 || got[0] != 5 {
		t.Errorf("after restart watered %v, want [5]", got)
	}

	// Next local day resets the limit.
	r2.now = start.Add(24 * time.Hour)
	if got := r2.wateredPots(t); len(got) != 3 {
		t.Errorf("next day watered %v, want three pots", got)
	}
}

// TestIntegrationInterlockStopsFill trips the flood switch while a pot is
// filling and checks the fill stops and later pots are vetoed.
func TestIntegrationInterlockStopsFill(t *testing.T) {
	r := newRig(t, persist.NewMemorySink())
	r.setDry(true, true, true, true, true, true)

	sw := r.pin(r.pins.Safety[0])
	tripped := make(chan struct{})
	r.pin(r.pins.PotPumps[0]).OnWrite = func(level gpio.Level) {
		if level == gpio.Low {
			go func() {
				defer close(tripped)
				sw.Set(gpio.High)
				r.state.SafetyCycle()
			}()
		}
	}

	report, err := r.state.IrrigationCycle(context.Background())
	<-tripped
	if !errors.Is(err, controller.ErrInterlocked) {
		t.Fatalf("err = %v, want ErrInterlocked", err)
	}
	if got := report.Pots[0].Outcome; got != string(watering.OutcomeInterlocked) {
		t.Fatalf("pot 0 outcome = %s, want INTERLOCKED", got)
	}
	for _, p := range report.Pots[1:] {
		if p.Reason != controller.ReasonInterlocked || p.Watered() {
			t.Errorf("pot %d = %s/%s, want skipped as interlocked", p.Pot, p.Outcome, p.Reason)
		}
	}
	for i, offset := range append([]int{r.pins.MainPump}, r.pins.PotPumps...) {
		if r.pin(offset).Level() != gpio.High {
			t.Errorf("pump %d left on", i)
		}
	}

	safety := r.publisher.SafetyEvents()
	if len(safety) != 1 {
		t.Fatalf("safety events = %d, want 1", len(safety))
	}
	payload, err := mqtt.FormatSafetyPayload(safety[0])
	if err != nil {
		t.Fatalf("FormatSafetyPayload: %v", err)
	}
	var sp mqtt.SafetyPayload
	if err := json.Unmarshal(payload, &sp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if sp.Safety.Event != "TRIP" || !sp.Safety.First || len(sp.Safety.Unsafe) != 1 {
		t.Errorf("safety payload = %+v", sp.Safety)
	}

	r.state.WaitAlerts()
	alerts := r.notifier.Alerts()
	if len(alerts) != 1 || alerts[0].Kind != notify.KindSafetyTrip {
		t.Errorf("alerts = %+v", alerts)
	}

	snap := r.state.StatusSnapshot()
	if !snap.Safety.Active || snap.Safety.ReenableAt == nil {
		t.Errorf("status safety = %+v", snap.Safety)
	}
	if r.state.Shutdowns().Len() != 1 {
		t.Errorf("shutdown log len = %d", r.state.Shutdowns().Len())
	}
	if r.state.History().Len() != 1 {
		t.Error("interlocked cycle not recorded")
	}
}

// TestIntegrationStatusJSON runs a cycle and renders the status document.
func TestIntegrationStatusJSON(t *testing.T) {
	r := newRig(t, persist.NewMemorySink())
	r.setDry(false, true, false, false, false, false)
	r.wateredPots(t)
	if err := r.state.ThermalCycle(); err != nil {
		t.Fatalf("ThermalCycle: %v", err)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal(status.FormatJSON(r.state.StatusSnapshot()), &sj); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(sj.Status.Pots) != 6 {
		t.Fatalf("pots = %d", len(sj.Status.Pots))
	}
	if sj.Status.Pots[1].LastOutcome != "FULL" || sj.Status.Pots[1].LastWatered == "" {
		t.Errorf("pot 1 = %+v", sj.Status.Pots[1])
	}
	if sj.Status.Pots[0].LastReason != controller.ReasonWet {
		t.Errorf("pot 0 = %+v", sj.Status.Pots[0])
	}
	if sj.Status.Thermal.TemperatureC == nil || *sj.Status.Thermal.TemperatureC != 25 {
		t.Errorf("thermal = %+v", sj.Status.Thermal)
	}
	if sj.Status.Counts.Cycles != 1 || sj.Status.Counts.Fills != 1 {
		t.Errorf("counts = %+v", sj.Status.Counts)
	}
}
