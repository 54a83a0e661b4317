package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{IrrigationInterval: 2 * time.Hour, DayLimit: 2, Broker: "tcp://localhost:1883", HTTPPort: ":80"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.DayLimit != 2 {
		t.Errorf("Config.DayLimit: got %d, want 2", snap.Config.DayLimit)
	}
	if snap.Config.HTTPPort != ":80" {
		t.Errorf("Config.HTTPPort: got %q, want %q", snap.Config.HTTPPort, ":80")
	}
	if snap.LastIrrigation != nil {
		t.Error("expected no irrigation initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestUpdateIrrigation(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	at := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	tr.UpdateIrrigation(at, "c1", false, []PotStatus{
		{Pot: 0, Dry: true, LastOutcome: "FULL", LastWatered: &at},
		{Pot: 1, Dry: false, LastOutcome: "SKIPPED", LastReason: "wet"},
		{Pot: 2, Dry: true, LastOutcome: "TIMED_OUT"},
	})

	snap := tr.Snapshot()
	if len(snap.Pots) != 3 {
		t.Fatalf("Pots: got %d, want 3", len(snap.Pots))
	}
	if snap.LastCycleID != "c1" || snap.LastIrrigation == nil || !snap.LastIrrigation.Equal(at) {
		t.Errorf("last irrigation not recorded: %+v", snap)
	}
	want := Counts{Cycles: 1, Fills: 1, Timeouts: 1, Skipped: 1}
	if snap.Counts != want {
		t.Errorf("Counts: got %+v, want %+v", snap.Counts, want)
	}
}

func TestUpdateIrrigationKeepsLastWatered(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	first := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	second := first.Add(2 * time.Hour)

	tr.UpdateIrrigation(first, "c1", false, []PotStatus{{Pot: 0, LastOutcome: "FULL", LastWatered: &first}})
	tr.UpdateIrrigation(second, "c2", false, []PotStatus{{Pot: 0, LastOutcome: "SKIPPED", LastReason: "wet"}})

	p := tr.Snapshot().Pots[0]
	if p.LastWatered == nil || !p.LastWatered.Equal(first) {
		t.Errorf("LastWatered: got %v, want %v", p.LastWatered, first)
	}
	if p.LastOutcome != "SKIPPED" {
		t.Errorf("LastOutcome: got %q, want SKIPPED", p.LastOutcome)
	}
}

func TestUpdateSafetyAndThermal(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	reenable := time.Now().Add(3 * time.Hour)
	temp := 31.5

	tr.UpdateSafety(true, &reenable)
	tr.IncSafetyTrips()
	tr.IncSafetyTrips()
	tr.UpdateThermal(true, &temp, nil)

	snap := tr.Snapshot()
	if !snap.Safety.Active || snap.Safety.Trips != 2 || snap.Safety.ReenableAt == nil {
		t.Errorf("Safety: got %+v", snap.Safety)
	}
	if !snap.Thermal.CoolingActive || *snap.Thermal.TemperatureC != 31.5 || snap.Thermal.HumidityPct != nil {
		t.Errorf("Thermal: got %+v", snap.Thermal)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSetNetwork(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	if tr.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	tr.SetNetwork(&NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected"})

	snap := tr.Snapshot()
	if snap.Network == nil {
		t.Fatal("expected non-nil Network")
	}
	if snap.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want %q", snap.Network.IP, "192.168.1.42")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.UpdateIrrigation(time.Now(), "c1", false, []PotStatus{{Pot: 0, Dry: true}})

	snap1 := tr.Snapshot()
	snap1.Pots[0].Dry = false

	tr.UpdateIrrigation(time.Now(), "c2", true, []PotStatus{{Pot: 0, Dry: true}})

	if !tr.Snapshot().Pots[0].Dry {
		t.Error("mutating a snapshot must not affect the tracker")
	}
	if snap1.LastCycleID != "c1" || snap1.TankEmpty {
		t.Error("snapshot should be a copy")
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reenable := start.Add(3 * time.Hour)
	temp, hum := 24.5, 60.0
	snap := Snapshot{
		Pots:          []PotStatus{{Pot: 0, Dry: true, DailyCount: 1, LastOutcome: "FULL"}},
		Safety:        SafetyStatus{Active: true, ReenableAt: &reenable, Trips: 4},
		Thermal:       ThermalStatus{TemperatureC: &temp, HumidityPct: &hum},
		Counts:        Counts{Cycles: 5, Fills: 2},
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{IrrigationInterval: 2 * time.Hour, HeartbeatInterval: 15 * time.Minute, DayLimit: 2, Broker: "tcp://localhost:1883", HTTPPort: ":80"},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := parsed.Status

	if len(s.Pots) != 1 || !s.Pots[0].Dry || s.Pots[0].LastOutcome != "FULL" {
		t.Errorf("Pots: got %+v", s.Pots)
	}
	if !s.Safety.Active || s.Safety.ReenableAt != "2026-01-01T03:00:00Z" {
		t.Errorf("Safety: got %+v", s.Safety)
	}
	if s.Safety.ReenableIn != "2 hours from now" {
		t.Errorf("Safety.ReenableIn: got %q", s.Safety.ReenableIn)
	}
	if s.Thermal.TemperatureC == nil || *s.Thermal.TemperatureC != 24.5 {
		t.Errorf("Thermal: got %+v", s.Thermal)
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if s.Uptime != "15 minutes" {
		t.Errorf("Uptime: got %q, want %q", s.Uptime, "15 minutes")
	}
	if !s.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if s.Counts.Cycles != 5 || s.Counts.Fills != 2 {
		t.Errorf("Counts: got %+v", s.Counts)
	}
	if s.Config.IrrigationMs != 7200000 || s.Config.DayLimit != 2 {
		t.Errorf("Config: got %+v", s.Config)
	}
	// Event and Reason should be omitted
	if s.Event != "" || s.Reason != "" {
		t.Errorf("expected empty event/reason for web format, got %q/%q", s.Event, s.Reason)
	}
}

func TestFormatJSONEmptyPotsIsArray(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(FormatJSON(snap), &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := raw["status"]["pots"].([]interface{}); !ok {
		t.Errorf("pots should be an array, got %T", raw["status"]["pots"])
	}
	if _, ok := raw["status"]["last_irrigation"]; ok {
		t.Error("last_irrigation should be omitted before the first cycle")
	}
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{Broker: "tcp://localhost:1883"},
	}

	data := FormatStatusEvent(snap, "HEARTBEAT", "")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "HEARTBEAT" {
		t.Errorf("Event: got %q, want HEARTBEAT", parsed.Status.Event)
	}
	if parsed.Status.Reason != "" {
		t.Errorf("Reason: got %q, want empty", parsed.Status.Reason)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(30 * time.Minute),
		Config:    Config{Broker: "tcp://localhost:1883"},
	}

	data := FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	data := FormatStatusEvent(snap, "STARTUP", "")

	// Verify "reason" is not in the raw JSON output
	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC),
		Network:   &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"},
		Config:    Config{Broker: "tcp://localhost:1883"},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	json.Unmarshal(data, &parsed)

	if parsed.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if parsed.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", parsed.Status.Network.IP)
	}
	if parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("Network.SSID: got %q, want MyNet", parsed.Status.Network.SSID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	// Writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.UpdateIrrigation(time.Now(), "c", i%2 == 0, []PotStatus{{Pot: 0, DailyCount: i}})
			tr.UpdateSafety(i%3 == 0, nil)
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetNetwork(&NetworkInfo{IP: "1.2.3.4"})
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
