// Package status provides a thread-safe status tracker for the drip-controller daemon.
// It is read by the HTTP status endpoint and the MQTT heartbeat.
package status

import (
	"sync"
	"time"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing cmd-level helpers from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	IrrigationInterval time.Duration
	ThermalInterval    time.Duration
	SafetyInterval     time.Duration
	FlushInterval      time.Duration
	HeartbeatInterval  time.Duration
	DayLimit           int
	WindowStartHour    int
	WindowEndHour      int
	CoolingLimitC      float64
	Broker             string
	HTTPPort           string
}

// PotStatus is one pot as of the last irrigation cycle.
type PotStatus struct {
	Pot         int
	Dry         bool
	DailyCount  int
	LastOutcome string
	LastReason  string
	LastWatered *time.Time
}

// SafetyStatus mirrors the interlock.
type SafetyStatus struct {
	Active     bool
	ReenableAt *time.Time
	Trips      int
}

// ThermalStatus mirrors the thermal controller.
type ThermalStatus struct {
	CoolingActive bool
	TemperatureC  *float64
	HumidityPct   *float64
}

// Counts are running totals since startup.
type Counts struct {
	Cycles   int
	Fills    int
	Timeouts int
	Skipped  int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Pots           []PotStatus
	TankEmpty      bool
	LastIrrigation *time.Time
	LastCycleID    string
	Safety         SafetyStatus
	Thermal        ThermalStatus
	Counts         Counts
	StartTime      time.Time
	Now            time.Time
	MQTTConnected  bool
	Network        *NetworkInfo
	Config         Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// UpdateIrrigation records the result of an irrigation cycle. Each pot's
// LastWatered carries over unless this cycle filled it.
func (t *Tracker) UpdateIrrigation(at time.Time, cycleID string, tankEmpty bool, pots []PotStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := make(map[int]*time.Time, len(t.snap.Pots))
	for _, p := range t.snap.Pots {
		prev[p.Pot] = p.LastWatered
	}
	next := make([]PotStatus, len(pots))
	for i, p := range pots {
		if p.LastWatered == nil {
			p.LastWatered = prev[p.Pot]
		}
		next[i] = p
		switch p.LastOutcome {
		case "FULL":
			t.snap.Counts.Fills++
		case "TIMED_OUT":
			t.snap.Counts.Timeouts++
		case "SKIPPED":
			t.snap.Counts.Skipped++
		}
	}
	t.snap.Pots = next
	t.snap.TankEmpty = tankEmpty
	t.snap.LastIrrigation = &at
	t.snap.LastCycleID = cycleID
	t.snap.Counts.Cycles++
}

// UpdateSafety sets the interlock state.
func (t *Tracker) UpdateSafety(active bool, reenableAt *time.Time) {
	t.mu.Lock()
	t.snap.Safety.Active = active
	t.snap.Safety.ReenableAt = reenableAt
	t.mu.Unlock()
}

// IncSafetyTrips counts one unsafe check.
func (t *Tracker) IncSafetyTrips() {
	t.mu.Lock()
	t.snap.Safety.Trips++
	t.mu.Unlock()
}

// UpdateThermal sets the thermal state.
func (t *Tracker) UpdateThermal(cooling bool, tempC, humidityPct *float64) {
	t.mu.Lock()
	t.snap.Thermal = ThermalStatus{CoolingActive: cooling, TemperatureC: tempC, HumidityPct: humidityPct}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Pots = append([]PotStatus(nil), t.snap.Pots...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
