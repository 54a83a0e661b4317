package status

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event          string       `json:"event,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	Pots           []PotJSON    `json:"pots"`
	TankEmpty      bool         `json:"tank_empty"`
	LastIrrigation string       `json:"last_irrigation,omitempty"`
	LastCycleID    string       `json:"last_cycle_id,omitempty"`
	Safety         SafetyJSON   `json:"safety"`
	Thermal        ThermalJSON  `json:"thermal"`
	UptimeSeconds  int64        `json:"uptime_seconds"`
	Uptime         string       `json:"uptime"`
	StartTime      string       `json:"start_time"`
	Timestamp      string       `json:"timestamp"`
	MQTT           MQTTStatus   `json:"mqtt"`
	Counts         CountsJSON   `json:"counts"`
	Network        *NetworkJSON `json:"network,omitempty"`
	Config         ConfigJSON   `json:"config"`
}

// PotJSON is the JSON representation of a pot.
type PotJSON struct {
	Pot         int    `json:"pot"`
	Dry         bool   `json:"dry"`
	DailyCount  int    `json:"daily_count"`
	LastOutcome string `json:"last_outcome,omitempty"`
	LastReason  string `json:"last_reason,omitempty"`
	LastWatered string `json:"last_watered,omitempty"`
}

// SafetyJSON is the JSON representation of the interlock.
type SafetyJSON struct {
	Active     bool   `json:"active"`
	ReenableAt string `json:"reenable_at,omitempty"`
	ReenableIn string `json:"reenable_in,omitempty"`
	Trips      int    `json:"trips"`
}

// ThermalJSON is the JSON representation of the thermal controller.
type ThermalJSON struct {
	CoolingActive bool     `json:"cooling_active"`
	TemperatureC  *float64 `json:"temperature_c,omitempty"`
	HumidityPct   *float64 `json:"humidity_pct,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of running totals.
type CountsJSON struct {
	Cycles   int `json:"cycles"`
	Fills    int `json:"fills"`
	Timeouts int `json:"timeouts"`
	Skipped  int `json:"skipped"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	IrrigationMs    int64   `json:"irrigation_ms"`
	ThermalMs       int64   `json:"thermal_ms"`
	SafetyMs        int64   `json:"safety_ms"`
	FlushMs         int64   `json:"flush_ms"`
	HeartbeatMs     int64   `json:"heartbeat_ms"`
	DayLimit        int     `json:"day_limit"`
	WindowStartHour int     `json:"window_start_hour"`
	WindowEndHour   int     `json:"window_end_hour"`
	CoolingLimitC   float64 `json:"cooling_limit_c"`
	Broker          string  `json:"broker"`
	HTTPPort        string  `json:"http_port"`
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	pots := make([]PotJSON, len(snap.Pots))
	for i, p := range snap.Pots {
		pots[i] = PotJSON{
			Pot:         p.Pot,
			Dry:         p.Dry,
			DailyCount:  p.DailyCount,
			LastOutcome: p.LastOutcome,
			LastReason:  p.LastReason,
			LastWatered: formatTime(p.LastWatered),
		}
	}

	safety := SafetyJSON{
		Active:     snap.Safety.Active,
		ReenableAt: formatTime(snap.Safety.ReenableAt),
		Trips:      snap.Safety.Trips,
	}
	if snap.Safety.ReenableAt != nil {
		safety.ReenableIn = humanize.RelTime(*snap.Safety.ReenableAt, snap.Now, "ago", "from now")
	}

	cfg := snap.Config
	return StatusInner{
		Pots:           pots,
		TankEmpty:      snap.TankEmpty,
		LastIrrigation: formatTime(snap.LastIrrigation),
		LastCycleID:    snap.LastCycleID,
		Safety:         safety,
		Thermal: ThermalJSON{
			CoolingActive: snap.Thermal.CoolingActive,
			TemperatureC:  snap.Thermal.TemperatureC,
			HumidityPct:   snap.Thermal.HumidityPct,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		Uptime:        strings.TrimSpace(humanize.RelTime(snap.StartTime, snap.Now, "", "")),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: cfg.Broker},
		Counts: CountsJSON{
			Cycles:   snap.Counts.Cycles,
			Fills:    snap.Counts.Fills,
			Timeouts: snap.Counts.Timeouts,
			Skipped:  snap.Counts.Skipped,
		},
		Config: ConfigJSON{
			IrrigationMs:    cfg.IrrigationInterval.Milliseconds(),
			ThermalMs:       cfg.ThermalInterval.Milliseconds(),
			SafetyMs:        cfg.SafetyInterval.Milliseconds(),
			FlushMs:         cfg.FlushInterval.Milliseconds(),
			HeartbeatMs:     cfg.HeartbeatInterval.Milliseconds(),
			DayLimit:        cfg.DayLimit,
			WindowStartHour: cfg.WindowStartHour,
			WindowEndHour:   cfg.WindowEndHour,
			CoolingLimitC:   cfg.CoolingLimitC,
			Broker:          cfg.Broker,
			HTTPPort:        cfg.HTTPPort,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
