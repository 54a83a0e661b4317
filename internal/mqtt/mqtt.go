// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"
)

// TopicEvents carries per-pot watering outcomes and safety trips.
const TopicEvents = "garden/drip/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "garden/drip/system"

// TopicStatePrefix prefixes retained history snapshots, one topic per artifact.
const TopicStatePrefix = "garden/drip/state/"

// Publisher publishes controller events to MQTT.
type Publisher interface {
	// PublishWatering sends one pot's outcome for an irrigation cycle.
	// Returns error if publishing fails (should not stop the cycle).
	PublishWatering(event WateringEvent) error

	// PublishSafety sends a safety interlock trip.
	PublishSafety(event SafetyEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// WateringEvent is the result of one pot's turn in an irrigation cycle.
type WateringEvent struct {
	Timestamp time.Time
	CycleID   string
	Pot       int
	Outcome   string // FULL, TIMED_OUT, INTERLOCKED, FAILED or SKIPPED
	Reason    string // skip reason, e.g. "wet", "daily_limit"
	Refill    string // tank refill outcome preceding the fill, if any
	Duration  time.Duration
}

// SafetyEvent is one interlock trip.
type SafetyEvent struct {
	Timestamp  time.Time
	Unsafe     []int
	First      bool
	ReenableAt time.Time
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// WateringPayload is the MQTT message for a watering event.
type WateringPayload struct {
	Watering WateringPayloadInner `json:"watering"`
}

// WateringPayloadInner contains the watering event details.
type WateringPayloadInner struct {
	Timestamp  string `json:"timestamp"`
	CycleID    string `json:"cycle_id"`
	Pot        int    `json:"pot"`
	Outcome    string `json:"outcome"`
	Reason     string `json:"reason,omitempty"`
	Refill     string `json:"refill,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// FormatWateringPayload creates the JSON payload for a watering event.
func FormatWateringPayload(event WateringEvent) ([]byte, error) {
	return json.Marshal(WateringPayload{
		Watering: WateringPayloadInner{
			Timestamp:  event.Timestamp.UTC().Format(time.RFC3339),
			CycleID:    event.CycleID,
			Pot:        event.Pot,
			Outcome:    event.Outcome,
			Reason:     event.Reason,
			Refill:     event.Refill,
			DurationMs: event.Duration.Milliseconds(),
		},
	})
}

// SafetyPayload is the MQTT message for a safety trip.
type SafetyPayload struct {
	Safety SafetyPayloadInner `json:"safety"`
}

// SafetyPayloadInner contains the trip details.
type SafetyPayloadInner struct {
	Timestamp  string `json:"timestamp"`
	Event      string `json:"event"`
	Unsafe     []int  `json:"unsafe_switches"`
	First      bool   `json:"first"`
	ReenableAt string `json:"reenable_at"`
}

// FormatSafetyPayload creates the JSON payload for a safety trip.
func FormatSafetyPayload(event SafetyEvent) ([]byte, error) {
	unsafe := event.Unsafe
	if unsafe == nil {
		unsafe = []int{}
	}
	return json.Marshal(SafetyPayload{
		Safety: SafetyPayloadInner{
			Timestamp:  event.Timestamp.UTC().Format(time.RFC3339),
			Event:      "TRIP",
			Unsafe:     unsafe,
			First:      event.First,
			ReenableAt: event.ReenableAt.UTC().Format(time.RFC3339),
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}

// StatePayload wraps a retained history snapshot.
type StatePayload struct {
	Name      string `json:"name"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// FormatStatePayload creates the retained JSON payload for a snapshot.
func FormatStatePayload(name string, at time.Time, v any) ([]byte, error) {
	return json.Marshal(StatePayload{
		Name:      name,
		Timestamp: at.UTC().Format(time.RFC3339),
		Data:      v,
	})
}
