package mqtt

import (
	"context"
	"sync"
	"time"
)

// FakePublisher records published events for test assertions.
// Safe for concurrent use.
type FakePublisher struct {
	mu sync.Mutex

	// Watering contains all watering events that were published.
	Watering []WateringEvent

	// Safety contains all safety trips that were published.
	Safety []SafetyEvent

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// Saved contains the latest snapshot payload per name.
	Saved map[string][]byte

	// PublishError, if set, will be returned by PublishWatering and PublishSafety.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Saved: make(map[string][]byte)}
}

// PublishWatering records the watering event.
func (f *FakePublisher) PublishWatering(event WateringEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Watering = append(f.Watering, event)
	return nil
}

// PublishSafety records the safety event.
func (f *FakePublisher) PublishSafety(event SafetyEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Safety = append(f.Safety, event)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Save records the snapshot payload.
func (f *FakePublisher) Save(_ context.Context, name string, v any) error {
	payload, err := FormatStatePayload(name, time.Time{}, v)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.Saved[name] = payload
	f.mu.Unlock()
	return nil
}

// WateringEvents returns a copy of the recorded watering events.
func (f *FakePublisher) WateringEvents() []WateringEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]WateringEvent(nil), f.Watering...)
}

// SafetyEvents returns a copy of the recorded safety events.
func (f *FakePublisher) SafetyEvents() []SafetyEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SafetyEvent(nil), f.Safety...)
}

// System returns a copy of the recorded system events.
func (f *FakePublisher) System() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.SystemEvents...)
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Watering = nil
	f.Safety = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Saved = make(map[string][]byte)
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
