// Package notify delivers operator alerts to external systems.
package notify

import (
	"context"
	"time"
)

// Kind classifies an alert.
type Kind string

const (
	KindSafetyTrip        Kind = "SAFETY_TRIP"
	KindActuationTimeout  Kind = "ACTUATION_TIMEOUT"
	KindPersistenceFailed Kind = "PERSISTENCE_FAILED"
)

// Alert is one operator-facing notification.
type Alert struct {
	Kind    Kind
	At      time.Time
	Summary string
	// Fields carries extra key/value detail, rendered in insertion order
	// where the transport supports it.
	Fields []Field
}

// Field is one alert detail.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}
