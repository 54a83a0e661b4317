// Package climate reads air temperature and relative humidity.
package climate

import (
	"errors"
	"fmt"
	"sync"
)

// Reading is one temperature/humidity sample.
type Reading struct {
	TemperatureC float64 `json:"temperature_c"`
	HumidityPct  float64 `json:"humidity_pct"`
}

// Sensor samples the air around the rig.
type Sensor interface {
	Sample() (Reading, error)
}

// ErrInvalidReading is returned when the sensor produced values outside
// its physical range.
var ErrInvalidReading = errors.New("invalid climate reading")

// DHT22 operating range.
const (
	MinTemperatureC = -40.0
	MaxTemperatureC = 80.0
	MinHumidityPct  = 0.0
	MaxHumidityPct  = 100.0
)

// Validate rejects readings outside the DHT22 operating range.
func (r Reading) Validate() error {
	if r.TemperatureC < MinTemperatureC || r.TemperatureC > MaxTemperatureC {
		return fmt.Errorf("%w: temperature %.1f°C", ErrInvalidReading, r.TemperatureC)
	}
	if r.HumidityPct < MinHumidityPct || r.HumidityPct > MaxHumidityPct {
		return fmt.Errorf("%w: humidity %.1f%%", ErrInvalidReading, r.HumidityPct)
	}
	return nil
}

// FakeSensor returns queued readings for tests. Once the queue is empty
// the last reading repeats.
type FakeSensor struct {
	mu       sync.Mutex
	readings []Reading
	last     Reading
	calls    int

	// Err, if set, will be returned by Sample.
	Err error
}

// NewFakeSensor creates a FakeSensor that returns readings in order.
func NewFakeSensor(readings ...Reading) *FakeSensor {
	return &FakeSensor{readings: readings}
}

// Sample returns the next queued reading.
func (f *FakeSensor) Sample() (Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.Err != nil {
		return Reading{}, f.Err
	}
	if len(f.readings) > 0 {
		f.last = f.readings[0]
		f.readings = f.readings[1:]
	}
	return f.last, nil
}

// Push queues more readings.
func (f *FakeSensor) Push(readings ...Reading) {
	f.mu.Lock()
	f.readings = append(f.readings, readings...)
	f.mu.Unlock()
}

// Calls returns how many times Sample was called.
func (f *FakeSensor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
