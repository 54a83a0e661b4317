// Package gpio provides digital pin access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "time"

// Level is the raw logic level of a line.
type Level int

const (
	Low  Level = 0
	High Level = 1
)

func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

// Edge selects which transitions a watch reacts to.
type Edge int

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
)

// Matches reports whether a transition to level satisfies the edge.
func (e Edge) Matches(level Level) bool {
	switch e {
	case EdgeRising:
		return level == High
	case EdgeFalling:
		return level == Low
	case EdgeBoth:
		return true
	default:
		return false
	}
}

// Pin is a single digital line owned by one logical role.
type Pin interface {
	// Read returns the current raw level.
	Read() (Level, error)

	// Write drives an output line. Safe to call from any goroutine.
	Write(level Level) error

	// Watch registers handler for edges on an input line, replacing any
	// previous handler. The handler receives the level after the edge.
	Watch(edge Edge, handler func(Level)) error

	// Unwatch removes the handler. Once Unwatch returns, the previous
	// handler is never invoked again.
	Unwatch() error
}

// Chip configures lines on a GPIO controller.
type Chip interface {
	// Input requests offset as an input with optional edge detection.
	Input(offset int, debounce time.Duration) (Pin, error)

	// Output requests offset as an output driven to initial.
	Output(offset int, initial Level) (Pin, error)

	// Close releases every requested line.
	Close() error
}

// Default pin assignments (BCM numbering).
const (
	DefaultTankLevelPin       = 2
	DefaultMainPumpPin        = 3
	DefaultSafetyPin2         = 4
	DefaultSmallTankBottomPin = 9
	DefaultSmallTankBottomPwr = 10
	DefaultMoisturePowerPin   = 14
	DefaultSafetyPin1         = 17
	DefaultFanPin             = 18
	DefaultSmallTankTopPin    = 22
	DefaultSmallTankTopPwr    = 27
	DefaultSensorDebounce     = 10 * time.Millisecond
	DefaultPotCount           = 6
)

// DefaultMoisturePins are the per-pot moisture sensor data lines.
var DefaultMoisturePins = []int{8, 7, 12, 16, 20, 21}

// DefaultPotPumpPins are the per-pot pump relay lines.
var DefaultPotPumpPins = []int{11, 5, 6, 13, 19, 26}
