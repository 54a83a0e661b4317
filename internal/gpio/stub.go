//go:build !linux

package gpio

import (
	"errors"
	"time"
)

// RealChip is not available on non-Linux platforms.
type RealChip struct{}

// NewRealChip returns an error on non-Linux platforms.
func NewRealChip(name string) (*RealChip, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Input is not implemented on non-Linux platforms.
func (c *RealChip) Input(offset int, debounce time.Duration) (Pin, error) {
	return nil, errors.New("gpio: not supported")
}

// Output is not implemented on non-Linux platforms.
func (c *RealChip) Output(offset int, initial Level) (Pin, error) {
	return nil, errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (c *RealChip) Close() error {
	return nil
}
