package gpio

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// FakePin is a test double that holds a level, records writes and lets
// tests fire edges at registered watchers.
type FakePin struct {
	mu     sync.Mutex
	level  Level
	writes []Level

	// ReadError, if set, will be returned by Read.
	ReadError error

	// WriteError, if set, will be returned by Write.
	WriteError error

	// OnWrite, if set, is called after every successful write.
	OnWrite func(Level)

	watchMu sync.Mutex
	edge    Edge
	handler func(Level)
	watches int
}

// NewFakePin creates a FakePin at the given level.
func NewFakePin(level Level) *FakePin {
	return &FakePin{level: level}
}

// Read returns the current level.
func (f *FakePin) Read() (Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return Low, f.ReadError
	}
	return f.level, nil
}

// Write sets the level and records it.
func (f *FakePin) Write(level Level) error {
	f.mu.Lock()
	if f.WriteError != nil {
		err := f.WriteError
		f.mu.Unlock()
		return err
	}
	f.level = level
	f.writes = append(f.writes, level)
	hook := f.OnWrite
	f.mu.Unlock()

	if hook != nil {
		hook(level)
	}
	return nil
}

// Watch registers handler.
func (f *FakePin) Watch(edge Edge, handler func(Level)) error {
	f.watchMu.Lock()
	f.edge = edge
	f.handler = handler
	f.watches++
	f.watchMu.Unlock()
	return nil
}

// Unwatch removes the handler.
func (f *FakePin) Unwatch() error {
	f.watchMu.Lock()
	f.edge = EdgeNone
	f.handler = nil
	f.watchMu.Unlock()
	return nil
}

// Set changes the level without recording a write or firing an edge.
func (f *FakePin) Set(level Level) {
	f.mu.Lock()
	f.level = level
	f.mu.Unlock()
}

// Trigger changes the level and delivers the edge to the watcher, if any
// is registered for it. Returns true if a handler ran.
func (f *FakePin) Trigger(level Level) bool {
	f.Set(level)

	f.watchMu.Lock()
	defer f.watchMu.Unlock()
	if f.handler == nil || !f.edge.Matches(level) {
		return false
	}
	f.handler(level)
	return true
}

// Watching reports whether a handler is registered.
func (f *FakePin) Watching() bool {
	f.watchMu.Lock()
	defer f.watchMu.Unlock()
	return f.handler != nil
}

// WatchCount returns how many times Watch was called.
func (f *FakePin) WatchCount() int {
	f.watchMu.Lock()
	defer f.watchMu.Unlock()
	return f.watches
}

// Writes returns a copy of every level written, oldest first.
func (f *FakePin) Writes() []Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Level, len(f.writes))
	copy(out, f.writes)
	return out
}

// Level returns the current level.
func (f *FakePin) Level() Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level
}

// Reset clears recorded writes and errors.
func (f *FakePin) Reset() {
	f.mu.Lock()
	f.writes = nil
	f.ReadError = nil
	f.WriteError = nil
	f.mu.Unlock()
}

// FakeChip hands out FakePins keyed by offset.
type FakeChip struct {
	mu     sync.Mutex
	Pins   map[int]*FakePin
	Closed bool

	// InputLevels sets the initial level of input pins by offset.
	InputLevels map[int]Level
}

// NewFakeChip creates an empty FakeChip.
func NewFakeChip() *FakeChip {
	return &FakeChip{
		Pins:        make(map[int]*FakePin),
		InputLevels: make(map[int]Level),
	}
}

// Input returns a FakePin at the configured input level (default Low).
func (c *FakeChip) Input(offset int, _ time.Duration) (Pin, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.Pins[offset]; ok {
		return nil, fmt.Errorf("pin %d already requested", offset)
	}
	p := NewFakePin(c.InputLevels[offset])
	c.Pins[offset] = p
	return p, nil
}

// Output returns a FakePin driven to initial.
func (c *FakeChip) Output(offset int, initial Level) (Pin, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.Pins[offset]; ok {
		return nil, fmt.Errorf("pin %d already requested", offset)
	}
	p := NewFakePin(initial)
	c.Pins[offset] = p
	return p, nil
}

// Pin returns the fake for offset, or nil.
func (c *FakeChip) Pin(offset int) *FakePin {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Pins[offset]
}

// Close marks the chip as closed.
func (c *FakeChip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Closed {
		return errors.New("already closed")
	}
	c.Closed = true
	return nil
}
