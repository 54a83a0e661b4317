// Package persist stores named snapshots of controller state.
package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrNotFound is returned by Load when nothing was saved under a name.
var ErrNotFound = errors.New("snapshot not found")

// Sink accepts snapshots. Save must not retain v after it returns.
type Sink interface {
	Save(ctx context.Context, name string, v any) error
}

// Loader reads back a snapshot saved by the same store.
type Loader interface {
	Load(name string, v any) error
}

// Noop discards every snapshot.
type Noop struct{}

func (Noop) Save(context.Context, string, any) error { return nil }

// Multi fans a snapshot out to every sink and joins their errors.
type Multi struct {
	sinks []Sink
}

// NewMulti builds a Multi from the non-nil sinks.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Save writes to each sink in order; one failing sink does not stop the rest.
func (m *Multi) Save(ctx context.Context, name string, v any) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Save(ctx, name, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySink keeps the encoded form of the latest snapshot per name.
type MemorySink struct {
	mu    sync.Mutex
	data  map[string][]byte
	saves map[string]int

	// Err, if set, will be returned by Save.
	Err error
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{data: make(map[string][]byte), saves: make(map[string]int)}
}

func (m *MemorySink) Save(_ context.Context, name string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	b, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	m.data[name] = b
	m.saves[name]++
	return nil
}

func (m *MemorySink) Load(name string, v any) error {
	m.mu.Lock()
	b, ok := m.data[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return msgpack.Unmarshal(b, v)
}

// Saves returns how many times name was saved.
func (m *MemorySink) Saves(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves[name]
}
