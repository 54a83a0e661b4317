package history

import (
	"sync"
	"time"

	"github.com/sweeney/drip-controller/internal/ring"
)

// ShutdownEntry marks one safety trip.
type ShutdownEntry struct {
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
	Shutdown  bool      `json:"shutdown" msgpack:"shutdown"`
}

// ShutdownLog is a capacity-bounded record of safety trips.
// Safe for concurrent use.
type ShutdownLog struct {
	mu   sync.RWMutex
	ring *ring.Ring[ShutdownEntry]
}

// NewShutdownLog creates a log holding at most capacity entries.
func NewShutdownLog(capacity int) *ShutdownLog {
	return &ShutdownLog{ring: ring.New[ShutdownEntry](capacity)}
}

// Record appends a trip at time at, evicting the oldest when full.
func (l *ShutdownLog) Record(at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if newest, ok := l.ring.Newest(); ok && at.Before(newest.Timestamp) {
		at = newest.Timestamp
	}
	l.ring.Push(ShutdownEntry{Timestamp: at, Shutdown: true})
}

// Entries returns all entries, oldest first.
func (l *ShutdownLog) Entries() []ShutdownEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ring.Items()
}

// Restore replays persisted entries.
func (l *ShutdownLog) Restore(entries []ShutdownEntry) {
	for _, e := range entries {
		if e.Shutdown {
			l.Record(e.Timestamp)
		}
	}
}

// CountSince returns the number of trips at or after t.
func (l *ShutdownLog) CountSince(t time.Time) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, e := range l.ring.Items() {
		if !e.Timestamp.Before(t) {
			n++
		}
	}
	return n
}

// Len returns the number of entries.
func (l *ShutdownLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ring.Len()
}

// Cap returns the capacity.
func (l *ShutdownLog) Cap() int {
	return l.ring.Cap()
}
