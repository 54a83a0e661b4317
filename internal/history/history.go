// Package history keeps the bounded, timestamp-ordered records the
// controller uses for daily irrigation limits and safety auditing.
// Time is always injected; nothing here reads the wall clock.
package history

import (
	"sync"
	"time"

	"github.com/sweeney/drip-controller/internal/ring"
)

const (
	DefaultCapacity         = 60
	DefaultShutdownCapacity = 300

	// LocalOffset approximates local summer time as a fixed UTC offset.
	LocalOffset = 2 * time.Hour
)

// Persisted artifact names.
const (
	MoistureHistoryName = "moisture_history"
	ShutdownLogName     = "safety_shutdowns"
)

// MoistureSnapshot holds one cycle's readings, one per pot; true = dry.
type MoistureSnapshot []bool

// Clone returns an independent copy.
func (s MoistureSnapshot) Clone() MoistureSnapshot {
	if s == nil {
		return nil
	}
	out := make(MoistureSnapshot, len(s))
	copy(out, s)
	return out
}

// DryCount returns how many pots read dry.
func (s MoistureSnapshot) DryCount() int {
	n := 0
	for _, dry := range s {
		if dry {
			n++
		}
	}
	return n
}

// Entry is one recorded irrigation cycle.
type Entry struct {
	Timestamp time.Time        `json:"timestamp" msgpack:"timestamp"`
	Dry       MoistureSnapshot `json:"dry" msgpack:"dry"`
}

// LocalDate returns the calendar date of t in the fixed local offset.
func LocalDate(t time.Time) (year int, yearDay int) {
	local := t.UTC().Add(LocalOffset)
	return local.Year(), local.YearDay()
}

// LocalHour returns the hour of day of t in the fixed local offset.
func LocalHour(t time.Time) int {
	return t.UTC().Add(LocalOffset).Hour()
}

// SameLocalDay reports whether a and b fall on the same local calendar day.
func SameLocalDay(a, b time.Time) bool {
	ay, ad := LocalDate(a)
	by, bd := LocalDate(b)
	return ay == by && ad == bd
}

// Store is a capacity-bounded, insertion-ordered record of moisture
// snapshots. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	ring *ring.Ring[Entry]
	pots int
}

// NewStore creates a Store for pots sensors holding at most capacity entries.
func NewStore(capacity, pots int) *Store {
	return &Store{
		ring: ring.New[Entry](capacity),
		pots: pots,
	}
}

// Record appends snap at time at and evicts the oldest entry if the
// store is over capacity. Timestamps never go backwards: an at earlier
// than the newest entry is clamped to it, so order stays chronological
// across wall-clock steps.
func (s *Store) Record(at time.Time, snap MoistureSnapshot) (evicted *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if newest, ok := s.ring.Newest(); ok && at.Before(newest.Timestamp) {
		at = newest.Timestamp
	}
	old, ok := s.ring.Push(Entry{Timestamp: at, Dry: snap.Clone()})
	if !ok {
		return nil
	}
	return &old
}

// DailyCounts returns, per pot, how many entries recorded on the same
// local calendar day as now show that pot dry.
func (s *Store) DailyCounts(now time.Time) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make([]int, s.pots)
	for _, e := range s.ring.Items() {
		if !SameLocalDay(e.Timestamp, now) {
			continue
		}
		for i, dry := range e.Dry {
			if i < len(counts) && dry {
				counts[i]++
			}
		}
	}
	return counts
}

// Entries returns a copy of all entries, oldest first.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	items := s.ring.Items()
	s.mu.RUnlock()

	out := make([]Entry, len(items))
	for i, e := range items {
		out[i] = Entry{Timestamp: e.Timestamp, Dry: e.Dry.Clone()}
	}
	return out
}

// Latest returns the newest entry.
func (s *Store) Latest() (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.ring.Newest()
	if !ok {
		return Entry{}, false
	}
	return Entry{Timestamp: e.Timestamp, Dry: e.Dry.Clone()}, true
}

// Restore replays previously persisted entries through Record, so the
// capacity bound and ordering rules still hold.
func (s *Store) Restore(entries []Entry) {
	for _, e := range entries {
		s.Record(e.Timestamp, e.Dry)
	}
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ring.Len()
}

// Cap returns the capacity.
func (s *Store) Cap() int {
	return s.ring.Cap()
}

// Pots returns the number of pots tracked per snapshot.
func (s *Store) Pots() int {
	return s.pots
}
