// Package store holds the in-memory event set that every other component
// reads from. Single writer (the ingestor), any number of readers.
package store

import (
	"sync"

	"github.com/netsentry/netsentry/internal/models"
)

// Store is an append-only, arrival-ordered collection of threat events.
// Readers always observe a consistent snapshot: All returns a copy taken
// under the lock, so an append is either fully visible or not at all.
type Store struct {
	mu        sync.RWMutex
	events    []models.ThreatEvent
	maxEvents int
}

// New creates an empty store. maxEvents bounds retention: when positive,
// the oldest events are dropped once the bound is exceeded. Zero means
// unbounded, which matches the historical behavior of the dashboard.
func New(maxEvents int) *Store {
	return &Store{maxEvents: maxEvents}
}

// Append adds one event. Events with malformed timestamps are stored as-is;
// they are excluded from time-windowed aggregates downstream.
func (s *Store) Append(event models.ThreatEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if s.maxEvents > 0 && len(s.events) > s.maxEvents {
		overflow := len(s.events) - s.maxEvents
		s.events = append(s.events[:0:0], s.events[overflow:]...)
	}
}

// ReplaceAll discards the current contents in favor of a bulk-fetched set.
// The slice is copied; callers keep ownership of theirs.
func (s *Store) ReplaceAll(events []models.ThreatEvent) {
	copied := make([]models.ThreatEvent, len(events))
	copy(copied, events)
	if s.maxEvents > 0 && len(copied) > s.maxEvents {
		copied = copied[len(copied)-s.maxEvents:]
	}
	s.mu.Lock()
	s.events = copied
	s.mu.Unlock()
}

// All returns a copy of the current event sequence in arrival order.
func (s *Store) All() []models.ThreatEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ThreatEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Len reports the current number of stored events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
