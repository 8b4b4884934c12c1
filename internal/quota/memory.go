package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for local development and tests.
// Counters reset lazily: a read past the period boundary starts a fresh
// counter instead of relying on a background sweeper. Not suitable for
// multi-instance deployments, where each process would meter independently.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	count   int
	resetAt time.Time
}

// NewMemoryStore creates an empty in-process counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// IncrementIfAllowed implements Store. The mutex makes the check and
// increment a single atomic step.
func (s *MemoryStore) IncrementIfAllowed(_ context.Context, identity string, limit int) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	key := periodKey(identity, now)
	resetAt := periodEnd(now)

	e, ok := s.entries[key]
	if !ok || !e.resetAt.After(now) {
		e = &memoryEntry{resetAt: resetAt}
		s.entries[key] = e
	}

	if e.count >= limit {
		return Decision{Allowed: false, Remaining: 0, ResetAt: e.resetAt}, nil
	}
	e.count++
	return Decision{Allowed: true, Remaining: limit - e.count, ResetAt: e.resetAt}, nil
}

// Refund implements Store.
func (s *MemoryStore) Refund(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := periodKey(identity, s.now())
	if e, ok := s.entries[key]; ok && e.count > 0 {
		e.count--
	}
	return nil
}
