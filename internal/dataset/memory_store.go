package dataset

import (
	"context"
	"sync"

	"github.com/ventiglobe/ventiglobe/internal/weather"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records []weather.DailyRecord
	stored  bool
	writes  int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the stored dataset.
func (s *MemoryStore) Load(_ context.Context) (*Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.stored {
		return nil, ErrNotFound
	}
	out := make([]weather.DailyRecord, len(s.records))
	copy(out, s.records)
	return New(out), nil
}

// Replace overwrites the stored dataset.
func (s *MemoryStore) Replace(_ context.Context, ds *Dataset) error {
	if ds.Len() == 0 {
		return ErrEmpty
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make([]weather.DailyRecord, len(ds.Records))
	copy(s.records, ds.Records)
	s.stored = true
	s.writes++
	return nil
}

// Exists reports whether Replace has been called.
func (s *MemoryStore) Exists(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stored, nil
}

// Writes returns how many times Replace succeeded.
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}
