package requestlog

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultMemoryCapacity is used when NewMemoryStore is given a non-positive size.
const DefaultMemoryCapacity = 1000

// MemoryStore keeps the most recent records in a bounded FIFO buffer.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    []*Record
	maxEntries int
	closed     bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a MemoryStore holding at most maxEntries records.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryCapacity
	}
	return &MemoryStore{
		entries:    make([]*Record, 0, maxEntries),
		maxEntries: maxEntries,
	}
}

// Append stores a copy of rec, evicting the oldest record at capacity.
func (s *MemoryStore) Append(_ context.Context, rec *Record) error {
	if rec == nil {
		return nil
	}
	c := rec.Clone()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if len(s.entries) >= s.maxEntries {
		s.entries[0] = nil
		s.entries = s.entries[1:]
	}
	s.entries = append(s.entries, c)
	return nil
}

// Get returns a copy of the record with the given ID.
func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.entries {
		if rec.ID == id {
			return rec.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// List returns matching records newest first.
func (s *MemoryStore) List(_ context.Context, filter *Filter) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	offset, limit := filter.offset(), filter.limit()
	result := make([]*Record, 0, min(limit, len(s.entries)))
	skipped := 0
	for i := len(s.entries) - 1; i >= 0 && len(result) < limit; i-- {
		rec := s.entries[i]
		if !filter.Matches(rec) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		result = append(result, rec.Clone())
	}
	return result, nil
}

// Count returns the number of buffered records.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// PurgeOlderThan removes records created before t.
func (s *MemoryStore) PurgeOlderThan(_ context.Context, t time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	var removed int64
	for _, rec := range s.entries {
		if rec.CreatedAt.Before(t) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	for i := len(kept); i < len(s.entries); i++ {
		s.entries[i] = nil
	}
	s.entries = kept
	return removed, nil
}

// Close rejects further appends. Buffered records stay readable.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
