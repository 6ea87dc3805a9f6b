package rule

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Store errors.
var (
	ErrNotFound         = errors.New("rule not found")
	ErrDuplicatePattern = errors.New("path pattern already exists in project")
)

// snapshot is an immutable view of the store. Neither the slices nor the
// rules they point to are modified after publication.
type snapshot struct {
	all     []*Rule
	enabled []*Rule
}

// Store is a copy-on-write rule store. Reads are lock-free; writes are
// serialized and publish a new snapshot.
type Store struct {
	mu   sync.Mutex // serializes writers
	snap atomic.Pointer[snapshot]
	seq  uint64
	now  func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	s := &Store{now: time.Now}
	s.snap.Store(&snapshot{})
	return s
}

// EnabledRules returns the enabled rules in store order, optionally limited
// to one project. An empty projectID returns rules for every project.
// The returned slice must not be modified.
func (s *Store) EnabledRules(_ context.Context, projectID string) ([]*Rule, error) {
	enabled := s.snap.Load().enabled
	if projectID == "" {
		return enabled, nil
	}
	return filterProject(enabled, projectID), nil
}

// List returns all rules in store order, optionally limited to one project.
func (s *Store) List(projectID string) []*Rule {
	all := s.snap.Load().all
	if projectID == "" {
		return slices.Clone(all)
	}
	return filterProject(all, projectID)
}

// Get returns a copy of the rule with the given ID.
func (s *Store) Get(id string) (*Rule, error) {
	for _, r := range s.snap.Load().all {
		if r.ID == id {
			return r.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Count returns the number of rules and how many of them are enabled.
func (s *Store) Count() (total, enabled int) {
	snap := s.snap.Load()
	return len(snap.all), len(snap.enabled)
}

// Create validates and stores a new rule. ID and timestamps are assigned by
// the store when empty. The stored copy is returned.
func (s *Store) Create(r *Rule) (*Rule, error) {
	if r == nil {
		return nil, &ValidationError{Field: "rule", Message: "rule is required"}
	}
	nr := r.Clone()
	nr.Normalize()
	if err := nr.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load().all
	if conflict(cur, nr, "") {
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePattern, nr.PathPattern)
	}

	if nr.ID == "" {
		nr.ID = newID()
	}
	if slices.ContainsFunc(cur, func(x *Rule) bool { return x.ID == nr.ID }) {
		return nil, &ValidationError{Field: "id", Message: fmt.Sprintf("rule %s already exists", nr.ID)}
	}
	now := s.now()
	if nr.CreatedAt.IsZero() {
		nr.CreatedAt = now
	}
	nr.UpdatedAt = now
	s.seq++
	nr.seq = s.seq

	next := make([]*Rule, 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, nr)
	s.publish(next)
	return nr.Clone(), nil
}

// Update replaces the rule with the given ID, keeping its creation order.
func (s *Store) Update(id string, r *Rule) (*Rule, error) {
	if r == nil {
		return nil, &ValidationError{Field: "rule", Message: "rule is required"}
	}
	nr := r.Clone()
	nr.Normalize()
	if err := nr.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load().all
	idx := slices.IndexFunc(cur, func(x *Rule) bool { return x.ID == id })
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	old := cur[idx]
	if nr.ProjectID == "" {
		nr.ProjectID = old.ProjectID
	}
	if conflict(cur, nr, id) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePattern, nr.PathPattern)
	}

	nr.ID = id
	nr.CreatedAt = old.CreatedAt
	nr.UpdatedAt = s.now()
	nr.seq = old.seq

	next := slices.Clone(cur)
	next[idx] = nr
	s.publish(next)
	return nr.Clone(), nil
}

// SetEnabled toggles a rule.
func (s *Store) SetEnabled(id string, enabled bool) (*Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load().all
	idx := slices.IndexFunc(cur, func(x *Rule) bool { return x.ID == id })
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	nr := cur[idx].Clone()
	nr.Enabled = enabled
	nr.UpdatedAt = s.now()

	next := slices.Clone(cur)
	next[idx] = nr
	s.publish(next)
	return nr.Clone(), nil
}

// Delete removes a rule.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load().all
	idx := slices.IndexFunc(cur, func(x *Rule) bool { return x.ID == id })
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.publish(slices.Delete(slices.Clone(cur), idx, idx+1))
	return nil
}

// Replace swaps the whole rule set in one step, as a periodic refresh from
// an external source does. Rules keep the order in which they are given.
// Nothing is published if any rule is invalid or a (project, pattern) pair
// repeats.
func (s *Store) Replace(rules []*Rule) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]*Rule, 0, len(rules))
	seq := s.seq
	for i, r := range rules {
		if r == nil {
			continue
		}
		nr := r.Clone()
		nr.Normalize()
		if err := nr.Validate(); err != nil {
			return fmt.Errorf("rules[%d]: %w", i, err)
		}
		if conflict(next, nr, "") {
			return fmt.Errorf("rules[%d]: %w: %s", i, ErrDuplicatePattern, nr.PathPattern)
		}
		if nr.ID == "" {
			nr.ID = newID()
		}
		if nr.CreatedAt.IsZero() {
			nr.CreatedAt = now
		}
		nr.UpdatedAt = now
		seq++
		nr.seq = seq
		next = append(next, nr)
	}
	s.seq = seq
	s.publish(next)
	return nil
}

// publish sorts rules into natural order and installs a new snapshot.
// Callers must hold s.mu.
func (s *Store) publish(all []*Rule) {
	slices.SortStableFunc(all, func(a, b *Rule) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})

	enabled := make([]*Rule, 0, len(all))
	for _, r := range all {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	s.snap.Store(&snapshot{all: all, enabled: enabled})
}

// conflict reports whether another rule in the same project already uses r's pattern.
func conflict(rules []*Rule, r *Rule, excludeID string) bool {
	return slices.ContainsFunc(rules, func(x *Rule) bool {
		return x.ID != excludeID && x.ProjectID == r.ProjectID && x.PathPattern == r.PathPattern
	})
}

func filterProject(rules []*Rule, projectID string) []*Rule {
	out := make([]*Rule, 0, len(rules))
	for _, r := range rules {
		if r.ProjectID == projectID {
			out = append(out, r)
		}
	}
	return out
}

// newID returns a time-ordered identifier.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
