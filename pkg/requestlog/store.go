package requestlog

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Errors returned by stores.
var (
	ErrNotFound   = errors.New("call log not found")
	ErrClosed     = errors.New("call log store closed")
	ErrBufferFull = errors.New("call log buffer full")
)

// Sink accepts call-log records.
type Sink interface {
	Append(ctx context.Context, rec *Record) error
}

// Store is a queryable Sink.
type Store interface {
	Sink

	// Get returns the record with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns records newest first.
	List(ctx context.Context, filter *Filter) ([]*Record, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// PurgeOlderThan deletes records created before t and returns how many
	// were removed.
	PurgeOlderThan(ctx context.Context, t time.Time) (int64, error)

	Close() error
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	RuleID    string
	ProjectID string
	Mode      string

	// Method matches case-insensitively.
	Method string

	// Path matches as a prefix.
	Path string

	Status int

	// Since and Until bound CreatedAt, inclusive and exclusive.
	Since time.Time
	Until time.Time

	Limit  int
	Offset int
}

// DefaultListLimit applies when Filter.Limit is not set.
const DefaultListLimit = 100

// Matches reports whether rec satisfies every set field.
func (f *Filter) Matches(rec *Record) bool {
	if f == nil {
		return true
	}
	switch {
	case f.RuleID != "" && rec.RuleID != f.RuleID:
		return false
	case f.ProjectID != "" && rec.ProjectID != f.ProjectID:
		return false
	case f.Mode != "" && !strings.EqualFold(rec.Mode, f.Mode):
		return false
	case f.Method != "" && !strings.EqualFold(rec.Method, f.Method):
		return false
	case f.Path != "" && !strings.HasPrefix(rec.Path, f.Path):
		return false
	case f.Status != 0 && rec.ResponseStatus != f.Status:
		return false
	case !f.Since.IsZero() && rec.CreatedAt.Before(f.Since):
		return false
	case !f.Until.IsZero() && !rec.CreatedAt.Before(f.Until):
		return false
	}
	return true
}

func (f *Filter) limit() int {
	if f == nil || f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

func (f *Filter) offset() int {
	if f == nil || f.Offset < 0 {
		return 0
	}
	return f.Offset
}
