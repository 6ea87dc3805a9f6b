package apidef

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackycchen/api-mock-platform/internal/matching"
)

// ErrNotFound is returned by Find when no definition answers the request.
var ErrNotFound = errors.New("api definition not found")

// DefaultNamespaces are the mock-namespace prefixes stripped during lookup.
var DefaultNamespaces = []string{"/api/mock/", "/mock/"}

// Catalog is an in-memory, concurrency-safe set of definitions.
type Catalog struct {
	mu         sync.RWMutex
	defs       []*Definition
	namespaces []string
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithNamespaces sets the prefixes stripped from request paths before the
// second lookup attempt.
func WithNamespaces(prefixes ...string) CatalogOption {
	return func(c *Catalog) {
		c.namespaces = slices.Clone(prefixes)
	}
}

// NewCatalog creates an empty catalog.
func NewCatalog(opts ...CatalogOption) *Catalog {
	c := &Catalog{namespaces: slices.Clone(DefaultNamespaces)}
	for _, opt := range opts {
		opt(c)
	}
	// Longest prefix first so "/api/mock/" wins over "/mock/".
	slices.SortFunc(c.namespaces, func(a, b string) int { return len(b) - len(a) })
	return c
}

// Put adds or replaces a definition. A definition with the same project,
// method and path replaces the existing one.
func (c *Catalog) Put(d *Definition) (*Definition, error) {
	if d == nil {
		return nil, &ValidationError{Field: "definition", Message: "definition is required"}
	}
	nd := d.Clone()
	nd.Normalize()
	if err := nd.Validate(); err != nil {
		return nil, err
	}
	if nd.ID == "" {
		nd.ID = uuid.NewString()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := nd.Key()
	for i, existing := range c.defs {
		if existing.ID == nd.ID || existing.Key() == key {
			c.defs[i] = nd
			return nd.Clone(), nil
		}
	}
	c.defs = append(c.defs, nd)
	return nd.Clone(), nil
}

// Delete removes a definition by ID.
func (c *Catalog) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := slices.IndexFunc(c.defs, func(d *Definition) bool { return d.ID == id })
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c.defs = slices.Delete(c.defs, idx, idx+1)
	return nil
}

// Replace swaps the whole catalog. Nothing changes if a definition is invalid.
func (c *Catalog) Replace(defs []*Definition) error {
	next := make([]*Definition, 0, len(defs))
	index := make(map[string]int, len(defs))
	for i, d := range defs {
		if d == nil {
			continue
		}
		nd := d.Clone()
		nd.Normalize()
		if err := nd.Validate(); err != nil {
			return fmt.Errorf("definitions[%d]: %w", i, err)
		}
		if nd.ID == "" {
			nd.ID = uuid.NewString()
		}
		if j, ok := index[nd.Key()]; ok {
			next[j] = nd
			continue
		}
		index[nd.Key()] = len(next)
		next = append(next, nd)
	}

	c.mu.Lock()
	c.defs = next
	c.mu.Unlock()
	return nil
}

// List returns copies of the definitions, optionally limited to one project.
func (c *Catalog) List(projectID string) []*Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Definition, 0, len(c.defs))
	for _, d := range c.defs {
		if projectID == "" || d.ProjectID == projectID {
			out = append(out, d.Clone())
		}
	}
	return out
}

// Len returns the number of definitions.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.defs)
}

// Find returns the definition answering method on path within projectID.
// Definitions without a project are shared by every project. The path is
// tried as given and then with its mock-namespace prefix removed; literal
// paths win over "{param}" templates.
func (c *Catalog) Find(ctx context.Context, projectID, path, method string) (*Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, candidate := range c.candidates(path) {
		if d := c.lookup(projectID, candidate, method); d != nil {
			return d.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
}

func (c *Catalog) candidates(path string) []string {
	out := []string{path}
	for _, ns := range c.namespaces {
		if rest, ok := strings.CutPrefix(path, ns); ok {
			out = append(out, "/"+rest)
			break
		}
	}
	return out
}

// lookup must be called with c.mu held.
func (c *Catalog) lookup(projectID, path, method string) *Definition {
	var templated *Definition
	for _, d := range c.defs {
		if projectID != "" && d.ProjectID != "" && d.ProjectID != projectID {
			continue
		}
		if !d.Matches(path, method) {
			continue
		}
		if !matching.IsTemplate(d.Path) {
			return d
		}
		if templated == nil {
			templated = d
		}
	}
	return templated
}
