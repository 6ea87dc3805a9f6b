package gate

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPrefixes are the mock namespaces the gate looks at.
var DefaultPrefixes = []string{"/api/mock/", "/mock/"}

// Eligibility is the cheap pre-filter run before any rule lookup.
// A path is eligible when it lies under one of the prefixes, has no file
// extension in its last segment and matches none of the exclude globs.
type Eligibility struct {
	prefixes []string
	exclude  []string
}

// NewEligibility creates a filter. An empty prefix list means DefaultPrefixes.
// Exclude patterns use doublestar syntax, e.g. "/mock/static/**".
func NewEligibility(prefixes []string, exclude ...string) *Eligibility {
	e := &Eligibility{}
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasSuffix(p, "/") {
			p += "/"
		}
		e.prefixes = append(e.prefixes, p)
	}
	if len(e.prefixes) == 0 {
		e.prefixes = append(e.prefixes, DefaultPrefixes...)
	}
	for _, x := range exclude {
		if x = strings.TrimSpace(x); x != "" && doublestar.ValidatePattern(x) {
			e.exclude = append(e.exclude, x)
		}
	}
	return e
}

// Prefixes returns the configured namespaces.
func (e *Eligibility) Prefixes() []string {
	return append([]string(nil), e.prefixes...)
}

// Eligible reports whether p may be handled by a rule.
func (e *Eligibility) Eligible(p string) bool {
	if !e.underPrefix(p) {
		return false
	}
	if path.Ext(p) != "" {
		return false
	}
	for _, pattern := range e.exclude {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return false
		}
	}
	return true
}

// underPrefix also admits the bare namespace without its trailing slash.
func (e *Eligibility) underPrefix(p string) bool {
	for _, prefix := range e.prefixes {
		if strings.HasPrefix(p, prefix) || p == strings.TrimSuffix(prefix, "/") {
			return true
		}
	}
	return false
}
