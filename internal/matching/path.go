package matching

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// RegexPrefix marks a rule pattern whose remainder is a regular expression.
const RegexPrefix = "regex:"

// PatternKind identifies how a rule pattern is interpreted.
type PatternKind int

// Pattern kinds, in the order MatchRule tries them.
const (
	KindExact PatternKind = iota
	KindPrefix
	KindRegex
)

func (k PatternKind) String() string {
	switch k {
	case KindPrefix:
		return "prefix"
	case KindRegex:
		return "regex"
	default:
		return "exact"
	}
}

// KindOf reports the kind of a rule pattern.
func KindOf(pattern string) PatternKind {
	switch {
	case strings.HasPrefix(pattern, RegexPrefix):
		return KindRegex
	case strings.HasSuffix(pattern, "/*"):
		return KindPrefix
	default:
		return KindExact
	}
}

// regexCache holds compiled rule expressions keyed by their source.
// Invalid expressions are cached as nil so they are not recompiled per request.
var regexCache sync.Map // map[string]*regexp.Regexp

func compileCached(expr string) *regexp.Regexp {
	if v, ok := regexCache.Load(expr); ok {
		re, _ := v.(*regexp.Regexp)
		return re
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		re = nil
	}
	actual, _ := regexCache.LoadOrStore(expr, re)
	cached, _ := actual.(*regexp.Regexp)
	return cached
}

// MatchRule checks whether a request path matches a routing rule pattern.
//
// Patterns are tried in this order:
//   - Exact: "/mock/users" matches only "/mock/users"
//   - Prefix wildcard: "/mock/users/*" matches "/mock/users", "/mock/users/"
//     and anything below it, but not "/mock/usersX"
//   - Regex: "regex:^/v1/.*$" matches when the expression matches the path
//
// Nothing else matches. Comparison is case-sensitive and an invalid
// expression never matches.
func MatchRule(path, pattern string) bool {
	if pattern == "" || path == "" {
		return false
	}

	if pattern == path {
		return true
	}

	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}

	if expr, ok := strings.CutPrefix(pattern, RegexPrefix); ok {
		re := compileCached(expr)
		return re != nil && re.MatchString(path)
	}

	return false
}

// ValidatePattern checks that a rule pattern is well formed.
func ValidatePattern(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return errors.New("pattern is required")
	}

	if expr, ok := strings.CutPrefix(pattern, RegexPrefix); ok {
		if expr == "" {
			return errors.New("regex pattern is empty")
		}
		if _, err := regexp.Compile(expr); err != nil {
			return fmt.Errorf("invalid regex pattern: %w", err)
		}
		return nil
	}

	if !strings.HasPrefix(pattern, "/") {
		return fmt.Errorf("pattern %q must start with '/' or %q", pattern, RegexPrefix)
	}
	return nil
}

// MatchTemplate checks whether a path matches an API definition template.
// "{name}" segments match any single non-empty segment and literal segments
// are compared case-insensitively. Leading and trailing slashes are ignored.
//
// Example: "/users/{id}" matches "/users/42" and "/Users/42/".
func MatchTemplate(template, path string) bool {
	tparts := splitSegments(template)
	pparts := splitSegments(path)

	if len(tparts) != len(pparts) {
		return false
	}

	for i, tp := range tparts {
		if isParam(tp) {
			if pparts[i] == "" {
				return false
			}
			continue
		}
		if !strings.EqualFold(tp, pparts[i]) {
			return false
		}
	}
	return true
}

// IsTemplate reports whether a definition path contains "{name}" segments.
func IsTemplate(path string) bool {
	for _, seg := range splitSegments(path) {
		if isParam(seg) {
			return true
		}
	}
	return false
}

// TemplateParams extracts "{name}" values from a path that matches template.
// It returns nil when the path does not match.
func TemplateParams(template, path string) map[string]string {
	if !MatchTemplate(template, path) {
		return nil
	}
	tparts := splitSegments(template)
	pparts := splitSegments(path)

	params := make(map[string]string)
	for i, tp := range tparts {
		if isParam(tp) {
			params[tp[1:len(tp)-1]] = pparts[i]
		}
	}
	return params
}

func isParam(seg string) bool {
	return len(seg) > 2 && strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}")
}

func splitSegments(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
