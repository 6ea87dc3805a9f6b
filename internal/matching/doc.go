// Package matching decides whether a request path belongs to a routing rule
// or an API definition.
//
// Two families of patterns are supported:
//
//   - Rule patterns (MatchRule): exact paths, trailing "/*" prefix wildcards,
//     and "regex:"-prefixed RE2 expressions tested against the full path.
//   - Definition templates (MatchTemplate): slash-separated paths whose
//     "{name}" segments match any single segment.
//
// Matching is pure and safe for concurrent use. Compiled regular expressions
// are cached per pattern.
package matching
