// Package apidef holds the API definitions that MOCK and AUTO rules answer
// from, and the loaders that import them from YAML files and OpenAPI
// documents.
package apidef

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jackycchen/api-mock-platform/internal/matching"
)

// Definition describes one mockable API operation.
type Definition struct {
	ID          string `json:"id" yaml:"id,omitempty"`
	ProjectID   string `json:"projectId,omitempty" yaml:"project,omitempty"`
	Name        string `json:"name" yaml:"name,omitempty"`
	Path        string `json:"path" yaml:"path"`
	Method      string `json:"method" yaml:"method"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// ValidationError represents a definition validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

var knownMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

// Normalize upper-cases the method and trims the path.
func (d *Definition) Normalize() {
	d.Method = strings.ToUpper(strings.TrimSpace(d.Method))
	d.Path = strings.TrimSpace(d.Path)
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		d.Name = d.Method + " " + d.Path
	}
}

// Validate checks that the definition can be looked up.
func (d *Definition) Validate() error {
	if d.Path == "" {
		return &ValidationError{Field: "path", Message: "path is required"}
	}
	if !strings.HasPrefix(d.Path, "/") {
		return &ValidationError{Field: "path", Message: fmt.Sprintf("path %q must start with '/'", d.Path)}
	}
	if !knownMethods[strings.ToUpper(d.Method)] {
		return &ValidationError{Field: "method", Message: fmt.Sprintf("unsupported method %q", d.Method)}
	}
	return nil
}

// Matches reports whether the definition answers method on path.
func (d *Definition) Matches(path, method string) bool {
	return strings.EqualFold(d.Method, method) && matching.MatchTemplate(d.Path, path)
}

// Key returns the identity used to deduplicate definitions.
func (d *Definition) Key() string {
	return d.ProjectID + " " + strings.ToUpper(d.Method) + " " + strings.ToLower(strings.Trim(d.Path, "/"))
}

// Clone returns a copy of the definition.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
