package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/jackycchen/api-mock-platform/pkg/apidef"
	"github.com/jackycchen/api-mock-platform/pkg/logging"
	"github.com/jackycchen/api-mock-platform/pkg/rule"
)

// FieldError is a single config validation error.
type FieldError struct {
	Path    string `json:"path"` // config path, e.g. "rules[0].targetUrl"
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationResult collects every problem found in a config.
type ValidationResult struct {
	Errors []FieldError `json:"errors"`
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Error returns one line per error.
func (r *ValidationResult) Error() string {
	if r.IsValid() {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "\n")
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(path, message string) {
	r.Errors = append(r.Errors, FieldError{Path: path, Message: message})
}

// Validate checks the semantic constraints the schema cannot express.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}
	if cfg == nil {
		result.AddError("", "config is nil")
		return result
	}

	validateServer(cfg.Server, result)
	validateLogging(cfg.Logging, result)
	validateGate(cfg.Gate, result)
	validateForwarder(cfg.Forwarder, result)
	validateCallLog(cfg.CallLog, result)
	validateDefinitions(cfg.Definitions, result)
	validateRules(cfg.Rules, result)
	return result
}

func validateServer(s ServerConfig, result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.AddError("server.port", fmt.Sprintf("must be between 1 and 65535, got %d", s.Port))
	}
	if s.ReadTimeout < 0 || s.WriteTimeout < 0 || s.ShutdownTimeout < 0 {
		result.AddError("server", "timeouts must not be negative")
	}
	if s.ReloadInterval < 0 {
		result.AddError("server.reloadInterval", "must not be negative")
	}
}

func validateLogging(l LoggingConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(l.Level); err != nil {
		result.AddError("logging.level", err.Error())
	}
	if _, err := logging.ParseFormat(l.Format); err != nil {
		result.AddError("logging.format", err.Error())
	}
}

func validateGate(g GateConfig, result *ValidationResult) {
	if len(g.Namespaces) == 0 {
		result.AddError("gate.namespaces", "at least one namespace is required")
	}
	for i, ns := range g.Namespaces {
		if !strings.HasPrefix(ns, "/") || strings.TrimSpace(ns) == "/" {
			result.AddError(fmt.Sprintf("gate.namespaces[%d]", i), fmt.Sprintf("%q must start with '/' and not be the root", ns))
		}
	}
	for i, pattern := range g.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			result.AddError(fmt.Sprintf("gate.exclude[%d]", i), fmt.Sprintf("invalid glob %q", pattern))
		}
	}
	if g.MaxBodySize < 0 {
		result.AddError("gate.maxBodySize", "must not be negative")
	}
}

func validateForwarder(f ForwarderConfig, result *ValidationResult) {
	if f.ConnectTimeout <= 0 {
		result.AddError("forwarder.connectTimeout", "must be positive")
	}
	if f.ReadTimeout <= 0 {
		result.AddError("forwarder.readTimeout", "must be positive")
	}
	if f.MaxBodySize < 0 {
		result.AddError("forwarder.maxBodySize", "must not be negative")
	}
}

func validateCallLog(c CallLogConfig, result *ValidationResult) {
	switch normalizeBackend(c.Backend) {
	case CallLogMemory, CallLogNone:
	case CallLogSQLite:
		if strings.TrimSpace(c.Path) == "" {
			result.AddError("callLog.path", "required for the sqlite backend")
		}
	default:
		result.AddError("callLog.backend", fmt.Sprintf("unknown backend %q (must be memory, sqlite or none)", c.Backend))
	}
	if c.Retention < 0 {
		result.AddError("callLog.retention", "must not be negative")
	}
	if c.Retention > 0 && c.PurgeInterval <= 0 {
		result.AddError("callLog.purgeInterval", "must be positive when retention is set")
	}
}

func validateDefinitions(d DefinitionsConfig, result *ValidationResult) {
	for i, pattern := range d.Files {
		if !doublestar.ValidatePattern(pattern) {
			result.AddError(fmt.Sprintf("definitions.files[%d]", i), fmt.Sprintf("invalid glob %q", pattern))
		}
	}
	for i, pattern := range d.OpenAPI {
		if !doublestar.ValidatePattern(pattern) {
			result.AddError(fmt.Sprintf("definitions.openapi[%d]", i), fmt.Sprintf("invalid glob %q", pattern))
		}
	}
	for i, def := range d.Inline {
		path := fmt.Sprintf("definitions.inline[%d]", i)
		if def == nil {
			result.AddError(path, "definition is empty")
			continue
		}
		c := def.Clone()
		c.Normalize()
		if err := c.Validate(); err != nil {
			addFieldError(result, path, err)
		}
	}
}

func validateRules(rules []RuleConfig, result *ValidationResult) {
	seen := make(map[string]int, len(rules))
	for i, rc := range rules {
		path := fmt.Sprintf("rules[%d]", i)
		r := rc.Rule()
		r.Normalize()
		if err := r.Validate(); err != nil {
			addFieldError(result, path, err)
			continue
		}
		key := r.ProjectID + "\x00" + r.PathPattern
		if first, dup := seen[key]; dup {
			result.AddError(path+".pathPattern",
				fmt.Sprintf("%q duplicates rules[%d] in the same project", r.PathPattern, first))
			continue
		}
		seen[key] = i
	}
}

// addFieldError qualifies typed validation errors with their field name.
func addFieldError(result *ValidationResult, path string, err error) {
	var rerr *rule.ValidationError
	var derr *apidef.ValidationError
	switch {
	case errors.As(err, &rerr):
		result.AddError(path+"."+rerr.Field, rerr.Message)
	case errors.As(err, &derr):
		result.AddError(path+"."+derr.Field, derr.Message)
	default:
		result.AddError(path, err.Error())
	}
}
