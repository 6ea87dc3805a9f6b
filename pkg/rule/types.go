package rule

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"

	"github.com/jackycchen/api-mock-platform/internal/matching"
)

// Mode selects how a matched request is answered.
type Mode uint8

// Dispatch modes. The zero value is invalid so an unset mode is caught by Validate.
const (
	ModeMock Mode = iota + 1
	ModeProxy
	ModeAuto
)

var modeNames = map[Mode]string{
	ModeMock:  "MOCK",
	ModeProxy: "PROXY",
	ModeAuto:  "AUTO",
}

// ParseMode parses a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MOCK":
		return ModeMock, nil
	case "PROXY":
		return ModeProxy, nil
	case "AUTO":
		return ModeAuto, nil
	default:
		return 0, fmt.Errorf("invalid mode %q (must be MOCK, PROXY or AUTO)", s)
	}
}

// String returns the upper-case mode name.
func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// Valid reports whether m is one of the defined modes.
func (m Mode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

// RequiresTarget reports whether rules in this mode need an upstream target.
func (m Mode) RequiresTarget() bool {
	return m == ModeProxy || m == ModeAuto
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid mode %d", uint8(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Rule routes requests whose path matches PathPattern.
type Rule struct {
	ID        string `json:"id" yaml:"id,omitempty"`
	ProjectID string `json:"projectId" yaml:"project,omitempty"`
	Name      string `json:"name" yaml:"name"`

	// PathPattern is an exact path, a "/prefix/*" wildcard or a "regex:" expression.
	PathPattern string `json:"pathPattern" yaml:"pathPattern"`
	Mode        Mode   `json:"mode" yaml:"mode"`

	// TargetURL is the upstream base URL. Required for PROXY and AUTO.
	TargetURL string `json:"targetUrl,omitempty" yaml:"targetUrl,omitempty"`

	// ForwardHeaders limits which inbound headers are forwarded upstream.
	// Empty means every header except the hop-by-hop deny-list.
	ForwardHeaders []string `json:"forwardHeaders,omitempty" yaml:"forwardHeaders,omitempty"`

	PreserveHost bool `json:"preserveHost" yaml:"preserveHost,omitempty"`
	Enabled      bool `json:"enabled" yaml:"enabled"`

	CreatedAt time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"-"`

	// seq breaks CreatedAt ties so store order is total.
	seq uint64
}

// ValidationError represents a rule validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// Validate reports the first problem with the rule as a *ValidationError.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if len(r.Name) > 100 {
		return &ValidationError{Field: "name", Message: "name must be at most 100 characters"}
	}
	if err := matching.ValidatePattern(r.PathPattern); err != nil {
		return &ValidationError{Field: "pathPattern", Message: err.Error()}
	}
	if !r.Mode.Valid() {
		return &ValidationError{Field: "mode", Message: "mode must be MOCK, PROXY or AUTO"}
	}
	if r.Mode.RequiresTarget() {
		if strings.TrimSpace(r.TargetURL) == "" {
			return &ValidationError{Field: "targetUrl", Message: fmt.Sprintf("targetUrl is required in %s mode", r.Mode)}
		}
	}
	if r.TargetURL != "" {
		if err := validateTarget(r.TargetURL); err != nil {
			return &ValidationError{Field: "targetUrl", Message: err.Error()}
		}
	}
	for _, h := range r.ForwardHeaders {
		if !httpguts.ValidHeaderFieldName(strings.TrimSpace(h)) {
			return &ValidationError{Field: "forwardHeaders", Message: fmt.Sprintf("invalid header name %q", h)}
		}
	}
	return nil
}

func validateTarget(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("target must be an absolute http or https url, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("target %q has no host", raw)
	}
	return nil
}

// Normalize trims user input in place: the target is trimmed and forward
// header names are trimmed with blanks and case-insensitive duplicates dropped.
func (r *Rule) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.PathPattern = strings.TrimSpace(r.PathPattern)
	r.TargetURL = strings.TrimSpace(r.TargetURL)

	if len(r.ForwardHeaders) == 0 {
		r.ForwardHeaders = nil
		return
	}
	seen := make(map[string]bool, len(r.ForwardHeaders))
	headers := make([]string, 0, len(r.ForwardHeaders))
	for _, h := range r.ForwardHeaders {
		h = strings.TrimSpace(h)
		key := strings.ToLower(h)
		if h == "" || seen[key] {
			continue
		}
		seen[key] = true
		headers = append(headers, h)
	}
	if len(headers) == 0 {
		headers = nil
	}
	r.ForwardHeaders = headers
}

// AllowsHeader reports whether the rule's forward-header policy admits name.
func (r *Rule) AllowsHeader(name string) bool {
	if len(r.ForwardHeaders) == 0 {
		return true
	}
	return slices.ContainsFunc(r.ForwardHeaders, func(h string) bool {
		return strings.EqualFold(h, name)
	})
}

// Matches reports whether path matches the rule's pattern.
func (r *Rule) Matches(path string) bool {
	return matching.MatchRule(path, r.PathPattern)
}

// Clone returns a deep copy of the rule.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}
	c := *r
	c.ForwardHeaders = slices.Clone(r.ForwardHeaders)
	return &c
}
