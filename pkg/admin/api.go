// Package admin serves the management API under /api/v1/ together with the
// health and metrics endpoints. It is the handler the interception gate
// falls through to.
package admin

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jackycchen/api-mock-platform/pkg/apidef"
	"github.com/jackycchen/api-mock-platform/pkg/logging"
	"github.com/jackycchen/api-mock-platform/pkg/metrics"
	"github.com/jackycchen/api-mock-platform/pkg/requestlog"
	"github.com/jackycchen/api-mock-platform/pkg/rule"
)

// RuleStore is the rule persistence the API manages.
type RuleStore interface {
	List(projectID string) []*rule.Rule
	Get(id string) (*rule.Rule, error)
	Create(r *rule.Rule) (*rule.Rule, error)
	Update(id string, r *rule.Rule) (*rule.Rule, error)
	SetEnabled(id string, enabled bool) (*rule.Rule, error)
	Delete(id string) error
	Count() (total, enabled int)
}

// DefinitionLister exposes the loaded API definitions.
type DefinitionLister interface {
	List(projectID string) []*apidef.Definition
}

// API is the management HTTP API.
type API struct {
	rules     RuleStore
	defs      DefinitionLister
	calls     requestlog.Store
	metrics   http.Handler
	cors      *CORSConfig
	log       *slog.Logger
	version   string
	startTime time.Time
	now       func() time.Time
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the API's logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *API) {
		if log != nil {
			a.log = log
		}
	}
}

// WithDefinitions exposes definitions under /api/v1/definitions.
func WithDefinitions(d DefinitionLister) Option {
	return func(a *API) { a.defs = d }
}

// WithCallLog exposes the call log under /api/v1/call-logs.
func WithCallLog(s requestlog.Store) Option {
	return func(a *API) { a.calls = s }
}

// WithMetricsHandler replaces the handler served at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *API) {
		if h != nil {
			a.metrics = h
		}
	}
}

// WithCORS enables CORS headers for the given configuration.
func WithCORS(cfg CORSConfig) Option {
	return func(a *API) { a.cors = &cfg }
}

// WithVersion sets the version reported by /api/v1/status.
func WithVersion(v string) Option {
	return func(a *API) { a.version = v }
}

// New creates the API around a rule store.
func New(rules RuleStore, opts ...Option) *API {
	a := &API{
		rules:     rules,
		metrics:   metrics.Handler(),
		log:       logging.Nop(),
		version:   "dev",
		startTime: time.Now(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.syncRuleMetrics()
	return a
}

// Handler returns the routed, middleware-wrapped handler.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	a.registerRoutes(mux)

	var h http.Handler = mux
	h = SecurityHeadersMiddleware(h)
	if a.cors != nil {
		h = NewCORSMiddleware(h, *a.cors)
	}
	h = RecoverMiddleware(h, a.log)
	return NewLoggingMiddleware(h, a.log)
}

func (a *API) syncRuleMetrics() {
	if a.rules == nil {
		return
	}
	metrics.SetRuleCounts(a.rules.Count())
}
