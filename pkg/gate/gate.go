package gate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackycchen/api-mock-platform/pkg/exchange"
	"github.com/jackycchen/api-mock-platform/pkg/logging"
	"github.com/jackycchen/api-mock-platform/pkg/metrics"
	"github.com/jackycchen/api-mock-platform/pkg/rule"
)

// Fallthrough reasons reported to metrics.
const (
	reasonNoMatch    = "no_match"
	reasonRuleSource = "rule_source"
	reasonError      = "error"
)

// RuleSource supplies the enabled rules in evaluation order.
type RuleSource interface {
	EnabledRules(ctx context.Context, projectID string) ([]*rule.Rule, error)
}

// Dispatcher turns a matched request into a response envelope.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *exchange.Request) (*exchange.Envelope, error)
}

// Recorder receives one call-log entry per handled request.
type Recorder interface {
	Record(ctx context.Context, req *exchange.Request, env *exchange.Envelope, elapsed time.Duration)
	RecordError(ctx context.Context, req *exchange.Request, message string, elapsed time.Duration)
}

// Gate intercepts requests that match a routing rule.
type Gate struct {
	rules       RuleSource
	dispatcher  Dispatcher
	recorder    Recorder
	eligibility *Eligibility
	maxBody     int64
	log         *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the gate's logger.
func WithLogger(log *slog.Logger) Option {
	return func(g *Gate) {
		if log != nil {
			g.log = log
		}
	}
}

// WithEligibility replaces the default namespace filter.
func WithEligibility(e *Eligibility) Option {
	return func(g *Gate) {
		if e != nil {
			g.eligibility = e
		}
	}
}

// WithMaxBodySize caps how much of a request body is captured.
func WithMaxBodySize(n int64) Option {
	return func(g *Gate) {
		if n > 0 {
			g.maxBody = n
		}
	}
}

// New creates a Gate.
func New(rules RuleSource, dispatcher Dispatcher, recorder Recorder, opts ...Option) *Gate {
	g := &Gate{
		rules:       rules,
		dispatcher:  dispatcher,
		recorder:    recorder,
		eligibility: NewEligibility(nil),
		maxBody:     exchange.DefaultMaxBodySize,
		log:         logging.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Wrap returns a handler that serves matched requests itself and passes
// everything else to next.
func (g *Gate) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.Handle(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handle serves r when a rule matches and reports whether it did. When it
// returns false nothing has been written to w and r.Body is intact.
func (g *Gate) Handle(w http.ResponseWriter, r *http.Request) bool {
	if r == nil || r.URL == nil || !g.eligibility.Eligible(r.URL.Path) {
		return false
	}

	matched, err := g.match(r.Context(), r.URL.Path)
	if err != nil {
		g.log.Warn("rule lookup failed, passing request through", "path", r.URL.Path, "error", err)
		metrics.RecordFallthrough(reasonRuleSource)
		return false
	}
	if matched == nil {
		metrics.RecordFallthrough(reasonNoMatch)
		return false
	}

	return g.serve(newCommitWriter(w), r, matched)
}

// Match returns the first enabled rule matching path, or nil.
func (g *Gate) Match(ctx context.Context, path string) (*rule.Rule, error) {
	return g.match(ctx, path)
}

func (g *Gate) match(ctx context.Context, path string) (matched *rule.Rule, err error) {
	defer func() {
		if p := recover(); p != nil {
			matched, err = nil, fmt.Errorf("rule matching panicked: %v", p)
		}
	}()

	if g.rules == nil {
		return nil, errors.New("no rule source configured")
	}
	rules, err := g.rules.EnabledRules(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, r := range rules {
		if r != nil && r.Enabled && r.Matches(path) {
			return r, nil
		}
	}
	return nil, nil
}

func (g *Gate) serve(w *commitWriter, r *http.Request, matched *rule.Rule) (handled bool) {
	var (
		req      *exchange.Request
		start    = time.Now()
		recorded bool
	)

	defer func() {
		if p := recover(); p != nil {
			handled = g.fail(w, r, req, matched, fmt.Errorf("panic: %v", p), time.Since(start), recorded)
		}
	}()

	req, body, err := exchange.Capture(r, matched, g.maxBody)
	restoreBody(r, body)
	if err != nil {
		return g.fail(w, r, req, matched, fmt.Errorf("capturing request: %w", err), time.Since(start), false)
	}

	start = time.Now()
	env, err := g.dispatcher.Dispatch(r.Context(), req)
	elapsed := time.Since(start)
	if err != nil {
		return g.fail(w, r, req, matched, fmt.Errorf("dispatching: %w", err), elapsed, false)
	}
	if env == nil {
		return g.fail(w, r, req, matched, errors.New("dispatcher returned no response"), elapsed, false)
	}

	if err := env.Write(w); err != nil {
		return g.fail(w, r, req, matched, fmt.Errorf("writing response: %w", err), elapsed, false)
	}

	if g.recorder != nil {
		g.recorder.Record(r.Context(), req, env, elapsed)
	}
	recorded = true

	metrics.RecordGateRequest(env.Mode.String(), w.status, elapsed)
	g.log.Debug("request handled by rule",
		"rule", matched.Name,
		"mode", env.Mode.String(),
		"method", r.Method,
		"path", r.URL.Path,
		"status", w.status,
		"duration", elapsed,
	)
	return true
}

// fail records the error and reports whether the request is finished. A
// request is only finished when part of the response already went out.
func (g *Gate) fail(w *commitWriter, r *http.Request, req *exchange.Request, matched *rule.Rule, err error, elapsed time.Duration, recorded bool) bool {
	if req == nil {
		req = exchange.NewRequest(matched, r.Method, r.URL.Path, r.URL.RawQuery, r.Header, "")
		req.ClientIP = exchange.ClientIP(r)
	}

	g.log.Error("rule handling failed",
		"rule", matched.Name,
		"path", r.URL.Path,
		"committed", w.committed,
		"error", err,
	)
	if !recorded {
		g.recordError(r.Context(), req, err.Error(), elapsed)
	}

	if w.committed {
		metrics.RecordGateRequest("ERROR", w.status, elapsed)
		return true
	}
	metrics.RecordFallthrough(reasonError)
	return false
}

// recordError isolates the recorder so a panic there cannot undo a fallthrough.
func (g *Gate) recordError(ctx context.Context, req *exchange.Request, message string, elapsed time.Duration) {
	defer func() {
		if p := recover(); p != nil {
			g.log.Error("recording gate error panicked", "panic", fmt.Sprint(p))
		}
	}()
	if g.recorder != nil {
		g.recorder.RecordError(ctx, req, message, elapsed)
	}
}

// restoreBody puts the consumed bytes back in front of whatever is left.
func restoreBody(r *http.Request, consumed []byte) {
	if r.Body == nil || r.Body == http.NoBody {
		return
	}
	rest := r.Body
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(consumed), rest), rest}
}
