package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackycchen/api-mock-platform/pkg/apidef"
	"github.com/jackycchen/api-mock-platform/pkg/exchange"
	"github.com/jackycchen/api-mock-platform/pkg/logging"
	"github.com/jackycchen/api-mock-platform/pkg/rule"
)

// Messages carried by dispatcher error envelopes.
const (
	MsgAPINotFound     = "API not found"
	MsgNothingToServe  = "No mock or proxy target available"
	MsgMockErrorPrefix = "Mock generation error: "
)

// ErrUnknownMode is returned for a rule whose mode is not MOCK, PROXY or AUTO.
var ErrUnknownMode = errors.New("unknown dispatch mode")

// DefinitionFinder looks up the API definition for a request.
// A missing definition is reported as apidef.ErrNotFound.
type DefinitionFinder interface {
	Find(ctx context.Context, projectID, path, method string) (*apidef.Definition, error)
}

// Synthesizer renders a mock response body for a definition.
type Synthesizer interface {
	Synthesize(def *apidef.Definition) (string, error)
}

// Forwarder relays a request upstream. It always returns an envelope.
type Forwarder interface {
	Forward(ctx context.Context, req *exchange.Request) *exchange.Envelope
}

// Dispatcher routes matched requests to the mock or proxy path.
type Dispatcher struct {
	defs  DefinitionFinder
	synth Synthesizer
	fwd   Forwarder
	log   *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher's logger.
func WithLogger(log *slog.Logger) Option {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// New creates a Dispatcher.
func New(defs DefinitionFinder, synth Synthesizer, fwd Forwarder, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		defs:  defs,
		synth: synth,
		fwd:   fwd,
		log:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch answers req according to req.Rule.Mode.
func (d *Dispatcher) Dispatch(ctx context.Context, req *exchange.Request) (*exchange.Envelope, error) {
	if req == nil || req.Rule == nil {
		return nil, errors.New("dispatch: request has no matched rule")
	}

	switch req.Rule.Mode {
	case rule.ModeMock:
		return d.mock(ctx, req), nil
	case rule.ModeProxy:
		return d.proxy(ctx, req), nil
	case rule.ModeAuto:
		return d.auto(ctx, req), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, req.Rule.Mode)
	}
}

func (d *Dispatcher) mock(ctx context.Context, req *exchange.Request) *exchange.Envelope {
	def, err := d.find(ctx, req)
	switch {
	case errors.Is(err, apidef.ErrNotFound):
		return exchange.ErrorEnvelope(http.StatusNotFound, MsgAPINotFound, rule.ModeMock)
	case err != nil:
		d.log.Error("definition lookup failed", "rule", req.Rule.Name, "path", req.Path, "error", err)
		return exchange.ErrorEnvelope(http.StatusInternalServerError, MsgMockErrorPrefix+err.Error(), rule.ModeMock)
	}
	return d.synthesize(req, def)
}

func (d *Dispatcher) proxy(ctx context.Context, req *exchange.Request) *exchange.Envelope {
	if d.fwd == nil {
		return exchange.ErrorEnvelope(http.StatusBadGateway, "Proxy forward error: no forwarder configured", rule.ModeProxy)
	}
	return d.fwd.Forward(ctx, req)
}

// auto never retries: once a definition is found its outcome is final,
// even when synthesis fails.
func (d *Dispatcher) auto(ctx context.Context, req *exchange.Request) *exchange.Envelope {
	def, err := d.find(ctx, req)
	if err == nil {
		return d.synthesize(req, def)
	}
	if !errors.Is(err, apidef.ErrNotFound) {
		d.log.Warn("definition lookup failed, treating as absent",
			"rule", req.Rule.Name,
			"path", req.Path,
			"error", err,
		)
	}

	if strings.TrimSpace(req.Rule.TargetURL) != "" {
		return d.proxy(ctx, req)
	}
	return exchange.ErrorEnvelope(http.StatusNotFound, MsgNothingToServe, rule.ModeAuto)
}

func (d *Dispatcher) find(ctx context.Context, req *exchange.Request) (*apidef.Definition, error) {
	if d.defs == nil {
		return nil, apidef.ErrNotFound
	}
	def, err := d.defs.Find(ctx, req.ProjectID(), req.Path, req.Method)
	if err == nil && def == nil {
		return nil, apidef.ErrNotFound
	}
	return def, err
}

func (d *Dispatcher) synthesize(req *exchange.Request, def *apidef.Definition) (env *exchange.Envelope) {
	defer func() {
		if p := recover(); p != nil {
			d.log.Error("mock synthesis panicked", "rule", req.Rule.Name, "definition", def.Key(), "panic", p)
			env = exchange.ErrorEnvelope(http.StatusInternalServerError,
				fmt.Sprintf("%s%v", MsgMockErrorPrefix, p), rule.ModeMock)
		}
	}()

	if d.synth == nil {
		return exchange.ErrorEnvelope(http.StatusInternalServerError, MsgMockErrorPrefix+"no synthesizer configured", rule.ModeMock)
	}
	body, err := d.synth.Synthesize(def)
	if err != nil {
		d.log.Warn("mock synthesis failed", "rule", req.Rule.Name, "definition", def.Key(), "error", err)
		return exchange.ErrorEnvelope(http.StatusInternalServerError, MsgMockErrorPrefix+err.Error(), rule.ModeMock)
	}

	env = exchange.NewEnvelope(http.StatusOK, body, rule.ModeMock)
	env.Header.Set("Content-Type", "application/json")
	env.Header.Set(exchange.HeaderMarker, rule.ModeMock.String())
	return env
}
