package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jackycchen/api-mock-platform/pkg/exchange"
	"github.com/jackycchen/api-mock-platform/pkg/logging"
	"github.com/jackycchen/api-mock-platform/pkg/metrics"
	"github.com/jackycchen/api-mock-platform/pkg/rule"
)

const (
	// DefaultConnectTimeout bounds dialing the upstream.
	DefaultConnectTimeout = 5 * time.Second
	// DefaultReadTimeout bounds waiting for the upstream response.
	DefaultReadTimeout = 30 * time.Second
	// DefaultMaxBodySize is the largest upstream response body relayed (10MB).
	DefaultMaxBodySize = 10 * 1024 * 1024
)

// ErrorPrefix starts the message of every forwarding failure envelope.
const ErrorPrefix = "Proxy forward error: "

// errBodyTooLarge is reported when the upstream body exceeds the limit.
var errBodyTooLarge = errors.New("upstream response body too large")

// Config holds per-deployment transport settings.
type Config struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxBodySize    int64
}

// DefaultConfig returns the default transport settings.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: DefaultConnectTimeout,
		ReadTimeout:    DefaultReadTimeout,
		MaxBodySize:    DefaultMaxBodySize,
	}
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = DefaultMaxBodySize
	}
	return c
}

// Forwarder sends requests to rule targets. It is safe for concurrent use.
type Forwarder struct {
	client *http.Client
	cfg    Config
	log    *slog.Logger
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(f *Forwarder) {
		if log != nil {
			f.log = log
		}
	}
}

// WithHTTPClient replaces the HTTP client. Its redirect policy is left as given.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Forwarder) {
		if c != nil {
			f.client = c
		}
	}
}

// New creates a Forwarder. Redirects are returned to the caller rather than
// followed, and transparent decompression is disabled so upstream bytes are
// relayed unchanged.
func New(cfg Config, opts ...Option) *Forwarder {
	cfg = cfg.withDefaults()

	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		DisableCompression:    true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}

	f := &Forwarder{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.ConnectTimeout + cfg.ReadTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		cfg: cfg,
		log: logging.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// TargetURL joins the rule target with the inbound path and query.
func TargetURL(target, path, rawQuery string) string {
	u := strings.TrimRight(target, "/") + path
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	return u
}

// Forward sends req to its rule's target and returns the upstream response,
// or a 502 envelope describing why there is none.
func (f *Forwarder) Forward(ctx context.Context, req *exchange.Request) (env *exchange.Envelope) {
	defer func() {
		if p := recover(); p != nil {
			f.log.Error("proxy forward panic", "panic", p)
			metrics.RecordProxyError("internal")
			env = failure(fmt.Errorf("internal error: %v", p))
		}
	}()

	if req == nil || req.Rule == nil {
		metrics.RecordProxyError("internal")
		return failure(errors.New("no rule attached to request"))
	}
	if strings.TrimSpace(req.Rule.TargetURL) == "" {
		metrics.RecordProxyError("internal")
		return failure(fmt.Errorf("rule %q has no target url", req.Rule.Name))
	}

	target := TargetURL(req.Rule.TargetURL, req.ForwardPath(), req.RawQuery)

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	// A client disconnect does not abort the upstream call; the client
	// timeout bounds it instead.
	outReq, err := http.NewRequestWithContext(context.WithoutCancel(ctx), req.Method, target, body)
	if err != nil {
		metrics.RecordProxyError("request")
		return failure(err)
	}

	outReq.Header = outboundHeaders(req.Header(), req.Rule)
	if req.ClientIP != "" {
		outReq.Header.Set("X-Forwarded-For", req.ClientIP)
	}
	outReq.Header.Set("X-Forwarded-Proto", req.Scheme)
	if req.Rule.PreserveHost && req.Host != "" {
		outReq.Host = req.Host
	}

	start := time.Now()
	resp, err := f.client.Do(outReq)
	if err != nil {
		metrics.RecordProxyError(classify(err))
		f.log.Warn("proxy forward failed",
			"rule", req.Rule.Name,
			"target", target,
			"error", err,
		)
		return failure(err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodySize+1))
	if err != nil {
		metrics.RecordProxyError(classify(err))
		f.log.Warn("reading upstream response failed", "rule", req.Rule.Name, "target", target, "error", err)
		return failure(fmt.Errorf("reading response body: %w", err))
	}
	if int64(len(respBody)) > f.cfg.MaxBodySize {
		metrics.RecordProxyError("response")
		return failure(fmt.Errorf("%w: limit %d bytes", errBodyTooLarge, f.cfg.MaxBodySize))
	}

	f.log.Debug("proxied request",
		"rule", req.Rule.Name,
		"method", req.Method,
		"target", target,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	out := exchange.NewEnvelope(resp.StatusCode, string(respBody), rule.ModeProxy)
	copyHeaders(out.Header, resp.Header)
	removeHopByHopHeaders(out.Header)
	out.Header.Set(exchange.HeaderMarker, rule.ModeProxy.String())
	return out
}

func failure(err error) *exchange.Envelope {
	return exchange.ErrorEnvelope(http.StatusBadGateway, ErrorPrefix+err.Error(), rule.ModeProxy)
}

// classify names the failure for the proxy error metric.
func classify(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	default:
		return "connection"
	}
}
