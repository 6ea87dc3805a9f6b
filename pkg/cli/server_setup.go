package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jackycchen/api-mock-platform/pkg/admin"
	"github.com/jackycchen/api-mock-platform/pkg/apidef"
	"github.com/jackycchen/api-mock-platform/pkg/config"
	"github.com/jackycchen/api-mock-platform/pkg/dispatch"
	"github.com/jackycchen/api-mock-platform/pkg/gate"
	"github.com/jackycchen/api-mock-platform/pkg/logging"
	"github.com/jackycchen/api-mock-platform/pkg/metrics"
	"github.com/jackycchen/api-mock-platform/pkg/proxy"
	"github.com/jackycchen/api-mock-platform/pkg/requestlog"
	"github.com/jackycchen/api-mock-platform/pkg/rule"
	"github.com/jackycchen/api-mock-platform/pkg/synth"
)

// stack is the wired request path: gate in front of the management API.
type stack struct {
	log     *slog.Logger
	rules   *rule.Store
	catalog *apidef.Catalog
	calls   requestlog.Store // nil when the call log is disabled
	handler http.Handler
}

// newCatalog builds a catalog stripping the gate's namespaces.
func newCatalog(cfg *config.Config) *apidef.Catalog {
	return apidef.NewCatalog(apidef.WithNamespaces(cfg.Gate.Eligibility().Prefixes()...))
}

// newStack wires every component from cfg. The caller must Close it.
func newStack(cfg *config.Config, log *slog.Logger, version string) (*stack, error) {
	st := &stack{
		log:     log,
		rules:   rule.NewStore(),
		catalog: newCatalog(cfg),
	}
	if err := st.load(cfg); err != nil {
		return nil, err
	}

	calls, err := openCallLog(cfg, logging.Component(log, "calllog"))
	if err != nil {
		return nil, err
	}
	st.calls = calls

	fwd := proxy.New(cfg.Forwarder.ProxyConfig(), proxy.WithLogger(logging.Component(log, "proxy")))
	disp := dispatch.New(st.catalog, synth.New(), fwd, dispatch.WithLogger(logging.Component(log, "dispatch")))

	var recorder gate.Recorder
	if calls != nil {
		recorder = requestlog.NewRecorder(calls,
			requestlog.WithLogger(logging.Component(log, "calllog")),
			requestlog.WithMaxBodyBytes(cfg.CallLog.MaxBodyBytes),
		)
	}

	g := gate.New(st.rules, disp, recorder,
		gate.WithLogger(logging.Component(log, "gate")),
		gate.WithEligibility(cfg.Gate.Eligibility()),
		gate.WithMaxBodySize(cfg.Gate.MaxBodySize),
	)

	adminOpts := []admin.Option{
		admin.WithLogger(logging.Component(log, "admin")),
		admin.WithDefinitions(st.catalog),
		admin.WithVersion(version),
	}
	if calls != nil {
		adminOpts = append(adminOpts, admin.WithCallLog(calls))
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		adminOpts = append(adminOpts, admin.WithCORS(admin.CORSConfig{AllowedOrigins: cfg.Server.CORSOrigins}))
	}
	api := admin.New(st.rules, adminOpts...)

	st.handler = g.Wrap(api.Handler())
	return st, nil
}

// load replaces definitions and rules from cfg. Both sets are checked
// before either is swapped; nothing changes if one of them fails.
func (st *stack) load(cfg *config.Config) error {
	defs, err := config.LoadDefinitions(cfg)
	if err != nil {
		return fmt.Errorf("loading definitions: %w", err)
	}
	if err := newCatalog(cfg).Replace(defs); err != nil {
		return fmt.Errorf("loading definitions: %w", err)
	}
	rules := cfg.RoutingRules()
	if err := rule.NewStore().Replace(rules); err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}

	if err := st.catalog.Replace(defs); err != nil {
		return fmt.Errorf("loading definitions: %w", err)
	}
	if err := st.rules.Replace(rules); err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}
	metrics.SetRuleCounts(st.rules.Count())
	return nil
}

// Close flushes and closes the call log.
func (st *stack) Close() error {
	if st.calls == nil {
		return nil
	}
	return st.calls.Close()
}

// openCallLog returns nil when the backend is "none".
func openCallLog(cfg *config.Config, log *slog.Logger) (requestlog.Store, error) {
	switch cfg.CallLog.Backend {
	case config.CallLogNone:
		return nil, nil
	case config.CallLogSQLite:
		sc := cfg.CallLog.SQLiteConfig(cfg.Resolve)
		if err := os.MkdirAll(filepath.Dir(sc.Path), 0o750); err != nil {
			return nil, fmt.Errorf("creating call log directory: %w", err)
		}
		s, err := requestlog.NewSQLiteStore(sc, log)
		if err != nil {
			return nil, fmt.Errorf("opening call log: %w", err)
		}
		log.Info("call log opened", "backend", "sqlite", "path", sc.Path)
		return s, nil
	case config.CallLogMemory, "":
		return requestlog.NewMemoryStore(cfg.CallLog.Capacity), nil
	default:
		return nil, fmt.Errorf("unknown call log backend %q", cfg.CallLog.Backend)
	}
}

// purgeCallLog deletes records older than retention.
func purgeCallLog(ctx context.Context, calls requestlog.Store, retention time.Duration, now time.Time) (int64, error) {
	return calls.PurgeOlderThan(ctx, now.Add(-retention))
}

// runJanitor purges expired call-log records every interval until ctx ends.
func runJanitor(ctx context.Context, calls requestlog.Store, retention, interval time.Duration, log *slog.Logger) {
	if calls == nil || retention <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := purgeCallLog(ctx, calls, retention, now)
			if err != nil {
				log.Warn("call log purge failed", "error", err)
				continue
			}
			if n > 0 {
				log.Info("call log purged", "deleted", n, "retention", retention)
			}
		}
	}
}
