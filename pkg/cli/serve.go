package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackycchen/api-mock-platform/pkg/cli/internal/output"
	"github.com/jackycchen/api-mock-platform/pkg/config"
	"github.com/jackycchen/api-mock-platform/pkg/logging"
	"github.com/jackycchen/api-mock-platform/pkg/metrics"
)

// serveFlags holds the parsed command-line flags for the serve command.
type serveFlags struct {
	host           string
	port           int
	logLevel       string
	logFormat      string
	reloadInterval time.Duration
}

// serveFlagVals is the package-level instance bound to cobra flags.
var serveFlagVals serveFlags

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the interception gate and management API (foreground)",
	Long: `Start apimock in the foreground.

Requests under the mock namespaces that match an enabled routing rule are
answered by the gate (MOCK, PROXY or AUTO). All other requests reach the
management API under /api/v1/, /health and /metrics.

With --reload-interval, rules and definitions are reloaded when the config
file or a definition file changes.`,
	Example: `  # Start with apimock.yaml from the current directory
  apimock serve

  # Start with a config file on a custom port
  apimock serve --config deploy/apimock.yaml --port 9090

  # Reload rules every 5 seconds when the files change
  apimock serve --reload-interval 5s --log-level debug`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd, &serveFlagVals)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := &serveFlagVals
	serveCmd.Flags().StringVar(&f.host, "host", "", "Listen host (default: all interfaces)")
	serveCmd.Flags().IntVarP(&f.port, "port", "p", 0, "HTTP listen port (default: server.port)")
	serveCmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&f.logFormat, "log-format", "", "Log format (text, json)")
	serveCmd.Flags().DurationVar(&f.reloadInterval, "reload-interval", 0, "Poll interval for config reloads (0 = server.reloadInterval)")
}

// applyServeFlags overrides cfg with the flags that were set.
func applyServeFlags(cmd *cobra.Command, f *serveFlags, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = f.host
	}
	if flags.Changed("port") {
		cfg.Server.Port = f.port
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = f.logFormat
	}
	if flags.Changed("reload-interval") {
		cfg.Server.ReloadInterval = f.reloadInterval
	}
}

// newLogger builds the operational logger. The returned closer releases the
// log file, if any.
func newLogger(cfg *config.Config, stderr io.Writer) (*slog.Logger, func() error, error) {
	lc, err := cfg.Logging.LoggerConfig()
	if err != nil {
		return nil, nil, err
	}
	lc.Output = stderr

	closer := func() error { return nil }
	if cfg.Logging.File != "" {
		path := cfg.Resolve(cfg.Logging.File)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // path is chosen by the operator
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		lc.Mirror = f
		closer = f.Close
	}
	return logging.New(lc), closer, nil
}

func runServe(cmd *cobra.Command, f *serveFlags) error {
	cfg, path, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	applyServeFlags(cmd, f, cfg)
	if res := config.Validate(cfg); !res.IsValid() {
		return fmt.Errorf("invalid config %s:\n%w", describe(path), res)
	}

	log, closeLog, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	metrics.Init()

	version := buildVersion().Version
	st, err := newStack(cfg, log, version)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			output.Warn(cmd.ErrOrStderr(), "call log close error: %v", err)
		}
	}()

	ln, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Server.Addr(), err)
	}

	srv := &http.Server{
		Handler:           st.handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelWarn),
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	go runJanitor(ctx, st.calls, cfg.CallLog.Retention, cfg.CallLog.PurgeInterval, logging.Component(log, "calllog"))
	if path != "" && cfg.Server.ReloadInterval > 0 {
		w := newConfigWatcher(path, cfg, st, logging.Component(log, "reload"))
		go w.run(ctx, cfg.Server.ReloadInterval)
	}

	total, enabled := st.rules.Count()
	log.Info("apimock listening",
		"addr", ln.Addr().String(),
		"config", describe(path),
		"rules", total,
		"enabled", enabled,
		"definitions", st.catalog.Len(),
		"namespaces", cfg.Gate.Eligibility().Prefixes(),
		"callLog", cfg.CallLog.Backend,
		"version", version,
	)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}
