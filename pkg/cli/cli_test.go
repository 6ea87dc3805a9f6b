package cli

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackycchen/api-mock-platform/pkg/config"
	"github.com/jackycchen/api-mock-platform/pkg/exchange"
	"github.com/jackycchen/api-mock-platform/pkg/logging"
	"github.com/jackycchen/api-mock-platform/pkg/requestlog"
	"github.com/jackycchen/api-mock-platform/pkg/rule"
)

func parseConfig(t *testing.T, doc string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(doc))
	require.NoError(t, err)
	require.True(t, config.Validate(cfg).IsValid())
	return cfg
}

func startStack(t *testing.T, cfg *config.Config) (*stack, *httptest.Server) {
	t.Helper()
	st, err := newStack(cfg, logging.Nop(), "test")
	require.NoError(t, err)
	srv := httptest.NewServer(st.handler)
	t.Cleanup(func() {
		srv.Close()
		_ = st.Close()
	})
	return st, srv
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url) //nolint:noctx // test helper
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestStack_MockAndFallthrough(t *testing.T) {
	cfg := parseConfig(t, `
definitions:
  inline:
    - path: /users/{id}
      method: GET
rules:
  - name: users
    pathPattern: /mock/users/*
    mode: MOCK
`)
	st, srv := startStack(t, cfg)

	resp, body := get(t, srv.URL+"/mock/users/42")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "MOCK", resp.Header.Get(exchange.HeaderMarker))

	var env struct {
		Code int            `json:"code"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &env))
	assert.Equal(t, 200, env.Code)
	assert.NotEmpty(t, env.Data)

	// No rule matches: the management API answers.
	resp, body = get(t, srv.URL+"/mock/orders/1")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(exchange.HeaderMarker))
	assert.Contains(t, body, "not_found")

	resp, body = get(t, srv.URL+"/api/v1/rules")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"pathPattern":"/mock/users/*"`)

	// The record is appended after the response is written.
	require.Eventually(t, func() bool {
		n, _ := st.calls.Count(context.Background())
		return n == 1
	}, 2*time.Second, 10*time.Millisecond)

	resp, body = get(t, srv.URL+"/api/v1/call-logs")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var logs struct {
		Items []requestlog.Record `json:"items"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &logs))
	require.Len(t, logs.Items, 1)
	assert.Equal(t, "/mock/users/42", logs.Items[0].Path)
	assert.Equal(t, "MOCK", logs.Items[0].Mode)

	total, enabled := st.rules.Count()
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, enabled)
}

func TestStack_LoadKeepsStateOnBadRules(t *testing.T) {
	cfg := parseConfig(t, `
definitions:
  inline:
    - path: /users/{id}
      method: GET
rules:
  - name: users
    pathPattern: /mock/users/*
    mode: MOCK
`)
	st, _ := startStack(t, cfg)

	next, err := config.Parse([]byte(`
definitions:
  inline:
    - path: /orders/{id}
      method: GET
rules:
  - name: orders
    pathPattern: /mock/orders/*
    mode: MOCK
  - name: orders-again
    pathPattern: /mock/orders/*
    mode: MOCK
`))
	require.NoError(t, err)

	err = st.load(next)
	require.ErrorIs(t, err, rule.ErrDuplicatePattern)

	defs := st.catalog.List("")
	require.Len(t, defs, 1)
	assert.Equal(t, "/users/{id}", defs[0].Path)

	rules := st.rules.List("")
	require.Len(t, rules, 1)
	assert.Equal(t, "users", rules[0].Name)
}

func TestStack_AutoFallsBackToUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"from":"upstream","path":"` + r.URL.Path + `"}`))
	}))
	t.Cleanup(upstream.Close)

	cfg := parseConfig(t, `
callLog:
  backend: none
rules:
  - name: orders
    pathPattern: /mock/orders/*
    mode: AUTO
    targetUrl: `+upstream.URL+`
`)
	st, srv := startStack(t, cfg)
	assert.Nil(t, st.calls)

	resp, body := get(t, srv.URL+"/mock/orders/7")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "PROXY", resp.Header.Get(exchange.HeaderMarker))
	assert.Contains(t, body, `"from":"upstream"`)

	resp, _ = get(t, srv.URL+"/api/v1/call-logs")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "call log disabled")
}

func TestNewStack_RejectsBadDefinitions(t *testing.T) {
	cfg := parseConfig(t, `
definitions:
  files: ["missing.yaml"]
`)
	_, err := newStack(cfg, logging.Nop(), "test")
	assert.Error(t, err)
}

func TestOpenCallLog(t *testing.T) {
	cfg := config.Default()

	cfg.CallLog.Backend = config.CallLogNone
	s, err := openCallLog(cfg, logging.Nop())
	require.NoError(t, err)
	assert.Nil(t, s)

	cfg.CallLog.Backend = config.CallLogMemory
	s, err = openCallLog(cfg, logging.Nop())
	require.NoError(t, err)
	assert.IsType(t, &requestlog.MemoryStore{}, s)

	cfg.CallLog.Backend = config.CallLogSQLite
	cfg.CallLog.Path = filepath.Join(t.TempDir(), "nested", "calls.db")
	s, err = openCallLog(cfg, logging.Nop())
	require.NoError(t, err)
	assert.IsType(t, &requestlog.SQLiteStore{}, s)
	require.NoError(t, s.Close())
	assert.FileExists(t, cfg.CallLog.Path)

	cfg.CallLog.Backend = "kafka"
	_, err = openCallLog(cfg, logging.Nop())
	assert.Error(t, err)
}

func TestPurgeCallLog(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	calls := requestlog.NewMemoryStore(10)
	require.NoError(t, calls.Append(ctx, &requestlog.Record{ID: "old", CreatedAt: now.Add(-8 * 24 * time.Hour)}))
	require.NoError(t, calls.Append(ctx, &requestlog.Record{ID: "new", CreatedAt: now.Add(-time.Hour)}))

	n, err := purgeCallLog(ctx, calls, 7*24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = calls.Get(ctx, "old")
	assert.ErrorIs(t, err, requestlog.ErrNotFound)
}

func TestRunJanitor_StopsWithContext(t *testing.T) {
	calls := requestlog.NewMemoryStore(10)
	require.NoError(t, calls.Append(context.Background(), &requestlog.Record{ID: "old", CreatedAt: time.Now().Add(-time.Hour)}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runJanitor(ctx, calls, time.Minute, 10*time.Millisecond, logging.Nop())
		close(done)
	}()

	require.Eventually(t, func() bool {
		n, _ := calls.Count(context.Background())
		return n == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop")
	}
}

const reloadV1 = `
rules:
  - name: first
    pathPattern: /mock/first/*
    mode: MOCK
`

const reloadV2 = `
definitions:
  files: ["defs.yaml"]
rules:
  - name: second
    pathPattern: /mock/second/*
    mode: MOCK
  - name: third
    pathPattern: /mock/third/*
    mode: MOCK
    enabled: false
`

func writeConfig(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestConfigWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "apimock.yaml")
	base := time.Now().Add(-time.Hour)
	writeConfig(t, path, reloadV1, base)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	st, err := newStack(cfg, logging.Nop(), "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	w := newConfigWatcher(path, cfg, st, logging.Nop())
	assert.False(t, w.check(), "nothing changed")

	writeConfig(t, filepath.Join(dir, "defs.yaml"), "- path: /second/{id}\n  method: GET\n", base)
	writeConfig(t, path, reloadV2, base.Add(time.Minute))
	require.True(t, w.check())

	rules := st.rules.List("")
	require.Len(t, rules, 2)
	assert.Equal(t, "second", rules[0].Name)
	assert.False(t, rules[1].Enabled)
	assert.Equal(t, 1, st.catalog.Len())

	// A changed definition file alone triggers a reload.
	writeConfig(t, filepath.Join(dir, "defs.yaml"), "- path: /second/{id}\n  method: GET\n- path: /second\n  method: POST\n", base.Add(2*time.Minute))
	require.True(t, w.check())
	assert.Equal(t, 2, st.catalog.Len())

	// An invalid file keeps the running rules.
	writeConfig(t, path, strings.Replace(reloadV2, "mode: MOCK", "mode: PROXY", 1), base.Add(3*time.Minute))
	assert.False(t, w.check())
	assert.Len(t, st.rules.List(""), 2)
	assert.Equal(t, "second", st.rules.List("")[0].Name)

	// The failed version is not retried until the file changes again.
	assert.False(t, w.check())
}

func TestApplyServeFlags(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, serveCmd.Flags().Set("port", "9191"))
	require.NoError(t, serveCmd.Flags().Set("log-level", "debug"))
	require.NoError(t, serveCmd.Flags().Set("reload-interval", "3s"))

	applyServeFlags(serveCmd, &serveFlagVals, cfg)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 3*time.Second, cfg.Server.ReloadInterval)
	assert.Equal(t, "text", cfg.Logging.Format, "unset flags leave the config alone")
}

func TestNewLogger_MirrorsToFile(t *testing.T) {
	dir := t.TempDir()
	cfg := parseConfig(t, `
logging:
  level: warn
  file: apimock.log
`)
	// Relative log files resolve against the working directory without a config file.
	cfg.Logging.File = filepath.Join(dir, "apimock.log")

	var stderr strings.Builder
	log, closeLog, err := newLogger(cfg, &stderr)
	require.NoError(t, err)
	log.Info("hidden")
	log.Warn("upstream slow", "rule", "orders")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(cfg.Logging.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"upstream slow"`)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, stderr.String(), "upstream slow")

	cfg.Logging.Level = "loud"
	_, _, err = newLogger(cfg, &stderr)
	assert.Error(t, err)
}

func TestRenderStarter(t *testing.T) {
	data, err := renderStarter(defaultStarterAnswers())
	require.NoError(t, err)
	cfg, err := config.Parse(data)
	require.NoError(t, err)
	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, "demo", cfg.Rules[0].Project)
	assert.Equal(t, "https://api.example.com", cfg.Rules[0].TargetURL)

	mock := defaultStarterAnswers()
	mock.Mode, mock.TargetURL = "MOCK", ""
	data, err = renderStarter(mock)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "targetUrl")

	bad := defaultStarterAnswers()
	bad.Mode = "RECORD"
	_, err = renderStarter(bad)
	assert.Error(t, err)

	noTarget := defaultStarterAnswers()
	noTarget.Mode, noTarget.TargetURL = "PROXY", ""
	_, err = renderStarter(noTarget)
	assert.Error(t, err)
}

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, path, err := loadConfig("")
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, 8080, cfg.Server.Port)

	require.NoError(t, os.WriteFile(config.DefaultFile, []byte("server:\n  port: 7000\n"), 0o600))
	cfg, path, err = loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultFile, path)
	assert.Equal(t, 7000, cfg.Server.Port)
}
