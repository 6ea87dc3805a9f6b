package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackycchen/api-mock-platform/pkg/apidef"
	"github.com/jackycchen/api-mock-platform/pkg/httputil"
	"github.com/jackycchen/api-mock-platform/pkg/requestlog"
	"github.com/jackycchen/api-mock-platform/pkg/rule"
)

type fixture struct {
	api   *API
	h     http.Handler
	rules *rule.Store
	calls *requestlog.MemoryStore
	now   time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	catalog := apidef.NewCatalog()
	require.NoError(t, catalog.Replace([]*apidef.Definition{
		{ProjectID: "p1", Name: "get user", Path: "/users/{id}", Method: "GET"},
		{ProjectID: "p2", Name: "list orders", Path: "/orders/list", Method: "GET"},
	}))

	f := &fixture{
		rules: rule.NewStore(),
		calls: requestlog.NewMemoryStore(100),
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	base := []Option{
		WithDefinitions(catalog),
		WithCallLog(f.calls),
		WithVersion("1.2.3"),
	}
	f.api = New(f.rules, append(base, opts...)...)
	f.api.now = func() time.Time { return f.now }
	f.api.startTime = f.now.Add(-90 * time.Second)
	f.h = f.api.Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func validRule() map[string]any {
	return map[string]any{
		"projectId":   "p1",
		"name":        "users",
		"pathPattern": "/mock/users/*",
		"mode":        "AUTO",
		"targetUrl":   "https://api.example.com",
	}
}

func TestHealthAndStatus(t *testing.T) {
	f := newFixture(t)
	_, err := f.rules.Create(&rule.Rule{Name: "a", PathPattern: "/mock/a", Mode: rule.ModeMock, Enabled: true})
	require.NoError(t, err)
	require.NoError(t, f.calls.Append(context.Background(), &requestlog.Record{ID: "c1"}))

	rec := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, int64(90), health.Uptime)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = f.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[StatusResponse](t, rec)
	assert.Equal(t, "1.2.3", status.Version)
	assert.Equal(t, 1, status.RulesTotal)
	assert.Equal(t, 1, status.RulesEnabled)
	assert.Equal(t, 2, status.Definitions)
	require.NotNil(t, status.CallLogs)
	assert.Equal(t, 1, *status.CallLogs)
}

func TestRules_CRUD(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/rules", validRule())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[rule.Rule](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.Enabled, "enabled defaults to true")
	assert.Equal(t, rule.ModeAuto, created.Mode)

	rec = f.do(t, http.MethodGet, "/api/v1/rules/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "users", decode[rule.Rule](t, rec).Name)

	upd := validRule()
	upd["name"] = "users-v2"
	upd["mode"] = "mock"
	rec = f.do(t, http.MethodPut, "/api/v1/rules/"+created.ID, upd)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[rule.Rule](t, rec)
	assert.Equal(t, "users-v2", updated.Name)
	assert.Equal(t, rule.ModeMock, updated.Mode)
	assert.True(t, updated.Enabled, "update keeps enabled state when omitted")

	rec = f.do(t, http.MethodPatch, "/api/v1/rules/"+created.ID+"/enabled", map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[rule.Rule](t, rec).Enabled)

	rec = f.do(t, http.MethodGet, "/api/v1/rules?project=p1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[RulesResponse](t, rec)
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, 0, list.Enabled)

	rec = f.do(t, http.MethodGet, "/api/v1/rules?project=other", nil)
	assert.JSONEq(t, `{"rules":[],"total":0,"enabled":0}`, rec.Body.String())

	rec = f.do(t, http.MethodDelete, "/api/v1/rules/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/rules/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRules_Errors(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/rules", validRule()).Code)

	tests := []struct {
		name       string
		method     string
		target     string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"duplicate pattern", http.MethodPost, "/api/v1/rules", validRule(), http.StatusConflict, "duplicate_pattern"},
		{"malformed json", http.MethodPost, "/api/v1/rules", `{"name":`, http.StatusBadRequest, "invalid_json"},
		{"unknown field", http.MethodPost, "/api/v1/rules", `{"name":"x","bogus":1}`, http.StatusBadRequest, "invalid_json"},
		{"bad mode", http.MethodPost, "/api/v1/rules", `{"name":"x","pathPattern":"/mock/x","mode":"SIDEWAYS"}`, http.StatusBadRequest, "invalid_json"},
		{"missing target", http.MethodPost, "/api/v1/rules", `{"name":"x","pathPattern":"/mock/x","mode":"PROXY"}`, http.StatusBadRequest, "validation_error"},
		{"empty body", http.MethodPost, "/api/v1/rules", nil, http.StatusBadRequest, "invalid_json"},
		{"get missing", http.MethodGet, "/api/v1/rules/nope", nil, http.StatusNotFound, "not_found"},
		{"update missing", http.MethodPut, "/api/v1/rules/nope", validRule(), http.StatusNotFound, "not_found"},
		{"delete missing", http.MethodDelete, "/api/v1/rules/nope", nil, http.StatusNotFound, "not_found"},
		{"toggle missing", http.MethodPatch, "/api/v1/rules/nope/enabled", map[string]bool{"enabled": true}, http.StatusNotFound, "not_found"},
		{"toggle without flag", http.MethodPatch, "/api/v1/rules/nope/enabled", `{}`, http.StatusBadRequest, "validation_error"},
		{"unknown route", http.MethodGet, "/api/v1/nothing", nil, http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.target, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			resp := decode[httputil.ErrorResponse](t, rec)
			assert.Equal(t, tt.wantCode, resp.Error)
			assert.Equal(t, tt.wantStatus, resp.Code)
		})
	}
}

func TestRules_ValidationDetail(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/rules", `{"name":"x","pathPattern":"nope","mode":"MOCK"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Details fieldDetail `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pathPattern", resp.Details.Field)
}

func TestDefinitions(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/definitions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[DefinitionsResponse](t, rec).Count)

	rec = f.do(t, http.MethodGet, "/api/v1/definitions?project=p2", nil)
	got := decode[DefinitionsResponse](t, rec)
	require.Len(t, got.Definitions, 1)
	assert.Equal(t, "/orders/list", got.Definitions[0].Path)

	bare := New(rule.NewStore()).Handler()
	rr := httptest.NewRecorder()
	bare.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/definitions", nil))
	assert.JSONEq(t, `{"definitions":[],"count":0}`, rr.Body.String())
}

func seedCallLogs(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	recs := []*requestlog.Record{
		{ID: "old", RuleID: "r1", Mode: "MOCK", Method: "GET", Path: "/mock/users/1", ResponseStatus: 200, CreatedAt: f.now.Add(-48 * time.Hour)},
		{ID: "mid", RuleID: "r1", Mode: "PROXY", Method: "POST", Path: "/mock/orders", ResponseStatus: 502, CreatedAt: f.now.Add(-2 * time.Hour)},
		{ID: "new", RuleID: "r2", ProjectID: "p2", Mode: "AUTO", Method: "GET", Path: "/mock/users/2", ResponseStatus: 404, CreatedAt: f.now.Add(-time.Minute)},
	}
	for _, r := range recs {
		require.NoError(t, f.calls.Append(ctx, r))
	}
}

func TestCallLogs_List(t *testing.T) {
	f := newFixture(t)
	seedCallLogs(t, f)

	tests := []struct {
		name    string
		query   url.Values
		wantIDs []string
	}{
		{"all newest first", nil, []string{"new", "mid", "old"}},
		{"by rule", url.Values{"ruleId": {"r1"}}, []string{"mid", "old"}},
		{"by method", url.Values{"method": {"post"}}, []string{"mid"}},
		{"by path prefix", url.Values{"path": {"/mock/users"}}, []string{"new", "old"}},
		{"by status", url.Values{"status": {"502"}}, []string{"mid"}},
		{"by mode", url.Values{"mode": {"auto"}}, []string{"new"}},
		{"by project", url.Values{"project": {"p2"}}, []string{"new"}},
		{"limit and offset", url.Values{"limit": {"1"}, "offset": {"1"}}, []string{"mid"}},
		{"since", url.Values{"since": {f.now.Add(-3 * time.Hour).Format(time.RFC3339)}}, []string{"new", "mid"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/api/v1/call-logs?"+tt.query.Encode(), nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			resp := decode[CallLogsResponse](t, rec)
			ids := make([]string, 0, len(resp.Items))
			for _, it := range resp.Items {
				ids = append(ids, it.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, len(tt.wantIDs), resp.Count)
			assert.Equal(t, 3, resp.Total)
		})
	}
}

func TestCallLogs_ListRejectsBadQuery(t *testing.T) {
	f := newFixture(t)
	for _, q := range []string{"limit=0", "limit=x", "offset=-1", "status=42", "since=yesterday"} {
		t.Run(q, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/api/v1/call-logs?"+q, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCallLogs_LimitIsCapped(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/call-logs?limit=50000", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, MaxListLimit, decode[CallLogsResponse](t, rec).Limit)
}

func TestCallLogs_GetAndPurge(t *testing.T) {
	f := newFixture(t)
	seedCallLogs(t, f)

	rec := f.do(t, http.MethodGet, "/api/v1/call-logs/mid", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 502, decode[requestlog.Record](t, rec).ResponseStatus)

	rec = f.do(t, http.MethodGet, "/api/v1/call-logs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/v1/call-logs", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "olderThan is required")

	rec = f.do(t, http.MethodDelete, "/api/v1/call-logs?olderThan=soon", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/v1/call-logs?olderThan=24h", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	purge := decode[PurgeResponse](t, rec)
	assert.Equal(t, int64(1), purge.Deleted)
	assert.True(t, purge.Before.Equal(f.now.Add(-24*time.Hour)))

	n, err := f.calls.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCallLogs_NotConfigured(t *testing.T) {
	h := New(rule.NewStore()).Handler()
	for _, target := range []string{"/api/v1/call-logs", "/api/v1/call-logs/x"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Contains(t, rr.Body.String(), "not_configured")
	}
}

type failingCalls struct {
	*requestlog.MemoryStore
}

func (failingCalls) List(context.Context, *requestlog.Filter) ([]*requestlog.Record, error) {
	return nil, errors.New("disk on fire")
}

func TestCallLogs_StoreFailureIsInternal(t *testing.T) {
	f := newFixture(t, WithCallLog(failingCalls{requestlog.NewMemoryStore(1)}))
	rec := f.do(t, http.MethodGet, "/api/v1/call-logs", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk on fire")
}

func TestCORS(t *testing.T) {
	f := newFixture(t, WithCORS(CORSConfig{AllowedOrigins: []string{"https://ui.example.com"}}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/rules", nil)
	req.Header.Set("Origin", "https://ui.example.com")
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://ui.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

type panickingRules struct{ *rule.Store }

func (panickingRules) List(string) []*rule.Rule { panic("boom") }

func TestRecoverMiddleware(t *testing.T) {
	h := New(panickingRules{rule.NewStore()}).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
}

func TestMetricsEndpoint(t *testing.T) {
	h := New(rule.NewStore(), WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("apimock_up 1\n"))
	}))).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, "apimock_up 1\n", rec.Body.String())
}
