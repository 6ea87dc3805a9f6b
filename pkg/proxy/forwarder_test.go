package proxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackycchen/api-mock-platform/pkg/exchange"
	"github.com/jackycchen/api-mock-platform/pkg/rule"
)

func proxyRule(target string) *rule.Rule {
	return &rule.Rule{ID: "r1", Name: "upstream", PathPattern: "/mock/*", Mode: rule.ModeProxy, TargetURL: target, Enabled: true}
}

func capture(t *testing.T, r *http.Request, matched *rule.Rule) *exchange.Request {
	t.Helper()
	req, _, err := exchange.Capture(r, matched, 0)
	require.NoError(t, err)
	return req
}

func TestTargetURL(t *testing.T) {
	assert.Equal(t, "http://up/mock/a?x=1", TargetURL("http://up/", "/mock/a", "x=1"))
	assert.Equal(t, "http://up/base/mock/a", TargetURL("http://up/base", "/mock/a", ""))
	assert.Equal(t, "https://up/mock/a", TargetURL("https://up///", "/mock/a", ""))
}

func TestForward_RelaysResponse(t *testing.T) {
	type seen struct {
		req  *http.Request
		body string
	}
	seenCh := make(chan seen, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seenCh <- seen{req: r.Clone(context.Background()), body: string(b)}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Add("Set-Cookie", "a=1")
		w.Header().Add("Set-Cookie", "b=2")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":7}`))
	}))
	defer upstream.Close()

	in := httptest.NewRequest(http.MethodPost, "http://front.example/mock/users?page=2", strings.NewReader(`{"n":"x"}`))
	in.Header.Set("Authorization", "Bearer abc")
	in.Header.Set("Proxy-Authorization", "secret")
	in.Header.Set("Connection", "keep-alive")
	in.RemoteAddr = "192.0.2.10:5555"

	f := New(DefaultConfig())
	env := f.Forward(context.Background(), capture(t, in, proxyRule(upstream.URL+"/")))

	s := <-seenCh
	got, gotBody := s.req, s.body
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/mock/users", got.URL.Path)
	assert.Equal(t, "page=2", got.URL.RawQuery)
	assert.Equal(t, `{"n":"x"}`, gotBody)
	assert.Equal(t, "Bearer abc", got.Header.Get("Authorization"))
	assert.Empty(t, got.Header.Get("Proxy-Authorization"))
	assert.Equal(t, "192.0.2.10", got.Header.Get("X-Forwarded-For"))
	assert.Equal(t, "http", got.Header.Get("X-Forwarded-Proto"))
	assert.NotEqual(t, "front.example", got.Host)

	assert.Equal(t, http.StatusCreated, env.Status)
	assert.Equal(t, rule.ModeProxy, env.Mode)
	assert.Equal(t, `{"id":7}`, env.Body)
	assert.Equal(t, "PROXY", env.Header.Get(exchange.HeaderMarker))
	assert.Equal(t, []string{"a=1", "b=2"}, env.Header.Values("Set-Cookie"))
	assert.Empty(t, env.Header.Get("Content-Length"))
}

func TestForward_RelaysUpstreamErrors(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	in := httptest.NewRequest(http.MethodGet, "/mock/x", nil)
	env := New(DefaultConfig()).Forward(context.Background(), capture(t, in, proxyRule(upstream.URL)))

	assert.Equal(t, http.StatusServiceUnavailable, env.Status)
	assert.Equal(t, "boom\n", env.Body)
	assert.Equal(t, "PROXY", env.Header.Get(exchange.HeaderMarker))
}

func TestForward_Unreachable(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	target := upstream.URL
	upstream.Close()

	in := httptest.NewRequest(http.MethodGet, "/mock/x", nil)
	env := New(Config{ConnectTimeout: time.Second}).Forward(context.Background(), capture(t, in, proxyRule(target)))

	assert.Equal(t, http.StatusBadGateway, env.Status)
	assert.Equal(t, rule.ModeProxy, env.Mode)
	assert.Empty(t, env.Header.Get(exchange.HeaderMarker))

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(env.Body), &body))
	assert.True(t, strings.HasPrefix(body["message"].(string), ErrorPrefix), body["message"])
	assert.EqualValues(t, 502, body["code"])
}

func TestForward_ReadTimeout(t *testing.T) {
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer upstream.Close()
	defer close(release)

	in := httptest.NewRequest(http.MethodGet, "/mock/slow", nil)
	f := New(Config{ConnectTimeout: time.Second, ReadTimeout: 50 * time.Millisecond})
	env := f.Forward(context.Background(), capture(t, in, proxyRule(upstream.URL)))

	assert.Equal(t, http.StatusBadGateway, env.Status)
	assert.Contains(t, env.Body, ErrorPrefix)
}

func TestForward_AllowListAndPreserveHost(t *testing.T) {
	seenCh := make(chan *http.Request, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenCh <- r.Clone(context.Background())
	}))
	defer upstream.Close()

	r := proxyRule(upstream.URL)
	r.ForwardHeaders = []string{"X-Tenant"}
	r.PreserveHost = true

	in := httptest.NewRequest(http.MethodGet, "http://front.example/mock/x", nil)
	in.Header.Set("X-Tenant", "acme")
	in.Header.Set("Cookie", "session=1")

	env := New(DefaultConfig()).Forward(context.Background(), capture(t, in, r))
	require.Equal(t, http.StatusOK, env.Status)

	got := <-seenCh
	assert.Equal(t, "acme", got.Header.Get("X-Tenant"))
	assert.Empty(t, got.Header.Get("Cookie"))
	assert.Equal(t, "front.example", got.Host)
	assert.NotEmpty(t, got.Header.Get("X-Forwarded-Proto"), "forwarding headers are always added")
}

func TestForward_DoesNotFollowRedirects(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer upstream.Close()

	in := httptest.NewRequest(http.MethodGet, "/mock/x", nil)
	env := New(DefaultConfig()).Forward(context.Background(), capture(t, in, proxyRule(upstream.URL)))

	assert.Equal(t, http.StatusFound, env.Status)
	assert.Equal(t, "/elsewhere", env.Header.Get("Location"))
}

func TestForward_BodyLimit(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer upstream.Close()

	in := httptest.NewRequest(http.MethodGet, "/mock/x", nil)
	env := New(Config{MaxBodySize: 16}).Forward(context.Background(), capture(t, in, proxyRule(upstream.URL)))
	assert.Equal(t, http.StatusBadGateway, env.Status)
}

func TestForward_IgnoresClientCancellation(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := httptest.NewRequest(http.MethodGet, "/mock/x", nil)
	env := New(DefaultConfig()).Forward(ctx, capture(t, in, proxyRule(upstream.URL)))
	assert.Equal(t, http.StatusOK, env.Status)
	assert.Equal(t, "ok", env.Body)
}

func TestForward_PreservesEscapedPath(t *testing.T) {
	type seen struct{ path, rawPath, escaped, query string }
	seenCh := make(chan seen, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenCh <- seen{r.URL.Path, r.URL.RawPath, r.URL.EscapedPath(), r.URL.RawQuery}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer upstream.Close()

	tests := []struct {
		name        string
		target      string
		wantPath    string
		wantEscaped string
	}{
		{"encoded question mark", "/mock/q/a%3Fb?x=1", "/mock/q/a?b", "/mock/q/a%3Fb"},
		{"encoded hash", "/mock/h/a%23b?x=1", "/mock/h/a#b", "/mock/h/a%23b"},
		{"encoded slash", "/mock/files/a%2Fb?x=1", "/mock/files/a/b", "/mock/files/a%2Fb"},
	}

	f := New(DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := httptest.NewRequest(http.MethodGet, tt.target, nil)
			env := f.Forward(context.Background(), capture(t, in, proxyRule(upstream.URL)))
			require.Equal(t, http.StatusNoContent, env.Status)

			s := <-seenCh
			assert.Equal(t, tt.wantPath, s.path)
			assert.Equal(t, tt.wantEscaped, s.escaped)
			assert.Equal(t, "x=1", s.query)
		})
	}
}

func TestForward_MissingTarget(t *testing.T) {
	in := httptest.NewRequest(http.MethodGet, "/mock/x", nil)
	r := proxyRule("")
	env := New(DefaultConfig()).Forward(context.Background(), capture(t, in, r))
	assert.Equal(t, http.StatusBadGateway, env.Status)

	env = New(DefaultConfig()).Forward(context.Background(), nil)
	assert.Equal(t, http.StatusBadGateway, env.Status)
}

func TestOutboundHeaders_DropsConnectionTokens(t *testing.T) {
	src := http.Header{}
	src.Set("Connection", "keep-alive, X-Session")
	src.Set("X-Session", "abc")
	src.Set("X-Trace-Id", "t1")
	src.Set("Host", "client.example.com")

	out := outboundHeaders(src, nil)
	assert.Empty(t, out.Get("X-Session"))
	assert.Empty(t, out.Get("Connection"))
	assert.Empty(t, out.Get("Host"))
	assert.Equal(t, "t1", out.Get("X-Trace-Id"))
}

func TestRemoveHopByHopHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Connection", "X-Upstream-Conn")
	h.Set("X-Upstream-Conn", "1")
	h.Set("Transfer-Encoding", "chunked")
	h.Set("Content-Type", "application/json")

	removeHopByHopHeaders(h)
	assert.Empty(t, h.Get("X-Upstream-Conn"))
	assert.Empty(t, h.Get("Transfer-Encoding"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
}
