package synth

import (
	mrand "math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackycchen/api-mock-platform/pkg/apidef"
)

func parse(t *testing.T, body string) any {
	t.Helper()
	var data any
	require.NoError(t, oj.Unmarshal([]byte(body), &data))
	return data
}

func get(t *testing.T, data any, path string) []any {
	t.Helper()
	return jp.MustParseString(path).Get(data)
}

func TestKindFor(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   Kind
	}{
		{"GET", "/users/{id}", KindUser},
		{"POST", "/api/UserLogin", KindUser},
		{"GET", "/orders/list", KindOrder},
		{"DELETE", "/products/{id}", KindProduct},
		{"POST", "/auth/login", KindLogin},
		{"GET", "/auth/login", KindGeneric},
		{"get", "/items/list", KindList},
		{"POST", "/items/list", KindGeneric},
		{"GET", "/health", KindGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, KindFor(&apidef.Definition{Method: tt.method, Path: tt.path}))
		})
	}
}

func TestSynthesize_Envelope(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(WithRand(mrand.New(mrand.NewPCG(1, 2))), WithClock(func() time.Time { return fixed }))

	body, err := s.Synthesize(&apidef.Definition{Method: "GET", Path: "/health"})
	require.NoError(t, err)

	data := parse(t, body)
	assert.Equal(t, []any{int64(200)}, get(t, data, "$.code"))
	assert.Equal(t, []any{"success"}, get(t, data, "$.message"))
	assert.Equal(t, []any{fixed.Format(time.RFC3339Nano)}, get(t, data, "$.timestamp"))

	for _, field := range []string{"id", "name", "email", "phone", "status", "createTime", "updateTime"} {
		assert.Len(t, get(t, data, "$.data."+field), 1, field)
	}
	phone := get(t, data, "$.data.phone")[0].(string)
	assert.Len(t, phone, 11)
	assert.Equal(t, "138", phone[:3])
}

func TestSynthesize_Shapes(t *testing.T) {
	s := New()

	t.Run("user", func(t *testing.T) {
		body, err := s.Synthesize(&apidef.Definition{Method: "GET", Path: "/users/{id}"})
		require.NoError(t, err)
		data := parse(t, body)
		for _, field := range []string{"id", "username", "nickname", "email", "phone", "avatar", "status", "createTime"} {
			assert.Len(t, get(t, data, "$.data."+field), 1, field)
		}
		id := get(t, data, "$.data.id")[0].(int64)
		assert.True(t, id >= 1 && id <= 1000)
	})

	t.Run("order", func(t *testing.T) {
		body, err := s.Synthesize(&apidef.Definition{Method: "GET", Path: "/orders/{id}"})
		require.NoError(t, err)
		data := parse(t, body)
		assert.Len(t, get(t, data, "$.data.items[*]"), 1)
		assert.Len(t, get(t, data, "$.data.items[0].productName"), 1)
		assert.Equal(t, []any{"pending"}, get(t, data, "$.data.status"))
	})

	t.Run("product", func(t *testing.T) {
		body, err := s.Synthesize(&apidef.Definition{Method: "GET", Path: "/products"})
		require.NoError(t, err)
		data := parse(t, body)
		assert.Equal(t, []any{"Electronics"}, get(t, data, "$.data.category"))
		assert.Len(t, get(t, data, "$.data.stock"), 1)
	})

	t.Run("list", func(t *testing.T) {
		body, err := s.Synthesize(&apidef.Definition{Method: "GET", Path: "/items/list"})
		require.NoError(t, err)
		data := parse(t, body)
		size := get(t, data, "$.data.pageSize")[0].(int64)
		assert.GreaterOrEqual(t, size, int64(5))
		assert.LessOrEqual(t, size, int64(14))
		assert.Len(t, get(t, data, "$.data.list[*]"), int(size))
		assert.Equal(t, []any{int64(1)}, get(t, data, "$.data.page"))
		total := get(t, data, "$.data.total")[0].(int64)
		assert.GreaterOrEqual(t, total, size)
	})
}

func TestSynthesize_LoginToken(t *testing.T) {
	key := []byte("test-signing-key")
	fixed := time.Now().Truncate(time.Second)
	s := New(WithSigningKey(key), WithClock(func() time.Time { return fixed }), WithTokenTTL(time.Hour))

	body, err := s.Synthesize(&apidef.Definition{Method: "POST", Path: "/auth/login"})
	require.NoError(t, err)
	data := parse(t, body)

	token := get(t, data, "$.data.token")[0].(string)
	parsed, err := jwt.ParseWithClaims(token, &loginClaims{}, func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)

	claims := parsed.Claims.(*loginClaims)
	assert.Equal(t, "mockuser", claims.Username)
	assert.Equal(t, "apimock", claims.Issuer)
	assert.Equal(t, fixed.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())

	assert.Equal(t, []any{fixed.Add(time.Hour).UnixMilli()}, get(t, data, "$.data.expireTime"))
	assert.Equal(t, []any{"user"}, get(t, data, "$.data.userInfo.role"))
}

func TestSynthesize_Deterministic(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return fixed }
	def := &apidef.Definition{Method: "GET", Path: "/items/list"}

	a, err := New(WithRand(mrand.New(mrand.NewPCG(7, 7))), WithClock(clock)).Synthesize(def)
	require.NoError(t, err)
	b, err := New(WithRand(mrand.New(mrand.NewPCG(7, 7))), WithClock(clock)).Synthesize(def)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSynthesize_NilDefinition(t *testing.T) {
	_, err := New().Synthesize(nil)
	assert.ErrorIs(t, err, ErrNilDefinition)
}

func TestSynthesize_ConcurrentSeeded(t *testing.T) {
	s := New(WithRand(mrand.New(mrand.NewPCG(3, 4))))
	def := &apidef.Definition{Method: "GET", Path: "/products/{id}"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Synthesize(def)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
