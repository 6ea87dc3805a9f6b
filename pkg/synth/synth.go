// Package synth produces canned JSON responses for API definitions.
//
// The payload shape is chosen from keywords in the definition's path and
// method; all values are random per call. Nothing is derived from request
// bodies or schemas.
package synth

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	mrand "math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/jackycchen/api-mock-platform/pkg/apidef"
)

// Response envelope values.
const (
	SuccessCode    = 200
	SuccessMessage = "success"
)

// DefaultTokenTTL is the lifetime of generated login tokens.
const DefaultTokenTTL = 2 * time.Hour

// ErrNilDefinition is returned when Synthesize is called without a definition.
var ErrNilDefinition = errors.New("api definition is required")

// Synthesizer generates mock payloads. It is safe for concurrent use.
type Synthesizer struct {
	mu       sync.Mutex // guards rng
	rng      *mrand.Rand
	key      []byte
	now      func() time.Time
	tokenTTL time.Duration
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithRand makes output reproducible by drawing values from r.
func WithRand(r *mrand.Rand) Option {
	return func(s *Synthesizer) { s.rng = r }
}

// WithSigningKey sets the HMAC key used for login tokens.
func WithSigningKey(key []byte) Option {
	return func(s *Synthesizer) { s.key = append([]byte(nil), key...) }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Synthesizer) { s.now = now }
}

// WithTokenTTL sets the lifetime of login tokens.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Synthesizer) { s.tokenTTL = d }
}

// New creates a Synthesizer. Without WithSigningKey a random 32-byte key is
// generated.
func New(opts ...Option) *Synthesizer {
	s := &Synthesizer{now: time.Now, tokenTTL: DefaultTokenTTL}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.key) == 0 {
		s.key = make([]byte, 32)
		_, _ = rand.Read(s.key)
	}
	return s
}

type envelope struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

// Synthesize returns the JSON text {code, message, data, timestamp} for def.
func (s *Synthesizer) Synthesize(def *apidef.Definition) (string, error) {
	if def == nil {
		return "", ErrNilDefinition
	}

	data, err := s.payload(def)
	if err != nil {
		return "", fmt.Errorf("generating %s %s: %w", def.Method, def.Path, err)
	}

	out, err := json.Marshal(envelope{
		Code:      SuccessCode,
		Message:   SuccessMessage,
		Data:      data,
		Timestamp: s.timestamp(),
	})
	if err != nil {
		return "", fmt.Errorf("encoding mock response: %w", err)
	}
	return string(out), nil
}

// Kind names the payload shape chosen for a definition.
type Kind string

// Payload kinds, in selection order.
const (
	KindUser    Kind = "user"
	KindOrder   Kind = "order"
	KindProduct Kind = "product"
	KindLogin   Kind = "login"
	KindList    Kind = "list"
	KindGeneric Kind = "generic"
)

// KindFor reports which payload shape Synthesize uses for def.
func KindFor(def *apidef.Definition) Kind {
	method := strings.ToUpper(def.Method)
	path := strings.ToLower(def.Path)

	switch {
	case strings.Contains(path, "user"):
		return KindUser
	case strings.Contains(path, "order"):
		return KindOrder
	case strings.Contains(path, "product"):
		return KindProduct
	case method == "POST" && strings.Contains(path, "login"):
		return KindLogin
	case method == "GET" && strings.Contains(path, "list"):
		return KindList
	default:
		return KindGeneric
	}
}

func (s *Synthesizer) payload(def *apidef.Definition) (any, error) {
	switch KindFor(def) {
	case KindUser:
		return s.user(), nil
	case KindOrder:
		return s.order(), nil
	case KindProduct:
		return s.product(), nil
	case KindLogin:
		return s.login()
	case KindList:
		return s.page(), nil
	default:
		return s.generic(), nil
	}
}

func (s *Synthesizer) timestamp() string {
	return s.now().Format(time.RFC3339Nano)
}

// intN returns a random int in [0, n).
func (s *Synthesizer) intN(n int) int {
	if s.rng == nil {
		return mrand.IntN(n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

func (s *Synthesizer) randFloat() float64 {
	if s.rng == nil {
		return mrand.Float64()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}
