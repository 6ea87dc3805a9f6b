package exchange

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jackycchen/api-mock-platform/pkg/rule"
)

// DefaultMaxBodySize is the largest request body Capture reads (10MB).
const DefaultMaxBodySize = 10 * 1024 * 1024

// ErrBodyTooLarge is returned by Capture when the request body exceeds the limit.
var ErrBodyTooLarge = errors.New("request body too large")

// Request is the captured view of one inbound request. It is not modified
// after Capture returns.
type Request struct {
	Rule *rule.Rule

	Method string

	// Path is decoded and used for matching. RawPath keeps the inbound
	// escaping and is what gets forwarded.
	Path     string
	RawPath  string
	RawQuery string
	header   http.Header
	Host     string
	Scheme   string
	Body     string
	ClientIP string

	ReceivedAt time.Time
}

// Header returns a copy of the request headers.
func (r *Request) Header() http.Header {
	return r.header.Clone()
}

// HeaderValue returns the first value of the named header.
func (r *Request) HeaderValue(name string) string {
	return r.header.Get(name)
}

// ForwardPath returns the path as it arrived on the wire.
func (r *Request) ForwardPath() string {
	if r.RawPath != "" {
		return r.RawPath
	}
	return r.Path
}

// ProjectID returns the matched rule's project.
func (r *Request) ProjectID() string {
	if r.Rule == nil {
		return ""
	}
	return r.Rule.ProjectID
}

// Capture snapshots r for the matched rule. The body is read up to maxBody
// bytes (DefaultMaxBodySize when maxBody <= 0) and the raw bytes are
// returned so the caller can restore r.Body.
func Capture(r *http.Request, matched *rule.Rule, maxBody int64) (*Request, []byte, error) {
	if r == nil {
		return nil, nil, errors.New("nil request")
	}
	if maxBody <= 0 {
		maxBody = DefaultMaxBodySize
	}

	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, maxBody+1))
		if err != nil {
			return nil, body, fmt.Errorf("reading request body: %w", err)
		}
		if int64(len(body)) > maxBody {
			return nil, body, fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, maxBody)
		}
	}

	req := &Request{
		Rule:       matched,
		Method:     r.Method,
		Path:       r.URL.Path,
		RawPath:    r.URL.EscapedPath(),
		RawQuery:   r.URL.RawQuery,
		header:     r.Header.Clone(),
		Host:       r.Host,
		Scheme:     scheme(r),
		Body:       string(body),
		ClientIP:   ClientIP(r),
		ReceivedAt: time.Now(),
	}
	if req.header == nil {
		req.header = http.Header{}
	}
	return req, body, nil
}

// NewRequest builds a Request directly, for callers that do not start from
// an *http.Request.
func NewRequest(matched *rule.Rule, method, path, rawQuery string, header http.Header, body string) *Request {
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	return &Request{
		Rule:       matched,
		Method:     method,
		Path:       path,
		RawPath:    (&url.URL{Path: path}).EscapedPath(),
		RawQuery:   rawQuery,
		header:     h,
		Host:       h.Get("Host"),
		Scheme:     "http",
		Body:       body,
		ReceivedAt: time.Now(),
	}
}

// ClientIP returns the first X-Forwarded-For entry, then X-Real-IP, then the
// host part of RemoteAddr. The headers are client-controlled and only
// meaningful behind a trusted reverse proxy.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if r.URL != nil && r.URL.Scheme != "" {
		return r.URL.Scheme
	}
	return "http"
}
