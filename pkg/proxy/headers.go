package proxy

import (
	"net/http"
	"net/textproto"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/jackycchen/api-mock-platform/pkg/rule"
)

// deniedRequestHeaders are never forwarded upstream. Keys are lower-case.
var deniedRequestHeaders = map[string]bool{
	"content-length":      true,
	"connection":          true,
	"upgrade":             true,
	"proxy-connection":    true,
	"proxy-authorization": true,
	"keep-alive":          true,
	"te":                  true,
	"trailer":             true,
	"transfer-encoding":   true,
	"host":                true,
}

// hopByHopResponseHeaders are dropped from upstream responses; the server
// recomputes framing for the relayed body.
var hopByHopResponseHeaders = []string{
	"Connection",
	"Content-Length",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Connection",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// outboundHeaders builds the upstream request headers from the inbound set.
func outboundHeaders(src http.Header, r *rule.Rule) http.Header {
	dst := make(http.Header, len(src))
	for key, values := range src {
		if deniedRequestHeaders[strings.ToLower(key)] {
			continue
		}
		if httpguts.HeaderValuesContainsToken(src["Connection"], key) {
			continue
		}
		if r != nil && !r.AllowsHeader(key) {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
	return dst
}

// copyHeaders copies headers from src to dst.
func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

// removeHopByHopHeaders removes headers that describe the upstream connection,
// including any named by its Connection header.
func removeHopByHopHeaders(h http.Header) {
	for _, v := range h["Connection"] {
		for f := range strings.SplitSeq(v, ",") {
			if f = textproto.TrimString(f); f != "" {
				h.Del(f)
			}
		}
	}
	for _, header := range hopByHopResponseHeaders {
		h.Del(header)
	}
}
