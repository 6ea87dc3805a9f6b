package exchange

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackycchen/api-mock-platform/pkg/rule"
)

// HeaderMarker is set on successful MOCK and PROXY responses to name the
// path that produced them.
const HeaderMarker = "X-Mock-Mode"

// Envelope is a complete response ready to be written to the client.
type Envelope struct {
	Status int
	Header http.Header
	Body   string
	Mode   rule.Mode
}

// NewEnvelope returns an envelope with an empty header set.
func NewEnvelope(status int, body string, mode rule.Mode) *Envelope {
	return &Envelope{
		Status: status,
		Header: http.Header{},
		Body:   body,
		Mode:   mode,
	}
}

// errorBody is the platform's JSON error shape.
type errorBody struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

// ErrorEnvelope returns a JSON error envelope carrying message.
func ErrorEnvelope(status int, message string, mode rule.Mode) *Envelope {
	env := NewEnvelope(status, ErrorBody(status, message), mode)
	env.Header.Set("Content-Type", "application/json")
	return env
}

// ErrorBody renders the JSON error body used by error envelopes.
func ErrorBody(status int, message string) string {
	data, err := json.Marshal(errorBody{
		Code:      status,
		Message:   message,
		Timestamp: time.Now().Format(time.RFC3339Nano),
	})
	if err != nil {
		return `{"code":500,"message":"internal error","data":null}`
	}
	return string(data)
}

// Write copies the envelope to w. Header values are written verbatim.
func (e *Envelope) Write(w http.ResponseWriter) error {
	dst := w.Header()
	for k, vv := range e.Header {
		dst[k] = append([]string(nil), vv...)
	}
	status := e.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if e.Body == "" {
		return nil
	}
	_, err := w.Write([]byte(e.Body))
	return err
}

// IsSuccess reports whether the status is 2xx.
func (e *Envelope) IsSuccess() bool {
	return e.Status >= 200 && e.Status < 300
}
