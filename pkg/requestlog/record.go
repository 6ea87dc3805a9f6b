package requestlog

import (
	"fmt"
	"time"
)

// Record is one call-log entry.
type Record struct {
	ID        string `json:"id"`
	RuleID    string `json:"ruleId"`
	RuleName  string `json:"ruleName"`
	ProjectID string `json:"projectId,omitempty"`

	// Mode is the handling path that produced the response.
	Mode string `json:"mode"`

	Method         string `json:"method"`
	Path           string `json:"path"`
	RequestHeaders string `json:"requestHeaders"`
	RequestBody    string `json:"requestBody,omitempty"`
	RequestParams  string `json:"requestParams,omitempty"`

	ResponseStatus  int    `json:"responseStatus"`
	ResponseHeaders string `json:"responseHeaders"`
	ResponseBody    string `json:"responseBody,omitempty"`
	ResponseTimeMs  int64  `json:"responseTimeMs"`

	ClientIP   string    `json:"clientIp"`
	Annotation string    `json:"annotation"`
	CreatedAt  time.Time `json:"createdAt"`
}

// IsSuccess reports a 2xx response.
func (r *Record) IsSuccess() bool {
	return r.ResponseStatus >= 200 && r.ResponseStatus < 300
}

// IsClientError reports a 4xx response.
func (r *Record) IsClientError() bool {
	return r.ResponseStatus >= 400 && r.ResponseStatus < 500
}

// IsServerError reports a 5xx response.
func (r *Record) IsServerError() bool {
	return r.ResponseStatus >= 500
}

// ModeAnnotation is the annotation of a record answered through mode.
func ModeAnnotation(mode, ruleName string) string {
	return fmt.Sprintf("Proxy-Mode: %s, Config: %s", mode, ruleName)
}

// ErrorAnnotation is the annotation of a record that ended in an internal error.
func ErrorAnnotation(ruleName string) string {
	return "Proxy-Error: " + ruleName
}

// Clone returns a copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
