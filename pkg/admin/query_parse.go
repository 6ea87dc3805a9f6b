package admin

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/jackycchen/api-mock-platform/pkg/requestlog"
)

// MaxListLimit caps the limit query parameter of list endpoints.
const MaxListLimit = 1000

// parsePositiveInt returns a parsed int only when the value is a valid positive integer.
func parsePositiveInt(v string) (int, bool) {
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// parseNonNegativeInt returns a parsed int only when the value is a valid non-negative integer.
func parseNonNegativeInt(v string) (int, bool) {
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// parseTime accepts RFC 3339 timestamps.
func parseTime(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// parseCallLogFilter builds a list filter from query parameters. Malformed
// numeric or time values are rejected rather than ignored.
func parseCallLogFilter(q url.Values) (*requestlog.Filter, error) {
	f := &requestlog.Filter{
		RuleID:    q.Get("ruleId"),
		ProjectID: q.Get("project"),
		Mode:      q.Get("mode"),
		Method:    q.Get("method"),
		Path:      q.Get("path"),
		Limit:     requestlog.DefaultListLimit,
	}

	if v := q.Get("status"); v != "" {
		n, ok := parsePositiveInt(v)
		if !ok || n < 100 || n > 599 {
			return nil, fmt.Errorf("status must be an HTTP status code, got %q", v)
		}
		f.Status = n
	}
	if v := q.Get("limit"); v != "" {
		n, ok := parsePositiveInt(v)
		if !ok {
			return nil, fmt.Errorf("limit must be a positive integer, got %q", v)
		}
		f.Limit = min(n, MaxListLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, ok := parseNonNegativeInt(v)
		if !ok {
			return nil, fmt.Errorf("offset must be a non-negative integer, got %q", v)
		}
		f.Offset = n
	}
	if v := q.Get("since"); v != "" {
		t, ok := parseTime(v)
		if !ok {
			return nil, fmt.Errorf("since must be an RFC 3339 timestamp, got %q", v)
		}
		f.Since = t
	}
	if v := q.Get("until"); v != "" {
		t, ok := parseTime(v)
		if !ok {
			return nil, fmt.Errorf("until must be an RFC 3339 timestamp, got %q", v)
		}
		f.Until = t
	}
	return f, nil
}
