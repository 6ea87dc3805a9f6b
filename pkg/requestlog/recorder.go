package requestlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/jackycchen/api-mock-platform/pkg/exchange"
	"github.com/jackycchen/api-mock-platform/pkg/logging"
)

// truncatedSuffix marks a body cut to the recorder's limit.
const truncatedSuffix = "...[truncated]"

// Recorder builds call-log records and hands them to a Sink.
type Recorder struct {
	sink    Sink
	log     *slog.Logger
	maxBody int
	now     func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithLogger sets the logger used for sink failures.
func WithLogger(log *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if log != nil {
			r.log = log
		}
	}
}

// WithMaxBodyBytes truncates stored bodies longer than n bytes. Zero keeps
// bodies whole.
func WithMaxBodyBytes(n int) RecorderOption {
	return func(r *Recorder) { r.maxBody = max(n, 0) }
}

// WithClock overrides the time source for CreatedAt.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder creates a Recorder writing to sink.
func NewRecorder(sink Sink, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		sink: sink,
		log:  logging.Nop(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record logs a request that produced env.
func (r *Recorder) Record(ctx context.Context, req *exchange.Request, env *exchange.Envelope, elapsed time.Duration) {
	if req == nil || env == nil {
		return
	}
	rec := r.base(req, elapsed)
	rec.Mode = env.Mode.String()
	rec.ResponseStatus = env.Status
	if rec.ResponseStatus == 0 {
		rec.ResponseStatus = http.StatusOK
	}
	rec.ResponseHeaders = encodeHeader(env.Header)
	rec.ResponseBody = r.truncate(env.Body)
	if req.Rule != nil {
		rec.Annotation = ModeAnnotation(rec.Mode, req.Rule.Name)
	}
	r.append(ctx, rec)
}

// RecordError logs a request whose handling failed internally. The record
// carries status 500 and a JSON error body holding message.
func (r *Recorder) RecordError(ctx context.Context, req *exchange.Request, message string, elapsed time.Duration) {
	if req == nil {
		return
	}
	rec := r.base(req, elapsed)
	rec.ResponseStatus = http.StatusInternalServerError
	rec.ResponseHeaders = encodeHeader(http.Header{"Content-Type": {"application/json"}})
	rec.ResponseBody = r.truncate(exchange.ErrorBody(http.StatusInternalServerError, message))
	if req.Rule != nil {
		rec.Mode = req.Rule.Mode.String()
		rec.Annotation = ErrorAnnotation(req.Rule.Name)
	}
	r.append(ctx, rec)
}

func (r *Recorder) base(req *exchange.Request, elapsed time.Duration) *Record {
	rec := &Record{
		ID:             uuid.NewString(),
		ProjectID:      req.ProjectID(),
		Method:         req.Method,
		Path:           req.Path,
		RequestHeaders: encodeHeader(req.Header()),
		RequestBody:    r.truncate(req.Body),
		RequestParams:  encodeQuery(req.RawQuery),
		ResponseTimeMs: elapsed.Milliseconds(),
		ClientIP:       req.ClientIP,
		CreatedAt:      r.now(),
	}
	if req.Rule != nil {
		rec.RuleID = req.Rule.ID
		rec.RuleName = req.Rule.Name
	}
	return rec
}

// append never propagates failure: the response has already been decided.
func (r *Recorder) append(ctx context.Context, rec *Record) {
	if r.sink == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("call log sink panicked", "id", rec.ID, "panic", fmt.Sprint(p))
		}
	}()
	if err := r.sink.Append(context.WithoutCancel(ctx), rec); err != nil {
		r.log.Warn("call log not recorded", "id", rec.ID, "path", rec.Path, "error", err)
	}
}

func (r *Recorder) truncate(s string) string {
	if r.maxBody <= 0 || len(s) <= r.maxBody {
		return s
	}
	return s[:r.maxBody] + truncatedSuffix
}

func encodeHeader(h http.Header) string {
	if len(h) == 0 {
		return "{}"
	}
	data, err := json.Marshal(h)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func encodeQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil || len(values) == 0 {
		return raw
	}
	data, err := json.Marshal(values)
	if err != nil {
		return raw
	}
	return string(data)
}
