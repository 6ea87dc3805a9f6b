package admin

import (
	"net/http"
	"time"

	"github.com/jackycchen/api-mock-platform/pkg/httputil"
	"github.com/jackycchen/api-mock-platform/pkg/requestlog"
)

// CallLogsResponse is returned by GET /api/v1/call-logs.
type CallLogsResponse struct {
	Items  []*requestlog.Record `json:"items"`
	Count  int                  `json:"count"`
	Total  int                  `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// PurgeResponse is returned by DELETE /api/v1/call-logs.
type PurgeResponse struct {
	Deleted int64     `json:"deleted"`
	Before  time.Time `json:"before"`
}

func (a *API) requireCallLog(w http.ResponseWriter) bool {
	if a.calls == nil {
		httputil.WriteNotFound(w, "not_configured", ErrMsgNotConfigured)
		return false
	}
	return true
}

func (a *API) handleListCallLogs(w http.ResponseWriter, r *http.Request) {
	if !a.requireCallLog(w) {
		return
	}
	filter, err := parseCallLogFilter(r.URL.Query())
	if err != nil {
		httputil.WriteBadRequest(w, "invalid_query", err.Error())
		return
	}

	items, err := a.calls.List(r.Context(), filter)
	if err != nil {
		writeStoreError(w, a.log, err, "list call logs")
		return
	}
	total, err := a.calls.Count(r.Context())
	if err != nil {
		writeStoreError(w, a.log, err, "count call logs")
		return
	}
	if items == nil {
		items = []*requestlog.Record{}
	}

	httputil.WriteOK(w, CallLogsResponse{
		Items:  items,
		Count:  len(items),
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

func (a *API) handleGetCallLog(w http.ResponseWriter, r *http.Request) {
	if !a.requireCallLog(w) {
		return
	}
	id := r.PathValue("id")
	rec, err := a.calls.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, a.log, err, "get call log", "id", id)
		return
	}
	httputil.WriteOK(w, rec)
}

// handlePurgeCallLogs deletes records older than ?olderThan=<duration>.
// The parameter is required so a bare DELETE cannot wipe the log.
func (a *API) handlePurgeCallLogs(w http.ResponseWriter, r *http.Request) {
	if !a.requireCallLog(w) {
		return
	}
	raw := r.URL.Query().Get("olderThan")
	if raw == "" {
		httputil.WriteBadRequest(w, "invalid_query", "olderThan is required, e.g. olderThan=24h")
		return
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		httputil.WriteBadRequest(w, "invalid_query", "olderThan must be a non-negative duration, e.g. 24h")
		return
	}

	before := a.now().Add(-d)
	n, err := a.calls.PurgeOlderThan(r.Context(), before)
	if err != nil {
		writeStoreError(w, a.log, err, "purge call logs")
		return
	}
	a.log.Info("call logs purged", "deleted", n, "before", before)
	httputil.WriteOK(w, PurgeResponse{Deleted: n, Before: before})
}
