package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/jackycchen/api-mock-platform/pkg/apidef"
	"github.com/jackycchen/api-mock-platform/pkg/httputil"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime int64  `json:"uptime"`
}

// StatusResponse is returned by GET /api/v1/status.
type StatusResponse struct {
	Version      string    `json:"version"`
	StartedAt    time.Time `json:"startedAt"`
	Uptime       int64     `json:"uptime"`
	RulesTotal   int       `json:"rulesTotal"`
	RulesEnabled int       `json:"rulesEnabled"`
	Definitions  int       `json:"definitions"`
	CallLogs     *int      `json:"callLogs,omitempty"`
}

func (a *API) uptime() int64 {
	return int64(a.now().Sub(a.startTime).Seconds())
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteOK(w, HealthResponse{Status: "ok", Uptime: a.uptime()})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Version:   a.version,
		StartedAt: a.startTime,
		Uptime:    a.uptime(),
	}
	if a.rules != nil {
		resp.RulesTotal, resp.RulesEnabled = a.rules.Count()
	}
	if a.defs != nil {
		resp.Definitions = len(a.defs.List(""))
	}
	if a.calls != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if n, err := a.calls.Count(ctx); err == nil {
			resp.CallLogs = &n
		} else {
			a.log.Warn("counting call logs failed", "error", err)
		}
	}
	httputil.WriteOK(w, resp)
}

// DefinitionsResponse is returned by GET /api/v1/definitions.
type DefinitionsResponse struct {
	Definitions []*apidef.Definition `json:"definitions"`
	Count       int                  `json:"count"`
}

func (a *API) handleListDefinitions(w http.ResponseWriter, r *http.Request) {
	if a.defs == nil {
		httputil.WriteOK(w, DefinitionsResponse{Definitions: []*apidef.Definition{}})
		return
	}
	defs := a.defs.List(r.URL.Query().Get("project"))
	if defs == nil {
		defs = []*apidef.Definition{}
	}
	httputil.WriteOK(w, DefinitionsResponse{Definitions: defs, Count: len(defs)})
}

func (a *API) handleNotFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteNotFound(w, "not_found", "No route for "+r.Method+" "+r.URL.Path)
}
