// Route registration for the management API.

package admin

import "net/http"

// APIPrefix is the management namespace.
const APIPrefix = "/api/v1"

// registerRoutes sets up all API routes.
func (a *API) registerRoutes(mux *http.ServeMux) {
	// Health, status and metrics
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.Handle("GET /metrics", a.metrics)
	mux.HandleFunc("GET "+APIPrefix+"/status", a.handleStatus)

	// Routing rules
	mux.HandleFunc("GET "+APIPrefix+"/rules", a.handleListRules)
	mux.HandleFunc("POST "+APIPrefix+"/rules", a.handleCreateRule)
	mux.HandleFunc("GET "+APIPrefix+"/rules/{id}", a.handleGetRule)
	mux.HandleFunc("PUT "+APIPrefix+"/rules/{id}", a.handleUpdateRule)
	mux.HandleFunc("DELETE "+APIPrefix+"/rules/{id}", a.handleDeleteRule)
	mux.HandleFunc("PATCH "+APIPrefix+"/rules/{id}/enabled", a.handleSetRuleEnabled)

	// API definitions (read-only; loaded from config)
	mux.HandleFunc("GET "+APIPrefix+"/definitions", a.handleListDefinitions)

	// Call log
	mux.HandleFunc("GET "+APIPrefix+"/call-logs", a.handleListCallLogs)
	mux.HandleFunc("GET "+APIPrefix+"/call-logs/{id}", a.handleGetCallLog)
	mux.HandleFunc("DELETE "+APIPrefix+"/call-logs", a.handlePurgeCallLogs)

	mux.HandleFunc("/", a.handleNotFound)
}
