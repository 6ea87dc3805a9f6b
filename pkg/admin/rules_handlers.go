package admin

import (
	"net/http"

	"github.com/jackycchen/api-mock-platform/pkg/httputil"
	"github.com/jackycchen/api-mock-platform/pkg/rule"
)

// RuleRequest is the body of POST and PUT /api/v1/rules. Enabled defaults
// to true on create.
type RuleRequest struct {
	ProjectID      string    `json:"projectId"`
	Name           string    `json:"name"`
	PathPattern    string    `json:"pathPattern"`
	Mode           rule.Mode `json:"mode"`
	TargetURL      string    `json:"targetUrl"`
	ForwardHeaders []string  `json:"forwardHeaders"`
	PreserveHost   bool      `json:"preserveHost"`
	Enabled        *bool     `json:"enabled"`
}

func (req *RuleRequest) toRule(defaultEnabled bool) *rule.Rule {
	enabled := defaultEnabled
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	return &rule.Rule{
		ProjectID:      req.ProjectID,
		Name:           req.Name,
		PathPattern:    req.PathPattern,
		Mode:           req.Mode,
		TargetURL:      req.TargetURL,
		ForwardHeaders: req.ForwardHeaders,
		PreserveHost:   req.PreserveHost,
		Enabled:        enabled,
	}
}

// RulesResponse is returned by GET /api/v1/rules.
type RulesResponse struct {
	Rules   []*rule.Rule `json:"rules"`
	Total   int          `json:"total"`
	Enabled int          `json:"enabled"`
}

func (a *API) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules := a.rules.List(r.URL.Query().Get("project"))
	if rules == nil {
		rules = []*rule.Rule{}
	}
	resp := RulesResponse{Rules: rules, Total: len(rules)}
	for _, rl := range rules {
		if rl.Enabled {
			resp.Enabled++
		}
	}
	httputil.WriteOK(w, resp)
}

func (a *API) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rl, err := a.rules.Get(id)
	if err != nil {
		writeStoreError(w, a.log, err, "get rule", "id", id)
		return
	}
	httputil.WriteOK(w, rl)
}

func (a *API) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeJSONError(w, a.log, err)
		return
	}

	created, err := a.rules.Create(req.toRule(true))
	if err != nil {
		writeStoreError(w, a.log, err, "create rule")
		return
	}
	a.syncRuleMetrics()
	a.log.Info("rule created", "id", created.ID, "name", created.Name, "pattern", created.PathPattern, "mode", created.Mode.String())
	httputil.WriteCreated(w, created)
}

func (a *API) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := a.rules.Get(id)
	if err != nil {
		writeStoreError(w, a.log, err, "update rule", "id", id)
		return
	}

	var req RuleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeJSONError(w, a.log, err)
		return
	}

	updated, err := a.rules.Update(id, req.toRule(existing.Enabled))
	if err != nil {
		writeStoreError(w, a.log, err, "update rule", "id", id)
		return
	}
	a.syncRuleMetrics()
	a.log.Info("rule updated", "id", id, "name", updated.Name)
	httputil.WriteOK(w, updated)
}

// EnabledRequest is the body of PATCH /api/v1/rules/{id}/enabled.
type EnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

func (a *API) handleSetRuleEnabled(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req EnabledRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeJSONError(w, a.log, err)
		return
	}
	if req.Enabled == nil {
		httputil.WriteErrorWithDetails(w, http.StatusBadRequest, "validation_error", ErrMsgValidationFailed,
			fieldDetail{Field: "enabled", Message: "enabled is required"})
		return
	}

	updated, err := a.rules.SetEnabled(id, *req.Enabled)
	if err != nil {
		writeStoreError(w, a.log, err, "toggle rule", "id", id)
		return
	}
	a.syncRuleMetrics()
	a.log.Info("rule toggled", "id", id, "enabled", updated.Enabled)
	httputil.WriteOK(w, updated)
}

func (a *API) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.rules.Delete(id); err != nil {
		writeStoreError(w, a.log, err, "delete rule", "id", id)
		return
	}
	a.syncRuleMetrics()
	a.log.Info("rule deleted", "id", id)
	httputil.WriteNoContent(w)
}
