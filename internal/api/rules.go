package api

import (
	"net/http"
	"time"

	"github.com/oriys/whisk/internal/domain"
	"github.com/oriys/whisk/internal/validation"
	"github.com/oriys/whisk/internal/werr"
)

// ListRules handles GET /namespaces/{ns}/rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Store.ListRules(r.Context(), r.PathValue("ns"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

// GetRule handles GET /namespaces/{ns}/rules/{name}.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.Store.GetRule(r.Context(), r.PathValue("ns"), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

type ruleBody struct {
	Trigger string `json:"trigger"`
	Action  string `json:"action"`
	Status  string `json:"status,omitempty"`
}

// PutRule handles PUT /namespaces/{ns}/rules/{name}. The bound trigger and
// action must already exist in the same namespace (spec §3 invariant).
func (h *Handler) PutRule(w http.ResponseWriter, r *http.Request) {
	ns, name := r.PathValue("ns"), r.PathValue("name")
	if err := validation.EntityName(name, "name"); err != nil {
		writeError(w, err)
		return
	}

	var body ruleBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	triggerFQN, err := domain.ParseFQN(body.Trigger)
	if err != nil || triggerFQN.Namespace != ns {
		writeError(w, werr.Validationf("rule trigger must be a valid reference within namespace %s", ns))
		return
	}
	if _, err := h.Store.GetTrigger(r.Context(), ns, triggerFQN.Name); err != nil {
		writeError(w, werr.Validationf("trigger %s does not exist", body.Trigger))
		return
	}

	actionFQN, err := domain.ParseFQN(body.Action)
	if err != nil || actionFQN.Namespace != ns {
		writeError(w, werr.Validationf("rule action must be a valid reference within namespace %s", ns))
		return
	}
	if _, err := h.Store.GetAction(r.Context(), ns, actionFQN.Package, actionFQN.Name); err != nil {
		writeError(w, werr.Validationf("action %s does not exist", body.Action))
		return
	}

	status := domain.RuleStatus(body.Status)
	if status == "" {
		status = domain.RuleStatusActive
	}
	if status != domain.RuleStatusActive && status != domain.RuleStatusInactive {
		writeError(w, werr.Validationf("status must be %q or %q", domain.RuleStatusActive, domain.RuleStatusInactive))
		return
	}

	overwrite := queryBool(r, "overwrite", false)
	existing, err := h.Store.GetRule(r.Context(), ns, name)
	if err == nil && !overwrite {
		writeError(w, werr.Conflictf("rule %s/%s already exists; retry with ?overwrite=true", ns, name))
		return
	}

	rule := &domain.Rule{
		Namespace: ns,
		Name:      name,
		Trigger:   body.Trigger,
		Action:    body.Action,
		Status:    status,
		UpdatedAt: time.Now(),
	}
	if existing != nil {
		rule.CreatedAt = existing.CreatedAt
	} else {
		rule.CreatedAt = rule.UpdatedAt
	}

	if err := h.Store.UpsertRule(r.Context(), rule); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// DeleteRule handles DELETE /namespaces/{ns}/rules/{name}.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteRule(r.Context(), r.PathValue("ns"), r.PathValue("name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type ruleStatusBody struct {
	Status string `json:"status"`
}

// SetRuleStatus handles POST /namespaces/{ns}/rules/{name}: flips a rule
// between active and inactive (spec §6).
func (h *Handler) SetRuleStatus(w http.ResponseWriter, r *http.Request) {
	ns, name := r.PathValue("ns"), r.PathValue("name")

	var body ruleStatusBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	status := domain.RuleStatus(body.Status)
	if status != domain.RuleStatusActive && status != domain.RuleStatusInactive {
		writeError(w, werr.Validationf("status must be %q or %q", domain.RuleStatusActive, domain.RuleStatusInactive))
		return
	}

	rule, err := h.Store.GetRule(r.Context(), ns, name)
	if err != nil {
		writeError(w, err)
		return
	}
	rule.Status = status
	rule.UpdatedAt = time.Now()

	if err := h.Store.UpsertRule(r.Context(), rule); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}
