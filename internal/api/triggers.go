package api

import (
	"net/http"
	"time"

	"github.com/oriys/whisk/internal/domain"
	"github.com/oriys/whisk/internal/orchestrator"
	"github.com/oriys/whisk/internal/validation"
	"github.com/oriys/whisk/internal/werr"
)

// ListTriggers handles GET /namespaces/{ns}/triggers.
func (h *Handler) ListTriggers(w http.ResponseWriter, r *http.Request) {
	triggers, err := h.Store.ListTriggers(r.Context(), r.PathValue("ns"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, triggers)
}

// GetTrigger handles GET /namespaces/{ns}/triggers/{name}.
func (h *Handler) GetTrigger(w http.ResponseWriter, r *http.Request) {
	trigger, err := h.Store.GetTrigger(r.Context(), r.PathValue("ns"), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trigger)
}

type triggerBody struct {
	Publish     bool              `json:"publish"`
	Parameters  []domain.KeyValue `json:"parameters,omitempty"`
	Annotations []domain.KeyValue `json:"annotations,omitempty"`
}

// PutTrigger handles PUT /namespaces/{ns}/triggers/{name}.
func (h *Handler) PutTrigger(w http.ResponseWriter, r *http.Request) {
	ns, name := r.PathValue("ns"), r.PathValue("name")
	if err := validation.EntityName(name, "name"); err != nil {
		writeError(w, err)
		return
	}

	var body triggerBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := validation.Parameters(body.Parameters); err != nil {
		writeError(w, err)
		return
	}
	if err := validation.Annotations(body.Annotations); err != nil {
		writeError(w, err)
		return
	}

	overwrite := queryBool(r, "overwrite", false)
	existing, err := h.Store.GetTrigger(r.Context(), ns, name)
	if err == nil && !overwrite {
		writeError(w, werr.Conflictf("trigger %s/%s already exists; retry with ?overwrite=true", ns, name))
		return
	}

	trigger := &domain.Trigger{
		Namespace:   ns,
		Name:        name,
		Publish:     body.Publish,
		Parameters:  body.Parameters,
		Annotations: body.Annotations,
		UpdatedAt:   time.Now(),
	}
	if existing != nil {
		trigger.CreatedAt = existing.CreatedAt
	} else {
		trigger.CreatedAt = trigger.UpdatedAt
	}

	if err := h.Store.UpsertTrigger(r.Context(), trigger); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trigger)
}

// DeleteTrigger handles DELETE /namespaces/{ns}/triggers/{name},
// cascading to any rules bound to it (spec §3 Ownership).
func (h *Handler) DeleteTrigger(w http.ResponseWriter, r *http.Request) {
	ns, name := r.PathValue("ns"), r.PathValue("name")

	rules, err := h.Store.ListRulesForTrigger(r.Context(), ns, name)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, rule := range rules {
		if err := h.Store.DeleteRule(r.Context(), ns, rule.Name); err != nil {
			writeError(w, err)
			return
		}
	}

	if err := h.Store.DeleteTrigger(r.Context(), ns, name); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// FireTrigger handles POST /namespaces/{ns}/triggers/{name} (spec
// §4.6.3): fans the trigger out to its active rules non-blocking.
func (h *Handler) FireTrigger(w http.ResponseWriter, r *http.Request) {
	var params map[string]interface{}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &params); err != nil {
			writeError(w, err)
			return
		}
	}

	activationIDs, err := h.Orchestrator.InvokeTrigger(r.Context(), orchestrator.InvokeTriggerRequest{
		Namespace:   r.PathValue("ns"),
		TriggerName: r.PathValue("name"),
		Params:      params,
		Subject:     identityOrDefault(r.Context()),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string][]string{"activationIds": activationIDs})
}
