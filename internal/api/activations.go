package api

import (
	"net/http"
	"sort"

	"github.com/oriys/whisk/internal/werr"
)

// ListActivations handles GET /namespaces/{ns}/activations. Results are
// ordered by start time descending (spec §4.1) and bounded by
// ?limit= (capped at MaxActivationListLimit) and an optional ?skip= and
// ?name= action-name filter.
func (h *Handler) ListActivations(w http.ResponseWriter, r *http.Request) {
	ns := r.PathValue("ns")
	limit := queryInt(r, "limit", MaxActivationListLimit)
	if limit <= 0 || limit > MaxActivationListLimit {
		limit = MaxActivationListLimit
	}
	skip := queryInt(r, "skip", 0)
	nameFilter := r.URL.Query().Get("name")

	activations, err := h.Store.ListActivations(r.Context(), ns, limit+skip, nameFilter)
	if err != nil {
		writeError(w, err)
		return
	}

	sort.Slice(activations, func(i, j int) bool {
		return activations[i].Start.After(activations[j].Start)
	})

	if skip >= len(activations) {
		writeJSON(w, http.StatusOK, []interface{}{})
		return
	}
	end := skip + limit
	if end > len(activations) {
		end = len(activations)
	}
	page := activations[skip:end]

	if !queryBool(r, "docs", true) {
		ids := make([]string, 0, len(page))
		for _, a := range page {
			ids = append(ids, a.ActivationID)
		}
		writeJSON(w, http.StatusOK, ids)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetActivation handles GET /namespaces/{ns}/activations/{id}.
func (h *Handler) GetActivation(w http.ResponseWriter, r *http.Request) {
	activation, err := h.Store.GetActivation(r.Context(), r.PathValue("ns"), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activation)
}

// GetActivationLogs handles GET /namespaces/{ns}/activations/{id}/logs.
func (h *Handler) GetActivationLogs(w http.ResponseWriter, r *http.Request) {
	activation, err := h.Store.GetActivation(r.Context(), r.PathValue("ns"), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if activation.IsPending() {
		writeError(w, werr.Conflictf("activation %s has not completed", activation.ActivationID))
		return
	}
	writeJSON(w, http.StatusOK, activation.Logs)
}

// GetActivationResult handles GET /namespaces/{ns}/activations/{id}/result.
func (h *Handler) GetActivationResult(w http.ResponseWriter, r *http.Request) {
	activation, err := h.Store.GetActivation(r.Context(), r.PathValue("ns"), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if activation.IsPending() {
		writeError(w, werr.Conflictf("activation %s has not completed", activation.ActivationID))
		return
	}
	writeJSON(w, http.StatusOK, activation.Response)
}
