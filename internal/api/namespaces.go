package api

import "net/http"

// ListNamespaces handles GET /namespaces: the caller's namespaces, always
// including the shared "_" namespace (spec §6).
func (h *Handler) ListNamespaces(w http.ResponseWriter, r *http.Request) {
	subject := identityOrDefault(r.Context())
	namespaces, err := h.Store.ListNamespaces(r.Context(), subject)
	if err != nil {
		writeError(w, err)
		return
	}

	names := make([]string, 0, len(namespaces)+1)
	names = append(names, "_")
	for _, ns := range namespaces {
		if ns.Name != "_" {
			names = append(names, ns.Name)
		}
	}
	writeJSON(w, http.StatusOK, names)
}

// GetNamespace handles GET /namespaces/{ns}: namespace details + limits.
func (h *Handler) GetNamespace(w http.ResponseWriter, r *http.Request) {
	ns, err := h.Store.GetNamespace(r.Context(), r.PathValue("ns"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ns)
}

// GetNamespaceLimits handles GET /namespaces/{ns}/limits.
func (h *Handler) GetNamespaceLimits(w http.ResponseWriter, r *http.Request) {
	ns, err := h.Store.GetNamespace(r.Context(), r.PathValue("ns"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ns.Limits)
}
