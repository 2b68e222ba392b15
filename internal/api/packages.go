package api

import (
	"net/http"
	"time"

	"github.com/oriys/whisk/internal/domain"
	"github.com/oriys/whisk/internal/validation"
	"github.com/oriys/whisk/internal/werr"
)

// ListPackages handles GET /namespaces/{ns}/packages.
func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := h.Store.ListPackages(r.Context(), r.PathValue("ns"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, packages)
}

// GetPackage handles GET /namespaces/{ns}/packages/{name}.
func (h *Handler) GetPackage(w http.ResponseWriter, r *http.Request) {
	pkg, err := h.Store.GetPackage(r.Context(), r.PathValue("ns"), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pkg)
}

type packageBody struct {
	Publish     bool              `json:"publish"`
	Binding     *domain.Binding   `json:"binding,omitempty"`
	Parameters  []domain.KeyValue `json:"parameters,omitempty"`
	Annotations []domain.KeyValue `json:"annotations,omitempty"`
}

// PutPackage handles PUT /namespaces/{ns}/packages/{name}. Honors
// ?overwrite=true; without it, an existing package is a 409 Conflict
// (spec §4.1, §7).
func (h *Handler) PutPackage(w http.ResponseWriter, r *http.Request) {
	ns, name := r.PathValue("ns"), r.PathValue("name")

	if err := validation.EntityName(name, "name"); err != nil {
		writeError(w, err)
		return
	}

	var body packageBody
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
	existing, err := h.Store.GetPackage(r.Context(), ns, name)
	if err == nil && !overwrite {
		writeError(w, werr.Conflictf("package %s/%s already exists; retry with ?overwrite=true", ns, name))
		return
	}

	if body.Binding != nil {
		if _, err := h.Store.GetPackage(r.Context(), body.Binding.Namespace, body.Binding.Name); err != nil {
			writeError(w, werr.Validationf("binding target %s/%s does not exist", body.Binding.Namespace, body.Binding.Name))
			return
		}
	}

	pkg := &domain.Package{
		Namespace:   ns,
		Name:        name,
		Publish:     body.Publish,
		Binding:     body.Binding,
		Parameters:  body.Parameters,
		Annotations: body.Annotations,
		UpdatedAt:   time.Now(),
	}
	if existing != nil {
		pkg.CreatedAt = existing.CreatedAt
	} else {
		pkg.CreatedAt = pkg.UpdatedAt
	}

	if err := h.Store.UpsertPackage(r.Context(), pkg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pkg)
}

// DeletePackage handles DELETE /namespaces/{ns}/packages/{name}. Without
// ?force=true, deletion fails with Conflict when the package still has
// actions; with it, contained actions are deleted too (spec §3
// Ownership).
func (h *Handler) DeletePackage(w http.ResponseWriter, r *http.Request) {
	ns, name := r.PathValue("ns"), r.PathValue("name")
	force := queryBool(r, "force", false)

	actions, err := h.Store.ListActions(r.Context(), ns, name)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(actions) > 0 && !force {
		writeError(w, werr.Conflictf("package %s/%s has %d action(s); retry with ?force=true", ns, name, len(actions)))
		return
	}
	for _, a := range actions {
		if err := h.Store.DeleteAction(r.Context(), ns, name, a.Name); err != nil {
			writeError(w, err)
			return
		}
	}

	if err := h.Store.DeletePackage(r.Context(), ns, name); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
