package api

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/oriys/whisk/internal/auth"
	"github.com/oriys/whisk/internal/domain"
	"github.com/oriys/whisk/internal/metrics"
	"github.com/oriys/whisk/internal/orchestrator"
	"github.com/oriys/whisk/internal/validation"
	"github.com/oriys/whisk/internal/werr"
)

// ListActions handles GET /namespaces/{ns}/actions, optionally scoped to
// a package via ?package=.
func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	pkg := r.URL.Query().Get("package")
	actions, err := h.Store.ListActions(r.Context(), r.PathValue("ns"), pkg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, actions)
}

// GetAction handles GET /namespaces/{ns}/actions/{[pkg/]name}.
func (h *Handler) GetAction(w http.ResponseWriter, r *http.Request) {
	ns := r.PathValue("ns")
	pkg, name, err := domain.ParseActionPath(r.PathValue("name"))
	if err != nil {
		writeError(w, werr.Validationf("invalid action path: %v", err))
		return
	}
	action, err := h.Store.GetAction(r.Context(), ns, pkg, name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

// actionExecBody mirrors the wire protocol's exec descriptor: exactly one
// of the code-bearing or sequence shapes is populated, selected by Kind.
type actionExecBody struct {
	Kind       string   `json:"kind"`
	Code       string   `json:"code,omitempty"` // base64, code-bearing only
	Main       string   `json:"main,omitempty"`
	Binary     bool     `json:"binary,omitempty"`
	Components []string `json:"components,omitempty"` // sequence only
}

type actionBody struct {
	Exec        actionExecBody    `json:"exec"`
	Limits      domain.Limits     `json:"limits"`
	Parameters  []domain.KeyValue `json:"parameters,omitempty"`
	Annotations []domain.KeyValue `json:"annotations,omitempty"`
	Publish     bool              `json:"publish"`
	WebExport   bool              `json:"web_export"`
}

// PutAction handles PUT /namespaces/{ns}/actions/{[pkg/]name}: creates or
// (with ?overwrite=true) updates an action, uploading new code to the
// blob store only when its hash actually changed.
func (h *Handler) PutAction(w http.ResponseWriter, r *http.Request) {
	ns := r.PathValue("ns")
	pkg, name, err := domain.ParseActionPath(r.PathValue("name"))
	if err != nil {
		writeError(w, werr.Validationf("invalid action path: %v", err))
		return
	}

	var body actionBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	overwrite := queryBool(r, "overwrite", false)
	existing, getErr := h.Store.GetAction(r.Context(), ns, pkg, name)
	if getErr == nil && !overwrite {
		writeError(w, werr.Conflictf("action %s already exists; retry with ?overwrite=true", domain.BuildFQN(ns, pkg, name)))
		return
	}

	action := &domain.Action{
		Namespace:   ns,
		Package:     pkg,
		Name:        name,
		Limits:      body.Limits,
		Parameters:  body.Parameters,
		Annotations: body.Annotations,
		Publish:     body.Publish,
		WebExport:   body.WebExport,
		UpdatedAt:   time.Now(),
	}
	if existing != nil {
		action.CreatedAt = existing.CreatedAt
	} else {
		action.CreatedAt = action.UpdatedAt
	}

	// exec.kind carries either the literal "sequence" or a runtime
	// identifier (e.g. "nodejs:20") for code-bearing actions; it is never
	// the internal domain.ExecKindCode tag.
	if body.Exec.Kind == string(domain.ExecKindSequence) {
		action.Exec = domain.Exec{Kind: domain.ExecKindSequence, Components: body.Exec.Components}
	} else {
		if err := validation.ExecKind(body.Exec.Kind); err != nil {
			writeError(w, err)
			return
		}
		code, err := base64.StdEncoding.DecodeString(body.Exec.Code)
		if err != nil {
			writeError(w, werr.Validationf("exec.code must be base64-encoded: %v", err))
			return
		}
		if err := validation.ActionCode(code); err != nil {
			writeError(w, err)
			return
		}
		action.Exec = domain.Exec{
			Kind:    domain.ExecKindCode,
			Runtime: body.Exec.Kind,
			Main:    body.Exec.Main,
			Binary:  body.Exec.Binary,
		}
		if existing == nil || existing.CodeHashChanged(code) {
			hash, err := h.Blob.Put(r.Context(), ns, name, code, body.Exec.Binary)
			if err != nil {
				writeError(w, werr.ServiceUnavailablef("store action code: %v", err))
				return
			}
			action.Exec.CodeHash = hash
		} else {
			action.Exec.CodeHash = existing.Exec.CodeHash
		}
	}

	if err := validation.Action(*action); err != nil {
		writeError(w, err)
		return
	}

	if err := h.Store.UpsertAction(r.Context(), action); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

// DeleteAction handles DELETE /namespaces/{ns}/actions/{[pkg/]name},
// cascading to any rules that reference it (spec §3 Ownership).
func (h *Handler) DeleteAction(w http.ResponseWriter, r *http.Request) {
	ns := r.PathValue("ns")
	pkg, name, err := domain.ParseActionPath(r.PathValue("name"))
	if err != nil {
		writeError(w, werr.Validationf("invalid action path: %v", err))
		return
	}

	actionFQN := domain.BuildFQN(ns, pkg, name)
	rules, err := h.Store.ListRules(r.Context(), ns)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, rule := range rules {
		if rule.Action == actionFQN {
			if err := h.Store.DeleteRule(r.Context(), ns, rule.Name); err != nil {
				writeError(w, err)
				return
			}
		}
	}

	if err := h.Store.DeleteAction(r.Context(), ns, pkg, name); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// InvokeAction handles POST /namespaces/{ns}/actions/{[pkg/]name}
// (spec §4.6.1, §6).
func (h *Handler) InvokeAction(w http.ResponseWriter, r *http.Request) {
	ns := r.PathValue("ns")
	actionPath := r.PathValue("name")

	var params map[string]interface{}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &params); err != nil {
			writeError(w, err)
			return
		}
	}

	blocking := queryBool(r, "blocking", false)
	resultOnly := queryBool(r, "result", false)
	subject := identityOrDefault(r.Context())
	if id := auth.GetIdentity(r.Context()); id != nil && !id.AllowsNamespace(ns) {
		writeError(w, werr.New(werr.KindForbidden, "identity is not authorized for namespace "+ns))
		return
	}

	metrics.IncActiveRequests()
	result, err := h.Orchestrator.InvokeAction(r.Context(), orchestrator.InvokeActionRequest{
		Namespace:  ns,
		ActionPath: actionPath,
		Params:     params,
		Blocking:   blocking,
		ResultOnly: resultOnly,
		Subject:    subject,
	})
	metrics.DecActiveRequests()
	if err != nil {
		writeError(w, err)
		return
	}

	if !blocking {
		writeJSON(w, http.StatusAccepted, map[string]string{"activationId": result.ActivationID})
		return
	}
	if resultOnly {
		writeJSON(w, statusForActivation(result.Activation), result.Result())
		return
	}
	writeJSON(w, statusForActivation(result.Activation), result.Activation)
}

func statusForActivation(a *domain.Activation) int {
	if a == nil || a.Response.StatusCode == 0 {
		return http.StatusOK
	}
	return a.Response.StatusCode
}
