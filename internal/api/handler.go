// Package api implements the Request Façade (spec §4.7): it parses
// authenticated HTTP requests, calls the orchestrator and entity store,
// and maps results and errors to the HTTP response shapes of spec §6/§7.
// It does not convert between the parameter-list and mapping forms:
// entity parameter lists are stored as received, invocation bodies are
// decoded directly as mappings, and the orchestrator converts stored
// lists with domain.ParamsToMap.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/oriys/whisk/internal/auth"
	"github.com/oriys/whisk/internal/blobstore"
	"github.com/oriys/whisk/internal/orchestrator"
	"github.com/oriys/whisk/internal/store"
	"github.com/oriys/whisk/internal/werr"
)

// Handler wires the façade to its collaborators.
type Handler struct {
	Store        store.MetadataStore
	Blob         blobstore.Client
	Orchestrator *orchestrator.Orchestrator
	Bucket       string
}

// New builds a Handler.
func New(s store.MetadataStore, b blobstore.Client, orch *orchestrator.Orchestrator, bucket string) *Handler {
	return &Handler{Store: s, Blob: b, Orchestrator: orch, Bucket: bucket}
}

// RegisterRoutes registers every façade route on mux, grounded on the
// teacher's controlplane.Handler.RegisterRoutes shape.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /namespaces", h.ListNamespaces)
	mux.HandleFunc("GET /namespaces/{ns}", h.GetNamespace)
	mux.HandleFunc("GET /namespaces/{ns}/limits", h.GetNamespaceLimits)

	mux.HandleFunc("GET /namespaces/{ns}/packages", h.ListPackages)
	mux.HandleFunc("GET /namespaces/{ns}/packages/{name}", h.GetPackage)
	mux.HandleFunc("PUT /namespaces/{ns}/packages/{name}", h.PutPackage)
	mux.HandleFunc("DELETE /namespaces/{ns}/packages/{name}", h.DeletePackage)

	mux.HandleFunc("GET /namespaces/{ns}/actions", h.ListActions)
	mux.HandleFunc("GET /namespaces/{ns}/actions/{name...}", h.GetAction)
	mux.HandleFunc("PUT /namespaces/{ns}/actions/{name...}", h.PutAction)
	mux.HandleFunc("DELETE /namespaces/{ns}/actions/{name...}", h.DeleteAction)
	mux.HandleFunc("POST /namespaces/{ns}/actions/{name...}", h.InvokeAction)

	mux.HandleFunc("GET /namespaces/{ns}/triggers", h.ListTriggers)
	mux.HandleFunc("GET /namespaces/{ns}/triggers/{name}", h.GetTrigger)
	mux.HandleFunc("PUT /namespaces/{ns}/triggers/{name}", h.PutTrigger)
	mux.HandleFunc("DELETE /namespaces/{ns}/triggers/{name}", h.DeleteTrigger)
	mux.HandleFunc("POST /namespaces/{ns}/triggers/{name}", h.FireTrigger)

	mux.HandleFunc("GET /namespaces/{ns}/rules", h.ListRules)
	mux.HandleFunc("GET /namespaces/{ns}/rules/{name}", h.GetRule)
	mux.HandleFunc("PUT /namespaces/{ns}/rules/{name}", h.PutRule)
	mux.HandleFunc("DELETE /namespaces/{ns}/rules/{name}", h.DeleteRule)
	mux.HandleFunc("POST /namespaces/{ns}/rules/{name}", h.SetRuleStatus)

	mux.HandleFunc("GET /namespaces/{ns}/activations", h.ListActivations)
	mux.HandleFunc("GET /namespaces/{ns}/activations/{id}/logs", h.GetActivationLogs)
	mux.HandleFunc("GET /namespaces/{ns}/activations/{id}/result", h.GetActivationResult)
	mux.HandleFunc("GET /namespaces/{ns}/activations/{id}", h.GetActivation)

	mux.HandleFunc("/web/{ns}/{pkg}/{nameext}", h.WebAction)
}

// identityOrDefault returns the authenticated identity's subject, or
// "guest" when auth is disabled for the route (web actions never carry
// one, since they are explicitly unauthenticated per spec §6).
func identityOrDefault(ctx context.Context) string {
	if id := auth.GetIdentity(ctx); id != nil {
		return id.Subject
	}
	return "guest"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// failureEnvelope is the wire protocol's user-visible error body (spec §7).
type failureEnvelope struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Field string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	kind := werr.KindOf(err)
	writeJSON(w, werr.HTTPStatus(kind), failureEnvelope{Error: err.Error(), Code: string(kind)})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return werr.Validationf("invalid JSON body: %v", err)
	}
	return nil
}

func queryBool(r *http.Request, name string, def bool) bool {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// MaxActivationListLimit bounds the `limit` query param on the
// activations list route (spec §6: "limit≤200").
const MaxActivationListLimit = 200
