// Package auth implements the wire-protocol's identity model: every
// request is scoped to exactly one namespace, proven either by a Basic
// Auth "namespace:key" pair or a bearer JWT
// issued for service-to-service calls between the controller and the
// invoker fleet.
package auth

import (
	"context"
	"net/http"
	"strings"
)

// Identity represents an authenticated caller.
type Identity struct {
	Subject           string            // "apikey:<namespace>" or "user:<sub>"
	Namespace         string            // namespace this identity authenticated as
	KeyName           string            // namespace key identifier, empty for JWT auth
	Claims            map[string]any    // raw JWT claims, nil for API-key auth
	AllowedNamespaces []NamespaceScope  // additional namespaces this identity may act on, from JWT claims
}

// contextKey is an unexported type so WithIdentity's key can't collide
// with context keys from other packages.
type contextKey struct{}

var identityKey = contextKey{}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetIdentity retrieves the Identity attached by Middleware, or nil if
// none is present.
func GetIdentity(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// AllowsNamespace reports whether this identity may act on namespace:
// either it authenticated directly as that namespace, or the namespace
// appears in its AllowedNamespaces (set from JWT claims).
func (id *Identity) AllowsNamespace(namespace string) bool {
	if id.Namespace == namespace {
		return true
	}
	for _, scope := range id.AllowedNamespaces {
		if scope.Allows(namespace) {
			return true
		}
	}
	return false
}

// Authenticator attempts to authenticate a request, returning nil if
// its scheme doesn't apply or the credentials don't check out.
type Authenticator interface {
	Authenticate(r *http.Request) *Identity
}

// Middleware tries each authenticator in order and rejects the request
// with 401 if none succeeds, except for paths in publicPaths (exact
// match or "prefix/*").
func Middleware(authenticators []Authenticator, publicPaths []string) func(http.Handler) http.Handler {
	publicSet := make(map[string]bool, len(publicPaths))
	for _, p := range publicPaths {
		publicSet[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path, publicSet) {
				next.ServeHTTP(w, r)
				return
			}

			for _, a := range authenticators {
				if id := a.Authenticate(r); id != nil {
					next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
					return
				}
			}

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Basic realm="whisk"`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}`))
		})
	}
}

func isPublicPath(path string, publicSet map[string]bool) bool {
	if publicSet[path] {
		return true
	}
	for p := range publicSet {
		if strings.HasSuffix(p, "/*") && strings.HasPrefix(path, strings.TrimSuffix(p, "*")) {
			return true
		}
	}
	return false
}
