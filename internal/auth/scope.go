package auth

import (
	"encoding/json"
	"slices"
	"strings"
)

const scopeWildcard = "*"

// NamespaceScope is a single authorization boundary: a namespace an
// identity is allowed to act on. "*" allows any namespace.
type NamespaceScope struct {
	Namespace string `json:"namespace"`
}

func normalizeScope(scope NamespaceScope) NamespaceScope {
	ns := strings.TrimSpace(scope.Namespace)
	if ns == "" {
		ns = scopeWildcard
	}
	return NamespaceScope{Namespace: ns}
}

// Allows reports whether this scope permits acting on namespace.
func (s NamespaceScope) Allows(namespace string) bool {
	norm := normalizeScope(s)
	return norm.Namespace == scopeWildcard || norm.Namespace == strings.TrimSpace(namespace)
}

func dedupeScopes(scopes []NamespaceScope) []NamespaceScope {
	if len(scopes) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(scopes))
	uniq := make([]NamespaceScope, 0, len(scopes))
	for _, scope := range scopes {
		norm := normalizeScope(scope)
		if _, ok := seen[norm.Namespace]; ok {
			continue
		}
		seen[norm.Namespace] = struct{}{}
		uniq = append(uniq, norm)
	}
	slices.SortFunc(uniq, func(a, b NamespaceScope) int {
		return strings.Compare(a.Namespace, b.Namespace)
	})
	return uniq
}

func parseClaimStringArray(claim any) []string {
	switch v := claim.(type) {
	case []string:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	default:
		return nil
	}
}

// extractNamespaceScopesFromClaims builds the allowed-namespace list from
// a JWT's "allowed_namespaces" claim (array of strings), falling back to
// a single "namespace" claim.
func extractNamespaceScopesFromClaims(claims map[string]any) []NamespaceScope {
	if len(claims) == 0 {
		return nil
	}

	if allowed := parseClaimStringArray(claims["allowed_namespaces"]); len(allowed) > 0 {
		scopes := make([]NamespaceScope, 0, len(allowed))
		for _, ns := range allowed {
			scopes = append(scopes, NamespaceScope{Namespace: ns})
		}
		return dedupeScopes(scopes)
	}

	if ns, ok := claims["namespace"].(string); ok && strings.TrimSpace(ns) != "" {
		return []NamespaceScope{normalizeScope(NamespaceScope{Namespace: ns})}
	}

	return nil
}

// marshalScopesRoundTrip exists so NamespaceScope values carried in
// claims that arrive pre-decoded as map[string]any still parse.
func marshalScopesRoundTrip(v any) []NamespaceScope {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	var out []NamespaceScope
	for _, m := range raw {
		if ns, ok := m["namespace"].(string); ok {
			out = append(out, NamespaceScope{Namespace: ns})
		}
	}
	return dedupeScopes(out)
}
