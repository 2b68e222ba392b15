package auth

import "testing"

func TestExtractNamespaceScopesFromClaimsAllowedNamespaces(t *testing.T) {
	claims := map[string]any{
		"allowed_namespaces": []any{"prod", "dev", "prod"},
	}

	scopes := extractNamespaceScopesFromClaims(claims)
	if len(scopes) != 2 {
		t.Fatalf("expected 2 deduped scopes, got %d: %+v", len(scopes), scopes)
	}
	if scopes[0].Namespace != "dev" || scopes[1].Namespace != "prod" {
		t.Fatalf("expected sorted [dev, prod], got %+v", scopes)
	}
}

func TestExtractNamespaceScopesFromClaimsFallbackSingle(t *testing.T) {
	claims := map[string]any{"namespace": "whisk.guest"}

	scopes := extractNamespaceScopesFromClaims(claims)
	if len(scopes) != 1 || scopes[0].Namespace != "whisk.guest" {
		t.Fatalf("unexpected scopes: %+v", scopes)
	}
}

func TestExtractNamespaceScopesFromClaimsEmpty(t *testing.T) {
	if scopes := extractNamespaceScopesFromClaims(nil); scopes != nil {
		t.Fatalf("expected nil scopes for empty claims, got %+v", scopes)
	}
}

func TestIdentityAllowsNamespace(t *testing.T) {
	identity := &Identity{
		Subject:   "apikey:whisk.guest",
		Namespace: "whisk.guest",
		AllowedNamespaces: []NamespaceScope{
			{Namespace: "shared"},
		},
	}

	if !identity.AllowsNamespace("whisk.guest") {
		t.Fatal("expected identity to allow its own namespace")
	}
	if !identity.AllowsNamespace("shared") {
		t.Fatal("expected identity to allow an additional scoped namespace")
	}
	if identity.AllowsNamespace("other") {
		t.Fatal("expected identity to deny an unrelated namespace")
	}
}

func TestNamespaceScopeWildcard(t *testing.T) {
	wildcard := NamespaceScope{Namespace: "*"}
	if !wildcard.Allows("anything") {
		t.Fatal("expected wildcard scope to allow any namespace")
	}
}
