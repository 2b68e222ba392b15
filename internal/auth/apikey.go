package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/oriys/whisk/internal/domain"
)

// NamespaceLookup resolves a namespace record for Basic Auth
// validation, satisfied by store.MetadataStore.
type NamespaceLookup interface {
	GetNamespace(ctx context.Context, name string) (*domain.Namespace, error)
}

// BasicAuthAuthenticator validates the wire protocol's Basic Auth
// convention: Authorization: Basic base64(namespace:key), where key is
// checked against the namespace's stored key hash.
type BasicAuthAuthenticator struct {
	namespaces NamespaceLookup
}

// NewBasicAuthAuthenticator builds a BasicAuthAuthenticator backed by
// namespaces.
func NewBasicAuthAuthenticator(namespaces NamespaceLookup) *BasicAuthAuthenticator {
	return &BasicAuthAuthenticator{namespaces: namespaces}
}

// Authenticate implements Authenticator.
func (a *BasicAuthAuthenticator) Authenticate(r *http.Request) *Identity {
	namespace, key, ok := parseBasicAuth(r.Header.Get("Authorization"))
	if !ok {
		return nil
	}

	ns, err := a.namespaces.GetNamespace(r.Context(), namespace)
	if err != nil || ns.APIKeyHash == "" {
		return nil
	}

	if !VerifyAPIKey(key, ns.APIKeyHash) {
		return nil
	}

	return &Identity{
		Subject:   "apikey:" + namespace,
		Namespace: namespace,
		KeyName:   namespace,
	}
}

// parseBasicAuth decodes an "Authorization: Basic base64(namespace:key)"
// header, returning ok=false if the header is absent or malformed.
func parseBasicAuth(header string) (namespace, key string, ok bool) {
	if !strings.HasPrefix(header, "Basic ") {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
	if err != nil {
		return "", "", false
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// HashAPIKey computes the stored hash of a plaintext namespace key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// VerifyAPIKey checks a plaintext key against a stored hash in constant
// time.
func VerifyAPIKey(plaintext, hash string) bool {
	computed := HashAPIKey(plaintext)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}
