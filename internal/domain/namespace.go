package domain

import "time"

// Namespace is the top-level tenancy boundary. All packages, actions,
// triggers, rules, and activations live under exactly one namespace.
type Namespace struct {
	Name       string          `json:"name"`
	Subject    string          `json:"subject"`      // owning identity, for listing/ownership only
	APIKeyHash string          `json:"api_key_hash"` // sha256 of the namespace's wire-protocol API key
	Limits     NamespaceLimits `json:"limits"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NamespaceLimits is stored per namespace but not enforced; quota
// enforcement is out of scope for this control plane.
type NamespaceLimits struct {
	MaxConcurrentInvocations int `json:"max_concurrent_invocations,omitempty"`
	MaxActionsPerMinute      int `json:"max_actions_per_minute,omitempty"`
}
