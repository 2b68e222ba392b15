// Package store implements the Entity Store: resolve/upsert/delete/list
// operations over namespaces, packages, actions, triggers, rules, and
// activation records, backed by Postgres with a JSONB-blob-per-row layout.
package store

import (
	"context"

	"github.com/oriys/whisk/internal/domain"
)

// MetadataStore is the Entity Store contract. Every write is a single-row
// transaction; there is no cross-entity transactionality beyond what a
// single upsert/delete needs.
type MetadataStore interface {
	// Namespaces
	UpsertNamespace(ctx context.Context, ns *domain.Namespace) error
	GetNamespace(ctx context.Context, name string) (*domain.Namespace, error)
	ListNamespaces(ctx context.Context, subject string) ([]*domain.Namespace, error)
	DeleteNamespace(ctx context.Context, name string) error

	// Packages
	UpsertPackage(ctx context.Context, pkg *domain.Package) error
	GetPackage(ctx context.Context, namespace, name string) (*domain.Package, error)
	ListPackages(ctx context.Context, namespace string) ([]*domain.Package, error)
	DeletePackage(ctx context.Context, namespace, name string) error
	// ResolvePackageParameters walks a package's binding chain (bounded to
	// MaxBindingDepth) and returns the effective inherited parameter set.
	ResolvePackageParameters(ctx context.Context, namespace, name string) ([]domain.KeyValue, error)

	// Actions
	UpsertAction(ctx context.Context, action *domain.Action) error
	GetAction(ctx context.Context, namespace, pkg, name string) (*domain.Action, error)
	ListActions(ctx context.Context, namespace, pkg string) ([]*domain.Action, error)
	DeleteAction(ctx context.Context, namespace, pkg, name string) error

	// Triggers
	UpsertTrigger(ctx context.Context, trigger *domain.Trigger) error
	GetTrigger(ctx context.Context, namespace, name string) (*domain.Trigger, error)
	ListTriggers(ctx context.Context, namespace string) ([]*domain.Trigger, error)
	DeleteTrigger(ctx context.Context, namespace, name string) error

	// Rules
	UpsertRule(ctx context.Context, rule *domain.Rule) error
	GetRule(ctx context.Context, namespace, name string) (*domain.Rule, error)
	ListRules(ctx context.Context, namespace string) ([]*domain.Rule, error)
	// ListRulesForTrigger returns the active-or-inactive rules bound to a
	// trigger, used by the orchestrator's trigger fan-out.
	ListRulesForTrigger(ctx context.Context, namespace, triggerName string) ([]*domain.Rule, error)
	DeleteRule(ctx context.Context, namespace, name string) error

	// Activations
	SaveActivation(ctx context.Context, activation *domain.Activation) error
	GetActivation(ctx context.Context, namespace, activationID string) (*domain.Activation, error)
	ListActivations(ctx context.Context, namespace string, limit int, sinceActionName string) ([]*domain.Activation, error)

	Ping(ctx context.Context) error
	Close() error
}

// ActionUpdate carries the subset of an action's fields a PATCH-style
// update may change; nil fields are left untouched.
type ActionUpdate struct {
	Runtime     *string
	BlobKey     *string
	CodeHash    *string
	Main        *string
	TimeoutMS   *int
	MemoryMB    *int
	LogsMB      *int
	Parameters  []domain.KeyValue
	Annotations []domain.KeyValue
	Publish     *bool
	WebExport   *bool
}
