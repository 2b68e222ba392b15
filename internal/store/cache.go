package store

import (
	"context"
	"sync"
	"time"

	"github.com/oriys/whisk/internal/domain"
)

// cacheEntry holds a cached value with an expiration time.
type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

func (e *cacheEntry[T]) expired() bool {
	return time.Now().After(e.expiresAt)
}

// DefaultCacheTTL is the default time-to-live for cache entries.
const DefaultCacheTTL = 5 * time.Second

// CachedMetadataStore wraps a MetadataStore and caches the two reads every
// invocation makes on its hot path: resolving the action row and the
// namespace row. Writes invalidate the affected entry immediately; the TTL
// is a safety net bounding staleness in multi-instance deployments.
type CachedMetadataStore struct {
	MetadataStore // underlying store – all uncached methods delegate here

	ttl time.Duration

	actionByFQN    sync.Map // "namespace\x00package\x00name" → *cacheEntry[*domain.Action]
	namespaceByKey sync.Map // namespace name → *cacheEntry[*domain.Namespace]
}

// NewCachedMetadataStore returns a MetadataStore that caches hot-path reads.
// Pass ttl <= 0 to use the default (5s).
func NewCachedMetadataStore(underlying MetadataStore, ttl time.Duration) *CachedMetadataStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedMetadataStore{
		MetadataStore: underlying,
		ttl:           ttl,
	}
}

func actionKey(namespace, pkg, name string) string {
	return namespace + "\x00" + pkg + "\x00" + name
}

func cacheGet[T any](m *sync.Map, key string) (T, bool) {
	v, ok := m.Load(key)
	if !ok {
		var zero T
		return zero, false
	}
	entry := v.(*cacheEntry[T])
	if entry.expired() {
		m.Delete(key)
		var zero T
		return zero, false
	}
	return entry.value, true
}

func cachePut[T any](m *sync.Map, key string, value T, ttl time.Duration) {
	m.Store(key, &cacheEntry[T]{value: value, expiresAt: time.Now().Add(ttl)})
}

func (c *CachedMetadataStore) GetAction(ctx context.Context, namespace, pkg, name string) (*domain.Action, error) {
	key := actionKey(namespace, pkg, name)
	if action, ok := cacheGet[*domain.Action](&c.actionByFQN, key); ok {
		return action, nil
	}
	action, err := c.MetadataStore.GetAction(ctx, namespace, pkg, name)
	if err != nil {
		return nil, err
	}
	cachePut(&c.actionByFQN, key, action, c.ttl)
	return action, nil
}

func (c *CachedMetadataStore) UpsertAction(ctx context.Context, action *domain.Action) error {
	err := c.MetadataStore.UpsertAction(ctx, action)
	if err == nil {
		c.actionByFQN.Delete(actionKey(action.Namespace, action.Package, action.Name))
	}
	return err
}

func (c *CachedMetadataStore) DeleteAction(ctx context.Context, namespace, pkg, name string) error {
	err := c.MetadataStore.DeleteAction(ctx, namespace, pkg, name)
	if err == nil {
		c.actionByFQN.Delete(actionKey(namespace, pkg, name))
	}
	return err
}

func (c *CachedMetadataStore) GetNamespace(ctx context.Context, name string) (*domain.Namespace, error) {
	if ns, ok := cacheGet[*domain.Namespace](&c.namespaceByKey, name); ok {
		return ns, nil
	}
	ns, err := c.MetadataStore.GetNamespace(ctx, name)
	if err != nil {
		return nil, err
	}
	cachePut(&c.namespaceByKey, name, ns, c.ttl)
	return ns, nil
}

func (c *CachedMetadataStore) UpsertNamespace(ctx context.Context, ns *domain.Namespace) error {
	err := c.MetadataStore.UpsertNamespace(ctx, ns)
	if err == nil {
		c.namespaceByKey.Delete(ns.Name)
	}
	return err
}

func (c *CachedMetadataStore) DeleteNamespace(ctx context.Context, name string) error {
	err := c.MetadataStore.DeleteNamespace(ctx, name)
	if err == nil {
		c.namespaceByKey.Delete(name)
	}
	return err
}
