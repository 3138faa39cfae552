package tenants

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prettygood-work/benefits-chat-demo/internal/cache"
)

const (
	defaultCacheTTL  = 10 * time.Minute
	defaultCacheSize = 100
	negativeCacheTTL = 30 * time.Second
)

// Directory resolves tenants by slug through a bounded TTL cache. Misses for
// unknown slugs are negatively cached so a storm of bad subdomains does not
// hammer the database.
type Directory struct {
	store *Store
	cache *cache.Cache
}

type DirectoryConfig struct {
	CacheTTL  time.Duration
	CacheSize int
	Metrics   cache.MetricsHooks
}

func NewDirectory(store *Store, cfg DirectoryConfig) *Directory {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	return &Directory{
		store: store,
		cache: cache.New(cache.Options{
			TTL:         ttl,
			NegativeTTL: negativeCacheTTL,
			MaxEntries:  size,
		}, cfg.Metrics),
	}
}

// ResolveSlug returns the active tenant for a slug, case-insensitively.
func (d *Directory) ResolveSlug(ctx context.Context, slug string) (Tenant, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" || ReservedSlugs[slug] {
		return Tenant{}, ErrTenantNotFound
	}
	val, ok, err := d.cache.Get(ctx, slug, func(ctx context.Context, key string) (interface{}, bool, error) {
		t, err := d.store.GetBySlug(ctx, key)
		if errors.Is(err, ErrTenantNotFound) {
			return nil, false, ErrTenantNotFound
		}
		if err != nil {
			return nil, false, err
		}
		return t, true, nil
	})
	if err != nil || !ok {
		if err == nil {
			err = ErrTenantNotFound
		}
		return Tenant{}, err
	}
	return val.(Tenant), nil
}

// Invalidate drops a slug from the cache after a tenant mutation.
func (d *Directory) Invalidate(slug string) {
	d.cache.Delete(strings.ToLower(strings.TrimSpace(slug)))
}
