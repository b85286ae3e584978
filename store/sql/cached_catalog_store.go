package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-billing-sync/core"
)

const catalogCacheKeyPrefix = "go-billing-sync::catalog::v1"

// CachedPriceStore fronts the price mirror with a read-through cache. Catalog
// rows are read on every subscription and invoice sync but change rarely, so
// external-id lookups are the hot path worth caching. Writes invalidate.
type CachedPriceStore struct {
	base  core.PriceStore
	cache repositorycache.CacheService
}

func NewCachedPriceStore(
	base core.PriceStore,
	cacheService repositorycache.CacheService,
) (*CachedPriceStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base price store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: price cache service is required")
	}
	return &CachedPriceStore{base: base, cache: cacheService}, nil
}

// CatalogCacheKey returns the deterministic cache key contract for catalog
// reads: go-billing-sync::catalog::v1::<kind>::<external_id>, each segment
// URL-path escaped.
func CatalogCacheKey(kind core.EntityKind, externalID string) (string, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return "", fmt.Errorf("sqlstore: catalog cache key requires an external id")
	}
	segments := []string{
		url.PathEscape(string(kind)),
		url.PathEscape(externalID),
	}
	return strings.Join(append([]string{catalogCacheKeyPrefix}, segments...), "::"), nil
}

func (s *CachedPriceStore) Create(ctx context.Context, price core.Price) (core.Price, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Price{}, fmt.Errorf("sqlstore: cached price store is not configured")
	}
	created, err := s.base.Create(ctx, price)
	if err != nil {
		return core.Price{}, err
	}
	if err := s.invalidate(ctx, created.ExternalID); err != nil {
		return core.Price{}, err
	}
	return created, nil
}

func (s *CachedPriceStore) Get(ctx context.Context, id string) (core.Price, error) {
	if s == nil || s.base == nil {
		return core.Price{}, fmt.Errorf("sqlstore: cached price store is not configured")
	}
	return s.base.Get(ctx, id)
}

func (s *CachedPriceStore) GetByExternalID(ctx context.Context, externalID string) (core.Price, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Price{}, fmt.Errorf("sqlstore: cached price store is not configured")
	}
	cacheKey, err := CatalogCacheKey(core.EntityKindPrice, externalID)
	if err != nil {
		return core.Price{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Price, error) {
		return s.base.GetByExternalID(ctx, externalID)
	})
}

func (s *CachedPriceStore) Update(ctx context.Context, price core.Price) (core.Price, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Price{}, fmt.Errorf("sqlstore: cached price store is not configured")
	}
	updated, err := s.base.Update(ctx, price)
	if err != nil {
		return core.Price{}, err
	}
	if err := s.invalidate(ctx, updated.ExternalID); err != nil {
		return core.Price{}, err
	}
	return updated, nil
}

func (s *CachedPriceStore) invalidate(ctx context.Context, externalID string) error {
	cacheKey, err := CatalogCacheKey(core.EntityKindPrice, externalID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

// CachedProductStore mirrors CachedPriceStore for products.
type CachedProductStore struct {
	base  core.ProductStore
	cache repositorycache.CacheService
}

func NewCachedProductStore(
	base core.ProductStore,
	cacheService repositorycache.CacheService,
) (*CachedProductStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base product store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: product cache service is required")
	}
	return &CachedProductStore{base: base, cache: cacheService}, nil
}

func (s *CachedProductStore) Create(ctx context.Context, product core.Product) (core.Product, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Product{}, fmt.Errorf("sqlstore: cached product store is not configured")
	}
	created, err := s.base.Create(ctx, product)
	if err != nil {
		return core.Product{}, err
	}
	if err := s.invalidate(ctx, created.ExternalID); err != nil {
		return core.Product{}, err
	}
	return created, nil
}

func (s *CachedProductStore) Get(ctx context.Context, id string) (core.Product, error) {
	if s == nil || s.base == nil {
		return core.Product{}, fmt.Errorf("sqlstore: cached product store is not configured")
	}
	return s.base.Get(ctx, id)
}

func (s *CachedProductStore) GetByExternalID(ctx context.Context, externalID string) (core.Product, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Product{}, fmt.Errorf("sqlstore: cached product store is not configured")
	}
	cacheKey, err := CatalogCacheKey(core.EntityKindProduct, externalID)
	if err != nil {
		return core.Product{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Product, error) {
		return s.base.GetByExternalID(ctx, externalID)
	})
}

func (s *CachedProductStore) Update(ctx context.Context, product core.Product) (core.Product, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Product{}, fmt.Errorf("sqlstore: cached product store is not configured")
	}
	updated, err := s.base.Update(ctx, product)
	if err != nil {
		return core.Product{}, err
	}
	if err := s.invalidate(ctx, updated.ExternalID); err != nil {
		return core.Product{}, err
	}
	return updated, nil
}

func (s *CachedProductStore) invalidate(ctx context.Context, externalID string) error {
	cacheKey, err := CatalogCacheKey(core.EntityKindProduct, externalID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}
