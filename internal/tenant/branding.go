package tenant

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/kampus-erp/kampus/internal/platform/cache"
)

// BrandingCache resolves the branding of a scope. Tenant branding is read
// through a redis JSON cache; concurrent misses for one tenant share a load.
type BrandingCache struct {
	repo     Repository
	cache    *cache.JSON
	platform Branding
	group    singleflight.Group
}

// NewBrandingCache constructs the cache. platform is returned for the
// global scope.
func NewBrandingCache(repo Repository, c *cache.JSON, platform Branding) *BrandingCache {
	return &BrandingCache{repo: repo, cache: c, platform: platform}
}

// Get returns the branding of scope. The deny scope has no branding.
func (b *BrandingCache) Get(ctx context.Context, scope Scope) (Branding, error) {
	switch {
	case scope.IsGlobal():
		return b.platform, nil
	case scope.Denies():
		return Branding{}, nil
	}
	id := scope.TenantID()
	v, err, _ := b.group.Do(id, func() (any, error) {
		key, err := b.cache.BuildKey(ctx, id)
		if err != nil {
			return nil, err
		}
		var branding Branding
		err = b.cache.FetchJSON(ctx, key, &branding, func(ctx context.Context) (any, error) {
			t, err := b.repo.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			return Branding{TenantID: t.ID, Name: t.DisplayName, LogoRef: t.BrandingRef}, nil
		})
		return branding, err
	})
	if err != nil {
		return Branding{}, fmt.Errorf("tenant branding %s: %w", id, err)
	}
	return v.(Branding), nil
}

// Invalidate drops every cached tenant branding.
func (b *BrandingCache) Invalidate(ctx context.Context) error {
	return b.cache.Bump(ctx)
}
