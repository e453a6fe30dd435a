package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-helpdesk/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const activeConnectionCacheKeyPrefix = "go-helpdesk::active_connection::v1"

// CachedConnectionRegistry caches FindActive lookups, which every sync and
// ticket listing performs. Writes go to the base registry and evict the key.
type CachedConnectionRegistry struct {
	base  core.ConnectionRegistry
	cache repositorycache.CacheService
}

func NewCachedConnectionRegistry(
	base core.ConnectionRegistry,
	cacheService repositorycache.CacheService,
) (*CachedConnectionRegistry, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base connection registry is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: connection cache service is required")
	}
	return &CachedConnectionRegistry{base: base, cache: cacheService}, nil
}

// ActiveConnectionCacheKey returns
// go-helpdesk::active_connection::v1::<profile_id>::<platform_type> with each
// segment URL-path escaped.
func ActiveConnectionCacheKey(profileID string, platformType core.PlatformType) (string, error) {
	profileID = strings.TrimSpace(profileID)
	platform := strings.TrimSpace(string(platformType))
	if profileID == "" || platform == "" {
		return "", fmt.Errorf("sqlstore: profile id and platform type are required")
	}
	return strings.Join([]string{
		activeConnectionCacheKeyPrefix,
		url.PathEscape(profileID),
		url.PathEscape(platform),
	}, "::"), nil
}

func (r *CachedConnectionRegistry) Activate(ctx context.Context, in core.ActivateConnectionInput) (core.PlatformConnection, error) {
	if err := r.ready(); err != nil {
		return core.PlatformConnection{}, err
	}
	connection, err := r.base.Activate(ctx, in)
	if err != nil {
		return core.PlatformConnection{}, err
	}
	if err := r.evict(ctx, in.ProfileID, in.PlatformType); err != nil {
		return core.PlatformConnection{}, err
	}
	return connection, nil
}

func (r *CachedConnectionRegistry) Get(ctx context.Context, id string) (core.PlatformConnection, error) {
	if err := r.ready(); err != nil {
		return core.PlatformConnection{}, err
	}
	return r.base.Get(ctx, id)
}

func (r *CachedConnectionRegistry) FindActive(ctx context.Context, profileID string, platformType core.PlatformType) (core.PlatformConnection, error) {
	if err := r.ready(); err != nil {
		return core.PlatformConnection{}, err
	}
	cacheKey, err := ActiveConnectionCacheKey(profileID, platformType)
	if err != nil {
		return core.PlatformConnection{}, err
	}
	connection, err := repositorycache.GetOrFetch(ctx, r.cache, cacheKey, func(ctx context.Context) (core.PlatformConnection, error) {
		return r.base.FindActive(ctx, profileID, platformType)
	})
	if err != nil {
		return core.PlatformConnection{}, err
	}
	return cloneConnection(connection), nil
}

func (r *CachedConnectionRegistry) ListByProfile(ctx context.Context, profileID string) ([]core.PlatformConnection, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	return r.base.ListByProfile(ctx, profileID)
}

func (r *CachedConnectionRegistry) ListActive(ctx context.Context) ([]core.PlatformConnection, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	return r.base.ListActive(ctx)
}

func (r *CachedConnectionRegistry) MarkFetched(ctx context.Context, id string, at time.Time) error {
	if err := r.ready(); err != nil {
		return err
	}
	if err := r.base.MarkFetched(ctx, id, at); err != nil {
		return err
	}
	connection, err := r.base.Get(ctx, id)
	if err != nil {
		return err
	}
	return r.evict(ctx, connection.ProfileID, connection.PlatformType)
}

func (r *CachedConnectionRegistry) Deactivate(ctx context.Context, profileID string, platformType core.PlatformType) error {
	if err := r.ready(); err != nil {
		return err
	}
	if err := r.base.Deactivate(ctx, profileID, platformType); err != nil {
		return err
	}
	return r.evict(ctx, profileID, platformType)
}

func (r *CachedConnectionRegistry) ready() error {
	if r == nil || r.base == nil || r.cache == nil {
		return fmt.Errorf("sqlstore: cached connection registry is not configured")
	}
	return nil
}

func (r *CachedConnectionRegistry) evict(ctx context.Context, profileID string, platformType core.PlatformType) error {
	cacheKey, err := ActiveConnectionCacheKey(profileID, platformType)
	if err != nil {
		return err
	}
	return r.cache.Delete(ctx, cacheKey)
}

func cloneConnection(connection core.PlatformConnection) core.PlatformConnection {
	cloned := connection
	cloned.AuthTokens = copyAnyMap(connection.AuthTokens)
	cloned.LastFetchedAt = cloneTimePointer(connection.LastFetchedAt)
	return cloned
}
