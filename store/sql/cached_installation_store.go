package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-connectors/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const installationCacheKeyPrefix = "go-connectors::installation::v1"

// CachedInstallationStore caches channel lookups in front of a base store.
// Webhook routing resolves the installation on every delivery; everything
// else writes through and invalidates.
type CachedInstallationStore struct {
	base  core.InstallationStore
	cache repositorycache.CacheService
}

func NewCachedInstallationStore(
	base core.InstallationStore,
	cacheService repositorycache.CacheService,
) (*CachedInstallationStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base installation store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: installation cache service is required")
	}
	return &CachedInstallationStore{base: base, cache: cacheService}, nil
}

// InstallationCacheKey returns the deterministic cache key contract for
// channel lookups: go-connectors::installation::v1::<connector>::<channel_id>
// with each segment URL-path escaped after normalization.
func InstallationCacheKey(connector, channelID string) (string, error) {
	connector = strings.TrimSpace(strings.ToLower(connector))
	channelID = strings.TrimSpace(channelID)
	if connector == "" || channelID == "" {
		return "", fmt.Errorf("sqlstore: connector and channel id are required")
	}
	return strings.Join([]string{
		installationCacheKeyPrefix,
		url.PathEscape(connector),
		url.PathEscape(channelID),
	}, "::"), nil
}

func (s *CachedInstallationStore) GetByChannel(ctx context.Context, connector, channelID string) (core.Installation, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Installation{}, fmt.Errorf("sqlstore: cached installation store is not configured")
	}
	cacheKey, err := InstallationCacheKey(connector, channelID)
	if err != nil {
		return core.Installation{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Installation, error) {
		return s.base.GetByChannel(ctx, connector, channelID)
	})
}

func (s *CachedInstallationStore) Upsert(ctx context.Context, in core.UpsertInstallationInput) (core.Installation, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Installation{}, fmt.Errorf("sqlstore: cached installation store is not configured")
	}
	installation, err := s.base.Upsert(ctx, in)
	if err != nil {
		return core.Installation{}, err
	}
	if invalidateErr := s.invalidate(ctx, installation.Connector, installation.ChannelID); invalidateErr != nil {
		return core.Installation{}, invalidateErr
	}
	return installation, nil
}

func (s *CachedInstallationStore) Get(ctx context.Context, id string) (core.Installation, error) {
	if s == nil || s.base == nil {
		return core.Installation{}, fmt.Errorf("sqlstore: cached installation store is not configured")
	}
	return s.base.Get(ctx, id)
}

func (s *CachedInstallationStore) ListByConnector(ctx context.Context, connector string) ([]core.Installation, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached installation store is not configured")
	}
	return s.base.ListByConnector(ctx, connector)
}

func (s *CachedInstallationStore) UpdateStatus(ctx context.Context, id string, status core.InstallationStatus) error {
	return s.writeThrough(ctx, id, func(ctx context.Context) error {
		return s.base.UpdateStatus(ctx, id, status)
	})
}

func (s *CachedInstallationStore) PurgeCredentials(ctx context.Context, id string) error {
	return s.writeThrough(ctx, id, func(ctx context.Context) error {
		return s.base.PurgeCredentials(ctx, id)
	})
}

func (s *CachedInstallationStore) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.base == nil {
		return fmt.Errorf("sqlstore: cached installation store is not configured")
	}
	// last-active is advisory: skip invalidation, the cached row stays usable
	return s.base.TouchLastActive(ctx, id, at)
}

func (s *CachedInstallationStore) writeThrough(ctx context.Context, id string, write func(ctx context.Context) error) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached installation store is not configured")
	}
	installation, err := s.base.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := write(ctx); err != nil {
		return err
	}
	return s.invalidate(ctx, installation.Connector, installation.ChannelID)
}

func (s *CachedInstallationStore) invalidate(ctx context.Context, connector, channelID string) error {
	cacheKey, err := InstallationCacheKey(connector, channelID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

var _ core.InstallationStore = (*CachedInstallationStore)(nil)
