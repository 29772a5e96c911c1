package catalog

import (
	"context"

	gocache "github.com/patrickmn/go-cache"

	"github.com/jamestagal/leaplearn/registry/internal/domain/store"
	"github.com/jamestagal/leaplearn/registry/internal/infrastructure/config"
	"github.com/jamestagal/leaplearn/registry/internal/shared/types"
	"github.com/jamestagal/leaplearn/registry/internal/shared/validate"
)

// Recorder observes catalog cache behavior. Nil disables recording.
type Recorder interface {
	RecordCatalogBuild()
	RecordCatalogCacheHit()
}

// Service serves merged per-tenant catalogs with a short TTL cache.
// Installs and overlay writes invalidate eagerly; the TTL only covers
// writers the service never sees, like a second replica.
type Service struct {
	store       *store.Store
	cache       *gocache.Cache
	hostVersion string
	metrics     Recorder
}

// NewService creates a catalog service.
func NewService(st *store.Store, cfg config.CatalogConfig, metrics Recorder) *Service {
	return &Service{
		store:       st,
		cache:       gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		hostVersion: cfg.HostVersion,
		metrics:     metrics,
	}
}

// Catalog returns the tenant's merged catalog.
func (s *Service) Catalog(ctx context.Context, tenantID string) ([]types.CatalogEntry, error) {
	if err := validate.TenantID(tenantID, true); err != nil {
		return nil, err
	}

	if cached, ok := s.cache.Get(tenantID); ok {
		if s.metrics != nil {
			s.metrics.RecordCatalogCacheHit()
		}
		return cached.([]types.CatalogEntry), nil
	}

	shared, err := s.store.ListRunnable(ctx, nil)
	if err != nil {
		return nil, err
	}
	custom, err := s.store.ListRunnableCustom(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	overlays, err := s.store.Overlays(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	entries := Merge(Input{
		Shared:      shared,
		Custom:      custom,
		Overlays:    overlays,
		HostVersion: s.hostVersion,
	})
	s.cache.SetDefault(tenantID, entries)
	if s.metrics != nil {
		s.metrics.RecordCatalogBuild()
	}
	return entries, nil
}

// Invalidate drops one tenant's cached catalog.
func (s *Service) Invalidate(tenantID string) {
	s.cache.Delete(tenantID)
}

// InvalidateAll drops every cached catalog. Called after installs and
// mirror syncs, which change what all tenants see.
func (s *Service) InvalidateAll() {
	s.cache.Flush()
}

// HostVersion reports the runtime version catalogs are built against.
func (s *Service) HostVersion() string {
	return s.hostVersion
}
