package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmcdole/handy/internal/domain"
	"github.com/mmcdole/handy/internal/query"
)

// CatalogService serves services, addons and providers through the query cache
type CatalogService struct {
	repo     domain.CatalogRepository
	q        *query.Coordinator
	policies Policies
	logger   *slog.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(repo domain.CatalogRepository, q *query.Coordinator, policies Policies, logger *slog.Logger) *CatalogService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogService{repo: repo, q: q, policies: policies, logger: logger}
}

// Services returns the service catalog, optionally narrowed by category
func (s *CatalogService) Services(ctx context.Context, categoryID string) ([]domain.Service, error) {
	services, err := query.Get(ctx, s.q, ServicesKey(categoryID), s.policies.Default, func(ctx context.Context) ([]domain.Service, error) {
		return s.repo.GetServices(ctx, categoryID)
	})
	if err != nil {
		return services, fmt.Errorf("load services: %w", err)
	}
	s.logger.Debug("loaded services", "category", categoryID, "count", len(services))
	return services, nil
}

// Service returns one service. A cached catalog entry is used when the
// detail has not been fetched yet.
func (s *CatalogService) Service(ctx context.Context, id string) (*domain.Service, error) {
	if _, ok := query.Peek[*domain.Service](s.q.Cache(), ServiceKey(id)); !ok {
		if svc, ok := s.findCachedService(id); ok {
			s.q.Cache().Write(ServiceKey(id), svc)
		}
	}
	svc, err := query.Get(ctx, s.q, ServiceKey(id), s.policies.Default, func(ctx context.Context) (*domain.Service, error) {
		return s.repo.GetService(ctx, id)
	})
	if err != nil {
		return svc, fmt.Errorf("load service %s: %w", id, err)
	}
	return svc, nil
}

func (s *CatalogService) findCachedService(id string) (*domain.Service, bool) {
	for _, k := range s.q.Cache().Keys(query.Key{RootServices, "list"}) {
		list, ok := query.Peek[[]domain.Service](s.q.Cache(), k)
		if !ok {
			continue
		}
		for i := range list {
			if list[i].ID == id {
				svc := list[i]
				return &svc, true
			}
		}
	}
	return nil, false
}

// CachedServices returns the cached catalog without fetching
func (s *CatalogService) CachedServices(categoryID string) ([]domain.Service, bool) {
	return query.Peek[[]domain.Service](s.q.Cache(), ServicesKey(categoryID))
}

// Addons returns the addons offered for a service
func (s *CatalogService) Addons(ctx context.Context, serviceID string) ([]domain.Addon, error) {
	addons, err := query.Get(ctx, s.q, AddonsKey(serviceID), s.policies.Reference, func(ctx context.Context) ([]domain.Addon, error) {
		return s.repo.GetAddons(ctx, serviceID)
	})
	if err != nil {
		return addons, fmt.Errorf("load addons for %s: %w", serviceID, err)
	}
	return addons, nil
}

// Providers returns the provider directory
func (s *CatalogService) Providers(ctx context.Context) ([]domain.Provider, error) {
	providers, err := query.Get(ctx, s.q, ProvidersKey(), s.policies.Providers, s.repo.GetProviders)
	if err != nil {
		return providers, fmt.Errorf("load providers: %w", err)
	}
	return providers, nil
}

// WatchProviders keeps the provider directory polled until the returned
// func is called
func (s *CatalogService) WatchProviders() func() {
	return s.q.Subscribe(ProvidersKey(), func(ctx context.Context) (any, error) {
		return s.repo.GetProviders(ctx)
	}, s.policies.Providers)
}

// Provider returns one provider
func (s *CatalogService) Provider(ctx context.Context, id string) (*domain.Provider, error) {
	p, err := query.Get(ctx, s.q, ProviderKey(id), s.policies.Default, func(ctx context.Context) (*domain.Provider, error) {
		return s.repo.GetProvider(ctx, id)
	})
	if err != nil {
		return p, fmt.Errorf("load provider %s: %w", id, err)
	}
	return p, nil
}

// Refresh invalidates the catalog so subscribed views refetch
func (s *CatalogService) Refresh() {
	s.q.Refresh(query.Key{RootServices})
	s.q.Refresh(query.Key{RootAddons})
	s.q.Refresh(query.Key{RootProviders})
}
