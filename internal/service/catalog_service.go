package service

import (
	"context"
	"fmt"

	"github.com/nearbuy/backend/internal/entity"
	"github.com/nearbuy/backend/internal/location"
	"github.com/nearbuy/backend/internal/matcher"
	"github.com/nearbuy/backend/internal/repository"
)

// CatalogService produces the proximity-ranked item feed by combining the
// resolved user location with the catalog snapshot.
type CatalogService struct {
	items         repository.ItemStore
	resolver      *location.Resolver
	defaultRadius float64
}

func NewCatalogService(items repository.ItemStore, resolver *location.Resolver) *CatalogService {
	return &CatalogService{
		items:         items,
		resolver:      resolver,
		defaultRadius: matcher.DefaultRadiusKm,
	}
}

// WithDefaultRadius overrides the radius used when callers do not supply one.
func (s *CatalogService) WithDefaultRadius(km float64) {
	if km > 0 {
		s.defaultRadius = km
	}
}

// Nearby resolves the user's location and returns items within radiusKm of
// it, nearest first. A radiusKm of zero or less selects the default
// home-feed radius.
func (s *CatalogService) Nearby(ctx context.Context, userID string, radiusKm float64) ([]entity.ItemWithDistance, location.Resolved, error) {
	resolved, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, location.Resolved{}, fmt.Errorf("failed to resolve location: %w", err)
	}

	catalog, err := s.items.ListCatalog(ctx)
	if err != nil {
		return nil, resolved, fmt.Errorf("failed to load catalog: %w", err)
	}

	if radiusKm <= 0 {
		radiusKm = s.defaultRadius
	}
	return matcher.Nearby(catalog, resolved.Coordinate, userID, radiusKm), resolved, nil
}

// NearbyAt is Nearby with an explicit origin, bypassing location resolution.
// Used when the caller supplies coordinates directly.
func (s *CatalogService) NearbyAt(ctx context.Context, origin entity.Coordinate, requesterID string, radiusKm float64) ([]entity.ItemWithDistance, error) {
	catalog, err := s.items.ListCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	if radiusKm <= 0 {
		radiusKm = s.defaultRadius
	}
	return matcher.Nearby(catalog, origin, requesterID, radiusKm), nil
}
