// Package catalog caches surrogate ids of routes, companies and amenities so a
// loader run resolves each natural key against the store at most once.
package catalog

import (
	"context"
	"fmt"

	"busfare-ingest/internal/fares"
)

// Store resolves natural keys to ids with insert-or-ignore semantics.
type Store interface {
	GetOrCreateRoute(ctx context.Context, origin, destination string) (int64, error)
	GetOrCreateCompany(ctx context.Context, c fares.Company) (int64, error)
	GetOrCreateAmenity(ctx context.Context, code int, description string) (int64, error)
}

type routeKey struct{ origin, destination string }

// Cache is owned by a single loader and is not safe for concurrent use.
type Cache struct {
	routes       map[routeKey]int64
	companies    map[fares.CompanyKey]int64
	byOperatorID map[int64]int64
	amenities    map[int]int64

	// keys added since the last Commit; dropped by Forget
	pendingRoutes    []routeKey
	pendingCompanies []fares.CompanyKey
	pendingAmenities []int

	hits, misses int
}

func New() *Cache {
	return &Cache{
		routes:       make(map[routeKey]int64),
		companies:    make(map[fares.CompanyKey]int64),
		byOperatorID: make(map[int64]int64),
		amenities:    make(map[int]int64),
	}
}

func (c *Cache) Route(ctx context.Context, s Store, origin, destination string) (int64, error) {
	k := routeKey{origin, destination}
	if id, ok := c.routes[k]; ok {
		c.hits++
		return id, nil
	}
	c.misses++
	id, err := s.GetOrCreateRoute(ctx, origin, destination)
	if err != nil {
		return 0, fmt.Errorf("route %s -> %s: %w", origin, destination, err)
	}
	c.routes[k] = id
	c.pendingRoutes = append(c.pendingRoutes, k)
	return id, nil
}

// Company looks a company up by operator id first, then by (name, operator id).
func (c *Cache) Company(ctx context.Context, s Store, co fares.Company) (int64, error) {
	k := co.Key()
	if k.HasID {
		if id, ok := c.byOperatorID[k.OperatorID]; ok {
			c.hits++
			return id, nil
		}
	}
	if id, ok := c.companies[k]; ok {
		c.hits++
		return id, nil
	}
	c.misses++
	id, err := s.GetOrCreateCompany(ctx, co)
	if err != nil {
		return 0, fmt.Errorf("company %s: %w", k, err)
	}
	if k.HasID {
		c.byOperatorID[k.OperatorID] = id
	}
	c.companies[k] = id
	c.pendingCompanies = append(c.pendingCompanies, k)
	return id, nil
}

func (c *Cache) Amenity(ctx context.Context, s Store, code int, description string) (int64, error) {
	if id, ok := c.amenities[code]; ok {
		c.hits++
		return id, nil
	}
	c.misses++
	id, err := s.GetOrCreateAmenity(ctx, code, description)
	if err != nil {
		return 0, fmt.Errorf("amenity %d: %w", code, err)
	}
	c.amenities[code] = id
	c.pendingAmenities = append(c.pendingAmenities, code)
	return id, nil
}

// Commit keeps every entry resolved since the previous Commit or Forget.
func (c *Cache) Commit() {
	c.pendingRoutes = c.pendingRoutes[:0]
	c.pendingCompanies = c.pendingCompanies[:0]
	c.pendingAmenities = c.pendingAmenities[:0]
}

// Forget drops entries resolved since the previous Commit. Call it after a
// rollback: ids handed out inside the aborted transaction no longer exist.
func (c *Cache) Forget() {
	for _, k := range c.pendingRoutes {
		delete(c.routes, k)
	}
	for _, k := range c.pendingCompanies {
		delete(c.companies, k)
		if k.HasID {
			delete(c.byOperatorID, k.OperatorID)
		}
	}
	for _, code := range c.pendingAmenities {
		delete(c.amenities, code)
	}
	c.Commit()
}

// Stats reports cache hits and store round-trips.
func (c *Cache) Stats() (hits, misses int) { return c.hits, c.misses }

func (c *Cache) Len() int { return len(c.routes) + len(c.companies) + len(c.amenities) }
