package service

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "github.com/rental-insight/internal/errors"
	"github.com/rental-insight/internal/models"
	"github.com/rental-insight/internal/retry"
	"github.com/rental-insight/internal/types"
)

// HierarchyCache remembers city and district ids for the duration of one
// batch. Neighborhoods are not cached: a batch rarely names one twice.
// A cache must not be shared between concurrently running batches.
type HierarchyCache struct {
	cities    map[string]int64
	districts map[districtKey]int64
}

type districtKey struct {
	cityID int64
	name   string
}

// NewHierarchyCache creates an empty batch-scoped cache
func NewHierarchyCache() *HierarchyCache {
	return &HierarchyCache{
		cities:    make(map[string]int64),
		districts: make(map[districtKey]int64),
	}
}

// Size returns the number of cached cities and districts
func (c *HierarchyCache) Size() (cities, districts int) {
	return len(c.cities), len(c.districts)
}

// HierarchyResolver maps a region label triple to a neighborhood, creating
// missing levels on the way down
type HierarchyResolver struct {
	store    HierarchyStore
	retryCfg retry.Config
}

// NewHierarchyResolver creates a resolver. A create that loses a race against
// another batch is retried by looking the row up again.
func NewHierarchyResolver(store HierarchyStore) *HierarchyResolver {
	return &HierarchyResolver{
		store: store,
		retryCfg: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     100 * time.Millisecond,
			Multiplier:   2.0,
			Retryable: func(err error) bool {
				return errors.Is(err, apperrors.ErrDuplicate)
			},
		},
	}
}

// Resolve returns the neighborhood for (city, district, neighborhood)
func (r *HierarchyResolver) Resolve(ctx context.Context, cache *HierarchyCache, city, district, neighborhood string) (*models.Neighborhood, error) {
	if cache == nil {
		cache = NewHierarchyCache()
	}
	city = strings.TrimSpace(city)
	district = strings.TrimSpace(district)
	neighborhood = strings.TrimSpace(neighborhood)

	cityID, ok := cache.cities[city]
	if !ok {
		c, err := findOrCreate(ctx, r.retryCfg,
			func(ctx context.Context) (*models.City, error) { return r.store.FindCity(ctx, city) },
			func(ctx context.Context) (*models.City, error) { return r.store.CreateCity(ctx, city) },
		)
		if err != nil {
			return nil, &apperrors.HierarchyResolutionError{Level: types.LevelCity, Name: city, Cause: err}
		}
		cityID = c.ID
		cache.cities[city] = cityID
	}

	dk := districtKey{cityID: cityID, name: district}
	districtID, ok := cache.districts[dk]
	if !ok {
		d, err := findOrCreate(ctx, r.retryCfg,
			func(ctx context.Context) (*models.District, error) { return r.store.FindDistrict(ctx, cityID, district) },
			func(ctx context.Context) (*models.District, error) {
				return r.store.CreateDistrict(ctx, cityID, district)
			},
		)
		if err != nil {
			return nil, &apperrors.HierarchyResolutionError{Level: types.LevelDistrict, Name: district, Cause: err}
		}
		districtID = d.ID
		cache.districts[dk] = districtID
	}

	n, err := findOrCreate(ctx, r.retryCfg,
		func(ctx context.Context) (*models.Neighborhood, error) {
			return r.store.FindNeighborhood(ctx, districtID, neighborhood)
		},
		func(ctx context.Context) (*models.Neighborhood, error) {
			return r.store.CreateNeighborhood(ctx, districtID, neighborhood)
		},
	)
	if err != nil {
		return nil, &apperrors.HierarchyResolutionError{Level: types.LevelNeighborhood, Name: neighborhood, Cause: err}
	}
	return n, nil
}

// findOrCreate looks a row up and creates it when absent. ErrDuplicate from
// create means another writer won; the next attempt finds its row.
func findOrCreate[T any](
	ctx context.Context,
	cfg retry.Config,
	find func(ctx context.Context) (*T, error),
	create func(ctx context.Context) (*T, error),
) (*T, error) {
	var out *T
	err := retry.Do(ctx, cfg, func(ctx context.Context, _ int) error {
		found, err := find(ctx)
		if err != nil {
			return err
		}
		if found != nil {
			out = found
			return nil
		}
		created, err := create(ctx)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
