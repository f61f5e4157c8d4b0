package service

import (
	"context"
	"time"

	"github.com/rental-insight/internal/cluster"
	"github.com/rental-insight/internal/models"
	"github.com/rental-insight/internal/storage"
	"github.com/rental-insight/internal/types"
)

// HierarchyStore is the City -> District -> Neighborhood persistence the
// resolver and reconciler need. Find methods return nil, nil when absent.
type HierarchyStore interface {
	Ping(ctx context.Context) error
	FindCity(ctx context.Context, name string) (*models.City, error)
	CreateCity(ctx context.Context, name string) (*models.City, error)
	FindDistrict(ctx context.Context, cityID int64, name string) (*models.District, error)
	CreateDistrict(ctx context.Context, cityID int64, name string) (*models.District, error)
	FindNeighborhood(ctx context.Context, districtID int64, name string) (*models.Neighborhood, error)
	CreateNeighborhood(ctx context.Context, districtID int64, name string) (*models.Neighborhood, error)
	GetNeighborhood(ctx context.Context, id int64) (*models.Neighborhood, error)
	RefreshNeighborhoodStats(ctx context.Context, neighborhoodID int64, syncedAt *time.Time) error
}

// PropertyLookup resolves external ids to stored identities
type PropertyLookup interface {
	FindByExternalIDs(ctx context.Context, externalIDs []string) ([]models.PropertyRef, error)
}

// PropertyStore reads and writes property rows
type PropertyStore interface {
	PropertyLookup
	InsertProperties(ctx context.Context, props []models.Property) (map[string]int64, error)
	UpdateProperty(ctx context.Context, p *models.Property, reassign bool) error
	ListByNeighborhood(ctx context.Context, neighborhoodID int64) ([]*models.Property, error)
}

// DependentStore replaces the six record sets owned by properties
type DependentStore interface {
	DeleteDependents(ctx context.Context, table types.DependentTable, propertyIDs []int64) error
	InsertDependents(ctx context.Context, table types.DependentTable, records []models.ListingRecord) error
}

// RunRecorder keeps the history of finished batches
type RunRecorder interface {
	RecordRun(ctx context.Context, report *models.BatchReport, startedAt time.Time, replaceExisting bool) error
}

// BuildingViewCache caches the clustered view of a neighborhood
type BuildingViewCache interface {
	Get(ctx context.Context, neighborhoodID int64) (*storage.CachedBuildings, error)
	Put(ctx context.Context, neighborhoodID int64, result cluster.Result) error
	Invalidate(ctx context.Context, neighborhoodIDs ...int64) error
}

var (
	_ HierarchyStore    = (*storage.HierarchyRepository)(nil)
	_ PropertyStore     = (*storage.PropertyRepository)(nil)
	_ DependentStore    = (*storage.DependentRepository)(nil)
	_ RunRecorder       = (*storage.SyncRunRepository)(nil)
	_ BuildingViewCache = (*storage.BuildingCache)(nil)
)
