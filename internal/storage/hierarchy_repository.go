package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rental-insight/internal/models"
)

// HierarchyRepository persists the City -> District -> Neighborhood tree
type HierarchyRepository struct {
	db *PostgresDB
}

// NewHierarchyRepository creates a new hierarchy repository
func NewHierarchyRepository(db *PostgresDB) *HierarchyRepository {
	return &HierarchyRepository{db: db}
}

// Ping checks that the backing store is reachable
func (r *HierarchyRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// FindCity returns the city with the given name, or nil if none exists
func (r *HierarchyRepository) FindCity(ctx context.Context, name string) (*models.City, error) {
	var c models.City
	err := r.db.Pool().QueryRow(ctx,
		`SELECT id, name, created_at FROM cities WHERE name = $1`, name,
	).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find city: %w", err)
	}
	return &c, nil
}

// CreateCity inserts a city. A concurrent insert of the same name yields ErrDuplicate.
func (r *HierarchyRepository) CreateCity(ctx context.Context, name string) (*models.City, error) {
	c := models.City{Name: name}
	err := r.db.Pool().QueryRow(ctx,
		`INSERT INTO cities (name) VALUES ($1) RETURNING id, created_at`, name,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create city: %w", mapPgError(err))
	}
	return &c, nil
}

// FindDistrict returns the district named name under cityID, or nil
func (r *HierarchyRepository) FindDistrict(ctx context.Context, cityID int64, name string) (*models.District, error) {
	var d models.District
	err := r.db.Pool().QueryRow(ctx,
		`SELECT id, city_id, name, created_at FROM districts WHERE city_id = $1 AND name = $2`,
		cityID, name,
	).Scan(&d.ID, &d.CityID, &d.Name, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find district: %w", err)
	}
	return &d, nil
}

// CreateDistrict inserts a district under cityID
func (r *HierarchyRepository) CreateDistrict(ctx context.Context, cityID int64, name string) (*models.District, error) {
	d := models.District{CityID: cityID, Name: name}
	err := r.db.Pool().QueryRow(ctx,
		`INSERT INTO districts (city_id, name) VALUES ($1, $2) RETURNING id, created_at`,
		cityID, name,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create district: %w", mapPgError(err))
	}
	return &d, nil
}

const neighborhoodColumns = `id, district_id, name, property_count, last_synced_at, created_at`

func scanNeighborhood(row pgx.Row) (*models.Neighborhood, error) {
	var n models.Neighborhood
	if err := row.Scan(&n.ID, &n.DistrictID, &n.Name, &n.PropertyCount, &n.LastSyncedAt, &n.CreatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

// FindNeighborhood returns the neighborhood named name under districtID, or nil
func (r *HierarchyRepository) FindNeighborhood(ctx context.Context, districtID int64, name string) (*models.Neighborhood, error) {
	n, err := scanNeighborhood(r.db.Pool().QueryRow(ctx,
		`SELECT `+neighborhoodColumns+` FROM neighborhoods WHERE district_id = $1 AND name = $2`,
		districtID, name,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find neighborhood: %w", err)
	}
	return n, nil
}

// GetNeighborhood returns the neighborhood with the given id, or nil
func (r *HierarchyRepository) GetNeighborhood(ctx context.Context, id int64) (*models.Neighborhood, error) {
	n, err := scanNeighborhood(r.db.Pool().QueryRow(ctx,
		`SELECT `+neighborhoodColumns+` FROM neighborhoods WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get neighborhood: %w", err)
	}
	return n, nil
}

// CreateNeighborhood inserts a neighborhood with property_count = 0
func (r *HierarchyRepository) CreateNeighborhood(ctx context.Context, districtID int64, name string) (*models.Neighborhood, error) {
	n, err := scanNeighborhood(r.db.Pool().QueryRow(ctx,
		`INSERT INTO neighborhoods (district_id, name, property_count)
		 VALUES ($1, $2, 0)
		 RETURNING `+neighborhoodColumns,
		districtID, name,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create neighborhood: %w", mapPgError(err))
	}
	return n, nil
}

// RefreshNeighborhoodStats recomputes property_count from the properties
// table. last_synced_at is only touched when syncedAt is non-nil.
func (r *HierarchyRepository) RefreshNeighborhoodStats(ctx context.Context, neighborhoodID int64, syncedAt *time.Time) error {
	query := `
		UPDATE neighborhoods
		SET property_count = (SELECT COUNT(*) FROM properties WHERE neighborhood_id = $1),
		    last_synced_at = COALESCE($2, last_synced_at)
		WHERE id = $1
	`
	tag, err := r.db.Pool().Exec(ctx, query, neighborhoodID, syncedAt)
	if err != nil {
		return fmt.Errorf("failed to refresh neighborhood stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("neighborhood %d: %w", neighborhoodID, mapPgError(pgx.ErrNoRows))
	}
	return nil
}
