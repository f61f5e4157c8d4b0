package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rental-insight/internal/models"
)

// PropertyRepository persists property rows and reads the flattened
// neighborhood view used for clustering
type PropertyRepository struct {
	db *PostgresDB
}

// NewPropertyRepository creates a new property repository
func NewPropertyRepository(db *PostgresDB) *PropertyRepository {
	return &PropertyRepository{db: db}
}

// FindByExternalIDs returns the stored identity of every listed external id
// that exists. Callers chunk ids to keep the array parameter bounded.
func (r *PropertyRepository) FindByExternalIDs(ctx context.Context, externalIDs []string) ([]models.PropertyRef, error) {
	if len(externalIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.Pool().Query(ctx,
		`SELECT id, external_id, neighborhood_id FROM properties WHERE external_id = ANY($1)`,
		externalIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query properties by external id: %w", err)
	}

	refs, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.PropertyRef])
	if err != nil {
		return nil, fmt.Errorf("failed to scan property refs: %w", err)
	}
	return refs, nil
}

// InsertProperties bulk-inserts new properties in one transaction and returns
// external_id -> surrogate id. Either every row is inserted or none is.
func (r *PropertyRepository) InsertProperties(ctx context.Context, props []models.Property) (map[string]int64, error) {
	ids := make(map[string]int64, len(props))
	if len(props) == 0 {
		return ids, nil
	}

	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // no-op after commit
	}()

	batch := &pgx.Batch{}
	for i := range props {
		p := &props[i]
		batch.Queue(`
			INSERT INTO properties (
				external_id, neighborhood_id, name, address, building_type,
				latitude, longitude, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id`,
			p.ExternalID, p.NeighborhoodID, p.Name, p.Address, p.BuildingType,
			p.Latitude, p.Longitude, p.CreatedAt, p.UpdatedAt,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for i := range props {
		var id int64
		if err := br.QueryRow().Scan(&id); err != nil {
			_ = br.Close()
			return nil, fmt.Errorf("failed to insert property %s: %w", props[i].ExternalID, mapPgError(err))
		}
		ids[props[i].ExternalID] = id
	}
	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("failed to close insert batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit property insert: %w", err)
	}
	return ids, nil
}

// UpdateProperty refreshes a stored property's attributes. When reassign is
// true neighborhood_id is moved to p.NeighborhoodID as well.
func (r *PropertyRepository) UpdateProperty(ctx context.Context, p *models.Property, reassign bool) error {
	query := `
		UPDATE properties
		SET name = $2, address = $3, building_type = $4,
		    latitude = $5, longitude = $6, updated_at = $7
		WHERE id = $1
	`
	args := []any{p.ID, p.Name, p.Address, p.BuildingType, p.Latitude, p.Longitude, p.UpdatedAt}
	if reassign {
		query = `
			UPDATE properties
			SET name = $2, address = $3, building_type = $4,
			    latitude = $5, longitude = $6, updated_at = $7,
			    neighborhood_id = $8
			WHERE id = $1
		`
		args = append(args, p.NeighborhoodID)
	}

	tag, err := r.db.Pool().Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update property %s: %w", p.ExternalID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("property %d: %w", p.ID, mapPgError(pgx.ErrNoRows))
	}
	return nil
}

// ListByNeighborhood returns every property owned by the neighborhood with
// details, pricing, occupancy, review summary and primary image flattened on.
func (r *PropertyRepository) ListByNeighborhood(ctx context.Context, neighborhoodID int64) ([]*models.Property, error) {
	query := `
		SELECT p.id, p.external_id, p.neighborhood_id, p.name, p.address, p.building_type,
		       p.latitude, p.longitude, p.created_at, p.updated_at,
		       d.room_count, d.bathroom_count, d.kitchen_count, d.size_m2,
		       d.has_elevator, d.has_parking, d.is_super_host,
		       pr.weekly_price, pr.weekly_maintenance, pr.cleaning_fee,
		       pr.monthly_rent, pr.monthly_maintenance, pr.cleaning_cost,
		       o.rate_1m, o.rate_2m, o.rate_3m,
		       rs.review_count, rs.average_rating, rs.latest_review_at,
		       img.url
		FROM properties p
		LEFT JOIN property_details d ON d.property_id = p.id
		LEFT JOIN property_pricing pr ON pr.property_id = p.id
		LEFT JOIN property_occupancy o ON o.property_id = p.id
		LEFT JOIN property_review_summary rs ON rs.property_id = p.id
		LEFT JOIN LATERAL (
			SELECT url FROM property_images i
			WHERE i.property_id = p.id
			ORDER BY i.is_primary DESC, i.sort_order ASC
			LIMIT 1
		) img ON TRUE
		WHERE p.neighborhood_id = $1
		ORDER BY p.id
	`

	rows, err := r.db.Pool().Query(ctx, query, neighborhoodID)
	if err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	defer rows.Close()

	var out []*models.Property
	for rows.Next() {
		var (
			p models.Property

			roomCount, bathCount, kitchenCount *int
			sizeM2                             *float64
			elevator, parking, superHost       *bool

			price, weeklyMaint, fee       *int64
			rent, monthlyMaint, cleanCost *int64

			rate1, rate2, rate3 *float64

			reviewCount   *int
			averageRating *float64
			latestReview  *time.Time

			imageURL *string
		)
		if err := rows.Scan(
			&p.ID, &p.ExternalID, &p.NeighborhoodID, &p.Name, &p.Address, &p.BuildingType,
			&p.Latitude, &p.Longitude, &p.CreatedAt, &p.UpdatedAt,
			&roomCount, &bathCount, &kitchenCount, &sizeM2,
			&elevator, &parking, &superHost,
			&price, &weeklyMaint, &fee,
			&rent, &monthlyMaint, &cleanCost,
			&rate1, &rate2, &rate3,
			&reviewCount, &averageRating, &latestReview,
			&imageURL,
		); err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}

		if roomCount != nil {
			p.Details = &models.PropertyDetails{
				PropertyID:    p.ID,
				RoomCount:     *roomCount,
				BathroomCount: deref(bathCount),
				KitchenCount:  deref(kitchenCount),
				SizeM2:        deref(sizeM2),
				HasElevator:   deref(elevator),
				HasParking:    deref(parking),
				IsSuperHost:   deref(superHost),
			}
		}
		if price != nil {
			p.Pricing = &models.PropertyPricing{
				PropertyID:         p.ID,
				WeeklyPrice:        *price,
				WeeklyMaintenance:  deref(weeklyMaint),
				CleaningFee:        deref(fee),
				MonthlyRent:        rent,
				MonthlyMaintenance: monthlyMaint,
				CleaningCost:       cleanCost,
			}
		}
		if rate1 != nil {
			p.Occupancy = &models.PropertyOccupancy{
				PropertyID: p.ID,
				Rate1M:     *rate1,
				Rate2M:     deref(rate2),
				Rate3M:     deref(rate3),
			}
		}
		if reviewCount != nil {
			p.ReviewSummary = &models.ReviewSummary{
				PropertyID:     p.ID,
				ReviewCount:    *reviewCount,
				AverageRating:  deref(averageRating),
				LatestReviewAt: latestReview,
			}
		}
		p.PrimaryImage = imageURL

		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate properties: %w", err)
	}
	return out, nil
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}
