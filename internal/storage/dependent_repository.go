package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rental-insight/internal/models"
	"github.com/rental-insight/internal/types"
)

// DependentRepository writes the six record sets owned by a property. Every
// call touches exactly one table and is atomic for that table only.
type DependentRepository struct {
	db *PostgresDB
}

// NewDependentRepository creates a new dependent record repository
func NewDependentRepository(db *PostgresDB) *DependentRepository {
	return &DependentRepository{db: db}
}

func tableName(table types.DependentTable) (string, error) {
	t, ok := types.ParseDependentTable(string(table))
	if !ok {
		return "", fmt.Errorf("unknown dependent table %q", table)
	}
	return string(t), nil
}

// DeleteDependents removes every row of table owned by propertyIDs
func (r *DependentRepository) DeleteDependents(ctx context.Context, table types.DependentTable, propertyIDs []int64) error {
	if len(propertyIDs) == 0 {
		return nil
	}
	name, err := tableName(table)
	if err != nil {
		return err
	}

	// name comes from the fixed DependentTables list, never from input
	_, err = r.db.Pool().Exec(ctx, `DELETE FROM `+name+` WHERE property_id = ANY($1)`, propertyIDs)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", name, err)
	}
	return nil
}

// InsertDependents writes table's rows for every record. Records must already
// be bound to their surrogate property id.
func (r *DependentRepository) InsertDependents(ctx context.Context, table types.DependentTable, records []models.ListingRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i := range records {
		if err := queueDependent(batch, table, &records[i]); err != nil {
			return err
		}
	}
	if batch.Len() == 0 {
		return nil
	}

	// A batch without explicit BEGIN runs as one implicit transaction
	if err := r.db.Pool().SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, mapPgError(err))
	}
	return nil
}

func queueDependent(batch *pgx.Batch, table types.DependentTable, rec *models.ListingRecord) error {
	switch table {
	case types.TableDetails:
		d := rec.Details
		batch.Queue(`
			INSERT INTO property_details (
				property_id, room_count, bathroom_count, kitchen_count, size_m2,
				has_elevator, has_parking, is_super_host
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			d.PropertyID, d.RoomCount, d.BathroomCount, d.KitchenCount, d.SizeM2,
			d.HasElevator, d.HasParking, d.IsSuperHost,
		)

	case types.TablePricing:
		p := rec.Pricing
		discounts, err := json.Marshal(p.Discounts)
		if err != nil {
			return fmt.Errorf("failed to encode discounts for property %d: %w", p.PropertyID, err)
		}
		batch.Queue(`
			INSERT INTO property_pricing (
				property_id, weekly_price, weekly_maintenance, cleaning_fee, discounts,
				monthly_rent, monthly_maintenance, cleaning_cost
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			p.PropertyID, p.WeeklyPrice, p.WeeklyMaintenance, p.CleaningFee, discounts,
			p.MonthlyRent, p.MonthlyMaintenance, p.CleaningCost,
		)

	case types.TableOccupancy:
		o := rec.Occupancy
		batch.Queue(`
			INSERT INTO property_occupancy (property_id, rate_1m, rate_2m, rate_3m)
			VALUES ($1, $2, $3, $4)`,
			o.PropertyID, o.Rate1M, o.Rate2M, o.Rate3M,
		)

	case types.TableImages:
		for _, img := range rec.Images {
			batch.Queue(`
				INSERT INTO property_images (property_id, url, sort_order, is_primary)
				VALUES ($1, $2, $3, $4)`,
				img.PropertyID, img.URL, img.SortOrder, img.IsPrimary,
			)
		}

	case types.TableReviews:
		for _, rv := range rec.Reviews {
			batch.Queue(`
				INSERT INTO property_reviews (property_id, author, rating, content, reviewed_at)
				VALUES ($1, $2, $3, $4, $5)`,
				rv.PropertyID, rv.Author, rv.Rating, rv.Content, rv.ReviewedAt,
			)
		}

	case types.TableReviewSummary:
		s := rec.ReviewSummary
		batch.Queue(`
			INSERT INTO property_review_summary (property_id, review_count, average_rating, latest_review_at)
			VALUES ($1, $2, $3, $4)`,
			s.PropertyID, s.ReviewCount, s.AverageRating, s.LatestReviewAt,
		)

	default:
		return fmt.Errorf("unknown dependent table %q", table)
	}
	return nil
}
