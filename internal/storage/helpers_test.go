package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rental-insight/internal/config"
	"github.com/rental-insight/internal/models"
)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// testPostgres connects with the environment's Postgres settings, applies
// migrations and empties every table. Skips when Postgres is unavailable.
func testPostgres(t *testing.T) *PostgresDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	db, err := NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	if err := RunMigrations(cfg.Database.Postgres.URL(), "../../"+PostgresMigrationsPath); err != nil {
		t.Skipf("Skipping test - migrations failed: %v", err)
	}

	_, err = db.Pool().Exec(testContext(t), `
		TRUNCATE property_review_summary, property_reviews, property_images,
		         property_occupancy, property_pricing, property_details,
		         properties, neighborhoods, districts, cities
		RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return db
}

func seedNeighborhoods(t *testing.T, repo *HierarchyRepository, names ...string) []*models.Neighborhood {
	t.Helper()
	ctx := testContext(t)
	city, err := repo.CreateCity(ctx, "서울")
	require.NoError(t, err)
	district, err := repo.CreateDistrict(ctx, city.ID, "강남구")
	require.NoError(t, err)

	out := make([]*models.Neighborhood, 0, len(names))
	for _, name := range names {
		n, err := repo.CreateNeighborhood(ctx, district.ID, name)
		require.NoError(t, err)
		out = append(out, n)
	}
	return out
}
