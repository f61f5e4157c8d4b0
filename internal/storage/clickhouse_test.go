package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rental-insight/internal/config"
	"github.com/rental-insight/internal/models"
)

func testClickHouse(t *testing.T) *ClickHouseDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	if err := EnsureClickHouseDatabase(testContext(t), &cfg.Database.ClickHouse); err != nil {
		t.Skipf("Skipping test - ClickHouse not available: %v", err)
	}

	db, err := NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		t.Skipf("Skipping test - ClickHouse not available: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := RunClickHouseMigrations(testContext(t), db, "../../"+ClickHouseMigrationsPath); err != nil {
		t.Skipf("Skipping test - migrations failed: %v", err)
	}
	return db
}

func TestClickHouseDB_Ping(t *testing.T) {
	db := testClickHouse(t)
	assert.NoError(t, db.Ping(testContext(t)))
	assert.NotNil(t, db.Conn())
	assert.NotEmpty(t, db.Database())
}

func TestEnsureClickHouseDatabase_RejectsBadName(t *testing.T) {
	cfg := &config.ClickHouseConfig{Host: "localhost", Port: "9000", Database: "rental; DROP DATABASE x"}
	err := EnsureClickHouseDatabase(testContext(t), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid ClickHouse database name")
}

func TestSyncRunRepository_RecordRun(t *testing.T) {
	db := testClickHouse(t)
	repo := NewSyncRunRepository(db)
	ctx := testContext(t)

	three := 3
	report := &models.BatchReport{
		Success:        true,
		RunID:          "test-" + time.Now().Format("150405.000000"),
		TotalReceived:  4,
		TotalProcessed: 3,
		NewProperties:  3,
		ErrorRegions:   1,
		ProcessingResults: []models.GroupResult{
			{Region: "서울 강남구 역삼동", Success: true, NewCount: &three, Total: &three},
			{Region: "서울 강남구 삼성동", Success: false, Error: "boom"},
		},
	}
	require.NoError(t, repo.RecordRun(ctx, report, time.Now(), true))

	runs, err := repo.RecentRuns(ctx, 50)
	require.NoError(t, err)

	var found bool
	for _, r := range runs {
		if r.RunID == report.RunID {
			found = true
			assert.Equal(t, uint32(3), r.NewProperties)
			assert.True(t, r.ReplaceExisting)
		}
	}
	assert.True(t, found, "recorded run should be listed")
}
