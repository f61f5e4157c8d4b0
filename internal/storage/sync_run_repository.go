package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rental-insight/internal/models"
)

// SyncRun is one row of the reconciliation run history
type SyncRun struct {
	RunID                 string    `json:"runId"`
	StartedAt             time.Time `json:"startedAt"`
	FinishedAt            time.Time `json:"finishedAt"`
	ReplaceExisting       bool      `json:"replaceExisting"`
	Success               bool      `json:"success"`
	TotalReceived         uint32    `json:"totalReceived"`
	TotalProcessed        uint32    `json:"totalProcessed"`
	NewProperties         uint32    `json:"newProperties"`
	UpdatedProperties     uint32    `json:"updatedProperties"`
	MovedProperties       uint32    `json:"movedProperties"`
	FailedProperties      uint32    `json:"failedProperties"`
	DuplicateProperties   uint32    `json:"duplicateProperties"`
	ErrorRegions          uint32    `json:"errorRegions"`
	ProcessingTimeSeconds float64   `json:"processingTimeSeconds"`
}

// SyncRunRepository appends batch reports to ClickHouse. Rows are never
// updated; a run is written once after its batch finishes.
type SyncRunRepository struct {
	db *ClickHouseDB
}

// NewSyncRunRepository creates a new sync run repository
func NewSyncRunRepository(db *ClickHouseDB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// RecordRun writes the run summary and one row per region group result
func (r *SyncRunRepository) RecordRun(ctx context.Context, report *models.BatchReport, startedAt time.Time, replaceExisting bool) error {
	run := SyncRunFromReport(report, startedAt, replaceExisting)

	runBatch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO sync_runs (
			run_id, started_at, finished_at, replace_existing, success,
			total_received, total_processed, new_properties, updated_properties,
			moved_properties, failed_properties, duplicate_properties, error_regions,
			processing_time_seconds
		)`)
	if err != nil {
		return fmt.Errorf("failed to prepare sync run batch: %w", err)
	}
	if err := runBatch.Append(
		run.RunID, run.StartedAt, run.FinishedAt, run.ReplaceExisting, run.Success,
		run.TotalReceived, run.TotalProcessed, run.NewProperties, run.UpdatedProperties,
		run.MovedProperties, run.FailedProperties, run.DuplicateProperties, run.ErrorRegions,
		run.ProcessingTimeSeconds,
	); err != nil {
		return fmt.Errorf("failed to append sync run: %w", err)
	}
	if err := runBatch.Send(); err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}

	if len(report.ProcessingResults) == 0 {
		return nil
	}

	resultBatch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO sync_run_results (
			run_id, started_at, position, region, success,
			new_count, update_count, move_count, total, error
		)`)
	if err != nil {
		return fmt.Errorf("failed to prepare group result batch: %w", err)
	}
	for i, res := range report.ProcessingResults {
		if err := resultBatch.Append(
			run.RunID, run.StartedAt, uint32(i), res.Region, res.Success, // #nosec G115 - group index
			countOf(res.NewCount), countOf(res.UpdateCount), countOf(res.MoveCount), countOf(res.Total),
			res.Error,
		); err != nil {
			return fmt.Errorf("failed to append group result %s: %w", res.Region, err)
		}
	}
	if err := resultBatch.Send(); err != nil {
		return fmt.Errorf("failed to insert group results: %w", err)
	}
	return nil
}

// RecentRuns returns the latest runs, newest first
func (r *SyncRunRepository) RecentRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT run_id, started_at, finished_at, replace_existing, success,
		       total_received, total_processed, new_properties, updated_properties,
		       moved_properties, failed_properties, duplicate_properties, error_regions,
		       processing_time_seconds
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT ?
	`
	rows, err := r.db.Conn().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		var run SyncRun
		if err := rows.Scan(
			&run.RunID, &run.StartedAt, &run.FinishedAt, &run.ReplaceExisting, &run.Success,
			&run.TotalReceived, &run.TotalProcessed, &run.NewProperties, &run.UpdatedProperties,
			&run.MovedProperties, &run.FailedProperties, &run.DuplicateProperties, &run.ErrorRegions,
			&run.ProcessingTimeSeconds,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync runs: %w", err)
	}
	return runs, nil
}

// SyncRunFromReport flattens a batch report into its history row
func SyncRunFromReport(report *models.BatchReport, startedAt time.Time, replaceExisting bool) SyncRun {
	started := startedAt.UTC()
	return SyncRun{
		RunID:                 report.RunID,
		StartedAt:             started,
		FinishedAt:            started.Add(time.Duration(report.ProcessingTimeSeconds * float64(time.Second))),
		ReplaceExisting:       replaceExisting,
		Success:               report.Success,
		TotalReceived:         toUint32(report.TotalReceived),
		TotalProcessed:        toUint32(report.TotalProcessed),
		NewProperties:         toUint32(report.NewProperties),
		UpdatedProperties:     toUint32(report.UpdatedProperties),
		MovedProperties:       toUint32(report.MovedProperties),
		FailedProperties:      toUint32(report.FailedProperties),
		DuplicateProperties:   toUint32(report.DuplicateProperties),
		ErrorRegions:          toUint32(report.ErrorRegions),
		ProcessingTimeSeconds: report.ProcessingTimeSeconds,
	}
}

func countOf(v *int) uint32 {
	if v == nil {
		return 0
	}
	return toUint32(*v)
}

func toUint32(v int) uint32 {
	if v < 0 {
		return 0
	}
	return uint32(v) // #nosec G115 - listing counts
}
