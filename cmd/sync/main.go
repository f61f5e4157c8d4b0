// Package main runs one reconciliation batch from a JSON file and prints the
// batch report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rental-insight/internal/config"
	"github.com/rental-insight/internal/logging"
	"github.com/rental-insight/internal/models"
	"github.com/rental-insight/internal/service"
	"github.com/rental-insight/internal/storage"
)

func main() {
	var (
		file    = flag.String("file", "-", "Batch JSON file ({selectedCity, regionGroups, replaceExisting}); - reads stdin")
		replace = flag.Bool("replace", false, "Force replaceExisting=true regardless of the file")
		city    = flag.String("city", "", "Override selectedCity")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Logs go to stderr so stdout carries only the report
	logging.SetGlobalLogger(logging.NewLoggerWithOutput(
		logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format), os.Stderr))
	logger := logging.GetGlobalLogger()
	defer func() { _ = logger.Sync() }()

	req, err := readRequest(*file)
	if err != nil {
		logger.WithError(err).Fatal("Failed to read batch")
	}
	if *replace {
		req.ReplaceExisting = true
	}
	if *city != "" {
		req.SelectedCity = *city
	}

	logger.WithFields(map[string]interface{}{
		"groups":   len(req.RegionGroups),
		"listings": req.TotalListings(),
		"replace":  req.ReplaceExisting,
	}).Info("Batch loaded")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	reconciler := service.NewReconciler(
		storage.NewHierarchyRepository(postgres),
		storage.NewPropertyRepository(postgres),
		storage.NewDependentRepository(postgres),
		service.ReconcilerOptionsFromConfig(cfg.Sync),
	)

	if redis, err := storage.NewRedisCache(&cfg.Database.Redis); err != nil {
		logger.WithError(err).Warn("Redis unavailable, building views will not be invalidated")
	} else {
		defer redis.Close()
		reconciler.SetBuildingCache(storage.NewBuildingCache(storage.NewCacheService(redis, cfg.Cache.TTL)))
	}

	if cfg.Database.ClickHouse.Enabled {
		if clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse); err != nil {
			logger.WithError(err).Warn("ClickHouse unavailable, run will not be recorded")
		} else {
			defer clickhouse.Close()
			reconciler.SetRunRecorder(storage.NewSyncRunRepository(clickhouse))
		}
	}

	// SIGINT stops the batch before the next region group
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	report, err := reconciler.Reconcile(ctx, req)
	if err != nil {
		logger.WithError(err).Fatal("Batch rejected")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.WithError(err).Fatal("Failed to write report")
	}

	logger.WithFields(map[string]interface{}{
		"run_id":   report.RunID,
		"success":  report.Success,
		"duration": time.Since(start).String(),
	}).Info(report.Message)

	if !report.Success {
		os.Exit(1)
	}
}

func readRequest(path string) (*models.SyncRequest, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	var req models.SyncRequest
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("failed to decode batch: %w", err)
	}
	return &req, nil
}
