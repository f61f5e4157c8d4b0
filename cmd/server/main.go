// Package main provides the API server entry point for the rental insight service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rental-insight/internal/api"
	"github.com/rental-insight/internal/cluster"
	"github.com/rental-insight/internal/config"
	"github.com/rental-insight/internal/logging"
	"github.com/rental-insight/internal/projection"
	"github.com/rental-insight/internal/service"
	"github.com/rental-insight/internal/storage"
)

func main() {
	fmt.Println("Rental Insight API Server")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	defer func() { _ = logger.Sync() }()

	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	hierarchyRepo := storage.NewHierarchyRepository(postgres)
	propertyRepo := storage.NewPropertyRepository(postgres)
	dependentRepo := storage.NewDependentRepository(postgres)

	reconciler := service.NewReconciler(
		hierarchyRepo,
		propertyRepo,
		dependentRepo,
		service.ReconcilerOptionsFromConfig(cfg.Sync),
	)

	// Redis is optional: without it building views are computed on every request
	var buildingCache service.BuildingViewCache
	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, building view cache disabled")
	} else {
		defer redis.Close()
		bc := storage.NewBuildingCache(storage.NewCacheService(redis, cfg.Cache.TTL))
		buildingCache = bc
		reconciler.SetBuildingCache(bc)
	}

	// ClickHouse holds sync run history; a missing server disables history only
	var runHistory api.RunHistory
	if cfg.Database.ClickHouse.Enabled {
		clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Warn("ClickHouse unavailable, sync run history disabled")
		} else {
			defer clickhouse.Close()
			runs := storage.NewSyncRunRepository(clickhouse)
			reconciler.SetRunRecorder(runs)
			runHistory = runs
		}
	}

	logger.Info("Database connections established")

	projector := projection.NewProjector(projection.AssumptionsFromConfig(cfg.Projection))
	clusterer := cluster.NewClusterer(cfg.Cluster.RadiusMeters, projector)
	buildingService := service.NewBuildingService(hierarchyRepo, propertyRepo, clusterer, buildingCache)

	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.RequestsPerSec = cfg.RateLimit.RequestsPerSecond
	serverConfig.Burst = cfg.RateLimit.Burst

	server := api.NewServer(serverConfig, reconciler, buildingService, runHistory, hierarchyRepo)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	logger.Info("Server exited")
}
