package service

import (
	"context"
	"strconv"
	"time"

	"github.com/rental-insight/internal/cluster"
	apperrors "github.com/rental-insight/internal/errors"
	"github.com/rental-insight/internal/logging"
	"github.com/rental-insight/internal/models"
)

// BuildingsView is the clustered listing view of one neighborhood
type BuildingsView struct {
	NeighborhoodID int64 `json:"neighborhoodId"`
	cluster.Result
	Cached      bool  `json:"cached"`
	QueryTimeMs int64 `json:"queryTimeMs"`
}

// NeighborhoodReader loads one neighborhood by id
type NeighborhoodReader interface {
	GetNeighborhood(ctx context.Context, id int64) (*models.Neighborhood, error)
}

// PropertyLister loads every property of a neighborhood with its dependent
// records flattened on
type PropertyLister interface {
	ListByNeighborhood(ctx context.Context, neighborhoodID int64) ([]*models.Property, error)
}

// BuildingService serves clustered neighborhood views, caching them when a
// cache is configured. Cache failures never fail a request.
type BuildingService struct {
	neighborhoods NeighborhoodReader
	properties    PropertyLister
	clusterer     *cluster.Clusterer
	cache         BuildingViewCache
	monitor       *ViewMonitor
}

// NewBuildingService creates a building view service. cache may be nil.
func NewBuildingService(
	neighborhoods NeighborhoodReader,
	properties PropertyLister,
	clusterer *cluster.Clusterer,
	cache BuildingViewCache,
) *BuildingService {
	return &BuildingService{
		neighborhoods: neighborhoods,
		properties:    properties,
		clusterer:     clusterer,
		cache:         cache,
		monitor:       NewViewMonitor(),
	}
}

// GetBuildings returns the singles and building clusters of a neighborhood
func (s *BuildingService) GetBuildings(ctx context.Context, neighborhoodID int64) (*BuildingsView, error) {
	start := time.Now()
	logger := logging.FromContext(ctx).WithField("neighborhoodId", neighborhoodID)

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, neighborhoodID)
		if err != nil {
			s.monitor.RecordCacheError()
			logger.WithError(err).Warn("building view cache read failed")
		} else if cached != nil {
			elapsed := time.Since(start)
			s.monitor.RecordView(elapsed, true)
			return &BuildingsView{
				NeighborhoodID: neighborhoodID,
				Result:         cached.Result,
				Cached:         true,
				QueryTimeMs:    elapsed.Milliseconds(),
			}, nil
		}
	}

	n, err := s.neighborhoods.GetNeighborhood(ctx, neighborhoodID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get neighborhood", err)
	}
	if n == nil {
		return nil, apperrors.NewNotFoundError("neighborhood", strconv.FormatInt(neighborhoodID, 10))
	}

	props, err := s.properties.ListByNeighborhood(ctx, neighborhoodID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list properties", err)
	}
	result := s.clusterer.Cluster(props)

	if s.cache != nil {
		if err := s.cache.Put(ctx, neighborhoodID, result); err != nil {
			s.monitor.RecordCacheError()
			logger.WithError(err).Warn("building view cache write failed")
		}
	}

	elapsed := time.Since(start)
	s.monitor.RecordView(elapsed, false)
	logger.WithFields(map[string]interface{}{
		"properties": len(props),
		"singles":    len(result.SingleRooms),
		"buildings":  len(result.BuildingGroups),
	}).Debug("computed building view")

	return &BuildingsView{
		NeighborhoodID: neighborhoodID,
		Result:         result,
		QueryTimeMs:    elapsed.Milliseconds(),
	}, nil
}

// Stats returns the view latency statistics
func (s *BuildingService) Stats() *ViewStats {
	return s.monitor.GetStats()
}
