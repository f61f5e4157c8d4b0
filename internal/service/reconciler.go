package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/rental-insight/internal/circuitbreaker"
	"github.com/rental-insight/internal/config"
	apperrors "github.com/rental-insight/internal/errors"
	"github.com/rental-insight/internal/logging"
	"github.com/rental-insight/internal/models"
	"github.com/rental-insight/internal/types"
	"github.com/rental-insight/internal/worker"
)

// ReconcilerOptions tunes the throttles of a reconciliation batch
type ReconcilerOptions struct {
	ChunkSize          int
	ChunkDelay         time.Duration
	GroupDelay         time.Duration
	UpdateConcurrency  int
	BreakerMaxFailures int
}

// DefaultReconcilerOptions returns the production throttles
func DefaultReconcilerOptions() ReconcilerOptions {
	return ReconcilerOptions{
		ChunkSize:          MaxLookupChunk,
		ChunkDelay:         100 * time.Millisecond,
		GroupDelay:         500 * time.Millisecond,
		UpdateConcurrency:  10,
		BreakerMaxFailures: 10,
	}
}

// ReconcilerOptionsFromConfig maps the sync configuration section
func ReconcilerOptionsFromConfig(cfg config.SyncConfig) ReconcilerOptions {
	return ReconcilerOptions{
		ChunkSize:          cfg.ChunkSize,
		ChunkDelay:         cfg.ChunkDelay,
		GroupDelay:         cfg.GroupDelay,
		UpdateConcurrency:  cfg.UpdateConcurrency,
		BreakerMaxFailures: cfg.BreakerMaxFailures,
	}
}

// ReconcilerStats counts batches handled by this process
type ReconcilerStats struct {
	Batches       int64      `json:"batches"`
	GroupsOK      int64      `json:"groupsOk"`
	GroupsFailed  int64      `json:"groupsFailed"`
	LastRunID     string     `json:"lastRunId,omitempty"`
	LastRunAt     *time.Time `json:"lastRunAt,omitempty"`
	LastBreaker   string     `json:"lastBreakerState,omitempty"`
	ListingsTotal int64      `json:"listingsTotal"`
}

// Reconciler ingests crawled region groups into the store. Groups run one at
// a time; a failed group never aborts the batch, and nothing is rolled back.
type Reconciler struct {
	hierarchy  HierarchyStore
	properties PropertyStore
	dependents DependentStore
	resolver   *HierarchyResolver
	classifier *ExistenceClassifier
	recorder   RunRecorder
	cache      BuildingViewCache
	opts       ReconcilerOptions
	now        func() time.Time

	mu    sync.Mutex
	stats ReconcilerStats
}

// NewReconciler creates a reconciler over the given stores
func NewReconciler(
	hierarchy HierarchyStore,
	properties PropertyStore,
	dependents DependentStore,
	opts ReconcilerOptions,
) *Reconciler {
	return &Reconciler{
		hierarchy:  hierarchy,
		properties: properties,
		dependents: dependents,
		resolver:   NewHierarchyResolver(hierarchy),
		classifier: NewExistenceClassifier(properties, opts.ChunkSize, opts.ChunkDelay),
		opts:       opts,
		now:        time.Now,
	}
}

// SetRunRecorder enables run history. Recording failures are logged only.
func (r *Reconciler) SetRunRecorder(recorder RunRecorder) {
	r.recorder = recorder
}

// SetBuildingCache enables invalidation of the building views of every
// neighborhood a batch touches
func (r *Reconciler) SetBuildingCache(cache BuildingViewCache) {
	r.cache = cache
}

// Stats returns a snapshot of the batch counters
func (r *Reconciler) Stats() ReconcilerStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// batchState is shared by the groups of one Reconcile call only
type batchState struct {
	cache    *HierarchyCache
	replace  bool
	syncedAt time.Time
	touched  map[int64]struct{}
}

type groupOutcome struct {
	neighborhoodID int64
	movedFrom      []int64
	newCount       int
	updateCount    int
	moveCount      int
}

// Reconcile runs one batch. The returned error is reserved for malformed
// input and an unreachable store; group failures are reported in the
// BatchReport. Cancelling ctx stops the batch before the next group starts.
func (r *Reconciler) Reconcile(ctx context.Context, req *models.SyncRequest) (*models.BatchReport, error) {
	if req == nil {
		return nil, apperrors.NewInvalidInputError("body", "request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := r.hierarchy.Ping(ctx); err != nil {
		return nil, apperrors.NewServiceUnavailableError("database", err)
	}

	started := r.now()
	runID := uuid.NewString()
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"runId": runID,
		"city":  req.SelectedCity,
	})
	ctx = logging.WithLogger(ctx, logger)

	groups, duplicates := dedupeListings(req.RegionGroups)
	if duplicates > 0 {
		logger.WithField("duplicates", duplicates).Warn("dropped repeated external ids, keeping the last occurrence")
	}

	report := &models.BatchReport{
		RunID:               runID,
		TotalReceived:       req.TotalListings(),
		DuplicateProperties: duplicates,
		ProcessingResults:   make([]models.GroupResult, 0, len(groups)),
	}

	state := &batchState{
		cache:    NewHierarchyCache(),
		replace:  req.ReplaceExisting,
		syncedAt: started.UTC(),
		touched:  make(map[int64]struct{}),
	}
	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
		Name:                   "sync-store",
		MaxConsecutiveFailures: r.opts.BreakerMaxFailures,
	})

	groupLimit := rate.Inf
	if r.opts.GroupDelay > 0 {
		groupLimit = rate.Every(r.opts.GroupDelay)
	}
	limiter := rate.NewLimiter(groupLimit, 1)

	for i := range groups {
		g := &groups[i]

		if err := limiter.Wait(ctx); err != nil {
			r.failRemaining(logger, report, groups[i:], err)
			break
		}

		// A started group runs to completion even if the caller goes away
		groupCtx := context.WithoutCancel(ctx)

		var out groupOutcome
		var err error
		breakerErr := breaker.Execute(groupCtx, func(ctx context.Context) error {
			out, err = r.reconcileGroup(ctx, state, g)
			return r.outageCause(ctx, err)
		})
		if errors.Is(breakerErr, circuitbreaker.ErrCircuitOpen) {
			err = &apperrors.GroupFailure{Region: g.Label(), Stage: apperrors.StageCircuitBreaker, Cause: breakerErr}
		}

		if out.neighborhoodID != 0 {
			state.touched[out.neighborhoodID] = struct{}{}
		}
		for _, id := range out.movedFrom {
			state.touched[id] = struct{}{}
		}

		result := models.GroupResult{Region: g.Label()}
		if err != nil {
			result.Error = err.Error()
			report.ErrorRegions++
			logger.WithError(err).WithField("region", result.Region).Error("region group failed")
		} else {
			total := len(g.Properties)
			result.Success = true
			result.NewCount = intPtr(out.newCount)
			result.UpdateCount = intPtr(out.updateCount)
			result.MoveCount = intPtr(out.moveCount)
			result.Total = &total
			report.NewProperties += out.newCount
			report.UpdatedProperties += out.updateCount
			report.MovedProperties += out.moveCount
			logger.WithFields(map[string]interface{}{
				"region":  result.Region,
				"new":     out.newCount,
				"updated": out.updateCount,
				"moved":   out.moveCount,
			}).Info("region group reconciled")
		}
		report.ProcessingResults = append(report.ProcessingResults, result)
	}

	report.TotalProcessed = report.NewProperties + report.UpdatedProperties + report.MovedProperties
	report.FailedProperties = report.TotalReceived - report.TotalProcessed
	report.Success = report.ErrorRegions < len(groups)
	report.ProcessingTimeSeconds = r.now().Sub(started).Seconds()
	report.Message = fmt.Sprintf("processed %d of %d properties across %d regions (%d failed)",
		report.TotalProcessed, report.TotalReceived, len(groups), report.ErrorRegions)

	bgCtx := context.WithoutCancel(ctx)
	r.invalidateViews(bgCtx, logger, state.touched)
	if r.recorder != nil {
		if err := r.recorder.RecordRun(bgCtx, report, started, req.ReplaceExisting); err != nil {
			logger.WithError(err).Warn("failed to record sync run")
		}
	}

	r.recordStats(report, started, breaker.State())
	logger.WithFields(map[string]interface{}{
		"received":   report.TotalReceived,
		"processed":  report.TotalProcessed,
		"failed":     report.FailedProperties,
		"duplicates": report.DuplicateProperties,
		"regions":    len(groups),
		"errors":     report.ErrorRegions,
		"seconds":    report.ProcessingTimeSeconds,
	}).Info("reconciliation batch finished")

	return report, nil
}

// outageCause returns groupErr only when the store is unreachable afterwards.
// Failures of a group's own data leave the breaker count untouched.
func (r *Reconciler) outageCause(ctx context.Context, groupErr error) error {
	if groupErr == nil {
		return nil
	}
	if err := r.hierarchy.Ping(ctx); err != nil {
		return groupErr
	}
	return nil
}

func (r *Reconciler) failRemaining(logger *logging.Logger, report *models.BatchReport, groups []models.RegionGroup, cause error) {
	logger.WithError(cause).WithField("skipped", len(groups)).Warn("batch cancelled before remaining groups")
	for i := range groups {
		err := &apperrors.GroupFailure{Region: groups[i].Label(), Stage: apperrors.StageCancelled, Cause: cause}
		report.ProcessingResults = append(report.ProcessingResults, models.GroupResult{
			Region: groups[i].Label(),
			Error:  err.Error(),
		})
		report.ErrorRegions++
	}
}

// reconcileGroup runs steps 1-8 for one region group. Steps that committed
// before a failure stay committed.
func (r *Reconciler) reconcileGroup(ctx context.Context, state *batchState, g *models.RegionGroup) (groupOutcome, error) {
	var out groupOutcome
	region := g.Label()
	logger := logging.FromContext(ctx).WithField("region", region)
	fail := func(stage apperrors.Stage, err error) (groupOutcome, error) {
		return out, &apperrors.GroupFailure{Region: region, Stage: stage, Cause: err}
	}

	n, err := r.resolver.Resolve(ctx, state.cache, g.City, g.District, g.Neighborhood)
	if err != nil {
		return fail(apperrors.StageResolve, err)
	}
	out.neighborhoodID = n.ID

	now := r.now().UTC()
	records := make([]models.ListingRecord, len(g.Properties))
	for i := range g.Properties {
		records[i] = g.Properties[i].Normalize(n.ID, now)
	}

	part, err := r.classifier.Classify(ctx, records, n.ID)
	if err != nil {
		return fail(apperrors.StageClassify, err)
	}

	existing := part.Existing()
	for _, c := range existing {
		c.Record.BindTo(c.Existing.ID)
	}

	replaced := false
	if state.replace && len(existing) > 0 {
		ids := make([]int64, len(existing))
		for i, c := range existing {
			ids[i] = c.Existing.ID
		}
		r.deleteDependents(ctx, logger, ids)
		replaced = true
	}

	if len(part.New) > 0 {
		rows := make([]models.Property, len(part.New))
		for i, c := range part.New {
			rows[i] = c.Record.Property
		}
		ids, err := r.properties.InsertProperties(ctx, rows)
		if err != nil {
			return fail(apperrors.StageInsert, err)
		}
		for _, c := range part.New {
			id, ok := ids[c.Record.Property.ExternalID]
			if !ok {
				return fail(apperrors.StageInsert, fmt.Errorf("no id returned for property %s", c.Record.Property.ExternalID))
			}
			c.Record.BindTo(id)
		}
		out.newCount = len(part.New)
	}

	updateErrs := r.updateProperties(ctx, logger, part)
	for i := range part.Updated {
		if updateErrs[i] == nil {
			out.updateCount++
		}
	}
	for i, c := range part.Moved {
		if updateErrs[len(part.Updated)+i] == nil {
			out.moveCount++
			out.movedFrom = append(out.movedFrom, c.Existing.NeighborhoodID)
		}
	}

	targets := make([]models.ListingRecord, 0, part.Len())
	for _, c := range part.New {
		targets = append(targets, *c.Record)
	}
	if replaced {
		for i, c := range existing {
			// a vanished row would fail the whole table batch on its foreign key
			if errors.Is(updateErrs[i], apperrors.ErrNotFound) {
				continue
			}
			targets = append(targets, *c.Record)
		}
	}
	r.insertDependents(ctx, logger, targets)

	if err := r.hierarchy.RefreshNeighborhoodStats(ctx, n.ID, &state.syncedAt); err != nil {
		return fail(apperrors.StageNeighborhood, err)
	}
	for _, from := range uniqueIDs(out.movedFrom) {
		if from == n.ID {
			continue
		}
		if err := r.hierarchy.RefreshNeighborhoodStats(ctx, from, nil); err != nil {
			logger.WithError(err).WithField("neighborhoodId", from).Warn("failed to refresh stats of previous neighborhood")
		}
	}

	return out, nil
}

// updateProperties refreshes Updated rows and reassigns Moved rows
// concurrently. The returned errors are aligned with part.Existing().
func (r *Reconciler) updateProperties(ctx context.Context, logger *logging.Logger, part *Partition) []error {
	existing := part.Existing()
	tasks := make([]worker.Task, len(existing))
	for i, c := range existing {
		reassign := i >= len(part.Updated)
		prop := c.Record.Property
		name := "update:" + prop.ExternalID
		if reassign {
			name = "move:" + prop.ExternalID
		}
		tasks[i] = worker.Task{
			Name: name,
			Run: func(ctx context.Context) error {
				return r.properties.UpdateProperty(ctx, &prop, reassign)
			},
		}
	}

	outcomes := worker.RunAll(ctx, r.opts.UpdateConcurrency, tasks)
	errs := make([]error, len(outcomes))
	for i, o := range outcomes {
		errs[i] = o.Err
		if o.Err != nil {
			logger.WithError(o.Err).WithField("task", o.Name).Warn("property update failed")
		}
	}
	return errs
}

func (r *Reconciler) deleteDependents(ctx context.Context, logger *logging.Logger, propertyIDs []int64) {
	tasks := make([]worker.Task, 0, len(types.DependentTables))
	for _, table := range types.DependentTables {
		tasks = append(tasks, worker.Task{
			Name: string(table),
			Run: func(ctx context.Context) error {
				return r.dependents.DeleteDependents(ctx, table, propertyIDs)
			},
		})
	}
	logDependentFailures(logger, "delete", len(propertyIDs), worker.RunAll(ctx, 0, tasks))
}

func (r *Reconciler) insertDependents(ctx context.Context, logger *logging.Logger, records []models.ListingRecord) {
	if len(records) == 0 {
		return
	}
	tasks := make([]worker.Task, 0, len(types.DependentTables))
	for _, table := range types.DependentTables {
		tasks = append(tasks, worker.Task{
			Name: string(table),
			Run: func(ctx context.Context) error {
				return r.dependents.InsertDependents(ctx, table, records)
			},
		})
	}
	logDependentFailures(logger, "insert", len(records), worker.RunAll(ctx, 0, tasks))
}

func logDependentFailures(logger *logging.Logger, op string, count int, outcomes []worker.Outcome) {
	for _, o := range worker.Failed(outcomes) {
		failure := &apperrors.DependentWriteFailure{
			Table:         types.DependentTable(o.Name),
			Op:            op,
			PropertyCount: count,
			Cause:         o.Err,
		}
		logger.WithError(failure).WithFields(map[string]interface{}{
			"table":      o.Name,
			"op":         op,
			"properties": count,
		}).Warn("dependent write failed, rows left stale")
	}
}

func (r *Reconciler) invalidateViews(ctx context.Context, logger *logging.Logger, touched map[int64]struct{}) {
	if r.cache == nil || len(touched) == 0 {
		return
	}
	ids := make([]int64, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if err := r.cache.Invalidate(ctx, ids...); err != nil {
		logger.WithError(err).WithField("neighborhoods", ids).Warn("failed to invalidate building views")
	}
}

func (r *Reconciler) recordStats(report *models.BatchReport, started time.Time, breakerState circuitbreaker.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	at := started.UTC()
	r.stats.Batches++
	r.stats.GroupsFailed += int64(report.ErrorRegions)
	r.stats.GroupsOK += int64(len(report.ProcessingResults) - report.ErrorRegions)
	r.stats.ListingsTotal += int64(report.TotalReceived)
	r.stats.LastRunID = report.RunID
	r.stats.LastRunAt = &at
	r.stats.LastBreaker = string(breakerState)
}

type listingPos struct {
	group, index int
}

// dedupeListings keeps the last occurrence of every external id across the
// batch, in group order then listing order. The input is not modified.
func dedupeListings(groups []models.RegionGroup) ([]models.RegionGroup, int) {
	last := make(map[models.ExternalID]listingPos)
	for gi := range groups {
		for li, p := range groups[gi].Properties {
			last[p.ExternalID] = listingPos{gi, li}
		}
	}

	out := make([]models.RegionGroup, len(groups))
	dropped := 0
	for gi, g := range groups {
		kept := make([]models.RawProperty, 0, len(g.Properties))
		for li, p := range g.Properties {
			if last[p.ExternalID] == (listingPos{gi, li}) {
				kept = append(kept, p)
			} else {
				dropped++
			}
		}
		g.Properties = kept
		out[gi] = g
	}
	return out, dropped
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func intPtr(v int) *int {
	return &v
}
