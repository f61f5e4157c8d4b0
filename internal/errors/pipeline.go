package errors

import (
	"fmt"

	"github.com/rental-insight/internal/types"
)

// Stage names the step of a region group's reconciliation that failed
type Stage string

const (
	StageResolve        Stage = "resolve_hierarchy"
	StageClassify       Stage = "classify"
	StageDelete         Stage = "delete_dependents"
	StageInsert         Stage = "insert_properties"
	StageUpdate         Stage = "update_properties"
	StageDependents     Stage = "insert_dependents"
	StageNeighborhood   Stage = "update_neighborhood"
	StageCircuitBreaker Stage = "circuit_breaker"
	StageCancelled      Stage = "cancelled"
)

// HierarchyResolutionError means a City/District/Neighborhood lookup or create
// failed. It aborts the current group only.
type HierarchyResolutionError struct {
	Level types.HierarchyLevel
	Name  string
	Cause error
}

func (e *HierarchyResolutionError) Error() string {
	return fmt.Sprintf("resolve %s %q: %v", e.Level, e.Name, e.Cause)
}

func (e *HierarchyResolutionError) Unwrap() error {
	return e.Cause
}

// ClassificationError means the existing-identifier lookup failed. It aborts
// the current group only.
type ClassificationError struct {
	Chunk     int
	ChunkSize int
	Cause     error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("lookup existing properties (chunk %d, %d ids): %v", e.Chunk, e.ChunkSize, e.Cause)
}

func (e *ClassificationError) Unwrap() error {
	return e.Cause
}

// DependentWriteFailure means one dependent table's delete or insert failed.
// It is logged and leaves that table stale for the affected properties; it
// never aborts the group.
type DependentWriteFailure struct {
	Table         types.DependentTable
	Op            string
	PropertyCount int
	Cause         error
}

func (e *DependentWriteFailure) Error() string {
	return fmt.Sprintf("%s %s for %d properties: %v", e.Op, e.Table, e.PropertyCount, e.Cause)
}

func (e *DependentWriteFailure) Unwrap() error {
	return e.Cause
}

// GroupFailure wraps whatever aborted a region group. All listings of the
// group are counted as failed; steps committed before the failure stay committed.
type GroupFailure struct {
	Region string
	Stage  Stage
	Cause  error
}

func (e *GroupFailure) Error() string {
	return fmt.Sprintf("region %s failed at %s: %v", e.Region, e.Stage, e.Cause)
}

func (e *GroupFailure) Unwrap() error {
	return e.Cause
}
