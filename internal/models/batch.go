package models

import (
	"fmt"
	"strings"

	apperrors "github.com/rental-insight/internal/errors"
)

// RegionGroup is one batch unit: a region label triple plus the listings
// crawled for it. It is never persisted.
type RegionGroup struct {
	City         string        `json:"city"`
	District     string        `json:"district"`
	Neighborhood string        `json:"neighborhood"`
	Properties   []RawProperty `json:"properties"`
}

// Label returns the human-readable region name used in reports and logs
func (g *RegionGroup) Label() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{g.City, g.District, g.Neighborhood} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// SyncRequest is the reconciliation entrypoint payload
type SyncRequest struct {
	SelectedCity    string        `json:"selectedCity"`
	RegionGroups    []RegionGroup `json:"regionGroups"`
	ReplaceExisting bool          `json:"replaceExisting"`
}

// Validate rejects malformed batches before any group is attempted. Groups
// inherit SelectedCity when they omit their own city label.
func (r *SyncRequest) Validate() error {
	if len(r.RegionGroups) == 0 {
		return apperrors.NewInvalidInputError("regionGroups", "at least one region group is required")
	}
	for i := range r.RegionGroups {
		g := &r.RegionGroups[i]
		if strings.TrimSpace(g.City) == "" {
			g.City = strings.TrimSpace(r.SelectedCity)
		}
		field := fmt.Sprintf("regionGroups[%d]", i)
		if g.City == "" {
			return apperrors.NewInvalidInputError(field+".city", "city is required")
		}
		if strings.TrimSpace(g.District) == "" {
			return apperrors.NewInvalidInputError(field+".district", "district is required")
		}
		if strings.TrimSpace(g.Neighborhood) == "" {
			return apperrors.NewInvalidInputError(field+".neighborhood", "neighborhood is required")
		}
		for j := range g.Properties {
			if g.Properties[j].ExternalID == "" {
				return apperrors.NewInvalidInputError(
					fmt.Sprintf("%s.properties[%d].external_id", field, j), "external_id is required")
			}
		}
	}
	return nil
}

// TotalListings counts every listing across all groups
func (r *SyncRequest) TotalListings() int {
	total := 0
	for i := range r.RegionGroups {
		total += len(r.RegionGroups[i].Properties)
	}
	return total
}

// GroupResult is the per-region outcome entry of a BatchReport
type GroupResult struct {
	Region      string `json:"region"`
	Success     bool   `json:"success"`
	NewCount    *int   `json:"newCount,omitempty"`
	UpdateCount *int   `json:"updateCount,omitempty"`
	MoveCount   *int   `json:"moveCount,omitempty"`
	Total       *int   `json:"total,omitempty"`
	Error       string `json:"error,omitempty"`
}

// BatchReport is the structured outcome of one reconciliation batch
type BatchReport struct {
	Success               bool          `json:"success"`
	Message               string        `json:"message"`
	RunID                 string        `json:"run_id"`
	TotalReceived         int           `json:"total_received"`
	TotalProcessed        int           `json:"total_processed"`
	NewProperties         int           `json:"new_properties"`
	UpdatedProperties     int           `json:"updated_properties"`
	MovedProperties       int           `json:"moved_properties"`
	FailedProperties      int           `json:"failed_properties"`
	DuplicateProperties   int           `json:"duplicate_properties"`
	ErrorRegions          int           `json:"error_regions"`
	ProcessingTimeSeconds float64       `json:"processing_time_seconds"`
	ProcessingResults     []GroupResult `json:"processing_results"`
}
