package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ExternalID accepts both JSON strings and JSON numbers, since crawlers are
// inconsistent about how listing ids are emitted.
type ExternalID string

// UnmarshalJSON implements json.Unmarshaler
func (id *ExternalID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ExternalID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("external_id must be a string or number: %w", err)
	}
	*id = ExternalID(n.String())
	return nil
}

// RawDiscount is one crawled long-stay discount
type RawDiscount struct {
	Weeks   int     `json:"weeks"`
	Percent float64 `json:"percent"`
}

// RawImage is one crawled image reference
type RawImage struct {
	URL       string `json:"url"`
	IsPrimary *bool  `json:"is_primary,omitempty"`
}

// RawReview is one crawled review
type RawReview struct {
	Author  string   `json:"author"`
	Rating  *float64 `json:"rating,omitempty"`
	Content string   `json:"content"`
	Date    string   `json:"date"`
}

// RawProperty is the strict input schema for one crawled listing.
// Optional fields are pointers; Normalize applies the defaulting table.
type RawProperty struct {
	ExternalID   ExternalID `json:"external_id"`
	Name         string     `json:"name"`
	Address      string     `json:"address"`
	BuildingType string     `json:"building_type"`
	Latitude     *float64   `json:"latitude,omitempty"`
	Longitude    *float64   `json:"longitude,omitempty"`

	RoomCount     *int     `json:"room_count,omitempty"`
	BathroomCount *int     `json:"bathroom_count,omitempty"`
	KitchenCount  *int     `json:"kitchen_count,omitempty"`
	SizeM2        *float64 `json:"size_m2,omitempty"`
	HasElevator   *bool    `json:"has_elevator,omitempty"`
	HasParking    *bool    `json:"has_parking,omitempty"`
	IsSuperHost   *bool    `json:"is_super_host,omitempty"`

	WeeklyPrice        *int64        `json:"weekly_price,omitempty"`
	WeeklyMaintenance  *int64        `json:"weekly_maintenance,omitempty"`
	CleaningFee        *int64        `json:"cleaning_fee,omitempty"`
	Discounts          []RawDiscount `json:"discounts,omitempty"`
	MonthlyRent        *int64        `json:"monthly_rent,omitempty"`
	MonthlyMaintenance *int64        `json:"monthly_maintenance,omitempty"`
	CleaningCost       *int64        `json:"cleaning_cost,omitempty"`

	OccupancyRate1M *float64 `json:"occupancy_rate_1m,omitempty"`
	OccupancyRate2M *float64 `json:"occupancy_rate_2m,omitempty"`
	OccupancyRate3M *float64 `json:"occupancy_rate_3m,omitempty"`

	Images           []RawImage  `json:"images,omitempty"`
	Reviews          []RawReview `json:"reviews,omitempty"`
	ReviewCount      *int        `json:"review_count,omitempty"`
	ReviewAverage    *float64    `json:"review_average,omitempty"`
	LatestReviewDate string      `json:"latest_review_date,omitempty"`
}

// Defaulting table for absent RawProperty fields
const (
	DefaultBuildingType  = "unknown"
	DefaultRoomCount     = 1
	DefaultBathroomCount = 1
	DefaultKitchenCount  = 1
)

// minimum and maximum rung of the discount ladder, in weeks
const (
	minDiscountWeeks = 2
	maxDiscountWeeks = 12
)

var reviewDateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006.01.02",
	"2006-01",
	"2006.01",
}

// Normalize converts the raw listing into stored record shapes, applying the
// defaulting table. neighborhoodID and now stamp the property row.
func (r *RawProperty) Normalize(neighborhoodID int64, now time.Time) ListingRecord {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		name = string(r.ExternalID)
	}
	buildingType := strings.TrimSpace(r.BuildingType)
	if buildingType == "" {
		buildingType = DefaultBuildingType
	}

	rec := ListingRecord{
		Property: Property{
			ExternalID:     string(r.ExternalID),
			NeighborhoodID: neighborhoodID,
			Name:           name,
			Address:        strings.TrimSpace(r.Address),
			BuildingType:   buildingType,
			Latitude:       validCoordinate(r.Latitude, 90),
			Longitude:      validCoordinate(r.Longitude, 180),
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		Details: PropertyDetails{
			RoomCount:     intOr(r.RoomCount, DefaultRoomCount),
			BathroomCount: intOr(r.BathroomCount, DefaultBathroomCount),
			KitchenCount:  intOr(r.KitchenCount, DefaultKitchenCount),
			SizeM2:        floatOr(r.SizeM2, 0),
			HasElevator:   boolOr(r.HasElevator, false),
			HasParking:    boolOr(r.HasParking, false),
			IsSuperHost:   boolOr(r.IsSuperHost, false),
		},
		Pricing: PropertyPricing{
			WeeklyPrice:        int64Or(r.WeeklyPrice, 0),
			WeeklyMaintenance:  int64Or(r.WeeklyMaintenance, 0),
			CleaningFee:        int64Or(r.CleaningFee, 0),
			Discounts:          normalizeDiscounts(r.Discounts),
			MonthlyRent:        r.MonthlyRent,
			MonthlyMaintenance: r.MonthlyMaintenance,
			CleaningCost:       r.CleaningCost,
		},
		Occupancy: PropertyOccupancy{
			Rate1M: clampRate(r.OccupancyRate1M),
			Rate2M: clampRate(r.OccupancyRate2M),
			Rate3M: clampRate(r.OccupancyRate3M),
		},
	}

	rec.Images = normalizeImages(r.Images)
	rec.Reviews, rec.ReviewSummary = r.normalizeReviews()
	return rec
}

func (r *RawProperty) normalizeReviews() ([]PropertyReview, ReviewSummary) {
	reviews := make([]PropertyReview, 0, len(r.Reviews))
	var (
		ratingSum   float64
		ratingCount int
		latest      *time.Time
	)
	for _, raw := range r.Reviews {
		rv := PropertyReview{
			Author:     strings.TrimSpace(raw.Author),
			Content:    strings.TrimSpace(raw.Content),
			ReviewedAt: parseReviewDate(raw.Date),
		}
		if raw.Rating != nil {
			rv.Rating = *raw.Rating
			ratingSum += *raw.Rating
			ratingCount++
		}
		if rv.ReviewedAt != nil && (latest == nil || rv.ReviewedAt.After(*latest)) {
			latest = rv.ReviewedAt
		}
		reviews = append(reviews, rv)
	}

	summary := ReviewSummary{
		ReviewCount:    intOr(r.ReviewCount, len(reviews)),
		LatestReviewAt: latest,
	}
	switch {
	case r.ReviewAverage != nil:
		summary.AverageRating = *r.ReviewAverage
	case ratingCount > 0:
		summary.AverageRating = ratingSum / float64(ratingCount)
	}
	if d := parseReviewDate(r.LatestReviewDate); d != nil {
		summary.LatestReviewAt = d
	}
	return reviews, summary
}

func normalizeImages(raw []RawImage) []PropertyImage {
	images := make([]PropertyImage, 0, len(raw))
	hasPrimary := false
	for _, img := range raw {
		url := strings.TrimSpace(img.URL)
		if url == "" {
			continue
		}
		primary := boolOr(img.IsPrimary, false) && !hasPrimary
		hasPrimary = hasPrimary || primary
		images = append(images, PropertyImage{
			URL:       url,
			SortOrder: len(images),
			IsPrimary: primary,
		})
	}
	if !hasPrimary && len(images) > 0 {
		images[0].IsPrimary = true
	}
	return images
}

func normalizeDiscounts(raw []RawDiscount) []DiscountStep {
	var steps []DiscountStep
	for _, d := range raw {
		if d.Weeks < minDiscountWeeks || d.Weeks > maxDiscountWeeks {
			continue
		}
		steps = append(steps, DiscountStep{Weeks: d.Weeks, Percent: d.Percent})
	}
	return steps
}

func parseReviewDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range reviewDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func validCoordinate(v *float64, limit float64) *float64 {
	if v == nil || *v < -limit || *v > limit || (*v == 0) {
		return nil
	}
	c := *v
	return &c
}

func clampRate(v *float64) float64 {
	if v == nil || *v < 0 {
		return 0
	}
	if *v > 100 {
		return 100
	}
	return *v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func int64Or(v *int64, def int64) int64 {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
