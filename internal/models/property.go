package models

import (
	"time"
)

// Property is one listing. ExternalID is the crawler-assigned identity used as
// the reconciliation join key; ID is the surrogate assigned on first insert.
type Property struct {
	ID             int64     `json:"id" db:"id"`
	ExternalID     string    `json:"externalId" db:"external_id"`
	NeighborhoodID int64     `json:"neighborhoodId" db:"neighborhood_id"`
	Name           string    `json:"name" db:"name"`
	Address        string    `json:"address" db:"address"`
	BuildingType   string    `json:"buildingType" db:"building_type"`
	Latitude       *float64  `json:"latitude,omitempty" db:"latitude"`
	Longitude      *float64  `json:"longitude,omitempty" db:"longitude"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`

	// Flattened dependent records, populated when reading a neighborhood for display
	Details       *PropertyDetails   `json:"details,omitempty"`
	Pricing       *PropertyPricing   `json:"pricing,omitempty"`
	Occupancy     *PropertyOccupancy `json:"occupancy,omitempty"`
	ReviewSummary *ReviewSummary     `json:"reviewSummary,omitempty"`
	PrimaryImage  *string            `json:"primaryImage,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are known
func (p *Property) HasCoordinates() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// RoomCount returns the room count from details, or 0 when unknown
func (p *Property) RoomCount() int {
	if p.Details == nil {
		return 0
	}
	return p.Details.RoomCount
}

// OccupancyRate returns the 1-month occupancy rate in percent, or 0 when unknown
func (p *Property) OccupancyRate() float64 {
	if p.Occupancy == nil {
		return 0
	}
	return p.Occupancy.Rate1M
}

// PropertyRef is the minimal stored identity used by the existence classifier
type PropertyRef struct {
	ID             int64  `db:"id"`
	ExternalID     string `db:"external_id"`
	NeighborhoodID int64  `db:"neighborhood_id"`
}

// PropertyDetails holds room composition and amenities (1:1)
type PropertyDetails struct {
	PropertyID    int64   `json:"propertyId" db:"property_id"`
	RoomCount     int     `json:"roomCount" db:"room_count"`
	BathroomCount int     `json:"bathroomCount" db:"bathroom_count"`
	KitchenCount  int     `json:"kitchenCount" db:"kitchen_count"`
	SizeM2        float64 `json:"sizeM2" db:"size_m2"`
	HasElevator   bool    `json:"hasElevator" db:"has_elevator"`
	HasParking    bool    `json:"hasParking" db:"has_parking"`
	IsSuperHost   bool    `json:"isSuperHost" db:"is_super_host"`
}

// DiscountStep is one rung of the long-stay discount ladder
type DiscountStep struct {
	Weeks   int     `json:"weeks"`
	Percent float64 `json:"percent"`
}

// PropertyPricing holds guest-facing prices (KRW) and the owner's cost
// overrides. Nil cost fields fall back to projection defaults.
type PropertyPricing struct {
	PropertyID         int64          `json:"propertyId" db:"property_id"`
	WeeklyPrice        int64          `json:"weeklyPrice" db:"weekly_price"`
	WeeklyMaintenance  int64          `json:"weeklyMaintenance" db:"weekly_maintenance"`
	CleaningFee        int64          `json:"cleaningFee" db:"cleaning_fee"`
	Discounts          []DiscountStep `json:"discounts,omitempty" db:"discounts"`
	MonthlyRent        *int64         `json:"monthlyRent,omitempty" db:"monthly_rent"`
	MonthlyMaintenance *int64         `json:"monthlyMaintenance,omitempty" db:"monthly_maintenance"`
	CleaningCost       *int64         `json:"cleaningCost,omitempty" db:"cleaning_cost"`
}

// PropertyOccupancy holds occupancy rates in percent (0-100)
type PropertyOccupancy struct {
	PropertyID int64   `json:"propertyId" db:"property_id"`
	Rate1M     float64 `json:"rate1m" db:"rate_1m"`
	Rate2M     float64 `json:"rate2m" db:"rate_2m"`
	Rate3M     float64 `json:"rate3m" db:"rate_3m"`
}

// PropertyImage is one ordered listing image
type PropertyImage struct {
	PropertyID int64  `json:"propertyId" db:"property_id"`
	URL        string `json:"url" db:"url"`
	SortOrder  int    `json:"sortOrder" db:"sort_order"`
	IsPrimary  bool   `json:"isPrimary" db:"is_primary"`
}

// PropertyReview is one guest review
type PropertyReview struct {
	PropertyID int64      `json:"propertyId" db:"property_id"`
	Author     string     `json:"author" db:"author"`
	Rating     float64    `json:"rating" db:"rating"`
	Content    string     `json:"content" db:"content"`
	ReviewedAt *time.Time `json:"reviewedAt,omitempty" db:"reviewed_at"`
}

// ReviewSummary is the review aggregate row (1:1)
type ReviewSummary struct {
	PropertyID     int64      `json:"propertyId" db:"property_id"`
	ReviewCount    int        `json:"reviewCount" db:"review_count"`
	AverageRating  float64    `json:"averageRating" db:"average_rating"`
	LatestReviewAt *time.Time `json:"latestReviewAt,omitempty" db:"latest_review_at"`
}

// ListingRecord is a normalized incoming listing: the property row plus the
// six dependent record sets, not yet bound to a surrogate id.
type ListingRecord struct {
	Property      Property
	Details       PropertyDetails
	Pricing       PropertyPricing
	Occupancy     PropertyOccupancy
	Images        []PropertyImage
	Reviews       []PropertyReview
	ReviewSummary ReviewSummary
}

// BindTo stamps the surrogate property id onto every dependent record
func (l *ListingRecord) BindTo(propertyID int64) {
	l.Property.ID = propertyID
	l.Details.PropertyID = propertyID
	l.Pricing.PropertyID = propertyID
	l.Occupancy.PropertyID = propertyID
	l.ReviewSummary.PropertyID = propertyID
	for i := range l.Images {
		l.Images[i].PropertyID = propertyID
	}
	for i := range l.Reviews {
		l.Reviews[i].PropertyID = propertyID
	}
}
