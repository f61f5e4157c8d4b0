// Package types provides common type definitions for the rental insight system.
package types

// Classification represents the reconciliation outcome of an incoming listing
// relative to what is already stored.
type Classification string

const (
	// ClassificationNew represents a listing with no stored record
	ClassificationNew Classification = "new"
	// ClassificationUpdated represents a stored listing owned by the same neighborhood
	ClassificationUpdated Classification = "updated"
	// ClassificationMoved represents a stored listing owned by a different neighborhood
	ClassificationMoved Classification = "moved"
)

// DependentTable names one of the six record sets owned by a property
type DependentTable string

const (
	// TableDetails holds room/bath/kitchen counts and amenities (1:1)
	TableDetails DependentTable = "property_details"
	// TablePricing holds weekly price, fees and the discount ladder (1:1)
	TablePricing DependentTable = "property_pricing"
	// TableOccupancy holds the 1/2/3 month occupancy rates (1:1)
	TableOccupancy DependentTable = "property_occupancy"
	// TableImages holds ordered listing images (1:N)
	TableImages DependentTable = "property_images"
	// TableReviews holds guest reviews (1:N)
	TableReviews DependentTable = "property_reviews"
	// TableReviewSummary holds the review aggregate row (1:1)
	TableReviewSummary DependentTable = "property_review_summary"
)

// DependentTables lists every dependent record set in a stable order
var DependentTables = []DependentTable{
	TableDetails,
	TablePricing,
	TableOccupancy,
	TableImages,
	TableReviews,
	TableReviewSummary,
}

// ParseDependentTable returns the dependent table named name
func ParseDependentTable(name string) (DependentTable, bool) {
	for _, t := range DependentTables {
		if string(t) == name {
			return t, true
		}
	}
	return "", false
}

// OneToMany reports whether a property may own several rows of t
func (t DependentTable) OneToMany() bool {
	return t == TableImages || t == TableReviews
}

// HierarchyLevel names a level of the City -> District -> Neighborhood tree
type HierarchyLevel string

const (
	LevelCity         HierarchyLevel = "city"
	LevelDistrict     HierarchyLevel = "district"
	LevelNeighborhood HierarchyLevel = "neighborhood"
)

// BookingTier is the occupancy band that maps to an assumed number of weekly
// bookings per month
type BookingTier int

const (
	// TierLow is below 25% occupancy (1 booking)
	TierLow BookingTier = 1
	// TierModerate is 25% up to 50% occupancy (2 bookings)
	TierModerate BookingTier = 2
	// TierHigh is 50% up to 75% occupancy (3 bookings)
	TierHigh BookingTier = 3
	// TierFull is 75% occupancy and above (4 bookings)
	TierFull BookingTier = 4
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
