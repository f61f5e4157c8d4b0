package models

import (
	"time"
)

// City is the root of the geographic hierarchy
type City struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// District belongs to a city; its name is unique under that city
type District struct {
	ID        int64     `json:"id" db:"id"`
	CityID    int64     `json:"cityId" db:"city_id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Neighborhood belongs to a district and owns properties.
// PropertyCount is a cached aggregate maintained by reconciliation.
type Neighborhood struct {
	ID            int64      `json:"id" db:"id"`
	DistrictID    int64      `json:"districtId" db:"district_id"`
	Name          string     `json:"name" db:"name"`
	PropertyCount int        `json:"propertyCount" db:"property_count"`
	LastSyncedAt  *time.Time `json:"lastSyncedAt,omitempty" db:"last_synced_at"`
	CreatedAt     time.Time  `json:"createdAt" db:"created_at"`
}
