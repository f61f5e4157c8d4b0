// Package projection estimates the monthly net profit of running a listing as
// a short-term rental, from its weekly pricing and 1-month occupancy rate.
package projection

import (
	"github.com/shopspring/decimal"

	"github.com/rental-insight/internal/config"
	"github.com/rental-insight/internal/models"
	"github.com/rental-insight/internal/types"
)

// Assumptions are the operator-side costs used when a listing carries no
// cost overrides of its own. Amounts are KRW per month, CleaningCost is per
// booking.
type Assumptions struct {
	MonthlyRent        int64
	MonthlyMaintenance int64
	CleaningCost       int64
	CommissionRate     float64
}

// DefaultAssumptions returns the stock cost model
func DefaultAssumptions() Assumptions {
	return Assumptions{
		MonthlyRent:        1_200_000,
		MonthlyMaintenance: 200_000,
		CleaningCost:       100_000,
		CommissionRate:     0.033,
	}
}

// AssumptionsFromConfig maps projection settings onto Assumptions
func AssumptionsFromConfig(cfg config.ProjectionConfig) Assumptions {
	return Assumptions{
		MonthlyRent:        cfg.MonthlyRent,
		MonthlyMaintenance: cfg.MonthlyMaintenance,
		CleaningCost:       cfg.CleaningCost,
		CommissionRate:     cfg.CommissionRate,
	}
}

// Breakdown is the itemized result of one projection
type Breakdown struct {
	Tier            types.BookingTier `json:"tier"`
	Bookings        int               `json:"bookings"`
	RentalIncome    decimal.Decimal   `json:"rentalIncome"`
	Commission      decimal.Decimal   `json:"commission"`
	CleaningIncome  decimal.Decimal   `json:"cleaningIncome"`
	GrossIncome     decimal.Decimal   `json:"grossIncome"`
	Rent            decimal.Decimal   `json:"rent"`
	Maintenance     decimal.Decimal   `json:"maintenance"`
	CleaningExpense decimal.Decimal   `json:"cleaningExpense"`
	TotalExpense    decimal.Decimal   `json:"totalExpense"`
	Profit          decimal.Decimal   `json:"profit"`
}

// Projector is a pure function over its Assumptions; safe for concurrent use.
type Projector struct {
	assumptions Assumptions
	commission  decimal.Decimal
}

// NewProjector creates a projector for the given assumptions
func NewProjector(a Assumptions) *Projector {
	return &Projector{
		assumptions: a,
		commission:  decimal.NewFromFloat(a.CommissionRate),
	}
}

// Assumptions returns the cost model in use
func (p *Projector) Assumptions() Assumptions {
	return p.assumptions
}

// TierFor maps a 1-month occupancy rate (percent) to its booking tier
func TierFor(occupancyRate float64) types.BookingTier {
	switch {
	case occupancyRate >= 75:
		return types.TierFull
	case occupancyRate >= 50:
		return types.TierHigh
	case occupancyRate >= 25:
		return types.TierModerate
	default:
		return types.TierLow
	}
}

// Project computes the itemized monthly projection for one property.
// A negative profit is a valid outcome.
func (p *Projector) Project(prop *models.Property) Breakdown {
	tier := TierFor(prop.OccupancyRate())
	bookings := decimal.NewFromInt(int64(tier))

	var price, maint, fee int64
	rent := p.assumptions.MonthlyRent
	monthlyMaint := p.assumptions.MonthlyMaintenance
	cleaningCost := p.assumptions.CleaningCost

	if pr := prop.Pricing; pr != nil {
		price, maint, fee = pr.WeeklyPrice, pr.WeeklyMaintenance, pr.CleaningFee
		if pr.MonthlyRent != nil {
			rent = *pr.MonthlyRent
		}
		if pr.MonthlyMaintenance != nil {
			monthlyMaint = *pr.MonthlyMaintenance
		}
		if pr.CleaningCost != nil {
			cleaningCost = *pr.CleaningCost
		}
	}

	b := Breakdown{Tier: tier, Bookings: int(tier)}

	b.RentalIncome = decimal.NewFromInt(price + maint).Mul(bookings)
	b.Commission = b.RentalIncome.Mul(p.commission)
	b.CleaningIncome = decimal.NewFromInt(fee).Mul(bookings)
	b.GrossIncome = b.RentalIncome.Sub(b.Commission).Add(b.CleaningIncome)

	b.Rent = decimal.NewFromInt(rent)
	b.Maintenance = decimal.NewFromInt(monthlyMaint)
	b.CleaningExpense = decimal.NewFromInt(cleaningCost).Mul(bookings)
	b.TotalExpense = b.Rent.Add(b.Maintenance).Add(b.CleaningExpense)

	b.Profit = b.GrossIncome.Sub(b.TotalExpense)
	return b
}

// MonthlyProfit returns the projected monthly net profit in KRW
func (p *Projector) MonthlyProfit(prop *models.Property) float64 {
	return p.Project(prop).Profit.InexactFloat64()
}
