package rateplans

import "time"

// RateType selects how the base rate maps onto the rental duration.
type RateType string

const (
	RateDaily   RateType = "Daily"
	RateWeekly  RateType = "Weekly"
	RateMonthly RateType = "Monthly"
)

// PeriodDays returns the number of days one base-rate unit covers,
// or 0 for an unrecognized rate type.
func (t RateType) PeriodDays() float64 {
	switch t {
	case RateDaily:
		return 1
	case RateWeekly:
		return 7
	case RateMonthly:
		return 30
	default:
		return 0
	}
}

type RatePlan struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	VehicleClass     string    `json:"vehicle_class,omitempty"`
	RateType         RateType  `json:"rate_type"`
	BaseRate         float64   `json:"base_rate"`
	FreeKm           float64   `json:"free_km"`
	OveragePerKm     float64   `json:"overage_per_km"`
	GracePeriodHours float64   `json:"grace_period_hours"`
	SecurityDeposit  float64   `json:"security_deposit"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
