package agreements

import (
	"time"

	"github.com/fleethire/fleethire/internal/rateplans"
)

// Status is the lifecycle state of a rental agreement.
type Status string

const (
	StatusDraft        Status = "Draft"
	StatusActive       Status = "Active"
	StatusDueForReturn Status = "Due for Return"
	StatusReturned     Status = "Returned"
	StatusClosed       Status = "Closed"
	StatusCancelled    Status = "Cancelled"
)

// Charge is a billed line item attached to an agreement.
type Charge struct {
	ID          int64     `json:"id"`
	AgreementID int64     `json:"agreement_id"`
	Kind        string    `json:"kind"`
	Description string    `json:"description,omitempty"`
	Amount      float64   `json:"amount"`
	CreatedAt   time.Time `json:"created_at"`
}

// Well-known charge kinds appended by the return flow.
const (
	ChargeFuel    = "Fuel"
	ChargeLateFee = "Late Fee"
	ChargeExtra   = "Extra"
)

// Agreement is a rental contract. Rate plan fields are snapshotted at
// creation so later plan edits never reprice a live agreement.
type Agreement struct {
	ID            int64  `json:"id"`
	ReservationID *int64 `json:"reservation_id,omitempty"`
	VehicleID     int64  `json:"vehicle_id"`
	CustomerID    int64  `json:"customer_id"`
	DriverID      *int64 `json:"driver_id,omitempty"`
	RatePlanID    int64  `json:"rate_plan_id"`
	Status        Status `json:"status"`

	StartAt        time.Time  `json:"start_at"`
	EndAt          time.Time  `json:"end_at"`
	ActualReturnAt *time.Time `json:"actual_return_at,omitempty"`
	PlannedDays    float64    `json:"planned_days"`
	ActualDays     float64    `json:"actual_days,omitempty"`
	IsOverdue      bool       `json:"is_overdue"`

	OdometerOut *float64 `json:"odometer_out,omitempty"`
	OdometerIn  *float64 `json:"odometer_in,omitempty"`
	FuelOut     *float64 `json:"fuel_out,omitempty"`
	FuelIn      *float64 `json:"fuel_in,omitempty"`

	BaseRate         float64            `json:"base_rate"`
	RateType         rateplans.RateType `json:"rate_type"`
	FreeKm           float64            `json:"free_km"`
	OveragePerKm     float64            `json:"overage_per_km"`
	GracePeriodHours float64            `json:"grace_period_hours"`

	DiscountPercent float64 `json:"discount_percent,omitempty"`
	TaxAmount       float64 `json:"tax_amount,omitempty"`

	KmDriven       float64 `json:"km_driven"`
	OverageKm      float64 `json:"overage_km"`
	OverageAmount  float64 `json:"overage_amount"`
	RentalAmount   float64 `json:"rental_amount"`
	Subtotal       float64 `json:"subtotal"`
	DiscountAmount float64 `json:"discount_amount"`
	GrandTotal     float64 `json:"grand_total"`
	RoundedTotal   float64 `json:"rounded_total"`

	AmountPaid     float64 `json:"amount_paid"`
	DepositHeld    float64 `json:"deposit_held"`
	DepositApplied float64 `json:"deposit_applied"`
	Outstanding    float64 `json:"outstanding_amount"`

	Charges []Charge `json:"charges,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CloseResult reports the outcome of a close attempt. A non-zero AmountDue
// with Closed false means the agreement stayed Returned.
type CloseResult struct {
	Closed        bool    `json:"closed"`
	AmountDue     float64 `json:"amount_due,omitempty"`
	DepositRefund float64 `json:"deposit_refund,omitempty"`
}
