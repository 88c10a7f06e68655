package reservations

import (
	"time"

	"github.com/fleethire/fleethire/internal/rateplans"
)

// Status is the lifecycle state of a reservation.
type Status string

const (
	StatusDraft     Status = "Draft"
	StatusConfirmed Status = "Confirmed"
	StatusConverted Status = "Converted"
	StatusCancelled Status = "Cancelled"
	StatusExpired   Status = "Expired"
)

// AllocationMode decides whether a vehicle is picked by staff or by the
// candidate scan.
type AllocationMode string

const (
	AllocationManual AllocationMode = "Manual"
	AllocationSmart  AllocationMode = "Smart"
)

// Extra is a booked add-on carried into the agreement as a charge line.
type Extra struct {
	ID            int64   `json:"id"`
	ReservationID int64   `json:"reservation_id"`
	Description   string  `json:"description"`
	Amount        float64 `json:"amount"`
}

type Reservation struct {
	ID           int64          `json:"id"`
	CustomerID   int64          `json:"customer_id"`
	DriverID     *int64         `json:"driver_id,omitempty"`
	VehicleID    *int64         `json:"vehicle_id,omitempty"`
	RatePlanID   int64          `json:"rate_plan_id"`
	Status       Status         `json:"status"`
	Allocation   AllocationMode `json:"allocation_mode"`
	BranchID     *int64         `json:"branch_id,omitempty"`
	Make         string         `json:"make,omitempty"`
	Model        string         `json:"model,omitempty"`
	PickupAt     time.Time      `json:"pickup_at"`
	ReturnAt     time.Time      `json:"return_at"`
	RentalDays   float64        `json:"rental_days"`
	RentalAmount float64        `json:"rental_amount"`
	GrandTotal   float64        `json:"grand_total"`
	AgreementID  *int64         `json:"agreement_id,omitempty"`
	Extras       []Extra        `json:"extras,omitempty"`

	// Snapshot of the plan taken at creation.
	BaseRate float64            `json:"base_rate"`
	RateType rateplans.RateType `json:"rate_type"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Conflict is a double-booking found by the scheduled re-scan.
type Conflict struct {
	VehicleID      int64   `json:"vehicle_id"`
	ReservationIDs []int64 `json:"reservation_ids"`
}
