package fleet

import "time"

// VehicleStatus enumerates fleet asset statuses.
type VehicleStatus string

const (
	StatusAvailable        VehicleStatus = "Available"
	StatusReserved         VehicleStatus = "Reserved"
	StatusRentedOut        VehicleStatus = "Rented Out"
	StatusUnderMaintenance VehicleStatus = "Under Maintenance"
	StatusAccidentRepair   VehicleStatus = "Accident/Repair"
	StatusDeactivated      VehicleStatus = "Deactivated"
	StatusCustody          VehicleStatus = "Custody"
	StatusInWorkshop       VehicleStatus = "In Workshop"
	StatusSold             VehicleStatus = "Sold"
	StatusLeased           VehicleStatus = "Leased"
)

// unavailableStatuses drive the derived availability flag.
var unavailableStatuses = map[VehicleStatus]bool{
	StatusRentedOut:        true,
	StatusReserved:         true,
	StatusUnderMaintenance: true,
	StatusAccidentRepair:   true,
	StatusDeactivated:      true,
	StatusCustody:          true,
}

// Available reports the derived availability for a status.
func (s VehicleStatus) Available() bool {
	return !unavailableStatuses[s]
}

// Vehicle is a fleet asset record.
type Vehicle struct {
	ID       int64         `json:"id"`
	PlateNo  string        `json:"plate_no"`
	Make     string        `json:"make"`
	Model    string        `json:"model"`
	Year     int           `json:"year"`
	Color    string        `json:"color,omitempty"`
	BranchID int64         `json:"branch_id"`
	Status   VehicleStatus `json:"status"`
	// AvailabilityStatus is derived from Status on every save.
	AvailabilityStatus bool    `json:"availability_status"`
	Odometer           float64 `json:"odometer"`
	FuelLevel          float64 `json:"fuel_level"`

	PurchaseCost     float64    `json:"purchase_cost,omitempty"`
	PurchaseDate     *time.Time `json:"purchase_date,omitempty"`
	DepreciationRate float64    `json:"depreciation_rate,omitempty"`
	CurrentBookValue float64    `json:"current_book_value,omitempty"`

	RegistrationExpiry *time.Time `json:"registration_expiry,omitempty"`
	InsuranceExpiry    *time.Time `json:"insurance_expiry,omitempty"`
	NextServiceDue     *time.Time `json:"next_service_due,omitempty"`
	LastServiceDate    *time.Time `json:"last_service_date,omitempty"`

	TotalRevenue         float64 `json:"total_revenue"`
	TotalMaintenanceCost float64 `json:"total_maintenance_cost"`
	NetProfit            float64 `json:"net_profit"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusLog is an append-only record of a status transition.
type StatusLog struct {
	ID         int64         `json:"id"`
	VehicleID  int64         `json:"vehicle_id"`
	FromStatus VehicleStatus `json:"from_status"`
	ToStatus   VehicleStatus `json:"to_status"`
	Reason     string        `json:"reason,omitempty"`
	RefType    string        `json:"ref_type,omitempty"`
	RefID      int64         `json:"ref_id,omitempty"`
	ChangedBy  int64         `json:"changed_by"`
	ChangedAt  time.Time     `json:"changed_at"`
}

// OdometerLog is an append-only record of an odometer reading.
type OdometerLog struct {
	ID        int64     `json:"id"`
	VehicleID int64     `json:"vehicle_id"`
	Reading   float64   `json:"reading"`
	Source    string    `json:"source"`
	LoggedAt  time.Time `json:"logged_at"`
}

// DamageLog records reported damage against a vehicle.
type DamageLog struct {
	ID            int64     `json:"id"`
	VehicleID     int64     `json:"vehicle_id"`
	Description   string    `json:"description"`
	Severity      string    `json:"severity"`
	EstimatedCost float64   `json:"estimated_cost"`
	LoggedAt      time.Time `json:"logged_at"`
}

// SearchCriteria filters vehicles for an availability window.
type SearchCriteria struct {
	Start    time.Time
	End      time.Time
	BranchID *int64
	Make     string
	Model    string
}
