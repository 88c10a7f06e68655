package utilization

import "time"

// Snapshot is the per-vehicle per-day utilization record. One row per
// (vehicle, date); recomputing the same day overwrites it.
type Snapshot struct {
	ID               int64     `json:"id"`
	VehicleID        int64     `json:"vehicle_id"`
	Date             time.Time `json:"date"`
	RentedHours      float64   `json:"rented_hours"`
	IdleHours        float64   `json:"idle_hours"`
	MaintenanceHours float64   `json:"maintenance_hours"`
	UtilizationPct   float64   `json:"utilization_pct"`
	Revenue          float64   `json:"revenue"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// VehicleWeekly is one row of the ranked weekly report.
type VehicleWeekly struct {
	VehicleID      int64   `json:"vehicle_id"`
	PlateNo        string  `json:"plate_no"`
	AvgUtilization float64 `json:"avg_utilization_pct"`
	RentedHours    float64 `json:"rented_hours"`
	Revenue        float64 `json:"revenue"`
	Days           int     `json:"days"`
}

// FleetSummary is the dashboard aggregate over the trailing window.
type FleetSummary struct {
	From           time.Time       `json:"from"`
	To             time.Time       `json:"to"`
	VehicleCount   int             `json:"vehicle_count"`
	AvgUtilization float64         `json:"avg_utilization_pct"`
	TotalRevenue   float64         `json:"total_revenue"`
	Vehicles       []VehicleWeekly `json:"vehicles"`
}
