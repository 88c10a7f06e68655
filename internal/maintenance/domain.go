package maintenance

import "time"

// JobStatus is the lifecycle state of a maintenance job.
type JobStatus string

const (
	JobScheduled  JobStatus = "Scheduled"
	JobInProgress JobStatus = "In Progress"
	JobCompleted  JobStatus = "Completed"
	JobCancelled  JobStatus = "Cancelled"
)

// JobKind distinguishes routine servicing from accident repair.
type JobKind string

const (
	KindService JobKind = "Service"
	KindRepair  JobKind = "Repair"
)

type Job struct {
	ID          int64      `json:"id"`
	VehicleID   int64      `json:"vehicle_id"`
	Kind        JobKind    `json:"kind"`
	Status      JobStatus  `json:"status"`
	Description string     `json:"description"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// DowntimeHours is derived when the job completes.
	DowntimeHours float64   `json:"downtime_hours,omitempty"`
	Cost          float64   `json:"cost,omitempty"`
	OdometerAt    float64   `json:"odometer_at,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
