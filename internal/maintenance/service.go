package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fleethire/fleethire/internal/fleet"
	"github.com/fleethire/fleethire/internal/platform/httpx"
	"github.com/fleethire/fleethire/internal/shared"
)

// RepositoryPort defines data access methods for maintenance jobs.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (*Job, error)
	Create(ctx context.Context, j Job) (int64, error)
	Update(ctx context.Context, j Job) error
	List(ctx context.Context, status string, vehicleID int64, limit, offset int) ([]Job, error)
	SumCostByVehicle(ctx context.Context, vehicleID int64, from, to time.Time) (float64, error)
	SumDowntimeByVehicleDay(ctx context.Context, vehicleID int64, day time.Time) (float64, error)
	ListScheduledBefore(ctx context.Context, cutoff time.Time) ([]Job, error)
}

// FleetPort is the slice of the fleet service maintenance drives.
type FleetPort interface {
	Get(ctx context.Context, id int64) (*fleet.Vehicle, error)
	UpdateStatus(ctx context.Context, vehicleID int64, status fleet.VehicleStatus, reason, refType string, refID int64) error
	UpdateServiceSchedule(ctx context.Context, vehicleID int64, lastService time.Time, nextDue *time.Time) error
}

// Service handles maintenance job lifecycle and its fleet side effects.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	fleet  FleetPort
	clock  shared.Clock
}

func NewService(logger *slog.Logger, repo RepositoryPort, fleetSvc FleetPort, clock shared.Clock) *Service {
	if clock == nil {
		clock = shared.RealClock()
	}
	return &Service{logger: logger, repo: repo, fleet: fleetSvc, clock: clock}
}

// Schedule books a maintenance job without taking the vehicle off the road.
func (s *Service) Schedule(ctx context.Context, j Job) (*Job, error) {
	if j.VehicleID == 0 {
		return nil, httpx.Validation("vehicle is required")
	}
	if j.ScheduledAt.IsZero() {
		return nil, httpx.Validation("scheduled date is required")
	}
	if _, err := s.fleet.Get(ctx, j.VehicleID); err != nil {
		return nil, err
	}
	switch j.Kind {
	case KindService, KindRepair:
	case "":
		j.Kind = KindService
	default:
		return nil, httpx.Validation("unknown job kind %q", j.Kind)
	}
	j.Status = JobScheduled
	id, err := s.repo.Create(ctx, j)
	if err != nil {
		return nil, fmt.Errorf("schedule maintenance job: %w", err)
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id int64) (*Job, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, status string, vehicleID int64, limit, offset int) ([]Job, error) {
	return s.repo.List(ctx, status, vehicleID, limit, offset)
}

// Start moves the job in progress and flags the vehicle under maintenance.
func (s *Service) Start(ctx context.Context, id int64, odometerAt float64) (*Job, error) {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.Status != JobScheduled {
		return nil, httpx.Validation("job is %s, only scheduled jobs can start", j.Status)
	}
	status := fleet.StatusUnderMaintenance
	if j.Kind == KindRepair {
		status = fleet.StatusAccidentRepair
	}
	if err := s.fleet.UpdateStatus(ctx, j.VehicleID, status,
		"maintenance started", "Maintenance Job", j.ID); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	j.Status = JobInProgress
	j.StartedAt = &now
	j.OdometerAt = odometerAt
	if err := s.repo.Update(ctx, *j); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Complete closes the job, records downtime and cost, and returns the
// vehicle to the available pool.
func (s *Service) Complete(ctx context.Context, id int64, cost float64, nextDue *time.Time) (*Job, error) {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.Status != JobInProgress {
		return nil, httpx.Validation("job is %s, only in-progress jobs can complete", j.Status)
	}
	if cost < 0 {
		return nil, httpx.Validation("cost cannot be negative")
	}
	now := s.clock.Now()
	j.Status = JobCompleted
	j.CompletedAt = &now
	j.Cost = cost
	if j.StartedAt != nil {
		j.DowntimeHours = now.Sub(*j.StartedAt).Hours()
	}
	if err := s.repo.Update(ctx, *j); err != nil {
		return nil, err
	}
	if err := s.fleet.UpdateStatus(ctx, j.VehicleID, fleet.StatusAvailable,
		"maintenance completed", "Maintenance Job", j.ID); err != nil {
		return nil, err
	}
	if err := s.fleet.UpdateServiceSchedule(ctx, j.VehicleID, now, nextDue); err != nil {
		s.logger.Warn("service schedule update failed",
			slog.Int64("vehicle_id", j.VehicleID), slog.Any("error", err))
	}
	return s.repo.Get(ctx, id)
}

// Cancel drops a scheduled job. In-progress jobs must complete instead, so
// the vehicle status stays truthful.
func (s *Service) Cancel(ctx context.Context, id int64) (*Job, error) {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.Status != JobScheduled {
		return nil, httpx.Validation("job is %s, only scheduled jobs can be cancelled", j.Status)
	}
	j.Status = JobCancelled
	if err := s.repo.Update(ctx, *j); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// MonthlyCost totals completed job costs for a vehicle in a calendar month.
func (s *Service) MonthlyCost(ctx context.Context, vehicleID int64, month time.Time) (float64, error) {
	from := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, month.Location())
	return s.repo.SumCostByVehicle(ctx, vehicleID, from, from.AddDate(0, 1, 0))
}

// DowntimeOn reports maintenance downtime hours booked against a vehicle on
// a given day.
func (s *Service) DowntimeOn(ctx context.Context, vehicleID int64, day time.Time) (float64, error) {
	return s.repo.SumDowntimeByVehicleDay(ctx, vehicleID, day)
}

// DueScan returns scheduled jobs due within the window, for the daily flag run.
func (s *Service) DueScan(ctx context.Context, window time.Duration) ([]Job, error) {
	return s.repo.ListScheduledBefore(ctx, s.clock.Now().Add(window))
}
