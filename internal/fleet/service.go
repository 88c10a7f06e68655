package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/fleethire/fleethire/internal/platform/httpx"
	"github.com/fleethire/fleethire/internal/shared"
)

// RepositoryPort defines data access methods for the fleet.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (*Vehicle, error)
	Create(ctx context.Context, v Vehicle) (int64, error)
	List(ctx context.Context, status string, limit, offset int) ([]Vehicle, error)
	ListActive(ctx context.Context) ([]Vehicle, error)
	ListCandidates(ctx context.Context, criteria SearchCriteria) ([]Vehicle, error)
	UpdateStatus(ctx context.Context, id int64, status VehicleStatus, available bool) error
	UpdateOdometer(ctx context.Context, id int64, reading float64) error
	UpdateFuelLevel(ctx context.Context, id int64, level float64) error
	UpdateBookValue(ctx context.Context, id int64, value float64) error
	UpdateServiceSchedule(ctx context.Context, id int64, lastService, nextDue *time.Time) error
	UpdateProfitability(ctx context.Context, id int64, revenue, maintenanceCost, netProfit float64) error
	AppendStatusLog(ctx context.Context, log StatusLog) error
	AppendOdometerLog(ctx context.Context, log OdometerLog) error
	AppendDamageLog(ctx context.Context, log DamageLog) error
	ListStatusLogs(ctx context.Context, vehicleID int64, limit int) ([]StatusLog, error)
	CountOverlappingReservations(ctx context.Context, vehicleID int64, start, end time.Time, excludeID int64) (int, error)
	CountOverlappingAgreements(ctx context.Context, vehicleID int64, start, end time.Time, excludeID int64) (int, error)
}

// Service handles fleet business logic.
type Service struct {
	repo  RepositoryPort
	clock shared.Clock
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, clock shared.Clock) *Service {
	if clock == nil {
		clock = shared.RealClock()
	}
	return &Service{repo: repo, clock: clock}
}

// Register adds a vehicle to the fleet.
func (s *Service) Register(ctx context.Context, v Vehicle) (*Vehicle, error) {
	if v.PlateNo == "" {
		return nil, httpx.Validation("plate number is required")
	}
	if v.Year > s.clock.Now().Year()+1 {
		return nil, httpx.Validation("year cannot be in the future")
	}
	if v.Odometer < 0 {
		return nil, httpx.Validation("odometer cannot be negative")
	}
	if v.Status == "" {
		v.Status = StatusAvailable
	}
	v.AvailabilityStatus = v.Status.Available()
	v.CurrentBookValue = s.bookValue(v)
	id, err := s.repo.Create(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("register vehicle: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// Get returns a vehicle by id.
func (s *Service) Get(ctx context.Context, id int64) (*Vehicle, error) {
	return s.repo.Get(ctx, id)
}

// List returns vehicles with an optional status filter.
func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]Vehicle, error) {
	filters := shared.ListFilters{Status: status, Limit: limit, Offset: offset}
	filters.Clamp()
	return s.repo.List(ctx, filters.Status, filters.Limit, filters.Offset)
}

// ListOperational returns every vehicle not deactivated, for fleet-wide jobs.
func (s *Service) ListOperational(ctx context.Context) ([]Vehicle, error) {
	return s.repo.ListActive(ctx)
}

// CheckAvailability reports whether the vehicle can serve the [start, end]
// window: the derived availability flag must be set and no live reservation or
// agreement may overlap the interval. Boundary touch counts as a conflict.
func (s *Service) CheckAvailability(ctx context.Context, vehicleID int64, start, end time.Time) (bool, error) {
	vehicle, err := s.repo.Get(ctx, vehicleID)
	if err != nil {
		return false, err
	}
	if !vehicle.AvailabilityStatus {
		return false, nil
	}
	reservations, err := s.repo.CountOverlappingReservations(ctx, vehicleID, start, end, 0)
	if err != nil {
		return false, err
	}
	if reservations > 0 {
		return false, nil
	}
	agreements, err := s.repo.CountOverlappingAgreements(ctx, vehicleID, start, end, 0)
	if err != nil {
		return false, err
	}
	return agreements == 0, nil
}

// UpdateStatus transitions the vehicle status and appends an immutable log entry.
func (s *Service) UpdateStatus(ctx context.Context, vehicleID int64, newStatus VehicleStatus, reason, refType string, refID int64) error {
	vehicle, err := s.repo.Get(ctx, vehicleID)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, vehicleID, newStatus, newStatus.Available()); err != nil {
		return err
	}
	actor := shared.ActorFromContext(ctx)
	return s.repo.AppendStatusLog(ctx, StatusLog{
		VehicleID:  vehicleID,
		FromStatus: vehicle.Status,
		ToStatus:   newStatus,
		Reason:     reason,
		RefType:    refType,
		RefID:      refID,
		ChangedBy:  actor.UserID,
		ChangedAt:  s.clock.Now(),
	})
}

// UpdateOdometer records a new odometer reading. Readings never decrease.
func (s *Service) UpdateOdometer(ctx context.Context, vehicleID int64, reading float64, source string) error {
	vehicle, err := s.repo.Get(ctx, vehicleID)
	if err != nil {
		return err
	}
	if reading < vehicle.Odometer {
		return httpx.Validation("new odometer reading %.0f cannot be less than current reading %.0f", reading, vehicle.Odometer)
	}
	if err := s.repo.UpdateOdometer(ctx, vehicleID, reading); err != nil {
		return err
	}
	return s.repo.AppendOdometerLog(ctx, OdometerLog{
		VehicleID: vehicleID,
		Reading:   reading,
		Source:    source,
		LoggedAt:  s.clock.Now(),
	})
}

// UpdateFuelLevel records the vehicle's fuel level percentage.
func (s *Service) UpdateFuelLevel(ctx context.Context, vehicleID int64, level float64) error {
	if level < 0 || level > 100 {
		return httpx.Validation("fuel level must be between 0 and 100")
	}
	return s.repo.UpdateFuelLevel(ctx, vehicleID, level)
}

// AddDamageLog records reported damage.
func (s *Service) AddDamageLog(ctx context.Context, vehicleID int64, description, severity string, estimatedCost float64) error {
	if description == "" {
		return httpx.Validation("damage description is required")
	}
	return s.repo.AppendDamageLog(ctx, DamageLog{
		VehicleID:     vehicleID,
		Description:   description,
		Severity:      severity,
		EstimatedCost: estimatedCost,
		LoggedAt:      s.clock.Now(),
	})
}

// StatusHistory returns recent status transitions for a vehicle.
func (s *Service) StatusHistory(ctx context.Context, vehicleID int64, limit int) ([]StatusLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListStatusLogs(ctx, vehicleID, limit)
}

// SearchAvailable returns candidate vehicles that pass the availability check
// for the requested window, in deterministic lowest-odometer order.
func (s *Service) SearchAvailable(ctx context.Context, criteria SearchCriteria) ([]Vehicle, error) {
	if !criteria.End.After(criteria.Start) {
		return nil, httpx.Validation("end must be after start")
	}
	candidates, err := s.repo.ListCandidates(ctx, criteria)
	if err != nil {
		return nil, err
	}
	var available []Vehicle
	for _, candidate := range candidates {
		ok, err := s.CheckAvailability(ctx, candidate.ID, criteria.Start, criteria.End)
		if err != nil {
			return nil, err
		}
		if ok {
			available = append(available, candidate)
		}
	}
	return available, nil
}

// UpdateServiceSchedule records a completed service and the next due date.
func (s *Service) UpdateServiceSchedule(ctx context.Context, vehicleID int64, lastService time.Time, nextDue *time.Time) error {
	return s.repo.UpdateServiceSchedule(ctx, vehicleID, &lastService, nextDue)
}

// RecordProfitability stores the monthly revenue and maintenance totals.
func (s *Service) RecordProfitability(ctx context.Context, vehicleID int64, revenue, maintenanceCost float64) error {
	return s.repo.UpdateProfitability(ctx, vehicleID, revenue, maintenanceCost, revenue-maintenanceCost)
}

// RecomputeBookValue refreshes the straight-line depreciated value.
func (s *Service) RecomputeBookValue(ctx context.Context, vehicleID int64) error {
	vehicle, err := s.repo.Get(ctx, vehicleID)
	if err != nil {
		return err
	}
	return s.repo.UpdateBookValue(ctx, vehicleID, s.bookValue(*vehicle))
}

func (s *Service) bookValue(v Vehicle) float64 {
	if v.PurchaseCost == 0 || v.PurchaseDate == nil || v.DepreciationRate == 0 {
		return v.CurrentBookValue
	}
	yearsOwned := s.clock.Now().Sub(*v.PurchaseDate).Hours() / 24 / 365.25
	depreciation := v.PurchaseCost * v.DepreciationRate / 100 * yearsOwned
	value := v.PurchaseCost - depreciation
	if value < 0 {
		value = 0
	}
	return value
}
