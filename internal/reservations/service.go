package reservations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fleethire/fleethire/internal/agreements"
	"github.com/fleethire/fleethire/internal/customers"
	"github.com/fleethire/fleethire/internal/fleet"
	"github.com/fleethire/fleethire/internal/platform/httpx"
	"github.com/fleethire/fleethire/internal/rateplans"
	"github.com/fleethire/fleethire/internal/shared"
)

// RepositoryPort defines data access methods for reservations.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (*Reservation, error)
	Create(ctx context.Context, res Reservation) (int64, error)
	Update(ctx context.Context, res Reservation) error
	List(ctx context.Context, status string, limit, offset int) ([]Reservation, error)
	ListConfirmedPickupBetween(ctx context.Context, from, to time.Time) ([]Reservation, error)
	ListConfirmedPickupBefore(ctx context.Context, cutoff time.Time) ([]Reservation, error)
}

// FleetPort is the slice of the fleet service reservations drive.
type FleetPort interface {
	Get(ctx context.Context, id int64) (*fleet.Vehicle, error)
	CheckAvailability(ctx context.Context, vehicleID int64, start, end time.Time) (bool, error)
	SearchAvailable(ctx context.Context, criteria fleet.SearchCriteria) ([]fleet.Vehicle, error)
	UpdateStatus(ctx context.Context, vehicleID int64, status fleet.VehicleStatus, reason, refType string, refID int64) error
}

// CustomerPort screens customers.
type CustomerPort interface {
	CheckEligibility(ctx context.Context, customerID int64, driverID *int64, pickup time.Time) (*customers.Eligibility, error)
}

// PlanPort resolves rate plans for snapshotting.
type PlanPort interface {
	Get(ctx context.Context, id int64) (*rateplans.RatePlan, error)
}

// AgreementPort creates the agreement a reservation converts into.
type AgreementPort interface {
	Create(ctx context.Context, a agreements.Agreement) (*agreements.Agreement, error)
	AddCharge(ctx context.Context, id int64, kind, description string, amount float64) (*agreements.Agreement, error)
}

// Service handles the reservation lifecycle.
type Service struct {
	logger     *slog.Logger
	repo       RepositoryPort
	fleet      FleetPort
	customers  CustomerPort
	plans      PlanPort
	agreements AgreementPort
	clock      shared.Clock
}

func NewService(logger *slog.Logger, repo RepositoryPort, fleetSvc FleetPort,
	customerSvc CustomerPort, planSvc PlanPort, agreementSvc AgreementPort, clock shared.Clock) *Service {
	if clock == nil {
		clock = shared.RealClock()
	}
	return &Service{
		logger:     logger,
		repo:       repo,
		fleet:      fleetSvc,
		customers:  customerSvc,
		plans:      planSvc,
		agreements: agreementSvc,
		clock:      clock,
	}
}

func (s *Service) price(res *Reservation) {
	res.RentalDays = res.ReturnAt.Sub(res.PickupAt).Hours() / 24
	period := res.RateType.PeriodDays()
	if period > 0 {
		res.RentalAmount = res.BaseRate * res.RentalDays / period
	} else {
		res.RentalAmount = 0
		s.logger.Warn("unknown rate type, rental amount zeroed",
			slog.Int64("reservation_id", res.ID), slog.String("rate_type", string(res.RateType)))
	}
	res.GrandTotal = res.RentalAmount
	for _, e := range res.Extras {
		res.GrandTotal += e.Amount
	}
}

// Create drafts a reservation.
func (s *Service) Create(ctx context.Context, res Reservation) (*Reservation, error) {
	now := s.clock.Now()
	if !res.ReturnAt.After(res.PickupAt) {
		return nil, httpx.Validation("return must be after pickup")
	}
	if res.PickupAt.Before(now) {
		return nil, httpx.Validation("pickup cannot be in the past")
	}

	eligibility, err := s.customers.CheckEligibility(ctx, res.CustomerID, res.DriverID, res.PickupAt)
	if err != nil {
		return nil, err
	}
	if !eligibility.Eligible {
		return nil, httpx.Validation("customer not eligible: %v", eligibility.Reasons)
	}

	plan, err := s.plans.Get(ctx, res.RatePlanID)
	if err != nil {
		return nil, err
	}
	res.BaseRate = plan.BaseRate
	res.RateType = plan.RateType

	if res.Allocation == "" {
		if res.VehicleID != nil {
			res.Allocation = AllocationManual
		} else {
			res.Allocation = AllocationSmart
		}
	}
	if res.VehicleID == nil && res.Allocation == AllocationManual {
		return nil, httpx.Validation("manual allocation requires a vehicle")
	}

	res.Status = StatusDraft
	s.price(&res)

	id, err := s.repo.Create(ctx, res)
	if err != nil {
		return nil, fmt.Errorf("create reservation: %w", err)
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id int64) (*Reservation, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]Reservation, error) {
	return s.repo.List(ctx, status, limit, offset)
}

// Confirm re-checks the conflict window and, in smart mode, allocates the
// first candidate vehicle that passes the availability check.
func (s *Service) Confirm(ctx context.Context, id int64) (*Reservation, error) {
	res, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.Status != StatusDraft {
		return nil, httpx.Validation("reservation is %s, only drafts can be confirmed", res.Status)
	}

	eligibility, err := s.customers.CheckEligibility(ctx, res.CustomerID, res.DriverID, res.PickupAt)
	if err != nil {
		return nil, err
	}
	if !eligibility.Eligible {
		return nil, httpx.Validation("customer not eligible: %v", eligibility.Reasons)
	}

	if res.VehicleID != nil {
		available, err := s.fleet.CheckAvailability(ctx, *res.VehicleID, res.PickupAt, res.ReturnAt)
		if err != nil {
			return nil, err
		}
		if !available {
			return nil, httpx.Validation("vehicle is no longer available for the requested window")
		}
	} else {
		vehicles, err := s.fleet.SearchAvailable(ctx, fleet.SearchCriteria{
			Start:    res.PickupAt,
			End:      res.ReturnAt,
			BranchID: res.BranchID,
			Make:     res.Make,
			Model:    res.Model,
		})
		if err != nil {
			return nil, err
		}
		if len(vehicles) == 0 {
			return nil, httpx.Validation("no vehicle found matching the reservation criteria")
		}
		res.VehicleID = &vehicles[0].ID
	}

	if err := s.fleet.UpdateStatus(ctx, *res.VehicleID, fleet.StatusReserved,
		"reservation confirmed", "Reservation", res.ID); err != nil {
		return nil, err
	}

	res.Status = StatusConfirmed
	if err := s.repo.Update(ctx, *res); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Cancel aborts a reservation and releases a reserved vehicle.
func (s *Service) Cancel(ctx context.Context, id int64) (*Reservation, error) {
	res, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch res.Status {
	case StatusDraft, StatusConfirmed:
	default:
		return nil, httpx.Validation("reservation is %s and cannot be cancelled", res.Status)
	}
	if res.Status == StatusConfirmed && res.VehicleID != nil {
		if err := s.fleet.UpdateStatus(ctx, *res.VehicleID, fleet.StatusAvailable,
			"reservation cancelled", "Reservation", res.ID); err != nil {
			return nil, err
		}
	}
	res.Status = StatusCancelled
	if err := s.repo.Update(ctx, *res); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// ConvertToAgreement turns a confirmed reservation into a draft agreement,
// carrying extras over as charge lines and linking the two records.
func (s *Service) ConvertToAgreement(ctx context.Context, id int64) (*agreements.Agreement, error) {
	res, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.Status == StatusConverted {
		return nil, httpx.Validation("reservation is already converted")
	}
	if res.Status != StatusConfirmed {
		return nil, httpx.Validation("only confirmed reservations convert to agreements")
	}
	if res.VehicleID == nil {
		return nil, httpx.Validation("reservation has no allocated vehicle")
	}

	agreement, err := s.agreements.Create(ctx, agreements.Agreement{
		ReservationID: &res.ID,
		VehicleID:     *res.VehicleID,
		CustomerID:    res.CustomerID,
		DriverID:      res.DriverID,
		RatePlanID:    res.RatePlanID,
		StartAt:       res.PickupAt,
		EndAt:         res.ReturnAt,
	})
	if err != nil {
		return nil, err
	}
	for _, e := range res.Extras {
		if agreement, err = s.agreements.AddCharge(ctx, agreement.ID, agreements.ChargeExtra, e.Description, e.Amount); err != nil {
			return nil, err
		}
	}

	res.Status = StatusConverted
	res.AgreementID = &agreement.ID
	if err := s.repo.Update(ctx, *res); err != nil {
		return nil, err
	}
	return agreement, nil
}

// ExpiryScan marks confirmed reservations whose pickup has passed without
// conversion as expired and releases their vehicles.
func (s *Service) ExpiryScan(ctx context.Context) ([]Reservation, error) {
	stale, err := s.repo.ListConfirmedPickupBefore(ctx, s.clock.Now())
	if err != nil {
		return nil, err
	}
	var expired []Reservation
	for i := range stale {
		res := stale[i]
		if res.VehicleID != nil {
			if err := s.fleet.UpdateStatus(ctx, *res.VehicleID, fleet.StatusAvailable,
				"reservation expired", "Reservation", res.ID); err != nil {
				return nil, err
			}
		}
		res.Status = StatusExpired
		if err := s.repo.Update(ctx, res); err != nil {
			return nil, err
		}
		expired = append(expired, res)
	}
	return expired, nil
}

// ConflictScan re-detects double bookings among confirmed reservations with
// pickup inside the next 24 hours. Races slip past the validate-time check,
// so the scan reports them for human resolution instead of auto-fixing.
func (s *Service) ConflictScan(ctx context.Context) ([]Conflict, error) {
	now := s.clock.Now()
	upcoming, err := s.repo.ListConfirmedPickupBetween(ctx, now, now.Add(24*time.Hour))
	if err != nil {
		return nil, err
	}

	byVehicle := make(map[int64][]Reservation)
	for _, res := range upcoming {
		if res.VehicleID != nil {
			byVehicle[*res.VehicleID] = append(byVehicle[*res.VehicleID], res)
		}
	}

	var conflicts []Conflict
	for vehicleID, group := range byVehicle {
		ids := map[int64]bool{}
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				if intervalsOverlap(group[i].PickupAt, group[i].ReturnAt, group[j].PickupAt, group[j].ReturnAt) {
					ids[group[i].ID] = true
					ids[group[j].ID] = true
				}
			}
		}
		if len(ids) > 0 {
			c := Conflict{VehicleID: vehicleID}
			for _, res := range group {
				if ids[res.ID] {
					c.ReservationIDs = append(c.ReservationIDs, res.ID)
				}
			}
			conflicts = append(conflicts, c)
		}
	}
	return conflicts, nil
}

// intervalsOverlap is the inclusive three-way test: either endpoint of one
// interval inside the other, or full containment.
func intervalsOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return (!aStart.After(bStart) && !aEnd.Before(bStart)) ||
		(!aStart.After(bEnd) && !aEnd.Before(bEnd)) ||
		(!aStart.Before(bStart) && !aEnd.After(bEnd))
}
