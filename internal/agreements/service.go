package agreements

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fleethire/fleethire/internal/customers"
	"github.com/fleethire/fleethire/internal/fleet"
	"github.com/fleethire/fleethire/internal/platform/httpx"
	"github.com/fleethire/fleethire/internal/rateplans"
	"github.com/fleethire/fleethire/internal/shared"
)

// RepositoryPort defines data access methods for agreements.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (*Agreement, error)
	Create(ctx context.Context, a Agreement) (int64, error)
	Update(ctx context.Context, a Agreement) error
	List(ctx context.Context, status string, limit, offset int) ([]Agreement, error)
	ListOverdue(ctx context.Context, now time.Time) ([]Agreement, error)
	AppendCharge(ctx context.Context, c Charge) error
	ListCharges(ctx context.Context, agreementID int64) ([]Charge, error)
	ListLiveOverlapping(ctx context.Context, vehicleID int64, from, to time.Time) ([]Agreement, error)
	SumRevenueByVehicle(ctx context.Context, vehicleID int64, from, to time.Time) (float64, error)
}

// FleetPort is the slice of the fleet service agreements drive.
type FleetPort interface {
	Get(ctx context.Context, id int64) (*fleet.Vehicle, error)
	CheckAvailability(ctx context.Context, vehicleID int64, start, end time.Time) (bool, error)
	UpdateStatus(ctx context.Context, vehicleID int64, status fleet.VehicleStatus, reason, refType string, refID int64) error
	UpdateOdometer(ctx context.Context, vehicleID int64, reading float64, source string) error
	UpdateFuelLevel(ctx context.Context, vehicleID int64, level float64) error
}

// CustomerPort screens customers and records closed rentals.
type CustomerPort interface {
	CheckEligibility(ctx context.Context, customerID int64, driverID *int64, pickup time.Time) (*customers.Eligibility, error)
	RecordClosedRental(ctx context.Context, id int64, revenue float64) error
}

// PlanPort resolves rate plans for snapshotting.
type PlanPort interface {
	Get(ctx context.Context, id int64) (*rateplans.RatePlan, error)
}

// InvoicePort is the billing collaborator. Failures are advisory.
type InvoicePort interface {
	UpsertAgreementInvoice(ctx context.Context, agreementID, customerID int64, total float64) error
	RefundDeposit(ctx context.Context, agreementID, customerID int64, amount float64) error
}

// SnapshotPort records a utilization data point when an agreement closes.
type SnapshotPort interface {
	RecordAgreementClosure(ctx context.Context, vehicleID int64, closedAt time.Time, revenue float64) error
}

// PricingConfig carries the charge constants that are policy, not physics.
type PricingConfig struct {
	FuelTankCapacityL float64
	FuelPricePerL     float64
	LateFeeHourlyPct  float64
}

// DefaultPricingConfig mirrors the business defaults.
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{FuelTankCapacityL: 50, FuelPricePerL: 2, LateFeeHourlyPct: 0.10}
}

// Service handles the agreement lifecycle.
type Service struct {
	logger    *slog.Logger
	repo      RepositoryPort
	fleet     FleetPort
	customers CustomerPort
	plans     PlanPort
	billing   InvoicePort
	snapshots SnapshotPort
	clock     shared.Clock
	cfg       PricingConfig
}

func NewService(logger *slog.Logger, repo RepositoryPort, fleetSvc FleetPort, customerSvc CustomerPort,
	planSvc PlanPort, billing InvoicePort, snapshots SnapshotPort, clock shared.Clock, cfg PricingConfig) *Service {
	if clock == nil {
		clock = shared.RealClock()
	}
	if cfg == (PricingConfig{}) {
		cfg = DefaultPricingConfig()
	}
	return &Service{
		logger:    logger,
		repo:      repo,
		fleet:     fleetSvc,
		customers: customerSvc,
		plans:     planSvc,
		billing:   billing,
		snapshots: snapshots,
		clock:     clock,
		cfg:       cfg,
	}
}

// allowedVehicleStatuses guards saving an agreement over a vehicle flagged
// unavailable for unrelated reasons.
var allowedVehicleStatuses = map[fleet.VehicleStatus]bool{
	fleet.StatusAvailable: true,
	fleet.StatusReserved:  true,
	fleet.StatusRentedOut: true,
}

func hoursBetween(from, to time.Time) float64 {
	return to.Sub(from).Hours()
}

// recompute refreshes the derived day counts, overdue flag and totals.
func (s *Service) recompute(a *Agreement) {
	a.PlannedDays = hoursBetween(a.StartAt, a.EndAt) / 24
	if a.ActualReturnAt != nil {
		a.ActualDays = hoursBetween(a.StartAt, *a.ActualReturnAt) / 24
		a.IsOverdue = a.ActualReturnAt.After(a.EndAt)
	}
	t := ComputeTotals(*a)
	if !t.RateKnown {
		s.logger.Warn("unknown rate type, rental amount zeroed",
			slog.Int64("agreement_id", a.ID), slog.String("rate_type", string(a.RateType)))
	}
	a.KmDriven = t.KmDriven
	a.OverageKm = t.OverageKm
	a.OverageAmount = t.OverageAmount
	a.RentalAmount = t.RentalAmount
	a.Subtotal = t.Subtotal
	a.DiscountAmount = t.DiscountAmount
	a.GrandTotal = t.GrandTotal
	a.RoundedTotal = t.RoundedTotal
	a.Outstanding = t.Outstanding
}

// Create drafts an agreement, snapshotting the rate plan.
func (s *Service) Create(ctx context.Context, a Agreement) (*Agreement, error) {
	if !a.EndAt.After(a.StartAt) {
		return nil, httpx.Validation("end must be after start")
	}
	if a.VehicleID == 0 || a.CustomerID == 0 {
		return nil, httpx.Validation("vehicle and customer are required")
	}

	eligibility, err := s.customers.CheckEligibility(ctx, a.CustomerID, a.DriverID, a.StartAt)
	if err != nil {
		return nil, err
	}
	if !eligibility.Eligible {
		return nil, httpx.Validation("customer not eligible: %v", eligibility.Reasons)
	}

	vehicle, err := s.fleet.Get(ctx, a.VehicleID)
	if err != nil {
		return nil, err
	}
	if !allowedVehicleStatuses[vehicle.Status] {
		return nil, httpx.Validation("vehicle %s is %s", vehicle.PlateNo, vehicle.Status)
	}

	// Converted reservations already hold the slot; walk-ins check it here.
	if a.ReservationID == nil {
		available, err := s.fleet.CheckAvailability(ctx, a.VehicleID, a.StartAt, a.EndAt)
		if err != nil {
			return nil, err
		}
		if !available {
			return nil, httpx.Validation("vehicle %s is not available for the requested window", vehicle.PlateNo)
		}
	}

	plan, err := s.plans.Get(ctx, a.RatePlanID)
	if err != nil {
		return nil, err
	}
	a.BaseRate = plan.BaseRate
	a.RateType = plan.RateType
	a.FreeKm = plan.FreeKm
	a.OveragePerKm = plan.OveragePerKm
	a.GracePeriodHours = plan.GracePeriodHours
	if a.DepositHeld == 0 {
		a.DepositHeld = plan.SecurityDeposit
	}

	a.Status = StatusDraft
	s.recompute(&a)

	id, err := s.repo.Create(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("create agreement: %w", err)
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id int64) (*Agreement, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]Agreement, error) {
	return s.repo.List(ctx, status, limit, offset)
}

// StartRental activates a draft agreement and hands the vehicle over.
func (s *Service) StartRental(ctx context.Context, id int64, odometerOut, fuelOut *float64) (*Agreement, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := Transition(a.Status, EventStart)
	if err != nil {
		return nil, err
	}
	if odometerOut == nil || fuelOut == nil {
		return nil, httpx.Validation("odometer and fuel readings are required at handover")
	}
	a.OdometerOut = odometerOut
	a.FuelOut = fuelOut

	if err := s.fleet.UpdateOdometer(ctx, a.VehicleID, *odometerOut, "Rental Handover"); err != nil {
		return nil, err
	}
	if err := s.fleet.UpdateStatus(ctx, a.VehicleID, fleet.StatusRentedOut,
		"rental started", "Rental Agreement", a.ID); err != nil {
		return nil, err
	}

	a.Status = next
	s.recompute(a)
	if err := s.repo.Update(ctx, *a); err != nil {
		return nil, err
	}

	// Billing is advisory. The rental proceeds even if the invoice fails.
	if err := s.billing.UpsertAgreementInvoice(ctx, a.ID, a.CustomerID, a.GrandTotal); err != nil {
		s.logger.Warn("invoice creation failed", slog.Int64("agreement_id", a.ID), slog.Any("error", err))
	}
	return s.repo.Get(ctx, id)
}

// ReturnVehicle takes the vehicle back and prices the completed rental.
func (s *Service) ReturnVehicle(ctx context.Context, id int64, odometerIn, fuelIn *float64) (*Agreement, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := Transition(a.Status, EventReturn)
	if err != nil {
		return nil, err
	}
	if odometerIn == nil || fuelIn == nil {
		return nil, httpx.Validation("odometer and fuel readings are required at return")
	}
	if a.OdometerOut != nil && *odometerIn < *a.OdometerOut {
		return nil, httpx.Validation("return odometer %.0f is below handover reading %.0f", *odometerIn, *a.OdometerOut)
	}

	now := s.clock.Now()
	a.OdometerIn = odometerIn
	a.FuelIn = fuelIn
	a.ActualReturnAt = &now

	if a.FuelOut != nil {
		if charge := FuelShortfallCharge(*a.FuelOut, *fuelIn, s.cfg.FuelTankCapacityL, s.cfg.FuelPricePerL); charge > 0 {
			c := Charge{AgreementID: a.ID, Kind: ChargeFuel,
				Description: fmt.Sprintf("fuel shortfall %.0f%%", *a.FuelOut-*fuelIn),
				Amount:      charge, CreatedAt: now}
			if err := s.repo.AppendCharge(ctx, c); err != nil {
				return nil, err
			}
			a.Charges = append(a.Charges, c)
		}
	}
	if now.After(a.EndAt) {
		if fee := LateFee(hoursBetween(a.EndAt, now), a.GracePeriodHours, a.BaseRate, s.cfg.LateFeeHourlyPct); fee > 0 {
			c := Charge{AgreementID: a.ID, Kind: ChargeLateFee,
				Description: fmt.Sprintf("returned %.1f hours late", hoursBetween(a.EndAt, now)),
				Amount:      fee, CreatedAt: now}
			if err := s.repo.AppendCharge(ctx, c); err != nil {
				return nil, err
			}
			a.Charges = append(a.Charges, c)
		}
	}

	if err := s.fleet.UpdateOdometer(ctx, a.VehicleID, *odometerIn, "Rental Return"); err != nil {
		return nil, err
	}
	if err := s.fleet.UpdateFuelLevel(ctx, a.VehicleID, *fuelIn); err != nil {
		return nil, err
	}
	if err := s.fleet.UpdateStatus(ctx, a.VehicleID, fleet.StatusAvailable,
		"rental returned", "Rental Agreement", a.ID); err != nil {
		return nil, err
	}

	a.Status = next
	s.recompute(a)
	if err := s.repo.Update(ctx, *a); err != nil {
		return nil, err
	}

	if err := s.billing.UpsertAgreementInvoice(ctx, a.ID, a.CustomerID, a.GrandTotal); err != nil {
		s.logger.Warn("invoice update failed", slog.Int64("agreement_id", a.ID), slog.Any("error", err))
	}
	return s.repo.Get(ctx, id)
}

// CloseAgreement settles a returned agreement. An open balance blocks the
// close and is reported to the caller, not raised as an error.
func (s *Service) CloseAgreement(ctx context.Context, id int64) (*CloseResult, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := Transition(a.Status, EventClose)
	if err != nil {
		return nil, err
	}
	if a.Outstanding > 0 {
		return &CloseResult{Closed: false, AmountDue: a.Outstanding}, nil
	}

	result := &CloseResult{Closed: true}
	if refund := a.DepositHeld - a.DepositApplied; refund > 0 {
		result.DepositRefund = refund
		if err := s.billing.RefundDeposit(ctx, a.ID, a.CustomerID, refund); err != nil {
			s.logger.Warn("deposit refund failed, left pending",
				slog.Int64("agreement_id", a.ID), slog.Any("error", err))
		}
	}

	a.Status = next
	if err := s.repo.Update(ctx, *a); err != nil {
		return nil, err
	}

	closedAt := s.clock.Now()
	if a.ActualReturnAt != nil {
		closedAt = *a.ActualReturnAt
	}
	if err := s.snapshots.RecordAgreementClosure(ctx, a.VehicleID, closedAt, a.GrandTotal); err != nil {
		s.logger.Warn("utilization snapshot failed", slog.Int64("agreement_id", a.ID), slog.Any("error", err))
	}
	if err := s.customers.RecordClosedRental(ctx, a.CustomerID, a.GrandTotal); err != nil {
		s.logger.Warn("customer totals update failed", slog.Int64("agreement_id", a.ID), slog.Any("error", err))
	}
	return result, nil
}

// Cancel aborts a draft or live agreement and releases the vehicle.
func (s *Service) Cancel(ctx context.Context, id int64) (*Agreement, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := Transition(a.Status, EventCancel)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusDraft {
		if err := s.fleet.UpdateStatus(ctx, a.VehicleID, fleet.StatusAvailable,
			"rental cancelled", "Rental Agreement", a.ID); err != nil {
			return nil, err
		}
	}
	a.Status = next
	if err := s.repo.Update(ctx, *a); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// AddCharge appends a manual charge line and reprices.
func (s *Service) AddCharge(ctx context.Context, id int64, kind, description string, amount float64) (*Agreement, error) {
	if amount <= 0 {
		return nil, httpx.Validation("charge amount must be positive")
	}
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == StatusClosed || a.Status == StatusCancelled {
		return nil, httpx.Validation("cannot add charges to a %s agreement", a.Status)
	}
	if kind == "" {
		kind = ChargeExtra
	}
	c := Charge{AgreementID: a.ID, Kind: kind, Description: description, Amount: amount, CreatedAt: s.clock.Now()}
	if err := s.repo.AppendCharge(ctx, c); err != nil {
		return nil, err
	}
	a.Charges = append(a.Charges, c)
	s.recompute(a)
	if err := s.repo.Update(ctx, *a); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// RecordPayment applies a customer payment against the balance.
func (s *Service) RecordPayment(ctx context.Context, id int64, amount float64, applyDeposit bool) (*Agreement, error) {
	if amount <= 0 {
		return nil, httpx.Validation("payment amount must be positive")
	}
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == StatusClosed || a.Status == StatusCancelled {
		return nil, httpx.Validation("cannot record payments on a %s agreement", a.Status)
	}
	if applyDeposit {
		if a.DepositApplied+amount > a.DepositHeld {
			return nil, httpx.Validation("deposit application exceeds held amount %.2f", a.DepositHeld)
		}
		a.DepositApplied += amount
	} else {
		a.AmountPaid += amount
	}
	s.recompute(a)
	if err := s.repo.Update(ctx, *a); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// ListLiveOverlapping exposes occupied vehicle windows for utilization math.
func (s *Service) ListLiveOverlapping(ctx context.Context, vehicleID int64, from, to time.Time) ([]Agreement, error) {
	return s.repo.ListLiveOverlapping(ctx, vehicleID, from, to)
}

// RevenueBetween totals closed-agreement revenue for a vehicle in [from, to).
func (s *Service) RevenueBetween(ctx context.Context, vehicleID int64, from, to time.Time) (float64, error) {
	return s.repo.SumRevenueByVehicle(ctx, vehicleID, from, to)
}

// OverdueScan marks live agreements past their end as due for return and
// returns them for notification. Already-marked agreements are skipped.
func (s *Service) OverdueScan(ctx context.Context) ([]Agreement, error) {
	overdue, err := s.repo.ListOverdue(ctx, s.clock.Now())
	if err != nil {
		return nil, err
	}
	var marked []Agreement
	for i := range overdue {
		a := overdue[i]
		if a.Status != StatusActive {
			continue
		}
		next, err := Transition(a.Status, EventMarkDue)
		if err != nil {
			continue
		}
		a.Status = next
		a.IsOverdue = true
		if err := s.repo.Update(ctx, a); err != nil {
			return nil, err
		}
		marked = append(marked, a)
	}
	return marked, nil
}
