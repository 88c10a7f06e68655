package leases

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fleethire/fleethire/internal/billing"
	"github.com/fleethire/fleethire/internal/fleet"
	"github.com/fleethire/fleethire/internal/platform/httpx"
	"github.com/fleethire/fleethire/internal/shared"
)

// RepositoryPort defines data access methods for lease contracts.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (*Contract, error)
	Create(ctx context.Context, c Contract) (int64, error)
	Update(ctx context.Context, c Contract) error
	List(ctx context.Context, status string, limit, offset int) ([]Contract, error)
	ListActive(ctx context.Context) ([]Contract, error)
	MarkScheduleRowInvoiced(ctx context.Context, rowID, invoiceID int64) (bool, error)
}

// FleetPort is the slice of the fleet service leases drive.
type FleetPort interface {
	Get(ctx context.Context, id int64) (*fleet.Vehicle, error)
	UpdateStatus(ctx context.Context, vehicleID int64, status fleet.VehicleStatus, reason, refType string, refID int64) error
}

// InvoicePort issues the monthly lease invoices.
type InvoicePort interface {
	CreateLeaseInvoice(ctx context.Context, leaseID, customerID int64, amount float64, periodLabel string) (*billing.Invoice, error)
}

// Service handles lease contracts and their billing schedules.
type Service struct {
	logger  *slog.Logger
	repo    RepositoryPort
	fleet   FleetPort
	billing InvoicePort
	clock   shared.Clock
}

func NewService(logger *slog.Logger, repo RepositoryPort, fleetSvc FleetPort, billingSvc InvoicePort, clock shared.Clock) *Service {
	if clock == nil {
		clock = shared.RealClock()
	}
	return &Service{logger: logger, repo: repo, fleet: fleetSvc, billing: billingSvc, clock: clock}
}

// Create activates a lease, moves the vehicle to Leased and materializes the
// full billing schedule up front.
func (s *Service) Create(ctx context.Context, c Contract) (*Contract, error) {
	if c.VehicleID == 0 || c.CustomerID == 0 {
		return nil, httpx.Validation("vehicle and customer are required")
	}
	if c.MonthlyPayment <= 0 {
		return nil, httpx.Validation("monthly payment must be positive")
	}
	if c.TermMonths <= 0 {
		return nil, httpx.Validation("term must be at least one month")
	}
	if c.BillingDay < 1 || c.BillingDay > 28 {
		return nil, httpx.Validation("billing day must be between 1 and 28")
	}
	vehicle, err := s.fleet.Get(ctx, c.VehicleID)
	if err != nil {
		return nil, err
	}
	if !vehicle.Status.Available() {
		return nil, httpx.Validation("vehicle %s is %s", vehicle.PlateNo, vehicle.Status)
	}

	if c.StartDate.IsZero() {
		c.StartDate = s.clock.Now()
	}
	c.Status = ContractActive
	c.Schedule = buildSchedule(c)

	id, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("create lease contract: %w", err)
	}
	if err := s.fleet.UpdateStatus(ctx, c.VehicleID, fleet.StatusLeased,
		"lease started", "Lease Contract", id); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// buildSchedule lays out one row per month starting on the billing day
// following the start date.
func buildSchedule(c Contract) []ScheduleRow {
	rows := make([]ScheduleRow, 0, c.TermMonths)
	first := time.Date(c.StartDate.Year(), c.StartDate.Month(), c.BillingDay, 0, 0, 0, 0, c.StartDate.Location())
	if !first.After(c.StartDate) {
		first = first.AddDate(0, 1, 0)
	}
	for i := 0; i < c.TermMonths; i++ {
		start := first.AddDate(0, i, 0)
		rows = append(rows, ScheduleRow{
			PeriodStart: start,
			PeriodEnd:   start.AddDate(0, 1, 0),
			Amount:      c.MonthlyPayment,
			Status:      SchedulePending,
		})
	}
	return rows
}

func (s *Service) Get(ctx context.Context, id int64) (*Contract, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]Contract, error) {
	return s.repo.List(ctx, status, limit, offset)
}

// RecordPayment applies a lessee payment. A lease-to-own contract paid in
// full transfers ownership and retires the vehicle from the fleet.
func (s *Service) RecordPayment(ctx context.Context, id int64, amount float64) (*Contract, error) {
	if amount <= 0 {
		return nil, httpx.Validation("payment amount must be positive")
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != ContractActive {
		return nil, httpx.Validation("contract is %s, payments only apply to active contracts", c.Status)
	}
	c.AmountPaid += amount
	if c.LeaseToOwn && c.Outstanding() <= 0 {
		c.Status = ContractTransferred
		if err := s.fleet.UpdateStatus(ctx, c.VehicleID, fleet.StatusSold,
			"ownership transferred", "Lease Contract", c.ID); err != nil {
			return nil, err
		}
	}
	if err := s.repo.Update(ctx, *c); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Cancel ends a lease early and returns the vehicle to the pool.
func (s *Service) Cancel(ctx context.Context, id int64) (*Contract, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != ContractActive {
		return nil, httpx.Validation("contract is %s and cannot be cancelled", c.Status)
	}
	c.Status = ContractCancelled
	if err := s.repo.Update(ctx, *c); err != nil {
		return nil, err
	}
	if err := s.fleet.UpdateStatus(ctx, c.VehicleID, fleet.StatusAvailable,
		"lease cancelled", "Lease Contract", c.ID); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// GenerateDueInvoices materializes the first pending, due schedule row of
// every active contract whose billing day is today. Safe to re-run: rows
// flip to Invoiced exactly once.
func (s *Service) GenerateDueInvoices(ctx context.Context) (int, error) {
	now := s.clock.Now()
	contracts, err := s.repo.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	issued := 0
	for _, c := range contracts {
		if c.BillingDay != now.Day() {
			continue
		}
		for _, row := range c.Schedule {
			if row.Status != SchedulePending || row.PeriodStart.After(now) {
				continue
			}
			label := row.PeriodStart.Format("Jan 2006")
			inv, err := s.billing.CreateLeaseInvoice(ctx, c.ID, c.CustomerID, row.Amount, label)
			if err != nil {
				s.logger.Warn("lease invoice failed",
					slog.Int64("contract_id", c.ID), slog.Any("error", err))
				break
			}
			marked, err := s.repo.MarkScheduleRowInvoiced(ctx, row.ID, inv.ID)
			if err != nil {
				return issued, err
			}
			if marked {
				issued++
			}
			break
		}
	}
	return issued, nil
}
