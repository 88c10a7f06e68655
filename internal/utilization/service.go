package utilization

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/fleethire/fleethire/internal/agreements"
	"github.com/fleethire/fleethire/internal/fleet"
	"github.com/fleethire/fleethire/internal/shared"
)

// RepositoryPort defines data access methods for snapshots.
type RepositoryPort interface {
	Upsert(ctx context.Context, s Snapshot) error
	Get(ctx context.Context, vehicleID int64, date time.Time) (*Snapshot, error)
	ListByVehicle(ctx context.Context, vehicleID int64, from, to time.Time) ([]Snapshot, error)
	AggregateRange(ctx context.Context, from, to time.Time) ([]VehicleWeekly, error)
}

// FleetPort lists vehicles and stores profitability results.
type FleetPort interface {
	ListOperational(ctx context.Context) ([]fleet.Vehicle, error)
	RecordProfitability(ctx context.Context, vehicleID int64, revenue, maintenanceCost float64) error
}

// AgreementPort exposes occupied windows and realized revenue.
type AgreementPort interface {
	ListLiveOverlapping(ctx context.Context, vehicleID int64, from, to time.Time) ([]agreements.Agreement, error)
	RevenueBetween(ctx context.Context, vehicleID int64, from, to time.Time) (float64, error)
}

// MaintenancePort reports downtime and workshop cost.
type MaintenancePort interface {
	DowntimeOn(ctx context.Context, vehicleID int64, day time.Time) (float64, error)
	MonthlyCost(ctx context.Context, vehicleID int64, month time.Time) (float64, error)
}

const hoursPerDay = 24.0

// snapshotConcurrency caps the daily fan-out across the fleet.
const snapshotConcurrency = 8

// Service computes utilization snapshots and aggregates.
type Service struct {
	logger      *slog.Logger
	repo        RepositoryPort
	fleet       FleetPort
	agreements  AgreementPort
	maintenance MaintenancePort
	cache       *Cache
	clock       shared.Clock
}

func NewService(logger *slog.Logger, repo RepositoryPort, fleetSvc FleetPort,
	agreementSvc AgreementPort, maintenanceSvc MaintenancePort, cache *Cache, clock shared.Clock) *Service {
	if clock == nil {
		clock = shared.RealClock()
	}
	return &Service{
		logger:      logger,
		repo:        repo,
		fleet:       fleetSvc,
		agreements:  agreementSvc,
		maintenance: maintenanceSvc,
		cache:       cache,
		clock:       clock,
	}
}

func dayBounds(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return start, start.AddDate(0, 0, 1)
}

// SnapshotVehicle recomputes the utilization record for one vehicle and day.
// Re-running for the same day overwrites the previous record.
func (s *Service) SnapshotVehicle(ctx context.Context, vehicleID int64, day time.Time) (*Snapshot, error) {
	dayStart, dayEnd := dayBounds(day)

	live, err := s.agreements.ListLiveOverlapping(ctx, vehicleID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("utilization: list agreements: %w", err)
	}
	var rented float64
	for _, a := range live {
		from := a.StartAt
		if from.Before(dayStart) {
			from = dayStart
		}
		to := a.EndAt
		if a.ActualReturnAt != nil {
			to = *a.ActualReturnAt
		}
		if to.After(dayEnd) {
			to = dayEnd
		}
		if to.After(from) {
			rented += to.Sub(from).Hours()
		}
	}
	if rented > hoursPerDay {
		rented = hoursPerDay
	}

	downtime, err := s.maintenance.DowntimeOn(ctx, vehicleID, dayStart)
	if err != nil {
		return nil, fmt.Errorf("utilization: downtime: %w", err)
	}
	if rented+downtime > hoursPerDay {
		downtime = hoursPerDay - rented
	}
	idle := hoursPerDay - rented - downtime
	if idle < 0 {
		idle = 0
	}

	revenue, err := s.agreements.RevenueBetween(ctx, vehicleID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("utilization: revenue: %w", err)
	}

	snap := Snapshot{
		VehicleID:        vehicleID,
		Date:             dayStart,
		RentedHours:      rented,
		IdleHours:        idle,
		MaintenanceHours: downtime,
		UtilizationPct:   rented / hoursPerDay * 100,
		Revenue:          revenue,
	}
	if err := s.repo.Upsert(ctx, snap); err != nil {
		return nil, fmt.Errorf("utilization: upsert snapshot: %w", err)
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("utilization cache invalidation failed", slog.Any("error", err))
	}
	return s.repo.Get(ctx, vehicleID, dayStart)
}

// SnapshotFleet computes the daily snapshot for every non-deactivated
// vehicle. Returns the number of vehicles processed.
func (s *Service) SnapshotFleet(ctx context.Context, day time.Time) (int, error) {
	vehicles, err := s.fleet.ListOperational(ctx)
	if err != nil {
		return 0, err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(snapshotConcurrency)
	for _, v := range vehicles {
		g.Go(func() error {
			_, err := s.SnapshotVehicle(ctx, v.ID, day)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(vehicles), nil
}

// RecordAgreementClosure refreshes the closing day's snapshot so realized
// revenue shows up without waiting for the nightly run.
func (s *Service) RecordAgreementClosure(ctx context.Context, vehicleID int64, closedAt time.Time, revenue float64) error {
	snap, err := s.SnapshotVehicle(ctx, vehicleID, closedAt)
	if err != nil {
		return err
	}
	s.logger.Info("agreement closure recorded",
		slog.Int64("vehicle_id", vehicleID),
		slog.Float64("agreement_revenue", revenue),
		slog.Float64("day_revenue", snap.Revenue))
	return nil
}

// VehicleHistory returns a vehicle's snapshots over the trailing number of days.
func (s *Service) VehicleHistory(ctx context.Context, vehicleID int64, days int) ([]Snapshot, error) {
	if days <= 0 {
		days = 7
	}
	_, to := dayBounds(s.clock.Now())
	return s.repo.ListByVehicle(ctx, vehicleID, to.AddDate(0, 0, -days), to)
}

// FleetDashboard returns the trailing-week fleet summary, served from the
// Redis cache when warm.
func (s *Service) FleetDashboard(ctx context.Context) (*FleetSummary, error) {
	var summary FleetSummary
	err := s.cache.FetchJSON(ctx, dashboardKey, &summary, func(ctx context.Context) (interface{}, error) {
		return s.buildSummary(ctx)
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *Service) buildSummary(ctx context.Context) (*FleetSummary, error) {
	_, to := dayBounds(s.clock.Now())
	from := to.AddDate(0, 0, -7)
	rows, err := s.repo.AggregateRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary := FleetSummary{From: from, To: to, VehicleCount: len(rows), Vehicles: rows}
	for _, w := range rows {
		summary.AvgUtilization += w.AvgUtilization
		summary.TotalRevenue += w.Revenue
	}
	if len(rows) > 0 {
		summary.AvgUtilization /= float64(len(rows))
	}
	return &summary, nil
}

// WeeklyReport aggregates the last 7 days per vehicle, ranked by average
// utilization, and renders the text mailed to managers.
func (s *Service) WeeklyReport(ctx context.Context) ([]VehicleWeekly, string, error) {
	summary, err := s.buildSummary(ctx)
	if err != nil {
		return nil, "", err
	}
	p := message.NewPrinter(language.English)
	var b strings.Builder
	p.Fprintf(&b, "Weekly fleet utilization %s to %s\n",
		summary.From.Format("2006-01-02"), summary.To.AddDate(0, 0, -1).Format("2006-01-02"))
	p.Fprintf(&b, "Fleet average %.1f%%, total revenue %.2f\n\n",
		summary.AvgUtilization, summary.TotalRevenue)
	for i, w := range summary.Vehicles {
		p.Fprintf(&b, "%2d. %-12s %5.1f%%  rented %6.1fh  revenue %10.2f\n",
			i+1, w.PlateNo, w.AvgUtilization, w.RentedHours, w.Revenue)
	}
	return summary.Vehicles, b.String(), nil
}

// RecomputeProfitability stores revenue minus maintenance cost per vehicle
// for the calendar month containing the given instant.
func (s *Service) RecomputeProfitability(ctx context.Context, month time.Time) (int, error) {
	monthStart := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, month.Location())
	vehicles, err := s.fleet.ListOperational(ctx)
	if err != nil {
		return 0, err
	}
	updated := 0
	for _, v := range vehicles {
		revenue, err := s.agreements.RevenueBetween(ctx, v.ID, monthStart, monthStart.AddDate(0, 1, 0))
		if err != nil {
			return updated, err
		}
		cost, err := s.maintenance.MonthlyCost(ctx, v.ID, monthStart)
		if err != nil {
			return updated, err
		}
		if err := s.fleet.RecordProfitability(ctx, v.ID, revenue, cost); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}
