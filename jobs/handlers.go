package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fleethire/fleethire/internal/agreements"
	"github.com/fleethire/fleethire/internal/billing"
	"github.com/fleethire/fleethire/internal/customers"
	"github.com/fleethire/fleethire/internal/fleet"
	jobmetrics "github.com/fleethire/fleethire/internal/jobs"
	"github.com/fleethire/fleethire/internal/leases"
	"github.com/fleethire/fleethire/internal/maintenance"
	"github.com/fleethire/fleethire/internal/notify"
	"github.com/fleethire/fleethire/internal/reservations"
	"github.com/fleethire/fleethire/internal/shared"
	"github.com/fleethire/fleethire/internal/utilization"
)

const (
	documentExpiryWindow = 30 * 24 * time.Hour
	maintenanceDueWindow = 7 * 24 * time.Hour
)

// Deps collects the services the scheduled jobs drive.
type Deps struct {
	Logger       *slog.Logger
	Reservations *reservations.Service
	Agreements   *agreements.Service
	Customers    *customers.Service
	Fleet        *fleet.Service
	Maintenance  *maintenance.Service
	Leases       *leases.Service
	Billing      *billing.Service
	Utilization  *utilization.Service
	Notifier     *notify.Notifier
	Mailer       notify.Mailer
	Metrics      *jobmetrics.Metrics
	Clock        shared.Clock
}

func (d Deps) clock() shared.Clock {
	if d.Clock != nil {
		return d.Clock
	}
	return shared.RealClock()
}

// Handlers returns the task handlers to register on the worker mux. Each
// handler runs as the system actor and reports through the job metrics.
func (d Deps) Handlers() []TaskHandler {
	wrap := func(name string, fn func(context.Context) error) TaskHandler {
		return TaskHandler{
			Type: name,
			Handler: func(ctx context.Context, _ *asynq.Task) error {
				ctx = shared.ContextWithActor(ctx, shared.SystemActor)
				return d.Metrics.Track(name).End(fn(ctx))
			},
		}
	}
	return []TaskHandler{
		{Type: TaskTypeSendEmail, Handler: d.handleSendEmail},
		wrap(TaskConflictScan, d.conflictScan),
		wrap(TaskReservationExpiry, d.reservationExpiry),
		wrap(TaskOverdueScan, d.overdueScan),
		wrap(TaskDailySnapshots, d.dailySnapshots),
		wrap(TaskExpiryAlerts, d.expiryAlerts),
		wrap(TaskMaintenanceDue, d.maintenanceDue),
		wrap(TaskRefundRetry, d.refundRetry),
		wrap(TaskLeaseInvoices, d.leaseInvoices),
		wrap(TaskWeeklyReport, d.weeklyReport),
		wrap(TaskProfitability, d.profitability),
	}
}

func (d Deps) handleSendEmail(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if d.Mailer == nil {
		d.Logger.Info("mail delivery skipped, no mailer configured",
			slog.String("subject", payload.Subject))
		return nil
	}
	return d.Metrics.Track(TaskTypeSendEmail).
		End(d.Mailer.Send(ctx, payload.To, payload.Subject, payload.Body))
}

// conflictScan re-detects double bookings that slipped past validate-time
// checks. Conflicts are reported, never auto-resolved.
func (d Deps) conflictScan(ctx context.Context) error {
	conflicts, err := d.Reservations.ConflictScan(ctx)
	if err != nil {
		return err
	}
	d.Metrics.AddConflicts(len(conflicts))
	for _, c := range conflicts {
		d.Logger.Warn("booking conflict detected",
			slog.Int64("vehicle_id", c.VehicleID),
			slog.Any("reservation_ids", c.ReservationIDs))
		d.Notifier.ReservationConflict(ctx, c.VehicleID, c.ReservationIDs)
	}
	return nil
}

func (d Deps) reservationExpiry(ctx context.Context) error {
	expired, err := d.Reservations.ExpiryScan(ctx)
	if err != nil {
		return err
	}
	if len(expired) > 0 {
		d.Logger.Info("reservations expired", slog.Int("count", len(expired)))
	}
	return nil
}

func (d Deps) overdueScan(ctx context.Context) error {
	marked, err := d.Agreements.OverdueScan(ctx)
	if err != nil {
		return err
	}
	for _, a := range marked {
		vehicle, err := d.Fleet.Get(ctx, a.VehicleID)
		if err != nil {
			d.Logger.Warn("overdue notice skipped", slog.Int64("agreement_id", a.ID), slog.Any("error", err))
			continue
		}
		customer, err := d.Customers.Get(ctx, a.CustomerID)
		if err != nil {
			d.Logger.Warn("overdue notice skipped", slog.Int64("agreement_id", a.ID), slog.Any("error", err))
			continue
		}
		d.Notifier.AgreementOverdue(ctx, customer.Email, vehicle.PlateNo, a.ID, a.EndAt)
	}
	return nil
}

func (d Deps) dailySnapshots(ctx context.Context) error {
	n, err := d.Utilization.SnapshotFleet(ctx, d.clock().Now())
	if err != nil {
		return err
	}
	d.Logger.Info("utilization snapshots computed", slog.Int("vehicles", n))
	return nil
}

func (d Deps) expiryAlerts(ctx context.Context) error {
	cutoff := d.clock().Now().Add(documentExpiryWindow)

	vehicles, err := d.Fleet.ListOperational(ctx)
	if err != nil {
		return err
	}
	for _, v := range vehicles {
		if v.InsuranceExpiry != nil && v.InsuranceExpiry.Before(cutoff) {
			d.Notifier.DocumentExpiry(ctx, "Insurance", v.PlateNo, *v.InsuranceExpiry)
		}
		if v.RegistrationExpiry != nil && v.RegistrationExpiry.Before(cutoff) {
			d.Notifier.DocumentExpiry(ctx, "Registration", v.PlateNo, *v.RegistrationExpiry)
		}
	}

	expiring, err := d.Customers.ListLicenseExpiring(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, c := range expiring {
		if c.LicenseExpiry != nil {
			d.Notifier.DocumentExpiry(ctx, "Driving license", c.Name, *c.LicenseExpiry)
		}
	}
	return nil
}

func (d Deps) maintenanceDue(ctx context.Context) error {
	cutoff := d.clock().Now().Add(maintenanceDueWindow)
	vehicles, err := d.Fleet.ListOperational(ctx)
	if err != nil {
		return err
	}
	for _, v := range vehicles {
		if v.NextServiceDue != nil && v.NextServiceDue.Before(cutoff) {
			d.Notifier.MaintenanceDue(ctx, v.PlateNo, *v.NextServiceDue)
		}
	}
	due, err := d.Maintenance.DueScan(ctx, maintenanceDueWindow)
	if err != nil {
		return err
	}
	if len(due) > 0 {
		d.Logger.Info("scheduled maintenance jobs due", slog.Int("count", len(due)))
	}
	return nil
}

func (d Deps) refundRetry(ctx context.Context) error {
	n, err := d.Billing.RetryPendingRefunds(ctx)
	if n > 0 {
		d.Logger.Info("deposit refunds completed", slog.Int("count", n))
	}
	return err
}

// leaseInvoices runs daily; the lease service only bills contracts whose
// billing day is today, and schedule rows invoice at most once.
func (d Deps) leaseInvoices(ctx context.Context) error {
	n, err := d.Leases.GenerateDueInvoices(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		d.Logger.Info("lease invoices issued", slog.Int("count", n))
	}
	return nil
}

func (d Deps) weeklyReport(ctx context.Context) error {
	_, body, err := d.Utilization.WeeklyReport(ctx)
	if err != nil {
		return err
	}
	d.Notifier.WeeklyUtilizationReport(ctx, body)
	return nil
}

// profitability recomputes the calendar month that just ended.
func (d Deps) profitability(ctx context.Context) error {
	lastMonth := d.clock().Now().AddDate(0, 0, -1)
	n, err := d.Utilization.RecomputeProfitability(ctx, lastMonth)
	if err != nil {
		return err
	}
	d.Logger.Info("vehicle profitability recomputed", slog.Int("vehicles", n))
	return nil
}

// DefaultCron wires the standard cadences to their tasks.
func DefaultCron() []CronRegistration {
	return []CronRegistration{
		{Spec: "0 * * * *", Task: NewScanTask(TaskConflictScan)},
		{Spec: "5 * * * *", Task: NewScanTask(TaskOverdueScan)},
		{Spec: "10 * * * *", Task: NewScanTask(TaskReservationExpiry)},
		{Spec: "30 2 * * *", Task: NewScanTask(TaskDailySnapshots)},
		{Spec: "0 8 * * *", Task: NewScanTask(TaskExpiryAlerts)},
		{Spec: "15 8 * * *", Task: NewScanTask(TaskMaintenanceDue)},
		{Spec: "45 2 * * *", Task: NewScanTask(TaskRefundRetry)},
		{Spec: "0 1 * * *", Task: NewScanTask(TaskLeaseInvoices)},
		{Spec: "0 6 * * 1", Task: NewScanTask(TaskWeeklyReport)},
		{Spec: "0 3 1 * *", Task: NewScanTask(TaskProfitability)},
	}
}
