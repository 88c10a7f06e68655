package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fleethire/fleethire/internal/agreements"
	"github.com/fleethire/fleethire/internal/app"
	"github.com/fleethire/fleethire/internal/billing"
	"github.com/fleethire/fleethire/internal/customers"
	"github.com/fleethire/fleethire/internal/fleet"
	jobmetrics "github.com/fleethire/fleethire/internal/jobs"
	"github.com/fleethire/fleethire/internal/leases"
	"github.com/fleethire/fleethire/internal/maintenance"
	"github.com/fleethire/fleethire/internal/notify"
	"github.com/fleethire/fleethire/internal/platform/cache"
	"github.com/fleethire/fleethire/internal/platform/db"
	"github.com/fleethire/fleethire/internal/rateplans"
	"github.com/fleethire/fleethire/internal/reservations"
	"github.com/fleethire/fleethire/internal/shared"
	"github.com/fleethire/fleethire/internal/utilization"
	"github.com/fleethire/fleethire/jobs"
)

// snapshotBridge defers the utilization wiring: agreements need a snapshot
// collaborator before the utilization service exists.
type snapshotBridge struct {
	svc *utilization.Service
}

func (b *snapshotBridge) RecordAgreementClosure(ctx context.Context, vehicleID int64, closedAt time.Time, revenue float64) error {
	if b.svc == nil {
		return nil
	}
	return b.svc.RecordAgreementClosure(ctx, vehicleID, closedAt, revenue)
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// The worker cannot run without its queue backend, so a dead Redis is fatal
	// here even though the API degrades gracefully.
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	clock := shared.RealClock()

	fleetService := fleet.NewService(fleet.NewRepository(pool), clock)
	customerService := customers.NewService(customers.NewRepository(pool), clock)
	planService := rateplans.NewService(rateplans.NewRepository(pool))

	var gateway billing.PayoutGateway
	if cfg.RazorpayKeyID != "" {
		gateway = billing.NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
	}
	billingService := billing.NewService(logger, billing.NewRepository(pool), gateway, customerService, clock)

	snapshots := &snapshotBridge{}
	agreementService := agreements.NewService(logger, agreements.NewRepository(pool),
		fleetService, customerService, planService, billingService, snapshots, clock,
		agreements.PricingConfig{
			FuelTankCapacityL: cfg.FuelTankCapacityL,
			FuelPricePerL:     cfg.FuelPricePerL,
			LateFeeHourlyPct:  cfg.LateFeeHourlyPct,
		})

	reservationService := reservations.NewService(logger, reservations.NewRepository(pool),
		fleetService, customerService, planService, agreementService, clock)

	maintenanceService := maintenance.NewService(logger, maintenance.NewRepository(pool), fleetService, clock)
	leaseService := leases.NewService(logger, leases.NewRepository(pool), fleetService, billingService, clock)

	utilizationCache := utilization.NewCache(redisClient, 5*time.Minute)
	utilizationService := utilization.NewService(logger, utilization.NewRepository(pool),
		fleetService, agreementService, maintenanceService, utilizationCache, clock)
	snapshots.svc = utilizationService

	enqueuer := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := enqueuer.Close(); err != nil {
			logger.Warn("task client close", slog.Any("error", err))
		}
	}()

	deps := jobs.Deps{
		Logger:       logger,
		Reservations: reservationService,
		Agreements:   agreementService,
		Customers:    customerService,
		Fleet:        fleetService,
		Maintenance:  maintenanceService,
		Leases:       leaseService,
		Billing:      billingService,
		Utilization:  utilizationService,
		Notifier:     notify.NewNotifier(logger, enqueuer, cfg.ManagerEmails),
		Mailer:       notify.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom),
		Metrics:      jobmetrics.NewMetrics(nil),
		Clock:        clock,
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers:  deps.Handlers(),
		Cron:      jobs.DefaultCron(),
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
