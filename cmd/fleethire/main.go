package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/fleethire/fleethire/internal/agreements"
	"github.com/fleethire/fleethire/internal/app"
	"github.com/fleethire/fleethire/internal/audit"
	"github.com/fleethire/fleethire/internal/auth"
	"github.com/fleethire/fleethire/internal/billing"
	"github.com/fleethire/fleethire/internal/customers"
	"github.com/fleethire/fleethire/internal/docscan"
	"github.com/fleethire/fleethire/internal/fleet"
	"github.com/fleethire/fleethire/internal/leases"
	"github.com/fleethire/fleethire/internal/maintenance"
	"github.com/fleethire/fleethire/internal/observability"
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
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessions := shared.NewSessionStore(redisClient, cfg.SessionTTL)
	clock := shared.RealClock()

	var customerScanner customers.ScannerPort
	var fleetScanner fleet.ScannerPort
	if cfg.DocScanEndpoint != "" {
		scanner := docscan.NewClient(cfg.DocScanEndpoint, cfg.DocScanAPIKey, cfg.DocScanTimeout)
		if err := scanner.Ping(ctx); err != nil {
			logger.Warn("document scanner unreachable", slog.Any("error", err))
		}
		customerScanner = scanner
		fleetScanner = scanner
	}

	authService := auth.NewService(auth.NewRepository(dbpool))
	authHandler := auth.NewHandler(logger, authService, sessions)

	fleetService := fleet.NewService(fleet.NewRepository(dbpool), clock)
	customerService := customers.NewService(customers.NewRepository(dbpool), clock)
	planService := rateplans.NewService(rateplans.NewRepository(dbpool))

	var gateway billing.PayoutGateway
	if cfg.RazorpayKeyID != "" {
		gateway = billing.NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
	}
	billingService := billing.NewService(logger, billing.NewRepository(dbpool), gateway, customerService, clock)

	snapshots := &snapshotBridge{}
	agreementService := agreements.NewService(logger, agreements.NewRepository(dbpool),
		fleetService, customerService, planService, billingService, snapshots, clock,
		agreements.PricingConfig{
			FuelTankCapacityL: cfg.FuelTankCapacityL,
			FuelPricePerL:     cfg.FuelPricePerL,
			LateFeeHourlyPct:  cfg.LateFeeHourlyPct,
		})

	reservationService := reservations.NewService(logger, reservations.NewRepository(dbpool),
		fleetService, customerService, planService, agreementService, clock)

	maintenanceService := maintenance.NewService(logger, maintenance.NewRepository(dbpool), fleetService, clock)
	leaseService := leases.NewService(logger, leases.NewRepository(dbpool), fleetService, billingService, clock)

	utilizationCache := utilization.NewCache(redisClient, 5*time.Minute)
	utilizationService := utilization.NewService(logger, utilization.NewRepository(dbpool),
		fleetService, agreementService, maintenanceService, utilizationCache, clock)
	snapshots.svc = utilizationService

	auditService := audit.NewService(logger, audit.NewRepository(dbpool), clock)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Sessions:           sessions,
		Metrics:            observability.NewMetrics(),
		Audit:              auditService,
		AuditHandler:       audit.NewHandler(logger, auditService),
		AuthHandler:        authHandler,
		FleetHandler:       fleet.NewHandler(logger, fleetService, fleetScanner),
		CustomerHandler:    customers.NewHandler(logger, customerService, customerScanner),
		RatePlanHandler:    rateplans.NewHandler(logger, planService),
		ReservationHandler: reservations.NewHandler(logger, reservationService),
		AgreementHandler:   agreements.NewHandler(logger, agreementService),
		MaintenanceHandler: maintenance.NewHandler(logger, maintenanceService),
		LeaseHandler:       leases.NewHandler(logger, leaseService),
		BillingHandler:     billing.NewHandler(logger, billingService),
		UtilizationHandler: utilization.NewHandler(logger, utilizationService),
		JobHandler:         jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
