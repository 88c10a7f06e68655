package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/fleethire/fleethire/internal/agreements"
	"github.com/fleethire/fleethire/internal/audit"
	"github.com/fleethire/fleethire/internal/auth"
	"github.com/fleethire/fleethire/internal/billing"
	"github.com/fleethire/fleethire/internal/customers"
	"github.com/fleethire/fleethire/internal/fleet"
	"github.com/fleethire/fleethire/internal/leases"
	"github.com/fleethire/fleethire/internal/maintenance"
	"github.com/fleethire/fleethire/internal/observability"
	"github.com/fleethire/fleethire/internal/rateplans"
	"github.com/fleethire/fleethire/internal/reservations"
	"github.com/fleethire/fleethire/internal/shared"
	"github.com/fleethire/fleethire/internal/utilization"
	"github.com/fleethire/fleethire/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger   *slog.Logger
	Config   *Config
	Sessions *shared.SessionStore
	Metrics  *observability.Metrics
	Audit    *audit.Service

	AuthHandler        *auth.Handler
	FleetHandler       *fleet.Handler
	CustomerHandler    *customers.Handler
	RatePlanHandler    *rateplans.Handler
	ReservationHandler *reservations.Handler
	AgreementHandler   *agreements.Handler
	MaintenanceHandler *maintenance.Handler
	LeaseHandler       *leases.Handler
	BillingHandler     *billing.Handler
	UtilizationHandler *utilization.Handler
	AuditHandler       *audit.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi router with the standard middleware chain.
// Everything except login and health checks sits behind a session.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:   params.Logger,
		Config:   params.Config,
		Sessions: params.Sessions,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)
	r.Use(params.Metrics.Middleware)

	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.AuthHandler != nil {
		params.AuthHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		params.JobHandler.MountRoutes(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(RequireSession(params.Sessions, params.Logger))
		if params.Audit != nil {
			r.Use(audit.Middleware(params.Audit, params.Logger))
		}
		if params.FleetHandler != nil {
			params.FleetHandler.MountRoutes(r)
		}
		if params.CustomerHandler != nil {
			params.CustomerHandler.MountRoutes(r)
		}
		if params.RatePlanHandler != nil {
			params.RatePlanHandler.MountRoutes(r)
		}
		if params.ReservationHandler != nil {
			params.ReservationHandler.MountRoutes(r)
		}
		if params.AgreementHandler != nil {
			params.AgreementHandler.MountRoutes(r)
		}
		if params.MaintenanceHandler != nil {
			params.MaintenanceHandler.MountRoutes(r)
		}
		if params.LeaseHandler != nil {
			params.LeaseHandler.MountRoutes(r)
		}
		if params.BillingHandler != nil {
			params.BillingHandler.MountRoutes(r)
		}
		if params.UtilizationHandler != nil {
			params.UtilizationHandler.MountRoutes(r)
		}
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(r)
		}
	})

	return r
}
