package utilization

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fleethire/fleethire/internal/platform/httpx"
)

// Handler exposes utilization HTTP endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches utilization routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/utilization/fleet", h.fleetDashboard)
	r.Get("/utilization/vehicles/{id}", h.vehicleHistory)
}

func (h *Handler) fleetDashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.FleetDashboard(r.Context())
	if err != nil {
		h.logger.Error("fleet utilization dashboard", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) vehicleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid vehicle id")
		return
	}
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	snaps, err := h.service.VehicleHistory(r.Context(), id, days)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"snapshots": snaps})
}
