package maintenance

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fleethire/fleethire/internal/platform/httpx"
)

// Handler exposes maintenance HTTP endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches maintenance routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/maintenance-jobs", h.list)
	r.Post("/maintenance-jobs", h.schedule)
	r.Get("/maintenance-jobs/{id}", h.get)
	r.Post("/maintenance-jobs/{id}/start", h.start)
	r.Post("/maintenance-jobs/{id}/complete", h.complete)
	r.Post("/maintenance-jobs/{id}/cancel", h.cancel)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	vehicleID, _ := strconv.ParseInt(r.URL.Query().Get("vehicle_id"), 10, 64)
	out, err := h.service.List(r.Context(), r.URL.Query().Get("status"), vehicleID, limit, offset)
	if err != nil {
		h.logger.Error("list maintenance jobs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"jobs": out})
}

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request) {
	var j Job
	if err := httpx.DecodeJSON(r, &j); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	created, err := h.service.Schedule(r.Context(), j)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid job id")
		return
	}
	j, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, j)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid job id")
		return
	}
	var req struct {
		Odometer float64 `json:"odometer"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	j, err := h.service.Start(r.Context(), id, req.Odometer)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, j)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid job id")
		return
	}
	var req struct {
		Cost    float64    `json:"cost"`
		NextDue *time.Time `json:"next_due"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	j, err := h.service.Complete(r.Context(), id, req.Cost, req.NextDue)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, j)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid job id")
		return
	}
	j, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, j)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
