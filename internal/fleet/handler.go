package fleet

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fleethire/fleethire/internal/docscan"
	"github.com/fleethire/fleethire/internal/platform/httpx"
)

// ScannerPort decodes registration paperwork during vehicle intake.
type ScannerPort interface {
	Analyze(ctx context.Context, filename string, document []byte) (*docscan.Fields, error)
}

// Handler exposes fleet HTTP endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	scanner ScannerPort
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, scanner ScannerPort) *Handler {
	return &Handler{logger: logger, service: service, scanner: scanner}
}

// MountRoutes attaches fleet routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/vehicles", h.list)
	r.Post("/vehicles", h.register)
	r.Post("/vehicles/intake-scan", h.intakeScan)
	r.Get("/vehicles/search", h.search)
	r.Get("/vehicles/{id}", h.get)
	r.Get("/vehicles/{id}/availability", h.availability)
	r.Get("/vehicles/{id}/status-log", h.statusLog)
	r.Post("/vehicles/{id}/status", h.updateStatus)
	r.Post("/vehicles/{id}/odometer", h.updateOdometer)
	r.Post("/vehicles/{id}/damage", h.addDamage)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	vehicles, err := h.service.List(r.Context(), r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		h.logger.Error("list vehicles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"vehicles": vehicles})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var v Vehicle
	if err := httpx.DecodeJSON(r, &v); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	created, err := h.service.Register(r.Context(), v)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid vehicle id")
		return
	}
	vehicle, err := h.service.Get(r.Context(), id)
	if err != nil {
		if err == ErrNotFound {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("get vehicle", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, vehicle)
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid vehicle id")
		return
	}
	start, end, err := parseWindow(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	available, err := h.service.CheckAvailability(r.Context(), id, start, end)
	if err != nil {
		if err == ErrNotFound {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("check availability", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"vehicle_id": id, "available": available})
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseWindow(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	criteria := SearchCriteria{
		Start: start,
		End:   end,
		Make:  r.URL.Query().Get("make"),
		Model: r.URL.Query().Get("model"),
	}
	if branch := r.URL.Query().Get("branch_id"); branch != "" {
		id, err := strconv.ParseInt(branch, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid branch_id")
			return
		}
		criteria.BranchID = &id
	}
	vehicles, err := h.service.SearchAvailable(r.Context(), criteria)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"vehicles": vehicles})
}

func (h *Handler) statusLog(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid vehicle id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.service.StatusHistory(r.Context(), id, limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid vehicle id")
		return
	}
	var req struct {
		Status VehicleStatus `json:"status"`
		Reason string        `json:"reason"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil || req.Status == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "status is required")
		return
	}
	if err := h.service.UpdateStatus(r.Context(), id, req.Status, req.Reason, "", 0); err != nil {
		if err == ErrNotFound {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"vehicle_id": id, "status": req.Status})
}

func (h *Handler) updateOdometer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid vehicle id")
		return
	}
	var req struct {
		Reading float64 `json:"reading"`
		Source  string  `json:"source"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if req.Source == "" {
		req.Source = "Manual"
	}
	if err := h.service.UpdateOdometer(r.Context(), id, req.Reading, req.Source); err != nil {
		if err == ErrNotFound {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"vehicle_id": id, "odometer": req.Reading})
}

func (h *Handler) addDamage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid vehicle id")
		return
	}
	var req struct {
		Description   string  `json:"description"`
		Severity      string  `json:"severity"`
		EstimatedCost float64 `json:"estimated_cost"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.service.AddDamageLog(r.Context(), id, req.Description, req.Severity, req.EstimatedCost); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"vehicle_id": id})
}

const maxScanUploadBytes = 10 << 20

// intakeScan decodes an uploaded registration document and returns the
// extracted VIN, make, model and year as a registration prefill. Nothing is
// persisted; the caller reviews the fields and submits a normal registration.
func (h *Handler) intakeScan(w http.ResponseWriter, r *http.Request) {
	if h.scanner == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "document scanning is not configured")
		return
	}
	if err := r.ParseMultipartForm(maxScanUploadBytes); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "expected multipart form with a document field")
		return
	}
	file, header, err := r.FormFile("document")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "missing document upload")
		return
	}
	defer func() {
		_ = file.Close()
	}()
	payload, err := io.ReadAll(io.LimitReader(file, maxScanUploadBytes))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "could not read document upload")
		return
	}

	fields, err := h.scanner.Analyze(r.Context(), header.Filename, payload)
	if err != nil {
		h.logger.Warn("intake scan failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", "document analysis failed")
		return
	}
	prefill := Vehicle{
		Make:  fields.Make,
		Model: fields.Model,
		Year:  fields.Year,
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"fields": fields, "prefill": prefill})
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func parseWindow(r *http.Request) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
	if err != nil {
		return time.Time{}, time.Time{}, httpx.Validation("start must be RFC3339")
	}
	end, err := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
	if err != nil {
		return time.Time{}, time.Time{}, httpx.Validation("end must be RFC3339")
	}
	return start, end, nil
}
