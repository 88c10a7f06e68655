package customers

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

// ScannerPort extracts structured fields from an uploaded identity document.
type ScannerPort interface {
	Analyze(ctx context.Context, filename string, document []byte) (*docscan.Fields, error)
}

// Handler exposes customer HTTP endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	scanner ScannerPort
}

func NewHandler(logger *slog.Logger, service *Service, scanner ScannerPort) *Handler {
	return &Handler{logger: logger, service: service, scanner: scanner}
}

// MountRoutes attaches customer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/customers", h.list)
	r.Post("/customers", h.register)
	r.Get("/customers/{id}", h.get)
	r.Put("/customers/{id}", h.update)
	r.Get("/customers/{id}/eligibility", h.eligibility)
	r.Post("/customers/{id}/blacklist", h.blacklist)
	r.Delete("/customers/{id}/blacklist", h.unblacklist)
	r.Post("/customers/{id}/license-scan", h.licenseScan)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	out, err := h.service.List(r.Context(), r.URL.Query().Get("q"), limit, offset)
	if err != nil {
		h.logger.Error("list customers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"customers": out})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var c Customer
	if err := httpx.DecodeJSON(r, &c); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	created, err := h.service.Register(r.Context(), c)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid customer id")
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid customer id")
		return
	}
	var c Customer
	if err := httpx.DecodeJSON(r, &c); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	c.ID = id
	updated, err := h.service.Update(r.Context(), c)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) eligibility(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid customer id")
		return
	}
	pickup := time.Now()
	if raw := r.URL.Query().Get("pickup_at"); raw != "" {
		pickup, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "pickup_at must be RFC3339")
			return
		}
	}
	var driverID *int64
	if raw := r.URL.Query().Get("driver_id"); raw != "" {
		did, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "driver_id must be numeric")
			return
		}
		driverID = &did
	}
	out, err := h.service.CheckEligibility(r.Context(), id, driverID, pickup)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) blacklist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid customer id")
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.service.Blacklist(r.Context(), id, req.Reason); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "blacklisted"})
}

func (h *Handler) unblacklist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid customer id")
		return
	}
	if err := h.service.Unblacklist(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

const maxScanUploadBytes = 10 << 20

// licenseScan runs an uploaded driving license through the document scanner
// and copies any extracted license fields onto the customer record. The scan
// is best effort; the record keeps its current values when extraction fails.
func (h *Handler) licenseScan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid customer id")
		return
	}
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
		h.logger.Warn("license scan failed", slog.Int64("customer_id", id), slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", "document analysis failed")
		return
	}

	customer, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if fields.LicenseNumber != "" {
		customer.LicenseNo = fields.LicenseNumber
	}
	if fields.ExpiryDate != "" {
		if expiry, perr := time.Parse("2006-01-02", fields.ExpiryDate); perr == nil {
			customer.LicenseExpiry = &expiry
		} else {
			h.logger.Warn("unparseable license expiry", slog.String("value", fields.ExpiryDate))
		}
	}
	updated, err := h.service.Update(r.Context(), *customer)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"fields": fields, "customer": updated})
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
