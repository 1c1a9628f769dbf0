package scan_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-scanning/internal/logger"
	"ms-scanning/internal/models"
	"ms-scanning/internal/scans/qr"
	scans "ms-scanning/internal/scans/service"
	"ms-scanning/internal/sse"
	"ms-scanning/internal/utils"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	msgRecorded  = "Registro exitoso"
	msgDuplicate = "Registro ya procesado"
	msgNotFound  = "QR no válido"
	msgInternal  = "Error interno del servidor"
	msgBadKey    = "client_event_id no válido"

	maxBulkBodyBytes = 1 << 20
)

// Pinger reports store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	ScanService    *scans.ScanService
	CounterService *scans.CounterService
	QR             *qr.Generator
	Store          Pinger
	Events         *sse.CounterEmitter
	Logger         *logger.Logger

	// DuplicateConflict answers repeated idempotency keys with 409 instead
	// of 200.
	DuplicateConflict bool
}

type ScanResponse struct {
	Message   string `json:"message"`
	Total     int64  `json:"total"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// sendJSONResponse is a helper function to send JSON responses
func sendJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func sendDetail(w http.ResponseWriter, status int, detail string) {
	sendJSONResponse(w, status, utils.DetailResponse{Detail: detail})
}

// Scan handles GET /s/{token}. The idempotency key comes from the
// Idempotency-Key header, then the client_event_id query parameter; without
// either a fresh key is generated and echoed back.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	key := r.Header.Get(IdempotencyHeader)
	if key == "" {
		key = r.URL.Query().Get("client_event_id")
	}

	res, err := h.ScanService.Scan(r.Context(), scans.ScanRequest{Token: token, ClientEventID: key})
	switch {
	case err == nil:
	case errors.Is(err, scans.ErrSlotNotFound):
		sendDetail(w, http.StatusNotFound, msgNotFound)
		return
	case errors.Is(err, scans.ErrInvalidClientEventID):
		sendDetail(w, http.StatusBadRequest, msgBadKey)
		return
	default:
		h.Logger.Error("SCAN", fmt.Sprintf("scan of token %q failed: %v", token, err))
		sendDetail(w, http.StatusInternalServerError, msgInternal)
		return
	}

	w.Header().Set(IdempotencyHeader, res.ClientEventID)
	if res.Duplicate {
		status := http.StatusOK
		if h.DuplicateConflict {
			status = http.StatusConflict
		}
		sendJSONResponse(w, status, ScanResponse{Message: msgDuplicate, Total: res.Total, Duplicate: true})
		return
	}
	sendJSONResponse(w, http.StatusOK, ScanResponse{Message: msgRecorded, Total: res.Total})
}

type bulkRequest struct {
	Scans []models.OfflineScanMessage `json:"scans"`
}

type bulkResponse struct {
	Success bool                   `json:"success"`
	Summary scans.BulkSummary      `json:"summary"`
	Results []scans.BulkItemResult `json:"results"`
}

// BulkSync handles POST /api/scans/bulk.
func (h *Handler) BulkSync(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBulkBodyBytes)

	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONResponse(w, http.StatusBadRequest, utils.ErrorResponse("Invalid input", "request body must be a JSON object with a scans array"))
		return
	}

	out, err := h.ScanService.SyncBatch(r.Context(), req.Scans)
	switch {
	case errors.Is(err, scans.ErrEmptyBatch):
		sendJSONResponse(w, http.StatusBadRequest, utils.ErrorResponse("Invalid input", err.Error()))
		return
	case errors.Is(err, scans.ErrBatchTooLarge):
		sendJSONResponse(w, http.StatusBadRequest, utils.ErrorResponse("Too many scans",
			fmt.Sprintf("Maximum %d scans per request", h.ScanService.MaxBulkItems())))
		return
	case err != nil:
		h.Logger.Error("SYNC", fmt.Sprintf("bulk sync failed: %v", err))
		sendJSONResponse(w, http.StatusInternalServerError, utils.ErrorResponse("Server error", "Failed to sync scans"))
		return
	}

	sendJSONResponse(w, http.StatusOK, bulkResponse{Success: true, Summary: out.Summary, Results: out.Results})
}

// DayCounters handles GET /api/counters?day=YYYY-MM-DD, defaulting to today.
func (h *Handler) DayCounters(w http.ResponseWriter, r *http.Request) {
	day := h.ScanService.Today()
	if raw := r.URL.Query().Get("day"); raw != "" {
		parsed, err := models.ParseDay(raw)
		if err != nil {
			sendJSONResponse(w, http.StatusBadRequest, utils.ErrorResponse("Invalid day", "day must be YYYY-MM-DD"))
			return
		}
		day = parsed
	}

	counters, err := h.CounterService.CountersForDay(r.Context(), day)
	if err != nil {
		h.Logger.Error("COUNTERS", fmt.Sprintf("list counters for %s: %v", day, err))
		sendDetail(w, http.StatusInternalServerError, msgInternal)
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("", map[string]interface{}{
		"day":      day,
		"counters": counters,
	}))
}

// SlotCounters handles GET /api/counters/slots/{slotID}.
func (h *Handler) SlotCounters(w http.ResponseWriter, r *http.Request) {
	slotID, err := strconv.ParseInt(chi.URLParam(r, "slotID"), 10, 64)
	if err != nil || slotID <= 0 {
		sendJSONResponse(w, http.StatusBadRequest, utils.ErrorResponse("Invalid slot id", "slot id must be a positive integer"))
		return
	}

	counters, err := h.CounterService.CountersForSlot(r.Context(), slotID)
	if err != nil {
		h.Logger.Error("COUNTERS", fmt.Sprintf("list counters for slot %d: %v", slotID, err))
		sendDetail(w, http.StatusInternalServerError, msgInternal)
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("", map[string]interface{}{
		"slot_id":  slotID,
		"counters": counters,
	}))
}

// BusScans handles GET /api/scans/bus/{busID}?day=YYYY-MM-DD, the scan
// history of one bus for a day, defaulting to today.
func (h *Handler) BusScans(w http.ResponseWriter, r *http.Request) {
	busID, err := strconv.ParseInt(chi.URLParam(r, "busID"), 10, 64)
	if err != nil || busID <= 0 {
		sendJSONResponse(w, http.StatusBadRequest, utils.ErrorResponse("Invalid bus id", "bus id must be a positive integer"))
		return
	}
	day := h.ScanService.Today()
	raw := r.URL.Query().Get("day")
	if raw == "" {
		raw = r.URL.Query().Get("date")
	}
	if raw != "" {
		parsed, err := models.ParseDay(raw)
		if err != nil {
			sendJSONResponse(w, http.StatusBadRequest, utils.ErrorResponse("Invalid day", "day must be YYYY-MM-DD"))
			return
		}
		day = parsed
	}

	history, err := h.CounterService.BusScans(r.Context(), busID, day)
	if err != nil {
		h.Logger.Error("COUNTERS", fmt.Sprintf("list scans of bus %d on %s: %v", busID, day, err))
		sendDetail(w, http.StatusInternalServerError, msgInternal)
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("", map[string]interface{}{
		"bus_id": busID,
		"day":    day,
		"count":  len(history),
		"scans":  history,
	}))
}

// SlotQR handles GET /api/qr/{token} and renders the slot's PNG.
func (h *Handler) SlotQR(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	slot, err := h.CounterService.ActiveSlot(r.Context(), token)
	if errors.Is(err, scans.ErrSlotNotFound) {
		sendDetail(w, http.StatusNotFound, msgNotFound)
		return
	}
	if err != nil {
		h.Logger.Error("QR", fmt.Sprintf("lookup of token %q failed: %v", token, err))
		sendDetail(w, http.StatusInternalServerError, msgInternal)
		return
	}

	size := qr.DefaultSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 64 && n <= 1024 {
			size = n
		}
	}

	png, err := h.QR.PNG(slot.Token, size)
	if err != nil {
		h.Logger.Error("QR", fmt.Sprintf("render qr for slot %d: %v", slot.ID, err))
		sendDetail(w, http.StatusInternalServerError, msgInternal)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	now := time.Now().UTC().Format(time.RFC3339)
	if err := h.Store.Ping(ctx); err != nil {
		h.Logger.Warn("HEALTH", fmt.Sprintf("database ping failed: %v", err))
		sendJSONResponse(w, http.StatusServiceUnavailable, map[string]string{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     err.Error(),
			"timestamp": now,
		})
		return
	}
	sendJSONResponse(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": now,
	})
}
