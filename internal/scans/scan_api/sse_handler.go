package scan_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ms-scanning/internal/sse"
)

const heartbeatEvery = 15 * time.Second

// CounterStream handles GET /api/counters/stream[?slot=ID] and pushes every
// committed scan as a "scan" event.
func (h *Handler) CounterStream(w http.ResponseWriter, r *http.Request) {
	if h.Events == nil {
		sendDetail(w, http.StatusNotFound, "stream disabled")
		return
	}

	slotID := sse.AllSlots
	if raw := r.URL.Query().Get("slot"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			sendDetail(w, http.StatusBadRequest, "slot must be a positive integer")
			return
		}
		slotID = id
	}

	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	events := h.Events.Subscribe(ctx, slotID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"slot_id\":%d}\n\n", slotID)
	if err := rc.Flush(); err != nil {
		h.Logger.Error("SSE", fmt.Sprintf("streaming unsupported: %v", err))
		return
	}
	h.Logger.Info("SSE", fmt.Sprintf("Client subscribed to counter stream for slot %d", slotID))

	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize scan event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: scan\ndata: %s\n\n", data)
			rc.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			rc.Flush()
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client left counter stream for slot %d", slotID))
			return
		}
	}
}
