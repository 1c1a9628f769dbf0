package scan_api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ms-scanning/internal/logger"
)

type Middleware = func(http.Handler) http.Handler

// RouteOptions carries per-group middleware. Nil entries are skipped.
type RouteOptions struct {
	ScanLimiter Middleware
	APILimiter  Middleware
}

// NewRouter mounts the scan endpoint, the /api group and /health.
func NewRouter(h *Handler, opts RouteOptions) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(AccessLog(h.Logger))

	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		if opts.ScanLimiter != nil {
			r.Use(opts.ScanLimiter)
		}
		r.Get("/s/{token}", h.Scan)
	})

	r.Route("/api", func(r chi.Router) {
		if opts.APILimiter != nil {
			r.Use(opts.APILimiter)
		}
		r.Post("/scans/bulk", h.BulkSync)
		r.Get("/scans/bus/{busID}", h.BusScans)
		r.Get("/counters", h.DayCounters)
		r.Get("/counters/stream", h.CounterStream)
		r.Get("/counters/slots/{slotID}", h.SlotCounters)
		r.Get("/qr/{token}", h.SlotQR)
	})
	return r
}

// AccessLog logs method, path, status and latency of every request.
func AccessLog(log *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.LogAPI(r.Method, r.URL.Path, status, time.Since(start))
		})
	}
}
