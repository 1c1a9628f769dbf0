package ratelimit

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ms-scanning/internal/logger"
)

type KeyFunc func(r *http.Request) string

type Options struct {
	Store *Store
	Stats StatsStore
	KeyFn KeyFunc
	// Route labels decisions in the stats store.
	Route  string
	Logger *logger.Logger
}

// ClientIPKey keys requests by remote IP, or by the first X-Forwarded-For
// hop when trustXFF is set.
func ClientIPKey(trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if trustXFF {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
					return ip
				}
			}
		}
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// Middleware rejects requests over the limit with 429 and Retry-After.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.KeyFn == nil {
		opts.KeyFn = ClientIPKey(false)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)
			allowed, wait := opts.Store.Allow(key)

			if opts.Stats != nil {
				d := Decision{Key: key, Route: opts.Route, Allowed: allowed, At: time.Now()}
				if err := opts.Stats.Record(r.Context(), d); err != nil {
					opts.Logger.Debug("RATELIMIT", "stats not recorded: "+err.Error())
				}
			}

			if !allowed {
				secs := int(math.Ceil(wait.Seconds()))
				if secs < 1 {
					secs = 1
				}
				opts.Logger.Warn("RATELIMIT", "rejected "+key+" on "+r.URL.Path)
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{"detail": "Demasiadas solicitudes"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
