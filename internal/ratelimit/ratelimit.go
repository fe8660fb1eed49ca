// Package ratelimit caps the number of requests a client address may make
// per fixed time window.
package ratelimit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"

	"github.com/yogaflow/attendance/internal/apperrors"
	"github.com/yogaflow/attendance/internal/metrics"
)

const limitedMessage = "Too many requests. Please try again later."

// Limiter decides whether one more request for key fits in the current window
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Middleware rejects requests over the limit with 429. When the limiter
// itself fails the request is let through.
func Middleware(limiter Limiter, m *metrics.Metrics, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)

			allowed, err := limiter.Allow(r.Context(), ip)
			if err != nil {
				log.Warn("rate limiter unavailable, allowing request",
					slog.String("op", "ratelimit.Middleware"),
					slog.String("ip", ip),
					slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				m.RateLimited()
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{
					"error": limitedMessage,
					"code":  apperrors.KindRateLimited.String(),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the host of the remote address. Forwarding headers are
// not read here; behind a trusted proxy middleware.RealIP rewrites
// RemoteAddr before this runs.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
