package api

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/orderpulse/orderpulse/internal/metrics"
	"github.com/orderpulse/orderpulse/internal/redis"
)

// KeyFunc extracts the rate limit key from a request. An empty key skips
// limiting for that request.
type KeyFunc func(r *http.Request) string

// TenantKeyFunc keys rate limits by tenant.
func TenantKeyFunc(r *http.Request) string {
	tenantID := r.Header.Get("X-Tenant-ID")
	if tenantID == "" {
		tenantID = r.URL.Query().Get("tenant_id")
	}
	if tenantID == "" {
		return ""
	}
	return "tenant:" + tenantID
}

// IPKeyFunc keys rate limits by client IP.
func IPKeyFunc(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// RateLimitMiddleware enforces rate limits using the given limiter. A nil
// limiter disables limiting, and a limiter error fails open so a Redis
// outage never blocks traffic.
func RateLimitMiddleware(limiter *redis.RateLimiter, logger *zap.Logger, keyFunc KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			result, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("rate limit check failed, allowing request",
					zap.Error(err),
					zap.String("key", key),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				metrics.RecordRateLimitRejection(r.Header.Get("X-Tenant-ID"))
				logger.Info("request rate limited",
					zap.String("key", key),
					zap.String("path", r.URL.Path),
				)

				w.Header().Set("Retry-After", strconv.FormatInt(result.ResetAt.Unix(), 10))
				w.Header().Set("Content-Type", "application/problem+json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(ErrorResponse{
					Type:   "rate_limited",
					Title:  "Too Many Requests",
					Status: http.StatusTooManyRequests,
					Detail: "Request rate limit exceeded, slow down",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
