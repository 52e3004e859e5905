package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
)

// KeyFunc extracts the rate limit key from a request. An empty key skips
// rate limiting for that request.
type KeyFunc func(r *http.Request) string

// Middleware rejects requests over the limit with 429 and a JSON error body.
// A limiter error is logged and the request is let through.
func Middleware(limiter Limiter, keyFunc KeyFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if limiter == nil || key == "" {
				next.ServeHTTP(w, r)
				return
			}

			ok, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter failed, allowing request", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				secs := int(limiter.RetryAfter().Seconds())
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"too many requests"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IPKeyFunc keys requests by the host part of RemoteAddr. X-Forwarded-For is
// not trusted because any client can set it.
func IPKeyFunc(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
