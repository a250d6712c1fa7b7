package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit returns middleware allowing at most requests per window per
// client IP, counted with a sliding window. Every route wrapped by the same
// returned middleware shares one counter per IP.
//
// The client address comes from RemoteAddr, so chi's RealIP must run first
// when the server sits behind a proxy.
func RateLimit(requests int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	msg := rateLimitMessage(requests, window)

	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			logger.Warn("rate limit exceeded",
				slog.String("path", r.URL.Path),
				slog.String("remote", r.RemoteAddr),
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "rate_limited",
				"message": msg,
			})
		}),
	)
}

// rateLimitMessage renders e.g. "You have exceeded the 100 requests in 24 hrs limit!".
func rateLimitMessage(requests int, window time.Duration) string {
	span := window.String()
	if window >= time.Hour && window%time.Hour == 0 {
		span = fmt.Sprintf("%d hrs", int(window/time.Hour))
	}
	return fmt.Sprintf("You have exceeded the %d requests in %s limit!", requests, span)
}
