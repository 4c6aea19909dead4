package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/congestionai/congestionai/internal/api/models"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// Requests per window
	RequestLimit int
	// Window duration
	WindowLength time.Duration
}

// PerMinute returns a one-minute window allowing n requests. Non-positive n
// falls back to DepartureRateLimit.
func PerMinute(n int) RateLimitConfig {
	if n <= 0 {
		return DepartureRateLimit
	}
	return RateLimitConfig{RequestLimit: n, WindowLength: time.Minute}
}

// Default rate limit configurations.
var (
	// DepartureRateLimit applies to analyze and forecast, which fan out to
	// the routing provider (30 req/min).
	DepartureRateLimit = RateLimitConfig{
		RequestLimit: 30,
		WindowLength: time.Minute,
	}

	// StandardRateLimit applies to standard endpoints (100 req/min).
	StandardRateLimit = RateLimitConfig{
		RequestLimit: 100,
		WindowLength: time.Minute,
	}
)

// RateLimitByIP creates a rate limiter middleware using client IP address.
// Uses X-Forwarded-For header if present (extracted by chi's RealIP middleware).
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(rateLimitExceededHandler(cfg.WindowLength)),
	)
}

// RateLimitByUser creates a rate limiter middleware using authenticated user ID.
// Falls back to IP-based rate limiting for unauthenticated requests.
func RateLimitByUser(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(keyByUserOrIP),
		httprate.WithLimitHandler(rateLimitExceededHandler(cfg.WindowLength)),
	)
}

// keyByUserOrIP returns the user ID if authenticated, otherwise the client IP.
func keyByUserOrIP(r *http.Request) (string, error) {
	if userID := GetUserID(r.Context()); userID != "" {
		return "user:" + userID, nil
	}
	return httprate.KeyByRealIP(r)
}

// rateLimitExceededHandler writes an RFC7807 Problem response when rate limit is exceeded.
// httprate doesn't expose the exact reset time, so Retry-After is the full window.
func rateLimitExceededHandler(window time.Duration) http.HandlerFunc {
	retryAfter := strconv.Itoa(max(int(window.Seconds()), 1))
	return func(w http.ResponseWriter, r *http.Request) {
		problem := models.NewTooManyRequests(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.")
		problem.Instance = r.URL.Path

		w.Header().Set("Retry-After", retryAfter)
		problem.Write(w)
	}
}
