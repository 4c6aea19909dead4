package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/congestionai/congestionai/internal/api/models"
)

// Recovery returns a middleware that turns a panic in a handler into a 500
// internal_error problem. The panic is logged with the matched route and
// recorded on the request span. http.ErrAbortHandler is re-raised so the
// server can drop the connection.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel compared by identity, as net/http does
					panic(rec)
				}

				ctx := r.Context()
				requestID := GetRequestID(ctx)
				route := routePattern(r)

				event := log.Error().
					Str("request_id", requestID).
					Str("method", r.Method).
					Str("route", route).
					Interface("panic", rec).
					Str("stack", string(debug.Stack()))
				if userID := requestSubject(ctx); userID != "" {
					event = event.Str("subject", userID)
				}
				event.Msg("panic recovered")

				span := trace.SpanFromContext(ctx)
				span.RecordError(fmt.Errorf("panic: %v", rec))
				span.SetStatus(codes.Error, "panic")

				detail := "an unexpected error occurred"
				if isDepartureRoute(route) {
					detail = "departure planning failed unexpectedly"
				}
				problem := models.NewInternalError(requestID, detail)
				problem.Instance = r.URL.Path
				problem.Write(w)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func isDepartureRoute(route string) bool {
	switch route {
	case "/v1/departures:analyze", "/v1/departures:forecast", "/v1/savings:estimate":
		return true
	}
	return false
}
