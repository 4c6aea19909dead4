package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// requestAnnotations collects facts learned by inner middleware, such as the
// authenticated subject, for the outer access log line.
type requestAnnotations struct {
	subject string
}

type annotationsKey struct{}

func annotations(ctx context.Context) *requestAnnotations {
	a, _ := ctx.Value(annotationsKey{}).(*requestAnnotations)
	return a
}

// requestSubject returns the authenticated subject of the request, whether
// the caller sits inside or outside the Auth middleware.
func requestSubject(ctx context.Context) string {
	if id := GetUserID(ctx); id != "" {
		return id
	}
	if a := annotations(ctx); a != nil {
		return a.subject
	}
	return ""
}

// Logger returns a middleware that logs HTTP requests. Server errors log
// at error level and client errors at warn. Authenticated requests carry
// the token subject.
func Logger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)

			notes := &requestAnnotations{}
			r = r.WithContext(context.WithValue(r.Context(), annotationsKey{}, notes))

			next.ServeHTTP(wrapped, r)

			// Log request
			duration := time.Since(start)
			requestID := GetRequestID(r.Context())

			// Extract trace ID from span context
			spanCtx := trace.SpanContextFromContext(r.Context())
			traceID := ""
			spanID := ""
			if spanCtx.IsValid() {
				traceID = spanCtx.TraceID().String()
				spanID = spanCtx.SpanID().String()
			}

			event := log.Info()
			switch {
			case wrapped.statusCode >= 500:
				event = log.Error()
			case wrapped.statusCode >= 400:
				event = log.Warn()
			}

			if notes.subject != "" {
				event = event.Str("subject", notes.subject)
			}

			event.
				Str("request_id", requestID).
				Str("trace_id", traceID).
				Str("span_id", spanID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", routePattern(r)).
				Int("status", wrapped.statusCode).
				Int64("bytes", wrapped.written).
				Dur("duration", duration).
				Str("remote_addr", r.RemoteAddr).
				Str("user_agent", r.UserAgent()).
				Msg("request completed")
		})
	}
}
