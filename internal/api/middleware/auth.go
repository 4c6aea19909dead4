package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/congestionai/congestionai/internal/api/models"
	"github.com/congestionai/congestionai/internal/auth"
)

// userIDKey is the context key for the authenticated user ID.
type userIDKey struct{}

// TokenValidator resolves a bearer token to its subject.
type TokenValidator interface {
	ValidateAccessToken(token string) (string, error)
}

// Auth creates authentication middleware that validates JWT bearer tokens.
// The token subject becomes the user ID that owns history items.
func Auth(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, r, "missing authorization header")
				return
			}

			// Check for Bearer prefix (case-insensitive)
			const bearerPrefix = "Bearer "
			if len(authHeader) < len(bearerPrefix) ||
				!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
				writeUnauthorized(w, r, "invalid authorization header format")
				return
			}

			tokenString := strings.TrimSpace(authHeader[len(bearerPrefix):])
			if tokenString == "" {
				writeUnauthorized(w, r, "missing bearer token")
				return
			}

			userID, err := tokens.ValidateAccessToken(tokenString)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrAccessTokenExpired):
					writeUnauthorized(w, r, "access token has expired")
				case errors.Is(err, auth.ErrInvalidAccessToken):
					writeUnauthorized(w, r, "invalid access token")
				default:
					writeUnauthorized(w, r, "authentication failed")
				}
				return
			}

			ctx := r.Context()
			if a := annotations(ctx); a != nil {
				a.subject = userID
			}
			trace.SpanFromContext(ctx).SetAttributes(attribute.String("enduser.id", userID))

			ctx = context.WithValue(ctx, userIDKey{}, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeUnauthorized writes a 401 Unauthorized response.
// This is implemented directly here to avoid import cycle with response package.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := GetRequestID(r.Context())
	problem := models.NewUnauthorized(traceID, detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetUserID retrieves the authenticated user ID from the context.
// Returns an empty string if not authenticated.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}
