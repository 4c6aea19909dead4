package handler

import (
	"context"

	"github.com/congestionai/congestionai/internal/api/middleware"
)

// GetUserID retrieves the authenticated user ID from the context.
// This is a convenience wrapper around middleware.GetUserID.
func GetUserID(ctx context.Context) string {
	return middleware.GetUserID(ctx)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return middleware.GetRequestID(ctx)
}
