// Package response writes JSON and Problem+JSON responses.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/congestionai/congestionai/internal/api/middleware"
	"github.com/congestionai/congestionai/internal/api/models"
)

// JSON writes a JSON response with the given status code.
// Includes X-Request-Id header for correlation.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	setRequestID(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Error writes a Problem+JSON error response.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// BadRequest writes a 400 Bad Request error response.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	Error(w, r, models.NewBadRequest(traceID(r), detail, errors))
}

// Unauthorized writes a 401 Unauthorized error response.
func Unauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewUnauthorized(traceID(r), detail))
}

// NotFound writes a 404 Not Found error response.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewNotFound(traceID(r), detail))
}

// NoRoutes writes a 502 response for a departure grid that produced no
// usable sample. code is models.CodeNoRoutes or models.CodeNoForecast.
func NoRoutes(w http.ResponseWriter, r *http.Request, code, detail string) {
	Error(w, r, models.NewNoRoutes(traceID(r), code, detail))
}

// UpstreamError writes a 502 response for a failed provider call.
func UpstreamError(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewUpstreamError(traceID(r), detail))
}

// ProviderUnauthenticated writes a 503 response when the routing provider
// rejected the configured credentials.
func ProviderUnauthenticated(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewProviderUnauthenticated(traceID(r), detail))
}

// InternalError writes a 500 Internal Server Error response.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewInternalError(traceID(r), detail))
}

// ServiceUnavailable writes a 503 Service Unavailable error response.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewServiceUnavailable(traceID(r), detail))
}

// Created writes a 201 Created response with Location header.
func Created(w http.ResponseWriter, r *http.Request, location string, data interface{}) {
	if location != "" {
		w.Header().Set("Location", location)
	}
	JSON(w, r, http.StatusCreated, data)
}

// NoContent writes a 204 No Content response.
func NoContent(w http.ResponseWriter, r *http.Request) {
	setRequestID(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func traceID(r *http.Request) string {
	return middleware.GetRequestID(r.Context())
}

func setRequestID(w http.ResponseWriter, r *http.Request) {
	if id := traceID(r); id != "" {
		w.Header().Set("X-Request-Id", id)
	}
}
