package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/congestionai/congestionai/internal/api/models"
	"github.com/congestionai/congestionai/internal/api/response"
	"github.com/congestionai/congestionai/internal/history"
)

// HistoryService stores saved recommendations per user.
type HistoryService interface {
	Record(ctx context.Context, owner string, in history.RecordInput) (*history.Item, error)
	List(ctx context.Context, owner string, limit int) ([]*history.Item, error)
	Delete(ctx context.Context, owner, id string) error
}

// HistoryHandler handles /v1/me/history endpoints.
type HistoryHandler struct {
	service HistoryService
	logger  zerolog.Logger
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(service HistoryService, logger zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{
		service: service,
		logger:  logger,
	}
}

// ListHistory handles GET /v1/me/history - newest items first.
func (h *HistoryHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	limit := history.MaxItemsPerOwner
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > history.MaxItemsPerOwner {
			response.BadRequest(w, r, "invalid limit", []models.FieldError{{
				Field:   "limit",
				Message: "limit must be between 1 and " + strconv.Itoa(history.MaxItemsPerOwner),
				Code:    "OUT_OF_RANGE",
			}})
			return
		}
		limit = n
	}

	items, err := h.service.List(r.Context(), GetUserID(r.Context()), limit)
	if err != nil {
		h.internalError(w, r, err, "failed to list history")
		return
	}

	out := make([]models.HistoryItem, 0, len(items))
	for _, item := range items {
		out = append(out, models.NewHistoryItem(item))
	}
	response.JSON(w, r, http.StatusOK, models.HistoryList{
		Items: out,
		Meta:  models.PageMeta{Limit: limit, Count: len(out)},
	})
}

// CreateHistory handles POST /v1/me/history - save a recommendation.
func (h *HistoryHandler) CreateHistory(w http.ResponseWriter, r *http.Request) {
	var input models.HistoryCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if errs := input.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "request validation failed", errs)
		return
	}

	item, err := h.service.Record(r.Context(), GetUserID(r.Context()), input.Input())
	if err != nil {
		if errors.Is(err, history.ErrEndpointRequired) {
			response.BadRequest(w, r, err.Error(), nil)
			return
		}
		h.internalError(w, r, err, "failed to save history item")
		return
	}

	response.Created(w, r, "/v1/me/history/"+item.ID, models.NewHistoryItem(item))
}

// DeleteHistory handles DELETE /v1/me/history/{historyId}.
func (h *HistoryHandler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "historyId")

	err := h.service.Delete(r.Context(), GetUserID(r.Context()), id)
	if err != nil {
		if errors.Is(err, history.ErrItemNotFound) {
			response.NotFound(w, r, "history item not found")
			return
		}
		h.internalError(w, r, err, "failed to delete history item")
		return
	}

	response.NoContent(w, r)
}

func (h *HistoryHandler) internalError(w http.ResponseWriter, r *http.Request, err error, detail string) {
	h.logger.Error().Err(err).
		Str("request_id", GetRequestID(r.Context())).
		Msg(detail)
	response.InternalError(w, r, detail)
}
