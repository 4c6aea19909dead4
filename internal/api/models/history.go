package models

import (
	"github.com/congestionai/congestionai/internal/history"
)

// HistoryItem is a saved recommendation.
type HistoryItem struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Origin       string    `json:"origin"`
	Destination  string    `json:"destination"`
	BestDepartAt Timestamp `json:"bestDepartAt"`
	ETAMinutes   int       `json:"etaMinutes"`
	SavingVsNow  float64   `json:"savingVsNow"`
	Risk         float64   `json:"risk"`
	CreatedAt    Timestamp `json:"createdAt"`
}

// NewHistoryItem converts a stored item.
func NewHistoryItem(item *history.Item) HistoryItem {
	return HistoryItem{
		ID:           item.ID,
		Kind:         string(item.Kind),
		Origin:       item.Origin,
		Destination:  item.Destination,
		BestDepartAt: Timestamp(item.BestDepartAt),
		ETAMinutes:   item.ETAMinutes,
		SavingVsNow:  item.SavingVsNow,
		Risk:         item.Risk,
		CreatedAt:    Timestamp(item.CreatedAt),
	}
}

// HistoryList is the response for GET /v1/me/history.
type HistoryList struct {
	Items []HistoryItem `json:"items"`
	Meta  PageMeta      `json:"meta"`
}

// HistoryCreateRequest is the request body for POST /v1/me/history.
type HistoryCreateRequest struct {
	Kind         string    `json:"kind,omitempty" validate:"omitempty,oneof=analyze forecast batch"`
	Origin       string    `json:"origin" validate:"required,max=512"`
	Destination  string    `json:"destination" validate:"required,max=512"`
	BestDepartAt Timestamp `json:"bestDepartAt"`
	ETAMinutes   int       `json:"etaMinutes" validate:"gte=0"`
	SavingVsNow  float64   `json:"savingVsNow" validate:"gte=0,lte=1"`
	Risk         float64   `json:"risk" validate:"gte=0,lte=1"`
}

// Validate validates the create request.
func (r *HistoryCreateRequest) Validate() []FieldError {
	errs := ValidateStruct(r)
	if r.BestDepartAt.IsZero() {
		errs = append(errs, FieldError{Field: "bestDepartAt", Message: "bestDepartAt is required", Code: "REQUIRED"})
	}
	return errs
}

// Input converts the request for the history service.
func (r *HistoryCreateRequest) Input() history.RecordInput {
	return history.RecordInput{
		Kind:         history.Kind(r.Kind),
		Origin:       r.Origin,
		Destination:  r.Destination,
		BestDepartAt: r.BestDepartAt.Time(),
		ETAMinutes:   r.ETAMinutes,
		SavingVsNow:  r.SavingVsNow,
		Risk:         r.Risk,
	}
}
