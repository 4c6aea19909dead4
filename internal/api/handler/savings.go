package handler

import (
	"encoding/json"
	"net/http"

	"github.com/congestionai/congestionai/internal/api/models"
	"github.com/congestionai/congestionai/internal/api/response"
	"github.com/congestionai/congestionai/internal/forecast"
)

// SavingsHandler handles the standalone savings estimate.
type SavingsHandler struct {
	vehicle forecast.Vehicle
}

// NewSavingsHandler creates a SavingsHandler. Zero fields of vehicle fall
// back to forecast.DefaultVehicle.
func NewSavingsHandler(vehicle forecast.Vehicle) *SavingsHandler {
	return &SavingsHandler{vehicle: vehicle.WithDefaults(forecast.DefaultVehicle())}
}

// Estimate handles POST /v1/savings:estimate.
func (h *SavingsHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	var input models.SavingsRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if errs := input.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "request validation failed", errs)
		return
	}

	vehicle := h.vehicle
	if v := input.Vehicle.Vehicle(); v != nil {
		vehicle = v.WithDefaults(h.vehicle)
	}

	response.JSON(w, r, http.StatusOK, models.SavingsResponse{
		Savings: forecast.EstimateSavings(forecast.SavingsInput{
			ETAMinutes:  input.ETAMinutes,
			SavingVsNow: input.SavingVsNow,
			Vehicle:     vehicle,
		}),
		Vehicle: vehicle,
	})
}
