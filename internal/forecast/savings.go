package forecast

import "math"

// KgCO2PerLiter is the emission factor of gasoline.
const KgCO2PerLiter = 2.31

// Vehicle describes the trip and car used for savings estimates.
type Vehicle struct {
	FuelPricePerLiter float64 `json:"fuelPricePerLiter"`
	LitersPer100Km    float64 `json:"litersPer100Km"`
	TripKm            float64 `json:"tripKm"`
}

// DefaultVehicle returns the reference car: fuel at 25 per liter,
// 8.5 L/100km and a 12 km trip.
func DefaultVehicle() Vehicle {
	return Vehicle{
		FuelPricePerLiter: 25,
		LitersPer100Km:    8.5,
		TripKm:            12,
	}
}

// WithDefaults fills non-positive fields from d.
func (v Vehicle) WithDefaults(d Vehicle) Vehicle {
	if v.FuelPricePerLiter <= 0 {
		v.FuelPricePerLiter = d.FuelPricePerLiter
	}
	if v.LitersPer100Km <= 0 {
		v.LitersPer100Km = d.LitersPer100Km
	}
	if v.TripKm <= 0 {
		v.TripKm = d.TripKm
	}
	return v
}

// SavingsInput is the input of EstimateSavings.
type SavingsInput struct {
	ETAMinutes  int
	SavingVsNow float64
	Vehicle     Vehicle
}

// Savings is the estimated benefit of the recommended departure over the
// earliest one. Values are rounded to two decimals.
type Savings struct {
	MinutesSaved float64 `json:"minutesSaved"`
	MoneySaved   float64 `json:"moneySaved"`
	LitersSaved  float64 `json:"litersSaved"`
	KgCO2Saved   float64 `json:"kgCo2Saved"`
	TripKm       float64 `json:"tripKm"`
}

// EstimateSavings scales the trip's fuel use by the share of travel time
// saved. It is a coarse estimate: fuel is assumed proportional to time.
func EstimateSavings(in SavingsInput) Savings {
	eta := float64(in.ETAMinutes)
	saving := math.Min(math.Max(in.SavingVsNow, 0), 0.99)

	baseline := eta
	if saving > 0 {
		baseline = eta / (1 - saving)
	}
	savedMin := math.Max(0, baseline-eta)

	timeFactor := 0.0
	if baseline > 0 {
		timeFactor = savedMin / baseline
	}

	litersTrip := in.Vehicle.LitersPer100Km / 100 * in.Vehicle.TripKm
	liters := litersTrip * timeFactor

	return Savings{
		MinutesSaved: round2(savedMin),
		MoneySaved:   round2(liters * in.Vehicle.FuelPricePerLiter),
		LitersSaved:  round2(liters),
		KgCO2Saved:   round2(liters * KgCO2PerLiter),
		TripKm:       round2(in.Vehicle.TripKm),
	}
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
