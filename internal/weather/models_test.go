package weather_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/congestionai/congestionai/internal/weather"
)

func TestForecast_PrecipitationAt(t *testing.T) {
	base := time.Date(2030, 3, 4, 6, 0, 0, 0, time.UTC)
	f := &weather.Forecast{
		Hourly: []weather.HourlyForecast{
			{Time: base, PrecipitationMM: 0.5},
			{Time: base.Add(time.Hour), PrecipitationMM: 3},
			{Time: base.Add(2 * time.Hour), PrecipitationMM: 12},
		},
	}

	tests := []struct {
		name   string
		at     time.Time
		wantMM float64
		wantOK bool
	}{
		{"before forecast", base.Add(-time.Minute), 0, false},
		{"start of first hour", base, 0.5, true},
		{"inside second hour", base.Add(90 * time.Minute), 3, true},
		{"exact hour boundary", base.Add(2 * time.Hour), 12, true},
		{"after last hour", base.Add(3 * time.Hour), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mm, ok := f.PrecipitationAt(tt.at)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantMM, mm)
		})
	}
}

func TestForecast_PrecipitationAt_Empty(t *testing.T) {
	var f *weather.Forecast
	_, ok := f.PrecipitationAt(time.Now())
	assert.False(t, ok)

	_, ok = (&weather.Forecast{}).PrecipitationAt(time.Now())
	assert.False(t, ok)
}

func TestHourlyForecast_IsWet(t *testing.T) {
	tests := []struct {
		name string
		h    weather.HourlyForecast
		want bool
	}{
		{"clear and dry", weather.HourlyForecast{Condition: weather.ConditionClear}, false},
		{"rain condition", weather.HourlyForecast{Condition: weather.ConditionRain}, true},
		{"snow condition", weather.HourlyForecast{Condition: weather.ConditionSnow}, true},
		{"clouds with precipitation", weather.HourlyForecast{Condition: weather.ConditionClouds, PrecipitationMM: 0.2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.h.IsWet())
		})
	}
}
