package openweathermap_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congestionai/congestionai/internal/provider/resilience"
	"github.com/congestionai/congestionai/internal/weather"
	"github.com/congestionai/congestionai/internal/weather/openweathermap"
)

func testHTTPClient() *resilience.Client {
	return resilience.NewClient(resilience.ClientConfig{Name: "test", Timeout: 2 * time.Second})
}

func TestClient_GetForecast(t *testing.T) {
	start := time.Date(2030, 3, 4, 6, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/onecall", r.URL.Path)
		assert.Equal(t, "19.432600", r.URL.Query().Get("lat"))
		assert.Equal(t, "-99.133200", r.URL.Query().Get("lon"))
		assert.Equal(t, "****", r.URL.Query().Get("appid"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		assert.Contains(t, r.URL.Query().Get("exclude"), "minutely")

		response := map[string]interface{}{
			"lat": 19.4326,
			"lon": -99.1332,
			"hourly": []map[string]interface{}{
				{
					"dt":      start.Unix(),
					"pop":     0.1,
					"weather": []map[string]interface{}{{"main": "Clouds", "description": "few clouds"}},
				},
				{
					"dt":      start.Add(time.Hour).Unix(),
					"pop":     0.9,
					"rain":    map[string]float64{"1h": 4.2},
					"weather": []map[string]interface{}{{"main": "Rain", "description": "moderate rain"}},
				},
				{
					"dt":   start.Add(2 * time.Hour).Unix(),
					"pop":  0.6,
					"rain": map[string]float64{"1h": 0.5},
					"snow": map[string]float64{"1h": 0.25},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	client := openweathermap.NewClient(openweathermap.ClientConfig{
		APIKey:     "****",
		OneCallURL: server.URL + "/onecall",
		HTTPClient: testHTTPClient(),
	})

	forecast, err := client.GetForecast(context.Background(), 19.4326, -99.1332)
	require.NoError(t, err)
	require.NotNil(t, forecast)

	assert.Equal(t, 19.4326, forecast.Lat)
	assert.Equal(t, -99.1332, forecast.Lon)
	require.Len(t, forecast.Hourly, 3)

	h0 := forecast.Hourly[0]
	assert.True(t, h0.Time.Equal(start))
	assert.Equal(t, 0.0, h0.PrecipitationMM)
	assert.Equal(t, weather.ConditionClouds, h0.Condition)

	h1 := forecast.Hourly[1]
	assert.Equal(t, 4.2, h1.PrecipitationMM)
	assert.Equal(t, 0.9, h1.PrecipProb)
	assert.Equal(t, weather.ConditionRain, h1.Condition)
	assert.Equal(t, "moderate rain", h1.Description)

	h2 := forecast.Hourly[2]
	assert.Equal(t, 0.75, h2.PrecipitationMM)
	assert.Equal(t, weather.ConditionUnknown, h2.Condition)

	mm, ok := forecast.PrecipitationAt(start.Add(75 * time.Minute))
	assert.True(t, ok)
	assert.Equal(t, 4.2, mm)
}

func TestClient_GetForecast_Conditions(t *testing.T) {
	conditions := []struct {
		owmMain  string
		expected weather.Condition
	}{
		{"Clear", weather.ConditionClear},
		{"Clouds", weather.ConditionClouds},
		{"Rain", weather.ConditionRain},
		{"Drizzle", weather.ConditionDrizzle},
		{"Thunderstorm", weather.ConditionThunderstorm},
		{"Snow", weather.ConditionSnow},
		{"Mist", weather.ConditionFog},
		{"Haze", weather.ConditionFog},
		{"Tornado", weather.ConditionUnknown},
	}

	for _, tc := range conditions {
		t.Run(tc.owmMain, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				response := map[string]interface{}{
					"hourly": []map[string]interface{}{
						{
							"dt":      time.Now().Unix(),
							"weather": []map[string]interface{}{{"main": tc.owmMain}},
						},
					},
				}
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(response)
			}))
			defer server.Close()

			client := openweathermap.NewClient(openweathermap.ClientConfig{
				APIKey:     "****",
				OneCallURL: server.URL,
				HTTPClient: testHTTPClient(),
			})

			forecast, err := client.GetForecast(context.Background(), 19.4, -99.1)
			require.NoError(t, err)
			require.Len(t, forecast.Hourly, 1)
			assert.Equal(t, tc.expected, forecast.Hourly[0].Condition)
		})
	}
}

func TestClient_GetForecast_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := openweathermap.NewClient(openweathermap.ClientConfig{
		APIKey:     "****",
		OneCallURL: server.URL,
		HTTPClient: testHTTPClient(),
	})

	_, err := client.GetForecast(context.Background(), 19.4, -99.1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestClient_GetForecast_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := openweathermap.NewClient(openweathermap.ClientConfig{
		APIKey:     "****",
		OneCallURL: server.URL,
		HTTPClient: testHTTPClient(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetForecast(ctx, 19.4, -99.1)
	require.Error(t, err)
}

func TestClient_Name(t *testing.T) {
	client := openweathermap.NewClient(openweathermap.ClientConfig{
		APIKey: "****",
	})

	assert.Equal(t, "openweathermap", client.Name())
}
