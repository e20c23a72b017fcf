package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlfinder/voyago/internal/logging"
)

func openMeteoFixture() string {
	return `{
		"timezone": "America/Toronto",
		"current": {
			"temperature_2m": -8.5,
			"relative_humidity_2m": 71,
			"apparent_temperature": -15.2,
			"precipitation": 0.3,
			"weather_code": 73,
			"wind_speed_10m": 22.1
		},
		"current_units": {
			"temperature_2m": "°C",
			"wind_speed_10m": "km/h"
		}
	}`
}

func TestWeatherTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/forecast", r.URL.Path)
		assert.Equal(t, "45.5017", r.URL.Query().Get("latitude"))
		assert.Equal(t, "-73.5673", r.URL.Query().Get("longitude"))
		assert.Contains(t, r.URL.Query().Get("current"), "temperature_2m")
		assert.Equal(t, "auto", r.URL.Query().Get("timezone"))
		w.Write([]byte(openMeteoFixture()))
	}))
	defer srv.Close()

	tool := NewWeatherTool(srv.URL, srv.Client(), logging.Discard())

	result, err := tool.Execute(context.Background(),
		json.RawMessage(`{"latitude": 45.5017, "longitude": -73.5673}`))
	require.NoError(t, err)

	res, ok := result.(WeatherResult)
	require.True(t, ok)

	require.NotNil(t, res.Temperature)
	assert.Equal(t, -8.5, *res.Temperature)
	assert.Equal(t, "°C", res.TemperatureUnit)
	assert.Equal(t, -15.2, *res.FeelsLike)
	assert.Equal(t, 71.0, *res.Humidity)
	assert.Equal(t, 22.1, *res.WindSpeed)
	assert.Equal(t, 0.3, *res.Precipitation)
	assert.Equal(t, 73, *res.WeatherCode)
	assert.Equal(t, "America/Toronto", res.Timezone)
}

func TestWeatherToolArgValidation(t *testing.T) {
	tool := NewWeatherTool("http://localhost:9", http.DefaultClient, logging.Discard())

	tests := []struct {
		name string
		args string
	}{
		{"missing both", `{}`},
		{"missing longitude", `{"latitude": 45.5}`},
		{"latitude out of range", `{"latitude": 91, "longitude": 0}`},
		{"longitude out of range", `{"latitude": 45.5, "longitude": -200}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tool.Execute(context.Background(), json.RawMessage(tt.args))
			var invalid *InvalidArgumentsError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, "get_weather", invalid.Tool)
		})
	}
}

func TestWeatherToolUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tool := NewWeatherTool(srv.URL, srv.Client(), logging.Discard())

	_, err := tool.Execute(context.Background(),
		json.RawMessage(`{"latitude": 45.5, "longitude": -73.6}`))
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "open-meteo", upstream.Service)
}
