package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mtlfinder/voyago/internal/logging"
)

// WeatherTool reads current conditions from an Open-Meteo forecast endpoint.
// Open-Meteo needs no API key.
type WeatherTool struct {
	baseURL string
	client  *http.Client
	log     *logging.Logger
}

// NewWeatherTool creates the weather tool.
func NewWeatherTool(baseURL string, client *http.Client, log *logging.Logger) *WeatherTool {
	return &WeatherTool{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		log:     log.Component("tools.weather"),
	}
}

func (t *WeatherTool) Declaration() Declaration {
	return Declaration{
		Name: "get_weather",
		Description: "Get current weather for a location using latitude and longitude coordinates. " +
			"Check the weather before suggesting walking or BIXI itineraries.",
		Parameters: ObjectSchema(map[string]Property{
			"latitude": {
				Type:        "number",
				Description: "Latitude of the location (e.g. 45.5017 for Montreal).",
			},
			"longitude": {
				Type:        "number",
				Description: "Longitude of the location (e.g. -73.5673 for Montreal).",
			},
		}, "latitude", "longitude"),
	}
}

type weatherArgs struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// WeatherResult is the normalized current-conditions snapshot.
type WeatherResult struct {
	Temperature     *float64 `json:"temperature"`
	TemperatureUnit string   `json:"temperature_unit"`
	FeelsLike       *float64 `json:"feels_like"`
	Humidity        *float64 `json:"humidity"`
	WindSpeed       *float64 `json:"wind_speed"`
	WindSpeedUnit   string   `json:"wind_speed_unit"`
	Precipitation   *float64 `json:"precipitation"`
	WeatherCode     *int     `json:"weather_code"`
	Timezone        string   `json:"timezone"`
	Location        string   `json:"location"`
}

func (t *WeatherTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var a weatherArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, invalidArgs("get_weather", "malformed arguments: %v", err)
		}
	}
	if a.Latitude == nil || a.Longitude == nil {
		return nil, invalidArgs("get_weather", "latitude and longitude are required")
	}
	if *a.Latitude < -90 || *a.Latitude > 90 {
		return nil, invalidArgs("get_weather", "latitude %v out of range [-90, 90]", *a.Latitude)
	}
	if *a.Longitude < -180 || *a.Longitude > 180 {
		return nil, invalidArgs("get_weather", "longitude %v out of range [-180, 180]", *a.Longitude)
	}

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(*a.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(*a.Longitude, 'f', -1, 64))
	q.Set("current", "temperature_2m,relative_humidity_2m,apparent_temperature,precipitation,weather_code,wind_speed_10m")
	q.Set("timezone", "auto")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/v1/forecast?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating weather request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.log.Warn().Err(err).Msg("weather upstream unreachable")
		return nil, upstreamErr("open-meteo", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Service: "open-meteo", Status: resp.StatusCode, Message: "weather request failed"}
	}

	var body openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, upstreamErr("open-meteo", err)
	}

	result := WeatherResult{
		Temperature:     body.Current.Temperature,
		TemperatureUnit: unitOrDefault(body.CurrentUnits.Temperature, "°C"),
		FeelsLike:       body.Current.ApparentTemperature,
		Humidity:        body.Current.Humidity,
		WindSpeed:       body.Current.WindSpeed,
		WindSpeedUnit:   unitOrDefault(body.CurrentUnits.WindSpeed, "km/h"),
		Precipitation:   body.Current.Precipitation,
		WeatherCode:     body.Current.WeatherCode,
		Timezone:        body.Timezone,
		Location:        fmt.Sprintf("Lat: %v, Lon: %v", *a.Latitude, *a.Longitude),
	}

	t.log.Debug().Interface("temperature", result.Temperature).Msg("fetched current weather")

	return result, nil
}

func unitOrDefault(unit, fallback string) string {
	if unit == "" {
		return fallback
	}
	return unit
}

// Open-Meteo wire structures

type openMeteoResponse struct {
	Timezone string `json:"timezone"`
	Current  struct {
		Temperature         *float64 `json:"temperature_2m"`
		Humidity            *float64 `json:"relative_humidity_2m"`
		ApparentTemperature *float64 `json:"apparent_temperature"`
		Precipitation       *float64 `json:"precipitation"`
		WeatherCode         *int     `json:"weather_code"`
		WindSpeed           *float64 `json:"wind_speed_10m"`
	} `json:"current"`
	CurrentUnits struct {
		Temperature string `json:"temperature_2m"`
		WindSpeed   string `json:"wind_speed_10m"`
	} `json:"current_units"`
}
