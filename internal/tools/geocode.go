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

// maxGeocodeResults caps how many candidates the geocoder may return.
const maxGeocodeResults = 5

// GeocodeTool resolves place names to coordinates using a Photon
// (OpenStreetMap) geocoding service.
type GeocodeTool struct {
	baseURL string
	client  *http.Client
	log     *logging.Logger
}

// NewGeocodeTool creates the geocoding tool against a Photon base URL.
func NewGeocodeTool(baseURL string, client *http.Client, log *logging.Logger) *GeocodeTool {
	return &GeocodeTool{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		log:     log.Component("tools.geocode"),
	}
}

func (t *GeocodeTool) Declaration() Declaration {
	return Declaration{
		Name: "geocode_location",
		Description: "Convert a location name or address into geographic coordinates (latitude, longitude). " +
			"ALWAYS use this tool to convert location names to coordinates; NEVER guess or assume coordinates. " +
			"Add the city name and 'Quebec' to the query for accuracy " +
			"(e.g. 'McGill University, Montreal, Quebec').",
		Parameters: ObjectSchema(map[string]Property{
			"query": {
				Type:        "string",
				Description: "The location name or address to geocode, including city and 'Quebec'.",
			},
			"limit": {
				Type:        "number",
				Description: "Maximum number of results to return (default: 1).",
			},
		}, "query"),
	}
}

type geocodeArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// GeocodeCandidate is one resolved location.
type GeocodeCandidate struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Type      string  `json:"type,omitempty"`
	City      string  `json:"city,omitempty"`
	State     string  `json:"state,omitempty"`
	Country   string  `json:"country,omitempty"`
	OSMType   string  `json:"osm_type,omitempty"`
	OSMID     int64   `json:"osm_id,omitempty"`
}

// GeocodeResult holds the candidate list. An empty list is a valid result
// when nothing matched, not an error.
type GeocodeResult struct {
	Query   string             `json:"query"`
	Count   int                `json:"count"`
	Results []GeocodeCandidate `json:"results"`
}

func (t *GeocodeTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var a geocodeArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, invalidArgs("geocode_location", "malformed arguments: %v", err)
		}
	}
	if strings.TrimSpace(a.Query) == "" {
		return nil, invalidArgs("geocode_location", "query is required")
	}
	if a.Limit <= 0 {
		a.Limit = 1
	}
	if a.Limit > maxGeocodeResults {
		a.Limit = maxGeocodeResults
	}

	q := url.Values{}
	q.Set("q", a.Query)
	q.Set("limit", strconv.Itoa(a.Limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/api?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating geocode request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.log.Warn().Err(err).Str("query", a.Query).Msg("geocoder unreachable")
		return nil, upstreamErr("photon", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Service: "photon", Status: resp.StatusCode, Message: "geocoding request failed"}
	}

	var body photonResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, upstreamErr("photon", err)
	}

	results := make([]GeocodeCandidate, 0, len(body.Features))
	for _, f := range body.Features {
		// GeoJSON coordinates are [lon, lat]
		if len(f.Geometry.Coordinates) < 2 {
			continue
		}
		name := f.Properties.Name
		if name == "" {
			name = a.Query
		}
		results = append(results, GeocodeCandidate{
			Name:      name,
			Latitude:  f.Geometry.Coordinates[1],
			Longitude: f.Geometry.Coordinates[0],
			Type:      f.Properties.Type,
			City:      f.Properties.City,
			State:     f.Properties.State,
			Country:   f.Properties.Country,
			OSMType:   f.Properties.OSMType,
			OSMID:     f.Properties.OSMID,
		})
	}

	t.log.Debug().Str("query", a.Query).Int("count", len(results)).Msg("geocoded location")

	return GeocodeResult{Query: a.Query, Count: len(results), Results: results}, nil
}

// Photon wire structures

type photonResponse struct {
	Features []photonFeature `json:"features"`
}

type photonFeature struct {
	Geometry struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
	Properties struct {
		Name    string `json:"name"`
		Type    string `json:"type"`
		City    string `json:"city"`
		State   string `json:"state"`
		Country string `json:"country"`
		OSMType string `json:"osm_type"`
		OSMID   int64  `json:"osm_id"`
	} `json:"properties"`
}
