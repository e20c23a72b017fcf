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

func photonFixture() string {
	return `{
		"features": [
			{
				"geometry": {"coordinates": [-73.5772, 45.5048]},
				"properties": {
					"name": "McGill University",
					"type": "house",
					"city": "Montreal",
					"state": "Quebec",
					"country": "Canada",
					"osm_type": "W",
					"osm_id": 33595821
				}
			}
		]
	}`
}

func TestGeocodeTool(t *testing.T) {
	var gotQuery, gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api", r.URL.Path)
		gotQuery = r.URL.Query().Get("q")
		gotLimit = r.URL.Query().Get("limit")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(photonFixture()))
	}))
	defer srv.Close()

	tool := NewGeocodeTool(srv.URL, srv.Client(), logging.Discard())

	result, err := tool.Execute(context.Background(),
		json.RawMessage(`{"query": "McGill University, Montreal, Quebec"}`))
	require.NoError(t, err)

	assert.Equal(t, "McGill University, Montreal, Quebec", gotQuery)
	assert.Equal(t, "1", gotLimit)

	res, ok := result.(GeocodeResult)
	require.True(t, ok)
	require.Equal(t, 1, res.Count)

	// GeoJSON coordinates are [lon, lat]; the result must swap them back
	assert.Equal(t, 45.5048, res.Results[0].Latitude)
	assert.Equal(t, -73.5772, res.Results[0].Longitude)
	assert.Equal(t, "McGill University", res.Results[0].Name)
	assert.Equal(t, "Montreal", res.Results[0].City)
}

func TestGeocodeToolLimitCap(t *testing.T) {
	var gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		w.Write([]byte(`{"features": []}`))
	}))
	defer srv.Close()

	tool := NewGeocodeTool(srv.URL, srv.Client(), logging.Discard())

	_, err := tool.Execute(context.Background(),
		json.RawMessage(`{"query": "metro stations", "limit": 50}`))
	require.NoError(t, err)
	assert.Equal(t, "5", gotLimit)
}

func TestGeocodeToolNoMatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"features": []}`))
	}))
	defer srv.Close()

	tool := NewGeocodeTool(srv.URL, srv.Client(), logging.Discard())

	result, err := tool.Execute(context.Background(),
		json.RawMessage(`{"query": "nowhere at all"}`))
	require.NoError(t, err)

	res := result.(GeocodeResult)
	assert.Equal(t, 0, res.Count)
	assert.Empty(t, res.Results)
}

func TestGeocodeToolMissingQuery(t *testing.T) {
	tool := NewGeocodeTool("http://localhost:2322", http.DefaultClient, logging.Discard())

	for _, args := range []string{`{}`, `{"query": "  "}`} {
		_, err := tool.Execute(context.Background(), json.RawMessage(args))
		var invalid *InvalidArgumentsError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "geocode_location", invalid.Tool)
	}
}

func TestGeocodeToolUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tool := NewGeocodeTool(srv.URL, srv.Client(), logging.Discard())

	_, err := tool.Execute(context.Background(), json.RawMessage(`{"query": "Old Port"}`))
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "photon", upstream.Service)
	assert.Equal(t, http.StatusBadGateway, upstream.Status)
}
