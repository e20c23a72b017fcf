package tools

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlfinder/voyago/internal/logging"
)

func otpFixture() string {
	return `{
		"data": {
			"plan": {
				"itineraries": [
					{
						"startTime": 1750000000000,
						"endTime": 1750001800000,
						"duration": 1800,
						"walkDistance": 650.4321,
						"transfers": 1,
						"legs": [
							{
								"mode": "WALK",
								"startTime": 1750000000000,
								"endTime": 1750000300000,
								"duration": 300,
								"distance": 250.5,
								"rentedBike": false,
								"from": {"name": "Origin", "lat": 45.5048, "lon": -73.5772},
								"to": {"name": "Station Peel", "lat": 45.5009, "lon": -73.5748}
							},
							{
								"mode": "SUBWAY",
								"startTime": 1750000300000,
								"endTime": 1750001500000,
								"duration": 1200,
								"distance": 4800,
								"rentedBike": false,
								"from": {"name": "Station Peel", "lat": 45.5009, "lon": -73.5748},
								"to": {"name": "Station Champ-de-Mars", "lat": 45.5101, "lon": -73.5566},
								"route": {"shortName": "1", "longName": "Ligne verte"},
								"trip": {"tripHeadsign": "Honore-Beaugrand"}
							},
							{
								"mode": "BICYCLE",
								"startTime": 1750001500000,
								"endTime": 1750001800000,
								"duration": 300,
								"distance": 900,
								"rentedBike": true,
								"from": {
									"name": "BIXI dock",
									"lat": 45.5102, "lon": -73.5560,
									"bikeRentalStation": {"stationId": "42", "name": "Champ-de-Mars", "bikesAvailable": 7, "spacesAvailable": 12}
								},
								"to": {"name": "Destination", "lat": 45.5075, "lon": -73.5540}
							}
						]
					}
				]
			}
		}
	}`
}

func newTestPlanner(t *testing.T, handler http.HandlerFunc) (*PlannerTool, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tool, err := NewPlannerTool(srv.URL, srv.Client(), logging.Discard())
	require.NoError(t, err)
	tool.now = func() time.Time {
		return time.Date(2026, 6, 15, 10, 0, 0, 0, tool.loc)
	}
	return tool, srv
}

func TestPlannerToolTrip(t *testing.T) {
	var gotQuery string
	tool, _ := newTestPlanner(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]string
		require.NoError(t, json.Unmarshal(body, &payload))
		gotQuery = payload["query"]
		w.Write([]byte(otpFixture()))
	})

	result, err := tool.Execute(context.Background(), json.RawMessage(
		`{"from_lat": 45.5048, "from_lon": -73.5772, "to_lat": 45.5075, "to_lon": -73.5540}`))
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "numItineraries: 5")
	assert.Contains(t, gotQuery, `date: "2026-06-15T10:00:00"`)
	assert.Contains(t, gotQuery, "arriveBy: false")
	assert.Contains(t, gotQuery, "maxWalkDistance: 800")
	assert.Contains(t, gotQuery, "{mode: BICYCLE, qualifier: RENT}")
	assert.Contains(t, gotQuery, "{mode: TRANSIT}")

	res, ok := result.(PlanResult)
	require.True(t, ok)
	require.Equal(t, 1, res.Count)

	it := res.Itineraries[0]
	assert.Equal(t, 30.0, it.DurationMinutes)
	assert.Equal(t, 650.43, it.WalkDistance)
	assert.Equal(t, 1, it.Transfers)
	require.Len(t, it.Legs, 3)

	subway := it.Legs[1]
	assert.Equal(t, "SUBWAY", subway.Mode)
	assert.Equal(t, "1", subway.Route)
	assert.Equal(t, "Ligne verte", subway.RouteLongName)
	assert.Equal(t, "Honore-Beaugrand", subway.Headsign)
	assert.Equal(t, time.UnixMilli(1750000300000).In(tool.loc).Format("15:04"), subway.StartTime)

	bixi := it.Legs[2]
	assert.True(t, bixi.RentedBike)
	require.NotNil(t, bixi.FromBikeStation)
	assert.Equal(t, "Champ-de-Mars", bixi.FromBikeStation.Name)
	assert.Equal(t, 7, *bixi.FromBikeStation.BikesAvailable)
	assert.Nil(t, bixi.ToBikeStation)
}

func TestPlannerToolModes(t *testing.T) {
	tests := []struct {
		mode    string
		want    []string
		exclude []string
	}{
		{"", []string{"{mode: WALK}", "{mode: TRANSIT}", "{mode: BICYCLE, qualifier: RENT}"}, nil},
		{"TRANSIT", []string{"{mode: WALK}", "{mode: TRANSIT}"}, []string{"BICYCLE"}},
		{"WALK", []string{"{mode: WALK}"}, []string{"TRANSIT", "BICYCLE"}},
		{"BICYCLE", []string{"{mode: BICYCLE, qualifier: RENT}", "{mode: WALK}"}, []string{"TRANSIT"}},
		{"NO_BUS", []string{"{mode: RAIL}", "{mode: SUBWAY}", "{mode: BICYCLE, qualifier: RENT}"}, []string{"{mode: BUS}", "{mode: TRANSIT}"}},
		{"NO_METRO", []string{"{mode: BUS}", "{mode: BICYCLE, qualifier: RENT}"}, []string{"SUBWAY", "{mode: TRANSIT}"}},
		{"no_bus", []string{"{mode: RAIL}"}, nil}, // case-insensitive
	}

	for _, tt := range tests {
		t.Run("mode "+tt.mode, func(t *testing.T) {
			var gotQuery string
			tool, _ := newTestPlanner(t, func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				var payload map[string]string
				json.Unmarshal(body, &payload)
				gotQuery = payload["query"]
				w.Write([]byte(otpFixture()))
			})

			args, _ := json.Marshal(map[string]any{
				"from_lat": 45.5, "from_lon": -73.6, "to_lat": 45.51, "to_lon": -73.55,
				"mode": tt.mode,
			})
			_, err := tool.Execute(context.Background(), args)
			require.NoError(t, err)

			for _, want := range tt.want {
				assert.Contains(t, gotQuery, want)
			}
			for _, excl := range tt.exclude {
				assert.NotContains(t, gotQuery, excl)
			}
		})
	}
}

func TestPlannerToolArgValidation(t *testing.T) {
	tool, err := NewPlannerTool("http://localhost:9", http.DefaultClient, logging.Discard())
	require.NoError(t, err)

	tests := []struct {
		name string
		args string
	}{
		{"missing coordinates", `{"from_lat": 45.5}`},
		{"latitude out of range", `{"from_lat": 99, "from_lon": -73.6, "to_lat": 45.5, "to_lon": -73.5}`},
		{"unknown mode", `{"from_lat": 45.5, "from_lon": -73.6, "to_lat": 45.51, "to_lon": -73.55, "mode": "TELEPORT"}`},
		{"depart and arrive together", `{"from_lat": 45.5, "from_lon": -73.6, "to_lat": 45.51, "to_lon": -73.55, "depart_at": "2026-06-15T10:00:00", "arrive_by": "2026-06-15T11:00:00"}`},
		{"unparseable time", `{"from_lat": 45.5, "from_lon": -73.6, "to_lat": 45.51, "to_lon": -73.55, "depart_at": "next tuesday"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tool.Execute(context.Background(), json.RawMessage(tt.args))
			var invalid *InvalidArgumentsError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, "plan_trip", invalid.Tool)
		})
	}
}

func TestPlannerToolArriveBy(t *testing.T) {
	var gotQuery string
	tool, _ := newTestPlanner(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]string
		json.Unmarshal(body, &payload)
		gotQuery = payload["query"]
		w.Write([]byte(otpFixture()))
	})

	_, err := tool.Execute(context.Background(), json.RawMessage(
		`{"from_lat": 45.5, "from_lon": -73.6, "to_lat": 45.51, "to_lon": -73.55, "arrive_by": "2026-06-15T18:00:00"}`))
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "arriveBy: true")
	assert.Contains(t, gotQuery, `date: "2026-06-15T18:00:00"`)
}

func TestPlannerToolGraphQLError(t *testing.T) {
	tool, _ := newTestPlanner(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors": [{"message": "argument coercion failed"}]}`))
	})

	_, err := tool.Execute(context.Background(), json.RawMessage(
		`{"from_lat": 45.5, "from_lon": -73.6, "to_lat": 45.51, "to_lon": -73.55}`))

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "otp", upstream.Service)
	assert.Contains(t, upstream.Message, "argument coercion failed")
}

func TestPlannerToolNoRoutes(t *testing.T) {
	tool, _ := newTestPlanner(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {"plan": {"itineraries": []}}}`))
	})

	_, err := tool.Execute(context.Background(), json.RawMessage(
		`{"from_lat": 45.5, "from_lon": -73.6, "to_lat": 45.51, "to_lon": -73.55}`))

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Contains(t, upstream.Message, "no routes found")
}
