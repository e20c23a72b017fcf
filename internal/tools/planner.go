package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/mtlfinder/voyago/internal/logging"
)

// maxItineraries is the fixed cap on itineraries requested from the planner.
const maxItineraries = 5

// defaultMaxWalkMeters is the walking-distance limit when the model does not
// supply one.
const defaultMaxWalkMeters = 800.0

// Trip modes accepted by the planner tool. TRANSIT_BIXI is an alias for ALL.
var plannerModes = map[string][]string{
	"ALL":          {"{mode: WALK}", "{mode: TRANSIT}", "{mode: BICYCLE, qualifier: RENT}"},
	"TRANSIT_BIXI": {"{mode: WALK}", "{mode: TRANSIT}", "{mode: BICYCLE, qualifier: RENT}"},
	"TRANSIT":      {"{mode: WALK}", "{mode: TRANSIT}"},
	"WALK":         {"{mode: WALK}"},
	"BICYCLE":      {"{mode: BICYCLE, qualifier: RENT}", "{mode: WALK}"},
	"NO_BUS":       {"{mode: WALK}", "{mode: RAIL}", "{mode: SUBWAY}", "{mode: BICYCLE, qualifier: RENT}"},
	"NO_METRO":     {"{mode: WALK}", "{mode: BUS}", "{mode: BICYCLE, qualifier: RENT}"},
}

// PlannerTool retrieves multi-modal itineraries from an OpenTripPlanner 2.x
// GraphQL endpoint, including BIXI bike-share legs.
type PlannerTool struct {
	url    string
	client *http.Client
	loc    *time.Location
	now    func() time.Time
	log    *logging.Logger
}

// NewPlannerTool creates the trip-planning tool against an OTP GraphQL URL.
func NewPlannerTool(url string, client *http.Client, log *logging.Logger) (*PlannerTool, error) {
	loc, err := time.LoadLocation(TimezoneName)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %s: %w", TimezoneName, err)
	}
	return &PlannerTool{
		url:    url,
		client: client,
		loc:    loc,
		now:    time.Now,
		log:    log.Component("tools.planner"),
	}, nil
}

func (t *PlannerTool) Declaration() Declaration {
	return Declaration{
		Name: "plan_trip",
		Description: "Plan a trip between two coordinate pairs using transit, walking, and BIXI bike-share. " +
			"Returns up to 5 itineraries with step-by-step legs. " +
			"Coordinates MUST come from geocode_location or the user's reported location; never use hardcoded coordinates.",
		Parameters: ObjectSchema(map[string]Property{
			"from_lat": {Type: "number", Description: "Starting location latitude."},
			"from_lon": {Type: "number", Description: "Starting location longitude."},
			"to_lat":   {Type: "number", Description: "Destination latitude."},
			"to_lon":   {Type: "number", Description: "Destination longitude."},
			"mode": {
				Type: "string",
				Description: "Transportation mode: ALL (default, transit+walk+BIXI), TRANSIT (transit+walk, no bikes), " +
					"WALK (walking only), BICYCLE (BIXI bike-share only), NO_BUS (metro/REM only), NO_METRO (bus only).",
				Enum: []string{"ALL", "TRANSIT", "WALK", "BICYCLE", "NO_BUS", "NO_METRO"},
			},
			"depart_at": {
				Type:        "string",
				Description: "Departure time in ISO format (e.g. '2026-01-15T14:30:00'). Defaults to now. Mutually exclusive with arrive_by.",
			},
			"arrive_by": {
				Type:        "string",
				Description: "Arrival deadline in ISO format. Mutually exclusive with depart_at.",
			},
			"max_walk_distance": {
				Type:        "number",
				Description: "Maximum walking distance in meters (default: 800).",
			},
		}, "from_lat", "from_lon", "to_lat", "to_lon"),
	}
}

type plannerArgs struct {
	FromLat         *float64 `json:"from_lat"`
	FromLon         *float64 `json:"from_lon"`
	ToLat           *float64 `json:"to_lat"`
	ToLon           *float64 `json:"to_lon"`
	Mode            string   `json:"mode"`
	DepartAt        string   `json:"depart_at"`
	ArriveBy        string   `json:"arrive_by"`
	MaxWalkDistance *float64 `json:"max_walk_distance"`
}

// BikeStation describes a BIXI dock attached to a rental leg.
type BikeStation struct {
	StationID       string `json:"station_id,omitempty"`
	Name            string `json:"name,omitempty"`
	BikesAvailable  *int   `json:"bikes_available,omitempty"`
	SpacesAvailable *int   `json:"spaces_available,omitempty"`
}

// Leg is one uninterrupted segment of an itinerary on a single mode.
type Leg struct {
	Mode            string       `json:"mode"`
	From            string       `json:"from"`
	To              string       `json:"to"`
	Distance        float64      `json:"distance"`
	Duration        float64      `json:"duration"`
	DurationMinutes float64      `json:"duration_minutes"`
	StartTime       string       `json:"start_time,omitempty"` // HH:MM local
	EndTime         string       `json:"end_time,omitempty"`   // HH:MM local
	Route           string       `json:"route,omitempty"`
	RouteLongName   string       `json:"route_long_name,omitempty"`
	Headsign        string       `json:"headsign,omitempty"`
	RentedBike      bool         `json:"rented_bike"`
	FromBikeStation *BikeStation `json:"from_bixi_station,omitempty"`
	ToBikeStation   *BikeStation `json:"to_bixi_station,omitempty"`
}

// Itinerary is one complete proposed trip.
type Itinerary struct {
	Duration        float64 `json:"duration"`
	DurationMinutes float64 `json:"duration_minutes"`
	WalkDistance    float64 `json:"walk_distance"`
	Transfers       int     `json:"transfers"`
	StartTime       int64   `json:"start_time"`
	EndTime         int64   `json:"end_time"`
	Legs            []Leg   `json:"legs"`
}

// PlanResult is the ordered itinerary list, in the order the upstream
// planner returned them (not re-sorted locally).
type PlanResult struct {
	From        map[string]float64 `json:"from"`
	To          map[string]float64 `json:"to"`
	Itineraries []Itinerary        `json:"itineraries"`
	Count       int                `json:"count"`
}

func (t *PlannerTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var a plannerArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, invalidArgs("plan_trip", "malformed arguments: %v", err)
		}
	}
	if a.FromLat == nil || a.FromLon == nil || a.ToLat == nil || a.ToLon == nil {
		return nil, invalidArgs("plan_trip", "from_lat, from_lon, to_lat and to_lon are required")
	}
	for name, v := range map[string]float64{"from_lat": *a.FromLat, "to_lat": *a.ToLat} {
		if v < -90 || v > 90 {
			return nil, invalidArgs("plan_trip", "%s %v out of range [-90, 90]", name, v)
		}
	}
	for name, v := range map[string]float64{"from_lon": *a.FromLon, "to_lon": *a.ToLon} {
		if v < -180 || v > 180 {
			return nil, invalidArgs("plan_trip", "%s %v out of range [-180, 180]", name, v)
		}
	}

	mode := strings.ToUpper(strings.TrimSpace(a.Mode))
	if mode == "" {
		mode = "ALL"
	}
	transportModes, ok := plannerModes[mode]
	if !ok {
		return nil, invalidArgs("plan_trip", "mode %q is not one of ALL, TRANSIT, WALK, BICYCLE, NO_BUS, NO_METRO", a.Mode)
	}

	if a.DepartAt != "" && a.ArriveBy != "" {
		return nil, invalidArgs("plan_trip", "depart_at and arrive_by are mutually exclusive")
	}

	when := t.now().In(t.loc)
	arriveBy := false
	if ts := a.DepartAt + a.ArriveBy; ts != "" {
		parsed, err := parsePlannerTime(ts, t.loc)
		if err != nil {
			return nil, invalidArgs("plan_trip", "unparseable timestamp %q", ts)
		}
		when = parsed
		arriveBy = a.ArriveBy != ""
	}

	maxWalk := defaultMaxWalkMeters
	if a.MaxWalkDistance != nil && *a.MaxWalkDistance > 0 {
		maxWalk = *a.MaxWalkDistance
	}

	query := buildPlanQuery(*a.FromLat, *a.FromLon, *a.ToLat, *a.ToLon,
		strings.Join(transportModes, ", "), when.Format("2006-01-02T15:04:05"), arriveBy, maxWalk)

	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("marshaling plan query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating plan request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	t.log.Debug().
		Float64("fromLat", *a.FromLat).Float64("fromLon", *a.FromLon).
		Float64("toLat", *a.ToLat).Float64("toLon", *a.ToLon).
		Str("mode", mode).
		Msg("planning trip")

	resp, err := t.client.Do(req)
	if err != nil {
		t.log.Warn().Err(err).Msg("trip planner unreachable")
		return nil, upstreamErr("otp", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Service: "otp", Status: resp.StatusCode, Message: "trip planning request failed"}
	}

	var body otpResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, upstreamErr("otp", err)
	}
	if len(body.Errors) > 0 {
		return nil, &UpstreamError{Service: "otp", Message: "GraphQL error: " + body.Errors[0].Message}
	}
	if len(body.Data.Plan.Itineraries) == 0 {
		return nil, &UpstreamError{Service: "otp", Message: "no routes found for this trip"}
	}

	itineraries := body.Data.Plan.Itineraries
	if len(itineraries) > maxItineraries {
		itineraries = itineraries[:maxItineraries]
	}

	out := make([]Itinerary, 0, len(itineraries))
	for _, it := range itineraries {
		out = append(out, t.normalizeItinerary(it))
	}

	t.log.Debug().Int("itineraries", len(out)).Msg("trip planned")

	return PlanResult{
		From:        map[string]float64{"lat": *a.FromLat, "lon": *a.FromLon},
		To:          map[string]float64{"lat": *a.ToLat, "lon": *a.ToLon},
		Itineraries: out,
		Count:       len(out),
	}, nil
}

func (t *PlannerTool) normalizeItinerary(it otpItinerary) Itinerary {
	legs := make([]Leg, 0, len(it.Legs))
	for _, l := range it.Legs {
		leg := Leg{
			Mode:            l.Mode,
			From:            l.From.Name,
			To:              l.To.Name,
			Distance:        round2(l.Distance),
			Duration:        l.Duration,
			DurationMinutes: round1(l.Duration / 60),
			StartTime:       t.clockTime(l.StartTime),
			EndTime:         t.clockTime(l.EndTime),
			RentedBike:      l.RentedBike,
			FromBikeStation: normalizeStation(l.From.BikeRentalStation),
			ToBikeStation:   normalizeStation(l.To.BikeRentalStation),
		}
		if l.Route != nil {
			leg.Route = l.Route.ShortName
			leg.RouteLongName = l.Route.LongName
		}
		if l.Trip != nil {
			leg.Headsign = l.Trip.TripHeadsign
		}
		legs = append(legs, leg)
	}

	return Itinerary{
		Duration:        it.Duration,
		DurationMinutes: round1(it.Duration / 60),
		WalkDistance:    round2(it.WalkDistance),
		Transfers:       it.Transfers,
		StartTime:       it.StartTime,
		EndTime:         it.EndTime,
		Legs:            legs,
	}
}

// clockTime renders an epoch-milliseconds timestamp as HH:MM local time.
func (t *PlannerTool) clockTime(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).In(t.loc).Format("15:04")
}

func normalizeStation(s *otpBikeStation) *BikeStation {
	if s == nil {
		return nil
	}
	return &BikeStation{
		StationID:       s.StationID,
		Name:            s.Name,
		BikesAvailable:  s.BikesAvailable,
		SpacesAvailable: s.SpacesAvailable,
	}
}

// parsePlannerTime accepts RFC 3339 timestamps (with or without zone) and
// bare local datetimes.
func parsePlannerTime(s string, loc *time.Location) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, strings.Replace(s, "Z", "+00:00", 1)); err == nil {
		return ts.In(loc), nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.In(loc), nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", s, loc)
}

func buildPlanQuery(fromLat, fromLon, toLat, toLon float64, modes, date string, arriveBy bool, maxWalk float64) string {
	return fmt.Sprintf(`{
  plan(
    from: {lat: %v, lon: %v}
    to: {lat: %v, lon: %v}
    transportModes: [%s]
    numItineraries: %d
    date: %q
    arriveBy: %t
    maxWalkDistance: %v
  ) {
    itineraries {
      startTime
      endTime
      duration
      walkDistance
      transfers
      legs {
        mode
        startTime
        endTime
        duration
        distance
        rentedBike
        from { name lat lon bikeRentalStation { stationId name bikesAvailable spacesAvailable } }
        to { name lat lon bikeRentalStation { stationId name bikesAvailable spacesAvailable } }
        route { shortName longName }
        trip { tripHeadsign }
      }
    }
  }
}`, fromLat, fromLon, toLat, toLon, modes, maxItineraries, date, arriveBy, maxWalk)
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }

// OTP wire structures

type otpResponse struct {
	Data struct {
		Plan struct {
			Itineraries []otpItinerary `json:"itineraries"`
		} `json:"plan"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type otpItinerary struct {
	StartTime    int64    `json:"startTime"`
	EndTime      int64    `json:"endTime"`
	Duration     float64  `json:"duration"`
	WalkDistance float64  `json:"walkDistance"`
	Transfers    int      `json:"transfers"`
	Legs         []otpLeg `json:"legs"`
}

type otpLeg struct {
	Mode       string    `json:"mode"`
	StartTime  int64     `json:"startTime"`
	EndTime    int64     `json:"endTime"`
	Duration   float64   `json:"duration"`
	Distance   float64   `json:"distance"`
	RentedBike bool      `json:"rentedBike"`
	From       otpPlace  `json:"from"`
	To         otpPlace  `json:"to"`
	Route      *otpRoute `json:"route"`
	Trip       *otpTrip  `json:"trip"`
}

type otpPlace struct {
	Name              string          `json:"name"`
	Lat               float64         `json:"lat"`
	Lon               float64         `json:"lon"`
	BikeRentalStation *otpBikeStation `json:"bikeRentalStation"`
}

type otpBikeStation struct {
	StationID       string `json:"stationId"`
	Name            string `json:"name"`
	BikesAvailable  *int   `json:"bikesAvailable"`
	SpacesAvailable *int   `json:"spacesAvailable"`
}

type otpRoute struct {
	ShortName string `json:"shortName"`
	LongName  string `json:"longName"`
}

type otpTrip struct {
	TripHeadsign string `json:"tripHeadsign"`
}
