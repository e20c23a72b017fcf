package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/mtlfinder/voyago/internal/logging"
)

// delayThresholdSeconds is the minimum absolute schedule deviation that
// counts as a service disruption. Smaller deviations are routine.
const delayThresholdSeconds = 120

// metroRoutes are the STM metro line route ids (green, orange, yellow, blue).
var metroRoutes = map[string]bool{"1": true, "2": true, "4": true, "5": true}

var metroLineNames = map[string]string{
	"1": "Green line",
	"2": "Orange line",
	"4": "Yellow line",
	"5": "Blue line",
}

// AlertsTool reads the STM GTFS-realtime trip-updates feed and summarizes
// routes running significantly off schedule.
type AlertsTool struct {
	feedURL string
	apiKey  string
	client  *http.Client
	log     *logging.Logger
}

// NewAlertsTool creates the transit-alerts tool against the STM trip-updates
// feed URL. The API key is sent in the apikey header.
func NewAlertsTool(feedURL, apiKey string, client *http.Client, log *logging.Logger) *AlertsTool {
	return &AlertsTool{
		feedURL: feedURL,
		apiKey:  apiKey,
		client:  client,
		log:     log.Component("tools.alerts"),
	}
}

func (t *AlertsTool) Declaration() Declaration {
	return Declaration{
		Name: "get_stm_alerts",
		Description: "Get current STM service disruptions (metro and bus delays) from real-time data. " +
			"Check this before recommending a metro or bus itinerary.",
		Parameters: ObjectSchema(map[string]Property{
			"route_type": {
				Type:        "string",
				Description: "Filter by route type: 'metro', 'bus', or 'all' (default).",
				Enum:        []string{"metro", "bus", "all"},
			},
		}),
	}
}

type alertsArgs struct {
	RouteType string `json:"route_type"`
}

// RouteDisruption summarizes schedule deviation on one route.
type RouteDisruption struct {
	Route           string  `json:"route"`
	RouteType       string  `json:"route_type"`
	Line            string  `json:"line,omitempty"`
	DelayedTrips    int     `json:"delayed_trips"`
	AvgDelaySeconds float64 `json:"avg_delay_seconds"`
	MaxDelaySeconds int     `json:"max_delay_seconds"`
	Summary         string  `json:"summary"`
}

// AlertsResult is the feed-wide disruption summary.
type AlertsResult struct {
	RouteType   string            `json:"route_type"`
	Disruptions []RouteDisruption `json:"disruptions"`
	Count       int               `json:"count"`
	Message     string            `json:"message,omitempty"`
}

func (t *AlertsTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var a alertsArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, invalidArgs("get_stm_alerts", "malformed arguments: %v", err)
		}
	}
	routeType := strings.ToLower(strings.TrimSpace(a.RouteType))
	if routeType == "" {
		routeType = "all"
	}
	if routeType != "metro" && routeType != "bus" && routeType != "all" {
		return nil, invalidArgs("get_stm_alerts", "route_type %q is not one of metro, bus, all", a.RouteType)
	}

	feed, err := t.fetchFeed(ctx)
	if err != nil {
		return nil, err
	}

	disruptions := summarizeDisruptions(feed, routeType)

	t.log.Debug().
		Str("routeType", routeType).
		Int("entities", len(feed.GetEntity())).
		Int("disruptions", len(disruptions)).
		Msg("fetched transit alerts")

	result := AlertsResult{
		RouteType:   routeType,
		Disruptions: disruptions,
		Count:       len(disruptions),
	}
	if len(disruptions) == 0 {
		result.Message = "No significant delays reported. Service is running normally."
	}
	return result, nil
}

func (t *AlertsTool) fetchFeed(ctx context.Context) (*gtfs.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating trip-updates request: %w", err)
	}
	req.Header.Set("apikey", t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		t.log.Warn().Err(err).Msg("trip-updates feed unreachable")
		return nil, upstreamErr("stm", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Service: "stm", Status: resp.StatusCode, Message: "trip-updates request failed"}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, upstreamErr("stm", err)
	}

	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(raw, feed); err != nil {
		return nil, &UpstreamError{Service: "stm", Message: "malformed GTFS-realtime feed", Err: err}
	}
	return feed, nil
}

type routeDelays struct {
	delays []int
}

// summarizeDisruptions folds the feed into per-route delay aggregates,
// keeping only trips deviating more than the threshold in either direction.
func summarizeDisruptions(feed *gtfs.FeedMessage, routeType string) []RouteDisruption {
	perRoute := make(map[string]*routeDelays)

	for _, entity := range feed.GetEntity() {
		tripUpdate := entity.GetTripUpdate()
		if tripUpdate == nil {
			continue
		}
		routeID := tripUpdate.GetTrip().GetRouteId()
		if routeID == "" {
			continue
		}
		if !matchesRouteType(routeID, routeType) {
			continue
		}

		delay := worstDelay(tripUpdate)
		if delay == 0 || abs(delay) <= delayThresholdSeconds {
			continue
		}

		agg := perRoute[routeID]
		if agg == nil {
			agg = &routeDelays{}
			perRoute[routeID] = agg
		}
		agg.delays = append(agg.delays, delay)
	}

	routes := make([]string, 0, len(perRoute))
	for r := range perRoute {
		routes = append(routes, r)
	}
	sort.Strings(routes)

	disruptions := make([]RouteDisruption, 0, len(routes))
	for _, route := range routes {
		disruptions = append(disruptions, buildDisruption(route, perRoute[route].delays))
	}
	return disruptions
}

// worstDelay picks the largest absolute deviation across a trip's stop-time
// updates, preferring arrival events over departure events at each stop.
func worstDelay(tripUpdate *gtfs.TripUpdate) int {
	worst := 0
	for _, stu := range tripUpdate.GetStopTimeUpdate() {
		delay := 0
		if arrival := stu.GetArrival(); arrival != nil && arrival.Delay != nil {
			delay = int(arrival.GetDelay())
		} else if departure := stu.GetDeparture(); departure != nil && departure.Delay != nil {
			delay = int(departure.GetDelay())
		}
		if abs(delay) > abs(worst) {
			worst = delay
		}
	}
	return worst
}

func buildDisruption(route string, delays []int) RouteDisruption {
	sum, maxDelay := 0, 0
	for _, d := range delays {
		sum += d
		if abs(d) > abs(maxDelay) {
			maxDelay = d
		}
	}
	avg := float64(sum) / float64(len(delays))

	d := RouteDisruption{
		Route:           route,
		RouteType:       routeTypeOf(route),
		Line:            metroLineNames[route],
		DelayedTrips:    len(delays),
		AvgDelaySeconds: math.Round(avg*10) / 10,
		MaxDelaySeconds: maxDelay,
	}
	d.Summary = disruptionSummary(d)
	return d
}

func disruptionSummary(d RouteDisruption) string {
	name := d.Line
	if name == "" {
		name = "Route " + d.Route
	}
	minutes := math.Abs(d.AvgDelaySeconds) / 60
	if d.AvgDelaySeconds < 0 {
		return fmt.Sprintf("%s is running ahead of schedule by about %.0f min on %d trips", name, minutes, d.DelayedTrips)
	}
	return fmt.Sprintf("%s is delayed by about %.0f min on %d trips", name, minutes, d.DelayedTrips)
}

func matchesRouteType(routeID, routeType string) bool {
	switch routeType {
	case "metro":
		return metroRoutes[routeID]
	case "bus":
		return !metroRoutes[routeID]
	default:
		return true
	}
}

func routeTypeOf(routeID string) string {
	if metroRoutes[routeID] {
		return "metro"
	}
	return "bus"
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
