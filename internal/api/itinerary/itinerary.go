package itinerary

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/citywalker/go-city-walker/internal/types"
)

// CreateItineraryRequest is the POST /api/itinerary payload.
type CreateItineraryRequest struct {
	Location            string                `json:"location"`
	TransportMode       types.TransportMode   `json:"transport_mode"`
	Interests           []string              `json:"interests,omitempty"`
	TimeAvailable       *types.TimeConstraint `json:"time_available,omitempty"`
	StartingLocation    string                `json:"starting_location,omitempty"`
	StartingCoordinates *types.Coordinates    `json:"starting_coordinates,omitempty"`
}

// DiscoverRequest is the POST /api/discover payload.
type DiscoverRequest struct {
	City        string   `json:"city"`
	Interests   []string `json:"interests,omitempty"`
	Limit       int      `json:"limit,omitempty"`
	IncludeFood bool     `json:"include_food,omitempty"`
}

// DiscoverFoodRequest is the POST /api/discover/food payload.
type DiscoverFoodRequest struct {
	City     string `json:"city"`
	Category string `json:"category"`
	Limit    int    `json:"limit,omitempty"`
}

// RouteFromSelectionRequest is the POST /api/route/from-selection payload.
type RouteFromSelectionRequest struct {
	POIs                []types.POI         `json:"pois"`
	TransportMode       types.TransportMode `json:"transport_mode"`
	NumDays             int                 `json:"num_days,omitempty"`
	StartingCoordinates *types.Coordinates  `json:"starting_coordinates,omitempty"`
}

// GeocodeRequest is the POST /api/geocode payload.
type GeocodeRequest struct {
	Query string `json:"query"`
	City  string `json:"city,omitempty"`
}

// BatchGeocodeRequest is the POST /api/geocode/batch payload.
type BatchGeocodeRequest struct {
	City  string   `json:"city"`
	Names []string `json:"names"`
}

// LookupPOIsRequest is the POST /api/pois/lookup payload.
type LookupPOIsRequest struct {
	City  string   `json:"city"`
	Names []string `json:"names"`
}

// ValidationStats reports how POIs of a discovery response were
// validated and how long that took.
type ValidationStats struct {
	Method         string  `json:"method"`
	Count          int     `json:"count"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// DiscoverResponse is the cached body of discovery endpoints. FoodPOIs
// is populated only when the request asked for the food list alongside
// the landmarks.
type DiscoverResponse struct {
	City            string           `json:"city"`
	Category        string           `json:"category,omitempty"`
	POIs            []types.POI      `json:"pois"`
	FoodPOIs        []types.POI      `json:"food_pois,omitempty"`
	Count           int              `json:"count"`
	ValidationStats *ValidationStats `json:"validation_stats,omitempty"`
}

// aiInterests prefer the LLM suggestion path; osmInterests prefer the
// spatial tag-query path. Both arms may run when interests mix.
var aiInterests = map[string]struct{}{
	"landmarks": {}, "museums": {}, "history": {}, "churches": {},
	"culture": {}, "architecture": {}, "art": {}, "religious": {},
	"sightseeing": {},
}

var osmInterests = map[string]struct{}{
	"cafes": {}, "coffee": {}, "bars": {}, "nightlife": {}, "clubs": {},
	"markets": {}, "shopping": {}, "restaurants": {}, "food": {},
	"parks": {}, "nature": {}, "gardens": {},
}

// classifyInterests decides which discovery arms to run. Empty or
// unrecognized interests default to the LLM arm.
func classifyInterests(interests []string) (useAI, useOSM bool) {
	for _, raw := range interests {
		interest := strings.ToLower(strings.TrimSpace(raw))
		if _, ok := aiInterests[interest]; ok {
			useAI = true
		}
		if _, ok := osmInterests[interest]; ok {
			useOSM = true
		}
	}
	if !useAI && !useOSM {
		useAI = true
	}
	return useAI, useOSM
}

// orchestratorCap limits how many POIs enter routing per constraint.
// The optimizer has its own cap; the effective limit is the smaller.
var orchestratorCap = map[types.TimeConstraint]int{
	types.TimeHalfDay:   6,
	types.TimeDay:       10,
	types.TimeTwoDays:   20,
	types.TimeThreeDays: 30,
	types.TimeFiveDays:  50,
}

func poiCap(constraint *types.TimeConstraint) int {
	if constraint != nil {
		if n, ok := orchestratorCap[*constraint]; ok {
			return n
		}
	}
	return 10
}

// foodCategoryAliases folds free-form category names onto the four
// supported ones.
var foodCategoryAliases = map[string]string{
	"cafe": "cafes", "cafes": "cafes", "coffee": "cafes",
	"restaurant": "restaurants", "restaurants": "restaurants", "food": "restaurants",
	"bar": "bars", "bars": "bars", "pub": "bars",
	"park": "parks", "parks": "parks", "garden": "parks",
}

func normalizeFoodCategory(category string) (string, bool) {
	c, ok := foodCategoryAliases[strings.ToLower(strings.TrimSpace(category))]
	return c, ok
}

// syntheticPlaceID derives a stable id for POIs that did not come from
// the spatial store.
func syntheticPlaceID(prefix, name string) string {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(name)))
	return fmt.Sprintf("%s_%s_%d", prefix, strings.ReplaceAll(strings.ToLower(name), " ", "_"), h.Sum32()%10000)
}

// buildExplanation picks one of four templates depending on whether the
// tour has a custom start and spans multiple days.
func buildExplanation(city string, numPOIs, numDays int, mode types.TransportMode, hasStart bool) string {
	modeWord := map[types.TransportMode]string{
		types.TransportWalking: "walking",
		types.TransportDriving: "driving",
		types.TransportTransit: "public-transport",
	}[mode]

	switch {
	case hasStart && numDays > 1:
		return fmt.Sprintf("Starting from your chosen location, this %s itinerary spreads %d highlights of %s across %d days, with each day's stops grouped to minimize backtracking.",
			modeWord, numPOIs, city, numDays)
	case hasStart:
		return fmt.Sprintf("Starting from your chosen location, this optimized %s tour covers %d highlights of %s in an order that keeps the total travel time low.",
			modeWord, numPOIs, city)
	case numDays > 1:
		return fmt.Sprintf("This %s itinerary spreads %d highlights of %s across %d days, grouping nearby sights on the same day.",
			modeWord, numPOIs, city, numDays)
	default:
		return fmt.Sprintf("This optimized %s tour covers %d highlights of %s in an order that keeps the total travel time low.",
			modeWord, numPOIs, city)
	}
}

func formatCoord(c types.Coordinates) string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lng, 'f', -1, 64)
}

// buildGoogleMapsURL composes a directions deep link over the ordered
// stops. With a round trip the start is both origin and destination.
func buildGoogleMapsURL(route *types.Route) string {
	if route == nil || len(route.OrderedPOIs) == 0 {
		return ""
	}
	stops := make([]string, 0, len(route.OrderedPOIs))
	for _, p := range route.OrderedPOIs {
		stops = append(stops, formatCoord(p.Coordinates))
	}

	var origin, destination string
	waypoints := stops
	if route.StartingPoint != nil {
		origin = formatCoord(*route.StartingPoint)
		if route.IsRoundTrip {
			destination = origin
		} else {
			destination = stops[len(stops)-1]
			waypoints = stops[:len(stops)-1]
		}
	} else {
		origin = stops[0]
		destination = stops[len(stops)-1]
		waypoints = nil
		if len(stops) > 2 {
			waypoints = stops[1 : len(stops)-1]
		}
	}

	travelmode := "walking"
	switch route.TransportMode {
	case types.TransportDriving:
		travelmode = "driving"
	case types.TransportTransit:
		travelmode = "transit"
	}

	// Built by hand: the client contract fixes the parameter order and
	// keeps the lat,lng commas readable.
	var sb strings.Builder
	sb.WriteString("https://www.google.com/maps/dir/?api=1")
	sb.WriteString("&origin=" + origin)
	sb.WriteString("&destination=" + destination)
	if len(waypoints) > 0 {
		sb.WriteString("&waypoints=" + strings.Join(waypoints, "%7C"))
	}
	sb.WriteString("&travelmode=" + travelmode)
	return sb.String()
}
