package types

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// TransportMode selects the routing profile for a tour.
type TransportMode string

const (
	TransportWalking TransportMode = "walking"
	TransportDriving TransportMode = "driving"
	TransportTransit TransportMode = "transit"
)

func (m TransportMode) Valid() bool {
	switch m {
	case TransportWalking, TransportDriving, TransportTransit:
		return true
	}
	return false
}

// TimeConstraint is the overall trip duration selected by the user.
type TimeConstraint string

const (
	TimeHalfDay   TimeConstraint = "6h"
	TimeDay       TimeConstraint = "day"
	TimeTwoDays   TimeConstraint = "2days"
	TimeThreeDays TimeConstraint = "3days"
	TimeFiveDays  TimeConstraint = "5days"
)

func (t TimeConstraint) Valid() bool {
	switch t {
	case TimeHalfDay, TimeDay, TimeTwoDays, TimeThreeDays, TimeFiveDays:
		return true
	}
	return false
}

// NumDays maps a time constraint to the number of itinerary days.
func (t TimeConstraint) NumDays() int {
	switch t {
	case TimeTwoDays:
		return 2
	case TimeThreeDays:
		return 3
	case TimeFiveDays:
		return 5
	default:
		return 1
	}
}

// Coordinates is a validated lat/lng pair. Value type, never mutated.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (c Coordinates) Validate() error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || math.IsNaN(c.Lng) || math.IsInf(c.Lng, 0) {
		return errors.New("coordinates must be finite")
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %f out of range [-90, 90]", c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("longitude %f out of range [-180, 180]", c.Lng)
	}
	return nil
}

// OpeningHours carries display text; structured periods stay empty when the
// source only provides an opening_hours tag string.
type OpeningHours struct {
	IsOpen      bool       `json:"is_open"`
	Periods     []struct{} `json:"periods"`
	WeekdayText []string   `json:"weekday_text"`
}

// POI is a validated, immutable place. Coordinates of spatial-source POIs
// (place_id prefix "osm_") must lie within 30 km of the resolved city center.
type POI struct {
	PlaceID              string        `json:"place_id"`
	Name                 string        `json:"name"`
	Coordinates          Coordinates   `json:"coordinates"`
	MapsURL              string        `json:"maps_url"`
	OpeningHours         *OpeningHours `json:"opening_hours,omitempty"`
	PriceLevel           *int          `json:"price_level,omitempty"`
	Confidence           float64       `json:"confidence"`
	Photos               []string      `json:"photos,omitempty"`
	Address              string        `json:"address,omitempty"`
	Types                []string      `json:"types,omitempty"`
	VisitDurationMinutes int           `json:"visit_duration_minutes,omitempty"`
	WhyVisit             string        `json:"why_visit,omitempty"`
	Admission            string        `json:"admission,omitempty"`
	AdmissionURL         string        `json:"admission_url,omitempty"`
	Specialty            string        `json:"specialty,omitempty"`
}

// LandmarkSuggestion is an LLM-produced candidate. It has no coordinates by
// construction; the geocoder lifts it into a POI or rejects it.
type LandmarkSuggestion struct {
	Name               string  `json:"name"`
	Category           string  `json:"category"`
	WhyVisit           string  `json:"why_visit"`
	VisitDurationHours float64 `json:"visit_duration_hours"`
	Admission          string  `json:"admission,omitempty"`
	AdmissionURL       string  `json:"admission_url,omitempty"`
	Specialty          string  `json:"specialty,omitempty"`
}

// StructuredQuery is the LLM's interpretation of free-text user input.
type StructuredQuery struct {
	City     string   `json:"city"`
	Area     string   `json:"area,omitempty"`
	POITypes []string `json:"poi_types"`
	Keywords []string `json:"keywords"`
}

// RouteLeg connects two consecutive POIs of a route.
type RouteLeg struct {
	FromPOI  POI    `json:"from_poi"`
	ToPOI    POI    `json:"to_poi"`
	Distance int    `json:"distance"`
	Duration int    `json:"duration"`
	Polyline string `json:"polyline"`
}

// Route is an ordered tour through at most 25 POIs.
type Route struct {
	OrderedPOIs   []POI         `json:"ordered_pois"`
	Polyline      string        `json:"polyline"`
	TotalDistance int           `json:"total_distance"`
	TotalDuration int           `json:"total_duration"`
	TransportMode TransportMode `json:"transport_mode"`
	Legs          []RouteLeg    `json:"legs"`
	StartingPoint *Coordinates  `json:"starting_point,omitempty"`
	IsRoundTrip   bool          `json:"is_round_trip"`
}

// DayPlan holds one day of a multi-day itinerary. Normal partitioning keeps
// 3..10 POIs per day; force-assignment may overflow to 11 as a last resort.
type DayPlan struct {
	DayNumber             int     `json:"day_number"`
	Theme                 string  `json:"theme,omitempty"`
	Zone                  string  `json:"zone,omitempty"`
	POIs                  []POI   `json:"pois"`
	Route                 *Route  `json:"route,omitempty"`
	TotalVisitTimeMinutes int     `json:"total_visit_time_minutes"`
	TotalWalkingKm        float64 `json:"total_walking_km"`
	IsDayTrip             bool    `json:"is_day_trip"`
}

// Itinerary is the top-level result of the pipeline. POIs equals the
// concatenation of day POIs in order when Days is set.
type Itinerary struct {
	ID               string          `json:"id"`
	City             string          `json:"city"`
	POIs             []POI           `json:"pois"`
	Route            Route           `json:"route"`
	CreatedAt        time.Time       `json:"created_at"`
	TransportMode    TransportMode   `json:"transport_mode"`
	TimeConstraint   *TimeConstraint `json:"time_constraint,omitempty"`
	AIExplanation    string          `json:"ai_explanation,omitempty"`
	StartingLocation string          `json:"starting_location,omitempty"`
	GoogleMapsURL    string          `json:"google_maps_url,omitempty"`
	Days             []DayPlan       `json:"days,omitempty"`
	TotalDays        int             `json:"total_days"`
}

// DistanceMatrix pairs meter and second matrices aligned to an ordered POI
// list. Diagonals are zero; the matrix need not be symmetric.
type DistanceMatrix struct {
	Distances [][]float64 `json:"distances"`
	Durations [][]float64 `json:"durations"`
}

func NewDistanceMatrix(n int) *DistanceMatrix {
	m := &DistanceMatrix{
		Distances: make([][]float64, n),
		Durations: make([][]float64, n),
	}
	for i := range m.Distances {
		m.Distances[i] = make([]float64, n)
		m.Durations[i] = make([]float64, n)
	}
	return m
}
