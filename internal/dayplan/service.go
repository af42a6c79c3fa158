package dayplan

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/citywalker/go-city-walker/internal/geoutil"
	"github.com/citywalker/go-city-walker/internal/routing"
	"github.com/citywalker/go-city-walker/internal/types"
)

const (
	maxPOIsPerDay = 10
	minPOIsPerDay = 3
	// dayTripRadiusKm marks a day as an excursion when its stops sit
	// this far from the tour's center of gravity.
	dayTripRadiusKm = 10
)

var _ Service = (*ServiceImpl)(nil)

// Service splits an itinerary's POIs across days.
type Service interface {
	// OrganizePOIsIntoDays groups POIs into numbered day plans with a
	// theme and, for days with at least two stops, road geometry.
	OrganizePOIsIntoDays(ctx context.Context, pois []types.POI, numDays int, mode types.TransportMode, preserveOrder bool) []types.DayPlan
}

type ServiceImpl struct {
	logger  *slog.Logger
	routing routing.Service
}

func NewServiceImpl(routingSvc routing.Service, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{logger: logger, routing: routingSvc}
}

func (s *ServiceImpl) OrganizePOIsIntoDays(ctx context.Context, pois []types.POI, numDays int, mode types.TransportMode, preserveOrder bool) []types.DayPlan {
	ctx, span := otel.Tracer("DayPlanService").Start(ctx, "OrganizePOIsIntoDays", trace.WithAttributes(
		attribute.Int("pois.count", len(pois)),
		attribute.Int("days", numDays),
	))
	defer span.End()

	if len(pois) == 0 {
		return nil
	}
	if numDays < 1 {
		numDays = 1
	}

	ordered := pois
	if !preserveOrder {
		ordered = geographicOrder(pois)
	}

	days := partition(ordered, numDays)
	center := tourCentroid(pois)
	plans := make([]types.DayPlan, 0, len(days))
	for i, dayPOIs := range days {
		plan := types.DayPlan{
			DayNumber: i + 1,
			Theme:     themeFor(dayPOIs),
			Zone:      zoneFor(dayPOIs, center),
			POIs:      dayPOIs,
			IsDayTrip: isDayTrip(dayPOIs, center),
		}
		for _, p := range dayPOIs {
			plan.TotalVisitTimeMinutes += p.VisitDurationMinutes
		}
		if len(dayPOIs) >= 2 {
			plan.Route = s.dayRoute(ctx, dayPOIs, mode)
			if plan.Route != nil {
				plan.TotalWalkingKm = float64(plan.Route.TotalDistance) / 1000
			}
		}
		plans = append(plans, plan)
	}
	span.SetAttributes(attribute.Int("days.count", len(plans)))
	span.SetStatus(codes.Ok, "Days organized")
	return plans
}

// geographicOrder walks the POIs greedily from the one closest to the
// centroid, so consecutive stops stay near each other.
func geographicOrder(pois []types.POI) []types.POI {
	if len(pois) < 3 {
		return pois
	}
	center := tourCentroid(pois)
	remaining := append([]types.POI(nil), pois...)
	sort.SliceStable(remaining, func(i, j int) bool {
		return geoutil.DistanceMeters(center, remaining[i].Coordinates) <
			geoutil.DistanceMeters(center, remaining[j].Coordinates)
	})

	ordered := make([]types.POI, 0, len(remaining))
	current := remaining[0]
	ordered = append(ordered, current)
	remaining = remaining[1:]
	for len(remaining) > 0 {
		best, bestDist := 0, math.MaxFloat64
		for i, p := range remaining {
			if d := geoutil.DistanceMeters(current.Coordinates, p.Coordinates); d < bestDist {
				best, bestDist = i, d
			}
		}
		current = remaining[best]
		ordered = append(ordered, current)
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return ordered
}

// partition fills days front to back, targeting an even share clamped
// to 3..10 stops per day. Whatever remains goes to the emptiest day,
// to a fresh day while the requested count allows, or over the cap as
// a last resort.
func partition(ordered []types.POI, numDays int) [][]types.POI {
	if numDays == 1 {
		day := ordered
		if len(day) > maxPOIsPerDay {
			day = day[:maxPOIsPerDay]
		}
		return [][]types.POI{day}
	}

	var days [][]types.POI
	idx := 0
	for day := 0; day < numDays && idx < len(ordered); day++ {
		remainingDays := numDays - day
		target := int(math.Ceil(float64(len(ordered)-idx) / float64(remainingDays)))
		if target < minPOIsPerDay {
			target = minPOIsPerDay
		}
		if target > maxPOIsPerDay {
			target = maxPOIsPerDay
		}
		end := idx + target
		if end > len(ordered) {
			end = len(ordered)
		}
		// Cap the slice so force-assign appends below reallocate instead
		// of writing into the next day's share of the backing array.
		days = append(days, ordered[idx:end:end])
		idx = end
	}

	for ; idx < len(ordered); idx++ {
		smallest := 0
		for i := range days {
			if len(days[i]) < len(days[smallest]) {
				smallest = i
			}
		}
		switch {
		case len(days[smallest]) < maxPOIsPerDay:
			days[smallest] = append(days[smallest], ordered[idx])
		case len(days) < numDays:
			days = append(days, []types.POI{ordered[idx]})
		default:
			days[smallest] = append(days[smallest], ordered[idx])
		}
	}
	return days
}

func (s *ServiceImpl) dayRoute(ctx context.Context, pois []types.POI, mode types.TransportMode) *types.Route {
	points := make([]types.Coordinates, len(pois))
	for i, p := range pois {
		points[i] = p.Coordinates
	}
	g, err := s.routing.RouteGeometry(ctx, points, mode)
	if err != nil {
		s.logger.WarnContext(ctx, "day route geometry unavailable", slog.Any("error", err))
		return nil
	}
	return &types.Route{
		OrderedPOIs:   pois,
		Polyline:      g.Geometry,
		TotalDistance: int(g.Distance),
		TotalDuration: int(g.Duration),
		TransportMode: mode,
	}
}

func tourCentroid(pois []types.POI) types.Coordinates {
	points := make([]types.Coordinates, len(pois))
	for i, p := range pois {
		points[i] = p.Coordinates
	}
	return geoutil.Centroid(points)
}

// categoryThemes names a day after its dominant POI category.
var categoryThemes = map[string]string{
	"museum":    "Art & Museums",
	"church":    "Historic Churches",
	"landmark":  "Famous Landmarks",
	"park":      "Parks & Gardens",
	"palace":    "Royal Palaces",
	"square":    "Historic Squares",
	"market":    "Markets & Shopping",
	"viewpoint": "Scenic Views",
	"cafe":      "Cafes & Culture",
	"bar":       "Nightlife",
}

const defaultTheme = "City Exploration"

func themeFor(pois []types.POI) string {
	votes := make(map[string]int)
	for _, p := range pois {
		for _, t := range p.Types {
			if _, known := categoryThemes[t]; known {
				votes[t]++
				break
			}
		}
	}
	bestCategory, bestVotes := "", 0
	for category, n := range votes {
		if n > bestVotes || (n == bestVotes && category < bestCategory) {
			bestCategory, bestVotes = category, n
		}
	}
	if bestVotes == 0 {
		return defaultTheme
	}
	return categoryThemes[bestCategory]
}

// zoneFor labels where a day's stops sit relative to the tour center.
func zoneFor(pois []types.POI, center types.Coordinates) string {
	if len(pois) == 0 {
		return ""
	}
	dayCenter := tourCentroid(pois)
	if geoutil.DistanceKm(center, dayCenter) < 1 {
		return "central"
	}
	var ns, ew string
	if dayCenter.Lat > center.Lat {
		ns = "north"
	} else {
		ns = "south"
	}
	if dayCenter.Lng > center.Lng {
		ew = "east"
	} else {
		ew = "west"
	}
	return ns + "-" + ew
}

func isDayTrip(pois []types.POI, center types.Coordinates) bool {
	for _, p := range pois {
		if geoutil.DistanceKm(center, p.Coordinates) > dayTripRadiusKm {
			return true
		}
	}
	return false
}
