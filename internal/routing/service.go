package routing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/citywalker/go-city-walker/internal/geoutil"
	"github.com/citywalker/go-city-walker/internal/httpclient"
	"github.com/citywalker/go-city-walker/internal/types"
)

// maxBatchWaypoints caps a single OSRM route request; longer tours are
// fetched in overlapping batches and stitched.
const maxBatchWaypoints = 25

// timeLimitSeconds is the travel-time budget per time constraint.
var timeLimitSeconds = map[types.TimeConstraint]float64{
	types.TimeHalfDay:   21600,
	types.TimeDay:       28800,
	types.TimeTwoDays:   57600,
	types.TimeThreeDays: 86400,
	types.TimeFiveDays:  144000,
}

var maxPOIsByConstraint = map[types.TimeConstraint]int{
	types.TimeHalfDay:   25,
	types.TimeDay:       30,
	types.TimeTwoDays:   40,
	types.TimeThreeDays: 50,
	types.TimeFiveDays:  50,
}

// MaxPOIs is the optimizer-side cap on tour size for a constraint.
func MaxPOIs(constraint *types.TimeConstraint) int {
	if constraint != nil {
		if n, ok := maxPOIsByConstraint[*constraint]; ok {
			return n
		}
	}
	return 30
}

// Options control how a tour is assembled.
type Options struct {
	Mode          types.TransportMode
	Constraint    *types.TimeConstraint
	StartingPoint *types.Coordinates
	RoundTrip     bool
}

var _ Service = (*ServiceImpl)(nil)

// Service turns a POI set into an ordered, time-feasible route.
type Service interface {
	// CreateOptimizedRoute orders the POIs, trims them to the time
	// budget and attaches road geometry.
	CreateOptimizedRoute(ctx context.Context, pois []types.POI, opts Options) (*types.Route, error)
	// RouteGeometry fetches geometry and totals for an already-ordered
	// sequence of points.
	RouteGeometry(ctx context.Context, points []types.Coordinates, mode types.TransportMode) (*Geometry, error)
}

type ServiceImpl struct {
	logger *slog.Logger
	osrm   *osrmClient
}

func NewServiceImpl(osrmBaseURL, userAgent string, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger: logger,
		osrm: &osrmClient{
			baseURL: osrmBaseURL,
			http: httpclient.New(httpclient.Options{
				Timeout:   30 * time.Second,
				UserAgent: userAgent,
				Logger:    logger,
			}),
		},
	}
}

func (s *ServiceImpl) CreateOptimizedRoute(ctx context.Context, pois []types.POI, opts Options) (*types.Route, error) {
	ctx, span := otel.Tracer("RoutingService").Start(ctx, "CreateOptimizedRoute", trace.WithAttributes(
		attribute.Int("pois.count", len(pois)),
		attribute.String("mode", string(opts.Mode)),
	))
	defer span.End()

	if len(pois) == 0 {
		return nil, types.ErrNoPOIs
	}
	if limit := MaxPOIs(opts.Constraint); len(pois) > limit {
		pois = pois[:limit]
	}

	points := make([]types.Coordinates, len(pois))
	for i, p := range pois {
		points[i] = p.Coordinates
	}

	matrix, err := s.osrm.table(ctx, opts.Mode, points)
	if err != nil {
		s.logger.WarnContext(ctx, "osrm table unavailable, using straight-line matrix",
			slog.Any("error", err))
		matrix = haversineMatrix(points, opts.Mode)
	}

	seedStart := -1
	if opts.StartingPoint != nil {
		seedStart = nearestPointIndex(*opts.StartingPoint, points)
	}
	order := optimizeOrder(matrix, seedStart)
	order = trimToTimeBudget(matrix, order, opts.Constraint)

	ordered := make([]types.POI, len(order))
	for i, idx := range order {
		ordered[i] = pois[idx]
	}

	waypoints := routeWaypoints(ordered, opts)
	geometry, roadDistance, roadDuration, geomErr := s.stitchedGeometry(ctx, waypoints, opts.Mode)
	if geomErr != nil {
		s.logger.WarnContext(ctx, "osrm route unavailable, using straight-line geometry",
			slog.Any("error", geomErr))
		geometry = geoutil.EncodePolyline(waypoints)
	}

	legs := buildLegs(ordered, opts)
	var totalDistance, totalDuration int
	if geomErr == nil && roadDistance > 0 {
		// Road totals come from the fetched geometry. The foot profile
		// stands in for transit, so its durations are renormalized.
		if opts.Mode == types.TransportTransit {
			roadDuration = legDuration(roadDistance, opts.Mode)
		}
		totalDistance, totalDuration = int(roadDistance), int(roadDuration)
	} else {
		for _, leg := range legs {
			totalDistance += leg.Distance
			totalDuration += leg.Duration
		}
	}

	route := &types.Route{
		OrderedPOIs:   ordered,
		Polyline:      geometry,
		TotalDistance: totalDistance,
		TotalDuration: totalDuration,
		TransportMode: opts.Mode,
		Legs:          legs,
		StartingPoint: opts.StartingPoint,
		IsRoundTrip:   opts.RoundTrip,
	}
	span.SetAttributes(
		attribute.Int("route.pois", len(ordered)),
		attribute.Int("route.duration_s", totalDuration),
	)
	span.SetStatus(codes.Ok, "Route created")
	return route, nil
}

func nearestPointIndex(from types.Coordinates, points []types.Coordinates) int {
	best, bestDist := 0, 0.0
	for i, p := range points {
		d := geoutil.DistanceMeters(from, p)
		if i == 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// trimToTimeBudget drops tail stops once travel time accumulated along
// the tour exceeds the constraint's budget. Travel comes straight from
// the duration matrix; at least one stop always survives.
func trimToTimeBudget(m *types.DistanceMatrix, order []int, constraint *types.TimeConstraint) []int {
	if constraint == nil {
		return order
	}
	limit, ok := timeLimitSeconds[*constraint]
	if !ok {
		return order
	}
	elapsed := 0.0
	for i := 1; i < len(order); i++ {
		elapsed += m.Durations[order[i-1]][order[i]]
		if elapsed > limit {
			return order[:i]
		}
	}
	return order
}

// routeWaypoints assembles the geometry waypoint list, with the
// starting point prepended and, for round trips, appended.
func routeWaypoints(ordered []types.POI, opts Options) []types.Coordinates {
	waypoints := make([]types.Coordinates, 0, len(ordered)+2)
	if opts.StartingPoint != nil {
		waypoints = append(waypoints, *opts.StartingPoint)
	}
	for _, p := range ordered {
		waypoints = append(waypoints, p.Coordinates)
	}
	if opts.RoundTrip && opts.StartingPoint != nil {
		waypoints = append(waypoints, *opts.StartingPoint)
	}
	return waypoints
}

// stitchedGeometry fetches road geometry in batches of up to 25
// waypoints that overlap by one point, merges the decoded shapes and
// sums the per-batch road distance and duration.
func (s *ServiceImpl) stitchedGeometry(ctx context.Context, waypoints []types.Coordinates, mode types.TransportMode) (string, float64, float64, error) {
	if len(waypoints) < 2 {
		return geoutil.EncodePolyline(waypoints), 0, 0, nil
	}
	var merged []types.Coordinates
	var distance, duration float64
	for start := 0; start < len(waypoints)-1; start += maxBatchWaypoints - 1 {
		end := start + maxBatchWaypoints
		if end > len(waypoints) {
			end = len(waypoints)
		}
		r, err := s.osrm.route(ctx, mode, waypoints[start:end])
		if err != nil {
			return "", 0, 0, err
		}
		distance += r.Distance
		duration += r.Duration
		shape := geoutil.DecodePolyline(r.Geometry)
		if len(merged) > 0 && len(shape) > 0 {
			shape = shape[1:]
		}
		merged = append(merged, shape...)
		if end == len(waypoints) {
			break
		}
	}
	return geoutil.EncodePolyline(merged), distance, duration, nil
}

// buildLegs derives per-leg distance and normalized duration between
// consecutive stops, including the starting point when present.
func buildLegs(ordered []types.POI, opts Options) []types.RouteLeg {
	stops := make([]types.POI, 0, len(ordered)+2)
	if opts.StartingPoint != nil {
		stops = append(stops, startingPointPOI(*opts.StartingPoint))
	}
	stops = append(stops, ordered...)
	if opts.RoundTrip && opts.StartingPoint != nil {
		stops = append(stops, startingPointPOI(*opts.StartingPoint))
	}

	legs := make([]types.RouteLeg, 0, len(stops))
	for i := 0; i+1 < len(stops); i++ {
		d := geoutil.DistanceMeters(stops[i].Coordinates, stops[i+1].Coordinates)
		legs = append(legs, types.RouteLeg{
			FromPOI:  stops[i],
			ToPOI:    stops[i+1],
			Distance: int(d),
			Duration: int(legDuration(d, opts.Mode)),
			Polyline: geoutil.EncodePolyline([]types.Coordinates{stops[i].Coordinates, stops[i+1].Coordinates}),
		})
	}
	return legs
}

func startingPointPOI(c types.Coordinates) types.POI {
	return types.POI{Name: "Starting Point", Coordinates: c}
}

func (s *ServiceImpl) RouteGeometry(ctx context.Context, points []types.Coordinates, mode types.TransportMode) (*Geometry, error) {
	ctx, span := otel.Tracer("RoutingService").Start(ctx, "RouteGeometry", trace.WithAttributes(
		attribute.Int("points.count", len(points)),
	))
	defer span.End()

	if len(points) < 2 {
		return nil, fmt.Errorf("route geometry needs at least 2 points, got %d", len(points))
	}
	r, err := s.osrm.route(ctx, mode, points)
	if err == nil {
		span.SetStatus(codes.Ok, "Geometry fetched")
		return r, nil
	}
	s.logger.WarnContext(ctx, "osrm geometry unavailable, synthesizing straight line",
		slog.Any("error", err))

	var distance float64
	for i := 0; i+1 < len(points); i++ {
		distance += geoutil.DistanceMeters(points[i], points[i+1])
	}
	span.SetStatus(codes.Ok, "Geometry synthesized")
	return &Geometry{
		Geometry: geoutil.EncodePolyline(points),
		Distance: distance,
		Duration: legDuration(distance, mode),
	}, nil
}
