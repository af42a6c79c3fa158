package itinerary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/citywalker/go-city-walker/internal/cache"
	"github.com/citywalker/go-city-walker/internal/dayplan"
	"github.com/citywalker/go-city-walker/internal/geocode"
	"github.com/citywalker/go-city-walker/internal/geoutil"
	"github.com/citywalker/go-city-walker/internal/llm"
	"github.com/citywalker/go-city-walker/internal/overpass"
	"github.com/citywalker/go-city-walker/internal/routing"
	"github.com/citywalker/go-city-walker/internal/types"
	"github.com/citywalker/go-city-walker/internal/wikimedia"
)

const (
	defaultDiscoverLimit  = 20
	discoverRadiusKm      = 30
	imageTimeout          = 10 * time.Second
	discoverTTL           = 24 * time.Hour
	poiTTL                = time.Hour
	cityResolveAttempts   = 3
	cityResolveBackoff    = 2 * time.Second
	foodImageCount        = 2
	syntheticConfidence   = 0.85
	maxLookupAddressChars = 150
)

var _ Service = (*ServiceImpl)(nil)

// Service is the orchestrator behind the HTTP surface: it composes the
// LLM, geocoding, spatial, image, routing and day-planning services
// into itinerary-level operations.
type Service interface {
	CreateItinerary(ctx context.Context, req CreateItineraryRequest) (*types.Itinerary, []types.Warning, error)
	CreateRouteFromSelection(ctx context.Context, req RouteFromSelectionRequest) (*types.Itinerary, error)
	Discover(ctx context.Context, req DiscoverRequest) (*DiscoverResponse, error)
	DiscoverFood(ctx context.Context, req DiscoverFoodRequest) (*DiscoverResponse, error)
	GetPlaceDetails(ctx context.Context, city, placeID string) (*types.POI, error)
	LookupPOIs(ctx context.Context, req LookupPOIsRequest) ([]types.POI, error)
	CityCenter(ctx context.Context, city string) (*geocode.CityInfo, error)
}

type ServiceImpl struct {
	logger   *slog.Logger
	llm      llm.Service
	geocoder geocode.Service
	spatial  overpass.Service
	images   wikimedia.Service
	routing  routing.Service
	days     dayplan.Service
	cache    *cache.TwoTier
}

func NewServiceImpl(
	llmSvc llm.Service,
	geocoder geocode.Service,
	spatial overpass.Service,
	images wikimedia.Service,
	routingSvc routing.Service,
	days dayplan.Service,
	twoTier *cache.TwoTier,
	logger *slog.Logger,
) *ServiceImpl {
	return &ServiceImpl{
		logger:   logger,
		llm:      llmSvc,
		geocoder: geocoder,
		spatial:  spatial,
		images:   images,
		routing:  routingSvc,
		days:     days,
		cache:    twoTier,
	}
}

// resolveCityWithRetry shields city resolution from transient upstream
// throttling: up to 3 attempts with a linear backoff. A definite
// city-not-found is never retried.
func (s *ServiceImpl) resolveCityWithRetry(ctx context.Context, city string) (*geocode.CityInfo, error) {
	var lastErr error
	for attempt := 1; attempt <= cityResolveAttempts; attempt++ {
		info, err := s.geocoder.ResolveCity(ctx, city)
		if err == nil {
			return info, nil
		}
		if errors.Is(err, types.ErrCityNotFound) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		if attempt < cityResolveAttempts {
			select {
			case <-time.After(time.Duration(attempt) * cityResolveBackoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("resolving city %q: %w", city, lastErr)
}

func (s *ServiceImpl) CreateItinerary(ctx context.Context, req CreateItineraryRequest) (*types.Itinerary, []types.Warning, error) {
	ctx, span := otel.Tracer("ItineraryService").Start(ctx, "CreateItinerary", trace.WithAttributes(
		attribute.String("location", req.Location),
		attribute.String("mode", string(req.TransportMode)),
	))
	defer span.End()

	var warnings []types.Warning

	query, err := s.llm.InterpretUserInput(ctx, req.Location, req.Interests)
	if err != nil {
		query = &types.StructuredQuery{City: req.Location}
	}

	city, err := s.resolveCityWithRetry(ctx, query.City)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}

	// Starting coordinates take priority over a starting address.
	start, startWarning := s.resolveStartingPoint(ctx, req, city)
	if startWarning != nil {
		warnings = append(warnings, *startWarning)
	}

	pois, usedFallback, err := s.collectPOIs(ctx, city, req.Interests, req.TransportMode, req.TimeAvailable)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	if usedFallback {
		warnings = append(warnings, types.Warning{
			Code:    types.WarnPartialData,
			Message: "Landmark suggestions came from a reduced offline list; results may be generic.",
		})
	}

	pois = s.capAndRank(ctx, pois, req.Interests, req.TimeAvailable)
	s.enrichImages(ctx, city.Name, pois)

	route, err := s.routing.CreateOptimizedRoute(ctx, pois, routing.Options{
		Mode:          req.TransportMode,
		Constraint:    req.TimeAvailable,
		StartingPoint: start,
		RoundTrip:     start != nil,
	})
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}

	numDays := 1
	if req.TimeAvailable != nil {
		numDays = req.TimeAvailable.NumDays()
	}
	var days []types.DayPlan
	if numDays > 1 {
		// The tour order is already optimized; day boundaries preserve it
		// so the flat POI list equals the day concatenation.
		days = s.days.OrganizePOIsIntoDays(ctx, route.OrderedPOIs, numDays, req.TransportMode, true)
	}

	if missingHours(route.OrderedPOIs) {
		warnings = append(warnings, types.Warning{
			Code:    types.WarnPartialData,
			Message: "Opening hours are unavailable for some places.",
		})
	}

	it := &types.Itinerary{
		ID:               uuid.New().String(),
		City:             city.Name,
		POIs:             route.OrderedPOIs,
		Route:            *route,
		CreatedAt:        time.Now().UTC(),
		TransportMode:    req.TransportMode,
		TimeConstraint:   req.TimeAvailable,
		AIExplanation:    buildExplanation(city.Name, len(route.OrderedPOIs), max(numDays, 1), req.TransportMode, start != nil),
		StartingLocation: req.StartingLocation,
		GoogleMapsURL:    buildGoogleMapsURL(route),
		Days:             days,
		TotalDays:        max(numDays, 1),
	}
	span.SetAttributes(attribute.Int("itinerary.pois", len(it.POIs)))
	span.SetStatus(codes.Ok, "Itinerary created")
	return it, warnings, nil
}

func (s *ServiceImpl) resolveStartingPoint(ctx context.Context, req CreateItineraryRequest, city *geocode.CityInfo) (*types.Coordinates, *types.Warning) {
	if req.StartingCoordinates != nil {
		if err := req.StartingCoordinates.Validate(); err == nil {
			return req.StartingCoordinates, nil
		}
	}
	if req.StartingLocation == "" {
		return nil, nil
	}
	coords, _, err := s.geocoder.Geocode(ctx, req.StartingLocation, city.Name)
	if err != nil {
		s.logger.InfoContext(ctx, "starting location not geocodable, proceeding without",
			slog.String("query", req.StartingLocation), slog.Any("error", err))
		return nil, &types.Warning{
			Code:    types.WarnPartialData,
			Message: fmt.Sprintf("Could not locate %q; the tour starts at the first stop instead.", req.StartingLocation),
		}
	}
	return coords, nil
}

// collectPOIs fans out to the LLM and spatial arms per the interest
// classification. One failing arm is tolerated; both arms empty is a
// user-input error.
func (s *ServiceImpl) collectPOIs(ctx context.Context, city *geocode.CityInfo, interests []string, mode types.TransportMode, constraint *types.TimeConstraint) ([]types.POI, bool, error) {
	useAI, useOSM := classifyInterests(interests)

	var (
		aiPOIs, osmPOIs []types.POI
		usedFallback    bool
	)
	g, gctx := errgroup.WithContext(ctx)
	if useAI {
		g.Go(func() error {
			suggestions, fallback, err := s.llm.SuggestLandmarks(gctx, city.Name, interests, mode, constraint, &city.Center)
			if err != nil {
				s.logger.WarnContext(gctx, "llm arm failed", slog.Any("error", err))
				return nil
			}
			usedFallback = fallback
			pois, err := s.geocoder.LookupLandmarks(gctx, city, suggestions)
			if err != nil {
				s.logger.WarnContext(gctx, "landmark lookup failed", slog.Any("error", err))
				return nil
			}
			aiPOIs = pois
			return nil
		})
	}
	if useOSM {
		g.Go(func() error {
			pois, err := s.spatial.QueryPOIs(gctx, city, interests, routing.MaxPOIs(constraint))
			if err != nil {
				s.logger.WarnContext(gctx, "spatial arm failed", slog.Any("error", err))
				return nil
			}
			osmPOIs = pois
			return nil
		})
	}
	_ = g.Wait()

	merged := mergePOIs(aiPOIs, osmPOIs)
	if len(merged) == 0 {
		return nil, false, types.ErrNoPOIs
	}
	return merged, usedFallback, nil
}

// mergePOIs concatenates the LLM arm before the spatial arm and drops
// case-insensitive name duplicates, keeping the first occurrence.
func mergePOIs(aiPOIs, osmPOIs []types.POI) []types.POI {
	seen := make(map[string]struct{}, len(aiPOIs)+len(osmPOIs))
	var merged []types.POI
	for _, p := range append(append([]types.POI{}, aiPOIs...), osmPOIs...) {
		key := strings.ToLower(strings.TrimSpace(p.Name))
		if _, dup := seen[key]; dup || key == "" {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, p)
	}
	return merged
}

// capAndRank truncates to the constraint cap, asking the LLM to rank by
// relevance first when there is an actual excess to cut.
func (s *ServiceImpl) capAndRank(ctx context.Context, pois []types.POI, interests []string, constraint *types.TimeConstraint) []types.POI {
	limit := poiCap(constraint)
	if optimizerLimit := routing.MaxPOIs(constraint); optimizerLimit < limit {
		limit = optimizerLimit
	}
	if len(pois) <= limit {
		return pois
	}
	ranked, err := s.llm.RankPOIs(ctx, pois, interests)
	if err == nil && len(ranked) == len(pois) {
		reordered := make([]types.POI, 0, len(pois))
		for _, r := range ranked {
			if r.Index >= 0 && r.Index < len(pois) {
				reordered = append(reordered, pois[r.Index])
			}
		}
		if len(reordered) == len(pois) {
			pois = reordered
		}
	}
	return pois[:limit]
}

// enrichImages attaches photos in place, best-effort, skipping food
// venues which get their images in the food flow.
func (s *ServiceImpl) enrichImages(ctx context.Context, city string, pois []types.POI) {
	g, gctx := errgroup.WithContext(ctx)
	for i := range pois {
		if len(pois[i].Types) > 0 {
			switch pois[i].Types[0] {
			case "cafe", "restaurant", "bar", "club":
				continue
			}
		}
		g.Go(func() error {
			imgCtx, cancel := context.WithTimeout(gctx, imageTimeout)
			defer cancel()
			if img := s.images.GetImageForLandmark(imgCtx, pois[i].Name, city); img != "" {
				pois[i].Photos = append(pois[i].Photos, img)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func missingHours(pois []types.POI) bool {
	for _, p := range pois {
		if p.OpeningHours == nil {
			return true
		}
	}
	return false
}

func (s *ServiceImpl) CreateRouteFromSelection(ctx context.Context, req RouteFromSelectionRequest) (*types.Itinerary, error) {
	ctx, span := otel.Tracer("ItineraryService").Start(ctx, "CreateRouteFromSelection", trace.WithAttributes(
		attribute.Int("pois.count", len(req.POIs)),
	))
	defer span.End()

	if len(req.POIs) == 0 {
		return nil, types.ErrNoPOIs
	}
	numDays := req.NumDays
	if numDays < 1 {
		numDays = 1
	}
	pois := req.POIs
	if limit := 10 * numDays; len(pois) > limit {
		pois = pois[:limit]
	}
	for i := range pois {
		if pois[i].VisitDurationMinutes == 0 {
			pois[i].VisitDurationMinutes = 60
		}
	}

	route, err := s.routing.CreateOptimizedRoute(ctx, pois, routing.Options{
		Mode:          req.TransportMode,
		StartingPoint: req.StartingCoordinates,
		RoundTrip:     req.StartingCoordinates != nil,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var days []types.DayPlan
	if numDays > 1 {
		days = s.days.OrganizePOIsIntoDays(ctx, route.OrderedPOIs, numDays, req.TransportMode, true)
	}

	city := ""
	if len(pois) > 0 && pois[0].Address != "" {
		city = pois[0].Address
	}
	it := &types.Itinerary{
		ID:            uuid.New().String(),
		City:          city,
		POIs:          route.OrderedPOIs,
		Route:         *route,
		CreatedAt:     time.Now().UTC(),
		TransportMode: req.TransportMode,
		AIExplanation: buildExplanation(cityOrFallback(city), len(route.OrderedPOIs), numDays, req.TransportMode, req.StartingCoordinates != nil),
		GoogleMapsURL: buildGoogleMapsURL(route),
		Days:          days,
		TotalDays:     numDays,
	}
	span.SetStatus(codes.Ok, "Route assembled from selection")
	return it, nil
}

func cityOrFallback(city string) string {
	if city == "" {
		return "your selection"
	}
	return city
}

func (s *ServiceImpl) Discover(ctx context.Context, req DiscoverRequest) (*DiscoverResponse, error) {
	ctx, span := otel.Tracer("ItineraryService").Start(ctx, "Discover", trace.WithAttributes(
		attribute.String("city", req.City),
	))
	defer span.End()

	limit := req.Limit
	if limit <= 0 {
		limit = defaultDiscoverLimit
	}

	key := cache.DiscoverKey(req.City, limit, req.Interests, req.IncludeFood)
	var cached DiscoverResponse
	if s.cache.Get(ctx, key, &cached) {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		span.SetStatus(codes.Ok, "Served from cache")
		return &cached, nil
	}

	city, err := s.resolveCityWithRetry(ctx, req.City)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	pois, _, err := s.collectPOIs(ctx, city, req.Interests, types.TransportWalking, nil)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// Keep only results near the resolved center, closest first.
	pois = filterWithinRadius(pois, city.Center, discoverRadiusKm)
	if len(pois) > limit {
		pois = pois[:limit]
	}
	started := time.Now()
	s.enrichImages(ctx, city.Name, pois)

	resp := &DiscoverResponse{
		City:  city.Name,
		POIs:  pois,
		Count: len(pois),
		ValidationStats: &ValidationStats{
			Method:         "geocode",
			Count:          len(pois),
			ElapsedSeconds: time.Since(started).Seconds(),
		},
	}

	// The food list rides along on request, as a separate list so the
	// client can render it apart from the landmarks. Its failure never
	// fails the landmark response.
	if req.IncludeFood {
		food, foodErr := s.DiscoverFood(ctx, DiscoverFoodRequest{City: req.City, Category: "restaurants"})
		if foodErr != nil {
			s.logger.InfoContext(ctx, "food list unavailable for discover", slog.Any("error", foodErr))
		} else {
			resp.FoodPOIs = food.POIs
		}
	}

	s.cache.Set(ctx, key, resp, discoverTTL)
	s.cachePOIs(ctx, city.Name, pois)
	span.SetStatus(codes.Ok, "Discovery completed")
	return resp, nil
}

func filterWithinRadius(pois []types.POI, center types.Coordinates, radiusKm float64) []types.POI {
	kept := make([]types.POI, 0, len(pois))
	for _, p := range pois {
		if geoutil.DistanceKm(center, p.Coordinates) <= radiusKm {
			kept = append(kept, p)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return geoutil.DistanceKm(center, kept[i].Coordinates) < geoutil.DistanceKm(center, kept[j].Coordinates)
	})
	return kept
}

func (s *ServiceImpl) DiscoverFood(ctx context.Context, req DiscoverFoodRequest) (*DiscoverResponse, error) {
	ctx, span := otel.Tracer("ItineraryService").Start(ctx, "DiscoverFood", trace.WithAttributes(
		attribute.String("city", req.City),
		attribute.String("category", req.Category),
	))
	defer span.End()

	category, ok := normalizeFoodCategory(req.Category)
	if !ok {
		return nil, &types.APIError{
			Code:        types.CodeInvalidInput,
			Message:     fmt.Sprintf("unsupported food category %q", req.Category),
			UserMessage: "Pick one of cafes, restaurants, bars or parks.",
		}
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	key := cache.FoodKey(req.City, category, limit)
	var cached DiscoverResponse
	if s.cache.Get(ctx, key, &cached) {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		span.SetStatus(codes.Ok, "Served from cache")
		return &cached, nil
	}

	city, err := s.resolveCityWithRetry(ctx, req.City)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// Over-ask so geocoding misses still leave a full page.
	suggestions, err := s.llm.SuggestFoodAndDrinks(ctx, city.Name, category, limit+5)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	started := time.Now()
	pois := make([]types.POI, 0, limit)
	for _, sug := range suggestions {
		if len(pois) == limit {
			break
		}
		coords, label, err := s.geocoder.Geocode(ctx, sug.Name, city.Name)
		if err != nil || coords == nil {
			continue
		}
		if geoutil.DistanceKm(city.Center, *coords) > discoverRadiusKm {
			continue
		}
		poi := types.POI{
			PlaceID:              syntheticPlaceID("food", sug.Name),
			Name:                 sug.Name,
			Coordinates:          *coords,
			MapsURL:              geocode.GoogleMapsSearchURL(sug.Name, city.Name),
			Confidence:           syntheticConfidence,
			Address:              label,
			Types:                []string{strings.TrimSuffix(category, "s")},
			VisitDurationMinutes: int(sug.VisitDurationHours * 60),
			WhyVisit:             sug.WhyVisit,
			Specialty:            sug.Specialty,
		}
		imgCtx, cancel := context.WithTimeout(ctx, imageTimeout)
		poi.Photos = s.images.GetImagesForLandmark(imgCtx, sug.Name, city.Name, foodImageCount)
		cancel()
		pois = append(pois, poi)
	}

	// Top up thin pages from wiki-referenced venues in the spatial store.
	if len(pois) < limit {
		famous, err := s.spatial.FamousPlaces(ctx, city, category, limit-len(pois))
		if err != nil {
			s.logger.InfoContext(ctx, "famous-place top-up unavailable", slog.Any("error", err))
		} else {
			pois = mergePOIs(pois, famous)
			if len(pois) > limit {
				pois = pois[:limit]
			}
		}
	}

	resp := &DiscoverResponse{
		City:     city.Name,
		Category: category,
		POIs:     pois,
		Count:    len(pois),
		ValidationStats: &ValidationStats{
			Method:         "geocode",
			Count:          len(pois),
			ElapsedSeconds: time.Since(started).Seconds(),
		},
	}
	s.cache.Set(ctx, key, resp, discoverTTL)
	s.cachePOIs(ctx, city.Name, pois)
	span.SetStatus(codes.Ok, "Food discovery completed")
	return resp, nil
}

// cachePOIs stores each POI under its own key for /places/{place_id}.
func (s *ServiceImpl) cachePOIs(ctx context.Context, city string, pois []types.POI) {
	for _, p := range pois {
		if p.PlaceID != "" {
			s.cache.Set(ctx, cache.POIKey(city, p.PlaceID), p, poiTTL)
		}
	}
}

func (s *ServiceImpl) GetPlaceDetails(ctx context.Context, city, placeID string) (*types.POI, error) {
	ctx, span := otel.Tracer("ItineraryService").Start(ctx, "GetPlaceDetails", trace.WithAttributes(
		attribute.String("place_id", placeID),
	))
	defer span.End()

	var poi types.POI
	if !s.cache.Get(ctx, cache.POIKey(city, placeID), &poi) {
		return nil, types.ErrNotFound
	}
	span.SetStatus(codes.Ok, "Place found")
	return &poi, nil
}

func (s *ServiceImpl) LookupPOIs(ctx context.Context, req LookupPOIsRequest) ([]types.POI, error) {
	ctx, span := otel.Tracer("ItineraryService").Start(ctx, "LookupPOIs", trace.WithAttributes(
		attribute.Int("names.count", len(req.Names)),
	))
	defer span.End()

	pois := make([]types.POI, 0, len(req.Names))
	for _, name := range req.Names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		coords, label, err := s.geocoder.Geocode(ctx, name, req.City)
		if err != nil || coords == nil {
			s.logger.InfoContext(ctx, "lookup name not geocodable", slog.String("name", name))
			continue
		}
		if len(label) > maxLookupAddressChars {
			label = label[:maxLookupAddressChars]
		}
		poi := types.POI{
			PlaceID:              syntheticPlaceID("ai", name),
			Name:                 name,
			Coordinates:          *coords,
			MapsURL:              geocode.GoogleMapsSearchURL(name, req.City),
			Confidence:           syntheticConfidence,
			Address:              label,
			VisitDurationMinutes: 60,
		}
		imgCtx, cancel := context.WithTimeout(ctx, imageTimeout)
		if img := s.images.GetImageForLandmark(imgCtx, name, req.City); img != "" {
			poi.Photos = []string{img}
		} else if place, err := s.images.SearchPlace(imgCtx, name, req.City); err == nil {
			// The article summary fills the gaps a bare geocode leaves.
			if place.ThumbnailURL != "" {
				poi.Photos = []string{place.ThumbnailURL}
			}
			poi.WhyVisit = place.Description
		}
		cancel()
		pois = append(pois, poi)
	}
	span.SetAttributes(attribute.Int("pois.count", len(pois)))
	span.SetStatus(codes.Ok, "Lookup completed")
	return pois, nil
}

func (s *ServiceImpl) CityCenter(ctx context.Context, city string) (*geocode.CityInfo, error) {
	return s.resolveCityWithRetry(ctx, city)
}
