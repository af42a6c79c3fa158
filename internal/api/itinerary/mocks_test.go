package itinerary

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/citywalker/go-city-walker/internal/cache"
	"github.com/citywalker/go-city-walker/internal/geocode"
	"github.com/citywalker/go-city-walker/internal/llm"
	"github.com/citywalker/go-city-walker/internal/overpass"
	"github.com/citywalker/go-city-walker/internal/routing"
	"github.com/citywalker/go-city-walker/internal/types"
	"github.com/citywalker/go-city-walker/internal/wikimedia"
)

type MockLLMService struct {
	mock.Mock
}

func (m *MockLLMService) InterpretUserInput(ctx context.Context, location string, interests []string) (*types.StructuredQuery, error) {
	args := m.Called(ctx, location, interests)
	q, _ := args.Get(0).(*types.StructuredQuery)
	return q, args.Error(1)
}

func (m *MockLLMService) SuggestLandmarks(ctx context.Context, city string, interests []string, mode types.TransportMode, constraint *types.TimeConstraint, center *types.Coordinates) ([]types.LandmarkSuggestion, bool, error) {
	args := m.Called(ctx, city, interests, mode, constraint, center)
	s, _ := args.Get(0).([]types.LandmarkSuggestion)
	return s, args.Bool(1), args.Error(2)
}

func (m *MockLLMService) RankPOIs(ctx context.Context, pois []types.POI, interests []string) ([]llm.RankedPOI, error) {
	args := m.Called(ctx, pois, interests)
	r, _ := args.Get(0).([]llm.RankedPOI)
	return r, args.Error(1)
}

func (m *MockLLMService) SuggestFoodAndDrinks(ctx context.Context, city, category string, limit int) ([]types.LandmarkSuggestion, error) {
	args := m.Called(ctx, city, category, limit)
	s, _ := args.Get(0).([]types.LandmarkSuggestion)
	return s, args.Error(1)
}

type MockGeocodeService struct {
	mock.Mock
}

func (m *MockGeocodeService) ResolveCity(ctx context.Context, city string) (*geocode.CityInfo, error) {
	args := m.Called(ctx, city)
	info, _ := args.Get(0).(*geocode.CityInfo)
	return info, args.Error(1)
}

func (m *MockGeocodeService) GeocodeLandmark(ctx context.Context, name string, city *geocode.CityInfo) (*geocode.NominatimPlace, error) {
	args := m.Called(ctx, name, city)
	p, _ := args.Get(0).(*geocode.NominatimPlace)
	return p, args.Error(1)
}

func (m *MockGeocodeService) LookupLandmarks(ctx context.Context, city *geocode.CityInfo, suggestions []types.LandmarkSuggestion) ([]types.POI, error) {
	args := m.Called(ctx, city, suggestions)
	pois, _ := args.Get(0).([]types.POI)
	return pois, args.Error(1)
}

func (m *MockGeocodeService) Geocode(ctx context.Context, query, city string) (*types.Coordinates, string, error) {
	args := m.Called(ctx, query, city)
	c, _ := args.Get(0).(*types.Coordinates)
	return c, args.String(1), args.Error(2)
}

func (m *MockGeocodeService) BatchGeocode(ctx context.Context, city string, names []string) []*types.Coordinates {
	args := m.Called(ctx, city, names)
	c, _ := args.Get(0).([]*types.Coordinates)
	return c
}

type MockOverpassService struct {
	mock.Mock
}

func (m *MockOverpassService) QueryPOIs(ctx context.Context, city *geocode.CityInfo, interests []string, limit int) ([]types.POI, error) {
	args := m.Called(ctx, city, interests, limit)
	pois, _ := args.Get(0).([]types.POI)
	return pois, args.Error(1)
}

func (m *MockOverpassService) ValidatePlaceExists(ctx context.Context, city *geocode.CityInfo, name string) (float64, *overpass.Feature, error) {
	args := m.Called(ctx, city, name)
	f, _ := args.Get(1).(*overpass.Feature)
	return args.Get(0).(float64), f, args.Error(2)
}

func (m *MockOverpassService) FamousPlaces(ctx context.Context, city *geocode.CityInfo, category string, limit int) ([]types.POI, error) {
	args := m.Called(ctx, city, category, limit)
	pois, _ := args.Get(0).([]types.POI)
	return pois, args.Error(1)
}

type MockWikimediaService struct {
	mock.Mock
}

func (m *MockWikimediaService) GetImageForLandmark(ctx context.Context, name, city string) string {
	args := m.Called(ctx, name, city)
	return args.String(0)
}

func (m *MockWikimediaService) GetImagesForLandmark(ctx context.Context, name, city string, count int) []string {
	args := m.Called(ctx, name, city, count)
	urls, _ := args.Get(0).([]string)
	return urls
}

func (m *MockWikimediaService) SearchPlace(ctx context.Context, name, city string) (*wikimedia.Place, error) {
	args := m.Called(ctx, name, city)
	p, _ := args.Get(0).(*wikimedia.Place)
	return p, args.Error(1)
}

type MockRoutingService struct {
	mock.Mock
}

func (m *MockRoutingService) CreateOptimizedRoute(ctx context.Context, pois []types.POI, opts routing.Options) (*types.Route, error) {
	args := m.Called(ctx, pois, opts)
	route, _ := args.Get(0).(*types.Route)
	return route, args.Error(1)
}

func (m *MockRoutingService) RouteGeometry(ctx context.Context, points []types.Coordinates, mode types.TransportMode) (*routing.Geometry, error) {
	args := m.Called(ctx, points, mode)
	g, _ := args.Get(0).(*routing.Geometry)
	return g, args.Error(1)
}

type MockDayPlanService struct {
	mock.Mock
}

func (m *MockDayPlanService) OrganizePOIsIntoDays(ctx context.Context, pois []types.POI, numDays int, mode types.TransportMode, preserveOrder bool) []types.DayPlan {
	args := m.Called(ctx, pois, numDays, mode, preserveOrder)
	plans, _ := args.Get(0).([]types.DayPlan)
	return plans
}

type testDeps struct {
	llm     *MockLLMService
	geo     *MockGeocodeService
	spatial *MockOverpassService
	images  *MockWikimediaService
	routing *MockRoutingService
	days    *MockDayPlanService
	cache   *cache.TwoTier
}

func newTestDeps() *testDeps {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &testDeps{
		llm:     new(MockLLMService),
		geo:     new(MockGeocodeService),
		spatial: new(MockOverpassService),
		images:  new(MockWikimediaService),
		routing: new(MockRoutingService),
		days:    new(MockDayPlanService),
		cache:   cache.NewTwoTier(cache.NewLRU(100, time.Hour), nil, logger),
	}
}

func (d *testDeps) service() *ServiceImpl {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServiceImpl(d.llm, d.geo, d.spatial, d.images, d.routing, d.days, d.cache, logger)
}
