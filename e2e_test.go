package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/citywalker/go-city-walker/internal/api/itinerary"
	"github.com/citywalker/go-city-walker/internal/cache"
	"github.com/citywalker/go-city-walker/internal/dayplan"
	"github.com/citywalker/go-city-walker/internal/geocode"
	"github.com/citywalker/go-city-walker/internal/geoutil"
	"github.com/citywalker/go-city-walker/internal/llm"
	"github.com/citywalker/go-city-walker/internal/overpass"
	"github.com/citywalker/go-city-walker/internal/router"
	"github.com/citywalker/go-city-walker/internal/routing"
	"github.com/citywalker/go-city-walker/internal/types"
	"github.com/citywalker/go-city-walker/internal/wikimedia"
)

// E2ETestSuite drives complete workflows through the HTTP router with the
// real service stack wired against fake upstream servers.
type E2ETestSuite struct {
	suite.Suite
	server    *httptest.Server
	client    *http.Client
	nominatim *httptest.Server
	photon    *httptest.Server
	overpass  *httptest.Server
	osrm      *httptest.Server
	wiki      *httptest.Server
}

type nominatimRow struct {
	PlaceID     int64             `json:"place_id"`
	OSMType     string            `json:"osm_type"`
	OSMID       int64             `json:"osm_id"`
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	DisplayName string            `json:"display_name"`
	BoundingBox []string          `json:"boundingbox"`
	ExtraTags   map[string]string `json:"extratags"`
	Address     struct {
		Country     string `json:"country"`
		CountryCode string `json:"country_code"`
	} `json:"address"`
}

func row(id int64, name, lat, lon, country, cc string, hours string) nominatimRow {
	r := nominatimRow{
		PlaceID:     id,
		OSMType:     "node",
		OSMID:       id,
		Lat:         lat,
		Lon:         lon,
		DisplayName: name + ", " + country,
	}
	r.Address.Country = country
	r.Address.CountryCode = cc
	if hours != "" {
		r.ExtraTags = map[string]string{"opening_hours": hours}
	}
	return r
}

var cityRows = map[string]nominatimRow{
	"lisbon": func() nominatimRow {
		r := row(1, "Lisboa", "38.7223", "-9.1393", "Portugal", "pt", "")
		r.BoundingBox = []string{"38.69", "38.80", "-9.23", "-9.09"}
		return r
	}(),
	"paris": func() nominatimRow {
		r := row(2, "Paris", "48.8566", "2.3522", "France", "fr", "")
		r.BoundingBox = []string{"48.81", "48.90", "2.22", "2.47"}
		return r
	}(),
}

var landmarkRows = map[string]nominatimRow{
	"belem tower":         row(101, "Belem Tower", "38.6916", "-9.2160", "Portugal", "pt", "Mo-Su 10:00-18:00"),
	"jeronimos monastery": row(102, "Jeronimos Monastery", "38.6979", "-9.2063", "Portugal", "pt", "Tu-Su 09:30-18:00"),
	"sao jorge castle":    row(103, "Sao Jorge Castle", "38.7139", "-9.1335", "Portugal", "pt", "Mo-Su 09:00-21:00"),
	"lisbon cathedral":    row(104, "Lisbon Cathedral", "38.7098", "-9.1326", "Portugal", "pt", "Mo-Su 09:00-19:00"),
	"praca do comercio":   row(105, "Praca do Comercio", "38.7075", "-9.1364", "Portugal", "pt", "24/7"),
	"a brasileira":        row(106, "A Brasileira", "38.7107", "-9.1422", "Portugal", "pt", ""),
	"cafe nicola":         row(107, "Cafe Nicola", "38.7139", "-9.1394", "Portugal", "pt", ""),
	"eiffel tower":        row(201, "Eiffel Tower", "48.8584", "2.2945", "France", "fr", "Mo-Su 09:00-23:00"),
	"louvre museum":       row(202, "Louvre Museum", "48.8606", "2.3376", "France", "fr", "We-Mo 09:00-18:00"),
	"notre-dame":          row(203, "Notre-Dame", "48.8530", "2.3499", "France", "fr", "Mo-Su 08:00-19:00"),
}

var landmarkSuggestions = map[string][]types.LandmarkSuggestion{
	"Lisbon": {
		{Name: "Belem Tower", Category: "landmark", WhyVisit: "Iconic riverside fort.", VisitDurationHours: 1},
		{Name: "Jeronimos Monastery", Category: "church", WhyVisit: "Manueline masterpiece.", VisitDurationHours: 1.5},
		{Name: "Sao Jorge Castle", Category: "landmark", WhyVisit: "Hilltop views over the city.", VisitDurationHours: 1.5},
		{Name: "Lisbon Cathedral", Category: "church", WhyVisit: "The oldest church in town.", VisitDurationHours: 1},
		{Name: "Praca do Comercio", Category: "square", WhyVisit: "Grand riverfront square.", VisitDurationHours: 0.5},
	},
	"Paris": {
		{Name: "Eiffel Tower", Category: "landmark", WhyVisit: "The symbol of Paris.", VisitDurationHours: 2},
		{Name: "Louvre Museum", Category: "museum", WhyVisit: "World's largest art museum.", VisitDurationHours: 3},
		{Name: "Notre-Dame", Category: "church", WhyVisit: "Gothic cathedral on the Seine.", VisitDurationHours: 1},
	},
}

var foodSuggestions = []types.LandmarkSuggestion{
	{Name: "A Brasileira", Specialty: "Bica", WhyVisit: "Historic literary cafe.", VisitDurationHours: 1},
	{Name: "Cafe Nicola", Specialty: "Pastel de nata", WhyVisit: "Rossio institution since 1929.", VisitDurationHours: 1},
}

// scriptedProvider answers the three prompt families with fixture JSON.
type scriptedProvider struct{}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Generate(_ context.Context, _, userPrompt string) (string, error) {
	switch {
	case strings.HasPrefix(userPrompt, "Interpret this trip request"):
		city := "Lisbon"
		if strings.Contains(userPrompt, "Paris") {
			city = "Paris"
		}
		return fmt.Sprintf(`{"city": %q, "poi_types": [], "keywords": []}`, city), nil
	case strings.HasPrefix(userPrompt, "Rank these places"):
		return "[]", nil
	case strings.Contains(userPrompt, "landmarks in"):
		city := "Lisbon"
		if strings.Contains(userPrompt, "Paris") {
			city = "Paris"
		}
		raw, err := json.Marshal(landmarkSuggestions[city])
		return string(raw), err
	default:
		raw, err := json.Marshal(foodSuggestions)
		return string(raw), err
	}
}

func (s *E2ETestSuite) SetupSuite() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.nominatim = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := strings.ToLower(r.URL.Query().Get("q"))
		if r.URL.Query().Get("featuretype") == "city" {
			for key, city := range cityRows {
				if strings.Contains(q, key) {
					json.NewEncoder(w).Encode([]nominatimRow{city})
					return
				}
			}
			json.NewEncoder(w).Encode([]nominatimRow{})
			return
		}
		for key, place := range landmarkRows {
			if strings.HasPrefix(q, key) {
				json.NewEncoder(w).Encode([]nominatimRow{place})
				return
			}
		}
		json.NewEncoder(w).Encode([]nominatimRow{})
	}))

	s.photon = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"features": []}`))
	}))

	s.overpass = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"elements": []}`))
	}))

	s.osrm = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		points := parsePathCoords(r.URL.Path)
		switch {
		case strings.Contains(r.URL.Path, "/table/v1/"):
			n := len(points)
			durations := make([][]float64, n)
			distances := make([][]float64, n)
			for i := range points {
				durations[i] = make([]float64, n)
				distances[i] = make([]float64, n)
				for j := range points {
					d := geoutil.DistanceMeters(points[i], points[j])
					distances[i][j] = d
					durations[i][j] = d / 1.4
				}
			}
			json.NewEncoder(w).Encode(map[string]any{
				"code": "Ok", "durations": durations, "distances": distances,
			})
		case strings.Contains(r.URL.Path, "/route/v1/"):
			var distance float64
			for i := 0; i+1 < len(points); i++ {
				distance += geoutil.DistanceMeters(points[i], points[i+1])
			}
			json.NewEncoder(w).Encode(map[string]any{
				"code": "Ok",
				"routes": []map[string]any{{
					"geometry": geoutil.EncodePolyline(points),
					"distance": distance,
					"duration": distance / 1.4,
				}},
			})
		default:
			http.NotFound(w, r)
		}
	}))

	// Empty-but-valid answers: image enrichment degrades silently.
	s.wiki = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))

	geocoder := geocode.NewServiceImpl(geocode.Options{
		NominatimBaseURL: s.nominatim.URL,
		PhotonBaseURL:    s.photon.URL,
		UserAgent:        "go-city-walker-tests",
		Logger:           logger,
	})
	spatial := overpass.NewServiceImpl(s.overpass.URL, "go-city-walker-tests", logger)
	images := wikimedia.NewClient(wikimedia.Options{
		ActionBaseURL:  s.wiki.URL,
		RestBaseURL:    s.wiki.URL,
		CommonsBaseURL: s.wiki.URL,
		UserAgent:      "go-city-walker-tests",
		Logger:         logger,
	})
	routingSvc := routing.NewServiceImpl(s.osrm.URL, "go-city-walker-tests", logger)
	days := dayplan.NewServiceImpl(routingSvc, logger)
	llmSvc := llm.NewServiceImpl(&scriptedProvider{}, nil, logger)
	twoTier := cache.NewTwoTier(cache.NewLRU(256, time.Hour), nil, logger)

	svc := itinerary.NewServiceImpl(llmSvc, geocoder, spatial, images, routingSvc, days, twoTier, logger)
	handler := itinerary.NewHandler(svc, geocoder, logger)

	s.server = httptest.NewServer(router.SetupRouter(&router.Config{
		ItineraryHandler: handler,
		AllowedOrigins:   []string{"*"},
	}))
	s.client = &http.Client{Timeout: 60 * time.Second}
}

func (s *E2ETestSuite) TearDownSuite() {
	for _, srv := range []*httptest.Server{s.server, s.nominatim, s.photon, s.overpass, s.osrm, s.wiki} {
		if srv != nil {
			srv.Close()
		}
	}
}

func parsePathCoords(path string) []types.Coordinates {
	raw := path[strings.LastIndex(path, "/")+1:]
	var points []types.Coordinates
	for _, pair := range strings.Split(raw, ";") {
		var lng, lat float64
		if _, err := fmt.Sscanf(pair, "%f,%f", &lng, &lat); err == nil {
			points = append(points, types.Coordinates{Lat: lat, Lng: lng})
		}
	}
	return points
}

type apiEnvelope struct {
	Success   bool             `json:"success"`
	Error     *types.APIError  `json:"error"`
	Itinerary *types.Itinerary `json:"itinerary"`
	Warnings  []types.Warning  `json:"warnings"`
	POIs      []types.POI      `json:"pois"`
	POI       *types.POI       `json:"poi"`
	Count     int              `json:"count"`
	City      string           `json:"city"`
	Category  string           `json:"category"`
}

func (s *E2ETestSuite) postJSON(path string, body any) (int, apiEnvelope) {
	raw, err := json.Marshal(body)
	s.Require().NoError(err)
	resp, err := s.client.Post(s.server.URL+path, "application/json", bytes.NewReader(raw))
	s.Require().NoError(err)
	defer resp.Body.Close()

	var env apiEnvelope
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (s *E2ETestSuite) get(path string) (int, apiEnvelope) {
	resp, err := s.client.Get(s.server.URL + path)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var env apiEnvelope
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (s *E2ETestSuite) TestWalkingDayTour() {
	status, env := s.postJSON("/api/itinerary", map[string]any{
		"location":       "Lisbon",
		"transport_mode": "walking",
		"interests":      []string{"landmarks", "history"},
		"time_available": "day",
	})
	s.Require().Equal(http.StatusOK, status)
	s.Require().True(env.Success)
	s.Require().NotNil(env.Itinerary)

	it := env.Itinerary
	s.Equal("Lisbon", it.City)
	s.Len(it.POIs, 5)
	s.Empty(env.Warnings)
	s.NotEmpty(it.Route.Polyline)
	s.Len(it.Route.Legs, 4)
	s.Greater(it.Route.TotalDistance, 0)
	s.Contains(it.AIExplanation, "Lisbon")
	s.Contains(it.GoogleMapsURL, "travelmode=walking")

	// Every stop stays within the metro area.
	center := types.Coordinates{Lat: 38.7223, Lng: -9.1393}
	for _, p := range it.POIs {
		s.Require().NoError(p.Coordinates.Validate())
		s.LessOrEqual(geoutil.DistanceKm(center, p.Coordinates), 30.0)
	}
}

func (s *E2ETestSuite) TestRoundTripFromStartingPoint() {
	status, env := s.postJSON("/api/itinerary", map[string]any{
		"location":       "Paris",
		"transport_mode": "walking",
		"starting_coordinates": map[string]float64{
			"lat": 48.8566, "lng": 2.3522,
		},
	})
	s.Require().Equal(http.StatusOK, status)
	s.Require().NotNil(env.Itinerary)

	it := env.Itinerary
	s.True(it.Route.IsRoundTrip)
	s.Require().NotNil(it.Route.StartingPoint)
	s.Contains(it.GoogleMapsURL, "origin=48.8566,2.3522&destination=48.8566,2.3522")

	// Legs wrap from the start and back to it.
	s.Require().NotEmpty(it.Route.Legs)
	s.Equal("Starting Point", it.Route.Legs[0].FromPOI.Name)
	s.Equal("Starting Point", it.Route.Legs[len(it.Route.Legs)-1].ToPOI.Name)
}

func (s *E2ETestSuite) TestMultiDayItinerary() {
	status, env := s.postJSON("/api/itinerary", map[string]any{
		"location":       "Lisbon",
		"transport_mode": "walking",
		"interests":      []string{"landmarks"},
		"time_available": "2days",
	})
	s.Require().Equal(http.StatusOK, status)
	s.Require().NotNil(env.Itinerary)

	it := env.Itinerary
	s.Equal(2, it.TotalDays)
	s.Require().Len(it.Days, 2)
	for i, day := range it.Days {
		s.Equal(i+1, day.DayNumber)
		s.NotEmpty(day.Theme)
	}

	// The flat list is the in-order concatenation of the day plans.
	var flat []string
	for _, day := range it.Days {
		for _, p := range day.POIs {
			flat = append(flat, p.Name)
		}
	}
	var names []string
	for _, p := range it.POIs {
		names = append(names, p.Name)
	}
	s.Equal(names, flat)
}

func (s *E2ETestSuite) TestDiscoverThenPlaceDetails() {
	status, env := s.postJSON("/api/discover", map[string]any{"city": "Lisbon"})
	s.Require().Equal(http.StatusOK, status)
	s.Require().True(env.Success)
	s.Equal("Lisbon", env.City)
	s.Require().NotEmpty(env.POIs)
	s.Equal(len(env.POIs), env.Count)

	first := env.POIs[0]
	status, detail := s.get("/api/places/" + first.PlaceID + "?city=Lisbon")
	s.Require().Equal(http.StatusOK, status)
	s.Require().NotNil(detail.POI)
	s.Equal(first.Name, detail.POI.Name)

	// A place that was never discovered is a 404.
	status, missing := s.get("/api/places/osm_node_99999?city=Lisbon")
	s.Equal(http.StatusNotFound, status)
	s.Require().NotNil(missing.Error)
	s.Equal(types.CodeValidationError, missing.Error.Code)
}

func (s *E2ETestSuite) TestDiscoverFoodWithAlias() {
	status, env := s.postJSON("/api/discover/food", map[string]any{
		"city": "Lisbon", "category": "coffee",
	})
	s.Require().Equal(http.StatusOK, status)
	s.Equal("cafes", env.Category)
	s.Require().Equal(2, env.Count)
	for _, p := range env.POIs {
		s.Contains(p.PlaceID, "food_")
		s.NotEmpty(p.Specialty)
	}
}

func (s *E2ETestSuite) TestRouteFromSelectionAcrossDays() {
	pois := make([]map[string]any, 0, 6)
	for i, name := range []string{"Belem Tower", "Jeronimos Monastery", "Sao Jorge Castle", "Lisbon Cathedral", "Praca do Comercio", "A Brasileira"} {
		r := landmarkRows[strings.ToLower(name)]
		pois = append(pois, map[string]any{
			"place_id": fmt.Sprintf("osm_node_%d", 101+i),
			"name":     name,
			"coordinates": map[string]any{
				"lat": mustFloat(r.Lat), "lng": mustFloat(r.Lon),
			},
		})
	}
	status, env := s.postJSON("/api/route/from-selection", map[string]any{
		"pois":           pois,
		"transport_mode": "walking",
		"num_days":       2,
	})
	s.Require().Equal(http.StatusOK, status)
	s.Require().NotNil(env.Itinerary)
	s.Equal(2, env.Itinerary.TotalDays)
	s.Require().Len(env.Itinerary.Days, 2)
	s.Len(env.Itinerary.POIs, 6)
}

func (s *E2ETestSuite) TestUnknownCityFails() {
	status, env := s.postJSON("/api/discover", map[string]any{"city": "Atlantis"})
	s.Equal(http.StatusBadRequest, status)
	s.Require().NotNil(env.Error)
	s.Equal(types.CodeInvalidInput, env.Error.Code)
	s.NotEmpty(env.Error.UserMessage)
}

func mustFloat(s string) float64 {
	var v float64
	fmt.Sscanf(s, "%f", &v)
	return v
}

func TestE2ETestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end suite in short mode")
	}
	suite.Run(t, new(E2ETestSuite))
}
