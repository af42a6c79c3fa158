package geocode

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citywalker/go-city-walker/internal/geoutil"
	"github.com/citywalker/go-city-walker/internal/httpclient"
	"github.com/citywalker/go-city-walker/internal/types"
)

// newTestService wires the service against fake upstream servers without
// rate limiting, so tests stay fast.
func newTestService(nominatimURL, photonURL string) *ServiceImpl {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	httpc := httpclient.New(httpclient.Options{Timeout: 2 * time.Second, Logger: logger})
	return &ServiceImpl{
		logger:    logger,
		nominatim: &nominatimClient{http: httpc, baseURL: nominatimURL},
		photon:    &photonClient{http: httpc, baseURL: photonURL},
		cities:    gocache.New(time.Hour, time.Hour),
	}
}

func testCity() *CityInfo {
	return &CityInfo{
		Name:        "Lisbon",
		Center:      types.Coordinates{Lat: 38.7223, Lng: -9.1393},
		BBox:        geoutil.BBox{South: 38.69, North: 38.80, West: -9.23, East: -9.09},
		Country:     "Portugal",
		CountryCode: "pt",
	}
}

func TestResolveCity(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "city", r.URL.Query().Get("featuretype"))
		json.NewEncoder(w).Encode([]NominatimPlace{{
			PlaceID:     1,
			OSMType:     "relation",
			OSMID:       123,
			Lat:         "38.7223",
			Lon:         "-9.1393",
			DisplayName: "Lisboa, Portugal",
			BoundingBox: []string{"38.69", "38.80", "-9.23", "-9.09"},
			Address: struct {
				Country     string `json:"country"`
				CountryCode string `json:"country_code"`
			}{Country: "Portugal", CountryCode: "pt"},
		}})
	}))
	defer srv.Close()

	s := newTestService(srv.URL, srv.URL)
	ctx := context.Background()

	info, err := s.ResolveCity(ctx, "Lisbon")
	require.NoError(t, err)
	assert.Equal(t, "pt", info.CountryCode)
	assert.InDelta(t, 38.7223, info.Center.Lat, 1e-6)
	assert.InDelta(t, 38.69, info.BBox.South, 1e-6)

	// Second resolve must hit the cache.
	_, err = s.ResolveCity(ctx, "  LISBON ")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestResolveCity_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	s := newTestService(srv.URL, srv.URL)
	_, err := s.ResolveCity(context.Background(), "Nowhere")
	require.ErrorIs(t, err, types.ErrCityNotFound)
}

func TestGeocodeLandmark_ViewboxHit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("bounded") == "1" {
			json.NewEncoder(w).Encode([]NominatimPlace{{
				OSMType: "way", OSMID: 42,
				Lat: "38.7139", Lon: "-9.1334",
				DisplayName: "Belem Tower, Belem, Lisboa",
				ExtraTags:   map[string]string{"opening_hours": "Tu-Su 10:00-17:30"},
			}})
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	s := newTestService(srv.URL, srv.URL)
	city := testCity()

	place, err := s.GeocodeLandmark(context.Background(), "Belem Tower", city)
	require.NoError(t, err)
	assert.Equal(t, int64(42), place.OSMID)

	poi, ok := s.buildPOI(place, types.LandmarkSuggestion{
		Name: "Belem Tower", Category: "landmark", WhyVisit: "Iconic fort.", VisitDurationHours: 1.5,
	}, city)
	require.True(t, ok)
	assert.Equal(t, "osm_way_42", poi.PlaceID)
	assert.Equal(t, 0.95, poi.Confidence)
	assert.Equal(t, 90, poi.VisitDurationMinutes)
	assert.Equal(t, "Belem Tower, Belem, Lisboa", poi.Address)
	require.NotNil(t, poi.OpeningHours)
	assert.Equal(t, []string{"Tu-Su 10:00-17:30"}, poi.OpeningHours.WeekdayText)
	assert.Contains(t, poi.MapsURL, "Belem+Tower%2C+Lisbon")
}

func TestGeocodeLandmark_RejectsFarAndForeignHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("bounded") == "1" {
			w.Write([]byte(`[]`))
			return
		}
		// A namesake in Brazil: right name, wrong country and 7000km away.
		json.NewEncoder(w).Encode([]NominatimPlace{{
			OSMType: "node", OSMID: 7,
			Lat: "-22.9068", Lon: "-43.1729",
			DisplayName: "Belem Tower, Rio de Janeiro, Brasil",
			Address: struct {
				Country     string `json:"country"`
				CountryCode string `json:"country_code"`
			}{Country: "Brasil", CountryCode: "br"},
		}})
	}))
	defer srv.Close()

	s := newTestService(srv.URL, srv.URL)
	_, err := s.GeocodeLandmark(context.Background(), "Belem Tower", testCity())
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestGeocodeLandmark_DistanceCheckedHit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("bounded") == "1" {
			w.Write([]byte(`[]`))
			return
		}
		json.NewEncoder(w).Encode([]NominatimPlace{{
			OSMType: "node", OSMID: 9,
			Lat: "38.6979", Lon: "-9.2064",
			DisplayName: "Belem Tower, Lisboa, Portugal",
			Address: struct {
				Country     string `json:"country"`
				CountryCode string `json:"country_code"`
			}{Country: "Portugal", CountryCode: "pt"},
		}})
	}))
	defer srv.Close()

	s := newTestService(srv.URL, srv.URL)
	place, err := s.GeocodeLandmark(context.Background(), "Belem Tower", testCity())
	require.NoError(t, err)
	assert.Equal(t, int64(9), place.OSMID)
}

func TestLookupLandmarks_DedupesAndSkipsMisses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		switch {
		case q == "Belem Tower":
			json.NewEncoder(w).Encode([]NominatimPlace{{
				OSMType: "way", OSMID: 42, Lat: "38.7139", Lon: "-9.1334",
				DisplayName: "Belem Tower, Lisboa",
			}})
		case q == "Tower of Belem":
			// Same coordinates as Belem Tower: must be deduped.
			json.NewEncoder(w).Encode([]NominatimPlace{{
				OSMType: "way", OSMID: 43, Lat: "38.7139", Lon: "-9.1334",
				DisplayName: "Belem Tower, Lisboa",
			}})
		default:
			w.Write([]byte(`[]`))
		}
	}))
	defer srv.Close()

	s := newTestService(srv.URL, srv.URL)
	suggestions := []types.LandmarkSuggestion{
		{Name: "Belem Tower", VisitDurationHours: 1},
		{Name: "Tower of Belem", VisitDurationHours: 1},
		{Name: "Imaginary Palace", VisitDurationHours: 1},
	}

	pois, err := s.LookupLandmarks(context.Background(), testCity(), suggestions)
	require.NoError(t, err)
	require.Len(t, pois, 1)
	assert.Equal(t, "Belem Tower", pois[0].Name)
}

func TestGeocode_FallsBackToPhoton(t *testing.T) {
	nominatim := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer nominatim.Close()

	photon := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"features":[{"geometry":{"coordinates":[-9.1393,38.7223]},"properties":{"name":"Rossio","city":"Lisbon","country":"Portugal"}}]}`))
	}))
	defer photon.Close()

	s := newTestService(nominatim.URL, photon.URL)
	coords, label, err := s.Geocode(context.Background(), "Rossio", "Lisbon")
	require.NoError(t, err)
	assert.InDelta(t, 38.7223, coords.Lat, 1e-6)
	assert.Equal(t, "Rossio, Lisbon, Portugal", label)
}

func TestBatchGeocode_FailuresAreNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api" {
			w.Write([]byte(`{"features":[]}`))
			return
		}
		q := r.URL.Query().Get("q")
		if q == "Rossio, Lisbon" {
			json.NewEncoder(w).Encode([]NominatimPlace{{Lat: "38.7142", Lon: "-9.1396", DisplayName: "Rossio"}})
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	s := newTestService(srv.URL, srv.URL)
	results := s.BatchGeocode(context.Background(), "Lisbon", []string{"Rossio", "Nowhere Land", ""})
	require.Len(t, results, 3)
	require.NotNil(t, results[0])
	assert.InDelta(t, 38.7142, results[0].Lat, 1e-6)
	assert.Nil(t, results[1])
	assert.Nil(t, results[2])
}

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "Belem Tower, Belem, Lisboa",
		shortAddress("Belem Tower, Belem, Lisboa, Portugal, 1400-038", "Lisbon"))
	assert.Equal(t, "Lisbon", shortAddress("", "Lisbon"))
}
