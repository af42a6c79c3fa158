package geocode

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/citywalker/go-city-walker/internal/geoutil"
	"github.com/citywalker/go-city-walker/internal/httpclient"
	"github.com/citywalker/go-city-walker/internal/types"
)

const (
	// maxLandmarkDistanceKm rejects geocoder hits this far from the city
	// center. LLM names sometimes resolve to a namesake in another country.
	maxLandmarkDistanceKm = 25.0
	viewboxPaddingDeg     = 0.3
	maxLookupSuggestions  = 15
)

// CityInfo describes a resolved city: center, bounding box, country.
type CityInfo struct {
	Name        string
	Center      types.Coordinates
	BBox        geoutil.BBox
	Country     string
	CountryCode string
	DisplayName string
}

var _ Service = (*ServiceImpl)(nil)

// Service converts names into validated coordinates.
type Service interface {
	ResolveCity(ctx context.Context, city string) (*CityInfo, error)
	// GeocodeLandmark validates a candidate name against the city: viewbox
	// search first, then a distance-and-country check, then a display-name
	// match. Returns types.ErrNotFound when every strategy rejects it.
	GeocodeLandmark(ctx context.Context, name string, city *CityInfo) (*NominatimPlace, error)
	// LookupLandmarks lifts LLM suggestions into POIs, dropping candidates
	// that fail validation or duplicate an earlier hit.
	LookupLandmarks(ctx context.Context, city *CityInfo, suggestions []types.LandmarkSuggestion) ([]types.POI, error)
	// Geocode answers free-text queries: Nominatim first, Photon second.
	Geocode(ctx context.Context, query, city string) (*types.Coordinates, string, error)
	// BatchGeocode resolves names in parallel; failures surface as nil
	// coordinates in the aligned result slice.
	BatchGeocode(ctx context.Context, city string, names []string) []*types.Coordinates
}

type ServiceImpl struct {
	logger    *slog.Logger
	nominatim *nominatimClient
	photon    *photonClient
	cities    *gocache.Cache
}

type Options struct {
	NominatimBaseURL string
	PhotonBaseURL    string
	UserAgent        string
	Logger           *slog.Logger
}

func NewServiceImpl(opts Options) *ServiceImpl {
	// Nominatim allows about one request per second; a semaphore of 3 with
	// ~350ms spacing keeps the fan-out polite.
	nominatimHTTP := httpclient.New(httpclient.Options{
		Timeout:     10 * time.Second,
		UserAgent:   opts.UserAgent,
		Concurrency: 3,
		MinInterval: 350 * time.Millisecond,
		Logger:      opts.Logger,
	})
	photonHTTP := httpclient.New(httpclient.Options{
		Timeout:   8 * time.Second,
		UserAgent: opts.UserAgent,
		Logger:    opts.Logger,
	})
	return &ServiceImpl{
		logger:    opts.Logger,
		nominatim: &nominatimClient{http: nominatimHTTP, baseURL: opts.NominatimBaseURL},
		photon:    &photonClient{http: photonHTTP, baseURL: opts.PhotonBaseURL},
		cities:    gocache.New(24*time.Hour, time.Hour),
	}
}

func (s *ServiceImpl) ResolveCity(ctx context.Context, city string) (*CityInfo, error) {
	ctx, span := otel.Tracer("GeocodeService").Start(ctx, "ResolveCity", trace.WithAttributes(
		attribute.String("city", city),
	))
	defer span.End()

	cacheKey := strings.ToLower(strings.TrimSpace(city))
	if cached, ok := s.cities.Get(cacheKey); ok {
		span.AddEvent("city cache hit")
		return cached.(*CityInfo), nil
	}

	results, err := s.nominatim.search(ctx, nominatimQuery{
		Query:          city,
		Limit:          1,
		FeatureType:    "city",
		AddressDetails: true,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("resolve city %q: %w", city, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: %s", types.ErrCityNotFound, city)
	}

	place := results[0]
	center, ok := place.Coordinates()
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrCityNotFound, city)
	}
	bbox, ok := place.BBox()
	if !ok {
		bbox = geoutil.ViewboxAround(center, 25)
	}

	info := &CityInfo{
		Name:        city,
		Center:      center,
		BBox:        bbox,
		Country:     place.Address.Country,
		CountryCode: strings.ToLower(place.Address.CountryCode),
		DisplayName: place.DisplayName,
	}
	s.cities.Set(cacheKey, info, gocache.DefaultExpiration)
	span.SetStatus(codes.Ok, "City resolved")
	return info, nil
}

func (s *ServiceImpl) GeocodeLandmark(ctx context.Context, name string, city *CityInfo) (*NominatimPlace, error) {
	ctx, span := otel.Tracer("GeocodeService").Start(ctx, "GeocodeLandmark", trace.WithAttributes(
		attribute.String("name", name),
		attribute.String("city", city.Name),
	))
	defer span.End()

	// Strategy 1: bounded viewbox search around the city bbox.
	results, err := s.nominatim.search(ctx, nominatimQuery{
		Query:          name,
		Limit:          5,
		Viewbox:        city.BBox.Pad(viewboxPaddingDeg).Viewbox(),
		Bounded:        true,
		AddressDetails: true,
		ExtraTags:      true,
	})
	if err == nil && len(results) > 0 {
		if _, ok := results[0].Coordinates(); ok {
			span.SetStatus(codes.Ok, "viewbox hit")
			return &results[0], nil
		}
	}

	// Strategy 2: open search with a distance-and-country check.
	queries := []string{fmt.Sprintf("%s, %s", name, city.Name)}
	if city.Country != "" {
		queries = append(queries, fmt.Sprintf("%s, %s, %s", name, city.Name, city.Country))
	}
	for _, q := range queries {
		results, err = s.nominatim.search(ctx, nominatimQuery{
			Query:          q,
			Limit:          5,
			AddressDetails: true,
			ExtraTags:      true,
		})
		if err != nil {
			continue
		}
		for i := range results {
			coords, ok := results[i].Coordinates()
			if !ok {
				continue
			}
			if geoutil.DistanceKm(coords, city.Center) > maxLandmarkDistanceKm {
				continue
			}
			if city.CountryCode != "" && results[i].Address.CountryCode != "" &&
				!strings.EqualFold(results[i].Address.CountryCode, city.CountryCode) {
				continue
			}
			span.SetStatus(codes.Ok, "distance-checked hit")
			return &results[i], nil
		}
	}

	// Strategy 3: simple geocode, accepted only when the city shows up in
	// the display name.
	results, err = s.nominatim.search(ctx, nominatimQuery{
		Query:          fmt.Sprintf("%s, %s", name, city.Name),
		Limit:          1,
		AddressDetails: true,
		ExtraTags:      true,
	})
	if err == nil && len(results) > 0 {
		if _, ok := results[0].Coordinates(); ok &&
			strings.Contains(strings.ToLower(results[0].DisplayName), strings.ToLower(city.Name)) {
			span.SetStatus(codes.Ok, "display-name hit")
			return &results[0], nil
		}
	}

	span.AddEvent("not found")
	return nil, fmt.Errorf("geocode %q in %s: %w", name, city.Name, types.ErrNotFound)
}

func (s *ServiceImpl) LookupLandmarks(ctx context.Context, city *CityInfo, suggestions []types.LandmarkSuggestion) ([]types.POI, error) {
	ctx, span := otel.Tracer("GeocodeService").Start(ctx, "LookupLandmarks", trace.WithAttributes(
		attribute.String("city", city.Name),
		attribute.Int("suggestions.count", len(suggestions)),
	))
	defer span.End()

	if len(suggestions) > maxLookupSuggestions {
		suggestions = suggestions[:maxLookupSuggestions]
	}

	pois := make([]types.POI, 0, len(suggestions))
	seenNames := make(map[string]struct{})
	seenCoords := make(map[string]struct{})

	for _, sug := range suggestions {
		if ctx.Err() != nil {
			break
		}
		place, err := s.GeocodeLandmark(ctx, sug.Name, city)
		if err != nil {
			s.logger.InfoContext(ctx, "landmark not found",
				slog.String("name", sug.Name), slog.String("city", city.Name))
			continue
		}
		poi, ok := s.buildPOI(place, sug, city)
		if !ok {
			continue
		}

		nameKey := strings.ToLower(poi.Name)
		coordKey := fmt.Sprintf("%.4f,%.4f", roundCoord(poi.Coordinates.Lat), roundCoord(poi.Coordinates.Lng))
		if _, dup := seenNames[nameKey]; dup {
			continue
		}
		if _, dup := seenCoords[coordKey]; dup {
			continue
		}
		seenNames[nameKey] = struct{}{}
		seenCoords[coordKey] = struct{}{}
		pois = append(pois, poi)
	}

	span.SetAttributes(attribute.Int("pois.count", len(pois)))
	span.SetStatus(codes.Ok, "Landmarks resolved")
	return pois, nil
}

func roundCoord(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func (s *ServiceImpl) buildPOI(place *NominatimPlace, sug types.LandmarkSuggestion, city *CityInfo) (types.POI, bool) {
	coords, ok := place.Coordinates()
	if !ok {
		return types.POI{}, false
	}

	var hours *types.OpeningHours
	if oh := place.ExtraTags["opening_hours"]; oh != "" {
		hours = &types.OpeningHours{IsOpen: true, WeekdayText: []string{oh}}
	}

	category := sug.Category
	if category == "" {
		category = "landmark"
	}

	return types.POI{
		PlaceID:              fmt.Sprintf("osm_%s_%d", place.OSMType, place.OSMID),
		Name:                 sug.Name,
		Coordinates:          coords,
		MapsURL:              GoogleMapsSearchURL(sug.Name, city.Name),
		OpeningHours:         hours,
		Confidence:           0.95,
		Address:              shortAddress(place.DisplayName, city.Name),
		Types:                []string{category},
		VisitDurationMinutes: int(sug.VisitDurationHours * 60),
		WhyVisit:             sug.WhyVisit,
		Admission:            sug.Admission,
		AdmissionURL:         sug.AdmissionURL,
		Specialty:            sug.Specialty,
	}, true
}

// GoogleMapsSearchURL builds the canonical external maps link for a place.
func GoogleMapsSearchURL(name, city string) string {
	q := url.QueryEscape(name + ", " + city)
	return "https://www.google.com/maps/search/?api=1&query=" + q
}

// shortAddress keeps the first three display-name segments.
func shortAddress(displayName, fallback string) string {
	if displayName == "" {
		return fallback
	}
	parts := strings.Split(displayName, ",")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(parts, ", ")
}

func (s *ServiceImpl) Geocode(ctx context.Context, query, city string) (*types.Coordinates, string, error) {
	ctx, span := otel.Tracer("GeocodeService").Start(ctx, "Geocode", trace.WithAttributes(
		attribute.String("query", query),
	))
	defer span.End()

	full := query
	if city != "" && !strings.Contains(strings.ToLower(query), strings.ToLower(city)) {
		full = fmt.Sprintf("%s, %s", query, city)
	}

	results, err := s.nominatim.search(ctx, nominatimQuery{Query: full, Limit: 1, AddressDetails: true})
	if err == nil && len(results) > 0 {
		if coords, ok := results[0].Coordinates(); ok {
			span.SetStatus(codes.Ok, "nominatim hit")
			return &coords, results[0].DisplayName, nil
		}
	}
	if err != nil {
		s.logger.InfoContext(ctx, "nominatim geocode failed", slog.String("query", full), slog.Any("error", err))
	}

	coords, label, err := s.photon.search(ctx, full, city)
	if err != nil {
		span.RecordError(err)
		return nil, "", fmt.Errorf("geocode %q: %w", query, err)
	}
	if coords == nil {
		return nil, "", fmt.Errorf("geocode %q: %w", query, types.ErrNotFound)
	}
	span.SetStatus(codes.Ok, "photon hit")
	return coords, label, nil
}

func (s *ServiceImpl) BatchGeocode(ctx context.Context, city string, names []string) []*types.Coordinates {
	ctx, span := otel.Tracer("GeocodeService").Start(ctx, "BatchGeocode", trace.WithAttributes(
		attribute.Int("names.count", len(names)),
	))
	defer span.End()

	results := make([]*types.Coordinates, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		if name == "" {
			continue
		}
		g.Go(func() error {
			itemCtx, cancel := context.WithTimeout(gctx, 8*time.Second)
			defer cancel()
			coords, _, err := s.Geocode(itemCtx, name, city)
			if err != nil {
				s.logger.InfoContext(itemCtx, "batch geocode miss", slog.String("name", name))
				return nil
			}
			results[i] = coords
			return nil
		})
	}
	g.Wait()
	span.SetStatus(codes.Ok, "Batch geocoded")
	return results
}
