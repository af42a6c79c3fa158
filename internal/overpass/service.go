package overpass

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/citywalker/go-city-walker/internal/geocode"
	"github.com/citywalker/go-city-walker/internal/geoutil"
	"github.com/citywalker/go-city-walker/internal/httpclient"
	"github.com/citywalker/go-city-walker/internal/types"
)

// Feature is a spatial feature with a resolved center and notability.
type Feature struct {
	ID         int64
	Type       string
	Name       string
	Center     types.Coordinates
	Tags       map[string]string
	Category   string
	Notability float64
}

var _ Service = (*ServiceImpl)(nil)

// Service runs bounded-box tag queries against an Overpass endpoint.
type Service interface {
	// QueryPOIs returns up to limit features inside the city bbox matching
	// the interests, sorted by notability.
	QueryPOIs(ctx context.Context, city *geocode.CityInfo, interests []string, limit int) ([]types.POI, error)
	// ValidatePlaceExists scores a name against features in the bbox;
	// a score of zero means no plausible match.
	ValidatePlaceExists(ctx context.Context, city *geocode.CityInfo, name string) (float64, *Feature, error)
	// FamousPlaces returns wiki-referenced venues of a category.
	FamousPlaces(ctx context.Context, city *geocode.CityInfo, category string, limit int) ([]types.POI, error)
}

type ServiceImpl struct {
	logger  *slog.Logger
	http    *httpclient.Client
	baseURL string
}

func NewServiceImpl(baseURL, userAgent string, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger:  logger,
		baseURL: baseURL,
		http: httpclient.New(httpclient.Options{
			Timeout:   30 * time.Second,
			UserAgent: userAgent,
			Logger:    logger,
		}),
	}
}

type overpassResponse struct {
	Elements []struct {
		Type   string            `json:"type"`
		ID     int64             `json:"id"`
		Lat    float64           `json:"lat"`
		Lon    float64           `json:"lon"`
		Center *struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"center"`
		Tags map[string]string `json:"tags"`
	} `json:"elements"`
}

// buildQuery composes Overpass QL over the bbox for node and way features
// per tag filter, requesting 3x the wanted amount so dedupe and scoring
// have room to work.
func buildQuery(bbox geoutil.BBox, tags []TagFilter, limit int) string {
	var sb strings.Builder
	sb.WriteString("[out:json][timeout:25];(")
	coords := fmt.Sprintf("(%f,%f,%f,%f)", bbox.South, bbox.West, bbox.North, bbox.East)
	for _, t := range tags {
		fmt.Fprintf(&sb, `node["%s"="%s"]%s;`, t.Key, t.Value, coords)
		fmt.Fprintf(&sb, `way["%s"="%s"]%s;`, t.Key, t.Value, coords)
	}
	fmt.Fprintf(&sb, ");out center %d;", limit*3)
	return sb.String()
}

func (s *ServiceImpl) run(ctx context.Context, query string) ([]Feature, error) {
	params := url.Values{}
	params.Set("data", query)

	var resp overpassResponse
	if err := s.http.GetJSON(ctx, s.baseURL, params, &resp); err != nil {
		return nil, fmt.Errorf("overpass query: %w", err)
	}

	features := make([]Feature, 0, len(resp.Elements))
	for _, el := range resp.Elements {
		name := el.Tags["name"]
		if name == "" {
			continue
		}
		center := types.Coordinates{Lat: el.Lat, Lng: el.Lon}
		if el.Center != nil {
			center = types.Coordinates{Lat: el.Center.Lat, Lng: el.Center.Lon}
		}
		if center.Validate() != nil || (center.Lat == 0 && center.Lng == 0) {
			continue
		}
		features = append(features, Feature{
			ID:         el.ID,
			Type:       el.Type,
			Name:       name,
			Center:     center,
			Tags:       el.Tags,
			Category:   CategoryFromTags(el.Tags),
			Notability: NotabilityScore(el.Tags),
		})
	}
	return features, nil
}

func (s *ServiceImpl) QueryPOIs(ctx context.Context, city *geocode.CityInfo, interests []string, limit int) ([]types.POI, error) {
	ctx, span := otel.Tracer("OverpassService").Start(ctx, "QueryPOIs", trace.WithAttributes(
		attribute.String("city", city.Name),
		attribute.Int("limit", limit),
	))
	defer span.End()

	features, err := s.run(ctx, buildQuery(city.BBox, TagsForInterests(interests), limit))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// Dedupe by lowercase name, keep the more notable feature.
	byName := make(map[string]Feature, len(features))
	for _, f := range features {
		key := strings.ToLower(f.Name)
		if existing, ok := byName[key]; !ok || f.Notability > existing.Notability {
			byName[key] = f
		}
	}
	deduped := make([]Feature, 0, len(byName))
	for _, f := range byName {
		deduped = append(deduped, f)
	}
	sort.SliceStable(deduped, func(i, j int) bool {
		if deduped[i].Notability != deduped[j].Notability {
			return deduped[i].Notability > deduped[j].Notability
		}
		return strings.ToLower(deduped[i].Name) < strings.ToLower(deduped[j].Name)
	})
	if len(deduped) > limit {
		deduped = deduped[:limit]
	}

	pois := make([]types.POI, 0, len(deduped))
	for _, f := range deduped {
		pois = append(pois, s.poiFromFeature(f, city))
	}
	span.SetAttributes(attribute.Int("pois.count", len(pois)))
	span.SetStatus(codes.Ok, "Spatial query completed")
	return pois, nil
}

func (s *ServiceImpl) poiFromFeature(f Feature, city *geocode.CityInfo) types.POI {
	var hours *types.OpeningHours
	if oh := f.Tags["opening_hours"]; oh != "" {
		hours = &types.OpeningHours{IsOpen: true, WeekdayText: []string{oh}}
	}
	return types.POI{
		PlaceID:              fmt.Sprintf("osm_%s_%d", f.Type, f.ID),
		Name:                 f.Name,
		Coordinates:          f.Center,
		MapsURL:              geocode.GoogleMapsSearchURL(f.Name, city.Name),
		OpeningHours:         hours,
		Confidence:           f.Notability,
		Address:              f.Tags["addr:street"],
		Types:                []string{f.Category},
		VisitDurationMinutes: 60,
	}
}

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

func (s *ServiceImpl) ValidatePlaceExists(ctx context.Context, city *geocode.CityInfo, name string) (float64, *Feature, error) {
	ctx, span := otel.Tracer("OverpassService").Start(ctx, "ValidatePlaceExists", trace.WithAttributes(
		attribute.String("name", name),
	))
	defer span.End()

	features, err := s.run(ctx, buildQuery(city.BBox, defaultTags, 60))
	if err != nil {
		span.RecordError(err)
		return 0, nil, err
	}

	target := strings.ToLower(strings.TrimSpace(name))
	targetNorm := nonWord.ReplaceAllString(target, " ")

	var best *Feature
	var bestScore float64
	for i := range features {
		candidate := strings.ToLower(features[i].Name)
		var score float64
		switch {
		case candidate == target:
			score = 100
		case strings.Contains(candidate, target):
			score = 80
		case strings.Contains(target, candidate):
			score = 70
		case nonWord.ReplaceAllString(candidate, " ") == targetNorm:
			score = 50
		default:
			continue
		}
		if features[i].Tags["wikipedia"] != "" || features[i].Tags["wikidata"] != "" {
			score += 10
		}
		if features[i].Tags["opening_hours"] != "" {
			score += 5
		}
		if score > bestScore {
			bestScore = score
			best = &features[i]
		}
	}
	span.SetStatus(codes.Ok, "Validation scored")
	return bestScore, best, nil
}

var famousCategoryTags = map[string][]TagFilter{
	"cafes":       {{"amenity", "cafe"}},
	"restaurants": {{"amenity", "restaurant"}},
	"bars":        {{"amenity", "bar"}, {"amenity", "pub"}},
	"parks":       {{"leisure", "park"}, {"leisure", "garden"}},
}

func (s *ServiceImpl) FamousPlaces(ctx context.Context, city *geocode.CityInfo, category string, limit int) ([]types.POI, error) {
	ctx, span := otel.Tracer("OverpassService").Start(ctx, "FamousPlaces", trace.WithAttributes(
		attribute.String("category", category),
	))
	defer span.End()

	tags, ok := famousCategoryTags[category]
	if !ok {
		return nil, fmt.Errorf("unknown famous-place category %q", category)
	}
	features, err := s.run(ctx, buildQuery(city.BBox, tags, limit))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var famous []Feature
	for _, f := range features {
		if f.Tags["wikipedia"] != "" || f.Tags["wikidata"] != "" {
			famous = append(famous, f)
		}
	}
	sort.SliceStable(famous, func(i, j int) bool { return famous[i].Notability > famous[j].Notability })
	if len(famous) > limit {
		famous = famous[:limit]
	}

	pois := make([]types.POI, 0, len(famous))
	for _, f := range famous {
		pois = append(pois, s.poiFromFeature(f, city))
	}
	span.SetStatus(codes.Ok, "Famous places returned")
	return pois, nil
}
