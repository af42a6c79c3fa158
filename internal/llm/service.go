package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/citywalker/go-city-walker/internal/types"
)

var _ Service = (*ServiceImpl)(nil)

// RankedPOI is one entry of a relevance ranking over an indexed POI list.
type RankedPOI struct {
	Index  int     `json:"index"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// Service defines the reasoning operations the pipeline needs from an LLM.
type Service interface {
	InterpretUserInput(ctx context.Context, location string, interests []string) (*types.StructuredQuery, error)
	// SuggestLandmarks returns candidates plus a flag telling the caller a
	// deterministic fallback list was used instead of a live model.
	SuggestLandmarks(ctx context.Context, city string, interests []string, mode types.TransportMode, constraint *types.TimeConstraint, center *types.Coordinates) ([]types.LandmarkSuggestion, bool, error)
	RankPOIs(ctx context.Context, pois []types.POI, interests []string) ([]RankedPOI, error)
	SuggestFoodAndDrinks(ctx context.Context, city, category string, limit int) ([]types.LandmarkSuggestion, error)
}

type ServiceImpl struct {
	logger   *slog.Logger
	primary  Provider
	fallback Provider
}

// NewServiceImpl builds the reasoning service. fallback may be nil.
func NewServiceImpl(primary, fallback Provider, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger:   logger,
		primary:  primary,
		fallback: fallback,
	}
}

// generate runs the primary provider and falls back to the secondary when
// the primary errors out. Calls are one-at-a-time per request.
func (s *ServiceImpl) generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	out, err := s.primary.Generate(ctx, systemPrompt, userPrompt)
	if err == nil {
		return out, nil
	}
	s.logger.InfoContext(ctx, "primary LLM provider failed",
		slog.String("provider", s.primary.Name()), slog.Any("error", err))

	if s.fallback == nil {
		return "", err
	}
	out, fbErr := s.fallback.Generate(ctx, systemPrompt, userPrompt)
	if fbErr != nil {
		s.logger.InfoContext(ctx, "fallback LLM provider failed",
			slog.String("provider", s.fallback.Name()), slog.Any("error", fbErr))
		return "", fmt.Errorf("all LLM providers failed: %w", err)
	}
	return out, nil
}

func (s *ServiceImpl) InterpretUserInput(ctx context.Context, location string, interests []string) (*types.StructuredQuery, error) {
	ctx, span := otel.Tracer("LLMService").Start(ctx, "InterpretUserInput", trace.WithAttributes(
		attribute.String("location", location),
	))
	defer span.End()

	raw, err := s.generate(ctx, landmarkSystemPrompt, buildInterpretPrompt(location, interests))
	if err != nil {
		span.RecordError(err)
		// A raw location string is still usable as a city query.
		return &types.StructuredQuery{
			City:     sanitize(location, 200),
			POITypes: sanitizeList(interests, 50),
		}, nil
	}

	var query types.StructuredQuery
	if err := parseStructuredQuery(raw, &query); err != nil {
		span.RecordError(err)
		return &types.StructuredQuery{
			City:     sanitize(location, 200),
			POITypes: sanitizeList(interests, 50),
		}, nil
	}
	if query.City == "" {
		query.City = sanitize(location, 200)
	}
	span.SetStatus(codes.Ok, "Input interpreted")
	return &query, nil
}

func (s *ServiceImpl) SuggestLandmarks(ctx context.Context, city string, interests []string, mode types.TransportMode, constraint *types.TimeConstraint, center *types.Coordinates) ([]types.LandmarkSuggestion, bool, error) {
	ctx, span := otel.Tracer("LLMService").Start(ctx, "SuggestLandmarks", trace.WithAttributes(
		attribute.String("city", city),
		attribute.Int("interests.count", len(interests)),
	))
	defer span.End()

	count := suggestionCount(constraint)
	ctx, cancel := context.WithTimeout(ctx, 45*time.Second)
	defer cancel()

	raw, err := s.generate(ctx, landmarkSystemPrompt, buildLandmarkPrompt(city, interests, mode, count))
	if err != nil {
		s.logger.WarnContext(ctx, "landmark suggestion failed, using region fallback",
			slog.String("city", city), slog.Any("error", err))
		span.AddEvent("region fallback")
		return fallbackLandmarks(city, center), true, nil
	}

	suggestions, err := parseJSONArray[types.LandmarkSuggestion](raw)
	if err != nil {
		s.logger.WarnContext(ctx, "landmark response unparseable, using region fallback",
			slog.String("city", city), slog.Any("error", err))
		span.RecordError(err)
		return fallbackLandmarks(city, center), true, nil
	}

	deduped := make([]types.LandmarkSuggestion, 0, len(suggestions))
	seen := make(map[string]struct{}, len(suggestions))
	for _, sug := range suggestions {
		sug.Name = normalizeLandmarkName(sug.Name)
		if sug.Name == "" {
			continue
		}
		key := strings.ToLower(sug.Name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if sug.VisitDurationHours <= 0 {
			sug.VisitDurationHours = 1.0
		}
		deduped = append(deduped, sug)
		if len(deduped) >= count {
			break
		}
	}

	span.SetAttributes(attribute.Int("suggestions.count", len(deduped)))
	span.SetStatus(codes.Ok, "Landmarks suggested")
	return deduped, false, nil
}

func (s *ServiceImpl) RankPOIs(ctx context.Context, pois []types.POI, interests []string) ([]RankedPOI, error) {
	ctx, span := otel.Tracer("LLMService").Start(ctx, "RankPOIs", trace.WithAttributes(
		attribute.Int("pois.count", len(pois)),
	))
	defer span.End()

	ranked := make([]RankedPOI, len(pois))
	for i := range pois {
		ranked[i] = RankedPOI{Index: i, Score: 0.5}
	}

	raw, err := s.generate(ctx, "", buildRankPrompt(pois, interests))
	if err != nil {
		span.RecordError(err)
		return ranked, nil
	}
	scores, err := parseJSONArray[RankedPOI](raw)
	if err != nil {
		span.RecordError(err)
		return ranked, nil
	}

	for _, sc := range scores {
		if sc.Index < 0 || sc.Index >= len(pois) {
			continue
		}
		if sc.Score < 0 {
			sc.Score = 0
		}
		if sc.Score > 1 {
			sc.Score = 1
		}
		ranked[sc.Index].Score = sc.Score
		ranked[sc.Index].Reason = sc.Reason
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	span.SetStatus(codes.Ok, "POIs ranked")
	return ranked, nil
}

func (s *ServiceImpl) SuggestFoodAndDrinks(ctx context.Context, city, category string, limit int) ([]types.LandmarkSuggestion, error) {
	ctx, span := otel.Tracer("LLMService").Start(ctx, "SuggestFoodAndDrinks", trace.WithAttributes(
		attribute.String("city", city),
		attribute.String("category", category),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	raw, err := s.generate(ctx, "", buildFoodPrompt(city, category, limit))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("suggest %s in %s: %w", category, city, err)
	}
	suggestions, err := parseJSONArray[types.LandmarkSuggestion](raw)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	out := make([]types.LandmarkSuggestion, 0, limit)
	seen := make(map[string]struct{}, len(suggestions))
	for _, sug := range suggestions {
		sug.Name = strings.TrimSpace(sug.Name)
		if sug.Name == "" {
			continue
		}
		key := strings.ToLower(sug.Name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if sug.VisitDurationHours <= 0 {
			sug.VisitDurationHours = 1.0
		}
		out = append(out, sug)
		if len(out) >= limit {
			break
		}
	}
	span.SetAttributes(attribute.Int("suggestions.count", len(out)))
	span.SetStatus(codes.Ok, "Food suggestions returned")
	return out, nil
}
