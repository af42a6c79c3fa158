package container

import (
	"context"
	"log/slog"
	"os"

	"github.com/citywalker/go-city-walker/config"
	"github.com/citywalker/go-city-walker/internal/api/itinerary"
	"github.com/citywalker/go-city-walker/internal/cache"
	"github.com/citywalker/go-city-walker/internal/dayplan"
	"github.com/citywalker/go-city-walker/internal/geocode"
	"github.com/citywalker/go-city-walker/internal/llm"
	"github.com/citywalker/go-city-walker/internal/overpass"
	"github.com/citywalker/go-city-walker/internal/routing"
	"github.com/citywalker/go-city-walker/internal/wikimedia"
)

// Container holds all application dependencies
type Container struct {
	Config           *config.Config
	Logger           *slog.Logger
	Cache            *cache.TwoTier
	Geocoder         geocode.Service
	ItineraryHandler *itinerary.Handler
}

// NewContainer initializes and returns a new dependency container
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	// Redis is optional: without an address the cache runs local-only.
	var distributed cache.Distributed
	if cfg.Redis.Addr != "" {
		distributed = cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	}
	twoTier := cache.NewTwoTier(
		cache.NewLRU(cfg.Cache.LocalCapacity, cfg.Cache.LocalTTL),
		distributed,
		logger.With(slog.String("component", "cache")),
	)

	geocoder := geocode.NewServiceImpl(geocode.Options{
		NominatimBaseURL: cfg.Providers.NominatimBaseURL,
		PhotonBaseURL:    cfg.Providers.PhotonBaseURL,
		UserAgent:        cfg.Providers.UserAgent,
		Logger:           logger.With(slog.String("service", "geocode")),
	})

	spatial := overpass.NewServiceImpl(
		cfg.Providers.OverpassBaseURL,
		cfg.Providers.UserAgent,
		logger.With(slog.String("service", "overpass")),
	)

	images := wikimedia.NewClient(wikimedia.Options{
		ActionBaseURL:  cfg.Providers.WikipediaActionURL,
		RestBaseURL:    cfg.Providers.WikipediaRestURL,
		CommonsBaseURL: cfg.Providers.CommonsURL,
		UserAgent:      cfg.Providers.UserAgent,
		Logger:         logger.With(slog.String("service", "wikimedia")),
	})

	routingSvc := routing.NewServiceImpl(
		cfg.Providers.OSRMBaseURL,
		cfg.Providers.UserAgent,
		logger.With(slog.String("service", "routing")),
	)

	days := dayplan.NewServiceImpl(routingSvc, logger.With(slog.String("service", "dayplan")))

	primary, err := llm.NewProviderFromEnv(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize LLM provider", slog.Any("error", err))
		return nil, err
	}
	// When both credentials are around, Gemini backs up Groq.
	var fallback llm.Provider
	if primary.Name() == "groq" {
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			if p, err := llm.NewGeminiProvider(ctx, key, cfg.LLM.GeminiModel, cfg.LLM.FallbackTimeout); err == nil {
				fallback = p
			} else {
				logger.Warn("Gemini fallback provider unavailable", slog.Any("error", err))
			}
		}
	}
	llmSvc := llm.NewServiceImpl(primary, fallback, logger.With(slog.String("service", "llm")))

	itinerarySvc := itinerary.NewServiceImpl(
		llmSvc,
		geocoder,
		spatial,
		images,
		routingSvc,
		days,
		twoTier,
		logger.With(slog.String("service", "itinerary")),
	)
	itineraryHandler := itinerary.NewHandler(itinerarySvc, geocoder, logger.With(slog.String("handler", "itinerary")))

	return &Container{
		Config:           cfg,
		Logger:           logger,
		Cache:            twoTier,
		Geocoder:         geocoder,
		ItineraryHandler: itineraryHandler,
	}, nil
}
