package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/citywalker/go-city-walker/internal/api/itinerary"
)

// Config contains dependencies needed for the router setup
type Config struct {
	ItineraryHandler *itinerary.Handler
	AllowedOrigins   []string
	MetricsHandler   http.Handler
}

// SetupRouter initializes and configures the main application router.
// Server-wide middleware (logger, requestID, recoverer) are expected to
// be applied before mounting this router in main.go.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := cfg.ItineraryHandler

	r.Get("/health", h.Health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/itinerary", h.CreateItinerary)
		r.Post("/route/from-selection", h.CreateRouteFromSelection)
		r.Post("/discover", h.Discover)
		r.Post("/discover/food", h.DiscoverFood)
		r.Get("/places/{place_id}", h.GetPlaceDetails)
		r.Post("/geocode", h.Geocode)
		r.Post("/geocode/batch", h.BatchGeocode)
		r.Post("/pois/lookup", h.LookupPOIs)
		r.Get("/city/center", h.CityCenter)
	})

	return r
}
