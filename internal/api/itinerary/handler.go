package itinerary

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/citywalker/go-city-walker/internal/api"
	"github.com/citywalker/go-city-walker/internal/geocode"
	"github.com/citywalker/go-city-walker/internal/types"
)

type Handler struct {
	logger   *slog.Logger
	service  Service
	geocoder geocode.Service
}

func NewHandler(service Service, geocoder geocode.Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		geocoder: geocoder,
	}
}

var retryRecovery = []types.RecoveryOption{{
	Action: "retry",
	Label:  "Try again",
}}

var changeModeRecovery = []types.RecoveryOption{{
	Action:  "change_mode",
	Label:   "Try another way of getting around",
	Options: []string{"walking", "driving"},
}}

// writeError maps service failures onto the domain error envelope.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *types.APIError
	if errors.As(err, &apiErr) {
		api.DomainErrorResponse(w, r, http.StatusBadRequest, apiErr)
		return
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no transit") || strings.Contains(msg, "no route"):
		api.DomainErrorResponse(w, r, http.StatusBadRequest, &types.APIError{
			Code:            types.CodeNoTransitRoute,
			Message:         err.Error(),
			UserMessage:     "No transit route connects these places. Another transport mode may work.",
			RecoveryOptions: changeModeRecovery,
		})
	case errors.Is(err, types.ErrNotFound):
		api.DomainErrorResponse(w, r, http.StatusNotFound, &types.APIError{
			Code:        types.CodeValidationError,
			Message:     err.Error(),
			UserMessage: "That place is not in the cache; run a discovery first.",
		})
	case errors.Is(err, types.ErrCityNotFound) || errors.Is(err, types.ErrNoPOIs):
		api.DomainErrorResponse(w, r, http.StatusBadRequest, &types.APIError{
			Code:            types.CodeInvalidInput,
			Message:         err.Error(),
			UserMessage:     "We could not find places for that request. Try a different city or interests.",
			RecoveryOptions: retryRecovery,
		})
	default:
		api.DomainErrorResponse(w, r, http.StatusInternalServerError, &types.APIError{
			Code:            types.CodeAPIError,
			Message:         err.Error(),
			UserMessage:     "Something went wrong on our side. Please try again.",
			RecoveryOptions: retryRecovery,
		})
	}
}

func (h *Handler) CreateItinerary(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ItineraryHandler").Start(r.Context(), "CreateItinerary")
	defer span.End()
	l := h.logger.With(slog.String("method", "CreateItinerary"))

	var req CreateItineraryRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		h.invalidInput(w, r, err.Error())
		return
	}
	if strings.TrimSpace(req.Location) == "" {
		h.invalidInput(w, r, "location is required")
		return
	}
	if req.TransportMode == "" {
		req.TransportMode = types.TransportWalking
	}
	if !req.TransportMode.Valid() {
		h.invalidInput(w, r, "transport_mode must be walking, driving or transit")
		return
	}
	if req.TimeAvailable != nil && !req.TimeAvailable.Valid() {
		h.invalidInput(w, r, "time_available must be one of 6h, day, 2days, 3days, 5days")
		return
	}

	l.InfoContext(ctx, "Creating itinerary",
		slog.String("location", req.Location),
		slog.String("mode", string(req.TransportMode)))

	it, warnings, err := h.service.CreateItinerary(ctx, req)
	if err != nil {
		l.ErrorContext(ctx, "Itinerary creation failed", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Service operation failed")
		h.writeError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, map[string]any{
		"success":   true,
		"itinerary": it,
		"warnings":  warnings,
	})
	span.SetStatus(codes.Ok, "Itinerary returned")
}

func (h *Handler) CreateRouteFromSelection(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ItineraryHandler").Start(r.Context(), "CreateRouteFromSelection")
	defer span.End()

	var req RouteFromSelectionRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		h.invalidInput(w, r, err.Error())
		return
	}
	if len(req.POIs) == 0 {
		h.invalidInput(w, r, "pois must not be empty")
		return
	}
	if req.TransportMode == "" {
		req.TransportMode = types.TransportWalking
	}
	if !req.TransportMode.Valid() {
		h.invalidInput(w, r, "transport_mode must be walking, driving or transit")
		return
	}
	for _, p := range req.POIs {
		if err := p.Coordinates.Validate(); err != nil {
			h.invalidInput(w, r, "every poi needs valid coordinates")
			return
		}
	}

	it, err := h.service.CreateRouteFromSelection(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Service operation failed")
		h.writeError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, map[string]any{
		"success":   true,
		"itinerary": it,
	})
	span.SetStatus(codes.Ok, "Route returned")
}

func (h *Handler) Discover(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ItineraryHandler").Start(r.Context(), "Discover")
	defer span.End()

	var req DiscoverRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		h.invalidInput(w, r, err.Error())
		return
	}
	if strings.TrimSpace(req.City) == "" {
		h.invalidInput(w, r, "city is required")
		return
	}

	resp, err := h.service.Discover(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Service operation failed")
		h.writeError(w, r, err)
		return
	}
	body := map[string]any{
		"success":          true,
		"city":             resp.City,
		"pois":             resp.POIs,
		"count":            resp.Count,
		"validation_stats": resp.ValidationStats,
	}
	if resp.FoodPOIs != nil {
		body["food_pois"] = resp.FoodPOIs
	}
	api.WriteJSONResponse(w, r, http.StatusOK, body)
	span.SetStatus(codes.Ok, "Discovery returned")
}

func (h *Handler) DiscoverFood(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ItineraryHandler").Start(r.Context(), "DiscoverFood")
	defer span.End()

	var req DiscoverFoodRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		h.invalidInput(w, r, err.Error())
		return
	}
	if strings.TrimSpace(req.City) == "" || strings.TrimSpace(req.Category) == "" {
		h.invalidInput(w, r, "city and category are required")
		return
	}

	resp, err := h.service.DiscoverFood(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Service operation failed")
		h.writeError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, map[string]any{
		"success":          true,
		"city":             resp.City,
		"category":         resp.Category,
		"pois":             resp.POIs,
		"count":            resp.Count,
		"validation_stats": resp.ValidationStats,
	})
	span.SetStatus(codes.Ok, "Food discovery returned")
}

func (h *Handler) GetPlaceDetails(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ItineraryHandler").Start(r.Context(), "GetPlaceDetails")
	defer span.End()

	placeID := chi.URLParam(r, "place_id")
	city := r.URL.Query().Get("city")
	if placeID == "" || city == "" {
		h.invalidInput(w, r, "place_id and city are required")
		return
	}

	poi, err := h.service.GetPlaceDetails(ctx, city, placeID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Place not found")
		h.writeError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, map[string]any{
		"success": true,
		"poi":     poi,
	})
	span.SetStatus(codes.Ok, "Place returned")
}

func (h *Handler) Geocode(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ItineraryHandler").Start(r.Context(), "Geocode")
	defer span.End()

	var req GeocodeRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		h.invalidInput(w, r, err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		h.invalidInput(w, r, "query is required")
		return
	}

	coords, label, err := h.geocoder.Geocode(ctx, req.Query, req.City)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Geocode failed")
		h.writeError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, map[string]any{
		"success":     true,
		"coordinates": coords,
		"label":       label,
	})
	span.SetStatus(codes.Ok, "Geocode returned")
}

func (h *Handler) BatchGeocode(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ItineraryHandler").Start(r.Context(), "BatchGeocode")
	defer span.End()

	var req BatchGeocodeRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		h.invalidInput(w, r, err.Error())
		return
	}
	if len(req.Names) == 0 {
		h.invalidInput(w, r, "names must not be empty")
		return
	}

	results := h.geocoder.BatchGeocode(ctx, req.City, req.Names)
	api.WriteJSONResponse(w, r, http.StatusOK, map[string]any{
		"success":     true,
		"coordinates": results,
		"count":       len(results),
	})
	span.SetStatus(codes.Ok, "Batch geocode returned")
}

func (h *Handler) LookupPOIs(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ItineraryHandler").Start(r.Context(), "LookupPOIs")
	defer span.End()

	var req LookupPOIsRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		h.invalidInput(w, r, err.Error())
		return
	}
	if strings.TrimSpace(req.City) == "" || len(req.Names) == 0 {
		h.invalidInput(w, r, "city and names are required")
		return
	}

	pois, err := h.service.LookupPOIs(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Lookup failed")
		h.writeError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, map[string]any{
		"success": true,
		"pois":    pois,
		"count":   len(pois),
	})
	span.SetStatus(codes.Ok, "Lookup returned")
}

func (h *Handler) CityCenter(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ItineraryHandler").Start(r.Context(), "CityCenter")
	defer span.End()

	city := r.URL.Query().Get("city")
	if city == "" {
		h.invalidInput(w, r, "city query parameter is required")
		return
	}

	info, err := h.service.CityCenter(ctx, city)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "City resolution failed")
		h.writeError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, map[string]any{
		"success":      true,
		"city":         info.Name,
		"center":       info.Center,
		"country_code": info.CountryCode,
	})
	span.SetStatus(codes.Ok, "City center returned")
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	api.WriteJSONResponse(w, r, http.StatusOK, map[string]any{
		"success": true,
		"status":  "ok",
	})
}

func (h *Handler) invalidInput(w http.ResponseWriter, r *http.Request, message string) {
	api.DomainErrorResponse(w, r, http.StatusBadRequest, &types.APIError{
		Code:            types.CodeInvalidInput,
		Message:         message,
		UserMessage:     "Please check your input and try again.",
		RecoveryOptions: retryRecovery,
	})
}
