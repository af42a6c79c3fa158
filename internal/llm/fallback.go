package llm

import (
	"fmt"

	"github.com/citywalker/go-city-walker/internal/types"
)

// Deterministic region-aware landmark names used when every LLM call times
// out or fails to parse. The templates are chosen to geocode reliably.

var universalTemplates = []string{
	"%s Cathedral",
	"%s Old Town",
	"%s Main Square",
	"%s City Hall",
	"%s Museum",
	"%s Castle",
	"%s Market",
	"%s Park",
	"%s Bridge",
}

var regionTemplates = map[string][]string{
	"east_asia":      {"%s Temple", "%s Shrine", "%s Tower", "%s Garden", "%s Palace", "%s Station"},
	"south_asia":     {"%s Temple", "%s Fort", "%s Bazaar", "%s Gate", "%s Palace", "%s Mosque"},
	"southeast_asia": {"%s Temple", "%s Night Market", "%s Pagoda", "%s Royal Palace", "%s River", "%s Grand Mosque"},
	"middle_east":    {"%s Mosque", "%s Bazaar", "%s Citadel", "%s Souq", "%s Gate", "%s Corniche"},
	"americas":       {"%s Plaza", "%s Historic District", "%s Waterfront", "%s Botanical Garden", "%s Opera House", "%s Central Park"},
	"europe":         {"%s Basilica", "%s Opera House", "%s Royal Palace", "%s Botanical Garden", "%s Monastery", "%s Fortress"},
}

// classifyRegion buckets a city center into one of six rough regions.
func classifyRegion(center *types.Coordinates) string {
	if center == nil {
		return "europe"
	}
	lat, lng := center.Lat, center.Lng
	switch {
	case lat > 20 && lat < 50 && lng > 100 && lng < 150:
		return "east_asia"
	case lat > 5 && lat < 35 && lng > 65 && lng < 100:
		return "south_asia"
	case lat > -10 && lat < 25 && lng > 95 && lng < 145:
		return "southeast_asia"
	case lat > 15 && lat < 42 && lng > 25 && lng < 65:
		return "middle_east"
	case lat > -60 && lat < 75 && lng > -170 && lng < -30:
		return "americas"
	default:
		return "europe"
	}
}

// fallbackLandmarks composes templated names expected to geocode within the
// city. Confidence in these is low, so visit durations stay at one hour.
func fallbackLandmarks(city string, center *types.Coordinates) []types.LandmarkSuggestion {
	templates := append([]string{}, universalTemplates...)
	templates = append(templates, regionTemplates[classifyRegion(center)]...)

	suggestions := make([]types.LandmarkSuggestion, 0, len(templates))
	for _, tpl := range templates {
		suggestions = append(suggestions, types.LandmarkSuggestion{
			Name:               fmt.Sprintf(tpl, city),
			Category:           "landmark",
			WhyVisit:           "A classic stop for first-time visitors.",
			VisitDurationHours: 1.0,
		})
	}
	return suggestions
}
