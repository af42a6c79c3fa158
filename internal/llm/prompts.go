package llm

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/citywalker/go-city-walker/internal/types"
)

const landmarkSystemPrompt = `You are a knowledgeable local tour guide. When asked for landmarks in a city you suggest the places a first-time visitor must not miss.

Rules:
1. List FAMOUS attractions first, then hidden gems. Target mix: 70% famous, 30% hidden gems.
2. Use SHORT, SEARCHABLE names. No leading articles, no parentheses, no descriptions in the name.
3. Every place must be strictly inside the city limits, within 30 km of the center.
4. NEVER invent coordinates, addresses, or opening hours. Name and category only.
5. Respond with JSON only. No prose, no markdown fences.`

var controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)

// sanitize strips control characters and truncates free text before it is
// concatenated into a prompt.
func sanitize(s string, maxLen int) string {
	s = controlChars.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}

func sanitizeList(items []string, maxLen int) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if cleaned := sanitize(item, maxLen); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}

// suggestionCount scales the request size with the trip duration.
func suggestionCount(constraint *types.TimeConstraint) int {
	if constraint == nil {
		return 30
	}
	switch *constraint {
	case types.TimeHalfDay:
		return 25
	case types.TimeDay:
		return 30
	case types.TimeTwoDays:
		return 40
	case types.TimeThreeDays, types.TimeFiveDays:
		return 50
	default:
		return 30
	}
}

func buildInterpretPrompt(location string, interests []string) string {
	var sb strings.Builder
	sb.WriteString("Interpret this trip request and respond with JSON only:\n")
	sb.WriteString(fmt.Sprintf("Location: %q\n", sanitize(location, 200)))
	if len(interests) > 0 {
		sb.WriteString(fmt.Sprintf("Interests: %s\n", strings.Join(sanitizeList(interests, 50), ", ")))
	}
	sb.WriteString(`Return {"city": string, "area": string or "", "poi_types": [string], "keywords": [string]}.`)
	return sb.String()
}

func buildLandmarkPrompt(city string, interests []string, transportMode types.TransportMode, count int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Suggest %d landmarks in %s", count, sanitize(city, 100)))
	if len(interests) > 0 {
		sb.WriteString(fmt.Sprintf(" for a visitor interested in %s", strings.Join(sanitizeList(interests, 50), ", ")))
	}
	if transportMode != "" {
		sb.WriteString(fmt.Sprintf(", exploring by %s", transportMode))
	}
	sb.WriteString(".\n")
	sb.WriteString(`Return a JSON array: [{"name": string, "category": string, "why_visit": one sentence, "visit_duration_hours": number, "admission": string or "", "admission_url": string or ""}]`)
	return sb.String()
}

func buildRankPrompt(pois []types.POI, interests []string) string {
	var sb strings.Builder
	sb.WriteString("Rank these places by relevance to the interests ")
	sb.WriteString(fmt.Sprintf("[%s].\n", strings.Join(sanitizeList(interests, 50), ", ")))
	for i, p := range pois {
		sb.WriteString(fmt.Sprintf("%d. %s (%s)\n", i, sanitize(p.Name, 100), strings.Join(p.Types, ",")))
	}
	sb.WriteString(`Return a JSON array: [{"index": number, "score": number between 0 and 1, "reason": short string}]. JSON only.`)
	return sb.String()
}

var foodCategoryPrompts = map[string]string{
	"cafes":       "historic and iconic cafes locals and travel writers rave about",
	"restaurants": "legendary restaurants famous for signature local dishes",
	"bars":        "famous bars and pubs with history or a unique atmosphere",
	"parks":       "beloved parks and gardens worth a dedicated visit",
}

func buildFoodPrompt(city, category string, limit int) string {
	desc, ok := foodCategoryPrompts[category]
	if !ok {
		desc = foodCategoryPrompts["cafes"]
	}
	return fmt.Sprintf(`Suggest %d %s in %s. Only REAL, FAMOUS, currently operating venues with their exact searchable names.
Return a JSON array: [{"name": string, "specialty": what it is famous for, "why_visit": one sentence, "visit_duration_hours": number}]. JSON only.`,
		limit, desc, sanitize(city, 100))
}
