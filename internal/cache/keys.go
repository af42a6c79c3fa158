package cache

import (
	"fmt"
	"sort"
	"strings"
)

// Cache keys are the only stable identifier for cached discovery results
// and per-POI lookups. City names are trimmed and lowercased, interests are
// sorted, so equivalent requests share a key.

// DiscoverKey builds discover:{city}:{limit}:{sorted_interests|default},
// with a :food marker when the food list rides along, so responses with
// and without it never share an entry.
func DiscoverKey(city string, limit int, interests []string, includeFood bool) string {
	suffix := "default"
	if len(interests) > 0 {
		sorted := make([]string, 0, len(interests))
		for _, i := range interests {
			i = strings.ToLower(strings.TrimSpace(i))
			if i != "" {
				sorted = append(sorted, i)
			}
		}
		if len(sorted) > 0 {
			sort.Strings(sorted)
			suffix = strings.Join(sorted, ",")
		}
	}
	if includeFood {
		suffix += ":food"
	}
	return fmt.Sprintf("discover:%s:%d:%s", normalizeCity(city), limit, suffix)
}

// FoodKey builds discover_food:{city}:{category}:{limit}.
func FoodKey(city, category string, limit int) string {
	return fmt.Sprintf("discover_food:%s:%s:%d", normalizeCity(city), strings.ToLower(category), limit)
}

// POIKey builds poi:{city}:{place_id}.
func POIKey(city, placeID string) string {
	return fmt.Sprintf("poi:%s:%s", normalizeCity(city), placeID)
}

func normalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
