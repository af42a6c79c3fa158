package overpass

// TagFilter is a single key=value filter on OSM features.
type TagFilter struct {
	Key   string
	Value string
}

// interestTags maps user interests onto OSM tag filters. Unknown interests
// fall back to defaultTags.
var interestTags = map[string][]TagFilter{
	"landmarks": {
		{"tourism", "attraction"},
		{"historic", "monument"},
		{"historic", "memorial"},
		{"man_made", "tower"},
	},
	"history": {
		{"historic", "castle"},
		{"historic", "fort"},
		{"historic", "ruins"},
		{"historic", "archaeological_site"},
		{"historic", "monument"},
	},
	"architecture": {
		{"building", "cathedral"},
		{"historic", "building"},
		{"tourism", "attraction"},
	},
	"churches": {
		{"building", "cathedral"},
		{"building", "church"},
		{"building", "chapel"},
		{"amenity", "place_of_worship"},
	},
	"religious": {
		{"amenity", "place_of_worship"},
		{"building", "mosque"},
		{"building", "synagogue"},
		{"building", "temple"},
	},
	"museums": {
		{"tourism", "museum"},
		{"tourism", "gallery"},
	},
	"art": {
		{"tourism", "gallery"},
		{"tourism", "artwork"},
		{"tourism", "museum"},
	},
	"culture": {
		{"amenity", "theatre"},
		{"amenity", "arts_centre"},
		{"tourism", "museum"},
	},
	"parks": {
		{"leisure", "park"},
		{"leisure", "garden"},
		{"tourism", "viewpoint"},
	},
	"nature": {
		{"leisure", "park"},
		{"leisure", "nature_reserve"},
		{"natural", "beach"},
	},
	"gardens": {
		{"leisure", "garden"},
		{"leisure", "park"},
	},
	"cafes": {
		{"amenity", "cafe"},
	},
	"coffee": {
		{"amenity", "cafe"},
	},
	"restaurants": {
		{"amenity", "restaurant"},
	},
	"food": {
		{"amenity", "restaurant"},
		{"amenity", "food_court"},
	},
	"nightlife": {
		{"amenity", "bar"},
		{"amenity", "pub"},
		{"amenity", "nightclub"},
	},
	"bars": {
		{"amenity", "bar"},
		{"amenity", "pub"},
	},
	"clubs": {
		{"amenity", "nightclub"},
	},
	"markets": {
		{"amenity", "marketplace"},
		{"shop", "market"},
	},
	"shopping": {
		{"amenity", "marketplace"},
		{"shop", "mall"},
	},
	"sightseeing": {
		{"tourism", "attraction"},
		{"tourism", "viewpoint"},
		{"historic", "monument"},
	},
}

var defaultTags = []TagFilter{
	{"tourism", "attraction"},
	{"historic", "monument"},
	{"tourism", "museum"},
}

// TagsForInterests collects filters for the given interests, deduplicated,
// preserving first-seen order.
func TagsForInterests(interests []string) []TagFilter {
	if len(interests) == 0 {
		return defaultTags
	}
	var out []TagFilter
	seen := make(map[TagFilter]struct{})
	for _, interest := range interests {
		tags, ok := interestTags[interest]
		if !ok {
			continue
		}
		for _, t := range tags {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return defaultTags
	}
	return out
}

// categoryPriority decides the category reported for a feature; earlier
// entries win.
var categoryPriority = []struct {
	key, value, category string
}{
	{"amenity", "cafe", "cafe"},
	{"amenity", "restaurant", "restaurant"},
	{"amenity", "bar", "bar"},
	{"amenity", "pub", "bar"},
	{"amenity", "nightclub", "club"},
	{"building", "church", "church"},
	{"building", "cathedral", "church"},
	{"building", "mosque", "church"},
	{"amenity", "place_of_worship", "church"},
	{"tourism", "museum", "museum"},
	{"tourism", "gallery", "museum"},
	{"tourism", "viewpoint", "viewpoint"},
	{"tourism", "attraction", "landmark"},
	{"historic", "castle", "palace"},
	{"historic", "palace", "palace"},
	{"historic", "building", "historic_building"},
	{"historic", "monument", "landmark"},
	{"historic", "memorial", "landmark"},
	{"leisure", "park", "park"},
	{"leisure", "garden", "park"},
	{"amenity", "marketplace", "market"},
}

// CategoryFromTags maps feature tags to a category label.
func CategoryFromTags(tags map[string]string) string {
	for _, entry := range categoryPriority {
		if tags[entry.key] == entry.value {
			return entry.category
		}
	}
	return "landmark"
}
