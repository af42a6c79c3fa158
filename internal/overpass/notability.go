package overpass

// NotabilityScore estimates how famous a feature likely is from its tags.
// A Wikipedia or Wikidata reference is the strongest signal.
func NotabilityScore(tags map[string]string) float64 {
	score := 0.0
	hasWiki := tags["wikipedia"] != "" || tags["wikidata"] != ""
	if hasWiki {
		score += 0.5
	}

	switch tags["building"] {
	case "cathedral":
		score += 0.4
	case "church", "chapel":
		score += 0.15
	case "castle", "palace":
		score += 0.35
	}

	switch tags["tourism"] {
	case "attraction":
		score += 0.25
	case "museum", "viewpoint":
		score += 0.2
	}

	switch tags["historic"] {
	case "castle", "palace", "fort":
		score += 0.3
	case "monument", "memorial":
		if hasWiki {
			score += 0.15
		} else {
			score += 0.02
		}
	case "":
	default:
		score += 0.1
	}

	if tags["man_made"] == "tower" {
		if hasWiki {
			score += 0.35
		} else {
			score += 0.05
		}
	}

	if tags["website"] != "" {
		score += 0.05
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
