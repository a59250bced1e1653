package geocode

import (
	"strings"

	"icemaker/internal/textutil"
)

// AddressConfidence scores how well a geocode hit's address components match
// the candidate's parsed address, 0 to 1. The venue name is deliberately
// excluded: names like "The Factory" or "The Bog" will never match what the
// provider knows, and the address is what verification is about.
func AddressConfidence(street, city, state string, detail AddressDetail) float64 {
	geoCity := detail.City
	if geoCity == "" {
		geoCity = detail.Town
	}
	if geoCity == "" {
		geoCity = detail.Village
	}

	var scores []float64
	if street != "" && detail.Road != "" {
		scores = append(scores, textutil.SimilarityRatio(strings.ToLower(street), strings.ToLower(detail.Road)))
	}
	if city != "" && geoCity != "" {
		scores = append(scores, textutil.SimilarityRatio(strings.ToLower(city), strings.ToLower(geoCity)))
	}
	if state != "" {
		scores = append(scores, scoreState(state, detail))
	}
	if len(scores) == 0 {
		return 0
	}

	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

// scoreState compares state identifiers. Providers return the ISO 3166-2
// subdivision code when they have one, which gives an exact abbreviation
// comparison; the full state name is the fuzzy fallback.
func scoreState(state string, detail AddressDetail) float64 {
	abbrev := strings.ToUpper(strings.TrimSpace(state))
	if iso := strings.TrimSpace(detail.ISOLvl4); iso != "" {
		parts := strings.Split(iso, "-")
		if strings.ToUpper(parts[len(parts)-1]) == abbrev {
			return 1
		}
		return 0
	}
	geoState := strings.ToUpper(strings.TrimSpace(detail.State))
	if geoState == "" {
		return 0
	}
	if abbrev == geoState || (len(geoState) >= 2 && strings.HasPrefix(abbrev, geoState[:2])) {
		return 1
	}
	return textutil.SimilarityRatio(abbrev, geoState)
}
