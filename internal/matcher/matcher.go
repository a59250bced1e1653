package matcher

import (
	"log/slog"

	"icemaker/internal/config"
	"icemaker/internal/logging"
	"icemaker/internal/store"
	"icemaker/internal/textutil"
)

// Layer identifies which comparison produced a match.
type Layer string

const (
	LayerAddressExact Layer = "address_exact"
	LayerFuzzyName    Layer = "fuzzy_name"
	LayerProximity    Layer = "geo_proximity"
)

// EntryMatch is a directory entry a candidate resolved to.
type EntryMatch struct {
	Location *store.Location
	Layer    Layer
	Score    float64
}

// CandidateMatch is an earlier candidate a new one duplicates.
type CandidateMatch struct {
	Candidate     *store.Candidate
	Layer         Layer
	Score         float64
	DistanceMiles float64
}

// Matcher applies the resolution policy. The decision is binary: a match at
// high confidence, or no match. There is no ambiguous outcome; anything
// uncertain is no_match and promotes as a new entry, because a false merge
// corrupts downstream history keyed to a permanent identifier while a rare
// duplicate just waits for a manual merge.
type Matcher struct {
	cfg    config.Matching
	logger *slog.Logger
}

// New constructs a matcher with the configured thresholds.
func New(cfg config.Matching, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Matcher{cfg: cfg, logger: logging.NewComponentLogger(logger, "matcher")}
}

// FindEntryMatch resolves a verified candidate against directory entries
// from its own state partition. Layer 1 is an exact normalized-address
// comparison; layer 2 is fuzzy name within the same city, relaxed when
// either side lacks a street. Names are compared with plain normalization,
// not venue-suffix stripping: stripping would erase exactly the tokens that
// keep "Polar Ice Center" and "Polar Ice House" apart. Coordinates alone
// never match an entry: two different rinks can share a sports complex.
func (m *Matcher) FindEntryMatch(cand *store.Candidate, entries []*store.Location) *EntryMatch {
	normStreet := textutil.Normalize(cand.Street)
	normCity := textutil.Normalize(cand.City)
	normState := textutil.Normalize(cand.State)
	normName := textutil.Normalize(cand.Name)

	if normStreet != "" {
		for _, entry := range entries {
			entryStreet := textutil.Normalize(entry.Street)
			if entryStreet == "" {
				continue
			}
			if normStreet == entryStreet &&
				normCity == textutil.Normalize(entry.City) &&
				normState == textutil.Normalize(entry.State) {
				m.logger.Info("exact address match",
					logging.String("candidate", cand.Name),
					logging.String(logging.FieldLocationID, entry.ID))
				return &EntryMatch{Location: entry, Layer: LayerAddressExact, Score: 1}
			}
		}
	}

	var best *EntryMatch
	for _, entry := range entries {
		if normCity != textutil.Normalize(entry.City) || normState != textutil.Normalize(entry.State) {
			continue
		}
		threshold := m.cfg.NameThreshold
		if normStreet == "" || textutil.Normalize(entry.Street) == "" {
			threshold = m.cfg.StreetlessNameThreshold
		}
		score := textutil.SimilarityRatio(normName, textutil.Normalize(entry.Name))
		if score < threshold {
			continue
		}
		if best == nil || score > best.Score {
			best = &EntryMatch{Location: entry, Layer: LayerFuzzyName, Score: score}
		}
	}
	if best != nil {
		m.logger.Info("fuzzy name match",
			logging.String("candidate", cand.Name),
			logging.String(logging.FieldLocationID, best.Location.ID),
			logging.Float64("score", best.Score))
	}
	return best
}

// FindDuplicateCandidate checks a candidate against earlier candidates from
// the same state before it enters entry matching. Three layers: exact
// normalized address, fuzzy name within the same city, and coordinate
// proximity within the configured radius. Proximity is acceptable here,
// unlike entry matching, because both sides were geocoded the same way and
// a pre-promotion duplicate costs a review row rather than a merged
// identity.
func (m *Matcher) FindDuplicateCandidate(cand *store.Candidate, others []*store.Candidate) *CandidateMatch {
	normStreet := textutil.Normalize(cand.Street)
	normCity := textutil.Normalize(cand.City)
	normState := textutil.Normalize(cand.State)
	normName := textutil.Normalize(cand.Name)

	if normStreet != "" {
		for _, other := range others {
			if other.ID == cand.ID {
				continue
			}
			otherStreet := textutil.Normalize(other.Street)
			if otherStreet == "" {
				continue
			}
			if normStreet == otherStreet &&
				normCity == textutil.Normalize(other.City) &&
				normState == textutil.Normalize(other.State) {
				return &CandidateMatch{Candidate: other, Layer: LayerAddressExact, Score: 1}
			}
		}
	}

	for _, other := range others {
		if other.ID == cand.ID {
			continue
		}
		if normCity != textutil.Normalize(other.City) || normState != textutil.Normalize(other.State) {
			continue
		}
		threshold := m.cfg.NameThreshold
		if normStreet == "" || textutil.Normalize(other.Street) == "" {
			threshold = m.cfg.StreetlessNameThreshold
		}
		score := textutil.SimilarityRatio(normName, textutil.Normalize(other.Name))
		if score >= threshold {
			return &CandidateMatch{Candidate: other, Layer: LayerFuzzyName, Score: score}
		}
	}

	if cand.HasCoordinates() {
		for _, other := range others {
			if other.ID == cand.ID || !other.HasCoordinates() {
				continue
			}
			dist := textutil.HaversineMiles(*cand.Latitude, *cand.Longitude, *other.Latitude, *other.Longitude)
			if dist <= m.cfg.ProximityMiles {
				return &CandidateMatch{Candidate: other, Layer: LayerProximity, DistanceMiles: dist}
			}
		}
	}
	return nil
}
