package store

import (
	"strings"
	"time"
)

// CandidateStatus represents the verification lifecycle of a staged candidate.
type CandidateStatus string

const (
	// CandidatePending awaits geocode verification.
	CandidatePending CandidateStatus = "pending"
	// CandidateVerified has coordinates and a timezone attached.
	CandidateVerified CandidateStatus = "verified"
	// CandidateFailed is a terminal lookup miss; only the repair path
	// returns it to pending.
	CandidateFailed CandidateStatus = "failed"
	// CandidateDuplicate matched another staged candidate before promotion.
	CandidateDuplicate CandidateStatus = "duplicate"
)

// Verification provenance markers recorded alongside CandidateVerified.
const (
	VerifiedViaGeocode = "geocode"
	VerifiedViaSource  = "source"
)

var candidateStatuses = map[CandidateStatus]struct{}{
	CandidatePending:   {},
	CandidateVerified:  {},
	CandidateFailed:    {},
	CandidateDuplicate: {},
}

// ParseCandidateStatus converts a string into a known CandidateStatus.
func ParseCandidateStatus(value string) (CandidateStatus, bool) {
	normalized := CandidateStatus(strings.ToLower(strings.TrimSpace(value)))
	_, ok := candidateStatuses[normalized]
	return normalized, ok
}

// LocationStatus represents the administrative state of a directory entry.
type LocationStatus string

const (
	LocationActive            LocationStatus = "active"
	LocationSeasonal          LocationStatus = "seasonal"
	LocationClosedTemporarily LocationStatus = "closed_temporarily"
	LocationClosedPermanently LocationStatus = "closed_permanently"
	// LocationMerged marks an entry retired by a merge. The identifier is
	// never deleted; lookups resolve through the merge tombstone.
	LocationMerged LocationStatus = "merged"
)

var locationStatuses = map[LocationStatus]struct{}{
	LocationActive:            {},
	LocationSeasonal:          {},
	LocationClosedTemporarily: {},
	LocationClosedPermanently: {},
	LocationMerged:            {},
}

// ParseLocationStatus converts a string into a known LocationStatus.
func ParseLocationStatus(value string) (LocationStatus, bool) {
	normalized := LocationStatus(strings.ToLower(strings.TrimSpace(value)))
	_, ok := locationStatuses[normalized]
	return normalized, ok
}

// validTransitions is the demotion state machine. Closure is reachable only
// from active and seasonal (and from a temporary closure being made
// permanent). A permanently closed entry never appears here as a source
// state: reopening requires the explicit Reactivate operation so a stale
// scrape can never silently reverse a confirmed closure.
var validTransitions = map[LocationStatus][]LocationStatus{
	LocationActive:            {LocationSeasonal, LocationClosedTemporarily, LocationClosedPermanently},
	LocationSeasonal:          {LocationActive, LocationClosedTemporarily, LocationClosedPermanently},
	LocationClosedTemporarily: {LocationActive, LocationClosedPermanently},
}

// CanTransition reports whether Demote may move an entry from one status to another.
func CanTransition(from, to LocationStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Source is a registered data source. Sources are independent evidence; no
// two share a key.
type Source struct {
	ID                int64
	Name              string
	Enabled           bool
	ConfidenceWeight  float64
	Notes             string
	LastRunAt         *time.Time
	LastRunStatus     string
	LastRunEntryCount int
	CreatedAt         time.Time
}

// RawEntry is one fingerprinted observation exactly as a source reported it.
// Unchanged re-scrapes collide on the fingerprint and are skipped.
type RawEntry struct {
	ID          int64
	SourceID    int64
	RawName     string
	RawStreet   string
	RawCity     string
	RawState    string
	RawZip      string
	Fingerprint string
	Streetless  bool
	ScrapedAt   time.Time
}

// Candidate is a normalized observation moving through verification toward
// promotion. It is retained after promotion as historical evidence and only
// ever linked to a directory entry, never deleted.
type Candidate struct {
	ID             int64
	RawEntryID     int64
	Name           string
	Street         string
	City           string
	State          string
	Zip            string
	Country        string
	Latitude       *float64
	Longitude      *float64
	Timezone       string
	GeoConfidence  *float64
	GeoMatchedName string
	Streetless     bool
	Status         CandidateStatus
	VerifiedVia    string
	DuplicateOf    *int64
	LocationID     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasCoordinates reports whether both coordinates are present.
func (c *Candidate) HasCoordinates() bool {
	return c != nil && c.Latitude != nil && c.Longitude != nil
}

// Location is an authoritative directory entry. The identifier is assigned
// once at promotion and survives every rename, demotion, and merge.
type Location struct {
	ID              string
	Name            string
	Street          string
	City            string
	State           string
	Country         string
	Zip             string
	Phone           string
	Website         string
	Timezone        string
	Latitude        *float64
	Longitude       *float64
	Status          LocationStatus
	DataSource      string
	LastConfirmedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Alias is a name a directory entry previously held. An alias never equals
// the entry's current name.
type Alias struct {
	ID             int64
	LocationID     string
	Name           string
	EffectiveUntil *time.Time
	Notes          string
	CreatedAt      time.Time
}

// SourceLink records that a source corroborates a directory entry.
type SourceLink struct {
	ID          int64
	LocationID  string
	SourceID    int64
	CandidateID *int64
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

// MergeRecord is the tombstone left behind when an entry is absorbed.
// Lookups by a retired identifier resolve through at most one hop.
type MergeRecord struct {
	RetiredID   string
	SurvivingID string
	MergedAt    time.Time
}

// RejectedEntry records an observation that failed parsing or verification,
// awaiting human review.
type RejectedEntry struct {
	ID         int64
	RawEntryID int64
	Reason     string
	Detail     string
	Reviewed   bool
	CreatedAt  time.Time
}

// Rejection reasons recorded in rejected_entries.
const (
	RejectDuplicateAddress   = "duplicate_address_exact"
	RejectSuspectedDuplicate = "suspected_duplicate"
	RejectGeocodeMismatch    = "geocode_mismatch"
	RejectParseFailure       = "parse_failure"
)
