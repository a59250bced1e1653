package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"icemaker/internal/textutil"
)

// Input carries the raw fields a fingerprint is derived from. Address fields
// may be partial; some sources omit the street or ZIP entirely.
type Input struct {
	Source string
	Name   string
	Street string
	City   string
	State  string
	Zip    string
}

// Result is a derived dedup key plus the granularity it was computed at.
// Fingerprint equality clusters likely-same-venue observations; it is a
// pre-filter for the matcher, never an identity guarantee.
type Result struct {
	Key string
	// Streetless is set when no street or ZIP fragment was available and the
	// key fell back to name+state. Streetless candidates carry a higher
	// false-merge risk and are matched with a separate relaxed policy.
	Streetless bool
}

// Compute derives a stable fingerprint for a raw observation. The address
// contributes at its most specific available granularity: ZIP+street when
// present, city+state otherwise, state alone as a last resort.
func Compute(in Input) Result {
	name := textutil.NormalizeVenueName(in.Name)

	street := textutil.Normalize(in.Street)
	city := textutil.Normalize(in.City)
	state := textutil.Normalize(in.State)
	zip := textutil.Normalize(in.Zip)

	var addressTokens []string
	streetless := false
	switch {
	case zip != "" && street != "":
		addressTokens = []string{zip, street}
	case street != "":
		addressTokens = []string{street, city, state}
	case city != "":
		addressTokens = []string{city, state}
		streetless = true
	default:
		addressTokens = []string{state}
		streetless = true
	}

	payload := strings.Join(append([]string{textutil.Normalize(in.Source), name}, addressTokens...), "|")
	sum := sha256.Sum256([]byte(payload))
	return Result{
		Key:        hex.EncodeToString(sum[:]),
		Streetless: streetless,
	}
}
