package testsupport

import (
	"context"
	"testing"

	"icemaker/internal/config"
	"icemaker/internal/fingerprint"
	"icemaker/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// MustSource looks up a seeded source by name.
func MustSource(t testing.TB, st *store.Store, name string) *store.Source {
	t.Helper()

	src, err := st.SourceByName(context.Background(), name)
	if err != nil {
		t.Fatalf("store.SourceByName(%q): %v", name, err)
	}
	return src
}

// NewObservation records a raw entry plus pending candidate for the named
// source, computing the fingerprint the way ingest does.
func NewObservation(t testing.TB, st *store.Store, sourceName, name, street, city, state, zip string) *store.Candidate {
	t.Helper()

	src := MustSource(t, st, sourceName)
	fp := fingerprint.Compute(fingerprint.Input{
		Source: sourceName,
		Name:   name,
		Street: street,
		City:   city,
		State:  state,
		Zip:    zip,
	})
	raw := &store.RawEntry{
		SourceID:    src.ID,
		RawName:     name,
		RawStreet:   street,
		RawCity:     city,
		RawState:    state,
		RawZip:      zip,
		Fingerprint: fp.Key,
		Streetless:  fp.Streetless,
	}
	cand := &store.Candidate{
		Name:       name,
		Street:     street,
		City:       city,
		State:      state,
		Zip:        zip,
		Streetless: fp.Streetless,
		Status:     store.CandidatePending,
	}
	if err := st.AddObservation(context.Background(), raw, cand); err != nil {
		t.Fatalf("store.AddObservation: %v", err)
	}
	return cand
}

// VerifyCandidate stamps coordinates and a timezone on a candidate and marks
// it verified, skipping the geocode stage.
func VerifyCandidate(t testing.TB, st *store.Store, cand *store.Candidate, lat, lon float64) {
	t.Helper()

	cand.Latitude = &lat
	cand.Longitude = &lon
	cand.Timezone = "America/New_York"
	cand.Status = store.CandidateVerified
	cand.VerifiedVia = store.VerifiedViaGeocode
	if err := st.UpdateCandidate(context.Background(), cand); err != nil {
		t.Fatalf("store.UpdateCandidate: %v", err)
	}
}
