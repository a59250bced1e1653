package promoter_test

import (
	"context"
	"errors"
	"testing"

	"icemaker/internal/matcher"
	"icemaker/internal/promoter"
	"icemaker/internal/store"
	"icemaker/internal/testsupport"
)

func newPromoter(t *testing.T, identity promoter.IdentitySource) (*promoter.Promoter, *store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	return promoter.New(st, matcher.New(cfg.Matching, nil), identity, nil), st
}

type staticIdentity struct {
	venues []promoter.KnownVenue
	err    error
}

func (s staticIdentity) KnownVenues(context.Context) ([]promoter.KnownVenue, error) {
	return s.venues, s.err
}

func TestRunPromotesVerifiedCandidateToNewEntry(t *testing.T) {
	p, st := newPromoter(t, nil)
	ctx := context.Background()

	cand := testsupport.NewObservation(t, st, "sk8stuff", "Crown Coliseum", "1960 Coliseum Dr", "Fayetteville", "NC", "28306")
	testsupport.VerifyCandidate(t, st, cand, 35.0126, -78.9238)

	stats, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.PromotedNew != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	locations, err := st.ListLocations(ctx, store.LocationActive)
	if err != nil {
		t.Fatalf("ListLocations: %v", err)
	}
	if len(locations) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(locations))
	}
	entry := locations[0]
	if entry.ID == "" || entry.Name != "Crown Coliseum" || entry.DataSource != "sk8stuff" {
		t.Fatalf("entry built badly: %+v", entry)
	}
	if entry.Timezone != "America/New_York" || !entryHasCoords(entry) {
		t.Fatalf("verification evidence not carried: %+v", entry)
	}
}

func entryHasCoords(loc *store.Location) bool {
	return loc.Latitude != nil && loc.Longitude != nil
}

func TestRunIsIdempotent(t *testing.T) {
	p, st := newPromoter(t, nil)
	ctx := context.Background()

	cand := testsupport.NewObservation(t, st, "sk8stuff", "Crown Coliseum", "1960 Coliseum Dr", "Fayetteville", "NC", "28306")
	testsupport.VerifyCandidate(t, st, cand, 35.0126, -78.9238)

	if _, err := p.Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	stats, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if stats.PromotedNew != 0 || stats.PromotedExisting != 0 {
		t.Fatalf("second run repeated work: %+v", stats)
	}

	locations, _ := st.ListLocations(ctx)
	if len(locations) != 1 {
		t.Fatalf("idempotence broken: %d entries", len(locations))
	}
}

func TestRunLinksCorroboratingSourceToExistingEntry(t *testing.T) {
	p, st := newPromoter(t, nil)
	ctx := context.Background()

	first := testsupport.NewObservation(t, st, "sk8stuff", "Crown Coliseum", "1960 Coliseum Dr", "Fayetteville", "NC", "28306")
	testsupport.VerifyCandidate(t, st, first, 35.0126, -78.9238)
	if _, err := p.Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	second := testsupport.NewObservation(t, st, "arena_guide", "Crown Coliseum Complex", "1960 Coliseum Dr", "Fayetteville", "NC", "28306")
	testsupport.VerifyCandidate(t, st, second, 35.0127, -78.9239)

	stats, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if stats.PromotedExisting != 1 || stats.PromotedNew != 0 {
		t.Fatalf("corroboration not linked: %+v", stats)
	}

	locations, _ := st.ListLocations(ctx)
	if len(locations) != 1 {
		t.Fatalf("corroboration created a duplicate entry: %d", len(locations))
	}
	links, err := st.SourceLinks(ctx, locations[0].ID)
	if err != nil {
		t.Fatalf("SourceLinks: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("expected 2 source links, got %d", len(links))
	}
}

func TestRunSkipsCandidatesWithoutZip(t *testing.T) {
	p, st := newPromoter(t, nil)
	ctx := context.Background()

	cand := testsupport.NewObservation(t, st, "sk8stuff", "No Zip Rink", "1 Somewhere St", "Boise", "ID", "")
	testsupport.VerifyCandidate(t, st, cand, 43.615, -116.2023)

	stats, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.SkippedNoZip != 1 || stats.PromotedNew != 0 {
		t.Fatalf("no-zip candidate promoted: %+v", stats)
	}
}

func TestRunAdoptsDownstreamIdentifier(t *testing.T) {
	identity := staticIdentity{venues: []promoter.KnownVenue{
		{ID: "b6f1e9a0-5c3d-4f7e-9a1b-2c3d4e5f6a7b", Name: "Crown Coliseum", Street: "1960 Coliseum Dr", City: "Fayetteville", State: "NC"},
	}}
	p, st := newPromoter(t, identity)
	ctx := context.Background()

	cand := testsupport.NewObservation(t, st, "sk8stuff", "Crown Coliseum", "1960 Coliseum Dr", "Fayetteville", "NC", "28306")
	testsupport.VerifyCandidate(t, st, cand, 35.0126, -78.9238)

	stats, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.AdoptedIdentifiers != 1 {
		t.Fatalf("identifier not adopted: %+v", stats)
	}
	entry, err := st.LocationByID(ctx, "b6f1e9a0-5c3d-4f7e-9a1b-2c3d4e5f6a7b")
	if err != nil {
		t.Fatalf("LocationByID: %v", err)
	}
	if entry == nil {
		t.Fatal("entry not created under the adopted identifier")
	}
}

func TestRunIdentityFailureFallsBackToFreshIdentifiers(t *testing.T) {
	p, st := newPromoter(t, staticIdentity{err: errors.New("consumer unreachable")})
	ctx := context.Background()

	cand := testsupport.NewObservation(t, st, "sk8stuff", "Crown Coliseum", "1960 Coliseum Dr", "Fayetteville", "NC", "28306")
	testsupport.VerifyCandidate(t, st, cand, 35.0126, -78.9238)

	stats, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run must tolerate identity failure: %v", err)
	}
	if stats.PromotedNew != 1 || stats.AdoptedIdentifiers != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRunLinksDuplicateToPrimaryEntry(t *testing.T) {
	p, st := newPromoter(t, nil)
	ctx := context.Background()

	primary := testsupport.NewObservation(t, st, "sk8stuff", "Ice Vault", "10 Nevins Rd", "Wayne", "NJ", "07470")
	testsupport.VerifyCandidate(t, st, primary, 40.9435, -74.2282)
	dupe := testsupport.NewObservation(t, st, "arena_guide", "The Ice Vault Arena", "10 Nevins Road", "Wayne", "NJ", "07470")
	if err := st.MarkDuplicate(ctx, dupe, primary.ID, store.RejectDuplicateAddress, "same address"); err != nil {
		t.Fatalf("MarkDuplicate: %v", err)
	}

	stats, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.PromotedNew != 1 || stats.DuplicatesLinked != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	linked, _ := st.CandidateByID(ctx, dupe.ID)
	promoted, _ := st.CandidateByID(ctx, primary.ID)
	if linked.LocationID == "" || linked.LocationID != promoted.LocationID {
		t.Fatalf("duplicate linked to %q, primary to %q", linked.LocationID, promoted.LocationID)
	}

	links, err := st.SourceLinks(ctx, promoted.LocationID)
	if err != nil {
		t.Fatalf("SourceLinks: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("duplicate's source not corroborated: %d links", len(links))
	}
}

func TestRunStreetlessCandidateLinksButNeverCreates(t *testing.T) {
	p, st := newPromoter(t, nil)
	ctx := context.Background()

	// A verified entry exists; a streetless pending candidate names it.
	seed := testsupport.NewObservation(t, st, "sk8stuff", "Extreme Ice Center", "4705 Indian Trail", "Charlotte", "NC", "28079")
	testsupport.VerifyCandidate(t, st, seed, 35.0934, -80.641)
	if _, err := p.Run(ctx); err != nil {
		t.Fatalf("seed Run: %v", err)
	}

	linked := testsupport.NewObservation(t, st, "fandom_wiki", "Extreme Ice", "", "Charlotte", "NC", "")
	orphan := testsupport.NewObservation(t, st, "fandom_wiki", "Totally Unknown Rink", "", "Asheville", "NC", "")

	stats, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.StreetlessLinked != 1 || stats.StreetlessNoMatch != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	gotLinked, _ := st.CandidateByID(ctx, linked.ID)
	if gotLinked.LocationID == "" {
		t.Fatal("streetless candidate not linked to existing entry")
	}
	gotOrphan, _ := st.CandidateByID(ctx, orphan.ID)
	if gotOrphan.LocationID != "" {
		t.Fatal("unmatched streetless candidate must not gain an entry")
	}

	locations, _ := st.ListLocations(ctx)
	if len(locations) != 1 {
		t.Fatalf("streetless candidate minted an entry: %d entries", len(locations))
	}
}
