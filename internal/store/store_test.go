package store_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"icemaker/internal/services"
	"icemaker/internal/store"
	"icemaker/internal/testsupport"
)

func TestAddObservationInsertsRawAndCandidateTogether(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	cand := testsupport.NewObservation(t, st, "sk8stuff", "Crown Coliseum", "1960 Coliseum Dr", "Fayetteville", "NC", "28306")
	if cand.ID == 0 || cand.RawEntryID == 0 {
		t.Fatalf("expected assigned ids, got candidate %d raw %d", cand.ID, cand.RawEntryID)
	}
	if cand.Status != store.CandidatePending {
		t.Fatalf("expected pending status, got %s", cand.Status)
	}

	raw, err := st.RawEntryByID(context.Background(), cand.RawEntryID)
	if err != nil {
		t.Fatalf("RawEntryByID: %v", err)
	}
	if raw == nil {
		t.Fatal("raw entry missing after observation insert")
	}

	found, err := st.FindRawByFingerprint(context.Background(), raw.Fingerprint)
	if err != nil {
		t.Fatalf("FindRawByFingerprint: %v", err)
	}
	if found == nil || found.ID != raw.ID {
		t.Fatalf("fingerprint lookup returned %+v, want id %d", found, raw.ID)
	}
}

func TestCandidatesByStatusOrdersByCreation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	first := testsupport.NewObservation(t, st, "sk8stuff", "Rink One", "1 Main St", "Boston", "MA", "02101")
	second := testsupport.NewObservation(t, st, "sk8stuff", "Rink Two", "2 Main St", "Boston", "MA", "02101")

	pending, err := st.CandidatesByStatus(context.Background(), store.CandidatePending)
	if err != nil {
		t.Fatalf("CandidatesByStatus: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending candidates, got %d", len(pending))
	}
	if pending[0].ID != first.ID || pending[1].ID != second.ID {
		t.Fatalf("unexpected order: got %d, %d", pending[0].ID, pending[1].ID)
	}
}

func TestMarkDuplicateRecordsRejection(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	primary := testsupport.NewObservation(t, st, "sk8stuff", "Ice Vault", "10 Nevins Rd", "Wayne", "NJ", "07470")
	dupe := testsupport.NewObservation(t, st, "arena_guide", "The Ice Vault Arena", "10 Nevins Road", "Wayne", "NJ", "07470")

	if err := st.MarkDuplicate(ctx, dupe, primary.ID, store.RejectDuplicateAddress, "same normalized address"); err != nil {
		t.Fatalf("MarkDuplicate: %v", err)
	}
	if dupe.Status != store.CandidateDuplicate {
		t.Fatalf("expected duplicate status, got %s", dupe.Status)
	}
	if dupe.DuplicateOf == nil || *dupe.DuplicateOf != primary.ID {
		t.Fatalf("expected duplicate_of %d, got %v", primary.ID, dupe.DuplicateOf)
	}

	rejections, err := st.UnreviewedRejections(ctx)
	if err != nil {
		t.Fatalf("UnreviewedRejections: %v", err)
	}
	if len(rejections) != 1 || rejections[0].Reason != store.RejectDuplicateAddress {
		t.Fatalf("expected one duplicate_address rejection, got %+v", rejections)
	}
}

func TestCreateLocationWithLinkIsAtomicAndLinksSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cand := testsupport.NewObservation(t, st, "sk8stuff", "Crown Coliseum", "1960 Coliseum Dr", "Fayetteville", "NC", "28306")
	testsupport.VerifyCandidate(t, st, cand, 35.0126, -78.9238)

	loc := &store.Location{
		ID:         "us-nc-fayetteville-crown-coliseum",
		Name:       cand.Name,
		Street:     cand.Street,
		City:       cand.City,
		State:      cand.State,
		Country:    "US",
		Zip:        cand.Zip,
		Timezone:   cand.Timezone,
		Latitude:   cand.Latitude,
		Longitude:  cand.Longitude,
		Status:     store.LocationActive,
		DataSource: "sk8stuff",
	}
	if err := st.CreateLocationWithLink(ctx, loc, cand); err != nil {
		t.Fatalf("CreateLocationWithLink: %v", err)
	}
	if cand.LocationID != loc.ID {
		t.Fatalf("candidate not linked: %q", cand.LocationID)
	}

	links, err := st.SourceLinks(ctx, loc.ID)
	if err != nil {
		t.Fatalf("SourceLinks: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("expected one source link, got %d", len(links))
	}

	unpromoted, err := st.VerifiedUnpromoted(ctx)
	if err != nil {
		t.Fatalf("VerifiedUnpromoted: %v", err)
	}
	if len(unpromoted) != 0 {
		t.Fatalf("promoted candidate still reported unpromoted: %d", len(unpromoted))
	}
}

func TestLinkCandidateFillsBlanksButNeverOverwrites(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewObservation(t, st, "sk8stuff", "Ice Works", "", "Syracuse", "NY", "")
	testsupport.VerifyCandidate(t, st, first, 43.0481, -76.1474)
	loc := &store.Location{
		ID:         "us-ny-syracuse-ice-works",
		Name:       "Ice Works",
		City:       "Syracuse",
		State:      "NY",
		Country:    "US",
		Phone:      "315-555-0100",
		Status:     store.LocationActive,
		DataSource: "sk8stuff",
	}
	if err := st.CreateLocationWithLink(ctx, loc, first); err != nil {
		t.Fatalf("CreateLocationWithLink: %v", err)
	}

	second := testsupport.NewObservation(t, st, "arena_guide", "Ice Works", "300 W Fayette St", "Syracuse", "NY", "13202")
	testsupport.VerifyCandidate(t, st, second, 43.0481, -76.1474)
	if err := st.LinkCandidate(ctx, loc.ID, second); err != nil {
		t.Fatalf("LinkCandidate: %v", err)
	}

	got, err := st.LocationByID(ctx, loc.ID)
	if err != nil {
		t.Fatalf("LocationByID: %v", err)
	}
	if got.Street != "300 W Fayette St" || got.Zip != "13202" {
		t.Fatalf("blank fields not filled: street %q zip %q", got.Street, got.Zip)
	}
	if got.Phone != "315-555-0100" {
		t.Fatalf("curated phone overwritten: %q", got.Phone)
	}
	if got.LastConfirmedAt == nil {
		t.Fatal("last_confirmed_at not stamped")
	}

	links, err := st.SourceLinks(ctx, loc.ID)
	if err != nil {
		t.Fatalf("SourceLinks: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("expected two source links, got %d", len(links))
	}
}

func TestLinkCandidateNeverReactivatesClosedEntry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cand := testsupport.NewObservation(t, st, "sk8stuff", "Old Barn Rink", "5 Barn Rd", "Duluth", "MN", "55802")
	testsupport.VerifyCandidate(t, st, cand, 46.7867, -92.1005)
	loc := &store.Location{
		ID:         "us-mn-duluth-old-barn-rink",
		Name:       "Old Barn Rink",
		Street:     "5 Barn Rd",
		City:       "Duluth",
		State:      "MN",
		Country:    "US",
		Zip:        "55802",
		Status:     store.LocationActive,
		DataSource: "sk8stuff",
	}
	if err := st.CreateLocationWithLink(ctx, loc, cand); err != nil {
		t.Fatalf("CreateLocationWithLink: %v", err)
	}
	if err := st.Demote(ctx, loc.ID, store.LocationClosedPermanently); err != nil {
		t.Fatalf("Demote: %v", err)
	}

	late := testsupport.NewObservation(t, st, "arena_guide", "Old Barn Rink", "5 Barn Road", "Duluth", "MN", "55802")
	testsupport.VerifyCandidate(t, st, late, 46.7867, -92.1005)
	if err := st.LinkCandidate(ctx, loc.ID, late); err != nil {
		t.Fatalf("LinkCandidate: %v", err)
	}

	got, err := st.LocationByID(ctx, loc.ID)
	if err != nil {
		t.Fatalf("LocationByID: %v", err)
	}
	if got.Status != store.LocationClosedPermanently {
		t.Fatalf("closed entry reactivated by corroboration: %s", got.Status)
	}
}

func TestDemoteRejectsInvalidTransition(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cand := testsupport.NewObservation(t, st, "sk8stuff", "Test Rink", "1 Test St", "Denver", "CO", "80202")
	testsupport.VerifyCandidate(t, st, cand, 39.7392, -104.9903)
	loc := &store.Location{
		ID: "us-co-denver-test-rink", Name: "Test Rink", Street: "1 Test St",
		City: "Denver", State: "CO", Country: "US", Zip: "80202",
		Status: store.LocationActive, DataSource: "sk8stuff",
	}
	if err := st.CreateLocationWithLink(ctx, loc, cand); err != nil {
		t.Fatalf("CreateLocationWithLink: %v", err)
	}

	if err := st.Demote(ctx, loc.ID, store.LocationClosedPermanently); err != nil {
		t.Fatalf("Demote to closed: %v", err)
	}
	err := st.Demote(ctx, loc.ID, store.LocationSeasonal)
	if !services.IsInvariant(err) {
		t.Fatalf("expected invariant rejection for closed -> seasonal, got %v", err)
	}

	got, _ := st.LocationByID(ctx, loc.ID)
	if got.Status != store.LocationClosedPermanently {
		t.Fatalf("status changed despite rejection: %s", got.Status)
	}

	if err := st.Reactivate(ctx, loc.ID); err != nil {
		t.Fatalf("Reactivate: %v", err)
	}
	got, _ = st.LocationByID(ctx, loc.ID)
	if got.Status != store.LocationActive {
		t.Fatalf("expected active after reactivate, got %s", got.Status)
	}
}

func TestRenameRecordsAliasAndRejectsSameName(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cand := testsupport.NewObservation(t, st, "sk8stuff", "Midtown Ice", "44 5th Ave", "Atlanta", "GA", "30308")
	testsupport.VerifyCandidate(t, st, cand, 33.7756, -84.3885)
	loc := &store.Location{
		ID: "us-ga-atlanta-midtown-ice", Name: "Midtown Ice", Street: "44 5th Ave",
		City: "Atlanta", State: "GA", Country: "US", Zip: "30308",
		Status: store.LocationActive, DataSource: "sk8stuff",
	}
	if err := st.CreateLocationWithLink(ctx, loc, cand); err != nil {
		t.Fatalf("CreateLocationWithLink: %v", err)
	}

	if err := st.Rename(ctx, loc.ID, "Atlantic Ice Center", "sponsorship change"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	got, _ := st.LocationByID(ctx, loc.ID)
	if got.Name != "Atlantic Ice Center" {
		t.Fatalf("name not updated: %q", got.Name)
	}
	if got.ID != loc.ID {
		t.Fatalf("identifier changed on rename: %q", got.ID)
	}

	aliases, err := st.Aliases(ctx, loc.ID)
	if err != nil {
		t.Fatalf("Aliases: %v", err)
	}
	if len(aliases) != 1 || aliases[0].Name != "Midtown Ice" {
		t.Fatalf("expected alias for old name, got %+v", aliases)
	}

	err = st.Rename(ctx, loc.ID, "Atlantic Ice Center", "")
	if err == nil || !strings.Contains(err.Error(), "already named") {
		t.Fatalf("expected same-name rejection, got %v", err)
	}
}

func TestRenameBackPrunesStaleAlias(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cand := testsupport.NewObservation(t, st, "sk8stuff", "Polar Pond", "9 Lake Rd", "Madison", "WI", "53703")
	testsupport.VerifyCandidate(t, st, cand, 43.0731, -89.4012)
	loc := &store.Location{
		ID: "us-wi-madison-polar-pond", Name: "Polar Pond", Street: "9 Lake Rd",
		City: "Madison", State: "WI", Country: "US", Zip: "53703",
		Status: store.LocationActive, DataSource: "sk8stuff",
	}
	if err := st.CreateLocationWithLink(ctx, loc, cand); err != nil {
		t.Fatalf("CreateLocationWithLink: %v", err)
	}

	if err := st.Rename(ctx, loc.ID, "Capitol Ice", ""); err != nil {
		t.Fatalf("first rename: %v", err)
	}
	if err := st.Rename(ctx, loc.ID, "Polar Pond", ""); err != nil {
		t.Fatalf("rename back: %v", err)
	}

	aliases, err := st.Aliases(ctx, loc.ID)
	if err != nil {
		t.Fatalf("Aliases: %v", err)
	}
	for _, alias := range aliases {
		if strings.EqualFold(alias.Name, "Polar Pond") {
			t.Fatalf("alias equals current name: %+v", alias)
		}
	}
}

func TestMergeMovesEvidenceAndResolvesOneHop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	candA := testsupport.NewObservation(t, st, "sk8stuff", "Riverfront Rink", "1 River St", "Portland", "OR", "97201")
	testsupport.VerifyCandidate(t, st, candA, 45.5152, -122.6784)
	locA := &store.Location{
		ID: "us-or-portland-riverfront-rink", Name: "Riverfront Rink", Street: "1 River St",
		City: "Portland", State: "OR", Country: "US", Zip: "97201",
		Status: store.LocationActive, DataSource: "sk8stuff",
	}
	if err := st.CreateLocationWithLink(ctx, locA, candA); err != nil {
		t.Fatalf("create A: %v", err)
	}

	candB := testsupport.NewObservation(t, st, "arena_guide", "Riverfront Ice Arena", "One River Street", "Portland", "OR", "97201")
	testsupport.VerifyCandidate(t, st, candB, 45.5152, -122.6784)
	locB := &store.Location{
		ID: "us-or-portland-riverfront-ice-arena", Name: "Riverfront Ice Arena", Street: "One River Street",
		City: "Portland", State: "OR", Country: "US", Zip: "97201",
		Status: store.LocationActive, DataSource: "arena_guide",
	}
	if err := st.CreateLocationWithLink(ctx, locB, candB); err != nil {
		t.Fatalf("create B: %v", err)
	}

	if err := st.Merge(ctx, locB.ID, locA.ID); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	retired, err := st.LocationByID(ctx, locB.ID)
	if err != nil {
		t.Fatalf("LocationByID retired: %v", err)
	}
	if retired == nil {
		t.Fatal("retired entry deleted; identifiers must never be deleted")
	}
	if retired.Status != store.LocationMerged {
		t.Fatalf("retired entry status %s, want merged", retired.Status)
	}

	resolved, resolvedFrom, err := st.ResolveLocation(ctx, locB.ID)
	if err != nil {
		t.Fatalf("ResolveLocation: %v", err)
	}
	if resolved.ID != locA.ID || resolvedFrom != locB.ID {
		t.Fatalf("retired id %s resolved to %q (from %q), want %q", locB.ID, resolved.ID, resolvedFrom, locA.ID)
	}

	// Resolving a live identifier reports no tombstone hop.
	direct, directFrom, err := st.ResolveLocation(ctx, locA.ID)
	if err != nil {
		t.Fatalf("ResolveLocation live: %v", err)
	}
	if direct.ID != locA.ID || directFrom != "" {
		t.Fatalf("live id resolved to %q (from %q), want direct hit", direct.ID, directFrom)
	}

	links, err := st.SourceLinks(ctx, locA.ID)
	if err != nil {
		t.Fatalf("SourceLinks: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("survivor should carry both source links, got %d", len(links))
	}
	leftBehind, err := st.SourceLinks(ctx, locB.ID)
	if err != nil {
		t.Fatalf("SourceLinks retired: %v", err)
	}
	if len(leftBehind) != 0 {
		t.Fatalf("retired entry still has %d source links", len(leftBehind))
	}

	aliases, err := st.Aliases(ctx, locA.ID)
	if err != nil {
		t.Fatalf("Aliases: %v", err)
	}
	var sawRetiredName bool
	for _, alias := range aliases {
		if alias.Name == "Riverfront Ice Arena" {
			sawRetiredName = true
		}
	}
	if !sawRetiredName {
		t.Fatalf("retired name not preserved as alias: %+v", aliases)
	}

	moved, err := st.CandidateByID(ctx, candB.ID)
	if err != nil {
		t.Fatalf("CandidateByID: %v", err)
	}
	if moved.LocationID != locA.ID {
		t.Fatalf("candidate evidence not re-pointed: %q", moved.LocationID)
	}
}

func TestMergeChainRepointsOldTombstones(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	ids := []string{"us-tx-austin-rink-a", "us-tx-austin-rink-b", "us-tx-austin-rink-c"}
	names := []string{"Rink A", "Rink B", "Rink C"}
	for i, id := range ids {
		cand := testsupport.NewObservation(t, st, "sk8stuff", names[i], names[i]+" St", "Austin", "TX", "78701")
		testsupport.VerifyCandidate(t, st, cand, 30.2672, -97.7431)
		loc := &store.Location{
			ID: id, Name: names[i], Street: names[i] + " St",
			City: "Austin", State: "TX", Country: "US", Zip: "78701",
			Status: store.LocationActive, DataSource: "sk8stuff",
		}
		if err := st.CreateLocationWithLink(ctx, loc, cand); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	if err := st.Merge(ctx, ids[0], ids[1]); err != nil {
		t.Fatalf("merge A into B: %v", err)
	}
	if err := st.Merge(ctx, ids[1], ids[2]); err != nil {
		t.Fatalf("merge B into C: %v", err)
	}

	// A's tombstone originally pointed at B; after B merged into C it must
	// resolve to C in a single hop.
	record, err := st.MergeRecordFor(ctx, ids[0])
	if err != nil {
		t.Fatalf("MergeRecordFor: %v", err)
	}
	if record == nil || record.SurvivingID != ids[2] {
		t.Fatalf("tombstone for %s points at %v, want %s", ids[0], record, ids[2])
	}
	resolved, resolvedFrom, err := st.ResolveLocation(ctx, ids[0])
	if err != nil {
		t.Fatalf("ResolveLocation: %v", err)
	}
	if resolved.ID != ids[2] || resolvedFrom != ids[0] || resolved.Status == store.LocationMerged {
		t.Fatalf("resolved %q (%s) from %q, want live %s", resolved.ID, resolved.Status, resolvedFrom, ids[2])
	}
}

func TestMergeFailureRollsBackAllEvidence(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	candA := testsupport.NewObservation(t, st, "sk8stuff", "Glacier Gardens", "12 Frost Ave", "Duluth", "MN", "55802")
	testsupport.VerifyCandidate(t, st, candA, 46.7867, -92.1005)
	locA := &store.Location{
		ID: "us-mn-duluth-glacier-gardens", Name: "Glacier Gardens", Street: "12 Frost Ave",
		City: "Duluth", State: "MN", Country: "US", Zip: "55802",
		Status: store.LocationActive, DataSource: "sk8stuff",
	}
	if err := st.CreateLocationWithLink(ctx, locA, candA); err != nil {
		t.Fatalf("create A: %v", err)
	}

	candB := testsupport.NewObservation(t, st, "arena_guide", "Glacier Gardens Arena", "12 Frost Avenue", "Duluth", "MN", "55802")
	testsupport.VerifyCandidate(t, st, candB, 46.7867, -92.1005)
	locB := &store.Location{
		ID: "us-mn-duluth-glacier-gardens-arena", Name: "Glacier Gardens Arena", Street: "12 Frost Avenue",
		City: "Duluth", State: "MN", Country: "US", Zip: "55802",
		Status: store.LocationActive, DataSource: "arena_guide",
	}
	if err := st.CreateLocationWithLink(ctx, locB, candB); err != nil {
		t.Fatalf("create B: %v", err)
	}

	// Plant a conflicting tombstone so the merge transaction fails on its
	// final insert, after the source links and candidates have already been
	// moved inside the transaction.
	db, err := sql.Open("sqlite", cfg.Database.Path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx,
		`INSERT INTO location_merges (retired_id, surviving_id, merged_at) VALUES (?, ?, ?)`,
		locB.ID, "us-mn-duluth-ghost", time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		t.Fatalf("plant tombstone: %v", err)
	}

	if err := st.Merge(ctx, locB.ID, locA.ID); err == nil {
		t.Fatal("expected merge to fail on the tombstone conflict")
	}

	// The rollback must leave both entries exactly as they were.
	after, err := st.LocationByID(ctx, locB.ID)
	if err != nil {
		t.Fatalf("LocationByID: %v", err)
	}
	if after.Status != store.LocationActive || after.Name != "Glacier Gardens Arena" {
		t.Fatalf("interrupted merge mutated the entry: %+v", after)
	}
	for _, id := range []string{locA.ID, locB.ID} {
		links, err := st.SourceLinks(ctx, id)
		if err != nil {
			t.Fatalf("SourceLinks %s: %v", id, err)
		}
		if len(links) != 1 {
			t.Fatalf("entry %s should keep exactly its own source link, got %d", id, len(links))
		}
	}
	moved, err := st.CandidateByID(ctx, candB.ID)
	if err != nil {
		t.Fatalf("CandidateByID: %v", err)
	}
	if moved.LocationID != locB.ID {
		t.Fatalf("candidate evidence re-pointed despite rollback: %q", moved.LocationID)
	}
	aliases, err := st.Aliases(ctx, locA.ID)
	if err != nil {
		t.Fatalf("Aliases: %v", err)
	}
	if len(aliases) != 0 {
		t.Fatalf("survivor gained aliases from a failed merge: %+v", aliases)
	}
}

func TestMergeRejectsSelfAndMergedTargets(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := st.Merge(ctx, "same-id", "same-id"); err == nil {
		t.Fatal("expected self-merge rejection")
	}

	cand := testsupport.NewObservation(t, st, "sk8stuff", "Lone Rink", "7 Lone St", "Reno", "NV", "89501")
	testsupport.VerifyCandidate(t, st, cand, 39.5296, -119.8138)
	loc := &store.Location{
		ID: "us-nv-reno-lone-rink", Name: "Lone Rink", Street: "7 Lone St",
		City: "Reno", State: "NV", Country: "US", Zip: "89501",
		Status: store.LocationActive, DataSource: "sk8stuff",
	}
	if err := st.CreateLocationWithLink(ctx, loc, cand); err != nil {
		t.Fatalf("CreateLocationWithLink: %v", err)
	}
	if err := st.Merge(ctx, loc.ID, "us-nv-reno-missing"); err == nil {
		t.Fatal("expected rejection for missing survivor")
	}
	got, _ := st.LocationByID(ctx, loc.ID)
	if got.Status != store.LocationActive {
		t.Fatalf("failed merge mutated entry: %s", got.Status)
	}
}

func TestResetFailedCandidates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cand := testsupport.NewObservation(t, st, "sk8stuff", "Ghost Rink", "404 Nowhere Ln", "Fargo", "ND", "58102")
	cand.Status = store.CandidateFailed
	if err := st.UpdateCandidate(ctx, cand); err != nil {
		t.Fatalf("UpdateCandidate: %v", err)
	}

	reset, err := st.ResetFailedCandidates(ctx)
	if err != nil {
		t.Fatalf("ResetFailedCandidates: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected 1 reset, got %d", reset)
	}
	got, _ := st.CandidateByID(ctx, cand.ID)
	if got.Status != store.CandidatePending {
		t.Fatalf("expected pending after reset, got %s", got.Status)
	}
}

func TestSearchLocationsMatchesAliases(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cand := testsupport.NewObservation(t, st, "sk8stuff", "Glacier Gardens", "12 Frost Ave", "Juneau", "AK", "99801")
	testsupport.VerifyCandidate(t, st, cand, 58.3019, -134.4197)
	loc := &store.Location{
		ID: "us-ak-juneau-glacier-gardens", Name: "Glacier Gardens", Street: "12 Frost Ave",
		City: "Juneau", State: "AK", Country: "US", Zip: "99801",
		Status: store.LocationActive, DataSource: "sk8stuff",
	}
	if err := st.CreateLocationWithLink(ctx, loc, cand); err != nil {
		t.Fatalf("CreateLocationWithLink: %v", err)
	}
	if err := st.Rename(ctx, loc.ID, "Treadwell Arena", ""); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	results, err := st.SearchLocations(ctx, "glacier")
	if err != nil {
		t.Fatalf("SearchLocations: %v", err)
	}
	if len(results) != 1 || results[0].ID != loc.ID {
		t.Fatalf("alias search missed entry: %+v", results)
	}
}
