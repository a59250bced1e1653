package promoter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"icemaker/internal/logging"
	"icemaker/internal/matcher"
	"icemaker/internal/store"
)

// KnownVenue is a venue the downstream consumer already tracks, used to keep
// identifiers aligned: a rink the consumer knows keeps its existing
// identifier instead of being minted a fresh one.
type KnownVenue struct {
	ID     string
	Name   string
	Street string
	City   string
	State  string
}

// IdentitySource supplies downstream venue identities for adoption. A nil
// source is fine; promotion then always mints fresh identifiers.
type IdentitySource interface {
	KnownVenues(ctx context.Context) ([]KnownVenue, error)
}

// Stats summarizes one promotion pass across all three phases.
type Stats struct {
	PromotedNew        int
	PromotedExisting   int
	SkippedNoZip       int
	AdoptedIdentifiers int

	DuplicatesLinked   int
	PrimaryNotPromoted int

	StreetlessLinked  int
	StreetlessNoMatch int
}

// Promoter moves verified candidates into the directory. Promotion is
// idempotent: every outcome links the candidate to an entry, and a re-run
// only sees candidates still missing that link.
type Promoter struct {
	store    *store.Store
	matcher  *matcher.Matcher
	identity IdentitySource
	logger   *slog.Logger
}

// New constructs the promotion stage. identity may be nil.
func New(st *store.Store, m *matcher.Matcher, identity IdentitySource, logger *slog.Logger) *Promoter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Promoter{
		store:    st,
		matcher:  m,
		identity: identity,
		logger:   logging.NewComponentLogger(logger, "promoter"),
	}
}

// Run executes the three promotion phases: verified candidates, duplicate
// back-links, then streetless name-only links.
func (p *Promoter) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	logger := logging.WithContext(ctx, p.logger)

	known, err := p.loadKnownVenues(ctx)
	if err != nil {
		// Identity alignment is best-effort: without it promotion still
		// works, new entries just receive fresh identifiers.
		logger.Warn("downstream identities unavailable", logging.Error(err))
		known = nil
	}

	if err := p.promoteVerified(ctx, known, &stats); err != nil {
		return stats, err
	}
	if err := p.linkDuplicates(ctx, &stats); err != nil {
		return stats, err
	}
	if err := p.linkStreetless(ctx, &stats); err != nil {
		return stats, err
	}
	return stats, nil
}

func (p *Promoter) loadKnownVenues(ctx context.Context) ([]KnownVenue, error) {
	if p.identity == nil {
		return nil, nil
	}
	known, err := p.identity.KnownVenues(ctx)
	if err != nil {
		return nil, err
	}
	logging.WithContext(ctx, p.logger).Info("loaded downstream identities", logging.Int("count", len(known)))
	return known, nil
}

// promoteVerified links each verified candidate to a matched entry or
// creates a new one. Candidates without a ZIP are skipped: an entry without
// a ZIP cannot be fingerprint-matched at full granularity on later runs and
// would seed duplicates.
func (p *Promoter) promoteVerified(ctx context.Context, known []KnownVenue, stats *Stats) error {
	candidates, err := p.store.VerifiedUnpromoted(ctx)
	if err != nil {
		return err
	}
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		if cand.Zip == "" {
			stats.SkippedNoZip++
			continue
		}

		entries, err := p.store.ListMatchable(ctx, cand.State)
		if err != nil {
			return err
		}
		if match := p.matcher.FindEntryMatch(cand, entries); match != nil {
			if err := p.store.LinkCandidate(ctx, match.Location.ID, cand); err != nil {
				return err
			}
			stats.PromotedExisting++
			continue
		}

		id := uuid.NewString()
		if adopted := p.findKnownVenue(cand, known); adopted != "" {
			// The consumer may know a rink the directory does not have
			// yet, or one promoted under the adopted identifier by an
			// earlier interrupted run.
			if existing, err := p.store.LocationByID(ctx, adopted); err != nil {
				return err
			} else if existing != nil {
				if err := p.store.LinkCandidate(ctx, adopted, cand); err != nil {
					return err
				}
				stats.PromotedExisting++
				continue
			}
			id = adopted
			stats.AdoptedIdentifiers++
			p.logger.Info("adopting downstream identifier",
				logging.String(logging.FieldLocationID, id),
				logging.String("name", cand.Name))
		}

		sourceName, err := p.sourceNameFor(ctx, cand)
		if err != nil {
			return err
		}
		loc := &store.Location{
			ID:         id,
			Name:       cand.Name,
			Street:     cand.Street,
			City:       cand.City,
			State:      cand.State,
			Country:    cand.Country,
			Zip:        cand.Zip,
			Timezone:   cand.Timezone,
			Latitude:   cand.Latitude,
			Longitude:  cand.Longitude,
			Status:     store.LocationActive,
			DataSource: sourceName,
		}
		if err := p.store.CreateLocationWithLink(ctx, loc, cand); err != nil {
			return err
		}
		stats.PromotedNew++
	}
	return nil
}

// linkDuplicates attaches duplicate candidates to the entry their primary
// was promoted to. A duplicate whose primary has not been promoted yet stays
// unlinked for the next run.
func (p *Promoter) linkDuplicates(ctx context.Context, stats *Stats) error {
	duplicates, err := p.store.DuplicatesUnlinked(ctx)
	if err != nil {
		return err
	}
	for _, dup := range duplicates {
		if err := ctx.Err(); err != nil {
			return err
		}
		if dup.DuplicateOf == nil {
			stats.PrimaryNotPromoted++
			continue
		}
		primary, err := p.store.CandidateByID(ctx, *dup.DuplicateOf)
		if err != nil {
			return err
		}
		if primary == nil || primary.LocationID == "" {
			stats.PrimaryNotPromoted++
			continue
		}
		if err := p.store.LinkCandidate(ctx, primary.LocationID, dup); err != nil {
			return err
		}
		stats.DuplicatesLinked++
	}
	return nil
}

// linkStreetless attaches pending candidates without a street address to
// existing entries by name. No new entries are created: a name and a city
// alone are not enough evidence to mint a permanent identifier.
func (p *Promoter) linkStreetless(ctx context.Context, stats *Stats) error {
	pending, err := p.store.CandidatesByStatus(ctx, store.CandidatePending)
	if err != nil {
		return err
	}
	for _, cand := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if cand.Street != "" || cand.LocationID != "" {
			continue
		}
		entries, err := p.store.ListMatchable(ctx, cand.State)
		if err != nil {
			return err
		}
		match := p.matcher.FindEntryMatch(cand, entries)
		if match == nil {
			stats.StreetlessNoMatch++
			continue
		}
		if err := p.store.LinkCandidate(ctx, match.Location.ID, cand); err != nil {
			return err
		}
		stats.StreetlessLinked++
	}
	return nil
}

func (p *Promoter) findKnownVenue(cand *store.Candidate, known []KnownVenue) string {
	if len(known) == 0 {
		return ""
	}
	entries := make([]*store.Location, len(known))
	for i, venue := range known {
		entries[i] = &store.Location{
			ID:     venue.ID,
			Name:   venue.Name,
			Street: venue.Street,
			City:   venue.City,
			State:  venue.State,
			Status: store.LocationActive,
		}
	}
	if match := p.matcher.FindEntryMatch(cand, entries); match != nil {
		return match.Location.ID
	}
	return ""
}

func (p *Promoter) sourceNameFor(ctx context.Context, cand *store.Candidate) (string, error) {
	raw, err := p.store.RawEntryByID(ctx, cand.RawEntryID)
	if err != nil {
		return "", err
	}
	if raw == nil {
		return "unknown", nil
	}
	src, err := p.store.SourceByID(ctx, raw.SourceID)
	if err != nil {
		return "", fmt.Errorf("resolve source name: %w", err)
	}
	if src == nil {
		return "unknown", nil
	}
	return src.Name, nil
}
