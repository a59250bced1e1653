package geocode

import (
	"context"
	"fmt"
	"log/slog"

	"icemaker/internal/config"
	"icemaker/internal/logging"
	"icemaker/internal/services"
	"icemaker/internal/store"
)

// Verifier moves pending candidates to verified or failed. Candidates whose
// source already supplied coordinates and a ZIP skip the provider entirely
// and are marked verified with source provenance.
type Verifier struct {
	store     *store.Store
	provider  Provider
	threshold float64
	batchSize int
	logger    *slog.Logger
}

// Stats summarizes one verification pass.
type Stats struct {
	Processed      int
	Verified       int
	SourceVerified int
	Failed         int
	Mismatched     int
	Transient      int
	Streetless     int
}

// NewVerifier constructs the verification stage.
func NewVerifier(st *store.Store, provider Provider, cfg *config.Config, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Verifier{
		store:     st,
		provider:  provider,
		threshold: cfg.Matching.GeocodeConfidence,
		batchSize: cfg.Pipeline.BatchSize,
		logger:    logging.NewComponentLogger(logger, "geocode"),
	}
}

// Run verifies every pending candidate, committing each outcome before
// moving to the next so an interrupted pass loses at most one lookup.
// Transient provider failures leave the candidate pending for the next run.
func (v *Verifier) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	logger := logging.WithContext(ctx, v.logger)
	pending, err := v.store.CandidatesByStatus(ctx, store.CandidatePending)
	if err != nil {
		return stats, err
	}
	for _, cand := range pending {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Processed++
		if v.batchSize > 0 && stats.Processed%v.batchSize == 0 {
			logger.Info("verification progress",
				slog.Int("processed", stats.Processed),
				slog.Int("remaining", len(pending)-stats.Processed))
		}
		if err := v.verifyOne(ctx, cand, &stats); err != nil {
			if services.IsTransient(err) {
				stats.Transient++
				logger.Warn("transient verification failure",
					logging.Int64(logging.FieldCandidateID, cand.ID),
					logging.Error(err))
				continue
			}
			return stats, err
		}
	}
	return stats, nil
}

func (v *Verifier) verifyOne(ctx context.Context, cand *store.Candidate, stats *Stats) error {
	if cand.HasCoordinates() && cand.Zip != "" {
		return v.verifySourceSupplied(ctx, cand, stats)
	}

	// A candidate with no street cannot be address-verified: a city-level
	// geocode hit proves nothing about the venue. It stays pending and may
	// still be linked to an existing entry by name during promotion.
	if cand.Street == "" {
		stats.Streetless++
		return nil
	}

	return v.verifyByLookup(ctx, cand, stats)
}

func (v *Verifier) verifySourceSupplied(ctx context.Context, cand *store.Candidate, stats *Stats) error {
	if cand.Timezone == "" {
		tz, err := v.provider.Timezone(ctx, *cand.Latitude, *cand.Longitude)
		if err != nil {
			return err
		}
		cand.Timezone = tz
	}
	cand.Status = store.CandidateVerified
	cand.VerifiedVia = store.VerifiedViaSource
	if err := v.store.UpdateCandidate(ctx, cand); err != nil {
		return err
	}
	stats.SourceVerified++
	return nil
}

func (v *Verifier) verifyByLookup(ctx context.Context, cand *store.Candidate, stats *Stats) error {
	result, err := v.provider.Geocode(ctx, Query{
		Name:    cand.Name,
		Street:  cand.Street,
		City:    cand.City,
		State:   cand.State,
		Country: cand.Country,
	})
	if services.IsNoResult(err) {
		cand.Status = store.CandidateFailed
		if updateErr := v.store.UpdateCandidate(ctx, cand); updateErr != nil {
			return updateErr
		}
		stats.Failed++
		logging.WithContext(ctx, v.logger).Info("geocode lookup found nothing",
			logging.Int64(logging.FieldCandidateID, cand.ID),
			logging.String("name", cand.Name),
			logging.String("city", cand.City))
		return nil
	}
	if err != nil {
		return err
	}

	cand.Latitude = &result.Latitude
	cand.Longitude = &result.Longitude
	cand.GeoMatchedName = result.DisplayName
	if cand.Zip == "" && result.Postcode != "" {
		cand.Zip = result.Postcode
	}
	confidence := AddressConfidence(cand.Street, cand.City, cand.State, result.Address)
	cand.GeoConfidence = &confidence

	if confidence < v.threshold {
		cand.Status = store.CandidateFailed
		if err := v.store.UpdateCandidate(ctx, cand); err != nil {
			return err
		}
		if err := v.store.AddRejection(ctx, cand.RawEntryID, store.RejectGeocodeMismatch,
			fmt.Sprintf("address confidence %.2f below %.2f; provider matched %q",
				confidence, v.threshold, result.DisplayName)); err != nil {
			return err
		}
		stats.Failed++
		stats.Mismatched++
		return nil
	}

	if cand.Timezone == "" {
		tz, err := v.provider.Timezone(ctx, result.Latitude, result.Longitude)
		if err != nil {
			return err
		}
		cand.Timezone = tz
	}
	cand.Status = store.CandidateVerified
	cand.VerifiedVia = store.VerifiedViaGeocode
	if err := v.store.UpdateCandidate(ctx, cand); err != nil {
		return err
	}
	stats.Verified++
	return nil
}
