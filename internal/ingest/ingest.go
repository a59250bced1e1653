package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"icemaker/internal/fingerprint"
	"icemaker/internal/logging"
	"icemaker/internal/matcher"
	"icemaker/internal/services"
	"icemaker/internal/store"
	"icemaker/internal/textutil"
)

// Record is one already-parsed observation handed to the pipeline. Source
// adapters live outside this repository; they emit these records as JSON.
type Record struct {
	Source    string   `json:"source"`
	Name      string   `json:"name"`
	Street    string   `json:"street,omitempty"`
	City      string   `json:"city,omitempty"`
	State     string   `json:"state,omitempty"`
	Zip       string   `json:"zip,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Stats summarizes one ingest run.
type Stats struct {
	Read       int
	New        int
	Skipped    int
	Invalid    int
	DupExact   int
	DupFuzzy   int
	DupGeo     int
	Streetless int
}

// Duplicates returns the total candidates marked duplicate during the run.
func (s Stats) Duplicates() int {
	return s.DupExact + s.DupFuzzy + s.DupGeo
}

// Ingestor records observations and runs the pre-promotion duplicate check
// on each new candidate.
type Ingestor struct {
	store   *store.Store
	matcher *matcher.Matcher
	logger  *slog.Logger
}

// New constructs the ingest stage.
func New(st *store.Store, m *matcher.Matcher, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Ingestor{store: st, matcher: m, logger: logging.NewComponentLogger(logger, "ingest")}
}

// ReadRecords decodes a JSON array of records from r.
func ReadRecords(r io.Reader) ([]Record, error) {
	var records []Record
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&records); err != nil {
		return nil, services.Wrap(services.ErrValidation, "ingest", "decode", "records must be a JSON array", err)
	}
	return records, nil
}

// Run ingests records for one registered source. Each record commits before
// the next is read; re-running with the same input skips everything already
// recorded via the fingerprint ledger. The source's run metadata is updated
// at the end even when individual records were rejected.
func (i *Ingestor) Run(ctx context.Context, sourceName string, records []Record) (Stats, error) {
	var stats Stats
	ctx = logging.WithSource(logging.WithStage(ctx, "ingest"), sourceName)

	source, err := i.store.SourceByName(ctx, sourceName)
	if err != nil {
		return stats, err
	}
	if !source.Enabled {
		return stats, services.Wrap(services.ErrValidation, "ingest", "source",
			fmt.Sprintf("source %q is disabled", sourceName), nil)
	}

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Read++
		if err := i.ingestOne(ctx, source, record, &stats); err != nil {
			return stats, err
		}
	}

	status := "ok"
	if stats.Invalid > 0 {
		status = fmt.Sprintf("ok (%d invalid)", stats.Invalid)
	}
	if err := i.store.UpdateSourceRun(ctx, source.ID, status, stats.New); err != nil {
		return stats, err
	}
	logging.WithContext(ctx, i.logger).Info("ingest run finished",
		logging.Int("new", stats.New),
		logging.Int("skipped", stats.Skipped),
		logging.Int("duplicates", stats.Duplicates()),
		logging.Int("invalid", stats.Invalid))
	return stats, nil
}

func (i *Ingestor) ingestOne(ctx context.Context, source *store.Source, record Record, stats *Stats) error {
	record = trimRecord(record)

	fp := fingerprint.Compute(fingerprint.Input{
		Source: source.Name,
		Name:   record.Name,
		Street: record.Street,
		City:   record.City,
		State:  record.State,
		Zip:    record.Zip,
	})

	existing, err := i.store.FindRawByFingerprint(ctx, fp.Key)
	if err != nil {
		return err
	}
	if existing != nil {
		stats.Skipped++
		return nil
	}

	raw := &store.RawEntry{
		SourceID:    source.ID,
		RawName:     record.Name,
		RawStreet:   record.Street,
		RawCity:     record.City,
		RawState:    record.State,
		RawZip:      record.Zip,
		Fingerprint: fp.Key,
		Streetless:  fp.Streetless,
	}

	if reason := validate(record); reason != "" {
		if err := i.store.AddRawEntry(ctx, raw); err != nil {
			return err
		}
		if err := i.store.AddRejection(ctx, raw.ID, store.RejectParseFailure, reason); err != nil {
			return err
		}
		stats.Invalid++
		return nil
	}

	// Raw entries keep the scraped text verbatim; the candidate carries the
	// display form: title-cased name and city, uppercased state.
	cand := &store.Candidate{
		Name:       textutil.TitleCase(record.Name),
		Street:     record.Street,
		City:       textutil.TitleCase(record.City),
		State:      strings.ToUpper(record.State),
		Zip:        record.Zip,
		Latitude:   record.Latitude,
		Longitude:  record.Longitude,
		Streetless: fp.Streetless,
		Status:     store.CandidatePending,
	}
	if err := i.store.AddObservation(ctx, raw, cand); err != nil {
		return err
	}
	stats.New++
	if fp.Streetless {
		stats.Streetless++
	}

	return i.dedupCheck(ctx, cand, stats)
}

// dedupCheck marks a fresh candidate duplicate when it matches an earlier
// candidate in the same state. Verified candidates are the comparison pool;
// pending ones join it only when the new candidate has no street, so that
// streetless-vs-streetless duplicates are still caught.
func (i *Ingestor) dedupCheck(ctx context.Context, cand *store.Candidate, stats *Stats) error {
	statuses := []store.CandidateStatus{store.CandidateVerified}
	if cand.Street == "" {
		statuses = append(statuses, store.CandidatePending)
	}
	pool, err := i.store.CandidatesInState(ctx, cand.State, statuses...)
	if err != nil {
		return err
	}
	match := i.matcher.FindDuplicateCandidate(cand, pool)
	if match == nil {
		return nil
	}

	reason := store.RejectSuspectedDuplicate
	switch match.Layer {
	case matcher.LayerAddressExact:
		reason = store.RejectDuplicateAddress
		stats.DupExact++
	case matcher.LayerFuzzyName:
		stats.DupFuzzy++
	case matcher.LayerProximity:
		stats.DupGeo++
	}
	detail := fmt.Sprintf("matches candidate %d (%s)", match.Candidate.ID, match.Candidate.Name)
	if match.Layer == matcher.LayerProximity {
		detail = fmt.Sprintf("%s, %.2f mi away", detail, match.DistanceMiles)
	}
	return i.store.MarkDuplicate(ctx, cand, match.Candidate.ID, reason, detail)
}

func trimRecord(record Record) Record {
	record.Name = strings.TrimSpace(record.Name)
	record.Street = strings.TrimSpace(record.Street)
	record.City = strings.TrimSpace(record.City)
	record.State = strings.TrimSpace(record.State)
	record.Zip = strings.TrimSpace(record.Zip)
	return record
}

func validate(record Record) string {
	switch {
	case record.Name == "":
		return "record has no name"
	case record.City == "" && record.State == "":
		return "record has no city or state"
	case record.State == "":
		return "record has no state"
	default:
		return ""
	}
}
