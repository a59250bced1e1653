package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const candidateColumns = "id, raw_entry_id, name, street, city, state, zip, country, latitude, longitude, timezone, geo_confidence, geo_matched_name, streetless, status, verified_via, duplicate_of, location_id, created_at, updated_at"

// FindRawByFingerprint returns the raw entry with a fingerprint, or nil.
func (s *Store) FindRawByFingerprint(ctx context.Context, fp string) (*RawEntry, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT id, source_id, raw_name, raw_street, raw_city, raw_state, raw_zip, fingerprint, streetless, scraped_at
         FROM raw_entries WHERE fingerprint = ?`, fp)
	raw, err := scanRawEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find raw by fingerprint: %w", err)
	}
	return raw, nil
}

// AddRawEntry inserts a raw entry on its own, with no candidate. Used for
// records that fail validation: the observation is kept for provenance and
// a rejection row explains why it went nowhere.
func (s *Store) AddRawEntry(ctx context.Context, raw *RawEntry) error {
	if raw == nil {
		return errors.New("raw entry is nil")
	}
	now := time.Now().UTC()
	res, err := s.execWithRetry(ensureContext(ctx),
		`INSERT INTO raw_entries (source_id, raw_name, raw_street, raw_city, raw_state, raw_zip, fingerprint, streetless, scraped_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		raw.SourceID,
		raw.RawName,
		nullableString(raw.RawStreet),
		nullableString(raw.RawCity),
		nullableString(raw.RawState),
		nullableString(raw.RawZip),
		raw.Fingerprint,
		boolToInt(raw.Streetless),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert raw entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("raw entry id: %w", err)
	}
	raw.ID = id
	raw.ScrapedAt = now
	return nil
}

// AddObservation inserts a raw entry and its normalized candidate in one
// transaction. Both rows land or neither does, so a killed ingest run never
// leaves a raw entry without its candidate.
func (s *Store) AddObservation(ctx context.Context, raw *RawEntry, cand *Candidate) error {
	if raw == nil || cand == nil {
		return errors.New("raw entry and candidate are required")
	}
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO raw_entries (source_id, raw_name, raw_street, raw_city, raw_state, raw_zip, fingerprint, streetless, scraped_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			raw.SourceID,
			raw.RawName,
			nullableString(raw.RawStreet),
			nullableString(raw.RawCity),
			nullableString(raw.RawState),
			nullableString(raw.RawZip),
			raw.Fingerprint,
			boolToInt(raw.Streetless),
			formatTime(now),
		)
		if err != nil {
			return fmt.Errorf("insert raw entry: %w", err)
		}
		rawID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("raw entry id: %w", err)
		}
		raw.ID = rawID
		raw.ScrapedAt = now

		if cand.Status == "" {
			cand.Status = CandidatePending
		}
		if cand.Country == "" {
			cand.Country = "US"
		}
		res, err = tx.ExecContext(ctx,
			`INSERT INTO candidates (raw_entry_id, name, street, city, state, zip, country, latitude, longitude, timezone, geo_confidence, geo_matched_name, streetless, status, verified_via, duplicate_of, location_id, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rawID,
			cand.Name,
			nullableString(cand.Street),
			nullableString(cand.City),
			nullableString(cand.State),
			nullableString(cand.Zip),
			cand.Country,
			nullableFloat(cand.Latitude),
			nullableFloat(cand.Longitude),
			nullableString(cand.Timezone),
			nullableFloat(cand.GeoConfidence),
			nullableString(cand.GeoMatchedName),
			boolToInt(cand.Streetless),
			cand.Status,
			nullableString(cand.VerifiedVia),
			nullableInt64(cand.DuplicateOf),
			nullableString(cand.LocationID),
			formatTime(now),
			formatTime(now),
		)
		if err != nil {
			return fmt.Errorf("insert candidate: %w", err)
		}
		candID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("candidate id: %w", err)
		}
		cand.ID = candID
		cand.RawEntryID = rawID
		cand.CreatedAt = now
		cand.UpdatedAt = now
		return nil
	})
}

// CandidateByID fetches a candidate by identifier. Returns nil when absent.
func (s *Store) CandidateByID(ctx context.Context, id int64) (*Candidate, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+candidateColumns+` FROM candidates WHERE id = ?`, id)
	cand, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("candidate by id: %w", err)
	}
	return cand, nil
}

// RawEntryByID fetches a raw entry by identifier. Returns nil when absent.
func (s *Store) RawEntryByID(ctx context.Context, id int64) (*RawEntry, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT id, source_id, raw_name, raw_street, raw_city, raw_state, raw_zip, fingerprint, streetless, scraped_at
         FROM raw_entries WHERE id = ?`, id)
	raw, err := scanRawEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("raw entry by id: %w", err)
	}
	return raw, nil
}

// UpdateCandidate persists changes to an existing candidate.
func (s *Store) UpdateCandidate(ctx context.Context, cand *Candidate) error {
	if cand == nil {
		return errors.New("candidate is nil")
	}
	cand.UpdatedAt = time.Now().UTC()
	_, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE candidates
         SET name = ?, street = ?, city = ?, state = ?, zip = ?, country = ?,
             latitude = ?, longitude = ?, timezone = ?, geo_confidence = ?, geo_matched_name = ?,
             streetless = ?, status = ?, verified_via = ?, duplicate_of = ?, location_id = ?, updated_at = ?
         WHERE id = ?`,
		cand.Name,
		nullableString(cand.Street),
		nullableString(cand.City),
		nullableString(cand.State),
		nullableString(cand.Zip),
		cand.Country,
		nullableFloat(cand.Latitude),
		nullableFloat(cand.Longitude),
		nullableString(cand.Timezone),
		nullableFloat(cand.GeoConfidence),
		nullableString(cand.GeoMatchedName),
		boolToInt(cand.Streetless),
		cand.Status,
		nullableString(cand.VerifiedVia),
		nullableInt64(cand.DuplicateOf),
		nullableString(cand.LocationID),
		formatTime(cand.UpdatedAt),
		cand.ID,
	)
	if err != nil {
		return fmt.Errorf("update candidate: %w", err)
	}
	return nil
}

// CandidatesByStatus returns candidates in the given statuses ordered by creation.
func (s *Store) CandidatesByStatus(ctx context.Context, statuses ...CandidateStatus) ([]*Candidate, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+candidateColumns+` FROM candidates WHERE status IN (`+placeholders+`) ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("candidates by status: %w", err)
	}
	defer rows.Close()
	return collectCandidates(rows)
}

// VerifiedUnpromoted returns verified candidates not yet linked to a directory entry.
func (s *Store) VerifiedUnpromoted(ctx context.Context) ([]*Candidate, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+candidateColumns+` FROM candidates
         WHERE status = ? AND location_id IS NULL ORDER BY created_at, id`, CandidateVerified)
	if err != nil {
		return nil, fmt.Errorf("verified unpromoted: %w", err)
	}
	defer rows.Close()
	return collectCandidates(rows)
}

// DuplicatesUnlinked returns duplicate candidates not yet linked to their
// primary's directory entry.
func (s *Store) DuplicatesUnlinked(ctx context.Context) ([]*Candidate, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+candidateColumns+` FROM candidates
         WHERE status = ? AND location_id IS NULL ORDER BY created_at, id`, CandidateDuplicate)
	if err != nil {
		return nil, fmt.Errorf("duplicates unlinked: %w", err)
	}
	defer rows.Close()
	return collectCandidates(rows)
}

// CandidatesInState returns comparison candidates across one state, used for
// coordinate-proximity checks that may cross city boundaries.
func (s *Store) CandidatesInState(ctx context.Context, state string, statuses ...CandidateStatus) ([]*Candidate, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, 0, len(statuses)+1)
	for _, status := range statuses {
		args = append(args, status)
	}
	args = append(args, state)
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+candidateColumns+` FROM candidates
         WHERE status IN (`+placeholders+`) AND state = ? ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("candidates in state: %w", err)
	}
	defer rows.Close()
	return collectCandidates(rows)
}

// MarkDuplicate records that a candidate duplicates an earlier observation.
// The status flip and the review-log row commit together.
func (s *Store) MarkDuplicate(ctx context.Context, cand *Candidate, matchID int64, reason, detail string) error {
	if cand == nil {
		return errors.New("candidate is nil")
	}
	now := time.Now().UTC()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE candidates SET status = ?, duplicate_of = ?, updated_at = ? WHERE id = ?`,
			CandidateDuplicate, matchID, formatTime(now), cand.ID,
		); err != nil {
			return fmt.Errorf("mark duplicate: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rejected_entries (raw_entry_id, reason, detail, created_at) VALUES (?, ?, ?, ?)`,
			cand.RawEntryID, reason, nullableString(detail), formatTime(now),
		); err != nil {
			return fmt.Errorf("record rejection: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	cand.Status = CandidateDuplicate
	cand.DuplicateOf = &matchID
	cand.UpdatedAt = now
	return nil
}

// AddRejection records a review-log row for a raw entry.
func (s *Store) AddRejection(ctx context.Context, rawEntryID int64, reason, detail string) error {
	_, err := s.execWithRetry(ensureContext(ctx),
		`INSERT INTO rejected_entries (raw_entry_id, reason, detail, created_at) VALUES (?, ?, ?, ?)`,
		rawEntryID, reason, nullableString(detail), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("add rejection: %w", err)
	}
	return nil
}

// ResetFailedCandidates returns failed candidates to pending so the next
// verification pass retries them. Returns the number reset.
func (s *Store) ResetFailedCandidates(ctx context.Context, ids ...int64) (int64, error) {
	ctx = ensureContext(ctx)
	query := `UPDATE candidates SET status = ?, updated_at = ? WHERE status = ?`
	args := []any{CandidatePending, formatTime(time.Now()), CandidateFailed}
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reset failed candidates: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset failed candidates: %w", err)
	}
	return affected, nil
}

// UnreviewedRejections returns rejected-entry rows awaiting human review.
func (s *Store) UnreviewedRejections(ctx context.Context) ([]*RejectedEntry, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, raw_entry_id, reason, detail, reviewed, created_at
         FROM rejected_entries WHERE reviewed = 0 ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("unreviewed rejections: %w", err)
	}
	defer rows.Close()

	var entries []*RejectedEntry
	for rows.Next() {
		var (
			entry      RejectedEntry
			detail     sql.NullString
			reviewed   int
			createdRaw sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.RawEntryID, &entry.Reason, &detail, &reviewed, &createdRaw); err != nil {
			return nil, err
		}
		entry.Detail = detail.String
		entry.Reviewed = reviewed != 0
		if created, parseErr := parseTimeString(createdRaw.String); parseErr == nil {
			entry.CreatedAt = created
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// CandidateStats returns a count of candidates grouped by status.
func (s *Store) CandidateStats(ctx context.Context) (map[CandidateStatus]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT status, COUNT(1) FROM candidates GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("candidate stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[CandidateStatus]int)
	for rows.Next() {
		var status CandidateStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func collectCandidates(rows *sql.Rows) ([]*Candidate, error) {
	var candidates []*Candidate
	for rows.Next() {
		cand, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, cand)
	}
	return candidates, rows.Err()
}

func scanCandidate(scanner interface{ Scan(dest ...any) error }) (*Candidate, error) {
	var (
		id          int64
		rawEntryID  int64
		name        string
		street      sql.NullString
		city        sql.NullString
		state       sql.NullString
		zip         sql.NullString
		country     string
		latitude    sql.NullFloat64
		longitude   sql.NullFloat64
		timezone    sql.NullString
		confidence  sql.NullFloat64
		matchedName sql.NullString
		streetless  int
		statusStr   string
		verifiedVia sql.NullString
		duplicateOf sql.NullInt64
		locationID  sql.NullString
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)
	if err := scanner.Scan(
		&id, &rawEntryID, &name, &street, &city, &state, &zip, &country,
		&latitude, &longitude, &timezone, &confidence, &matchedName,
		&streetless, &statusStr, &verifiedVia, &duplicateOf, &locationID,
		&createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}
	cand := &Candidate{
		ID:             id,
		RawEntryID:     rawEntryID,
		Name:           name,
		Street:         street.String,
		City:           city.String,
		State:          state.String,
		Zip:            zip.String,
		Country:        country,
		Latitude:       floatPointer(latitude),
		Longitude:      floatPointer(longitude),
		Timezone:       timezone.String,
		GeoConfidence:  floatPointer(confidence),
		GeoMatchedName: matchedName.String,
		Streetless:     streetless != 0,
		Status:         CandidateStatus(statusStr),
		VerifiedVia:    verifiedVia.String,
		DuplicateOf:    int64Pointer(duplicateOf),
		LocationID:     locationID.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		cand.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		cand.UpdatedAt = updated
	}
	return cand, nil
}

func scanRawEntry(scanner interface{ Scan(dest ...any) error }) (*RawEntry, error) {
	var (
		id          int64
		sourceID    int64
		rawName     string
		rawStreet   sql.NullString
		rawCity     sql.NullString
		rawState    sql.NullString
		rawZip      sql.NullString
		fingerprint string
		streetless  int
		scrapedRaw  sql.NullString
	)
	if err := scanner.Scan(&id, &sourceID, &rawName, &rawStreet, &rawCity, &rawState, &rawZip, &fingerprint, &streetless, &scrapedRaw); err != nil {
		return nil, err
	}
	raw := &RawEntry{
		ID:          id,
		SourceID:    sourceID,
		RawName:     rawName,
		RawStreet:   rawStreet.String,
		RawCity:     rawCity.String,
		RawState:    rawState.String,
		RawZip:      rawZip.String,
		Fingerprint: fingerprint,
		Streetless:  streetless != 0,
	}
	if scraped, err := parseTimeString(scrapedRaw.String); err == nil {
		raw.ScrapedAt = scraped
	}
	return raw, nil
}
