package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"icemaker/internal/services"
)

const locationColumns = "id, name, street, city, state, country, zip, phone, website, timezone, latitude, longitude, status, data_source, last_confirmed_at, created_at, updated_at"

// LocationByID fetches a directory entry by its permanent identifier without
// following merge tombstones. Returns nil when absent.
func (s *Store) LocationByID(ctx context.Context, id string) (*Location, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+locationColumns+` FROM locations WHERE id = ?`, id)
	loc, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("location by id: %w", err)
	}
	return loc, nil
}

// ResolveLocation fetches a directory entry, following a merge tombstone by
// at most one hop. Merge always re-points stale tombstones at the final
// survivor, so a single hop suffices. The second return is the retired
// identifier when the lookup resolved through a tombstone, empty when the
// entry was found directly.
func (s *Store) ResolveLocation(ctx context.Context, id string) (*Location, string, error) {
	ctx = ensureContext(ctx)
	loc, err := s.LocationByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if loc != nil && loc.Status != LocationMerged {
		return loc, "", nil
	}

	var survivingID string
	err = s.db.QueryRowContext(ctx,
		`SELECT surviving_id FROM location_merges WHERE retired_id = ?`, id).Scan(&survivingID)
	if errors.Is(err, sql.ErrNoRows) {
		if loc != nil {
			return nil, "", services.Wrap(services.ErrInvariant, "directory", "resolve",
				fmt.Sprintf("entry %s is merged but has no tombstone", id), nil)
		}
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("resolve merge tombstone: %w", err)
	}

	survivor, err := s.LocationByID(ctx, survivingID)
	if err != nil {
		return nil, "", err
	}
	if survivor == nil || survivor.Status == LocationMerged {
		return nil, "", services.Wrap(services.ErrInvariant, "directory", "resolve",
			fmt.Sprintf("tombstone for %s points at %s which is not a live entry", id, survivingID), nil)
	}
	return survivor, id, nil
}

// MergeRecordFor returns the tombstone for a retired identifier, or nil.
func (s *Store) MergeRecordFor(ctx context.Context, retiredID string) (*MergeRecord, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT retired_id, surviving_id, merged_at FROM location_merges WHERE retired_id = ?`, retiredID)
	var (
		record    MergeRecord
		mergedRaw sql.NullString
	)
	err := row.Scan(&record.RetiredID, &record.SurvivingID, &mergedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("merge record: %w", err)
	}
	if merged, parseErr := parseTimeString(mergedRaw.String); parseErr == nil {
		record.MergedAt = merged
	}
	return &record, nil
}

// ListMatchable returns directory entries eligible as match targets within a
// state. Merged entries are excluded: their identities live on in the
// survivor. Closed entries stay matchable so fresh observations corroborate
// them without reactivating anything.
func (s *Store) ListMatchable(ctx context.Context, state string) ([]*Location, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+locationColumns+` FROM locations WHERE status != ? AND state = ? ORDER BY id`,
		LocationMerged, state)
	if err != nil {
		return nil, fmt.Errorf("list matchable: %w", err)
	}
	defer rows.Close()
	return collectLocations(rows)
}

// ListLocations returns directory entries, optionally filtered by status.
func (s *Store) ListLocations(ctx context.Context, statuses ...LocationStatus) ([]*Location, error) {
	ctx = ensureContext(ctx)
	if len(statuses) == 0 {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+locationColumns+` FROM locations ORDER BY state, city, name`)
		if err != nil {
			return nil, fmt.Errorf("list locations: %w", err)
		}
		defer rows.Close()
		return collectLocations(rows)
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+locationColumns+` FROM locations WHERE status IN (`+placeholders+`) ORDER BY state, city, name`, args...)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()
	return collectLocations(rows)
}

// SearchLocations finds directory entries whose current name, a recorded
// alias, or city matches the query substring, case-insensitively.
func (s *Store) SearchLocations(ctx context.Context, query string) ([]*Location, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT DISTINCT l.id, l.name, l.street, l.city, l.state, l.country, l.zip, l.phone, l.website, l.timezone,
                l.latitude, l.longitude, l.status, l.data_source, l.last_confirmed_at, l.created_at, l.updated_at
         FROM locations l
         LEFT JOIN location_aliases a ON a.location_id = l.id
         WHERE LOWER(l.name) LIKE ? OR LOWER(l.city) LIKE ? OR LOWER(a.name) LIKE ?
         ORDER BY l.state, l.city, l.name`,
		pattern, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("search locations: %w", err)
	}
	defer rows.Close()
	return collectLocations(rows)
}

// CreateLocationWithLink promotes a verified candidate into a new directory
// entry. The entry, its source link, and the candidate's back-reference
// commit atomically: re-running promotion after a crash finds the candidate
// already linked and does nothing.
func (s *Store) CreateLocationWithLink(ctx context.Context, loc *Location, cand *Candidate) error {
	if loc == nil || cand == nil {
		return errors.New("location and candidate are required")
	}
	raw, err := s.RawEntryByID(ctx, cand.RawEntryID)
	if err != nil {
		return err
	}
	if raw == nil {
		return services.Wrap(services.ErrInvariant, "promotion", "create",
			fmt.Sprintf("candidate %d has no raw entry", cand.ID), nil)
	}
	now := time.Now().UTC()
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO locations (id, name, street, city, state, country, zip, phone, website, timezone, latitude, longitude, status, data_source, last_confirmed_at, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			loc.ID,
			loc.Name,
			nullableString(loc.Street),
			loc.City,
			loc.State,
			loc.Country,
			nullableString(loc.Zip),
			nullableString(loc.Phone),
			nullableString(loc.Website),
			nullableString(loc.Timezone),
			nullableFloat(loc.Latitude),
			nullableFloat(loc.Longitude),
			loc.Status,
			loc.DataSource,
			formatTime(now),
			formatTime(now),
			formatTime(now),
		); err != nil {
			return fmt.Errorf("insert location: %w", err)
		}
		if err := upsertSourceLink(ctx, tx, loc.ID, raw.SourceID, cand.ID, now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE candidates SET location_id = ?, updated_at = ? WHERE id = ?`,
			loc.ID, formatTime(now), cand.ID,
		); err != nil {
			return fmt.Errorf("link candidate: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	confirmed := now
	loc.LastConfirmedAt = &confirmed
	loc.CreatedAt = now
	loc.UpdatedAt = now
	cand.LocationID = loc.ID
	cand.UpdatedAt = now
	return nil
}

// LinkCandidate corroborates an existing directory entry with a candidate.
// Blank contact fields on the entry are filled from the candidate; populated
// fields are never overwritten, and the entry's status never changes here. A
// closed rink that reappears in a scrape stays closed.
func (s *Store) LinkCandidate(ctx context.Context, locationID string, cand *Candidate) error {
	if cand == nil {
		return errors.New("candidate is nil")
	}
	loc, err := s.LocationByID(ctx, locationID)
	if err != nil {
		return err
	}
	if loc == nil {
		return services.Wrap(services.ErrNotFound, "promotion", "link",
			fmt.Sprintf("directory entry %s does not exist", locationID), nil)
	}
	if loc.Status == LocationMerged {
		return services.Wrap(services.ErrInvariant, "promotion", "link",
			fmt.Sprintf("directory entry %s is merged; resolve before linking", locationID), nil)
	}
	raw, err := s.RawEntryByID(ctx, cand.RawEntryID)
	if err != nil {
		return err
	}
	if raw == nil {
		return services.Wrap(services.ErrInvariant, "promotion", "link",
			fmt.Sprintf("candidate %d has no raw entry", cand.ID), nil)
	}

	set := []string{"last_confirmed_at = ?", "updated_at = ?"}
	now := time.Now().UTC()
	args := []any{formatTime(now), formatTime(now)}
	if loc.Street == "" && cand.Street != "" {
		set = append(set, "street = ?")
		args = append(args, cand.Street)
	}
	if loc.Zip == "" && cand.Zip != "" {
		set = append(set, "zip = ?")
		args = append(args, cand.Zip)
	}
	if loc.Timezone == "" && cand.Timezone != "" {
		set = append(set, "timezone = ?")
		args = append(args, cand.Timezone)
	}
	if loc.Latitude == nil && loc.Longitude == nil && cand.HasCoordinates() {
		set = append(set, "latitude = ?", "longitude = ?")
		args = append(args, *cand.Latitude, *cand.Longitude)
	}
	args = append(args, locationID)

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE locations SET `+strings.Join(set, ", ")+` WHERE id = ?`, args...,
		); err != nil {
			return fmt.Errorf("corroborate location: %w", err)
		}
		if err := upsertSourceLink(ctx, tx, locationID, raw.SourceID, cand.ID, now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE candidates SET location_id = ?, updated_at = ? WHERE id = ?`,
			locationID, formatTime(now), cand.ID,
		); err != nil {
			return fmt.Errorf("link candidate: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	cand.LocationID = locationID
	cand.UpdatedAt = now
	return nil
}

func upsertSourceLink(ctx context.Context, tx *sql.Tx, locationID string, sourceID, candidateID int64, now time.Time) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO location_sources (location_id, source_id, candidate_id, first_seen_at, last_seen_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT (location_id, source_id) DO UPDATE SET candidate_id = excluded.candidate_id, last_seen_at = excluded.last_seen_at`,
		locationID, sourceID, candidateID, formatTime(now), formatTime(now),
	); err != nil {
		return fmt.Errorf("upsert source link: %w", err)
	}
	return nil
}

// AddAlias records an additional name a directory entry is known by. The
// alias must differ from the entry's current name so the two sets stay
// disjoint.
func (s *Store) AddAlias(ctx context.Context, locationID, name, notes string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return services.Wrap(services.ErrValidation, "store", "add alias", "alias name is empty", nil)
	}
	loc, err := s.LocationByID(ctx, locationID)
	if err != nil {
		return err
	}
	if loc == nil {
		return services.Wrap(services.ErrNotFound, "store", "add alias",
			fmt.Sprintf("no entry with id %s", locationID), nil)
	}
	if strings.EqualFold(loc.Name, name) {
		return services.Wrap(services.ErrValidation, "store", "add alias",
			fmt.Sprintf("alias %q matches the current name of %s", name, locationID), nil)
	}
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ensureContext(ctx),
		`INSERT INTO location_aliases (location_id, name, effective_until, notes, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		locationID, name, formatTime(now), nullableString(notes), formatTime(now),
	); err != nil {
		return fmt.Errorf("add alias: %w", err)
	}
	return nil
}

// Aliases returns the recorded former names for a directory entry.
func (s *Store) Aliases(ctx context.Context, locationID string) ([]*Alias, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, location_id, name, effective_until, notes, created_at
         FROM location_aliases WHERE location_id = ? ORDER BY created_at, id`, locationID)
	if err != nil {
		return nil, fmt.Errorf("aliases: %w", err)
	}
	defer rows.Close()

	var aliases []*Alias
	for rows.Next() {
		var (
			alias      Alias
			until      sql.NullString
			notes      sql.NullString
			createdRaw sql.NullString
		)
		if err := rows.Scan(&alias.ID, &alias.LocationID, &alias.Name, &until, &notes, &createdRaw); err != nil {
			return nil, err
		}
		alias.EffectiveUntil = timePointer(until)
		alias.Notes = notes.String
		if created, parseErr := parseTimeString(createdRaw.String); parseErr == nil {
			alias.CreatedAt = created
		}
		aliases = append(aliases, &alias)
	}
	return aliases, rows.Err()
}

// SourceLinks returns the source corroboration records for a directory entry.
func (s *Store) SourceLinks(ctx context.Context, locationID string) ([]*SourceLink, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, location_id, source_id, candidate_id, first_seen_at, last_seen_at
         FROM location_sources WHERE location_id = ? ORDER BY source_id`, locationID)
	if err != nil {
		return nil, fmt.Errorf("source links: %w", err)
	}
	defer rows.Close()

	var links []*SourceLink
	for rows.Next() {
		var (
			link     SourceLink
			candID   sql.NullInt64
			firstRaw sql.NullString
			lastRaw  sql.NullString
		)
		if err := rows.Scan(&link.ID, &link.LocationID, &link.SourceID, &candID, &firstRaw, &lastRaw); err != nil {
			return nil, err
		}
		link.CandidateID = int64Pointer(candID)
		if first, parseErr := parseTimeString(firstRaw.String); parseErr == nil {
			link.FirstSeenAt = first
		}
		if last, parseErr := parseTimeString(lastRaw.String); parseErr == nil {
			link.LastSeenAt = last
		}
		links = append(links, &link)
	}
	return links, rows.Err()
}

// LocationStats returns a count of directory entries grouped by status.
func (s *Store) LocationStats(ctx context.Context) (map[LocationStatus]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT status, COUNT(1) FROM locations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("location stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[LocationStatus]int)
	for rows.Next() {
		var status LocationStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func collectLocations(rows *sql.Rows) ([]*Location, error) {
	var locations []*Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

func scanLocation(scanner interface{ Scan(dest ...any) error }) (*Location, error) {
	var (
		id           string
		name         string
		street       sql.NullString
		city         string
		state        string
		country      string
		zip          sql.NullString
		phone        sql.NullString
		website      sql.NullString
		timezone     sql.NullString
		latitude     sql.NullFloat64
		longitude    sql.NullFloat64
		statusStr    string
		dataSource   string
		confirmedRaw sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)
	if err := scanner.Scan(
		&id, &name, &street, &city, &state, &country, &zip, &phone, &website,
		&timezone, &latitude, &longitude, &statusStr, &dataSource,
		&confirmedRaw, &createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}
	loc := &Location{
		ID:              id,
		Name:            name,
		Street:          street.String,
		City:            city,
		State:           state,
		Country:         country,
		Zip:             zip.String,
		Phone:           phone.String,
		Website:         website.String,
		Timezone:        timezone.String,
		Latitude:        floatPointer(latitude),
		Longitude:       floatPointer(longitude),
		Status:          LocationStatus(statusStr),
		DataSource:      dataSource,
		LastConfirmedAt: timePointer(confirmedRaw),
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		loc.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		loc.UpdatedAt = updated
	}
	return loc, nil
}
