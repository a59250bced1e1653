package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"icemaker/internal/services"
)

const sourceColumns = "id, name, enabled, confidence_weight, notes, last_run_at, last_run_status, last_run_entry_count, created_at"

// SourceByName fetches a registered source. Returns ErrNotFound for unknown names.
func (s *Store) SourceByName(ctx context.Context, name string) (*Source, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+sourceColumns+` FROM sources WHERE name = ?`, name)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "store", "source lookup", fmt.Sprintf("source %q is not registered", name), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("source by name: %w", err)
	}
	return src, nil
}

// SourceByID fetches a registered source by identifier. Returns nil when absent.
func (s *Store) SourceByID(ctx context.Context, id int64) (*Source, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("source by id: %w", err)
	}
	return src, nil
}

// ListSources returns all registered sources ordered by name.
func (s *Store) ListSources(ctx context.Context) ([]*Source, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+sourceColumns+` FROM sources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// RegisterSource adds a new source to the registry.
func (s *Store) RegisterSource(ctx context.Context, name, notes string, weight float64) (*Source, error) {
	if weight <= 0 {
		weight = 1.0
	}
	_, err := s.execWithRetry(ensureContext(ctx),
		`INSERT INTO sources (name, enabled, confidence_weight, notes, created_at) VALUES (?, 1, ?, ?, ?)`,
		name, weight, nullableString(notes), formatTime(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("register source: %w", err)
	}
	return s.SourceByName(ctx, name)
}

// UpdateSourceRun records ingest run metadata on the source registry row.
func (s *Store) UpdateSourceRun(ctx context.Context, sourceID int64, status string, entryCount int) error {
	_, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE sources SET last_run_at = ?, last_run_status = ?, last_run_entry_count = ? WHERE id = ?`,
		formatTime(time.Now()), status, entryCount, sourceID,
	)
	if err != nil {
		return fmt.Errorf("update source run: %w", err)
	}
	return nil
}

// SetSourceEnabled toggles whether ingest accepts records from a source.
func (s *Store) SetSourceEnabled(ctx context.Context, name string, enabled bool) error {
	res, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE sources SET enabled = ? WHERE name = ?`, boolToInt(enabled), name)
	if err != nil {
		return fmt.Errorf("set source enabled: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "store", "source toggle", fmt.Sprintf("source %q is not registered", name), nil)
	}
	return nil
}

func scanSource(scanner interface{ Scan(dest ...any) error }) (*Source, error) {
	var (
		id        int64
		name      string
		enabled   int
		weight    float64
		notes     sql.NullString
		lastRunAt sql.NullString
		runStatus sql.NullString
		runCount  sql.NullInt64
		createdAt sql.NullString
	)
	if err := scanner.Scan(&id, &name, &enabled, &weight, &notes, &lastRunAt, &runStatus, &runCount, &createdAt); err != nil {
		return nil, err
	}
	src := &Source{
		ID:               id,
		Name:             name,
		Enabled:          enabled != 0,
		ConfidenceWeight: weight,
		Notes:            notes.String,
		LastRunAt:        timePointer(lastRunAt),
		LastRunStatus:    runStatus.String,
	}
	if runCount.Valid {
		src.LastRunEntryCount = int(runCount.Int64)
	}
	if created, err := parseTimeString(createdAt.String); err == nil {
		src.CreatedAt = created
	}
	return src, nil
}
