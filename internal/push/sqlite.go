package push

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"icemaker/internal/promoter"
)

// SQLiteConsumer talks to the downstream directory's own SQLite database.
// The schema is theirs, not ours: rink_* columns, no status, no staging.
type SQLiteConsumer struct {
	db   *sql.DB
	path string
}

const consumerSchema = `
CREATE TABLE IF NOT EXISTS locations (
    rink_id TEXT PRIMARY KEY,
    rink_name TEXT,
    rink_address TEXT,
    rink_city TEXT,
    rink_state TEXT,
    rink_country TEXT,
    rink_zip TEXT,
    rink_url TEXT,
    rink_phone TEXT,
    rink_tz TEXT,
    data_source TEXT,
    date_created TEXT
);
`

// OpenConsumer connects to the downstream database, creating the schema if
// the file is new.
func OpenConsumer(path string) (*SQLiteConsumer, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("consumer database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create consumer directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open consumer db: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragma: %w", err)
	}
	if _, err := db.Exec(consumerSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init consumer schema: %w", err)
	}
	return &SQLiteConsumer{db: db, path: path}, nil
}

// Close closes the downstream connection.
func (c *SQLiteConsumer) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Snapshot reads every downstream venue, keyed by identifier.
func (c *SQLiteConsumer) Snapshot(ctx context.Context) (map[string]VenueRecord, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT rink_id, rink_name, rink_address, rink_city, rink_state, rink_country,
                rink_zip, rink_url, rink_phone, rink_tz, data_source, date_created
         FROM locations`)
	if err != nil {
		return nil, fmt.Errorf("snapshot consumer: %w", err)
	}
	defer rows.Close()

	venues := make(map[string]VenueRecord)
	for rows.Next() {
		var (
			record  VenueRecord
			fields  [10]sql.NullString
			created sql.NullString
		)
		if err := rows.Scan(&record.ID, &fields[0], &fields[1], &fields[2], &fields[3],
			&fields[4], &fields[5], &fields[6], &fields[7], &fields[8], &fields[9], &created); err != nil {
			return nil, err
		}
		record.Name = fields[0].String
		record.Street = fields[1].String
		record.City = fields[2].String
		record.State = fields[3].String
		record.Country = fields[4].String
		record.Zip = fields[5].String
		record.Website = fields[6].String
		record.Phone = fields[7].String
		record.Timezone = fields[8].String
		record.DataSource = fields[9].String
		if created.Valid {
			if t, parseErr := time.Parse(time.RFC3339Nano, created.String); parseErr == nil {
				record.CreatedAt = t
			}
		}
		venues[record.ID] = record
	}
	return venues, rows.Err()
}

// Insert adds a venue the downstream has never seen. New rows carry the full
// record; from then on the downstream owns the curated fields.
func (c *SQLiteConsumer) Insert(ctx context.Context, record VenueRecord) error {
	created := record.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	if _, err := c.db.ExecContext(ctx,
		`INSERT INTO locations (rink_id, rink_name, rink_address, rink_city, rink_state,
             rink_country, rink_zip, rink_url, rink_phone, rink_tz, data_source, date_created)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Name, record.Street, record.City, record.State,
		record.Country, record.Zip, record.Website, record.Phone, record.Timezone,
		record.DataSource, created.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("insert consumer venue: %w", err)
	}
	return nil
}

// UpdateAddress refreshes address fields on an existing downstream venue.
// Name, phone, website, and timezone stay untouched.
func (c *SQLiteConsumer) UpdateAddress(ctx context.Context, record VenueRecord) error {
	if _, err := c.db.ExecContext(ctx,
		`UPDATE locations SET rink_address = ?, rink_city = ?, rink_state = ?,
             rink_country = ?, rink_zip = ?
         WHERE rink_id = ?`,
		record.Street, record.City, record.State, record.Country, record.Zip, record.ID,
	); err != nil {
		return fmt.Errorf("update consumer venue: %w", err)
	}
	return nil
}

// KnownVenues lists downstream identities so promotion can adopt existing
// identifiers instead of minting duplicates.
func (c *SQLiteConsumer) KnownVenues(ctx context.Context) ([]promoter.KnownVenue, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT rink_id, rink_name, rink_address, rink_city, rink_state FROM locations`)
	if err != nil {
		return nil, fmt.Errorf("known venues: %w", err)
	}
	defer rows.Close()

	var venues []promoter.KnownVenue
	for rows.Next() {
		var (
			venue  promoter.KnownVenue
			fields [4]sql.NullString
		)
		if err := rows.Scan(&venue.ID, &fields[0], &fields[1], &fields[2], &fields[3]); err != nil {
			return nil, err
		}
		venue.Name = fields[0].String
		venue.Street = fields[1].String
		venue.City = fields[2].String
		venue.State = fields[3].String
		venues = append(venues, venue)
	}
	return venues, rows.Err()
}
