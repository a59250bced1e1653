package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// seedSources are the adapters the pipeline knows about. The registry rows
// are created with the schema so ingest can resolve a source by name
// immediately; new sources are registered with RegisterSource.
var seedSources = []struct {
	name   string
	weight float64
	notes  string
}{
	{"sk8stuff", 1.0, "Single-page table, all rinks in one request"},
	{"arena_guide", 1.0, "CMS pagination, site owner permission granted"},
	{"learntoskate", 1.0, "JSON API, supplies coordinates and ZIP directly"},
	{"fandom_wiki", 1.0, "Curated wiki list, no street addresses"},
	{"consumer", 2.0, "Downstream consumer directory, strongest evidence a rink exists"},
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	now := formatTime(time.Now())
	for _, src := range seedSources {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sources (name, enabled, confidence_weight, notes, created_at) VALUES (?, 1, ?, ?, ?)`,
			src.name, src.weight, src.notes, now,
		); err != nil {
			return fmt.Errorf("seed source %s: %w", src.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}
