package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"icemaker/internal/services"
)

// Demote moves a directory entry to a less-active status. Allowed moves are
// the demotion state machine only; anything else is rejected before a write
// happens. Demoting to the entry's current status is a no-op.
func (s *Store) Demote(ctx context.Context, id string, target LocationStatus) error {
	loc, err := s.LocationByID(ctx, id)
	if err != nil {
		return err
	}
	if loc == nil {
		return services.Wrap(services.ErrNotFound, "admin", "demote",
			fmt.Sprintf("directory entry %s does not exist", id), nil)
	}
	if loc.Status == target {
		return nil
	}
	if !CanTransition(loc.Status, target) {
		return services.Wrap(services.ErrInvariant, "admin", "demote",
			fmt.Sprintf("transition %s -> %s is not allowed for %s", loc.Status, target, id), nil)
	}
	_, err = s.execWithRetry(ensureContext(ctx),
		`UPDATE locations SET status = ?, updated_at = ? WHERE id = ?`,
		target, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("demote: %w", err)
	}
	return nil
}

// Reactivate returns a permanently closed entry to active. This is the only
// path out of closed_permanently and it is operator-initiated by design of
// the state machine: the pipeline never calls it.
func (s *Store) Reactivate(ctx context.Context, id string) error {
	loc, err := s.LocationByID(ctx, id)
	if err != nil {
		return err
	}
	if loc == nil {
		return services.Wrap(services.ErrNotFound, "admin", "reactivate",
			fmt.Sprintf("directory entry %s does not exist", id), nil)
	}
	if loc.Status != LocationClosedPermanently {
		return services.Wrap(services.ErrInvariant, "admin", "reactivate",
			fmt.Sprintf("entry %s is %s, not closed_permanently", id, loc.Status), nil)
	}
	_, err = s.execWithRetry(ensureContext(ctx),
		`UPDATE locations SET status = ?, updated_at = ? WHERE id = ?`,
		LocationActive, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("reactivate: %w", err)
	}
	return nil
}

// Rename changes a directory entry's name, recording the old name as an
// alias. Renaming to the current name is rejected: an alias must never equal
// the entry's current name. The rename and the alias insert commit together.
func (s *Store) Rename(ctx context.Context, id, newName, notes string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return services.Wrap(services.ErrValidation, "admin", "rename", "new name is empty", nil)
	}
	loc, err := s.LocationByID(ctx, id)
	if err != nil {
		return err
	}
	if loc == nil {
		return services.Wrap(services.ErrNotFound, "admin", "rename",
			fmt.Sprintf("directory entry %s does not exist", id), nil)
	}
	if loc.Status == LocationMerged {
		return services.Wrap(services.ErrInvariant, "admin", "rename",
			fmt.Sprintf("entry %s is merged; rename the survivor instead", id), nil)
	}
	if strings.EqualFold(loc.Name, newName) {
		return services.Wrap(services.ErrValidation, "admin", "rename",
			fmt.Sprintf("entry %s is already named %q", id, loc.Name), nil)
	}
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO location_aliases (location_id, name, effective_until, notes, created_at)
             VALUES (?, ?, ?, ?, ?)`,
			id, loc.Name, formatTime(now), nullableString(notes), formatTime(now),
		); err != nil {
			return fmt.Errorf("record alias: %w", err)
		}
		// The new name may have been an alias from an earlier rename; drop
		// it so aliases and the current name stay disjoint.
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM location_aliases WHERE location_id = ? AND LOWER(name) = LOWER(?)`,
			id, newName,
		); err != nil {
			return fmt.Errorf("prune alias: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE locations SET name = ?, updated_at = ? WHERE id = ?`,
			newName, formatTime(now), id,
		); err != nil {
			return fmt.Errorf("rename: %w", err)
		}
		return nil
	})
}

// Merge absorbs one directory entry into another. The retired entry keeps
// its row forever, marked merged, with a tombstone pointing at the survivor.
// Source links, candidates, and aliases move to the survivor, and any older
// tombstones pointing at the retired entry are re-pointed so lookups always
// resolve in one hop. Everything commits in a single transaction.
func (s *Store) Merge(ctx context.Context, retiredID, survivingID string) error {
	if retiredID == survivingID {
		return services.Wrap(services.ErrValidation, "admin", "merge",
			"an entry cannot be merged into itself", nil)
	}
	retired, err := s.LocationByID(ctx, retiredID)
	if err != nil {
		return err
	}
	if retired == nil {
		return services.Wrap(services.ErrNotFound, "admin", "merge",
			fmt.Sprintf("directory entry %s does not exist", retiredID), nil)
	}
	if retired.Status == LocationMerged {
		return services.Wrap(services.ErrInvariant, "admin", "merge",
			fmt.Sprintf("entry %s is already merged", retiredID), nil)
	}
	survivor, err := s.LocationByID(ctx, survivingID)
	if err != nil {
		return err
	}
	if survivor == nil {
		return services.Wrap(services.ErrNotFound, "admin", "merge",
			fmt.Sprintf("directory entry %s does not exist", survivingID), nil)
	}
	if survivor.Status == LocationMerged {
		return services.Wrap(services.ErrInvariant, "admin", "merge",
			fmt.Sprintf("survivor %s is itself merged", survivingID), nil)
	}

	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		// Move the retired entry's source links. A link whose source the
		// survivor already has folds into the survivor's, keeping the
		// earliest first-seen and latest last-seen timestamps.
		rows, err := tx.QueryContext(ctx,
			`SELECT source_id, candidate_id, first_seen_at, last_seen_at
             FROM location_sources WHERE location_id = ?`, retiredID)
		if err != nil {
			return fmt.Errorf("read retired source links: %w", err)
		}
		type movedLink struct {
			sourceID    int64
			candidateID sql.NullInt64
			firstSeen   string
			lastSeen    string
		}
		var moved []movedLink
		for rows.Next() {
			var link movedLink
			if err := rows.Scan(&link.sourceID, &link.candidateID, &link.firstSeen, &link.lastSeen); err != nil {
				rows.Close()
				return err
			}
			moved = append(moved, link)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, link := range moved {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO location_sources (location_id, source_id, candidate_id, first_seen_at, last_seen_at)
                 VALUES (?, ?, ?, ?, ?)
                 ON CONFLICT (location_id, source_id) DO UPDATE SET
                     first_seen_at = MIN(location_sources.first_seen_at, excluded.first_seen_at),
                     last_seen_at = MAX(location_sources.last_seen_at, excluded.last_seen_at)`,
				survivingID, link.sourceID, nullableInt64(int64Pointer(link.candidateID)), link.firstSeen, link.lastSeen,
			); err != nil {
				return fmt.Errorf("fold source link: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM location_sources WHERE location_id = ?`, retiredID,
		); err != nil {
			return fmt.Errorf("clear retired source links: %w", err)
		}

		// Candidate evidence and alias history follow the identity.
		if _, err := tx.ExecContext(ctx,
			`UPDATE candidates SET location_id = ?, updated_at = ? WHERE location_id = ?`,
			survivingID, formatTime(now), retiredID,
		); err != nil {
			return fmt.Errorf("re-point candidates: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE location_aliases SET location_id = ? WHERE location_id = ?`,
			survivingID, retiredID,
		); err != nil {
			return fmt.Errorf("re-point aliases: %w", err)
		}

		// The retired entry's name survives as an alias of the survivor,
		// unless the two entries shared a name.
		if !strings.EqualFold(retired.Name, survivor.Name) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO location_aliases (location_id, name, effective_until, notes, created_at)
                 VALUES (?, ?, ?, ?, ?)`,
				survivingID, retired.Name, formatTime(now),
				fmt.Sprintf("merged from %s", retiredID), formatTime(now),
			); err != nil {
				return fmt.Errorf("record merged name: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM location_aliases WHERE location_id = ? AND LOWER(name) = LOWER(?)`,
			survivingID, survivor.Name,
		); err != nil {
			return fmt.Errorf("prune survivor alias: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE locations SET status = ?, updated_at = ? WHERE id = ?`,
			LocationMerged, formatTime(now), retiredID,
		); err != nil {
			return fmt.Errorf("retire entry: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO location_merges (retired_id, surviving_id, merged_at) VALUES (?, ?, ?)`,
			retiredID, survivingID, formatTime(now),
		); err != nil {
			return fmt.Errorf("insert tombstone: %w", err)
		}
		// Older tombstones pointing at the now-retired entry get re-pointed
		// at the survivor, preserving one-hop resolution.
		if _, err := tx.ExecContext(ctx,
			`UPDATE location_merges SET surviving_id = ? WHERE surviving_id = ?`,
			survivingID, retiredID,
		); err != nil {
			return fmt.Errorf("re-point tombstones: %w", err)
		}
		return nil
	})
}
