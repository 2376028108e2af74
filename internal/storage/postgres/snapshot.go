package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sharronesofer/visual-dm-sub028/internal/game/combat"
	"github.com/sharronesofer/visual-dm-sub028/internal/storage"
)

// SnapshotRepository stores combat snapshots as JSONB rows keyed by ULID.
// It satisfies combat.SnapshotStore.
type SnapshotRepository struct {
	db *pgxpool.Pool
}

// NewSnapshotRepository creates a SnapshotRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool with the
// combat_snapshots migration applied.
func NewSnapshotRepository(db *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Save appends s to its combat's history.
//
// Precondition: s.CombatID must be non-empty.
// Postcondition: Latest(s.CombatID) returns s until a newer snapshot is saved.
func (r *SnapshotRepository) Save(ctx context.Context, s combat.Snapshot) error {
	if s.CombatID == "" {
		return errors.New("saving snapshot: combat id is required")
	}
	payload, err := combat.EncodeSnapshot(s)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO combat_snapshots (id, combat_id, round, status, taken_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		storage.NewID(), s.CombatID, s.Round, string(s.Status), s.Timestamp.UTC(), payload,
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot for %s: %w", s.CombatID, err)
	}
	return nil
}

// Latest returns the most recently saved snapshot for combatID.
//
// Postcondition: Returns storage.ErrSnapshotNotFound when none exists.
func (r *SnapshotRepository) Latest(ctx context.Context, combatID string) (combat.Snapshot, error) {
	var payload []byte
	err := r.db.QueryRow(ctx, `
		SELECT payload FROM combat_snapshots
		WHERE combat_id = $1 ORDER BY id DESC LIMIT 1`,
		combatID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return combat.Snapshot{}, fmt.Errorf("combat %s: %w", combatID, storage.ErrSnapshotNotFound)
		}
		return combat.Snapshot{}, fmt.Errorf("loading latest snapshot for %s: %w", combatID, err)
	}
	return combat.DecodeSnapshot(payload)
}

// List returns combatID's snapshot history, oldest first.
//
// Postcondition: Returns a slice (may be empty) or a non-nil error.
func (r *SnapshotRepository) List(ctx context.Context, combatID string) ([]storage.Record, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, payload FROM combat_snapshots
		WHERE combat_id = $1 ORDER BY id ASC`,
		combatID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots for %s: %w", combatID, err)
	}
	defer rows.Close()

	var out []storage.Record
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		s, err := combat.DecodeSnapshot(payload)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", id, err)
		}
		out = append(out, storage.Record{ID: id, Snapshot: s})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return out, nil
}

// ListCombatIDs returns every combat with at least one snapshot, sorted.
func (r *SnapshotRepository) ListCombatIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT combat_id FROM combat_snapshots ORDER BY combat_id`)
	if err != nil {
		return nil, fmt.Errorf("listing combat ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collecting combat ids: %w", err)
	}
	return ids, nil
}

// Prune deletes all but the newest keep snapshots of combatID and returns
// how many rows were removed.
//
// Precondition: keep must be >= 1.
func (r *SnapshotRepository) Prune(ctx context.Context, combatID string, keep int) (int64, error) {
	if keep < 1 {
		return 0, fmt.Errorf("pruning %s: keep must be >= 1, got %d", combatID, keep)
	}
	tag, err := r.db.Exec(ctx, `
		DELETE FROM combat_snapshots
		WHERE combat_id = $1 AND id NOT IN (
			SELECT id FROM combat_snapshots WHERE combat_id = $1 ORDER BY id DESC LIMIT $2
		)`,
		combatID, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots for %s: %w", combatID, err)
	}
	return tag.RowsAffected(), nil
}

// Delete removes every snapshot of combatID.
//
// Postcondition: Returns storage.ErrSnapshotNotFound when nothing was deleted.
func (r *SnapshotRepository) Delete(ctx context.Context, combatID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM combat_snapshots WHERE combat_id = $1`, combatID)
	if err != nil {
		return fmt.Errorf("deleting snapshots for %s: %w", combatID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("combat %s: %w", combatID, storage.ErrSnapshotNotFound)
	}
	return nil
}

var _ combat.SnapshotStore = (*SnapshotRepository)(nil)
