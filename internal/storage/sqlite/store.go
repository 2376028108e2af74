// Package sqlite provides an embedded SQLite snapshot store for single-node
// deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sharronesofer/visual-dm-sub028/internal/game/combat"
	"github.com/sharronesofer/visual-dm-sub028/internal/storage"
	"github.com/sharronesofer/visual-dm-sub028/internal/storage/sqlite/migrations"
)

// Store persists combat snapshots in SQLite. It satisfies combat.SnapshotStore.
type Store struct {
	sqlDB  *sql.DB
	logger *zap.Logger
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Open opens (creating if needed) the database at path and applies the
// embedded migrations.
//
// Precondition: path must be non-empty.
// Postcondition: Returns a ready Store or a non-nil error.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; concurrent Saves queue on the pool instead of
	// failing with SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("snapshot store opened", zap.String("path", cleanPath))
	return &Store{sqlDB: sqlDB, logger: logger}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Save appends snap to its combat's history.
func (s *Store) Save(ctx context.Context, snap combat.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap.CombatID == "" {
		return errors.New("saving snapshot: combat id is required")
	}
	payload, err := combat.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO combat_snapshots (id, combat_id, round, status, taken_at, payload)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		storage.NewID(), snap.CombatID, snap.Round, string(snap.Status), toMillis(snap.Timestamp), payload,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot for %s: %w", snap.CombatID, err)
	}
	s.logger.Debug("snapshot saved",
		zap.String("combat_id", snap.CombatID),
		zap.Int("round", snap.Round),
	)
	return nil
}

// Latest returns the most recently saved snapshot for combatID.
//
// Postcondition: Returns storage.ErrSnapshotNotFound when none exists.
func (s *Store) Latest(ctx context.Context, combatID string) (combat.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return combat.Snapshot{}, err
	}
	var payload []byte
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT payload FROM combat_snapshots WHERE combat_id = ? ORDER BY id DESC LIMIT 1`,
		combatID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return combat.Snapshot{}, fmt.Errorf("combat %s: %w", combatID, storage.ErrSnapshotNotFound)
	}
	if err != nil {
		return combat.Snapshot{}, fmt.Errorf("load latest snapshot for %s: %w", combatID, err)
	}
	return combat.DecodeSnapshot(payload)
}

// List returns combatID's snapshot history, oldest first.
func (s *Store) List(ctx context.Context, combatID string) ([]storage.Record, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, payload FROM combat_snapshots WHERE combat_id = ? ORDER BY id ASC`,
		combatID,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots for %s: %w", combatID, err)
	}
	defer rows.Close()

	var out []storage.Record
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snap, err := combat.DecodeSnapshot(payload)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", id, err)
		}
		out = append(out, storage.Record{ID: id, Snapshot: snap})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

// ListCombatIDs returns every combat with at least one snapshot, sorted.
func (s *Store) ListCombatIDs(ctx context.Context) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT DISTINCT combat_id FROM combat_snapshots ORDER BY combat_id`)
	if err != nil {
		return nil, fmt.Errorf("list combat ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan combat id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Prune deletes all but the newest keep snapshots of combatID.
//
// Precondition: keep must be >= 1.
func (s *Store) Prune(ctx context.Context, combatID string, keep int) (int64, error) {
	if keep < 1 {
		return 0, fmt.Errorf("pruning %s: keep must be >= 1, got %d", combatID, keep)
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM combat_snapshots
		  WHERE combat_id = ? AND id NOT IN (
		        SELECT id FROM combat_snapshots WHERE combat_id = ? ORDER BY id DESC LIMIT ?)`,
		combatID, combatID, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots for %s: %w", combatID, err)
	}
	return res.RowsAffected()
}

// Delete removes every snapshot of combatID.
//
// Postcondition: Returns storage.ErrSnapshotNotFound when nothing was deleted.
func (s *Store) Delete(ctx context.Context, combatID string) error {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM combat_snapshots WHERE combat_id = ?`, combatID)
	if err != nil {
		return fmt.Errorf("delete snapshots for %s: %w", combatID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("combat %s: %w", combatID, storage.ErrSnapshotNotFound)
	}
	return nil
}

var _ combat.SnapshotStore = (*Store)(nil)
