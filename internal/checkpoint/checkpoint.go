// Package checkpoint persists migration progress so an interrupted run can
// resume without re-copying rows it already backfilled.
package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zeebo/errs"

	"github.com/nnnLik/a-osc/internal/db"
)

// Error is the class of checkpoint store failures.
var Error = errs.Class("checkpoint")

// Stage is the last pipeline stage a run completed.
type Stage int

const (
	StageNone Stage = iota
	StageInstalled
	StageShadowBuilt
	StageBackfilling
	StageBackfilled
	StageReplayed
	StageSwapped
)

func (s Stage) String() string {
	switch s {
	case StageNone:
		return "none"
	case StageInstalled:
		return "installed"
	case StageShadowBuilt:
		return "shadow-built"
	case StageBackfilling:
		return "backfilling"
	case StageBackfilled:
		return "backfilled"
	case StageReplayed:
		return "replayed"
	case StageSwapped:
		return "swapped"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Checkpoint is the persisted progress of one table's migration.
type Checkpoint struct {
	Scope string
	Table string
	Stage Stage

	// BoundLow and BoundHigh are the key bounds read when backfill began.
	BoundLow  int64
	BoundHigh int64
	// HighWater is the last key range end copied; valid when HasHighWater.
	HighWater    int64
	HasHighWater bool

	// ReplayCursor is the id of the last audit record applied.
	ReplayCursor int64

	UpdatedAt time.Time
}

const createTable = `
	CREATE TABLE IF NOT EXISTS checkpoints (
		scope         TEXT    NOT NULL,
		table_name    TEXT    NOT NULL,
		stage         INTEGER NOT NULL,
		bound_low     INTEGER NOT NULL DEFAULT 0,
		bound_high    INTEGER NOT NULL DEFAULT 0,
		high_water    INTEGER,
		replay_cursor INTEGER NOT NULL DEFAULT 0,
		updated_at    TIMESTAMP NOT NULL,
		PRIMARY KEY (scope, table_name)
	)
`

// SQLiteStore keeps checkpoints in a local SQLite file
type SQLiteStore struct {
	client *db.SQLiteClient
}

// OpenSQLiteStore opens (creating if needed) the checkpoint file at path
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	client, err := db.NewSQLiteClient(ctx, path)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	if _, err := client.GetDB().ExecContext(ctx, createTable); err != nil {
		return nil, Error.Wrap(errs.Combine(err, client.Close()))
	}

	return &SQLiteStore{client: client}, nil
}

// Close closes the checkpoint file
func (s *SQLiteStore) Close() error {
	return Error.Wrap(s.client.Close())
}

// Load returns the checkpoint for table, or nil if none is stored
func (s *SQLiteStore) Load(ctx context.Context, scope, table string) (*Checkpoint, error) {
	query := `
		SELECT stage, bound_low, bound_high, high_water, replay_cursor, updated_at
		FROM checkpoints
		WHERE scope = ? AND table_name = ?
	`

	cp := Checkpoint{Scope: scope, Table: table}
	var highWater sql.NullInt64
	err := s.client.GetDB().QueryRowContext(ctx, query, scope, table).Scan(
		&cp.Stage, &cp.BoundLow, &cp.BoundHigh, &highWater, &cp.ReplayCursor, &cp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}

	cp.HighWater = highWater.Int64
	cp.HasHighWater = highWater.Valid
	return &cp, nil
}

// Save inserts or replaces the checkpoint
func (s *SQLiteStore) Save(ctx context.Context, cp Checkpoint) error {
	query := `
		INSERT INTO checkpoints (scope, table_name, stage, bound_low, bound_high, high_water, replay_cursor, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (scope, table_name) DO UPDATE SET
			stage = excluded.stage,
			bound_low = excluded.bound_low,
			bound_high = excluded.bound_high,
			high_water = excluded.high_water,
			replay_cursor = excluded.replay_cursor,
			updated_at = excluded.updated_at
	`

	highWater := sql.NullInt64{Int64: cp.HighWater, Valid: cp.HasHighWater}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}

	_, err := s.client.GetDB().ExecContext(ctx, query, cp.Scope, cp.Table, int(cp.Stage),
		cp.BoundLow, cp.BoundHigh, highWater, cp.ReplayCursor, cp.UpdatedAt)
	return Error.Wrap(err)
}

// Delete removes the checkpoint for table; absence is not an error
func (s *SQLiteStore) Delete(ctx context.Context, scope, table string) error {
	_, err := s.client.GetDB().ExecContext(ctx,
		`DELETE FROM checkpoints WHERE scope = ? AND table_name = ?`, scope, table)
	return Error.Wrap(err)
}
