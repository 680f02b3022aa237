package db

import (
	"context"
	"database/sql"
	"errors"
)

// ErrTableNotFound is returned by introspectors when the requested table does not exist.
var ErrTableNotFound = errors.New("table not found")

// Querier is the database handle every migration stage runs its statements on.
// *sql.DB, *sql.Conn and *sql.Tx all satisfy it.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxQuerier is a Querier that can also open transactions.
type TxQuerier interface {
	Querier
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
