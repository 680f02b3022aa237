package osc

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/nnnLik/a-osc/internal/db"
	"github.com/nnnLik/a-osc/internal/dialect"
)

// CopyJob describes what a backfill copies.
type CopyJob struct {
	Source    string
	Shadow    string
	Columns   []string
	PK        string
	ChunkSize int64

	// OnChunk runs after every copied range with the running row count.
	OnChunk func(ctx context.Context, r ChunkRange, copied int64) error
}

// Copier backfills existing rows into the shadow table range by range.
type Copier struct {
	log     *zap.Logger
	dialect dialect.Dialect
}

// NewCopier creates a copier
func NewCopier(log *zap.Logger, d dialect.Dialect) *Copier {
	return &Copier{log: log, dialect: d}
}

// Bounds reads MIN and MAX of the primary key. ok is false for an empty table.
func (c *Copier) Bounds(ctx context.Context, q db.Querier, table, pk string) (span ChunkRange, ok bool, err error) {
	var low, high sql.NullInt64
	err = q.QueryRowContext(ctx, c.dialect.KeyBounds(table, pk)).Scan(&low, &high)
	if err != nil {
		return ChunkRange{}, false, DriverError.Wrap(fmt.Errorf("key bounds of %s: %w", table, err))
	}
	if !low.Valid || !high.Valid {
		return ChunkRange{}, false, nil
	}
	return ChunkRange{Low: low.Int64, High: high.Int64}, true, nil
}

// Backfill copies every row with a key in [MIN, MAX] as read at call time.
// It does not deduplicate against the audit log; replay reconciles.
func (c *Copier) Backfill(ctx context.Context, q db.Querier, job CopyJob) (int64, error) {
	span, ok, err := c.Bounds(ctx, q, job.Source, job.PK)
	if err != nil {
		return 0, err
	}
	if !ok {
		c.log.Info("no data found in the source table", zap.String("table", job.Source))
		return 0, nil
	}
	return c.CopyRanges(ctx, q, job, span, span.Low)
}

// CopyRanges copies span starting at key from, one chunk at a time. Any failed
// chunk aborts the backfill.
func (c *Copier) CopyRanges(ctx context.Context, q db.Querier, job CopyJob, span ChunkRange, from int64) (int64, error) {
	if job.ChunkSize <= 0 {
		return 0, PlanError.New("chunk size must be positive, got %d", job.ChunkSize)
	}

	c.log.Info("copying data to shadow table",
		zap.String("source", job.Source), zap.String("shadow", job.Shadow),
		zap.Int64("min", span.Low), zap.Int64("max", span.High), zap.Int64("from", from))

	stmt := c.dialect.CopyRange(job.Source, job.Shadow, job.Columns, job.PK)

	var copied int64
	for _, r := range Chunks(from, span.High, job.ChunkSize) {
		res, err := q.ExecContext(ctx, stmt, r.Low, r.High)
		if err != nil {
			return copied, DriverError.Wrap(fmt.Errorf("copy range [%d, %d]: %w", r.Low, r.High, err))
		}
		if n, err := res.RowsAffected(); err == nil {
			copied += n
		}

		c.log.Info("copied range",
			zap.Int64("range_low", r.Low), zap.Int64("range_high", r.High), zap.Int64("copied", copied))

		if job.OnChunk != nil {
			if err := job.OnChunk(ctx, r, copied); err != nil {
				return copied, err
			}
		}
	}

	c.log.Info("data copied to shadow table", zap.Int64("copied", copied))
	return copied, nil
}
