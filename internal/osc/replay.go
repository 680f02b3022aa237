package osc

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/nnnLik/a-osc/internal/db"
	"github.com/nnnLik/a-osc/internal/dialect"
	"github.com/nnnLik/a-osc/internal/schema"
)

// DefaultReplayBatchSize is the number of audit records read per query.
const DefaultReplayBatchSize = 1000

// ReplayTarget names the tables and columns replay writes through.
type ReplayTarget struct {
	Names   dialect.Names
	Columns []string // columns shared by source and shadow
	PK      string
	// Kinds marks columns whose row image values need more than a plain bind.
	Kinds map[string]ColumnKind

	// OnBatch runs after each applied batch with the id of its last record.
	OnBatch func(ctx context.Context, lastID int64) error
}

// ColumnKinds classifies the binary and JSON columns of table.
func ColumnKinds(d dialect.Dialect, table *schema.Table) map[string]ColumnKind {
	kinds := map[string]ColumnKind{}
	for _, col := range table.Columns {
		switch {
		case d.IsBinary(col.DataType):
			kinds[col.Name] = KindBinary
		case d.IsJSON(col.DataType):
			kinds[col.Name] = KindJSON
		}
	}
	return kinds
}

// Replayer drains the audit log into the shadow table.
type Replayer struct {
	log       *zap.Logger
	dialect   dialect.Dialect
	batchSize int
}

// NewReplayer creates a replayer; batchSize <= 0 selects DefaultReplayBatchSize.
func NewReplayer(log *zap.Logger, d dialect.Dialect, batchSize int) *Replayer {
	if batchSize <= 0 {
		batchSize = DefaultReplayBatchSize
	}
	return &Replayer{log: log, dialect: d, batchSize: batchSize}
}

// Drain applies every record present when it starts, in ascending id order,
// deleting each one after it is applied. Records appended while draining are
// left for the next call. Applying a record twice converges to the same row.
func (r *Replayer) Drain(ctx context.Context, q db.Querier, t ReplayTarget) (int64, error) {
	var ceiling sql.NullInt64
	if err := q.QueryRowContext(ctx, r.dialect.AuditCeiling(t.Names)).Scan(&ceiling); err != nil {
		return 0, DriverError.Wrap(fmt.Errorf("read audit ceiling: %w", err))
	}
	if !ceiling.Valid {
		r.log.Info("audit log is empty", zap.String("audit", t.Names.Audit))
		return 0, nil
	}

	r.log.Info("replaying audit log", zap.String("audit", t.Names.Audit), zap.Int64("ceiling", ceiling.Int64))

	var applied int64
	for {
		records, err := r.readBatch(ctx, q, t.Names, ceiling.Int64)
		if err != nil {
			return applied, err
		}

		for _, rec := range records {
			if err := r.apply(ctx, q, t, rec); err != nil {
				return applied, err
			}
			if _, err := q.ExecContext(ctx, r.dialect.DeleteAuditRecord(t.Names), rec.ID); err != nil {
				return applied, DriverError.Wrap(fmt.Errorf("delete audit record %d: %w", rec.ID, err))
			}
			applied++
		}

		if len(records) > 0 {
			last := records[len(records)-1].ID
			r.log.Info("replayed batch", zap.Int("records", len(records)), zap.Int64("last_id", last), zap.Int64("applied", applied))
			if t.OnBatch != nil {
				if err := t.OnBatch(ctx, last); err != nil {
					return applied, err
				}
			}
		}

		if len(records) < r.batchSize {
			break
		}
	}

	r.log.Info("audit log replayed", zap.String("shadow", t.Names.Shadow), zap.Int64("applied", applied))
	return applied, nil
}

// readBatch loads the next records up to ceiling. The rows are fully read and
// closed before anything else runs on the same connection.
func (r *Replayer) readBatch(ctx context.Context, q db.Querier, n dialect.Names, ceiling int64) (_ []AuditRecord, err error) {
	rows, err := q.QueryContext(ctx, r.dialect.AuditBatch(n), ceiling, r.batchSize)
	if err != nil {
		return nil, DriverError.Wrap(fmt.Errorf("read audit log: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var records []AuditRecord
	for rows.Next() {
		var (
			rec    AuditRecord
			action string
			data   []byte
			at     sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &action, &rec.Key, &data, &at); err != nil {
			return nil, DriverError.Wrap(fmt.Errorf("scan audit record: %w", err))
		}
		rec.Time = at.Time

		rec.Payload, err = decodePayload(action, data)
		if err != nil {
			return nil, RecordError.Wrap(fmt.Errorf("record %d: %w", rec.ID, err))
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, DriverError.Wrap(err)
	}
	return records, nil
}

func (r *Replayer) apply(ctx context.Context, q db.Querier, t ReplayTarget, rec AuditRecord) error {
	n := t.Names

	switch p := rec.Payload.(type) {
	case Insert:
		// The source row is re-read, so a row updated after the insert is
		// copied in its current form.
		stmt := r.dialect.UpsertFromSource(n.Table, n.Shadow, t.Columns, t.PK)
		if _, err := q.ExecContext(ctx, stmt, rec.Key); err != nil {
			return DriverError.Wrap(fmt.Errorf("replay insert of %s=%d: %w", t.PK, rec.Key, err))
		}

	case Update:
		if oldKey, ok := keyOf(p.Old, t.PK); ok && oldKey != rec.Key {
			if _, err := q.ExecContext(ctx, r.dialect.DeleteByKey(n.Shadow, t.PK), oldKey); err != nil {
				return DriverError.Wrap(fmt.Errorf("replay key change %d->%d: %w", oldKey, rec.Key, err))
			}
		}
		args, err := p.New.args(t.Columns, t.Kinds, r.dialect.DecodeBinary)
		if err != nil {
			return RecordError.Wrap(fmt.Errorf("record %d: %w", rec.ID, err))
		}
		if _, err := q.ExecContext(ctx, r.dialect.UpsertRow(n.Shadow, t.Columns, t.PK), args...); err != nil {
			return DriverError.Wrap(fmt.Errorf("replay update of %s=%d: %w", t.PK, rec.Key, err))
		}

	case Delete:
		if _, err := q.ExecContext(ctx, r.dialect.DeleteByKey(n.Shadow, t.PK), rec.Key); err != nil {
			return DriverError.Wrap(fmt.Errorf("replay delete of %s=%d: %w", t.PK, rec.Key, err))
		}

	default:
		return RecordError.New("record %d has no payload", rec.ID)
	}
	return nil
}
