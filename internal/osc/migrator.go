package osc

import (
	"context"
	"database/sql"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/nnnLik/a-osc/internal/checkpoint"
	"github.com/nnnLik/a-osc/internal/db"
	"github.com/nnnLik/a-osc/internal/dialect"
)

// Pool hands out dedicated connections; *sql.DB satisfies it.
type Pool interface {
	Conn(ctx context.Context) (*sql.Conn, error)
}

// CheckpointStore persists progress between runs.
type CheckpointStore interface {
	Load(ctx context.Context, scope, table string) (*checkpoint.Checkpoint, error)
	Save(ctx context.Context, cp checkpoint.Checkpoint) error
	Delete(ctx context.Context, scope, table string) error
}

// Options configures a Migrator.
type Options struct {
	Dialect      dialect.Dialect
	Introspector Introspector

	// Checkpoints is optional; without it a run cannot be resumed.
	Checkpoints CheckpointStore
	// Scope separates checkpoints of same-named tables in different databases.
	Scope string

	ReplayBatchSize int
}

// Result summarizes a completed run.
type Result struct {
	Table          string
	Shadow         string
	RowsCopied     int64
	RecordsApplied int64
	Swapped        bool
	Elapsed        time.Duration
}

// Step is one stage of a dry-run script.
type Step struct {
	Stage      string
	Statements []string
}

// Migrator runs the online schema change pipeline.
type Migrator struct {
	log  *zap.Logger
	pool Pool
	opts Options

	audit    *AuditLayer
	shadow   *ShadowBuilder
	copier   *Copier
	replayer *Replayer
	cutover  *Cutover
}

// NewMigrator creates a migrator that runs its stages on connections from pool
func NewMigrator(log *zap.Logger, pool Pool, opts Options) *Migrator {
	return &Migrator{
		log:      log,
		pool:     pool,
		opts:     opts,
		audit:    NewAuditLayer(log.Named("audit"), opts.Dialect),
		shadow:   NewShadowBuilder(log.Named("shadow"), opts.Dialect),
		copier:   NewCopier(log.Named("copier"), opts.Dialect),
		replayer: NewReplayer(log.Named("replay"), opts.Dialect, opts.ReplayBatchSize),
		cutover:  NewCutover(log.Named("cutover"), opts.Dialect),
	}
}

// Run executes plan: install capture, build the shadow table, backfill,
// replay, and optionally swap and clean up. Stages run strictly in order on a
// single connection; the first error stops the run and leaves created objects
// in place.
func (m *Migrator) Run(ctx context.Context, plan Plan) (_ *Result, err error) {
	start := time.Now()

	if err := plan.Validate(); err != nil {
		return nil, err
	}
	n, err := dialect.NamesFor(plan.Table)
	if err != nil {
		return nil, PlanError.Wrap(err)
	}

	conn, err := m.pool.Conn(ctx)
	if err != nil {
		return nil, ConnectionError.Wrap(err)
	}
	defer func() { err = errs.Combine(err, ConnectionError.Wrap(conn.Close())) }()

	cp := checkpoint.Checkpoint{Scope: m.opts.Scope, Table: plan.Table}
	if plan.Resume {
		stored, err := m.loadCheckpoint(ctx, plan.Table)
		if err != nil {
			return nil, err
		}
		if stored != nil {
			cp = *stored
			m.log.Info("resuming migration", zap.String("table", plan.Table), zap.Stringer("stage", cp.Stage))
		} else {
			m.log.Warn("no checkpoint found, starting from the beginning", zap.String("table", plan.Table))
		}
	}

	run := &run{Migrator: m, conn: conn, plan: plan, names: n, cp: cp,
		result: &Result{Table: plan.Table, Shadow: n.Shadow}}

	if run.cp.Stage < checkpoint.StageSwapped {
		if err := run.migrate(ctx); err != nil {
			return nil, err
		}
	} else {
		run.result.Swapped = true
	}

	if err := run.cleanup(ctx); err != nil {
		return nil, err
	}

	if m.opts.Checkpoints != nil {
		if err := m.opts.Checkpoints.Delete(ctx, m.opts.Scope, plan.Table); err != nil {
			return nil, err
		}
	}

	run.result.Elapsed = time.Since(start)
	m.log.Info("migration completed",
		zap.String("table", plan.Table),
		zap.Int64("rows_copied", run.result.RowsCopied),
		zap.Int64("records_applied", run.result.RecordsApplied),
		zap.Bool("swapped", run.result.Swapped),
		zap.Duration("elapsed", run.result.Elapsed))

	return run.result, nil
}

// Cleanup removes the triggers, shadow table, audit table and checkpoint of a
// failed run. Objects that do not exist are skipped.
func (m *Migrator) Cleanup(ctx context.Context, table string) (err error) {
	n, err := dialect.NamesFor(table)
	if err != nil {
		return PlanError.Wrap(err)
	}

	conn, err := m.pool.Conn(ctx)
	if err != nil {
		return ConnectionError.Wrap(err)
	}
	defer func() { err = errs.Combine(err, ConnectionError.Wrap(conn.Close())) }()

	if err := m.audit.Teardown(ctx, conn, n, n.Table); err != nil {
		return err
	}
	if err := m.cutover.DropTable(ctx, conn, n.Shadow); err != nil {
		return err
	}
	if err := m.cutover.DropTable(ctx, conn, n.Audit); err != nil {
		return err
	}
	if m.opts.Checkpoints != nil {
		if err := m.opts.Checkpoints.Delete(ctx, m.opts.Scope, table); err != nil {
			return err
		}
	}

	m.log.Info("cleanup completed", zap.String("table", table))
	return nil
}

// Script introspects the source table and returns the statements a run of
// plan would issue, without executing any of them. Copy and replay statements
// use the source columns since the shadow table does not exist yet.
func (m *Migrator) Script(ctx context.Context, plan Plan) (_ []Step, err error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	n, err := dialect.NamesFor(plan.Table)
	if err != nil {
		return nil, PlanError.Wrap(err)
	}

	conn, err := m.pool.Conn(ctx)
	if err != nil {
		return nil, ConnectionError.Wrap(err)
	}
	defer func() { err = errs.Combine(err, ConnectionError.Wrap(conn.Close())) }()

	source, err := loadTable(ctx, m.opts.Introspector, conn, n.Table)
	if err != nil {
		return nil, err
	}

	d := m.opts.Dialect
	pk := source.PrimaryKey[0]
	columns := source.ColumnNames()

	install := append([]string{d.CreateAuditTable(n)}, d.CreateTriggers(n, columns, pk)...)

	shadow := []string{d.CloneTable(n.Table, n.Shadow)}
	for _, alter := range plan.Alterations {
		shadow = append(shadow, d.AlterTable(n.Shadow, alter))
	}

	steps := []Step{
		{Stage: "install", Statements: install},
		{Stage: "shadow", Statements: shadow},
		{Stage: "backfill", Statements: []string{
			d.KeyBounds(n.Table, pk),
			d.CopyRange(n.Table, n.Shadow, columns, pk),
		}},
		{Stage: "replay", Statements: []string{
			d.AuditCeiling(n),
			d.AuditBatch(n),
			d.UpsertFromSource(n.Table, n.Shadow, columns, pk),
			d.UpsertRow(n.Shadow, columns, pk),
			d.DeleteByKey(n.Shadow, pk),
			d.DeleteAuditRecord(n),
		}},
	}

	host := n.Table
	if plan.SwapTables {
		steps = append(steps, Step{Stage: "cutover", Statements: d.Swap(n)})
		host = n.Old
	}

	var cleanup []string
	if plan.DropTriggers {
		cleanup = append(cleanup, d.DropTriggers(n, host)...)
	}
	if plan.SwapTables && plan.DropOldTable {
		cleanup = append(cleanup, d.DropTable(n.Old))
	}
	if plan.DropAuditTable {
		cleanup = append(cleanup, d.DropTable(n.Audit))
	}
	if len(cleanup) > 0 {
		steps = append(steps, Step{Stage: "cleanup", Statements: cleanup})
	}

	return steps, nil
}

func (m *Migrator) loadCheckpoint(ctx context.Context, table string) (*checkpoint.Checkpoint, error) {
	if m.opts.Checkpoints == nil {
		return nil, nil
	}
	return m.opts.Checkpoints.Load(ctx, m.opts.Scope, table)
}

// run carries the state of a single Run call.
type run struct {
	*Migrator
	conn   *sql.Conn
	plan   Plan
	names  dialect.Names
	cp     checkpoint.Checkpoint
	result *Result
}

func (r *run) save(ctx context.Context, stage checkpoint.Stage) error {
	if stage > r.cp.Stage {
		r.cp.Stage = stage
	}
	if r.opts.Checkpoints == nil {
		return nil
	}
	r.cp.UpdatedAt = time.Now().UTC()
	return r.opts.Checkpoints.Save(ctx, r.cp)
}

func (r *run) migrate(ctx context.Context) error {
	n := r.names

	source, err := loadTable(ctx, r.opts.Introspector, r.conn, n.Table)
	if err != nil {
		return err
	}

	if r.cp.Stage < checkpoint.StageInstalled {
		if err := r.audit.Install(ctx, r.conn, n, source); err != nil {
			return err
		}
		if err := r.save(ctx, checkpoint.StageInstalled); err != nil {
			return err
		}
	}

	if r.cp.Stage < checkpoint.StageShadowBuilt {
		if err := r.shadow.Build(ctx, r.conn, n, r.plan.Alterations); err != nil {
			return err
		}
		if err := r.save(ctx, checkpoint.StageShadowBuilt); err != nil {
			return err
		}
	}

	shadow, err := loadTable(ctx, r.opts.Introspector, r.conn, n.Shadow)
	if err != nil {
		return err
	}
	pk := source.PrimaryKey[0]
	if shadow.PrimaryKey[0] != pk {
		return PlanError.New("alterations changed the primary key from %s to %s", pk, shadow.PrimaryKey[0])
	}
	columns := source.SharedColumns(shadow)

	if r.cp.Stage < checkpoint.StageBackfilled {
		copied, err := r.backfill(ctx, pk, columns)
		if err != nil {
			return err
		}
		r.result.RowsCopied = copied
		if err := r.save(ctx, checkpoint.StageBackfilled); err != nil {
			return err
		}
	}

	target := ReplayTarget{
		Names:   n,
		Columns: columns,
		PK:      pk,
		Kinds:   ColumnKinds(r.opts.Dialect, source),
		OnBatch: func(ctx context.Context, lastID int64) error {
			r.cp.ReplayCursor = lastID
			return r.save(ctx, r.cp.Stage)
		},
	}

	applied, err := r.replayer.Drain(ctx, r.conn, target)
	r.result.RecordsApplied += applied
	if err != nil {
		return err
	}
	if err := r.save(ctx, checkpoint.StageReplayed); err != nil {
		return err
	}

	if !r.plan.SwapTables {
		return nil
	}

	// Narrow the window between the last drain and the rename. Writes landing
	// after this drain stay in the audit log.
	applied, err = r.replayer.Drain(ctx, r.conn, target)
	r.result.RecordsApplied += applied
	if err != nil {
		return err
	}

	if err := r.cutover.Swap(ctx, r.conn, n); err != nil {
		return err
	}
	r.result.Swapped = true
	return r.save(ctx, checkpoint.StageSwapped)
}

func (r *run) backfill(ctx context.Context, pk string, columns []string) (int64, error) {
	n := r.names
	job := CopyJob{
		Source:    n.Table,
		Shadow:    n.Shadow,
		Columns:   columns,
		PK:        pk,
		ChunkSize: r.plan.ChunkSize,
		OnChunk: func(ctx context.Context, cr ChunkRange, _ int64) error {
			r.cp.HighWater = cr.High
			r.cp.HasHighWater = true
			return r.save(ctx, checkpoint.StageBackfilling)
		},
	}

	var span ChunkRange
	from := int64(0)

	if r.cp.Stage == checkpoint.StageBackfilling {
		span = ChunkRange{Low: r.cp.BoundLow, High: r.cp.BoundHigh}
		from = span.Low
		if r.cp.HasHighWater {
			if r.cp.HighWater >= span.High {
				return 0, nil
			}
			from = r.cp.HighWater + 1
		}
		r.log.Info("resuming backfill", zap.Int64("from", from), zap.Int64("max", span.High))
	} else {
		var ok bool
		var err error
		span, ok, err = r.copier.Bounds(ctx, r.conn, n.Table, pk)
		if err != nil {
			return 0, err
		}
		if !ok {
			r.log.Info("no data found in the source table", zap.String("table", n.Table))
			return 0, nil
		}
		r.cp.BoundLow, r.cp.BoundHigh = span.Low, span.High
		r.cp.HasHighWater = false
		if err := r.save(ctx, checkpoint.StageBackfilling); err != nil {
			return 0, err
		}
		from = span.Low
	}

	return r.copier.CopyRanges(ctx, r.conn, job, span, from)
}

func (r *run) cleanup(ctx context.Context) error {
	n := r.names

	if r.plan.DropTriggers {
		host := n.Table
		if r.result.Swapped {
			host = n.Old
		}
		if err := r.audit.Teardown(ctx, r.conn, n, host); err != nil {
			return err
		}
	}
	if r.result.Swapped && r.plan.DropOldTable {
		if err := r.cutover.DropTable(ctx, r.conn, n.Old); err != nil {
			return err
		}
	}
	if r.plan.DropAuditTable {
		if err := r.cutover.DropTable(ctx, r.conn, n.Audit); err != nil {
			return err
		}
	}
	return nil
}

var _ db.TxQuerier = (*sql.Conn)(nil)
