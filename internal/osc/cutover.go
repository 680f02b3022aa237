package osc

import (
	"context"
	"fmt"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/nnnLik/a-osc/internal/db"
	"github.com/nnnLik/a-osc/internal/dialect"
)

// Cutover swaps the shadow table in and removes what the migration left behind.
type Cutover struct {
	log     *zap.Logger
	dialect dialect.Dialect
}

// NewCutover creates a cutover stage
func NewCutover(log *zap.Logger, d dialect.Dialect) *Cutover {
	return &Cutover{log: log, dialect: d}
}

// Swap renames the source table to its old name and the shadow table to the
// source name in one atomic step.
func (c *Cutover) Swap(ctx context.Context, q db.TxQuerier, n dialect.Names) (err error) {
	c.log.Info("swapping tables", zap.String("table", n.Table), zap.String("shadow", n.Shadow), zap.String("old", n.Old))

	stmts := c.dialect.Swap(n)
	if !c.dialect.TransactionalDDL() || len(stmts) == 1 {
		for _, stmt := range stmts {
			if _, err := q.ExecContext(ctx, stmt); err != nil {
				return classify(c.dialect, err, "swap %s and %s", n.Table, n.Shadow)
			}
		}
		return nil
	}

	tx, err := q.BeginTx(ctx, nil)
	if err != nil {
		return DriverError.Wrap(fmt.Errorf("begin swap: %w", err))
	}
	committed := false
	defer func() {
		if !committed {
			err = errs.Combine(err, DriverError.Wrap(tx.Rollback()))
		}
	}()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return classify(c.dialect, err, "swap %s and %s", n.Table, n.Shadow)
		}
	}
	committed = true
	if err := tx.Commit(); err != nil {
		return DriverError.Wrap(fmt.Errorf("commit swap: %w", err))
	}
	return nil
}

// DropTable drops table if it exists.
func (c *Cutover) DropTable(ctx context.Context, q db.Querier, table string) error {
	c.log.Info("dropping table", zap.String("table", table))
	if _, err := q.ExecContext(ctx, c.dialect.DropTable(table)); err != nil {
		return classify(c.dialect, err, "drop table %s", table)
	}
	return nil
}
