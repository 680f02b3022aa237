package osc

import (
	"context"

	"go.uber.org/zap"

	"github.com/nnnLik/a-osc/internal/db"
	"github.com/nnnLik/a-osc/internal/dialect"
	"github.com/nnnLik/a-osc/internal/schema"
)

// AuditLayer installs the change log and the triggers that feed it.
type AuditLayer struct {
	log     *zap.Logger
	dialect dialect.Dialect
}

// NewAuditLayer creates an audit layer
func NewAuditLayer(log *zap.Logger, d dialect.Dialect) *AuditLayer {
	return &AuditLayer{log: log, dialect: d}
}

// Install creates the audit table and the insert, update and delete triggers on
// the source table. It fails with DuplicateObjectError if any of them exists.
// Every statement has returned before Install returns, so the triggers are
// live before backfill reads its first row.
func (a *AuditLayer) Install(ctx context.Context, q db.Querier, n dialect.Names, source *schema.Table) error {
	a.log.Info("creating audit table", zap.String("audit", n.Audit))
	if _, err := q.ExecContext(ctx, a.dialect.CreateAuditTable(n)); err != nil {
		return classify(a.dialect, err, "create audit table %s", n.Audit)
	}

	a.log.Info("creating triggers", zap.String("table", n.Table), zap.Strings("triggers", n.Triggers()))
	for _, stmt := range a.dialect.CreateTriggers(n, source.ColumnNames(), source.PrimaryKey[0]) {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return classify(a.dialect, err, "create triggers on %s", n.Table)
		}
	}
	return nil
}

// Teardown drops the triggers from host. Missing triggers are not an error.
func (a *AuditLayer) Teardown(ctx context.Context, q db.Querier, n dialect.Names, host string) error {
	a.log.Info("dropping triggers", zap.String("host", host))
	for _, stmt := range a.dialect.DropTriggers(n, host) {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return classify(a.dialect, err, "drop triggers on %s", host)
		}
	}
	return nil
}
