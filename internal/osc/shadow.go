package osc

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nnnLik/a-osc/internal/db"
	"github.com/nnnLik/a-osc/internal/dialect"
)

// ShadowBuilder creates the altered, empty copy of the source table.
type ShadowBuilder struct {
	log     *zap.Logger
	dialect dialect.Dialect
}

// NewShadowBuilder creates a shadow table builder
func NewShadowBuilder(log *zap.Logger, d dialect.Dialect) *ShadowBuilder {
	return &ShadowBuilder{log: log, dialect: d}
}

// Build clones the source structure and applies alterations in order. The
// first failing alteration aborts; the shadow table is left as it is.
func (b *ShadowBuilder) Build(ctx context.Context, q db.Querier, n dialect.Names, alterations []string) error {
	b.log.Info("creating shadow table", zap.String("shadow", n.Shadow))
	if _, err := q.ExecContext(ctx, b.dialect.CloneTable(n.Table, n.Shadow)); err != nil {
		return classify(b.dialect, err, "clone %s into %s", n.Table, n.Shadow)
	}

	for i, alter := range alterations {
		b.log.Info("altering shadow table", zap.Int("step", i+1), zap.String("alter", alter))
		if _, err := q.ExecContext(ctx, b.dialect.AlterTable(n.Shadow, alter)); err != nil {
			return AlterationError.Wrap(fmt.Errorf("alteration %d (%s): %w", i+1, alter, err))
		}
	}
	return nil
}
