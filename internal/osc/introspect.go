package osc

import (
	"context"
	"errors"
	"fmt"

	"github.com/nnnLik/a-osc/internal/db"
	"github.com/nnnLik/a-osc/internal/schema"
)

// Introspector reads a table's columns and primary key.
type Introspector interface {
	Table(ctx context.Context, q db.Querier, name string) (*schema.Table, error)
}

// loadTable introspects name and checks it has a single integer primary key.
func loadTable(ctx context.Context, intro Introspector, q db.Querier, name string) (*schema.Table, error) {
	table, err := intro.Table(ctx, q, name)
	if errors.Is(err, db.ErrTableNotFound) {
		return nil, PlanError.New("table %s does not exist", name)
	}
	if err != nil {
		return nil, DriverError.Wrap(fmt.Errorf("introspect %s: %w", name, err))
	}

	if len(table.PrimaryKey) != 1 {
		return nil, PlanError.New("table %s must have a single-column primary key, has %d columns", name, len(table.PrimaryKey))
	}
	pk, _ := table.Column(table.PrimaryKey[0])
	if !schema.IsIntegerType(pk.DataType) {
		return nil, PlanError.New("primary key %s.%s is %s, not an integer", name, pk.Name, pk.Type)
	}
	return table, nil
}
