package osc

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/nnnLik/a-osc/internal/checkpoint"
	"github.com/nnnLik/a-osc/internal/db"
	"github.com/nnnLik/a-osc/internal/dialect"
	"github.com/nnnLik/a-osc/internal/schema"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, mock
}

func mustNames(t *testing.T, table string) dialect.Names {
	t.Helper()
	n, err := dialect.NamesFor(table)
	require.NoError(t, err)
	return n
}

func usersTable(name string, columns ...string) *schema.Table {
	table := &schema.Table{
		Name:       name,
		Columns:    []schema.Column{{Name: "id", Type: "bigint", DataType: "bigint"}},
		PrimaryKey: []string{"id"},
	}
	for _, col := range columns {
		table.Columns = append(table.Columns, schema.Column{Name: col, Type: "varchar(255)", DataType: "varchar", Nullable: true})
	}
	return table
}

// fakeIntrospector serves table definitions from memory.
type fakeIntrospector map[string]*schema.Table

func (f fakeIntrospector) Table(_ context.Context, _ db.Querier, name string) (*schema.Table, error) {
	table, ok := f[name]
	if !ok {
		return nil, db.ErrTableNotFound
	}
	return table, nil
}

// memoryStore keeps checkpoints in a map and records every saved stage.
type memoryStore struct {
	checkpoints map[string]checkpoint.Checkpoint
	saved       []checkpoint.Stage
	deleted     int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{checkpoints: map[string]checkpoint.Checkpoint{}}
}

func (s *memoryStore) Load(_ context.Context, scope, table string) (*checkpoint.Checkpoint, error) {
	cp, ok := s.checkpoints[scope+"/"+table]
	if !ok {
		return nil, nil
	}
	return &cp, nil
}

func (s *memoryStore) Save(_ context.Context, cp checkpoint.Checkpoint) error {
	s.checkpoints[cp.Scope+"/"+cp.Table] = cp
	s.saved = append(s.saved, cp.Stage)
	return nil
}

func (s *memoryStore) Delete(_ context.Context, scope, table string) error {
	delete(s.checkpoints, scope+"/"+table)
	s.deleted++
	return nil
}
