package osc

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nnnLik/a-osc/internal/dialect"
)

func TestAuditLayerInstall(t *testing.T) {
	ctx := context.Background()
	source := usersTable("users", "name", "email")
	n := mustNames(t, "users")

	for _, d := range []dialect.Dialect{dialect.MySQL{}, dialect.Postgres{}} {
		t.Run(d.Name(), func(t *testing.T) {
			conn, mock := newMock(t)
			mock.ExpectExec(d.CreateAuditTable(n)).WillReturnResult(sqlmock.NewResult(0, 0))
			for _, stmt := range d.CreateTriggers(n, source.ColumnNames(), "id") {
				mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
			}

			err := NewAuditLayer(zaptest.NewLogger(t), d).Install(ctx, conn, n, source)
			require.NoError(t, err)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAuditLayerInstallDuplicate(t *testing.T) {
	ctx := context.Background()
	source := usersTable("users", "name")
	n := mustNames(t, "users")

	t.Run("mysql audit table exists", func(t *testing.T) {
		d := dialect.MySQL{}
		conn, mock := newMock(t)
		mock.ExpectExec(d.CreateAuditTable(n)).
			WillReturnError(&mysql.MySQLError{Number: 1050, Message: "Table '_users_audit' already exists"})

		err := NewAuditLayer(zaptest.NewLogger(t), d).Install(ctx, conn, n, source)
		require.Error(t, err)
		assert.True(t, DuplicateObjectError.Has(err))
		assert.False(t, DriverError.Has(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("postgres trigger exists", func(t *testing.T) {
		d := dialect.Postgres{}
		conn, mock := newMock(t)
		stmts := d.CreateTriggers(n, source.ColumnNames(), "id")
		mock.ExpectExec(d.CreateAuditTable(n)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(stmts[0]).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(stmts[1]).WillReturnError(&pgconn.PgError{Code: "42710", Message: `trigger "users_insert" already exists`})

		err := NewAuditLayer(zaptest.NewLogger(t), d).Install(ctx, conn, n, source)
		require.Error(t, err)
		assert.True(t, DuplicateObjectError.Has(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("other failure", func(t *testing.T) {
		d := dialect.MySQL{}
		conn, mock := newMock(t)
		mock.ExpectExec(d.CreateAuditTable(n)).WillReturnError(errors.New("access denied"))

		err := NewAuditLayer(zaptest.NewLogger(t), d).Install(ctx, conn, n, source)
		require.Error(t, err)
		assert.True(t, DriverError.Has(err))
		assert.False(t, DuplicateObjectError.Has(err))
	})
}

func TestAuditLayerTeardown(t *testing.T) {
	d := dialect.Postgres{}
	n := mustNames(t, "users")
	conn, mock := newMock(t)
	for _, stmt := range d.DropTriggers(n, n.Old) {
		mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	err := NewAuditLayer(zaptest.NewLogger(t), d).Teardown(context.Background(), conn, n, n.Old)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
