package osc

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nnnLik/a-osc/internal/dialect"
)

func TestCutoverSwapMySQL(t *testing.T) {
	d := dialect.MySQL{}
	n := mustNames(t, "users")
	conn, mock := newMock(t)
	mock.ExpectExec("RENAME TABLE `users` TO `users_old`, `_users_new` TO `users`").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewCutover(zaptest.NewLogger(t), d).Swap(context.Background(), conn, n))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCutoverSwapPostgres(t *testing.T) {
	d := dialect.Postgres{}
	n := mustNames(t, "users")
	stmts := d.Swap(n)
	require.Len(t, stmts, 3)

	t.Run("commits", func(t *testing.T) {
		conn, mock := newMock(t)
		mock.ExpectBegin()
		for _, stmt := range stmts {
			mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
		}
		mock.ExpectCommit()

		require.NoError(t, NewCutover(zaptest.NewLogger(t), d).Swap(context.Background(), conn, n))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on failure", func(t *testing.T) {
		conn, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(stmts[0]).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(stmts[1]).WillReturnError(errors.New("lock timeout"))
		mock.ExpectRollback()

		err := NewCutover(zaptest.NewLogger(t), d).Swap(context.Background(), conn, n)
		require.Error(t, err)
		assert.True(t, DriverError.Has(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCutoverDropTable(t *testing.T) {
	d := dialect.Postgres{}
	conn, mock := newMock(t)
	mock.ExpectExec(`DROP TABLE IF EXISTS "users_old"`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewCutover(zaptest.NewLogger(t), d).DropTable(context.Background(), conn, "users_old"))
	require.NoError(t, mock.ExpectationsWereMet())
}
