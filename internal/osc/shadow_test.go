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

func TestShadowBuilderBuild(t *testing.T) {
	ctx := context.Background()
	d := dialect.MySQL{}
	n := mustNames(t, "users")
	alterations := []string{"ADD COLUMN note TEXT", "DROP COLUMN legacy"}

	t.Run("applies alterations in order", func(t *testing.T) {
		conn, mock := newMock(t)
		mock.ExpectExec("CREATE TABLE `_users_new` LIKE `users`").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("ALTER TABLE `_users_new` ADD COLUMN note TEXT").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("ALTER TABLE `_users_new` DROP COLUMN legacy").WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, NewShadowBuilder(zaptest.NewLogger(t), d).Build(ctx, conn, n, alterations))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stops at failing alteration", func(t *testing.T) {
		conn, mock := newMock(t)
		mock.ExpectExec(d.CloneTable(n.Table, n.Shadow)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(d.AlterTable(n.Shadow, alterations[0])).WillReturnError(errors.New("syntax error"))

		err := NewShadowBuilder(zaptest.NewLogger(t), d).Build(ctx, conn, n, alterations)
		require.Error(t, err)
		assert.True(t, AlterationError.Has(err))
		assert.Contains(t, err.Error(), "alteration 1")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
