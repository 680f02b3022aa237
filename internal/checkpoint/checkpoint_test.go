package checkpoint

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	cp, err := store.Load(ctx, "mysql:shop", "users")
	require.NoError(t, err)
	assert.Nil(t, cp)

	saved := Checkpoint{
		Scope:     "mysql:shop",
		Table:     "users",
		Stage:     StageBackfilling,
		BoundLow:  1,
		BoundHigh: 2500,
		UpdatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save(ctx, saved))

	cp, err = store.Load(ctx, "mysql:shop", "users")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, StageBackfilling, cp.Stage)
	assert.Equal(t, int64(2500), cp.BoundHigh)
	assert.False(t, cp.HasHighWater)
	assert.True(t, saved.UpdatedAt.Equal(cp.UpdatedAt))

	saved.HighWater = 1000
	saved.HasHighWater = true
	saved.Stage = StageReplayed
	saved.ReplayCursor = 77
	require.NoError(t, store.Save(ctx, saved))

	cp, err = store.Load(ctx, "mysql:shop", "users")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, StageReplayed, cp.Stage)
	assert.True(t, cp.HasHighWater)
	assert.Equal(t, int64(1000), cp.HighWater)
	assert.Equal(t, int64(77), cp.ReplayCursor)
}

func TestSQLiteStoreScopes(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	require.NoError(t, store.Save(ctx, Checkpoint{Scope: "mysql:a", Table: "users", Stage: StageInstalled}))
	require.NoError(t, store.Save(ctx, Checkpoint{Scope: "mysql:b", Table: "users", Stage: StageSwapped}))

	a, err := store.Load(ctx, "mysql:a", "users")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, StageInstalled, a.Stage)

	require.NoError(t, store.Delete(ctx, "mysql:a", "users"))
	require.NoError(t, store.Delete(ctx, "mysql:a", "users"))

	a, err = store.Load(ctx, "mysql:a", "users")
	require.NoError(t, err)
	assert.Nil(t, a)

	b, err := store.Load(ctx, "mysql:b", "users")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, StageSwapped, b.Stage)
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "backfilling", StageBackfilling.String())
	assert.Equal(t, "swapped", StageSwapped.String())
	assert.Equal(t, "stage(42)", Stage(42).String())
}
