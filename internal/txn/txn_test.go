package txn

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quarry/internal/schema"
	"github.com/roach88/quarry/internal/storage"
)

func openStore(t *testing.T) *storage.SQLite {
	t.Helper()
	reg, err := schema.NewRegistry([]*schema.Entity{
		{
			Name: "account",
			Fields: []schema.Field{
				{Name: "id", Type: schema.TypeString, Primary: true},
				{Name: "balance", Type: schema.TypeInt},
			},
		},
	})
	require.NoError(t, err)
	s, err := storage.Open(":memory:", reg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func balance(t *testing.T, q storage.Querier, id string) int64 {
	t.Helper()
	rows, err := q.Query(context.Background(), `SELECT "balance" FROM "account" WHERE "id" = ?`, id)
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next(), "account %s not found", id)
	var n int64
	require.NoError(t, rows.Scan(&n))
	return n
}

func insertAccount(t *testing.T, q storage.Querier, id string, balance int64) {
	t.Helper()
	_, err := q.Exec(context.Background(), `INSERT INTO "account" ("id", "balance") VALUES (?, ?)`, id, balance)
	require.NoError(t, err)
}

func TestHandle_ReadYourWrites(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	h, err := Begin(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, StateActive, h.State())
	assert.NotEmpty(t, h.ID())

	insertAccount(t, h, "a1", 100)
	assert.Equal(t, int64(100), balance(t, h, "a1"))

	require.NoError(t, h.Commit())
	assert.Equal(t, StateCommitted, h.State())
	assert.Equal(t, int64(100), balance(t, store, "a1"))
}

func TestHandle_RollbackDiscards(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	h, err := Begin(ctx, store)
	require.NoError(t, err)
	insertAccount(t, h, "a1", 100)
	require.NoError(t, h.Rollback())
	assert.Equal(t, StateRolledBack, h.State())

	rows, err := store.Query(ctx, `SELECT COUNT(*) FROM "account"`)
	require.NoError(t, err)
	defer rows.Close()
	rows.Next()
	var n int
	require.NoError(t, rows.Scan(&n))
	assert.Equal(t, 0, n)
}

func TestHandle_RollbackIdempotent(t *testing.T) {
	store := openStore(t)
	h, err := Begin(context.Background(), store)
	require.NoError(t, err)

	require.NoError(t, h.Rollback())
	require.NoError(t, h.Rollback())
	assert.Equal(t, StateRolledBack, h.State())
}

func TestHandle_RollbackAfterCommit(t *testing.T) {
	store := openStore(t)
	h, err := Begin(context.Background(), store)
	require.NoError(t, err)

	require.NoError(t, h.Commit())
	// Safe in defers on every exit path.
	require.NoError(t, h.Rollback())
	assert.Equal(t, StateCommitted, h.State())
}

func TestHandle_UseAfterClose(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	h, err := Begin(ctx, store)
	require.NoError(t, err)
	require.NoError(t, h.Commit())

	_, err = h.Exec(ctx, `INSERT INTO "account" ("id", "balance") VALUES (?, ?)`, "a1", 1)
	require.Error(t, err)
	assert.True(t, IsAlreadyClosed(err))

	_, err = h.Query(ctx, `SELECT 1`)
	assert.True(t, IsAlreadyClosed(err))

	err = h.Commit()
	assert.True(t, IsAlreadyClosed(err))
}

func TestRun_CommitsOnSuccess(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	err := Run(ctx, store, func(h *Handle) error {
		insertAccount(t, h, "a1", 250)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(250), balance(t, store, "a1"))
}

func TestRun_RollsBackOnError(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := Run(ctx, store, func(h *Handle) error {
		insertAccount(t, h, "a1", 250)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	rows, err := store.Query(ctx, `SELECT COUNT(*) FROM "account"`)
	require.NoError(t, err)
	defer rows.Close()
	rows.Next()
	var n int
	require.NoError(t, rows.Scan(&n))
	assert.Equal(t, 0, n, "no partial writes survive a failed unit of work")
}

func TestRun_SequentialUnits(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	insertAccount(t, store, "a1", 2)

	// Two debits in separate units of work both land.
	for i := 0; i < 2; i++ {
		err := Run(ctx, store, func(h *Handle) error {
			_, err := h.Exec(ctx, `UPDATE "account" SET "balance" = "balance" - ? WHERE "id" = ?`, 1, "a1")
			return err
		})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(0), balance(t, store, "a1"))
}
