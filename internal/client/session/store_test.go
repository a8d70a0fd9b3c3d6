package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *SQLiteStore {
	t.Helper()
	store, db, err := Open(context.Background(), filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store
}

func TestSQLiteStore_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	store := openTemp(t)

	_, err := store.Load(ctx, "http://a")
	require.ErrorIs(t, err, common.ErrNotFound)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, Session{ServerURL: "http://a", UserName: "alice", Token: "t1", SavedAt: at}))
	require.NoError(t, store.Save(ctx, Session{ServerURL: "http://b", UserName: "bob", Token: "t2"}))

	got, err := store.Load(ctx, "http://a")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserName)
	assert.Equal(t, "t1", got.Token)
	assert.True(t, at.Equal(got.SavedAt))

	require.NoError(t, store.Save(ctx, Session{ServerURL: "http://a", UserName: "alice", Token: "t3"}))
	got, err = store.Load(ctx, "http://a")
	require.NoError(t, err)
	assert.Equal(t, "t3", got.Token)

	require.NoError(t, store.Delete(ctx, "http://a"))
	_, err = store.Load(ctx, "http://a")
	require.ErrorIs(t, err, common.ErrNotFound)

	got, err = store.Load(ctx, "http://b")
	require.NoError(t, err)
	assert.Equal(t, "t2", got.Token)
}

func TestOpen_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")

	_, db, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	store, db, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, store.Delete(context.Background(), "http://none"))
}
