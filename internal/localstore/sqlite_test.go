package localstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state", "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLite_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t).Namespace(NamespaceChat)

	_, ok, err := s.Get(ctx, "token")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "token", "abc"))
	require.NoError(t, s.Set(ctx, "token", "def"))

	v, ok, err := s.Get(ctx, "token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "def", v)

	require.NoError(t, s.Delete(ctx, "token", "missing"))
	_, ok, err = s.Get(ctx, "token")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLite_NamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	chat := db.Namespace(NamespaceChat)
	admin := db.Namespace(NamespaceAdmin)

	require.NoError(t, chat.Set(ctx, "token", "user-token"))
	require.NoError(t, admin.Set(ctx, "token", "admin-token"))

	v, _, err := chat.Get(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, "user-token", v)

	require.NoError(t, admin.Delete(ctx, "token"))
	v, ok, err := chat.Get(ctx, "token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "user-token", v)
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "local.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Namespace(NamespaceChat).Set(ctx, "conversationId", "c-1"))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	v, ok, err := db.Namespace(NamespaceChat).Get(ctx, "conversationId")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "c-1", v)
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Set(ctx, "a", "1"))
	require.NoError(t, m.Set(ctx, "b", "2"))
	assert.Equal(t, 2, m.Len())

	require.NoError(t, m.Delete(ctx, "a", "b", "c"))
	assert.Equal(t, 0, m.Len())
}
