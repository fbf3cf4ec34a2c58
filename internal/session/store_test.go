package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SupportChat/internal/localstore"
)

func TestStore_LoginThenRestore(t *testing.T) {
	ctx := context.Background()
	storage := localstore.NewMemory()
	store := NewStore(storage, nil)

	sess, err := store.Login(ctx, "tok-1", Identity{ID: 7, Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)
	assert.True(t, sess.IsAuthenticated)

	restored, err := store.Restore(ctx)
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, &Session{
		UserID:          7,
		DisplayName:     "Ada",
		Email:           "ada@example.com",
		AuthToken:       "tok-1",
		IsAuthenticated: true,
	}, restored)
}

func TestStore_RestoreInvalidPairs(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
	}{
		{"nothing stored", map[string]string{}},
		{"token only", map[string]string{KeyToken: "tok"}},
		{"identity only", map[string]string{KeyUser: `{"id":1,"name":"A","email":"a@x"}`}},
		{"empty token", map[string]string{KeyToken: "", KeyUser: `{"id":1}`}},
		{"undefined identity", map[string]string{KeyToken: "tok", KeyUser: "undefined"}},
		{"null identity", map[string]string{KeyToken: "tok", KeyUser: "null"}},
		{"garbage identity", map[string]string{KeyToken: "tok", KeyUser: "{not json"}},
		{"wrong shape identity", map[string]string{KeyToken: "tok", KeyUser: `["a","b"]`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			storage := localstore.NewMemory()
			for k, v := range tt.values {
				require.NoError(t, storage.Set(ctx, k, v))
			}

			sess, err := NewStore(storage, nil).Restore(ctx)
			require.NoError(t, err)
			assert.Nil(t, sess)

			_, hasToken, _ := storage.Get(ctx, KeyToken)
			_, hasUser, _ := storage.Get(ctx, KeyUser)
			assert.False(t, hasToken, "token must be cleared")
			assert.False(t, hasUser, "identity must be cleared")
		})
	}
}

func TestStore_RestoreDropsActiveConversationOnParseFailure(t *testing.T) {
	ctx := context.Background()
	storage := localstore.NewMemory()
	require.NoError(t, storage.Set(ctx, KeyToken, "tok"))
	require.NoError(t, storage.Set(ctx, KeyUser, "{"))
	require.NoError(t, storage.Set(ctx, KeyConversation, "c-1"))

	store := NewStore(storage, nil)
	sess, err := store.Restore(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)

	id, err := store.ActiveConversation(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Equal(t, 0, storage.Len())
}

func TestStore_RestoreDropsOrphanedActiveConversation(t *testing.T) {
	ctx := context.Background()
	storage := localstore.NewMemory()
	require.NoError(t, storage.Set(ctx, KeyConversation, "c-other"))

	store := NewStore(storage, nil)
	sess, err := store.Restore(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)

	id, err := store.ActiveConversation(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestStore_LogoutClearsEverything(t *testing.T) {
	ctx := context.Background()
	storage := localstore.NewMemory()
	store := NewStore(storage, nil)

	_, err := store.Login(ctx, "tok", Identity{ID: 1, Name: "A"})
	require.NoError(t, err)
	require.NoError(t, store.SetActiveConversation(ctx, "c-9"))
	assert.Equal(t, 3, storage.Len())

	require.NoError(t, store.Logout(ctx))
	assert.Equal(t, 0, storage.Len())

	sess, err := store.Restore(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestStore_ActiveConversation(t *testing.T) {
	ctx := context.Background()
	store := NewStore(localstore.NewMemory(), nil)

	id, err := store.ActiveConversation(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, store.SetActiveConversation(ctx, "abc"))
	id, err = store.ActiveConversation(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	require.NoError(t, store.SetActiveConversation(ctx, ""))
	id, err = store.ActiveConversation(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestStore_LoginRejectsEmptyToken(t *testing.T) {
	_, err := NewStore(localstore.NewMemory(), nil).Login(context.Background(), "", Identity{})
	assert.Error(t, err)
}

func TestStore_SQLiteBacked(t *testing.T) {
	ctx := context.Background()
	db, err := localstore.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db.Namespace(localstore.NamespaceChat), nil)
	_, err = store.Login(ctx, "tok", Identity{ID: 3, Name: "Lin", Email: "lin@example.com"})
	require.NoError(t, err)

	// A second store over the same database sees the same session, as after a restart.
	again := NewStore(db.Namespace(localstore.NamespaceChat), nil)
	sess, err := again.Restore(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "Lin", sess.DisplayName)
}

func TestParseIdentity_ParseError(t *testing.T) {
	_, err := parseIdentity("null")
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.ErrorIs(t, err, errNullIdentity)
}
