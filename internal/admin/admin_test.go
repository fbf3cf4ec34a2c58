package admin

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SupportChat/internal/apitest"
	"SupportChat/internal/backend"
	"SupportChat/internal/localstore"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func newTestSession(t *testing.T, srv *apitest.Server) (*SessionStore, *backend.Client) {
	t.Helper()
	client := backend.New(srv.URL)
	return NewSessionStore(localstore.NewMemory(), client, nil), client
}

func TestSessionStore_LoginRestoreLogout(t *testing.T) {
	ctx := context.Background()
	srv := apitest.New(t)
	store, _ := newTestSession(t, srv)

	sess, err := store.Restore(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)

	sess, err = store.Login(ctx, apitest.AdminUsername, apitest.AdminPassword)
	require.NoError(t, err)
	assert.Equal(t, apitest.AdminUsername, sess.Username)
	assert.NotEmpty(t, sess.Token)

	restored, err := store.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, sess, restored)

	require.NoError(t, store.Logout(ctx))
	restored, err = store.Restore(ctx)
	require.NoError(t, err)
	assert.Nil(t, restored)
}

func TestSessionStore_InvalidCredentials(t *testing.T) {
	srv := apitest.New(t)
	store, _ := newTestSession(t, srv)

	_, err := store.Login(context.Background(), "admin", "nope")
	var authErr *backend.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "Invalid credentials", authErr.Error())
}

func TestSessionStore_RestoreNeedsBothKeys(t *testing.T) {
	ctx := context.Background()
	mem := localstore.NewMemory()
	store := NewSessionStore(mem, nil, nil)

	require.NoError(t, mem.Set(ctx, keyToken, "admin-token-1"))
	sess, err := store.Restore(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)

	require.NoError(t, mem.Set(ctx, keyUsername, "admin"))
	sess, err = store.Restore(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "admin", sess.Username)
}

func loggedInDashboard(t *testing.T, srv *apitest.Server) (*Dashboard, *bytes.Buffer) {
	t.Helper()
	store, client := newTestSession(t, srv)
	sess, err := store.Login(context.Background(), apitest.AdminUsername, apitest.AdminPassword)
	require.NoError(t, err)
	var out bytes.Buffer
	return NewDashboard(client, sess, &out, nil), &out
}

func TestDashboard_Analytics(t *testing.T) {
	srv := apitest.New(t)
	uid, _ := srv.AddUser("u@example.com", "Uma", "pw")
	srv.AddConversation(uid, "Billing", "hi", "hello")
	srv.SetUsage([]apitest.UsagePoint{
		{Date: "2026-10-01", Tokens: 1200, Cost: 0.0125, Requests: 3},
		{Date: "2026-10-02", Tokens: 800, Cost: 0.0075, Requests: 2},
	})
	d, out := loggedInDashboard(t, srv)

	require.NoError(t, d.Analytics(context.Background()))

	text := out.String()
	assert.Contains(t, text, "Total Users:     1")
	assert.Contains(t, text, "Conversations:   1")
	assert.Contains(t, text, "Total Tokens:    2,000")
	assert.Contains(t, text, "Total Cost:      $0.0200")
	assert.Contains(t, text, "2026-10-01")
	assert.Contains(t, text, "1,200")
	assert.Contains(t, text, "u@example.com")
	assert.Contains(t, text, "Uma")
	assert.NotContains(t, text, "No users yet")
}

func TestDashboard_AnalyticsEmptyAndPartialFailure(t *testing.T) {
	srv := apitest.New(t)
	d, out := loggedInDashboard(t, srv)
	srv.Fail(http.MethodGet, "/api/admin/stats", http.StatusInternalServerError)

	err := d.Analytics(context.Background())
	require.Error(t, err)

	text := out.String()
	assert.Contains(t, text, "No users yet")
	assert.Contains(t, text, "No usage recorded")
	assert.Contains(t, text, "Total Tokens:    0")
}

func TestDashboard_SettingsShowAndUpdate(t *testing.T) {
	ctx := context.Background()
	srv := apitest.New(t)
	d, out := loggedInDashboard(t, srv)

	s, err := d.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, srv.Settings().WelcomeMessage, s.WelcomeMessage)
	assert.Contains(t, out.String(), "Tone Instructions")

	saved, err := d.UpdateSettings(ctx, backend.Settings{WelcomeMessage: "Hi there!"})
	require.NoError(t, err)
	assert.Equal(t, "Hi there!", saved.WelcomeMessage)
	assert.Equal(t, "Be friendly and concise.", saved.ToneInstructions)
	assert.Equal(t, "Hi there!", srv.Settings().WelcomeMessage)
	assert.Contains(t, out.String(), MsgSettingsSaved)
	assert.Equal(t, 1, srv.CountRequests(http.MethodGet, "/api/admin/settings"), "update merges over the shown snapshot")
}

func TestDashboard_UpdateWithoutPriorLoad(t *testing.T) {
	srv := apitest.New(t)
	d, _ := loggedInDashboard(t, srv)

	saved, err := d.UpdateSettings(context.Background(), backend.Settings{ToneInstructions: "Formal."})
	require.NoError(t, err)
	assert.Equal(t, "Formal.", saved.ToneInstructions)
	assert.Equal(t, "Hello! How can I help you today?", saved.WelcomeMessage)
	assert.Equal(t, 1, srv.CountRequests(http.MethodGet, "/api/admin/settings"))
}

func TestDashboard_UpdateFailures(t *testing.T) {
	ctx := context.Background()
	srv := apitest.New(t)
	d, out := loggedInDashboard(t, srv)

	srv.Fail(http.MethodPost, "/api/admin/settings", http.StatusInternalServerError)
	_, err := d.UpdateSettings(ctx, backend.Settings{WelcomeMessage: "x"})
	require.Error(t, err)
	assert.Contains(t, out.String(), MsgSettingsSaveFailed)

	srv.Fail(http.MethodGet, "/api/admin/settings", http.StatusInternalServerError)
	_, err = d.Settings(ctx)
	require.Error(t, err)
	assert.Contains(t, out.String(), MsgSettingsLoadFailed)
}

func TestDashboard_UnauthorizedToken(t *testing.T) {
	srv := apitest.New(t)
	var out bytes.Buffer
	d := NewDashboard(backend.New(srv.URL), &Session{Username: "admin", Token: "stale"}, &out, nil)

	err := d.Analytics(context.Background())
	require.Error(t, err)
	assert.True(t, backend.IsUnauthorized(err))
}

func TestValidateSettings(t *testing.T) {
	err := ValidateSettings(backend.Settings{WelcomeMessage: "a", FallbackMessage: " ", ToneInstructions: ""})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIncompleteSettings))
	assert.Contains(t, err.Error(), "fallback_message, tone_instructions")

	assert.NoError(t, ValidateSettings(backend.Settings{WelcomeMessage: "a", FallbackMessage: "b", ToneInstructions: "c"}))
}

func TestMergeSettings(t *testing.T) {
	cur := backend.Settings{WelcomeMessage: "w", FallbackMessage: "f", ToneInstructions: "t"}
	got := MergeSettings(cur, backend.Settings{FallbackMessage: "F"})
	assert.Equal(t, backend.Settings{WelcomeMessage: "w", FallbackMessage: "F", ToneInstructions: "t"}, got)
}

func TestFormatThousands(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-12345, "-12,345"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatThousands(tt.in))
	}
	assert.Equal(t, "$0.0125", FormatCost(0.0125))
}
