package chatbot

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SupportChat/internal/apitest"
	"SupportChat/internal/chat"
	"SupportChat/internal/config"
	"SupportChat/internal/format"
	"SupportChat/internal/localstore"
	"SupportChat/internal/session"
)

func testConfig(t *testing.T, apiURL, statePath string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.API.BaseURL = apiURL
	cfg.Storage.Path = statePath
	return *cfg
}

func fixedPassword(pw string) func(string) (string, error) {
	return func(string) (string, error) { return pw, nil }
}

func runScript(t *testing.T, cfg config.Config, script string, opts ...Option) string {
	t.Helper()
	var out bytes.Buffer
	opts = append([]Option{WithIO(strings.NewReader(script), &out)}, opts...)
	cb, err := NewChatBot(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, cb.Run(context.Background()))
	return out.String()
}

func TestRun_LoginSendAndList(t *testing.T) {
	srv := apitest.New(t)
	srv.AddUser("u@example.com", "Uma", "pw")
	cfg := testConfig(t, srv.URL, filepath.Join(t.TempDir(), "state.db"))

	out := runScript(t, cfg, "l\nu@example.com\nhello there\n/list\n/whoami\n/quit\n", WithPasswordReader(fixedPassword("pw")))

	assert.Contains(t, out, "Signed in as Uma")
	assert.Contains(t, out, "Hello! How can I help you today?")
	assert.Contains(t, out, "echo: hello there")
	assert.Contains(t, out, "1. hello there")
	assert.Contains(t, out, "2 messages")
	assert.Contains(t, out, "Uma <u@example.com>")
	assert.Contains(t, out, "Goodbye!")
}

func TestRun_BadPasswordShowsDetailThenRetries(t *testing.T) {
	srv := apitest.New(t)
	srv.AddUser("u@example.com", "Uma", "pw")
	cfg := testConfig(t, srv.URL, filepath.Join(t.TempDir(), "state.db"))

	passwords := []string{"wrong", "pw"}
	reader := func(string) (string, error) {
		pw := passwords[0]
		passwords = passwords[1:]
		return pw, nil
	}

	out := runScript(t, cfg, "l\nu@example.com\nl\nu@example.com\n/quit\n", WithPasswordReader(reader))
	assert.Contains(t, out, "Invalid email or password")
	assert.Contains(t, out, "Signed in as Uma")
}

func TestRun_SignupThenRestoreOnNextStart(t *testing.T) {
	srv := apitest.New(t)
	cfg := testConfig(t, srv.URL, filepath.Join(t.TempDir(), "state.db"))

	out := runScript(t, cfg, "s\nNew User\nnew@example.com\nfirst question\n/quit\n", WithPasswordReader(fixedPassword("pw")))
	assert.Contains(t, out, "Signed in as New User")
	assert.Contains(t, out, "echo: first question")

	// Second run: no prompts, the last conversation is reopened.
	out = runScript(t, cfg, "/history\n/quit\n")
	assert.NotContains(t, out, "Log in or sign up?")
	assert.Contains(t, out, "Conversation: conv-1")
	assert.Contains(t, out, "first question")
}

func TestRun_CorruptSessionDoesNotResumePreviousConversation(t *testing.T) {
	srv := apitest.New(t)
	aliceID, _ := srv.AddUser("a@example.com", "Alice", "pw-a")
	aliceConv := srv.AddConversation(aliceID, "Alice private", "my card number", "noted")
	srv.AddUser("b@example.com", "Bob", "pw-b")
	statePath := filepath.Join(t.TempDir(), "state.db")

	ctx := context.Background()
	db, err := localstore.Open(statePath)
	require.NoError(t, err)
	chatNS := db.Namespace(localstore.NamespaceChat)
	require.NoError(t, chatNS.Set(ctx, session.KeyToken, "stale-token"))
	require.NoError(t, chatNS.Set(ctx, session.KeyUser, "undefined"))
	require.NoError(t, chatNS.Set(ctx, session.KeyConversation, aliceConv))
	require.NoError(t, db.Close())

	cfg := testConfig(t, srv.URL, statePath)
	out := runScript(t, cfg, "l\nb@example.com\n/whoami\n/quit\n", WithPasswordReader(fixedPassword("pw-b")))

	assert.Contains(t, out, "Signed in as Bob")
	assert.Contains(t, out, "Active conversation: (new)")
	assert.Contains(t, out, "Hello! How can I help you today?")
	assert.NotContains(t, out, "Failed to load conversation")
	assert.NotContains(t, out, "my card number")
	assert.Equal(t, 0, srv.CountRequests("GET", "/api/user/conversations/"+aliceConv+"/messages"))
}

func TestRun_HandoffBlocksInput(t *testing.T) {
	srv := apitest.New(t)
	srv.AddUser("u@example.com", "Uma", "pw")
	srv.SetReply(func(string) (string, bool) { return "Let me connect you with a human agent.", true })
	cfg := testConfig(t, srv.URL, filepath.Join(t.TempDir(), "state.db"))

	out := runScript(t, cfg, "l\nu@example.com\nrefund please\nstill there?\n/human\n/quit\n", WithPasswordReader(fixedPassword("pw")))

	assert.Contains(t, out, "Connect with Human")
	assert.Contains(t, out, "Chat taken over by an agent...")
	assert.Contains(t, out, "Feature Coming Soon")
	assert.Equal(t, 1, srv.CountRequests("POST", "/api/chat"))
}

func TestRun_LogoutClearsState(t *testing.T) {
	srv := apitest.New(t)
	srv.AddUser("u@example.com", "Uma", "pw")
	srv.AddUser("v@example.com", "Vic", "pw2")
	cfg := testConfig(t, srv.URL, filepath.Join(t.TempDir(), "state.db"))

	passwords := []string{"pw", "pw2"}
	reader := func(string) (string, error) {
		pw := passwords[0]
		passwords = passwords[1:]
		return pw, nil
	}
	out := runScript(t, cfg, "l\nu@example.com\nhi\n/logout\nl\nv@example.com\n/list\n/quit\n", WithPasswordReader(reader))

	assert.Contains(t, out, "Logged out")
	assert.Contains(t, out, "Signed in as Vic")
	assert.Contains(t, out, "No conversations yet")
}

func TestRun_EOFBeforeLogin(t *testing.T) {
	srv := apitest.New(t)
	cfg := testConfig(t, srv.URL, filepath.Join(t.TempDir(), "state.db"))

	out := runScript(t, cfg, "")
	assert.Contains(t, out, "Goodbye!")
}

func TestRun_UnknownCommand(t *testing.T) {
	srv := apitest.New(t)
	srv.AddUser("u@example.com", "Uma", "pw")
	cfg := testConfig(t, srv.URL, filepath.Join(t.TempDir(), "state.db"))

	out := runScript(t, cfg, "l\nu@example.com\n/bogus\n/use\n/quit\n", WithPasswordReader(fixedPassword("pw")))
	assert.Contains(t, out, "unknown command: /bogus")
	assert.Contains(t, out, "usage: /use")
}

func TestRun_UseRejectsUnknownConversation(t *testing.T) {
	srv := apitest.New(t)
	uid, _ := srv.AddUser("u@example.com", "Uma", "pw")
	conv := srv.AddConversation(uid, "Billing", "question", "answer")
	cfg := testConfig(t, srv.URL, filepath.Join(t.TempDir(), "state.db"))

	out := runScript(t, cfg, "l\nu@example.com\n/use 1\n/use nope\n/use 7\n/whoami\n/quit\n", WithPasswordReader(fixedPassword("pw")))

	assert.Contains(t, out, "Switched to conversation "+conv)
	assert.Contains(t, out, "no such conversation: nope")
	assert.Contains(t, out, "no such conversation: 7")
	assert.Contains(t, out, "Active conversation: "+conv)
	assert.Equal(t, 0, srv.CountRequests("GET", "/api/user/conversations/nope/messages"))

	db, err := localstore.Open(cfg.Storage.Path)
	require.NoError(t, err)
	defer db.Close()
	persisted, _, err := db.Namespace(localstore.NamespaceChat).Get(context.Background(), session.KeyConversation)
	require.NoError(t, err)
	assert.Equal(t, conv, persisted)
}

func TestRun_LogsPlainAssistantReply(t *testing.T) {
	srv := apitest.New(t)
	srv.AddUser("u@example.com", "Uma", "pw")
	srv.SetReply(func(string) (string, bool) { return "1. **Open** the app\nThen **tap** save", false })
	cfg := testConfig(t, srv.URL, filepath.Join(t.TempDir(), "state.db"))

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	runScript(t, cfg, "l\nu@example.com\nhow?\n/quit\n", WithPasswordReader(fixedPassword("pw")), WithLogger(logger))

	assert.Contains(t, logs.String(), `"msg":"assistant reply"`)
	assert.Contains(t, logs.String(), `1. Open: the app\nThen tap save`)
}

func TestLoadWelcome_ConfigOverrideAndFallback(t *testing.T) {
	srv := apitest.New(t)
	cfg := testConfig(t, srv.URL, filepath.Join(t.TempDir(), "state.db"))
	cfg.Chat.WelcomeMessage = "Configured hello"

	cb, err := NewChatBot(cfg, WithIO(strings.NewReader(""), &bytes.Buffer{}))
	require.NoError(t, err)
	defer cb.Close()
	assert.Equal(t, "Configured hello", cb.loadWelcome(context.Background()))

	cfg = testConfig(t, "http://127.0.0.1:1", filepath.Join(t.TempDir(), "state2.db"))
	cb2, err := NewChatBot(cfg, WithIO(strings.NewReader(""), &bytes.Buffer{}))
	require.NoError(t, err)
	defer cb2.Close()
	assert.Equal(t, config.DefaultWelcome, cb2.loadWelcome(context.Background()))
}

func TestRenderer_AssistantFormatting(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{}, 60)

	got := r.Blocks(format.Format("Steps:\n1. **Open** the app\nThen **tap** save"))
	assert.Equal(t, "Steps:\n1. Open: the app\nThen tap save", got)
}

func TestRenderer_UserContentVerbatim(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{}, 60)

	out := r.Message(session.Message{Role: session.RoleUser, Content: "**not bold**"})
	assert.Contains(t, out, "**not bold**")
}

func TestRenderer_NeedsHumanHint(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{}, 60)

	out := r.Message(session.Message{Role: session.RoleAssistant, Content: "hold on", NeedsHuman: true, Timestamp: time.Now()})
	assert.Contains(t, out, "Connect with Human")

	out = r.Message(session.Message{Role: session.RoleUser, Content: "x", NeedsHuman: true})
	assert.NotContains(t, out, "Connect with Human")
}

func TestRenderer_Prompt(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{}, 60)
	assert.Equal(t, "> ", r.Prompt(chat.State{}))
	assert.Contains(t, r.Prompt(chat.State{HumanHandoffActive: true}), "Chat taken over by an agent...")
}

func TestRenderer_Conversations(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{}, 60)
	out := r.Conversations([]session.ConversationSummary{
		{ID: "a", Title: "", MessageCount: 2},
		{ID: "b", Title: "Billing", MessageCount: 5},
	}, "b")

	assert.Contains(t, out, "  1. New Conversation")
	assert.Contains(t, out, "* 2. Billing")
	assert.Contains(t, out, "5 messages")
}
