package chatbot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/term"

	"SupportChat/internal/backend"
	"SupportChat/internal/chat"
	"SupportChat/internal/config"
	"SupportChat/internal/directory"
	"SupportChat/internal/format"
	"SupportChat/internal/localstore"
	"SupportChat/internal/session"
)

// ChatBot is the terminal chat client
type ChatBot struct {
	config config.Config
	db     *localstore.DB
	logger *slog.Logger
	tracer trace.Tracer
	meter  metric.Meter

	client *backend.Client
	store  *session.Store
	dir    *directory.Directory
	ctrl   *chat.Controller
	sess   *session.Session

	in           *bufio.Scanner
	out          io.Writer
	render       *Renderer
	readPassword func(prompt string) (string, error)
}

// Option configures a ChatBot
type Option func(*ChatBot)

// WithIO replaces stdin and stdout.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(cb *ChatBot) {
		cb.in = bufio.NewScanner(in)
		cb.out = out
	}
}

// WithPasswordReader replaces the hidden terminal password prompt.
func WithPasswordReader(fn func(prompt string) (string, error)) Option {
	return func(cb *ChatBot) { cb.readPassword = fn }
}

// WithLogger sets the logger shared by the client, directory and controller.
func WithLogger(l *slog.Logger) Option {
	return func(cb *ChatBot) { cb.logger = l }
}

// WithTelemetry sets the tracer and meter passed to the API client and controller.
func WithTelemetry(t trace.Tracer, m metric.Meter) Option {
	return func(cb *ChatBot) {
		cb.tracer = t
		cb.meter = m
	}
}

// NewChatBot opens local state and wires the session store, directory and controller.
func NewChatBot(cfg config.Config, opts ...Option) (*ChatBot, error) {
	cb := &ChatBot{
		config: cfg,
		logger: slog.Default(),
		tracer: tracenoop.NewTracerProvider().Tracer("supportchat"),
		meter:  metricnoop.NewMeterProvider().Meter("supportchat"),
		in:     bufio.NewScanner(os.Stdin),
		out:    os.Stdout,
	}
	for _, opt := range opts {
		opt(cb)
	}
	if cb.readPassword == nil {
		cb.readPassword = cb.terminalPassword
	}

	db, err := localstore.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize local storage: %w", err)
	}
	cb.db = db

	if cfg.Debug {
		cb.logger.Info("Debug mode enabled")
	}

	cb.client = backend.New(cfg.API.BaseURL,
		backend.WithTimeout(cfg.API.Timeout),
		backend.WithLogger(cb.logger),
		backend.WithTracer(cb.tracer),
		backend.WithMeter(cb.meter),
	)
	cb.store = session.NewStore(db.Namespace(localstore.NamespaceChat), cb.logger)
	cb.dir = directory.New(cb.client, cb.store, cb.logger)
	cb.ctrl = chat.New(cb.client,
		chat.WithLogger(cb.logger),
		chat.WithTracer(cb.tracer),
		chat.WithConversationListener(cb.dir),
		chat.WithNoticeDuration(cfg.Chat.NoticeDuration),
	)
	cb.dir.OnActiveChange(cb.ctrl.SetConversation)
	cb.render = NewRenderer(cb.out, 0)

	return cb, nil
}

// Close releases local storage.
func (cb *ChatBot) Close() error {
	return cb.db.Close()
}

func (cb *ChatBot) println(a ...any) {
	fmt.Fprintln(cb.out, a...)
}

func (cb *ChatBot) printf(format string, a ...any) {
	fmt.Fprintf(cb.out, format, a...)
}

// readLine prompts and returns the next input line. io.EOF when input is exhausted.
func (cb *ChatBot) readLine(prompt string) (string, error) {
	cb.printf("%s", prompt)
	if !cb.in.Scan() {
		if err := cb.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return cb.in.Text(), nil
}

func (cb *ChatBot) terminalPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if cb.out != os.Stdout || !term.IsTerminal(fd) {
		return cb.readLine(prompt)
	}
	cb.printf("%s", prompt)
	pw, err := term.ReadPassword(fd)
	cb.println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}

// Login restores the persisted session or prompts until the user logs in or signs up.
func (cb *ChatBot) Login(ctx context.Context) error {
	sess, err := cb.store.Restore(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}
	if sess != nil {
		cb.logger.Info("restored session", "user_id", sess.UserID)
		cb.setSession(sess)
		return nil
	}

	for {
		choice, err := cb.readLine("Log in or sign up? [l/s]: ")
		if err != nil {
			return err
		}

		var resp *backend.AuthResponse
		switch strings.ToLower(strings.TrimSpace(choice)) {
		case "l", "login":
			resp, err = cb.promptLogin(ctx)
		case "s", "signup", "sign up":
			resp, err = cb.promptSignup(ctx)
		default:
			continue
		}

		var aerr *backend.AuthError
		switch {
		case errors.As(err, &aerr):
			cb.println(cb.render.Error(aerr.Message))
			continue
		case errors.Is(err, io.EOF):
			return err
		case err != nil:
			cb.println(cb.render.Error(fmt.Sprintf("Error: %v", err)))
			cb.logger.Error("authentication failed", "error", err)
			continue
		}

		sess, err := cb.store.Login(ctx, resp.Token, resp.Identity())
		if err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		cb.setSession(sess)
		return nil
	}
}

func (cb *ChatBot) promptLogin(ctx context.Context) (*backend.AuthResponse, error) {
	email, err := cb.readLine("Email: ")
	if err != nil {
		return nil, err
	}
	password, err := cb.readPassword("Password: ")
	if err != nil {
		return nil, err
	}
	return cb.client.Login(ctx, strings.TrimSpace(email), password)
}

func (cb *ChatBot) promptSignup(ctx context.Context) (*backend.AuthResponse, error) {
	name, err := cb.readLine("Name: ")
	if err != nil {
		return nil, err
	}
	email, err := cb.readLine("Email: ")
	if err != nil {
		return nil, err
	}
	password, err := cb.readPassword("Password: ")
	if err != nil {
		return nil, err
	}
	return cb.client.Signup(ctx, strings.TrimSpace(email), strings.TrimSpace(name), password)
}

func (cb *ChatBot) setSession(sess *session.Session) {
	cb.sess = sess
	cb.ctrl.SetSession(sess)
}

// loadWelcome fetches the greeting from the backend settings. A configured
// override wins; any failure falls back to the default greeting.
func (cb *ChatBot) loadWelcome(ctx context.Context) string {
	if cb.config.Chat.WelcomeMessage != "" {
		return cb.config.Chat.WelcomeMessage
	}
	fallback := cb.config.Chat.FallbackWelcome
	if fallback == "" {
		fallback = config.DefaultWelcome
	}

	settings, err := cb.client.GetSettings(ctx)
	if err != nil {
		cb.logger.Warn("failed to fetch welcome message", "error", err)
		return fallback
	}
	if settings.WelcomeMessage == "" {
		return fallback
	}
	return settings.WelcomeMessage
}

// start runs after login: welcome message, conversation listing, last active conversation.
func (cb *ChatBot) start(ctx context.Context) {
	cb.ctrl.SetWelcome(cb.loadWelcome(ctx))
	cb.dir.Refresh(ctx, cb.sess)

	if _, err := cb.dir.Resume(ctx); err != nil {
		cb.logger.Warn("failed to resume conversation", "error", err)
		cb.println(cb.render.Error("Failed to load conversation"))
	}

	cb.printf("Signed in as %s\n", cb.sess.DisplayName)
	if id := cb.dir.Active(); id != "" {
		cb.printf("Conversation: %s\n", id)
	}
	cb.println(cb.render.Transcript(cb.ctrl.State()))
}

// handleCommand handles slash commands. It reports whether the REPL should exit.
func (cb *ChatBot) handleCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/new":
		if err := cb.dir.StartNew(ctx); err != nil {
			return false, err
		}
		cb.println("Started a new conversation")
		cb.println(cb.render.Transcript(cb.ctrl.State()))
		return false, nil

	case "/list":
		convs := cb.dir.Refresh(ctx, cb.sess)
		if err := cb.dir.LastError(); err != nil {
			return false, fmt.Errorf("failed to load conversations: %w", err)
		}
		cb.println(cb.render.Conversations(convs, cb.dir.Active()))
		return false, nil

	case "/use":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /use <number|conversation id>")
		}
		c, ok := cb.dir.Lookup(parts[1])
		if !ok {
			// The listing may predate conversations created elsewhere.
			cb.dir.Refresh(ctx, cb.sess)
			c, ok = cb.dir.Lookup(parts[1])
		}
		if !ok {
			return false, fmt.Errorf("no such conversation: %s (see /list)", parts[1])
		}
		id := c.ID
		if err := cb.dir.Select(ctx, id); err != nil {
			return false, err
		}
		cb.printf("Switched to conversation %s\n", id)
		cb.println(cb.render.Transcript(cb.ctrl.State()))
		return false, nil

	case "/history":
		cb.println(cb.render.Transcript(cb.ctrl.State()))
		return false, nil

	case "/human":
		cb.println(cb.render.Notice(cb.ctrl.RequestHuman()))
		return false, nil

	case "/whoami":
		cb.printf("%s <%s>\n", cb.sess.DisplayName, cb.sess.Email)
		if id := cb.dir.Active(); id != "" {
			cb.printf("Active conversation: %s\n", id)
		} else {
			cb.println("Active conversation: (new)")
		}
		return false, nil

	case "/logout":
		if err := cb.logout(ctx); err != nil {
			return false, err
		}
		if err := cb.Login(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				return true, nil
			}
			return false, err
		}
		cb.start(ctx)
		return false, nil

	case "/help":
		cb.println("Available commands:")
		cb.println("  /new             - Start a new conversation")
		cb.println("  /list            - List your conversations")
		cb.println("  /use <n|id>      - Switch to a conversation by number or id")
		cb.println("  /history         - Show the current transcript")
		cb.println("  /human           - Ask to talk to a human agent")
		cb.println("  /whoami          - Show the signed-in user")
		cb.println("  /logout          - Sign out")
		cb.println("  /quit, /exit     - Exit")
		cb.println("  /help            - Show this help message")
		return false, nil

	default:
		return false, fmt.Errorf("unknown command: %s (type /help)", parts[0])
	}
}

func (cb *ChatBot) logout(ctx context.Context) error {
	if err := cb.store.Logout(ctx); err != nil {
		return err
	}
	cb.dir.Reset()
	cb.setSession(nil)
	if err := cb.ctrl.SetConversation(ctx, ""); err != nil {
		return err
	}
	cb.println("Logged out")
	return nil
}

// sendMessage sends input and prints what the controller appended after the user's message.
func (cb *ChatBot) sendMessage(ctx context.Context, input string) error {
	before := len(cb.ctrl.State().Messages)

	_, err := cb.ctrl.Send(ctx, input)
	switch {
	case errors.Is(err, chat.ErrHandoffActive):
		cb.println(cb.render.Error(handoffHint))
		return nil
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrStaleResponse):
		return nil
	}

	msgs := cb.ctrl.State().Messages
	for i := before + 1; i < len(msgs); i++ {
		if !msgs[i].IsUser() {
			cb.logger.Debug("assistant reply",
				"conversation_id", cb.dir.Active(),
				"needs_human", msgs[i].NeedsHuman,
				"text", format.Plain(format.Format(msgs[i].Content)),
			)
		}
		cb.println(cb.render.Message(msgs[i]))
	}
	return err
}

// Run starts the chat client
func (cb *ChatBot) Run(ctx context.Context) error {
	defer cb.Close()

	cb.println("=== Support Chat ===")
	cb.println("Type /help for commands, /quit to exit")
	cb.println()

	if err := cb.Login(ctx); err != nil {
		if errors.Is(err, io.EOF) {
			cb.println("Goodbye!")
			return nil
		}
		return err
	}
	cb.start(ctx)

	for {
		input, err := cb.readLine(cb.render.Prompt(cb.ctrl.State()))
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		if strings.TrimSpace(input) == "" {
			continue
		}

		if strings.HasPrefix(strings.TrimSpace(input), "/") {
			shouldQuit, err := cb.handleCommand(ctx, strings.TrimSpace(input))
			if err != nil {
				cb.println(cb.render.Error(fmt.Sprintf("Error: %v", err)))
				cb.logger.Error("command error", "error", err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		if err := cb.sendMessage(ctx, input); err != nil {
			cb.logger.Error("failed to send message", "error", err)
		}
	}

	cb.println("Goodbye!")
	return nil
}
