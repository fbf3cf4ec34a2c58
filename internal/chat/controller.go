// Package chat owns the transcript of the active conversation and mediates
// sending, reply handling, the welcome message and human handoff.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"SupportChat/internal/backend"
	"SupportChat/internal/session"
)

// Transport is the subset of the API the controller needs. *backend.Client implements it.
type Transport interface {
	SendMessage(ctx context.Context, text, conversationID, token string) (*backend.ChatResponse, error)
	GetConversationMessages(ctx context.Context, conversationID, token string) ([]session.Message, error)
}

// ConversationListener hears about conversations created by Send.
// *directory.Directory implements it.
type ConversationListener interface {
	// ConversationCreated is called when the first reply of a new conversation is accepted.
	ConversationCreated(ctx context.Context, id string)
	// ConversationsChanged is called when a discarded reply still created a conversation.
	ConversationsChanged(ctx context.Context)
}

// Controller is safe for concurrent use. The lock is released across network calls;
// a generation counter detects responses that outlived the conversation they were for.
type Controller struct {
	transport Transport
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
	listener  ConversationListener
	noticeTTL time.Duration

	mu         sync.Mutex
	state      State
	welcome    string
	token      string
	generation uint64
}

// Option configures a Controller
type Option func(*Controller)

// WithWelcome sets the synthetic greeting shown at the top of a new conversation.
func WithWelcome(msg string) Option {
	return func(c *Controller) { c.welcome = msg }
}

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithClock replaces time.Now for message timestamps and notice expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithConversationListener sets the listener told when a send creates a conversation.
func WithConversationListener(l ConversationListener) Option {
	return func(c *Controller) { c.listener = l }
}

// WithTracer wraps each send in a span.
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) { c.tracer = t }
}

// WithNoticeDuration sets how long RequestHuman notices stay visible.
func WithNoticeDuration(d time.Duration) Option {
	return func(c *Controller) { c.noticeTTL = d }
}

// New creates a controller in the Fresh state.
func New(transport Transport, opts ...Option) *Controller {
	c := &Controller{
		transport: transport,
		logger:    slog.Default(),
		tracer:    tracenoop.NewTracerProvider().Tracer("chat"),
		now:       time.Now,
		noticeTTL: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "chat")
	c.injectWelcomeLocked()
	return c
}

// SetSession sets the credentials used for API calls. A nil session clears them.
func (c *Controller) SetSession(sess *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sess == nil {
		c.token = ""
		return
	}
	c.token = sess.AuthToken
}

// SetWelcome replaces the greeting. A Fresh, empty transcript shows it immediately.
func (c *Controller) SetWelcome(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.welcome = msg
	c.injectWelcomeLocked()
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

func (c *Controller) injectWelcomeLocked() {
	if c.state.ActiveConversationID != "" || len(c.state.Messages) > 0 || c.welcome == "" {
		return
	}
	c.state.Messages = []session.Message{{
		Role:      session.RoleAssistant,
		Content:   c.welcome,
		Timestamp: c.now(),
	}}
}

// SetConversation switches to id, discarding the transcript and any handoff.
// An empty id starts a Fresh conversation; otherwise the transcript is fetched.
// On fetch failure the transcript stays empty and the error is returned.
func (c *Controller) SetConversation(ctx context.Context, id string) error {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	token := c.token
	c.state = State{ActiveConversationID: id}
	if id == "" {
		c.injectWelcomeLocked()
		c.mu.Unlock()
		c.logger.Debug("fresh conversation")
		return nil
	}
	c.mu.Unlock()

	msgs, err := c.transport.GetConversationMessages(ctx, id, token)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return ErrStaleResponse
	}
	if err != nil {
		c.logger.Error("failed to load conversation", "conversation_id", id, "error", err)
		return fmt.Errorf("failed to load conversation: %w", asTransportError("get_conversation_messages", err))
	}
	c.state.Messages = msgs
	c.logger.Debug("conversation loaded", "conversation_id", id, "messages", len(msgs))
	return nil
}

// Send appends text as a user message and waits for the reply.
func (c *Controller) Send(ctx context.Context, text string) (*session.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	c.mu.Lock()
	switch {
	case c.state.HumanHandoffActive:
		c.mu.Unlock()
		return nil, ErrHandoffActive
	case c.state.IsLoading:
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.state.Messages = append(c.state.Messages, session.Message{
		Role:      session.RoleUser,
		Content:   text,
		Timestamp: c.now(),
	})
	c.state.IsLoading = true
	gen := c.generation
	convID := c.state.ActiveConversationID
	token := c.token
	c.mu.Unlock()

	ctx, span := c.tracer.Start(ctx, "chat_send")
	defer span.End()
	span.SetAttributes(
		attribute.Bool("conversation.new", convID == ""),
		attribute.String("conversation.id", convID),
	)

	resp, err := c.transport.SendMessage(ctx, text, convID, token)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.logger.Info("discarding stale reply", "conversation_id", convID)
		span.SetAttributes(attribute.Bool("reply.stale", true))
		if err == nil && convID == "" && c.listener != nil {
			c.listener.ConversationsChanged(ctx)
		}
		return nil, ErrStaleResponse
	}
	c.state.IsLoading = false

	if err != nil {
		c.state.Messages = append(c.state.Messages, session.Message{
			Role:      session.RoleAssistant,
			Content:   Apology,
			Timestamp: c.now(),
		})
		c.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		c.logger.Error("failed to send message", "conversation_id", convID, "error", err)
		return nil, fmt.Errorf("failed to send message: %w", asTransportError("chat_send", err))
	}

	created := convID == ""
	if created {
		c.state.ActiveConversationID = resp.ConversationID
	}
	reply := session.Message{
		Role:       session.RoleAssistant,
		Content:    resp.Reply,
		Timestamp:  c.now(),
		NeedsHuman: resp.NeedsHuman,
	}
	c.state.Messages = append(c.state.Messages, reply)
	if resp.NeedsHuman {
		c.state.HumanHandoffActive = true
	}
	c.mu.Unlock()

	span.SetAttributes(attribute.Bool("reply.needs_human", resp.NeedsHuman))
	if resp.NeedsHuman {
		c.logger.Info("handoff requested", "conversation_id", resp.ConversationID)
	}
	if created && c.listener != nil {
		c.listener.ConversationCreated(ctx, resp.ConversationID)
	}
	return &reply, nil
}

// RequestHuman returns the informational notice for a human handoff request.
// It changes no state.
func (c *Controller) RequestHuman() Notice {
	c.logger.Info("human handoff requested by user")
	return Notice{
		Title:     handoffNoticeTitle,
		Body:      handoffNoticeBody,
		ExpiresAt: c.now().Add(c.noticeTTL),
	}
}

func asTransportError(op string, err error) error {
	var terr *backend.TransportError
	if errors.As(err, &terr) {
		return err
	}
	return &backend.TransportError{Op: op, Err: err}
}
