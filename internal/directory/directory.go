// Package directory lists the signed-in user's conversations and tracks which one is active.
package directory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"SupportChat/internal/cache"
	"SupportChat/internal/session"
)

// Lister fetches the conversation listing.
type Lister interface {
	ListConversations(ctx context.Context, token string) ([]session.ConversationSummary, error)
}

// Persister keeps the active conversation id across restarts. *session.Store implements it.
type Persister interface {
	ActiveConversation(ctx context.Context) (string, error)
	SetActiveConversation(ctx context.Context, id string) error
	ClearActiveConversation(ctx context.Context) error
}

// ActiveFunc is called when the user selects a conversation or starts a new one ("").
type ActiveFunc func(ctx context.Context, id string) error

// Directory is safe for concurrent use. Network calls are made without the lock held.
type Directory struct {
	lister    Lister
	persist   Persister
	snapshots *cache.Snapshots[[]session.ConversationSummary]
	logger    *slog.Logger

	mu       sync.Mutex
	sess     *session.Session
	active   string
	lastErr  error
	onActive ActiveFunc
}

// New creates a directory. logger may be nil.
func New(lister Lister, persist Persister, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		lister:    lister,
		persist:   persist,
		snapshots: cache.New[[]session.ConversationSummary](),
		logger:    logger.With("component", "directory"),
	}
}

// OnActiveChange registers the callback fed by Select and StartNew.
func (d *Directory) OnActiveChange(fn ActiveFunc) {
	d.mu.Lock()
	d.onActive = fn
	d.mu.Unlock()
}

func snapshotKey(s *session.Session) string {
	return cache.GenerateKey(strconv.FormatInt(s.UserID, 10), s.AuthToken)
}

// Refresh fetches the listing for sess and caches it. On failure the error is
// logged, kept for LastError, and an empty listing is returned.
func (d *Directory) Refresh(ctx context.Context, sess *session.Session) []session.ConversationSummary {
	if sess == nil || !sess.IsAuthenticated {
		return []session.ConversationSummary{}
	}

	d.mu.Lock()
	d.sess = sess
	d.mu.Unlock()

	convs, err := d.lister.ListConversations(ctx, sess.AuthToken)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.lastErr = err
		d.logger.Error("failed to load conversations", "error", err)
		return []session.ConversationSummary{}
	}
	d.lastErr = nil

	snapshot := append([]session.ConversationSummary(nil), convs...)
	d.snapshots.Put(snapshotKey(sess), snapshot)
	d.logger.Debug("conversations refreshed", "count", len(snapshot))
	return clone(snapshot)
}

// LastError returns the error of the most recent Refresh, or nil if it succeeded.
func (d *Directory) LastError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

// Conversations returns the last successfully fetched listing.
func (d *Directory) Conversations() []session.ConversationSummary {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sess == nil {
		return nil
	}
	e, ok := d.snapshots.Get(snapshotKey(d.sess))
	if !ok {
		return nil
	}
	return clone(e.Value)
}

// Lookup resolves a 1-based position in the cached listing or a conversation id.
func (d *Directory) Lookup(ref string) (session.ConversationSummary, bool) {
	convs := d.Conversations()
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(convs) {
		return convs[n-1], true
	}
	for _, c := range convs {
		if c.ID == ref {
			return c, true
		}
	}
	return session.ConversationSummary{}, false
}

// Active returns the active conversation id, "" for none.
func (d *Directory) Active() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Select makes id active, persists it, and notifies the active-change callback.
func (d *Directory) Select(ctx context.Context, id string) error {
	if id == "" {
		return d.StartNew(ctx)
	}

	d.mu.Lock()
	d.active = id
	fn := d.onActive
	d.mu.Unlock()

	if err := d.persist.SetActiveConversation(ctx, id); err != nil {
		d.logger.Warn("failed to persist active conversation", "error", err)
	}
	d.logger.Info("conversation selected", "conversation_id", id)

	if fn != nil {
		return fn(ctx, id)
	}
	return nil
}

// StartNew clears the active id. The listing is refreshed later, when the
// first reply acknowledges the new conversation.
func (d *Directory) StartNew(ctx context.Context) error {
	d.mu.Lock()
	d.active = ""
	fn := d.onActive
	d.mu.Unlock()

	if err := d.persist.ClearActiveConversation(ctx); err != nil {
		d.logger.Warn("failed to clear active conversation", "error", err)
	}
	d.logger.Info("new conversation started")

	if fn != nil {
		return fn(ctx, "")
	}
	return nil
}

// Resume reselects the persisted active conversation, if any, and returns its id.
func (d *Directory) Resume(ctx context.Context) (string, error) {
	id, err := d.persist.ActiveConversation(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resume conversation: %w", err)
	}
	if id == "" {
		return "", d.StartNew(ctx)
	}
	return id, d.Select(ctx, id)
}

// ConversationCreated adopts id as the active conversation without notifying the
// callback, persists it, and refreshes the listing so it appears.
func (d *Directory) ConversationCreated(ctx context.Context, id string) {
	d.mu.Lock()
	d.active = id
	d.mu.Unlock()

	if err := d.persist.SetActiveConversation(ctx, id); err != nil {
		d.logger.Warn("failed to persist active conversation", "error", err)
	}
	d.logger.Info("conversation created", "conversation_id", id)
	d.ConversationsChanged(ctx)
}

// ConversationsChanged refreshes the listing for the current session.
func (d *Directory) ConversationsChanged(ctx context.Context) {
	d.mu.Lock()
	sess := d.sess
	d.mu.Unlock()
	if sess != nil {
		d.Refresh(ctx, sess)
	}
}

// Reset forgets the session, the active id and every cached listing.
func (d *Directory) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sess != nil {
		d.snapshots.Delete(snapshotKey(d.sess))
	}
	d.sess = nil
	d.active = ""
	d.lastErr = nil
}

func clone(in []session.ConversationSummary) []session.ConversationSummary {
	return append([]session.ConversationSummary{}, in...)
}
