package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"SupportChat/internal/localstore"
)

// Keys of the persisted session fields
const (
	KeyToken        = "token"
	KeyUser         = "user"
	KeyConversation = "conversationId"
)

// ParseError reports a persisted identity that could not be decoded.
// Restore never returns it; it is logged and the session is treated as absent.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("corrupt persisted identity: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var errNullIdentity = errors.New("identity is null")

// Store persists the session and the last active conversation id in local storage.
type Store struct {
	storage localstore.Store
	logger  *slog.Logger
}

// NewStore creates a session store over storage.
func NewStore(storage localstore.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		storage: storage,
		logger:  logger.With("component", "session"),
	}
}

// Restore reads the persisted token and identity. It returns nil when either
// is missing or the identity does not parse, clearing every persisted field
// so the next login cannot inherit a stale conversation id.
func (s *Store) Restore(ctx context.Context) (*Session, error) {
	token, hasToken, err := s.storage.Get(ctx, KeyToken)
	if err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	rawUser, hasUser, err := s.storage.Get(ctx, KeyUser)
	if err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	if !hasToken || !hasUser || token == "" {
		if hasToken || hasUser {
			s.logger.Info("incomplete persisted session, clearing")
		}
		return nil, s.clear(ctx)
	}

	id, err := parseIdentity(rawUser)
	if err != nil {
		s.logger.Warn("failed to parse stored user", "error", err)
		return nil, s.clear(ctx)
	}

	s.logger.Debug("session restored", "user_id", id.ID)
	return newSession(token, id), nil
}

// Login persists token and identity and returns the authenticated session.
func (s *Store) Login(ctx context.Context, token string, id Identity) (*Session, error) {
	if token == "" {
		return nil, errors.New("empty auth token")
	}

	data, err := json.Marshal(id)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal identity: %w", err)
	}
	if err := s.storage.Set(ctx, KeyToken, token); err != nil {
		return nil, fmt.Errorf("failed to persist token: %w", err)
	}
	if err := s.storage.Set(ctx, KeyUser, string(data)); err != nil {
		return nil, fmt.Errorf("failed to persist identity: %w", err)
	}

	s.logger.Info("logged in", "user_id", id.ID)
	return newSession(token, id), nil
}

// Logout clears every persisted field, including the active conversation id.
func (s *Store) Logout(ctx context.Context) error {
	if err := s.storage.Delete(ctx, KeyToken, KeyUser, KeyConversation); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	s.logger.Info("logged out")
	return nil
}

// ActiveConversation returns the persisted active conversation id, or "".
func (s *Store) ActiveConversation(ctx context.Context) (string, error) {
	id, _, err := s.storage.Get(ctx, KeyConversation)
	if err != nil {
		return "", fmt.Errorf("failed to read active conversation: %w", err)
	}
	return id, nil
}

// SetActiveConversation persists id as the active conversation. An empty id clears it.
func (s *Store) SetActiveConversation(ctx context.Context, id string) error {
	if id == "" {
		return s.ClearActiveConversation(ctx)
	}
	if err := s.storage.Set(ctx, KeyConversation, id); err != nil {
		return fmt.Errorf("failed to persist active conversation: %w", err)
	}
	return nil
}

// ClearActiveConversation removes the persisted active conversation id.
func (s *Store) ClearActiveConversation(ctx context.Context) error {
	if err := s.storage.Delete(ctx, KeyConversation); err != nil {
		return fmt.Errorf("failed to clear active conversation: %w", err)
	}
	return nil
}

func (s *Store) clear(ctx context.Context) error {
	if err := s.storage.Delete(ctx, KeyToken, KeyUser, KeyConversation); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func parseIdentity(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "undefined" {
		return Identity{}, &ParseError{Raw: raw, Err: errors.New("identity is undefined")}
	}

	var id *Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		return Identity{}, &ParseError{Raw: raw, Err: err}
	}
	if id == nil {
		return Identity{}, &ParseError{Raw: raw, Err: errNullIdentity}
	}
	return *id, nil
}
