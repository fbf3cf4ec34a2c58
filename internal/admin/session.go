package admin

import (
	"context"
	"fmt"
	"log/slog"

	"SupportChat/internal/backend"
	"SupportChat/internal/localstore"
)

const (
	keyToken    = "adminToken"
	keyUsername = "adminUsername"
)

// Session is an authenticated administrator
type Session struct {
	Username string
	Token    string
}

// Authenticator performs the admin login call. *backend.Client implements it.
type Authenticator interface {
	AdminLogin(ctx context.Context, username, password string) (*backend.AdminLoginResponse, error)
}

// SessionStore persists the admin session in the admin namespace.
type SessionStore struct {
	storage localstore.Store
	auth    Authenticator
	logger  *slog.Logger
}

// NewSessionStore creates an admin session store. auth may be nil when only Restore and Logout are used.
func NewSessionStore(storage localstore.Store, auth Authenticator, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{storage: storage, auth: auth, logger: logger.With("component", "admin_session")}
}

// Restore returns the persisted session, or nil unless both token and username are stored.
func (s *SessionStore) Restore(ctx context.Context) (*Session, error) {
	token, hasToken, err := s.storage.Get(ctx, keyToken)
	if err != nil {
		return nil, fmt.Errorf("failed to restore admin session: %w", err)
	}
	username, hasUsername, err := s.storage.Get(ctx, keyUsername)
	if err != nil {
		return nil, fmt.Errorf("failed to restore admin session: %w", err)
	}
	if !hasToken || !hasUsername || token == "" || username == "" {
		return nil, nil
	}
	return &Session{Username: username, Token: token}, nil
}

// Login authenticates and persists the session. Rejections are *backend.AuthError
// with the message "Invalid credentials".
func (s *SessionStore) Login(ctx context.Context, username, password string) (*Session, error) {
	resp, err := s.auth.AdminLogin(ctx, username, password)
	if err != nil {
		return nil, err
	}

	name := resp.Username
	if name == "" {
		name = username
	}
	if err := s.storage.Set(ctx, keyToken, resp.Token); err != nil {
		return nil, fmt.Errorf("failed to persist admin token: %w", err)
	}
	if err := s.storage.Set(ctx, keyUsername, name); err != nil {
		return nil, fmt.Errorf("failed to persist admin username: %w", err)
	}

	s.logger.Info("admin logged in", "username", name)
	return &Session{Username: name, Token: resp.Token}, nil
}

// Logout removes the persisted admin session.
func (s *SessionStore) Logout(ctx context.Context) error {
	if err := s.storage.Delete(ctx, keyToken, keyUsername); err != nil {
		return fmt.Errorf("failed to clear admin session: %w", err)
	}
	s.logger.Info("admin logged out")
	return nil
}
