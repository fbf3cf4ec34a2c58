package session

import "time"

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single chat message
type Message struct {
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	NeedsHuman bool      `json:"needs_human,omitempty"` // assistant messages only
}

// IsUser reports whether the message was authored by the end user.
func (m Message) IsUser() bool {
	return m.Role == RoleUser
}

// Identity is the user record persisted next to the auth token
type Identity struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Session represents an authenticated client: identity plus bearer token
type Session struct {
	UserID          int64
	DisplayName     string
	Email           string
	AuthToken       string
	IsAuthenticated bool
}

// Identity returns the persisted form of the session's user.
func (s *Session) Identity() Identity {
	return Identity{ID: s.UserID, Name: s.DisplayName, Email: s.Email}
}

func newSession(token string, id Identity) *Session {
	return &Session{
		UserID:          id.ID,
		DisplayName:     id.Name,
		Email:           id.Email,
		AuthToken:       token,
		IsAuthenticated: true,
	}
}

// DefaultTitle is shown for conversations the backend has not titled yet
const DefaultTitle = "New Conversation"

// ConversationSummary is one entry of the user's conversation listing
type ConversationSummary struct {
	ID           string
	Title        string
	MessageCount int
	LastActivity time.Time
}

// DisplayTitle returns the title, or DefaultTitle when it is blank.
func (c ConversationSummary) DisplayTitle() string {
	if c.Title == "" {
		return DefaultTitle
	}
	return c.Title
}
