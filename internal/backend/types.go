package backend

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"SupportChat/internal/session"
)

// naiveLayout is the timestamp layout the API emits: ISO-8601 without a zone.
const naiveLayout = "2006-01-02T15:04:05.999999"

// Timestamp decodes the API's zone-less ISO-8601 timestamps as UTC.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON accepts null, an empty string, or any layout dateparse recognizes.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp is not a string: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}

	parsed, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return fmt.Errorf("failed to parse timestamp %q: %w", raw, err)
	}
	t.Time = parsed.UTC()
	return nil
}

// MarshalJSON emits the same naive layout the API uses.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(naiveLayout))
}

// validator is implemented by response schemas that can reject malformed payloads
type validator interface {
	Validate() error
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}

// LoginRequest is the body of POST /api/user/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupRequest is the body of POST /api/user/signup
type SignupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// AuthResponse is returned by login and signup
type AuthResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Token string `json:"token"`
}

func (r *AuthResponse) Validate() error {
	if r.Token == "" {
		return malformed("auth response has no token")
	}
	return nil
}

// Identity returns the user record to persist alongside the token.
func (r *AuthResponse) Identity() session.Identity {
	return session.Identity{ID: r.ID, Name: r.Name, Email: r.Email}
}

// ChatRequest is the body of POST /api/chat. A nil ConversationID starts a new conversation.
type ChatRequest struct {
	Message        string  `json:"message"`
	ConversationID *string `json:"conversation_id"`
}

// ChatResponse is the assistant's reply to one user message
type ChatResponse struct {
	Reply          string `json:"reply"`
	NeedsHuman     bool   `json:"needs_human"`
	ConversationID string `json:"conversation_id"`
}

func (r *ChatResponse) Validate() error {
	if r.ConversationID == "" {
		return malformed("chat response has no conversation_id")
	}
	return nil
}

// ConversationRecord is one row of GET /api/user/conversations
type ConversationRecord struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	CreatedAt     Timestamp  `json:"created_at"`
	MessageCount  int        `json:"message_count"`
	LastMessageAt *Timestamp `json:"last_message_at"`
}

func (r *ConversationRecord) Validate() error {
	if r.ID == "" {
		return malformed("conversation has no id")
	}
	if r.MessageCount < 0 {
		return malformed("conversation %s has negative message_count", r.ID)
	}
	return nil
}

// Summary converts the record. LastActivity falls back to the creation time.
func (r *ConversationRecord) Summary() session.ConversationSummary {
	last := r.CreatedAt.Time
	if r.LastMessageAt != nil && !r.LastMessageAt.IsZero() {
		last = r.LastMessageAt.Time
	}
	return session.ConversationSummary{
		ID:           r.ID,
		Title:        r.Title,
		MessageCount: r.MessageCount,
		LastActivity: last,
	}
}

// ConversationsResponse wraps the user's conversation listing
type ConversationsResponse struct {
	Conversations []ConversationRecord `json:"conversations"`
}

func (r *ConversationsResponse) Validate() error {
	for i := range r.Conversations {
		if err := r.Conversations[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// MessageRecord is one transcript entry
type MessageRecord struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp Timestamp `json:"timestamp"`
}

func (r *MessageRecord) Validate() error {
	switch r.Role {
	case session.RoleUser, session.RoleAssistant:
		return nil
	default:
		return malformed("unknown message role %q", r.Role)
	}
}

// Message converts the record to the transcript form.
func (r *MessageRecord) Message() session.Message {
	return session.Message{
		Role:      r.Role,
		Content:   r.Content,
		Timestamp: r.Timestamp.Time,
	}
}

// MessageList is the body of GET /api/user/conversations/{id}/messages
type MessageList []MessageRecord

func (l MessageList) Validate() error {
	for i := range l {
		if err := l[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Messages converts every record.
func (l MessageList) Messages() []session.Message {
	out := make([]session.Message, 0, len(l))
	for i := range l {
		out = append(out, l[i].Message())
	}
	return out
}

// TranscriptResponse is the public transcript of GET /api/conversation/{id}
type TranscriptResponse struct {
	ConversationID string      `json:"conversation_id"`
	Messages       MessageList `json:"messages"`
}

func (r *TranscriptResponse) Validate() error {
	if r.ConversationID == "" {
		return malformed("transcript has no conversation_id")
	}
	return r.Messages.Validate()
}

// Settings are the admin-editable assistant settings
type Settings struct {
	WelcomeMessage   string `json:"welcome_message"`
	FallbackMessage  string `json:"fallback_message"`
	ToneInstructions string `json:"tone_instructions"`
}

// AdminLoginRequest is the body of POST /api/admin/login
type AdminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AdminLoginResponse carries the admin bearer token
type AdminLoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

func (r *AdminLoginResponse) Validate() error {
	if r.Token == "" {
		return malformed("admin login response has no token")
	}
	return nil
}

// UserStats is one row of GET /api/admin/users
type UserStats struct {
	ID                int64     `json:"id"`
	Email             string    `json:"email"`
	Name              string    `json:"name"`
	CreatedAt         Timestamp `json:"created_at"`
	TotalTokensUsed   int64     `json:"total_tokens_used"`
	ConversationCount int       `json:"conversation_count"`
	TotalCost         *float64  `json:"total_cost"`
}

// Cost returns TotalCost, treating null as zero.
func (u UserStats) Cost() float64 {
	if u.TotalCost == nil {
		return 0
	}
	return *u.TotalCost
}

// UsersResponse wraps the admin user listing
type UsersResponse struct {
	Users []UserStats `json:"users"`
}

// AppStats are the application-wide totals
type AppStats struct {
	TotalTokens        int64   `json:"total_tokens"`
	TotalCost          float64 `json:"total_cost"`
	TotalUsers         int     `json:"total_users"`
	TotalConversations int     `json:"total_conversations"`
}

// UsagePoint is one day of token usage
type UsagePoint struct {
	Date     string  `json:"date"`
	Tokens   int64   `json:"tokens"`
	Cost     float64 `json:"cost"`
	Requests int     `json:"requests"`
}

// UsageResponse wraps GET /api/admin/usage-over-time
type UsageResponse struct {
	Usage []UsagePoint `json:"usage"`
}

func (r *UsageResponse) Validate() error {
	for _, p := range r.Usage {
		if p.Date == "" {
			return malformed("usage point has no date")
		}
	}
	return nil
}

// Analytics is the combined admin dashboard payload
type Analytics struct {
	Users         []UserStats
	Stats         AppStats
	UsageOverTime []UsagePoint
}
