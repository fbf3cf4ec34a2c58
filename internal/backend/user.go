package backend

import (
	"context"
	"net/http"
	"net/url"

	"SupportChat/internal/session"
)

const (
	loginFailed  = "Login failed"
	signupFailed = "Signup failed"
)

// Login exchanges email and password for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	err := c.authenticate(ctx, request{
		op:     "user_login",
		method: http.MethodPost,
		path:   "/api/user/login",
		body:   LoginRequest{Email: email, Password: password},
	}, &out, loginFailed, true)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Signup creates an account and returns its bearer token.
func (c *Client) Signup(ctx context.Context, email, name, password string) (*AuthResponse, error) {
	var out AuthResponse
	err := c.authenticate(ctx, request{
		op:     "user_signup",
		method: http.MethodPost,
		path:   "/api/user/signup",
		body:   SignupRequest{Email: email, Name: name, Password: password},
	}, &out, signupFailed, true)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage posts one user message. An empty conversationID starts a new conversation.
func (c *Client) SendMessage(ctx context.Context, text, conversationID, token string) (*ChatResponse, error) {
	body := ChatRequest{Message: text}
	if conversationID != "" {
		body.ConversationID = &conversationID
	}

	var out ChatResponse
	if err := c.doJSON(ctx, request{
		op:     "chat_send",
		method: http.MethodPost,
		path:   "/api/chat",
		token:  token,
		body:   body,
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListConversations returns the user's conversations as the API orders them.
func (c *Client) ListConversations(ctx context.Context, token string) ([]session.ConversationSummary, error) {
	var out ConversationsResponse
	if err := c.doJSON(ctx, request{
		op:     "list_conversations",
		method: http.MethodGet,
		path:   "/api/user/conversations",
		token:  token,
	}, &out); err != nil {
		return nil, err
	}

	summaries := make([]session.ConversationSummary, 0, len(out.Conversations))
	for i := range out.Conversations {
		summaries = append(summaries, out.Conversations[i].Summary())
	}
	return summaries, nil
}

// GetConversationMessages returns the transcript of one of the user's conversations.
func (c *Client) GetConversationMessages(ctx context.Context, conversationID, token string) ([]session.Message, error) {
	var out MessageList
	if err := c.doJSON(ctx, request{
		op:     "get_conversation_messages",
		method: http.MethodGet,
		path:   "/api/user/conversations/" + url.PathEscape(conversationID) + "/messages",
		token:  token,
	}, &out); err != nil {
		return nil, err
	}
	return out.Messages(), nil
}

// GetConversation fetches a transcript by id without authentication.
func (c *Client) GetConversation(ctx context.Context, conversationID string) (*TranscriptResponse, error) {
	var out TranscriptResponse
	if err := c.doJSON(ctx, request{
		op:     "get_conversation",
		method: http.MethodGet,
		path:   "/api/conversation/" + url.PathEscape(conversationID),
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
