package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid body")
		return
	}
	if !strings.Contains(req.Email, "@") {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{
				{"loc": []string{"body", "email"}, "msg": "value is not a valid email address", "type": "value_error"},
			},
		})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[req.Email]; exists {
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}
	u := s.addUserLocked(req.Email, req.Name, req.Password)
	writeJSON(w, http.StatusOK, authResponse{ID: u.ID, Email: u.Email, Name: u.Name, Token: s.issueTokenLocked(u.ID)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[req.Email]
	if !ok || u.Password != req.Password {
		writeDetail(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{ID: u.ID, Email: u.Email, Name: u.Name, Token: s.issueTokenLocked(u.ID)})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userFor(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	type row struct {
		ID            string  `json:"id"`
		Title         string  `json:"title"`
		CreatedAt     string  `json:"created_at"`
		MessageCount  int     `json:"message_count"`
		LastMessageAt *string `json:"last_message_at"`
	}

	s.mu.Lock()
	rows := []row{}
	// Most recent first, as the real API orders them.
	for i := len(s.conversations) - 1; i >= 0; i-- {
		c := s.conversations[i]
		if c.UserID != userID {
			continue
		}
		rw := row{ID: c.ID, Title: c.Title, CreatedAt: naive(c.CreatedAt), MessageCount: len(c.Messages)}
		if n := len(c.Messages); n > 0 {
			last := naive(c.Messages[n-1].Timestamp)
			rw.LastMessageAt = &last
		}
		rows = append(rows, rw)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"conversations": rows})
}

type messageRow struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

func messageRows(msgs []message) []messageRow {
	rows := make([]messageRow, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, messageRow{Role: m.Role, Content: m.Content, Timestamp: naive(m.Timestamp)})
	}
	return rows
}

func (s *Server) handleConversationMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userFor(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.findConversationLocked(chi.URLParam(r, "id"))
	if c == nil || c.UserID != userID {
		writeDetail(w, http.StatusNotFound, "Conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, messageRows(c.Messages))
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.findConversationLocked(chi.URLParam(r, "id"))
	if c == nil {
		writeDetail(w, http.StatusNotFound, "Conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": c.ID,
		"messages":        messageRows(c.Messages),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userFor(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	var req struct {
		Message        string  `json:"message"`
		ConversationID *string `json:"conversation_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	hook := s.beforeChat
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var c *conversation
	if req.ConversationID != nil {
		c = s.findConversationLocked(*req.ConversationID)
		if c == nil || c.UserID != userID {
			writeDetail(w, http.StatusNotFound, "Conversation not found")
			return
		}
	} else {
		title := req.Message
		if len(title) > 50 {
			title = title[:50]
		}
		c = s.newConversationLocked(userID, title)
	}

	reply, needsHuman := s.reply(req.Message)
	now := s.now()
	c.Messages = append(c.Messages,
		message{Role: "user", Content: req.Message, Timestamp: now},
		message{Role: "assistant", Content: reply, Timestamp: now},
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"reply":           reply,
		"needs_human":     needsHuman,
		"conversation_id": c.ID,
	})
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Username != AdminUsername || req.Password != AdminPassword {
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}

	s.mu.Lock()
	token := fmt.Sprintf("admin-token-%d", len(s.adminTokens)+1)
	s.adminTokens[token] = req.Username
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"token": token, "username": req.Username})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Settings())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	if !s.isAdmin(r) {
		writeDetail(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	var req Settings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	s.settings = req
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	if !s.isAdmin(r) {
		writeDetail(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	type row struct {
		ID                int64    `json:"id"`
		Email             string   `json:"email"`
		Name              string   `json:"name"`
		CreatedAt         string   `json:"created_at"`
		TotalTokensUsed   int64    `json:"total_tokens_used"`
		ConversationCount int      `json:"conversation_count"`
		TotalCost         *float64 `json:"total_cost"`
	}

	s.mu.Lock()
	rows := []row{}
	for _, u := range s.users {
		count := 0
		for _, c := range s.conversations {
			if c.UserID == u.ID {
				count++
			}
		}
		rows = append(rows, row{
			ID:                u.ID,
			Email:             u.Email,
			Name:              u.Name,
			CreatedAt:         naive(u.CreatedAt),
			ConversationCount: count,
		})
	}
	s.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	writeJSON(w, http.StatusOK, map[string]any{"users": rows})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.isAdmin(r) {
		writeDetail(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	s.mu.Lock()
	var tokens int64
	var cost float64
	for _, p := range s.usage {
		tokens += p.Tokens
		cost += p.Cost
	}
	stats := map[string]any{
		"total_tokens":        tokens,
		"total_cost":          cost,
		"total_users":         len(s.users),
		"total_conversations": len(s.conversations),
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if !s.isAdmin(r) {
		writeDetail(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	s.mu.Lock()
	usage := append([]UsagePoint{}, s.usage...)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"usage": usage})
}
