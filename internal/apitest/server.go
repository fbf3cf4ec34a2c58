// Package apitest provides an in-memory fake of the support chat API for tests.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

const naiveLayout = "2006-01-02T15:04:05.999999"

// Default admin credentials
const (
	AdminUsername = "admin"
	AdminPassword = "admin123"
)

// ReplyFunc produces the assistant reply for a user message.
type ReplyFunc func(message string) (reply string, needsHuman bool)

// EchoReply answers "echo: <message>" and never asks for a human.
func EchoReply(message string) (string, bool) {
	return "echo: " + message, false
}

// Request is a recorded inbound request.
type Request struct {
	Method    string
	Path      string
	RequestID string
	Token     string
}

type user struct {
	ID        int64
	Email     string
	Name      string
	Password  string
	CreatedAt time.Time
}

type message struct {
	Role      string
	Content   string
	Timestamp time.Time
}

type conversation struct {
	ID        string
	UserID    int64
	Title     string
	CreatedAt time.Time
	Messages  []message
}

// UsagePoint is one row served by /api/admin/usage-over-time.
type UsagePoint struct {
	Date     string  `json:"date"`
	Tokens   int64   `json:"tokens"`
	Cost     float64 `json:"cost"`
	Requests int     `json:"requests"`
}

// Settings served by /api/admin/settings.
type Settings struct {
	WelcomeMessage   string `json:"welcome_message"`
	FallbackMessage  string `json:"fallback_message"`
	ToneInstructions string `json:"tone_instructions"`
}

// Server is a fake API. Zero value is not usable; call New.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	now           func() time.Time
	reply         ReplyFunc
	beforeChat    func()
	users         map[string]*user // by email
	tokens        map[string]int64
	adminTokens   map[string]string
	conversations []*conversation
	settings      Settings
	usage         []UsagePoint
	failures      map[string]int // "METHOD /path" -> status
	bodies        map[string]string
	requests      []Request
	nextUserID    int64
	nextConvID    int
}

// New starts a fake API server. It is closed when the test ends.
func New(t interface{ Cleanup(func()) }) *Server {
	s := &Server{
		now:         func() time.Time { return time.Now().UTC() },
		reply:       EchoReply,
		users:       make(map[string]*user),
		tokens:      make(map[string]int64),
		adminTokens: make(map[string]string),
		failures:    make(map[string]int),
		bodies:      make(map[string]string),
		settings: Settings{
			WelcomeMessage:   "Hello! How can I help you today?",
			FallbackMessage:  "I'm not sure about that. Let me connect you with a human agent.",
			ToneInstructions: "Be friendly and concise.",
		},
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)
	r.Use(s.record)
	r.Use(s.injectFailures)

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/signup", s.handleSignup)
		r.Post("/user/login", s.handleLogin)
		r.Get("/user/conversations", s.handleListConversations)
		r.Get("/user/conversations/{id}/messages", s.handleConversationMessages)
		r.Post("/chat", s.handleChat)
		r.Get("/conversation/{id}", s.handleTranscript)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", s.handleAdminLogin)
			r.Get("/settings", s.handleGetSettings)
			r.Post("/settings", s.handleUpdateSettings)
			r.Get("/users", s.handleUsers)
			r.Get("/stats", s.handleStats)
			r.Get("/usage-over-time", s.handleUsage)
		})
	})
	return r
}

// SetReply replaces the assistant reply generator.
func (s *Server) SetReply(fn ReplyFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reply = fn
}

// SetBeforeChat installs a hook run, without the lock held, before each chat reply is computed.
func (s *Server) SetBeforeChat(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeChat = fn
}

// SetClock fixes the server clock.
func (s *Server) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Fail makes every request to method+path answer status until cleared with status 0.
func (s *Server) Fail(method, path string, status int) {
	s.FailWithBody(method, path, status, "")
}

// FailWithBody is Fail with a raw response body.
func (s *Server) FailWithBody(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	if status == 0 {
		delete(s.failures, key)
		delete(s.bodies, key)
		return
	}
	s.failures[key] = status
	s.bodies[key] = body
}

// SetUsage replaces the usage-over-time rows.
func (s *Server) SetUsage(points []UsagePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append([]UsagePoint(nil), points...)
}

// Settings returns the stored settings.
func (s *Server) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// CountRequests counts requests to method+path.
func (s *Server) CountRequests(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// AddUser registers a user directly and returns a valid token for it.
func (s *Server) AddUser(email, name, password string) (int64, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.addUserLocked(email, name, password)
	return u.ID, s.issueTokenLocked(u.ID)
}

// AddConversation seeds a conversation owned by userID. Messages alternate user/assistant.
func (s *Server) AddConversation(userID int64, title string, contents ...string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.newConversationLocked(userID, title)
	for i, text := range contents {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		c.Messages = append(c.Messages, message{Role: role, Content: text, Timestamp: s.now()})
	}
	return c.ID
}

func (s *Server) addUserLocked(email, name, password string) *user {
	s.nextUserID++
	u := &user{ID: s.nextUserID, Email: email, Name: name, Password: password, CreatedAt: s.now()}
	s.users[email] = u
	return u
}

func (s *Server) issueTokenLocked(userID int64) string {
	token := fmt.Sprintf("user-token-%d-%d", userID, len(s.tokens)+1)
	s.tokens[token] = userID
	return token
}

func (s *Server) newConversationLocked(userID int64, title string) *conversation {
	s.nextConvID++
	c := &conversation{
		ID:        fmt.Sprintf("conv-%d", s.nextConvID),
		UserID:    userID,
		Title:     title,
		CreatedAt: s.now(),
	}
	s.conversations = append(s.conversations, c)
	return c
}

func (s *Server) findConversationLocked(id string) *conversation {
	for _, c := range s.conversations {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:    r.Method,
			Path:      r.URL.Path,
			RequestID: r.Header.Get("X-Request-ID"),
			Token:     bearer(r),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		s.mu.Lock()
		status, ok := s.failures[key]
		body := s.bodies[key]
		s.mu.Unlock()
		if ok {
			if body == "" {
				body = `{"detail":"injected failure"}`
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func (s *Server) userFor(r *http.Request) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tokens[bearer(r)]
	return id, ok
}

func (s *Server) isAdmin(r *http.Request) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.adminTokens[bearer(r)]
	return ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func naive(t time.Time) string {
	return t.UTC().Format(naiveLayout)
}

type authResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Token string `json:"token"`
}
