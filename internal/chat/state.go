package chat

import (
	"errors"
	"time"

	"SupportChat/internal/session"
)

var (
	// ErrHandoffActive rejects sends once an agent has taken over.
	ErrHandoffActive = errors.New("conversation has been handed off to a human agent")
	// ErrBusy rejects a send while the previous one awaits its reply.
	ErrBusy = errors.New("a reply is already pending")
	// ErrEmptyMessage rejects blank input.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrStaleResponse is returned when the conversation changed while a request was in flight.
	ErrStaleResponse = errors.New("conversation changed before the response arrived")
)

// Apology is appended in place of a reply when sending fails.
const Apology = "Sorry, an error occurred. Please try again."

// Phase is derived from State
type Phase int

const (
	PhaseFresh Phase = iota
	PhaseLoaded
	PhaseAwaitingReply
	PhaseHandoff
)

func (p Phase) String() string {
	switch p {
	case PhaseFresh:
		return "fresh"
	case PhaseLoaded:
		return "loaded"
	case PhaseAwaitingReply:
		return "awaiting-reply"
	case PhaseHandoff:
		return "handoff"
	default:
		return "unknown"
	}
}

// State is the transcript of the active conversation plus input gating flags
type State struct {
	ActiveConversationID string
	Messages             []session.Message
	IsLoading            bool
	HumanHandoffActive   bool
}

// Phase reports which state the controller is in.
func (s State) Phase() Phase {
	switch {
	case s.HumanHandoffActive:
		return PhaseHandoff
	case s.IsLoading:
		return PhaseAwaitingReply
	case s.ActiveConversationID == "":
		return PhaseFresh
	default:
		return PhaseLoaded
	}
}

// AcceptsInput reports whether Send would not be rejected outright.
func (s State) AcceptsInput() bool {
	return !s.HumanHandoffActive && !s.IsLoading
}

func (s State) clone() State {
	out := s
	out.Messages = append([]session.Message(nil), s.Messages...)
	return out
}

// Notice is a transient informational message. It expires on its own.
type Notice struct {
	Title     string
	Body      string
	ExpiresAt time.Time
}

// Expired reports whether the notice should no longer be shown.
func (n Notice) Expired(now time.Time) bool {
	return !now.Before(n.ExpiresAt)
}

const (
	handoffNoticeTitle = "Feature Coming Soon"
	handoffNoticeBody  = "Human handoff feature is still in development. We'll notify you once it's ready!"
)
