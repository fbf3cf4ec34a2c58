package chatbot

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"SupportChat/internal/chat"
	"SupportChat/internal/format"
	"SupportChat/internal/session"
)

const (
	defaultWidth     = 72
	handoffHint      = "Chat taken over by an agent..."
	humanConnectHint = "🤝 Connect with Human (type /human)"
)

// Renderer draws chat bubbles and notices for one output.
type Renderer struct {
	width int

	userBubble      lipgloss.Style
	assistantBubble lipgloss.Style
	bold            lipgloss.Style
	listNumber      lipgloss.Style
	listTitle       lipgloss.Style
	meta            lipgloss.Style
	hint            lipgloss.Style
	notice          lipgloss.Style
	noticeTitle     lipgloss.Style
	errorText       lipgloss.Style
}

// NewRenderer builds styles for w. Color is used only when w is a terminal.
func NewRenderer(w io.Writer, width int) *Renderer {
	if width <= 0 {
		width = defaultWidth
	}
	lr := lipgloss.NewRenderer(w)
	bubble := lr.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Width(width)

	return &Renderer{
		width: width,
		userBubble: bubble.
			BorderForeground(lipgloss.Color("62")).
			MarginLeft(4),
		assistantBubble: bubble.
			BorderForeground(lipgloss.Color("170")),
		bold:        lr.NewStyle().Bold(true),
		listNumber:  lr.NewStyle().Foreground(lipgloss.Color("170")).Bold(true),
		listTitle:   lr.NewStyle().Bold(true),
		meta:        lr.NewStyle().Foreground(lipgloss.Color("#888888")),
		hint:        lr.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		notice:      lr.NewStyle().BorderStyle(lipgloss.DoubleBorder()).BorderForeground(lipgloss.Color("214")).Padding(0, 1),
		noticeTitle: lr.NewStyle().Bold(true).Underline(true),
		errorText:   lr.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

// Message renders one bubble. User content is shown verbatim.
func (r *Renderer) Message(m session.Message) string {
	var body string
	if m.IsUser() {
		body = m.Content
	} else {
		body = r.Blocks(format.Format(m.Content))
	}

	lines := []string{body}
	if !m.IsUser() && m.NeedsHuman {
		lines = append(lines, "", r.hint.Render(humanConnectHint))
	}
	if !m.Timestamp.IsZero() {
		lines = append(lines, r.meta.Render(formatTime(m.Timestamp)))
	}

	content := strings.Join(lines, "\n")
	if m.IsUser() {
		return r.userBubble.Render(content)
	}
	return r.assistantBubble.Render(content)
}

// Blocks renders formatted assistant text.
func (r *Renderer) Blocks(blocks []format.Block) string {
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		switch b := b.(type) {
		case format.ListItem:
			line := r.listNumber.Render(strconv.Itoa(b.Number)+".") + " " + r.listTitle.Render(b.Title+":")
			if b.Text != "" {
				line += " " + b.Text
			}
			out = append(out, line)
		case format.Paragraph:
			var sb strings.Builder
			for _, p := range b.Parts {
				if p.Bold {
					sb.WriteString(r.bold.Render(p.Text))
				} else {
					sb.WriteString(p.Text)
				}
			}
			out = append(out, sb.String())
		}
	}
	return strings.Join(out, "\n")
}

// Transcript renders every message of st.
func (r *Renderer) Transcript(st chat.State) string {
	if len(st.Messages) == 0 {
		return r.meta.Render("(no messages yet)")
	}
	parts := make([]string, 0, len(st.Messages))
	for _, m := range st.Messages {
		parts = append(parts, r.Message(m))
	}
	return strings.Join(parts, "\n")
}

// Notice renders a boxed informational notice.
func (r *Renderer) Notice(n chat.Notice) string {
	return r.notice.Render(r.noticeTitle.Render(n.Title) + "\n" + n.Body)
}

// Error renders msg in the error colour.
func (r *Renderer) Error(msg string) string {
	return r.errorText.Render(msg)
}

// Conversations renders the listing, marking the active one.
func (r *Renderer) Conversations(convs []session.ConversationSummary, active string) string {
	if len(convs) == 0 {
		return r.meta.Render("No conversations yet. Start chatting!")
	}
	var sb strings.Builder
	for i, c := range convs {
		marker := "  "
		if c.ID == active {
			marker = "* "
		}
		fmt.Fprintf(&sb, "%s%d. %s\n", marker, i+1, c.DisplayTitle())
		meta := fmt.Sprintf("%d messages", c.MessageCount)
		if !c.LastActivity.IsZero() {
			meta += " · " + c.LastActivity.Local().Format("Jan 2, 2006")
		}
		sb.WriteString("     " + r.meta.Render(meta) + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Prompt is the input prompt for the current state.
func (r *Renderer) Prompt(st chat.State) string {
	if st.HumanHandoffActive {
		return r.meta.Render(handoffHint) + "\n> "
	}
	return "> "
}

func formatTime(t time.Time) string {
	return t.Local().Format("03:04 PM")
}
