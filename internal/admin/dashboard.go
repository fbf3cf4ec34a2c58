// Package admin is the administrator side: login, analytics and assistant settings.
package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"SupportChat/internal/backend"
	"SupportChat/internal/cache"
)

// Notifications shown after settings operations
const (
	MsgSettingsSaved      = "Settings saved successfully!"
	MsgSettingsSaveFailed = "Failed to save settings"
	MsgSettingsLoadFailed = "Failed to load settings"
)

// ErrIncompleteSettings is returned when a merged update would leave a field empty.
var ErrIncompleteSettings = errors.New("all settings fields are required")

// API is the subset of the backend the dashboard uses.
type API interface {
	GetAdminAnalytics(ctx context.Context, token string) (*backend.Analytics, error)
	GetSettings(ctx context.Context) (*backend.Settings, error)
	UpdateSettings(ctx context.Context, settings backend.Settings, token string) (*backend.Settings, error)
}

// Dashboard prints analytics and manages settings for one admin session.
type Dashboard struct {
	api      API
	sess     *Session
	out      io.Writer
	logger   *slog.Logger
	settings *cache.Snapshots[backend.Settings]
}

// NewDashboard creates a dashboard that prints to out.
func NewDashboard(api API, sess *Session, out io.Writer, logger *slog.Logger) *Dashboard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dashboard{
		api:      api,
		sess:     sess,
		out:      out,
		logger:   logger.With("component", "dashboard"),
		settings: cache.New[backend.Settings](),
	}
}

// Analytics fetches and prints stat cards, daily usage and the user table.
// Sections that failed to load are printed empty; the first error is returned.
func (d *Dashboard) Analytics(ctx context.Context) error {
	a, err := d.api.GetAdminAnalytics(ctx, d.sess.Token)
	if err != nil {
		d.logger.Error("error fetching analytics", "error", err)
	}
	if a == nil {
		a = &backend.Analytics{}
	}

	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)

	fmt.Fprintln(d.out)
	cyan.Fprintln(d.out, "  Analytics Dashboard")
	cyan.Fprintln(d.out, "  -------------------")
	fmt.Fprintf(d.out, "  Total Users:     %s\n", green.Sprint(a.Stats.TotalUsers))
	fmt.Fprintf(d.out, "  Conversations:   %s\n", green.Sprint(a.Stats.TotalConversations))
	fmt.Fprintf(d.out, "  Total Tokens:    %s\n", green.Sprint(FormatThousands(a.Stats.TotalTokens)))
	fmt.Fprintf(d.out, "  Total Cost:      %s\n", green.Sprint(FormatCost(a.Stats.TotalCost)))
	fmt.Fprintln(d.out)

	cyan.Fprintln(d.out, "  Usage Over Time (Last 30 Days)")
	w := tabwriter.NewWriter(d.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  DATE\tTOKENS\tCOST\tREQUESTS")
	fmt.Fprintln(w, "  ----\t------\t----\t--------")
	for _, p := range a.UsageOverTime {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%d\n", p.Date, FormatThousands(p.Tokens), FormatCost(p.Cost), p.Requests)
	}
	w.Flush()
	if len(a.UsageOverTime) == 0 {
		fmt.Fprintln(d.out, "  No usage recorded")
	}
	fmt.Fprintln(d.out)

	cyan.Fprintln(d.out, "  All Users")
	w = tabwriter.NewWriter(d.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  EMAIL\tNAME\tCONVERSATIONS\tTOTAL TOKENS\tTOTAL COST\tJOINED")
	fmt.Fprintln(w, "  -----\t----\t-------------\t------------\t----------\t------")
	for _, u := range a.Users {
		joined := ""
		if !u.CreatedAt.IsZero() {
			joined = u.CreatedAt.Format("Jan 02, 2006")
		}
		fmt.Fprintf(w, "  %s\t%s\t%d\t%s\t%s\t%s\n",
			u.Email, u.Name, u.ConversationCount, FormatThousands(u.TotalTokensUsed), FormatCost(u.Cost()), joined)
	}
	w.Flush()
	if len(a.Users) == 0 {
		fmt.Fprintln(d.out, "  No users yet")
	}
	fmt.Fprintln(d.out)

	if err != nil {
		return fmt.Errorf("failed to load analytics: %w", err)
	}
	return nil
}

// Settings fetches, caches and prints the current assistant settings.
func (d *Dashboard) Settings(ctx context.Context) (*backend.Settings, error) {
	s, err := d.api.GetSettings(ctx)
	if err != nil {
		d.logger.Error("error loading settings", "error", err)
		color.New(color.FgRed).Fprintln(d.out, MsgSettingsLoadFailed)
		return nil, fmt.Errorf("%s: %w", MsgSettingsLoadFailed, err)
	}
	d.settings.Put(d.sess.Username, *s)

	yellow := color.New(color.FgYellow)
	fmt.Fprintln(d.out)
	yellow.Fprintln(d.out, "  Welcome Message")
	fmt.Fprintf(d.out, "  %s\n\n", s.WelcomeMessage)
	yellow.Fprintln(d.out, "  Fallback Message")
	fmt.Fprintf(d.out, "  %s\n\n", s.FallbackMessage)
	yellow.Fprintln(d.out, "  Tone Instructions")
	fmt.Fprintf(d.out, "  %s\n\n", s.ToneInstructions)
	return s, nil
}

// MergeSettings overlays the non-empty fields of patch on current.
func MergeSettings(current, patch backend.Settings) backend.Settings {
	out := current
	if patch.WelcomeMessage != "" {
		out.WelcomeMessage = patch.WelcomeMessage
	}
	if patch.FallbackMessage != "" {
		out.FallbackMessage = patch.FallbackMessage
	}
	if patch.ToneInstructions != "" {
		out.ToneInstructions = patch.ToneInstructions
	}
	return out
}

// ValidateSettings requires every field to be non-blank.
func ValidateSettings(s backend.Settings) error {
	var missing []string
	if strings.TrimSpace(s.WelcomeMessage) == "" {
		missing = append(missing, "welcome_message")
	}
	if strings.TrimSpace(s.FallbackMessage) == "" {
		missing = append(missing, "fallback_message")
	}
	if strings.TrimSpace(s.ToneInstructions) == "" {
		missing = append(missing, "tone_instructions")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompleteSettings, strings.Join(missing, ", "))
	}
	return nil
}

// UpdateSettings merges patch over the current settings and saves the result.
func (d *Dashboard) UpdateSettings(ctx context.Context, patch backend.Settings) (*backend.Settings, error) {
	var current backend.Settings
	if e, ok := d.settings.Get(d.sess.Username); ok {
		current = e.Value
	} else {
		s, err := d.api.GetSettings(ctx)
		if err != nil {
			d.logger.Error("error loading settings", "error", err)
			color.New(color.FgRed).Fprintln(d.out, MsgSettingsLoadFailed)
			return nil, fmt.Errorf("%s: %w", MsgSettingsLoadFailed, err)
		}
		current = *s
	}

	merged := MergeSettings(current, patch)
	if err := ValidateSettings(merged); err != nil {
		color.New(color.FgRed).Fprintln(d.out, MsgSettingsSaveFailed)
		return nil, err
	}

	saved, err := d.api.UpdateSettings(ctx, merged, d.sess.Token)
	if err != nil {
		d.logger.Error("error saving settings", "error", err)
		color.New(color.FgRed).Fprintln(d.out, MsgSettingsSaveFailed)
		return nil, fmt.Errorf("%s: %w", MsgSettingsSaveFailed, err)
	}

	d.settings.Put(d.sess.Username, *saved)
	color.New(color.FgGreen).Fprintln(d.out, MsgSettingsSaved)
	d.logger.Info("settings updated", "username", d.sess.Username)
	return saved, nil
}

// FormatThousands renders n with comma separators.
func FormatThousands(n int64) string {
	return humanize.Comma(n)
}

// FormatCost renders a dollar amount with four decimals.
func FormatCost(c float64) string {
	return fmt.Sprintf("$%.4f", c)
}
