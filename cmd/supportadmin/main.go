package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"SupportChat/internal/admin"
	"SupportChat/internal/backend"
	"SupportChat/internal/cli"
	"SupportChat/internal/localstore"
)

var errNotLoggedIn = errors.New("not logged in (run: supportadmin login)")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	err := a.rootCmd().ExecuteContext(ctx)
	a.close()
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

// app is the per-invocation state shared by subcommands.
type app struct {
	flags  cli.Flags
	env    *cli.Env
	db     *localstore.DB
	client *backend.Client
	store  *admin.SessionStore
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "supportadmin",
		Short:         "Admin dashboard for the customer support assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context())
		},
	}
	a.flags.Register(root)

	root.AddCommand(
		a.loginCmd(),
		a.logoutCmd(),
		a.analyticsCmd(),
		a.settingsCmd(),
	)
	return root
}

func (a *app) open(ctx context.Context) error {
	env, err := cli.Bootstrap(ctx, a.flags, "supportadmin")
	if err != nil {
		return err
	}
	a.env = env

	db, err := localstore.Open(env.Config.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize local storage: %w", err)
	}
	a.db = db
	a.client = env.Client()
	a.store = admin.NewSessionStore(db.Namespace(localstore.NamespaceAdmin), a.client, env.Logger)
	return nil
}

// close is safe to call when open failed part way or never ran.
func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.env.Logger.Error("failed to close local storage", "error", err)
		}
		a.db = nil
	}
	if a.env != nil {
		a.env.Close()
	}
}

// dashboard restores the saved admin session.
func (a *app) dashboard(cmd *cobra.Command) (*admin.Dashboard, error) {
	sess, err := a.store.Restore(cmd.Context())
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, errNotLoggedIn
	}
	return admin.NewDashboard(a.client, sess, cmd.OutOrStdout(), a.env.Logger), nil
}

// checkAuth clears the saved session when the API rejected its token.
func (a *app) checkAuth(cmd *cobra.Command, err error) error {
	if err != nil && backend.IsUnauthorized(err) {
		if lerr := a.store.Logout(cmd.Context()); lerr != nil {
			a.env.Logger.Error("failed to clear admin session", "error", lerr)
		}
		return fmt.Errorf("session expired, log in again: %w", err)
	}
	return err
}

func (a *app) loginCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in as an administrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			in := bufio.NewReader(cmd.InOrStdin())

			if username == "" {
				fmt.Fprint(out, "Username: ")
				line, err := in.ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read username: %w", err)
				}
				username = strings.TrimSpace(line)
			}
			password, err := readPassword(out, in)
			if err != nil {
				return err
			}

			sess, err := a.store.Login(cmd.Context(), username, password)
			var aerr *backend.AuthError
			if errors.As(err, &aerr) {
				color.New(color.FgRed).Fprintln(out, aerr.Message)
				return aerr
			}
			if err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(out, "Logged in as %s\n", sess.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "admin username")
	return cmd
}

func readPassword(out io.Writer, in *bufio.Reader) (string, error) {
	fmt.Fprint(out, "Password: ")
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		pw, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(pw), nil
	}
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved admin session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func (a *app) analyticsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analytics",
		Short: "Show usage statistics and registered users",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.dashboard(cmd)
			if err != nil {
				return err
			}
			return a.checkAuth(cmd, d.Analytics(cmd.Context()))
		},
	}
}

func (a *app) settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show the assistant settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.dashboard(cmd)
			if err != nil {
				return err
			}
			_, err = d.Settings(cmd.Context())
			return err
		},
	}

	var patch backend.Settings
	update := &cobra.Command{
		Use:   "update",
		Short: "Change one or more assistant settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if patch == (backend.Settings{}) {
				return errors.New("nothing to update: pass --welcome, --fallback or --tone")
			}
			d, err := a.dashboard(cmd)
			if err != nil {
				return err
			}
			// Show the current values first; the update merges over that snapshot.
			if _, err := d.Settings(cmd.Context()); err != nil {
				return err
			}
			_, err = d.UpdateSettings(cmd.Context(), patch)
			return a.checkAuth(cmd, err)
		},
	}
	update.Flags().StringVar(&patch.WelcomeMessage, "welcome", "", "welcome message shown to new chats")
	update.Flags().StringVar(&patch.FallbackMessage, "fallback", "", "reply used when the assistant cannot answer")
	update.Flags().StringVar(&patch.ToneInstructions, "tone", "", "tone instructions for the assistant")

	cmd.AddCommand(update)
	return cmd
}
