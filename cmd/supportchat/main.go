package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"SupportChat/internal/chatbot"
	"SupportChat/internal/cli"
	"SupportChat/internal/localstore"
	"SupportChat/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, cleanup := newRootCmd()
	err := root.ExecuteContext(ctx)
	cleanup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() (*cobra.Command, func()) {
	var (
		flags cli.Flags
		env   *cli.Env
	)

	root := &cobra.Command{
		Use:           "supportchat",
		Short:         "Terminal client for the customer support assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			env, err = cli.Bootstrap(cmd.Context(), flags, "supportchat")
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			bot, err := chatbot.NewChatBot(*env.Config,
				chatbot.WithLogger(env.Logger),
				chatbot.WithTelemetry(env.Tracer, env.Meter),
			)
			if err != nil {
				return fmt.Errorf("failed to initialize chatbot: %w", err)
			}
			return bot.Run(cmd.Context())
		},
	}
	flags.Register(root)

	root.AddCommand(&cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session and active conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := localstore.Open(env.Config.Storage.Path)
			if err != nil {
				return fmt.Errorf("failed to initialize local storage: %w", err)
			}
			defer db.Close()

			store := session.NewStore(db.Namespace(localstore.NamespaceChat), env.Logger)
			if err := store.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	})

	return root, func() {
		if env != nil {
			env.Close()
		}
	}
}
