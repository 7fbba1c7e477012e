package main

import (
	"context"
	"fmt"
	"github.com/chatscope/chatscope/cmd/cli/chats"
	"github.com/chatscope/chatscope/cmd/cli/cliapp"
	"github.com/chatscope/chatscope/cmd/cli/dev"
	"github.com/chatscope/chatscope/cmd/cli/groups"
	"github.com/chatscope/chatscope/internal/errors"
	"github.com/chatscope/chatscope/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// newRootCmd builds the command tree. Call the returned cleanup function once the command has been executed.
func newRootCmd(lookupEnv func(string) (string, bool)) (*cobra.Command, func()) {
	var (
		apiURL  string
		verbose bool
		app     *cliapp.App
	)
	rootCmd := &cobra.Command{ //nolint:exhaustruct // cobra defaults
		Use:           "chatscope-cli",
		Long:          `Command line client for the chat analysis backend.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cliapp.LoadConfig(lookupEnv)
			if err != nil {
				return err //nolint:wrapcheck // already annotated
			}
			if apiURL != "" {
				cfg.APIBaseURL = apiURL
			}
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := logging.New(cmd.ErrOrStderr(), "text", level)
			if app, err = cliapp.New(cfg, logger); err != nil {
				return err //nolint:wrapcheck // already annotated
			}
			cmd.SetContext(cliapp.WithApp(cmd.Context(), app))
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "",
		"backend origin, overrides CHATSCOPE_API_BASE_URL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log backend requests")

	rootCmd.AddGroup(groups.Group)
	rootCmd.AddCommand(groups.NewBusinessesCommand(), groups.NewCommand(), chats.NewCommand(groups.GroupID))
	rootCmd.AddGroup(dev.Group)
	rootCmd.AddCommand(dev.NewFakeBackendCommand())
	return rootCmd, func() {
		if app != nil {
			app.Close()
		}
	}
}

func execute(ctx context.Context, lookupEnv func(string) (string, bool)) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(err, "load .env")
	}
	rootCmd, cleanup := newRootCmd(lookupEnv)
	defer cleanup()
	return rootCmd.ExecuteContext(ctx) //nolint:wrapcheck // annotated by the commands
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := execute(ctx, os.LookupEnv)
	stop()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
