// Package chats implements the commands that inspect, analyze and regenerate single chats.
package chats

import (
	"context"
	"fmt"
	"github.com/chatscope/chatscope/cmd/cli/cliapp"
	"github.com/chatscope/chatscope/internal/errors"
	"github.com/chatscope/chatscope/internal/models"
	"github.com/spf13/cobra"
	"io"
	"log/slog"
)

// NewCommand returns the chats command tree. groupID places it in the root command's help.
func NewCommand(groupID string) *cobra.Command {
	cmd := &cobra.Command{ //nolint:exhaustruct // cobra defaults
		Use:     "chats",
		GroupID: groupID,
		Short:   "Inspect single chats",
	}
	cmd.AddCommand(newShowCommand(), newAnalyzeCommand(), newRegenerateCommand())
	return cmd
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{ //nolint:exhaustruct // cobra defaults
		Use:   "show <group-id> <chat-id>",
		Short: "Show a chat's transcript and analysis",
		Args:  cobra.ExactArgs(2), //nolint:mnd // group and chat
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cliapp.From(cmd)
			if err != nil {
				return err //nolint:wrapcheck // already annotated
			}
			d, err := app.Queries.ChatDetail(cmd.Context(), args[0], args[1])
			if err != nil {
				return errors.Wrap(err, "get chat", slog.String("group_id", args[0]), slog.String("chat_id", args[1]))
			}
			printChat(cmd.OutOrStdout(), d)
			return nil
		},
	}
}

func newAnalyzeCommand() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{ //nolint:exhaustruct // cobra defaults
		Use:   "analyze <group-id> <chat-id>",
		Short: "Analyze a single chat",
		Args:  cobra.ExactArgs(2), //nolint:mnd // group and chat
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cliapp.From(cmd)
			if err != nil {
				return err //nolint:wrapcheck // already annotated
			}
			d, err := app.Queries.TriggerChatAnalysis(cmd.Context(), args[0], args[1])
			if err != nil {
				return errors.Wrap(err, "start chat analysis",
					slog.String("group_id", args[0]), slog.String("chat_id", args[1]))
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Chat analysis started (%s)\n", d.Status.Label())
			if !wait {
				return nil
			}
			if d, err = follow(cmd.Context(), app, args[0], args[1]); err != nil {
				return err
			}
			printChat(out, d)
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the analysis and print it")
	return cmd
}

func newRegenerateCommand() *cobra.Command {
	return &cobra.Command{ //nolint:exhaustruct // cobra defaults
		Use:   "regenerate <group-id> <chat-id>",
		Short: "Replace a chat's transcript with a newly generated one",
		Args:  cobra.ExactArgs(2), //nolint:mnd // group and chat
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cliapp.From(cmd)
			if err != nil {
				return err //nolint:wrapcheck // already annotated
			}
			d, err := app.Queries.RegenerateChat(cmd.Context(), args[0], args[1])
			if err != nil {
				return errors.Wrap(err, "regenerate chat",
					slog.String("group_id", args[0]), slog.String("chat_id", args[1]))
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Chat regeneration started (%s)\n", d.Status.Label())
			return nil
		},
	}
}

// follow watches a chat until it is no longer being analyzed.
func follow(ctx context.Context, app *cliapp.App, groupID, chatID string) (models.ChatDetail, error) {
	w := app.Queries.WatchChatDetail(groupID, chatID)
	defer w.Close()
	for {
		state, err := w.Next(ctx)
		if err != nil {
			return state.Value, errors.Wrap(err, "watch chat", slog.String("chat_id", chatID))
		}
		if state.Fetching {
			continue
		}
		if state.Err != nil {
			if !state.HasValue {
				return state.Value, errors.Wrap(state.Err, "watch chat", slog.String("chat_id", chatID))
			}
			app.Logger.LogAttrs(ctx, slog.LevelWarn, "refresh failed, retrying",
				slog.String("chat_id", chatID), errors.SlogError(state.Err))
			continue
		}
		if !state.Value.Status.IsAnalyzing() {
			return state.Value, nil
		}
	}
}

func printChat(out io.Writer, d models.ChatDetail) {
	_, _ = fmt.Fprintf(out, "%s (%s)\n\n", d.ChatID, d.Status.Label())

	for i, m := range d.Transcript() {
		_, _ = fmt.Fprintf(out, "%2d. %s: %s\n", i+1, m.Label(), m.Text)
	}
	if len(d.Transcript()) == 0 {
		_, _ = fmt.Fprintln(out, "No messages yet.")
	}

	if s := d.EffectiveScenario(); s != nil {
		_, _ = fmt.Fprintf(out, "\nScenario: %s\n", models.Humanize(s.CaseType))
		for _, flag := range s.Flags() {
			_, _ = fmt.Fprintf(out, "  - %s\n", flag)
		}
	}

	a := d.Report()
	switch {
	case a != nil:
		_, _ = fmt.Fprintf(out, "\nIntent: %s\n", models.Humanize(a.Intent))
		_, _ = fmt.Fprintf(out, "Satisfaction: %s\n", models.FormatStatusLabel(string(a.Satisfaction)))
		_, _ = fmt.Fprintf(out, "Quality score: %d\n", a.QualityScore)
		if len(a.AgentMistakes) == 0 {
			_, _ = fmt.Fprintln(out, "No mistakes found.")
		} else {
			_, _ = fmt.Fprintln(out, "Mistakes:")
			for _, m := range a.AgentMistakes {
				_, _ = fmt.Fprintf(out, "  - %s\n", m)
			}
		}
		if a.Reasoning != "" {
			_, _ = fmt.Fprintf(out, "Reasoning: %s\n", a.Reasoning)
		}
	case d.Status.IsAnalyzing():
		_, _ = fmt.Fprintln(out, "\nAnalysis in progress…")
	default:
		_, _ = fmt.Fprintln(out, "\nNot analyzed yet.")
	}
}
