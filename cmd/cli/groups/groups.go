// Package groups implements the commands that list, create, follow, analyze and export chat groups.
package groups

import (
	"context"
	"fmt"
	"github.com/chatscope/chatscope/cmd/cli/cliapp"
	"github.com/chatscope/chatscope/internal/errors"
	"github.com/chatscope/chatscope/internal/export"
	"github.com/chatscope/chatscope/internal/forms"
	"github.com/chatscope/chatscope/internal/models"
	"github.com/spf13/cobra"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
)

const GroupID = "browse"

var Group = &cobra.Group{
	ID:    GroupID,
	Title: "Browse and create groups",
}

var ErrInvalidFlags = errors.NewSentinel("invalid flags")

// NewCommand returns the groups command tree.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{ //nolint:exhaustruct // cobra defaults
		Use:     "groups",
		GroupID: GroupID,
		Short:   "Manage chat groups",
	}
	cmd.AddCommand(newListCommand(), newCreateCommand(), newShowCommand(), newAnalyzeCommand(),
		newExportCommand())
	return cmd
}

// NewBusinessesCommand lists the preset business contexts.
func NewBusinessesCommand() *cobra.Command {
	return &cobra.Command{ //nolint:exhaustruct // cobra defaults
		Use:     "businesses",
		GroupID: GroupID,
		Short:   "List preset business contexts",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := cliapp.From(cmd)
			if err != nil {
				return err //nolint:wrapcheck // already annotated
			}
			businesses, err := app.Queries.Businesses(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "list businesses")
			}
			tw := newTabWriter(cmd.OutOrStdout())
			_, _ = fmt.Fprintln(tw, "ID\tLABEL\tICON")
			for _, b := range app.Catalog.Decorate(businesses) {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", b.ID, b.Label, orDash(b.IconURL))
			}
			return flush(tw)
		},
	}
}

func newListCommand() *cobra.Command {
	return &cobra.Command{ //nolint:exhaustruct // cobra defaults
		Use:   "list",
		Short: "List groups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := cliapp.From(cmd)
			if err != nil {
				return err //nolint:wrapcheck // already annotated
			}
			groups, err := app.Queries.Groups(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "list groups")
			}
			if len(groups) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No groups yet.")
				return nil
			}
			tw := newTabWriter(cmd.OutOrStdout())
			_, _ = fmt.Fprintln(tw, "ID\tTOPIC\tSTATUS\tCHATS\tCREATED")
			for _, g := range models.NewestFirst(groups) {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
					g.GroupID, g.Topic, g.Status.Label(), g.NumChats, g.FormattedCreatedAt())
			}
			return flush(tw)
		},
	}
}

func newCreateCommand() *cobra.Command {
	var (
		business    string
		contextFile string
		websiteURL  string
		numChats    int
		wait        bool
	)
	cmd := &cobra.Command{ //nolint:exhaustruct // cobra defaults
		Use:   "create",
		Short: "Create a group from a preset business or a custom context",
		Long: `Creates a group. Pass --business to use a preset business context, or --context-file and/or
--website-url for a custom one. With --wait the command follows the group until generation ends.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := cliapp.From(cmd)
			if err != nil {
				return err //nolint:wrapcheck // already annotated
			}
			form := forms.NewCreateGroupForm()
			form.Business = strings.TrimSpace(business)
			form.WebsiteURL = strings.TrimSpace(websiteURL)
			form.NumChats = numChats
			if contextFile != "" || form.WebsiteURL != "" {
				if form.Business != "" {
					return errors.Wrap(ErrInvalidFlags, "--business cannot be combined with a custom context")
				}
				form.Mode = forms.ModeCustom
			}
			if contextFile != "" {
				var content []byte
				if content, err = os.ReadFile(contextFile); err != nil {
					return errors.Wrap(err, "read context file", slog.String("path", contextFile))
				}
				form.AttachContextFile(filepath.Base(contextFile), content)
			}
			if !form.Validate() {
				return errors.Wrap(ErrInvalidFlags, form.Error)
			}

			created, err := app.Queries.CreateGroup(cmd.Context(), form.Params())
			if err != nil {
				return errors.Wrap(err, "create group")
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Created group %s (%s, %d chats)\n",
				created.GroupID, created.Status.Label(), created.NumChats)
			if !wait {
				return nil
			}
			g, err := follow(cmd.Context(), app, created.GroupID, out)
			if err != nil {
				return err
			}
			return printGroup(out, g)
		},
	}
	cmd.Flags().StringVar(&business, "business", "", "preset business ID, see the businesses command")
	cmd.Flags().StringVar(&contextFile, "context-file", "", "markdown file describing a custom business")
	cmd.Flags().StringVar(&websiteURL, "website-url", "", "website of a custom business")
	cmd.Flags().IntVar(&numChats, "num-chats", forms.DefaultChats,
		fmt.Sprintf("number of chats to generate (%d-%d)", forms.MinChats, forms.MaxChats))
	cmd.Flags().BoolVar(&wait, "wait", false, "follow the group until generation ends")
	return cmd
}

func newShowCommand() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{ //nolint:exhaustruct // cobra defaults
		Use:   "show <group-id>",
		Short: "Show a group and its chats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cliapp.From(cmd)
			if err != nil {
				return err //nolint:wrapcheck // already annotated
			}
			out := cmd.OutOrStdout()
			var g models.GroupChats
			if watch {
				g, err = follow(cmd.Context(), app, args[0], out)
			} else {
				g, err = app.Queries.GroupChats(cmd.Context(), args[0])
			}
			if err != nil {
				return errors.Wrap(err, "get group", slog.String("group_id", args[0]))
			}
			return printGroup(out, g)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "print progress until the group stops changing")
	return cmd
}

func newAnalyzeCommand() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{ //nolint:exhaustruct // cobra defaults
		Use:   "analyze <group-id>",
		Short: "Analyze every generated chat of a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cliapp.From(cmd)
			if err != nil {
				return err //nolint:wrapcheck // already annotated
			}
			res, err := app.Queries.TriggerAnalysis(cmd.Context(), args[0])
			if err != nil {
				return errors.Wrap(err, "start analysis", slog.String("group_id", args[0]))
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Analysis started (%s)\n", res.Status.Label())
			if !wait {
				return nil
			}
			g, err := follow(cmd.Context(), app, args[0], out)
			if err != nil {
				return err
			}
			return printGroup(out, g)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "follow the group until analysis ends")
	return cmd
}

func newExportCommand() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{ //nolint:exhaustruct // cobra defaults
		Use:   "export <group-id>",
		Short: "Export a group and its analyses as an Excel workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cliapp.From(cmd)
			if err != nil {
				return err //nolint:wrapcheck // already annotated
			}
			g, err := app.Queries.GroupChats(cmd.Context(), args[0])
			if err != nil {
				return errors.Wrap(err, "get group", slog.String("group_id", args[0]))
			}
			if outPath == "" {
				outPath = export.FileName(g)
			}
			if err = writeExport(outPath, g); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "path of the workbook, defaults to a name derived from the group ID")
	return cmd
}

func writeExport(path string, g models.GroupChats) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create export file", slog.String("path", path))
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = errors.Wrap(closeErr, "close export file", slog.String("path", path))
		}
	}()
	if err = export.WriteGroup(f, g); err != nil {
		return errors.Wrap(err, "write export", slog.String("path", path))
	}
	return nil
}

// follow watches a group and prints a line whenever its progress changes until it reaches a terminal status.
// Failed refreshes are logged and retried on the next poll as long as a value was fetched before.
func follow(ctx context.Context, app *cliapp.App, groupID string, out io.Writer) (models.GroupChats, error) {
	w := app.Queries.WatchGroupChats(groupID)
	defer w.Close()

	var last string
	for {
		state, err := w.Next(ctx)
		if err != nil {
			return state.Value, errors.Wrap(err, "watch group", slog.String("group_id", groupID))
		}
		if state.Fetching {
			continue
		}
		if state.Err != nil {
			if !state.HasValue {
				return state.Value, errors.Wrap(state.Err, "watch group", slog.String("group_id", groupID))
			}
			app.Logger.LogAttrs(ctx, slog.LevelWarn, "refresh failed, retrying",
				slog.String("group_id", groupID), errors.SlogError(state.Err))
			continue
		}
		g := state.Value
		line := g.Status.Label()
		if msg := g.ProgressMessage(); msg != "" {
			line += ": " + msg
		}
		if line != last {
			_, _ = fmt.Fprintln(out, line)
			last = line
		}
		if g.Status.IsTerminal() {
			return g, nil
		}
	}
}

func printGroup(out io.Writer, g models.GroupChats) error {
	tw := newTabWriter(out)
	_, _ = fmt.Fprintf(tw, "Topic:\t%s\n", g.Topic)
	_, _ = fmt.Fprintf(tw, "Status:\t%s\n", g.Status.Label())
	if msg := g.ProgressMessage(); msg != "" {
		_, _ = fmt.Fprintf(tw, "Progress:\t%s\n", msg)
	}
	if g.Status.IsFailed() {
		_, _ = fmt.Fprintf(tw, "Failure:\t%s\n", orDash(g.FailureDetail()))
	}
	if g.WebsiteURL != "" {
		_, _ = fmt.Fprintf(tw, "Website:\t%s\n", g.WebsiteURL)
	}
	if avg, ok := g.AverageQualityScore(); ok {
		_, _ = fmt.Fprintf(tw, "Average score:\t%.1f\n", avg)
	}
	if err := flush(tw); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out)

	if len(g.Chats) == 0 {
		_, _ = fmt.Fprintln(out, g.EmptyMessage())
		return nil
	}
	tw = newTabWriter(out)
	_, _ = fmt.Fprintln(tw, "NAME\tID\tSTATUS\tCASE TYPE\tSCORE\tSATISFACTION\tMISTAKES")
	for i, c := range g.Chats {
		score, satisfaction, mistakes := "-", "-", "-"
		if a := c.Report(); a != nil {
			score = strconv.Itoa(a.QualityScore)
			satisfaction = models.FormatStatusLabel(string(a.Satisfaction))
			mistakes = strconv.Itoa(len(a.AgentMistakes))
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", models.ChatDisplayName(i+1), c.ChatID,
			c.Status.Label(), orDash(models.Humanize(c.CaseType)), score, satisfaction, mistakes)
	}
	return flush(tw)
}

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0) //nolint:mnd // two spaces between columns
}

func flush(tw *tabwriter.Writer) error {
	if err := tw.Flush(); err != nil {
		return errors.Wrap(err, "write output")
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
