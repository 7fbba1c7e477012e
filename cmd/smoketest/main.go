package main

import (
	"context"
	"github.com/chatscope/chatscope/internal/e2etest"
	"github.com/chatscope/chatscope/internal/errors"
	"github.com/chatscope/chatscope/internal/logging"
	"log/slog"
	"os"
	"strings"
	"time"
)

var (
	ErrMissingGroupList    = errors.NewSentinel("group list page has no group list or empty state")
	ErrMissingCreateForm   = errors.NewSentinel("new group page has no create form")
	ErrMissingBusinessList = errors.NewSentinel("new group page lists no preset businesses")
)

// TestPages checks that the pages reading from the backend render.
func TestPages(client *e2etest.Client) error {
	ctx := context.Background()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second) //nolint:mnd // 10 seconds
	defer cancel()

	if err := client.WaitForReady(ctx, "/api/healthy"); err != nil {
		return errors.Wrap(err, "wait for server")
	}

	doc, err := client.GetDoc(ctx, "/groups")
	if err != nil {
		return errors.Wrap(err, "get groups")
	}
	if doc.Find("ul.group-list").Length() == 0 && !strings.Contains(doc.Text(), "No groups yet.") {
		return ErrMissingGroupList
	}

	if doc, err = client.GetDoc(ctx, "/groups/new"); err != nil {
		return errors.Wrap(err, "get new group form")
	}
	form := doc.Find("form[action='/groups']")
	if form.Length() == 0 || form.Find("input[name=csrf_token]").Length() == 0 {
		return ErrMissingCreateForm
	}
	if form.Find("input[name=business]").Length() == 0 {
		return ErrMissingBusinessList
	}
	return nil
}

func main() {
	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	logger := slog.New(loggerHandler)
	ctx := context.Background()

	if len(os.Args) != 2 { //nolint:mnd // we expect only hostname to be passed as argument.
		logger.LogAttrs(ctx, slog.LevelError, "usage: smoketest <hostname>")
		os.Exit(1)
	}

	var (
		hostname = os.Args[1]
		url      = "https://" + hostname
		client   *e2etest.Client
		err      error
	)
	if strings.HasPrefix(hostname, "localhost") {
		url = "http://" + hostname
	}
	ctx = logging.WithAttrs(ctx, slog.String("hostname", url))

	if client, err = e2etest.NewClient(url); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating client", errors.SlogError(err))
		os.Exit(1)
	}
	if err = TestPages(client); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error testing pages", errors.SlogError(err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Smoke test successful 🙌")
	os.Exit(0)
}
