package main

import (
	"context"
	"github.com/chatscope/chatscope/internal/errors"
	"github.com/chatscope/chatscope/internal/sqlite"
	"github.com/chatscope/chatscope/internal/testhelpers"
	"log/slog"
	"os"
	"time"
)

// migratetest applies the session schema to a copy of the production database and checks that the existing
// sessions can still be read.
func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	var (
		err       error
		start     = time.Now()
		ctx       context.Context
		sqliteURL string
		ok        bool
		cancel    context.CancelFunc
	)
	ctx = context.Background()
	ctx, cancel = context.WithTimeout(ctx, 5*time.Second) //nolint:mnd // 5 seconds

	if sqliteURL, ok = os.LookupEnv("CHATSCOPE_SQLITE_URL"); !ok {
		logger.LogAttrs(ctx, slog.LevelError, "CHATSCOPE_SQLITE_URL not set")
		os.Exit(1)
	}

	var db *sqlite.Database
	if db, err = sqlite.NewDatabase(ctx, sqliteURL, logger); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating database",
			slog.String("url", sqliteURL), errors.SlogError(err))
		os.Exit(1)
	}

	if err = db.Ping(ctx); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error pinging database", errors.SlogError(err))
		os.Exit(1)
	}
	var count int
	if count, err = db.ActiveSessions(ctx); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error counting sessions", errors.SlogError(err))
		os.Exit(1)
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "active sessions", slog.Int("count", count))

	if err = db.Close(); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error closing database", errors.SlogError(err))
		os.Exit(1)
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "Migration test successful 🙌", slog.Duration("duration", time.Since(start)))
	cancel()
	os.Exit(0)
}
