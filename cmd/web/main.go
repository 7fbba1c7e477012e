package main

import (
	"context"
	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/chatscope/chatscope/internal/api"
	"github.com/chatscope/chatscope/internal/catalog"
	"github.com/chatscope/chatscope/internal/envstruct"
	"github.com/chatscope/chatscope/internal/errors"
	"github.com/chatscope/chatscope/internal/logging"
	"github.com/chatscope/chatscope/internal/pprofserver"
	"github.com/chatscope/chatscope/internal/query"
	"github.com/chatscope/chatscope/internal/sqlite"
	"github.com/chatscope/chatscope/ui"
	"github.com/donseba/go-htmx"
	"github.com/joho/godotenv"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"
)

type application struct {
	logger         *slog.Logger
	db             *sqlite.Database
	sessionManager *scs.SessionManager
	queries        *query.Client
	catalog        *catalog.Catalog
	htmx           *htmx.HTMX
	templates      fs.FS
	pollInterval   time.Duration
	streamGroups   bool
}

type config struct {
	// Addr is the address to listen on. It's possible to choose the address dynamically with localhost:0.
	Addr string `env:"CHATSCOPE_ADDR" envDefault:"localhost:4000"`
	// APIBaseURL is the origin of the chat analysis backend.
	APIBaseURL string `env:"CHATSCOPE_API_BASE_URL" envDefault:"http://localhost:8000"`
	// TunnelHeader sends the header that skips the tunnelling service's browser warning.
	TunnelHeader bool `env:"CHATSCOPE_TUNNEL_HEADER" envDefault:"true"`
	// PollInterval is the delay between refreshes of data that is still changing.
	PollInterval time.Duration `env:"CHATSCOPE_POLL_INTERVAL" envDefault:"3s"`
	// HTTPTimeout bounds backend requests. Zero disables the timeout.
	HTTPTimeout time.Duration `env:"CHATSCOPE_HTTP_TIMEOUT" envDefault:"0s"`
	// StaleTime is how long page loads may reuse backend data.
	StaleTime time.Duration `env:"CHATSCOPE_STALE_TIME" envDefault:"1s"`
	// SqliteURL is the URL to the SQLite database holding the sessions. Use ":memory:" for an in-memory database.
	SqliteURL string `env:"CHATSCOPE_SQLITE_URL" envDefault:"./chatscope.sqlite"`
	// PprofAddr enables the pprof server on the loopback interface, e.g., ":6060".
	PprofAddr string `env:"CHATSCOPE_PPROF_ADDR" envDefault:""`
	// LogFormat is either text or json.
	LogFormat string `env:"CHATSCOPE_LOG_FORMAT" envDefault:"text"`
	// StreamGroups pushes group updates to the group page over server-sent events instead of having it poll.
	StreamGroups bool `env:"CHATSCOPE_STREAM_GROUPS" envDefault:"false"`
	// TemplateDir overrides the embedded templates, which is handy for editing templates without restarting.
	TemplateDir string `env:"CHATSCOPE_TEMPLATE_DIR" envDefault:""`
}

func run(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error {
	var (
		err error
		cfg config
	)

	if err = envstruct.Populate(&cfg, lookupEnv); err != nil {
		return errors.Wrap(err, "populate config from environment")
	}

	if cfg.PprofAddr != "" {
		pprofserver.Launch(ctx, cfg.PprofAddr, logger)
	}

	var backend *api.Client
	if backend, err = api.NewClient(api.Config{
		BaseURL:      cfg.APIBaseURL,
		TunnelBypass: cfg.TunnelHeader,
		Timeout:      cfg.HTTPTimeout,
		HTTPClient:   nil,
	}, logger); err != nil {
		return errors.Wrap(err, "new backend client")
	}
	queries := query.NewClient(backend, query.Options{PollInterval: cfg.PollInterval, StaleTime: cfg.StaleTime}, logger)
	defer queries.Close()

	var businesses *catalog.Catalog
	if businesses, err = catalog.Load(); err != nil {
		return errors.Wrap(err, "load business catalog")
	}

	var db *sqlite.Database
	if db, err = sqlite.NewDatabase(ctx, cfg.SqliteURL, logger); err != nil {
		return errors.Wrap(err, "open database", slog.String("url", cfg.SqliteURL))
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.LogAttrs(ctx, slog.LevelError, "failed to close database", errors.SlogError(closeErr))
		}
	}()

	sessionManager := scs.New()
	sessionManager.Store = sqlite3store.NewWithCleanupInterval(db.ReadWrite.DB, 24*time.Hour) //nolint:mnd // 1 day
	sessionManager.Lifetime = 12 * time.Hour                                                  //nolint:mnd // half a day
	sessionManager.Cookie.SameSite = http.SameSiteLaxMode

	var templates fs.FS
	if cfg.TemplateDir != "" {
		templates = os.DirFS(cfg.TemplateDir)
	} else if templates, err = fs.Sub(ui.Templates, "templates"); err != nil {
		return errors.Wrap(err, "open embedded templates")
	}

	app := application{
		logger:         logger,
		db:             db,
		sessionManager: sessionManager,
		queries:        queries,
		catalog:        businesses,
		htmx:           htmx.New(),
		templates:      templates,
		pollInterval:   cfg.PollInterval,
		streamGroups:   cfg.StreamGroups,
	}

	if err = app.configureAndStartServer(ctx, cfg.Addr); err != nil {
		return errors.Wrap(err, "start server")
	}

	return nil
}

func main() {
	ctx := context.Background()
	// A missing .env file is fine, the environment may be configured by other means.
	envErr := godotenv.Load()
	format, _ := os.LookupEnv("CHATSCOPE_LOG_FORMAT")
	logger := logging.New(os.Stdout, format, slog.LevelDebug)
	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		logger.LogAttrs(ctx, slog.LevelError, "failure loading .env", errors.SlogError(envErr))
		os.Exit(1)
	}
	if err := run(ctx, logger, os.LookupEnv); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "failure starting application", errors.SlogError(err))
		os.Exit(1)
	}
}
