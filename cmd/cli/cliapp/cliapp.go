// Package cliapp holds the dependencies shared by the CLI commands.
package cliapp

import (
	"context"
	"github.com/chatscope/chatscope/internal/api"
	"github.com/chatscope/chatscope/internal/catalog"
	"github.com/chatscope/chatscope/internal/envstruct"
	"github.com/chatscope/chatscope/internal/errors"
	"github.com/chatscope/chatscope/internal/query"
	"github.com/spf13/cobra"
	"log/slog"
	"time"
)

var ErrNotInitialized = errors.NewSentinel("command context has no app")

// Config is read from the environment, the same variables the web server uses.
type Config struct {
	APIBaseURL   string        `env:"CHATSCOPE_API_BASE_URL" envDefault:"http://localhost:8000"`
	TunnelHeader bool          `env:"CHATSCOPE_TUNNEL_HEADER" envDefault:"true"`
	PollInterval time.Duration `env:"CHATSCOPE_POLL_INTERVAL" envDefault:"3s"`
	HTTPTimeout  time.Duration `env:"CHATSCOPE_HTTP_TIMEOUT" envDefault:"30s"`
}

// LoadConfig populates a Config from lookupEnv.
func LoadConfig(lookupEnv func(string) (string, bool)) (Config, error) {
	var cfg Config
	if err := envstruct.Populate(&cfg, lookupEnv); err != nil {
		return cfg, errors.Wrap(err, "populate config from environment")
	}
	return cfg, nil
}

// App is created once per invocation by the root command.
type App struct {
	Logger  *slog.Logger
	Queries *query.Client
	Catalog *catalog.Catalog
}

// New connects an App to the backend configured in cfg.
func New(cfg Config, logger *slog.Logger) (*App, error) {
	backend, err := api.NewClient(api.Config{
		BaseURL:      cfg.APIBaseURL,
		TunnelBypass: cfg.TunnelHeader,
		Timeout:      cfg.HTTPTimeout,
		HTTPClient:   nil,
	}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "new backend client")
	}
	cat, err := catalog.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load business catalog")
	}
	// One-shot commands never want a cached value.
	queries := query.NewClient(backend, query.Options{PollInterval: cfg.PollInterval, StaleTime: 0}, logger)
	return &App{Logger: logger, Queries: queries, Catalog: cat}, nil
}

func (a *App) Close() {
	a.Queries.Close()
}

type contextKey struct{}

// WithApp returns a copy of ctx carrying app.
func WithApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, contextKey{}, app)
}

// From returns the App the root command stored in cmd's context.
func From(cmd *cobra.Command) (*App, error) {
	app, ok := cmd.Context().Value(contextKey{}).(*App)
	if !ok || app == nil {
		return nil, errors.Wrap(ErrNotInitialized, "get app", slog.String("command", cmd.CommandPath()))
	}
	return app, nil
}
