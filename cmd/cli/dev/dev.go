// Package dev holds commands for local development.
package dev

import (
	"context"
	"github.com/chatscope/chatscope/cmd/cli/cliapp"
	"github.com/chatscope/chatscope/internal/backendtest"
	"github.com/chatscope/chatscope/internal/errors"
	"github.com/spf13/cobra"
	"log/slog"
	"net"
	"net/http"
	"time"
)

var Group = &cobra.Group{
	ID:    "dev",
	Title: "Development",
}

const shutdownTimeout = 5 * time.Second

// NewFakeBackendCommand serves the in-memory fake backend so the web client can run without the real one.
func NewFakeBackendCommand() *cobra.Command {
	var (
		addr         string
		chatsPerTick int
		manual       bool
	)
	cmd := &cobra.Command{ //nolint:exhaustruct // cobra defaults
		Use:     "fake-backend",
		GroupID: Group.ID,
		Short:   "Serve an in-memory fake of the chat analysis backend",
		Long: `Serves an in-memory fake of the chat analysis backend. Groups advance one step every time their
chats are read. Website URLs containing "fail" make context gathering fail.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := cliapp.From(cmd)
			if err != nil {
				return err //nolint:wrapcheck // already annotated
			}
			backend := backendtest.New(backendtest.Options{
				ChatsPerTick:  chatsPerTick,
				ManualAdvance: manual,
				Businesses:    nil,
			})
			return serve(cmd.Context(), app.Logger, addr, backend)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:8000", "address to listen on")
	cmd.Flags().IntVar(&chatsPerTick, "chats-per-tick", 3, "chats generated or analyzed per read") //nolint:mnd // fake default
	cmd.Flags().BoolVar(&manual, "manual", false, "never advance groups, useful to inspect in-progress states")
	return cmd
}

// serve runs handler on addr until ctx is done.
func serve(ctx context.Context, logger *slog.Logger, addr string, handler http.Handler) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "listen", slog.String("addr", addr))
	}
	srv := &http.Server{ //nolint:exhaustruct // defaults are fine for a local fake
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	shutdownComplete := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		shutdownComplete <- srv.Shutdown(shutdownCtx)
	}()

	logger.LogAttrs(ctx, slog.LevelInfo, "serving fake backend", slog.Any("addr", listener.Addr()))
	if err = srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve fake backend")
	}
	if err = <-shutdownComplete; err != nil {
		return errors.Wrap(err, "shutdown fake backend")
	}
	return nil
}
