package e2etest

import (
	"context"
	"github.com/chatscope/chatscope/internal/errors"
	"github.com/chatscope/chatscope/internal/logging"
	"io"
	"log/slog"
)

const (
	// LogAddrKey is the attribute the server logs its listening address with.
	LogAddrKey = "addr"
	// ReadyPath answers 200 once the server accepts requests.
	ReadyPath = "/api/healthy"
)

// RunFunc starts a server and blocks until ctx is done. It has the signature of the web server's run function.
type RunFunc func(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error

type Server struct {
	url    string
	client *Client
}

// addrRecorder forwards records to the wrapped handler and reports the first LogAddrKey attribute it sees.
type addrRecorder struct {
	slog.Handler
	addrs chan<- string
}

func (h addrRecorder) Handle(ctx context.Context, r slog.Record) error {
	r.Attrs(func(a slog.Attr) bool {
		if a.Key != LogAddrKey {
			return true
		}
		select {
		case h.addrs <- a.Value.String():
		default:
		}
		return false
	})
	return h.Handler.Handle(ctx, r) //nolint:wrapcheck // passthrough
}

func (h addrRecorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	return addrRecorder{Handler: h.Handler.WithAttrs(attrs), addrs: h.addrs}
}

func (h addrRecorder) WithGroup(name string) slog.Handler {
	return addrRecorder{Handler: h.Handler.WithGroup(name), addrs: h.addrs}
}

// StartServer runs the server in the background and returns once ReadyPath answers.
//
// logSink receives the server logs, usually [io.Discard]. The server has to log the address it listens on with
// LogAddrKey so that dynamically allocated ports work. Cancel ctx to stop the server.
func StartServer(
	ctx context.Context,
	logSink io.Writer,
	lookupEnv func(string) (string, bool),
	run RunFunc,
) (*Server, error) {
	ctx, cancel := context.WithCancelCause(ctx)

	addrs := make(chan string, 1)
	base := logging.New(logSink, "text", slog.LevelDebug).Handler()
	logger := slog.New(addrRecorder{Handler: base, addrs: addrs})

	go func() {
		if err := run(ctx, logger, lookupEnv); err != nil {
			cancel(err)
		}
	}()

	var addr string
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(context.Cause(ctx), "server stopped before it was ready")
	case addr = <-addrs:
	}

	serverURL := "http://" + addr
	client, err := NewClient(serverURL)
	if err != nil {
		return nil, errors.Wrap(err, "new client")
	}
	if err = client.WaitForReady(ctx, ReadyPath); err != nil {
		return nil, errors.Wrap(err, "wait for ready", slog.String("url", serverURL))
	}
	return &Server{url: serverURL, client: client}, nil
}

// Client keeps its cookies between requests, so session and CSRF cookies carry over.
func (s *Server) Client() *Client {
	return s.client
}

func (s *Server) URL() string {
	return s.url
}
