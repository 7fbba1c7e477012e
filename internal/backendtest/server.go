package backendtest

import (
	"net/http/httptest"
)

// Server is a [Backend] listening on a loopback address.
type Server struct {
	*Backend
	URL string
	srv *httptest.Server
}

// NewServer starts a fake backend. Close it when done.
func NewServer(opts Options) *Server {
	backend := New(opts)
	srv := httptest.NewServer(backend)
	return &Server{Backend: backend, URL: srv.URL, srv: srv}
}

func (s *Server) Close() {
	s.srv.Close()
}
