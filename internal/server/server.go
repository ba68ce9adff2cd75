package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

const (
	defaultPort       = "8080"
	maxHeaderBytes    = 1 << 20 // 1 MB
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 60 * time.Second
)

// Server wraps an *http.Server to provide start/shutdown lifecycle.
// No write timeout is set: the websocket feed keeps connections open and
// manages its own write deadlines.
type Server struct {
	httpServer *http.Server
}

// New builds a server for port ("8080" or ":8080"; empty means 8080).
func New(port string, handler http.Handler) *Server {
	return &Server{httpServer: &http.Server{
		Addr:              normalizeAddr(port),
		Handler:           handler,
		MaxHeaderBytes:    maxHeaderBytes,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}}
}

// Addr returns the listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

func normalizeAddr(port string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		port = defaultPort
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// Run serves until Shutdown is called. A shutdown is not reported as an error.
func (s *Server) Run() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server, allowing in-flight requests to complete.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
