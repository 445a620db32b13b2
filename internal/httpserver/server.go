// Package httpserver wraps net/http server lifecycle management.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/markaproof/marka/internal/config"
	"github.com/markaproof/marka/pkg/logger"
)

// Server manages an HTTP server's lifecycle.
type Server struct {
	srv *http.Server
	log *logger.Logger
}

// New creates a Server for the given configuration and handler.
func New(cfg config.ServerConfig, log *logger.Logger, handler http.Handler) *Server {
	if log == nil {
		log = logger.NewDefault("httpserver")
	}
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       2 * time.Minute,
			WriteTimeout:      2 * time.Minute,
			IdleTimeout:       2 * time.Minute,
		},
		log: log,
	}
}

// Start begins serving and blocks until the server stops.
func (s *Server) Start() error {
	s.log.Infof("HTTP server listening on %s", s.srv.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
