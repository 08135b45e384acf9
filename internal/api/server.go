// Package api serves the analysis service over HTTP. Every route forwards
// to service.Handle; this package only translates requests and responses
// and applies transport middleware.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"pmat/internal/service"
	"pmat/internal/slogutil"
)

// DefaultMaxConnections caps concurrently served requests.
const DefaultMaxConnections = 100

// Options configures a Server.
type Options struct {
	Addr   string
	Logger *slog.Logger

	// CORS enables cross-origin headers. Empty CorsOrigins allows any origin.
	CORS        bool
	CorsOrigins []string

	// MaxConnections bounds in-flight requests; excess requests get 503.
	MaxConnections int
}

// Server represents the HTTP API server
type Server struct {
	svc     *service.Service
	logger  *slog.Logger
	handler http.Handler
	server  *http.Server
	limiter *ConnectionLimiter
}

// NewServer creates a new HTTP server instance
func NewServer(svc *service.Service, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	maxConns := opts.MaxConnections
	if maxConns <= 0 {
		maxConns = DefaultMaxConnections
	}
	s := &Server{
		svc:     svc,
		logger:  logger,
		limiter: NewConnectionLimiter(maxConns),
	}
	s.handler = s.routes(opts)
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware(s.logger))
	r.Use(RecoveryMiddleware(s.logger))
	r.Use(s.limiter.Middleware)

	forward := http.HandlerFunc(s.forward)
	for _, rt := range s.svc.Routes() {
		r.Method(rt[0], chiPattern(rt[1]), forward)
	}
	// Unknown paths and wrong methods still go through the service so the
	// error bodies match the other protocols.
	r.NotFound(forward)
	r.MethodNotAllowed(forward)

	if !opts.CORS {
		return r
	}
	c := cors.New(cors.Options{
		AllowedOrigins: opts.CorsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", HeaderRequestID},
		ExposedHeaders: []string{HeaderRequestID, service.HeaderGateResult},
		MaxAge:         86400,
	})
	return c.Handler(r)
}

// chiPattern turns a service path into a chi route pattern.
func chiPattern(p string) string {
	if prefix, ok := strings.CutSuffix(p, "{rest}"); ok {
		return prefix + "*"
	}
	return p
}

// forward adapts the HTTP request to the service and writes its answer.
func (s *Server) forward(w http.ResponseWriter, r *http.Request) {
	req, err := ToRequest(r)
	if err != nil {
		WriteResponse(w, service.ErrorResponse(err, 0))
		return
	}
	WriteResponse(w, s.svc.Handle(r.Context(), req))
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
