// Package api exposes the assistant over HTTP.
//
// Endpoints:
//
//	POST /api/chat           one conversational turn (JSON in, JSON out)
//	POST /api/chat/stream    same turn with SSE incremental delivery
//	GET  /api/threads        list conversation threads
//	GET  /api/threads/{id}   full message history of one thread
//	POST /api/ingest         index a document into a thread's collection
//	GET  /health             liveness probe
//	GET  /ready              readiness probe (pings the database)
//
// File structure mirrors the endpoints: server.go owns setup and
// lifecycle, middleware.go the logging/recovery chain, response.go the
// JSON helpers, and one file per handler group.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arahq/ara/internal/log"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:3400"

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout guards against slow-header clients.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is generous because a chat turn can run several
	// model and tool round trips.
	WriteTimeout = 120 * time.Second

	// IdleTimeout closes stale keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP surface over the engine and stores.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	health  *HealthHandler
	threads *ThreadHandler
	chat    *ChatHandler
	ingest  *IngestHandler
}

// Config carries the server's dependencies.
type Config struct {
	Engine  Chatter
	Threads ThreadReader
	Ingest  Ingestor

	// Pool backs the readiness probe. Optional.
	Pool *pgxpool.Pool

	Logger log.Logger
}

// NewServer creates a server with all routes registered.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	mux := http.NewServeMux()
	s := &Server{
		mux:     mux,
		logger:  logger,
		health:  NewHealthHandler(cfg.Pool, logger),
		threads: NewThreadHandler(cfg.Threads, logger),
		chat:    NewChatHandler(cfg.Engine, logger),
		ingest:  NewIngestHandler(cfg.Ingest, logger),
	}

	s.health.RegisterRoutes(mux)
	s.threads.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)
	s.ingest.RegisterRoutes(mux)

	return s
}

// Handler returns the mux wrapped in recovery and logging middleware.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
	)
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
