package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/promptwise/promptwise/internal/log"
	"github.com/promptwise/promptwise/internal/promptlog"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:3500"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout limits header reads to guard against Slowloris
	// clients.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Generation calls dominate, so it exceeds the gateway timeout.
	WriteTimeout = 3 * time.Minute

	// IdleTimeout is the maximum wait for the next request on keep-alive
	// connections.
	IdleTimeout = 120 * time.Second

	// DefaultPersistTimeout bounds one in-request persistence write.
	DefaultPersistTimeout = 10 * time.Second
)

// ServerConfig contains the parameters for creating the API server.
type ServerConfig struct {
	Generator Generator
	Recorder  promptlog.Recorder
	Logger    log.Logger

	// Pool enables database readiness checks; nil when persistence is
	// disabled.
	Pool *pgxpool.Pool

	// PersistTimeout bounds each persistence write
	// (zero = DefaultPersistTimeout).
	PersistTimeout time.Duration
}

func (cfg ServerConfig) validate() error {
	if cfg.Generator == nil {
		return errors.New("generator is required")
	}
	if cfg.Recorder == nil {
		return errors.New("recorder is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Server is the HTTP server for the prompt-optimization REST API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger
}

// NewServer creates a new HTTP server with all routes registered.
func NewServer(cfg ServerConfig) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	persistTimeout := cfg.PersistTimeout
	if persistTimeout <= 0 {
		persistTimeout = DefaultPersistTimeout
	}

	mux := http.NewServeMux()
	NewHealthHandler(cfg.Pool, cfg.Logger).RegisterRoutes(mux)
	NewPromptHandler(cfg.Generator, cfg.Recorder, cfg.Logger, persistTimeout).RegisterRoutes(mux)

	return &Server{mux: mux, logger: cfg.Logger}, nil
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → handler.
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware(s.logger), loggingMiddleware(s.logger))
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
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
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
