// Package app provides application initialization and dependency wiring.
//
// Setup builds the shared core — logger, Genkit, generation engine, and the
// persistence recorder — used by both the chat and serve commands. The
// recorder degrades to a no-op when no PostgreSQL URL is configured.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/promptwise/promptwise/internal/config"
	"github.com/promptwise/promptwise/internal/conversation"
	"github.com/promptwise/promptwise/internal/engine"
	"github.com/promptwise/promptwise/internal/log"
	"github.com/promptwise/promptwise/internal/promptlog"
)

// App is the application container.
type App struct {
	Config   *config.Config
	Logger   log.Logger
	Genkit   *genkit.Genkit
	Engine   *engine.Engine
	Recorder promptlog.Recorder

	// Pool is nil when persistence is disabled.
	Pool *pgxpool.Pool
}

// Setup initializes all shared components. Fail-fast: a configured but
// unreachable database is a startup error, only an unconfigured one
// downgrades to the disabled recorder.
func Setup(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit with googleai provider")
	}

	eng, err := engine.New(engine.Config{
		Genkit: g,
		Logger: logger.With("component", "engine"),
		Model:  cfg.ModelName,
	})
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Genkit:   g,
		Engine:   eng,
		Recorder: promptlog.Disabled{},
	}

	if cfg.PersistenceEnabled() {
		if err := promptlog.Migrate(cfg.PostgresURL, logger.With("component", "migrate")); err != nil {
			return nil, fmt.Errorf("running migrations: %w", err)
		}

		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("creating database pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("pinging database: %w", err)
		}

		a.Pool = pool
		a.Recorder = promptlog.NewStore(pool, cfg.ModelName, logger.With("component", "promptlog"))
		logger.Info("persistence enabled")
	} else {
		logger.Info("persistence disabled, optimization runs will not be logged")
	}

	return a, nil
}

// NewMachine creates the conversation state machine backed by this App's
// engine and recorder.
func (a *App) NewMachine() (*conversation.Machine, error) {
	machine, err := conversation.NewMachine(conversation.Config{
		Generator: a.Engine,
		Recorder:  a.Recorder,
		Store:     conversation.NewSessionStore(a.Config.SessionTTL),
		Logger:    a.Logger.With("component", "conversation"),
		MaxInline: a.Config.MaxInline,
	})
	if err != nil {
		return nil, fmt.Errorf("creating state machine: %w", err)
	}
	return machine, nil
}

// Close releases application resources.
func (a *App) Close() error {
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Info("database pool closed")
	}
	return nil
}
