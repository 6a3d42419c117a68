package promptlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/promptwise/promptwise/internal/engine"
	"github.com/promptwise/promptwise/internal/log"
)

// Querier is the subset of pgxpool.Pool the store needs. Defined here so
// tests can substitute a mock pool.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL-backed Recorder.
//
// Safe for concurrent use; all synchronization is delegated to the pool.
type Store struct {
	db     Querier
	model  string // generation model name recorded with each optimization
	logger log.Logger
}

// NewStore creates a Store over the given pool. model names the generation
// model whose output is being logged.
func NewStore(pool *pgxpool.Pool, model string, logger log.Logger) *Store {
	return newStore(pool, model, logger)
}

// newStore exists so tests can inject a mock Querier.
func newStore(db Querier, model string, logger log.Logger) *Store {
	return &Store{db: db, model: model, logger: logger}
}

// Enabled always reports true: a Store only exists when configured.
func (s *Store) Enabled() bool { return true }

// LogOptimization inserts one optimize run and returns the generated
// record id.
func (s *Store) LogOptimization(ctx context.Context, prompt, optimized, mode string) (string, error) {
	var id string
	err := s.db.QueryRow(ctx,
		`INSERT INTO optimizations (prompt, optimized, mode, model)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id::text`,
		prompt, optimized, mode, s.model,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert optimization: %w", err)
	}

	s.logger.Debug("logged optimization", "record_id", id, "mode", mode)
	return id, nil
}

// LogFollowup inserts a follow-up exchange correlated to recordID.
// recordID is stored as an opaque token; no referential check is made, so
// caller-supplied correlation ids are accepted as-is.
func (s *Store) LogFollowup(ctx context.Context, recordID, questions, answers, preferences string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO followups (record_id, questions, answers, preferences)
		 VALUES ($1, $2, $3, $4)`,
		recordID, questions, answers, preferences,
	)
	if err != nil {
		return fmt.Errorf("insert followup: %w", err)
	}

	s.logger.Debug("logged followup", "record_id", recordID)
	return nil
}

// LogExplanation inserts the structured analysis correlated to recordID.
func (s *Store) LogExplanation(ctx context.Context, recordID string, analysis *engine.Analysis) error {
	payload, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO explanations (record_id, analysis)
		 VALUES ($1, $2)`,
		recordID, payload,
	)
	if err != nil {
		return fmt.Errorf("insert explanation: %w", err)
	}

	s.logger.Debug("logged explanation", "record_id", recordID)
	return nil
}

var _ Recorder = (*Store)(nil)
