// Package promptlog persists optimization activity to PostgreSQL: every
// optimize run, and the follow-up answers and explanations correlated to it.
//
// Persistence is strictly best-effort for the rest of the system. A caller
// without a configured database gets the Disabled recorder, whose operations
// are skipped rather than attempted, and no recorder error may ever reach an
// end user.
package promptlog

import (
	"context"

	"github.com/promptwise/promptwise/internal/engine"
)

// Recorder is the persistence collaborator interface the service depends on.
// Record identifiers are opaque correlation tokens: later writes tagged with
// an empty id are skipped, never failed.
type Recorder interface {
	// Enabled reports whether the collaborator is configured. When false,
	// callers skip logging calls entirely.
	Enabled() bool

	// LogOptimization records one optimize run and returns the record id
	// used to correlate later writes.
	LogOptimization(ctx context.Context, prompt, optimized, mode string) (string, error)

	// LogFollowup records a deep-research follow-up exchange.
	LogFollowup(ctx context.Context, recordID, questions, answers, preferences string) error

	// LogExplanation records the structured analysis block of an explanation.
	LogExplanation(ctx context.Context, recordID string, analysis *engine.Analysis) error
}

// Disabled is the Recorder used when no database is configured.
// All operations are silent no-ops.
type Disabled struct{}

// Enabled always reports false.
func (Disabled) Enabled() bool { return false }

// LogOptimization returns an empty record id; nothing is written.
func (Disabled) LogOptimization(context.Context, string, string, string) (string, error) {
	return "", nil
}

// LogFollowup does nothing.
func (Disabled) LogFollowup(context.Context, string, string, string, string) error { return nil }

// LogExplanation does nothing.
func (Disabled) LogExplanation(context.Context, string, *engine.Analysis) error { return nil }

var _ Recorder = Disabled{}
