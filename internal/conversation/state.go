// Package conversation implements the multi-turn prompt-optimization
// workflow: a finite-state machine that walks one chat identity from a raw
// prompt through mode selection, optimization, optional deep-research
// follow-ups, and an optional explanation.
//
// The machine is transport-agnostic. Each turn consumes one input and
// produces an ordered slice of Outgoing replies; the transport decides how
// to put them on the wire using the embedded delivery plans.
package conversation

import (
	"github.com/promptwise/promptwise/internal/engine"
)

// State identifies the input the conversation is waiting for next.
// States are ordered by workflow progress.
type State int

// Conversation states. A session holds exactly one at a time and all
// transitions are deterministic given (state, input, session data).
const (
	// StateAwaitingPrompt waits for the raw prompt text.
	StateAwaitingPrompt State = iota
	// StateAwaitingMode waits for the optimization mode name.
	StateAwaitingMode
	// StateAwaitingFollowupDecision waits for yes/no on answering
	// follow-up questions. Reached only from deep-research mode.
	StateAwaitingFollowupDecision
	// StateAwaitingFollowupQuestions waits for the questions the model asked.
	StateAwaitingFollowupQuestions
	// StateAwaitingFollowupAnswers waits for preferences/answers ("no" = none).
	StateAwaitingFollowupAnswers
	// StateAwaitingExplainDecision waits for yes/no on the explanation.
	StateAwaitingExplainDecision
	// StateTerminal means the workflow finished; the session is discarded.
	StateTerminal
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateAwaitingPrompt:
		return "awaiting_prompt"
	case StateAwaitingMode:
		return "awaiting_mode"
	case StateAwaitingFollowupDecision:
		return "awaiting_followup_decision"
	case StateAwaitingFollowupQuestions:
		return "awaiting_followup_questions"
	case StateAwaitingFollowupAnswers:
		return "awaiting_followup_answers"
	case StateAwaitingExplainDecision:
		return "awaiting_explain_decision"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Session is the per-conversation mutable state carried across turns.
// It is mutated exclusively by the Machine, under the per-identity turn
// lock, and discarded once the workflow reaches StateTerminal or the user
// cancels.
type Session struct {
	// ID is the opaque conversation identity, stable for the session's
	// lifetime.
	ID string

	State State

	// RawPrompt is the user's original text. Set on entering
	// StateAwaitingMode and immutable afterward.
	RawPrompt string

	// Mode selects the optimization strategy and whether the follow-up
	// branch is offered.
	Mode engine.Mode

	// Optimized is the full aggregated optimize output; required input to
	// the later explain and follow-up operations.
	Optimized string

	// RecordID correlates persistence writes to the optimize record.
	// Empty when the recorder is disabled or the write failed; later
	// writes then skip correlation silently.
	RecordID string

	// Follow-up branch scratch fields, populated only inside that branch.
	FollowupQuestions   string
	FollowupPreferences string
}
