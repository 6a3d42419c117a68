package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/promptwise/promptwise/internal/delivery"
	"github.com/promptwise/promptwise/internal/engine"
	"github.com/promptwise/promptwise/internal/log"
	"github.com/promptwise/promptwise/internal/promptlog"
)

// DefaultPersistTimeout bounds one background persistence write.
const DefaultPersistTimeout = 10 * time.Second

// Generator is the slice of the generation gateway the machine drives.
type Generator interface {
	Optimize(ctx context.Context, prompt string, mode engine.Mode) (string, error)
	Explain(ctx context.Context, original, optimized string, mode engine.Mode) (string, error)
	Followup(ctx context.Context, questions, priorContext, preferences string) (string, error)
}

// Outgoing is one reply produced by a turn. When Plan is set the transport
// renders it (inline message, ordered chunks, or file attachment); otherwise
// Text is a single plain message.
type Outgoing struct {
	Text string
	Plan *delivery.Plan
}

// message wraps plain text as an Outgoing.
func message(text string) Outgoing { return Outgoing{Text: text} }

// planned wraps a generated text in a fresh delivery plan.
func (m *Machine) planned(text string) Outgoing {
	plan := delivery.Select(text, m.maxInline)
	return Outgoing{Plan: &plan}
}

// Config contains the required parameters for the Machine.
type Config struct {
	Generator Generator
	Recorder  promptlog.Recorder
	Store     *SessionStore
	Logger    log.Logger

	// MaxInline is the transport's single-message character limit.
	// Zero uses delivery.DefaultMaxInline.
	MaxInline int

	// PersistTimeout bounds background recorder writes
	// (zero = DefaultPersistTimeout).
	PersistTimeout time.Duration
}

func (cfg Config) validate() error {
	if cfg.Generator == nil {
		return errors.New("generator is required")
	}
	if cfg.Recorder == nil {
		return errors.New("recorder is required")
	}
	if cfg.Store == nil {
		return errors.New("session store is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Machine owns the conversation state-transition table. One Machine serves
// all conversations; per-identity turn locks come from the session store.
type Machine struct {
	gen            Generator
	recorder       promptlog.Recorder
	store          *SessionStore
	logger         log.Logger
	maxInline      int
	persistTimeout time.Duration

	// wg tracks in-flight background persistence writes so shutdown and
	// tests can drain them.
	wg sync.WaitGroup
}

// NewMachine creates a Machine with the given configuration.
func NewMachine(cfg Config) (*Machine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	persistTimeout := cfg.PersistTimeout
	if persistTimeout <= 0 {
		persistTimeout = DefaultPersistTimeout
	}

	return &Machine{
		gen:            cfg.Generator,
		recorder:       cfg.Recorder,
		store:          cfg.Store,
		logger:         cfg.Logger,
		maxInline:      cfg.MaxInline,
		persistTimeout: persistTimeout,
	}, nil
}

// Start begins a conversation for id, replacing any live session outright.
func (m *Machine) Start(id string) []Outgoing {
	unlock := m.store.Lock(id)
	defer unlock()

	m.store.Put(&Session{ID: id, State: StateAwaitingPrompt})
	m.logger.Debug("conversation started", "conversation_id", id)
	return []Outgoing{message(msgWelcome)}
}

// Cancel tears down the conversation for id from any state.
func (m *Machine) Cancel(id string) []Outgoing {
	unlock := m.store.Lock(id)
	defer unlock()

	if m.store.Get(id) == nil {
		return []Outgoing{message(msgNoSession)}
	}
	m.store.Delete(id)
	m.logger.Debug("conversation canceled", "conversation_id", id)
	return []Outgoing{message(msgCanceled)}
}

// Handle processes one turn for the conversation id. Turns for the same
// identity are serialized; a concurrent second input waits its turn rather
// than racing on session fields.
//
// The returned error is non-nil only when ctx was canceled mid-turn;
// everything else, including generation failures, is reported through
// Outgoing replies with the state left ready for retry.
func (m *Machine) Handle(ctx context.Context, id, input string) ([]Outgoing, error) {
	unlock := m.store.Lock(id)
	defer unlock()

	sess := m.store.Get(id)
	if sess == nil {
		return []Outgoing{message(msgNoSession)}, nil
	}

	out, err := m.step(ctx, sess, input)
	if err != nil {
		return nil, err
	}

	if sess.State == StateTerminal {
		m.store.Delete(id)
	} else {
		m.store.Put(sess)
	}
	return out, nil
}

// step applies one input to the session. It mutates sess only on success;
// a failed action leaves the state untouched so the same input can be
// retried.
func (m *Machine) step(ctx context.Context, sess *Session, input string) ([]Outgoing, error) {
	switch sess.State {
	case StateAwaitingPrompt:
		sess.RawPrompt = input
		sess.State = StateAwaitingMode
		return []Outgoing{message(msgAskMode)}, nil

	case StateAwaitingMode:
		return m.stepMode(ctx, sess, input)

	case StateAwaitingFollowupDecision:
		if affirmative(input) {
			sess.State = StateAwaitingFollowupQuestions
			return []Outgoing{message(msgAskQuestions)}, nil
		}
		sess.State = StateAwaitingExplainDecision
		return []Outgoing{message(msgAskExplain)}, nil

	case StateAwaitingFollowupQuestions:
		sess.FollowupQuestions = input
		sess.State = StateAwaitingFollowupAnswers
		return []Outgoing{message(msgAskPreferences)}, nil

	case StateAwaitingFollowupAnswers:
		return m.stepFollowup(ctx, sess, input)

	case StateAwaitingExplainDecision:
		return m.stepExplain(ctx, sess, input)

	default:
		// Terminal sessions are deleted, so this is unreachable through
		// Handle; re-prompt defensively all the same.
		return []Outgoing{message(msgNoSession)}, nil
	}
}

// stepMode runs the optimize action: mode in, optimized text out.
func (m *Machine) stepMode(ctx context.Context, sess *Session, input string) ([]Outgoing, error) {
	mode := engine.NormalizeMode(input)

	optimized, err := m.gen.Optimize(ctx, sess.RawPrompt, mode)
	if err != nil {
		return m.generationFailed(ctx, sess, "optimize", err)
	}

	sess.Mode = mode
	sess.Optimized = optimized
	m.recordOptimization(sess.ID, sess.RawPrompt, optimized, mode)

	out := []Outgoing{m.planned(optimized)}
	if mode.OffersFollowup() {
		sess.State = StateAwaitingFollowupDecision
		out = append(out, message(msgAskFollowup))
	} else {
		sess.State = StateAwaitingExplainDecision
		out = append(out, message(msgAskExplain))
	}
	return out, nil
}

// stepFollowup runs the follow-up action with the collected questions and
// the preferences from this input ("no" meaning none).
func (m *Machine) stepFollowup(ctx context.Context, sess *Session, input string) ([]Outgoing, error) {
	preferences := input
	if strings.EqualFold(strings.TrimSpace(preferences), "no") {
		preferences = ""
	}

	answer, err := m.gen.Followup(ctx, sess.FollowupQuestions, sess.Optimized, preferences)
	if err != nil {
		return m.generationFailed(ctx, sess, "followup", err)
	}

	sess.FollowupPreferences = preferences
	m.recordFollowup(sess.RecordID, sess.FollowupQuestions, answer, preferences)

	sess.State = StateAwaitingExplainDecision
	return []Outgoing{m.planned(answer), message(msgAskExplain)}, nil
}

// stepExplain runs the explain action on an affirmative answer, otherwise
// finishes the conversation.
func (m *Machine) stepExplain(ctx context.Context, sess *Session, input string) ([]Outgoing, error) {
	if !affirmative(input) {
		sess.State = StateTerminal
		return []Outgoing{message(msgDone)}, nil
	}

	explanation, err := m.gen.Explain(ctx, sess.RawPrompt, sess.Optimized, sess.Mode)
	if err != nil {
		return m.generationFailed(ctx, sess, "explain", err)
	}

	sess.State = StateTerminal

	analysis, ok := engine.ExtractAnalysis(explanation)
	if !ok {
		// No parseable block is a normal outcome: show the prose as-is.
		return []Outgoing{m.planned(explanation)}, nil
	}

	m.recordExplanation(sess.RecordID, analysis)
	return formatAnalysis(analysis), nil
}

// generationFailed maps a gateway error to a retry reply, leaving the
// session state unchanged. Context cancellation propagates instead: the
// transport is going away and there is nobody to re-prompt.
func (m *Machine) generationFailed(ctx context.Context, sess *Session, op string, err error) ([]Outgoing, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	m.logger.Warn("generation failed, state retained",
		"conversation_id", sess.ID,
		"op", op,
		"state", sess.State.String(),
		"error", err)
	return []Outgoing{message(msgRetry)}, nil
}

// affirmative implements the yes/no rule: a leading 'y' or 'Y' is yes,
// anything else is no. Preserved exactly because changing it changes
// observable conversation behavior.
func affirmative(input string) bool {
	tr := strings.TrimSpace(input)
	return tr != "" && (tr[0] == 'y' || tr[0] == 'Y')
}

// Wait blocks until all in-flight persistence writes finish. Called on
// shutdown and by tests.
func (m *Machine) Wait() {
	m.wg.Wait()
}

// recordOptimization logs the optimize run in the background and, once the
// collaborator returns a record id, attaches it to the live session under
// the turn lock. The user-visible reply never waits for this.
func (m *Machine) recordOptimization(id, prompt, optimized string, mode engine.Mode) {
	if !m.recorder.Enabled() {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), m.persistTimeout)
		defer cancel()

		recordID, err := m.recorder.LogOptimization(ctx, prompt, optimized, string(mode))
		if err != nil {
			m.logger.Warn("optimization persistence failed", "conversation_id", id, "error", err)
			return
		}

		unlock := m.store.Lock(id)
		defer unlock()
		if sess := m.store.Get(id); sess != nil && sess.RecordID == "" {
			sess.RecordID = recordID
			m.store.Put(sess)
		}
	}()
}

// recordFollowup logs a follow-up exchange in the background. Skipped
// silently when no record id was captured.
func (m *Machine) recordFollowup(recordID, questions, answers, preferences string) {
	if !m.recorder.Enabled() || recordID == "" {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), m.persistTimeout)
		defer cancel()

		if err := m.recorder.LogFollowup(ctx, recordID, questions, answers, preferences); err != nil {
			m.logger.Warn("followup persistence failed", "record_id", recordID, "error", err)
		}
	}()
}

// recordExplanation logs the structured analysis in the background.
// Skipped silently when no record id was captured.
func (m *Machine) recordExplanation(recordID string, analysis *engine.Analysis) {
	if !m.recorder.Enabled() || recordID == "" {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), m.persistTimeout)
		defer cancel()

		if err := m.recorder.LogExplanation(ctx, recordID, analysis); err != nil {
			m.logger.Warn("explanation persistence failed", "record_id", recordID, "error", err)
		}
	}()
}
