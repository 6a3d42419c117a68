package conversation

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptwise/promptwise/internal/delivery"
	"github.com/promptwise/promptwise/internal/engine"
	"github.com/promptwise/promptwise/internal/log"
	"github.com/promptwise/promptwise/internal/promptlog"
)

// fakeGenerator scripts gateway responses and records the arguments of
// every call.
type fakeGenerator struct {
	optimizeOut string
	optimizeErr error
	explainOut  string
	explainErr  error
	followupOut string
	followupErr error

	optimizeCalls []engine.Mode
	explainCalls  int
	followupPrefs []string
}

func (f *fakeGenerator) Optimize(_ context.Context, _ string, mode engine.Mode) (string, error) {
	f.optimizeCalls = append(f.optimizeCalls, mode)
	if f.optimizeErr != nil {
		return "", f.optimizeErr
	}
	return f.optimizeOut, nil
}

func (f *fakeGenerator) Explain(_ context.Context, _, _ string, _ engine.Mode) (string, error) {
	f.explainCalls++
	if f.explainErr != nil {
		return "", f.explainErr
	}
	return f.explainOut, nil
}

func (f *fakeGenerator) Followup(_ context.Context, _, _, preferences string) (string, error) {
	f.followupPrefs = append(f.followupPrefs, preferences)
	if f.followupErr != nil {
		return "", f.followupErr
	}
	return f.followupOut, nil
}

// fakeRecorder captures persistence calls behind a mutex: the machine
// writes from background goroutines.
type fakeRecorder struct {
	mu sync.Mutex

	recordID      string
	optimizeErr   error
	optimizations int
	followups     int
	explanations  int
	followupIDs   []string
}

func (f *fakeRecorder) Enabled() bool { return true }

func (f *fakeRecorder) LogOptimization(context.Context, string, string, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.optimizations++
	if f.optimizeErr != nil {
		return "", f.optimizeErr
	}
	return f.recordID, nil
}

func (f *fakeRecorder) LogFollowup(_ context.Context, recordID, _, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.followups++
	f.followupIDs = append(f.followupIDs, recordID)
	return nil
}

func (f *fakeRecorder) LogExplanation(context.Context, string, *engine.Analysis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.explanations++
	return nil
}

func (f *fakeRecorder) counts() (opt, fup, exp int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.optimizations, f.followups, f.explanations
}

func newTestMachine(t *testing.T, gen Generator, rec promptlog.Recorder) *Machine {
	t.Helper()

	if rec == nil {
		rec = promptlog.Disabled{}
	}
	m, err := NewMachine(Config{
		Generator: gen,
		Recorder:  rec,
		Store:     NewSessionStore(DefaultSessionTTL),
		Logger:    log.NewNop(),
	})
	require.NoError(t, err)
	return m
}

// handle runs one turn and asserts it carries no transport error.
func handle(t *testing.T, m *Machine, id, input string) []Outgoing {
	t.Helper()

	out, err := m.Handle(t.Context(), id, input)
	require.NoError(t, err)
	require.NotEmpty(t, out)
	return out
}

func TestNewMachineValidation(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	store := NewSessionStore(DefaultSessionTTL)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing generator", Config{Recorder: promptlog.Disabled{}, Store: store, Logger: log.NewNop()}},
		{"missing recorder", Config{Generator: gen, Store: store, Logger: log.NewNop()}},
		{"missing store", Config{Generator: gen, Recorder: promptlog.Disabled{}, Logger: log.NewNop()}},
		{"missing logger", Config{Generator: gen, Recorder: promptlog.Disabled{}, Store: store}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewMachine(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestHandleWithoutSession(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, &fakeGenerator{}, nil)

	out := handle(t, m, "alice", "hello")
	assert.Equal(t, msgNoSession, out[0].Text)
}

func TestStartReplacesLiveSession(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t, &fakeGenerator{optimizeOut: "better"}, nil)

	m.Start("alice")
	handle(t, m, "alice", "first prompt")

	out := m.Start("alice")
	assert.Equal(t, msgWelcome, out[0].Text)

	// The fresh session is back at the prompt step, so this input is a
	// prompt, not a mode.
	out = handle(t, m, "alice", "second prompt")
	assert.Equal(t, msgAskMode, out[0].Text)
}

func TestFullFlowWithoutFollowup(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{optimizeOut: "optimized text", explainOut: "plain explanation"}
	m := newTestMachine(t, gen, nil)

	m.Start("alice")
	out := handle(t, m, "alice", "write me a poem")
	assert.Equal(t, msgAskMode, out[0].Text)

	out = handle(t, m, "alice", "clarity")
	require.Len(t, out, 2)
	require.NotNil(t, out[0].Plan)
	assert.Equal(t, delivery.Inline, out[0].Plan.Kind)
	assert.Equal(t, "optimized text", out[0].Plan.Text)
	// Clarity never offers the follow-up branch.
	assert.Equal(t, msgAskExplain, out[1].Text)

	out = handle(t, m, "alice", "yes")
	require.NotNil(t, out[0].Plan)
	assert.Equal(t, "plain explanation", out[0].Plan.Text)
	assert.Equal(t, 1, gen.explainCalls)

	// Terminal: the session is gone.
	out = handle(t, m, "alice", "anything")
	assert.Equal(t, msgNoSession, out[0].Text)
}

func TestDeepResearchOffersFollowup(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{optimizeOut: "optimized", followupOut: "answers"}
	m := newTestMachine(t, gen, nil)

	m.Start("alice")
	handle(t, m, "alice", "research quantum computing")

	out := handle(t, m, "alice", "deep-research")
	require.Len(t, out, 2)
	assert.Equal(t, msgAskFollowup, out[1].Text)

	out = handle(t, m, "alice", "yes")
	assert.Equal(t, msgAskQuestions, out[0].Text)

	out = handle(t, m, "alice", "What time range? Which sources?")
	assert.Equal(t, msgAskPreferences, out[0].Text)

	out = handle(t, m, "alice", "last five years, peer reviewed only")
	require.Len(t, out, 2)
	require.NotNil(t, out[0].Plan)
	assert.Equal(t, "answers", out[0].Plan.Text)
	assert.Equal(t, msgAskExplain, out[1].Text)
	require.Len(t, gen.followupPrefs, 1)
	assert.Equal(t, "last five years, peer reviewed only", gen.followupPrefs[0])
}

func TestFollowupDeclinedSkipsToExplain(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{optimizeOut: "optimized"}
	m := newTestMachine(t, gen, nil)

	m.Start("alice")
	handle(t, m, "alice", "prompt")
	handle(t, m, "alice", "deep_research")

	out := handle(t, m, "alice", "nah")
	assert.Equal(t, msgAskExplain, out[0].Text)
	assert.Empty(t, gen.followupPrefs, "declining must not call the gateway")
}

func TestFollowupNoPreferencesMeansEmpty(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{optimizeOut: "optimized", followupOut: "answers"}
	m := newTestMachine(t, gen, nil)

	m.Start("alice")
	handle(t, m, "alice", "prompt")
	handle(t, m, "alice", "deep-research")
	handle(t, m, "alice", "y")
	handle(t, m, "alice", "the questions")
	handle(t, m, "alice", "No")

	require.Len(t, gen.followupPrefs, 1)
	assert.Empty(t, gen.followupPrefs[0])
}

func TestExplainDeclinedEndsConversation(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{optimizeOut: "optimized"}
	m := newTestMachine(t, gen, nil)

	m.Start("alice")
	handle(t, m, "alice", "prompt")
	handle(t, m, "alice", "clarity")

	out := handle(t, m, "alice", "no thanks")
	assert.Equal(t, msgDone, out[0].Text)
	assert.Zero(t, gen.explainCalls)

	out = handle(t, m, "alice", "hello")
	assert.Equal(t, msgNoSession, out[0].Text)
}

func TestExplainStructuredAnalysis(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{
		optimizeOut: "optimized",
		explainOut: "Here you go:\n```json\n" +
			`{"original_prompt": {"strengths": ["concise"], "weaknesses": ["vague"]},` +
			` "llm_understanding_improvements": ["clear goal"],` +
			` "tips_for_future_prompts": ["state the audience"]}` +
			"\n```",
	}
	m := newTestMachine(t, gen, nil)

	m.Start("alice")
	handle(t, m, "alice", "prompt")
	handle(t, m, "alice", "clarity")

	out := handle(t, m, "alice", "yes")
	require.Len(t, out, 5)
	assert.Equal(t, analysisHeader, out[0].Text)
	assert.Contains(t, out[1].Text, "concise")
	assert.Contains(t, out[2].Text, "vague")
	assert.Contains(t, out[3].Text, "clear goal")
	assert.Contains(t, out[4].Text, "state the audience")
	for _, o := range out {
		assert.Nil(t, o.Plan, "analysis sections are plain messages")
	}
}

func TestExplainSkipsEmptyAnalysisSections(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{
		optimizeOut: "optimized",
		explainOut: "```json\n" +
			`{"original_prompt": {"strengths": [], "weaknesses": ["vague"]},` +
			` "llm_understanding_improvements": [], "tips_for_future_prompts": []}` +
			"\n```",
	}
	m := newTestMachine(t, gen, nil)

	m.Start("alice")
	handle(t, m, "alice", "prompt")
	handle(t, m, "alice", "clarity")

	out := handle(t, m, "alice", "yes")
	require.Len(t, out, 2)
	assert.Equal(t, analysisHeader, out[0].Text)
	assert.Contains(t, out[1].Text, "vague")
}

func TestGenerationFailureKeepsState(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{optimizeErr: engine.ErrUnavailable}
	m := newTestMachine(t, gen, nil)

	m.Start("alice")
	handle(t, m, "alice", "prompt")

	out := handle(t, m, "alice", "clarity")
	assert.Equal(t, msgRetry, out[0].Text)

	// Same state, same input: the retry goes through once the gateway
	// recovers.
	gen.optimizeErr = nil
	gen.optimizeOut = "recovered"
	out = handle(t, m, "alice", "clarity")
	require.NotNil(t, out[0].Plan)
	assert.Equal(t, "recovered", out[0].Plan.Text)
	assert.Len(t, gen.optimizeCalls, 2)
}

func TestExplainAndFollowupUnreachableBeforeOptimize(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	m := newTestMachine(t, gen, nil)

	// At the prompt step an affirmative answer is just the prompt text;
	// no gateway call of any kind happens yet.
	m.Start("alice")
	out := handle(t, m, "alice", "yes")
	assert.Equal(t, msgAskMode, out[0].Text)
	assert.Empty(t, gen.optimizeCalls)
	assert.Zero(t, gen.explainCalls)
	assert.Empty(t, gen.followupPrefs)

	// While optimize keeps failing the conversation stays at the mode
	// step: no input sequence reaches explain or follow-up past it.
	gen.optimizeErr = engine.ErrUnavailable
	for _, input := range []string{"clarity", "yes", "y"} {
		out = handle(t, m, "alice", input)
		assert.Equal(t, msgRetry, out[0].Text)
	}
	assert.Len(t, gen.optimizeCalls, 3)
	assert.Zero(t, gen.explainCalls)
	assert.Empty(t, gen.followupPrefs)
}

func TestCanceledContextPropagates(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{optimizeErr: context.Canceled}
	m := newTestMachine(t, gen, nil)

	m.Start("alice")
	handle(t, m, "alice", "prompt")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := m.Handle(ctx, "alice", "clarity")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCancelTearsDownAnyState(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{optimizeOut: "optimized"}
	m := newTestMachine(t, gen, nil)

	m.Start("alice")
	handle(t, m, "alice", "prompt")
	handle(t, m, "alice", "clarity")

	out := m.Cancel("alice")
	assert.Equal(t, msgCanceled, out[0].Text)

	out = handle(t, m, "alice", "yes")
	assert.Equal(t, msgNoSession, out[0].Text)

	out = m.Cancel("alice")
	assert.Equal(t, msgNoSession, out[0].Text)
}

func TestChunkedDeliveryPlan(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", delivery.DefaultMaxInline*2)
	gen := &fakeGenerator{optimizeOut: long}
	m := newTestMachine(t, gen, nil)

	m.Start("alice")
	handle(t, m, "alice", "prompt")

	out := handle(t, m, "alice", "clarity")
	require.NotNil(t, out[0].Plan)
	assert.Equal(t, delivery.Chunked, out[0].Plan.Kind)
	assert.Equal(t, long, strings.Join(out[0].Plan.Chunks, ""))
}

func TestPersistenceAttachesRecordID(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{optimizeOut: "optimized", followupOut: "answers"}
	rec := &fakeRecorder{recordID: "rec-123"}
	m := newTestMachine(t, gen, rec)

	m.Start("alice")
	handle(t, m, "alice", "prompt")
	handle(t, m, "alice", "deep-research")
	m.Wait()

	handle(t, m, "alice", "yes")
	handle(t, m, "alice", "the questions")
	handle(t, m, "alice", "no")
	m.Wait()

	opt, fup, _ := rec.counts()
	assert.Equal(t, 1, opt)
	assert.Equal(t, 1, fup)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.followupIDs, 1)
	assert.Equal(t, "rec-123", rec.followupIDs[0])
}

func TestPersistenceFailureInvisibleToUser(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{optimizeOut: "optimized", explainOut: "explanation"}
	rec := &fakeRecorder{optimizeErr: context.DeadlineExceeded}
	m := newTestMachine(t, gen, rec)

	m.Start("alice")
	handle(t, m, "alice", "prompt")

	out := handle(t, m, "alice", "clarity")
	require.NotNil(t, out[0].Plan)
	assert.Equal(t, "optimized", out[0].Plan.Text)
	m.Wait()

	// No record id was captured, so the follow-on writes are skipped
	// and the conversation still completes.
	out = handle(t, m, "alice", "yes")
	require.NotNil(t, out[0].Plan)
	m.Wait()

	_, fup, exp := rec.counts()
	assert.Zero(t, fup)
	assert.Zero(t, exp)
}

func TestDisabledRecorderNeverCalled(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{optimizeOut: "optimized"}
	m := newTestMachine(t, gen, nil)

	m.Start("alice")
	handle(t, m, "alice", "prompt")
	handle(t, m, "alice", "clarity")
	handle(t, m, "alice", "no")
	m.Wait()
}

func TestAffirmative(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  bool
	}{
		{"yes", true},
		{"y", true},
		{"Yes", true},
		{"  yeah  ", true},
		{"yup", true},
		{"no", false},
		{"nope", false},
		{"", false},
		{"  ", false},
		{"sure", false},
		{"ok", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, affirmative(tt.input))
		})
	}
}
