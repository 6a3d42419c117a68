package tui

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptwise/promptwise/internal/conversation"
	"github.com/promptwise/promptwise/internal/delivery"
	"github.com/promptwise/promptwise/internal/engine"
	"github.com/promptwise/promptwise/internal/log"
	"github.com/promptwise/promptwise/internal/promptlog"
)

type fakeGenerator struct {
	optimizeOut string
}

func (f *fakeGenerator) Optimize(context.Context, string, engine.Mode) (string, error) {
	return f.optimizeOut, nil
}

func (f *fakeGenerator) Explain(context.Context, string, string, engine.Mode) (string, error) {
	return "explanation", nil
}

func (f *fakeGenerator) Followup(context.Context, string, string, string) (string, error) {
	return "answers", nil
}

// blockingGenerator parks Optimize until released, signalling entry.
type blockingGenerator struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingGenerator) Optimize(ctx context.Context, _ string, _ engine.Mode) (string, error) {
	close(b.entered)
	select {
	case <-b.release:
		return "optimized", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (b *blockingGenerator) Explain(context.Context, string, string, engine.Mode) (string, error) {
	return "explanation", nil
}

func (b *blockingGenerator) Followup(context.Context, string, string, string) (string, error) {
	return "answers", nil
}

// execTurn runs the command handleSubmit returns. Submit commands are a
// tea.Batch of the spinner tick and the turn, so the batch is unpacked and
// the turn-level message returned, skipping spinner ticks.
func execTurn(cmd tea.Cmd) tea.Msg {
	msg := cmd()
	batch, ok := msg.(tea.BatchMsg)
	if !ok {
		return msg
	}
	for _, sub := range batch {
		m := sub()
		if _, isTick := m.(spinner.TickMsg); isTick {
			continue
		}
		return m
	}
	return nil
}

func newTestModel(t *testing.T) *Model {
	t.Helper()
	return newTestModelWith(t, &fakeGenerator{optimizeOut: "optimized"})
}

func newTestModelWith(t *testing.T, gen conversation.Generator) *Model {
	t.Helper()

	machine, err := conversation.NewMachine(conversation.Config{
		Generator: gen,
		Recorder:  promptlog.Disabled{},
		Store:     conversation.NewSessionStore(conversation.DefaultSessionTTL),
		Logger:    log.NewNop(),
	})
	require.NoError(t, err)

	m, err := New(t.Context(), machine)
	require.NoError(t, err)
	m.attachmentDir = t.TempDir()
	return m
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(t.Context(), nil)
	assert.Error(t, err)
}

func TestNewGreetsUser(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	require.NotEmpty(t, m.messages)
	assert.Equal(t, roleSystem, m.messages[0].Role)
}

func TestInitReturnsCommand(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	assert.NotNil(t, m.Init())
}

func TestAppendRepliesInline(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	m.messages = nil

	plan := delivery.Select("short reply", delivery.DefaultMaxInline)
	m.appendReplies([]conversation.Outgoing{{Plan: &plan}})

	require.Len(t, m.messages, 1)
	assert.Equal(t, roleAssistant, m.messages[0].Role)
	assert.Equal(t, "short reply", m.messages[0].Text)
}

func TestAppendRepliesChunked(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	m.messages = nil

	text := strings.Repeat("a", 250)
	plan := delivery.Select(text, 100)
	require.Equal(t, delivery.Chunked, plan.Kind)

	m.appendReplies([]conversation.Outgoing{{Plan: &plan}})

	require.Len(t, m.messages, len(plan.Chunks))
	var joined strings.Builder
	for _, msg := range m.messages {
		assert.Equal(t, roleAssistant, msg.Role)
		joined.WriteString(msg.Text)
	}
	assert.Equal(t, text, joined.String())
}

func TestAppendRepliesAttachment(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	m.messages = nil

	text := strings.Repeat("a", delivery.DefaultMaxInline*10)
	plan := delivery.Select(text, delivery.DefaultMaxInline)
	require.Equal(t, delivery.Attachment, plan.Kind)

	m.appendReplies([]conversation.Outgoing{{Plan: &plan}})

	require.Len(t, m.messages, 1)
	assert.Equal(t, roleSystem, m.messages[0].Role)
	assert.Contains(t, m.messages[0].Text, plan.Filename)

	saved, err := os.ReadFile(filepath.Join(m.attachmentDir, plan.Filename))
	require.NoError(t, err)
	assert.Equal(t, text, string(saved))
}

func TestHandleSlashCommands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cmd      string
		wantRole string
	}{
		{"help", cmdHelp, roleSystem},
		{"start", cmdStart, roleSystem},
		{"cancel", cmdCancel, roleSystem},
		{"unknown", "/bogus", roleError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := newTestModel(t)
			m.messages = nil

			m.input.SetValue(tt.cmd)
			_, _ = m.handleSubmit()

			require.NotEmpty(t, m.messages)
			assert.Equal(t, tt.wantRole, m.messages[len(m.messages)-1].Role)
			assert.Empty(t, m.input.Value(), "input should reset after a command")
		})
	}
}

func TestHandleSlashClear(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	require.NotEmpty(t, m.messages)

	m.input.SetValue(cmdClear)
	_, _ = m.handleSubmit()
	assert.Empty(t, m.messages)
}

func TestSubmitRunsTurn(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	m.messages = nil

	m.input.SetValue("make this prompt better")
	_, cmd := m.handleSubmit()
	require.NotNil(t, cmd)
	assert.Equal(t, StateWaiting, m.state)
	require.NotEmpty(t, m.messages)
	assert.Equal(t, roleUser, m.messages[0].Role)
	assert.Equal(t, []string{"make this prompt better"}, m.history)
}

func TestCtrlCDuringTurnStaysResponsive(t *testing.T) {
	t.Parallel()

	gen := &blockingGenerator{entered: make(chan struct{}), release: make(chan struct{})}
	m := newTestModelWith(t, gen)

	// The prompt step never calls the gateway; run it to completion so the
	// next input is the mode that parks in Optimize.
	m.input.SetValue("make this prompt better")
	_, cmd := m.handleSubmit()
	require.NotNil(t, cmd)
	_, _ = m.Update(execTurn(cmd))
	require.Equal(t, StateInput, m.state)

	m.input.SetValue("clarity")
	_, turnCmd := m.handleSubmit()
	require.NotNil(t, turnCmd)
	require.Equal(t, StateWaiting, m.state)

	turnMsg := make(chan tea.Msg, 1)
	go func() { turnMsg <- execTurn(turnCmd) }()

	select {
	case <-gen.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("turn never reached the generator")
	}

	// Ctrl+C must hand back a command instead of parking the event loop
	// on the turn lock the in-flight turn holds.
	ctrlC := make(chan tea.Cmd, 1)
	go func() {
		_, cancelCmd := m.handleCtrlC()
		ctrlC <- cancelCmd
	}()

	var cancelCmd tea.Cmd
	select {
	case cancelCmd = <-ctrlC:
	case <-time.After(2 * time.Second):
		t.Fatal("ctrl+c blocked behind the in-flight turn")
	}
	require.NotNil(t, cancelCmd)

	cancelMsg := make(chan tea.Msg, 1)
	go func() { cancelMsg <- cancelCmd() }()

	// Teardown completes once the turn releases the lock.
	close(gen.release)

	select {
	case msg := <-cancelMsg:
		done, ok := msg.(cancelDoneMsg)
		require.True(t, ok)
		_, _ = m.Update(done)
	case <-time.After(2 * time.Second):
		t.Fatal("cancel never completed after the turn finished")
	}

	select {
	case <-turnMsg:
	case <-time.After(2 * time.Second):
		t.Fatal("turn never completed")
	}

	assert.Equal(t, StateInput, m.state)
	last := m.messages[len(m.messages)-1]
	assert.Equal(t, roleSystem, last.Role)
	assert.Contains(t, last.Text, "canceled")
}

func TestTurnMessagesRestoreInput(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	m.state = StateWaiting

	_, _ = m.Update(turnDoneMsg{replies: []conversation.Outgoing{{Text: "ok"}}})
	assert.Equal(t, StateInput, m.state)

	m.state = StateWaiting
	_, _ = m.Update(turnErrorMsg{err: context.DeadlineExceeded})
	assert.Equal(t, StateInput, m.state)
	assert.Equal(t, roleError, m.messages[len(m.messages)-1].Role)
}

func TestNavigateHistory(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	m.history = []string{"first", "second"}
	m.historyIdx = len(m.history)

	_, _ = m.navigateHistory(-1)
	assert.Equal(t, "second", m.input.Value())

	_, _ = m.navigateHistory(-1)
	assert.Equal(t, "first", m.input.Value())

	// Below the oldest entry stays clamped.
	_, _ = m.navigateHistory(-1)
	assert.Equal(t, "first", m.input.Value())

	_, _ = m.navigateHistory(1)
	_, _ = m.navigateHistory(1)
	assert.Empty(t, m.input.Value())
}

func TestEmptySubmitIgnored(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	m.messages = nil

	m.input.SetValue("   ")
	_, cmd := m.handleSubmit()
	assert.Nil(t, cmd)
	assert.Empty(t, m.messages)
	assert.Equal(t, StateInput, m.state)
}
