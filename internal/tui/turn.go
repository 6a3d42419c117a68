package tui

import (
	"context"

	tea "charm.land/bubbletea/v2"

	"github.com/promptwise/promptwise/internal/conversation"
)

// turnDoneMsg carries the replies of a completed turn.
type turnDoneMsg struct {
	replies []conversation.Outgoing
}

// turnErrorMsg reports a turn that failed at the transport level.
type turnErrorMsg struct {
	err error
}

// cancelDoneMsg carries the replies of a completed cancellation.
type cancelDoneMsg struct {
	replies []conversation.Outgoing
}

// runTurn creates a command that processes one conversation turn. The
// machine serializes turns per conversation, so a stray double-submit
// waits instead of racing.
func (m *Model) runTurn(input string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, turnTimeout)
		defer cancel()

		replies, err := m.machine.Handle(ctx, m.conversationID, input)
		if err != nil {
			return turnErrorMsg{err: err}
		}
		return turnDoneMsg{replies: replies}
	}
}

// runCancel creates a command that tears down the conversation. Cancel
// waits on the per-conversation turn lock, so during an in-flight turn
// it completes only after that turn finishes; running it as a command
// keeps the event loop live in the meantime.
func (m *Model) runCancel() tea.Cmd {
	return func() tea.Msg {
		return cancelDoneMsg{replies: m.machine.Cancel(m.conversationID)}
	}
}
