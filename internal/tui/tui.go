// Package tui provides the Bubble Tea terminal chat interface.
//
// The interface drives one conversation through the state machine: plain
// input is a turn, slash commands manage the conversation lifecycle. Replies
// arrive as delivery plans and are rendered accordingly — inline text as one
// message, chunked text as ordered messages, attachments as files written to
// the working directory.
package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textarea"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"

	"github.com/promptwise/promptwise/internal/conversation"
	"github.com/promptwise/promptwise/internal/delivery"
)

// State represents the interface state machine.
type State int

// Interface states.
const (
	StateInput   State = iota // Awaiting user input
	StateWaiting              // Turn in flight
)

// Memory bounds to prevent unbounded growth.
const (
	maxMessages = 200 // Maximum messages stored
	maxHistory  = 100 // Maximum input history entries
)

// turnTimeout bounds one conversation turn, generation included.
const turnTimeout = 5 * time.Minute

// Message role constants for display.
const (
	roleUser      = "user"
	roleAssistant = "assistant"
	roleSystem    = "system"
	roleError     = "error"
)

// Layout constants for viewport height calculation.
const (
	separatorLines = 2
	helpLines      = 1
	promptLines    = 1
	minViewport    = 3
)

// Message is one conversation message for display.
type Message struct {
	Role string
	Text string
}

// Model is the Bubble Tea model for the chat interface.
type Model struct {
	// Input
	input      textarea.Model
	history    []string
	historyIdx int

	// State
	state     State
	lastCtrlC time.Time

	// Output
	spinner  spinner.Model
	viewBuf  strings.Builder
	messages []Message
	viewport viewport.Model
	help     help.Model
	keys     keyMap

	// Conversation. One terminal session is one conversation identity.
	machine        *conversation.Machine
	conversationID string
	ctx            context.Context
	ctxCancel      context.CancelFunc

	// attachmentDir receives files from attachment delivery plans.
	attachmentDir string

	width  int
	height int

	styles Styles

	// Markdown styling for assistant replies, rebuilt on width changes.
	// A nil renderer degrades to plain text.
	md      *glamour.TermRenderer
	mdWidth int
}

// newGlamour builds a terminal Markdown renderer word-wrapped at width.
func newGlamour(width int) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}

// resizeMarkdown rebuilds the renderer when the terminal width changes,
// keeping the old one if the rebuild fails.
func (m *Model) resizeMarkdown(width int) {
	if width <= 0 || width == m.mdWidth {
		return
	}
	if r := newGlamour(width); r != nil {
		m.md = r
		m.mdWidth = width
	}
}

// renderMarkdown styles one reply for the transcript. Rendering is
// best-effort; on any failure the raw text stands.
func (m *Model) renderMarkdown(text string) string {
	if m.md == nil {
		return text
	}
	out, err := m.md.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimSuffix(out, "\n")
}

// New creates a chat interface model. ctx must be the same context passed
// to tea.WithContext so cancellation stays consistent.
func New(ctx context.Context, machine *conversation.Machine) (*Model, error) {
	if machine == nil {
		return nil, errors.New("tui.New: machine is required")
	}
	if ctx == nil {
		return nil, errors.New("tui.New: ctx is required")
	}

	ctx, cancel := context.WithCancel(ctx)

	ta := textarea.New()
	ta.Placeholder = "Type a prompt, or /help for commands..."
	ta.SetHeight(1)
	ta.SetWidth(120)
	ta.MaxWidth = 0
	ta.ShowLineNumbers = false

	// Plain text input, no background blocks.
	cleanStyle := textarea.StyleState{
		Base:        lipgloss.NewStyle(),
		Text:        lipgloss.NewStyle(),
		Placeholder: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Prompt:      lipgloss.NewStyle(),
	}
	ta.SetStyles(textarea.Styles{Focused: cleanStyle, Blurred: cleanStyle})
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	// Keys are routed explicitly in handleKey; the viewport's own
	// bindings would conflict with textarea navigation.
	vp := viewport.New(viewport.WithWidth(80), viewport.WithHeight(20))
	vp.MouseWheelEnabled = true
	vp.SoftWrap = true
	vp.KeyMap = viewport.KeyMap{}

	m := &Model{
		machine:        machine,
		conversationID: uuid.New().String(),
		ctx:            ctx,
		ctxCancel:      cancel,
		input:          ta,
		spinner:        sp,
		viewport:       vp,
		help:           help.New(),
		keys:           newKeyMap(),
		styles:         DefaultStyles(),
		history:        make([]string, 0, maxHistory),
		md:             newGlamour(80),
		mdWidth:        80,
		attachmentDir:  ".",
		width:          80,
	}

	// The conversation starts immediately; the first replies greet the
	// user before any input.
	m.appendReplies(machine.Start(m.conversationID))
	return m, nil
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		m.input.Focus(),
	)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		inputHeight := m.input.Height() + promptLines
		fixedHeight := separatorLines + inputHeight + helpLines
		vpHeight := max(msg.Height-fixedHeight, minViewport)

		m.viewport.SetWidth(msg.Width)
		m.viewport.SetHeight(vpHeight)
		m.input.SetWidth(msg.Width - 4)
		m.help.SetWidth(msg.Width)
		m.resizeMarkdown(msg.Width)

		m.rebuildViewportContent()
		return m, nil

	case tea.MouseWheelMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.state == StateWaiting {
			m.rebuildViewportContent()
		}
		return m, cmd

	case turnDoneMsg:
		m.state = StateInput
		m.appendReplies(msg.replies)
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, m.input.Focus()

	case cancelDoneMsg:
		m.state = StateInput
		m.appendReplies(msg.replies)
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, m.input.Focus()

	case turnErrorMsg:
		m.state = StateInput
		switch {
		case errors.Is(msg.err, context.Canceled):
			m.addMessage(Message{Role: roleSystem, Text: "(Canceled)"})
		case errors.Is(msg.err, context.DeadlineExceeded):
			m.addMessage(Message{Role: roleError, Text: "Turn timed out (>5 min). Try again."})
		default:
			m.addMessage(Message{Role: roleError, Text: msg.err.Error()})
		}
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, m.input.Focus()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m *Model) View() tea.View {
	m.viewBuf.Reset()

	_, _ = m.viewBuf.WriteString(m.viewport.View())
	_, _ = m.viewBuf.WriteString("\n")
	_, _ = m.viewBuf.WriteString(m.renderSeparator())
	_, _ = m.viewBuf.WriteString("\n")
	_, _ = m.viewBuf.WriteString(m.styles.Prompt.Render("> "))
	_, _ = m.viewBuf.WriteString(m.input.View())
	_, _ = m.viewBuf.WriteString("\n")
	_, _ = m.viewBuf.WriteString(m.renderSeparator())
	_, _ = m.viewBuf.WriteString("\n")
	_, _ = m.viewBuf.WriteString(m.renderStatusBar())

	v := tea.NewView(m.viewBuf.String())
	v.AltScreen = true
	return v
}

// addMessage appends a message and enforces the maxMessages bound.
func (m *Model) addMessage(msg Message) {
	m.messages = append(m.messages, msg)
	if len(m.messages) > maxMessages {
		m.messages = m.messages[len(m.messages)-maxMessages:]
	}
}

// appendReplies renders machine replies into display messages. Plans decide
// the shape: inline text is one message, chunks become ordered messages,
// attachments are written to disk and acknowledged in the transcript.
func (m *Model) appendReplies(replies []conversation.Outgoing) {
	for _, reply := range replies {
		if reply.Plan == nil {
			m.addMessage(Message{Role: roleSystem, Text: reply.Text})
			continue
		}

		switch reply.Plan.Kind {
		case delivery.Inline:
			m.addMessage(Message{Role: roleAssistant, Text: reply.Plan.Text})

		case delivery.Chunked:
			for _, chunk := range reply.Plan.Chunks {
				m.addMessage(Message{Role: roleAssistant, Text: chunk})
			}

		case delivery.Attachment:
			path := filepath.Join(m.attachmentDir, reply.Plan.Filename)
			if err := os.WriteFile(path, []byte(reply.Plan.Text), 0o644); err != nil {
				m.addMessage(Message{Role: roleError, Text: "Failed to save " + reply.Plan.Filename + ": " + err.Error()})
				continue
			}
			m.addMessage(Message{Role: roleSystem, Text: "Response too long for the screen, saved to " + path})
		}
	}
}

// rebuildViewportContent reconstructs the viewport from messages and state.
func (m *Model) rebuildViewportContent() {
	var b strings.Builder

	_, _ = b.WriteString(m.styles.RenderBanner())
	_, _ = b.WriteString("\n")

	for _, msg := range m.messages {
		switch msg.Role {
		case roleUser:
			_, _ = b.WriteString(m.styles.User.Render("You> "))
			_, _ = b.WriteString(msg.Text)
		case roleAssistant:
			_, _ = b.WriteString(m.styles.Assistant.Render("PromptWise> "))
			_, _ = b.WriteString(m.renderMarkdown(msg.Text))
		case roleSystem:
			_, _ = b.WriteString(m.styles.System.Render(msg.Text))
		case roleError:
			_, _ = b.WriteString(m.styles.Error.Render("Error: " + msg.Text))
		}
		_, _ = b.WriteString("\n\n")
	}

	if m.state == StateWaiting {
		_, _ = b.WriteString(m.spinner.View())
		_, _ = b.WriteString(" Working...\n\n")
	}

	m.viewport.SetContent(b.String())
}

func (m *Model) renderSeparator() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	return m.styles.Separator.Render(strings.Repeat("─", width))
}

func (m *Model) renderStatusBar() string {
	return m.help.ShortHelpView(m.keys.shortHelp(m.state))
}
