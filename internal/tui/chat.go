// Package tui provides the Bubble Tea chat interface for a live agent
// session.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/joss/agentdeck/internal/protocol"
	"github.com/joss/agentdeck/internal/session"
	"github.com/joss/agentdeck/internal/sessiontimer"
	"github.com/joss/agentdeck/internal/stream"
)

// Messages delivered from controller hooks into the Update loop.
type (
	transcriptMsg stream.Message
	draftMsg      string
	statusMsg     struct{ prev, next session.Status }
	noteMsg       struct {
		kind stream.Kind
		text string
	}
	historyMsg    []protocol.HistoryEntry
	timerTickMsg  time.Duration
	timerLevelMsg struct {
		level     sessiontimer.Level
		remaining time.Duration
	}
	diffsChangedMsg struct{}
	attentionMsg    struct{}
)

// Shared bridges controller callbacks (which run off the Update loop)
// into the program. It must be a pointer: the program is attached after
// the model is constructed.
type Shared struct {
	program *tea.Program
}

func NewShared() *Shared { return &Shared{} }

// SetProgram attaches the running program. Hooks fired before this are
// dropped, which only affects pre-run log lines.
func (s *Shared) SetProgram(p *tea.Program) { s.program = p }

func (s *Shared) send(msg tea.Msg) {
	if s.program != nil {
		s.program.Send(msg)
	}
}

// SessionHooks builds the controller hook set that forwards into the
// program.
func (s *Shared) SessionHooks() session.Hooks {
	return session.Hooks{
		OnStatusChange: func(prev, next session.Status) {
			s.send(statusMsg{prev, next})
		},
		OnSystemMessage: func(text string) {
			s.send(noteMsg{stream.KindSystem, text})
		},
		OnWarning: func(text string) {
			s.send(noteMsg{stream.KindSystem, "⚠ " + text})
		},
		OnError: func(text string) {
			s.send(noteMsg{stream.KindSystem, "✗ " + text})
		},
		OnHistory: func(entries []protocol.HistoryEntry) {
			s.send(historyMsg(entries))
		},
	}
}

// ChatModel is the main TUI model for a session.
type ChatModel struct {
	ctrl   *session.Controller
	shared *Shared

	messages  []stream.Message
	draft     string
	remaining time.Duration
	level     sessiontimer.Level
	pending   int
	diffs     []protocol.Diff
	diffIdx   int
	showDiffs bool

	ready    bool
	quitting bool
	width    int
	height   int

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
}

// NewChatModel builds the model and wires every controller callback into
// the program via shared.
func NewChatModel(ctrl *session.Controller, shared *Shared) ChatModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ti := textarea.New()
	ti.Placeholder = "Message the agent... (Enter to send)"
	ti.CharLimit = 4000
	ti.SetWidth(80)
	ti.SetHeight(3)
	ti.Focus()

	ctrl.Coalescer().OnMessage(func(m stream.Message) { shared.send(transcriptMsg(m)) })
	ctrl.Coalescer().OnDraft(func(d string) { shared.send(draftMsg(d)) })
	ctrl.Review().OnUpdate(func() { shared.send(diffsChangedMsg{}) })
	ctrl.Review().OnAttention(func() { shared.send(attentionMsg{}) })
	ctrl.Timer().OnTick(func(r time.Duration) { shared.send(timerTickMsg(r)) })
	ctrl.Timer().OnLevelChange(func(l sessiontimer.Level, r time.Duration) {
		shared.send(timerLevelMsg{l, r})
	})

	return ChatModel{
		ctrl:    ctrl,
		shared:  shared,
		spinner: s,
		input:   ti,
	}
}

// Init starts the spinner.
func (m ChatModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages.
func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		return m.handleWindowSize(msg)

	case transcriptMsg:
		m.messages = append(m.messages, stream.Message(msg))
		m.draft = ""
		m.refreshTranscript()
		return m, nil

	case draftMsg:
		m.draft = string(msg)
		m.refreshTranscript()
		return m, nil

	case noteMsg:
		m.messages = append(m.messages, stream.Message{
			Kind:    msg.kind,
			Content: msg.text,
		})
		m.refreshTranscript()
		return m, nil

	case historyMsg:
		for _, h := range msg {
			m.messages = append(m.messages, stream.Message{
				ID:      h.ID,
				Kind:    stream.Kind(h.Type),
				Content: h.Content,
			})
		}
		m.refreshTranscript()
		return m, nil

	case statusMsg:
		if msg.next == session.StatusIdle && msg.prev == session.StatusClosed {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case timerTickMsg:
		m.remaining = time.Duration(msg)
		return m, nil

	case timerLevelMsg:
		m.level = msg.level
		m.remaining = msg.remaining
		return m, nil

	case diffsChangedMsg:
		m.diffs = m.ctrl.Review().Changes()
		m.pending = m.ctrl.Review().Pending()
		if m.diffIdx >= len(m.diffs) {
			m.diffIdx = 0
		}
		return m, nil

	case attentionMsg:
		m.showDiffs = true
		m.diffs = m.ctrl.Review().Changes()
		m.pending = m.ctrl.Review().Pending()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m ChatModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showDiffs {
		return m.handleDiffKey(msg)
	}

	switch msg.String() {
	case "ctrl+c":
		return m.quit()

	case "esc":
		if m.ctrl.Status() == session.StatusIdle {
			return m.quit()
		}

	case "ctrl+e":
		m.ctrl.End()
		return m, nil

	case "ctrl+r":
		m.showDiffs = len(m.diffs) > 0
		return m, nil

	case "enter":
		return m.handleEnter()

	case "alt+enter", "ctrl+j":
		m.input.SetValue(m.input.Value() + "\n")
		return m, nil

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m ChatModel) handleDiffKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+r", "q":
		m.showDiffs = false
		return m, nil

	case "j", "down":
		if m.diffIdx < len(m.diffs)-1 {
			m.diffIdx++
		}
		return m, nil

	case "k", "up":
		if m.diffIdx > 0 {
			m.diffIdx--
		}
		return m, nil

	case "a":
		if m.diffIdx < len(m.diffs) {
			go m.ctrl.Review().Accept(context.Background(), m.diffs[m.diffIdx].DiffID)
		}
		return m, nil

	case "d":
		if m.diffIdx < len(m.diffs) {
			go m.ctrl.Review().Deny(context.Background(), m.diffs[m.diffIdx].DiffID)
		}
		return m, nil

	case "A":
		go m.ctrl.Review().AcceptAll(context.Background())
		return m, nil

	case "ctrl+c":
		return m.quit()
	}
	return m, nil
}

func (m ChatModel) handleEnter() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if m.ctrl.Status() != session.StatusActive {
		return m, nil
	}

	m.input.SetValue("")
	m.ctrl.SendInput(text)
	return m, nil
}

func (m ChatModel) handleWindowSize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	headerHeight := 2
	statusHeight := 1
	inputHeight := 5
	vpHeight := msg.Height - headerHeight - statusHeight - inputHeight

	if !m.ready {
		m.viewport = viewport.New(msg.Width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = msg.Width
		m.viewport.Height = vpHeight
	}
	m.refreshTranscript()

	m.input.SetWidth(msg.Width - 4)
	return m, nil
}

func (m ChatModel) quit() (tea.Model, tea.Cmd) {
	// Leaving while a session is live stores a reattach hint so the next
	// launch can auto-resume.
	if m.ctrl.Status() == session.StatusActive {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		m.ctrl.SaveResumeToken(ctx)
	}
	m.quitting = true
	return m, tea.Quit
}

func (m *ChatModel) refreshTranscript() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}
