package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/joss/agentdeck/internal/session"
	"github.com/joss/agentdeck/internal/sessiontimer"
	"github.com/joss/agentdeck/internal/stream"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Padding(0, 1)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	agentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)

	draftStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")).
			Italic(true)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Background(lipgloss.Color("236")).
			Padding(0, 1)

	timerWarnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	timerDangerStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("196")).
				Bold(true)

	badgeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("226")).
			Bold(true).
			Padding(0, 1)

	inputBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(0, 1)

	acceptedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	deniedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
)

// View renders the TUI.
func (m ChatModel) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if !m.ready {
		return fmt.Sprintf("\n  %s Connecting...", m.spinner.View())
	}

	var b strings.Builder

	sess := m.ctrl.Session()
	header := titleStyle.Render(sess.Agent.Icon()+" "+sess.Agent.Label()) + "  " +
		dimStyle.Render(sess.WorkingDirectory)
	b.WriteString(header + "\n\n")

	if m.showDiffs {
		b.WriteString(m.renderDiffPane())
	} else {
		b.WriteString(m.viewport.View())
	}
	b.WriteString("\n")

	b.WriteString(m.renderStatusBar() + "\n")
	b.WriteString(m.renderInputArea())

	return b.String()
}

func (m ChatModel) renderTranscript() string {
	var b strings.Builder
	sess := m.ctrl.Session()

	for _, msg := range m.messages {
		switch msg.Kind {
		case stream.KindUser:
			b.WriteString(userStyle.Render("you ▸ ") + msg.Content + "\n")
		case stream.KindAgent:
			b.WriteString(agentStyle.Render(sess.Agent.Icon()+" "+msg.Content) + "\n")
		default:
			b.WriteString(systemStyle.Render("· "+msg.Content) + "\n")
		}
	}

	if m.draft != "" {
		b.WriteString(draftStyle.Render(sess.Agent.Icon()+" "+m.draft+"▌") + "\n")
	}

	return b.String()
}

func (m ChatModel) renderStatusBar() string {
	var parts []string

	status := m.ctrl.Status()
	parts = append(parts, string(status))

	if status == session.StatusActive || status == session.StatusEnding {
		t := sessiontimer.FormatRemaining(m.remaining)
		switch m.level {
		case sessiontimer.LevelDanger:
			t = timerDangerStyle.Render(t)
		case sessiontimer.LevelWarning:
			t = timerWarnStyle.Render(t)
		}
		parts = append(parts, t)
	}

	if m.pending > 0 {
		parts = append(parts, badgeStyle.Render(fmt.Sprintf("%d changes", m.pending)))
	}

	if m.showDiffs {
		parts = append(parts, "a: accept │ d: deny │ A: accept all │ esc: back")
	} else {
		parts = append(parts, "Enter: send │ Ctrl+R: changes │ Ctrl+E: end │ Ctrl+C: quit")
	}

	return statusBarStyle.Width(m.width).Render(strings.Join(parts, " │ "))
}

func (m ChatModel) renderInputArea() string {
	status := m.ctrl.Status()
	if status == session.StatusStarting || status == session.StatusEnding {
		return fmt.Sprintf("  %s %s...", m.spinner.View(), status)
	}
	return inputBorderStyle.Width(m.width - 4).Render(m.input.View())
}

func (m ChatModel) renderDiffPane() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Proposed Changes") + "\n\n")

	if len(m.diffs) == 0 {
		b.WriteString(dimStyle.Render("  nothing to review") + "\n")
		return b.String()
	}

	for i, d := range m.diffs {
		var status string
		switch d.Status {
		case "accepted":
			status = acceptedStyle.Render("accepted")
		case "denied":
			status = deniedStyle.Render("denied")
		default:
			status = pendingStyle.Render("pending")
		}

		line := fmt.Sprintf("%s  %s  %s", status, d.ChangeType, d.FilePath)
		if i == m.diffIdx {
			line = selectedStyle.Render("▸ " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")

		if i == m.diffIdx {
			for _, dl := range previewDiffLines(d.DiffLines, 8) {
				switch {
				case strings.HasPrefix(dl, "+"):
					b.WriteString("      " + acceptedStyle.Render(dl) + "\n")
				case strings.HasPrefix(dl, "-"):
					b.WriteString("      " + deniedStyle.Render(dl) + "\n")
				default:
					b.WriteString("      " + dimStyle.Render(dl) + "\n")
				}
			}
		}
	}

	return b.String()
}

func previewDiffLines(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[:n]
}
