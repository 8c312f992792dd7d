// Package render provides output formatting for the non-interactive
// agentdeck commands.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/joss/agentdeck/internal/agents"
	"github.com/joss/agentdeck/internal/api"
	"github.com/joss/agentdeck/internal/protocol"
	"github.com/joss/agentdeck/internal/sessiontimer"
)

// Renderer handles output formatting.
type Renderer struct {
	pretty bool
}

// New creates a new renderer.
func New(pretty bool) *Renderer {
	return &Renderer{pretty: pretty}
}

// AgentStatuses formats the per-agent status table.
func (r *Renderer) AgentStatuses(statuses map[string]api.AgentStatus) string {
	var sb strings.Builder

	if r.pretty {
		sb.WriteString(color.CyanString("Agent Status\n"))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}

	for _, kind := range agents.All() {
		st, ok := statuses[string(kind)]
		if !ok {
			st = api.AgentStatus{AgentType: string(kind)}
		}
		r.formatAgentStatus(&sb, kind, st)
	}

	return sb.String()
}

func (r *Renderer) formatAgentStatus(sb *strings.Builder, kind agents.Kind, st api.AgentStatus) {
	if !r.pretty {
		fmt.Fprintf(sb, "%s active=%v dir=%s remaining=%.0fs\n",
			kind, st.Active, st.WorkingDirectory, st.RemainingTime)
		return
	}

	state := color.HiBlackString("idle")
	if st.Active {
		state = color.GreenString("active")
	}
	fmt.Fprintf(sb, "%s %-12s %s", kind.Icon(), kind.Label(), state)
	if st.Active {
		remaining := time.Duration(st.RemainingTime * float64(time.Second))
		fmt.Fprintf(sb, "  %s  %s",
			st.WorkingDirectory,
			color.HiBlackString(sessiontimer.FormatRemaining(remaining)+" left"))
	}
	sb.WriteString("\n")
}

// Sessions formats a session list, newest first.
func (r *Renderer) Sessions(kind agents.Kind, sessions []api.SessionRecord) string {
	if len(sessions) == 0 {
		return fmt.Sprintf("No sessions recorded for %s", kind.Label())
	}

	var sb strings.Builder

	if r.pretty {
		sb.WriteString(color.CyanString("%s Sessions\n", kind.Label()))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}

	for _, s := range sessions {
		r.formatSession(&sb, s)
	}

	return sb.String()
}

func (r *Renderer) formatSession(sb *strings.Builder, s api.SessionRecord) {
	if !r.pretty {
		fmt.Fprintf(sb, "%s %s status=%s messages=%d dir=%s\n",
			s.ID, s.Name, s.Status, s.MessageCount, s.WorkingDirectory)
		return
	}

	marker := color.HiBlackString("○")
	switch s.Status {
	case "active":
		marker = color.GreenString("●")
	case "terminated":
		marker = color.RedString("✗")
	}

	resumable := ""
	if s.AgentAPISessionID != "" {
		resumable = color.YellowString(" [resumable]")
	}

	fmt.Fprintf(sb, "%s %s  %s%s\n", marker, s.ID, s.Name, resumable)
	fmt.Fprintf(sb, "    %s · %d messages · %s\n",
		color.HiBlackString(s.StartTime), s.MessageCount, s.WorkingDirectory)
}

// Diffs formats the review queue for a session.
func (r *Renderer) Diffs(diffs []protocol.Diff) string {
	if len(diffs) == 0 {
		return "No pending changes"
	}

	var sb strings.Builder

	if r.pretty {
		sb.WriteString(color.CyanString("Proposed Changes\n"))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}

	for _, d := range diffs {
		r.formatDiff(&sb, d)
	}

	return sb.String()
}

func (r *Renderer) formatDiff(sb *strings.Builder, d protocol.Diff) {
	if !r.pretty {
		fmt.Fprintf(sb, "%s %s %s status=%s\n", d.DiffID, d.ChangeType, d.FilePath, d.Status)
		return
	}

	status := color.YellowString("pending")
	switch d.Status {
	case "accepted":
		status = color.GreenString("accepted")
	case "denied":
		status = color.RedString("denied")
	}

	fmt.Fprintf(sb, "%s  %s %s (%s)\n", status, changeGlyph(d.ChangeType), d.FilePath, d.DiffID)
	for _, line := range previewLines(d.DiffLines, 3) {
		switch {
		case strings.HasPrefix(line, "+"):
			fmt.Fprintf(sb, "    %s\n", color.GreenString(line))
		case strings.HasPrefix(line, "-"):
			fmt.Fprintf(sb, "    %s\n", color.RedString(line))
		default:
			fmt.Fprintf(sb, "    %s\n", color.HiBlackString(line))
		}
	}
}

func changeGlyph(changeType string) string {
	switch changeType {
	case "created":
		return "+"
	case "deleted":
		return "-"
	default:
		return "~"
	}
}

func previewLines(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[:n]
}

// Transcript formats a stored session with its message history.
func (r *Renderer) Transcript(detail *api.SessionDetail) string {
	var sb strings.Builder

	s := detail.Session
	if r.pretty {
		sb.WriteString(color.CyanString("%s\n", s.Name))
		fmt.Fprintf(&sb, "%s · %s · %s\n", s.ID, s.Status, s.WorkingDirectory)
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	} else {
		fmt.Fprintf(&sb, "%s %s status=%s dir=%s\n", s.ID, s.Name, s.Status, s.WorkingDirectory)
	}

	for _, m := range detail.Messages {
		if !r.pretty {
			fmt.Fprintf(&sb, "[%s] %s: %s\n", m.Timestamp, m.Type, m.Content)
			continue
		}
		switch m.Type {
		case "user":
			fmt.Fprintf(&sb, "%s %s\n", color.BlueString("you ▸"), m.Content)
		case "system":
			fmt.Fprintf(&sb, "%s\n", color.HiBlackString("· "+m.Content))
		default:
			fmt.Fprintf(&sb, "%s\n", m.Content)
		}
	}

	if len(detail.Messages) == 0 {
		sb.WriteString("(no messages)\n")
	}

	return sb.String()
}

// DirectoryCheck formats a validate-directory result.
func (r *Renderer) DirectoryCheck(dir string, res *api.DirectoryCheck) string {
	if res.Valid {
		if r.pretty {
			return fmt.Sprintf("%s %s", color.GreenString("✓"), res.Path)
		}
		return fmt.Sprintf("valid path=%s", res.Path)
	}

	hint := ""
	if res.CanCreate {
		hint = " (can be created: agentdeck dirs create " + dir + ")"
	}
	if r.pretty {
		return fmt.Sprintf("%s %s%s", color.RedString("✗"), res.Error, hint)
	}
	return fmt.Sprintf("invalid error=%q%s", res.Error, hint)
}
