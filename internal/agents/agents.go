// Package agents defines the CLI agent kinds the client can drive and
// their per-kind metadata.
package agents

import "strings"

// Kind identifies one of the interchangeable CLI agents.
type Kind string

const (
	Claude Kind = "claude"
	Gemini Kind = "gemini"
	Cursor Kind = "cursor"
	Codex  Kind = "codex"
)

// kindMeta provides metadata for agent kinds (extend via map, not switch).
var kindMeta = map[Kind]struct {
	Label          string
	Command        string
	ExitCommand    string
	Icon           string
	ColorTag       string
	SupportsResume bool
}{
	Claude: {"Claude Code", "claude", "/exit", "✳", "claude", true},
	Gemini: {"Gemini CLI", "gemini", "/quit", "◆", "gemini", false},
	Cursor: {"Cursor Agent", "cursor-agent", "exit", "▲", "cursor", false},
	Codex:  {"Codex CLI", "codex", "exit", "●", "codex", false},
}

// All lists the known kinds in display order.
func All() []Kind {
	return []Kind{Claude, Gemini, Cursor, Codex}
}

// Parse maps a user-supplied name to a Kind, case-insensitively.
func Parse(s string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	_, ok := kindMeta[k]
	return k, ok
}

// Valid reports whether k names a known agent kind.
func (k Kind) Valid() bool {
	_, ok := kindMeta[k]
	return ok
}

// Label returns the human-readable agent name.
func (k Kind) Label() string {
	if m, ok := kindMeta[k]; ok {
		return m.Label
	}
	return string(k)
}

// Command returns the executable the server launches for this kind.
func (k Kind) Command() string {
	if m, ok := kindMeta[k]; ok {
		return m.Command
	}
	return string(k)
}

// ExitCommand returns the in-agent command used for a graceful quit.
func (k Kind) ExitCommand() string {
	if m, ok := kindMeta[k]; ok {
		return m.ExitCommand
	}
	return "exit"
}

// Icon returns the one-rune glyph shown next to agent output.
func (k Kind) Icon() string {
	if m, ok := kindMeta[k]; ok {
		return m.Icon
	}
	return "•"
}

// ColorTag returns the color key used by the renderers.
func (k Kind) ColorTag() string {
	if m, ok := kindMeta[k]; ok {
		return m.ColorTag
	}
	return "default"
}

// SupportsResume reports whether the server can re-attach this kind to a
// previous conversation.
func (k Kind) SupportsResume() bool {
	if m, ok := kindMeta[k]; ok {
		return m.SupportsResume
	}
	return false
}
