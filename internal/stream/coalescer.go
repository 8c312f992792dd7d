// Package stream coalesces raw agent output chunks into transcript
// messages. Agent CLIs emit partial lines at a high rate; the coalescer
// keeps a draft buffer and only commits a message once the stream has
// been quiet for the debounce interval.
package stream

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joss/agentdeck/internal/agents"
	"github.com/joss/agentdeck/internal/clock"
)

// DebounceInterval is how long the stream must stay quiet before the
// draft is committed as a message.
const DebounceInterval = 500 * time.Millisecond

// Kind tags a transcript message by its author.
type Kind string

const (
	KindAgent  Kind = "agent"
	KindUser   Kind = "user"
	KindSystem Kind = "system"
)

// Message is one committed transcript entry.
type Message struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	ColorTag  string    `json:"color_tag,omitempty"`
}

// Terminal escape sequences arrive embedded in agent output. CSI and OSC
// sequences plus stray single-char escapes are stripped before display.
var (
	csiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	oscPattern = regexp.MustCompile(`\x1b\][^\x07\x1b]*(\x07|\x1b\\)`)
	escPattern = regexp.MustCompile(`\x1b[@-_]`)
)

// Sanitize removes terminal control sequences and carriage returns.
func Sanitize(s string) string {
	s = oscPattern.ReplaceAllString(s, "")
	s = csiPattern.ReplaceAllString(s, "")
	s = escPattern.ReplaceAllString(s, "")
	return strings.ReplaceAll(s, "\r", "")
}

// Coalescer buffers agent output and commits it after a quiet period.
// Finalize is idempotent and safe to call from the debounce timer, from
// the session controller, and ahead of a user message.
type Coalescer struct {
	mu       sync.Mutex
	clk      clock.Clock
	debounce *clock.Deferred
	agent    agents.Kind
	draft    strings.Builder

	onDraft   func(draft string)
	onMessage func(msg Message)
}

func New(clk clock.Clock, agent agents.Kind) *Coalescer {
	return &Coalescer{
		clk:      clk,
		debounce: clock.NewDeferred(clk),
		agent:    agent,
	}
}

// OnDraft registers the re-render callback, invoked with the full draft
// after every chunk.
func (c *Coalescer) OnDraft(f func(draft string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDraft = f
}

// OnMessage registers the commit callback.
func (c *Coalescer) OnMessage(f func(msg Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = f
}

// OnChunk appends sanitized output to the draft and re-arms the debounce.
func (c *Coalescer) OnChunk(content string) {
	content = Sanitize(content)

	c.mu.Lock()
	c.draft.WriteString(content)
	draft := c.draft.String()
	onDraft := c.onDraft
	c.mu.Unlock()

	c.debounce.Arm(DebounceInterval, c.Finalize)

	if onDraft != nil {
		onDraft(draft)
	}
}

// Draft returns the uncommitted buffer.
func (c *Coalescer) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft.String()
}

// Finalize commits the draft as an agent message. With an empty draft it
// only cancels the pending timer, so repeated calls emit nothing extra.
func (c *Coalescer) Finalize() {
	c.debounce.Cancel()

	c.mu.Lock()
	if c.draft.Len() == 0 {
		c.mu.Unlock()
		return
	}
	msg := Message{
		ID:        ulid.Make().String(),
		Kind:      KindAgent,
		Content:   c.draft.String(),
		Timestamp: c.clk.Now(),
		ColorTag:  c.agent.ColorTag(),
	}
	c.draft.Reset()
	onMessage := c.onMessage
	c.mu.Unlock()

	if onMessage != nil {
		onMessage(msg)
	}
}

// UserMessage flushes any in-flight agent draft, then commits content as
// a user message. Ordering matters: the agent text precedes the input
// that interrupted it.
func (c *Coalescer) UserMessage(content string) Message {
	c.Finalize()

	msg := Message{
		ID:        ulid.Make().String(),
		Kind:      KindUser,
		Content:   content,
		Timestamp: c.clk.Now(),
	}

	c.mu.Lock()
	onMessage := c.onMessage
	c.mu.Unlock()
	if onMessage != nil {
		onMessage(msg)
	}
	return msg
}

// SystemMessage commits an informational message without touching the
// draft or the debounce.
func (c *Coalescer) SystemMessage(content string) Message {
	msg := Message{
		ID:        ulid.Make().String(),
		Kind:      KindSystem,
		Content:   content,
		Timestamp: c.clk.Now(),
	}

	c.mu.Lock()
	onMessage := c.onMessage
	c.mu.Unlock()
	if onMessage != nil {
		onMessage(msg)
	}
	return msg
}

// SetAgent flushes the draft under the old agent's tag, then switches.
func (c *Coalescer) SetAgent(agent agents.Kind) {
	c.Finalize()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.agent = agent
}
