package stream

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/agentdeck/internal/agents"
	"github.com/joss/agentdeck/internal/clock"
)

func newTestCoalescer(t *testing.T) (*Coalescer, *clock.Fake, *[]Message) {
	t.Helper()
	clk := clock.NewFake()
	c := New(clk, agents.Claude)
	msgs := &[]Message{}
	c.OnMessage(func(m Message) { *msgs = append(*msgs, m) })
	return c, clk, msgs
}

func TestChunksCoalesceAfterQuietPeriod(t *testing.T) {
	c, clk, msgs := newTestCoalescer(t)

	c.OnChunk("Reading ")
	clk.Advance(300 * time.Millisecond)
	c.OnChunk("files...")

	// The second chunk re-armed the timer, so 499ms later nothing fires.
	clk.Advance(499 * time.Millisecond)
	assert.Empty(t, *msgs)
	assert.Equal(t, "Reading files...", c.Draft())

	clk.Advance(1 * time.Millisecond)
	require.Len(t, *msgs, 1)
	assert.Equal(t, "Reading files...", (*msgs)[0].Content)
	assert.Equal(t, KindAgent, (*msgs)[0].Kind)
	assert.Equal(t, agents.Claude.ColorTag(), (*msgs)[0].ColorTag)
	assert.NotEmpty(t, (*msgs)[0].ID)
	assert.Empty(t, c.Draft())
}

func TestFinalizeIsIdempotent(t *testing.T) {
	c, _, msgs := newTestCoalescer(t)

	c.OnChunk("done")
	c.Finalize()
	c.Finalize()

	assert.Len(t, *msgs, 1)
}

func TestTimerAfterManualFinalizeEmitsNothing(t *testing.T) {
	c, clk, msgs := newTestCoalescer(t)

	c.OnChunk("done")
	c.Finalize()
	clk.Advance(time.Second)

	assert.Len(t, *msgs, 1)
}

func TestFinalizeWithEmptyDraftEmitsNothing(t *testing.T) {
	c, clk, msgs := newTestCoalescer(t)

	c.Finalize()
	clk.Advance(time.Second)

	assert.Empty(t, *msgs)
}

func TestUserMessageFlushesDraftFirst(t *testing.T) {
	c, _, msgs := newTestCoalescer(t)

	c.OnChunk("half an answer")
	c.UserMessage("actually, stop")

	require.Len(t, *msgs, 2)
	assert.Equal(t, KindAgent, (*msgs)[0].Kind)
	assert.Equal(t, "half an answer", (*msgs)[0].Content)
	assert.Equal(t, KindUser, (*msgs)[1].Kind)
	assert.Equal(t, "actually, stop", (*msgs)[1].Content)
}

func TestSetAgentFlushesUnderOldTag(t *testing.T) {
	c, _, msgs := newTestCoalescer(t)

	c.OnChunk("claude says hi")
	c.SetAgent(agents.Gemini)
	c.OnChunk("gemini says hi")
	c.Finalize()

	require.Len(t, *msgs, 2)
	assert.Equal(t, agents.Claude.ColorTag(), (*msgs)[0].ColorTag)
	assert.Equal(t, agents.Gemini.ColorTag(), (*msgs)[1].ColorTag)
}

func TestOnDraftSeesCumulativeBuffer(t *testing.T) {
	c, _, _ := newTestCoalescer(t)

	var drafts []string
	c.OnDraft(func(d string) { drafts = append(drafts, d) })

	c.OnChunk("a")
	c.OnChunk("b")
	c.OnChunk("c")

	assert.Equal(t, []string{"a", "ab", "abc"}, drafts)
}

func TestSanitizeStripsTerminalControl(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"\x1b[31mred\x1b[0m text", "red text"},
		{"\x1b[2J\x1b[Hcleared", "cleared"},
		{"\x1b]0;window title\x07body", "body"},
		{"line\r\n", "line\n"},
		{"plain", "plain"},
		{"\x1b[?25hcursor", "cursor"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Sanitize(tt.in), "Sanitize(%q)", tt.in)
	}
}

func TestSystemMessageLeavesDraftAlone(t *testing.T) {
	c, clk, msgs := newTestCoalescer(t)

	c.OnChunk("thinking")
	c.SystemMessage("reconnected")

	require.Len(t, *msgs, 1)
	assert.Equal(t, KindSystem, (*msgs)[0].Kind)
	assert.Equal(t, "thinking", c.Draft())

	clk.Advance(DebounceInterval)
	require.Len(t, *msgs, 2)
	assert.Equal(t, "thinking", (*msgs)[1].Content)
}

// Chunks arrive on the transport read loop while the UI flushes; every
// chunk must land in exactly one committed message.
func TestConcurrentChunksAndFinalize(t *testing.T) {
	c := New(clock.New(), agents.Claude)

	var mu sync.Mutex
	var msgs []Message
	c.OnMessage(func(m Message) {
		mu.Lock()
		msgs = append(msgs, m)
		mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			c.OnChunk("x")
		}
	}()
	for i := 0; i < 200; i++ {
		c.Finalize()
	}
	<-done
	c.Finalize()

	mu.Lock()
	defer mu.Unlock()
	total := 0
	for _, m := range msgs {
		require.Equal(t, KindAgent, m.Kind)
		total += len(m.Content)
	}
	assert.Equal(t, 200, total)
}
