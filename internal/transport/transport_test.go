package transport

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/agentdeck/internal/protocol"
)

type testServer struct {
	*httptest.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newTestServer(t *testing.T, handle func(conn *websocket.Conn)) *testServer {
	t.Helper()
	ts := &testServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := ts.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.mu.Lock()
		ts.conns = append(ts.conns, conn)
		ts.mu.Unlock()
		if handle != nil {
			handle(conn)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestSendBeforeConnectReturnsErrNotReady(t *testing.T) {
	tr := New("ws://localhost:1")
	err := tr.Send(protocol.EvGetStatus, protocol.GetStatusPayload{})
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestConnectDispatchesConnectAndFlipsReady(t *testing.T) {
	ts := newTestServer(t, nil)

	tr := New(ts.wsURL())

	var events []protocol.EventName
	tr.On(protocol.EvConnect, func(env *protocol.Envelope) {
		events = append(events, env.Event)
	})
	var readyChanges []bool
	tr.OnReadyChange(func(ready bool) { readyChanges = append(readyChanges, ready) })

	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	assert.True(t, tr.IsReady())
	// Connect callback and readiness flip both happen before Connect returns.
	assert.Equal(t, []protocol.EventName{protocol.EvConnect}, events)
	assert.Equal(t, []bool{true}, readyChanges)
}

func TestConnectIsIdempotent(t *testing.T) {
	ts := newTestServer(t, nil)

	tr := New(ts.wsURL())
	var connects int
	tr.On(protocol.EvConnect, func(*protocol.Envelope) { connects++ })

	require.NoError(t, tr.Connect(context.Background()))
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	assert.Equal(t, 1, connects)

	ts.mu.Lock()
	defer ts.mu.Unlock()
	assert.Len(t, ts.conns, 1)
}

func TestIncomingEnvelopesDispatchInOrder(t *testing.T) {
	ts := newTestServer(t, func(conn *websocket.Conn) {
		for i := 0; i < 3; i++ {
			env, _ := protocol.NewEnvelope(protocol.EvAgentOutput,
				protocol.AgentOutputPayload{Content: string(rune('a' + i))})
			conn.WriteJSON(env)
		}
	})

	tr := New(ts.wsURL())

	var mu sync.Mutex
	var got []string
	tr.On(protocol.EvAgentOutput, func(env *protocol.Envelope) {
		out, err := env.AsAgentOutput()
		require.NoError(t, err)
		mu.Lock()
		got = append(got, out.Content)
		mu.Unlock()
	})

	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	})
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestSendReachesServer(t *testing.T) {
	received := make(chan protocol.Envelope, 1)
	ts := newTestServer(t, func(conn *websocket.Conn) {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err == nil {
			received <- env
		}
	})

	tr := New(ts.wsURL())
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	require.NoError(t, tr.Send(protocol.EvSendCommand,
		protocol.SendCommandPayload{AgentType: "claude", Command: "ls"}))

	select {
	case env := <-received:
		assert.Equal(t, protocol.EvSendCommand, env.Event)
		var p protocol.SendCommandPayload
		require.NoError(t, env.Decode(&p))
		assert.Equal(t, "ls", p.Command)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the command")
	}
}

func TestServerCloseSynthesizesDisconnect(t *testing.T) {
	ts := newTestServer(t, func(conn *websocket.Conn) {
		conn.Close()
	})

	tr := New(ts.wsURL())

	var mu sync.Mutex
	disconnected := false
	tr.On(protocol.EvDisconnect, func(*protocol.Envelope) {
		mu.Lock()
		disconnected = true
		mu.Unlock()
	})

	require.NoError(t, tr.Connect(context.Background()))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return disconnected
	})
	assert.False(t, tr.IsReady())

	// Sends after the drop fail softly.
	assert.ErrorIs(t, tr.Send(protocol.EvGetStatus, nil), ErrNotReady)
}

func TestReconnectAfterDrop(t *testing.T) {
	first := true
	ts := newTestServer(t, func(conn *websocket.Conn) {
		if first {
			first = false
			conn.Close()
		}
	})

	tr := New(ts.wsURL())
	require.NoError(t, tr.Connect(context.Background()))

	waitFor(t, func() bool { return !tr.IsReady() })

	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()
	assert.True(t, tr.IsReady())
}

func TestCaptureMirrorsDispatchedEnvelopes(t *testing.T) {
	ts := newTestServer(t, func(conn *websocket.Conn) {
		env, err := protocol.NewEnvelope(protocol.EvAgentOutput,
			protocol.AgentOutputPayload{Content: "hello"})
		require.NoError(t, err)
		require.NoError(t, conn.WriteJSON(env))
	})

	tr := New(ts.wsURL())

	var buf bytes.Buffer
	tr.CaptureTo(&buf)

	received := false
	tr.On(protocol.EvAgentOutput, func(env *protocol.Envelope) { received = true })

	require.NoError(t, tr.Connect(context.Background()))
	waitFor(t, func() bool { return received })

	dec := protocol.NewDecoder(&buf)

	env, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, protocol.EvConnect, env.Event)

	env, err = dec.Decode()
	require.NoError(t, err)
	require.Equal(t, protocol.EvAgentOutput, env.Event)
	out, err := env.AsAgentOutput()
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Content)
}
