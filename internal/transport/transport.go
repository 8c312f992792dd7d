// Package transport maintains the persistent websocket channel to the
// agentdeck server and fans incoming envelopes out to subscribers.
package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/joss/agentdeck/internal/logging"
	"github.com/joss/agentdeck/internal/protocol"
)

// ErrNotReady is returned by Send when the channel is not connected.
// Callers treat it as a signal to queue or drop, never as a crash.
var ErrNotReady = errors.New("transport: not connected")

// Handler receives a decoded envelope. Handlers for one connection run on
// a single goroutine, in arrival order.
type Handler func(env *protocol.Envelope)

type Transport struct {
	url    string
	dialer *websocket.Dialer
	header http.Header
	log    *logging.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	writeMu  sync.Mutex
	ready    bool
	handlers map[protocol.EventName][]Handler
	watchers []func(ready bool)
	capture  *protocol.Encoder
}

func New(url string) *Transport {
	return &Transport{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		header:   http.Header{},
		log:      logging.New("transport"),
		handlers: make(map[protocol.EventName][]Handler),
	}
}

// On registers h for envelopes named event. Registration is expected to
// happen before Connect; handlers are never removed.
func (t *Transport) On(event protocol.EventName, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[event] = append(t.handlers[event], h)
}

// OnReadyChange registers f to be called synchronously whenever the
// channel flips between connected and disconnected.
func (t *Transport) OnReadyChange(f func(ready bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.watchers = append(t.watchers, f)
}

// CaptureTo mirrors every dispatched envelope to w as JSON lines,
// including the synthetic connect/disconnect markers. The capture can be
// replayed with `agentdeck sessions replay`.
func (t *Transport) CaptureTo(w io.Writer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.capture = protocol.NewEncoder(w)
}

// IsReady reports whether the channel is currently connected.
func (t *Transport) IsReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ready
}

// Connect dials the server and starts the read loop. Calling Connect on
// an already connected transport is a no-op.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.ready {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	conn, _, err := t.dialer.DialContext(ctx, t.url, t.header)
	if err != nil {
		t.log.Error("dial_failed", map[string]interface{}{"url": t.url}, err)
		return err
	}

	t.mu.Lock()
	if t.ready {
		// Lost the race to a concurrent Connect.
		t.mu.Unlock()
		conn.Close()
		return nil
	}
	t.conn = conn
	t.mu.Unlock()

	t.setReady(true)
	t.dispatch(&protocol.Envelope{Event: protocol.EvConnect})
	go t.readLoop(conn)

	t.log.Info("connected", map[string]interface{}{"url": t.url})
	return nil
}

// Close tears down the connection. The read loop notices and synthesizes
// a disconnect envelope.
func (t *Transport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}

// Send encodes payload under event and writes it to the channel. When the
// channel is down it returns ErrNotReady without touching the socket.
func (t *Transport) Send(event protocol.EventName, payload any) error {
	t.mu.Lock()
	conn := t.conn
	ready := t.ready
	t.mu.Unlock()
	if !ready || conn == nil {
		return ErrNotReady
	}

	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return conn.WriteJSON(env)
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.log.Warn("read_loop_ended", nil, err)
			break
		}
		t.dispatch(&env)
	}

	t.mu.Lock()
	if t.conn == conn {
		t.conn = nil
	}
	stale := t.conn != nil
	t.mu.Unlock()
	conn.Close()
	if stale {
		// A newer connection already replaced this one.
		return
	}

	t.setReady(false)
	t.dispatch(&protocol.Envelope{Event: protocol.EvDisconnect})
}

func (t *Transport) setReady(ready bool) {
	t.mu.Lock()
	if t.ready == ready {
		t.mu.Unlock()
		return
	}
	t.ready = ready
	watchers := make([]func(bool), len(t.watchers))
	copy(watchers, t.watchers)
	t.mu.Unlock()

	for _, f := range watchers {
		f(ready)
	}
}

func (t *Transport) dispatch(env *protocol.Envelope) {
	t.mu.Lock()
	hs := make([]Handler, len(t.handlers[env.Event]))
	copy(hs, t.handlers[env.Event])
	capture := t.capture
	t.mu.Unlock()

	if capture != nil {
		if err := capture.Encode(env); err != nil {
			t.log.Warn("capture_write_failed", nil, err)
		}
	}

	for _, h := range hs {
		h(env)
	}
}
