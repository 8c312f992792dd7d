package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	SetOutput(buf)
	t.Cleanup(func() { SetOutput(os.Stderr) })
	return buf
}

func lastEvent(t *testing.T, buf *bytes.Buffer) Event {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var e Event
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &e))
	return e
}

func TestInfoEvent(t *testing.T) {
	buf := capture(t)

	New("transport").Info("connected", map[string]interface{}{"url": "wss://localhost"})

	e := lastEvent(t, buf)
	assert.Equal(t, LevelInfo, e.Level)
	assert.Equal(t, "transport", e.Component)
	assert.Equal(t, "connected", e.Event)
	assert.Equal(t, "wss://localhost", e.Extra["url"])
	assert.Empty(t, e.Error)
}

func TestErrorEventCarriesError(t *testing.T) {
	buf := capture(t)

	New("session").Error("start_failed", nil, errors.New("boom"))

	e := lastEvent(t, buf)
	assert.Equal(t, LevelError, e.Level)
	assert.Equal(t, "boom", e.Error)
}

func TestWithContextFields(t *testing.T) {
	buf := capture(t)

	log := New("session").WithSession("sess-1").WithAgent("claude").WithDevice("dev-9")
	log.Debug("dispatch", nil)

	e := lastEvent(t, buf)
	assert.Equal(t, "sess-1", e.Session)
	assert.Equal(t, "claude", e.Agent)
	assert.Equal(t, "dev-9", e.Device)
}

func TestWithSessionDoesNotMutateParent(t *testing.T) {
	buf := capture(t)

	parent := New("review")
	_ = parent.WithSession("child")
	parent.Info("tick", nil)

	e := lastEvent(t, buf)
	assert.Empty(t, e.Session)
}

func TestTimedEvent(t *testing.T) {
	buf := capture(t)

	start := time.Now().Add(-25 * time.Millisecond)
	New("api").TimedEvent("request_done", start, nil)

	e := lastEvent(t, buf)
	assert.GreaterOrEqual(t, e.Duration, int64(25))
}
