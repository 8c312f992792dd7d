// Package protocol defines the client↔agent-server communication protocol.
// Messages use a JSON envelope format: a named event plus a type-specific
// payload, carried over the persistent socket channel.
//
// Event names mirror the server exactly; the constants below are the only
// place they are spelled out.
package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// EventName identifies the kind of message on the channel.
type EventName string

const (
	// Client → Server intents
	EvStartSession       EventName = "start_session"
	EvResumeAgentSession EventName = "resume_agent_session"
	EvConnectToSession   EventName = "connect_to_session"
	EvSendCommand        EventName = "send_command"
	EvSendEnterKey       EventName = "send_enter_key"
	EvSendBackspaceKey   EventName = "send_backspace_key"
	EvEndSession         EventName = "end_session"
	EvGetStatus          EventName = "get_status"

	// Server → Client events
	EvSessionStarted   EventName = "session_started"
	EvSessionResumed   EventName = "session_resumed"
	EvConnectionResult EventName = "connection_result"
	EvAgentOutput      EventName = "agent_output"
	EvSessionWarning   EventName = "session_warning"
	EvSessionTimeout   EventName = "session_timeout"
	EvSessionEnded     EventName = "session_ended"
	EvSessionEndResult EventName = "session_end_result"
	EvSessionClosed    EventName = "session_closed"
	EvCommandStatus    EventName = "command_status"
	EvStatusUpdate     EventName = "status_update"
	EvError            EventName = "error"
	EvFileChange       EventName = "file_change"

	// Synthesized locally by the transport, never sent on the wire.
	EvConnect    EventName = "connect"
	EvDisconnect EventName = "disconnect"
)

// FileChangeType discriminates file_change payloads.
type FileChangeType string

const (
	FileChangeDiffCreated      FileChangeType = "diff_created"
	FileChangeDiffAccepted     FileChangeType = "diff_accepted"
	FileChangeDiffDenied       FileChangeType = "diff_denied"
	FileChangeAllDiffsAccepted FileChangeType = "all_diffs_accepted"
)

// Envelope wraps every protocol message.
type Envelope struct {
	Event   EventName       `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope creates an envelope with the payload marshaled in place.
func NewEnvelope(event EventName, payload any) (*Envelope, error) {
	env := &Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		env.Payload = data
	}
	return env, nil
}

// Decode unmarshals the payload into target. A nil payload is a no-op.
func (e *Envelope) Decode(target any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", e.Event, err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Encoder/Decoder for streaming JSON lines (pipes, tests, replay files)
// ─────────────────────────────────────────────────────────────────────────────

// Encoder writes envelopes as JSON lines.
type Encoder struct {
	w  io.Writer
	mu sync.Mutex
}

// NewEncoder creates an encoder for the given writer.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes an envelope as a single JSON line.
func (e *Encoder) Encode(env *Envelope) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	_, err = fmt.Fprintf(e.w, "%s\n", data)
	return err
}

// Send creates and encodes an envelope in one call.
func (e *Encoder) Send(event EventName, payload any) error {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	return e.Encode(env)
}

// Decoder reads envelopes from JSON lines.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder creates a decoder for the given reader.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	// Allow large history payloads (up to 4MB)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &Decoder{scanner: scanner}
}

// Decode reads the next envelope.
func (d *Decoder) Decode() (*Envelope, error) {
	if !d.scanner.Scan() {
		if err := d.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	line := d.scanner.Bytes()
	if len(line) == 0 {
		return d.Decode() // skip empty lines
	}

	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	return &env, nil
}
