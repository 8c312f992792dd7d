package protocol

import "encoding/json"

// ─────────────────────────────────────────────────────────────────────────────
// Payload types for Client → Server intents
// ─────────────────────────────────────────────────────────────────────────────

// StartSessionPayload requests a brand-new agent session.
type StartSessionPayload struct {
	AgentType        string `json:"agent_type"`
	SessionName      string `json:"session_name,omitempty"`
	WorkingDirectory string `json:"working_directory"`
	DeviceID         string `json:"device_id"`
}

// ResumeAgentSessionPayload reattaches to a previously persisted session.
type ResumeAgentSessionPayload struct {
	AgentType string `json:"agent_type"`
	SessionID string `json:"session_id"`
	DeviceID  string `json:"device_id"`
}

// ConnectToSessionPayload joins a session that is already live on the server.
type ConnectToSessionPayload struct {
	AgentType string `json:"agent_type"`
	DeviceID  string `json:"device_id"`
}

// SendCommandPayload forwards one line of user input to the agent.
type SendCommandPayload struct {
	AgentType string `json:"agent_type"`
	Command   string `json:"command"`
	DeviceID  string `json:"device_id"`
}

// SendEnterKeyPayload sends a bare Enter keypress.
type SendEnterKeyPayload struct {
	AgentType string `json:"agent_type"`
	DeviceID  string `json:"device_id"`
}

// SendBackspaceKeyPayload sends Count backspace keypresses.
type SendBackspaceKeyPayload struct {
	AgentType string `json:"agent_type"`
	DeviceID  string `json:"device_id"`
	Count     int    `json:"count"`
}

// EndSessionPayload asks the server to terminate the session.
// Graceful ends wait for the server's persisted confirmation.
type EndSessionPayload struct {
	AgentType string `json:"agent_type"`
	Graceful  bool   `json:"graceful"`
}

// GetStatusPayload requests a status_update for one agent kind.
type GetStatusPayload struct {
	AgentType string `json:"agent_type"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Payload types for Server → Client events
// ─────────────────────────────────────────────────────────────────────────────

// HistoryEntry is one persisted conversation message replayed on attach.
type HistoryEntry struct {
	ID        string `json:"id"`
	Type      string `json:"type"` // "user" | "agent" | "system"
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	DeviceID  string `json:"device_id,omitempty"`
}

// SessionStartedPayload acknowledges a start_session intent.
type SessionStartedPayload struct {
	Success          bool           `json:"success"`
	SessionID        string         `json:"session_id,omitempty"`
	SessionName      string         `json:"session_name,omitempty"`
	WorkingDirectory string         `json:"working_directory,omitempty"`
	History          []HistoryEntry `json:"history,omitempty"`
	Error            string         `json:"error,omitempty"`
}

// SessionResumedPayload acknowledges a resume_agent_session intent.
type SessionResumedPayload struct {
	Success           bool           `json:"success"`
	SessionID         string         `json:"session_id,omitempty"`
	SessionName       string         `json:"session_name,omitempty"`
	WorkingDirectory  string         `json:"working_directory,omitempty"`
	AgentAPISessionID string         `json:"agent_api_session_id,omitempty"`
	MessageCount      int            `json:"message_count,omitempty"`
	History           []HistoryEntry `json:"history,omitempty"`
	Error             string         `json:"error,omitempty"`
}

// ConnectionResultPayload reports the outcome of attaching to a live session,
// including replayed history and the remaining time budget.
type ConnectionResultPayload struct {
	Success              bool           `json:"success"`
	SessionID            string         `json:"session_id,omitempty"`
	History              []HistoryEntry `json:"history,omitempty"`
	WorkingDirectory     string         `json:"working_directory,omitempty"`
	SessionTimeRemaining float64        `json:"session_time_remaining,omitempty"`
	Error                string         `json:"error,omitempty"`
}

// AgentOutputPayload carries one streamed chunk of agent output.
type AgentOutputPayload struct {
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// SessionWarningPayload announces an approaching session time limit.
type SessionWarningPayload struct {
	RemainingSeconds float64 `json:"remaining_seconds"`
	TimeString       string  `json:"time_string,omitempty"`
	Message          string  `json:"message"`
}

// SessionTimeoutPayload announces a forced termination at the time limit.
type SessionTimeoutPayload struct {
	Message string `json:"message"`
}

// SessionEndedPayload is advisory notice that the session was terminated.
type SessionEndedPayload struct {
	Message string `json:"message"`
}

// SessionEndResultPayload acknowledges that termination was accepted.
// It does NOT mean session data has been persisted; wait for session_closed.
type SessionEndResultPayload struct {
	Success bool `json:"success"`
}

// SessionClosedPayload is the sole authoritative terminal signal.
type SessionClosedPayload struct {
	Message      string `json:"message,omitempty"`
	AgentType    string `json:"agent_type,omitempty"`
	EmptySession bool   `json:"empty_session,omitempty"`
}

// CommandStatusPayload reports whether an input intent was applied.
type CommandStatusPayload struct {
	Success   bool   `json:"success"`
	Command   string `json:"command,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// StatusUpdatePayload is the answer to a get_status intent.
type StatusUpdatePayload struct {
	Active           bool    `json:"active"`
	SessionID        string  `json:"session_id,omitempty"`
	WorkingDirectory string  `json:"working_directory,omitempty"`
	ConnectedClients int     `json:"connected_clients,omitempty"`
	ElapsedTime      float64 `json:"elapsed_time,omitempty"`
	RemainingTime    float64 `json:"remaining_time,omitempty"`
}

// ErrorPayload carries a server-side error message.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Diff is one proposed file change under review.
type Diff struct {
	DiffID     string   `json:"diff_id"`
	FilePath   string   `json:"file_path"`
	ChangeType string   `json:"change_type"` // "created" | "modified" | "deleted"
	DiffLines  []string `json:"diff_lines"`
	Status     string   `json:"status"` // "pending" | "accepted" | "denied"
	Timestamp  string   `json:"timestamp,omitempty"`
}

// FileChangePayload carries diff lifecycle notifications.
type FileChangePayload struct {
	Type      FileChangeType `json:"type"`
	Diff      *Diff          `json:"diff,omitempty"`
	DiffID    string         `json:"diff_id,omitempty"`
	FilePath  string         `json:"file_path,omitempty"`
	Count     int            `json:"count,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Payload extraction helpers
// ─────────────────────────────────────────────────────────────────────────────

// AsSessionStarted extracts SessionStartedPayload.
func (e *Envelope) AsSessionStarted() (*SessionStartedPayload, error) {
	var p SessionStartedPayload
	if err := e.Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// AsSessionResumed extracts SessionResumedPayload.
func (e *Envelope) AsSessionResumed() (*SessionResumedPayload, error) {
	var p SessionResumedPayload
	if err := e.Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// AsConnectionResult extracts ConnectionResultPayload.
func (e *Envelope) AsConnectionResult() (*ConnectionResultPayload, error) {
	var p ConnectionResultPayload
	if err := e.Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// AsAgentOutput extracts AgentOutputPayload.
func (e *Envelope) AsAgentOutput() (*AgentOutputPayload, error) {
	var p AgentOutputPayload
	if err := e.Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// AsFileChange extracts FileChangePayload.
func (e *Envelope) AsFileChange() (*FileChangePayload, error) {
	var p FileChangePayload
	if err := e.Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// MustRaw marshals payload for callers that already validated it.
// Used by tests to build inbound envelopes tersely.
func MustRaw(payload any) json.RawMessage {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return data
}
