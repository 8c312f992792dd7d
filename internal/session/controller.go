// Package session owns the client-side session lifecycle: it interprets
// inbound protocol events, validates user intents, and drives the
// coalescer, review queue, and countdown timer through each transition.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/joss/agentdeck/internal/agents"
	"github.com/joss/agentdeck/internal/api"
	"github.com/joss/agentdeck/internal/clock"
	"github.com/joss/agentdeck/internal/device"
	"github.com/joss/agentdeck/internal/logging"
	"github.com/joss/agentdeck/internal/protocol"
	"github.com/joss/agentdeck/internal/review"
	"github.com/joss/agentdeck/internal/sessiontimer"
	"github.com/joss/agentdeck/internal/stream"
	"github.com/joss/agentdeck/internal/transport"
)

// Status is the client-side session lifecycle state.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusStarting Status = "starting"
	StatusActive   Status = "active"
	StatusEnding   Status = "ending"
	StatusClosed   Status = "closed"
)

const (
	// endFallbackDelay bounds how long a graceful end waits for the
	// server's session_closed confirmation before resetting locally.
	endFallbackDelay = 2 * time.Second
	// closedDisplayDelay keeps the close reason on screen before the
	// client returns to the idle screen.
	closedDisplayDelay = 5 * time.Second
)

var (
	ErrNotReady    = errors.New("session: transport not connected")
	ErrSessionBusy = errors.New("session: a session is already in progress")
	ErrNoSession   = errors.New("session: no active session")
)

// Session is the tracked conversation identity. At most one non-closed
// session exists per client instance.
type Session struct {
	ID               string
	Agent            agents.Kind
	Name             string
	WorkingDirectory string
	Status           Status
}

// Channel is the slice of the transport the controller needs.
type Channel interface {
	Send(event protocol.EventName, payload any) error
	IsReady() bool
	On(event protocol.EventName, h transport.Handler)
}

// TokenStore is the slice of the device store the controller needs.
type TokenStore interface {
	DeviceID(ctx context.Context) (string, error)
	TakeResumeToken(ctx context.Context) (*device.ResumeToken, error)
	SaveResumeToken(ctx context.Context, tok device.ResumeToken) error
	ClearResumeToken(ctx context.Context) error
}

// StatusService answers "is a session already live on the server".
type StatusService interface {
	AgentStatus(ctx context.Context, kind agents.Kind) (*api.AgentStatus, error)
}

// Hooks is the optional capability registry for UI integration. Nil
// entries are replaced with no-ops, so the controller never probes for
// feature support at runtime.
type Hooks struct {
	OnStatusChange  func(prev, next Status)
	OnSystemMessage func(text string)
	OnWarning       func(text string)
	OnError         func(text string)
	OnHistory       func(entries []protocol.HistoryEntry)
}

func (h Hooks) withDefaults() Hooks {
	if h.OnStatusChange == nil {
		h.OnStatusChange = func(Status, Status) {}
	}
	if h.OnSystemMessage == nil {
		h.OnSystemMessage = func(string) {}
	}
	if h.OnWarning == nil {
		h.OnWarning = func(string) {}
	}
	if h.OnError == nil {
		h.OnError = func(string) {}
	}
	if h.OnHistory == nil {
		h.OnHistory = func([]protocol.HistoryEntry) {}
	}
	return h
}

// Config wires the controller's collaborators.
type Config struct {
	Channel Channel
	Clock   clock.Clock
	Store   TokenStore
	Status  StatusService
	Diffs   review.Service
	Agent   agents.Kind
	Hooks   Hooks
}

// Controller is the session state machine. All inbound events route
// through a dispatch table built at construction; transitions happen
// nowhere else.
type Controller struct {
	ch     Channel
	clk    clock.Clock
	store  TokenStore
	status StatusService
	hooks  Hooks
	log    *logging.Logger

	coalescer *stream.Coalescer
	review    *review.Manager
	timer     *sessiontimer.Timer

	endFallback  *clock.Deferred
	displayDelay *clock.Deferred

	mu       sync.Mutex
	deviceID string
	sess     Session
}

func NewController(cfg Config) *Controller {
	c := &Controller{
		ch:           cfg.Channel,
		clk:          cfg.Clock,
		store:        cfg.Store,
		status:       cfg.Status,
		hooks:        cfg.Hooks.withDefaults(),
		log:          logging.New("session").WithAgent(string(cfg.Agent)),
		coalescer:    stream.New(cfg.Clock, cfg.Agent),
		review:       review.NewManager(cfg.Diffs),
		timer:        sessiontimer.New(cfg.Clock),
		endFallback:  clock.NewDeferred(cfg.Clock),
		displayDelay: clock.NewDeferred(cfg.Clock),
		sess:         Session{Agent: cfg.Agent, Status: StatusIdle},
	}

	for event, handler := range map[protocol.EventName]func(*protocol.Envelope){
		protocol.EvConnect:          c.handleConnect,
		protocol.EvDisconnect:       c.handleDisconnect,
		protocol.EvSessionStarted:   c.handleSessionStarted,
		protocol.EvSessionResumed:   c.handleSessionResumed,
		protocol.EvConnectionResult: c.handleConnectionResult,
		protocol.EvAgentOutput:      c.handleAgentOutput,
		protocol.EvSessionWarning:   c.handleSessionWarning,
		protocol.EvSessionTimeout:   c.handleSessionTimeout,
		protocol.EvSessionEnded:     c.handleSessionEnded,
		protocol.EvSessionEndResult: c.handleSessionEndResult,
		protocol.EvSessionClosed:    c.handleSessionClosed,
		protocol.EvCommandStatus:    c.handleCommandStatus,
		protocol.EvStatusUpdate:     c.handleStatusUpdate,
		protocol.EvError:            c.handleError,
		protocol.EvFileChange:       c.handleFileChange,
	} {
		c.ch.On(event, handler)
	}

	return c
}

// Coalescer exposes the output buffer for UI wiring.
func (c *Controller) Coalescer() *stream.Coalescer { return c.coalescer }

// Review exposes the diff queue for UI wiring.
func (c *Controller) Review() *review.Manager { return c.review }

// Timer exposes the countdown for UI wiring.
func (c *Controller) Timer() *sessiontimer.Timer { return c.timer }

// Session returns a snapshot of the tracked session.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// Status returns the current lifecycle state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.Status
}

func (c *Controller) setStatus(next Status) {
	c.mu.Lock()
	prev := c.sess.Status
	c.sess.Status = next
	c.mu.Unlock()

	if prev != next {
		c.log.Info("status_change", map[string]interface{}{
			"from": string(prev), "to": string(next),
		})
		c.hooks.OnStatusChange(prev, next)
	}
}

// Startup resolves the device identity and reconciles against the server
// once: a live server session always wins over a local resume token, a
// fresh token triggers auto-resume, and otherwise the client stays idle
// awaiting a user start.
func (c *Controller) Startup(ctx context.Context) error {
	id, err := c.store.DeviceID(ctx)
	if err != nil {
		return fmt.Errorf("device id: %w", err)
	}
	c.mu.Lock()
	c.deviceID = id
	agent := c.sess.Agent
	c.mu.Unlock()
	c.log = c.log.WithDevice(id)

	st, err := c.status.AgentStatus(ctx, agent)
	if err != nil {
		c.log.Warn("status_probe_failed", nil, err)
		return nil
	}

	if st.Active {
		// A token for a session that is demonstrably live is worthless.
		if err := c.store.ClearResumeToken(ctx); err != nil {
			c.log.Warn("token_clear_failed", nil, err)
		}
		return c.ConnectExisting()
	}

	tok, err := c.store.TakeResumeToken(ctx)
	if err != nil {
		c.log.Warn("token_read_failed", nil, err)
		return nil
	}
	if tok == nil || tok.AgentType != string(agent) {
		return nil
	}
	return c.Resume(tok)
}

// Start requests a brand-new session in workingDirectory.
func (c *Controller) Start(name, workingDirectory string) error {
	if !c.ch.IsReady() {
		c.hooks.OnWarning("Not connected to server. Waiting for connection...")
		return ErrNotReady
	}

	c.mu.Lock()
	if c.sess.Status != StatusIdle {
		c.mu.Unlock()
		return ErrSessionBusy
	}
	c.sess.Name = name
	c.sess.WorkingDirectory = workingDirectory
	agent := c.sess.Agent
	deviceID := c.deviceID
	c.mu.Unlock()

	c.setStatus(StatusStarting)
	err := c.ch.Send(protocol.EvStartSession, protocol.StartSessionPayload{
		AgentType:        string(agent),
		SessionName:      name,
		WorkingDirectory: workingDirectory,
		DeviceID:         deviceID,
	})
	if err != nil {
		c.setStatus(StatusIdle)
		return err
	}
	return nil
}

// Resume reattaches to the session named by a resume token.
func (c *Controller) Resume(tok *device.ResumeToken) error {
	if !c.ch.IsReady() {
		c.hooks.OnWarning("Not connected to server. Waiting for connection...")
		return ErrNotReady
	}

	c.mu.Lock()
	if c.sess.Status != StatusIdle {
		c.mu.Unlock()
		return ErrSessionBusy
	}
	c.sess.ID = tok.SessionID
	c.sess.Name = tok.SessionName
	c.sess.WorkingDirectory = tok.WorkingDirectory
	agent := c.sess.Agent
	deviceID := c.deviceID
	c.mu.Unlock()

	c.setStatus(StatusStarting)
	err := c.ch.Send(protocol.EvResumeAgentSession, protocol.ResumeAgentSessionPayload{
		AgentType: string(agent),
		SessionID: tok.SessionID,
		DeviceID:  deviceID,
	})
	if err != nil {
		c.clearSession()
		return err
	}
	return nil
}

// ConnectExisting attaches to a session already live on the server.
func (c *Controller) ConnectExisting() error {
	if !c.ch.IsReady() {
		c.hooks.OnWarning("Not connected to server. Waiting for connection...")
		return ErrNotReady
	}

	c.mu.Lock()
	if c.sess.Status != StatusIdle {
		c.mu.Unlock()
		return ErrSessionBusy
	}
	agent := c.sess.Agent
	deviceID := c.deviceID
	c.mu.Unlock()

	c.setStatus(StatusStarting)
	err := c.ch.Send(protocol.EvConnectToSession, protocol.ConnectToSessionPayload{
		AgentType: string(agent),
		DeviceID:  deviceID,
	})
	if err != nil {
		c.clearSession()
		return err
	}
	return nil
}

// SendInput flushes any in-flight agent draft, records the user message,
// and forwards the command.
func (c *Controller) SendInput(text string) error {
	agent, deviceID, err := c.activeSendContext()
	if err != nil {
		return err
	}

	c.coalescer.UserMessage(text)
	return c.ch.Send(protocol.EvSendCommand, protocol.SendCommandPayload{
		AgentType: string(agent),
		Command:   text,
		DeviceID:  deviceID,
	})
}

// SendEnter forwards a bare Enter keypress.
func (c *Controller) SendEnter() error {
	agent, deviceID, err := c.activeSendContext()
	if err != nil {
		return err
	}
	return c.ch.Send(protocol.EvSendEnterKey, protocol.SendEnterKeyPayload{
		AgentType: string(agent),
		DeviceID:  deviceID,
	})
}

// SendBackspace forwards count backspace keypresses.
func (c *Controller) SendBackspace(count int) error {
	agent, deviceID, err := c.activeSendContext()
	if err != nil {
		return err
	}
	return c.ch.Send(protocol.EvSendBackspaceKey, protocol.SendBackspaceKeyPayload{
		AgentType: string(agent),
		DeviceID:  deviceID,
		Count:     count,
	})
}

func (c *Controller) activeSendContext() (agents.Kind, string, error) {
	if !c.ch.IsReady() {
		c.hooks.OnWarning("Not connected to server. Waiting for connection...")
		return "", "", ErrNotReady
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess.Status != StatusActive {
		return "", "", ErrNoSession
	}
	return c.sess.Agent, c.deviceID, nil
}

// End requests a graceful termination. The session tick stops at once,
// but the stream debounce is left armed so in-flight output still lands
// in the transcript. A 2-second fallback covers a lost confirmation.
func (c *Controller) End() error {
	if !c.ch.IsReady() {
		c.hooks.OnWarning("Not connected to server. Waiting for connection...")
		return ErrNotReady
	}

	c.mu.Lock()
	if c.sess.Status != StatusActive {
		c.mu.Unlock()
		return ErrNoSession
	}
	agent := c.sess.Agent
	c.mu.Unlock()

	// Remember the countdown so a failed send can revert it.
	remaining := c.timer.Remaining()
	wasRunning := c.timer.Running()
	c.timer.Stop()
	c.setStatus(StatusEnding)

	err := c.ch.Send(protocol.EvEndSession, protocol.EndSessionPayload{
		AgentType: string(agent),
		Graceful:  true,
	})
	if err != nil {
		if wasRunning {
			c.timer.Start(remaining)
		}
		c.setStatus(StatusActive)
		return err
	}

	c.endFallback.Arm(endFallbackDelay, c.handleEndFallback)
	return nil
}

// RequestStatus asks the server for a status_update.
func (c *Controller) RequestStatus() error {
	if !c.ch.IsReady() {
		return ErrNotReady
	}
	c.mu.Lock()
	agent := c.sess.Agent
	c.mu.Unlock()
	return c.ch.Send(protocol.EvGetStatus, protocol.GetStatusPayload{
		AgentType: string(agent),
	})
}

// SetAgent switches the targeted agent kind. Only allowed while idle;
// the coalescer flushes under the old kind's tag first.
func (c *Controller) SetAgent(kind agents.Kind) error {
	c.mu.Lock()
	if c.sess.Status != StatusIdle {
		c.mu.Unlock()
		return ErrSessionBusy
	}
	c.sess.Agent = kind
	c.mu.Unlock()

	c.coalescer.SetAgent(kind)
	c.log = logging.New("session").WithAgent(string(kind))
	return nil
}

// SaveResumeToken persists a reattach hint for the current session, used
// when the client exits while a session is still live.
func (c *Controller) SaveResumeToken(ctx context.Context) error {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()

	if sess.Status != StatusActive || sess.ID == "" {
		return ErrNoSession
	}
	return c.store.SaveResumeToken(ctx, device.ResumeToken{
		Token:            sess.ID,
		SessionID:        sess.ID,
		AgentType:        string(sess.Agent),
		SessionName:      sess.Name,
		WorkingDirectory: sess.WorkingDirectory,
	})
}

// ── inbound event handlers ──────────────────────────────────────────────

func (c *Controller) handleConnect(*protocol.Envelope) {
	c.hooks.OnSystemMessage("Connected to server")

	// After a drop the server is the source of truth: re-attach instead
	// of trusting the local status that survived the disconnect.
	c.mu.Lock()
	midSession := c.sess.Status == StatusActive || c.sess.Status == StatusStarting
	agent := c.sess.Agent
	deviceID := c.deviceID
	c.mu.Unlock()

	if midSession {
		if err := c.ch.Send(protocol.EvConnectToSession, protocol.ConnectToSessionPayload{
			AgentType: string(agent),
			DeviceID:  deviceID,
		}); err != nil {
			c.log.Warn("reattach_failed", nil, err)
		}
	}
}

func (c *Controller) handleDisconnect(*protocol.Envelope) {
	// Status is deliberately untouched: the server decides on reconnect
	// whether the session is still live.
	c.hooks.OnWarning("Connection lost. Reconnecting...")
	c.timer.Stop()
}

func (c *Controller) handleSessionStarted(env *protocol.Envelope) {
	p, err := env.AsSessionStarted()
	if err != nil {
		c.log.Error("bad_payload", map[string]interface{}{"event": "session_started"}, err)
		return
	}

	if !p.Success {
		c.clearSession()
		c.hooks.OnError("Failed to start session: " + p.Error)
		return
	}

	c.mu.Lock()
	c.sess.ID = p.SessionID
	if p.WorkingDirectory != "" {
		c.sess.WorkingDirectory = p.WorkingDirectory
	}
	if p.SessionName != "" {
		c.sess.Name = p.SessionName
	}
	agent := c.sess.Agent
	wd := c.sess.WorkingDirectory
	c.mu.Unlock()

	c.review.SetSession(p.SessionID)
	c.setStatus(StatusActive)
	c.timer.Start(0)
	if len(p.History) > 0 {
		c.hooks.OnHistory(p.History)
	}
	c.hooks.OnSystemMessage(fmt.Sprintf("Connected to %s in %s", agent.Label(), wd))
}

func (c *Controller) handleSessionResumed(env *protocol.Envelope) {
	p, err := env.AsSessionResumed()
	if err != nil {
		c.log.Error("bad_payload", map[string]interface{}{"event": "session_resumed"}, err)
		return
	}

	if !p.Success {
		c.clearSession()
		c.hooks.OnError("Failed to resume session: " + p.Error)
		return
	}

	c.mu.Lock()
	c.sess.ID = p.SessionID
	if p.WorkingDirectory != "" {
		c.sess.WorkingDirectory = p.WorkingDirectory
	}
	if p.SessionName != "" {
		c.sess.Name = p.SessionName
	}
	name := c.sess.Name
	c.mu.Unlock()

	c.review.SetSession(p.SessionID)
	c.setStatus(StatusActive)
	c.timer.Start(0)
	if len(p.History) > 0 {
		c.hooks.OnHistory(p.History)
	}
	c.hooks.OnSystemMessage(fmt.Sprintf("Resumed session %q (%d messages)", name, p.MessageCount))
}

func (c *Controller) handleConnectionResult(env *protocol.Envelope) {
	p, err := env.AsConnectionResult()
	if err != nil {
		c.log.Error("bad_payload", map[string]interface{}{"event": "connection_result"}, err)
		return
	}

	if !p.Success {
		c.clearSession()
		if p.Error != "" {
			c.hooks.OnError("Could not attach to session: " + p.Error)
		}
		return
	}

	c.mu.Lock()
	c.sess.ID = p.SessionID
	if p.WorkingDirectory != "" {
		c.sess.WorkingDirectory = p.WorkingDirectory
	}
	c.mu.Unlock()

	c.review.SetSession(p.SessionID)
	c.setStatus(StatusActive)
	c.timer.Start(time.Duration(p.SessionTimeRemaining * float64(time.Second)))
	if len(p.History) > 0 {
		c.hooks.OnHistory(p.History)
	}
	c.hooks.OnSystemMessage("Attached to existing session")
}

func (c *Controller) handleAgentOutput(env *protocol.Envelope) {
	p, err := env.AsAgentOutput()
	if err != nil {
		c.log.Error("bad_payload", map[string]interface{}{"event": "agent_output"}, err)
		return
	}

	c.mu.Lock()
	status := c.sess.Status
	c.mu.Unlock()

	// Output during Ending still flows: the debounce flushes it before
	// the session visually closes.
	if status == StatusActive || status == StatusEnding {
		c.coalescer.OnChunk(p.Content)
	}
}

func (c *Controller) handleSessionWarning(env *protocol.Envelope) {
	var p protocol.SessionWarningPayload
	if err := env.Decode(&p); err != nil {
		return
	}
	c.timer.Sync(time.Duration(p.RemainingSeconds * float64(time.Second)))
	c.hooks.OnWarning(p.Message)
}

func (c *Controller) handleSessionTimeout(env *protocol.Envelope) {
	var p protocol.SessionTimeoutPayload
	env.Decode(&p)

	// Forced close: no save phase, straight back to idle.
	c.coalescer.Finalize()
	msg := p.Message
	if msg == "" {
		msg = "Session time limit reached"
	}
	c.hooks.OnWarning(msg)
	c.resetToIdle()
}

func (c *Controller) handleSessionEnded(env *protocol.Envelope) {
	// Advisory only. session_closed is the authoritative terminal
	// signal; acting here would double-handle out-of-order deliveries.
	var p protocol.SessionEndedPayload
	env.Decode(&p)
	if p.Message != "" {
		c.hooks.OnSystemMessage(p.Message)
	}
}

func (c *Controller) handleSessionEndResult(env *protocol.Envelope) {
	// Advisory: termination was accepted, data not yet persisted.
	var p protocol.SessionEndResultPayload
	env.Decode(&p)
	c.log.Info("end_result", map[string]interface{}{"success": p.Success})
}

func (c *Controller) handleSessionClosed(env *protocol.Envelope) {
	var p protocol.SessionClosedPayload
	env.Decode(&p)

	c.endFallback.Cancel()
	c.coalescer.Finalize()
	c.timer.Stop()
	c.review.Clear()

	c.setStatus(StatusClosed)
	if p.EmptySession {
		c.hooks.OnSystemMessage("Session closed (no messages were exchanged)")
	} else {
		c.hooks.OnSystemMessage("Session closed")
	}

	c.displayDelay.Arm(closedDisplayDelay, func() {
		c.clearSession()
	})
}

func (c *Controller) handleCommandStatus(env *protocol.Envelope) {
	var p protocol.CommandStatusPayload
	if err := env.Decode(&p); err != nil {
		return
	}
	if !p.Success && p.Error != "" {
		c.hooks.OnError(p.Error)
	}
}

func (c *Controller) handleStatusUpdate(env *protocol.Envelope) {
	var p protocol.StatusUpdatePayload
	if err := env.Decode(&p); err != nil {
		return
	}
	c.log.Info("status_update", map[string]interface{}{
		"active": p.Active, "session": p.SessionID, "remaining": p.RemainingTime,
	})
	if p.Active && p.RemainingTime > 0 {
		c.timer.Sync(time.Duration(p.RemainingTime * float64(time.Second)))
	}
}

func (c *Controller) handleError(env *protocol.Envelope) {
	var p protocol.ErrorPayload
	if err := env.Decode(&p); err != nil {
		return
	}
	c.hooks.OnError(p.Message)
}

func (c *Controller) handleFileChange(env *protocol.Envelope) {
	p, err := env.AsFileChange()
	if err != nil {
		c.log.Error("bad_payload", map[string]interface{}{"event": "file_change"}, err)
		return
	}
	c.review.HandleFileChange(p)
}

// handleEndFallback fires when a graceful end never got its session_closed
// confirmation. The reset is local-only and said so.
func (c *Controller) handleEndFallback() {
	c.mu.Lock()
	ending := c.sess.Status == StatusEnding
	c.mu.Unlock()
	if !ending {
		return
	}

	c.hooks.OnWarning("Server did not confirm session close; reset locally")
	c.coalescer.Finalize()
	c.resetToIdle()
}

// resetToIdle tears down all session-scoped state and returns to Idle.
func (c *Controller) resetToIdle() {
	c.endFallback.Cancel()
	c.displayDelay.Cancel()
	c.timer.Stop()
	c.review.Clear()
	c.clearSession()
}

// clearSession wipes identity fields and lands on Idle.
func (c *Controller) clearSession() {
	c.mu.Lock()
	c.sess.ID = ""
	c.sess.Name = ""
	c.sess.WorkingDirectory = ""
	c.mu.Unlock()
	c.setStatus(StatusIdle)
}
