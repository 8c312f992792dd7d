// Package review tracks proposed file changes for the active session and
// applies accept/deny verdicts optimistically against the server.
package review

import (
	"context"
	"sync"

	"github.com/joss/agentdeck/internal/logging"
	"github.com/joss/agentdeck/internal/protocol"
)

// Diff review statuses on the wire.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusDenied   = "denied"
)

// Service is the REST surface the manager needs for verdicts.
type Service interface {
	AcceptDiff(ctx context.Context, sessionID, diffID string) error
	DenyDiff(ctx context.Context, sessionID, diffID string) error
	AcceptAllDiffs(ctx context.Context, sessionID string) error
}

// Manager holds the review queue, most recent proposal first. Local
// verdicts are applied before the server confirms; a failed call rolls
// the item back to its prior status.
type Manager struct {
	svc Service
	log *logging.Logger

	mu        sync.Mutex
	sessionID string
	changes   []protocol.Diff

	onUpdate    func()
	onAttention func()
}

func NewManager(svc Service) *Manager {
	return &Manager{
		svc: svc,
		log: logging.New("review"),
	}
}

// OnUpdate registers a callback fired after every queue mutation.
func (m *Manager) OnUpdate(f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = f
}

// OnAttention registers a callback fired when the pending count rises
// from zero.
func (m *Manager) OnAttention(f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAttention = f
}

// SetSession re-targets the manager and drops the previous queue.
func (m *Manager) SetSession(sessionID string) {
	m.mu.Lock()
	m.sessionID = sessionID
	m.changes = nil
	onUpdate := m.onUpdate
	m.mu.Unlock()

	if onUpdate != nil {
		onUpdate()
	}
}

// Clear empties the queue, typically on session close.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.changes = nil
	onUpdate := m.onUpdate
	m.mu.Unlock()

	if onUpdate != nil {
		onUpdate()
	}
}

// Changes returns a snapshot of the queue, most recent first.
func (m *Manager) Changes() []protocol.Diff {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]protocol.Diff, len(m.changes))
	copy(out, m.changes)
	return out
}

// Pending counts proposals still awaiting a verdict.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingLocked()
}

func (m *Manager) pendingLocked() int {
	n := 0
	for i := range m.changes {
		if m.changes[i].Status == StatusPending {
			n++
		}
	}
	return n
}

// Add inserts a proposal at the head. A proposal with a known diff id
// replaces the existing entry in place instead of duplicating it.
func (m *Manager) Add(d protocol.Diff) {
	if d.Status == "" {
		d.Status = StatusPending
	}

	m.mu.Lock()
	wasPending := m.pendingLocked()

	replaced := false
	for i := range m.changes {
		if m.changes[i].DiffID == d.DiffID {
			m.changes[i] = d
			replaced = true
			break
		}
	}
	if !replaced {
		m.changes = append([]protocol.Diff{d}, m.changes...)
	}

	nowPending := m.pendingLocked()
	onUpdate := m.onUpdate
	onAttention := m.onAttention
	m.mu.Unlock()

	if onUpdate != nil {
		onUpdate()
	}
	if onAttention != nil && wasPending == 0 && nowPending > 0 {
		onAttention()
	}
}

// HandleFileChange merges a remote diff lifecycle event. Remote verdicts
// go through the same by-id mutation as local ones.
func (m *Manager) HandleFileChange(p *protocol.FileChangePayload) {
	switch p.Type {
	case protocol.FileChangeDiffCreated:
		if p.Diff != nil {
			m.Add(*p.Diff)
		}
	case protocol.FileChangeDiffAccepted:
		m.setStatus(p.DiffID, StatusAccepted)
	case protocol.FileChangeDiffDenied:
		m.setStatus(p.DiffID, StatusDenied)
	case protocol.FileChangeAllDiffsAccepted:
		m.acceptAllLocal()
	default:
		m.log.Warn("unknown_file_change", map[string]interface{}{"type": string(p.Type)}, nil)
	}
}

func (m *Manager) setStatus(diffID, status string) {
	m.mu.Lock()
	for i := range m.changes {
		if m.changes[i].DiffID == diffID {
			m.changes[i].Status = status
			break
		}
	}
	onUpdate := m.onUpdate
	m.mu.Unlock()

	if onUpdate != nil {
		onUpdate()
	}
}

func (m *Manager) acceptAllLocal() {
	m.mu.Lock()
	for i := range m.changes {
		if m.changes[i].Status == StatusPending {
			m.changes[i].Status = StatusAccepted
		}
	}
	onUpdate := m.onUpdate
	m.mu.Unlock()

	if onUpdate != nil {
		onUpdate()
	}
}

// Accept optimistically marks the diff accepted, then confirms with the
// server. On failure the prior status is restored.
func (m *Manager) Accept(ctx context.Context, diffID string) error {
	return m.verdict(ctx, diffID, StatusAccepted, m.svc.AcceptDiff)
}

// Deny optimistically marks the diff denied, then confirms with the
// server. On failure the prior status is restored.
func (m *Manager) Deny(ctx context.Context, diffID string) error {
	return m.verdict(ctx, diffID, StatusDenied, m.svc.DenyDiff)
}

func (m *Manager) verdict(ctx context.Context, diffID, status string, call func(context.Context, string, string) error) error {
	m.mu.Lock()
	sessionID := m.sessionID
	prior := ""
	found := false
	for i := range m.changes {
		if m.changes[i].DiffID == diffID {
			prior = m.changes[i].Status
			m.changes[i].Status = status
			found = true
			break
		}
	}
	onUpdate := m.onUpdate
	m.mu.Unlock()

	if !found {
		return nil
	}
	if onUpdate != nil {
		onUpdate()
	}

	if err := call(ctx, sessionID, diffID); err != nil {
		m.log.Warn("verdict_rolled_back", map[string]interface{}{
			"diff_id": diffID, "status": status,
		}, err)
		m.setStatus(diffID, prior)
		return err
	}
	return nil
}

// AcceptAll marks every pending diff accepted and issues one bulk call.
// There is no per-item rollback: a failure is surfaced to the caller and
// the next remote event reconciles the queue.
func (m *Manager) AcceptAll(ctx context.Context) error {
	m.mu.Lock()
	sessionID := m.sessionID
	any := false
	for i := range m.changes {
		if m.changes[i].Status == StatusPending {
			m.changes[i].Status = StatusAccepted
			any = true
		}
	}
	onUpdate := m.onUpdate
	m.mu.Unlock()

	if !any {
		return nil
	}
	if onUpdate != nil {
		onUpdate()
	}
	return m.svc.AcceptAllDiffs(ctx, sessionID)
}
