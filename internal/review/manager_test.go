package review

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/agentdeck/internal/protocol"
)

type fakeService struct {
	acceptErr    error
	denyErr      error
	acceptAllErr error

	accepted  []string
	denied    []string
	bulkCalls int
}

func (f *fakeService) AcceptDiff(_ context.Context, _, diffID string) error {
	f.accepted = append(f.accepted, diffID)
	return f.acceptErr
}

func (f *fakeService) DenyDiff(_ context.Context, _, diffID string) error {
	f.denied = append(f.denied, diffID)
	return f.denyErr
}

func (f *fakeService) AcceptAllDiffs(_ context.Context, _ string) error {
	f.bulkCalls++
	return f.acceptAllErr
}

func pending(id string) protocol.Diff {
	return protocol.Diff{
		DiffID:     id,
		FilePath:   "src/" + id + ".go",
		ChangeType: "modified",
		Status:     StatusPending,
	}
}

func TestAddInsertsAtHead(t *testing.T) {
	m := NewManager(&fakeService{})
	m.SetSession("sess-1")

	m.Add(pending("d1"))
	m.Add(pending("d2"))

	changes := m.Changes()
	require.Len(t, changes, 2)
	assert.Equal(t, "d2", changes[0].DiffID)
	assert.Equal(t, "d1", changes[1].DiffID)
}

func TestDuplicateDiffIDReplacesInPlace(t *testing.T) {
	m := NewManager(&fakeService{})
	m.SetSession("sess-1")

	m.Add(pending("d1"))
	m.Add(pending("d2"))

	updated := pending("d1")
	updated.FilePath = "src/renamed.go"
	m.Add(updated)

	changes := m.Changes()
	require.Len(t, changes, 2)
	assert.Equal(t, "d2", changes[0].DiffID)
	assert.Equal(t, "d1", changes[1].DiffID)
	assert.Equal(t, "src/renamed.go", changes[1].FilePath)
}

func TestAttentionFiresOnZeroToPositiveOnly(t *testing.T) {
	m := NewManager(&fakeService{})
	m.SetSession("sess-1")

	attention := 0
	m.OnAttention(func() { attention++ })

	m.Add(pending("d1"))
	m.Add(pending("d2"))
	assert.Equal(t, 1, attention)

	require.NoError(t, m.Accept(context.Background(), "d1"))
	require.NoError(t, m.Accept(context.Background(), "d2"))

	m.Add(pending("d3"))
	assert.Equal(t, 2, attention)
}

func TestAcceptOptimisticThenConfirmed(t *testing.T) {
	svc := &fakeService{}
	m := NewManager(svc)
	m.SetSession("sess-1")
	m.Add(pending("d1"))

	require.NoError(t, m.Accept(context.Background(), "d1"))

	assert.Equal(t, []string{"d1"}, svc.accepted)
	assert.Equal(t, StatusAccepted, m.Changes()[0].Status)
	assert.Equal(t, 0, m.Pending())
}

func TestAcceptRollsBackOnServerError(t *testing.T) {
	svc := &fakeService{acceptErr: errors.New("500")}
	m := NewManager(svc)
	m.SetSession("sess-1")
	m.Add(pending("d1"))

	err := m.Accept(context.Background(), "d1")
	require.Error(t, err)

	assert.Equal(t, StatusPending, m.Changes()[0].Status)
	assert.Equal(t, 1, m.Pending())
}

func TestDenyRollsBackOnServerError(t *testing.T) {
	svc := &fakeService{denyErr: errors.New("500")}
	m := NewManager(svc)
	m.SetSession("sess-1")
	m.Add(pending("d1"))

	require.Error(t, m.Deny(context.Background(), "d1"))
	assert.Equal(t, StatusPending, m.Changes()[0].Status)
}

func TestAcceptUnknownDiffIsNoop(t *testing.T) {
	svc := &fakeService{}
	m := NewManager(svc)
	m.SetSession("sess-1")

	require.NoError(t, m.Accept(context.Background(), "ghost"))
	assert.Empty(t, svc.accepted)
}

func TestAcceptAllBulkNoRollback(t *testing.T) {
	svc := &fakeService{acceptAllErr: errors.New("timeout")}
	m := NewManager(svc)
	m.SetSession("sess-1")
	m.Add(pending("d1"))
	m.Add(pending("d2"))

	err := m.AcceptAll(context.Background())
	require.Error(t, err)

	// One bulk call, and the optimistic statuses stay applied.
	assert.Equal(t, 1, svc.bulkCalls)
	for _, c := range m.Changes() {
		assert.Equal(t, StatusAccepted, c.Status)
	}
}

func TestAcceptAllWithNothingPendingSkipsCall(t *testing.T) {
	svc := &fakeService{}
	m := NewManager(svc)
	m.SetSession("sess-1")

	require.NoError(t, m.AcceptAll(context.Background()))
	assert.Equal(t, 0, svc.bulkCalls)
}

func TestRemoteEventsMergeById(t *testing.T) {
	m := NewManager(&fakeService{})
	m.SetSession("sess-1")

	d := pending("d1")
	m.HandleFileChange(&protocol.FileChangePayload{
		Type: protocol.FileChangeDiffCreated,
		Diff: &d,
	})
	require.Equal(t, 1, m.Pending())

	m.HandleFileChange(&protocol.FileChangePayload{
		Type:   protocol.FileChangeDiffDenied,
		DiffID: "d1",
	})
	assert.Equal(t, StatusDenied, m.Changes()[0].Status)
	assert.Equal(t, 0, m.Pending())
}

func TestRemoteAllDiffsAccepted(t *testing.T) {
	m := NewManager(&fakeService{})
	m.SetSession("sess-1")
	m.Add(pending("d1"))
	m.Add(pending("d2"))
	require.NoError(t, m.Deny(context.Background(), "d2"))

	m.HandleFileChange(&protocol.FileChangePayload{Type: protocol.FileChangeAllDiffsAccepted})

	changes := m.Changes()
	assert.Equal(t, StatusDenied, changes[0].Status) // denied stays denied
	assert.Equal(t, StatusAccepted, changes[1].Status)
}

func TestClearAndSetSessionDropQueue(t *testing.T) {
	m := NewManager(&fakeService{})
	m.SetSession("sess-1")
	m.Add(pending("d1"))

	m.Clear()
	assert.Empty(t, m.Changes())

	m.Add(pending("d2"))
	m.SetSession("sess-2")
	assert.Empty(t, m.Changes())
}
