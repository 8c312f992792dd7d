package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/agentdeck/internal/protocol"
)

type countingDiffLister struct {
	sessionCalls int
	pendingCalls int
}

func (c *countingDiffLister) SessionDiffs(ctx context.Context, sessionID string) ([]protocol.Diff, error) {
	c.sessionCalls++
	return []protocol.Diff{{DiffID: "d1"}, {DiffID: "d2"}}, nil
}

func (c *countingDiffLister) PendingDiffs(ctx context.Context, sessionID string) ([]protocol.Diff, error) {
	c.pendingCalls++
	return []protocol.Diff{{DiffID: "d1"}}, nil
}

func TestFetchDiffsIssuesOneRequest(t *testing.T) {
	svc := &countingDiffLister{}

	diffs, err := fetchDiffs(context.Background(), svc, "s1", false)
	require.NoError(t, err)
	assert.Len(t, diffs, 2)
	assert.Equal(t, 1, svc.sessionCalls)
	assert.Equal(t, 0, svc.pendingCalls)

	svc = &countingDiffLister{}
	diffs, err = fetchDiffs(context.Background(), svc, "s1", true)
	require.NoError(t, err)
	assert.Len(t, diffs, 1)
	assert.Equal(t, 0, svc.sessionCalls)
	assert.Equal(t, 1, svc.pendingCalls)
}
