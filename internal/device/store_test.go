package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/agentdeck/internal/clock"
)

func newTestStore(t *testing.T) (*Store, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake()
	s, err := Open(t.TempDir(), clk)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, clk
}

func TestDeviceIDStableAcrossReads(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	first, err := s.DeviceID(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := s.DeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDeviceIDSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	clk := clock.NewFake()
	ctx := context.Background()

	s, err := Open(dir, clk)
	require.NoError(t, err)
	first, err := s.DeviceID(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(dir, clk)
	require.NoError(t, err)
	defer s2.Close()

	second, err := s2.DeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResumeTokenIsSingleUse(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveResumeToken(ctx, ResumeToken{
		Token:            "tok-1",
		SessionID:        "sess-1",
		AgentType:        "claude",
		SessionName:      "fix-auth",
		WorkingDirectory: "/work/auth",
	}))

	tok, err := s.TakeResumeToken(ctx)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "tok-1", tok.Token)
	assert.Equal(t, "sess-1", tok.SessionID)
	assert.Equal(t, "claude", tok.AgentType)

	again, err := s.TakeResumeToken(ctx)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestResumeTokenReplacedBySecondSave(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveResumeToken(ctx, ResumeToken{Token: "old", SessionID: "s1", AgentType: "claude"}))
	require.NoError(t, s.SaveResumeToken(ctx, ResumeToken{Token: "new", SessionID: "s2", AgentType: "gemini"}))

	tok, err := s.TakeResumeToken(ctx)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "new", tok.Token)
	assert.Equal(t, "s2", tok.SessionID)
}

func TestResumeTokenFreshJustUnderTTL(t *testing.T) {
	s, clk := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveResumeToken(ctx, ResumeToken{Token: "tok", SessionID: "s1", AgentType: "claude"}))
	clk.Advance(299 * time.Second)

	tok, err := s.TakeResumeToken(ctx)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "tok", tok.Token)
}

func TestResumeTokenStaleAtExactTTL(t *testing.T) {
	s, clk := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveResumeToken(ctx, ResumeToken{Token: "tok", SessionID: "s1", AgentType: "claude"}))
	clk.Advance(ResumeTokenTTL)

	tok, err := s.TakeResumeToken(ctx)
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestResumeTokenStaleJustOverTTL(t *testing.T) {
	s, clk := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveResumeToken(ctx, ResumeToken{Token: "tok", SessionID: "s1", AgentType: "claude"}))
	clk.Advance(301 * time.Second)

	tok, err := s.TakeResumeToken(ctx)
	require.NoError(t, err)
	assert.Nil(t, tok)

	// The stale row is gone, not merely skipped.
	again, err := s.TakeResumeToken(ctx)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestClearResumeToken(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveResumeToken(ctx, ResumeToken{Token: "tok", SessionID: "s1", AgentType: "codex"}))
	require.NoError(t, s.ClearResumeToken(ctx))

	tok, err := s.TakeResumeToken(ctx)
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestInstallPromptDismissal(t *testing.T) {
	s, clk := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.InstallPromptDismissedAt(ctx, "cursor")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.DismissInstallPrompt(ctx, "cursor"))

	at, ok, err := s.InstallPromptDismissedAt(ctx, "cursor")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.WithinDuration(t, clk.Now(), at, time.Second)

	// Other agents are unaffected.
	_, ok, err = s.InstallPromptDismissedAt(ctx, "claude")
	require.NoError(t, err)
	assert.False(t, ok)
}
