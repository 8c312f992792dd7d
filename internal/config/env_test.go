package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnv(t *testing.T) {
	// Reset env for clean test
	ResetEnv()

	os.Setenv("AGENTDECK_SERVER", "https://devbox:9000")
	os.Setenv("AGENTDECK_AGENT", "codex")
	os.Setenv("AGENTDECK_DEVICE_ID", "dev-override")
	defer func() {
		os.Unsetenv("AGENTDECK_SERVER")
		os.Unsetenv("AGENTDECK_AGENT")
		os.Unsetenv("AGENTDECK_DEVICE_ID")
		ResetEnv()
	}()

	env := Env()

	assert.Equal(t, "https://devbox:9000", env.ServerURL)
	assert.Equal(t, "codex", env.Agent)
	assert.Equal(t, "dev-override", env.DeviceID)
}

func TestEnvDefaults(t *testing.T) {
	ResetEnv()

	os.Unsetenv("AGENTDECK_SERVER")
	os.Unsetenv("AGENTDECK_AGENT")
	defer ResetEnv()

	env := Env()

	assert.Equal(t, "https://localhost:10000", env.ServerURL)
	assert.Equal(t, "claude", env.Agent)
}

func TestEnvSingleton(t *testing.T) {
	ResetEnv()
	defer ResetEnv()

	env1 := Env()
	env2 := Env()

	assert.Same(t, env1, env2)
}

func TestChannelURL(t *testing.T) {
	env := &DeckEnv{ServerURL: "https://devbox:9000"}
	assert.Equal(t, "wss://devbox:9000/ws", env.ChannelURL())

	env = &DeckEnv{ServerURL: "http://localhost:10000/"}
	assert.Equal(t, "ws://localhost:10000/ws", env.ChannelURL())

	env = &DeckEnv{ServerURL: "https://devbox:9000", SocketURL: "wss://other/socket"}
	assert.Equal(t, "wss://other/socket", env.ChannelURL())
}

func TestPaths(t *testing.T) {
	p := GetPaths()

	assert.True(t, strings.HasSuffix(p.Home, ".agentdeck"))
	assert.Equal(t, filepath.Join(p.Home, "data"), p.Data)
	assert.Equal(t, filepath.Join(p.Data, "client.db"), p.StateDB)

	assert.Equal(t, filepath.Join(p.Home, "a", "b"), Path("a", "b"))
}
