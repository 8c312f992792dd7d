// Package config provides centralized configuration management.
// All environment lookups live here instead of scattered os.Getenv calls.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DeckEnv holds all agentdeck environment variables.
type DeckEnv struct {
	// ServerURL is the agent server base URL (AGENTDECK_SERVER)
	ServerURL string

	// SocketURL overrides the channel endpoint (AGENTDECK_SOCKET);
	// derived from ServerURL when empty.
	SocketURL string

	// Agent is the default agent kind (AGENTDECK_AGENT)
	Agent string

	// WorkingDir is the default session working directory (AGENTDECK_WORKDIR)
	WorkingDir string

	// DeviceID overrides the persisted device identifier (AGENTDECK_DEVICE_ID)
	DeviceID string

	// CapturePath, when set, mirrors every inbound envelope to this file
	// as JSON lines (AGENTDECK_CAPTURE); replay with `sessions replay`.
	CapturePath string

	// NoColor disables colored output (NO_COLOR)
	NoColor bool
}

var (
	env     *DeckEnv
	envOnce sync.Once
)

// Env returns the singleton environment configuration.
// Thread-safe, loads once on first call.
func Env() *DeckEnv {
	envOnce.Do(func() {
		env = &DeckEnv{
			ServerURL:   getEnvDefault("AGENTDECK_SERVER", "https://localhost:10000"),
			SocketURL:   os.Getenv("AGENTDECK_SOCKET"),
			Agent:       getEnvDefault("AGENTDECK_AGENT", "claude"),
			WorkingDir:  os.Getenv("AGENTDECK_WORKDIR"),
			DeviceID:    os.Getenv("AGENTDECK_DEVICE_ID"),
			NoColor:     os.Getenv("NO_COLOR") != "",
			CapturePath: os.Getenv("AGENTDECK_CAPTURE"),
		}
	})
	return env
}

// ChannelURL returns the websocket endpoint. Uses AGENTDECK_SOCKET when
// set, otherwise derives ws(s)://host/ws from the server URL.
func (e *DeckEnv) ChannelURL() string {
	if e.SocketURL != "" {
		return e.SocketURL
	}
	u := e.ServerURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return strings.TrimRight(u, "/") + "/ws"
}

// ResetEnv resets the cached environment (for testing).
func ResetEnv() {
	envOnce = sync.Once{}
	env = nil
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Paths holds standard agentdeck directory paths.
type Paths struct {
	// Home is the agentdeck home directory (~/.agentdeck)
	Home string

	// Data is the data directory (~/.agentdeck/data)
	Data string

	// StateDB is the client state database (~/.agentdeck/data/client.db)
	StateDB string

	// Logs is the log directory (~/.agentdeck/logs)
	Logs string
}

var (
	paths     *Paths
	pathsOnce sync.Once
)

// GetPaths returns the singleton paths configuration.
func GetPaths() *Paths {
	pathsOnce.Do(func() {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		deckHome := filepath.Join(home, ".agentdeck")

		paths = &Paths{
			Home:    deckHome,
			Data:    filepath.Join(deckHome, "data"),
			StateDB: filepath.Join(deckHome, "data", "client.db"),
			Logs:    filepath.Join(deckHome, "logs"),
		}
	})
	return paths
}

// Path returns a path under the agentdeck home directory.
func Path(parts ...string) string {
	p := GetPaths()
	allParts := append([]string{p.Home}, parts...)
	return filepath.Join(allParts...)
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
