// Package api is the REST client for the agentdeck server's HTTP
// surface: agent status, session records, directory checks, diff
// verdicts, and the remote file browser.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/joss/agentdeck/internal/agents"
	"github.com/joss/agentdeck/internal/logging"
	"github.com/joss/agentdeck/internal/protocol"
)

// HTTPClient interface for HTTP requests (enables testing)
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Verify http.Client implements HTTPClient
var _ HTTPClient = (*http.Client)(nil)

type Client struct {
	baseURL string
	client  HTTPClient
	log     *logging.Logger
}

func NewClient(baseURL string) *Client {
	return NewClientWithHTTP(baseURL, &http.Client{Timeout: 30 * time.Second})
}

func NewClientWithHTTP(baseURL string, hc HTTPClient) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  hc,
		log:     logging.New("api"),
	}
}

// AgentStatus mirrors /api/status/<agent>.
type AgentStatus struct {
	Active           bool    `json:"active"`
	AgentType        string  `json:"agent_type"`
	WorkingDirectory string  `json:"working_directory"`
	SessionID        string  `json:"session_id,omitempty"`
	ConnectedClients int     `json:"connected_clients,omitempty"`
	ElapsedTime      float64 `json:"elapsed_time,omitempty"`
	RemainingTime    float64 `json:"remaining_time,omitempty"`
}

// SessionRecord mirrors one server-side session row.
type SessionRecord struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	StartTime         string  `json:"start_time"`
	EndTime           string  `json:"end_time,omitempty"`
	WorkingDirectory  string  `json:"working_directory"`
	MessageCount      int     `json:"message_count"`
	Status            string  `json:"status"` // "active" | "completed" | "terminated"
	TotalActiveTime   float64 `json:"total_active_time,omitempty"`
	LastActivity      string  `json:"last_activity,omitempty"`
	AgentAPISessionID string  `json:"agent_api_session_id,omitempty"`
}

// SessionDetail is a session record plus its transcript.
type SessionDetail struct {
	Session  SessionRecord           `json:"session"`
	Messages []protocol.HistoryEntry `json:"messages"`
}

// DirectoryCheck mirrors /api/validate_directory.
type DirectoryCheck struct {
	Valid     bool   `json:"valid"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
	CanCreate bool   `json:"can_create,omitempty"`
}

// FileEntry is one row from the remote file browser.
type FileEntry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	IsDirectory bool   `json:"is_directory"`
	Size        int64  `json:"size"`
}

// apiError is the uniform {"success": false, "error": "..."} shape.
type apiError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var ae apiError
		if json.Unmarshal(data, &ae) == nil && ae.Error != "" {
			return fmt.Errorf("%s %s: %s", req.Method, req.URL.Path, ae.Error)
		}
		return fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// AgentStatus fetches the server-side view of one agent.
func (c *Client) AgentStatus(ctx context.Context, kind agents.Kind) (*AgentStatus, error) {
	var st AgentStatus
	if err := c.get(ctx, "/api/status/"+string(kind), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// AllStatus fetches the status of every agent in one call.
func (c *Client) AllStatus(ctx context.Context) (map[string]AgentStatus, error) {
	out := map[string]AgentStatus{}
	if err := c.get(ctx, "/api/status", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateDirectory asks the server whether dir exists and is usable as a
// working directory.
func (c *Client) ValidateDirectory(ctx context.Context, dir string) (*DirectoryCheck, error) {
	var res DirectoryCheck
	err := c.post(ctx, "/api/validate_directory", map[string]string{"directory": dir}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// CreateDirectory creates dir (and parents) on the server host.
func (c *Client) CreateDirectory(ctx context.Context, dir string) error {
	var res struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := c.post(ctx, "/api/create_directory", map[string]string{"directory": dir}, &res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("create directory: %s", res.Error)
	}
	return nil
}

// SelectAgent initializes the server-side manager for kind.
func (c *Client) SelectAgent(ctx context.Context, kind agents.Kind) error {
	var res struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := c.post(ctx, "/api/select_agent", map[string]string{"agent_type": string(kind)}, &res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("select agent: %s", res.Error)
	}
	return nil
}

// ListSessions returns all recorded sessions for kind, newest first.
func (c *Client) ListSessions(ctx context.Context, kind agents.Kind) ([]SessionRecord, error) {
	var out []SessionRecord
	if err := c.get(ctx, "/api/sessions/"+string(kind), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSession returns one session with its transcript.
func (c *Client) GetSession(ctx context.Context, kind agents.Kind, sessionID string) (*SessionDetail, error) {
	var out SessionDetail
	if err := c.get(ctx, "/api/sessions/"+string(kind)+"/"+sessionID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSession removes a recorded session.
func (c *Client) DeleteSession(ctx context.Context, kind agents.Kind, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/api/sessions/"+string(kind)+"/"+sessionID, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

type diffsResponse struct {
	Success   bool            `json:"success"`
	Diffs     []protocol.Diff `json:"diffs"`
	Count     int             `json:"count"`
	Error     string          `json:"error"`
	SessionID string          `json:"session_id"`
}

// SessionDiffs returns every diff recorded for the session.
func (c *Client) SessionDiffs(ctx context.Context, sessionID string) ([]protocol.Diff, error) {
	var res diffsResponse
	if err := c.get(ctx, "/api/diffs/"+sessionID, &res); err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, fmt.Errorf("session diffs: %s", res.Error)
	}
	return res.Diffs, nil
}

// PendingDiffs returns the diffs still awaiting a verdict.
func (c *Client) PendingDiffs(ctx context.Context, sessionID string) ([]protocol.Diff, error) {
	var res diffsResponse
	if err := c.get(ctx, "/api/diffs/"+sessionID+"/pending", &res); err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, fmt.Errorf("pending diffs: %s", res.Error)
	}
	return res.Diffs, nil
}

// AcceptDiff confirms one proposed change.
func (c *Client) AcceptDiff(ctx context.Context, sessionID, diffID string) error {
	return c.post(ctx, "/api/diffs/"+sessionID+"/"+diffID+"/accept", nil, nil)
}

// DenyDiff rejects one proposed change; the server restores the file.
func (c *Client) DenyDiff(ctx context.Context, sessionID, diffID string) error {
	return c.post(ctx, "/api/diffs/"+sessionID+"/"+diffID+"/deny", nil, nil)
}

// AcceptAllDiffs confirms every pending change in one call.
func (c *Client) AcceptAllDiffs(ctx context.Context, sessionID string) error {
	return c.post(ctx, "/api/diffs/"+sessionID+"/accept_all", nil, nil)
}

// ListFiles lists a directory under the agent's working directory.
// Entries matching any of the ignore globs (doublestar patterns matched
// against the entry name and path) are filtered out client-side.
func (c *Client) ListFiles(ctx context.Context, kind agents.Kind, path string, ignore []string) ([]FileEntry, error) {
	var res struct {
		Success bool        `json:"success"`
		Path    string      `json:"path"`
		Items   []FileEntry `json:"items"`
		Error   string      `json:"error"`
	}
	body := map[string]string{"path": path, "agent_type": string(kind)}
	if err := c.post(ctx, "/api/files/list", body, &res); err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, fmt.Errorf("list files: %s", res.Error)
	}
	if len(ignore) == 0 {
		return res.Items, nil
	}

	kept := res.Items[:0]
	for _, item := range res.Items {
		if ignored(item, ignore) {
			continue
		}
		kept = append(kept, item)
	}
	return kept, nil
}

func ignored(item FileEntry, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, item.Name); ok {
			return true
		}
		if ok, _ := doublestar.Match(p, strings.TrimPrefix(item.Path, "/")); ok {
			return true
		}
	}
	return false
}

// ReadFile fetches a file's content from the server host.
func (c *Client) ReadFile(ctx context.Context, kind agents.Kind, path string) (string, error) {
	var res struct {
		Success bool   `json:"success"`
		Content string `json:"content"`
		Error   string `json:"error"`
	}
	body := map[string]string{"path": path, "agent_type": string(kind)}
	if err := c.post(ctx, "/api/files/read", body, &res); err != nil {
		return "", err
	}
	if !res.Success {
		return "", fmt.Errorf("read file: %s", res.Error)
	}
	return res.Content, nil
}

// WriteFile writes content to a file on the server host.
func (c *Client) WriteFile(ctx context.Context, kind agents.Kind, path, content string) error {
	var res struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	body := map[string]string{"path": path, "agent_type": string(kind), "content": content}
	if err := c.post(ctx, "/api/files/write", body, &res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("write file: %s", res.Error)
	}
	return nil
}
