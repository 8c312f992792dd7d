// Package device persists per-install client state: the stable device
// identity, the single-use resume token, and small UI flags.
package device

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/joss/agentdeck/internal/clock"
)

// ResumeTokenTTL is how long a saved resume token stays usable. A token
// older than this is treated as absent and deleted on read.
const ResumeTokenTTL = 5 * time.Minute

// ResumeToken records enough context to re-attach to a recently
// disconnected agent session.
type ResumeToken struct {
	Token            string
	SessionID        string
	AgentType        string
	SessionName      string
	WorkingDirectory string
	SavedAt          time.Time
}

type Store struct {
	db   *sql.DB
	path string
	clk  clock.Clock
}

func Open(dataDir string, clk clock.Clock) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "client.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, path: dbPath, clk: clk}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS client_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS resume_token (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		token TEXT NOT NULL,
		session_id TEXT NOT NULL,
		agent_type TEXT NOT NULL,
		session_name TEXT NOT NULL,
		working_directory TEXT NOT NULL,
		saved_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DeviceID returns the stable identity for this install, generating and
// persisting a fresh UUID on first read.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM client_state WHERE key = 'device_id'`).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}

	id = uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO client_state (key, value) VALUES ('device_id', ?)
		ON CONFLICT(key) DO NOTHING
	`, id)
	if err != nil {
		return "", err
	}

	// Re-read in case a concurrent writer won the insert.
	err = s.db.QueryRowContext(ctx,
		`SELECT value FROM client_state WHERE key = 'device_id'`).Scan(&id)
	return id, err
}

// SaveResumeToken stores tok, replacing any previous token. There is at
// most one token per install.
func (s *Store) SaveResumeToken(ctx context.Context, tok ResumeToken) error {
	if tok.SavedAt.IsZero() {
		tok.SavedAt = s.clk.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resume_token (id, token, session_id, agent_type, session_name, working_directory, saved_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			session_id = excluded.session_id,
			agent_type = excluded.agent_type,
			session_name = excluded.session_name,
			working_directory = excluded.working_directory,
			saved_at = excluded.saved_at
	`, tok.Token, tok.SessionID, tok.AgentType, tok.SessionName, tok.WorkingDirectory, tok.SavedAt)
	return err
}

// TakeResumeToken returns the stored token and deletes it, so a token is
// observed at most once. Returns nil when no token exists or the stored
// one has aged past ResumeTokenTTL; a stale token is also deleted.
func (s *Store) TakeResumeToken(ctx context.Context) (*ResumeToken, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var tok ResumeToken
	err = tx.QueryRowContext(ctx, `
		SELECT token, session_id, agent_type, session_name, working_directory, saved_at
		FROM resume_token WHERE id = 1
	`).Scan(&tok.Token, &tok.SessionID, &tok.AgentType, &tok.SessionName, &tok.WorkingDirectory, &tok.SavedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM resume_token WHERE id = 1`); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	// Valid strictly within the TTL; a token aged exactly the TTL is stale.
	if s.clk.Now().Sub(tok.SavedAt) >= ResumeTokenTTL {
		return nil, nil
	}
	return &tok, nil
}

// ClearResumeToken removes any stored token without reading it.
func (s *Store) ClearResumeToken(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM resume_token WHERE id = 1`)
	return err
}

// DismissInstallPrompt records that the user dismissed the agent install
// hint, so it is not shown again for a while.
func (s *Store) DismissInstallPrompt(ctx context.Context, agentType string) error {
	key := "install_dismissed:" + agentType
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, s.clk.Now().UTC().Format(time.RFC3339))
	return err
}

// InstallPromptDismissedAt reports when the install hint for agentType was
// last dismissed. ok is false when it never was.
func (s *Store) InstallPromptDismissedAt(ctx context.Context, agentType string) (time.Time, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM client_state WHERE key = ?`, "install_dismissed:"+agentType).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	at, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse dismissal timestamp: %w", err)
	}
	return at, true, nil
}
