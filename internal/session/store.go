package session

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Store is the durable session store backed by SQLite. All state
// transitions are single conditional UPDATEs guarded on the current status,
// so concurrent duplicate deliveries of the same event resolve to exactly
// one winner without external locking.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore opens the session database and initializes the schema. Use
// ":memory:" as the path for an ephemeral store.
func NewStore(dbPath string, logger zerolog.Logger) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection; keep the pool at one so
	// every query sees the same schema.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger.With().Str("component", "session-store").Logger(),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates database tables
func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS login_sessions (
			id TEXT PRIMARY KEY,
			token TEXT NOT NULL UNIQUE,
			telegram_id INTEGER,
			first_name TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			policy_accepted INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_login_sessions_token ON login_sessions(token);
		CREATE INDEX IF NOT EXISTS idx_login_sessions_identity ON login_sessions(telegram_id, status, created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new pending session with a fresh token.
func (s *Store) Create(ctx context.Context) (*Session, error) {
	token, err := NewToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		Token:     token,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO login_sessions (id, token, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.Token, sess.Status, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Debug().
		Str("session_id", sess.ID).
		Str("token_prefix", TokenPrefix(sess.Token)).
		Msg("Login session created")

	return sess, nil
}

// GetByToken returns the session with the given token, or ErrNotFound.
func (s *Store) GetByToken(ctx context.Context, token string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, token, telegram_id, first_name, username, phone, policy_accepted, status, created_at, updated_at
		FROM login_sessions WHERE token = ?`, token)
	return scanSession(row)
}

// LatestForIdentity returns the most recently created session for the
// Telegram identity whose status is one of the given statuses, or
// ErrNotFound. This is the "session the user is currently progressing"
// heuristic: contact and callback events carry no token, only the identity.
func (s *Store) LatestForIdentity(ctx context.Context, telegramID int64, statuses ...Status) (*Session, error) {
	if len(statuses) == 0 {
		return nil, fmt.Errorf("at least one status is required")
	}

	placeholders := strings.Repeat("?,", len(statuses))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(statuses)+1)
	args = append(args, telegramID)
	for _, st := range statuses {
		args = append(args, st)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, token, telegram_id, first_name, username, phone, policy_accepted, status, created_at, updated_at
		FROM login_sessions
		WHERE telegram_id = ? AND status IN (`+placeholders+`)
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`, args...)
	return scanSession(row)
}

// AttachIdentity binds the Telegram identity to the session looked up by
// token. The identity id is written at most once (a later attach keeps the
// original), while the informational name fields are overwritten. Confirmed
// sessions are left untouched.
func (s *Store) AttachIdentity(ctx context.Context, token string, telegramID int64, firstName, username string) (*Session, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE login_sessions
		SET telegram_id = COALESCE(telegram_id, ?), first_name = ?, username = ?, updated_at = ?
		WHERE token = ? AND status != ?`,
		telegramID, firstName, username, time.Now().UTC(), token, StatusConfirmed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to attach identity: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, ErrNotFound
	}

	return s.GetByToken(ctx, token)
}

// SetPhone records the shared contact's phone number and advances the
// session to phone_received. The update only applies while the session is
// still pending or phone_received; a confirmed session is never moved back.
func (s *Store) SetPhone(ctx context.Context, id, phone string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE login_sessions
		SET phone = ?, status = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		phone, StatusPhoneReceived, time.Now().UTC(), id, StatusPending, StatusPhoneReceived,
	)
	if err != nil {
		return fmt.Errorf("failed to set phone: %w", err)
	}
	return requireRow(res)
}

// Confirm moves the session to its terminal state and records the policy
// acceptance in the same statement. The status guard makes concurrent
// duplicate confirms race-safe: exactly one caller sees success.
func (s *Store) Confirm(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE login_sessions
		SET status = ?, policy_accepted = 1, updated_at = ?
		WHERE id = ? AND status = ?`,
		StatusConfirmed, time.Now().UTC(), id, StatusPhoneReceived,
	)
	if err != nil {
		return fmt.Errorf("failed to confirm session: %w", err)
	}
	return requireRow(res)
}

// DeleteStaleBefore removes unconfirmed sessions that have not been touched
// since the cutoff. Retention policy lives here, not in the handlers: the
// protocol layer only ever observes "not found".
func (s *Store) DeleteStaleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM login_sessions
		WHERE status != ? AND updated_at < ?`,
		StatusConfirmed, cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale sessions: %w", err)
	}
	return res.RowsAffected()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSession(row *sql.Row) (*Session, error) {
	var sess Session
	var telegramID sql.NullInt64
	err := row.Scan(
		&sess.ID, &sess.Token, &telegramID, &sess.FirstName, &sess.Username,
		&sess.Phone, &sess.PolicyAccepted, &sess.Status, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	if telegramID.Valid {
		sess.TelegramID = &telegramID.Int64
	}
	return &sess, nil
}
