package out

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pledge/internal/modules/focus/domain"
	focusout "pledge/internal/modules/focus/port/out"
	"pledge/internal/platform/clock"
	apperrors "pledge/internal/platform/errors"
)

// SQLiteSessionCache keeps one row for the last server-confirmed session and
// one row per completed session id.
type SQLiteSessionCache struct {
	db    *sql.DB
	clock clock.Clock
}

var _ focusout.SessionCache = (*SQLiteSessionCache)(nil)

func NewSQLiteSessionCache(ctx context.Context, db *sql.DB, clk clock.Clock) (*SQLiteSessionCache, error) {
	cache := &SQLiteSessionCache{db: db, clock: clk}
	if err := cache.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return cache, nil
}

func (s *SQLiteSessionCache) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS focus_session_cache (
  slot INTEGER PRIMARY KEY CHECK (slot = 1),
  session_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  saved_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS focus_completions (
  session_id TEXT PRIMARY KEY,
  completed_at TEXT NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create focus cache tables: %w", err)
	}
	return nil
}

func (s *SQLiteSessionCache) SaveSession(ctx context.Context, session domain.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal cached session: %w", err)
	}
	const stmt = `
INSERT INTO focus_session_cache (slot, session_id, payload, saved_at)
VALUES (1, ?, ?, ?)
ON CONFLICT(slot) DO UPDATE SET
  session_id=excluded.session_id,
  payload=excluded.payload,
  saved_at=excluded.saved_at;
`
	if _, err := s.db.ExecContext(ctx, stmt, session.ID, string(payload), s.clock.Now().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("save cached session: %w", err)
	}
	return nil
}

func (s *SQLiteSessionCache) LoadSession(ctx context.Context) (domain.Session, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM focus_session_cache WHERE slot = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, apperrors.ErrNoActiveSession
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("read cached session: %w", err)
	}
	session := domain.Session{}
	if err := json.Unmarshal([]byte(payload), &session); err != nil {
		return domain.Session{}, fmt.Errorf("decode cached session: %w", err)
	}
	return session, nil
}

func (s *SQLiteSessionCache) ClearSession(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM focus_session_cache`); err != nil {
		return fmt.Errorf("clear cached session: %w", err)
	}
	return nil
}

func (s *SQLiteSessionCache) MarkCompleted(ctx context.Context, sessionID string) error {
	const stmt = `INSERT INTO focus_completions (session_id, completed_at) VALUES (?, ?) ON CONFLICT(session_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, stmt, sessionID, s.clock.Now().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("mark session completed: %w", err)
	}
	return nil
}

func (s *SQLiteSessionCache) IsCompleted(ctx context.Context, sessionID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM focus_completions WHERE session_id = ?`, sessionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup session completion: %w", err)
	}
	return true, nil
}
