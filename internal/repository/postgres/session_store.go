package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/newsletter-ai/internal/service/workflow"
)

// SessionStore implements workflow.SessionStore on the newsletter_sessions
// table. Rows past expires_at are invisible to Load and removed by Expire.
type SessionStore struct{ db *sql.DB }

// NewSessionStore creates a Postgres-backed session store.
func NewSessionStore(db *sql.DB) *SessionStore { return &SessionStore{db: db} }

func (s *SessionStore) Load(ctx context.Context, id string) (workflow.Session, bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM newsletter_sessions WHERE id = $1 AND expires_at > NOW()`, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Session{}, false, nil
	}
	if err != nil {
		return workflow.Session{}, false, fmt.Errorf("load session %s: %w", id, err)
	}
	var sess workflow.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return workflow.Session{}, false, fmt.Errorf("decode session %s: %w", id, err)
	}
	return sess, true, nil
}

func (s *SessionStore) Store(ctx context.Context, sess workflow.Session, ttl time.Duration) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO newsletter_sessions (id, snapshot, updated_at, expires_at)
		VALUES ($1, $2, NOW(), NOW() + $3 * INTERVAL '1 second')
		ON CONFLICT (id) DO UPDATE SET
			snapshot = $2, updated_at = NOW(), expires_at = NOW() + $3 * INTERVAL '1 second'
	`, sess.ID, raw, ttl.Seconds())
	if err != nil {
		return fmt.Errorf("store session %s: %w", sess.ID, err)
	}
	return nil
}

// Expire deletes snapshots past their TTL and returns how many it removed.
func (s *SessionStore) Expire(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM newsletter_sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("expire sessions: %w", err)
	}
	return res.RowsAffected()
}
