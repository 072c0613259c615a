// Package redisstore keeps workflow session snapshots in Redis so that every
// server process behind one Redis sees the same sessions.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/newsletter-ai/internal/service/workflow"
)

const keyPrefix = "newsletter:session-state:"

// SessionStore implements workflow.SessionStore as one JSON value per
// session. Each write resets the key's TTL.
type SessionStore struct {
	redis *redis.Client
}

// NewSessionStore creates a session store on rdb.
func NewSessionStore(rdb *redis.Client) *SessionStore {
	return &SessionStore{redis: rdb}
}

func (s *SessionStore) Load(ctx context.Context, id string) (workflow.Session, bool, error) {
	raw, err := s.redis.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return workflow.Session{}, false, nil
	}
	if err != nil {
		return workflow.Session{}, false, fmt.Errorf("get session %s: %w", id, err)
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
	if err := s.redis.Set(ctx, keyPrefix+sess.ID, raw, ttl).Err(); err != nil {
		return fmt.Errorf("set session %s: %w", sess.ID, err)
	}
	return nil
}
