package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chronotech-quiz-service/internal/app"
	"chronotech-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SessionStore keeps play sessions in Redis so any instance can serve the
// next answer. Versioned writes run under WATCH on the session key. Each save
// refreshes the TTL; abandoned sessions expire.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client: client,
		ttl:    ttl,
	}
}

func (s *SessionStore) Get(ctx context.Context, principalID string) (*app.PlaySession, bool, error) {
	raw, err := s.client.Get(ctx, s.key(principalID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get session: %w", err)
	}
	var session app.PlaySession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, false, fmt.Errorf("decode session: %w", err)
	}
	return &session, true, nil
}

func (s *SessionStore) Put(ctx context.Context, session *app.PlaySession) error {
	next := *session
	next.Version = 1
	raw, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(session.PrincipalID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis put session: %w", err)
	}
	session.Version = next.Version
	return nil
}

func (s *SessionStore) Save(ctx context.Context, session *app.PlaySession) error {
	key := s.key(session.PrincipalID)
	next := *session
	next.Version = session.Version + 1
	raw, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := storedVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if current != session.Version {
			return domain.ErrSessionChanged
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, s.ttl)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return versionedErr("save", err)
	}
	session.Version = next.Version
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, principalID string, version int64) error {
	key := s.key(principalID)
	if version == 0 {
		return s.client.Del(ctx, key).Err()
	}
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := storedVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if current != version {
			return domain.ErrSessionChanged
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
	return versionedErr("delete", err)
}

func (s *SessionStore) key(principalID string) string {
	return "quiz:session:" + principalID
}

// storedVersion reads only the version of the watched session, 0 when absent.
func storedVersion(ctx context.Context, tx *redis.Tx, key string) (int64, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get session: %w", err)
	}
	var head struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return 0, fmt.Errorf("decode session: %w", err)
	}
	return head.Version, nil
}

func versionedErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr), errors.Is(err, domain.ErrSessionChanged):
		return domain.ErrSessionChanged
	default:
		return fmt.Errorf("redis %s session: %w", op, err)
	}
}
