package login

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "picoauth"
	maxUpdateRetries = 8
)

// RedisStore keeps sessions in Redis. Session updates run as optimistic
// WATCH/MULTI transactions; pico reservations use SET NX.
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore builds a Redis-backed Store. An empty prefix uses the default.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) sessionKey(id string) string { return s.prefix + ":login:" + id }
func (s *RedisStore) picoKey(id string) string    { return s.prefix + ":pico:" + id }
func (s *RedisStore) authKey(id string) string    { return s.prefix + ":auth:" + id }

func (s *RedisStore) CreateLoginSession(ctx context.Context, session LoginSession, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	ok, err := s.redis.SetNX(ctx, s.sessionKey(session.ID), data, ttl).Result()
	if err != nil {
		return unavailable("create login session", err)
	}
	if !ok {
		return fmt.Errorf("%w: login session %s already exists", ErrConflict, session.ID)
	}
	return nil
}

func (s *RedisStore) GetLoginSession(ctx context.Context, id string) (LoginSession, error) {
	data, err := s.redis.Get(ctx, s.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return LoginSession{}, fmt.Errorf("%w: login session %s", ErrNotFound, id)
		}
		return LoginSession{}, unavailable("get login session", err)
	}
	var session LoginSession
	if err := json.Unmarshal(data, &session); err != nil {
		return LoginSession{}, unavailable("decode login session", err)
	}
	return session, nil
}

func (s *RedisStore) UpdateLoginSession(ctx context.Context, id string, fn func(*LoginSession) error) (LoginSession, error) {
	key := s.sessionKey(id)

	for i := 0; i < maxUpdateRetries; i++ {
		var updated LoginSession
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			var session LoginSession
			if err := json.Unmarshal(data, &session); err != nil {
				return fmt.Errorf("decode login session: %w", err)
			}
			if err := fn(&session); err != nil {
				return err
			}
			session.Version++
			encoded, err := json.Marshal(session)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, redis.KeepTTL)
				return nil
			})
			if err != nil {
				return err
			}
			updated = session
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return LoginSession{}, fmt.Errorf("%w: login session %s", ErrNotFound, id)
			}
			if KindOf(err) != KindUnknown {
				return LoginSession{}, err
			}
			return LoginSession{}, unavailable("update login session", err)
		}
		return updated, nil
	}

	return LoginSession{}, unavailable("update login session", fmt.Errorf("contention on %s", id))
}

func (s *RedisStore) DeleteLoginSession(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.sessionKey(id)).Err(); err != nil {
		return unavailable("delete login session", err)
	}
	return nil
}

func (s *RedisStore) ReservePico(ctx context.Context, picoID, sessionID string, ttl time.Duration) (bool, error) {
	ok, err := s.redis.SetNX(ctx, s.picoKey(picoID), sessionID, ttl).Result()
	if err != nil {
		return false, unavailable("reserve pico", err)
	}
	return ok, nil
}

func (s *RedisStore) ReleasePico(ctx context.Context, picoID, sessionID string) error {
	key := s.picoKey(picoID)
	for i := 0; i < maxUpdateRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			owner, err := tx.Get(ctx, key).Result()
			if err != nil {
				return err
			}
			if owner != sessionID {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			return unavailable("release pico", err)
		}
		return nil
	}
	return unavailable("release pico", fmt.Errorf("contention on %s", picoID))
}

func (s *RedisStore) LookupPico(ctx context.Context, picoID string) (string, error) {
	sessionID, err := s.redis.Get(ctx, s.picoKey(picoID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("%w: pico %s", ErrNotFound, picoID)
		}
		return "", unavailable("lookup pico", err)
	}
	return sessionID, nil
}

func (s *RedisStore) SaveAuthSession(ctx context.Context, session AuthSession, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.authKey(session.ID), data, ttl).Err(); err != nil {
		return unavailable("save auth session", err)
	}
	return nil
}

func (s *RedisStore) GetAuthSession(ctx context.Context, id string) (AuthSession, error) {
	data, err := s.redis.Get(ctx, s.authKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return AuthSession{}, fmt.Errorf("%w: auth session %s", ErrNotFound, id)
		}
		return AuthSession{}, unavailable("get auth session", err)
	}
	var session AuthSession
	if err := json.Unmarshal(data, &session); err != nil {
		return AuthSession{}, unavailable("decode auth session", err)
	}
	return session, nil
}
