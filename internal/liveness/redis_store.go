package liveness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const sessionKeyPrefix = "liveness:session:"

// RedisStore is a Store for multi-process deployments. Redis key TTLs double
// as the retention window, so archived sessions age out without a sweeper.
type RedisStore struct {
	redis     *redis.Client
	retention time.Duration
	tracer    trace.Tracer
}

// NewRedisStore creates a Redis-backed session store. Sessions remain
// readable for retention past their expiry, then Redis drops them.
func NewRedisStore(client *redis.Client, retention time.Duration, tracer trace.Tracer) *RedisStore {
	if client == nil {
		panic("liveness: redis client cannot be nil")
	}
	if retention <= 0 {
		retention = time.Hour
	}
	if tracer == nil {
		tracer = otel.Tracer("proofframe.internal.liveness.store")
	}
	return &RedisStore{
		redis:     client,
		retention: retention,
		tracer:    tracer,
	}
}

// Create stores a new session under a conditional write so two issuers can
// never silently overwrite each other's challenge.
func (s *RedisStore) Create(ctx context.Context, session *Session) error {
	ctx, span := s.tracer.Start(ctx, "liveness.create_session")
	defer span.End()

	data, err := json.Marshal(session)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("liveness: failed to marshal session: %w", err)
	}
	ok, err := s.redis.SetNX(ctx, sessionKey(session.ID), data, s.keyTTL(session)).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("liveness: failed to persist session: %w", err)
	}
	if !ok {
		return fmt.Errorf("liveness: session %s already exists", session.ID)
	}
	return nil
}

// Get retrieves a session by id.
func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "liveness.load_session")
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrSessionNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("liveness: failed to load session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("liveness: failed to decode session: %w", err)
	}
	return &session, nil
}

// Update writes a session back under WATCH. The transaction aborts when the
// stored version no longer matches the one the caller read, so managers in
// separate processes cannot both record a terminal state for one session.
func (s *RedisStore) Update(ctx context.Context, session *Session) error {
	ctx, span := s.tracer.Start(ctx, "liveness.update_session")
	defer span.End()

	key := sessionKey(session.ID)
	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		var stored Session
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("liveness: failed to decode session: %w", err)
		}
		if stored.Version != session.Version {
			return ErrStaleSession
		}

		next := *session
		next.Version++
		data, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("liveness: failed to marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.keyTTL(session))
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		session.Version++
		return nil
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrStaleSession):
		return err
	case errors.Is(err, redis.TxFailedErr):
		// Another writer touched the key between our read and EXEC.
		return ErrStaleSession
	default:
		span.RecordError(err)
		return fmt.Errorf("liveness: failed to update session: %w", err)
	}
}

// ActiveIDs scans for live session keys. With Redis handling retention this
// only feeds the optional background sweep.
func (s *RedisStore) ActiveIDs(ctx context.Context) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "liveness.scan_sessions")
	defer span.End()

	var ids []string
	iter := s.redis.Scan(ctx, 0, sessionKeyPrefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[len(sessionKeyPrefix):])
	}
	if err := iter.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("liveness: failed to scan sessions: %w", err)
	}
	return ids, nil
}

// Delete removes a session immediately instead of waiting out the key TTL.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "liveness.delete_session")
	defer span.End()

	if err := s.redis.Del(ctx, sessionKey(id)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("liveness: failed to delete session: %w", err)
	}
	return nil
}

func (s *RedisStore) keyTTL(session *Session) time.Duration {
	ttl := time.Until(session.ExpiresAt) + s.retention
	if ttl <= 0 {
		ttl = s.retention
	}
	return ttl
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}
