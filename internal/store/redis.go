package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mtlfinder/voyago/internal/domain"
	"github.com/mtlfinder/voyago/internal/logging"
	"github.com/mtlfinder/voyago/internal/session"
)

const (
	// Redis key prefix for sessions
	redisKeyPrefix = "chat:session:"
	// Default TTL for session keys (24 hours)
	redisDefaultTTL = 24 * time.Hour
)

// RedisSessionStore implements session.Store on Redis. Each session is one
// JSON blob under chat:session:<id> with a sliding TTL; idle conversations
// expire on their own.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
	log    *logging.Logger
}

var _ session.Store = (*RedisSessionStore)(nil)

// NewRedisSessionStore creates a Redis-backed session store.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration, log *logging.Logger) *RedisSessionStore {
	if ttl <= 0 {
		ttl = redisDefaultTTL
	}
	return &RedisSessionStore{
		client: client,
		ttl:    ttl,
		log:    log.Component("store.redis"),
	}
}

// Create starts a new empty session.
func (s *RedisSessionStore) Create(ctx context.Context) (*domain.Session, error) {
	sess := &domain.Session{
		ID:        uuid.New().String(),
		Messages:  []domain.Message{},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.write(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Append adds a message to an existing session. The read-modify-write runs
// under WATCH so concurrent appends to the same key retry instead of
// clobbering each other.
func (s *RedisSessionStore) Append(ctx context.Context, id string, msg domain.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	key := s.key(id)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return session.ErrNotFound
		}
		if err != nil {
			return err
		}

		var sess domain.Session
		if err := json.Unmarshal([]byte(val), &sess); err != nil {
			return fmt.Errorf("decoding session %s: %w", id, err)
		}

		sess.Messages = append(sess.Messages, msg)
		sess.UpdatedAt = time.Now()

		data, err := json.Marshal(&sess)
		if err != nil {
			return fmt.Errorf("encoding session %s: %w", id, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		// Concurrent writer won the race; retry once.
		return s.Append(ctx, id, msg)
	}
	return err
}

// Get returns the ordered message history for a session and refreshes its TTL.
func (s *RedisSessionStore) Get(ctx context.Context, id string) ([]domain.Message, error) {
	key := s.key(id)
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var sess domain.Session
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}

	if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("sessionId", id).Msg("TTL refresh failed")
	}

	return sess.Messages, nil
}

// Delete removes a session.
func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}

// List returns all live session ids. SCAN keeps this safe on shared
// instances; ordering is not defined.
func (s *RedisSessionStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[len(redisKeyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// Ping verifies connectivity. Called once at startup so a bad address fails
// fast instead of on the first chat turn.
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSessionStore) write(ctx context.Context, sess *domain.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", sess.ID, err)
	}
	return s.client.Set(ctx, s.key(sess.ID), data, s.ttl).Err()
}

func (s *RedisSessionStore) key(id string) string {
	return redisKeyPrefix + id
}
