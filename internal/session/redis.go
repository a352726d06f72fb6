package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "circle:session:"

// RedisStore keeps sessions in Redis as JSON with a sliding TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(participantID int64) string {
	return redisKeyPrefix + strconv.FormatInt(participantID, 10)
}

func (r *RedisStore) Get(ctx context.Context, participantID int64) (*Session, error) {
	raw, err := r.client.Get(ctx, redisKey(participantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if s.Answers == nil {
		s.Answers = NewAnswers()
	}
	return &s, nil
}

func (r *RedisStore) Put(ctx context.Context, s *Session) error {
	s.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.client.Set(ctx, redisKey(s.ParticipantID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis put session: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, participantID int64) error {
	if err := r.client.Del(ctx, redisKey(participantID)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}
