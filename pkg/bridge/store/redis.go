package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agenix-ai/voicebridge/pkg/bridge/session"
)

const redisKeyPrefix = "session:"

// Redis stores each session as a JSON value under "session:<callSid>".
// An optional TTL bounds how long an abandoned session (admitted but never
// streamed) lingers before expiring.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func NewRedis(opts RedisOptions) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		ttl: opts.TTL,
	}
}

func (r *Redis) Load(ctx context.Context, callSID string) (*session.Session, error) {
	data, err := r.client.Get(ctx, redisKeyPrefix+callSID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var s session.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session %q: %w", callSID, err)
	}
	return &s, nil
}

func (r *Redis) Save(ctx context.Context, callSID string, s *session.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %q: %w", callSID, err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+callSID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, callSID string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+callSID).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping verifies connectivity at startup.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
