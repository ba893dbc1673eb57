package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	qerrors "github.com/drblury/quoteflow/internal/runtime/errors"
	"github.com/drblury/quoteflow/internal/runtime/jsoncodec"
)

const redisKeyPrefix = "quoteflow:outcome:"

// Redis stores each outcome as a JSON string under quoteflow:outcome:<key>.
// SET replaces any previous value, which makes Upsert idempotent.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// OpenRedis connects from a redis:// URL or a bare host:port.
func OpenRedis(ctx context.Context, redisURL string) (*Redis, error) {
	var opt *redis.Options
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opt = parsed
	} else {
		opt = &redis.Options{Addr: redisURL}
	}

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client, 0), nil
}

// NewRedis wraps an existing client. A zero ttl keeps outcomes forever.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func redisKey(key string) string {
	return redisKeyPrefix + key
}

func (r *Redis) Upsert(ctx context.Context, o Outcome) error {
	if err := validate(o); err != nil {
		return err
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = time.Now().UTC()
	}
	raw, err := jsoncodec.Marshal(o)
	if err != nil {
		return persistenceError(o.Key, err)
	}
	return persistenceError(o.Key, r.client.Set(ctx, redisKey(o.Key), raw, r.ttl).Err())
}

func (r *Redis) Get(ctx context.Context, key string) (Outcome, error) {
	raw, err := r.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Outcome{}, qerrors.ErrOutcomeNotFound
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("load outcome %s: %w", key, err)
	}
	var o Outcome
	if err := jsoncodec.Unmarshal(raw, &o); err != nil {
		return Outcome{}, fmt.Errorf("decode outcome %s: %w", key, err)
	}
	return o, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
