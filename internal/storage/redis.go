package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"buddy/internal/conversation"
)

const DefaultRedisKey = "buddy:history"

// RedisStore keeps the whole snapshot as one JSON value.
type RedisStore struct {
	redis  *redis.Client
	key    string
	sealer Sealer
}

var _ conversation.Persister = (*RedisStore)(nil)

func NewRedisStore(rdb *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{redis: rdb, key: key}
}

// WithSealer encrypts the stored value.
func (r *RedisStore) WithSealer(s Sealer) *RedisStore {
	r.sealer = s
	return r
}

func (r *RedisStore) Load(ctx context.Context) (conversation.Snapshot, error) {
	b, err := r.redis.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return conversation.Snapshot{}, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	if b, err = unseal(r.sealer, b); err != nil {
		return nil, err
	}
	return decodeSnapshot(b)
}

func (r *RedisStore) Save(ctx context.Context, snap conversation.Snapshot) error {
	b, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	if b, err = seal(r.sealer, b); err != nil {
		return err
	}
	if err := r.redis.Set(ctx, r.key, b, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
