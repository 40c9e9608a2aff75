package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/adserving/internal/domain"
)

// RedisStore keeps the state under one key per profile.
type RedisStore struct {
	client redis.Cmdable
	key    string
}

// NewRedisStore creates a store for profileID.
func NewRedisStore(client redis.Cmdable, profileID string) *RedisStore {
	return &RedisStore{client: client, key: fmt.Sprintf("adserving:state:%s", profileID)}
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context) (domain.ServingState, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ServingState{}, nil
	}
	if err != nil {
		return domain.ServingState{}, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	return decode(data)
}

// Save implements Store. The key never expires.
func (r *RedisStore) Save(ctx context.Context, s domain.ServingState) error {
	data, err := encode(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}
