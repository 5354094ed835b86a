package redisx

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// 使うコマンドだけ
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// 注文作成の冪等キー→注文ID。DBが正で、ここは近道。
type IdempotencyStore struct {
	rdb kv
	ttl time.Duration
}

func NewIdempotencyStore(rdb *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: TTLIdempotency}
}

func (s *IdempotencyStore) Get(ctx context.Context, userID int64, key string) (int64, bool, error) {
	id, err := s.rdb.Get(ctx, IdemOrderCreateKey(userID, key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (s *IdempotencyStore) Set(ctx context.Context, userID int64, key string, orderID int64) error {
	return s.rdb.Set(ctx, IdemOrderCreateKey(userID, key), orderID, s.ttl).Err()
}
