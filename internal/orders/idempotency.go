package orders

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyIdemOrderCreate = "idem:order:create:%s"
	ttlIdempotency     = 24 * time.Hour
)

// pendingMarker holds a claimed key until the response is stored. Stored
// responses are JSON documents, so they never collide with it.
var pendingMarker = []byte("pending")

// IdempotencyStore lets a client retry a create with the same key and get the
// original response back instead of placing a new order.
type IdempotencyStore interface {
	// Claim reserves key for the caller. When the key is already taken it
	// returns claimed false and the stored response, or a nil response while
	// the first request is still running.
	Claim(ctx context.Context, key string) (claimed bool, response []byte, err error)
	// Complete stores the response of a claimed key.
	Complete(ctx context.Context, key string, response []byte) error
	// Release frees a claimed key after a failed request so it can be retried.
	Release(ctx context.Context, key string) error
}

type RedisIdempotency struct {
	rdb *redis.Client
}

func NewRedisIdempotency(rdb *redis.Client) *RedisIdempotency {
	return &RedisIdempotency{rdb: rdb}
}

func (r *RedisIdempotency) Claim(ctx context.Context, key string) (bool, []byte, error) {
	k := fmt.Sprintf(keyIdemOrderCreate, key)

	ok, err := r.rdb.SetNX(ctx, k, pendingMarker, ttlIdempotency).Result()
	if err != nil {
		return false, nil, err
	}
	if ok {
		return true, nil, nil
	}

	data, err := r.rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		// released between SetNX and Get; report it as in flight
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	if bytes.Equal(data, pendingMarker) {
		return false, nil, nil
	}
	return false, data, nil
}

func (r *RedisIdempotency) Complete(ctx context.Context, key string, response []byte) error {
	return r.rdb.Set(ctx, fmt.Sprintf(keyIdemOrderCreate, key), response, ttlIdempotency).Err()
}

func (r *RedisIdempotency) Release(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, fmt.Sprintf(keyIdemOrderCreate, key)).Err()
}
