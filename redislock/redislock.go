// Package redislock implements saga locks on a shared Redis.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cohouse-dinner/game-registration/saga"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Client is the minimal client surface used by Locker.
type Client interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// Only the holder's token may delete the key.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ saga.Locker = &Locker{}

type Locker struct {
	client    Client
	keyPrefix string
	ttl       time.Duration
}

func NewLocker(client Client, ttl time.Duration) *Locker {
	return &Locker{
		client:    client,
		keyPrefix: "saga-lock:",
		ttl:       ttl,
	}
}

func (l *Locker) Lock(ctx context.Context, correlationID string) (saga.Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := l.keyPrefix + correlationID
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, saga.NewTransientError(correlationID, "Failed to acquire saga lock", err)
	}
	if !ok {
		return nil, saga.NewAlreadyInProgressError(correlationID)
	}

	return &lock{client: l.client, key: key, token: token}, nil
}

type lock struct {
	client Client
	key    string
	token  string
}

func (l *lock) Release(ctx context.Context) error {
	err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release lock %q: %w", l.key, err)
	}
	return nil
}
