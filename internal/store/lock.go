package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RunLock serializes reconciliation cycles across processes: the checkpoint
// mapping is owned by exactly one cycle for its duration. The TTL bounds how
// long a crashed holder can block the next run.
type RunLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
}

// NewRunLock creates a lock on the given key.
func NewRunLock(client *redis.Client, key string, ttl time.Duration) *RunLock {
	if key == "" {
		key = "moodlesync:run-lock"
	}
	return &RunLock{client: client, key: key, ttl: ttl, token: uuid.NewString()}
}

// Acquire attempts to take the lock. Returns false when another cycle holds
// it.
func (l *RunLock) Acquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
}

// Release drops the lock if this instance still holds it.
func (l *RunLock) Release(ctx context.Context) error {
	val, err := l.client.Get(ctx, l.key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val != l.token {
		return nil
	}
	return l.client.Del(ctx, l.key).Err()
}
