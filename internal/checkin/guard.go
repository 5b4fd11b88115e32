package checkin

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard closes the read-then-write race on the debounce pre-check: two
// concurrent attempts for the same (student, program) can both pass the
// history query before either records.
type Guard interface {
	Acquire(ctx context.Context, studentID string, programID int64) (bool, error)
	Release(ctx context.Context, studentID string, programID int64) error
}

// RedisGuard takes a short-lived SET NX lock keyed by (student, program)
// with TTL equal to the debounce window.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) Acquire(ctx context.Context, studentID string, programID int64) (bool, error) {
	return g.client.SetNX(ctx, guardKey(studentID, programID), "1", g.ttl).Result()
}

func (g *RedisGuard) Release(ctx context.Context, studentID string, programID int64) error {
	return g.client.Del(ctx, guardKey(studentID, programID)).Err()
}

func guardKey(studentID string, programID int64) string {
	return fmt.Sprintf("checkin_guard:%s:%d", studentID, programID)
}
