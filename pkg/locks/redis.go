package locks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "flowdeck:lock:"

// releaseScript deletes the key only when the caller still holds it, so a
// slow holder cannot release a lock that already expired and was re-taken.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker serializes toggles across multiple service instances using
// SET NX with a TTL.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisLocker connects to redis and verifies the connection.
func NewRedisLocker(ctx context.Context, redisURL string, logger *slog.Logger) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisLocker{
		client: client,
		ttl:    DefaultTTL,
		logger: logger.With("module", "redis_locker"),
	}, nil
}

// Acquire takes the key or fails immediately with ErrLockHeld.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.New().String()
	redisKey := lockKeyPrefix + key

	acquired, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	if !acquired {
		return nil, ErrLockHeld
	}

	return func() {
		// Release runs even when the caller's context is already done.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := l.client.Eval(releaseCtx, releaseScript, []string{redisKey}, token).Err(); err != nil {
			l.logger.Error("Failed to release lock", "key", key, "error", err)
		}
	}, nil
}

// Close releases the redis client.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
