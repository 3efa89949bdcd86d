package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowdeck/flowdeck/pkg/locks"
)

// NewLocker selects a connection locker from the lock URL. redis:// and
// rediss:// select the Redis locker so concurrent API replicas contend
// on the same keys; an empty URL selects the in-process locker.
func NewLocker(ctx context.Context, lockURL string, logger *slog.Logger) (locks.Locker, error) {
	switch parseScheme(lockURL) {
	case "redis", "rediss":
		locker, err := locks.NewRedisLocker(ctx, lockURL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis locker: %w", err)
		}

		return locker, nil
	default:
		return locks.NewMemoryLocker(), nil
	}
}
