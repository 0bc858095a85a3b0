// cache содержит подключение к Redis — общему key-value store сервиса.
// В нём живут сессии, fixed-window счётчики лимитов, denylist отозванных
// refresh-токенов и одноразовые verification/reset-токены.
package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// New создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
func New(ctx context.Context, redisURL string) (*redis.Client, error) {
	const op = "cache.New"

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return rdb, nil
}
