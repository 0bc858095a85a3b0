// ratelimit реализует fixed-window ограничение частоты запросов поверх Redis.
//
// Счётчик инкрементируется атомарно Lua-скриптом: INCR и установка TTL окна
// происходят в одной серверной транзакции, поэтому конкурентные запросы не
// могут одновременно проскочить проверку на границе лимита. При недоступности
// store лимитер fail-open: доступность API важнее строгого учёта.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/pkg/log"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "rate_limit:"

// allowScript атомарно инкрементирует счётчик окна.
// Возвращает новое значение счётчика; TTL ставится только первой операции окна.
var allowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
    redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// Limiter — fixed-window лимитер с ключами rate_limit:{action}:{identifier}.
type Limiter struct {
	rdb        *redis.Client
	cmdTimeout time.Duration
}

// New создаёт лимитер поверх готового клиента Redis.
func New(rdb *redis.Client, cmdTimeout time.Duration) *Limiter {
	return &Limiter{rdb: rdb, cmdTimeout: cmdTimeout}
}

// Key собирает ключ по соглашению rate_limit:{action}:{identifier}.
func Key(action, identifier string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, action, identifier)
}

func (l *Limiter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.cmdTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, l.cmdTimeout)
}

// Allow сообщает, укладывается ли запрос по ключу key в limit запросов
// за окно window. Первый запрос окна создаёт счётчик с TTL=window.
// Ошибка store трактуется как разрешение (fail-open).
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	const op = "ratelimit.Allow"

	if limit <= 0 {
		return false
	}

	cctx, cancel := l.withTimeout(ctx)
	defer cancel()

	current, err := allowScript.Run(cctx, l.rdb, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		log.From(ctx).Warn("rate_limit_store_failed",
			slog.String("op", op),
			slog.String("key", key),
			slog.String("err", err.Error()),
		)
		return true
	}

	return current <= int64(limit)
}

// Remaining возвращает остаток квоты по ключу: limit-current, не ниже нуля.
// Отсутствующий счётчик означает нетронутое окно (полный limit).
func (l *Limiter) Remaining(ctx context.Context, key string, limit int) int {
	const op = "ratelimit.Remaining"

	cctx, cancel := l.withTimeout(ctx)
	defer cancel()

	current, err := l.rdb.Get(cctx, key).Int64()
	if err != nil {
		if err != redis.Nil {
			log.From(ctx).Warn("rate_limit_store_failed",
				slog.String("op", op),
				slog.String("key", key),
				slog.String("err", err.Error()),
			)
		}
		return limit
	}

	remaining := int64(limit) - current
	if remaining < 0 {
		remaining = 0
	}

	return int(remaining)
}

// Reset досрочно удаляет счётчик окна.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	cctx, cancel := l.withTimeout(ctx)
	defer cancel()

	return l.rdb.Del(cctx, key).Err()
}
