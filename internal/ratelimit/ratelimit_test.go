package ratelimit

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Интеграционные тесты лимитера:
// - поднимают реальный Redis через testcontainers-go (образ redis:7-alpine);
// - проверяют границу окна, атомарность под конкурентной нагрузкой,
//   Remaining/Reset и fail-open при недоступном store.
//
// Запуск локально:
//   GO_TEST_INTEGRATION=1 go test ./internal/ratelimit -v -race -count=1

func startRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)

	host, _ := c.Host(ctx)
	port, _ := c.MappedPort(ctx, "6379/tcp")

	rdb := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	require.NoError(t, rdb.Ping(ctx).Err())

	cleanup := func() {
		_ = rdb.Close()
		_ = c.Terminate(context.Background())
	}
	return rdb, cleanup
}

func TestKey(t *testing.T) {
	t.Parallel()

	require.Equal(t, "rate_limit:login:203.0.113.7", Key("login", "203.0.113.7"))
}

func TestIntegration_Allow_WindowBoundary(t *testing.T) {
	rdb, cleanup := startRedis(t)
	defer cleanup()

	l := New(rdb, time.Second)
	ctx := context.Background()
	key := Key("login", "boundary")

	// Ровно limit запросов проходят, limit+1-й — нет.
	for i := 0; i < 5; i++ {
		require.True(t, l.Allow(ctx, key, 5, time.Minute), "request %d", i+1)
	}
	require.False(t, l.Allow(ctx, key, 5, time.Minute))
}

func TestIntegration_Allow_WindowExpires(t *testing.T) {
	rdb, cleanup := startRedis(t)
	defer cleanup()

	l := New(rdb, time.Second)
	ctx := context.Background()
	key := Key("login", "expiry")

	require.True(t, l.Allow(ctx, key, 1, time.Second))
	require.False(t, l.Allow(ctx, key, 1, time.Second))

	time.Sleep(1200 * time.Millisecond)

	// Новое окно — счётчик начинается заново.
	require.True(t, l.Allow(ctx, key, 1, time.Second))
}

func TestIntegration_Allow_ConcurrentExactLimit(t *testing.T) {
	rdb, cleanup := startRedis(t)
	defer cleanup()

	l := New(rdb, time.Second)
	ctx := context.Background()
	key := Key("api", "concurrent")

	const limit = 50
	const workers = 100

	var allowed int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if l.Allow(ctx, key, limit, time.Minute) {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	// Атомарный инкремент не пропускает лишних на границе лимита.
	require.EqualValues(t, limit, allowed)
}

func TestIntegration_RemainingAndReset(t *testing.T) {
	rdb, cleanup := startRedis(t)
	defer cleanup()

	l := New(rdb, time.Second)
	ctx := context.Background()
	key := Key("login", "remaining")

	// Нетронутое окно — полная квота.
	require.Equal(t, 10, l.Remaining(ctx, key, 10))

	for i := 0; i < 3; i++ {
		require.True(t, l.Allow(ctx, key, 10, time.Minute))
	}
	require.Equal(t, 7, l.Remaining(ctx, key, 10))

	require.NoError(t, l.Reset(ctx, key))
	require.Equal(t, 10, l.Remaining(ctx, key, 10))
}

func TestIntegration_Allow_FailOpen(t *testing.T) {
	rdb, cleanup := startRedis(t)
	cleanup() // сразу гасим store: каждый вызов будет ошибкой.

	l := New(rdb, 100*time.Millisecond)

	// Недоступный store пропускает запрос.
	require.True(t, l.Allow(context.Background(), Key("login", "down"), 1, time.Minute))
}

func TestAllow_NonPositiveLimit(t *testing.T) {
	t.Parallel()

	l := New(nil, 0)
	require.False(t, l.Allow(context.Background(), Key("x", "y"), 0, time.Minute))
	require.False(t, l.Allow(context.Background(), Key("x", "y"), -1, time.Minute))
}
