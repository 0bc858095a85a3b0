package sessions

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Интеграционные тесты хранилища сессий:
// - поднимают реальный Redis через testcontainers-go (образ redis:7-alpine);
// - проверяют полный цикл сессии (создание, чтение, список, инвалидация),
//   идемпотентность Invalidate и исчезновение записей по TTL.
//
// Запуск локально:
//   GO_TEST_INTEGRATION=1 go test ./internal/sessions -v -race -count=1

// startRedis — поднимает временный Redis и возвращает клиент с функцией очистки.
// Если переменная окружения GO_TEST_INTEGRATION не установлена — тест пропускается.
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

func newSession(userID uuid.UUID, device string) *models.Session {
	return &models.Session{
		Token:      uuid.New().String(),
		UserID:     userID,
		DeviceInfo: device,
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
		IsActive:   true,
	}
}

func TestIntegration_Sessions_CreateGetList(t *testing.T) {
	rdb, cleanup := startRedis(t)
	defer cleanup()

	store := NewRedisStore(rdb, time.Second)
	ctx := context.Background()
	userID := uuid.New()

	s1 := newSession(userID, "laptop")
	s2 := newSession(userID, "phone")

	require.NoError(t, store.Create(ctx, s1, time.Hour))
	require.NoError(t, store.Create(ctx, s2, time.Hour))

	got, ok, err := store.Get(ctx, s1.Token)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, s1.UserID, got.UserID)
	require.Equal(t, "laptop", got.DeviceInfo)
	require.Equal(t, s1.CreatedAt.Unix(), got.CreatedAt.Unix())

	active, err := store.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, active, 2)

	// Чужой пользователь сессий не видит.
	other, err := store.List(ctx, uuid.New())
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestIntegration_Sessions_Invalidate_Idempotent(t *testing.T) {
	rdb, cleanup := startRedis(t)
	defer cleanup()

	store := NewRedisStore(rdb, time.Second)
	ctx := context.Background()
	userID := uuid.New()

	s := newSession(userID, "")
	require.NoError(t, store.Create(ctx, s, time.Hour))

	require.NoError(t, store.Invalidate(ctx, s.Token))

	_, ok, err := store.Get(ctx, s.Token)
	require.NoError(t, err)
	require.False(t, ok)

	active, err := store.List(ctx, userID)
	require.NoError(t, err)
	require.Empty(t, active)

	// Повторная и «слепая» инвалидация — no-op без ошибки.
	require.NoError(t, store.Invalidate(ctx, s.Token))
	require.NoError(t, store.Invalidate(ctx, "never-existed"))
}

func TestIntegration_Sessions_InvalidateAll(t *testing.T) {
	rdb, cleanup := startRedis(t)
	defer cleanup()

	store := NewRedisStore(rdb, time.Second)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Create(ctx, newSession(userID, ""), time.Hour))
	}

	// Сессии другого пользователя не затрагиваются.
	foreign := newSession(uuid.New(), "")
	require.NoError(t, store.Create(ctx, foreign, time.Hour))

	require.NoError(t, store.InvalidateAll(ctx, userID))

	active, err := store.List(ctx, userID)
	require.NoError(t, err)
	require.Empty(t, active)

	_, ok, err := store.Get(ctx, foreign.Token)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestIntegration_Sessions_TTLExpiry(t *testing.T) {
	rdb, cleanup := startRedis(t)
	defer cleanup()

	store := NewRedisStore(rdb, time.Second)
	ctx := context.Background()
	userID := uuid.New()

	s := newSession(userID, "")
	require.NoError(t, store.Create(ctx, s, time.Second))

	time.Sleep(1500 * time.Millisecond)

	_, ok, err := store.Get(ctx, s.Token)
	require.NoError(t, err)
	require.False(t, ok)

	// List пропускает записи, чей хэш уже истёк.
	active, err := store.List(ctx, userID)
	require.NoError(t, err)
	require.Empty(t, active)
}
