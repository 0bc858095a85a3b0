package postgres

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/models"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Файл интеграционных тестов для пакета postgres (репозиторий user.go):
// - поднимает реальный PostgreSQL через testcontainers-go (образ postgres:16-alpine);
// - применяет встроенные миграции через RunMigrations;
// - проверяет happy-path (создание, поиск по email/ID, активация, смена пароля),
//   уникальность (email CITEXT и первичный ключ id) и сценарии отсутствия
//   записей (storage.ErrNotFound).
//
// Запуск локально:
//   GO_TEST_INTEGRATION=1 go test ./internal/storage/postgres -v -race -count=1

// startPostgres — поднимает временный экземпляр PostgreSQL через testcontainers-go,
// применяет миграции и возвращает инициализированное хранилище и функцию очистки.
// Если переменная окружения GO_TEST_INTEGRATION не установлена — тест пропускается.
func startPostgres(t *testing.T) (*Storage, func()) {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_USER": "user", "POSTGRES_PASSWORD": "pass", "POSTGRES_DB": "db"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)

	host, _ := c.Host(ctx)
	port, _ := c.MappedPort(ctx, "5432/tcp")
	dsn := fmt.Sprintf("postgres://user:pass@%s:%s/db?sslmode=disable", host, port.Port())

	require.NoError(t, RunMigrations(dsn))

	st, err := New(ctx, dsn)
	require.NoError(t, err)

	cleanup := func() {
		st.Close()
		_ = c.Terminate(context.Background())
	}
	return st, cleanup
}

func newUser(email string) *models.User {
	now := time.Now().UTC()
	return &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "hash",
		Role:         models.RoleStudent,
		IsActive:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// TestIntegration_SaveUser_And_GetByEmail_And_ByID_OK — happy-path:
// сохранение и поиск по email и ID; регистронезависимость CITEXT;
// роль и флаг активности доезжают в обе стороны.
func TestIntegration_SaveUser_And_GetByEmail_And_ByID_OK(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	u := newUser("User@Example.Com")
	u.Role = models.RoleTeacher

	require.NoError(t, st.SaveUser(context.Background(), u))

	gotByEmail, err := st.UserByEmail(context.Background(), strings.ToLower(u.Email))
	require.NoError(t, err)
	require.Equal(t, strings.ToLower(u.Email), strings.ToLower(gotByEmail.Email))
	require.Equal(t, models.RoleTeacher, gotByEmail.Role)
	require.False(t, gotByEmail.IsActive)
	require.WithinDuration(t, u.CreatedAt, gotByEmail.CreatedAt, time.Second)

	gotByID, err := st.UserByID(context.Background(), u.ID)
	require.NoError(t, err)
	require.Equal(t, u.ID, gotByID.ID)
}

// TestIntegration_SaveUser_UniqueEmail_CaseInsensitive_Violation — конфликт уникальности
// по email при различии только в регистре, ожидаем storage.ErrAlreadyExists.
func TestIntegration_SaveUser_UniqueEmail_CaseInsensitive_Violation(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	require.NoError(t, st.SaveUser(context.Background(), newUser("user@example.com")))

	err := st.SaveUser(context.Background(), newUser("USER@EXAMPLE.COM"))
	require.Error(t, err)
	require.ErrorIs(t, err, storage.ErrAlreadyExists)
}

// TestIntegration_SaveUser_UniqueID_Violation — конфликт по первичному ключу id.
func TestIntegration_SaveUser_UniqueID_Violation(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	a := newUser("a@example.com")
	require.NoError(t, st.SaveUser(context.Background(), a))

	b := newUser("b@example.com")
	b.ID = a.ID
	err := st.SaveUser(context.Background(), b)
	require.Error(t, err)
	require.ErrorIs(t, err, storage.ErrAlreadyExists)
}

// TestIntegration_ActivateUser — активация переключает is_active; повторная
// активация не является ошибкой; неизвестный ID — storage.ErrNotFound.
func TestIntegration_ActivateUser(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	u := newUser("activate@example.com")
	require.NoError(t, st.SaveUser(context.Background(), u))

	require.NoError(t, st.ActivateUser(context.Background(), u.ID))

	got, err := st.UserByID(context.Background(), u.ID)
	require.NoError(t, err)
	require.True(t, got.IsActive)

	require.NoError(t, st.ActivateUser(context.Background(), u.ID))

	err = st.ActivateUser(context.Background(), uuid.New())
	require.Error(t, err)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

// TestIntegration_UpdatePassword — замена хэша; неизвестный ID — storage.ErrNotFound.
func TestIntegration_UpdatePassword(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	u := newUser("pw@example.com")
	require.NoError(t, st.SaveUser(context.Background(), u))

	require.NoError(t, st.UpdatePassword(context.Background(), u.ID, "new-hash"))

	got, err := st.UserByID(context.Background(), u.ID)
	require.NoError(t, err)
	require.Equal(t, "new-hash", got.PasswordHash)

	err = st.UpdatePassword(context.Background(), uuid.New(), "x")
	require.Error(t, err)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

// TestIntegration_UserByEmail_NotFound — поиск отсутствующей записи.
func TestIntegration_UserByEmail_NotFound(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	_, err := st.UserByEmail(context.Background(), "absent@example.com")
	require.Error(t, err)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

// TestIntegration_UserByID_NotFound — поиск отсутствующей записи по ID.
func TestIntegration_UserByID_NotFound(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	_, err := st.UserByID(context.Background(), uuid.New())
	require.Error(t, err)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

// TestIntegration_UserQueries_ContextCanceled — отменённый контекст «просачивается»
// в ошибки чтения как context.Canceled.
func TestIntegration_UserQueries_ContextCanceled(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := st.UserByEmail(ctx, "user@example.com")
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)

	_, err = st.UserByID(ctx, uuid.New())
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
}
