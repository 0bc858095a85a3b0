package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	apierrors "github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/errors"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/metrics"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/models"
	"github.com/google/uuid"
)

// AuthService — контракт бизнес-логики, который потребляет HTTP-слой.
// Выделен интерфейсом, чтобы хендлеры тестировались без реальных хранилищ.
type AuthService interface {
	RegisterUser(ctx context.Context, email, password string, role models.Role) (uuid.UUID, string, error)
	LoginUser(ctx context.Context, email, password, deviceInfo string) (*models.TokenPair, uuid.UUID, error)
	RefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, uuid.UUID, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID uuid.UUID) error
	Sessions(ctx context.Context, userID uuid.UUID) ([]models.Session, error)
	CurrentUser(ctx context.Context, accessToken string) (*models.User, error)
	RequireRole(ctx context.Context, accessToken string, required models.Role) (*models.User, error)
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	StartExamSession(ctx context.Context, accessToken, examID string) (string, time.Time, error)
	VerifyEmail(ctx context.Context, token string) error
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error
}

// Handlers агрегирует зависимости HTTP-хендлеров.
type Handlers struct {
	Service AuthService
	Metrics *metrics.Collector
}

func New(s AuthService, m *metrics.Collector) *Handlers {
	return &Handlers{Service: s, Metrics: m}
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(value)
}

// writeInvalidArgument — локальная ошибка парсинга -> 400/invalid_argument.
func writeInvalidArgument(w http.ResponseWriter, r *http.Request) {
	apierrors.WriteError(w, r, apierrors.InvalidArgument)
}
