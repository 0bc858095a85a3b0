// service содержит бизнес-логику auth-подсистемы платформы:
// регистрацию/аутентификацию пользователей, выпуск/проверку/ротацию токенов,
// учёт сессий и проверку иерархии ролей.
//
// Основные аспекты:
//   - Пакет не хранит состояние запроса внутри Service; экземпляр Service
//     безопасен для конкурентного использования из разных горутин при условии,
//     что переданные хранилища потокобезопасны.
//   - Ошибки возвращаются и далее маппятся HTTP-слоем на коды ответов
//     (см. комментарии к переменным ошибок ниже).
package service

import (
	"errors"

	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/cache"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/config"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/sessions"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/storage"
)

var (
	// ErrInvalidCredentials — пара логин/пароль неверна или пользователь не найден.
	// Причины намеренно не различаются, чтобы исключить перебор e-mail.
	// HTTP: 401.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken — токен некорректен по формату/подписи или имеет
	// неожиданный тип (например, access вместо refresh). HTTP: 401.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired — срок действия токена истёк. HTTP: 401.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenRevoked — refresh-токен отозван (logout/ротация) и
	// недействителен независимо от срока. HTTP: 401.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrInactiveUser — учётная запись деактивирована или e-mail не
	// подтверждён. HTTP: 401.
	ErrInactiveUser = errors.New("user is inactive")

	// ErrPermissionDenied — токен валиден, но уровень роли недостаточен.
	// HTTP: 403 (в отличие от 401 по ошибкам токена).
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUserNotFound — пользователь отсутствует. HTTP: 404.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailTaken — e-mail уже занят другим пользователем. HTTP: 409.
	ErrEmailTaken = errors.New("email already taken")

	// ErrInvalidEmail — e-mail имеет некорректный формат. HTTP: 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrInvalidRole — неизвестная роль. HTTP: 400.
	ErrInvalidRole = errors.New("unknown role")

	// ErrEmptyExamID — не указан экзамен для exam-session-токена. HTTP: 400.
	ErrEmptyExamID = errors.New("empty exam id")

	// ErrWeakPassword — пароль не удовлетворяет политикам сложности. HTTP: 400.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrEmptyPassword — пароль пустой. HTTP: 400.
	ErrEmptyPassword = errors.New("password is empty")
)

// Service описывает бизнес-логику auth-подсистемы.
type Service struct {
	storage  storage.Storage
	cfg      config.AuthConfig
	sessions sessions.Store
	tokens   cache.TokenCache
}

// New создаёт новый экземпляр Service.
func New(storage storage.Storage, cfg config.AuthConfig, sessionStore sessions.Store, tokenCache cache.TokenCache) *Service {
	return &Service{
		storage:  storage,
		cfg:      cfg,
		sessions: sessionStore,
		tokens:   tokenCache,
	}
}
