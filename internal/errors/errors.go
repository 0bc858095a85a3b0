// errors стандартизирует ответы об ошибках HTTP-слоя.
// На вход — доменная ошибка сервиса, на выход:
//   - корректный HTTP-статус;
//   - краткое безопасное message без утечки деталей;
//   - стабильный машиночитаемый code для фронта.
//
// Ключевое разграничение: проблемы токена (формат/подпись/срок/отзыв) — 401,
// валидный токен с недостаточной ролью — 403, CSRF — 403 со своим кодом,
// исчерпание квоты — 429 (мягкая, повторяемая ошибка).
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/service"
)

// Нестандартный код, часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// Коды CSRF-отказов: отсутствие токена и невалидный токен различимы.
const (
	CodeCSRFTokenMissing = "CSRF_TOKEN_MISSING"
	CodeCSRFTokenInvalid = "CSRF_TOKEN_INVALID"
)

// APIError — единый формат для фронта.
// Code — короткий стабильный код для машиночитаемой обработки на FE.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id, если есть (для трассировки).
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует доменную ошибку в HTTP-статус и унифицированный ответ.
// err == nil — программная ошибка вызова: возвращаем 500/internal, чтобы
// не послать "200 OK" с телом ошибки и не маскировать баг.
func ToHTTP(err error) (int, ErrorResponse) {
	status, code, msg := base(err)
	return status, ErrorResponse{
		Error: APIError{
			Code:    code,
			Message: msg,
		},
	}
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет корректный статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)
	write(w, r, status, resp)
}

// WriteCode пишет ответ с явным статусом и кодом (CSRF, rate limit).
func WriteCode(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	write(w, r, status, ErrorResponse{
		Error: APIError{
			Code:    code,
			Message: message,
		},
	})
}

// InvalidArgument — единая ошибка для битого входа (незнакомые поля, не-JSON).
var InvalidArgument = errors.New("invalid argument")

func write(w http.ResponseWriter, r *http.Request, status int, resp ErrorResponse) {
	// Прокидываем request_id для фронта, чтобы он мог репортить баги с привязкой.
	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// base — маппинг доменных ошибок на HTTP/FE-код/сообщение.
func base(err error) (int, string, string) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, "internal", "internal error"
	case errors.Is(err, InvalidArgument),
		errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrEmptyPassword),
		errors.Is(err, service.ErrInvalidRole),
		errors.Is(err, service.ErrEmptyExamID):
		return http.StatusBadRequest, "invalid_argument", "invalid argument"
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid credentials"
	case errors.Is(err, service.ErrTokenExpired):
		return http.StatusUnauthorized, "token_expired", "token expired"
	case errors.Is(err, service.ErrTokenRevoked):
		return http.StatusUnauthorized, "token_revoked", "token revoked"
	case errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrInactiveUser):
		return http.StatusUnauthorized, "unauthenticated", "unauthenticated"
	case errors.Is(err, service.ErrPermissionDenied):
		return http.StatusForbidden, "permission_denied", "permission denied"
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, "not_found", "not found"
	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict, "already_exists", "already exists"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded"
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "canceled", "canceled"
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}
