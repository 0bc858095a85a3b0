package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/csrf"
	apierrors "github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/errors"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/metrics"
	logctx "github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/pkg/log"
)

const (
	csrfHeaderName = "X-CSRF-Token"
	csrfFormField  = "csrf_token"
	csrfCookieName = "csrf_token"
)

// CSRFConfig — параметры мидлвара.
type CSRFConfig struct {
	// CookieSecure выставляет Secure на cookie; выключается только в local-окружении.
	CookieSecure bool
}

// CSRF охраняет мутирующие методы double-submit-токеном.
//
// Протокол:
//   - безопасные методы (GET/HEAD/OPTIONS) не проверяются, но получают
//     свежий токен в заголовке и cookie — задел на будущие мутации;
//   - POST/PUT/PATCH/DELETE на неисключённых путях требуют валидный токен
//     из заголовка, поля формы или cookie (в этом порядке); отсутствие и
//     невалидность различаются кодами CSRF_TOKEN_MISSING/CSRF_TOKEN_INVALID;
//   - каждый пропущенный мутирующий запрос получает ротированный токен.
func CSRF(guard *csrf.Guard, cfg CSRFConfig, collector *metrics.Collector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				issueToken(w, guard, cfg)
				next.ServeHTTP(w, r)
				return
			}

			if csrf.IsExempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token := extractToken(r)
			if token == "" {
				if collector != nil {
					collector.RecordCSRFRejected("missing")
				}
				logctx.From(r.Context()).Warn("csrf_token_missing",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				apierrors.WriteCode(w, r, http.StatusForbidden, apierrors.CodeCSRFTokenMissing, "csrf token required")
				return
			}

			if err := guard.Validate(token, "", time.Now().UTC()); err != nil {
				if collector != nil {
					collector.RecordCSRFRejected(csrfReason(err))
				}
				logctx.From(r.Context()).Warn("csrf_token_invalid",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("reason", csrfReason(err)),
				)
				apierrors.WriteCode(w, r, http.StatusForbidden, apierrors.CodeCSRFTokenInvalid, "csrf token invalid")
				return
			}

			// Ротация на каждый успешно обработанный мутирующий запрос.
			issueToken(w, guard, cfg)
			next.ServeHTTP(w, r)
		})
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// extractToken ищет токен по приоритету: заголовок → форма → cookie.
func extractToken(r *http.Request) string {
	if token := r.Header.Get(csrfHeaderName); token != "" {
		return token
	}

	if token := r.PostFormValue(csrfFormField); token != "" {
		return token
	}

	if cookie, err := r.Cookie(csrfCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	return ""
}

// issueToken отдаёт свежий токен в заголовке ответа и cookie.
func issueToken(w http.ResponseWriter, guard *csrf.Guard, cfg CSRFConfig) {
	token := guard.Generate("", time.Now().UTC())

	w.Header().Set(csrfHeaderName, token)
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   3600,
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func csrfReason(err error) string {
	switch {
	case errors.Is(err, csrf.ErrMalformed):
		return "malformed"
	case errors.Is(err, csrf.ErrExpired):
		return "expired"
	case errors.Is(err, csrf.ErrSignature):
		return "signature"
	case errors.Is(err, csrf.ErrSessionMismatch):
		return "session_mismatch"
	default:
		return "invalid"
	}
}
