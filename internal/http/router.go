package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/config"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/csrf"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/http/handlers"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/http/middleware"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/metrics"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/ratelimit"
)

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger    *slog.Logger
	Config    *config.Config
	Guard     *csrf.Guard
	Limiter   *ratelimit.Limiter
	Collector *metrics.Collector
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(service handlers.AuthService, opts Options) http.Handler {
	root := chi.NewRouter()

	cfg := opts.Config

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),                            // безопасно ловим паники
		middleware.RequestID(),                          // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger, opts.Collector), // request-scoped логгер в контекст + access-лог
		middleware.AuthBearer(),                         // вынимаем Bearer токен в контекст для сервисного слоя
	)
	if cfg.Timeouts.Request > 0 {
		root.Use(middleware.Timeout(cfg.Timeouts.Request)) // общий дедлайн запроса
	}
	root.Use(middleware.CSRF(opts.Guard, middleware.CSRFConfig{
		CookieSecure: cfg.Env != "local",
	}, opts.Collector))

	h := handlers.New(service, opts.Collector)

	registerRoutes(root, h, opts)

	return root
}

// registerRoutes — единая точка регистрации всех REST-эндпойнтов.
// Чувствительные операции получают персональные fixed-window лимиты,
// остальное накрывает общий API-лимит по bearer-токену либо IP.
func registerRoutes(r chi.Router, h *handlers.Handlers, opts Options) {
	rl := opts.Config.RateLimit

	limit := func(action string, n int, window time.Duration, ident middleware.Identifier) middleware.Middleware {
		return middleware.RateLimit(opts.Limiter, action, n, window, ident, opts.Collector)
	}

	loginLimit := limit("login", rl.LoginLimit, rl.LoginWindow, middleware.ByClientIP())
	forgotLimit := limit("forgot_password", rl.ForgotLimit, rl.ForgotWindow, middleware.ByClientIP())
	apiLimit := limit("api", rl.APILimit, rl.APIWindow, middleware.ByBearerOrIP())

	// auth: публичные операции.
	r.With(loginLimit).Post("/auth/register", h.RegisterUser)
	r.With(loginLimit).Post("/auth/login", h.LoginUser)
	r.Post("/auth/refresh", h.RefreshToken)
	r.Post("/auth/verify-email", h.VerifyEmail)
	r.With(forgotLimit).Post("/auth/password/forgot", h.ForgotPassword)
	r.With(forgotLimit).Post("/auth/password/reset", h.ResetPassword)

	// auth: операции под access-токеном.
	r.Group(func(r chi.Router) {
		r.Use(apiLimit)
		r.Post("/auth/logout", h.Logout)
		r.Post("/auth/logout_all", h.LogoutAll)
		r.Get("/auth/sessions", h.Sessions)
		r.Get("/auth/me", h.Me)
		r.Post("/auth/password/change", h.ChangePassword)

		// exams
		r.Post("/exams/session", h.StartExamSession)

		// admin
		r.Get("/admin/users/{id}", h.AdminGetUser)
	})
}
