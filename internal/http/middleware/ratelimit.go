package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	apierrors "github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/errors"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/metrics"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/ratelimit"
)

// Identifier выделяет субъект лимитирования из запроса (IP, пользователь).
type Identifier func(r *http.Request) string

// ByClientIP — лимит на клиентский адрес: первый адрес из X-Forwarded-For,
// иначе host из RemoteAddr.
func ByClientIP() Identifier {
	return func(r *http.Request) string {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			for i := 0; i < len(fwd); i++ {
				if fwd[i] == ',' {
					return fwd[:i]
				}
			}
			return fwd
		}

		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr
		}

		return host
	}
}

// ByBearerOrIP — лимит на предъявленный bearer-токен (без его проверки),
// для анонимных запросов — на IP.
func ByBearerOrIP() Identifier {
	byIP := ByClientIP()
	return func(r *http.Request) string {
		if token, ok := AuthTokenFrom(r.Context()); ok {
			return token
		}

		return byIP(r)
	}
}

// RateLimit считает запросы fixed-window счётчиком по ключу
// rate_limit:{action}:{identifier} и отвечает 429 при исчерпании квоты.
// Недоступность store пропускает запрос (лимитер fail-open).
func RateLimit(limiter *ratelimit.Limiter, action string, limit int, window time.Duration, ident Identifier, collector *metrics.Collector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ratelimit.Key(action, ident(r))

			if !limiter.Allow(r.Context(), key, limit, window) {
				if collector != nil {
					collector.RecordRateLimitDenied(action)
				}

				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				apierrors.WriteCode(w, r, http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
