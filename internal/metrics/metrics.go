// metrics собирает Prometheus-метрики auth-подсистемы.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector агрегирует счётчики, которые пишут HTTP-слой и сервис.
type Collector struct {
	loginSuccess    prometheus.Counter
	loginFail       prometheus.Counter
	tokenRefresh    prometheus.Counter
	rateLimitDenied *prometheus.CounterVec
	csrfRejected    *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
}

// NewCollector создаёт Collector и регистрирует метрики в reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_login_success_total",
			Help: "Количество успешных входов.",
		}),
		loginFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_login_fail_total",
			Help: "Количество неуспешных попыток входа.",
		}),
		tokenRefresh: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_token_refresh_total",
			Help: "Количество ротаций пары токенов.",
		}),
		rateLimitDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_rate_limit_denied_total",
			Help: "Количество запросов, отклонённых лимитером, по действиям.",
		}, []string{"action"}),
		csrfRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_csrf_rejected_total",
			Help: "Количество запросов, отклонённых CSRF-защитой, по причинам.",
		}, []string{"reason"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_http_requests_total",
			Help: "Количество HTTP-запросов по статусам ответов.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFail,
		c.tokenRefresh,
		c.rateLimitDenied,
		c.csrfRejected,
		c.httpRequests,
	)

	return c
}

func (c *Collector) RecordLoginSuccess() { c.loginSuccess.Inc() }

func (c *Collector) RecordLoginFail() { c.loginFail.Inc() }

func (c *Collector) RecordTokenRefresh() { c.tokenRefresh.Inc() }

func (c *Collector) RecordRateLimitDenied(action string) {
	c.rateLimitDenied.WithLabelValues(action).Inc()
}

func (c *Collector) RecordCSRFRejected(reason string) {
	c.csrfRejected.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordHTTPStatus(status string) {
	c.httpRequests.WithLabelValues(status).Inc()
}
