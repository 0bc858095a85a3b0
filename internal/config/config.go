// config предоставляет структуру конфигурации сервиса и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config — корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	Ops       OpsConfig       `yaml:"ops"`
	Auth      AuthConfig      `yaml:"auth"`
	CSRF      CSRFConfig      `yaml:"csrf"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	DB        DBConfig        `yaml:"db"`
	Redis     RedisConfig     `yaml:"redis"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
}

// TimeoutConfig — таймауты сервиса.
type TimeoutConfig struct {
	// Request — общий дедлайн обработки HTTP-запроса.
	Request time.Duration `yaml:"request" env:"REQUEST_TIMEOUT" env-default:"5s"`
	// Store — таймаут одиночной команды к key-value store.
	Store time.Duration `yaml:"store" env:"STORE_TIMEOUT" env-default:"300ms"`
}

// HTTPConfig — сетевые настройки API-сервера.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
}

// OpsConfig — сетевые настройки служебного сервера (/livez, /healthz, /metrics).
type OpsConfig struct {
	Host string `yaml:"host" env:"OPS_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"OPS_PORT" env-default:"9090"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// Addr возвращает адрес в формате host:port.
func (o OpsConfig) Addr() string {
	return net.JoinHostPort(o.Host, o.Port)
}

// AuthConfig содержит параметры выпуска и валидации токенов.
type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"30m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"168h"`
	// ExamSessionTTL ограничивает exam-session-токен длительностью экзамена,
	// а не стандартным временем жизни access-токена.
	ExamSessionTTL time.Duration `yaml:"exam_session_ttl" env:"EXAM_SESSION_TTL" env-default:"3h"`
	// VerificationTokenTTL — срок жизни одноразового токена подтверждения e-mail.
	VerificationTokenTTL time.Duration `yaml:"verification_token_ttl" env:"VERIFICATION_TOKEN_TTL" env-default:"24h"`
	// ResetTokenTTL — срок жизни одноразового токена сброса пароля.
	ResetTokenTTL time.Duration `yaml:"reset_token_ttl" env:"RESET_TOKEN_TTL" env-default:"1h"`
	Issuer        string        `yaml:"issuer" env:"ISSUER" env-default:"medhasakthi-auth"`
	Audience      []string      `yaml:"audience" env:"AUDIENCE" env-default:"medhasakthi-api"`
}

// CSRFConfig — параметры double-submit CSRF-защиты.
type CSRFConfig struct {
	Secret string `yaml:"secret" env:"CSRF_SECRET" env-required:"true"`
	// TokenTTL — максимальный возраст токена; по умолчанию один час.
	TokenTTL time.Duration `yaml:"token_ttl" env:"CSRF_TOKEN_TTL" env-default:"1h"`
}

// RateLimitConfig — лимиты fixed-window счётчиков на чувствительные операции.
type RateLimitConfig struct {
	LoginLimit   int           `yaml:"login_limit" env:"RL_LOGIN_LIMIT" env-default:"10"`
	LoginWindow  time.Duration `yaml:"login_window" env:"RL_LOGIN_WINDOW" env-default:"1m"`
	ForgotLimit  int           `yaml:"forgot_limit" env:"RL_FORGOT_LIMIT" env-default:"3"`
	ForgotWindow time.Duration `yaml:"forgot_window" env:"RL_FORGOT_WINDOW" env-default:"10m"`
	APILimit     int           `yaml:"api_limit" env:"RL_API_LIMIT" env-default:"120"`
	APIWindow    time.Duration `yaml:"api_window" env:"RL_API_WINDOW" env-default:"1m"`
}

// DBConfig — настройки подключения к базе данных.
type DBConfig struct {
	DatabaseURL string `yaml:"db_url" env:"DATABASE_URL" env-required:"true"`
}

// RedisConfig — настройки подключения к Redis.
type RedisConfig struct {
	RedisURL string `yaml:"redis_url" env:"REDIS_URL" env-required:"true"`
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// ВАЖНО: после чтения файла накладываем ENV-переменные поверх значений из YAML.
func Load(path string) (*Config, error) {
	var cfg Config

	// чтение файла + overlay ENV.
	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}

		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 1) Явный путь.
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH.
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml.
	if _, err := os.Stat("local.yaml"); err == nil {
		if err := cleanenv.ReadConfig("local.yaml", &cfg); err != nil {
			return nil, fmt.Errorf("failed to read local.yaml: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 4) Только ENV.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return &cfg, nil
}
