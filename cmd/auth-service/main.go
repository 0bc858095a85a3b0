package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/cache"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/config"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/csrf"
	authhttp "github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/http"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/metrics"
	logpkg "github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/pkg/log"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/ratelimit"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/service"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/sessions"
	"github.com/Medhasakthi/MEDHASAKTHI-sub002/internal/storage/postgres"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := logpkg.Setup(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting application", "env", cfg.Env)

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	// Миграции применяем до открытия пула.
	if err := postgres.RunMigrations(cfg.DB.DatabaseURL); err != nil {
		log.Error("migrations_failed", slog.String("err", err.Error()))
		rootCancel()
		os.Exit(1)
	}
	log.Info("migrations_applied")

	// Подключение к БД c таймаутом.
	dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
	str, err := postgres.New(dbCtx, cfg.DB.DatabaseURL)
	dbCancel()
	if err != nil {
		log.Error("postgres_connect_failed", slog.String("err", err.Error()))
		rootCancel()
		os.Exit(1)
	}
	log.Info("postgres_connected")

	// Redis: сессии, denylist токенов, rate limiter.
	redisCtx, redisCancel := context.WithTimeout(rootCtx, 10*time.Second)
	rdb, err := cache.New(redisCtx, cfg.Redis.RedisURL)
	redisCancel()
	if err != nil {
		log.Error("redis_connect_failed", slog.String("err", err.Error()))
		rootCancel()
		str.Close()
		os.Exit(1)
	}
	log.Info("redis_connected")

	sessionStore := sessions.NewRedisStore(rdb, cfg.Timeouts.Store)
	tokenCache := cache.NewTokenCache(rdb, cfg.Timeouts.Store)
	limiter := ratelimit.New(rdb, cfg.Timeouts.Store)
	guard := csrf.New(cfg.CSRF.Secret, cfg.CSRF.TokenTTL)

	// Метрики.
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// Сервис.
	srvc := service.New(str, cfg.Auth, sessionStore, tokenCache)
	log.Info("service_initialized")

	var ready int32 // 0 — not ready; 1 — ready

	// Служебный сервер: liveness, readiness, метрики.
	opsMux := http.NewServeMux()
	opsMux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	opsMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if atomic.LoadInt32(&ready) == 1 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})

	opsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	opsAddr := cfg.Ops.Addr()
	opsSrv := &http.Server{
		Addr:              opsAddr,
		Handler:           opsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("ops_listen_start", "addr", opsAddr)
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("ops_serve_failed", slog.String("err", err.Error()))
		}
	}()

	// API-сервер.
	router := authhttp.NewRouter(srvc, authhttp.Options{
		Logger:    log,
		Config:    cfg,
		Guard:     guard,
		Limiter:   limiter,
		Collector: collector,
	})

	apiAddr := cfg.HTTP.Addr()
	apiSrv := &http.Server{
		Addr:              apiAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		log.Info("http_listen_start", slog.String("addr", apiAddr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	atomic.StoreInt32(&ready, 1)

	// Ожидание сигнала завершения или фатальной ошибки сервера.
	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	atomic.StoreInt32(&ready, 0)

	// Graceful stop с таймаутом.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_force_stop", slog.String("err", err.Error()))
	} else {
		log.Info("http_stopped")
	}

	_ = opsSrv.Shutdown(context.Background())

	// Явная очистка перед выходом.
	shutdownCancel()
	rootCancel()
	_ = rdb.Close()
	str.Close()

	log.Info("service_stopped")
	os.Exit(0)
}
