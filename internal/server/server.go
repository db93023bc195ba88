// Пакет server — HTTP-сервер admin gateway с graceful shutdown.
// Без TLS — TLS termination на ingress.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/wonbawon-admin/internal/api/handlers"
	"github.com/bigkaa/wonbawon-admin/internal/api/middleware"
	"github.com/bigkaa/wonbawon-admin/internal/config"
	"github.com/bigkaa/wonbawon-admin/internal/session"
)

// Routes — зависимости маршрутизатора.
type Routes struct {
	Health    *handlers.HealthHandler
	Auth      *handlers.AuthHandler
	Resources *handlers.ResourceHandler

	// Sessions — хранилище сессий (cookie или серверная таблица).
	Sessions session.Backend
	// Checker — проверка сессии для /api/v1/resources.
	Checker middleware.AuthChecker
	// LoginLimiter — ограничение попыток входа; nil — без ограничения.
	LoginLimiter *middleware.RateLimiter
	CORSOrigins  []string

	// TrustedProxies — ingress, чьим X-Forwarded-For верит журнал запросов.
	TrustedProxies *middleware.TrustedProxies
}

// NewRouter создаёт chi router gateway.
//
// Health и metrics доступны без сессии (проверяются Kubernetes напрямую).
// /api/v1/auth — вход, выход и проверка сессии.
// /api/v1/resources — операции data provider, только для вошедшего администратора.
func NewRouter(logger *slog.Logger, rt Routes) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger, rt.TrustedProxies))
	router.Use(middleware.CORS(rt.CORSOrigins))

	router.Get("/health/live", rt.Health.HealthLive)
	router.Get("/health/ready", rt.Health.HealthReady)
	router.Get("/metrics", rt.Health.GetMetrics)

	router.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Session(rt.Sessions, logger))

		api.Route("/auth", func(auth chi.Router) {
			auth.Group(func(login chi.Router) {
				if rt.LoginLimiter != nil {
					login.Use(rt.LoginLimiter.Handler)
				}
				login.Post("/login", rt.Auth.Login)
			})
			auth.Post("/logout", rt.Auth.Logout)
			auth.Get("/check", rt.Auth.Check)
			auth.Get("/identity", rt.Auth.Identity)
			auth.Get("/permissions", rt.Auth.Permissions)
		})

		api.Route("/resources/{resource}", func(res chi.Router) {
			res.Use(middleware.RequireAuth(rt.Checker, logger))

			res.Get("/", rt.Resources.List)
			res.Post("/", rt.Resources.Create)
			res.Put("/", rt.Resources.UpdateMany)
			res.Delete("/", rt.Resources.DeleteMany)
			res.Get("/many", rt.Resources.Many)
			res.Get("/reference", rt.Resources.Reference)
			res.Get("/{id}", rt.Resources.Get)
			res.Put("/{id}", rt.Resources.Update)
			res.Delete("/{id}", rt.Resources.Delete)
		})
	})

	return router
}

// Server — HTTP-сервер admin gateway.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с готовым обработчиком.
func New(cfg *config.Config, logger *slog.Logger, handler http.Handler) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
