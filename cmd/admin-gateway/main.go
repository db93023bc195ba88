// Точка входа Admin Gateway — BFF admin-панели 원바원.
// Загружает конфигурацию, создаёт клиент backend API, провайдеры данных
// и аутентификации, хранилище сессий, запускает topologymetrics и
// HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/bigkaa/wonbawon-admin/internal/api/handlers"
	"github.com/bigkaa/wonbawon-admin/internal/api/middleware"
	"github.com/bigkaa/wonbawon-admin/internal/apiclient"
	"github.com/bigkaa/wonbawon-admin/internal/authprovider"
	"github.com/bigkaa/wonbawon-admin/internal/config"
	"github.com/bigkaa/wonbawon-admin/internal/dataprovider"
	"github.com/bigkaa/wonbawon-admin/internal/record"
	"github.com/bigkaa/wonbawon-admin/internal/resource"
	"github.com/bigkaa/wonbawon-admin/internal/server"
	"github.com/bigkaa/wonbawon-admin/internal/service"
	"github.com/bigkaa/wonbawon-admin/internal/session"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Admin Gateway запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("api_base_url", cfg.APIBaseURL),
	)

	if os.Getenv("WA_DEPHEALTH_GROUP") == "" {
		logger.Warn("WA_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Хранилище сессий. Токены каждого запроса берутся из его сессии.
	var sessions session.Backend
	switch cfg.SessionBackend {
	case config.SessionBackendMemory:
		sessions = session.NewServerBackend(cfg.SessionCapacity, cfg.SessionMaxAge, cfg.CookieSecure, logger)
	default:
		if cfg.SessionSecret == "" {
			logger.Warn("WA_SESSION_SECRET не задан, сессии не сохраняются между рестартами")
		}
		cookieBackend, cookieErr := session.NewCookieBackend(cfg.SessionSecret, cfg.CookieSecure, cfg.SessionMaxAge, logger)
		if cookieErr != nil {
			logger.Error("Ошибка создания хранилища сессий", slog.String("error", cookieErr.Error()))
			os.Exit(1)
		}
		sessions = cookieBackend
	}
	store := session.NewStore(nil, logger)

	// 4. Клиент backend API
	client, err := apiclient.New(apiclient.Options{
		BaseURL:     cfg.APIBaseURL,
		Timeout:     cfg.APITimeout,
		MaxRetries:  cfg.APIRetryCount,
		RetryUnsafe: cfg.APIRetryUnsafe,
		Tokens:      store,
	}, logger)
	if err != nil {
		logger.Error("Ошибка создания клиента backend API", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Провайдеры данных и аутентификации
	registry := resource.Default()
	dataProvider := dataprovider.New(client, registry, record.NewNormalizer(logger), logger)
	authProvider := authprovider.New(client, store, logger)
	logger.Info("Провайдеры инициализированы",
		slog.Int("resources", len(registry.Names())),
		slog.String("session_backend", cfg.SessionBackend),
	)

	// 6. topologymetrics — мониторинг backend API
	ctx := context.Background()
	var backendChecker handlers.ReadinessChecker
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"admin-gateway",
		cfg.DephealthGroup,
		cfg.APIBaseURL,
		cfg.BackendHealthPath,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
		backendChecker = dephealthSvc
	}

	// 7. HTTP handlers и router
	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		logger.Error("Некорректный WA_TRUSTED_PROXIES", slog.String("error", err.Error()))
		os.Exit(1)
	}

	router := server.NewRouter(logger, server.Routes{
		Health:         handlers.NewHealthHandler(backendChecker),
		Auth:           handlers.NewAuthHandler(authProvider, logger),
		Resources:      handlers.NewResourceHandler(dataProvider, authProvider, logger),
		Sessions:       sessions,
		Checker:        authProvider,
		LoginLimiter:   middleware.NewRateLimiter(cfg.LoginRatePerMinute, proxies),
		CORSOrigins:    cfg.CORSOrigins,
		TrustedProxies: proxies,
	})

	// 8. Запуск сервера (блокирует до сигнала завершения)
	srv := server.New(cfg, logger, router)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 9. Остановка фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
		logger.Info("topologymetrics остановлен")
	}

	logger.Info("Admin Gateway остановлен")
}
