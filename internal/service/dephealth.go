// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Gateway мониторит одну зависимость — REST API backend 원바원
// (HTTP checker к health endpoint, critical).
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
//   - app_dependency_status — категория статуса
//   - app_dependency_status_detail — детальный статус
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker для backend API
	"github.com/prometheus/client_golang/prometheus"
)

// BackendDependency — имя зависимости backend API в метриках.
const BackendDependency = "wonbawon-api"

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
//
// Параметры:
//   - serviceID — имя вершины графа текущего приложения (e.g. "admin-gateway")
//   - group — имя группы в метриках (WA_DEPHEALTH_GROUP)
//   - backendURL — базовый URL backend API
//   - healthPath — путь health endpoint backend (WA_BACKEND_HEALTH_PATH)
//   - checkInterval — интервал проверки (WA_DEPHEALTH_CHECK_INTERVAL)
func NewDephealthService(
	serviceID string,
	group string,
	backendURL string,
	healthPath string,
	checkInterval time.Duration,
	logger *slog.Logger,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, backendURL, healthPath, checkInterval, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	serviceID string,
	group string,
	backendURL string,
	healthPath string,
	checkInterval time.Duration,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, backendURL, healthPath, checkInterval, logger,
		dephealth.WithRegisterer(registerer))
}

func newDephealthService(
	serviceID string,
	group string,
	backendURL string,
	healthPath string,
	checkInterval time.Duration,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	if healthPath == "" {
		healthPath = "/health"
	}

	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.HTTP(BackendDependency,
			dephealth.FromURL(backendURL),
			dephealth.WithHTTPHealthPath(healthPath),
			dephealth.CheckInterval(checkInterval),
			dephealth.Critical(true),
		),
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(serviceID, group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (backend API)")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — "dependency:host:port", значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}

// CheckReady — готовность backend API для readiness probe.
// До первой проверки статус degraded.
func (ds *DephealthService) CheckReady() (string, string) {
	healthy, found := findHealthByPrefix(ds.Health(), BackendDependency)
	switch {
	case !found:
		return "degraded", "проверка backend ещё не выполнена"
	case !healthy:
		return "fail", "backend API недоступен"
	default:
		return "ok", ""
	}
}

// findHealthByPrefix ищет статус зависимости по префиксу имени.
// Если найдено несколько записей, healthy только когда здоровы все.
func findHealthByPrefix(health map[string]bool, prefix string) (healthy bool, found bool) {
	healthy = true
	for key, ok := range health {
		if strings.HasPrefix(key, prefix+":") || key == prefix {
			found = true
			if !ok {
				healthy = false
			}
		}
	}
	return healthy && found, found
}
