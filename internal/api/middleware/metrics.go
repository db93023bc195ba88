// metrics.go — Prometheus HTTP метрики gateway.
// Регистрирует метрики: wa_http_requests_total, wa_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_http_requests_total",
			Help: "Общее количество HTTP-запросов к admin gateway",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к admin gateway в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (id записи заменяется на {id})
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.status)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

const resourcesPrefix = "/api/v1/resources/"

// normalizePath заменяет id записи на {id} для предотвращения
// взрывного роста кардинальности метрик. Имя ресурса сохраняется.
// /api/v1/resources/community/42 → /api/v1/resources/community/{id}
func normalizePath(path string) string {
	if !strings.HasPrefix(path, resourcesPrefix) {
		return path
	}

	rest := strings.Trim(path[len(resourcesPrefix):], "/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) == 1 {
		return resourcesPrefix + parts[0]
	}
	switch parts[1] {
	case "many", "reference":
		return resourcesPrefix + parts[0] + "/" + parts[1]
	default:
		return resourcesPrefix + parts[0] + "/{id}"
	}
}
