// metrics.go — Prometheus метрики исходящих запросов к backend API.
// Регистрирует метрики: wa_backend_requests_total, wa_backend_request_duration_seconds,
// wa_backend_retries_total.
package apiclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// backendRequestsTotal — количество попыток запросов к backend.
	// status — HTTP-код или "timeout"/"network" для транспортных ошибок.
	backendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_backend_requests_total",
			Help: "Общее количество попыток запросов к backend API",
		},
		[]string{"method", "status"},
	)

	// backendRequestDuration — длительность одной попытки.
	backendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_backend_request_duration_seconds",
			Help:    "Длительность запросов к backend API в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// backendRetriesTotal — количество повторов после неудачной попытки.
	backendRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_backend_retries_total",
			Help: "Количество повторных попыток запросов к backend API",
		},
		[]string{"method"},
	)
)
