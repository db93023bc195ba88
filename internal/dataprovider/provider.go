// Пакет dataprovider — CRUD-операции admin UI поверх REST API backend.
//
// Каждая операция: описание ресурса из реестра → путь и query →
// запрос с повторами → разворачивание конверта → нормализация id.
// Ошибки backend превращаются в OperationError с сообщением для пользователя;
// исходная ошибка пишется в лог и доступна через errors.As.
package dataprovider

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/wonbawon-admin/internal/apiclient"
	"github.com/bigkaa/wonbawon-admin/internal/record"
	"github.com/bigkaa/wonbawon-admin/internal/resource"
)

// maxFanOut — максимум одновременных запросов в get-many/update-many/delete-many.
const maxFanOut = 8

// operationsTotal — операции data provider по результату.
var operationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "wa_dataprovider_operations_total",
		Help: "Количество операций data provider",
	},
	[]string{"resource", "operation", "result"},
)

// Backend — выполнение запроса к backend API с повторами.
type Backend interface {
	DoWithRetry(ctx context.Context, req apiclient.Request) (any, error)
}

// ListResult — страница списка.
type ListResult struct {
	Data  []record.Record `json:"data"`
	Total int             `json:"total"`
}

// ReferenceParams — список записей, ссылающихся на target = ID.
type ReferenceParams struct {
	resource.ListParams
	Target string `json:"target"`
	ID     string `json:"id"`
}

// UpdateParams — обновление одной записи.
type UpdateParams struct {
	ID           string         `json:"id"`
	Data         map[string]any `json:"data"`
	PreviousData map[string]any `json:"previousData,omitempty"`
}

// Provider — data provider admin UI.
type Provider struct {
	api        Backend
	registry   *resource.Registry
	normalizer *record.Normalizer
	logger     *slog.Logger
}

// New создаёт data provider.
func New(api Backend, registry *resource.Registry, normalizer *record.Normalizer, logger *slog.Logger) *Provider {
	return &Provider{
		api:        api,
		registry:   registry,
		normalizer: normalizer,
		logger:     logger.With(slog.String("component", "data_provider")),
	}
}

// Registry возвращает реестр ресурсов.
func (p *Provider) Registry() *resource.Registry {
	return p.registry
}

// fail превращает ошибку в OperationError и пишет исходную ошибку в лог.
func (p *Provider) fail(d *resource.Descriptor, op string, err error) error {
	status := apiclient.StatusOf(err)
	operationsTotal.WithLabelValues(d.Name, op, "error").Inc()

	level := slog.LevelError
	if status == 401 || (status >= 400 && status < 500) {
		level = slog.LevelWarn
	}
	p.logger.Log(context.Background(), level, "Операция data provider завершилась ошибкой",
		slog.String("resource", d.Name),
		slog.String("operation", op),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)

	return &OperationError{
		Resource:  d.Name,
		Operation: op,
		Status:    status,
		Message:   userMessage(d.Name, err),
		Err:       err,
	}
}

func (p *Provider) ok(d *resource.Descriptor, op string) {
	operationsTotal.WithLabelValues(d.Name, op, "ok").Inc()
}
