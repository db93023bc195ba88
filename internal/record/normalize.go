package record

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// syntheticIDsTotal — записи, получившие синтетический id.
var syntheticIDsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "wa_record_synthetic_ids_total",
		Help: "Количество записей без идентификатора, получивших синтетический id",
	},
	[]string{"resource"},
)

// DomainError — backend вернул 2xx, но тело содержит {code, message}.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("ошибка backend %s: %s", e.Code, e.Message)
}

// Normalizer гарантирует наличие поля id у записи.
type Normalizer struct {
	logger *slog.Logger
	// newID — генератор синтетических id (подменяется в тестах).
	newID func() string
}

// NewNormalizer создаёт нормализатор записей.
func NewNormalizer(logger *slog.Logger) *Normalizer {
	return &Normalizer{
		logger: logger.With(slog.String("component", "record_normalizer")),
		newID:  func() string { return uuid.NewString() },
	}
}

// Normalize проверяет ответ backend на ошибку в теле 2xx и возвращает
// копию записи с каноническим id (см. Canonical).
func (n *Normalizer) Normalize(rec Record, resourceName, idField, requestedID string) (Record, error) {
	if err := DomainErrorOf(rec); err != nil {
		return nil, err
	}
	return n.Canonical(rec, resourceName, idField, requestedID), nil
}

// Canonical возвращает копию записи с каноническим id без проверки на
// ошибку в теле. Нужна для записей, собранных из данных формы и ответа
// backend: поля code и message формы не должны читаться как ошибка.
//
// Порядок выбора id:
//  1. объявленное поле ресурса (idField), если не пустое
//  2. существующее поле id
//  3. id из запроса вызывающего (requestedID), если известен
//  4. первое по алфавиту поле с "id" в имени и положительным числовым значением
//  5. синтетический UUID (с предупреждением в лог)
//
// Повторная нормализация результата его не меняет.
func (n *Normalizer) Canonical(rec Record, resourceName, idField, requestedID string) Record {
	out := rec.Clone()

	if idField != "" && idField != "id" {
		if v, ok := out[idField]; ok && !isBlank(v) {
			out["id"] = v
			return out
		}
	}
	if v, ok := out["id"]; ok && !isBlank(v) {
		return out
	}
	if requestedID != "" {
		out["id"] = IDValue(requestedID)
		return out
	}
	if v, ok := positiveIDField(out); ok {
		out["id"] = v
		return out
	}

	synthetic := n.newID()
	out["id"] = synthetic
	syntheticIDsTotal.WithLabelValues(resourceName).Inc()
	n.logger.Warn("Запись без идентификатора, назначен синтетический id",
		slog.String("resource", resourceName),
		slog.String("id_field", idField),
		slog.String("synthetic_id", synthetic),
	)
	return out
}

// NormalizeAll нормализует список записей ресурса.
func (n *Normalizer) NormalizeAll(items []Record, resourceName, idField string) ([]Record, error) {
	out := make([]Record, 0, len(items))
	for _, item := range items {
		normalized, err := n.Normalize(item, resourceName, idField, "")
		if err != nil {
			return nil, err
		}
		out = append(out, normalized)
	}
	return out, nil
}

// DomainErrorOf возвращает *DomainError, если запись — это ошибка в теле 2xx.
func DomainErrorOf(rec Record) error {
	code, hasCode := rec["code"]
	msg, hasMsg := rec["message"]
	if !hasCode || !hasMsg {
		return nil
	}
	return &DomainError{Code: IDString(code), Message: IDString(msg)}
}

// positiveIDField ищет поле с "id" в имени и положительным числовым значением.
// Ключи перебираются по алфавиту, чтобы результат не зависел от порядка map.
func positiveIDField(rec Record) (any, bool) {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		if strings.Contains(strings.ToLower(k), "id") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if isPositiveNumber(rec[k]) {
			return rec[k], true
		}
	}
	return nil, false
}

func isPositiveNumber(v any) bool {
	switch val := v.(type) {
	case json.Number:
		f, err := val.Float64()
		return err == nil && f > 0
	case float64:
		return val > 0
	case int:
		return val > 0
	case int64:
		return val > 0
	default:
		return false
	}
}

func isBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	default:
		return false
	}
}
