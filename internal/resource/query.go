package resource

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Sort — сортировка списка.
type Sort struct {
	Field string `json:"field"`
	Order string `json:"order"`
}

// ListParams — параметры списка в терминах admin UI (страницы с 1).
type ListParams struct {
	Page    int            `json:"page"`
	PerPage int            `json:"perPage"`
	Sort    Sort           `json:"sort"`
	Filter  map[string]any `json:"filter"`
}

// BuildListQuery переводит параметры списка в query backend:
// page с нуля, size, sort=field,order (если ресурс поддерживает сортировку),
// плоские фильтры без пустых значений и без вошедших в путь.
func BuildListQuery(d *Descriptor, p ListParams) url.Values {
	q := url.Values{}

	page := p.Page
	if page < 1 {
		page = 1
	}
	q.Set("page", strconv.Itoa(page-1))
	if p.PerPage > 0 {
		q.Set("size", strconv.Itoa(p.PerPage))
	}

	if !d.NoSort && p.Sort.Field != "" {
		order := strings.ToLower(p.Sort.Order)
		if order != "desc" {
			order = "asc"
		}
		q.Set("sort", p.Sort.Field+","+order)
	}

	embedded := d.pathEmbedded(p.Filter)
	for key, value := range p.Filter {
		if embedded[key] || isEmptyValue(value) {
			continue
		}
		q.Set(key, formatValue(value))
	}
	return q
}

// isEmptyValue — значение фильтра не передаётся: nil, "" или пустой список.
func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	case []string:
		return len(val) == 0
	default:
		return false
	}
}

// formatValue приводит значение фильтра к строке query.
func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case []string:
		return strings.Join(val, ",")
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, formatValue(item))
		}
		return strings.Join(parts, ",")
	case map[string]any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}
