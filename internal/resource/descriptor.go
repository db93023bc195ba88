// Пакет resource — реестр ресурсов admin-панели и разрешение REST-путей backend.
//
// Каждый ресурс описывается Descriptor: базовый путь, поле идентификатора,
// правила выбора пути списка (родительский id, статус, поиск), пути
// одиночной записи и стратегия обновления. Все функции пакета чистые:
// без I/O и без побочных эффектов.
package resource

import (
	"encoding/json"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// PlaceholderPath — путь-заглушка для списка, которому не хватает
// родительского идентификатора. Никогда не отправляется в backend:
// вызывающий код обязан проверить его до HTTP-запроса.
const PlaceholderPath = "/__awaiting-parent-filter__"

// UpdateStrategy — способ отправки обновления записи.
type UpdateStrategy int

const (
	// UpdatePut — PUT полного payload на путь записи.
	UpdatePut UpdateStrategy = iota
	// UpdateReportStatus — PATCH {path}/status?status=X без тела.
	UpdateReportStatus
	// UpdateNoticeVisibility — PATCH {path}/public-status {"isPublic": bool}.
	UpdateNoticeVisibility
	// UpdateInquiryAction — close (PATCH {path}/close) или answer (POST {path}/answer).
	UpdateInquiryAction
)

// String возвращает имя стратегии для логов.
func (s UpdateStrategy) String() string {
	switch s {
	case UpdatePut:
		return "put"
	case UpdateReportStatus:
		return "report-status"
	case UpdateNoticeVisibility:
		return "notice-visibility"
	case UpdateInquiryAction:
		return "inquiry-action"
	default:
		return "unknown"
	}
}

// ParentRule — список ресурса доступен только в контексте родителя
// (отзывы в рамках детского сада, комментарии в рамках поста).
type ParentRule struct {
	// Param — имя фильтра с идентификатором родителя.
	Param string
	// ListPath строит путь списка по идентификатору родителя.
	ListPath func(parentID int64) string
}

// Descriptor — описание одного ресурса.
type Descriptor struct {
	Name    string
	Aliases []string

	// BasePath — путь коллекции: POST создания и префикс пути записи.
	BasePath string
	// ListPath — путь списка, если отличается от BasePath.
	ListPath string
	// IDField — поле идентификатора в DTO backend (userId, postId, ...).
	IDField string

	Parent *ParentRule

	// StatusParam и StatusListPath — список, отфильтрованный по статусу
	// через путь, а не через query.
	StatusParam    string
	StatusListPath func(status string) string

	// SearchPath используется вместо ListPath, если задан любой из SearchFilters.
	SearchPath    string
	SearchFilters []string

	// DetailPath строит путь записи; nil — BasePath/{id}.
	DetailPath func(id string) string
	// DeletePath строит путь удаления; nil — путь записи.
	DeletePath func(id string) string

	Update UpdateStrategy

	// NoDetail — у backend нет endpoint одиночной записи.
	NoDetail bool
	// NoSort — backend не поддерживает параметр sort.
	NoSort bool
	// Virtual — ресурс не адресуется по id (get-many возвращает пусто).
	Virtual bool
	// PreserveID — при обновлении id берётся из запроса как есть.
	PreserveID bool
}

// ListPathFor выбирает путь списка по фильтрам.
//
// Порядок правил:
//  1. родительский ресурс: путь родителя или PlaceholderPath
//  2. статус в пути (обращения)
//  3. поисковый endpoint (пользователи)
//  4. базовый путь
func (d *Descriptor) ListPathFor(filter map[string]any) string {
	if d.RequiresParent() {
		parentID, ok := ParentID(filter, d.Parent.Param)
		if !ok {
			return PlaceholderPath
		}
		return d.Parent.ListPath(parentID)
	}

	if d.StatusListPath != nil {
		if status := filterString(filter, d.StatusParam); status != "" {
			return d.StatusListPath(status)
		}
	}

	if d.SearchPath != "" && d.usesSearch(filter) {
		return d.SearchPath
	}

	if d.ListPath != "" {
		return d.ListPath
	}
	return d.BasePath
}

// RecordPath — путь одиночной записи (чтение и обновление).
func (d *Descriptor) RecordPath(id string) string {
	escaped := url.PathEscape(id)
	if d.DetailPath != nil {
		return d.DetailPath(escaped)
	}
	return d.BasePath + "/" + escaped
}

// DeletePathFor — путь удаления записи.
func (d *Descriptor) DeletePathFor(id string) string {
	if d.DeletePath != nil {
		return d.DeletePath(url.PathEscape(id))
	}
	return d.RecordPath(id)
}

// RequiresParent — список ресурса требует родительский идентификатор.
func (d *Descriptor) RequiresParent() bool {
	return d.Parent != nil
}

// usesSearch — в фильтре есть хотя бы один поисковый ключ.
func (d *Descriptor) usesSearch(filter map[string]any) bool {
	for _, key := range d.SearchFilters {
		if !isEmptyValue(filter[key]) {
			return true
		}
	}
	return false
}

// pathEmbedded — фильтры, которые уже вошли в путь списка и не дублируются в query.
func (d *Descriptor) pathEmbedded(filter map[string]any) map[string]bool {
	embedded := map[string]bool{}
	if d.RequiresParent() {
		embedded[d.Parent.Param] = true
	}
	if d.StatusListPath != nil && filterString(filter, d.StatusParam) != "" {
		embedded[d.StatusParam] = true
	}
	return embedded
}

// ParentID извлекает положительный целый идентификатор родителя из фильтра.
// Принимает числа и строки с целым числом; 0, отрицательные, дробные
// и нечисловые значения считаются отсутствующими.
func ParentID(filter map[string]any, param string) (int64, bool) {
	if filter == nil {
		return 0, false
	}
	return PositiveInt(filter[param])
}

// PositiveInt приводит значение к положительному int64.
func PositiveInt(v any) (int64, bool) {
	var n int64
	switch val := v.(type) {
	case int:
		n = int64(val)
	case int32:
		n = int64(val)
	case int64:
		n = val
	case float64:
		if val != math.Trunc(val) || val > math.MaxInt64 {
			return 0, false
		}
		n = int64(val)
	case json.Number:
		parsed, err := strconv.ParseInt(val.String(), 10, 64)
		if err != nil {
			return 0, false
		}
		n = parsed
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0, false
		}
		n = parsed
	default:
		return 0, false
	}
	if n <= 0 {
		return 0, false
	}
	return n, true
}

// filterString возвращает строковое значение фильтра или "".
func filterString(filter map[string]any, key string) string {
	if filter == nil || key == "" {
		return ""
	}
	v, ok := filter[key]
	if !ok || isEmptyValue(v) {
		return ""
	}
	return formatValue(v)
}

// pathSegment экранирует значение для подстановки в путь.
func pathSegment(s string) string {
	return url.PathEscape(s)
}
