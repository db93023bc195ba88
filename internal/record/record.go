// Пакет record — записи backend в виде JSON-объектов, разворачивание
// конвертов ответов и нормализация канонического поля id.
package record

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Record — запись ресурса (декодированный JSON-объект).
type Record map[string]any

// ID возвращает канонический идентификатор записи строкой или "".
func (r Record) ID() string {
	return IDString(r["id"])
}

// Clone возвращает поверхностную копию записи.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge накладывает override поверх base; при совпадении ключей побеждает override.
func Merge(base, override map[string]any) Record {
	out := make(Record, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// IDString приводит значение идентификатора к строке.
// nil и пустая строка дают "".
func IDString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprint(val)
	}
}

// IDValue — значение id для записи: числовые строки хранятся как json.Number,
// чтобы сериализоваться числом, как у backend.
func IDValue(id string) any {
	if _, err := strconv.ParseInt(id, 10, 64); err == nil {
		return json.Number(id)
	}
	return id
}

// UnwrapList разворачивает ответ списка.
// Поддерживаются {data: {...}}, {content: [...], totalElements} и голый массив.
// Если totalElements нет — total равен количеству элементов.
func UnwrapList(v any) ([]Record, int) {
	if obj, ok := v.(map[string]any); ok {
		if inner, ok := obj["data"]; ok {
			switch inner.(type) {
			case map[string]any, []any:
				v = inner
			}
		}
	}

	var raw []any
	total := -1
	switch val := v.(type) {
	case []any:
		raw = val
	case map[string]any:
		if content, ok := val["content"].([]any); ok {
			raw = content
		}
		if n, ok := toInt(val["totalElements"]); ok {
			total = n
		}
	}

	items := make([]Record, 0, len(raw))
	for _, item := range raw {
		if obj, ok := item.(map[string]any); ok {
			items = append(items, Record(obj))
		}
	}
	if total < 0 {
		total = len(items)
	}
	return items, total
}

// UnwrapOne разворачивает ответ одиночной записи ({success, data} или голый объект).
// Не-объект превращается в пустую запись.
func UnwrapOne(v any) Record {
	obj, ok := v.(map[string]any)
	if !ok {
		return Record{}
	}
	if inner, ok := obj["data"].(map[string]any); ok {
		return Record(inner)
	}
	return Record(obj)
}

func toInt(v any) (int, bool) {
	switch val := v.(type) {
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case float64:
		return int(val), true
	case int:
		return val, true
	default:
		return 0, false
	}
}
