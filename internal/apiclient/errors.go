package apiclient

import (
	"errors"
	"fmt"
)

// Транспортные ошибки. Оборачиваются через %w, проверяются errors.Is.
var (
	// ErrTimeout — попытка не уложилась в таймаут запроса.
	ErrTimeout = errors.New("превышено время ожидания ответа backend")
	// ErrNetwork — backend недоступен (DNS, соединение, обрыв чтения тела).
	ErrNetwork = errors.New("backend недоступен")
)

// APIError — backend ответил статусом вне диапазона 2xx.
// Body содержит декодированное JSON-тело ответа или nil, если тело не JSON.
type APIError struct {
	Status     int
	StatusText string
	Body       any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API Error: %d %s", e.Status, e.StatusText)
}

// IsClientError — статус 4xx. Такие ошибки не повторяются.
func (e *APIError) IsClientError() bool {
	return e.Status >= 400 && e.Status < 500
}

// IsServerError — статус 5xx.
func (e *APIError) IsServerError() bool {
	return e.Status >= 500
}

// Message возвращает поле "message" из тела ошибки, если оно есть.
func (e *APIError) Message() string {
	body, ok := e.Body.(map[string]any)
	if !ok {
		return ""
	}
	msg, _ := body["message"].(string)
	return msg
}

// StatusOf возвращает HTTP-статус из цепочки ошибок или 0,
// если в цепочке нет *APIError.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
