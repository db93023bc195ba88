// Пакет errors — ответы с ошибками gateway в едином формате:
// {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок gateway.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotSupported    = "NOT_SUPPORTED"
	CodeRateLimited     = "RATE_LIMITED"
	CodeBackendError    = "BACKEND_ERROR"
	CodeInternalError   = "INTERNAL_ERROR"
)

// Body — тело ответа ошибки.
type Body struct {
	Error Detail `json:"error"`
}

// Detail — детали ошибки.
type Detail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// FailedIDs — id, на которых упала пакетная операция.
	FailedIDs []string `json:"failedIds,omitempty"`
	// RedirectTo — страница, на которую UI должен перейти.
	RedirectTo string `json:"redirectTo,omitempty"`
}

// WriteError записывает ответ ошибки.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	WriteDetail(w, statusCode, Detail{Code: code, Message: message})
}

// WriteDetail записывает ответ ошибки с дополнительными полями.
func WriteDetail(w http.ResponseWriter, statusCode int, detail Detail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(Body{Error: detail})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется вход.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteDetail(w, http.StatusUnauthorized, Detail{
		Code:       CodeUnauthorized,
		Message:    message,
		RedirectTo: "/login",
	})
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// NotSupported — 501 операция не поддерживается ресурсом.
func NotSupported(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotImplemented, CodeNotSupported, message)
}

// RateLimited — 429 слишком много попыток.
func RateLimited(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, CodeRateLimited, message)
}

// BackendError — 502 backend вернул ошибку или недоступен.
func BackendError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeBackendError, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
