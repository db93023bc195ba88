// auth.go — обработчики /api/v1/auth endpoints.
//
//	POST /api/v1/auth/login        — вход администратора
//	POST /api/v1/auth/logout       — выход
//	GET  /api/v1/auth/check        — 204, если сессия действительна
//	GET  /api/v1/auth/identity     — данные администратора
//	GET  /api/v1/auth/permissions  — роль
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	apierrors "github.com/bigkaa/wonbawon-admin/internal/api/errors"
	"github.com/bigkaa/wonbawon-admin/internal/apiclient"
	"github.com/bigkaa/wonbawon-admin/internal/authprovider"
)

// AuthHandler — обработчик endpoints аутентификации.
type AuthHandler struct {
	auth   Auth
	logger *slog.Logger
}

// NewAuthHandler создаёт обработчик аутентификации.
func NewAuthHandler(auth Auth, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   auth,
		logger: logger.With(slog.String("component", "auth_handler")),
	}
}

// permissionsResponse — ответ GET /permissions.
type permissionsResponse struct {
	Role string `json:"role"`
}

// Login — POST /api/v1/auth/login {username, password}.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds authprovider.Credentials
	if err := decodeBody(r, &creds); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	if _, err := h.auth.Login(r.Context(), creds); err != nil {
		h.writeLoginError(w, err)
		return
	}

	identity, err := h.auth.GetIdentity(r.Context())
	if err != nil {
		apierrors.InternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: identity})
}

// writeLoginError выбирает статус ответа для отказа входа.
// Сообщение отказа показывается пользователю как есть.
func (h *AuthHandler) writeLoginError(w http.ResponseWriter, err error) {
	var (
		validationErrs validation.Errors
		apiErr         *apiclient.APIError
	)
	switch {
	case errors.As(err, &validationErrs):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, authprovider.ErrNotAdmin):
		apierrors.Forbidden(w, err.Error())
	case errors.Is(err, apiclient.ErrNetwork), errors.Is(err, apiclient.ErrTimeout):
		apierrors.BackendError(w, err.Error())
	case errors.As(err, &apiErr) && apiErr.IsServerError():
		apierrors.BackendError(w, err.Error())
	default:
		apierrors.WriteError(w, http.StatusUnauthorized, apierrors.CodeUnauthorized, err.Error())
	}
}

// Logout — POST /api/v1/auth/logout. Повторный вызов безопасен.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	_ = h.auth.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// Check — GET /api/v1/auth/check.
func (h *AuthHandler) Check(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.CheckAuth(r.Context()); err != nil {
		apierrors.Unauthorized(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Identity — GET /api/v1/auth/identity.
func (h *AuthHandler) Identity(w http.ResponseWriter, r *http.Request) {
	identity, err := h.auth.GetIdentity(r.Context())
	if err != nil {
		apierrors.Unauthorized(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

// Permissions — GET /api/v1/auth/permissions.
func (h *AuthHandler) Permissions(w http.ResponseWriter, r *http.Request) {
	role, err := h.auth.GetPermissions(r.Context())
	if err != nil {
		apierrors.Unauthorized(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, permissionsResponse{Role: role})
}
