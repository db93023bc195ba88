// auth.go — защита маршрутов admin API.
// Пропускает запрос, только если в сессии есть вошедший администратор
// (флаг входа, access token и сессия с ролью ADMIN). Просроченный
// access token обновляется провайдером аутентификации.
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/wonbawon-admin/internal/api/errors"
)

// AuthChecker — проверка сессии (authprovider.Provider).
type AuthChecker interface {
	CheckAuth(ctx context.Context) error
}

// RequireAuth возвращает middleware, отвечающий 401 без действительной сессии.
// Должен стоять после Session.
func RequireAuth(checker AuthChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "auth_middleware"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := checker.CheckAuth(r.Context()); err != nil {
				logger.Debug("Запрос без действительной сессии",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				apierrors.Unauthorized(w, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
