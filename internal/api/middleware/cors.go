package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS разрешает admin UI с указанных origins обращаться к gateway с cookies.
// Без origins CORS не включается: UI обслуживается с того же origin.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	handler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Total-Count"},
		MaxAge:           3600,
		AllowCredentials: true,
	})

	return handler.Handler
}
