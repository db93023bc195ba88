// session.go — хранилище сессии запроса.
// Загружает состояние аутентификации до обработчика и сохраняет его
// (cookie или серверная таблица) перед первой записью заголовков ответа.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/bigkaa/wonbawon-admin/internal/session"
)

// sessionWriter сохраняет сессию перед отправкой заголовков:
// после WriteHeader Set-Cookie уже не добавить.
type sessionWriter struct {
	http.ResponseWriter
	commit    func()
	committed bool
}

func (sw *sessionWriter) commitOnce() {
	if sw.committed {
		return
	}
	sw.committed = true
	sw.commit()
}

func (sw *sessionWriter) WriteHeader(code int) {
	sw.commitOnce()
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *sessionWriter) Write(b []byte) (int, error) {
	sw.commitOnce()
	return sw.ResponseWriter.Write(b)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (sw *sessionWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// Session возвращает middleware, привязывающий хранилище сессии к контексту запроса.
func Session(backend session.Backend, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "session_middleware"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := backend.Load(r)
			sw := &sessionWriter{ResponseWriter: w}
			sw.commit = func() {
				if err := backend.Commit(w, r, st); err != nil {
					logger.Error("Ошибка сохранения сессии",
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()),
					)
				}
			}

			next.ServeHTTP(sw, r.WithContext(session.WithStorage(r.Context(), st)))
			sw.commitOnce()
		})
	}
}
