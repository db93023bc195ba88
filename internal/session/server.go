// server.go — хранение состояния сессии на стороне gateway.
// Клиент получает только непрозрачный идентификатор в cookie;
// состояние лежит в LRU-таблице с TTL (hashicorp/golang-lru/v2/expirable).
// Таблица локальна для экземпляра: при нескольких репликах нужен sticky routing.
package session

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SessionIDCookieName — имя cookie с идентификатором серверной сессии.
const SessionIDCookieName = "wa_sid"

// Prometheus-метрики серверных сессий.
var (
	serverSessionHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wa_session_hits_total",
		Help: "Количество запросов с найденной серверной сессией.",
	})
	serverSessionMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wa_session_misses_total",
		Help: "Количество запросов с неизвестным или истёкшим идентификатором сессии.",
	})
)

// ServerBackend — серверная таблица сессий.
type ServerBackend struct {
	sessions *expirable.LRU[string, map[string]string]
	secure   bool
	ttl      time.Duration
	logger   *slog.Logger
}

// NewServerBackend создаёт таблицу на capacity сессий с временем жизни ttl.
func NewServerBackend(capacity int, ttl time.Duration, secure bool, logger *slog.Logger) *ServerBackend {
	return &ServerBackend{
		sessions: expirable.NewLRU[string, map[string]string](capacity, nil, ttl),
		secure:   secure,
		ttl:      ttl,
		logger:   logger.With(slog.String("component", "session_server")),
	}
}

// Load возвращает копию состояния сессии из таблицы.
func (b *ServerBackend) Load(r *http.Request) *MapStorage {
	sid := sessionID(r)
	if sid == "" {
		return NewMapStorage(nil)
	}
	values, ok := b.sessions.Get(sid)
	if !ok {
		serverSessionMissesTotal.Inc()
		return NewMapStorage(nil)
	}
	serverSessionHitsTotal.Inc()
	return NewMapStorage(values)
}

// Commit сохраняет изменённое состояние. При входе (смене access token)
// выдаётся новый идентификатор, старая запись удаляется.
func (b *ServerBackend) Commit(w http.ResponseWriter, r *http.Request, st *MapStorage) error {
	if !st.Dirty() {
		return nil
	}

	sid := sessionID(r)
	if st.Len() == 0 {
		if sid != "" {
			b.sessions.Remove(sid)
		}
		b.setCookie(w, "", -1)
		return nil
	}

	values := st.Snapshot()
	if sid != "" {
		if prev, ok := b.sessions.Peek(sid); !ok || prev[KeyToken] != values[KeyToken] {
			b.sessions.Remove(sid)
			sid = ""
		}
	}
	if sid == "" {
		sid = uuid.NewString()
	}
	b.sessions.Add(sid, values)
	b.setCookie(w, sid, int(b.ttl.Seconds()))
	return nil
}

// Len — количество живых сессий.
func (b *ServerBackend) Len() int {
	return b.sessions.Len()
}

func (b *ServerBackend) setCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionIDCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   b.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func sessionID(r *http.Request) string {
	cookie, err := r.Cookie(SessionIDCookieName)
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(cookie.Value); err != nil {
		return ""
	}
	return cookie.Value
}
