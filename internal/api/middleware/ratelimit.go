// ratelimit.go — ограничение частоты попыток входа по IP клиента.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apierrors "github.com/bigkaa/wonbawon-admin/internal/api/errors"
)

const (
	// limiterGCThreshold — при таком числе клиентов удаляются давно неактивные.
	limiterGCThreshold = 1000
	limiterIdleTTL     = 10 * time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter — token bucket на каждый IP клиента.
type RateLimiter struct {
	perMinute int
	proxies   *TrustedProxies
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	now       func() time.Time
}

// NewRateLimiter создаёт ограничитель perMinute запросов в минуту на IP.
// perMinute <= 0 — 10 в минуту. proxies == nil — ключ только адрес соединения.
func NewRateLimiter(perMinute int, proxies *TrustedProxies) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	return &RateLimiter{
		perMinute: perMinute,
		proxies:   proxies,
		clients:   map[string]*clientLimiter{},
		now:       time.Now,
	}
}

// Handler возвращает middleware, отвечающий 429 при превышении лимита.
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(l.proxies.ClientIP(r)) {
			w.Header().Set("Retry-After", "60")
			apierrors.RateLimited(w, "로그인 시도가 너무 많습니다. 잠시 후 다시 시도해주세요.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) allow(clientIP string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.clients[clientIP]
	if !ok {
		c = &clientLimiter{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute),
		}
		l.clients[clientIP] = c
	}
	c.lastSeen = now
	l.gcLocked(now)

	return c.limiter.AllowN(now, 1)
}

func (l *RateLimiter) gcLocked(now time.Time) {
	if len(l.clients) < limiterGCThreshold {
		return
	}
	cutoff := now.Add(-limiterIdleTTL)
	for ip, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
		}
	}
}
