package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

// RateLimiter ограничивает частоту запросов с одного IP по алгоритму token bucket.
// Применяется к эндпоинтам регистрации и входа.
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientLimiter
	limit    rate.Limit
	burst    int
	lifetime time.Duration
}

// NewRateLimiter создаёт ограничитель с указанным числом запросов в минуту на IP.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute < 1 {
		perMinute = 1
	}

	burst := perMinute / 2
	if burst < 1 {
		burst = 1
	}

	return &RateLimiter{
		clients:  map[string]*clientLimiter{},
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
		lifetime: 5 * time.Minute,
	}
}

// Middleware отклоняет запрос со статусом 429, если лимит для IP исчерпан.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if !rl.allow(ip) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cleanupLocked()

	c, ok := rl.clients[ip]
	if !ok {
		c = &clientLimiter{
			limiter: rate.NewLimiter(rl.limit, rl.burst),
		}
		rl.clients[ip] = c
	}
	c.expires = time.Now().Add(rl.lifetime)

	return c.limiter.Allow()
}

func (rl *RateLimiter) cleanupLocked() {
	now := time.Now()
	for ip, c := range rl.clients {
		if now.After(c.expires) {
			delete(rl.clients, ip)
		}
	}
}
