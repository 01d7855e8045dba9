package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter mantém um token bucket por chave e descarta chaves ociosas.
type RateLimiter struct {
	limit  rate.Limit
	burst  int
	maxAge time.Duration

	mu    sync.Mutex
	store map[string]*limiterEntry
}

type limiterEntry struct {
	limiter *rate.Limiter
	updated time.Time
}

// NewRateLimiter cria limiter por chave. reqPerSec <= 0 desativa o limite.
func NewRateLimiter(reqPerSec float64, burst int) *RateLimiter {
	limit := rate.Limit(reqPerSec)
	if reqPerSec <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:  limit,
		burst:  burst,
		maxAge: 10 * time.Minute,
		store:  make(map[string]*limiterEntry),
	}
}

// Allow consome um token da chave.
func (r *RateLimiter) Allow(key string) bool {
	return r.get(key).Allow()
}

func (r *RateLimiter) get(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if entry, ok := r.store[key]; ok {
		entry.updated = now
		return entry.limiter
	}

	for k, entry := range r.store {
		if now.Sub(entry.updated) > r.maxAge {
			delete(r.store, k)
		}
	}

	lim := rate.NewLimiter(r.limit, r.burst)
	r.store[key] = &limiterEntry{limiter: lim, updated: now}
	return lim
}

// LimitByKey aplica o limite à chave extraída da requisição.
func (r *RateLimiter) LimitByKey(next http.Handler, keyFunc func(*http.Request) (string, bool)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		key, ok := keyFunc(req)
		if !ok || key == "" {
			next.ServeHTTP(w, req)
			return
		}

		if !r.Allow(key) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "RATE_LIMIT", "Limite de requisições excedido")
			return
		}

		next.ServeHTTP(w, req)
	})
}

// IPRateLimit usa o IP do cliente como chave.
func IPRateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return limiter.LimitByKey(next, func(r *http.Request) (string, bool) {
			return realIPFromRequest(r), true
		})
	}
}

// UserRateLimit usa o usuário autenticado como chave.
func UserRateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return limiter.LimitByKey(next, func(r *http.Request) (string, bool) {
			subject := GetSubject(r.Context())
			return subject, subject != ""
		})
	}
}

func realIPFromRequest(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
