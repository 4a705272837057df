package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/logger"
)

const limiterIdleTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per client address. Buckets idle
// for longer than limiterIdleTTL are swept on the next request after the
// sweep interval.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter allows rps sustained requests per client with bursts of up
// to burst. A burst below one is raised to one.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		clients:   make(map[string]*clientLimiter),
		limit:     rate.Limit(rps),
		burst:     burst,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// Allow consumes a token from key's bucket.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	now := rl.now()
	if now.Sub(rl.lastSweep) > limiterIdleTTL {
		for k, c := range rl.clients {
			if now.Sub(c.lastSeen) > limiterIdleTTL {
				delete(rl.clients, k)
			}
		}
		rl.lastSweep = now
	}
	c, ok := rl.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = c
	}
	c.lastSeen = now
	rl.mu.Unlock()
	return c.limiter.AllowN(now, 1)
}

// Clients returns the number of tracked buckets.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// RateLimit rejects requests over the client's budget with 429. Health
// probes are never limited, and a nil limiter disables the middleware.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rl == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}
			key := clientKey(r)
			if !rl.Allow(key) {
				logger.FromContext(r.Context()).Warn("rate limit exceeded", "client", key, "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey prefers the first X-Forwarded-For hop over the socket address.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
