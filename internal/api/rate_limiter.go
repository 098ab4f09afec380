package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/kol-dashboard/internal/errors"
)

const (
	defaultRequestsPerSecond = 20
	defaultBurst             = 40
	limiterIdleTTL           = 10 * time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter manages per-client rate limiting for API requests
type RateLimiter struct {
	limiters map[string]*clientLimiter
	mu       sync.Mutex

	limit     rate.Limit
	burstSize int
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter creates a new rate limiter. Non-positive values fall back to
// the defaults.
func NewRateLimiter(requestsPerSecond, burst int) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = defaultRequestsPerSecond
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	return &RateLimiter{
		limiters:  make(map[string]*clientLimiter),
		limit:     rate.Limit(requestsPerSecond),
		burstSize: burst,
		now:       time.Now,
	}
}

// getLimiter returns the rate limiter for a client key
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > limiterIdleTTL {
		for k, cl := range rl.limiters {
			if now.Sub(cl.lastSeen) > limiterIdleTTL {
				delete(rl.limiters, k)
			}
		}
		rl.lastSweep = now
	}

	cl, exists := rl.limiters[key]
	if !exists {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burstSize)}
		rl.limiters[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

// clientKey identifies the caller by the first X-Forwarded-For hop, falling
// back to the remote host
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware creates a middleware that enforces rate limiting
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Health checks are never throttled
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			limiter := rl.getLimiter(clientKey(r))
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				limitErr := apperrors.NewRateLimitError(1)
				limitErr.Details["limit"] = float64(limiter.Limit())
				limitErr.Details["burst"] = limiter.Burst()
				respondServiceError(w, limitErr)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
