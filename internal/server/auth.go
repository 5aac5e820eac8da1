// Package server exposes the processing pipeline over HTTP: auth, per-key
// rate limiting, and the process/leads/health endpoints.
package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/Harshalzarikar/Beaver-agent/internal/requestctx"
)

// AuthMiddleware validates X-Beaver-Key or Authorization: Bearer <key> and
// stores the resolved client name in the request context. apiKeys maps
// key -> client name. Key comparison is constant time.
func AuthMiddleware(apiKeys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-Beaver-Key")
			if key == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					key = strings.TrimPrefix(auth, "Bearer ")
				}
			}
			if key == "" {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid or missing API key")
				return
			}
			var client string
			for k, name := range apiKeys {
				if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
					client = name
					break
				}
			}
			if client == "" {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid or missing API key")
				return
			}
			r = r.WithContext(requestctx.SetClientID(r.Context(), client))
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimiters hands out one token bucket per client name.
type rateLimiters struct {
	mu        sync.Mutex
	perMinute int
	buckets   map[string]*rate.Limiter
}

func newRateLimiters(perMinute int) *rateLimiters {
	return &rateLimiters{
		perMinute: perMinute,
		buckets:   make(map[string]*rate.Limiter),
	}
}

func (rl *rateLimiters) limiter(client string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.buckets[client]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(rl.perMinute)/60.0), rl.perMinute*2)
		rl.buckets[client] = l
	}
	return l
}

// RateLimitMiddleware enforces a per-client token bucket. perMinute <= 0
// disables limiting.
func RateLimitMiddleware(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiters := newRateLimiters(perMinute)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := requestctx.ClientID(r.Context())
			if client == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !limiters.limiter(client).Allow() {
				w.Header().Set("Retry-After", "6")
				writeError(w, r, http.StatusTooManyRequests, "rate_limit_exceeded", "request rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ParseAPIKeys turns a comma-separated "key" or "key:name" list into the
// key -> client name map AuthMiddleware wants. Unnamed keys get "default".
func ParseAPIKeys(raw string) map[string]string {
	keys := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if k, name, found := strings.Cut(entry, ":"); found && name != "" {
			keys[k] = name
		} else {
			keys[entry] = "default"
		}
	}
	return keys
}
