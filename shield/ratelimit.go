package shield

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig defines a fixed-window per-IP limit.
type RateLimitConfig struct {
	MaxRequests   int
	WindowSeconds int
}

// DefaultRateLimit allows 60 requests per minute per IP. Audits are
// expensive; anything chattier than polling is abuse.
func DefaultRateLimit() RateLimitConfig {
	return RateLimitConfig{MaxRequests: 60, WindowSeconds: 60}
}

type bucket struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// RateLimiter provides per-IP fixed-window rate limiting with in-memory
// buckets. Expired buckets are garbage collected by StartGC.
type RateLimiter struct {
	cfg     RateLimitConfig
	buckets sync.Map
	exclude []string // path prefixes excluded from limiting
}

// NewRateLimiter creates a limiter with the given config. Paths matching
// any of excludePrefixes bypass it.
func NewRateLimiter(cfg RateLimitConfig, excludePrefixes ...string) *RateLimiter {
	return &RateLimiter{cfg: cfg, exclude: excludePrefixes}
}

// StartGC launches a goroutine that drops expired buckets every 5
// minutes until done is closed.
func (rl *RateLimiter) StartGC(done <-chan struct{}) {
	tick := time.NewTicker(5 * time.Minute)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				rl.gc()
			}
		}
	}()
}

func (rl *RateLimiter) gc() {
	now := time.Now()
	rl.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		expired := now.After(b.resetAt)
		b.mu.Unlock()
		if expired {
			rl.buckets.Delete(key)
		}
		return true
	})
}

func (rl *RateLimiter) allow(ip string) bool {
	if rl.cfg.MaxRequests <= 0 {
		return true
	}
	now := time.Now()
	val, _ := rl.buckets.LoadOrStore(ip, &bucket{})
	b := val.(*bucket)
	b.mu.Lock()
	defer b.mu.Unlock()
	if now.After(b.resetAt) {
		b.count = 0
		b.resetAt = now.Add(time.Duration(rl.cfg.WindowSeconds) * time.Second)
	}
	b.count++
	return b.count <= rl.cfg.MaxRequests
}

// Middleware enforces the limit, answering 429 with a JSON body when an
// IP exhausts its window.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range rl.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !rl.allow(ip) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
