package middleware

import (
	"net/http"
	"sync"
	"time"

	"labreserve/pkg/logger"
)

// RequesterRateLimiter is a token bucket per authenticated requester id. It is
// constructed and injected explicitly so the core stays testable; nothing in
// this package keeps process-global mutable state.
type RequesterRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   int
	window  time.Duration
	log     *logger.Logger
	stopCh  chan struct{}
}

type bucket struct {
	tokens   float64
	lastFill time.Time
}

func NewRequesterRateLimiter(limit int, window time.Duration, log *logger.Logger) *RequesterRateLimiter {
	rl := &RequesterRateLimiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		window:  window,
		log:     log,
		stopCh:  make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

func (rl *RequesterRateLimiter) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			for id, b := range rl.buckets {
				if time.Since(b.lastFill) > 2*rl.window {
					delete(rl.buckets, id)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RequesterRateLimiter) Stop() {
	close(rl.stopCh)
}

// Allow consumes one token for the requester, refilling at limit/window.
func (rl *RequesterRateLimiter) Allow(requesterID string) bool {
	if requesterID == "" {
		return true
	}

	now := time.Now()
	refillRate := float64(rl.limit) / rl.window.Seconds()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[requesterID]
	if !ok {
		b = &bucket{tokens: float64(rl.limit), lastFill: now}
		rl.buckets[requesterID] = b
	} else {
		b.tokens = min(float64(rl.limit), b.tokens+now.Sub(b.lastFill).Seconds()*refillRate)
		b.lastFill = now
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func RequesterRateLimit(limiter *RequesterRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requesterID := r.Header.Get("X-Requester-Id")
			if requesterID == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !limiter.Allow(requesterID) {
				limiter.log.Warn("Request rate limited",
					"request_id", RequestID(r.Context()),
					"requester_id", requesterID,
					"method", r.Method,
					"path", r.URL.Path,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"Too many requests"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
