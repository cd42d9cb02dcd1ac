package handlers

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/northline-logistics/api/internal/platform/httpx"
	"github.com/northline-logistics/api/internal/platform/requestctx"
)

type rateLimiter interface {
	Allow(key string) bool
}

// keyedLimiter keeps one token bucket per caller. A bucket holds limit tokens and
// refills fully over window. State is per instance.
type keyedLimiter struct {
	every   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newKeyedLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &keyedLimiter{
		every:   rate.Limit(float64(limit) / window.Seconds()),
		burst:   limit,
		idleTTL: window,
		now:     clock,
		buckets: make(map[string]*bucket),
	}
}

func (l *keyedLimiter) Allow(key string) bool {
	if key = strings.TrimSpace(key); key == "" {
		key = "anonymous"
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		l.evictIdleLocked(now)
		b = &bucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// evictIdleLocked drops buckets untouched for a full window; they would be full again anyway.
func (l *keyedLimiter) evictIdleLocked(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.buckets, key)
		}
	}
}

// rateLimitMiddleware keys the limiter on the authenticated actor, falling back
// to the client address for anonymous callers.
func rateLimitMiddleware(limiter rateLimiter) func(http.Handler) http.Handler {
	if limiter == nil {
		return passThrough
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if actor, ok := requestctx.ActorFrom(r.Context()); ok && actor.ID != "" {
				key = actor.Kind + ":" + actor.ID
			}
			if !limiter.Allow(key) {
				requestctx.Logger(r.Context()).Info("rate limit exceeded")
				httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests, slow down", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
