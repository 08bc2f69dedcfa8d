package middleware

import (
	"math"
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/zatekoja/propertysearch/backend/internal/api/handlers"
	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/pkg/config"
	apperrors "github.com/zatekoja/propertysearch/backend/pkg/errors"
)

// RateLimiter keeps one token bucket per caller. Idle callers are evicted
// least recently used first.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	clients *lru.Cache[string, *rate.Limiter]
	now     func() time.Time
}

// NewRateLimiter creates a limiter from config
func NewRateLimiter(cfg config.RateLimitConfig) (*RateLimiter, error) {
	size := cfg.MaxClients
	if size <= 0 {
		size = 10000
	}
	clients, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		return nil, err
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(math.Ceil(cfg.RequestsPerSecond))
	}
	return &RateLimiter{
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   burst,
		clients: clients,
		now:     time.Now,
	}, nil
}

func (l *RateLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.clients.Get(key); ok {
		return lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.clients.Add(key, lim)
	return lim
}

// Allow reports whether the caller may proceed, and otherwise how long to wait
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	now := l.now()
	r := l.limiter(key).ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	delay := r.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	r.CancelAt(now)
	return false, delay
}

// Middleware rejects callers over their budget with 429
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		key := entities.IdentityFromContext(r.Context()).Key()
		if ok, wait := l.Allow(key); !ok {
			handlers.RespondWithError(w, r, apperrors.NewRateLimitedError(wait))
			return
		}
		next.ServeHTTP(w, r)
	})
}
