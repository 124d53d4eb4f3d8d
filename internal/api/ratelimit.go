package api

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/wonny/aegis/v13/timeline/pkg/logger"
	"github.com/wonny/aegis/v13/timeline/pkg/redis"
)

// ClientLimiter limits requests per client. With redis enabled the sliding
// window is shared across instances; the local token bucket always applies.
type ClientLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	shared *redis.RateLimiter
	logger *logger.Logger
}

// NewClientLimiter creates a limiter; rps <= 0 disables limiting
func NewClientLimiter(rps float64, burst int, shared *redis.RateLimiter, log *logger.Logger) *ClientLimiter {
	if log == nil {
		log = logger.NewNop()
	}
	if burst < 1 {
		burst = 1
	}
	return &ClientLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
		shared:   shared,
		logger:   log,
	}
}

func (l *ClientLimiter) limiter(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[client]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[client] = lim
	}
	return lim
}

// Allow reports whether the client may proceed
func (l *ClientLimiter) Allow(r *http.Request) bool {
	if l == nil || l.rps <= 0 {
		return true
	}
	client := clientKey(r)
	if !l.limiter(client).Allow() {
		return false
	}

	if l.shared != nil && l.shared.Enabled() {
		ok, _, err := l.shared.Allow(r.Context(), redis.RateLimitConfig{
			Key:    "api:" + client,
			Limit:  l.burst,
			Window: windowFor(l.rps, l.burst),
		})
		if err != nil {
			// redis 장애 시 로컬 리밋만 적용
			l.logger.WithError(err).Warn("shared rate limiter unavailable")
			return true
		}
		return ok
	}
	return true
}

func clientKey(r *http.Request) string {
	if id := r.Header.Get("X-Client-ID"); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
