package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// limiterIdle is how long an unused client limiter is kept.
const limiterIdle = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	bucket    map[string]*clientLimiter
	rate      rate.Limit
	burstSize int
	mu        sync.Mutex
	now       func() time.Time
	log       *logrus.Entry
}

// NewRateLimiter allows reqRate requests per second per client with bursts
// of burstSize.
func NewRateLimiter(reqRate float64, burstSize int, log *logrus.Entry) *RateLimiter {
	return &RateLimiter{
		bucket:    make(map[string]*clientLimiter),
		rate:      rate.Limit(reqRate),
		burstSize: max(burstSize, 1),
		now:       time.Now,
		log:       log,
	}
}

// limiterFor returns the limiter of ip and drops idle ones.
func (l *RateLimiter) limiterFor(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, c := range l.bucket {
		if now.Sub(c.lastSeen) > limiterIdle {
			delete(l.bucket, k)
		}
	}

	c, ok := l.bucket[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.rate, l.burstSize)}
		l.bucket[ip] = c
	}
	c.lastSeen = now
	return c.limiter
}

// Handler rejects requests over the limit with 429.
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !l.limiterFor(ip).AllowN(l.now(), 1) {
			l.log.WithField("ip", ip).Warn("too many requests")
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
