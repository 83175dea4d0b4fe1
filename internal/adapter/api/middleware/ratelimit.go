package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/user/conversion-relay/internal/adapter/identity"
	"github.com/user/conversion-relay/internal/adapter/metrics"
)

// limiterIdleTTL is how long a client entry survives without traffic before
// a sweep reclaims it. IPs churn constantly behind mobile carriers, so the
// table must not grow with every address ever seen.
const limiterIdleTTL = 3 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterPool holds one token bucket per client IP and sweeps idle entries
// at most once per TTL window.
type limiterPool struct {
	mu        sync.Mutex
	rps       rate.Limit
	burst     int
	idleTTL   time.Duration
	now       func() time.Time
	clients   map[string]*clientLimiter
	nextSweep time.Time
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	return &limiterPool{
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: limiterIdleTTL,
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
	}
}

func (p *limiterPool) allow(ip string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if now.After(p.nextSweep) {
		for key, c := range p.clients {
			if now.Sub(c.lastSeen) > p.idleTTL {
				delete(p.clients, key)
			}
		}
		p.nextSweep = now.Add(p.idleTTL)
	}

	c, ok := p.clients[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(p.rps, p.burst)}
		p.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

func (p *limiterPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// RateLimit is a middleware factory that enforces a per-client token bucket.
// Clients are keyed by resolved IP so a single noisy storefront visitor
// cannot starve the relay for everyone behind the same load balancer.
func RateLimit(rps float64, burst int, resolver *identity.Resolver, m *metrics.RelayMetrics) func(http.Handler) http.Handler {
	pool := newLimiterPool(rps, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolver.ResolveClientIP(r)
			if !pool.allow(ip) {
				if m != nil {
					m.RateLimited.Inc()
				}
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
