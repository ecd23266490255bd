package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/streamsafe/backend/internal/logging"
)

// RateLimiter controls how frequently a caller may perform an action.
type RateLimiter interface {
	Allow(key string) bool
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter tracks a token bucket per key, typically a client IP.
type IPRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
}

// NewIPRateLimiter allows up to requests events per window per key with an
// additional burst. Idle keys are forgotten after ttl.
func NewIPRateLimiter(requests int, window time.Duration, burst int, ttl time.Duration) *IPRateLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Second
	}
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(window / time.Duration(requests)),
		burst:    burst,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Allow reports whether key may proceed now.
func (l *IPRateLimiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.visitors, k)
		}
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// RateLimit rejects callers that exceed limiter with 429. scope separates
// buckets of different route groups.
func RateLimit(limiter RateLimiter, scope string, proxies TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := proxies.ClientIP(r)
			if scope != "" {
				key = scope + ":" + key
			}
			if !limiter.Allow(key) {
				logging.FromContext(r.Context()).Warn("rate limit exceeded", "scope", scope)
				w.Header().Set("Retry-After", "60")
				writeMessage(w, http.StatusTooManyRequests, "Too many requests, please try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TrustedProxies lists the peer networks whose X-Forwarded-For header is believed.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies accepts CIDR ranges and bare addresses.
func ParseTrustedProxies(values []string) (TrustedProxies, error) {
	proxies := make(TrustedProxies, 0, len(values))
	for _, raw := range values {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		if strings.Contains(value, "/") {
			prefix, err := netip.ParsePrefix(value)
			if err != nil {
				return nil, fmt.Errorf("parse trusted proxy %q: %w", value, err)
			}
			proxies = append(proxies, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(value)
		if err != nil {
			return nil, fmt.Errorf("parse trusted proxy %q: %w", value, err)
		}
		proxies = append(proxies, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return proxies, nil
}

func (t TrustedProxies) trusts(host string) bool {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range t {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the peer host. The first X-Forwarded-For hop replaces it
// only when the peer is a trusted proxy.
func (t TrustedProxies) ClientIP(r *http.Request) string {
	peer := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(peer); err == nil && host != "" {
		peer = host
	}

	if !t.trusts(peer) {
		return peer
	}
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return peer
}
