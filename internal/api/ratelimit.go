package api

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientRateLimiter keeps one token bucket per client address.
type clientRateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientBucket
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	trusted   []netip.Prefix
	now       func() time.Time
}

type clientBucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// newClientRateLimiter allows perMinute requests per client with the given burst.
// A non-positive perMinute disables limiting. X-Forwarded-For is read only when
// the socket peer falls inside one of trusted.
func newClientRateLimiter(perMinute, burst int, trusted []netip.Prefix) *clientRateLimiter {
	if perMinute <= 0 {
		return &clientRateLimiter{limit: rate.Inf, trusted: trusted, now: time.Now}
	}
	if burst <= 0 {
		burst = 1
	}
	interval := time.Minute / time.Duration(perMinute)
	// A bucket untouched for this long has refilled, so dropping it changes nothing.
	idle := interval * time.Duration(burst)
	if idle < time.Minute {
		idle = time.Minute
	}
	return &clientRateLimiter{
		clients: make(map[string]*clientBucket),
		limit:   rate.Every(interval),
		burst:   burst,
		idle:    idle,
		trusted: trusted,
		now:     time.Now,
	}
}

func (l *clientRateLimiter) allow(client string) bool {
	if l.limit == rate.Inf {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) >= l.idle {
		for key, bucket := range l.clients {
			if now.Sub(bucket.seen) >= l.idle {
				delete(l.clients, key)
			}
		}
		l.lastSweep = now
	}
	bucket, ok := l.clients[client]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = bucket
	}
	bucket.seen = now
	return bucket.limiter.AllowN(now, 1)
}

func (l *clientRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *clientRateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientAddress(r, l.trusted)) {
			w.Header().Set("Retry-After", "60")
			writeError(r.Context(), w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", true, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientAddress returns the socket peer, unless the peer is a trusted proxy.
// Then X-Forwarded-For is walked from the right and the first hop that is not
// itself a trusted proxy wins.
func clientAddress(r *http.Request, trusted []netip.Prefix) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil || !isTrusted(peer, trusted) {
		return host
	}

	var hops []string
	for _, value := range r.Header.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(value, ",")...)
	}
	client := host
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}
		client = hop.Unmap().String()
		if !isTrusted(hop, trusted) {
			break
		}
	}
	return client
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	addr = addr.Unmap()
	for _, prefix := range trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
