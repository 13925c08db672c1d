package middleware

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdle    = 10 * time.Minute
	limiterCleanup = 5 * time.Minute
)

type limiterInfo struct {
	limiter      *rate.Limiter
	lastAccessed time.Time
}

// RateLimiter limits requests per client IP.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterInfo
	limit    rate.Limit
	burst    int
	trusted  []netip.Prefix
}

// NewRateLimiter allows perSecond requests per client with bursts of burst.
// Forwarding headers are only read from peers inside trusted. Idle entries
// are dropped until ctx ends.
func NewRateLimiter(ctx context.Context, perSecond float64, burst int, trusted []netip.Prefix) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*limiterInfo),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		trusted:  trusted,
	}
	go rl.cleanupStaleEntries(ctx)
	return rl
}

func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	info, ok := rl.limiters[ip]
	if !ok {
		info = &limiterInfo{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[ip] = info
	}
	info.lastAccessed = time.Now()
	return info.limiter
}

func (rl *RateLimiter) cleanupStaleEntries(ctx context.Context) {
	ticker := time.NewTicker(limiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip, info := range rl.limiters {
				if time.Since(info.lastAccessed) > limiterIdle {
					delete(rl.limiters, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Limit rejects requests over the client's budget with 429.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.getLimiter(clientIP(r, rl.trusted)).Allow() {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the peer address of r. When the peer is a trusted proxy
// the address it reports is used instead: X-Real-IP, or the right-most
// untrusted hop of X-Forwarded-For.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !isTrusted(host, trusted) {
		return host
	}

	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		hops := strings.Split(fwd, ",")
		for _, hop := range slices.Backward(hops) {
			hop = strings.TrimSpace(hop)
			if hop != "" && !isTrusted(hop, trusted) {
				return hop
			}
		}
	}
	return host
}

func isTrusted(host string, trusted []netip.Prefix) bool {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return slices.ContainsFunc(trusted, func(p netip.Prefix) bool { return p.Contains(addr) })
}
