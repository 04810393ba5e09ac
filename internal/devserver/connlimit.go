package devserver

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/lawnchairsociety/minechat/internal/config"
)

// ConnLimiter caps concurrent connections per address and in total.
// A zero limit is unlimited.
type ConnLimiter struct {
	maxPerIP int
	maxTotal int

	mu    sync.Mutex
	perIP map[string]int
	total int
}

func NewConnLimiter(cfg config.ConnectionsConfig) *ConnLimiter {
	return &ConnLimiter{
		maxPerIP: cfg.MaxPerIP,
		maxTotal: cfg.MaxTotal,
		perIP:    make(map[string]int),
	}
}

// Acquire takes a slot for ip. The returned release frees it and is safe
// to call more than once.
func (c *ConnLimiter) Acquire(ip string) (release func(), ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxTotal > 0 && c.total >= c.maxTotal {
		return nil, false
	}
	if c.maxPerIP > 0 && c.perIP[ip] >= c.maxPerIP {
		return nil, false
	}
	c.perIP[ip]++
	c.total++

	var once sync.Once
	return func() { once.Do(func() { c.release(ip) }) }, true
}

func (c *ConnLimiter) release(ip string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total--
	if c.perIP[ip]--; c.perIP[ip] <= 0 {
		delete(c.perIP, ip)
	}
}

// Stats returns the open connection count and the number of distinct addresses.
func (c *ConnLimiter) Stats() (total int, ips int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total, len(c.perIP)
}

// extractIP returns the host part of an ip:port address.
func extractIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// realIP returns the client address of r, preferring the proxy headers.
func realIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return extractIP(r.RemoteAddr)
}
