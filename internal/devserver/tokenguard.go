package devserver

import (
	"sync"
	"time"

	"github.com/lawnchairsociety/minechat/internal/config"
)

// TokenGuard locks out addresses that keep presenting unknown tokens.
// Lockouts double on each repeat offence, up to the configured maximum.
type TokenGuard struct {
	mu          sync.Mutex
	attempts    map[string]*attemptInfo
	maxAttempts int
	lockout     time.Duration
	maxLockout  time.Duration
	now         func() time.Time
}

type attemptInfo struct {
	failures     int
	lockedUntil  time.Time
	lockoutCount int
	lastFailure  time.Time
}

// staleAfter is how long an idle, unlocked entry is kept.
const staleAfter = 10 * time.Minute

func NewTokenGuard(cfg config.TokenGuardConfig) *TokenGuard {
	g := &TokenGuard{
		attempts:    make(map[string]*attemptInfo),
		maxAttempts: cfg.MaxAttempts,
		lockout:     time.Duration(cfg.LockoutSeconds) * time.Second,
		maxLockout:  time.Duration(cfg.MaxLockoutSeconds) * time.Second,
		now:         time.Now,
	}
	if g.lockout <= 0 {
		g.lockout = 30 * time.Second
	}
	if g.maxLockout < g.lockout {
		g.maxLockout = g.lockout
	}
	return g
}

// Locked reports whether ip is locked out and for how much longer.
// A guard with MaxAttempts 0 never locks.
func (g *TokenGuard) Locked(ip string) (bool, time.Duration) {
	if g.maxAttempts <= 0 {
		return false, 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	info, ok := g.attempts[ip]
	if !ok {
		return false, 0
	}
	now := g.now()
	if now.Before(info.lockedUntil) {
		return true, info.lockedUntil.Sub(now)
	}
	return false, 0
}

// RecordFailure counts an unknown token from ip and reports whether the
// address is now locked out.
func (g *TokenGuard) RecordFailure(ip string) (bool, time.Duration) {
	if g.maxAttempts <= 0 {
		return false, 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.prune(now)

	info, ok := g.attempts[ip]
	if !ok {
		info = &attemptInfo{}
		g.attempts[ip] = info
	}
	info.lastFailure = now

	if now.Before(info.lockedUntil) {
		return true, info.lockedUntil.Sub(now)
	}

	info.failures++
	if info.failures < g.maxAttempts {
		return false, 0
	}

	info.lockoutCount++
	d := g.lockout
	for i := 1; i < info.lockoutCount && d < g.maxLockout; i++ {
		d *= 2
	}
	d = min(d, g.maxLockout)

	info.lockedUntil = now.Add(d)
	info.failures = 0
	return true, d
}

// RecordSuccess clears the history of ip.
func (g *TokenGuard) RecordSuccess(ip string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.attempts, ip)
}

// prune drops unlocked entries with no recent failures. Callers hold mu.
func (g *TokenGuard) prune(now time.Time) {
	cutoff := now.Add(-staleAfter)
	for ip, info := range g.attempts {
		if info.lockedUntil.Before(cutoff) && info.lastFailure.Before(cutoff) {
			delete(g.attempts, ip)
		}
	}
}
