// Package ratelimit implements a sliding-window request limiter keyed by
// caller identity and operation, so extraction and command traffic are
// throttled independently.
package ratelimit

import (
	"sync"
	"time"

	"github.com/openboard/umlvision/internal/config"
)

// Limiter tracks request timestamps per (identity, operation) pair.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]config.RateLimitConfig
	now     func() time.Time

	history map[key][]time.Time
}

type key struct {
	identity  string
	operation string
}

// New returns a Limiter enforcing one window per named operation. Operations
// absent from windows are unlimited.
func New(windows map[string]config.RateLimitConfig) *Limiter {
	return &Limiter{
		windows: windows,
		now:     time.Now,
		history: make(map[key][]time.Time),
	}
}

// Allow records an attempt by identity against operation and reports whether
// it fits inside the window. When it does not, retryAfter holds the whole
// seconds (at least 1) until the oldest in-window attempt ages out.
func (l *Limiter) Allow(identity, operation string) (ok bool, retryAfter int) {
	w, limited := l.windows[operation]
	if !limited || w.MaxRequests <= 0 {
		return true, 0
	}
	window := time.Duration(w.WindowSeconds) * time.Second
	now := l.now()
	cutoff := now.Add(-window)
	k := key{identity: identity, operation: operation}

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.history[k][:0]
	for _, ts := range l.history[k] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= w.MaxRequests {
		l.history[k] = recent
		wait := recent[0].Add(window).Sub(now)
		secs := int(wait.Seconds())
		if wait > time.Duration(secs)*time.Second {
			secs++
		}
		if secs < 1 {
			secs = 1
		}
		return false, secs
	}

	l.history[k] = append(recent, now)
	l.dropStaleLocked(cutoff)
	return true, 0
}

// dropStaleLocked forgets identities whose every attempt predates cutoff,
// keeping the map from growing with one-off callers. Caller holds l.mu.
func (l *Limiter) dropStaleLocked(cutoff time.Time) {
	for k, ts := range l.history {
		if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
			delete(l.history, k)
		}
	}
}
