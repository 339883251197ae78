// Package ratelimit throttles outbound replies with a token bucket.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Config defines the reply rate limit.
type Config struct {
	// PerSecond is the sustainable rate (tokens added per second).
	// Zero or negative disables limiting.
	PerSecond float64

	// Burst is the maximum number of replies allowed in a burst.
	Burst int
}

// Enabled reports whether the config limits anything.
func (c Config) Enabled() bool {
	return c.PerSecond > 0
}

// Stats is a snapshot of limiter counters.
type Stats struct {
	Available        float64
	PerSecond        float64
	Burst            int
	TotalRequests    int64
	DeniedRequests   int64
	DeniedPercentage float64
}

// Limiter implements the token bucket algorithm. A nil *Limiter allows
// everything.
type Limiter struct {
	mu           sync.Mutex
	cfg          Config
	tokens       float64
	lastUpdate   time.Time
	requestCount int64
	deniedCount  int64

	now func() time.Time
}

// New creates a limiter. It returns nil when cfg is disabled.
func New(cfg Config) *Limiter {
	if !cfg.Enabled() {
		return nil
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return newWithClock(cfg, time.Now)
}

func newWithClock(cfg Config, now func() time.Time) *Limiter {
	return &Limiter{
		cfg:        cfg,
		tokens:     float64(cfg.Burst),
		lastUpdate: now(),
		now:        now,
	}
}

// refill must be called with mu held.
func (l *Limiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.lastUpdate).Seconds()
	if elapsed > 0 {
		l.tokens += elapsed * l.cfg.PerSecond
		if limit := float64(l.cfg.Burst); l.tokens > limit {
			l.tokens = limit
		}
	}
	l.lastUpdate = now
}

// Allow consumes a token if one is available.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.requestCount++
	l.refill()
	if l.tokens >= 1.0 {
		l.tokens--
		return true
	}
	l.deniedCount++
	return false
}

// reserve consumes a token or reports how long until one is available.
func (l *Limiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	if l.tokens >= 1.0 {
		l.tokens--
		return 0
	}
	missing := 1.0 - l.tokens
	return time.Duration(missing / l.cfg.PerSecond * float64(time.Second))
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}

	if l.Allow() {
		return nil
	}

	for {
		delay := l.reserve()
		if delay <= 0 {
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Stats returns the current counters.
func (l *Limiter) Stats() Stats {
	if l == nil {
		return Stats{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	stats := Stats{
		Available:      l.tokens,
		PerSecond:      l.cfg.PerSecond,
		Burst:          l.cfg.Burst,
		TotalRequests:  l.requestCount,
		DeniedRequests: l.deniedCount,
	}
	if stats.TotalRequests > 0 {
		stats.DeniedPercentage = float64(stats.DeniedRequests) / float64(stats.TotalRequests) * 100
	}
	return stats
}
