// Package ratelimit paces outbound calls to the transit API.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Defaults for the shared API limiter.
const (
	DefaultQuotaPerMinute = 100
	DefaultMinInterval    = 100 * time.Millisecond
)

// Limiter grants request slots subject to a rolling per-minute quota and a
// minimum spacing between consecutive grants. A single shared instance gates
// every outbound API call; it only serializes request issuance, not the wait
// for responses.
type Limiter struct {
	pace        *rate.Limiter
	minInterval time.Duration
	quota       int
	window      time.Duration

	mu          sync.Mutex
	windowStart time.Time
	count       int
}

// New creates a limiter allowing quota grants per minute, spaced at least
// minInterval apart.
func New(quota int, minInterval time.Duration) *Limiter {
	return &Limiter{
		pace:        rate.NewLimiter(rate.Every(minInterval), 1),
		minInterval: minInterval,
		quota:       quota,
		window:      time.Minute,
	}
}

// Wait blocks until one more request may be issued, or ctx is cancelled. The
// quota window is checked first; once a slot is counted, minimum spacing is
// enforced. There is no failure mode besides cancellation — a slot is always
// eventually granted.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := time.Now()
		if now.Sub(l.windowStart) >= l.window {
			l.windowStart = now
			l.count = 0
		}
		if l.count < l.quota {
			l.count++
			l.mu.Unlock()
			break
		}
		// Quota exhausted: sleep until window rollover plus one spacing.
		wait := l.windowStart.Add(l.window).Sub(now) + l.minInterval
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return l.pace.Wait(ctx)
}
