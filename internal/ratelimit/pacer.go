// Package ratelimit paces outgoing GitHub API calls.
//
// Two mechanisms cooperate: a Pacer spaces calls at a fixed interval (a token
// bucket of depth one), and a Budget follows the X-RateLimit-* and
// Retry-After headers GitHub returns and blocks once the quota is spent.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces a minimum interval between calls.
type Pacer struct {
	limiter  *rate.Limiter
	interval time.Duration
	observe  func(time.Duration)
}

// NewPacer returns a pacer admitting one call per interval. An interval <= 0
// disables pacing entirely, which is what tests want.
func NewPacer(interval time.Duration) *Pacer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Pacer{
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
	}
}

// Unpaced returns a pacer that never waits.
func Unpaced() *Pacer {
	return NewPacer(0)
}

// OnWait registers a callback receiving the time spent blocked in Wait.
func (p *Pacer) OnWait(fn func(time.Duration)) {
	p.observe = fn
}

func (p *Pacer) Interval() time.Duration {
	return p.interval
}

// Wait blocks until the next call may start.
func (p *Pacer) Wait(ctx context.Context) error {
	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacer wait: %w", err)
	}
	if p.observe != nil {
		p.observe(time.Since(start))
	}
	return nil
}
