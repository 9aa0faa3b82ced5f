package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Budget tracks the caller's remaining GitHub quota.
//
// It starts optimistic and is corrected by every response passed to Observe.
// When the quota is spent, Acquire blocks until the advertised reset time;
// after the reset exactly one trial call is let through, and further callers
// wait until its response refreshes the numbers or the trial call is
// released. Every successful Acquire must be paired with a Release once the
// call has finished.
type Budget struct {
	mu        sync.Mutex
	remaining int
	reset     time.Time
	cooldown  time.Time
	trialing  bool
	changed   chan struct{}
	now       func() time.Time
}

func NewBudget() *Budget {
	return &Budget{
		remaining: 5000,
		reset:     time.Now().Add(time.Hour),
		changed:   make(chan struct{}),
		now:       time.Now,
	}
}

func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

// Acquire reserves one call.
func (b *Budget) Acquire(ctx context.Context) error {
	if ctx == nil {
		return errors.New("budget acquire: nil context")
	}
	for {
		b.mu.Lock()
		now := b.now()
		changed := b.changed

		var until time.Time
		switch {
		case now.Before(b.cooldown):
			until = b.cooldown
		case b.remaining > 0:
			b.remaining--
			b.mu.Unlock()
			return nil
		case !now.Before(b.reset):
			if !b.trialing {
				b.trialing = true
				b.mu.Unlock()
				return nil
			}
			// Wait for the trial call's response; zero time means no timer.
		default:
			until = b.reset
		}
		b.mu.Unlock()

		if err := waitFor(ctx, changed, until, now); err != nil {
			return err
		}
	}
}

// waitFor blocks until ctx is done, the budget changes, or until passes.
func waitFor(ctx context.Context, changed <-chan struct{}, until, now time.Time) error {
	var timeout <-chan time.Time
	if !until.IsZero() {
		timer := time.NewTimer(max(until.Sub(now), 0))
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-changed:
	case <-timeout:
	}
	return nil
}

// Observe updates the budget from a GitHub response. Unparsable headers are
// ignored.
func (b *Budget) Observe(resp *http.Response) {
	if resp == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	dirty := false
	if secs, ok := headerInt(resp.Header, "Retry-After"); ok && secs > 0 {
		until := b.now().Add(time.Duration(secs) * time.Second)
		if until.After(b.cooldown) {
			b.cooldown = until
			dirty = true
		}
	}
	if left, ok := headerInt(resp.Header, "X-RateLimit-Remaining"); ok && left >= 0 && int(left) != b.remaining {
		b.remaining = int(left)
		dirty = true
	}
	if epoch, ok := headerInt(resp.Header, "X-RateLimit-Reset"); ok && epoch > 0 {
		if reset := time.Unix(epoch, 0); !reset.Equal(b.reset) {
			b.reset = reset
			dirty = true
		}
	}

	if dirty {
		b.trialing = false
		close(b.changed)
		b.changed = make(chan struct{})
	}
}

// Release ends a call reserved by Acquire. If that was the post-reset trial
// call and no response updated the budget (transport failure, or a response
// without rate limit headers), the next caller may try again.
func (b *Budget) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.trialing {
		return
	}
	b.trialing = false
	close(b.changed)
	b.changed = make(chan struct{})
}

func headerInt(h http.Header, key string) (int64, bool) {
	v := h.Get(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
