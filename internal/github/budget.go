package github

import (
	"context"
	"sync"
	"time"

	"github.com/google/go-github/v69/github"
)

// Budget is the one piece of state shared between concurrent repository
// fetches: the remaining request allowance reported by the API. All
// fetch goroutines go through Wait before each request so they never
// collectively overshoot the enforced limit.
type Budget struct {
	mu        sync.Mutex
	limit     int
	remaining int
	reset     time.Time
	margin    int

	// injected for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewBudget creates a budget that suspends requests once fewer than
// margin calls remain, until the reported reset time.
func NewBudget(margin int) *Budget {
	return &Budget{
		margin: margin,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Observe records the rate snapshot attached to an API response.
func (b *Budget) Observe(rate github.Rate) {
	if rate.Limit == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limit = rate.Limit
	b.remaining = rate.Remaining
	b.reset = rate.Reset.Time
}

// Exhaust marks the budget as spent until the given reset time. Used
// when the API answers with a rate limit error despite the margin.
func (b *Budget) Exhaust(rate github.Rate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rate.Limit > 0 {
		b.limit = rate.Limit
		b.reset = rate.Reset.Time
	}
	b.remaining = 0
}

// Wait blocks until the budget allows another request or the context
// expires. When the remaining allowance is below the safety margin it
// sleeps through the reset instead of risking a throttling error
// mid-run.
func (b *Budget) Wait(ctx context.Context) error {
	b.mu.Lock()
	unknown := b.limit == 0
	low := !unknown && b.remaining < b.margin
	reset := b.reset
	b.mu.Unlock()

	if unknown || !low {
		return ctx.Err()
	}

	d := reset.Sub(b.now())
	if d > 0 {
		if err := b.sleep(ctx, d); err != nil {
			return err
		}
	}

	b.mu.Lock()
	// Assume the allowance is fresh after the reset; the next response
	// snapshot corrects this.
	b.remaining = b.limit
	b.mu.Unlock()
	return ctx.Err()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
