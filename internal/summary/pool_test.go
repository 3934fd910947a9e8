package summary

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github-summary/internal/report"
)

type fakeSummarizer struct {
	mu    sync.Mutex
	calls int

	fn func(pr *report.PullRequest) (string, error)
}

func (f *fakeSummarizer) Summarize(_ context.Context, pr *report.PullRequest) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(pr)
}

func poolPRs(n int) []report.PullRequest {
	prs := make([]report.PullRequest, n)
	for i := range prs {
		prs[i] = report.PullRequest{Number: i + 1, Title: fmt.Sprintf("PR %d", i+1)}
	}
	return prs
}

func TestSummarizeAllWritesResultsIntoOriginatingSlots(t *testing.T) {
	fake := &fakeSummarizer{fn: func(pr *report.PullRequest) (string, error) {
		// Finish out of submission order.
		time.Sleep(time.Duration(10-pr.Number) * time.Millisecond)
		return fmt.Sprintf("summary of #%d", pr.Number), nil
	}}

	prs := poolPRs(6)
	pool := NewPool(fake, 6, 0, zap.NewNop())
	failed := pool.SummarizeAll(context.Background(), prs)

	assert.Zero(t, failed)
	for i, pr := range prs {
		assert.Equal(t, i+1, pr.Number)
		assert.Equal(t, fmt.Sprintf("summary of #%d", pr.Number), pr.Summary)
	}
}

func TestSummarizeAllPlaceholderOnPermanentFailure(t *testing.T) {
	fake := &fakeSummarizer{fn: func(pr *report.PullRequest) (string, error) {
		if pr.Number == 2 {
			return "", errors.New("api returned 400")
		}
		return "ok", nil
	}}

	prs := poolPRs(2)
	pool := NewPool(fake, 2, 0, zap.NewNop())
	failed := pool.SummarizeAll(context.Background(), prs)

	assert.Equal(t, 1, failed)
	assert.Equal(t, "ok", prs[0].Summary)
	assert.Equal(t, Placeholder, prs[1].Summary)
}

func TestSummarizeAllBoundsConcurrency(t *testing.T) {
	var active, peak atomic.Int64
	fake := &fakeSummarizer{fn: func(pr *report.PullRequest) (string, error) {
		cur := active.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return "ok", nil
	}}

	prs := poolPRs(12)
	pool := NewPool(fake, 3, 0, zap.NewNop())
	failed := pool.SummarizeAll(context.Background(), prs)

	assert.Zero(t, failed)
	assert.LessOrEqual(t, peak.Load(), int64(3))
	assert.Equal(t, 12, fake.calls)
}

func TestSummarizeAllStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fake := &fakeSummarizer{fn: func(pr *report.PullRequest) (string, error) {
		return "", ctx.Err()
	}}

	prs := poolPRs(4)
	pool := NewPool(fake, 2, 0, zap.NewNop())
	pool.SummarizeAll(ctx, prs)

	// Unprocessed slots stay empty; the assembler marks them.
	for _, pr := range prs {
		assert.Empty(t, pr.Summary)
	}
	require.LessOrEqual(t, fake.calls, len(prs))
}
