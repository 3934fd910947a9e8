package summary

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github-summary/internal/report"
)

// Summarizer is implemented by Client and by test fakes.
type Summarizer interface {
	Summarize(ctx context.Context, pr *report.PullRequest) (string, error)
}

// Pool summarizes PRs with bounded concurrency, paced by a shared rate
// limiter. Each result is written back into its originating slot, so the
// report order never depends on completion order.
type Pool struct {
	client      Summarizer
	limiter     *rate.Limiter
	concurrency int
	log         *zap.Logger
}

func NewPool(client Summarizer, concurrency int, requestsPerSecond float64, log *zap.Logger) *Pool {
	if concurrency <= 0 {
		concurrency = 4
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Pool{
		client:      client,
		limiter:     rate.NewLimiter(limit, 1),
		concurrency: concurrency,
		log:         log,
	}
}

// SummarizeAll fills the Summary of every PR in place and returns the
// number of entries that got the placeholder instead. A canceled context
// abandons remaining work; slots already written keep their text and the
// rest stay empty for the assembler to mark.
func (p *Pool) SummarizeAll(ctx context.Context, prs []report.PullRequest) int {
	var failed atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i := range prs {
		g.Go(func() error {
			if err := p.limiter.Wait(ctx); err != nil {
				return err
			}
			text, err := p.client.Summarize(ctx, &prs[i])
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.log.Error("failed to generate summary",
					zap.Int("pr", prs[i].Number),
					zap.String("repo", prs[i].Repository),
					zap.Error(err))
				prs[i].Summary = Placeholder
				failed.Add(1)
				return nil
			}
			prs[i].Summary = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.log.Warn("summarization interrupted", zap.Error(err))
	}
	return int(failed.Load())
}
