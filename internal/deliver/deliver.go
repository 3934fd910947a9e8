package deliver

import (
	"context"

	"go.uber.org/zap"

	"github-summary/internal/report"
)

// Target is one delivery destination for the rendered report.
type Target interface {
	Name() string
	Deliver(ctx context.Context, rep *report.Report) error
}

// DeliverAll sends the report to every target and returns how many fully
// succeeded. One target failing never stops the others; the caller
// decides whether zero successes fails the run.
func DeliverAll(ctx context.Context, log *zap.Logger, targets []Target, rep *report.Report) int {
	succeeded := 0
	for _, t := range targets {
		if err := t.Deliver(ctx, rep); err != nil {
			log.Error("delivery failed", zap.String("target", t.Name()), zap.Error(err))
			continue
		}
		log.Info("report delivered", zap.String("target", t.Name()))
		succeeded++
	}
	return succeeded
}
