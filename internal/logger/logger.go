package logger

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github-summary/internal/config"
)

// New builds the run-scoped logger. Every line carries a run_id so the
// logs of overlapping cron invocations can be told apart.
func New(cfg *config.Log) (*zap.Logger, error) {
	var zc zap.Config
	switch cfg.Mode {
	case "dev":
		zc = zap.NewDevelopmentConfig()
	case "", "prod":
		zc = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("unknown log mode %q", cfg.Mode)
	}

	log, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return log.With(zap.String("run_id", uuid.NewString())), nil
}
