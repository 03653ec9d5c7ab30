package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/osoriodev/vendelo-backend/internal/distribution"
	"github.com/osoriodev/vendelo-backend/pkg/logger"
	"github.com/osoriodev/vendelo-backend/pkg/metrics"
)

const defaultDrainTimeout = 10 * time.Second

type queueProcessor interface {
	ProcessQueue(ctx context.Context) (*distribution.DrainSummary, error)
}

type QueueDrainJobParams struct {
	Logger      *logger.Logger
	Distributor queueProcessor
	Metrics     *metrics.CronJobMetrics
	Timeout     time.Duration
}

// NewQueueDrainJob builds the job that assigns waiting leads whenever
// eligible salespeople exist.
func NewQueueDrainJob(params QueueDrainJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Distributor == nil {
		return nil, fmt.Errorf("distribution service required")
	}
	if params.Timeout <= 0 {
		params.Timeout = defaultDrainTimeout
	}
	return &queueDrainJob{
		logg:        params.Logger,
		distributor: params.Distributor,
		metrics:     params.Metrics,
		timeout:     params.Timeout,
	}, nil
}

type queueDrainJob struct {
	logg        *logger.Logger
	distributor queueProcessor
	metrics     *metrics.CronJobMetrics
	timeout     time.Duration
}

func (j *queueDrainJob) Name() string { return "queue-drain" }

func (j *queueDrainJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	summary, err := j.distributor.ProcessQueue(ctx)
	if summary != nil && j.metrics != nil {
		j.metrics.AddDrained(j.Name(), summary.Drained)
	}
	if err != nil {
		return fmt.Errorf("queue drain: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"drained": summary.Drained,
		"clients": len(summary.PerClient),
	})
	j.logg.Info(logCtx, "queue drain complete")
	return nil
}
