package cron

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/osoriodev/vendelo-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// counterReconciler recomputes salesperson counters from the assignment rows.
type counterReconciler interface {
	ReconcileCounters(ctx context.Context) (int64, error)
}

type CounterReconcileJobParams struct {
	Logger     *logger.Logger
	Reconciler counterReconciler
}

// NewCounterReconcileJob builds the job that repairs counter drift caused by
// manual data fixes or missed decrements.
func NewCounterReconcileJob(params CounterReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("counter reconciler required")
	}
	return &counterReconcileJob{
		logg:       params.Logger,
		reconciler: params.Reconciler,
	}, nil
}

type counterReconcileJob struct {
	logg       *logger.Logger
	reconciler counterReconciler
}

func (j *counterReconcileJob) Name() string { return "counter-reconcile" }

func (j *counterReconcileJob) Run(ctx context.Context) error {
	affected, err := j.reconciler.ReconcileCounters(ctx)
	if err != nil {
		return fmt.Errorf("counter reconcile: %w", err)
	}
	logCtx := j.logg.WithField(ctx, "rows_updated", affected)
	j.logg.Info(logCtx, "counter reconcile complete")
	return nil
}
