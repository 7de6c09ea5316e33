package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/tradeflow/internal/jobs"
	"github.com/odyssey-erp/tradeflow/internal/outbox"
)

// OutboxDrainer delivers pending outbox events.
type OutboxDrainer interface {
	Drain(ctx context.Context) (outbox.Report, error)
}

// OutboxDispatchJob retries events the synchronous dispatch left pending.
type OutboxDispatchJob struct {
	Drainer OutboxDrainer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewOutboxDispatchJob wires dependencies for the dispatch handler.
func NewOutboxDispatchJob(drainer OutboxDrainer, logger *slog.Logger, metrics *jobmetrics.Metrics) *OutboxDispatchJob {
	return &OutboxDispatchJob{Drainer: drainer, Logger: logger, Metrics: metrics}
}

// Handle drains one batch. Failed events stay pending with their attempt
// count raised, so the run itself only fails when the store does.
func (j *OutboxDispatchJob) Handle(ctx context.Context, _ *asynq.Task) (resultErr error) {
	if j == nil || j.Drainer == nil {
		return errors.New("outbox dispatch: handler not configured")
	}
	tracker := j.Metrics.Track(TaskOutboxDispatch)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	report, err := j.Drainer.Drain(ctx)
	if err != nil {
		loggerOr(j.Logger).Error("outbox drain", slog.Any("error", err))
		return err
	}
	j.Metrics.AddItems(TaskOutboxDispatch, "processed", report.Processed)
	j.Metrics.AddItems(TaskOutboxDispatch, "failed", report.Failed)
	j.Metrics.AddItems(TaskOutboxDispatch, "skipped", report.Skipped)
	if report.Processed+report.Failed+report.Skipped > 0 {
		loggerOr(j.Logger).Info("outbox drained",
			slog.Int("processed", report.Processed),
			slog.Int("failed", report.Failed),
			slog.Int("skipped", report.Skipped),
		)
	}
	return nil
}
