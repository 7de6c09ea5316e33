package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/tradeflow/internal/jobs"
	"github.com/odyssey-erp/tradeflow/internal/ledger"
)

// LedgerRepairer re-projects unprojected documents.
type LedgerRepairer interface {
	Repair(ctx context.Context, companyID int64) (ledger.RepairReport, error)
}

// LedgerRepairJob reconciles the ledger with its source documents.
type LedgerRepairJob struct {
	Repairer LedgerRepairer
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewLedgerRepairJob wires dependencies for the repair handler.
func NewLedgerRepairJob(repairer LedgerRepairer, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerRepairJob {
	return &LedgerRepairJob{Repairer: repairer, Logger: logger, Metrics: metrics}
}

// Handle processes ledger repair tasks.
func (j *LedgerRepairJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Repairer == nil {
		return errors.New("ledger repair: handler not configured")
	}
	var payload LedgerRepairPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskLedgerRepair)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := loggerOr(j.Logger).With(slog.Int64("company_id", payload.CompanyID))
	report, err := j.Repairer.Repair(ctx, payload.CompanyID)
	j.Metrics.AddItems(TaskLedgerRepair, "projected", report.Projected)
	j.Metrics.AddItems(TaskLedgerRepair, "failed", report.Failed)
	if err != nil {
		logger.Error("ledger repair", slog.Any("error", err))
		return err
	}
	logger.Info("ledger repair finished",
		slog.Int("companies", report.Companies),
		slog.Int("scanned", report.Scanned),
		slog.Int("projected", report.Projected),
		slog.Int("failed", report.Failed),
	)
	return nil
}

func loggerOr(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
