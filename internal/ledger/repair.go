package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/tradeflow/internal/outbox"
)

// RepairSource lists source documents that should have ledger entries but do not.
type RepairSource interface {
	CompanyIDs(ctx context.Context) ([]int64, error)
	UnprojectedInvoices(ctx context.Context, companyID int64, limit int) ([]int64, error)
	UnprojectedPayments(ctx context.Context, companyID int64, limit int) ([]int64, error)
	UnprojectedPurchaseOrders(ctx context.Context, companyID int64, limit int) ([]int64, error)
}

// RepairReport summarises one reconciliation pass.
type RepairReport struct {
	Companies int `json:"companies"`
	Scanned   int `json:"scanned"`
	Projected int `json:"projected"`
	Failed    int `json:"failed"`
}

// Reconciler re-projects sources whose ledger entries are missing, for
// example after a dispatch that exhausted its attempts.
type Reconciler struct {
	projector *Projector
	source    RepairSource
	logger    *slog.Logger
	batch     int
}

// NewReconciler constructs a Reconciler. batch bounds the rows scanned per
// source kind and company.
func NewReconciler(projector *Projector, source RepairSource, logger *slog.Logger, batch int) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if batch <= 0 {
		batch = 500
	}
	return &Reconciler{projector: projector, source: source, logger: logger, batch: batch}
}

// Repair reconciles one company, or every company when companyID is 0.
// Individual projection failures are counted and do not stop the pass.
func (r *Reconciler) Repair(ctx context.Context, companyID int64) (RepairReport, error) {
	var report RepairReport
	companies := []int64{companyID}
	if companyID == 0 {
		ids, err := r.source.CompanyIDs(ctx)
		if err != nil {
			return report, fmt.Errorf("ledger: list companies: %w", err)
		}
		companies = ids
	}

	type pass struct {
		kind outbox.Kind
		list func(context.Context, int64, int) ([]int64, error)
	}
	passes := []pass{
		{outbox.KindInvoiceConfirmed, r.source.UnprojectedInvoices},
		{outbox.KindPaymentRecorded, r.source.UnprojectedPayments},
		{outbox.KindPurchaseOrderCreated, r.source.UnprojectedPurchaseOrders},
	}

	var errs []error
	for _, company := range companies {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Companies++
		for _, p := range passes {
			ids, err := p.list(ctx, company, r.batch)
			if err != nil {
				errs = append(errs, fmt.Errorf("ledger: list %s for company %d: %w", p.kind, company, err))
				continue
			}
			for _, id := range ids {
				report.Scanned++
				entries, err := r.projector.Project(ctx, p.kind, id, 0)
				if err != nil {
					report.Failed++
					r.projector.metrics.failed(p.kind)
					r.logger.Warn("ledger repair projection failed",
						slog.Int64("company_id", company),
						slog.String("kind", string(p.kind)),
						slog.Int64("source_id", id),
						slog.Any("error", err),
					)
					continue
				}
				report.Projected += len(entries)
			}
		}
	}
	r.logger.Info("ledger repair finished",
		slog.Int("companies", report.Companies),
		slog.Int("scanned", report.Scanned),
		slog.Int("projected", report.Projected),
		slog.Int("failed", report.Failed),
	)
	return report, errors.Join(errs...)
}
