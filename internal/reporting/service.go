package reporting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/tradeflow/internal/ledger"
	"github.com/odyssey-erp/tradeflow/internal/scope"
	"github.com/odyssey-erp/tradeflow/internal/shared"
)

// Repository exposes the report queries the service relies on.
type Repository interface {
	Entries(ctx context.Context, filter scope.Filter, lf LedgerFilter) ([]ledger.Entry, int, error)
	Totals(ctx context.Context, filter scope.Filter, from, to time.Time) (Totals, error)
	OrderStatusCounts(ctx context.Context, filter scope.Filter) (map[string]int, error)
	OpenPayments(ctx context.Context, filter scope.Filter) (int, error)
	PurchaseOrders(ctx context.Context, filter scope.Filter) (int, error)
	ShipmentsInTransit(ctx context.Context, filter scope.Filter) (int, error)
}

// Service coordinates report queries with the cache layer.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires a Repository with a Cache helper.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

// Ledger lists the entries visible to the principal.
func (s *Service) Ledger(ctx context.Context, p shared.Principal, lf LedgerFilter) ([]ledger.Entry, shared.Pagination, error) {
	filter, err := scope.For(p)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if lf.EntryType != "" && !lf.EntryType.IsValid() {
		return nil, shared.Pagination{}, fmt.Errorf("%w: unknown entry type %q", shared.ErrValidation, lf.EntryType)
	}
	if !lf.From.IsZero() && !lf.To.IsZero() && lf.From.After(lf.To) {
		return nil, shared.Pagination{}, fmt.Errorf("%w: from is after to", shared.ErrValidation)
	}
	entries, total, err := s.repo.Entries(ctx, filter, lf)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return entries, shared.NewPagination(lf.Page, lf.PerPage, total), nil
}

// ProfitAndLoss reports the window [from, to]. Without a range it covers the
// current calendar month.
func (s *Service) ProfitAndLoss(ctx context.Context, p shared.Principal, from, to time.Time) (ProfitAndLoss, error) {
	filter, err := scope.For(p)
	if err != nil {
		return ProfitAndLoss{}, err
	}
	w := MonthWindow(s.now())
	if !from.IsZero() {
		w.From = truncateDay(from)
	}
	if !to.IsZero() {
		w.To = truncateDay(to)
	}
	if w.From.After(w.To) {
		return ProfitAndLoss{}, fmt.Errorf("%w: from is after to", shared.ErrValidation)
	}
	totals, err := s.repo.Totals(ctx, filter, w.From, w.To)
	if err != nil {
		return ProfitAndLoss{}, err
	}
	return ComputeProfitAndLoss(w, totals), nil
}

// BalanceSheet reports receivables as of asOf, today when zero.
func (s *Service) BalanceSheet(ctx context.Context, p shared.Principal, asOf time.Time) (BalanceSheet, error) {
	filter, err := scope.For(p)
	if err != nil {
		return BalanceSheet{}, err
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	asOf = truncateDay(asOf)
	totals, err := s.repo.Totals(ctx, filter, time.Time{}, asOf)
	if err != nil {
		return BalanceSheet{}, err
	}
	return ComputeBalanceSheet(asOf, totals), nil
}

// Dashboard returns the headline counts, served from cache when warm.
func (s *Service) Dashboard(ctx context.Context, p shared.Principal) (DashboardCounts, error) {
	filter, err := scope.For(p)
	if err != nil {
		return DashboardCounts{}, err
	}
	loader := func(ctx context.Context) (any, error) {
		return s.loadDashboard(ctx, filter)
	}

	key, err := s.cache.BuildKey(ctx, filter.CompanyID, "dashboard", filter.CacheToken())
	if err != nil {
		s.logger.Warn("dashboard cache key", slog.Int64("company_id", filter.CompanyID), slog.Any("error", err))
		return s.loadDashboard(ctx, filter)
	}
	var counts DashboardCounts
	if err := s.cache.FetchJSON(ctx, key, &counts, loader); err != nil {
		return DashboardCounts{}, err
	}
	return counts, nil
}

// Invalidate drops the cached dashboard of a company.
func (s *Service) Invalidate(ctx context.Context, companyID int64) error {
	return s.cache.Invalidate(ctx, companyID)
}

func (s *Service) loadDashboard(ctx context.Context, filter scope.Filter) (DashboardCounts, error) {
	counts := DashboardCounts{GeneratedAt: s.now().UTC()}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		byStatus, err := s.repo.OrderStatusCounts(gctx, filter)
		counts.OrdersByStatus = byStatus
		return err
	})
	g.Go(func() error {
		n, err := s.repo.OpenPayments(gctx, filter)
		counts.OpenPayments = n
		return err
	})
	g.Go(func() error {
		n, err := s.repo.PurchaseOrders(gctx, filter)
		counts.PurchaseOrders = n
		return err
	})
	g.Go(func() error {
		n, err := s.repo.ShipmentsInTransit(gctx, filter)
		counts.ShipmentsInTransit = n
		return err
	})
	if err := g.Wait(); err != nil {
		return DashboardCounts{}, err
	}
	if counts.OrdersByStatus == nil {
		counts.OrdersByStatus = map[string]int{}
	}
	return counts, nil
}
