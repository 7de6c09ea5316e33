package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/tradeflow/internal/outbox"
)

type repairStub struct {
	companies []int64
	invoices  map[int64][]int64
	payments  map[int64][]int64
	orders    map[int64][]int64
	failList  bool
}

func (s *repairStub) CompanyIDs(ctx context.Context) ([]int64, error) {
	return s.companies, nil
}

func (s *repairStub) UnprojectedInvoices(ctx context.Context, companyID int64, limit int) ([]int64, error) {
	return s.invoices[companyID], nil
}

func (s *repairStub) UnprojectedPayments(ctx context.Context, companyID int64, limit int) ([]int64, error) {
	if s.failList {
		return nil, errors.New("payments unavailable")
	}
	return s.payments[companyID], nil
}

func (s *repairStub) UnprojectedPurchaseOrders(ctx context.Context, companyID int64, limit int) ([]int64, error) {
	return s.orders[companyID], nil
}

func TestReconcilerRepairsEveryCompany(t *testing.T) {
	store := &memoryLedger{}
	sources := newMemorySources()
	sources.invoices[1] = InvoiceSource{ID: 1, CompanyID: 1, Number: "PI-1", Status: "confirmed", Currency: "INR", Total: 100, Advance: 10, CreatedBy: 2}
	sources.invoices[2] = InvoiceSource{ID: 2, CompanyID: 2, Number: "PI-2", Status: "confirmed", Currency: "JPY", Total: 100, CreatedBy: 2}
	sources.payments[5] = PaymentSource{TransactionID: 5, CompanyID: 1, InvoiceNumber: "PI-1", Currency: "INR", Amount: 40, CreatedBy: 2}
	sources.orders[9] = PurchaseOrderSource{ID: 9, CompanyID: 2, Number: "PO-1", Status: "issued", Currency: "INR", GrandTotal: 70, CreatedBy: 2}

	stub := &repairStub{
		companies: []int64{1, 2},
		invoices:  map[int64][]int64{1: {1}, 2: {2}},
		payments:  map[int64][]int64{1: {5}},
		orders:    map[int64][]int64{2: {9}},
	}
	r := NewReconciler(newTestProjector(t, store, sources), stub, discardLogger(), 0)

	report, err := r.Repair(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, RepairReport{Companies: 2, Scanned: 4, Projected: 4, Failed: 1}, report)
	require.Len(t, store.all(), 4)

	report, err = r.Repair(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, report.Companies)
	require.Zero(t, report.Projected)
}

func TestReconcilerCountsProjectionFailures(t *testing.T) {
	sources := newMemorySources()
	sources.invoices[2] = InvoiceSource{ID: 2, CompanyID: 4, Number: "PI-2", Status: "confirmed", Currency: "JPY", Total: 100, CreatedBy: 2}
	fx, err := NewConverter("INR", nil)
	require.NoError(t, err)
	metrics := NewMetrics(prometheus.NewRegistry())
	p := NewProjector(&memoryLedger{}, sources, fx, discardLogger(), metrics)
	r := NewReconciler(p, &repairStub{invoices: map[int64][]int64{4: {2}}}, discardLogger(), 10)

	report, err := r.Repair(context.Background(), 4)
	require.NoError(t, err)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.failures.WithLabelValues(string(outbox.KindInvoiceConfirmed))))
}

func TestReconcilerJoinsListErrors(t *testing.T) {
	stub := &repairStub{failList: true}
	r := NewReconciler(newTestProjector(t, &memoryLedger{}, newMemorySources()), stub, discardLogger(), 10)

	report, err := r.Repair(context.Background(), 3)
	require.Error(t, err)
	require.Contains(t, err.Error(), "payments unavailable")
	require.Equal(t, 1, report.Companies)
}
