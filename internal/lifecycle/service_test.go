package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/tradeflow/internal/ledger"
	"github.com/odyssey-erp/tradeflow/internal/outbox"
	"github.com/odyssey-erp/tradeflow/internal/sequence"
	"github.com/odyssey-erp/tradeflow/internal/shared"
)

var (
	errDuplicateKey = shared.ErrIdempotencyConflict
	fixedNow        = time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)
	admin           = shared.Principal{CompanyID: 1, UserID: 10, Role: shared.RoleAdmin}
	staff           = shared.Principal{CompanyID: 1, UserID: 20, Role: shared.RoleStaff}
)

type fixture struct {
	repo    *memoryRepo
	events  *recordingDispatcher
	cache   *countingCache
	idem    *memoryIdempotency
	metrics *Metrics
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:    newMemoryRepo(),
		events:  &recordingDispatcher{},
		cache:   &countingCache{},
		idem:    &memoryIdempotency{},
		metrics: NewMetrics(prometheus.NewRegistry()),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gen := sequence.NewGenerator(nil, sequence.Options{Logger: logger}).WithNow(func() time.Time { return fixedNow })
	f.svc = NewService(Config{
		Repo:        f.repo,
		Sequences:   gen,
		Events:      f.events,
		Dashboard:   f.cache,
		Idempotency: f.idem,
		Logger:      logger,
		Metrics:     f.metrics,
	})
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) draftInvoice(total, advance float64) Invoice {
	return f.repo.addInvoice(Invoice{
		CompanyID: 1, Number: "PI-001", Status: InvoiceDraft, Currency: "INR",
		Total: total, Advance: advance, PartyName: "Acme Traders", CreatedBy: 10,
		InvoiceDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	},
		InvoiceLine{Description: "Basmati rice", Packaging: "25kg bags", Quantity: 10, Rate: 60, Amount: 600},
		InvoiceLine{Description: "Turmeric", Packaging: "1kg jars", Quantity: 5.5, Rate: 72.73, Amount: 400},
	)
}

func (f *fixture) confirmedOrder(t *testing.T) (Invoice, ConfirmResult) {
	t.Helper()
	inv := f.draftInvoice(1000, 200)
	res, err := f.svc.ConfirmInvoiceIntoOrder(context.Background(), admin, inv.ID, OrderExtras{})
	require.NoError(t, err)
	return inv, res
}

func TestConfirmInvoiceIntoOrder(t *testing.T) {
	f := newFixture(t)
	inv := f.draftInvoice(1000, 200)

	res, err := f.svc.ConfirmInvoiceIntoOrder(context.Background(), admin, inv.ID, OrderExtras{BookingNumber: " BK-7 ", WaybillNumber: "   "})
	require.NoError(t, err)

	order := res.Order
	require.Equal(t, "ORD-20240305-0001", order.Number)
	require.Equal(t, OrderConfirmed, order.Status)
	require.Equal(t, PaymentPending, order.PaymentStatus)
	require.Equal(t, 1000.0, order.Total)
	require.Equal(t, "INR", order.Currency)
	require.Equal(t, 15.5, order.ProductQty)
	require.NotNil(t, order.BookingNumber)
	require.Equal(t, "BK-7", *order.BookingNumber)
	require.Nil(t, order.WaybillNumber)
	require.Nil(t, order.TruckNumber)

	require.NotNil(t, res.Payment)
	require.Equal(t, 1200.0, res.Payment.Amount)
	require.Equal(t, 1000.0, res.Payment.DueAmount)
	require.Equal(t, time.Date(2024, 4, 4, 0, 0, 0, 0, time.UTC), res.Payment.DueDate)
	require.Equal(t, PaymentPending, res.Payment.Status)

	state := f.repo.snapshot()
	require.Equal(t, InvoiceConfirmed, state.invoices[inv.ID].Status)
	require.Len(t, state.events, 1)
	require.Equal(t, outbox.KindInvoiceConfirmed, state.events[0].Kind)
	require.Equal(t, inv.ID, state.events[0].AggregateID)
	require.Equal(t, admin.UserID, state.events[0].Actor())

	require.Equal(t, []uuid.UUID{state.events[0].ID}, f.events.ids)
	require.Equal(t, 1, f.cache.calls[1])
}

func TestConfirmInvoiceTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	inv, _ := f.confirmedOrder(t)

	_, err := f.svc.ConfirmInvoiceIntoOrder(context.Background(), admin, inv.ID, OrderExtras{})
	require.ErrorIs(t, err, ErrOrderExists)
	require.ErrorIs(t, err, shared.ErrConflict)

	state := f.repo.snapshot()
	require.Len(t, state.orders, 1)
	require.Len(t, state.payments, 1)
	require.Len(t, state.events, 1)
}

func TestConfirmInvoicePreconditions(t *testing.T) {
	f := newFixture(t)
	cancelled := f.repo.addInvoice(Invoice{CompanyID: 1, Number: "PI-X", Status: InvoiceCancelled, Currency: "INR", Total: 10, CreatedBy: 10})
	foreign := f.repo.addInvoice(Invoice{CompanyID: 2, Number: "PI-Y", Status: InvoiceDraft, Currency: "INR", Total: 10, CreatedBy: 10})

	_, err := f.svc.ConfirmInvoiceIntoOrder(context.Background(), admin, cancelled.ID, OrderExtras{})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, err = f.svc.ConfirmInvoiceIntoOrder(context.Background(), admin, foreign.ID, OrderExtras{})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.svc.ConfirmInvoiceIntoOrder(context.Background(), admin, 9999, OrderExtras{})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.svc.ConfirmInvoiceIntoOrder(context.Background(), shared.Principal{CompanyID: 1, UserID: 10, Role: "guest"}, cancelled.ID, OrderExtras{})
	require.ErrorIs(t, err, shared.ErrForbidden)

	require.Empty(t, f.repo.snapshot().orders)
	require.Empty(t, f.events.ids)
}

func TestConfirmInvoiceRejectsMalformedInvoice(t *testing.T) {
	rice := InvoiceLine{Description: "Basmati rice", Quantity: 1, Rate: 100, Amount: 100}
	cases := map[string]struct {
		inv   Invoice
		lines []InvoiceLine
	}{
		"no lines":         {inv: Invoice{Total: 500}},
		"negative total":   {inv: Invoice{Total: -500}, lines: []InvoiceLine{rice}},
		"negative advance": {inv: Invoice{Total: 500, Advance: -100}, lines: []InvoiceLine{rice}},
		"nan total":        {inv: Invoice{Total: math.NaN()}, lines: []InvoiceLine{rice}},
		"inf advance":      {inv: Invoice{Total: 500, Advance: math.Inf(1)}, lines: []InvoiceLine{rice}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			tc.inv.CompanyID, tc.inv.Number, tc.inv.Currency, tc.inv.CreatedBy = 1, "PI-BAD", "INR", 10
			tc.inv.Status = InvoiceDraft
			draft := f.repo.addInvoice(tc.inv, tc.lines...)
			tc.inv.ID, tc.inv.Number, tc.inv.Status = 0, "PI-BAD-2", InvoiceConfirmed
			confirmed := f.repo.addInvoice(tc.inv, append([]InvoiceLine(nil), tc.lines...)...)

			_, err := f.svc.ConfirmInvoiceIntoOrder(context.Background(), admin, draft.ID, OrderExtras{})
			require.ErrorIs(t, err, shared.ErrValidation)
			_, err = f.svc.CreateOrderSnapshotFromInvoice(context.Background(), admin, confirmed.ID, OrderExtras{})
			require.ErrorIs(t, err, shared.ErrValidation)

			state := f.repo.snapshot()
			require.Empty(t, state.orders)
			require.Empty(t, state.payments)
			require.Empty(t, state.events)
			require.Equal(t, InvoiceDraft, state.invoices[draft.ID].Status)
		})
	}
}

func TestConfirmInvoiceRollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	inv := f.draftInvoice(1000, 0)
	f.repo.failOn = "RecordEvent"

	_, err := f.svc.ConfirmInvoiceIntoOrder(context.Background(), admin, inv.ID, OrderExtras{})
	require.ErrorIs(t, err, errInjected)

	state := f.repo.snapshot()
	require.Empty(t, state.orders)
	require.Empty(t, state.payments)
	require.Empty(t, state.events)
	require.Equal(t, InvoiceDraft, state.invoices[inv.ID].Status)
	require.Empty(t, f.cache.calls)
}

func TestConfirmInvoiceKeepsExistingPayment(t *testing.T) {
	f := newFixture(t)
	inv := f.draftInvoice(1000, 0)
	err := f.repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		_, err := tx.InsertPayment(ctx, Payment{CompanyID: 1, SourceInvoiceID: inv.ID, Amount: 1000, DueAmount: 600, PaidAmount: 400, Status: PaymentPartial, CreatedBy: 10})
		return err
	})
	require.NoError(t, err)

	res, err := f.svc.ConfirmInvoiceIntoOrder(context.Background(), admin, inv.ID, OrderExtras{})
	require.NoError(t, err)
	require.Nil(t, res.Payment)
	require.Equal(t, PaymentPartial, res.Order.PaymentStatus)
	require.Len(t, f.repo.snapshot().payments, 1)
}

func TestPostCommitFailuresAreBestEffort(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("handler exploded")
	f.cache.err = errors.New("redis down")
	inv := f.draftInvoice(500, 0)

	res, err := f.svc.ConfirmInvoiceIntoOrder(context.Background(), admin, inv.ID, OrderExtras{})
	require.NoError(t, err)
	require.NotZero(t, res.Order.ID)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.sideEffects.WithLabelValues("dispatch")))
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.sideEffects.WithLabelValues("dashboard_invalidate")))
}

func TestCreateOrderSnapshotFromInvoice(t *testing.T) {
	f := newFixture(t)
	draft := f.draftInvoice(800, 0)

	_, err := f.svc.CreateOrderSnapshotFromInvoice(context.Background(), admin, draft.ID, OrderExtras{})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	confirmed := f.repo.addInvoice(Invoice{CompanyID: 1, Number: "PI-002", Status: InvoiceConfirmed, Currency: "USD", Total: 250, CreatedBy: 10},
		InvoiceLine{Description: "Cardamom", Quantity: 2, Rate: 125, Amount: 250})
	order, err := f.svc.CreateOrderSnapshotFromInvoice(context.Background(), admin, confirmed.ID, OrderExtras{TruckNumber: "MH12AB1234"})
	require.NoError(t, err)
	require.Equal(t, "ORD-20240305-0001", order.Number)
	require.Equal(t, OrderPending, order.Status)
	require.Equal(t, "USD", order.Currency)
	require.Equal(t, "MH12AB1234", *order.TruckNumber)

	state := f.repo.snapshot()
	require.Empty(t, state.payments)
	require.Empty(t, state.events)
	require.Equal(t, InvoiceConfirmed, state.invoices[confirmed.ID].Status)

	_, err = f.svc.CreateOrderSnapshotFromInvoice(context.Background(), admin, confirmed.ID, OrderExtras{})
	require.ErrorIs(t, err, ErrOrderExists)
}

func TestOrderNumbersAreSequentialPerCompany(t *testing.T) {
	f := newFixture(t)
	var numbers []string
	for i := 0; i < 3; i++ {
		inv := f.draftInvoice(100, 0)
		res, err := f.svc.ConfirmInvoiceIntoOrder(context.Background(), admin, inv.ID, OrderExtras{})
		require.NoError(t, err)
		numbers = append(numbers, res.Order.Number)
	}
	other := f.repo.addInvoice(Invoice{CompanyID: 2, Number: "PI-9", Status: InvoiceDraft, Currency: "INR", Total: 1, CreatedBy: 30}, InvoiceLine{Description: "Cumin", Quantity: 1, Rate: 1, Amount: 1})
	res, err := f.svc.ConfirmInvoiceIntoOrder(context.Background(), shared.Principal{CompanyID: 2, UserID: 30, Role: shared.RoleAdmin}, other.ID, OrderExtras{})
	require.NoError(t, err)

	require.Equal(t, []string{"ORD-20240305-0001", "ORD-20240305-0002", "ORD-20240305-0003"}, numbers)
	require.Equal(t, "ORD-20240305-0001", res.Order.Number)
}

func TestUpdateOrder(t *testing.T) {
	f := newFixture(t)
	_, res := f.confirmedOrder(t)
	blank, booking := " ", "BK-42"
	processing := OrderProcessing

	order, err := f.svc.UpdateOrder(context.Background(), staff, res.Order.ID, UpdateOrderInput{
		BookingNumber: &booking,
		TruckNumber:   &blank,
		Status:        &processing,
	})
	require.NoError(t, err)
	require.Equal(t, "BK-42", *order.BookingNumber)
	require.Nil(t, order.TruckNumber)
	require.Equal(t, OrderProcessing, order.Status)
	require.Equal(t, staff.UserID, order.UpdatedBy)
	require.Equal(t, res.Order.Number, order.Number)

	pending := OrderPending
	_, err = f.svc.UpdateOrder(context.Background(), admin, res.Order.ID, UpdateOrderInput{Status: &pending})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	bogus := OrderStatus("lost")
	_, err = f.svc.UpdateOrder(context.Background(), admin, res.Order.ID, UpdateOrderInput{Status: &bogus})
	require.ErrorIs(t, err, shared.ErrValidation)

	require.Len(t, f.repo.snapshot().payments, 1)
}

func TestRecordPayment(t *testing.T) {
	f := newFixture(t)
	inv, res := f.confirmedOrder(t)
	paymentID := res.Payment.ID

	first, err := f.svc.RecordPayment(context.Background(), admin, RecordPaymentInput{PaymentID: paymentID, Amount: 400, Method: "wire"})
	require.NoError(t, err)
	require.Equal(t, 600.0, first.Payment.DueAmount)
	require.Equal(t, 400.0, first.Payment.PaidAmount)
	require.Equal(t, PaymentPartial, first.Payment.Status)
	require.Equal(t, fixedNow.Truncate(24*time.Hour), first.Transaction.PaidAt)

	state := f.repo.snapshot()
	require.Equal(t, PaymentPartial, state.orders[res.Order.ID].PaymentStatus)

	_, err = f.svc.RecordPayment(context.Background(), admin, RecordPaymentInput{PaymentID: paymentID, Amount: 600.01})
	require.ErrorIs(t, err, shared.ErrValidation)

	second, err := f.svc.RecordPayment(context.Background(), admin, RecordPaymentInput{PaymentID: paymentID, Amount: 600})
	require.NoError(t, err)
	require.Zero(t, second.Payment.DueAmount)
	require.Equal(t, PaymentPaid, second.Payment.Status)
	require.NotEqual(t, first.Transaction.ID, second.Transaction.ID)

	state = f.repo.snapshot()
	require.Equal(t, PaymentPaid, state.orders[res.Order.ID].PaymentStatus)
	require.Equal(t, InvoiceConfirmed, state.invoices[inv.ID].Status)

	var recorded []int64
	for _, evt := range state.events {
		if evt.Kind == outbox.KindPaymentRecorded {
			recorded = append(recorded, evt.AggregateID)
		}
	}
	require.Equal(t, []int64{first.Transaction.ID, second.Transaction.ID}, recorded)

	_, err = f.svc.RecordPayment(context.Background(), admin, RecordPaymentInput{PaymentID: paymentID, Amount: 0})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRecordPaymentIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	_, res := f.confirmedOrder(t)
	in := RecordPaymentInput{PaymentID: res.Payment.ID, Amount: 100, IdempotencyKey: "req-1"}

	_, err := f.svc.RecordPayment(context.Background(), admin, in)
	require.NoError(t, err)
	_, err = f.svc.RecordPayment(context.Background(), admin, in)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Len(t, f.repo.snapshot().txns, 1)

	f.repo.failOn = "InsertPaymentTransaction"
	in.IdempotencyKey = "req-2"
	_, err = f.svc.RecordPayment(context.Background(), admin, in)
	require.ErrorIs(t, err, errInjected)
	require.False(t, f.idem.keys[paymentModule+"/req-2"])

	f.repo.failOn = ""
	_, err = f.svc.RecordPayment(context.Background(), admin, in)
	require.NoError(t, err)
	require.Len(t, f.repo.snapshot().txns, 2)
}

func TestDeletePaymentTransactionReverses(t *testing.T) {
	f := newFixture(t)
	_, res := f.confirmedOrder(t)
	paid, err := f.svc.RecordPayment(context.Background(), admin, RecordPaymentInput{PaymentID: res.Payment.ID, Amount: 400})
	require.NoError(t, err)
	ref := ledger.Reference{Type: ledger.RefPayment, ID: paid.Transaction.ID}
	f.repo.addLedgerRef(ref)

	require.NoError(t, f.svc.DeletePaymentTransaction(context.Background(), admin, paid.Transaction.ID))

	state := f.repo.snapshot()
	pay := state.payments[res.Payment.ID]
	require.Equal(t, 1000.0, pay.DueAmount)
	require.Zero(t, pay.PaidAmount)
	require.Equal(t, PaymentPending, pay.Status)
	require.Equal(t, PaymentPending, state.orders[res.Order.ID].PaymentStatus)
	require.Empty(t, state.txns)
	require.False(t, f.repo.hasLedgerRef(ref))

	err = f.svc.DeletePaymentTransaction(context.Background(), admin, paid.Transaction.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReversedStatus(t *testing.T) {
	due := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	require.Equal(t, PaymentPending, reversedStatus(Payment{DueAmount: 10, DueDate: due}, fixedNow))
	require.Equal(t, PaymentPartial, reversedStatus(Payment{DueAmount: 10, PaidAmount: 5, DueDate: due}, fixedNow))
	require.Equal(t, PaymentOverdue, reversedStatus(Payment{DueAmount: 10, PaidAmount: 5, DueDate: due}, due.AddDate(0, 0, 1)))
}

func TestDeleteInvoiceRemovesLedgerEntries(t *testing.T) {
	f := newFixture(t)
	inv, res := f.confirmedOrder(t)
	paid, err := f.svc.RecordPayment(context.Background(), admin, RecordPaymentInput{PaymentID: res.Payment.ID, Amount: 100})
	require.NoError(t, err)
	_, err = f.svc.CreateShipment(context.Background(), admin, res.Order.ID, ShipmentInput{})
	require.NoError(t, err)

	invoiceRef := ledger.Reference{Type: ledger.RefInvoice, ID: inv.ID}
	paymentRef := ledger.Reference{Type: ledger.RefPayment, ID: paid.Transaction.ID}
	otherRef := ledger.Reference{Type: ledger.RefInvoice, ID: 424242}
	f.repo.addLedgerRef(invoiceRef)
	f.repo.addLedgerRef(invoiceRef)
	f.repo.addLedgerRef(paymentRef)
	f.repo.addLedgerRef(otherRef)

	require.NoError(t, f.svc.DeleteInvoice(context.Background(), admin, inv.ID))

	state := f.repo.snapshot()
	require.Empty(t, state.invoices)
	require.Empty(t, state.orders)
	require.Empty(t, state.payments)
	require.Empty(t, state.txns)
	require.Empty(t, state.shipments)
	require.False(t, f.repo.hasLedgerRef(invoiceRef))
	require.False(t, f.repo.hasLedgerRef(paymentRef))
	require.True(t, f.repo.hasLedgerRef(otherRef))
}

func TestCreatePurchaseOrderTotals(t *testing.T) {
	f := newFixture(t)
	po, err := f.svc.CreatePurchaseOrder(context.Background(), staff, PurchaseOrderInput{
		SupplierName: " Steel Co ",
		TaxRate:      18,
		Items: []PurchaseOrderItemInput{
			{Description: "Angle bar", Quantity: 2, Rate: 100},
			{Description: "Bolts", Quantity: 3, Rate: 33.33},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "PO-202403-0001", po.Number)
	require.Equal(t, "Steel Co", po.SupplierName)
	require.Equal(t, "INR", po.Currency)
	require.Equal(t, PODraft, po.Status)
	require.Equal(t, 299.99, po.Subtotal)
	require.Equal(t, 54.0, po.TaxAmount)
	require.Equal(t, 353.99, po.GrandTotal)
	require.Len(t, po.Items, 2)
	require.Equal(t, 99.99, po.Items[1].Amount)
	require.Equal(t, staff.UserID, po.CreatedBy)

	state := f.repo.snapshot()
	require.Len(t, state.events, 1)
	require.Equal(t, outbox.KindPurchaseOrderCreated, state.events[0].Kind)
	require.Equal(t, po.ID, state.events[0].AggregateID)
}

func TestCreatePurchaseOrderDefaultsToCompanyCurrency(t *testing.T) {
	f := newFixture(t)
	f.repo.bases = map[int64]string{2: "usd"}
	items := []PurchaseOrderItemInput{{Description: "Jute sacks", Quantity: 10, Rate: 2}}

	po, err := f.svc.CreatePurchaseOrder(context.Background(), shared.Principal{CompanyID: 2, UserID: 30, Role: shared.RoleAdmin}, PurchaseOrderInput{
		SupplierName: "Sack Mill", Items: items,
	})
	require.NoError(t, err)
	require.Equal(t, "USD", po.Currency)

	explicit, err := f.svc.CreatePurchaseOrder(context.Background(), shared.Principal{CompanyID: 2, UserID: 30, Role: shared.RoleAdmin}, PurchaseOrderInput{
		SupplierName: "Sack Mill", Currency: "eur", Items: items,
	})
	require.NoError(t, err)
	require.Equal(t, "EUR", explicit.Currency)
}

func TestCreatePurchaseOrderValidation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]PurchaseOrderInput{
		"no items":      {SupplierName: "S"},
		"no supplier":   {Items: []PurchaseOrderItemInput{{Description: "x", Quantity: 1, Rate: 1}}},
		"zero quantity": {SupplierName: "S", Items: []PurchaseOrderItemInput{{Description: "x", Quantity: 0, Rate: 1}}},
		"negative rate": {SupplierName: "S", Items: []PurchaseOrderItemInput{{Description: "x", Quantity: 1, Rate: -1}}},
		"tax above 100": {SupplierName: "S", TaxRate: 101, Items: []PurchaseOrderItemInput{{Description: "x", Quantity: 1, Rate: 1}}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.CreatePurchaseOrder(context.Background(), admin, in)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
	require.Empty(t, f.repo.snapshot().pos)
}

func TestPurchaseOrderStatusAndDeletion(t *testing.T) {
	f := newFixture(t)
	in := PurchaseOrderInput{SupplierName: "S", Items: []PurchaseOrderItemInput{{Description: "x", Quantity: 1, Rate: 10}}}
	first, err := f.svc.CreatePurchaseOrder(context.Background(), admin, in)
	require.NoError(t, err)
	second, err := f.svc.CreatePurchaseOrder(context.Background(), admin, in)
	require.NoError(t, err)
	require.Equal(t, "PO-202403-0002", second.Number)

	firstRef := ledger.Reference{Type: ledger.RefPurchaseOrder, ID: first.ID}
	secondRef := ledger.Reference{Type: ledger.RefPurchaseOrder, ID: second.ID}
	f.repo.addLedgerRef(firstRef)
	f.repo.addLedgerRef(secondRef)

	issued, err := f.svc.UpdatePurchaseOrderStatus(context.Background(), admin, first.ID, POIssued)
	require.NoError(t, err)
	require.Equal(t, POIssued, issued.Status)
	_, err = f.svc.UpdatePurchaseOrderStatus(context.Background(), admin, first.ID, PODraft)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	require.NoError(t, f.svc.DeletePurchaseOrder(context.Background(), admin, first.ID))
	require.False(t, f.repo.hasLedgerRef(firstRef))
	require.True(t, f.repo.hasLedgerRef(secondRef))

	_, err = f.svc.UpdatePurchaseOrderStatus(context.Background(), admin, second.ID, POCancelled)
	require.NoError(t, err)
	require.False(t, f.repo.hasLedgerRef(secondRef))
}

func TestShipmentLifecycle(t *testing.T) {
	f := newFixture(t)
	_, res := f.confirmedOrder(t)

	shipment, err := f.svc.CreateShipment(context.Background(), admin, res.Order.ID, ShipmentInput{BookingRef: "BK-1"})
	require.NoError(t, err)
	require.Equal(t, "SH20240305001", shipment.Number)
	require.Equal(t, ShipmentPending, shipment.Status)
	require.Equal(t, "BK-1", *shipment.BookingRef)
	require.Nil(t, shipment.WaybillRef)

	_, err = f.svc.CreateShipment(context.Background(), admin, res.Order.ID, ShipmentInput{})
	require.ErrorIs(t, err, ErrShipmentExists)

	_, err = f.svc.UpdateShipmentStatus(context.Background(), admin, shipment.ID, ShipmentDelivered)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	for _, next := range []ShipmentStatus{ShipmentBooked, ShipmentInTransit} {
		_, err = f.svc.UpdateShipmentStatus(context.Background(), admin, shipment.ID, next)
		require.NoError(t, err)
	}
	require.Equal(t, OrderShipped, f.repo.snapshot().orders[res.Order.ID].Status)

	delivered, err := f.svc.UpdateShipmentStatus(context.Background(), admin, shipment.ID, ShipmentDelivered)
	require.NoError(t, err)
	require.Equal(t, ShipmentDelivered, delivered.Status)
	require.Equal(t, OrderDelivered, f.repo.snapshot().orders[res.Order.ID].Status)
}

func TestCreateShipmentMarksOrderShipped(t *testing.T) {
	f := newFixture(t)
	_, res := f.confirmedOrder(t)
	_, err := f.svc.CreateShipment(context.Background(), admin, res.Order.ID, ShipmentInput{MarkShipped: true})
	require.NoError(t, err)
	require.Equal(t, OrderShipped, f.repo.snapshot().orders[res.Order.ID].Status)
}

func TestCreateShipmentRequiresShippableOrder(t *testing.T) {
	f := newFixture(t)
	inv := f.repo.addInvoice(Invoice{CompanyID: 1, Number: "PI-3", Status: InvoiceConfirmed, Currency: "INR", Total: 5, CreatedBy: 10}, InvoiceLine{Description: "Cumin", Quantity: 1, Rate: 5, Amount: 5})
	order, err := f.svc.CreateOrderSnapshotFromInvoice(context.Background(), admin, inv.ID, OrderExtras{})
	require.NoError(t, err)

	_, err = f.svc.CreateShipment(context.Background(), admin, order.ID, ShipmentInput{})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.Empty(t, f.repo.snapshot().shipments)
}

func TestReadsAreRoleScoped(t *testing.T) {
	f := newFixture(t)
	staffInv := f.repo.addInvoice(Invoice{CompanyID: 1, Number: "PI-S", Status: InvoiceDraft, Currency: "INR", Total: 1, CreatedBy: staff.UserID}, InvoiceLine{Description: "Cumin", Quantity: 1, Rate: 1, Amount: 1})
	adminInv := f.repo.addInvoice(Invoice{CompanyID: 1, Number: "PI-A", Status: InvoiceDraft, Currency: "INR", Total: 1, CreatedBy: admin.UserID}, InvoiceLine{Description: "Cumin", Quantity: 1, Rate: 1, Amount: 1})
	own, err := f.svc.ConfirmInvoiceIntoOrder(context.Background(), staff, staffInv.ID, OrderExtras{})
	require.NoError(t, err)
	theirs, err := f.svc.ConfirmInvoiceIntoOrder(context.Background(), admin, adminInv.ID, OrderExtras{})
	require.NoError(t, err)

	_, err = f.svc.GetOrder(context.Background(), staff, theirs.Order.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	got, err := f.svc.GetOrder(context.Background(), staff, own.Order.ID)
	require.NoError(t, err)
	require.Equal(t, own.Order.Number, got.Number)

	staffList, page, err := f.svc.ListOrders(context.Background(), staff, ListFilters{})
	require.NoError(t, err)
	require.Len(t, staffList, 1)
	require.Equal(t, 1, page.Total)

	adminList, _, err := f.svc.ListOrders(context.Background(), admin, ListFilters{})
	require.NoError(t, err)
	require.Len(t, adminList, 2)

	outsider := shared.Principal{CompanyID: 2, UserID: 99, Role: shared.RoleSuperAdmin}
	_, err = f.svc.GetOrder(context.Background(), outsider, own.Order.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.svc.GetOrderDocument(context.Background(), staff, theirs.Order.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
