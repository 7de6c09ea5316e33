package lifecycle

import (
	"context"
	"errors"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/odyssey-erp/tradeflow/internal/ledger"
	"github.com/odyssey-erp/tradeflow/internal/outbox"
	"github.com/odyssey-erp/tradeflow/internal/scope"
	"github.com/odyssey-erp/tradeflow/internal/sequence"
)

type memoryState struct {
	invoices  map[int64]Invoice
	lines     map[int64][]InvoiceLine
	orders    map[int64]Order
	payments  map[int64]Payment
	txns      map[int64]PaymentTransaction
	shipments map[int64]Shipment
	pos       map[int64]PurchaseOrder
	ledger    map[ledger.Reference]int
	events    []outbox.Event
}

func (s memoryState) clone() memoryState {
	return memoryState{
		invoices:  maps.Clone(s.invoices),
		lines:     maps.Clone(s.lines),
		orders:    maps.Clone(s.orders),
		payments:  maps.Clone(s.payments),
		txns:      maps.Clone(s.txns),
		shipments: maps.Clone(s.shipments),
		pos:       maps.Clone(s.pos),
		ledger:    maps.Clone(s.ledger),
		events:    append([]outbox.Event(nil), s.events...),
	}
}

// memoryRepo commits a cloned state only when the unit of work succeeds.
type memoryRepo struct {
	mu       sync.Mutex
	state    memoryState
	counters *sequence.MemoryStore
	nextID   int64
	failOn   string
	bases    map[int64]string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		state: memoryState{
			invoices:  map[int64]Invoice{},
			lines:     map[int64][]InvoiceLine{},
			orders:    map[int64]Order{},
			payments:  map[int64]Payment{},
			txns:      map[int64]PaymentTransaction{},
			shipments: map[int64]Shipment{},
			pos:       map[int64]PurchaseOrder{},
			ledger:    map[ledger.Reference]int{},
		},
		counters: sequence.NewMemoryStore(),
		nextID:   100,
	}
}

var errInjected = errors.New("injected failure")

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{repo: r, state: r.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.state = tx.state
	return nil
}

func (r *memoryRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) addInvoice(inv Invoice, lines ...InvoiceLine) Invoice {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inv.ID == 0 {
		inv.ID = r.id()
	}
	for i := range lines {
		lines[i].InvoiceID = inv.ID
		lines[i].ID = r.id()
	}
	r.state.invoices[inv.ID] = inv
	r.state.lines[inv.ID] = lines
	return inv
}

func (r *memoryRepo) addLedgerRef(ref ledger.Reference) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.ledger[ref]++
}

func (r *memoryRepo) hasLedgerRef(ref ledger.Reference) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.ledger[ref] > 0
}

func (r *memoryRepo) snapshot() memoryState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

func (r *memoryRepo) GetOrder(ctx context.Context, id int64) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.state.orders[id]
	if !ok {
		return Order{}, notFound("order", id)
	}
	return o, nil
}

func (r *memoryRepo) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	po, ok := r.state.pos[id]
	if !ok {
		return PurchaseOrder{}, notFound("purchase order", id)
	}
	return po, nil
}

func (r *memoryRepo) OrderDocument(ctx context.Context, orderID int64) (DocumentSource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.state.orders[orderID]
	if !ok {
		return DocumentSource{}, notFound("order", orderID)
	}
	inv := r.state.invoices[o.SourceInvoiceID]
	return DocumentSource{Order: o, Invoice: inv, Lines: r.state.lines[inv.ID], Party: Party{Name: inv.PartyName}}, nil
}

func listVisible[T any](items map[int64]T, filter scope.Filter, owner func(T) (int64, int64), keep func(T) bool) []T {
	ids := make([]int64, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	var out []T
	for _, id := range ids {
		item := items[id]
		company, creator := owner(item)
		if filter.Allows(company, creator) && keep(item) {
			out = append(out, item)
		}
	}
	return out
}

func (r *memoryRepo) ListOrders(ctx context.Context, filter scope.Filter, lf ListFilters) ([]Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := listVisible(r.state.orders, filter, func(o Order) (int64, int64) { return o.CompanyID, o.CreatedBy }, func(o Order) bool {
		return (lf.Status == "" || string(o.Status) == lf.Status) && strings.Contains(o.Number, lf.Search)
	})
	return out, len(out), nil
}

func (r *memoryRepo) ListPurchaseOrders(ctx context.Context, filter scope.Filter, lf ListFilters) ([]PurchaseOrder, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := listVisible(r.state.pos, filter, func(po PurchaseOrder) (int64, int64) { return po.CompanyID, po.CreatedBy }, func(po PurchaseOrder) bool {
		return lf.Status == "" || string(po.Status) == lf.Status
	})
	return out, len(out), nil
}

func (r *memoryRepo) ListShipments(ctx context.Context, filter scope.Filter, lf ListFilters) ([]Shipment, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := listVisible(r.state.shipments, filter, func(s Shipment) (int64, int64) { return s.CompanyID, s.CreatedBy }, func(s Shipment) bool {
		return lf.Status == "" || string(s.Status) == lf.Status
	})
	return out, len(out), nil
}

type memoryTx struct {
	repo  *memoryRepo
	state memoryState
}

func (t *memoryTx) fail(op string) error {
	if t.repo.failOn == op {
		return errInjected
	}
	return nil
}

func (t *memoryTx) LockInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, ok := t.state.invoices[id]
	if !ok {
		return Invoice{}, notFound("invoice", id)
	}
	return inv, nil
}

func (t *memoryTx) CompanyBaseCurrency(ctx context.Context, companyID int64) (string, error) {
	return t.repo.bases[companyID], nil
}

func (t *memoryTx) InvoiceLines(ctx context.Context, invoiceID int64) ([]InvoiceLine, error) {
	return append([]InvoiceLine(nil), t.state.lines[invoiceID]...), nil
}

func (t *memoryTx) UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus) error {
	inv := t.state.invoices[id]
	inv.Status = status
	t.state.invoices[id] = inv
	return t.fail("UpdateInvoiceStatus")
}

func (t *memoryTx) DeleteInvoice(ctx context.Context, id int64) error {
	for oid, o := range t.state.orders {
		if o.SourceInvoiceID == id {
			for sid, s := range t.state.shipments {
				if s.OrderID == oid {
					delete(t.state.shipments, sid)
				}
			}
			delete(t.state.orders, oid)
		}
	}
	for pid, p := range t.state.payments {
		if p.SourceInvoiceID == id {
			for tid, txn := range t.state.txns {
				if txn.PaymentID == pid {
					delete(t.state.txns, tid)
				}
			}
			delete(t.state.payments, pid)
		}
	}
	delete(t.state.lines, id)
	delete(t.state.invoices, id)
	return nil
}

func (t *memoryTx) OrderExistsForInvoice(ctx context.Context, invoiceID int64) (bool, error) {
	for _, o := range t.state.orders {
		if o.SourceInvoiceID == invoiceID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) InsertOrder(ctx context.Context, o Order) (Order, error) {
	if exists, _ := t.OrderExistsForInvoice(ctx, o.SourceInvoiceID); exists {
		return Order{}, ErrOrderExists
	}
	o.ID = t.repo.id()
	t.state.orders[o.ID] = o
	return o, t.fail("InsertOrder")
}

func (t *memoryTx) LockOrder(ctx context.Context, id int64) (Order, error) {
	o, ok := t.state.orders[id]
	if !ok {
		return Order{}, notFound("order", id)
	}
	return o, nil
}

func (t *memoryTx) UpdateOrder(ctx context.Context, o Order) error {
	t.state.orders[o.ID] = o
	return nil
}

func (t *memoryTx) SetOrderPaymentStatus(ctx context.Context, invoiceID int64, status PaymentStatus, actorID int64) error {
	for id, o := range t.state.orders {
		if o.SourceInvoiceID == invoiceID {
			o.PaymentStatus = status
			o.UpdatedBy = actorID
			t.state.orders[id] = o
		}
	}
	return nil
}

func (t *memoryTx) PaymentForInvoice(ctx context.Context, invoiceID int64) (Payment, bool, error) {
	for _, p := range t.state.payments {
		if p.SourceInvoiceID == invoiceID {
			return p, true, nil
		}
	}
	return Payment{}, false, nil
}

func (t *memoryTx) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	if _, exists, _ := t.PaymentForInvoice(ctx, p.SourceInvoiceID); exists {
		return Payment{}, ErrPaymentExists
	}
	p.ID = t.repo.id()
	t.state.payments[p.ID] = p
	return p, nil
}

func (t *memoryTx) LockPayment(ctx context.Context, id int64) (Payment, error) {
	p, ok := t.state.payments[id]
	if !ok {
		return Payment{}, notFound("payment", id)
	}
	return p, nil
}

func (t *memoryTx) UpdatePayment(ctx context.Context, p Payment) error {
	t.state.payments[p.ID] = p
	return nil
}

func (t *memoryTx) InsertPaymentTransaction(ctx context.Context, txn PaymentTransaction) (PaymentTransaction, error) {
	txn.ID = t.repo.id()
	t.state.txns[txn.ID] = txn
	return txn, t.fail("InsertPaymentTransaction")
}

func (t *memoryTx) LockPaymentTransaction(ctx context.Context, id int64) (PaymentTransaction, error) {
	txn, ok := t.state.txns[id]
	if !ok {
		return PaymentTransaction{}, notFound("payment transaction", id)
	}
	return txn, nil
}

func (t *memoryTx) DeletePaymentTransaction(ctx context.Context, id int64) error {
	delete(t.state.txns, id)
	return nil
}

func (t *memoryTx) PaymentTransactionIDsForInvoice(ctx context.Context, invoiceID int64) ([]int64, error) {
	var ids []int64
	for id, txn := range t.state.txns {
		if p, ok := t.state.payments[txn.PaymentID]; ok && p.SourceInvoiceID == invoiceID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (t *memoryTx) InsertPurchaseOrder(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	po.ID = t.repo.id()
	items := append([]PurchaseOrderItem(nil), po.Items...)
	for i := range items {
		items[i].ID = t.repo.id()
	}
	po.Items = items
	t.state.pos[po.ID] = po
	return po, nil
}

func (t *memoryTx) LockPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, ok := t.state.pos[id]
	if !ok {
		return PurchaseOrder{}, notFound("purchase order", id)
	}
	return po, nil
}

func (t *memoryTx) UpdatePurchaseOrderStatus(ctx context.Context, id int64, status POStatus) error {
	po := t.state.pos[id]
	po.Status = status
	t.state.pos[id] = po
	return nil
}

func (t *memoryTx) DeletePurchaseOrder(ctx context.Context, id int64) error {
	delete(t.state.pos, id)
	return nil
}

func (t *memoryTx) ShipmentExistsForOrder(ctx context.Context, orderID int64) (bool, error) {
	for _, s := range t.state.shipments {
		if s.OrderID == orderID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) InsertShipment(ctx context.Context, s Shipment) (Shipment, error) {
	s.ID = t.repo.id()
	t.state.shipments[s.ID] = s
	return s, nil
}

func (t *memoryTx) LockShipment(ctx context.Context, id int64) (Shipment, error) {
	s, ok := t.state.shipments[id]
	if !ok {
		return Shipment{}, notFound("shipment", id)
	}
	return s, nil
}

func (t *memoryTx) UpdateShipmentStatus(ctx context.Context, id int64, status ShipmentStatus) error {
	s := t.state.shipments[id]
	s.Status = status
	t.state.shipments[id] = s
	return nil
}

func (t *memoryTx) Counters() sequence.CounterStore {
	return t.repo.counters
}

func (t *memoryTx) RecordEvent(ctx context.Context, evt outbox.Event) error {
	if err := t.fail("RecordEvent"); err != nil {
		return err
	}
	t.state.events = append(t.state.events, evt)
	return nil
}

func (t *memoryTx) DeleteLedgerEntries(ctx context.Context, refs []ledger.Reference) (int64, error) {
	var n int64
	for _, ref := range refs {
		n += int64(t.state.ledger[ref])
		delete(t.state.ledger, ref)
	}
	return n, nil
}

type recordingDispatcher struct {
	mu   sync.Mutex
	ids  []uuid.UUID
	err  error
	fail int
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, ids ...uuid.UUID) (outbox.Report, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, ids...)
	if d.err != nil {
		return outbox.Report{}, d.err
	}
	return outbox.Report{Processed: len(ids) - d.fail, Failed: d.fail}, nil
}

type countingCache struct {
	mu    sync.Mutex
	calls map[int64]int
	err   error
}

func (c *countingCache) Invalidate(ctx context.Context, companyID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[int64]int{}
	}
	c.calls[companyID]++
	return c.err
}

type memoryIdempotency struct {
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys == nil {
		m.keys = map[string]bool{}
	}
	k := module + "/" + key
	if m.keys[k] {
		return errDuplicateKey
	}
	m.keys[k] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key, module string) error {
	delete(m.keys, module+"/"+key)
	return nil
}
