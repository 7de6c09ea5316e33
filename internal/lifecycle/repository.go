package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/tradeflow/internal/ledger"
	"github.com/odyssey-erp/tradeflow/internal/outbox"
	"github.com/odyssey-erp/tradeflow/internal/platform/db"
	"github.com/odyssey-erp/tradeflow/internal/scope"
	"github.com/odyssey-erp/tradeflow/internal/sequence"
	"github.com/odyssey-erp/tradeflow/internal/shared"
)

// TxRepository exposes the writes of one unit of work. Lock* methods take
// row locks held until commit.
type TxRepository interface {
	LockInvoice(ctx context.Context, id int64) (Invoice, error)
	InvoiceLines(ctx context.Context, invoiceID int64) ([]InvoiceLine, error)
	UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus) error
	DeleteInvoice(ctx context.Context, id int64) error

	OrderExistsForInvoice(ctx context.Context, invoiceID int64) (bool, error)
	InsertOrder(ctx context.Context, order Order) (Order, error)
	LockOrder(ctx context.Context, id int64) (Order, error)
	UpdateOrder(ctx context.Context, order Order) error
	SetOrderPaymentStatus(ctx context.Context, invoiceID int64, status PaymentStatus, actorID int64) error

	PaymentForInvoice(ctx context.Context, invoiceID int64) (Payment, bool, error)
	InsertPayment(ctx context.Context, payment Payment) (Payment, error)
	LockPayment(ctx context.Context, id int64) (Payment, error)
	UpdatePayment(ctx context.Context, payment Payment) error
	InsertPaymentTransaction(ctx context.Context, txn PaymentTransaction) (PaymentTransaction, error)
	LockPaymentTransaction(ctx context.Context, id int64) (PaymentTransaction, error)
	DeletePaymentTransaction(ctx context.Context, id int64) error
	PaymentTransactionIDsForInvoice(ctx context.Context, invoiceID int64) ([]int64, error)

	InsertPurchaseOrder(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error)
	LockPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdatePurchaseOrderStatus(ctx context.Context, id int64, status POStatus) error
	DeletePurchaseOrder(ctx context.Context, id int64) error

	ShipmentExistsForOrder(ctx context.Context, orderID int64) (bool, error)
	InsertShipment(ctx context.Context, shipment Shipment) (Shipment, error)
	LockShipment(ctx context.Context, id int64) (Shipment, error)
	UpdateShipmentStatus(ctx context.Context, id int64, status ShipmentStatus) error

	CompanyBaseCurrency(ctx context.Context, companyID int64) (string, error)
	Counters() sequence.CounterStore
	RecordEvent(ctx context.Context, evt outbox.Event) error
	DeleteLedgerEntries(ctx context.Context, refs []ledger.Reference) (int64, error)
}

// DocumentSource is everything the order document view-model is built from.
type DocumentSource struct {
	Order   Order
	Invoice Invoice
	Lines   []InvoiceLine
	Party   Party
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
	opts db.TxOptions
}

// NewRepository constructs a repository. opts applies to every unit of work.
func NewRepository(pool *pgxpool.Pool, opts db.TxOptions) *Repository {
	return &Repository{pool: pool, opts: opts}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs fn in a read-committed transaction with the configured lock and
// statement timeouts.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, r.opts, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const invoiceColumns = `id, company_id, invoice_number, status, currency, total_amount, advance_amount, party_id, party_name, terms, invoice_date, created_by`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var status string
	err := row.Scan(&inv.ID, &inv.CompanyID, &inv.Number, &status, &inv.Currency, &inv.Total, &inv.Advance,
		&inv.PartyID, &inv.PartyName, &inv.Terms, &inv.InvoiceDate, &inv.CreatedBy)
	inv.Status = InvoiceStatus(status)
	return inv, err
}

const orderColumns = `id, company_id, order_number, source_invoice_id, currency, total_amount, product_qty, terms, order_status, payment_status,
booking_number, waybill_number, truck_number, created_by, updated_by, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status, payStatus string
	err := row.Scan(&o.ID, &o.CompanyID, &o.Number, &o.SourceInvoiceID, &o.Currency, &o.Total, &o.ProductQty, &o.Terms,
		&status, &payStatus, &o.BookingNumber, &o.WaybillNumber, &o.TruckNumber, &o.CreatedBy, &o.UpdatedBy, &o.CreatedAt, &o.UpdatedAt)
	o.Status = OrderStatus(status)
	o.PaymentStatus = PaymentStatus(payStatus)
	return o, err
}

const paymentColumns = `id, company_id, source_invoice_id, party_id, amount, due_amount, paid_amount, due_date, status, created_by`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	var status string
	err := row.Scan(&p.ID, &p.CompanyID, &p.SourceInvoiceID, &p.PartyID, &p.Amount, &p.DueAmount, &p.PaidAmount, &p.DueDate, &status, &p.CreatedBy)
	p.Status = PaymentStatus(status)
	return p, err
}

const purchaseOrderColumns = `id, company_id, po_number, supplier_name, currency, status, subtotal, tax_rate, tax_amount, grand_total, issued_on, created_by`

func scanPurchaseOrder(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var status string
	err := row.Scan(&po.ID, &po.CompanyID, &po.Number, &po.SupplierName, &po.Currency, &status, &po.Subtotal, &po.TaxRate,
		&po.TaxAmount, &po.GrandTotal, &po.IssuedOn, &po.CreatedBy)
	po.Status = POStatus(status)
	return po, err
}

const shipmentColumns = `id, company_id, order_id, shipment_number, booking_ref, waybill_ref, truck_ref, status, created_by, created_at, updated_at`

func scanShipment(row pgx.Row) (Shipment, error) {
	var s Shipment
	var status string
	err := row.Scan(&s.ID, &s.CompanyID, &s.OrderID, &s.Number, &s.BookingRef, &s.WaybillRef, &s.TruckRef, &status, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	s.Status = ShipmentStatus(status)
	return s, err
}

func mapNoRows(err error, entity string, id int64) error {
	if db.IsNoRows(err) {
		return notFound(entity, id)
	}
	return err
}

func (t *txRepo) LockInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(t.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM source_invoices WHERE id = $1 FOR UPDATE`, id))
	return inv, mapNoRows(err, "invoice", id)
}

// CompanyBaseCurrency returns the company's base currency, or "" when the
// company row is missing.
func (t *txRepo) CompanyBaseCurrency(ctx context.Context, companyID int64) (string, error) {
	var base string
	err := t.tx.QueryRow(ctx, `SELECT base_currency FROM companies WHERE id = $1`, companyID).Scan(&base)
	if db.IsNoRows(err) {
		return "", nil
	}
	return base, err
}

func (t *txRepo) InvoiceLines(ctx context.Context, invoiceID int64) ([]InvoiceLine, error) {
	return queryInvoiceLines(ctx, t.tx, invoiceID)
}

func queryInvoiceLines(ctx context.Context, q db.Querier, invoiceID int64) ([]InvoiceLine, error) {
	rows, err := q.Query(ctx, `SELECT id, invoice_id, description, packaging, quantity, rate, amount
		FROM source_invoice_lines WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []InvoiceLine
	for rows.Next() {
		var l InvoiceLine
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.Description, &l.Packaging, &l.Quantity, &l.Rate, &l.Amount); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (t *txRepo) UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE source_invoices SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	return err
}

// DeleteInvoice removes the invoice with its order, shipment, payment and
// payment transactions. Lines, shipments and transactions go by cascade.
func (t *txRepo) DeleteInvoice(ctx context.Context, id int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM orders WHERE source_invoice_id = $1`, id); err != nil {
		return fmt.Errorf("delete orders: %w", err)
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM payments WHERE source_invoice_id = $1`, id); err != nil {
		return fmt.Errorf("delete payments: %w", err)
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM source_invoices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("invoice", id)
	}
	return nil
}

func (t *txRepo) OrderExistsForInvoice(ctx context.Context, invoiceID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE source_invoice_id = $1)`, invoiceID).Scan(&exists)
	return exists, err
}

func (t *txRepo) InsertOrder(ctx context.Context, o Order) (Order, error) {
	created, err := scanOrder(t.tx.QueryRow(ctx, `INSERT INTO orders
		(company_id, order_number, source_invoice_id, currency, total_amount, product_qty, terms, order_status, payment_status,
		 booking_number, waybill_number, truck_number, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		RETURNING `+orderColumns,
		o.CompanyID, o.Number, o.SourceInvoiceID, o.Currency, o.Total, o.ProductQty, o.Terms, string(o.Status), string(o.PaymentStatus),
		o.BookingNumber, o.WaybillNumber, o.TruckNumber, o.CreatedBy))
	if db.IsUniqueViolation(err, "orders_source_invoice_key") {
		return Order{}, ErrOrderExists
	}
	if db.IsUniqueViolation(err, "orders_number_key") {
		return Order{}, fmt.Errorf("%w: order number %s", shared.ErrSequenceContention, o.Number)
	}
	return created, err
}

func (t *txRepo) LockOrder(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	return o, mapNoRows(err, "order", id)
}

func (t *txRepo) UpdateOrder(ctx context.Context, o Order) error {
	_, err := t.tx.Exec(ctx, `UPDATE orders SET booking_number = $2, waybill_number = $3, truck_number = $4,
		order_status = $5, payment_status = $6, updated_by = $7, updated_at = NOW() WHERE id = $1`,
		o.ID, o.BookingNumber, o.WaybillNumber, o.TruckNumber, string(o.Status), string(o.PaymentStatus), o.UpdatedBy)
	return err
}

func (t *txRepo) SetOrderPaymentStatus(ctx context.Context, invoiceID int64, status PaymentStatus, actorID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE orders SET payment_status = $2, updated_by = $3, updated_at = NOW() WHERE source_invoice_id = $1`,
		invoiceID, string(status), actorID)
	return err
}

func (t *txRepo) PaymentForInvoice(ctx context.Context, invoiceID int64) (Payment, bool, error) {
	p, err := scanPayment(t.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE source_invoice_id = $1`, invoiceID))
	if db.IsNoRows(err) {
		return Payment{}, false, nil
	}
	if err != nil {
		return Payment{}, false, err
	}
	return p, true, nil
}

func (t *txRepo) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	created, err := scanPayment(t.tx.QueryRow(ctx, `INSERT INTO payments
		(company_id, source_invoice_id, party_id, amount, due_amount, paid_amount, due_date, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+paymentColumns,
		p.CompanyID, p.SourceInvoiceID, p.PartyID, p.Amount, p.DueAmount, p.PaidAmount, p.DueDate, string(p.Status), p.CreatedBy))
	if db.IsUniqueViolation(err, "payments_source_invoice_key") {
		return Payment{}, ErrPaymentExists
	}
	return created, err
}

func (t *txRepo) LockPayment(ctx context.Context, id int64) (Payment, error) {
	p, err := scanPayment(t.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id))
	return p, mapNoRows(err, "payment", id)
}

func (t *txRepo) UpdatePayment(ctx context.Context, p Payment) error {
	_, err := t.tx.Exec(ctx, `UPDATE payments SET due_amount = $2, paid_amount = $3, status = $4, updated_at = NOW() WHERE id = $1`,
		p.ID, p.DueAmount, p.PaidAmount, string(p.Status))
	return err
}

func (t *txRepo) InsertPaymentTransaction(ctx context.Context, txn PaymentTransaction) (PaymentTransaction, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO payment_transactions (company_id, payment_id, amount, paid_at, method, reference, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		txn.CompanyID, txn.PaymentID, txn.Amount, txn.PaidAt, txn.Method, txn.Reference, txn.CreatedBy).Scan(&txn.ID)
	return txn, err
}

func (t *txRepo) LockPaymentTransaction(ctx context.Context, id int64) (PaymentTransaction, error) {
	var txn PaymentTransaction
	err := t.tx.QueryRow(ctx, `SELECT id, company_id, payment_id, amount, paid_at, method, reference, created_by
		FROM payment_transactions WHERE id = $1 FOR UPDATE`, id,
	).Scan(&txn.ID, &txn.CompanyID, &txn.PaymentID, &txn.Amount, &txn.PaidAt, &txn.Method, &txn.Reference, &txn.CreatedBy)
	return txn, mapNoRows(err, "payment transaction", id)
}

func (t *txRepo) DeletePaymentTransaction(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM payment_transactions WHERE id = $1`, id)
	return err
}

func (t *txRepo) PaymentTransactionIDsForInvoice(ctx context.Context, invoiceID int64) ([]int64, error) {
	rows, err := t.tx.Query(ctx, `SELECT t.id FROM payment_transactions t
		JOIN payments p ON p.id = t.payment_id WHERE p.source_invoice_id = $1 ORDER BY t.id`, invoiceID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (t *txRepo) InsertPurchaseOrder(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	created, err := scanPurchaseOrder(t.tx.QueryRow(ctx, `INSERT INTO purchase_orders
		(company_id, po_number, supplier_name, currency, status, subtotal, tax_rate, tax_amount, grand_total, issued_on, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+purchaseOrderColumns,
		po.CompanyID, po.Number, po.SupplierName, po.Currency, string(po.Status), po.Subtotal, po.TaxRate, po.TaxAmount, po.GrandTotal, po.IssuedOn, po.CreatedBy))
	if db.IsUniqueViolation(err, "purchase_orders_number_key") {
		return PurchaseOrder{}, fmt.Errorf("%w: purchase order number %s", shared.ErrSequenceContention, po.Number)
	}
	if err != nil {
		return PurchaseOrder{}, err
	}
	batch := &pgx.Batch{}
	for _, item := range po.Items {
		batch.Queue(`INSERT INTO purchase_order_items (purchase_order_id, description, quantity, rate, amount)
			VALUES ($1, $2, $3, $4, $5) RETURNING id`, created.ID, item.Description, item.Quantity, item.Rate, item.Amount)
	}
	results := t.tx.SendBatch(ctx, batch)
	for i := range po.Items {
		if err := results.QueryRow().Scan(&po.Items[i].ID); err != nil {
			_ = results.Close()
			return PurchaseOrder{}, fmt.Errorf("insert item %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return PurchaseOrder{}, err
	}
	created.Items = po.Items
	return created, nil
}

func (t *txRepo) LockPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, err := scanPurchaseOrder(t.tx.QueryRow(ctx, `SELECT `+purchaseOrderColumns+` FROM purchase_orders WHERE id = $1 FOR UPDATE`, id))
	return po, mapNoRows(err, "purchase order", id)
}

func (t *txRepo) UpdatePurchaseOrderStatus(ctx context.Context, id int64, status POStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	return err
}

func (t *txRepo) DeletePurchaseOrder(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM purchase_orders WHERE id = $1`, id)
	return err
}

func (t *txRepo) ShipmentExistsForOrder(ctx context.Context, orderID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM shipments WHERE order_id = $1)`, orderID).Scan(&exists)
	return exists, err
}

func (t *txRepo) InsertShipment(ctx context.Context, s Shipment) (Shipment, error) {
	created, err := scanShipment(t.tx.QueryRow(ctx, `INSERT INTO shipments
		(company_id, order_id, shipment_number, booking_ref, waybill_ref, truck_ref, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+shipmentColumns,
		s.CompanyID, s.OrderID, s.Number, s.BookingRef, s.WaybillRef, s.TruckRef, string(s.Status), s.CreatedBy))
	if db.IsUniqueViolation(err, "shipments_order_key") {
		return Shipment{}, ErrShipmentExists
	}
	if db.IsUniqueViolation(err, "shipments_number_key") {
		return Shipment{}, fmt.Errorf("%w: shipment number %s", shared.ErrSequenceContention, s.Number)
	}
	return created, err
}

func (t *txRepo) LockShipment(ctx context.Context, id int64) (Shipment, error) {
	s, err := scanShipment(t.tx.QueryRow(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id = $1 FOR UPDATE`, id))
	return s, mapNoRows(err, "shipment", id)
}

func (t *txRepo) UpdateShipmentStatus(ctx context.Context, id int64, status ShipmentStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE shipments SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	return err
}

func (t *txRepo) Counters() sequence.CounterStore {
	return sequence.NewPgStore(t.tx)
}

func (t *txRepo) RecordEvent(ctx context.Context, evt outbox.Event) error {
	return outbox.Record(ctx, t.tx, evt)
}

func (t *txRepo) DeleteLedgerEntries(ctx context.Context, refs []ledger.Reference) (int64, error) {
	return ledger.DeleteByReferences(ctx, t.tx, refs)
}

// GetOrder loads one order.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	return o, mapNoRows(err, "order", id)
}

// GetInvoice loads one source invoice.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM source_invoices WHERE id = $1`, id))
	return inv, mapNoRows(err, "invoice", id)
}

// GetPurchaseOrder loads one purchase order with its items.
func (r *Repository) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, err := scanPurchaseOrder(r.pool.QueryRow(ctx, `SELECT `+purchaseOrderColumns+` FROM purchase_orders WHERE id = $1`, id))
	if err != nil {
		return PurchaseOrder{}, mapNoRows(err, "purchase order", id)
	}
	rows, err := r.pool.Query(ctx, `SELECT id, description, quantity, rate, amount FROM purchase_order_items
		WHERE purchase_order_id = $1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (PurchaseOrderItem, error) {
		var item PurchaseOrderItem
		err := row.Scan(&item.ID, &item.Description, &item.Quantity, &item.Rate, &item.Amount)
		return item, err
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Items = items
	return po, nil
}

// OrderDocument loads the order with its invoice, lines and party.
func (r *Repository) OrderDocument(ctx context.Context, orderID int64) (DocumentSource, error) {
	order, err := r.GetOrder(ctx, orderID)
	if err != nil {
		return DocumentSource{}, err
	}
	inv, err := r.GetInvoice(ctx, order.SourceInvoiceID)
	if err != nil {
		return DocumentSource{}, err
	}
	lines, err := queryInvoiceLines(ctx, r.pool, inv.ID)
	if err != nil {
		return DocumentSource{}, err
	}
	party := Party{Name: inv.PartyName}
	if inv.PartyID != nil {
		var address *string
		err := r.pool.QueryRow(ctx, `SELECT id, name, address FROM parties WHERE id = $1`, *inv.PartyID).Scan(&party.ID, &party.Name, &address)
		if err != nil && !db.IsNoRows(err) {
			return DocumentSource{}, err
		}
		if address != nil {
			party.Address = *address
		}
		if party.Name == "" {
			party.Name = inv.PartyName
		}
	}
	return DocumentSource{Order: order, Invoice: inv, Lines: lines, Party: party}, nil
}

// ListOrders returns a page of orders visible through filter.
func (r *Repository) ListOrders(ctx context.Context, filter scope.Filter, lf ListFilters) ([]Order, int, error) {
	conds := scope.NewConditions(filter, "")
	if lf.Status != "" {
		conds.Add("order_status = ?", lf.Status)
	}
	if s := strings.TrimSpace(lf.Search); s != "" {
		conds.Add("order_number ILIKE ?", "%"+s+"%")
	}
	return listPage(ctx, r.pool, "orders", orderColumns, conds, lf, scanOrder)
}

// ListPurchaseOrders returns a page of purchase orders visible through filter.
func (r *Repository) ListPurchaseOrders(ctx context.Context, filter scope.Filter, lf ListFilters) ([]PurchaseOrder, int, error) {
	conds := scope.NewConditions(filter, "")
	if lf.Status != "" {
		conds.Add("status = ?", lf.Status)
	}
	if s := strings.TrimSpace(lf.Search); s != "" {
		conds.Add("(po_number ILIKE ? OR supplier_name ILIKE ?)", "%"+s+"%", "%"+s+"%")
	}
	return listPage(ctx, r.pool, "purchase_orders", purchaseOrderColumns, conds, lf, scanPurchaseOrder)
}

// ListShipments returns a page of shipments visible through filter.
func (r *Repository) ListShipments(ctx context.Context, filter scope.Filter, lf ListFilters) ([]Shipment, int, error) {
	conds := scope.NewConditions(filter, "")
	if lf.Status != "" {
		conds.Add("status = ?", lf.Status)
	}
	if s := strings.TrimSpace(lf.Search); s != "" {
		conds.Add("shipment_number ILIKE ?", "%"+s+"%")
	}
	return listPage(ctx, r.pool, "shipments", shipmentColumns, conds, lf, scanShipment)
}

func listPage[T any](ctx context.Context, q db.Querier, table, columns string, conds *scope.Conditions, lf ListFilters, scan func(pgx.Row) (T, error)) ([]T, int, error) {
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+conds.Where(), conds.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", table, err)
	}
	page := shared.NewPagination(lf.Page, lf.PerPage, total)
	query := `SELECT ` + columns + ` FROM ` + table + conds.Where() +
		` ORDER BY created_at DESC, id DESC LIMIT ` + conds.Placeholder(page.PerPage) + ` OFFSET ` + conds.Placeholder(page.Offset())
	rows, err := q.Query(ctx, query, conds.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()
	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, item)
	}
	return out, total, rows.Err()
}

var (
	_ RepositoryPort = (*Repository)(nil)
	_ TxRepository   = (*txRepo)(nil)
)
