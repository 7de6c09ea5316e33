package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/tradeflow/internal/platform/db"
	"github.com/odyssey-erp/tradeflow/internal/shared"
)

// Repository is the PostgreSQL implementation of Store, SourceReader and RepairSource.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// HasReference reports whether any entry references ref.
func (r *Repository) HasReference(ctx context.Context, ref Reference) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounting_entries WHERE reference_type = $1 AND reference_id = $2)`,
		string(ref.Type), ref.ID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ledger: has reference: %w", err)
	}
	return exists, nil
}

// Insert writes entries atomically, skipping any that already exist for the
// same (reference_type, reference_id, entry_type).
func (r *Repository) Insert(ctx context.Context, entries []Entry) ([]Entry, error) {
	var inserted []Entry
	err := db.WithTx(ctx, r.pool, db.TxOptions{}, func(tx pgx.Tx) error {
		for _, e := range entries {
			err := tx.QueryRow(ctx, `INSERT INTO accounting_entries
				(company_id, entry_type, amount, entry_date, reference_type, reference_id, party_name, description, created_by)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT ON CONSTRAINT accounting_entries_reference_key DO NOTHING
				RETURNING id, created_at`,
				e.CompanyID, string(e.EntryType), e.Amount, e.Date, string(e.ReferenceType), e.ReferenceID, e.PartyName, e.Description, e.CreatedBy,
			).Scan(&e.ID, &e.CreatedAt)
			if db.IsNoRows(err) {
				continue
			}
			if err != nil {
				return err
			}
			inserted = append(inserted, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// DeleteByReferences removes every entry referencing any of refs in one
// statement. Run it in the transaction that deletes the source documents.
func DeleteByReferences(ctx context.Context, q db.Querier, refs []Reference) (int64, error) {
	if len(refs) == 0 {
		return 0, nil
	}
	types := make([]string, len(refs))
	ids := make([]int64, len(refs))
	for i, ref := range refs {
		types[i] = string(ref.Type)
		ids[i] = ref.ID
	}
	tag, err := q.Exec(ctx, `DELETE FROM accounting_entries
		WHERE (reference_type, reference_id) IN (SELECT t, i FROM unnest($1::text[], $2::bigint[]) AS r(t, i))`, types, ids)
	if err != nil {
		return 0, fmt.Errorf("ledger: delete by references: %w", err)
	}
	return tag.RowsAffected(), nil
}

// InvoiceForProjection loads a source invoice.
func (r *Repository) InvoiceForProjection(ctx context.Context, invoiceID int64) (InvoiceSource, error) {
	var inv InvoiceSource
	err := r.pool.QueryRow(ctx, `SELECT i.id, i.company_id, i.invoice_number, i.status, i.currency, c.base_currency, i.total_amount, i.advance_amount,
			COALESCE(NULLIF(p.name, ''), i.party_name), i.invoice_date, i.created_by
		FROM source_invoices i
		JOIN companies c ON c.id = i.company_id
		LEFT JOIN parties p ON p.id = i.party_id
		WHERE i.id = $1`, invoiceID,
	).Scan(&inv.ID, &inv.CompanyID, &inv.Number, &inv.Status, &inv.Currency, &inv.BaseCurrency, &inv.Total, &inv.Advance, &inv.PartyName, &inv.InvoiceDate, &inv.CreatedBy)
	if db.IsNoRows(err) {
		return InvoiceSource{}, fmt.Errorf("ledger: invoice %d: %w", invoiceID, shared.ErrNotFound)
	}
	return inv, err
}

// PaymentForProjection loads a payment transaction with its resolved party name.
func (r *Repository) PaymentForProjection(ctx context.Context, transactionID int64) (PaymentSource, error) {
	var pay PaymentSource
	err := r.pool.QueryRow(ctx, `SELECT t.id, t.payment_id, t.company_id, i.invoice_number, i.currency, c.base_currency, t.amount, t.paid_at,
			COALESCE(NULLIF(p.name, ''), i.party_name), t.created_by
		FROM payment_transactions t
		JOIN payments pay ON pay.id = t.payment_id
		JOIN source_invoices i ON i.id = pay.source_invoice_id
		JOIN companies c ON c.id = t.company_id
		LEFT JOIN parties p ON p.id = pay.party_id
		WHERE t.id = $1`, transactionID,
	).Scan(&pay.TransactionID, &pay.PaymentID, &pay.CompanyID, &pay.InvoiceNumber, &pay.Currency, &pay.BaseCurrency, &pay.Amount, &pay.PaidAt, &pay.PartyName, &pay.CreatedBy)
	if db.IsNoRows(err) {
		return PaymentSource{}, fmt.Errorf("ledger: payment transaction %d: %w", transactionID, shared.ErrNotFound)
	}
	return pay, err
}

// PurchaseOrderForProjection loads a purchase order header.
func (r *Repository) PurchaseOrderForProjection(ctx context.Context, purchaseOrderID int64) (PurchaseOrderSource, error) {
	var po PurchaseOrderSource
	err := r.pool.QueryRow(ctx, `SELECT po.id, po.company_id, po.po_number, po.status, po.supplier_name, po.currency, c.base_currency,
			po.grand_total, po.issued_on, po.created_by
		FROM purchase_orders po
		JOIN companies c ON c.id = po.company_id
		WHERE po.id = $1`, purchaseOrderID,
	).Scan(&po.ID, &po.CompanyID, &po.Number, &po.Status, &po.SupplierName, &po.Currency, &po.BaseCurrency, &po.GrandTotal, &po.IssuedOn, &po.CreatedBy)
	if db.IsNoRows(err) {
		return PurchaseOrderSource{}, fmt.Errorf("ledger: purchase order %d: %w", purchaseOrderID, shared.ErrNotFound)
	}
	return po, err
}

// CompanyIDs lists every company.
func (r *Repository) CompanyIDs(ctx context.Context) ([]int64, error) {
	return r.ids(ctx, `SELECT id FROM companies ORDER BY id`)
}

// UnprojectedInvoices lists confirmed invoices without a PI_INVOICE entry.
func (r *Repository) UnprojectedInvoices(ctx context.Context, companyID int64, limit int) ([]int64, error) {
	return r.ids(ctx, `SELECT i.id FROM source_invoices i
		WHERE i.status = 'confirmed' AND i.company_id = $1
		AND NOT EXISTS (SELECT 1 FROM accounting_entries e WHERE e.reference_type = 'PI_INVOICE' AND e.reference_id = i.id)
		ORDER BY i.id LIMIT $2`, companyID, limit)
}

// UnprojectedPayments lists payment transactions without a PAYMENT entry.
func (r *Repository) UnprojectedPayments(ctx context.Context, companyID int64, limit int) ([]int64, error) {
	return r.ids(ctx, `SELECT t.id FROM payment_transactions t
		WHERE t.company_id = $1
		AND NOT EXISTS (SELECT 1 FROM accounting_entries e WHERE e.reference_type = 'PAYMENT' AND e.reference_id = t.id)
		ORDER BY t.id LIMIT $2`, companyID, limit)
}

// UnprojectedPurchaseOrders lists live purchase orders without a PURCHASE_ORDER entry.
func (r *Repository) UnprojectedPurchaseOrders(ctx context.Context, companyID int64, limit int) ([]int64, error) {
	return r.ids(ctx, `SELECT po.id FROM purchase_orders po
		WHERE po.status <> 'cancelled' AND po.company_id = $1
		AND NOT EXISTS (SELECT 1 FROM accounting_entries e WHERE e.reference_type = 'PURCHASE_ORDER' AND e.reference_id = po.id)
		ORDER BY po.id LIMIT $2`, companyID, limit)
}

func (r *Repository) ids(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

var (
	_ Store        = (*Repository)(nil)
	_ SourceReader = (*Repository)(nil)
	_ RepairSource = (*Repository)(nil)
)
