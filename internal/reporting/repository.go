package reporting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/tradeflow/internal/ledger"
	"github.com/odyssey-erp/tradeflow/internal/scope"
	"github.com/odyssey-erp/tradeflow/internal/shared"
)

const entryColumns = `id, company_id, entry_type, amount, entry_date, reference_type, reference_id, party_name, description, created_by, created_at`

// PgRepository reads report inputs from PostgreSQL. Every query composes the
// caller's scope filter.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Entries returns one page of ledger entries, newest first.
func (r *PgRepository) Entries(ctx context.Context, filter scope.Filter, lf LedgerFilter) ([]ledger.Entry, int, error) {
	conds := scope.NewConditions(filter, "")
	if !lf.From.IsZero() {
		conds.Add("entry_date >= ?", lf.From)
	}
	if !lf.To.IsZero() {
		conds.Add("entry_date <= ?", lf.To)
	}
	if lf.EntryType != "" {
		conds.Add("entry_type = ?", string(lf.EntryType))
	}
	if party := strings.TrimSpace(lf.Party); party != "" {
		conds.Add(`party_name ILIKE ? ESCAPE '\'`, "%"+escapeLike(party)+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounting_entries`+conds.Where(), conds.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("reporting: count entries: %w", err)
	}
	page := shared.NewPagination(lf.Page, lf.PerPage, total)
	query := `SELECT ` + entryColumns + ` FROM accounting_entries` + conds.Where() +
		` ORDER BY entry_date DESC, id DESC LIMIT ` + conds.Placeholder(page.PerPage) + ` OFFSET ` + conds.Placeholder(page.Offset())
	rows, err := r.pool.Query(ctx, query, conds.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("reporting: list entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.Entry, error) {
		var (
			e       ledger.Entry
			kind    string
			refType string
		)
		err := row.Scan(&e.ID, &e.CompanyID, &kind, &e.Amount, &e.Date, &refType, &e.ReferenceID, &e.PartyName, &e.Description, &e.CreatedBy, &e.CreatedAt)
		e.EntryType = ledger.EntryType(kind)
		e.ReferenceType = ledger.ReferenceType(refType)
		return e, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("reporting: scan entries: %w", err)
	}
	return entries, total, nil
}

// Totals sums entry amounts per type within [from, to]. A zero from leaves
// the window open at the start.
func (r *PgRepository) Totals(ctx context.Context, filter scope.Filter, from, to time.Time) (Totals, error) {
	conds := scope.NewConditions(filter, "")
	if !from.IsZero() {
		conds.Add("entry_date >= ?", from)
	}
	conds.Add("entry_date <= ?", to)
	rows, err := r.pool.Query(ctx, `SELECT entry_type, COALESCE(SUM(amount), 0)::float8 FROM accounting_entries`+conds.Where()+` GROUP BY entry_type`, conds.Args()...)
	if err != nil {
		return nil, fmt.Errorf("reporting: totals: %w", err)
	}
	defer rows.Close()
	totals := Totals{}
	for rows.Next() {
		var (
			kind string
			sum  float64
		)
		if err := rows.Scan(&kind, &sum); err != nil {
			return nil, fmt.Errorf("reporting: scan totals: %w", err)
		}
		totals[ledger.EntryType(kind)] = sum
	}
	return totals, rows.Err()
}

// OrderStatusCounts counts visible orders per status.
func (r *PgRepository) OrderStatusCounts(ctx context.Context, filter scope.Filter) (map[string]int, error) {
	conds := scope.NewConditions(filter, "")
	rows, err := r.pool.Query(ctx, `SELECT order_status, COUNT(*) FROM orders`+conds.Where()+` GROUP BY order_status`, conds.Args()...)
	if err != nil {
		return nil, fmt.Errorf("reporting: order counts: %w", err)
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("reporting: scan order counts: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// OpenPayments counts payment schedules with an amount still due.
func (r *PgRepository) OpenPayments(ctx context.Context, filter scope.Filter) (int, error) {
	return r.count(ctx, "payments", filter, "status <> 'paid'")
}

// PurchaseOrders counts visible purchase orders that are not cancelled.
func (r *PgRepository) PurchaseOrders(ctx context.Context, filter scope.Filter) (int, error) {
	return r.count(ctx, "purchase_orders", filter, "status <> 'cancelled'")
}

// ShipmentsInTransit counts shipments on the road.
func (r *PgRepository) ShipmentsInTransit(ctx context.Context, filter scope.Filter) (int, error) {
	return r.count(ctx, "shipments", filter, "status = 'in_transit'")
}

func (r *PgRepository) count(ctx context.Context, table string, filter scope.Filter, predicate string) (int, error) {
	conds := scope.NewConditions(filter, "")
	conds.Add(predicate)
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+conds.Where(), conds.Args()...).Scan(&n); err != nil {
		return 0, fmt.Errorf("reporting: count %s: %w", table, err)
	}
	return n, nil
}

var _ Repository = (*PgRepository)(nil)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
