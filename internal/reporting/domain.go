// Package reporting rolls ledger entries and document counts up into the
// read-only reports: ledger listing, profit and loss, balance sheet and the
// dashboard.
package reporting

import (
	"time"

	"github.com/odyssey-erp/tradeflow/internal/ledger"
)

// LedgerFilter narrows the ledger listing. Zero values disable a predicate.
type LedgerFilter struct {
	From      time.Time
	To        time.Time
	EntryType ledger.EntryType
	Party     string
	Page      int
	PerPage   int
}

// Window is an inclusive date range.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Totals sums ledger amounts per entry type.
type Totals map[ledger.EntryType]float64

// ProfitAndLoss summarises a window of ledger activity.
type ProfitAndLoss struct {
	Window
	Revenue                float64 `json:"revenue"`
	Expenses               float64 `json:"expenses"`
	GrossProfit            float64 `json:"gross_profit"`
	CashReceived           float64 `json:"cash_received"`
	OutstandingReceivables float64 `json:"outstanding_receivables"`
	CashFlow               float64 `json:"cash_flow"`
}

// BalanceSheet reports receivables as of a date.
type BalanceSheet struct {
	AsOf               time.Time `json:"as_of"`
	AccountsReceivable float64   `json:"accounts_receivable"`
	TotalAssets        float64   `json:"total_assets"`
}

// DashboardCounts are the cached headline numbers of a company.
type DashboardCounts struct {
	OrdersByStatus     map[string]int `json:"orders_by_status"`
	OpenPayments       int            `json:"open_payments"`
	PurchaseOrders     int            `json:"purchase_orders"`
	ShipmentsInTransit int            `json:"shipments_in_transit"`
	GeneratedAt        time.Time      `json:"generated_at"`
}
