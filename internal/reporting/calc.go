package reporting

import (
	"math"
	"time"

	"github.com/odyssey-erp/tradeflow/internal/ledger"
)

// MonthWindow returns the calendar month containing now.
func MonthWindow(now time.Time) Window {
	now = now.UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Window{From: from, To: from.AddDate(0, 1, -1)}
}

// ComputeProfitAndLoss derives the P&L figures from per-type totals.
func ComputeProfitAndLoss(w Window, t Totals) ProfitAndLoss {
	revenue := round2(t[ledger.EntrySales])
	expenses := round2(t[ledger.EntryPurchase] + t[ledger.EntryExpense])
	received := round2(t[ledger.EntryReceipt])
	return ProfitAndLoss{
		Window:                 w,
		Revenue:                revenue,
		Expenses:               expenses,
		GrossProfit:            round2(revenue - expenses),
		CashReceived:           received,
		OutstandingReceivables: round2(revenue - received),
		CashFlow:               round2(received - expenses),
	}
}

// ComputeBalanceSheet derives receivables from cumulative totals up to asOf.
// Receivables never go negative.
func ComputeBalanceSheet(asOf time.Time, t Totals) BalanceSheet {
	ar := math.Max(0, round2(t[ledger.EntrySales]-t[ledger.EntryReceipt]))
	return BalanceSheet{AsOf: asOf, AccountsReceivable: ar, TotalAssets: ar}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
