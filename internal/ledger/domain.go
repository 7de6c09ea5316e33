// Package ledger derives accounting entries from lifecycle events and keeps
// them consistent with their source documents.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/tradeflow/internal/shared"
)

// EntryType classifies a ledger line.
type EntryType string

const (
	EntrySales    EntryType = "SALES"
	EntryReceipt  EntryType = "RECEIPT"
	EntryPurchase EntryType = "PURCHASE"
	EntryExpense  EntryType = "EXPENSE"
)

// IsValid reports whether t is a known entry type.
func (t EntryType) IsValid() bool {
	switch t {
	case EntrySales, EntryReceipt, EntryPurchase, EntryExpense:
		return true
	}
	return false
}

// ReferenceType names the source document of an entry.
type ReferenceType string

const (
	RefInvoice       ReferenceType = "PI_INVOICE"
	RefPayment       ReferenceType = "PAYMENT"
	RefPurchaseOrder ReferenceType = "PURCHASE_ORDER"
)

// Reference identifies a source document.
type Reference struct {
	Type ReferenceType
	ID   int64
}

func (r Reference) String() string {
	return fmt.Sprintf("%s:%d", r.Type, r.ID)
}

// Entry is an immutable ledger line, amounts in company base currency.
type Entry struct {
	ID            int64         `json:"id"`
	CompanyID     int64         `json:"company_id"`
	EntryType     EntryType     `json:"entry_type"`
	Amount        float64       `json:"amount"`
	Date          time.Time     `json:"date"`
	ReferenceType ReferenceType `json:"reference_type"`
	ReferenceID   int64         `json:"reference_id"`
	PartyName     string        `json:"party_name"`
	Description   string        `json:"description"`
	CreatedBy     int64         `json:"created_by"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Reference returns the entry's source reference.
func (e Entry) Reference() Reference {
	return Reference{Type: e.ReferenceType, ID: e.ReferenceID}
}

// InvoiceSource is the projection input for a confirmed invoice.
// BaseCurrency is the company's reporting currency; empty means the
// configured default.
type InvoiceSource struct {
	ID           int64
	CompanyID    int64
	Number       string
	Status       string
	Currency     string
	BaseCurrency string
	Total        float64
	Advance      float64
	PartyName    string
	InvoiceDate  time.Time
	CreatedBy    int64
}

// PaymentSource is the projection input for one recorded payment transaction.
// PartyName is already resolved from the party link or the invoice.
type PaymentSource struct {
	TransactionID int64
	PaymentID     int64
	CompanyID     int64
	InvoiceNumber string
	Currency      string
	BaseCurrency  string
	Amount        float64
	PaidAt        time.Time
	PartyName     string
	CreatedBy     int64
}

// PurchaseOrderSource is the projection input for a purchase order.
type PurchaseOrderSource struct {
	ID           int64
	CompanyID    int64
	Number       string
	Status       string
	SupplierName string
	Currency     string
	BaseCurrency string
	GrandTotal   float64
	IssuedOn     time.Time
	CreatedBy    int64
}

var (
	// ErrUnknownEvent indicates an event kind with no projection rule.
	ErrUnknownEvent = errors.New("ledger: unknown event kind")
	// ErrRateMissing indicates no configured rate for a foreign currency.
	ErrRateMissing = fmt.Errorf("%w: ledger: exchange rate not configured", shared.ErrValidation)
	// ErrSourceNotReady indicates the source is not in a projectable state.
	ErrSourceNotReady = fmt.Errorf("%w: ledger: source not projectable", shared.ErrValidation)
)
