package lifecycle

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const documentDateLayout = "02 Jan 2006"

// OrderDocument is the render-ready view of an order for the external
// document renderer. Amounts are pre-formatted.
type OrderDocument struct {
	OrderNumber   string            `json:"order_number"`
	OrderDate     string            `json:"order_date"`
	InvoiceNumber string            `json:"invoice_number"`
	InvoiceDate   string            `json:"invoice_date"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	Party         DocumentParty     `json:"party"`
	Currency      string            `json:"currency"`
	Lines         []DocumentLine    `json:"lines"`
	Packaging     []string          `json:"packaging"`
	TotalQuantity string            `json:"total_quantity"`
	Total         string            `json:"total"`
	Advance       string            `json:"advance"`
	Balance       string            `json:"balance"`
	Terms         string            `json:"terms"`
	Logistics     DocumentLogistics `json:"logistics"`
}

// DocumentParty is the billed party block.
type DocumentParty struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// DocumentLine is one printed product line.
type DocumentLine struct {
	No          int    `json:"no"`
	Description string `json:"description"`
	Packaging   string `json:"packaging"`
	Quantity    string `json:"quantity"`
	Rate        string `json:"rate"`
	Amount      string `json:"amount"`
}

// DocumentLogistics carries the dispatch references.
type DocumentLogistics struct {
	BookingNumber string `json:"booking_number"`
	WaybillNumber string `json:"waybill_number"`
	TruckNumber   string `json:"truck_number"`
}

// BuildOrderDocument assembles the view-model from its sources.
func BuildOrderDocument(src DocumentSource) OrderDocument {
	printer := message.NewPrinter(language.English)
	money := func(v float64) string {
		return printer.Sprintf("%s %.2f", src.Order.Currency, v)
	}

	doc := OrderDocument{
		OrderNumber:   src.Order.Number,
		OrderDate:     src.Order.CreatedAt.Format(documentDateLayout),
		InvoiceNumber: src.Invoice.Number,
		InvoiceDate:   src.Invoice.InvoiceDate.Format(documentDateLayout),
		Status:        string(src.Order.Status),
		PaymentStatus: string(src.Order.PaymentStatus),
		Party:         DocumentParty{Name: src.Party.Name, Address: src.Party.Address},
		Currency:      src.Order.Currency,
		Lines:         make([]DocumentLine, 0, len(src.Lines)),
		Packaging:     []string{},
		TotalQuantity: printer.Sprintf("%.2f", src.Order.ProductQty),
		Total:         money(src.Order.Total),
		Advance:       money(src.Invoice.Advance),
		Balance:       money(round2(src.Order.Total - src.Invoice.Advance)),
		Terms:         src.Order.Terms,
		Logistics: DocumentLogistics{
			BookingNumber: deref(src.Order.BookingNumber),
			WaybillNumber: deref(src.Order.WaybillNumber),
			TruckNumber:   deref(src.Order.TruckNumber),
		},
	}
	if doc.Party.Name == "" {
		doc.Party.Name = src.Invoice.PartyName
	}

	seen := make(map[string]bool)
	for i, line := range src.Lines {
		doc.Lines = append(doc.Lines, DocumentLine{
			No:          i + 1,
			Description: line.Description,
			Packaging:   line.Packaging,
			Quantity:    printer.Sprintf("%.2f", line.Quantity),
			Rate:        money(line.Rate),
			Amount:      money(line.Amount),
		})
		if line.Packaging != "" && !seen[line.Packaging] {
			seen[line.Packaging] = true
			doc.Packaging = append(doc.Packaging, line.Packaging)
		}
	}
	return doc
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
