// Package lifecycle turns confirmed price invoices into orders, payment
// schedules, shipments and purchase orders, and keeps their statuses moving
// through fixed state machines.
package lifecycle

import "time"

// InvoiceStatus enumerates source invoice states.
type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoiceConfirmed InvoiceStatus = "confirmed"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// OrderStatus enumerates order states.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

// PaymentStatus enumerates payment schedule states. Orders mirror it.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
	PaymentOverdue PaymentStatus = "overdue"
)

// POStatus enumerates purchase order states.
type POStatus string

const (
	PODraft     POStatus = "draft"
	POIssued    POStatus = "issued"
	POReceived  POStatus = "received"
	POCancelled POStatus = "cancelled"
)

// ShipmentStatus enumerates shipment states.
type ShipmentStatus string

const (
	ShipmentPending   ShipmentStatus = "pending"
	ShipmentBooked    ShipmentStatus = "booked"
	ShipmentInTransit ShipmentStatus = "in_transit"
	ShipmentDelivered ShipmentStatus = "delivered"
	ShipmentCancelled ShipmentStatus = "cancelled"
)

// Invoice is the source price invoice.
type Invoice struct {
	ID          int64         `json:"id"`
	CompanyID   int64         `json:"company_id"`
	Number      string        `json:"invoice_number"`
	Status      InvoiceStatus `json:"status"`
	Currency    string        `json:"currency"`
	Total       float64       `json:"total_amount"`
	Advance     float64       `json:"advance_amount"`
	PartyID     *int64        `json:"party_id,omitempty"`
	PartyName   string        `json:"party_name"`
	Terms       string        `json:"terms"`
	InvoiceDate time.Time     `json:"invoice_date"`
	CreatedBy   int64         `json:"created_by"`
}

// InvoiceLine is one product line of an invoice.
type InvoiceLine struct {
	ID          int64   `json:"id"`
	InvoiceID   int64   `json:"invoice_id"`
	Description string  `json:"description"`
	Packaging   string  `json:"packaging"`
	Quantity    float64 `json:"quantity"`
	Rate        float64 `json:"rate"`
	Amount      float64 `json:"amount"`
}

// Party is the invoiced customer.
type Party struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Order is the operational record created from a confirmed invoice.
type Order struct {
	ID              int64         `json:"id"`
	CompanyID       int64         `json:"company_id"`
	Number          string        `json:"order_number"`
	SourceInvoiceID int64         `json:"source_invoice_id"`
	Currency        string        `json:"currency"`
	Total           float64       `json:"total_amount"`
	ProductQty      float64       `json:"product_qty"`
	Terms           string        `json:"terms"`
	Status          OrderStatus   `json:"order_status"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	BookingNumber   *string       `json:"booking_number"`
	WaybillNumber   *string       `json:"waybill_number"`
	TruckNumber     *string       `json:"truck_number"`
	CreatedBy       int64         `json:"created_by"`
	UpdatedBy       int64         `json:"updated_by"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Payment is the receivable schedule of an invoice.
type Payment struct {
	ID              int64         `json:"id"`
	CompanyID       int64         `json:"company_id"`
	SourceInvoiceID int64         `json:"source_invoice_id"`
	PartyID         *int64        `json:"party_id,omitempty"`
	Amount          float64       `json:"amount"`
	DueAmount       float64       `json:"due_amount"`
	PaidAmount      float64       `json:"paid_amount"`
	DueDate         time.Time     `json:"due_date"`
	Status          PaymentStatus `json:"status"`
	CreatedBy       int64         `json:"created_by"`
}

// PaymentTransaction is one recorded receipt against a Payment.
type PaymentTransaction struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	PaymentID int64     `json:"payment_id"`
	Amount    float64   `json:"amount"`
	PaidAt    time.Time `json:"paid_at"`
	Method    string    `json:"method"`
	Reference string    `json:"reference"`
	CreatedBy int64     `json:"created_by"`
}

// Shipment tracks the dispatch of an order.
type Shipment struct {
	ID         int64          `json:"id"`
	CompanyID  int64          `json:"company_id"`
	OrderID    int64          `json:"order_id"`
	Number     string         `json:"shipment_number"`
	BookingRef *string        `json:"booking_ref"`
	WaybillRef *string        `json:"waybill_ref"`
	TruckRef   *string        `json:"truck_ref"`
	Status     ShipmentStatus `json:"status"`
	CreatedBy  int64          `json:"created_by"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// PurchaseOrder is a supplier order with computed totals.
type PurchaseOrder struct {
	ID           int64               `json:"id"`
	CompanyID    int64               `json:"company_id"`
	Number       string              `json:"po_number"`
	SupplierName string              `json:"supplier_name"`
	Currency     string              `json:"currency"`
	Status       POStatus            `json:"status"`
	Subtotal     float64             `json:"subtotal"`
	TaxRate      float64             `json:"tax_rate"`
	TaxAmount    float64             `json:"tax_amount"`
	GrandTotal   float64             `json:"grand_total"`
	IssuedOn     time.Time           `json:"issued_on"`
	CreatedBy    int64               `json:"created_by"`
	Items        []PurchaseOrderItem `json:"items,omitempty"`
}

// PurchaseOrderItem is one PO line.
type PurchaseOrderItem struct {
	ID          int64   `json:"id"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Rate        float64 `json:"rate"`
	Amount      float64 `json:"amount"`
}

// OrderExtras carries optional logistics references captured at order creation.
type OrderExtras struct {
	BookingNumber string
	WaybillNumber string
	TruckNumber   string
}

// ConfirmResult is the outcome of ConfirmInvoiceIntoOrder.
type ConfirmResult struct {
	Order   Order    `json:"order"`
	Payment *Payment `json:"payment,omitempty"`
}

// UpdateOrderInput patches an order. Nil fields are left as they are; blank
// strings clear the reference.
type UpdateOrderInput struct {
	BookingNumber *string
	WaybillNumber *string
	TruckNumber   *string
	Status        *OrderStatus
}

// RecordPaymentInput describes a receipt against a payment schedule.
type RecordPaymentInput struct {
	PaymentID      int64
	Amount         float64
	PaidAt         time.Time
	Method         string
	Reference      string
	IdempotencyKey string
}

// RecordPaymentResult is the outcome of RecordPayment.
type RecordPaymentResult struct {
	Payment     Payment            `json:"payment"`
	Transaction PaymentTransaction `json:"transaction"`
}

// PurchaseOrderInput describes a new PO.
type PurchaseOrderInput struct {
	SupplierName string
	Currency     string
	TaxRate      float64
	IssuedOn     time.Time
	Items        []PurchaseOrderItemInput
}

// PurchaseOrderItemInput is a requested PO line.
type PurchaseOrderItemInput struct {
	Description string
	Quantity    float64
	Rate        float64
}

// ShipmentInput describes a new shipment.
type ShipmentInput struct {
	BookingRef string
	WaybillRef string
	TruckRef   string
	// MarkShipped moves a confirmed or processing order to shipped.
	MarkShipped bool
}

// ListFilters narrows list reads.
type ListFilters struct {
	Status  string
	Search  string
	Page    int
	PerPage int
}
