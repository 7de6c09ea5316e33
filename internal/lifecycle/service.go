package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/tradeflow/internal/ledger"
	"github.com/odyssey-erp/tradeflow/internal/outbox"
	"github.com/odyssey-erp/tradeflow/internal/scope"
	"github.com/odyssey-erp/tradeflow/internal/sequence"
	"github.com/odyssey-erp/tradeflow/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	OrderDocument(ctx context.Context, orderID int64) (DocumentSource, error)
	ListOrders(ctx context.Context, filter scope.Filter, lf ListFilters) ([]Order, int, error)
	ListPurchaseOrders(ctx context.Context, filter scope.Filter, lf ListFilters) ([]PurchaseOrder, int, error)
	ListShipments(ctx context.Context, filter scope.Filter, lf ListFilters) ([]Shipment, int, error)
}

// EventDispatcher delivers outbox events recorded by a committed transaction.
type EventDispatcher interface {
	Dispatch(ctx context.Context, ids ...uuid.UUID) (outbox.Report, error)
}

// CacheInvalidator drops cached aggregates of a company.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, companyID int64) error
}

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort claims and releases request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

const (
	defaultPaymentTerms = 30 * 24 * time.Hour
	paymentModule       = "lifecycle.payment"
)

// Config wires the Service.
type Config struct {
	Repo         RepositoryPort
	Sequences    *sequence.Generator
	Events       EventDispatcher
	Dashboard    CacheInvalidator
	Audit        AuditPort
	Idempotency  IdempotencyPort
	Logger       *slog.Logger
	Metrics      *Metrics
	PaymentTerms time.Duration
	BaseCurrency string
}

// Service orchestrates the invoice to order to payment lifecycle.
type Service struct {
	repo         RepositoryPort
	sequences    *sequence.Generator
	events       EventDispatcher
	dashboard    CacheInvalidator
	audit        AuditPort
	idempotency  IdempotencyPort
	logger       *slog.Logger
	metrics      *Metrics
	paymentTerms time.Duration
	baseCurrency string
	now          func() time.Time
}

// NewService constructs the lifecycle service.
func NewService(cfg Config) *Service {
	s := &Service{
		repo:         cfg.Repo,
		sequences:    cfg.Sequences,
		events:       cfg.Events,
		dashboard:    cfg.Dashboard,
		audit:        cfg.Audit,
		idempotency:  cfg.Idempotency,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		paymentTerms: cfg.PaymentTerms,
		baseCurrency: strings.ToUpper(strings.TrimSpace(cfg.BaseCurrency)),
		now:          time.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.paymentTerms <= 0 {
		s.paymentTerms = defaultPaymentTerms
	}
	if s.baseCurrency == "" {
		s.baseCurrency = "INR"
	}
	if s.sequences == nil {
		s.sequences = sequence.NewGenerator(nil, sequence.Options{Logger: s.logger})
	}
	return s
}

// ConfirmInvoiceIntoOrder creates the order and payment schedule of an
// invoice and confirms it, all in one transaction. A second call for the same
// invoice fails with ErrOrderExists.
func (s *Service) ConfirmInvoiceIntoOrder(ctx context.Context, p shared.Principal, invoiceID int64, extras OrderExtras) (ConfirmResult, error) {
	if err := p.Validate(); err != nil {
		return ConfirmResult{}, err
	}
	var (
		result  ConfirmResult
		eventID uuid.UUID
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := s.lockInvoice(ctx, tx, p, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status == InvoiceCancelled {
			return invoiceFSM.transition(inv.Status, InvoiceConfirmed)
		}
		lines, err := invoiceLines(ctx, tx, inv)
		if err != nil {
			return err
		}
		payment, hasPayment, err := tx.PaymentForInvoice(ctx, inv.ID)
		if err != nil {
			return err
		}
		payStatus := PaymentPending
		if hasPayment {
			payStatus = payment.Status
		}
		order, err := s.insertOrder(ctx, tx, p, inv, lines, extras, OrderConfirmed, payStatus)
		if err != nil {
			return err
		}
		result.Order = order

		if inv.Status != InvoiceConfirmed {
			if err := invoiceFSM.transition(inv.Status, InvoiceConfirmed); err != nil {
				return err
			}
			if err := tx.UpdateInvoiceStatus(ctx, inv.ID, InvoiceConfirmed); err != nil {
				return err
			}
		}

		if !hasPayment {
			created, err := tx.InsertPayment(ctx, Payment{
				CompanyID:       inv.CompanyID,
				SourceInvoiceID: inv.ID,
				PartyID:         inv.PartyID,
				Amount:          round2(inv.Total + inv.Advance),
				DueAmount:       round2(inv.Total),
				DueDate:         truncateDay(s.now().Add(s.paymentTerms)),
				Status:          PaymentPending,
				CreatedBy:       p.UserID,
			})
			if err != nil {
				return err
			}
			result.Payment = &created
		}

		evt, err := outbox.NewEvent(inv.CompanyID, outbox.KindInvoiceConfirmed, "source_invoice", inv.ID, outbox.ActorPayload{ActorID: p.UserID})
		if err != nil {
			return err
		}
		if err := tx.RecordEvent(ctx, evt); err != nil {
			return err
		}
		eventID = evt.ID
		return nil
	})
	if err != nil {
		return ConfirmResult{}, err
	}
	s.recordAudit(ctx, p.UserID, "INVOICE_CONFIRM", "source_invoice", invoiceID, map[string]any{"order_number": result.Order.Number})
	s.afterCommit(ctx, p.CompanyID, eventID)
	return result, nil
}

// CreateOrderSnapshotFromInvoice creates a pending order from an already
// confirmed invoice. No payment, status change or event is produced.
func (s *Service) CreateOrderSnapshotFromInvoice(ctx context.Context, p shared.Principal, invoiceID int64, extras OrderExtras) (Order, error) {
	if err := p.Validate(); err != nil {
		return Order{}, err
	}
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := s.lockInvoice(ctx, tx, p, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status != InvoiceConfirmed {
			return fmt.Errorf("%w: invoice %s is %s", shared.ErrInvalidTransition, inv.Number, inv.Status)
		}
		lines, err := invoiceLines(ctx, tx, inv)
		if err != nil {
			return err
		}
		payStatus := PaymentPending
		if payment, ok, err := tx.PaymentForInvoice(ctx, inv.ID); err != nil {
			return err
		} else if ok {
			payStatus = payment.Status
		}
		order, err = s.insertOrder(ctx, tx, p, inv, lines, extras, OrderPending, payStatus)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, p.UserID, "ORDER_SNAPSHOT", "order", order.ID, map[string]any{"source_invoice_id": invoiceID})
	s.afterCommit(ctx, p.CompanyID)
	return order, nil
}

func (s *Service) lockInvoice(ctx context.Context, tx TxRepository, p shared.Principal, invoiceID int64) (Invoice, error) {
	inv, err := tx.LockInvoice(ctx, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if inv.CompanyID != p.CompanyID {
		return Invoice{}, notFound("invoice", invoiceID)
	}
	return inv, nil
}

// invoiceLines loads the lines of an invoice and rejects invoices that cannot
// back an order: no lines, or a total or advance that is negative or not finite.
func invoiceLines(ctx context.Context, tx TxRepository, inv Invoice) ([]InvoiceLine, error) {
	if !validAmount(inv.Total) {
		return nil, invalid("invoice %s: malformed total %v", inv.Number, inv.Total)
	}
	if !validAmount(inv.Advance) {
		return nil, invalid("invoice %s: malformed advance %v", inv.Number, inv.Advance)
	}
	lines, err := tx.InvoiceLines(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, invalid("invoice %s has no line items", inv.Number)
	}
	return lines, nil
}

func validAmount(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func (s *Service) insertOrder(ctx context.Context, tx TxRepository, p shared.Principal, inv Invoice, lines []InvoiceLine, extras OrderExtras, status OrderStatus, payStatus PaymentStatus) (Order, error) {
	exists, err := tx.OrderExistsForInvoice(ctx, inv.ID)
	if err != nil {
		return Order{}, err
	}
	if exists {
		return Order{}, ErrOrderExists
	}
	var qty float64
	for _, line := range lines {
		qty += line.Quantity
	}
	number, err := s.sequences.Next(ctx, tx.Counters(), inv.CompanyID, sequence.KindOrder)
	if err != nil {
		return Order{}, err
	}
	return tx.InsertOrder(ctx, Order{
		CompanyID:       inv.CompanyID,
		Number:          number.Formatted,
		SourceInvoiceID: inv.ID,
		Currency:        inv.Currency,
		Total:           inv.Total,
		ProductQty:      math.Round(qty*1000) / 1000,
		Terms:           inv.Terms,
		Status:          status,
		PaymentStatus:   payStatus,
		BookingNumber:   normalizeRef(extras.BookingNumber),
		WaybillNumber:   normalizeRef(extras.WaybillNumber),
		TruckNumber:     normalizeRef(extras.TruckNumber),
		CreatedBy:       p.UserID,
		UpdatedBy:       p.UserID,
	})
}

// UpdateOrder fills logistics references and/or moves the order status.
func (s *Service) UpdateOrder(ctx context.Context, p shared.Principal, orderID int64, in UpdateOrderInput) (Order, error) {
	if err := p.Validate(); err != nil {
		return Order{}, err
	}
	if in.Status != nil && !orderFSM.known(*in.Status) {
		return Order{}, invalid("unknown order status %q", *in.Status)
	}
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.CompanyID != p.CompanyID {
			return notFound("order", orderID)
		}
		if in.BookingNumber != nil {
			o.BookingNumber = normalizeRef(*in.BookingNumber)
		}
		if in.WaybillNumber != nil {
			o.WaybillNumber = normalizeRef(*in.WaybillNumber)
		}
		if in.TruckNumber != nil {
			o.TruckNumber = normalizeRef(*in.TruckNumber)
		}
		if in.Status != nil && *in.Status != o.Status {
			if err := orderFSM.transition(o.Status, *in.Status); err != nil {
				return err
			}
			o.Status = *in.Status
		}
		o.UpdatedBy = p.UserID
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, p.UserID, "ORDER_UPDATE", "order", orderID, map[string]any{"status": string(order.Status)})
	s.afterCommit(ctx, p.CompanyID)
	return order, nil
}

// RecordPayment applies a receipt to a payment schedule and mirrors the
// resulting status onto the order.
func (s *Service) RecordPayment(ctx context.Context, p shared.Principal, in RecordPaymentInput) (RecordPaymentResult, error) {
	if err := p.Validate(); err != nil {
		return RecordPaymentResult{}, err
	}
	amount := round2(in.Amount)
	if in.PaymentID <= 0 {
		return RecordPaymentResult{}, invalid("payment id required")
	}
	if amount <= 0 {
		return RecordPaymentResult{}, invalid("amount must be positive")
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	claimed := false
	if key != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, paymentModule); err != nil {
			return RecordPaymentResult{}, err
		}
		claimed = true
	}

	var (
		result  RecordPaymentResult
		eventID uuid.UUID
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pay, err := tx.LockPayment(ctx, in.PaymentID)
		if err != nil {
			return err
		}
		if pay.CompanyID != p.CompanyID {
			return notFound("payment", in.PaymentID)
		}
		if amount > round2(pay.DueAmount) {
			return invalid("amount %.2f exceeds due %.2f", amount, pay.DueAmount)
		}
		pay.DueAmount = round2(pay.DueAmount - amount)
		pay.PaidAmount = round2(pay.PaidAmount + amount)
		next := settledStatus(pay.DueAmount)
		if next != pay.Status {
			if err := paymentFSM.transition(pay.Status, next); err != nil {
				return err
			}
			pay.Status = next
		}
		paidAt := in.PaidAt
		if paidAt.IsZero() {
			paidAt = s.now()
		}
		txn, err := tx.InsertPaymentTransaction(ctx, PaymentTransaction{
			CompanyID: pay.CompanyID,
			PaymentID: pay.ID,
			Amount:    amount,
			PaidAt:    truncateDay(paidAt),
			Method:    strings.TrimSpace(in.Method),
			Reference: strings.TrimSpace(in.Reference),
			CreatedBy: p.UserID,
		})
		if err != nil {
			return err
		}
		if err := tx.UpdatePayment(ctx, pay); err != nil {
			return err
		}
		if err := tx.SetOrderPaymentStatus(ctx, pay.SourceInvoiceID, pay.Status, p.UserID); err != nil {
			return err
		}
		evt, err := outbox.NewEvent(pay.CompanyID, outbox.KindPaymentRecorded, "payment_transaction", txn.ID, outbox.ActorPayload{ActorID: p.UserID})
		if err != nil {
			return err
		}
		if err := tx.RecordEvent(ctx, evt); err != nil {
			return err
		}
		eventID = evt.ID
		result = RecordPaymentResult{Payment: pay, Transaction: txn}
		return nil
	})
	if err != nil {
		if claimed {
			if delErr := s.idempotency.Delete(ctx, key, paymentModule); delErr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", delErr))
			}
		}
		return RecordPaymentResult{}, err
	}
	s.recordAudit(ctx, p.UserID, "PAYMENT_RECORD", "payment", result.Payment.ID, map[string]any{
		"transaction_id": result.Transaction.ID,
		"amount":         amount,
	})
	s.afterCommit(ctx, p.CompanyID, eventID)
	return result, nil
}

// DeletePaymentTransaction reverses a receipt and removes its ledger entry.
func (s *Service) DeletePaymentTransaction(ctx context.Context, p shared.Principal, transactionID int64) error {
	if err := p.Validate(); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		txn, err := tx.LockPaymentTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if txn.CompanyID != p.CompanyID {
			return notFound("payment transaction", transactionID)
		}
		pay, err := tx.LockPayment(ctx, txn.PaymentID)
		if err != nil {
			return err
		}
		pay.DueAmount = round2(pay.DueAmount + txn.Amount)
		pay.PaidAmount = math.Max(0, round2(pay.PaidAmount-txn.Amount))
		pay.Status = reversedStatus(pay, s.now())
		if err := tx.UpdatePayment(ctx, pay); err != nil {
			return err
		}
		if err := tx.SetOrderPaymentStatus(ctx, pay.SourceInvoiceID, pay.Status, p.UserID); err != nil {
			return err
		}
		if _, err := tx.DeleteLedgerEntries(ctx, []ledger.Reference{{Type: ledger.RefPayment, ID: txn.ID}}); err != nil {
			return err
		}
		return tx.DeletePaymentTransaction(ctx, txn.ID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, p.UserID, "PAYMENT_TRANSACTION_DELETE", "payment_transaction", transactionID, nil)
	s.afterCommit(ctx, p.CompanyID)
	return nil
}

// reversedStatus derives the status of a payment after a receipt is removed.
// Compensation is not a forward move, so the table is not consulted.
func reversedStatus(pay Payment, now time.Time) PaymentStatus {
	switch {
	case pay.DueAmount <= 0:
		return PaymentPaid
	case truncateDay(now).After(truncateDay(pay.DueDate)):
		return PaymentOverdue
	case pay.PaidAmount > 0:
		return PaymentPartial
	default:
		return PaymentPending
	}
}

// DeleteInvoice removes an invoice with its order, shipment, payment,
// transactions and every ledger entry referencing them.
func (s *Service) DeleteInvoice(ctx context.Context, p shared.Principal, invoiceID int64) error {
	if err := p.Validate(); err != nil {
		return err
	}
	var removed int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := s.lockInvoice(ctx, tx, p, invoiceID); err != nil {
			return err
		}
		txnIDs, err := tx.PaymentTransactionIDsForInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		refs := make([]ledger.Reference, 0, len(txnIDs)+1)
		refs = append(refs, ledger.Reference{Type: ledger.RefInvoice, ID: invoiceID})
		for _, id := range txnIDs {
			refs = append(refs, ledger.Reference{Type: ledger.RefPayment, ID: id})
		}
		if removed, err = tx.DeleteLedgerEntries(ctx, refs); err != nil {
			return err
		}
		return tx.DeleteInvoice(ctx, invoiceID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, p.UserID, "INVOICE_DELETE", "source_invoice", invoiceID, map[string]any{"ledger_entries_removed": removed})
	s.afterCommit(ctx, p.CompanyID)
	return nil
}

// CreatePurchaseOrder computes totals, numbers and stores a draft PO.
func (s *Service) CreatePurchaseOrder(ctx context.Context, p shared.Principal, in PurchaseOrderInput) (PurchaseOrder, error) {
	if err := p.Validate(); err != nil {
		return PurchaseOrder{}, err
	}
	po, err := s.buildPurchaseOrder(p, in)
	if err != nil {
		return PurchaseOrder{}, err
	}
	var eventID uuid.UUID
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if po.Currency == "" {
			base, err := tx.CompanyBaseCurrency(ctx, p.CompanyID)
			if err != nil {
				return err
			}
			po.Currency = strings.ToUpper(strings.TrimSpace(base))
			if po.Currency == "" {
				po.Currency = s.baseCurrency
			}
		}
		number, err := s.sequences.Next(ctx, tx.Counters(), p.CompanyID, sequence.KindPurchaseOrder)
		if err != nil {
			return err
		}
		po.Number = number.Formatted
		created, err := tx.InsertPurchaseOrder(ctx, po)
		if err != nil {
			return err
		}
		evt, err := outbox.NewEvent(created.CompanyID, outbox.KindPurchaseOrderCreated, "purchase_order", created.ID, outbox.ActorPayload{ActorID: p.UserID})
		if err != nil {
			return err
		}
		if err := tx.RecordEvent(ctx, evt); err != nil {
			return err
		}
		eventID = evt.ID
		po = created
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, p.UserID, "PO_CREATE", "purchase_order", po.ID, map[string]any{"number": po.Number, "grand_total": po.GrandTotal})
	s.afterCommit(ctx, p.CompanyID, eventID)
	return po, nil
}

func (s *Service) buildPurchaseOrder(p shared.Principal, in PurchaseOrderInput) (PurchaseOrder, error) {
	supplier := strings.TrimSpace(in.SupplierName)
	if supplier == "" {
		return PurchaseOrder{}, invalid("supplier name required")
	}
	if len(in.Items) == 0 {
		return PurchaseOrder{}, invalid("at least one item required")
	}
	if in.TaxRate < 0 || in.TaxRate > 100 {
		return PurchaseOrder{}, invalid("tax rate must be between 0 and 100")
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	items := make([]PurchaseOrderItem, 0, len(in.Items))
	var subtotal float64
	for i, item := range in.Items {
		if strings.TrimSpace(item.Description) == "" {
			return PurchaseOrder{}, invalid("item %d: description required", i+1)
		}
		if item.Quantity <= 0 {
			return PurchaseOrder{}, invalid("item %d: quantity must be positive", i+1)
		}
		if item.Rate < 0 {
			return PurchaseOrder{}, invalid("item %d: rate must not be negative", i+1)
		}
		subtotal += item.Quantity * item.Rate
		items = append(items, PurchaseOrderItem{
			Description: strings.TrimSpace(item.Description),
			Quantity:    item.Quantity,
			Rate:        item.Rate,
			Amount:      round2(item.Quantity * item.Rate),
		})
	}
	subtotal = round2(subtotal)
	tax := round2(subtotal * in.TaxRate / 100)
	issuedOn := in.IssuedOn
	if issuedOn.IsZero() {
		issuedOn = s.now()
	}
	return PurchaseOrder{
		CompanyID:    p.CompanyID,
		SupplierName: supplier,
		Currency:     currency,
		Status:       PODraft,
		Subtotal:     subtotal,
		TaxRate:      in.TaxRate,
		TaxAmount:    tax,
		GrandTotal:   round2(subtotal + tax),
		IssuedOn:     truncateDay(issuedOn),
		CreatedBy:    p.UserID,
		Items:        items,
	}, nil
}

// UpdatePurchaseOrderStatus moves a PO through its state machine. Cancelling
// removes its ledger entry.
func (s *Service) UpdatePurchaseOrderStatus(ctx context.Context, p shared.Principal, id int64, to POStatus) (PurchaseOrder, error) {
	if err := p.Validate(); err != nil {
		return PurchaseOrder{}, err
	}
	if !purchaseOrderFSM.known(to) {
		return PurchaseOrder{}, invalid("unknown purchase order status %q", to)
	}
	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockPurchaseOrder(ctx, id)
		if err != nil {
			return err
		}
		if current.CompanyID != p.CompanyID {
			return notFound("purchase order", id)
		}
		if err := purchaseOrderFSM.transition(current.Status, to); err != nil {
			return err
		}
		if err := tx.UpdatePurchaseOrderStatus(ctx, id, to); err != nil {
			return err
		}
		if to == POCancelled {
			if _, err := tx.DeleteLedgerEntries(ctx, []ledger.Reference{{Type: ledger.RefPurchaseOrder, ID: id}}); err != nil {
				return err
			}
		}
		current.Status = to
		po = current
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, p.UserID, "PO_STATUS", "purchase_order", id, map[string]any{"status": string(to)})
	s.afterCommit(ctx, p.CompanyID)
	return po, nil
}

// DeletePurchaseOrder removes a PO and its ledger entry.
func (s *Service) DeletePurchaseOrder(ctx context.Context, p shared.Principal, id int64) error {
	if err := p.Validate(); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.LockPurchaseOrder(ctx, id)
		if err != nil {
			return err
		}
		if po.CompanyID != p.CompanyID {
			return notFound("purchase order", id)
		}
		if _, err := tx.DeleteLedgerEntries(ctx, []ledger.Reference{{Type: ledger.RefPurchaseOrder, ID: id}}); err != nil {
			return err
		}
		return tx.DeletePurchaseOrder(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, p.UserID, "PO_DELETE", "purchase_order", id, nil)
	s.afterCommit(ctx, p.CompanyID)
	return nil
}

// CreateShipment opens the single shipment of an order.
func (s *Service) CreateShipment(ctx context.Context, p shared.Principal, orderID int64, in ShipmentInput) (Shipment, error) {
	if err := p.Validate(); err != nil {
		return Shipment{}, err
	}
	var shipment Shipment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.CompanyID != p.CompanyID {
			return notFound("order", orderID)
		}
		if !orderCanShip(o.Status) {
			return fmt.Errorf("%w: order %s is %s", shared.ErrInvalidTransition, o.Number, o.Status)
		}
		exists, err := tx.ShipmentExistsForOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		if exists {
			return ErrShipmentExists
		}
		number, err := s.sequences.Next(ctx, tx.Counters(), o.CompanyID, sequence.KindShipment)
		if err != nil {
			return err
		}
		shipment, err = tx.InsertShipment(ctx, Shipment{
			CompanyID:  o.CompanyID,
			OrderID:    o.ID,
			Number:     number.Formatted,
			BookingRef: normalizeRef(in.BookingRef),
			WaybillRef: normalizeRef(in.WaybillRef),
			TruckRef:   normalizeRef(in.TruckRef),
			Status:     ShipmentPending,
			CreatedBy:  p.UserID,
		})
		if err != nil {
			return err
		}
		if in.MarkShipped && o.Status != OrderShipped {
			if err := orderFSM.transition(o.Status, OrderShipped); err != nil {
				return err
			}
			o.Status = OrderShipped
			o.UpdatedBy = p.UserID
			return tx.UpdateOrder(ctx, o)
		}
		return nil
	})
	if err != nil {
		return Shipment{}, err
	}
	s.recordAudit(ctx, p.UserID, "SHIPMENT_CREATE", "shipment", shipment.ID, map[string]any{"order_id": orderID, "number": shipment.Number})
	s.afterCommit(ctx, p.CompanyID)
	return shipment, nil
}

// UpdateShipmentStatus moves a shipment through its state machine. Going in
// transit ships the order; delivery delivers it.
func (s *Service) UpdateShipmentStatus(ctx context.Context, p shared.Principal, shipmentID int64, to ShipmentStatus) (Shipment, error) {
	if err := p.Validate(); err != nil {
		return Shipment{}, err
	}
	if !shipmentFSM.known(to) {
		return Shipment{}, invalid("unknown shipment status %q", to)
	}
	var shipment Shipment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sh, err := tx.LockShipment(ctx, shipmentID)
		if err != nil {
			return err
		}
		if sh.CompanyID != p.CompanyID {
			return notFound("shipment", shipmentID)
		}
		if err := shipmentFSM.transition(sh.Status, to); err != nil {
			return err
		}
		if err := tx.UpdateShipmentStatus(ctx, sh.ID, to); err != nil {
			return err
		}
		sh.Status = to
		shipment = sh

		var targets []OrderStatus
		switch to {
		case ShipmentInTransit:
			targets = []OrderStatus{OrderShipped}
		case ShipmentDelivered:
			targets = []OrderStatus{OrderShipped, OrderDelivered}
		default:
			return nil
		}
		o, err := tx.LockOrder(ctx, sh.OrderID)
		if err != nil {
			return err
		}
		changed := false
		for _, target := range targets {
			if o.Status == target {
				continue
			}
			if err := orderFSM.transition(o.Status, target); err != nil {
				return err
			}
			o.Status = target
			changed = true
		}
		if !changed {
			return nil
		}
		o.UpdatedBy = p.UserID
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return Shipment{}, err
	}
	s.recordAudit(ctx, p.UserID, "SHIPMENT_STATUS", "shipment", shipmentID, map[string]any{"status": string(to)})
	s.afterCommit(ctx, p.CompanyID)
	return shipment, nil
}

// GetOrder returns an order visible to the principal.
func (s *Service) GetOrder(ctx context.Context, p shared.Principal, orderID int64) (Order, error) {
	filter, err := scope.For(p)
	if err != nil {
		return Order{}, err
	}
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !filter.Allows(o.CompanyID, o.CreatedBy) {
		return Order{}, notFound("order", orderID)
	}
	return o, nil
}

// GetPurchaseOrder returns a PO visible to the principal.
func (s *Service) GetPurchaseOrder(ctx context.Context, p shared.Principal, id int64) (PurchaseOrder, error) {
	filter, err := scope.For(p)
	if err != nil {
		return PurchaseOrder{}, err
	}
	po, err := s.repo.GetPurchaseOrder(ctx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if !filter.Allows(po.CompanyID, po.CreatedBy) {
		return PurchaseOrder{}, notFound("purchase order", id)
	}
	return po, nil
}

// ListOrders returns a page of orders visible to the principal.
func (s *Service) ListOrders(ctx context.Context, p shared.Principal, lf ListFilters) ([]Order, shared.Pagination, error) {
	filter, err := scope.For(p)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	items, total, err := s.repo.ListOrders(ctx, filter, lf)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(lf.Page, lf.PerPage, total), nil
}

// ListPurchaseOrders returns a page of POs visible to the principal.
func (s *Service) ListPurchaseOrders(ctx context.Context, p shared.Principal, lf ListFilters) ([]PurchaseOrder, shared.Pagination, error) {
	filter, err := scope.For(p)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	items, total, err := s.repo.ListPurchaseOrders(ctx, filter, lf)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(lf.Page, lf.PerPage, total), nil
}

// ListShipments returns a page of shipments visible to the principal.
func (s *Service) ListShipments(ctx context.Context, p shared.Principal, lf ListFilters) ([]Shipment, shared.Pagination, error) {
	filter, err := scope.For(p)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	items, total, err := s.repo.ListShipments(ctx, filter, lf)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(lf.Page, lf.PerPage, total), nil
}

// GetOrderDocument builds the printable view-model of an order.
func (s *Service) GetOrderDocument(ctx context.Context, p shared.Principal, orderID int64) (OrderDocument, error) {
	filter, err := scope.For(p)
	if err != nil {
		return OrderDocument{}, err
	}
	src, err := s.repo.OrderDocument(ctx, orderID)
	if err != nil {
		return OrderDocument{}, err
	}
	if !filter.Allows(src.Order.CompanyID, src.Order.CreatedBy) {
		return OrderDocument{}, notFound("order", orderID)
	}
	return BuildOrderDocument(src), nil
}

// afterCommit delivers recorded events and drops cached aggregates. Both are
// best effort: failures are logged and counted but never returned.
func (s *Service) afterCommit(ctx context.Context, companyID int64, eventIDs ...uuid.UUID) {
	ids := eventIDs[:0]
	for _, id := range eventIDs {
		if id != uuid.Nil {
			ids = append(ids, id)
		}
	}
	if len(ids) > 0 && s.events != nil {
		report, err := s.events.Dispatch(ctx, ids...)
		if err != nil {
			s.metrics.sideEffectFailed("dispatch")
			s.logger.Error("dispatch outbox events", slog.Int64("company_id", companyID), slog.Any("error", err))
		} else if report.Failed > 0 {
			s.metrics.sideEffectFailed("dispatch")
			s.logger.Warn("outbox events left pending", slog.Int64("company_id", companyID), slog.Int("failed", report.Failed))
		}
	}
	if s.dashboard != nil {
		if err := s.dashboard.Invalidate(ctx, companyID); err != nil {
			s.metrics.sideEffectFailed("dashboard_invalidate")
			s.logger.Warn("invalidate dashboard cache", slog.Int64("company_id", companyID), slog.Any("error", err))
		}
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.metrics.sideEffectFailed("audit")
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}

func normalizeRef(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
