package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/tradeflow/internal/outbox"
	"github.com/odyssey-erp/tradeflow/internal/shared"
)

// Store persists ledger entries.
type Store interface {
	HasReference(ctx context.Context, ref Reference) (bool, error)
	Insert(ctx context.Context, entries []Entry) ([]Entry, error)
}

// SourceReader loads projection inputs. Missing sources return shared.ErrNotFound.
type SourceReader interface {
	InvoiceForProjection(ctx context.Context, invoiceID int64) (InvoiceSource, error)
	PaymentForProjection(ctx context.Context, transactionID int64) (PaymentSource, error)
	PurchaseOrderForProjection(ctx context.Context, purchaseOrderID int64) (PurchaseOrderSource, error)
}

// Projector turns lifecycle events into ledger entries at most once per source.
type Projector struct {
	store   Store
	sources SourceReader
	fx      *Converter
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewProjector constructs a Projector.
func NewProjector(store Store, sources SourceReader, fx *Converter, logger *slog.Logger, metrics *Metrics) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projector{store: store, sources: sources, fx: fx, logger: logger, metrics: metrics, now: time.Now}
}

// Register binds the projector to the outbox event kinds it consumes.
func (p *Projector) Register(d *outbox.Dispatcher) {
	for _, kind := range []outbox.Kind{outbox.KindInvoiceConfirmed, outbox.KindPaymentRecorded, outbox.KindPurchaseOrderCreated} {
		d.Register(kind, p.HandleEvent)
	}
}

// HandleEvent projects an outbox event. Failures are logged and counted here
// so ledger drift is visible even when the caller only retries.
func (p *Projector) HandleEvent(ctx context.Context, evt outbox.Event) error {
	_, err := p.Project(ctx, evt.Kind, evt.AggregateID, evt.Actor())
	if err != nil {
		p.metrics.failed(evt.Kind)
		p.logger.Error("ledger projection failed",
			slog.String("kind", string(evt.Kind)),
			slog.Int64("company_id", evt.CompanyID),
			slog.Int64("source_id", evt.AggregateID),
			slog.Any("error", err),
		)
	}
	return err
}

// Project derives and stores the entries for one source event. actorID
// attributes the entries; 0 falls back to the source creator.
func (p *Projector) Project(ctx context.Context, kind outbox.Kind, sourceID, actorID int64) ([]Entry, error) {
	if p == nil || p.store == nil || p.sources == nil || p.fx == nil {
		return nil, errors.New("ledger: projector not configured")
	}
	var (
		entries []Entry
		err     error
	)
	switch kind {
	case outbox.KindInvoiceConfirmed:
		entries, err = p.projectInvoice(ctx, sourceID, actorID)
	case outbox.KindPaymentRecorded:
		entries, err = p.projectPayment(ctx, sourceID, actorID)
	case outbox.KindPurchaseOrderCreated:
		entries, err = p.projectPurchaseOrder(ctx, sourceID, actorID)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, kind)
	}
	if errors.Is(err, shared.ErrNotFound) {
		p.logger.Info("ledger source gone, nothing to project", slog.String("kind", string(kind)), slog.Int64("source_id", sourceID))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	inserted, err := p.store.Insert(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("ledger: insert %s: %w", entries[0].Reference(), err)
	}
	p.metrics.projected(kind, len(inserted))
	return inserted, nil
}

func (p *Projector) projectInvoice(ctx context.Context, invoiceID, actorID int64) ([]Entry, error) {
	ref := Reference{Type: RefInvoice, ID: invoiceID}
	done, err := p.store.HasReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, nil
	}
	inv, err := p.sources.InvoiceForProjection(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != "confirmed" {
		return nil, fmt.Errorf("%w: invoice %s is %s", ErrSourceNotReady, inv.Number, inv.Status)
	}
	total, err := p.fx.ConvertTo(inv.Total, inv.Currency, inv.BaseCurrency)
	if err != nil {
		return nil, err
	}
	base := Entry{
		CompanyID:     inv.CompanyID,
		Date:          dateOr(inv.InvoiceDate, p.now()),
		ReferenceType: RefInvoice,
		ReferenceID:   inv.ID,
		PartyName:     inv.PartyName,
		CreatedBy:     actorOr(actorID, inv.CreatedBy),
	}
	sales := base
	sales.EntryType = EntrySales
	sales.Amount = total.Amount
	sales.Description = fmt.Sprintf("Sales on PI %s%s", inv.Number, total.Note())
	entries := []Entry{sales}

	if inv.Advance > 0 {
		advance, err := p.fx.ConvertTo(inv.Advance, inv.Currency, inv.BaseCurrency)
		if err != nil {
			return nil, err
		}
		receipt := base
		receipt.EntryType = EntryReceipt
		receipt.Amount = advance.Amount
		receipt.Description = fmt.Sprintf("Advance received on PI %s%s", inv.Number, advance.Note())
		entries = append(entries, receipt)
	}
	return entries, nil
}

func (p *Projector) projectPayment(ctx context.Context, transactionID, actorID int64) ([]Entry, error) {
	ref := Reference{Type: RefPayment, ID: transactionID}
	done, err := p.store.HasReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, nil
	}
	pay, err := p.sources.PaymentForProjection(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	amount, err := p.fx.ConvertTo(pay.Amount, pay.Currency, pay.BaseCurrency)
	if err != nil {
		return nil, err
	}
	return []Entry{{
		CompanyID:     pay.CompanyID,
		EntryType:     EntryReceipt,
		Amount:        amount.Amount,
		Date:          dateOr(pay.PaidAt, p.now()),
		ReferenceType: RefPayment,
		ReferenceID:   pay.TransactionID,
		PartyName:     pay.PartyName,
		Description:   fmt.Sprintf("Payment received against PI %s%s", pay.InvoiceNumber, amount.Note()),
		CreatedBy:     actorOr(actorID, pay.CreatedBy),
	}}, nil
}

func (p *Projector) projectPurchaseOrder(ctx context.Context, purchaseOrderID, actorID int64) ([]Entry, error) {
	ref := Reference{Type: RefPurchaseOrder, ID: purchaseOrderID}
	done, err := p.store.HasReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, nil
	}
	po, err := p.sources.PurchaseOrderForProjection(ctx, purchaseOrderID)
	if err != nil {
		return nil, err
	}
	if po.Status == "cancelled" {
		return nil, nil
	}
	total, err := p.fx.ConvertTo(po.GrandTotal, po.Currency, po.BaseCurrency)
	if err != nil {
		return nil, err
	}
	return []Entry{{
		CompanyID:     po.CompanyID,
		EntryType:     EntryPurchase,
		Amount:        total.Amount,
		Date:          dateOr(po.IssuedOn, p.now()),
		ReferenceType: RefPurchaseOrder,
		ReferenceID:   po.ID,
		PartyName:     po.SupplierName,
		Description:   fmt.Sprintf("Purchase order %s%s", po.Number, total.Note()),
		CreatedBy:     actorOr(actorID, po.CreatedBy),
	}}, nil
}

func dateOr(t, fallback time.Time) time.Time {
	if t.IsZero() {
		t = fallback
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func actorOr(actor, fallback int64) int64 {
	if actor > 0 {
		return actor
	}
	return fallback
}
