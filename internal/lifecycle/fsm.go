package lifecycle

import (
	"fmt"

	"github.com/odyssey-erp/tradeflow/internal/shared"
)

// machine is an explicit transition table. Terminal states have no entry.
type machine[S ~string] struct {
	name  string
	edges map[S][]S
}

func (m machine[S]) can(from, to S) bool {
	for _, next := range m.edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition validates from→to, returning shared.ErrInvalidTransition when
// the table forbids it.
func (m machine[S]) transition(from, to S) error {
	if m.can(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s %s -> %s", shared.ErrInvalidTransition, m.name, from, to)
}

func (m machine[S]) known(s S) bool {
	if _, ok := m.edges[s]; ok {
		return true
	}
	for _, targets := range m.edges {
		for _, t := range targets {
			if t == s {
				return true
			}
		}
	}
	return false
}

var invoiceFSM = machine[InvoiceStatus]{
	name: "invoice",
	edges: map[InvoiceStatus][]InvoiceStatus{
		InvoiceDraft: {InvoiceConfirmed, InvoiceCancelled},
	},
}

var orderFSM = machine[OrderStatus]{
	name: "order",
	edges: map[OrderStatus][]OrderStatus{
		OrderPending:    {OrderConfirmed, OrderCancelled},
		OrderConfirmed:  {OrderProcessing, OrderShipped, OrderCancelled},
		OrderProcessing: {OrderShipped, OrderCancelled},
		OrderShipped:    {OrderDelivered},
	},
}

var paymentFSM = machine[PaymentStatus]{
	name: "payment",
	edges: map[PaymentStatus][]PaymentStatus{
		PaymentPending: {PaymentPartial, PaymentPaid, PaymentOverdue},
		PaymentPartial: {PaymentPaid, PaymentOverdue},
		PaymentOverdue: {PaymentPartial, PaymentPaid},
	},
}

var purchaseOrderFSM = machine[POStatus]{
	name: "purchase order",
	edges: map[POStatus][]POStatus{
		PODraft:  {POIssued, POCancelled},
		POIssued: {POReceived, POCancelled},
	},
}

var shipmentFSM = machine[ShipmentStatus]{
	name: "shipment",
	edges: map[ShipmentStatus][]ShipmentStatus{
		ShipmentPending:   {ShipmentBooked, ShipmentCancelled},
		ShipmentBooked:    {ShipmentInTransit, ShipmentCancelled},
		ShipmentInTransit: {ShipmentDelivered},
	},
}

// CanTransitionOrder reports whether an order may move from one status to another.
func CanTransitionOrder(from, to OrderStatus) bool { return orderFSM.can(from, to) }

// CanTransitionPayment reports whether a payment may move from one status to another.
func CanTransitionPayment(from, to PaymentStatus) bool { return paymentFSM.can(from, to) }

// CanTransitionShipment reports whether a shipment may move from one status to another.
func CanTransitionShipment(from, to ShipmentStatus) bool { return shipmentFSM.can(from, to) }

// CanTransitionPurchaseOrder reports whether a PO may move from one status to another.
func CanTransitionPurchaseOrder(from, to POStatus) bool { return purchaseOrderFSM.can(from, to) }

// orderCanShip reports whether a shipment may be created for an order in s.
func orderCanShip(s OrderStatus) bool {
	return s == OrderConfirmed || s == OrderProcessing || s == OrderShipped
}

// settledStatus derives the payment status after a receipt.
func settledStatus(due float64) PaymentStatus {
	if due <= 0 {
		return PaymentPaid
	}
	return PaymentPartial
}
