package lifecycle

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/tradeflow/internal/platform/httpx"
	"github.com/odyssey-erp/tradeflow/internal/shared"
)

// Handler exposes lifecycle endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers lifecycle routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/invoices/{id}/confirm", h.confirmInvoice)
	r.Post("/invoices/{id}/order-snapshot", h.orderSnapshot)
	r.Delete("/invoices/{id}", h.deleteInvoice)

	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Patch("/orders/{id}", h.updateOrder)
	r.Get("/orders/{id}/document", h.orderDocument)
	r.Post("/orders/{id}/shipment", h.createShipment)

	r.Get("/shipments", h.listShipments)
	r.Patch("/shipments/{id}/status", h.updateShipmentStatus)

	r.Post("/payments/record", h.recordPayment)
	r.Delete("/payments/transactions/{id}", h.deletePaymentTransaction)

	r.Get("/purchase-orders", h.listPurchaseOrders)
	r.Post("/purchase-orders", h.createPurchaseOrder)
	r.Get("/purchase-orders/{id}", h.getPurchaseOrder)
	r.Patch("/purchase-orders/{id}/status", h.updatePurchaseOrderStatus)
	r.Delete("/purchase-orders/{id}", h.deletePurchaseOrder)
}

type orderExtrasRequest struct {
	BookingNumber string `json:"booking_number" validate:"max=64"`
	WaybillNumber string `json:"waybill_number" validate:"max=64"`
	TruckNumber   string `json:"truck_number" validate:"max=64"`
}

func (req orderExtrasRequest) extras() OrderExtras {
	return OrderExtras{BookingNumber: req.BookingNumber, WaybillNumber: req.WaybillNumber, TruckNumber: req.TruckNumber}
}

type updateOrderRequest struct {
	BookingNumber *string `json:"booking_number" validate:"omitempty,max=64"`
	WaybillNumber *string `json:"waybill_number" validate:"omitempty,max=64"`
	TruckNumber   *string `json:"truck_number" validate:"omitempty,max=64"`
	Status        *string `json:"order_status" validate:"omitempty,oneof=pending confirmed processing shipped delivered cancelled"`
}

type recordPaymentRequest struct {
	PaymentID int64   `json:"payment_id" validate:"required,gt=0"`
	Amount    float64 `json:"amount" validate:"required,gt=0"`
	PaidAt    string  `json:"paid_at" validate:"omitempty,datetime=2006-01-02"`
	Method    string  `json:"method" validate:"max=32"`
	Reference string  `json:"reference" validate:"max=128"`
}

type purchaseOrderRequest struct {
	SupplierName string                     `json:"supplier_name" validate:"required,max=200"`
	Currency     string                     `json:"currency" validate:"omitempty,len=3,alpha"`
	TaxRate      float64                    `json:"tax_rate" validate:"gte=0,lte=100"`
	IssuedOn     string                     `json:"issued_on" validate:"omitempty,datetime=2006-01-02"`
	Items        []purchaseOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type purchaseOrderItemRequest struct {
	Description string  `json:"description" validate:"required,max=500"`
	Quantity    float64 `json:"quantity" validate:"gt=0"`
	Rate        float64 `json:"rate" validate:"gte=0"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type shipmentRequest struct {
	BookingRef  string `json:"booking_ref" validate:"max=64"`
	WaybillRef  string `json:"waybill_ref" validate:"max=64"`
	TruckRef    string `json:"truck_ref" validate:"max=64"`
	MarkShipped bool   `json:"mark_shipped"`
}

func (h *Handler) confirmInvoice(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	var req orderExtrasRequest
	if !h.bindOptional(w, r, &req) {
		return
	}
	result, err := h.service.ConfirmInvoiceIntoOrder(r.Context(), p, id, req.extras())
	if err != nil {
		h.fail(w, r, "confirm invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) orderSnapshot(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	var req orderExtrasRequest
	if !h.bindOptional(w, r, &req) {
		return
	}
	order, err := h.service.CreateOrderSnapshotFromInvoice(r.Context(), p, id, req.extras())
	if err != nil {
		h.fail(w, r, "order snapshot", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteInvoice(r.Context(), p, id); err != nil {
		h.fail(w, r, "delete invoice", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	items, page, err := h.service.ListOrders(r.Context(), p, listFilters(r))
	if err != nil {
		h.fail(w, r, "list orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": nonNil(items), "pagination": page})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	order, err := h.service.GetOrder(r.Context(), p, id)
	if err != nil {
		h.fail(w, r, "get order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	var req updateOrderRequest
	if err := httpx.Bind(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := UpdateOrderInput{BookingNumber: req.BookingNumber, WaybillNumber: req.WaybillNumber, TruckNumber: req.TruckNumber}
	if req.Status != nil {
		status := OrderStatus(*req.Status)
		in.Status = &status
	}
	order, err := h.service.UpdateOrder(r.Context(), p, id, in)
	if err != nil {
		h.fail(w, r, "update order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) orderDocument(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.GetOrderDocument(r.Context(), p, id)
	if err != nil {
		h.fail(w, r, "order document", err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) createShipment(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	var req shipmentRequest
	if !h.bindOptional(w, r, &req) {
		return
	}
	shipment, err := h.service.CreateShipment(r.Context(), p, id, ShipmentInput{
		BookingRef:  req.BookingRef,
		WaybillRef:  req.WaybillRef,
		TruckRef:    req.TruckRef,
		MarkShipped: req.MarkShipped,
	})
	if err != nil {
		h.fail(w, r, "create shipment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, shipment)
}

func (h *Handler) listShipments(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	items, page, err := h.service.ListShipments(r.Context(), p, listFilters(r))
	if err != nil {
		h.fail(w, r, "list shipments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": nonNil(items), "pagination": page})
}

func (h *Handler) updateShipmentStatus(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.Bind(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	shipment, err := h.service.UpdateShipmentStatus(r.Context(), p, id, ShipmentStatus(req.Status))
	if err != nil {
		h.fail(w, r, "update shipment status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, shipment)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req recordPaymentRequest
	if err := httpx.Bind(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	paidAt, err := parseDate(req.PaidAt)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.RecordPayment(r.Context(), p, RecordPaymentInput{
		PaymentID:      req.PaymentID,
		Amount:         req.Amount,
		PaidAt:         paidAt,
		Method:         req.Method,
		Reference:      req.Reference,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.fail(w, r, "record payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) deletePaymentTransaction(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeletePaymentTransaction(r.Context(), p, id); err != nil {
		h.fail(w, r, "delete payment transaction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	items, page, err := h.service.ListPurchaseOrders(r.Context(), p, listFilters(r))
	if err != nil {
		h.fail(w, r, "list purchase orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": nonNil(items), "pagination": page})
}

func (h *Handler) createPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req purchaseOrderRequest
	if err := httpx.Bind(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	issuedOn, err := parseDate(req.IssuedOn)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := PurchaseOrderInput{SupplierName: req.SupplierName, Currency: req.Currency, TaxRate: req.TaxRate, IssuedOn: issuedOn}
	for _, item := range req.Items {
		in.Items = append(in.Items, PurchaseOrderItemInput{Description: item.Description, Quantity: item.Quantity, Rate: item.Rate})
	}
	po, err := h.service.CreatePurchaseOrder(r.Context(), p, in)
	if err != nil {
		h.fail(w, r, "create purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) getPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	po, err := h.service.GetPurchaseOrder(r.Context(), p, id)
	if err != nil {
		h.fail(w, r, "get purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) updatePurchaseOrderStatus(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.Bind(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, err := h.service.UpdatePurchaseOrderStatus(r.Context(), p, id, POStatus(req.Status))
	if err != nil {
		h.fail(w, r, "update purchase order status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) deletePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeletePurchaseOrder(r.Context(), p, id); err != nil {
		h.fail(w, r, "delete purchase order", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (shared.Principal, bool) {
	p, err := httpx.Principal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return shared.Principal{}, false
	}
	return p, true
}

func (h *Handler) principalAndID(w http.ResponseWriter, r *http.Request) (shared.Principal, int64, bool) {
	p, ok := h.principal(w, r)
	if !ok {
		return shared.Principal{}, 0, false
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return shared.Principal{}, 0, false
	}
	return p, id, true
}

// bindOptional binds a body when one was sent.
func (h *Handler) bindOptional(w http.ResponseWriter, r *http.Request, target any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := httpx.Bind(w, r, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if !isClientError(err) {
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func isClientError(err error) bool {
	for _, target := range []error{shared.ErrNotFound, shared.ErrConflict, shared.ErrValidation, shared.ErrInvalidTransition, shared.ErrForbidden} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func listFilters(r *http.Request) ListFilters {
	q := r.URL.Query()
	return ListFilters{
		Status:  strings.TrimSpace(q.Get("status")),
		Search:  strings.TrimSpace(q.Get("search")),
		Page:    httpx.IntQuery(r, "page", 1),
		PerPage: httpx.IntQuery(r, "per_page", 20),
	}
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, invalid("invalid date %q", raw)
	}
	return t, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
