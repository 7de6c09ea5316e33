package lifecycle

import (
	"fmt"

	"github.com/odyssey-erp/tradeflow/internal/shared"
)

var (
	// ErrOrderExists indicates the invoice already produced an order.
	ErrOrderExists = fmt.Errorf("%w: order already exists for invoice", shared.ErrConflict)
	// ErrPaymentExists indicates the invoice already has a payment schedule.
	ErrPaymentExists = fmt.Errorf("%w: payment already exists for invoice", shared.ErrConflict)
	// ErrShipmentExists indicates the order already has a shipment.
	ErrShipmentExists = fmt.Errorf("%w: shipment already exists for order", shared.ErrConflict)
)

func notFound(entity string, id int64) error {
	return fmt.Errorf("%w: %s %d", shared.ErrNotFound, entity, id)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", shared.ErrValidation, fmt.Sprintf(format, args...))
}
