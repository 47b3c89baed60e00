package purchasing

import (
	"context"

	"stocktrace/internal/core/id"
	"stocktrace/internal/domain/status"
)

// Repository defines persistence for the purchasing slice the ledger
// owns. Lookups of rows the cascade needs return apperror.NewNotFound
// when missing; a dangling reference is data corruption, not a benign
// empty result.
type Repository interface {
	// GetLineForUpdate locks and returns a purchase order line.
	GetLineForUpdate(ctx context.Context, lineID id.ID) (*PurchaseOrderLine, error)

	// UpdateLine rewrites a line's received totals and status.
	UpdateLine(ctx context.Context, line *PurchaseOrderLine) error

	// ListLinesByOrder returns all lines of an order.
	ListLinesByOrder(ctx context.Context, orderID id.ID) ([]PurchaseOrderLine, error)

	// GetDemand returns a part demand.
	GetDemand(ctx context.Context, demandID id.ID) (*PartDemand, error)

	// ListDemandsByLine returns demands sourced from a line.
	ListDemandsByLine(ctx context.Context, lineID id.ID) ([]PartDemand, error)

	// UpdateDemandStatus persists an advanced demand status.
	UpdateDemandStatus(ctx context.Context, demandID id.ID, s status.DemandStatus) error

	// GetOrderStatus returns the order header status.
	GetOrderStatus(ctx context.Context, orderID id.ID) (status.OrderStatus, error)

	// UpdateOrderStatus persists an advanced order status.
	UpdateOrderStatus(ctx context.Context, orderID id.ID, s status.OrderStatus) error
}

// ReceiptChecker reports whether accepted stock from a purchase order
// line has reached the ledger. Implemented by the movement repository.
type ReceiptChecker interface {
	HasReceiptForLine(ctx context.Context, lineID id.ID) (bool, error)
}
