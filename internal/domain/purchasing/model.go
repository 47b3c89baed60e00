// Package purchasing owns the slice of purchase orders the ledger
// drives: per-line received totals and the status cascade over lines
// and their part demands. Order entry, pricing, and vendor management
// live elsewhere and only the fields consumed here are modelled.
package purchasing

import (
	"time"

	"stocktrace/internal/core/id"
	"stocktrace/internal/core/types"
	"stocktrace/internal/domain/status"
)

// PurchaseOrderLine is one ordered part on a purchase order.
type PurchaseOrderLine struct {
	ID              id.ID `json:"id"`
	PurchaseOrderID id.ID `json:"purchaseOrderId"`
	PartID          id.ID `json:"partId"`

	QuantityOrdered  types.Quantity `json:"quantityOrdered"`
	QuantityAccepted types.Quantity `json:"quantityAccepted"`
	QuantityRejected types.Quantity `json:"quantityRejected"`

	UnitCost *types.Money `json:"unitCost,omitempty"`

	Status    status.LineStatus `json:"status"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// QuantityReceivedTotal is everything inspected off this line, whatever
// the outcome. Rejected units count toward fulfilment: the vendor
// delivered them even if they failed inspection.
func (l *PurchaseOrderLine) QuantityReceivedTotal() types.Quantity {
	return l.QuantityAccepted + l.QuantityRejected
}

// PartDemand is a requirement for a part, optionally sourced from a
// purchase order line.
type PartDemand struct {
	ID                  id.ID  `json:"id"`
	PurchaseOrderLineID *id.ID `json:"purchaseOrderLineId,omitempty"`
	PartID              id.ID  `json:"partId"`

	Quantity types.Quantity `json:"quantity"`

	Status    status.DemandStatus `json:"status"`
	UpdatedAt time.Time           `json:"updatedAt"`
}
