// Package arrivals provides the receiving and inspection workflow.
// Delivered stock lands as PartArrival rows; inspection splits each
// arrival into accepted and rejected portions, and only the accepted
// portion enters the movement ledger.
package arrivals

import (
	"time"

	"stocktrace/internal/core/id"
	"stocktrace/internal/core/types"
	"stocktrace/internal/domain/status"
)

// PartArrival is one part line on a received package.
type PartArrival struct {
	ID        id.ID  `json:"id"`
	PackageID *id.ID `json:"packageId,omitempty"`

	// PurchaseOrderLineID is nil for ad-hoc receipts with no order.
	PurchaseOrderLineID *id.ID `json:"purchaseOrderLineId,omitempty"`

	PartID          id.ID `json:"partId"`
	MajorLocationID id.ID `json:"majorLocationId"`
	StoreroomID     id.ID `json:"storeroomId,omitempty"`

	QuantityReceived types.Quantity `json:"quantityReceived"`
	UnitCost         *types.Money   `json:"unitCost,omitempty"`

	Condition string `json:"condition,omitempty"`

	Status      status.ArrivalStatus `json:"status"`
	InspectedBy string               `json:"inspectedBy,omitempty"`
	InspectedAt *time.Time           `json:"inspectedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
