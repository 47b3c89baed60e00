// Package inventory maintains the derived stock aggregates: the
// bin-level active inventory table and the part-level summary.
// Both are projections of the movement ledger and can be rebuilt from
// it at any time; the aggregator is their only writer.
package inventory

import (
	"time"

	"stocktrace/internal/core/id"
	"stocktrace/internal/core/types"
)

// Key identifies one bin-level aggregate row.
// Nil StoreroomID/LocationID/BinID mean the unassigned position at
// that level, mirroring ledger.BinRef.
type Key struct {
	PartID          id.ID
	MajorLocationID id.ID
	StoreroomID     id.ID
	LocationID      id.ID
	BinID           id.ID
}

// ActiveRecord is the current stock at one stocking position.
type ActiveRecord struct {
	ID              id.ID `json:"id"`
	PartID          id.ID `json:"partId"`
	MajorLocationID id.ID `json:"majorLocationId"`
	StoreroomID     id.ID `json:"storeroomId,omitempty"`
	LocationID      id.ID `json:"locationId,omitempty"`
	BinID           id.ID `json:"binId,omitempty"`

	QuantityOnHand    types.Quantity `json:"quantityOnHand"`
	QuantityAllocated types.Quantity `json:"quantityAllocated"`

	// UnitCostAvg is the weighted-average unit cost of the stock in
	// this position. Only inbound stock with a known cost moves it.
	UnitCostAvg types.Money `json:"unitCostAvg"`

	LastMovementAt time.Time `json:"lastMovementAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Key returns the position key of the record.
func (r *ActiveRecord) Key() Key {
	return Key{
		PartID:          r.PartID,
		MajorLocationID: r.MajorLocationID,
		StoreroomID:     r.StoreroomID,
		LocationID:      r.LocationID,
		BinID:           r.BinID,
	}
}

// Available is the quantity not reserved for a demand.
func (r *ActiveRecord) Available() types.Quantity {
	return r.QuantityOnHand - r.QuantityAllocated
}

// SummaryRecord is the part-level rollup of active inventory.
type SummaryRecord struct {
	PartID         id.ID          `json:"partId"`
	TotalOnHand    types.Quantity `json:"totalOnHand"`
	TotalAllocated types.Quantity `json:"totalAllocated"`
	TotalAvailable types.Quantity `json:"totalAvailable"`
	PositionCount  int            `json:"positionCount"`

	// UnitCostAvg is the part's rolling average cost: the bin averages
	// weighted by each position's on-hand quantity.
	UnitCostAvg types.Money `json:"unitCostAvg"`

	LastMovementAt time.Time `json:"lastMovementAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
