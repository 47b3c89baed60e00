// Package ledger provides the append-only inventory movement ledger.
// Every physical change of stock is a MovementRecord; records are never
// updated or deleted, and corrections are new compensating records.
package ledger

import (
	"time"

	"stocktrace/internal/core/id"
	"stocktrace/internal/core/types"
)

// MovementKind classifies a ledger record.
type MovementKind string

const (
	KindReceipt     MovementKind = "receipt"
	KindIssue       MovementKind = "issue"
	KindAdjustment  MovementKind = "adjustment"
	KindBinTransfer MovementKind = "bin_transfer"
	KindRelocation  MovementKind = "relocation"
	KindReturn      MovementKind = "return"
)

// BinRef identifies a stocking position as a four-level tuple.
// A Nil StoreroomID, LocationID, or BinID means "unassigned" at that
// level: freshly received stock sits in a storeroom with no location
// or bin until it is put away.
type BinRef struct {
	MajorLocationID id.ID `json:"majorLocationId"`
	StoreroomID     id.ID `json:"storeroomId,omitempty"`
	LocationID      id.ID `json:"locationId,omitempty"`
	BinID           id.ID `json:"binId,omitempty"`
}

// IsZero reports whether the reference is entirely unset.
func (b BinRef) IsZero() bool {
	return id.IsNil(b.MajorLocationID) && id.IsNil(b.StoreroomID) &&
		id.IsNil(b.LocationID) && id.IsNil(b.BinID)
}

// Reference links a movement to the business record that caused it.
type Reference struct {
	Type string `json:"type"`
	ID   id.ID  `json:"id"`
}

// Reference types used by the core operations.
const (
	RefPartArrival       = "part_arrival"
	RefPartDemand        = "part_demand"
	RefPurchaseOrderLine = "purchase_order_line"
	RefAdjustment        = "adjustment"
)

// MovementRecord is one immutable row of the movement ledger.
//
// QuantityDelta is signed: receipts, returns, and positive adjustments
// carry positive deltas; issues and negative adjustments carry negative
// ones. Transfers and relocations are recorded as a pair of rows, a
// negative one at the source position and a positive one at the
// destination, linked through PreviousMovementID.
//
// InitialArrivalID points at the receipt event this stock originally
// entered through and is carried unchanged along the whole chain.
// PreviousMovementID points at the immediately preceding movement of
// the same stock; it is nil only on receipt records.
type MovementRecord struct {
	ID            id.ID          `json:"id"`
	PartID        id.ID          `json:"partId"`
	Kind          MovementKind   `json:"kind"`
	QuantityDelta types.Quantity `json:"quantityDelta"`
	UnitCost      *types.Money   `json:"unitCost,omitempty"`

	From *BinRef `json:"from,omitempty"`
	To   *BinRef `json:"to,omitempty"`

	Reference          *Reference `json:"reference,omitempty"`
	InitialArrivalID   id.ID      `json:"initialArrivalId"`
	PreviousMovementID *id.ID     `json:"previousMovementId,omitempty"`

	MovementDate time.Time `json:"movementDate"`
	CreatedBy    string    `json:"createdBy,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Position returns the stocking position this record changes: the
// destination for positive deltas, the source for negative ones.
func (m *MovementRecord) Position() BinRef {
	if m.QuantityDelta.IsNegative() {
		if m.From != nil {
			return *m.From
		}
		return BinRef{}
	}
	if m.To != nil {
		return *m.To
	}
	return BinRef{}
}

// IsReceipt reports whether the record is a chain root.
func (m *MovementRecord) IsReceipt() bool {
	return m.Kind == KindReceipt
}
