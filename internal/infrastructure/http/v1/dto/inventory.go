package dto

import (
	"stocktrace/internal/core/types"
	"stocktrace/internal/domain/inventory"
)

// --- Allocation ---

// AllocationRequest reserves (or releases) stock at a position.
type AllocationRequest struct {
	PartID          string  `json:"partId" binding:"required"`
	MajorLocationID string  `json:"majorLocationId" binding:"required"`
	StoreroomID     string  `json:"storeroomId,omitempty"`
	LocationID      string  `json:"locationId,omitempty"`
	BinID           string  `json:"binId,omitempty"`
	Quantity        float64 `json:"quantity" binding:"required,gt=0"`
}

// ToKey converts the request to an inventory key.
func (r AllocationRequest) ToKey() (inventory.Key, types.Quantity, error) {
	partID, err := ParseID("partId", r.PartID)
	if err != nil {
		return inventory.Key{}, 0, err
	}
	major, err := ParseID("majorLocationId", r.MajorLocationID)
	if err != nil {
		return inventory.Key{}, 0, err
	}
	storeroom, err := ParseOptionalID("storeroomId", r.StoreroomID)
	if err != nil {
		return inventory.Key{}, 0, err
	}
	location, err := ParseOptionalID("locationId", r.LocationID)
	if err != nil {
		return inventory.Key{}, 0, err
	}
	bin, err := ParseOptionalID("binId", r.BinID)
	if err != nil {
		return inventory.Key{}, 0, err
	}
	key := inventory.Key{
		PartID:          partID,
		MajorLocationID: major,
		StoreroomID:     storeroom,
		LocationID:      location,
		BinID:           bin,
	}
	return key, types.NewQuantityFromFloat64(r.Quantity), nil
}

// --- Summary maintenance ---

// SummaryRequest scopes a summary rebuild or verification. An empty
// part list covers every part with stored rows.
type SummaryRequest struct {
	PartIDs []string `json:"partIds,omitempty"`
}
