package dto

import (
	"stocktrace/internal/core/types"
	"stocktrace/internal/domain/arrivals"
)

// --- Inspection ---

// InspectArrivalRequest splits a received arrival into accepted and
// rejected quantities. The two must sum to the quantity received.
type InspectArrivalRequest struct {
	Accepted  float64 `json:"accepted" binding:"min=0"`
	Rejected  float64 `json:"rejected" binding:"min=0"`
	Condition string  `json:"condition,omitempty"`
}

// ToInput converts the request to inspector input for the arrival.
func (r InspectArrivalRequest) ToInput(arrivalID string) (arrivals.InspectionInput, error) {
	aid, err := ParseID("arrivalId", arrivalID)
	if err != nil {
		return arrivals.InspectionInput{}, err
	}
	return arrivals.InspectionInput{
		ArrivalID: aid,
		Accepted:  types.NewQuantityFromFloat64(r.Accepted),
		Rejected:  types.NewQuantityFromFloat64(r.Rejected),
		Condition: r.Condition,
	}, nil
}

// --- Unlinked receipt ---

// UnlinkedReceiptRequest books stock in with no purchase order behind
// it (found stock, customer returns to shelf, opening balances).
type UnlinkedReceiptRequest struct {
	PartID          string  `json:"partId" binding:"required"`
	MajorLocationID string  `json:"majorLocationId" binding:"required"`
	StoreroomID     string  `json:"storeroomId,omitempty"`
	Quantity        float64 `json:"quantity" binding:"required,gt=0"`
	UnitCost        string  `json:"unitCost,omitempty"`
	Condition       string  `json:"condition,omitempty"`
}

// ToInput converts the request to inspector input.
func (r UnlinkedReceiptRequest) ToInput() (arrivals.UnlinkedReceiptInput, error) {
	partID, err := ParseID("partId", r.PartID)
	if err != nil {
		return arrivals.UnlinkedReceiptInput{}, err
	}
	major, err := ParseID("majorLocationId", r.MajorLocationID)
	if err != nil {
		return arrivals.UnlinkedReceiptInput{}, err
	}
	storeroom, err := ParseOptionalID("storeroomId", r.StoreroomID)
	if err != nil {
		return arrivals.UnlinkedReceiptInput{}, err
	}
	cost, err := parseUnitCost(r.UnitCost)
	if err != nil {
		return arrivals.UnlinkedReceiptInput{}, err
	}
	return arrivals.UnlinkedReceiptInput{
		PartID:          partID,
		MajorLocationID: major,
		StoreroomID:     storeroom,
		Quantity:        types.NewQuantityFromFloat64(r.Quantity),
		UnitCost:        cost,
		Condition:       r.Condition,
	}, nil
}
