package dto

import (
	"time"

	"stocktrace/internal/core/apperror"
	"stocktrace/internal/core/types"
	"stocktrace/internal/domain/ledger"
)

// --- Shared pieces ---

// BinRefRequest addresses a stocking position. Only the major location
// is mandatory; finer levels narrow the position down.
type BinRefRequest struct {
	MajorLocationID string `json:"majorLocationId" binding:"required"`
	StoreroomID     string `json:"storeroomId,omitempty"`
	LocationID      string `json:"locationId,omitempty"`
	BinID           string `json:"binId,omitempty"`
}

// ToBinRef converts the request to a domain position.
func (r BinRefRequest) ToBinRef() (ledger.BinRef, error) {
	major, err := ParseID("majorLocationId", r.MajorLocationID)
	if err != nil {
		return ledger.BinRef{}, err
	}
	storeroom, err := ParseOptionalID("storeroomId", r.StoreroomID)
	if err != nil {
		return ledger.BinRef{}, err
	}
	location, err := ParseOptionalID("locationId", r.LocationID)
	if err != nil {
		return ledger.BinRef{}, err
	}
	bin, err := ParseOptionalID("binId", r.BinID)
	if err != nil {
		return ledger.BinRef{}, err
	}
	return ledger.BinRef{
		MajorLocationID: major,
		StoreroomID:     storeroom,
		LocationID:      location,
		BinID:           bin,
	}, nil
}

// ReferenceRequest links a movement to an originating document.
type ReferenceRequest struct {
	Type string `json:"type" binding:"required"`
	ID   string `json:"id" binding:"required"`
}

// ToReference converts the request to a domain reference.
func (r *ReferenceRequest) ToReference() (*ledger.Reference, error) {
	if r == nil {
		return nil, nil
	}
	refID, err := ParseID("reference.id", r.ID)
	if err != nil {
		return nil, err
	}
	return &ledger.Reference{Type: r.Type, ID: refID}, nil
}

// parseUnitCost parses an optional decimal cost string.
func parseUnitCost(value string) (*types.Money, error) {
	if value == "" {
		return nil, nil
	}
	m, err := types.NewMoneyFromString(value)
	if err != nil {
		return nil, apperror.NewValidation("invalid unit cost").WithDetail("value", value)
	}
	return &m, nil
}

// movementDate defaults a missing date to now.
func movementDate(t *time.Time) time.Time {
	if t == nil {
		return time.Now().UTC()
	}
	return *t
}

// --- Issue ---

// IssueRequest records an outbound movement.
type IssueRequest struct {
	PartID           string            `json:"partId" binding:"required"`
	From             BinRefRequest     `json:"from" binding:"required"`
	Quantity         float64           `json:"quantity" binding:"required,gt=0"`
	SourceMovementID string            `json:"sourceMovementId,omitempty"`
	DemandID         string            `json:"demandId,omitempty"`
	Reference        *ReferenceRequest `json:"reference,omitempty"`
	MovementDate     *time.Time        `json:"movementDate,omitempty"`
}

// ToInput converts the request to service input.
func (r IssueRequest) ToInput() (ledger.IssueInput, error) {
	partID, err := ParseID("partId", r.PartID)
	if err != nil {
		return ledger.IssueInput{}, err
	}
	from, err := r.From.ToBinRef()
	if err != nil {
		return ledger.IssueInput{}, err
	}
	source, err := ParseOptionalIDPtr("sourceMovementId", r.SourceMovementID)
	if err != nil {
		return ledger.IssueInput{}, err
	}
	demandID, err := ParseOptionalIDPtr("demandId", r.DemandID)
	if err != nil {
		return ledger.IssueInput{}, err
	}
	ref, err := r.Reference.ToReference()
	if err != nil {
		return ledger.IssueInput{}, err
	}
	return ledger.IssueInput{
		PartID:           partID,
		From:             from,
		Quantity:         types.NewQuantityFromFloat64(r.Quantity),
		SourceMovementID: source,
		DemandID:         demandID,
		Reference:        ref,
		MovementDate:     movementDate(r.MovementDate),
	}, nil
}

// --- Adjustment ---

// AdjustRequest records a signed correction at a position.
type AdjustRequest struct {
	PartID           string            `json:"partId" binding:"required"`
	Position         BinRefRequest     `json:"position" binding:"required"`
	Delta            float64           `json:"delta" binding:"required"`
	UnitCost         string            `json:"unitCost,omitempty"`
	SourceMovementID string            `json:"sourceMovementId,omitempty"`
	Reference        *ReferenceRequest `json:"reference,omitempty"`
	MovementDate     *time.Time        `json:"movementDate,omitempty"`
}

// ToInput converts the request to service input.
func (r AdjustRequest) ToInput() (ledger.AdjustInput, error) {
	partID, err := ParseID("partId", r.PartID)
	if err != nil {
		return ledger.AdjustInput{}, err
	}
	pos, err := r.Position.ToBinRef()
	if err != nil {
		return ledger.AdjustInput{}, err
	}
	cost, err := parseUnitCost(r.UnitCost)
	if err != nil {
		return ledger.AdjustInput{}, err
	}
	source, err := ParseOptionalIDPtr("sourceMovementId", r.SourceMovementID)
	if err != nil {
		return ledger.AdjustInput{}, err
	}
	ref, err := r.Reference.ToReference()
	if err != nil {
		return ledger.AdjustInput{}, err
	}
	return ledger.AdjustInput{
		PartID:           partID,
		Position:         pos,
		Delta:            types.NewQuantityFromFloat64(r.Delta),
		UnitCost:         cost,
		SourceMovementID: source,
		Reference:        ref,
		MovementDate:     movementDate(r.MovementDate),
	}, nil
}

// --- Transfer / Relocation ---

// TransferRequest moves stock between two positions.
type TransferRequest struct {
	PartID           string            `json:"partId" binding:"required"`
	From             BinRefRequest     `json:"from" binding:"required"`
	To               BinRefRequest     `json:"to" binding:"required"`
	Quantity         float64           `json:"quantity" binding:"required,gt=0"`
	SourceMovementID string            `json:"sourceMovementId,omitempty"`
	Reference        *ReferenceRequest `json:"reference,omitempty"`
	MovementDate     *time.Time        `json:"movementDate,omitempty"`
}

// ToInput converts the request to service input.
func (r TransferRequest) ToInput() (ledger.TransferInput, error) {
	partID, err := ParseID("partId", r.PartID)
	if err != nil {
		return ledger.TransferInput{}, err
	}
	from, err := r.From.ToBinRef()
	if err != nil {
		return ledger.TransferInput{}, err
	}
	to, err := r.To.ToBinRef()
	if err != nil {
		return ledger.TransferInput{}, err
	}
	source, err := ParseOptionalIDPtr("sourceMovementId", r.SourceMovementID)
	if err != nil {
		return ledger.TransferInput{}, err
	}
	ref, err := r.Reference.ToReference()
	if err != nil {
		return ledger.TransferInput{}, err
	}
	return ledger.TransferInput{
		PartID:           partID,
		From:             from,
		To:               to,
		Quantity:         types.NewQuantityFromFloat64(r.Quantity),
		SourceMovementID: source,
		Reference:        ref,
		MovementDate:     movementDate(r.MovementDate),
	}, nil
}

// --- Return ---

// ReturnRequest reverses an issue, fully or in part.
type ReturnRequest struct {
	IssueMovementID string            `json:"issueMovementId" binding:"required"`
	Quantity        float64           `json:"quantity" binding:"required,gt=0"`
	To              *BinRefRequest    `json:"to,omitempty"`
	Reference       *ReferenceRequest `json:"reference,omitempty"`
	MovementDate    *time.Time        `json:"movementDate,omitempty"`
}

// ToInput converts the request to service input.
func (r ReturnRequest) ToInput() (ledger.ReturnInput, error) {
	issueID, err := ParseID("issueMovementId", r.IssueMovementID)
	if err != nil {
		return ledger.ReturnInput{}, err
	}
	var to *ledger.BinRef
	if r.To != nil {
		pos, err := r.To.ToBinRef()
		if err != nil {
			return ledger.ReturnInput{}, err
		}
		to = &pos
	}
	ref, err := r.Reference.ToReference()
	if err != nil {
		return ledger.ReturnInput{}, err
	}
	return ledger.ReturnInput{
		IssueMovementID: issueID,
		Quantity:        types.NewQuantityFromFloat64(r.Quantity),
		To:              to,
		Reference:       ref,
		MovementDate:    movementDate(r.MovementDate),
	}, nil
}

// --- History ---

// HistoryQuery filters a part's movement history.
type HistoryQuery struct {
	Kind            string     `form:"kind"`
	MajorLocationID string     `form:"majorLocationId"`
	StoreroomID     string     `form:"storeroomId"`
	BinID           string     `form:"binId"`
	FromDate        *time.Time `form:"fromDate" time_format:"2006-01-02T15:04:05Z07:00"`
	ToDate          *time.Time `form:"toDate" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit           int        `form:"limit"`
	Offset          int        `form:"offset"`
}

// ToFilter converts the query to a repository filter.
func (q HistoryQuery) ToFilter() (ledger.HistoryFilter, error) {
	f := ledger.HistoryFilter{
		FromDate: q.FromDate,
		ToDate:   q.ToDate,
		Limit:    q.Limit,
		Offset:   q.Offset,
	}
	if q.Kind != "" {
		kind := ledger.MovementKind(q.Kind)
		f.Kind = &kind
	}
	var err error
	if f.MajorLocationID, err = ParseOptionalIDPtr("majorLocationId", q.MajorLocationID); err != nil {
		return f, err
	}
	if f.StoreroomID, err = ParseOptionalIDPtr("storeroomId", q.StoreroomID); err != nil {
		return f, err
	}
	if f.BinID, err = ParseOptionalIDPtr("binId", q.BinID); err != nil {
		return f, err
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	return f, nil
}

// --- Responses ---

// TransferPairResponse carries both halves of a transfer.
type TransferPairResponse struct {
	Debit  *ledger.MovementRecord `json:"debit"`
	Credit *ledger.MovementRecord `json:"credit"`
}
