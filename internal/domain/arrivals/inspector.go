package arrivals

import (
	"context"
	"fmt"
	"time"

	"stocktrace/internal/core/apperror"
	appctx "stocktrace/internal/core/context"
	"stocktrace/internal/core/id"
	"stocktrace/internal/core/tx"
	"stocktrace/internal/core/types"
	"stocktrace/internal/domain/ledger"
	"stocktrace/internal/domain/purchasing"
	"stocktrace/internal/domain/status"
	"stocktrace/pkg/logger"
)

// Ledger is the slice of the movement ledger the inspector drives.
type Ledger interface {
	RecordReceipt(ctx context.Context, in ledger.ReceiptInput) (*ledger.MovementRecord, error)
}

// LinePropagator advances purchase order line and demand statuses
// after received totals change.
type LinePropagator interface {
	PropagateLineUpdate(ctx context.Context, lineID id.ID) error
}

// Inspector runs the inspection workflow. One call covers the whole
// unit of work: the arrival split, the purchase order line totals, the
// receipt movement for the accepted portion, and the status cascade,
// all in a single transaction.
type Inspector struct {
	repo       Repository
	lines      purchasing.Repository
	ledger     Ledger
	propagator LinePropagator
	txm        tx.Manager
}

// NewInspector creates an inspector.
func NewInspector(repo Repository, lines purchasing.Repository, led Ledger, propagator LinePropagator, txm tx.Manager) *Inspector {
	return &Inspector{repo: repo, lines: lines, ledger: led, propagator: propagator, txm: txm}
}

// InspectionInput is the outcome of inspecting one arrival.
type InspectionInput struct {
	ArrivalID id.ID
	Accepted  types.Quantity
	Rejected  types.Quantity
	Condition string
}

// InspectionResult reports what the inspection produced.
type InspectionResult struct {
	// Accepted is the original arrival row, now carrying the accepted
	// portion (or the rejection outcome when nothing passed).
	Accepted *PartArrival `json:"accepted"`

	// Rejected is the sibling row created for the rejected portion.
	// Nil unless the inspection was a genuine split.
	Rejected *PartArrival `json:"rejected,omitempty"`

	// Receipt is the ledger movement for the accepted portion, nil
	// when everything was rejected.
	Receipt *ledger.MovementRecord `json:"receipt,omitempty"`
}

// RecordInspection splits an arrival into accepted and rejected
// portions. The two portions must conserve the received quantity
// exactly. When both portions are positive the original row shrinks to
// the accepted portion and a new sibling row carries the rejected one,
// so the pair still sums to the original delivery.
//
// Only accepted stock touches the ledger; rejected units update the
// purchase order line totals (the vendor shipped them) but never
// become inventory.
func (i *Inspector) RecordInspection(ctx context.Context, in InspectionInput) (*InspectionResult, error) {
	if in.Accepted.IsNegative() || in.Rejected.IsNegative() {
		return nil, apperror.NewValidation("accepted and rejected quantities must not be negative")
	}

	var result InspectionResult
	err := i.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		arrival, err := i.repo.GetForUpdate(ctx, in.ArrivalID)
		if err != nil {
			return err
		}
		if !status.IsInspectable(arrival.Status) {
			return apperror.NewAlreadyInspected(arrival.ID.String(), string(arrival.Status))
		}
		if !arrival.QuantityReceived.IsPositive() {
			return apperror.NewValidation("arrival has no received quantity to inspect")
		}
		if in.Accepted+in.Rejected != arrival.QuantityReceived {
			return apperror.NewConservation(arrival.ID.String(),
				arrival.QuantityReceived.Float64(), in.Accepted.Float64(), in.Rejected.Float64())
		}

		now := time.Now().UTC()
		actor := appctx.GetUserID(ctx)

		arrival.InspectedBy = actor
		arrival.InspectedAt = &now
		arrival.UpdatedAt = now
		if in.Condition != "" {
			arrival.Condition = in.Condition
		}

		switch {
		case in.Accepted.IsPositive() && in.Rejected.IsPositive():
			// Genuine split: original row keeps the accepted portion,
			// the sibling carries the rejected remainder.
			sibling := *arrival
			sibling.ID = id.New()
			sibling.QuantityReceived = in.Rejected
			sibling.Status = status.ArrivalRejected
			sibling.CreatedAt = now

			arrival.QuantityReceived = in.Accepted
			arrival.Status = status.ArrivalAccepted

			if err := i.repo.Update(ctx, arrival); err != nil {
				return fmt.Errorf("update accepted arrival: %w", err)
			}
			if err := i.repo.Insert(ctx, &sibling); err != nil {
				return fmt.Errorf("insert rejected arrival: %w", err)
			}
			result.Rejected = &sibling

		case in.Accepted.IsPositive():
			arrival.Status = status.ArrivalAccepted
			if err := i.repo.Update(ctx, arrival); err != nil {
				return fmt.Errorf("update accepted arrival: %w", err)
			}

		default:
			arrival.Status = status.ArrivalRejected
			if err := i.repo.Update(ctx, arrival); err != nil {
				return fmt.Errorf("update rejected arrival: %w", err)
			}
		}
		result.Accepted = arrival

		unitCost := arrival.UnitCost
		if arrival.PurchaseOrderLineID != nil {
			line, err := i.lines.GetLineForUpdate(ctx, *arrival.PurchaseOrderLineID)
			if err != nil {
				return err
			}
			line.QuantityAccepted += in.Accepted
			line.QuantityRejected += in.Rejected
			if err := i.lines.UpdateLine(ctx, line); err != nil {
				return fmt.Errorf("update line totals: %w", err)
			}
			if unitCost == nil {
				unitCost = line.UnitCost
			}
		}

		if in.Accepted.IsPositive() {
			receipt, err := i.ledger.RecordReceipt(ctx, ledger.ReceiptInput{
				ArrivalID:       arrival.ID,
				PartID:          arrival.PartID,
				MajorLocationID: arrival.MajorLocationID,
				StoreroomID:     arrival.StoreroomID,
				Quantity:        in.Accepted,
				UnitCost:        unitCost,
			})
			if err != nil {
				return err
			}
			result.Receipt = receipt
		}

		if arrival.PurchaseOrderLineID != nil {
			if err := i.propagator.PropagateLineUpdate(ctx, *arrival.PurchaseOrderLineID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "recorded inspection",
		"arrival_id", in.ArrivalID,
		"accepted", in.Accepted,
		"rejected", in.Rejected,
	)
	return &result, nil
}

// UnlinkedReceiptInput describes an ad-hoc delivery with no purchase order.
type UnlinkedReceiptInput struct {
	PartID          id.ID
	MajorLocationID id.ID
	StoreroomID     id.ID
	Quantity        types.Quantity
	UnitCost        *types.Money
	Condition       string
}

// ReceiveUnlinked records an ad-hoc receipt: an arrival row created
// directly in Accepted state and immediately written to the ledger.
func (i *Inspector) ReceiveUnlinked(ctx context.Context, in UnlinkedReceiptInput) (*InspectionResult, error) {
	if id.IsNil(in.PartID) {
		return nil, apperror.NewValidation("part_id is required")
	}
	if id.IsNil(in.MajorLocationID) {
		return nil, apperror.NewValidation("major_location_id is required")
	}
	if !in.Quantity.IsPositive() {
		return nil, apperror.NewValidation("quantity must be positive")
	}

	var result InspectionResult
	err := i.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()
		actor := appctx.GetUserID(ctx)
		arrival := &PartArrival{
			ID:               id.New(),
			PartID:           in.PartID,
			MajorLocationID:  in.MajorLocationID,
			StoreroomID:      in.StoreroomID,
			QuantityReceived: in.Quantity,
			UnitCost:         in.UnitCost,
			Condition:        in.Condition,
			Status:           status.ArrivalAccepted,
			InspectedBy:      actor,
			InspectedAt:      &now,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := i.repo.Insert(ctx, arrival); err != nil {
			return fmt.Errorf("insert arrival: %w", err)
		}

		receipt, err := i.ledger.RecordReceipt(ctx, ledger.ReceiptInput{
			ArrivalID:       arrival.ID,
			PartID:          in.PartID,
			MajorLocationID: in.MajorLocationID,
			StoreroomID:     in.StoreroomID,
			Quantity:        in.Quantity,
			UnitCost:        in.UnitCost,
		})
		if err != nil {
			return err
		}
		result = InspectionResult{Accepted: arrival, Receipt: receipt}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "received unlinked arrival",
		"arrival_id", result.Accepted.ID,
		"part_id", in.PartID,
		"quantity", in.Quantity,
	)
	return &result, nil
}

// MarkArrived advances an arrival from Pending to Arrived when its
// package reaches the dock. Inspection outcomes cannot be set here;
// Accepted and Rejected only ever come out of RecordInspection.
func (i *Inspector) MarkArrived(ctx context.Context, arrivalID id.ID) (*PartArrival, error) {
	var arrival *PartArrival
	err := i.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		arrival, err = i.repo.GetForUpdate(ctx, arrivalID)
		if err != nil {
			return err
		}
		next, changed := status.AdvanceArrival(arrival.Status, status.ArrivalArrived)
		if !changed {
			return nil
		}
		arrival.Status = next
		arrival.UpdatedAt = time.Now().UTC()
		return i.repo.Update(ctx, arrival)
	})
	if err != nil {
		return nil, err
	}
	return arrival, nil
}

// PendingInspections lists arrivals at a major location still awaiting
// inspection.
func (i *Inspector) PendingInspections(ctx context.Context, majorLocationID id.ID) ([]PartArrival, error) {
	return i.repo.ListPendingByLocation(ctx, majorLocationID)
}
