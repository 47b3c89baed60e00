package inventory

import (
	"context"
	"fmt"
	"time"

	"stocktrace/internal/core/apperror"
	"stocktrace/internal/core/id"
	"stocktrace/internal/core/types"
	"stocktrace/pkg/logger"
)

// Config tunes aggregator behavior.
type Config struct {
	// DeleteEmptyRows removes active inventory rows that reach zero
	// on-hand with nothing allocated. When false, zero rows stay and
	// keep their cost history visible.
	DeleteEmptyRows bool
}

// DefaultConfig matches production behavior: emptied rows are removed.
func DefaultConfig() Config {
	return Config{DeleteEmptyRows: true}
}

// Aggregator is the single writer of the derived aggregate tables.
// It must run inside the same transaction as the ledger write whose
// delta it applies; rows are locked with SELECT ... FOR UPDATE so
// concurrent movements against one position serialize.
type Aggregator struct {
	repo Repository
	cfg  Config
}

// NewAggregator creates an aggregator over the given repository.
func NewAggregator(repo Repository, cfg Config) *Aggregator {
	return &Aggregator{repo: repo, cfg: cfg}
}

// ApplyInput describes one movement delta to fold into the aggregates.
type ApplyInput struct {
	Key   Key
	Delta types.Quantity

	// UnitCost participates in the weighted average only when Delta is
	// positive; outbound movements never change the average.
	UnitCost *types.Money

	MovementAt time.Time
}

// Apply folds a movement delta into the position's active record and
// refreshes the part summary. Returns the post-apply record; when the
// row was deleted because it emptied, the returned record carries zero
// quantities.
func (a *Aggregator) Apply(ctx context.Context, in ApplyInput) (*ActiveRecord, error) {
	if in.Delta.IsZero() {
		return nil, apperror.NewValidation("movement delta must be non-zero")
	}
	if id.IsNil(in.Key.PartID) {
		return nil, apperror.NewValidation("part_id is required")
	}
	if in.MovementAt.IsZero() {
		in.MovementAt = time.Now().UTC()
	}

	rec, err := a.repo.GetForUpdate(ctx, in.Key)
	if err != nil {
		return nil, fmt.Errorf("get active inventory: %w", err)
	}

	created := false
	if rec == nil {
		if in.Delta.IsNegative() {
			return nil, apperror.NewInsufficientInventory(
				in.Key.PartID.String(), in.Delta.Abs().Float64(), 0)
		}
		rec = &ActiveRecord{
			ID:              id.New(),
			PartID:          in.Key.PartID,
			MajorLocationID: in.Key.MajorLocationID,
			StoreroomID:     in.Key.StoreroomID,
			LocationID:      in.Key.LocationID,
			BinID:           in.Key.BinID,
			UnitCostAvg:     types.ZeroMoney(),
		}
		created = true
	}

	newQty := rec.QuantityOnHand + in.Delta
	if newQty.IsNegative() {
		return nil, apperror.NewInsufficientInventory(
			in.Key.PartID.String(), in.Delta.Abs().Float64(), rec.QuantityOnHand.Float64())
	}

	if in.Delta.IsPositive() && in.UnitCost != nil {
		rec.UnitCostAvg = weightedAverage(rec.QuantityOnHand, rec.UnitCostAvg, in.Delta, *in.UnitCost)
	}

	now := time.Now().UTC()
	rec.QuantityOnHand = newQty
	rec.LastMovementAt = in.MovementAt
	rec.UpdatedAt = now

	switch {
	case newQty.IsZero() && rec.QuantityAllocated.IsZero() && a.cfg.DeleteEmptyRows && !created:
		if err := a.repo.Delete(ctx, rec.ID); err != nil {
			return nil, fmt.Errorf("delete emptied row: %w", err)
		}
	case created:
		if err := a.repo.Insert(ctx, rec); err != nil {
			return nil, fmt.Errorf("insert active inventory: %w", err)
		}
	default:
		if err := a.repo.Update(ctx, rec); err != nil {
			return nil, fmt.Errorf("update active inventory: %w", err)
		}
	}

	if err := a.RefreshSummary(ctx, []id.ID{in.Key.PartID}); err != nil {
		return nil, err
	}

	return rec, nil
}

// weightedAverage computes the new average cost after an inbound delta:
// (onHand*avg + delta*cost) / (onHand + delta).
func weightedAverage(onHand types.Quantity, avg types.Money, delta types.Quantity, cost types.Money) types.Money {
	total := onHand + delta
	if total.IsZero() || !total.IsPositive() {
		return avg
	}
	value := onHand.Decimal().Mul(avg).Add(delta.Decimal().Mul(cost))
	return value.Div(total.Decimal()).Round(4)
}

// CheckAvailability verifies that the position holds at least the
// required unreserved quantity, locking the row for the remainder of
// the transaction.
func (a *Aggregator) CheckAvailability(ctx context.Context, key Key, required types.Quantity) error {
	if !required.IsPositive() {
		return apperror.NewValidation("required quantity must be positive")
	}
	rec, err := a.repo.GetForUpdate(ctx, key)
	if err != nil {
		return fmt.Errorf("get active inventory: %w", err)
	}
	available := types.Quantity(0)
	if rec != nil {
		available = rec.Available()
	}
	if available < required {
		return apperror.NewInsufficientInventory(key.PartID.String(), required.Float64(), available.Float64())
	}
	return nil
}

// Allocate reserves quantity at a position for a demand without
// issuing it. Fails when the reservation would exceed what is on hand
// and unreserved.
func (a *Aggregator) Allocate(ctx context.Context, key Key, qty types.Quantity) (*ActiveRecord, error) {
	if !qty.IsPositive() {
		return nil, apperror.NewValidation("allocation quantity must be positive")
	}
	rec, err := a.repo.GetForUpdate(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get active inventory: %w", err)
	}
	if rec == nil || rec.Available() < qty {
		available := types.Quantity(0)
		if rec != nil {
			available = rec.Available()
		}
		return nil, apperror.NewInsufficientInventory(key.PartID.String(), qty.Float64(), available.Float64())
	}
	rec.QuantityAllocated += qty
	rec.UpdatedAt = time.Now().UTC()
	if err := a.repo.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("update allocation: %w", err)
	}
	if err := a.RefreshSummary(ctx, []id.ID{key.PartID}); err != nil {
		return nil, err
	}
	return rec, nil
}

// Deallocate releases a reservation. Releasing more than is reserved
// floors the reservation at zero instead of failing.
func (a *Aggregator) Deallocate(ctx context.Context, key Key, qty types.Quantity) (*ActiveRecord, error) {
	if !qty.IsPositive() {
		return nil, apperror.NewValidation("deallocation quantity must be positive")
	}
	rec, err := a.repo.GetForUpdate(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get active inventory: %w", err)
	}
	if rec == nil {
		return nil, apperror.NewNotFound("active inventory", key.PartID)
	}
	rec.QuantityAllocated -= qty
	if rec.QuantityAllocated.IsNegative() {
		rec.QuantityAllocated = 0
	}
	rec.UpdatedAt = time.Now().UTC()
	if err := a.repo.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("update allocation: %w", err)
	}
	if err := a.RefreshSummary(ctx, []id.ID{key.PartID}); err != nil {
		return nil, err
	}
	return rec, nil
}

// RefreshSummary rebuilds the part-level summaries from the active
// table. Empty partIDs rebuilds every part. The rebuild is a pure
// projection, so running it twice in a row is a no-op.
func (a *Aggregator) RefreshSummary(ctx context.Context, partIDs []id.ID) error {
	derived, err := a.repo.DeriveSummaries(ctx, partIDs)
	if err != nil {
		return fmt.Errorf("derive summaries: %w", err)
	}
	if err := a.repo.ReplaceSummaries(ctx, partIDs, derived); err != nil {
		return fmt.Errorf("replace summaries: %w", err)
	}
	return nil
}

// VerifySummary compares stored summaries against freshly derived ones
// and returns an integrity error naming the first diverging part.
// Diagnostic only; it never repairs.
func (a *Aggregator) VerifySummary(ctx context.Context, partIDs []id.ID) error {
	stored, err := a.repo.ListSummaries(ctx, partIDs)
	if err != nil {
		return fmt.Errorf("list summaries: %w", err)
	}
	derived, err := a.repo.DeriveSummaries(ctx, partIDs)
	if err != nil {
		return fmt.Errorf("derive summaries: %w", err)
	}

	derivedByPart := make(map[id.ID]SummaryRecord, len(derived))
	for _, s := range derived {
		derivedByPart[s.PartID] = s
	}

	for _, s := range stored {
		d, ok := derivedByPart[s.PartID]
		if !ok {
			if !s.TotalOnHand.IsZero() {
				return apperror.NewIntegrityMismatch("stored summary has no backing inventory").
					WithDetail("part_id", s.PartID.String())
			}
			continue
		}
		if d.TotalOnHand != s.TotalOnHand || d.TotalAllocated != s.TotalAllocated ||
			!d.UnitCostAvg.Equal(s.UnitCostAvg) {
			logger.Warn(ctx, "summary diverged from active inventory",
				"part_id", s.PartID,
				"stored_on_hand", s.TotalOnHand,
				"derived_on_hand", d.TotalOnHand,
			)
			return apperror.NewIntegrityMismatch("summary diverged from active inventory").
				WithDetail("part_id", s.PartID.String())
		}
		delete(derivedByPart, s.PartID)
	}

	for partID := range derivedByPart {
		return apperror.NewIntegrityMismatch("active inventory missing from summary").
			WithDetail("part_id", partID.String())
	}

	return nil
}
