package ledger

import (
	"context"
	"fmt"
	"time"

	"stocktrace/internal/core/apperror"
	appctx "stocktrace/internal/core/context"
	"stocktrace/internal/core/id"
	"stocktrace/internal/core/tx"
	"stocktrace/internal/core/types"
	"stocktrace/internal/domain/inventory"
	"stocktrace/pkg/logger"
)

// maxChainLength caps provenance chain walks. A chain longer than this
// means the ledger is corrupted, not that stock moved ten thousand times.
const maxChainLength = 10_000

// Aggregator applies committed movement deltas to the derived tables.
// Implemented by inventory.Aggregator; declared here so the service
// can be tested against a fake.
type Aggregator interface {
	Apply(ctx context.Context, in inventory.ApplyInput) (*inventory.ActiveRecord, error)
}

// AuditLog records who did what. Optional; a nil log disables auditing.
type AuditLog interface {
	LogChange(ctx context.Context, entityType string, entityID id.ID, action string, changes map[string]any) error
}

// DemandTracker advances a part demand once the movement consuming its
// stock is committed. Implemented by purchasing.Propagator; declared
// here so the ledger does not import the purchasing package.
type DemandTracker interface {
	MarkDemandIssued(ctx context.Context, demandID id.ID) error
}

// Service provides the movement ledger operations. Every mutating
// operation runs inside one transaction: the ledger append, the
// aggregate update, and any status side effects commit together or
// not at all.
type Service struct {
	repo    Repository
	inv     Aggregator
	txm     tx.Manager
	audit   AuditLog
	demands DemandTracker
}

// NewService creates a ledger service. audit and demands may be nil.
func NewService(repo Repository, inv Aggregator, txm tx.Manager, audit AuditLog, demands DemandTracker) *Service {
	return &Service{repo: repo, inv: inv, txm: txm, audit: audit, demands: demands}
}

// ReceiptInput describes stock entering the system from an arrival.
type ReceiptInput struct {
	ArrivalID       id.ID
	PartID          id.ID
	MajorLocationID id.ID
	StoreroomID     id.ID // Nil when the major location has no storerooms
	Quantity        types.Quantity
	UnitCost        *types.Money
	Reference       *Reference // defaults to the arrival itself
	MovementDate    time.Time
}

// RecordReceipt appends a receipt movement into the unassigned bin of
// the target storeroom. The receipt is its own provenance root: its
// initial arrival id is the arrival it records, and it has no previous
// movement.
func (s *Service) RecordReceipt(ctx context.Context, in ReceiptInput) (*MovementRecord, error) {
	if id.IsNil(in.ArrivalID) {
		return nil, apperror.NewValidation("arrival_id is required")
	}
	if id.IsNil(in.PartID) {
		return nil, apperror.NewValidation("part_id is required")
	}
	if id.IsNil(in.MajorLocationID) {
		return nil, apperror.NewValidation("major_location_id is required")
	}
	if !in.Quantity.IsPositive() {
		return nil, apperror.NewValidation("receipt quantity must be positive")
	}

	ref := in.Reference
	if ref == nil {
		ref = &Reference{Type: RefPartArrival, ID: in.ArrivalID}
	}

	to := BinRef{MajorLocationID: in.MajorLocationID, StoreroomID: in.StoreroomID}

	m := &MovementRecord{
		ID:               id.New(),
		PartID:           in.PartID,
		Kind:             KindReceipt,
		QuantityDelta:    in.Quantity,
		UnitCost:         in.UnitCost,
		To:               &to,
		Reference:        ref,
		InitialArrivalID: in.ArrivalID,
		MovementDate:     movementDate(in.MovementDate),
		CreatedBy:        appctx.GetUserID(ctx),
	}

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Insert(ctx, m); err != nil {
			return fmt.Errorf("insert receipt: %w", err)
		}
		if _, err := s.inv.Apply(ctx, inventory.ApplyInput{
			Key:        positionKey(in.PartID, to),
			Delta:      in.Quantity,
			UnitCost:   in.UnitCost,
			MovementAt: m.MovementDate,
		}); err != nil {
			return err
		}
		s.logAudit(ctx, m, "receipt")
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "recorded receipt movement",
		"movement_id", m.ID,
		"part_id", in.PartID,
		"arrival_id", in.ArrivalID,
		"quantity", in.Quantity,
	)
	return m, nil
}

// IssueInput describes stock leaving a position against a demand.
type IssueInput struct {
	PartID   id.ID
	From     BinRef
	Quantity types.Quantity

	// SourceMovementID pins the provenance chain explicitly. When nil,
	// the chain continues from the latest movement at the position.
	SourceMovementID *id.ID

	DemandID     *id.ID
	Reference    *Reference
	MovementDate time.Time
}

// Issue appends a negative movement consuming stock from a position.
func (s *Service) Issue(ctx context.Context, in IssueInput) (*MovementRecord, error) {
	if id.IsNil(in.PartID) {
		return nil, apperror.NewValidation("part_id is required")
	}
	if !in.Quantity.IsPositive() {
		return nil, apperror.NewValidation("issue quantity must be positive")
	}
	if in.From.IsZero() {
		return nil, apperror.NewValidation("source position is required")
	}

	ref := in.Reference
	if ref == nil && in.DemandID != nil {
		ref = &Reference{Type: RefPartDemand, ID: *in.DemandID}
	}

	var m *MovementRecord
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		initialArrivalID, prevID, err := s.resolveProvenance(ctx, in.PartID, in.From, in.SourceMovementID)
		if err != nil {
			return err
		}

		m = &MovementRecord{
			ID:                 id.New(),
			PartID:             in.PartID,
			Kind:               KindIssue,
			QuantityDelta:      in.Quantity.Neg(),
			From:               &in.From,
			Reference:          ref,
			InitialArrivalID:   initialArrivalID,
			PreviousMovementID: &prevID,
			MovementDate:       movementDate(in.MovementDate),
			CreatedBy:          appctx.GetUserID(ctx),
		}

		rec, err := s.inv.Apply(ctx, inventory.ApplyInput{
			Key:        positionKey(in.PartID, in.From),
			Delta:      in.Quantity.Neg(),
			MovementAt: m.MovementDate,
		})
		if err != nil {
			return err
		}
		// Issues go out at the position's current average cost.
		cost := rec.UnitCostAvg
		m.UnitCost = &cost

		if err := s.repo.Insert(ctx, m); err != nil {
			return fmt.Errorf("insert issue: %w", err)
		}
		// The demand advances in the same transaction as the movement
		// that consumed its stock.
		if in.DemandID != nil && s.demands != nil {
			if err := s.demands.MarkDemandIssued(ctx, *in.DemandID); err != nil {
				return fmt.Errorf("advance demand: %w", err)
			}
		}
		s.logAudit(ctx, m, "issue")
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "recorded issue movement",
		"movement_id", m.ID,
		"part_id", in.PartID,
		"quantity", in.Quantity,
	)
	return m, nil
}

// AdjustInput describes a signed correction at a position.
type AdjustInput struct {
	PartID           id.ID
	Position         BinRef
	Delta            types.Quantity
	UnitCost         *types.Money
	SourceMovementID *id.ID
	Reference        *Reference
	MovementDate     time.Time
}

// Adjust appends a signed adjustment. Positive deltas add stock,
// negative ones remove it; zero is rejected. Adjustments chain off
// the position's existing history, so adjusting a position that never
// held the part fails with a provenance error.
func (s *Service) Adjust(ctx context.Context, in AdjustInput) (*MovementRecord, error) {
	if id.IsNil(in.PartID) {
		return nil, apperror.NewValidation("part_id is required")
	}
	if in.Delta.IsZero() {
		return nil, apperror.NewValidation("adjustment delta must be non-zero")
	}
	if in.Position.IsZero() {
		return nil, apperror.NewValidation("position is required")
	}

	var m *MovementRecord
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		initialArrivalID, prevID, err := s.resolveProvenance(ctx, in.PartID, in.Position, in.SourceMovementID)
		if err != nil {
			return err
		}

		m = &MovementRecord{
			ID:                 id.New(),
			PartID:             in.PartID,
			Kind:               KindAdjustment,
			QuantityDelta:      in.Delta,
			UnitCost:           in.UnitCost,
			Reference:          in.Reference,
			InitialArrivalID:   initialArrivalID,
			PreviousMovementID: &prevID,
			MovementDate:       movementDate(in.MovementDate),
			CreatedBy:          appctx.GetUserID(ctx),
		}
		if in.Delta.IsPositive() {
			m.To = &in.Position
		} else {
			m.From = &in.Position
		}

		if err := s.repo.Insert(ctx, m); err != nil {
			return fmt.Errorf("insert adjustment: %w", err)
		}
		if _, err := s.inv.Apply(ctx, inventory.ApplyInput{
			Key:        positionKey(in.PartID, in.Position),
			Delta:      in.Delta,
			UnitCost:   in.UnitCost,
			MovementAt: m.MovementDate,
		}); err != nil {
			return err
		}
		s.logAudit(ctx, m, "adjustment")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// TransferInput describes stock moving between two positions.
type TransferInput struct {
	PartID           id.ID
	From             BinRef
	To               BinRef
	Quantity         types.Quantity
	SourceMovementID *id.ID
	Reference        *Reference
	MovementDate     time.Time
}

// TransferPair is the two ledger rows a transfer produces.
type TransferPair struct {
	Debit  *MovementRecord
	Credit *MovementRecord
}

// TransferBins moves stock between positions inside one storeroom.
func (s *Service) TransferBins(ctx context.Context, in TransferInput) (*TransferPair, error) {
	if in.From.StoreroomID != in.To.StoreroomID {
		return nil, apperror.NewValidation("bin transfer must stay within one storeroom")
	}
	return s.transfer(ctx, KindBinTransfer, in)
}

// Relocate moves stock between storerooms or major locations.
func (s *Service) Relocate(ctx context.Context, in TransferInput) (*TransferPair, error) {
	if in.From.StoreroomID == in.To.StoreroomID && in.From.MajorLocationID == in.To.MajorLocationID {
		return nil, apperror.NewValidation("relocation requires a different storeroom or location")
	}
	return s.transfer(ctx, KindRelocation, in)
}

// transfer writes the debit row, then the credit row chained onto it.
// Both carry the full from/to pair and share the initial arrival id,
// so either side of the pair tells the whole story.
func (s *Service) transfer(ctx context.Context, kind MovementKind, in TransferInput) (*TransferPair, error) {
	if id.IsNil(in.PartID) {
		return nil, apperror.NewValidation("part_id is required")
	}
	if !in.Quantity.IsPositive() {
		return nil, apperror.NewValidation("transfer quantity must be positive")
	}
	if in.From.IsZero() || in.To.IsZero() {
		return nil, apperror.NewValidation("both source and destination positions are required")
	}
	if in.From == in.To {
		return nil, apperror.NewValidation("source and destination positions are identical")
	}

	var pair TransferPair
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		initialArrivalID, prevID, err := s.resolveProvenance(ctx, in.PartID, in.From, in.SourceMovementID)
		if err != nil {
			return err
		}

		when := movementDate(in.MovementDate)
		actor := appctx.GetUserID(ctx)

		sourceRec, err := s.inv.Apply(ctx, inventory.ApplyInput{
			Key:        positionKey(in.PartID, in.From),
			Delta:      in.Quantity.Neg(),
			MovementAt: when,
		})
		if err != nil {
			return err
		}
		// Moved stock keeps its cost: the debit side's average feeds
		// the destination's weighted average.
		carriedCost := sourceRec.UnitCostAvg

		debit := &MovementRecord{
			ID:                 id.New(),
			PartID:             in.PartID,
			Kind:               kind,
			QuantityDelta:      in.Quantity.Neg(),
			UnitCost:           &carriedCost,
			From:               &in.From,
			To:                 &in.To,
			Reference:          in.Reference,
			InitialArrivalID:   initialArrivalID,
			PreviousMovementID: &prevID,
			MovementDate:       when,
			CreatedBy:          actor,
		}
		credit := &MovementRecord{
			ID:                 id.New(),
			PartID:             in.PartID,
			Kind:               kind,
			QuantityDelta:      in.Quantity,
			UnitCost:           &carriedCost,
			From:               &in.From,
			To:                 &in.To,
			Reference:          in.Reference,
			InitialArrivalID:   initialArrivalID,
			PreviousMovementID: &debit.ID,
			MovementDate:       when,
			CreatedBy:          actor,
		}
		// Ids are generated client-side, so the pair goes in as one batch.
		if err := s.repo.InsertBatch(ctx, []*MovementRecord{debit, credit}); err != nil {
			return fmt.Errorf("insert transfer pair: %w", err)
		}

		if _, err := s.inv.Apply(ctx, inventory.ApplyInput{
			Key:        positionKey(in.PartID, in.To),
			Delta:      in.Quantity,
			UnitCost:   &carriedCost,
			MovementAt: when,
		}); err != nil {
			return err
		}

		pair = TransferPair{Debit: debit, Credit: credit}
		s.logAudit(ctx, debit, string(kind))
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "recorded transfer",
		"kind", kind,
		"debit_id", pair.Debit.ID,
		"credit_id", pair.Credit.ID,
		"part_id", in.PartID,
		"quantity", in.Quantity,
	)
	return &pair, nil
}

// ReturnInput describes stock re-entering a position from a demand.
type ReturnInput struct {
	// IssueMovementID is the issue this return reverses (fully or in part).
	IssueMovementID id.ID
	Quantity        types.Quantity
	// To overrides the position the stock returns to; defaults to the
	// position it was issued from.
	To           *BinRef
	Reference    *Reference
	MovementDate time.Time
}

// Return appends a positive movement restoring previously issued stock.
// The return chains directly off the issue, so the original receipt
// lineage survives the round trip.
func (s *Service) Return(ctx context.Context, in ReturnInput) (*MovementRecord, error) {
	if id.IsNil(in.IssueMovementID) {
		return nil, apperror.NewValidation("issue_movement_id is required")
	}
	if !in.Quantity.IsPositive() {
		return nil, apperror.NewValidation("return quantity must be positive")
	}

	var m *MovementRecord
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		issue, err := s.repo.GetByID(ctx, in.IssueMovementID)
		if err != nil {
			return err
		}
		if issue.Kind != KindIssue {
			return apperror.NewValidation("returns must reference an issue movement").
				WithDetail("movement_id", in.IssueMovementID.String()).
				WithDetail("kind", string(issue.Kind))
		}
		if in.Quantity > issue.QuantityDelta.Abs() {
			return apperror.NewBusinessRule(apperror.CodeBusinessRule,
				"return quantity exceeds issued quantity").
				WithDetail("issued", issue.QuantityDelta.Abs().Float64()).
				WithDetail("returned", in.Quantity.Float64())
		}

		to := in.To
		if to == nil {
			to = issue.From
		}
		if to == nil || to.IsZero() {
			return apperror.NewValidation("return destination is required")
		}

		m = &MovementRecord{
			ID:                 id.New(),
			PartID:             issue.PartID,
			Kind:               KindReturn,
			QuantityDelta:      in.Quantity,
			UnitCost:           issue.UnitCost,
			To:                 to,
			Reference:          in.Reference,
			InitialArrivalID:   issue.InitialArrivalID,
			PreviousMovementID: &issue.ID,
			MovementDate:       movementDate(in.MovementDate),
			CreatedBy:          appctx.GetUserID(ctx),
		}
		if m.Reference == nil {
			m.Reference = issue.Reference
		}

		if err := s.repo.Insert(ctx, m); err != nil {
			return fmt.Errorf("insert return: %w", err)
		}
		if _, err := s.inv.Apply(ctx, inventory.ApplyInput{
			Key:        positionKey(issue.PartID, *to),
			Delta:      in.Quantity,
			UnitCost:   issue.UnitCost,
			MovementAt: m.MovementDate,
		}); err != nil {
			return err
		}
		s.logAudit(ctx, m, "return")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetMovementChain walks the provenance chain from the given movement
// back to its receipt root, returning the movement first and the root
// last. A chain that cycles or ends anywhere but a receipt is reported
// as ledger corruption.
func (s *Service) GetMovementChain(ctx context.Context, movementID id.ID) ([]MovementRecord, error) {
	var chain []MovementRecord
	seen := make(map[id.ID]bool)

	current, err := s.repo.GetByID(ctx, movementID)
	if err != nil {
		return nil, err
	}

	for {
		if seen[current.ID] {
			return nil, apperror.NewIntegrityMismatch("movement chain contains a cycle").
				WithDetail("movement_id", current.ID.String())
		}
		if len(chain) >= maxChainLength {
			return nil, apperror.NewIntegrityMismatch("movement chain exceeds maximum length").
				WithDetail("movement_id", movementID.String())
		}
		seen[current.ID] = true
		chain = append(chain, *current)

		if current.PreviousMovementID == nil {
			if !current.IsReceipt() {
				return nil, apperror.NewIntegrityMismatch("movement chain does not terminate at a receipt").
					WithDetail("movement_id", movementID.String()).
					WithDetail("root_id", current.ID.String())
			}
			return chain, nil
		}

		current, err = s.repo.GetByID(ctx, *current.PreviousMovementID)
		if err != nil {
			return nil, err
		}
	}
}

// MovementsFromArrival returns all movements whose stock entered
// through the given arrival, oldest first.
func (s *Service) MovementsFromArrival(ctx context.Context, arrivalID id.ID) ([]MovementRecord, error) {
	return s.repo.ListByArrival(ctx, arrivalID)
}

// History returns filtered movement history for a part.
func (s *Service) History(ctx context.Context, partID id.ID, filter HistoryFilter) ([]MovementRecord, error) {
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 100
	}
	return s.repo.ListHistory(ctx, partID, filter)
}

// HasReceiptForReference reports whether a receipt exists for the
// reference. Exposed for status propagation.
func (s *Service) HasReceiptForReference(ctx context.Context, refType string, refID id.ID) (bool, error) {
	return s.repo.HasReceiptForReference(ctx, refType, refID)
}

// resolveProvenance determines the lineage for a non-receipt movement:
// either the explicitly named source movement, or the latest movement
// of the part at the position. Positions with no resolvable lineage
// reject the movement.
func (s *Service) resolveProvenance(ctx context.Context, partID id.ID, pos BinRef, explicit *id.ID) (id.ID, id.ID, error) {
	if explicit != nil {
		src, err := s.repo.GetByID(ctx, *explicit)
		if err != nil {
			return id.Nil(), id.Nil(), err
		}
		if src.PartID != partID {
			return id.Nil(), id.Nil(), apperror.NewValidation("source movement is for a different part").
				WithDetail("source_movement_id", src.ID.String())
		}
		return src.InitialArrivalID, src.ID, nil
	}

	latest, err := s.repo.LatestProvenanced(ctx, partID, pos)
	if err != nil {
		return id.Nil(), id.Nil(), fmt.Errorf("resolve provenance: %w", err)
	}
	if latest == nil || id.IsNil(latest.InitialArrivalID) {
		return id.Nil(), id.Nil(), apperror.NewProvenance(partID.String())
	}
	return latest.InitialArrivalID, latest.ID, nil
}

func (s *Service) logAudit(ctx context.Context, m *MovementRecord, action string) {
	if s.audit == nil {
		return
	}
	changes := map[string]any{
		"part_id":        m.PartID.String(),
		"kind":           string(m.Kind),
		"quantity_delta": m.QuantityDelta.String(),
	}
	if err := s.audit.LogChange(ctx, "movement", m.ID, action, changes); err != nil {
		logger.Warn(ctx, "audit log failed", "movement_id", m.ID, "error", err)
	}
}

func positionKey(partID id.ID, pos BinRef) inventory.Key {
	return inventory.Key{
		PartID:          partID,
		MajorLocationID: pos.MajorLocationID,
		StoreroomID:     pos.StoreroomID,
		LocationID:      pos.LocationID,
		BinID:           pos.BinID,
	}
}

func movementDate(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
