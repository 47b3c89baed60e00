// Package movement_repo provides the PostgreSQL implementation of the
// movement ledger repository. The backing table is append-only: the
// repo exposes no update or delete.
package movement_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stocktrace/internal/core/apperror"
	"stocktrace/internal/core/id"
	"stocktrace/internal/core/types"
	"stocktrace/internal/domain/ledger"
	"stocktrace/internal/domain/purchasing"
	"stocktrace/internal/infrastructure/storage/postgres"
)

const (
	movementsTable = "inv_movements"
	arrivalsTable  = "inv_part_arrivals"
)

// Compile-time interface checks.
var (
	_ ledger.Repository         = (*MovementRepo)(nil)
	_ purchasing.ReceiptChecker = (*MovementRepo)(nil)
)

// MovementRepo implements ledger.Repository.
type MovementRepo struct {
	builder squirrel.StatementBuilderType
}

// NewMovementRepo creates a new movement repository.
func NewMovementRepo() *MovementRepo {
	return &MovementRepo{
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *MovementRepo) getTxManager(ctx context.Context) *postgres.TxManager {
	return postgres.MustGetTxManager(ctx)
}

var movementColumns = []string{
	"id", "part_id", "kind", "quantity_delta", "unit_cost",
	"from_major_location_id", "from_storeroom_id", "from_location_id", "from_bin_id",
	"to_major_location_id", "to_storeroom_id", "to_location_id", "to_bin_id",
	"reference_type", "reference_id",
	"initial_arrival_id", "previous_movement_id",
	"movement_date", "created_by", "created_at",
}

// movementRow is the flat table shape of a MovementRecord.
type movementRow struct {
	ID            id.ID   `db:"id"`
	PartID        id.ID   `db:"part_id"`
	Kind          string  `db:"kind"`
	QuantityDelta int64   `db:"quantity_delta"`
	UnitCost      *string `db:"unit_cost"`

	FromMajorLocationID *id.ID `db:"from_major_location_id"`
	FromStoreroomID     *id.ID `db:"from_storeroom_id"`
	FromLocationID      *id.ID `db:"from_location_id"`
	FromBinID           *id.ID `db:"from_bin_id"`

	ToMajorLocationID *id.ID `db:"to_major_location_id"`
	ToStoreroomID     *id.ID `db:"to_storeroom_id"`
	ToLocationID      *id.ID `db:"to_location_id"`
	ToBinID           *id.ID `db:"to_bin_id"`

	ReferenceType *string `db:"reference_type"`
	ReferenceID   *id.ID  `db:"reference_id"`

	InitialArrivalID   id.ID  `db:"initial_arrival_id"`
	PreviousMovementID *id.ID `db:"previous_movement_id"`

	MovementDate time.Time `db:"movement_date"`
	CreatedBy    string    `db:"created_by"`
	CreatedAt    time.Time `db:"created_at"`
}

func toRow(m *ledger.MovementRecord) movementRow {
	row := movementRow{
		ID:                 m.ID,
		PartID:             m.PartID,
		Kind:               string(m.Kind),
		QuantityDelta:      m.QuantityDelta.Int64Scaled(),
		UnitCost:           moneyToColumn(m.UnitCost),
		InitialArrivalID:   m.InitialArrivalID,
		PreviousMovementID: m.PreviousMovementID,
		MovementDate:       m.MovementDate,
		CreatedBy:          m.CreatedBy,
		CreatedAt:          m.CreatedAt,
	}
	if m.From != nil {
		row.FromMajorLocationID = id.Ptr(m.From.MajorLocationID)
		row.FromStoreroomID = id.Ptr(m.From.StoreroomID)
		row.FromLocationID = id.Ptr(m.From.LocationID)
		row.FromBinID = id.Ptr(m.From.BinID)
	}
	if m.To != nil {
		row.ToMajorLocationID = id.Ptr(m.To.MajorLocationID)
		row.ToStoreroomID = id.Ptr(m.To.StoreroomID)
		row.ToLocationID = id.Ptr(m.To.LocationID)
		row.ToBinID = id.Ptr(m.To.BinID)
	}
	if m.Reference != nil {
		refType := m.Reference.Type
		refID := m.Reference.ID
		row.ReferenceType = &refType
		row.ReferenceID = &refID
	}
	return row
}

func fromRow(row movementRow) ledger.MovementRecord {
	m := ledger.MovementRecord{
		ID:                 row.ID,
		PartID:             row.PartID,
		Kind:               ledger.MovementKind(row.Kind),
		QuantityDelta:      types.NewQuantityFromInt64Scaled(row.QuantityDelta),
		UnitCost:           moneyFromColumn(row.UnitCost),
		InitialArrivalID:   row.InitialArrivalID,
		PreviousMovementID: row.PreviousMovementID,
		MovementDate:       row.MovementDate,
		CreatedBy:          row.CreatedBy,
		CreatedAt:          row.CreatedAt,
	}
	if row.FromMajorLocationID != nil {
		m.From = &ledger.BinRef{
			MajorLocationID: id.Deref(row.FromMajorLocationID),
			StoreroomID:     id.Deref(row.FromStoreroomID),
			LocationID:      id.Deref(row.FromLocationID),
			BinID:           id.Deref(row.FromBinID),
		}
	}
	if row.ToMajorLocationID != nil {
		m.To = &ledger.BinRef{
			MajorLocationID: id.Deref(row.ToMajorLocationID),
			StoreroomID:     id.Deref(row.ToStoreroomID),
			LocationID:      id.Deref(row.ToLocationID),
			BinID:           id.Deref(row.ToBinID),
		}
	}
	if row.ReferenceType != nil && row.ReferenceID != nil {
		m.Reference = &ledger.Reference{Type: *row.ReferenceType, ID: *row.ReferenceID}
	}
	return m
}

func moneyToColumn(m *types.Money) *string {
	if m == nil {
		return nil
	}
	s := m.String()
	return &s
}

func moneyFromColumn(s *string) *types.Money {
	if s == nil {
		return nil
	}
	d, err := types.NewMoneyFromString(*s)
	if err != nil {
		return nil
	}
	return &d
}

// Insert appends a movement record.
func (r *MovementRepo) Insert(ctx context.Context, m *ledger.MovementRecord) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	row := toRow(m)

	q := r.builder.Insert(movementsTable).
		Columns(movementColumns...).
		Values(
			row.ID, row.PartID, row.Kind, row.QuantityDelta, row.UnitCost,
			row.FromMajorLocationID, row.FromStoreroomID, row.FromLocationID, row.FromBinID,
			row.ToMajorLocationID, row.ToStoreroomID, row.ToLocationID, row.ToBinID,
			row.ReferenceType, row.ReferenceID,
			row.InitialArrivalID, row.PreviousMovementID,
			row.MovementDate, row.CreatedBy, row.CreatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

// InsertBatch appends many movement records using COPY. Transfers use
// it for the debit/credit pair.
func (r *MovementRepo) InsertBatch(ctx context.Context, movements []*ledger.MovementRecord) error {
	if len(movements) == 0 {
		return nil
	}
	txm := r.getTxManager(ctx)
	inserter := postgres.NewBatchInserter(txm)

	rows := make([][]any, 0, len(movements))
	now := time.Now().UTC()
	for _, m := range movements {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		row := toRow(m)
		rows = append(rows, []any{
			row.ID, row.PartID, row.Kind, row.QuantityDelta, row.UnitCost,
			row.FromMajorLocationID, row.FromStoreroomID, row.FromLocationID, row.FromBinID,
			row.ToMajorLocationID, row.ToStoreroomID, row.ToLocationID, row.ToBinID,
			row.ReferenceType, row.ReferenceID,
			row.InitialArrivalID, row.PreviousMovementID,
			row.MovementDate, row.CreatedBy, row.CreatedAt,
		})
	}

	if _, err := inserter.CopyFromSlice(ctx, movementsTable, movementColumns, rows); err != nil {
		return fmt.Errorf("copy movements: %w", err)
	}
	return nil
}

// GetByID retrieves one movement.
func (r *MovementRepo) GetByID(ctx context.Context, movementID id.ID) (*ledger.MovementRecord, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"id": movementID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row movementRow
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("movement", movementID)
		}
		return nil, fmt.Errorf("get movement: %w", err)
	}

	m := fromRow(row)
	return &m, nil
}

// LatestProvenanced returns the most recent provenanced movement of a
// part at a position. The position of a row is its destination for
// positive deltas and its source for negative ones; UUIDv7 ids break
// same-instant ties.
func (r *MovementRepo) LatestProvenanced(ctx context.Context, partID id.ID, pos ledger.BinRef) (*ledger.MovementRecord, error) {
	sql := `
		SELECT ` + columnList() + `
		FROM inv_movements
		WHERE part_id = $1
		  AND initial_arrival_id IS NOT NULL
		  AND (CASE WHEN quantity_delta < 0 THEN from_major_location_id ELSE to_major_location_id END) IS NOT DISTINCT FROM $2
		  AND (CASE WHEN quantity_delta < 0 THEN from_storeroom_id ELSE to_storeroom_id END) IS NOT DISTINCT FROM $3
		  AND (CASE WHEN quantity_delta < 0 THEN from_location_id ELSE to_location_id END) IS NOT DISTINCT FROM $4
		  AND (CASE WHEN quantity_delta < 0 THEN from_bin_id ELSE to_bin_id END) IS NOT DISTINCT FROM $5
		ORDER BY movement_date DESC, id DESC
		LIMIT 1
	`

	var row movementRow
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	err := pgxscan.Get(ctx, querier, &row, sql,
		partID,
		id.Ptr(pos.MajorLocationID), id.Ptr(pos.StoreroomID),
		id.Ptr(pos.LocationID), id.Ptr(pos.BinID),
	)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest movement: %w", err)
	}

	m := fromRow(row)
	return &m, nil
}

// ListByArrival returns the full movement history of stock that entered
// through one arrival, oldest first.
func (r *MovementRepo) ListByArrival(ctx context.Context, arrivalID id.ID) ([]ledger.MovementRecord, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"initial_arrival_id": arrivalID}).
		OrderBy("movement_date", "id")

	return r.selectMovements(ctx, q)
}

// ListByReference returns movements caused by a business record.
func (r *MovementRepo) ListByReference(ctx context.Context, refType string, refID id.ID) ([]ledger.MovementRecord, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"reference_type": refType, "reference_id": refID}).
		OrderBy("movement_date", "id")

	return r.selectMovements(ctx, q)
}

// HasReceiptForReference reports whether a receipt movement exists for
// the reference.
func (r *MovementRepo) HasReceiptForReference(ctx context.Context, refType string, refID id.ID) (bool, error) {
	sql := `
		SELECT EXISTS (
			SELECT 1 FROM inv_movements
			WHERE kind = 'receipt' AND reference_type = $1 AND reference_id = $2
		)
	`

	var exists bool
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, refType, refID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check receipt for reference: %w", err)
	}
	return exists, nil
}

// HasReceiptForLine reports whether accepted stock from a purchase
// order line reached the ledger. Receipts reference the arrival they
// record, so the check joins through the arrivals table.
func (r *MovementRepo) HasReceiptForLine(ctx context.Context, lineID id.ID) (bool, error) {
	sql := `
		SELECT EXISTS (
			SELECT 1
			FROM inv_movements m
			JOIN inv_part_arrivals a ON a.id = m.reference_id
			WHERE m.kind = 'receipt'
			  AND m.reference_type = 'part_arrival'
			  AND a.purchase_order_line_id = $1
		)
	`

	var exists bool
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, lineID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check receipt for line: %w", err)
	}
	return exists, nil
}

// ListHistory returns filtered movement history for a part, newest first.
func (r *MovementRepo) ListHistory(ctx context.Context, partID id.ID, filter ledger.HistoryFilter) ([]ledger.MovementRecord, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"part_id": partID})

	if filter.Kind != nil {
		q = q.Where(squirrel.Eq{"kind": string(*filter.Kind)})
	}
	if filter.MajorLocationID != nil {
		q = q.Where(squirrel.Or{
			squirrel.Eq{"from_major_location_id": *filter.MajorLocationID},
			squirrel.Eq{"to_major_location_id": *filter.MajorLocationID},
		})
	}
	if filter.StoreroomID != nil {
		q = q.Where(squirrel.Or{
			squirrel.Eq{"from_storeroom_id": *filter.StoreroomID},
			squirrel.Eq{"to_storeroom_id": *filter.StoreroomID},
		})
	}
	if filter.BinID != nil {
		q = q.Where(squirrel.Or{
			squirrel.Eq{"from_bin_id": *filter.BinID},
			squirrel.Eq{"to_bin_id": *filter.BinID},
		})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"movement_date": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"movement_date": *filter.ToDate})
	}

	q = q.OrderBy("movement_date DESC", "id DESC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	return r.selectMovements(ctx, q)
}

func (r *MovementRepo) selectMovements(ctx context.Context, q squirrel.SelectBuilder) ([]ledger.MovementRecord, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []movementRow
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}

	out := make([]ledger.MovementRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

func columnList() string {
	list := ""
	for i, c := range movementColumns {
		if i > 0 {
			list += ", "
		}
		list += c
	}
	return list
}
