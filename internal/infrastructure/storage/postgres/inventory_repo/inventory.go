// Package inventory_repo provides the PostgreSQL implementation of the
// derived inventory aggregate tables.
package inventory_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stocktrace/internal/core/apperror"
	"stocktrace/internal/core/id"
	"stocktrace/internal/core/types"
	"stocktrace/internal/domain/inventory"
	"stocktrace/internal/infrastructure/storage/postgres"
)

const (
	activeTable  = "inv_active"
	summaryTable = "inv_summary"
)

var _ inventory.Repository = (*InventoryRepo)(nil)

// InventoryRepo implements inventory.Repository.
type InventoryRepo struct {
	builder squirrel.StatementBuilderType
}

// NewInventoryRepo creates a new inventory repository.
func NewInventoryRepo() *InventoryRepo {
	return &InventoryRepo{
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *InventoryRepo) getTxManager(ctx context.Context) *postgres.TxManager {
	return postgres.MustGetTxManager(ctx)
}

var activeColumns = []string{
	"id", "part_id", "major_location_id", "storeroom_id", "location_id", "bin_id",
	"quantity_on_hand", "quantity_allocated", "unit_cost_avg",
	"last_movement_at", "updated_at",
}

// activeRow is the flat table shape of an ActiveRecord. Position levels
// below the major location are nullable; NULL means unassigned.
type activeRow struct {
	ID              id.ID  `db:"id"`
	PartID          id.ID  `db:"part_id"`
	MajorLocationID id.ID  `db:"major_location_id"`
	StoreroomID     *id.ID `db:"storeroom_id"`
	LocationID      *id.ID `db:"location_id"`
	BinID           *id.ID `db:"bin_id"`

	QuantityOnHand    int64  `db:"quantity_on_hand"`
	QuantityAllocated int64  `db:"quantity_allocated"`
	UnitCostAvg       string `db:"unit_cost_avg"`

	LastMovementAt time.Time `db:"last_movement_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func toActiveRow(rec *inventory.ActiveRecord) activeRow {
	return activeRow{
		ID:                rec.ID,
		PartID:            rec.PartID,
		MajorLocationID:   rec.MajorLocationID,
		StoreroomID:       id.Ptr(rec.StoreroomID),
		LocationID:        id.Ptr(rec.LocationID),
		BinID:             id.Ptr(rec.BinID),
		QuantityOnHand:    rec.QuantityOnHand.Int64Scaled(),
		QuantityAllocated: rec.QuantityAllocated.Int64Scaled(),
		UnitCostAvg:       rec.UnitCostAvg.String(),
		LastMovementAt:    rec.LastMovementAt,
		UpdatedAt:         rec.UpdatedAt,
	}
}

func fromActiveRow(row activeRow) (inventory.ActiveRecord, error) {
	avg, err := types.NewMoneyFromString(row.UnitCostAvg)
	if err != nil {
		return inventory.ActiveRecord{}, fmt.Errorf("parse unit_cost_avg: %w", err)
	}
	return inventory.ActiveRecord{
		ID:                row.ID,
		PartID:            row.PartID,
		MajorLocationID:   row.MajorLocationID,
		StoreroomID:       id.Deref(row.StoreroomID),
		LocationID:        id.Deref(row.LocationID),
		BinID:             id.Deref(row.BinID),
		QuantityOnHand:    types.NewQuantityFromInt64Scaled(row.QuantityOnHand),
		QuantityAllocated: types.NewQuantityFromInt64Scaled(row.QuantityAllocated),
		UnitCostAvg:       avg,
		LastMovementAt:    row.LastMovementAt,
		UpdatedAt:         row.UpdatedAt,
	}, nil
}

// keyConditions builds the position predicate. NULL columns must match
// Nil key levels exactly, hence IS NOT DISTINCT FROM semantics.
const keyWhere = `
	part_id = $1
	AND major_location_id = $2
	AND storeroom_id IS NOT DISTINCT FROM $3
	AND location_id IS NOT DISTINCT FROM $4
	AND bin_id IS NOT DISTINCT FROM $5
`

func keyArgs(key inventory.Key) []any {
	return []any{
		key.PartID, key.MajorLocationID,
		id.Ptr(key.StoreroomID), id.Ptr(key.LocationID), id.Ptr(key.BinID),
	}
}

// Get returns the aggregate row at a position, or nil when absent.
func (r *InventoryRepo) Get(ctx context.Context, key inventory.Key) (*inventory.ActiveRecord, error) {
	sql := `
		SELECT id, part_id, major_location_id, storeroom_id, location_id, bin_id,
			   quantity_on_hand, quantity_allocated, unit_cost_avg,
			   last_movement_at, updated_at
		FROM inv_active
		WHERE ` + keyWhere

	return r.getOne(ctx, sql, keyArgs(key)...)
}

// GetForUpdate returns the aggregate row with a pessimistic lock.
func (r *InventoryRepo) GetForUpdate(ctx context.Context, key inventory.Key) (*inventory.ActiveRecord, error) {
	sql := `
		SELECT id, part_id, major_location_id, storeroom_id, location_id, bin_id,
			   quantity_on_hand, quantity_allocated, unit_cost_avg,
			   last_movement_at, updated_at
		FROM inv_active
		WHERE ` + keyWhere + `
		FOR UPDATE
	`

	return r.getOne(ctx, sql, keyArgs(key)...)
}

func (r *InventoryRepo) getOne(ctx context.Context, sql string, args ...any) (*inventory.ActiveRecord, error) {
	var row activeRow
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active inventory: %w", err)
	}
	rec, err := fromActiveRow(row)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Insert creates an aggregate row.
func (r *InventoryRepo) Insert(ctx context.Context, rec *inventory.ActiveRecord) error {
	row := toActiveRow(rec)
	q := r.builder.Insert(activeTable).
		Columns(activeColumns...).
		Values(
			row.ID, row.PartID, row.MajorLocationID, row.StoreroomID, row.LocationID, row.BinID,
			row.QuantityOnHand, row.QuantityAllocated, row.UnitCostAvg,
			row.LastMovementAt, row.UpdatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert active inventory: %w", err)
	}
	return nil
}

// Update rewrites an aggregate row's quantities and cost.
func (r *InventoryRepo) Update(ctx context.Context, rec *inventory.ActiveRecord) error {
	row := toActiveRow(rec)
	q := r.builder.Update(activeTable).
		Set("quantity_on_hand", row.QuantityOnHand).
		Set("quantity_allocated", row.QuantityAllocated).
		Set("unit_cost_avg", row.UnitCostAvg).
		Set("last_movement_at", row.LastMovementAt).
		Set("updated_at", row.UpdatedAt).
		Where(squirrel.Eq{"id": row.ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update active inventory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("active inventory", rec.ID)
	}
	return nil
}

// Delete removes an emptied aggregate row.
func (r *InventoryRepo) Delete(ctx context.Context, recID id.ID) error {
	q := r.builder.Delete(activeTable).Where(squirrel.Eq{"id": recID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete active inventory: %w", err)
	}
	return nil
}

// ListByPart returns all positions holding a part.
func (r *InventoryRepo) ListByPart(ctx context.Context, partID id.ID) ([]inventory.ActiveRecord, error) {
	q := r.builder.Select(activeColumns...).
		From(activeTable).
		Where(squirrel.Eq{"part_id": partID}).
		OrderBy("major_location_id", "storeroom_id", "location_id", "bin_id")

	return r.selectActive(ctx, q)
}

// ListByStoreroom returns all stock in a storeroom.
func (r *InventoryRepo) ListByStoreroom(ctx context.Context, storeroomID id.ID) ([]inventory.ActiveRecord, error) {
	q := r.builder.Select(activeColumns...).
		From(activeTable).
		Where(squirrel.Eq{"storeroom_id": storeroomID}).
		OrderBy("part_id", "location_id", "bin_id")

	return r.selectActive(ctx, q)
}

func (r *InventoryRepo) selectActive(ctx context.Context, q squirrel.SelectBuilder) ([]inventory.ActiveRecord, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []activeRow
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select active inventory: %w", err)
	}

	out := make([]inventory.ActiveRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := fromActiveRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// summaryRow is the flat table shape of a SummaryRecord.
type summaryRow struct {
	PartID         id.ID     `db:"part_id"`
	TotalOnHand    int64     `db:"total_on_hand"`
	TotalAllocated int64     `db:"total_allocated"`
	TotalAvailable int64     `db:"total_available"`
	PositionCount  int       `db:"position_count"`
	UnitCostAvg    string    `db:"unit_cost_avg"`
	LastMovementAt time.Time `db:"last_movement_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func fromSummaryRow(row summaryRow) (inventory.SummaryRecord, error) {
	avg, err := types.NewMoneyFromString(row.UnitCostAvg)
	if err != nil {
		return inventory.SummaryRecord{}, fmt.Errorf("parse unit_cost_avg: %w", err)
	}
	return inventory.SummaryRecord{
		PartID:         row.PartID,
		TotalOnHand:    types.NewQuantityFromInt64Scaled(row.TotalOnHand),
		TotalAllocated: types.NewQuantityFromInt64Scaled(row.TotalAllocated),
		TotalAvailable: types.NewQuantityFromInt64Scaled(row.TotalAvailable),
		PositionCount:  row.PositionCount,
		UnitCostAvg:    avg,
		LastMovementAt: row.LastMovementAt,
		UpdatedAt:      row.UpdatedAt,
	}, nil
}

// GetSummary returns the part-level summary, or nil when the part has
// no stock.
func (r *InventoryRepo) GetSummary(ctx context.Context, partID id.ID) (*inventory.SummaryRecord, error) {
	q := r.builder.Select(
		"part_id", "total_on_hand", "total_allocated", "total_available",
		"position_count", "unit_cost_avg", "last_movement_at", "updated_at",
	).From(summaryTable).
		Where(squirrel.Eq{"part_id": partID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row summaryRow
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get summary: %w", err)
	}

	rec, err := fromSummaryRow(row)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListSummaries returns summaries for the given parts, or all parts
// when the filter is empty.
func (r *InventoryRepo) ListSummaries(ctx context.Context, partIDs []id.ID) ([]inventory.SummaryRecord, error) {
	q := r.builder.Select(
		"part_id", "total_on_hand", "total_allocated", "total_available",
		"position_count", "unit_cost_avg", "last_movement_at", "updated_at",
	).From(summaryTable)

	if len(partIDs) > 0 {
		q = q.Where(squirrel.Eq{"part_id": partIDs})
	}
	q = q.OrderBy("part_id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []summaryRow
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select summaries: %w", err)
	}

	out := make([]inventory.SummaryRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := fromSummaryRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// DeriveSummaries recomputes part-level summaries from the active
// table. With no part filter it derives every part that has stock.
func (r *InventoryRepo) DeriveSummaries(ctx context.Context, partIDs []id.ID) ([]inventory.SummaryRecord, error) {
	q := r.builder.Select(
		"part_id",
		"COALESCE(SUM(quantity_on_hand), 0) AS total_on_hand",
		"COALESCE(SUM(quantity_allocated), 0) AS total_allocated",
		"COALESCE(SUM(quantity_on_hand - quantity_allocated), 0) AS total_available",
		"COUNT(*) AS position_count",
		// Quantity scale cancels in the ratio, so the raw scaled
		// quantities weight the bin averages directly.
		"COALESCE(ROUND(SUM(quantity_on_hand * unit_cost_avg) / NULLIF(SUM(quantity_on_hand), 0), 4), 0) AS unit_cost_avg",
		"MAX(last_movement_at) AS last_movement_at",
		"NOW() AS updated_at",
	).From(activeTable)

	if len(partIDs) > 0 {
		q = q.Where(squirrel.Eq{"part_id": partIDs})
	}
	q = q.GroupBy("part_id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []summaryRow
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("derive summaries: %w", err)
	}

	out := make([]inventory.SummaryRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := fromSummaryRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// ReplaceSummaries swaps stored summaries for the given parts with the
// derived rows. Parts with no remaining stock lose their summary row.
func (r *InventoryRepo) ReplaceSummaries(ctx context.Context, partIDs []id.ID, rows []inventory.SummaryRecord) error {
	querier := r.getTxManager(ctx).GetQuerier(ctx)

	del := r.builder.Delete(summaryTable)
	if len(partIDs) > 0 {
		del = del.Where(squirrel.Eq{"part_id": partIDs})
	}
	sql, args, err := del.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete summaries: %w", err)
	}

	if len(rows) == 0 {
		return nil
	}

	q := r.builder.Insert(summaryTable).Columns(
		"part_id", "total_on_hand", "total_allocated", "total_available",
		"position_count", "unit_cost_avg", "last_movement_at", "updated_at",
	)
	for _, rec := range rows {
		updatedAt := rec.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now().UTC()
		}
		q = q.Values(
			rec.PartID,
			rec.TotalOnHand.Int64Scaled(),
			rec.TotalAllocated.Int64Scaled(),
			rec.TotalAvailable.Int64Scaled(),
			rec.PositionCount,
			rec.UnitCostAvg.String(),
			rec.LastMovementAt,
			updatedAt,
		)
	}

	sql, args, err = q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert summaries: %w", err)
	}
	return nil
}
