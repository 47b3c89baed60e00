// Package arrival_repo provides the PostgreSQL implementation of the
// part arrivals repository.
package arrival_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stocktrace/internal/core/apperror"
	"stocktrace/internal/core/id"
	"stocktrace/internal/core/types"
	"stocktrace/internal/domain/arrivals"
	"stocktrace/internal/domain/status"
	"stocktrace/internal/infrastructure/storage/postgres"
)

const arrivalsTable = "inv_part_arrivals"

var _ arrivals.Repository = (*ArrivalRepo)(nil)

// ArrivalRepo implements arrivals.Repository.
type ArrivalRepo struct {
	builder squirrel.StatementBuilderType
}

// NewArrivalRepo creates a new arrival repository.
func NewArrivalRepo() *ArrivalRepo {
	return &ArrivalRepo{
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *ArrivalRepo) getTxManager(ctx context.Context) *postgres.TxManager {
	return postgres.MustGetTxManager(ctx)
}

var arrivalColumns = []string{
	"id", "package_id", "purchase_order_line_id", "part_id",
	"major_location_id", "storeroom_id",
	"quantity_received", "unit_cost", "condition", "status",
	"inspected_by", "inspected_at", "created_at", "updated_at",
}

type arrivalRow struct {
	ID                  id.ID  `db:"id"`
	PackageID           *id.ID `db:"package_id"`
	PurchaseOrderLineID *id.ID `db:"purchase_order_line_id"`
	PartID              id.ID  `db:"part_id"`
	MajorLocationID     id.ID  `db:"major_location_id"`
	StoreroomID         *id.ID `db:"storeroom_id"`

	QuantityReceived int64   `db:"quantity_received"`
	UnitCost         *string `db:"unit_cost"`
	Condition        string  `db:"condition"`
	Status           string  `db:"status"`

	InspectedBy string     `db:"inspected_by"`
	InspectedAt *time.Time `db:"inspected_at"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

func toArrivalRow(a *arrivals.PartArrival) arrivalRow {
	row := arrivalRow{
		ID:                  a.ID,
		PackageID:           a.PackageID,
		PurchaseOrderLineID: a.PurchaseOrderLineID,
		PartID:              a.PartID,
		MajorLocationID:     a.MajorLocationID,
		StoreroomID:         id.Ptr(a.StoreroomID),
		QuantityReceived:    a.QuantityReceived.Int64Scaled(),
		Condition:           a.Condition,
		Status:              string(a.Status),
		InspectedBy:         a.InspectedBy,
		InspectedAt:         a.InspectedAt,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
	if a.UnitCost != nil {
		s := a.UnitCost.String()
		row.UnitCost = &s
	}
	return row
}

func fromArrivalRow(row arrivalRow) arrivals.PartArrival {
	a := arrivals.PartArrival{
		ID:                  row.ID,
		PackageID:           row.PackageID,
		PurchaseOrderLineID: row.PurchaseOrderLineID,
		PartID:              row.PartID,
		MajorLocationID:     row.MajorLocationID,
		StoreroomID:         id.Deref(row.StoreroomID),
		QuantityReceived:    types.NewQuantityFromInt64Scaled(row.QuantityReceived),
		Condition:           row.Condition,
		Status:              status.ArrivalStatus(row.Status),
		InspectedBy:         row.InspectedBy,
		InspectedAt:         row.InspectedAt,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
	if row.UnitCost != nil {
		if cost, err := types.NewMoneyFromString(*row.UnitCost); err == nil {
			a.UnitCost = &cost
		}
	}
	return a
}

// GetForUpdate locks and returns an arrival.
func (r *ArrivalRepo) GetForUpdate(ctx context.Context, arrivalID id.ID) (*arrivals.PartArrival, error) {
	sql := `
		SELECT id, package_id, purchase_order_line_id, part_id,
			   major_location_id, storeroom_id,
			   quantity_received, unit_cost, condition, status,
			   inspected_by, inspected_at, created_at, updated_at
		FROM inv_part_arrivals
		WHERE id = $1
		FOR UPDATE
	`
	return r.getOne(ctx, sql, arrivalID)
}

// GetByID returns an arrival without locking.
func (r *ArrivalRepo) GetByID(ctx context.Context, arrivalID id.ID) (*arrivals.PartArrival, error) {
	q := r.builder.Select(arrivalColumns...).
		From(arrivalsTable).
		Where(squirrel.Eq{"id": arrivalID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return r.getOne(ctx, sql, args...)
}

func (r *ArrivalRepo) getOne(ctx context.Context, sql string, args ...any) (*arrivals.PartArrival, error) {
	var row arrivalRow
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			var arrivalID any
			if len(args) > 0 {
				arrivalID = args[0]
			}
			return nil, apperror.NewNotFound("part arrival", arrivalID)
		}
		return nil, fmt.Errorf("get arrival: %w", err)
	}
	a := fromArrivalRow(row)
	return &a, nil
}

// Insert creates an arrival row.
func (r *ArrivalRepo) Insert(ctx context.Context, a *arrivals.PartArrival) error {
	row := toArrivalRow(a)
	q := r.builder.Insert(arrivalsTable).
		Columns(arrivalColumns...).
		Values(
			row.ID, row.PackageID, row.PurchaseOrderLineID, row.PartID,
			row.MajorLocationID, row.StoreroomID,
			row.QuantityReceived, row.UnitCost, row.Condition, row.Status,
			row.InspectedBy, row.InspectedAt, row.CreatedAt, row.UpdatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert arrival: %w", err)
	}
	return nil
}

// Update rewrites an arrival row.
func (r *ArrivalRepo) Update(ctx context.Context, a *arrivals.PartArrival) error {
	row := toArrivalRow(a)
	q := r.builder.Update(arrivalsTable).
		Set("quantity_received", row.QuantityReceived).
		Set("unit_cost", row.UnitCost).
		Set("condition", row.Condition).
		Set("status", row.Status).
		Set("inspected_by", row.InspectedBy).
		Set("inspected_at", row.InspectedAt).
		Set("updated_at", row.UpdatedAt).
		Where(squirrel.Eq{"id": row.ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update arrival: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("part arrival", a.ID)
	}
	return nil
}

// ListByPackage returns all arrivals on a package.
func (r *ArrivalRepo) ListByPackage(ctx context.Context, packageID id.ID) ([]arrivals.PartArrival, error) {
	q := r.builder.Select(arrivalColumns...).
		From(arrivalsTable).
		Where(squirrel.Eq{"package_id": packageID}).
		OrderBy("created_at", "id")

	return r.selectArrivals(ctx, q)
}

// ListByLine returns all arrivals against a purchase order line,
// inspection splits included.
func (r *ArrivalRepo) ListByLine(ctx context.Context, lineID id.ID) ([]arrivals.PartArrival, error) {
	q := r.builder.Select(arrivalColumns...).
		From(arrivalsTable).
		Where(squirrel.Eq{"purchase_order_line_id": lineID}).
		OrderBy("created_at", "id")

	return r.selectArrivals(ctx, q)
}

// ListPendingByLocation returns uninspected arrivals at a major
// location, oldest first.
func (r *ArrivalRepo) ListPendingByLocation(ctx context.Context, majorLocationID id.ID) ([]arrivals.PartArrival, error) {
	q := r.builder.Select(arrivalColumns...).
		From(arrivalsTable).
		Where(squirrel.Eq{"major_location_id": majorLocationID}).
		Where(squirrel.Eq{"status": []string{
			string(status.ArrivalPending), string(status.ArrivalArrived),
		}}).
		OrderBy("created_at", "id")

	return r.selectArrivals(ctx, q)
}

func (r *ArrivalRepo) selectArrivals(ctx context.Context, q squirrel.SelectBuilder) ([]arrivals.PartArrival, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []arrivalRow
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select arrivals: %w", err)
	}

	out := make([]arrivals.PartArrival, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromArrivalRow(row))
	}
	return out, nil
}
