// Package purchasing_repo provides the PostgreSQL implementation of
// the purchasing slice the status cascade touches: purchase order
// lines, part demands, and order header statuses.
package purchasing_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"stocktrace/internal/core/apperror"
	"stocktrace/internal/core/id"
	"stocktrace/internal/core/types"
	"stocktrace/internal/domain/purchasing"
	"stocktrace/internal/domain/status"
	"stocktrace/internal/infrastructure/storage/postgres"
)

const (
	ordersTable  = "po_orders"
	linesTable   = "po_lines"
	demandsTable = "po_demands"
)

var _ purchasing.Repository = (*PurchasingRepo)(nil)

// PurchasingRepo implements purchasing.Repository.
type PurchasingRepo struct {
	builder squirrel.StatementBuilderType
}

// NewPurchasingRepo creates a new purchasing repository.
func NewPurchasingRepo() *PurchasingRepo {
	return &PurchasingRepo{
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *PurchasingRepo) getTxManager(ctx context.Context) *postgres.TxManager {
	return postgres.MustGetTxManager(ctx)
}

type lineRow struct {
	ID               id.ID     `db:"id"`
	PurchaseOrderID  id.ID     `db:"purchase_order_id"`
	PartID           id.ID     `db:"part_id"`
	QuantityOrdered  int64     `db:"quantity_ordered"`
	QuantityAccepted int64     `db:"quantity_accepted"`
	QuantityRejected int64     `db:"quantity_rejected"`
	UnitCost         *string   `db:"unit_cost"`
	Status           string    `db:"status"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func fromLineRow(row lineRow) purchasing.PurchaseOrderLine {
	line := purchasing.PurchaseOrderLine{
		ID:               row.ID,
		PurchaseOrderID:  row.PurchaseOrderID,
		PartID:           row.PartID,
		QuantityOrdered:  types.NewQuantityFromInt64Scaled(row.QuantityOrdered),
		QuantityAccepted: types.NewQuantityFromInt64Scaled(row.QuantityAccepted),
		QuantityRejected: types.NewQuantityFromInt64Scaled(row.QuantityRejected),
		Status:           status.LineStatus(row.Status),
		UpdatedAt:        row.UpdatedAt,
	}
	if row.UnitCost != nil {
		if cost, err := types.NewMoneyFromString(*row.UnitCost); err == nil {
			line.UnitCost = &cost
		}
	}
	return line
}

// GetLineForUpdate locks and returns a purchase order line.
func (r *PurchasingRepo) GetLineForUpdate(ctx context.Context, lineID id.ID) (*purchasing.PurchaseOrderLine, error) {
	sql := `
		SELECT id, purchase_order_id, part_id,
			   quantity_ordered, quantity_accepted, quantity_rejected,
			   unit_cost, status, updated_at
		FROM po_lines
		WHERE id = $1
		FOR UPDATE
	`

	var row lineRow
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, lineID); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("purchase order line", lineID)
		}
		return nil, fmt.Errorf("get line: %w", err)
	}

	line := fromLineRow(row)
	return &line, nil
}

// UpdateLine rewrites a line's received totals and status.
func (r *PurchasingRepo) UpdateLine(ctx context.Context, line *purchasing.PurchaseOrderLine) error {
	q := r.builder.Update(linesTable).
		Set("quantity_accepted", line.QuantityAccepted.Int64Scaled()).
		Set("quantity_rejected", line.QuantityRejected.Int64Scaled()).
		Set("status", string(line.Status)).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": line.ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update line: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("purchase order line", line.ID)
	}
	return nil
}

// ListLinesByOrder returns all lines of an order.
func (r *PurchasingRepo) ListLinesByOrder(ctx context.Context, orderID id.ID) ([]purchasing.PurchaseOrderLine, error) {
	q := r.builder.Select(
		"id", "purchase_order_id", "part_id",
		"quantity_ordered", "quantity_accepted", "quantity_rejected",
		"unit_cost", "status", "updated_at",
	).From(linesTable).
		Where(squirrel.Eq{"purchase_order_id": orderID}).
		OrderBy("id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []lineRow
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select lines: %w", err)
	}

	out := make([]purchasing.PurchaseOrderLine, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromLineRow(row))
	}
	return out, nil
}

type demandRow struct {
	ID                  id.ID     `db:"id"`
	PurchaseOrderLineID *id.ID    `db:"purchase_order_line_id"`
	PartID              id.ID     `db:"part_id"`
	Quantity            int64     `db:"quantity"`
	Status              string    `db:"status"`
	UpdatedAt           time.Time `db:"updated_at"`
}

func fromDemandRow(row demandRow) purchasing.PartDemand {
	return purchasing.PartDemand{
		ID:                  row.ID,
		PurchaseOrderLineID: row.PurchaseOrderLineID,
		PartID:              row.PartID,
		Quantity:            types.NewQuantityFromInt64Scaled(row.Quantity),
		Status:              status.DemandStatus(row.Status),
		UpdatedAt:           row.UpdatedAt,
	}
}

// GetDemand returns a part demand.
func (r *PurchasingRepo) GetDemand(ctx context.Context, demandID id.ID) (*purchasing.PartDemand, error) {
	q := r.builder.Select(
		"id", "purchase_order_line_id", "part_id", "quantity", "status", "updated_at",
	).From(demandsTable).
		Where(squirrel.Eq{"id": demandID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row demandRow
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("part demand", demandID)
		}
		return nil, fmt.Errorf("get demand: %w", err)
	}

	d := fromDemandRow(row)
	return &d, nil
}

// ListDemandsByLine returns demands sourced from a line.
func (r *PurchasingRepo) ListDemandsByLine(ctx context.Context, lineID id.ID) ([]purchasing.PartDemand, error) {
	q := r.builder.Select(
		"id", "purchase_order_line_id", "part_id", "quantity", "status", "updated_at",
	).From(demandsTable).
		Where(squirrel.Eq{"purchase_order_line_id": lineID}).
		OrderBy("id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []demandRow
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select demands: %w", err)
	}

	out := make([]purchasing.PartDemand, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromDemandRow(row))
	}
	return out, nil
}

// UpdateDemandStatus persists an advanced demand status.
func (r *PurchasingRepo) UpdateDemandStatus(ctx context.Context, demandID id.ID, s status.DemandStatus) error {
	q := r.builder.Update(demandsTable).
		Set("status", string(s)).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": demandID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update demand status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("part demand", demandID)
	}
	return nil
}

// GetOrderStatus returns the order header status.
func (r *PurchasingRepo) GetOrderStatus(ctx context.Context, orderID id.ID) (status.OrderStatus, error) {
	sql := `SELECT status FROM po_orders WHERE id = $1`

	var s string
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, orderID).Scan(&s); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperror.NewNotFound("purchase order", orderID)
		}
		return "", fmt.Errorf("get order status: %w", err)
	}
	return status.OrderStatus(s), nil
}

// UpdateOrderStatus persists an advanced order status.
func (r *PurchasingRepo) UpdateOrderStatus(ctx context.Context, orderID id.ID, s status.OrderStatus) error {
	q := r.builder.Update(ordersTable).
		Set("status", string(s)).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": orderID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("purchase order", orderID)
	}
	return nil
}
