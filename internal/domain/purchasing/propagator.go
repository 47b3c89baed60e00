package purchasing

import (
	"context"
	"fmt"

	"stocktrace/internal/core/id"
	"stocktrace/internal/core/tx"
	"stocktrace/internal/domain/status"
	"stocktrace/pkg/logger"
)

// Propagator drives the forward-only status cascade from ledger events
// down to purchase order lines, order headers, and part demands.
// It holds no state of its own; every status it writes is derived from
// received totals and committed receipt movements.
type Propagator struct {
	repo     Repository
	receipts ReceiptChecker
	txm      tx.Manager
}

// NewPropagator creates a status propagator.
func NewPropagator(repo Repository, receipts ReceiptChecker, txm tx.Manager) *Propagator {
	return &Propagator{repo: repo, receipts: receipts, txm: txm}
}

// PropagateLineUpdate recomputes a line's status from its received
// totals and advances linked demands. Called after every inspection;
// runs in the caller's transaction when one is open.
//
// A line is Complete once accepted plus rejected covers the ordered
// quantity, Partial once anything at all has been inspected. Demands
// move to At Inventory only when accepted stock from the line actually
// reached the ledger; a fully rejected delivery completes the line
// without ever advancing its demands.
func (p *Propagator) PropagateLineUpdate(ctx context.Context, lineID id.ID) error {
	return p.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		line, err := p.repo.GetLineForUpdate(ctx, lineID)
		if err != nil {
			return err
		}

		total := line.QuantityReceivedTotal()
		var proposed status.LineStatus
		switch {
		case line.QuantityOrdered.IsPositive() && total >= line.QuantityOrdered:
			proposed = status.LineComplete
		case total.IsPositive():
			proposed = status.LinePartial
		default:
			return nil
		}

		if next, changed := status.AdvanceLine(line.Status, proposed); changed {
			line.Status = next
			if err := p.repo.UpdateLine(ctx, line); err != nil {
				return fmt.Errorf("update line status: %w", err)
			}
			logger.Info(ctx, "advanced purchase order line",
				"line_id", lineID, "status", next)
		}

		if !line.QuantityAccepted.IsPositive() {
			return nil
		}
		hasReceipt, err := p.receipts.HasReceiptForLine(ctx, lineID)
		if err != nil {
			return fmt.Errorf("check receipts for line: %w", err)
		}
		if !hasReceipt {
			return nil
		}

		return p.advanceDemands(ctx, lineID, status.DemandAtInventory)
	})
}

// PropagateOrderStatus cascades an order header change onto its lines
// and their demands. Ordered and Shipped fan out to every line that
// can still advance; Arrived is accepted only once every line is
// settled; Cancelled closes out whatever has not already arrived.
func (p *Propagator) PropagateOrderStatus(ctx context.Context, orderID id.ID, proposed status.OrderStatus) error {
	return p.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := p.repo.GetOrderStatus(ctx, orderID)
		if err != nil {
			return err
		}

		if proposed == status.OrderCancelled {
			return p.cancelOrder(ctx, orderID, current)
		}

		lines, err := p.repo.ListLinesByOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("list order lines: %w", err)
		}

		if proposed == status.OrderArrived {
			for _, line := range lines {
				if line.Status != status.LineComplete && line.Status != status.LineCancelled {
					logger.Debug(ctx, "order not yet arrived, line still open",
						"order_id", orderID, "line_id", line.ID, "line_status", line.Status)
					return nil
				}
			}
		}

		next, changed := status.AdvanceOrder(current, proposed)
		if !changed {
			return nil
		}
		if err := p.repo.UpdateOrderStatus(ctx, orderID, next); err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		logger.Info(ctx, "advanced purchase order", "order_id", orderID, "status", next)

		var lineProposed status.LineStatus
		var demandProposed status.DemandStatus
		switch next {
		case status.OrderOrdered:
			lineProposed, demandProposed = status.LineOrdered, status.DemandOrdered
		case status.OrderShipped:
			lineProposed, demandProposed = status.LineShipped, status.DemandShipped
		default:
			return nil
		}

		for i := range lines {
			line := &lines[i]
			if nextLine, changed := status.AdvanceLine(line.Status, lineProposed); changed {
				line.Status = nextLine
				if err := p.repo.UpdateLine(ctx, line); err != nil {
					return fmt.Errorf("cascade line status: %w", err)
				}
			}
			if err := p.advanceDemands(ctx, line.ID, demandProposed); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkDemandIssued advances a single demand to Issued once the movement
// that consumed its stock is committed. Runs in the caller's transaction
// when one is open; forward-only, so a demand already Issued or beyond
// is left alone.
func (p *Propagator) MarkDemandIssued(ctx context.Context, demandID id.ID) error {
	return p.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		d, err := p.repo.GetDemand(ctx, demandID)
		if err != nil {
			return err
		}
		next, changed := status.AdvanceDemand(d.Status, status.DemandIssued)
		if !changed {
			return nil
		}
		if err := p.repo.UpdateDemandStatus(ctx, demandID, next); err != nil {
			return fmt.Errorf("update demand status: %w", err)
		}
		logger.Info(ctx, "advanced part demand", "demand_id", demandID, "status", next)
		return nil
	})
}

// cancelOrder marks the order and everything on it that has not
// already settled as cancelled. Completed lines and demands keep
// their status; cancellation never rewrites history.
func (p *Propagator) cancelOrder(ctx context.Context, orderID id.ID, current status.OrderStatus) error {
	if current == status.OrderArrived || current == status.OrderCancelled {
		return nil
	}
	if err := p.repo.UpdateOrderStatus(ctx, orderID, status.OrderCancelled); err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}

	lines, err := p.repo.ListLinesByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("list order lines: %w", err)
	}
	for i := range lines {
		line := &lines[i]
		if status.IsTerminalLine(line.Status) {
			continue
		}
		line.Status = status.LineCancelled
		if err := p.repo.UpdateLine(ctx, line); err != nil {
			return fmt.Errorf("cancel line: %w", err)
		}

		demands, err := p.repo.ListDemandsByLine(ctx, line.ID)
		if err != nil {
			return fmt.Errorf("list demands: %w", err)
		}
		for _, d := range demands {
			// Stock already in the building stays tracked.
			if status.IsTerminalDemand(d.Status) ||
				d.Status == status.DemandAtInventory || d.Status == status.DemandIssued {
				continue
			}
			if err := p.repo.UpdateDemandStatus(ctx, d.ID, status.DemandCancelled); err != nil {
				return fmt.Errorf("cancel demand: %w", err)
			}
		}
	}
	logger.Info(ctx, "cancelled purchase order", "order_id", orderID)
	return nil
}

func (p *Propagator) advanceDemands(ctx context.Context, lineID id.ID, proposed status.DemandStatus) error {
	demands, err := p.repo.ListDemandsByLine(ctx, lineID)
	if err != nil {
		return fmt.Errorf("list demands for line: %w", err)
	}
	for _, d := range demands {
		next, changed := status.AdvanceDemand(d.Status, proposed)
		if !changed {
			continue
		}
		if err := p.repo.UpdateDemandStatus(ctx, d.ID, next); err != nil {
			return fmt.Errorf("update demand status: %w", err)
		}
		logger.Info(ctx, "advanced part demand",
			"demand_id", d.ID, "status", next)
	}
	return nil
}
