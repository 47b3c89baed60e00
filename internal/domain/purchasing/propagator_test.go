package purchasing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocktrace/internal/core/apperror"
	"stocktrace/internal/core/id"
	"stocktrace/internal/core/types"
	"stocktrace/internal/domain/status"
)

type passthroughTx struct{}

func (passthroughTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// memPurchasingRepo is an in-memory Repository for propagation tests.
type memPurchasingRepo struct {
	lines   map[id.ID]*PurchaseOrderLine
	demands map[id.ID]*PartDemand
	orders  map[id.ID]status.OrderStatus
}

func newMemPurchasingRepo() *memPurchasingRepo {
	return &memPurchasingRepo{
		lines:   make(map[id.ID]*PurchaseOrderLine),
		demands: make(map[id.ID]*PartDemand),
		orders:  make(map[id.ID]status.OrderStatus),
	}
}

func (r *memPurchasingRepo) GetLineForUpdate(_ context.Context, lineID id.ID) (*PurchaseOrderLine, error) {
	if line, ok := r.lines[lineID]; ok {
		cp := *line
		return &cp, nil
	}
	return nil, apperror.NewNotFound("purchase order line", lineID)
}

func (r *memPurchasingRepo) UpdateLine(_ context.Context, line *PurchaseOrderLine) error {
	cp := *line
	r.lines[line.ID] = &cp
	return nil
}

func (r *memPurchasingRepo) ListLinesByOrder(_ context.Context, orderID id.ID) ([]PurchaseOrderLine, error) {
	var out []PurchaseOrderLine
	for _, line := range r.lines {
		if line.PurchaseOrderID == orderID {
			out = append(out, *line)
		}
	}
	return out, nil
}

func (r *memPurchasingRepo) GetDemand(_ context.Context, demandID id.ID) (*PartDemand, error) {
	if d, ok := r.demands[demandID]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, apperror.NewNotFound("part demand", demandID)
}

func (r *memPurchasingRepo) ListDemandsByLine(_ context.Context, lineID id.ID) ([]PartDemand, error) {
	var out []PartDemand
	for _, d := range r.demands {
		if d.PurchaseOrderLineID != nil && *d.PurchaseOrderLineID == lineID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r *memPurchasingRepo) UpdateDemandStatus(_ context.Context, demandID id.ID, s status.DemandStatus) error {
	d, ok := r.demands[demandID]
	if !ok {
		return apperror.NewNotFound("part demand", demandID)
	}
	d.Status = s
	return nil
}

func (r *memPurchasingRepo) GetOrderStatus(_ context.Context, orderID id.ID) (status.OrderStatus, error) {
	if s, ok := r.orders[orderID]; ok {
		return s, nil
	}
	return "", apperror.NewNotFound("purchase order", orderID)
}

func (r *memPurchasingRepo) UpdateOrderStatus(_ context.Context, orderID id.ID, s status.OrderStatus) error {
	if _, ok := r.orders[orderID]; !ok {
		return apperror.NewNotFound("purchase order", orderID)
	}
	r.orders[orderID] = s
	return nil
}

// stubReceipts answers HasReceiptForLine from a fixed set.
type stubReceipts struct {
	lines map[id.ID]bool
}

func (s *stubReceipts) HasReceiptForLine(_ context.Context, lineID id.ID) (bool, error) {
	return s.lines[lineID], nil
}

type propagatorFixture struct {
	prop     *Propagator
	repo     *memPurchasingRepo
	receipts *stubReceipts
}

func newPropagatorFixture() *propagatorFixture {
	repo := newMemPurchasingRepo()
	receipts := &stubReceipts{lines: make(map[id.ID]bool)}
	return &propagatorFixture{
		prop:     NewPropagator(repo, receipts, passthroughTx{}),
		repo:     repo,
		receipts: receipts,
	}
}

func (f *propagatorFixture) addLine(orderID id.ID, ordered, accepted, rejected float64, s status.LineStatus) id.ID {
	line := &PurchaseOrderLine{
		ID:               id.New(),
		PurchaseOrderID:  orderID,
		PartID:           id.New(),
		QuantityOrdered:  types.NewQuantityFromFloat64(ordered),
		QuantityAccepted: types.NewQuantityFromFloat64(accepted),
		QuantityRejected: types.NewQuantityFromFloat64(rejected),
		Status:           s,
	}
	f.repo.lines[line.ID] = line
	return line.ID
}

func (f *propagatorFixture) addDemand(lineID id.ID, s status.DemandStatus) id.ID {
	d := &PartDemand{
		ID:                  id.New(),
		PurchaseOrderLineID: &lineID,
		PartID:              id.New(),
		Quantity:            types.NewQuantityFromFloat64(1),
		Status:              s,
	}
	f.repo.demands[d.ID] = d
	return d.ID
}

func TestPropagateLineUpdate_Partial(t *testing.T) {
	ctx := context.Background()
	f := newPropagatorFixture()
	orderID := id.New()
	f.repo.orders[orderID] = status.OrderShipped

	lineID := f.addLine(orderID, 20, 5, 0, status.LineShipped)
	demandID := f.addDemand(lineID, status.DemandShipped)
	f.receipts.lines[lineID] = true

	require.NoError(t, f.prop.PropagateLineUpdate(ctx, lineID))

	assert.Equal(t, status.LinePartial, f.repo.lines[lineID].Status)
	assert.Equal(t, status.DemandAtInventory, f.repo.demands[demandID].Status)
}

func TestPropagateLineUpdate_CompleteWithRejects(t *testing.T) {
	ctx := context.Background()
	f := newPropagatorFixture()
	orderID := id.New()
	f.repo.orders[orderID] = status.OrderShipped

	// 15 accepted + 5 rejected covers the 20 ordered.
	lineID := f.addLine(orderID, 20, 15, 5, status.LineShipped)
	demandID := f.addDemand(lineID, status.DemandShipped)
	f.receipts.lines[lineID] = true

	require.NoError(t, f.prop.PropagateLineUpdate(ctx, lineID))

	assert.Equal(t, status.LineComplete, f.repo.lines[lineID].Status)
	assert.Equal(t, status.DemandAtInventory, f.repo.demands[demandID].Status)
}

func TestPropagateLineUpdate_FullRejection(t *testing.T) {
	ctx := context.Background()
	f := newPropagatorFixture()
	orderID := id.New()
	f.repo.orders[orderID] = status.OrderShipped

	// Everything rejected: the line completes (the vendor delivered)
	// but no demand ever reaches inventory.
	lineID := f.addLine(orderID, 10, 0, 10, status.LineShipped)
	demandID := f.addDemand(lineID, status.DemandShipped)

	require.NoError(t, f.prop.PropagateLineUpdate(ctx, lineID))

	assert.Equal(t, status.LineComplete, f.repo.lines[lineID].Status)
	assert.Equal(t, status.DemandShipped, f.repo.demands[demandID].Status)
}

func TestPropagateLineUpdate_GatedOnReceipt(t *testing.T) {
	ctx := context.Background()
	f := newPropagatorFixture()
	orderID := id.New()
	f.repo.orders[orderID] = status.OrderShipped

	// Accepted quantity without a ledger receipt keeps the demand put.
	lineID := f.addLine(orderID, 10, 10, 0, status.LineShipped)
	demandID := f.addDemand(lineID, status.DemandShipped)
	f.receipts.lines[lineID] = false

	require.NoError(t, f.prop.PropagateLineUpdate(ctx, lineID))

	assert.Equal(t, status.LineComplete, f.repo.lines[lineID].Status)
	assert.Equal(t, status.DemandShipped, f.repo.demands[demandID].Status)
}

func TestPropagateLineUpdate_NothingReceived(t *testing.T) {
	ctx := context.Background()
	f := newPropagatorFixture()
	orderID := id.New()
	f.repo.orders[orderID] = status.OrderOrdered

	lineID := f.addLine(orderID, 10, 0, 0, status.LineOrdered)
	require.NoError(t, f.prop.PropagateLineUpdate(ctx, lineID))
	assert.Equal(t, status.LineOrdered, f.repo.lines[lineID].Status)
}

func TestPropagateLineUpdate_NeverRegresses(t *testing.T) {
	ctx := context.Background()
	f := newPropagatorFixture()
	orderID := id.New()
	f.repo.orders[orderID] = status.OrderShipped

	// A line already Complete stays Complete even if totals would only
	// justify Partial.
	lineID := f.addLine(orderID, 20, 5, 0, status.LineComplete)
	require.NoError(t, f.prop.PropagateLineUpdate(ctx, lineID))
	assert.Equal(t, status.LineComplete, f.repo.lines[lineID].Status)
}

func TestMarkDemandIssued(t *testing.T) {
	ctx := context.Background()
	f := newPropagatorFixture()
	lineID := id.New()

	demandID := f.addDemand(lineID, status.DemandAtInventory)
	require.NoError(t, f.prop.MarkDemandIssued(ctx, demandID))
	assert.Equal(t, status.DemandIssued, f.repo.demands[demandID].Status)

	// Idempotent: advancing an Issued demand again changes nothing.
	require.NoError(t, f.prop.MarkDemandIssued(ctx, demandID))
	assert.Equal(t, status.DemandIssued, f.repo.demands[demandID].Status)
}

func TestMarkDemandIssued_SkipsEarlyAndTerminal(t *testing.T) {
	ctx := context.Background()
	f := newPropagatorFixture()
	lineID := id.New()

	// Issuing implies the stock arrived, so even a Shipped demand
	// advances to Issued.
	shipped := f.addDemand(lineID, status.DemandShipped)
	require.NoError(t, f.prop.MarkDemandIssued(ctx, shipped))
	assert.Equal(t, status.DemandIssued, f.repo.demands[shipped].Status)

	// Installed and Cancelled demands never move.
	installed := f.addDemand(lineID, status.DemandInstalled)
	require.NoError(t, f.prop.MarkDemandIssued(ctx, installed))
	assert.Equal(t, status.DemandInstalled, f.repo.demands[installed].Status)

	cancelled := f.addDemand(lineID, status.DemandCancelled)
	require.NoError(t, f.prop.MarkDemandIssued(ctx, cancelled))
	assert.Equal(t, status.DemandCancelled, f.repo.demands[cancelled].Status)

	// An unknown demand is corruption, not a no-op.
	require.Error(t, f.prop.MarkDemandIssued(ctx, id.New()))
}

func TestPropagateOrderStatus_Cascade(t *testing.T) {
	ctx := context.Background()
	f := newPropagatorFixture()
	orderID := id.New()
	f.repo.orders[orderID] = status.OrderDraft

	lineID := f.addLine(orderID, 10, 0, 0, status.LinePending)
	demandID := f.addDemand(lineID, status.DemandPending)

	require.NoError(t, f.prop.PropagateOrderStatus(ctx, orderID, status.OrderOrdered))
	assert.Equal(t, status.OrderOrdered, f.repo.orders[orderID])
	assert.Equal(t, status.LineOrdered, f.repo.lines[lineID].Status)
	assert.Equal(t, status.DemandOrdered, f.repo.demands[demandID].Status)

	require.NoError(t, f.prop.PropagateOrderStatus(ctx, orderID, status.OrderShipped))
	assert.Equal(t, status.OrderShipped, f.repo.orders[orderID])
	assert.Equal(t, status.LineShipped, f.repo.lines[lineID].Status)
	assert.Equal(t, status.DemandShipped, f.repo.demands[demandID].Status)

	// Proposing an earlier status later is a silent no-op.
	require.NoError(t, f.prop.PropagateOrderStatus(ctx, orderID, status.OrderOrdered))
	assert.Equal(t, status.OrderShipped, f.repo.orders[orderID])
}

func TestPropagateOrderStatus_ArrivedRequiresSettledLines(t *testing.T) {
	ctx := context.Background()
	f := newPropagatorFixture()
	orderID := id.New()
	f.repo.orders[orderID] = status.OrderShipped

	openLine := f.addLine(orderID, 10, 5, 0, status.LinePartial)
	f.addLine(orderID, 5, 5, 0, status.LineComplete)

	// One line still open: the order stays Shipped.
	require.NoError(t, f.prop.PropagateOrderStatus(ctx, orderID, status.OrderArrived))
	assert.Equal(t, status.OrderShipped, f.repo.orders[orderID])

	f.repo.lines[openLine].Status = status.LineComplete
	require.NoError(t, f.prop.PropagateOrderStatus(ctx, orderID, status.OrderArrived))
	assert.Equal(t, status.OrderArrived, f.repo.orders[orderID])
}

func TestPropagateOrderStatus_Cancel(t *testing.T) {
	ctx := context.Background()
	f := newPropagatorFixture()
	orderID := id.New()
	f.repo.orders[orderID] = status.OrderShipped

	openLine := f.addLine(orderID, 10, 0, 0, status.LineShipped)
	doneLine := f.addLine(orderID, 5, 5, 0, status.LineComplete)

	openDemand := f.addDemand(openLine, status.DemandShipped)
	arrivedDemand := f.addDemand(doneLine, status.DemandAtInventory)
	issuedDemand := f.addDemand(doneLine, status.DemandIssued)

	require.NoError(t, f.prop.PropagateOrderStatus(ctx, orderID, status.OrderCancelled))

	assert.Equal(t, status.OrderCancelled, f.repo.orders[orderID])
	assert.Equal(t, status.LineCancelled, f.repo.lines[openLine].Status)
	// Completed lines keep their history.
	assert.Equal(t, status.LineComplete, f.repo.lines[doneLine].Status)
	assert.Equal(t, status.DemandCancelled, f.repo.demands[openDemand].Status)
	// Stock already in the building stays tracked.
	assert.Equal(t, status.DemandAtInventory, f.repo.demands[arrivedDemand].Status)
	assert.Equal(t, status.DemandIssued, f.repo.demands[issuedDemand].Status)
}

func TestPropagateOrderStatus_CancelArrivedOrderIgnored(t *testing.T) {
	ctx := context.Background()
	f := newPropagatorFixture()
	orderID := id.New()
	f.repo.orders[orderID] = status.OrderArrived

	require.NoError(t, f.prop.PropagateOrderStatus(ctx, orderID, status.OrderCancelled))
	assert.Equal(t, status.OrderArrived, f.repo.orders[orderID])
}
