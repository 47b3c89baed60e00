package arrivals

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocktrace/internal/core/apperror"
	"stocktrace/internal/core/id"
	"stocktrace/internal/core/types"
	"stocktrace/internal/domain/ledger"
	"stocktrace/internal/domain/purchasing"
	"stocktrace/internal/domain/status"
)

type passthroughTx struct{}

func (passthroughTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// memArrivalRepo is an in-memory arrivals Repository.
type memArrivalRepo struct {
	arrivals map[id.ID]*PartArrival
}

func newMemArrivalRepo() *memArrivalRepo {
	return &memArrivalRepo{arrivals: make(map[id.ID]*PartArrival)}
}

func (r *memArrivalRepo) GetForUpdate(_ context.Context, arrivalID id.ID) (*PartArrival, error) {
	if a, ok := r.arrivals[arrivalID]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, apperror.NewNotFound("part arrival", arrivalID)
}

func (r *memArrivalRepo) GetByID(ctx context.Context, arrivalID id.ID) (*PartArrival, error) {
	return r.GetForUpdate(ctx, arrivalID)
}

func (r *memArrivalRepo) Insert(_ context.Context, a *PartArrival) error {
	cp := *a
	r.arrivals[a.ID] = &cp
	return nil
}

func (r *memArrivalRepo) Update(_ context.Context, a *PartArrival) error {
	cp := *a
	r.arrivals[a.ID] = &cp
	return nil
}

func (r *memArrivalRepo) ListByPackage(_ context.Context, packageID id.ID) ([]PartArrival, error) {
	var out []PartArrival
	for _, a := range r.arrivals {
		if a.PackageID != nil && *a.PackageID == packageID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memArrivalRepo) ListByLine(_ context.Context, lineID id.ID) ([]PartArrival, error) {
	var out []PartArrival
	for _, a := range r.arrivals {
		if a.PurchaseOrderLineID != nil && *a.PurchaseOrderLineID == lineID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memArrivalRepo) ListPendingByLocation(_ context.Context, majorLocationID id.ID) ([]PartArrival, error) {
	var out []PartArrival
	for _, a := range r.arrivals {
		if a.MajorLocationID == majorLocationID && status.IsInspectable(a.Status) {
			out = append(out, *a)
		}
	}
	return out, nil
}

// memLineRepo is the slice of purchasing persistence the inspector needs.
type memLineRepo struct {
	lines   map[id.ID]*purchasing.PurchaseOrderLine
	demands map[id.ID]*purchasing.PartDemand
	orders  map[id.ID]status.OrderStatus
}

func newMemLineRepo() *memLineRepo {
	return &memLineRepo{
		lines:   make(map[id.ID]*purchasing.PurchaseOrderLine),
		demands: make(map[id.ID]*purchasing.PartDemand),
		orders:  make(map[id.ID]status.OrderStatus),
	}
}

func (r *memLineRepo) GetLineForUpdate(_ context.Context, lineID id.ID) (*purchasing.PurchaseOrderLine, error) {
	if line, ok := r.lines[lineID]; ok {
		cp := *line
		return &cp, nil
	}
	return nil, apperror.NewNotFound("purchase order line", lineID)
}

func (r *memLineRepo) UpdateLine(_ context.Context, line *purchasing.PurchaseOrderLine) error {
	cp := *line
	r.lines[line.ID] = &cp
	return nil
}

func (r *memLineRepo) ListLinesByOrder(_ context.Context, orderID id.ID) ([]purchasing.PurchaseOrderLine, error) {
	var out []purchasing.PurchaseOrderLine
	for _, line := range r.lines {
		if line.PurchaseOrderID == orderID {
			out = append(out, *line)
		}
	}
	return out, nil
}

func (r *memLineRepo) GetDemand(_ context.Context, demandID id.ID) (*purchasing.PartDemand, error) {
	if d, ok := r.demands[demandID]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, apperror.NewNotFound("part demand", demandID)
}

func (r *memLineRepo) ListDemandsByLine(_ context.Context, lineID id.ID) ([]purchasing.PartDemand, error) {
	var out []purchasing.PartDemand
	for _, d := range r.demands {
		if d.PurchaseOrderLineID != nil && *d.PurchaseOrderLineID == lineID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r *memLineRepo) UpdateDemandStatus(_ context.Context, demandID id.ID, s status.DemandStatus) error {
	d, ok := r.demands[demandID]
	if !ok {
		return apperror.NewNotFound("part demand", demandID)
	}
	d.Status = s
	return nil
}

func (r *memLineRepo) GetOrderStatus(_ context.Context, orderID id.ID) (status.OrderStatus, error) {
	if s, ok := r.orders[orderID]; ok {
		return s, nil
	}
	return "", apperror.NewNotFound("purchase order", orderID)
}

func (r *memLineRepo) UpdateOrderStatus(_ context.Context, orderID id.ID, s status.OrderStatus) error {
	if _, ok := r.orders[orderID]; !ok {
		return apperror.NewNotFound("purchase order", orderID)
	}
	r.orders[orderID] = s
	return nil
}

// fakeLedger records receipt inputs instead of writing a real ledger.
type fakeLedger struct {
	receipts []ledger.ReceiptInput
}

func (l *fakeLedger) RecordReceipt(_ context.Context, in ledger.ReceiptInput) (*ledger.MovementRecord, error) {
	l.receipts = append(l.receipts, in)
	return &ledger.MovementRecord{
		ID:               id.New(),
		PartID:           in.PartID,
		Kind:             ledger.KindReceipt,
		QuantityDelta:    in.Quantity,
		UnitCost:         in.UnitCost,
		InitialArrivalID: in.ArrivalID,
		MovementDate:     time.Now().UTC(),
	}, nil
}

// ledgerBackedReceipts answers HasReceiptForLine by joining the fake
// ledger's receipts with the arrival rows, the way the SQL checker does.
type ledgerBackedReceipts struct {
	led  *fakeLedger
	repo *memArrivalRepo
}

func (c *ledgerBackedReceipts) HasReceiptForLine(_ context.Context, lineID id.ID) (bool, error) {
	for _, in := range c.led.receipts {
		a, ok := c.repo.arrivals[in.ArrivalID]
		if ok && a.PurchaseOrderLineID != nil && *a.PurchaseOrderLineID == lineID {
			return true, nil
		}
	}
	return false, nil
}

type inspectorFixture struct {
	insp  *Inspector
	repo  *memArrivalRepo
	lines *memLineRepo
	led   *fakeLedger
}

func newInspectorFixture() *inspectorFixture {
	repo := newMemArrivalRepo()
	lines := newMemLineRepo()
	led := &fakeLedger{}
	checker := &ledgerBackedReceipts{led: led, repo: repo}
	prop := purchasing.NewPropagator(lines, checker, passthroughTx{})
	return &inspectorFixture{
		insp:  NewInspector(repo, lines, led, prop, passthroughTx{}),
		repo:  repo,
		lines: lines,
		led:   led,
	}
}

var (
	testMajorID     = id.MustParse("00000000-0000-0000-0000-0000000000a1")
	testStoreroomID = id.MustParse("00000000-0000-0000-0000-0000000000b1")
)

func qty(f float64) types.Quantity { return types.NewQuantityFromFloat64(f) }

func moneyPtr(s string) *types.Money {
	m := types.MustMoney(s)
	return &m
}

// seedArrival creates an order with one line, one demand, and one
// arrived delivery covering the full ordered quantity.
func (f *inspectorFixture) seedArrival(ordered float64) (*PartArrival, *purchasing.PurchaseOrderLine, id.ID) {
	orderID := id.New()
	f.lines.orders[orderID] = status.OrderShipped

	line := &purchasing.PurchaseOrderLine{
		ID:              id.New(),
		PurchaseOrderID: orderID,
		PartID:          id.New(),
		QuantityOrdered: qty(ordered),
		UnitCost:        moneyPtr("5"),
		Status:          status.LineShipped,
	}
	f.lines.lines[line.ID] = line

	demand := &purchasing.PartDemand{
		ID:                  id.New(),
		PurchaseOrderLineID: &line.ID,
		PartID:              line.PartID,
		Quantity:            qty(ordered),
		Status:              status.DemandShipped,
	}
	f.lines.demands[demand.ID] = demand

	arrival := &PartArrival{
		ID:                  id.New(),
		PurchaseOrderLineID: &line.ID,
		PartID:              line.PartID,
		MajorLocationID:     testMajorID,
		StoreroomID:         testStoreroomID,
		QuantityReceived:    qty(ordered),
		Status:              status.ArrivalArrived,
		CreatedAt:           time.Now().UTC(),
	}
	f.repo.arrivals[arrival.ID] = arrival

	return arrival, line, demand.ID
}

func TestRecordInspection_Split(t *testing.T) {
	ctx := context.Background()
	f := newInspectorFixture()
	arrival, line, demandID := f.seedArrival(20)

	res, err := f.insp.RecordInspection(ctx, InspectionInput{
		ArrivalID: arrival.ID,
		Accepted:  qty(15),
		Rejected:  qty(5),
		Condition: "5 units water damaged",
	})
	require.NoError(t, err)

	// The original row shrinks to the accepted portion.
	require.NotNil(t, res.Accepted)
	assert.Equal(t, arrival.ID, res.Accepted.ID)
	assert.Equal(t, qty(15), res.Accepted.QuantityReceived)
	assert.Equal(t, status.ArrivalAccepted, res.Accepted.Status)

	// The sibling carries the rejected remainder.
	require.NotNil(t, res.Rejected)
	assert.NotEqual(t, arrival.ID, res.Rejected.ID)
	assert.Equal(t, qty(5), res.Rejected.QuantityReceived)
	assert.Equal(t, status.ArrivalRejected, res.Rejected.Status)

	// The pair still sums to the original delivery.
	assert.Equal(t, qty(20), res.Accepted.QuantityReceived+res.Rejected.QuantityReceived)

	// Only the accepted portion reached the ledger.
	require.NotNil(t, res.Receipt)
	assert.Equal(t, qty(15), res.Receipt.QuantityDelta)
	require.Len(t, f.led.receipts, 1)
	assert.Equal(t, arrival.ID, f.led.receipts[0].ArrivalID)

	// Rejected units still count toward line fulfilment.
	got := f.lines.lines[line.ID]
	assert.Equal(t, qty(15), got.QuantityAccepted)
	assert.Equal(t, qty(5), got.QuantityRejected)
	assert.Equal(t, status.LineComplete, got.Status)
	assert.Equal(t, status.DemandAtInventory, f.lines.demands[demandID].Status)
}

func TestRecordInspection_AllAccepted(t *testing.T) {
	ctx := context.Background()
	f := newInspectorFixture()
	arrival, line, _ := f.seedArrival(10)

	res, err := f.insp.RecordInspection(ctx, InspectionInput{
		ArrivalID: arrival.ID,
		Accepted:  qty(10),
	})
	require.NoError(t, err)

	assert.Nil(t, res.Rejected, "no split when nothing was rejected")
	assert.Equal(t, status.ArrivalAccepted, res.Accepted.Status)
	assert.Equal(t, qty(10), res.Accepted.QuantityReceived)
	require.NotNil(t, res.Receipt)
	assert.Equal(t, status.LineComplete, f.lines.lines[line.ID].Status)
}

func TestRecordInspection_AllRejected(t *testing.T) {
	ctx := context.Background()
	f := newInspectorFixture()
	arrival, line, demandID := f.seedArrival(10)

	res, err := f.insp.RecordInspection(ctx, InspectionInput{
		ArrivalID: arrival.ID,
		Rejected:  qty(10),
		Condition: "crate crushed in transit",
	})
	require.NoError(t, err)

	assert.Equal(t, status.ArrivalRejected, res.Accepted.Status)
	assert.Nil(t, res.Rejected)
	assert.Nil(t, res.Receipt, "rejected stock never touches the ledger")
	assert.Empty(t, f.led.receipts)

	// The line completes (the vendor shipped everything) but the
	// demand never reaches inventory.
	got := f.lines.lines[line.ID]
	assert.Equal(t, qty(10), got.QuantityRejected)
	assert.Equal(t, status.LineComplete, got.Status)
	assert.Equal(t, status.DemandShipped, f.lines.demands[demandID].Status)
}

func TestRecordInspection_ConservationViolation(t *testing.T) {
	ctx := context.Background()
	f := newInspectorFixture()
	arrival, _, _ := f.seedArrival(20)

	_, err := f.insp.RecordInspection(ctx, InspectionInput{
		ArrivalID: arrival.ID,
		Accepted:  qty(10),
		Rejected:  qty(5),
	})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeConservation, appErr.Code)
	assert.Empty(t, f.led.receipts)

	// The arrival is untouched and can still be inspected properly.
	got := f.repo.arrivals[arrival.ID]
	assert.Equal(t, qty(20), got.QuantityReceived)
	assert.Equal(t, status.ArrivalArrived, got.Status)
}

func TestRecordInspection_AlreadyInspected(t *testing.T) {
	ctx := context.Background()
	f := newInspectorFixture()
	arrival, _, _ := f.seedArrival(10)

	_, err := f.insp.RecordInspection(ctx, InspectionInput{
		ArrivalID: arrival.ID, Accepted: qty(10),
	})
	require.NoError(t, err)

	_, err = f.insp.RecordInspection(ctx, InspectionInput{
		ArrivalID: arrival.ID, Accepted: qty(10),
	})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeAlreadyInspected, appErr.Code)
	assert.Len(t, f.led.receipts, 1, "no second receipt")
}

func TestRecordInspection_NegativeQuantities(t *testing.T) {
	f := newInspectorFixture()
	_, err := f.insp.RecordInspection(context.Background(), InspectionInput{
		ArrivalID: id.New(), Accepted: qty(-1), Rejected: qty(2),
	})
	require.Error(t, err)
}

func TestRecordInspection_CostFallsBackToLine(t *testing.T) {
	ctx := context.Background()
	f := newInspectorFixture()
	arrival, _, _ := f.seedArrival(10)
	// The arrival itself has no cost; the line's unit cost is used.
	arrival.UnitCost = nil
	f.repo.arrivals[arrival.ID] = arrival

	_, err := f.insp.RecordInspection(ctx, InspectionInput{
		ArrivalID: arrival.ID, Accepted: qty(10),
	})
	require.NoError(t, err)
	require.Len(t, f.led.receipts, 1)
	require.NotNil(t, f.led.receipts[0].UnitCost)
	assert.True(t, f.led.receipts[0].UnitCost.Equal(types.MustMoney("5")))
}

func TestReceiveUnlinked(t *testing.T) {
	ctx := context.Background()
	f := newInspectorFixture()
	partID := id.New()

	res, err := f.insp.ReceiveUnlinked(ctx, UnlinkedReceiptInput{
		PartID:          partID,
		MajorLocationID: testMajorID,
		StoreroomID:     testStoreroomID,
		Quantity:        qty(3),
		UnitCost:        moneyPtr("12.50"),
	})
	require.NoError(t, err)

	assert.Equal(t, status.ArrivalAccepted, res.Accepted.Status)
	assert.Nil(t, res.Accepted.PurchaseOrderLineID)
	require.NotNil(t, res.Receipt)
	assert.Equal(t, qty(3), res.Receipt.QuantityDelta)
	assert.Equal(t, res.Accepted.ID, res.Receipt.InitialArrivalID)

	_, err = f.insp.ReceiveUnlinked(ctx, UnlinkedReceiptInput{
		PartID: partID, MajorLocationID: testMajorID, Quantity: qty(0),
	})
	require.Error(t, err)
}

func TestMarkArrived(t *testing.T) {
	ctx := context.Background()
	f := newInspectorFixture()
	arrival, _, _ := f.seedArrival(5)
	arrival.Status = status.ArrivalPending
	f.repo.arrivals[arrival.ID] = arrival

	got, err := f.insp.MarkArrived(ctx, arrival.ID)
	require.NoError(t, err)
	assert.Equal(t, status.ArrivalArrived, got.Status)

	// Marking again is a no-op, not an error.
	got, err = f.insp.MarkArrived(ctx, arrival.ID)
	require.NoError(t, err)
	assert.Equal(t, status.ArrivalArrived, got.Status)
}

func TestPendingInspections(t *testing.T) {
	ctx := context.Background()
	f := newInspectorFixture()
	arrival, _, _ := f.seedArrival(5)

	pending, err := f.insp.PendingInspections(ctx, testMajorID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, arrival.ID, pending[0].ID)

	_, err = f.insp.RecordInspection(ctx, InspectionInput{
		ArrivalID: arrival.ID, Accepted: qty(5),
	})
	require.NoError(t, err)

	pending, err = f.insp.PendingInspections(ctx, testMajorID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
