package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocktrace/internal/core/apperror"
	"stocktrace/internal/core/id"
	"stocktrace/internal/core/types"
)

// memRepo is an in-memory Repository for aggregator tests.
type memRepo struct {
	rows      map[Key]*ActiveRecord
	summaries map[id.ID]SummaryRecord
}

func newMemRepo() *memRepo {
	return &memRepo{
		rows:      make(map[Key]*ActiveRecord),
		summaries: make(map[id.ID]SummaryRecord),
	}
}

func (r *memRepo) Get(_ context.Context, key Key) (*ActiveRecord, error) {
	if rec, ok := r.rows[key]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, nil
}

func (r *memRepo) GetForUpdate(ctx context.Context, key Key) (*ActiveRecord, error) {
	return r.Get(ctx, key)
}

func (r *memRepo) Insert(_ context.Context, rec *ActiveRecord) error {
	cp := *rec
	r.rows[rec.Key()] = &cp
	return nil
}

func (r *memRepo) Update(_ context.Context, rec *ActiveRecord) error {
	cp := *rec
	r.rows[rec.Key()] = &cp
	return nil
}

func (r *memRepo) Delete(_ context.Context, recID id.ID) error {
	for key, rec := range r.rows {
		if rec.ID == recID {
			delete(r.rows, key)
			return nil
		}
	}
	return apperror.NewNotFound("active inventory", recID)
}

func (r *memRepo) ListByPart(_ context.Context, partID id.ID) ([]ActiveRecord, error) {
	var out []ActiveRecord
	for _, rec := range r.rows {
		if rec.PartID == partID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *memRepo) ListByStoreroom(_ context.Context, storeroomID id.ID) ([]ActiveRecord, error) {
	var out []ActiveRecord
	for _, rec := range r.rows {
		if rec.StoreroomID == storeroomID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *memRepo) GetSummary(_ context.Context, partID id.ID) (*SummaryRecord, error) {
	if s, ok := r.summaries[partID]; ok {
		return &s, nil
	}
	return nil, nil
}

func (r *memRepo) ListSummaries(_ context.Context, partIDs []id.ID) ([]SummaryRecord, error) {
	var out []SummaryRecord
	if len(partIDs) == 0 {
		for _, s := range r.summaries {
			out = append(out, s)
		}
		return out, nil
	}
	for _, partID := range partIDs {
		if s, ok := r.summaries[partID]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memRepo) DeriveSummaries(_ context.Context, partIDs []id.ID) ([]SummaryRecord, error) {
	wanted := make(map[id.ID]bool, len(partIDs))
	for _, partID := range partIDs {
		wanted[partID] = true
	}
	byPart := make(map[id.ID]*SummaryRecord)
	costWeight := make(map[id.ID]types.Money)
	for _, rec := range r.rows {
		if len(partIDs) > 0 && !wanted[rec.PartID] {
			continue
		}
		s, ok := byPart[rec.PartID]
		if !ok {
			s = &SummaryRecord{PartID: rec.PartID}
			byPart[rec.PartID] = s
		}
		s.TotalOnHand += rec.QuantityOnHand
		s.TotalAllocated += rec.QuantityAllocated
		s.TotalAvailable += rec.Available()
		s.PositionCount++
		costWeight[rec.PartID] = costWeight[rec.PartID].Add(rec.QuantityOnHand.Decimal().Mul(rec.UnitCostAvg))
		if rec.LastMovementAt.After(s.LastMovementAt) {
			s.LastMovementAt = rec.LastMovementAt
		}
	}
	var out []SummaryRecord
	for _, s := range byPart {
		if !s.TotalOnHand.IsZero() {
			s.UnitCostAvg = costWeight[s.PartID].Div(s.TotalOnHand.Decimal()).Round(4)
		}
		out = append(out, *s)
	}
	return out, nil
}

func (r *memRepo) ReplaceSummaries(_ context.Context, partIDs []id.ID, rows []SummaryRecord) error {
	if len(partIDs) == 0 {
		r.summaries = make(map[id.ID]SummaryRecord)
	} else {
		for _, partID := range partIDs {
			delete(r.summaries, partID)
		}
	}
	for _, s := range rows {
		r.summaries[s.PartID] = s
	}
	return nil
}

func testKey(partID id.ID) Key {
	return Key{
		PartID:          partID,
		MajorLocationID: id.MustParse("00000000-0000-0000-0000-00000000000a"),
		StoreroomID:     id.MustParse("00000000-0000-0000-0000-00000000000b"),
	}
}

func qty(f float64) types.Quantity { return types.NewQuantityFromFloat64(f) }

func moneyPtr(s string) *types.Money {
	m := types.MustMoney(s)
	return &m
}

func TestApply_WeightedAverage(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	agg := NewAggregator(repo, DefaultConfig())
	partID := id.New()
	key := testKey(partID)

	// 10 units at $5.00
	rec, err := agg.Apply(ctx, ApplyInput{Key: key, Delta: qty(10), UnitCost: moneyPtr("5.00")})
	require.NoError(t, err)
	assert.Equal(t, qty(10), rec.QuantityOnHand)
	assert.True(t, rec.UnitCostAvg.Equal(types.MustMoney("5")), "got %s", rec.UnitCostAvg)

	// 10 more at $7.00 -> average $6.00
	rec, err = agg.Apply(ctx, ApplyInput{Key: key, Delta: qty(10), UnitCost: moneyPtr("7.00")})
	require.NoError(t, err)
	assert.Equal(t, qty(20), rec.QuantityOnHand)
	assert.True(t, rec.UnitCostAvg.Equal(types.MustMoney("6")), "got %s", rec.UnitCostAvg)

	// Issuing 5 leaves the average untouched.
	rec, err = agg.Apply(ctx, ApplyInput{Key: key, Delta: qty(-5)})
	require.NoError(t, err)
	assert.Equal(t, qty(15), rec.QuantityOnHand)
	assert.True(t, rec.UnitCostAvg.Equal(types.MustMoney("6")), "got %s", rec.UnitCostAvg)
}

func TestApply_InboundWithoutCostKeepsAverage(t *testing.T) {
	ctx := context.Background()
	agg := NewAggregator(newMemRepo(), DefaultConfig())
	key := testKey(id.New())

	rec, err := agg.Apply(ctx, ApplyInput{Key: key, Delta: qty(4), UnitCost: moneyPtr("10")})
	require.NoError(t, err)

	rec, err = agg.Apply(ctx, ApplyInput{Key: key, Delta: qty(4)})
	require.NoError(t, err)
	assert.Equal(t, qty(8), rec.QuantityOnHand)
	assert.True(t, rec.UnitCostAvg.Equal(types.MustMoney("10")))
}

func TestApply_InsufficientInventory(t *testing.T) {
	ctx := context.Background()
	agg := NewAggregator(newMemRepo(), DefaultConfig())
	key := testKey(id.New())

	// Issue against a position that never held the part.
	_, err := agg.Apply(ctx, ApplyInput{Key: key, Delta: qty(-1)})
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientInventory(err))

	// Issue past what is on hand.
	_, err = agg.Apply(ctx, ApplyInput{Key: key, Delta: qty(3), UnitCost: moneyPtr("1")})
	require.NoError(t, err)
	_, err = agg.Apply(ctx, ApplyInput{Key: key, Delta: qty(-4)})
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientInventory(err))
}

func TestApply_ZeroDeltaRejected(t *testing.T) {
	agg := NewAggregator(newMemRepo(), DefaultConfig())
	_, err := agg.Apply(context.Background(), ApplyInput{Key: testKey(id.New()), Delta: 0})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestApply_DeleteEmptyRows(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	agg := NewAggregator(repo, Config{DeleteEmptyRows: true})
	key := testKey(id.New())

	_, err := agg.Apply(ctx, ApplyInput{Key: key, Delta: qty(5), UnitCost: moneyPtr("2")})
	require.NoError(t, err)
	_, err = agg.Apply(ctx, ApplyInput{Key: key, Delta: qty(-5)})
	require.NoError(t, err)

	rec, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, rec, "emptied row should be deleted")
}

func TestApply_KeepEmptyRowsWhenDisabled(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	agg := NewAggregator(repo, Config{DeleteEmptyRows: false})
	key := testKey(id.New())

	_, err := agg.Apply(ctx, ApplyInput{Key: key, Delta: qty(5), UnitCost: moneyPtr("2")})
	require.NoError(t, err)
	_, err = agg.Apply(ctx, ApplyInput{Key: key, Delta: qty(-5)})
	require.NoError(t, err)

	rec, err := repo.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, rec, "zero row should survive")
	assert.True(t, rec.QuantityOnHand.IsZero())
	assert.True(t, rec.UnitCostAvg.Equal(types.MustMoney("2")), "cost history stays visible")
}

func TestAllocate(t *testing.T) {
	ctx := context.Background()
	agg := NewAggregator(newMemRepo(), DefaultConfig())
	key := testKey(id.New())

	_, err := agg.Apply(ctx, ApplyInput{Key: key, Delta: qty(10), UnitCost: moneyPtr("1")})
	require.NoError(t, err)

	rec, err := agg.Allocate(ctx, key, qty(6))
	require.NoError(t, err)
	assert.Equal(t, qty(6), rec.QuantityAllocated)
	assert.Equal(t, qty(4), rec.Available())

	// Reserving past availability fails.
	_, err = agg.Allocate(ctx, key, qty(5))
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientInventory(err))

	// Availability checks see through the reservation.
	err = agg.CheckAvailability(ctx, key, qty(4))
	assert.NoError(t, err)
	err = agg.CheckAvailability(ctx, key, qty(5))
	assert.True(t, apperror.IsInsufficientInventory(err))
}

func TestDeallocate_FloorsAtZero(t *testing.T) {
	ctx := context.Background()
	agg := NewAggregator(newMemRepo(), DefaultConfig())
	key := testKey(id.New())

	_, err := agg.Apply(ctx, ApplyInput{Key: key, Delta: qty(10), UnitCost: moneyPtr("1")})
	require.NoError(t, err)
	_, err = agg.Allocate(ctx, key, qty(3))
	require.NoError(t, err)

	rec, err := agg.Deallocate(ctx, key, qty(100))
	require.NoError(t, err)
	assert.True(t, rec.QuantityAllocated.IsZero())
}

func TestRefreshSummary_Idempotent(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	agg := NewAggregator(repo, DefaultConfig())
	partID := id.New()

	keyA := testKey(partID)
	keyB := keyA
	keyB.BinID = id.New()

	_, err := agg.Apply(ctx, ApplyInput{Key: keyA, Delta: qty(7), UnitCost: moneyPtr("3"), MovementAt: time.Now()})
	require.NoError(t, err)
	_, err = agg.Apply(ctx, ApplyInput{Key: keyB, Delta: qty(5), UnitCost: moneyPtr("3"), MovementAt: time.Now()})
	require.NoError(t, err)

	first, err := repo.GetSummary(ctx, partID)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, qty(12), first.TotalOnHand)
	assert.Equal(t, 2, first.PositionCount)

	// Rebuilding without any new movements changes nothing.
	require.NoError(t, agg.RefreshSummary(ctx, []id.ID{partID}))
	second, err := repo.GetSummary(ctx, partID)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.TotalOnHand, second.TotalOnHand)
	assert.Equal(t, first.TotalAllocated, second.TotalAllocated)
	assert.Equal(t, first.PositionCount, second.PositionCount)
}

func TestRefreshSummary_WeightedCost(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	agg := NewAggregator(repo, DefaultConfig())
	partID := id.New()

	keyA := testKey(partID)
	keyB := keyA
	keyB.BinID = id.New()

	// 10 units at $5 in one bin, 30 at $9 in another.
	_, err := agg.Apply(ctx, ApplyInput{Key: keyA, Delta: qty(10), UnitCost: moneyPtr("5")})
	require.NoError(t, err)
	_, err = agg.Apply(ctx, ApplyInput{Key: keyB, Delta: qty(30), UnitCost: moneyPtr("9")})
	require.NoError(t, err)

	s, err := repo.GetSummary(ctx, partID)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, qty(40), s.TotalOnHand)
	// (10*5 + 30*9) / 40 = $8, weighted by on-hand quantity.
	assert.True(t, s.UnitCostAvg.Equal(types.MustMoney("8")), "got %s", s.UnitCostAvg)

	// Issuing from the cheap bin shifts the part average toward $9.
	_, err = agg.Apply(ctx, ApplyInput{Key: keyA, Delta: qty(-10)})
	require.NoError(t, err)
	s, err = repo.GetSummary(ctx, partID)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.True(t, s.UnitCostAvg.Equal(types.MustMoney("9")), "got %s", s.UnitCostAvg)
}

func TestVerifySummary_DetectsCostDivergence(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	agg := NewAggregator(repo, DefaultConfig())
	partID := id.New()
	key := testKey(partID)

	_, err := agg.Apply(ctx, ApplyInput{Key: key, Delta: qty(6), UnitCost: moneyPtr("4")})
	require.NoError(t, err)
	require.NoError(t, agg.VerifySummary(ctx, []id.ID{partID}))

	s := repo.summaries[partID]
	s.UnitCostAvg = types.MustMoney("1.50")
	repo.summaries[partID] = s

	err = agg.VerifySummary(ctx, []id.ID{partID})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeIntegrity, appErr.Code)
}

func TestVerifySummary_DetectsDivergence(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	agg := NewAggregator(repo, DefaultConfig())
	partID := id.New()
	key := testKey(partID)

	_, err := agg.Apply(ctx, ApplyInput{Key: key, Delta: qty(9), UnitCost: moneyPtr("2")})
	require.NoError(t, err)
	require.NoError(t, agg.VerifySummary(ctx, []id.ID{partID}))

	// Tamper with the stored summary.
	s := repo.summaries[partID]
	s.TotalOnHand = qty(1)
	repo.summaries[partID] = s

	err = agg.VerifySummary(ctx, []id.ID{partID})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeIntegrity, appErr.Code)
}
