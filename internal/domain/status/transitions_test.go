package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdvanceDemand(t *testing.T) {
	tests := []struct {
		name     string
		current  DemandStatus
		proposed DemandStatus
		want     DemandStatus
		changed  bool
	}{
		{"planned to ordered", DemandPlanned, DemandOrdered, DemandOrdered, true},
		{"pending to ordered", DemandPending, DemandOrdered, DemandOrdered, true},
		{"ordered to at inventory skips shipped", DemandOrdered, DemandAtInventory, DemandAtInventory, true},
		{"at inventory to issued", DemandAtInventory, DemandIssued, DemandIssued, true},
		{"issued to installed", DemandIssued, DemandInstalled, DemandInstalled, true},
		{"no regress issued to ordered", DemandIssued, DemandOrdered, DemandIssued, false},
		{"no regress at inventory to shipped", DemandAtInventory, DemandShipped, DemandAtInventory, false},
		{"same status is a no-op", DemandOrdered, DemandOrdered, DemandOrdered, false},
		{"planned to pending is a no-op", DemandPlanned, DemandPending, DemandPlanned, false},
		{"cancelled never moves", DemandCancelled, DemandOrdered, DemandCancelled, false},
		{"unknown proposal ignored", DemandOrdered, DemandStatus("Lost"), DemandOrdered, false},
		{"unknown current ignored", DemandStatus("Lost"), DemandOrdered, DemandStatus("Lost"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := AdvanceDemand(tt.current, tt.proposed)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)
		})
	}
}

func TestAdvanceLine(t *testing.T) {
	tests := []struct {
		name     string
		current  LineStatus
		proposed LineStatus
		want     LineStatus
		changed  bool
	}{
		{"pending to ordered", LinePending, LineOrdered, LineOrdered, true},
		{"ordered to shipped", LineOrdered, LineShipped, LineShipped, true},
		{"shipped to partial", LineShipped, LinePartial, LinePartial, true},
		{"partial to complete", LinePartial, LineComplete, LineComplete, true},
		{"ordered straight to complete", LineOrdered, LineComplete, LineComplete, true},
		{"no regress complete to partial", LineComplete, LinePartial, LineComplete, false},
		{"cancelled never moves", LineCancelled, LineOrdered, LineCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := AdvanceLine(tt.current, tt.proposed)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)
		})
	}
}

func TestAdvanceArrival(t *testing.T) {
	tests := []struct {
		name     string
		current  ArrivalStatus
		proposed ArrivalStatus
		want     ArrivalStatus
		changed  bool
	}{
		{"pending to arrived", ArrivalPending, ArrivalArrived, ArrivalArrived, true},
		{"arrived to accepted", ArrivalArrived, ArrivalAccepted, ArrivalAccepted, true},
		{"arrived to rejected", ArrivalArrived, ArrivalRejected, ArrivalRejected, true},
		{"pending straight to accepted", ArrivalPending, ArrivalAccepted, ArrivalAccepted, true},
		{"accepted is terminal", ArrivalAccepted, ArrivalRejected, ArrivalAccepted, false},
		{"rejected is terminal", ArrivalRejected, ArrivalAccepted, ArrivalRejected, false},
		{"no regress arrived to pending", ArrivalArrived, ArrivalPending, ArrivalArrived, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := AdvanceArrival(tt.current, tt.proposed)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)
		})
	}
}

func TestIsInspectable(t *testing.T) {
	assert.True(t, IsInspectable(ArrivalPending))
	assert.True(t, IsInspectable(ArrivalArrived))
	assert.False(t, IsInspectable(ArrivalAccepted))
	assert.False(t, IsInspectable(ArrivalRejected))
}
