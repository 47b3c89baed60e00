// Package status defines the lifecycle states shared by purchase order
// lines, part arrivals, and part demands, and the forward-only rules
// for advancing between them.
//
// Statuses follow the ledger: a state is only proposed after the
// movement that justifies it is committed, and a proposal that would
// move an entity backwards is silently ignored rather than rejected.
package status

// DemandStatus is the lifecycle state of a part demand.
type DemandStatus string

const (
	DemandPlanned     DemandStatus = "Planned"
	DemandPending     DemandStatus = "Pending"
	DemandOrdered     DemandStatus = "Ordered"
	DemandShipped     DemandStatus = "Shipped"
	DemandAtInventory DemandStatus = "At Inventory"
	DemandIssued      DemandStatus = "Issued"
	DemandInstalled   DemandStatus = "Installed"
	DemandCancelled   DemandStatus = "Cancelled"
)

// LineStatus is the lifecycle state of a purchase order line.
type LineStatus string

const (
	LinePending   LineStatus = "Pending"
	LineOrdered   LineStatus = "Ordered"
	LineShipped   LineStatus = "Shipped"
	LinePartial   LineStatus = "Partial"
	LineComplete  LineStatus = "Complete"
	LineCancelled LineStatus = "Cancelled"
)

// OrderStatus is the lifecycle state of a purchase order header.
// Only the slice that drives line/demand cascades is modelled here.
type OrderStatus string

const (
	OrderDraft     OrderStatus = "Draft"
	OrderOrdered   OrderStatus = "Ordered"
	OrderShipped   OrderStatus = "Shipped"
	OrderArrived   OrderStatus = "Arrived"
	OrderCancelled OrderStatus = "Cancelled"
)

// ArrivalStatus is the lifecycle state of a part arrival.
type ArrivalStatus string

const (
	ArrivalPending  ArrivalStatus = "Pending"
	ArrivalArrived  ArrivalStatus = "Arrived"
	ArrivalAccepted ArrivalStatus = "Accepted"
	ArrivalRejected ArrivalStatus = "Rejected"
)

// Rank tables encode the forward-only ordering per entity.
// Planned and Pending share a rank: either is a valid starting state
// for a demand, and neither outranks the other.
var demandRank = map[DemandStatus]int{
	DemandPlanned:     0,
	DemandPending:     0,
	DemandOrdered:     1,
	DemandShipped:     2,
	DemandAtInventory: 3,
	DemandIssued:      4,
	DemandInstalled:   5,
}

var lineRank = map[LineStatus]int{
	LinePending:  0,
	LineOrdered:  1,
	LineShipped:  2,
	LinePartial:  3,
	LineComplete: 4,
}

var orderRank = map[OrderStatus]int{
	OrderDraft:   0,
	OrderOrdered: 1,
	OrderShipped: 2,
	OrderArrived: 3,
}

var arrivalRank = map[ArrivalStatus]int{
	ArrivalPending: 0,
	ArrivalArrived: 1,
	// Accepted and Rejected are both terminal outcomes of inspection.
	ArrivalAccepted: 2,
	ArrivalRejected: 2,
}

// AdvanceDemand returns the status the demand should hold after the
// proposal, and whether that differs from current. Terminal and
// cancelled demands never move; proposals at or below the current rank
// are no-ops.
func AdvanceDemand(current, proposed DemandStatus) (DemandStatus, bool) {
	if current == DemandCancelled || proposed == current {
		return current, false
	}
	curRank, curKnown := demandRank[current]
	newRank, newKnown := demandRank[proposed]
	if !curKnown || !newKnown {
		return current, false
	}
	if newRank <= curRank {
		return current, false
	}
	return proposed, true
}

// AdvanceLine applies the same forward-only rule to purchase order lines.
func AdvanceLine(current, proposed LineStatus) (LineStatus, bool) {
	if current == LineCancelled || proposed == current {
		return current, false
	}
	curRank, curKnown := lineRank[current]
	newRank, newKnown := lineRank[proposed]
	if !curKnown || !newKnown {
		return current, false
	}
	if newRank <= curRank {
		return current, false
	}
	return proposed, true
}

// AdvanceArrival applies the forward-only rule to part arrivals.
// Accepted and Rejected are terminal: once inspected, an arrival never
// changes outcome.
func AdvanceArrival(current, proposed ArrivalStatus) (ArrivalStatus, bool) {
	if current == ArrivalAccepted || current == ArrivalRejected || proposed == current {
		return current, false
	}
	curRank, curKnown := arrivalRank[current]
	newRank, newKnown := arrivalRank[proposed]
	if !curKnown || !newKnown {
		return current, false
	}
	if newRank <= curRank {
		return current, false
	}
	return proposed, true
}

// AdvanceOrder applies the forward-only rule to purchase order headers.
func AdvanceOrder(current, proposed OrderStatus) (OrderStatus, bool) {
	if current == OrderCancelled || proposed == current {
		return current, false
	}
	curRank, curKnown := orderRank[current]
	newRank, newKnown := orderRank[proposed]
	if !curKnown || !newKnown {
		return current, false
	}
	if newRank <= curRank {
		return current, false
	}
	return proposed, true
}

// IsTerminalDemand reports whether the demand status is final.
func IsTerminalDemand(s DemandStatus) bool {
	return s == DemandInstalled || s == DemandCancelled
}

// IsTerminalLine reports whether the line status is final.
func IsTerminalLine(s LineStatus) bool {
	return s == LineComplete || s == LineCancelled
}

// IsInspectable reports whether an arrival may still be inspected.
func IsInspectable(s ArrivalStatus) bool {
	return s == ArrivalPending || s == ArrivalArrived
}
