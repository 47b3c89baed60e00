package dto

// OrderStatusRequest proposes a new status for a purchase order. The
// cascade only ever moves statuses forward; stale proposals are
// silently ignored.
type OrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}
