package handlers

import (
	"github.com/gin-gonic/gin"

	"stocktrace/internal/core/apperror"
	"stocktrace/internal/domain/purchasing"
	"stocktrace/internal/domain/status"
	"stocktrace/internal/infrastructure/http/v1/dto"
)

// PurchasingHandler handles purchase order status endpoints.
type PurchasingHandler struct {
	*BaseHandler
	propagator *purchasing.Propagator
	repo       purchasing.Repository
}

// NewPurchasingHandler creates a purchasing handler.
func NewPurchasingHandler(base *BaseHandler, propagator *purchasing.Propagator, repo purchasing.Repository) *PurchasingHandler {
	return &PurchasingHandler{BaseHandler: base, propagator: propagator, repo: repo}
}

// UpdateOrderStatus handles POST /orders/:id/status. The cascade is
// forward-only: a stale proposal is accepted and ignored.
func (h *PurchasingHandler) UpdateOrderStatus(c *gin.Context) {
	orderID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var req dto.OrderStatusRequest
	if !h.BindJSON(c, &req) {
		return
	}
	proposed, err := parseOrderStatus(req.Status)
	if err != nil {
		h.Error(c, err)
		return
	}
	if err := h.propagator.PropagateOrderStatus(c.Request.Context(), orderID, proposed); err != nil {
		h.Error(c, err)
		return
	}
	current, err := h.repo.GetOrderStatus(c.Request.Context(), orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"orderId": orderID.String(), "status": current})
}

// RecheckLine handles POST /lines/:id/recheck - re-runs line and
// demand derivation, e.g. after a late receipt landed.
func (h *PurchasingHandler) RecheckLine(c *gin.Context) {
	lineID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.propagator.PropagateLineUpdate(c.Request.Context(), lineID); err != nil {
		h.Error(c, err)
		return
	}
	line, err := h.repo.GetLineForUpdate(c.Request.Context(), lineID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, line)
}

// OrderLines handles GET /orders/:id/lines.
func (h *PurchasingHandler) OrderLines(c *gin.Context) {
	orderID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}
	lines, err := h.repo.ListLinesByOrder(c.Request.Context(), orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse{Items: lines, Count: len(lines)})
}

// LineDemands handles GET /lines/:id/demands.
func (h *PurchasingHandler) LineDemands(c *gin.Context) {
	lineID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}
	demands, err := h.repo.ListDemandsByLine(c.Request.Context(), lineID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse{Items: demands, Count: len(demands)})
}

func parseOrderStatus(s string) (status.OrderStatus, error) {
	switch status.OrderStatus(s) {
	case status.OrderDraft, status.OrderOrdered, status.OrderShipped,
		status.OrderArrived, status.OrderCancelled:
		return status.OrderStatus(s), nil
	}
	return "", apperror.NewValidation("unknown order status").WithDetail("status", s)
}
