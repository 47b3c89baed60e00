package handlers

import (
	"github.com/gin-gonic/gin"

	"stocktrace/internal/domain/arrivals"
	"stocktrace/internal/infrastructure/http/v1/dto"
)

// ArrivalHandler handles arrival and inspection endpoints.
type ArrivalHandler struct {
	*BaseHandler
	inspector *arrivals.Inspector
	repo      arrivals.Repository
}

// NewArrivalHandler creates an arrival handler.
func NewArrivalHandler(base *BaseHandler, inspector *arrivals.Inspector, repo arrivals.Repository) *ArrivalHandler {
	return &ArrivalHandler{BaseHandler: base, inspector: inspector, repo: repo}
}

// Get handles GET /arrivals/:id.
func (h *ArrivalHandler) Get(c *gin.Context) {
	arrivalID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}
	arrival, err := h.repo.GetByID(c.Request.Context(), arrivalID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, arrival)
}

// MarkArrived handles POST /arrivals/:id/arrived. Idempotent.
func (h *ArrivalHandler) MarkArrived(c *gin.Context) {
	arrivalID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}
	arrival, err := h.inspector.MarkArrived(c.Request.Context(), arrivalID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, arrival)
}

// Inspect handles POST /arrivals/:id/inspect - the accepted/rejected
// split that feeds accepted stock into the ledger.
func (h *ArrivalHandler) Inspect(c *gin.Context) {
	var req dto.InspectArrivalRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput(c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}
	result, err := h.inspector.RecordInspection(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// ReceiveUnlinked handles POST /arrivals/unlinked - stock with no
// purchase order behind it.
func (h *ArrivalHandler) ReceiveUnlinked(c *gin.Context) {
	var req dto.UnlinkedReceiptRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}
	result, err := h.inspector.ReceiveUnlinked(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// Pending handles GET /locations/:id/arrivals/pending - arrivals still
// awaiting inspection at a major location.
func (h *ArrivalHandler) Pending(c *gin.Context) {
	majorLocationID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}
	pending, err := h.inspector.PendingInspections(c.Request.Context(), majorLocationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse{Items: pending, Count: len(pending)})
}

// ByPackage handles GET /packages/:id/arrivals.
func (h *ArrivalHandler) ByPackage(c *gin.Context) {
	packageID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}
	items, err := h.repo.ListByPackage(c.Request.Context(), packageID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse{Items: items, Count: len(items)})
}
