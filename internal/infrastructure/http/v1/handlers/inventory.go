package handlers

import (
	"github.com/gin-gonic/gin"

	"stocktrace/internal/core/id"
	"stocktrace/internal/domain/inventory"
	"stocktrace/internal/infrastructure/http/v1/dto"
)

// InventoryHandler handles derived inventory endpoints.
type InventoryHandler struct {
	*BaseHandler
	aggregator *inventory.Aggregator
	repo       inventory.Repository
}

// NewInventoryHandler creates an inventory handler.
func NewInventoryHandler(base *BaseHandler, aggregator *inventory.Aggregator, repo inventory.Repository) *InventoryHandler {
	return &InventoryHandler{BaseHandler: base, aggregator: aggregator, repo: repo}
}

// ByPart handles GET /parts/:id/inventory - every position holding the part.
func (h *InventoryHandler) ByPart(c *gin.Context) {
	partID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}
	rows, err := h.repo.ListByPart(c.Request.Context(), partID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse{Items: rows, Count: len(rows)})
}

// ByStoreroom handles GET /storerooms/:id/inventory.
func (h *InventoryHandler) ByStoreroom(c *gin.Context) {
	storeroomID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}
	rows, err := h.repo.ListByStoreroom(c.Request.Context(), storeroomID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse{Items: rows, Count: len(rows)})
}

// Summary handles GET /parts/:id/summary - the part-level rollup.
func (h *InventoryHandler) Summary(c *gin.Context) {
	partID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}
	summary, err := h.repo.GetSummary(c.Request.Context(), partID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if summary == nil {
		h.OK(c, inventory.SummaryRecord{PartID: partID})
		return
	}
	h.OK(c, summary)
}

// Allocate handles POST /inventory/allocate.
func (h *InventoryHandler) Allocate(c *gin.Context) {
	var req dto.AllocationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	key, qty, err := req.ToKey()
	if err != nil {
		h.Error(c, err)
		return
	}
	rec, err := h.aggregator.Allocate(c.Request.Context(), key, qty)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rec)
}

// Deallocate handles POST /inventory/deallocate.
func (h *InventoryHandler) Deallocate(c *gin.Context) {
	var req dto.AllocationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	key, qty, err := req.ToKey()
	if err != nil {
		h.Error(c, err)
		return
	}
	rec, err := h.aggregator.Deallocate(c.Request.Context(), key, qty)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rec)
}

// RefreshSummaries handles POST /inventory/summaries/refresh -
// rebuilds part rollups from active rows.
func (h *InventoryHandler) RefreshSummaries(c *gin.Context) {
	partIDs, ok := h.bindSummaryScope(c)
	if !ok {
		return
	}
	if err := h.aggregator.RefreshSummary(c.Request.Context(), partIDs); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "summaries refreshed")
}

// VerifySummaries handles POST /inventory/summaries/verify - compares
// stored rollups against a fresh derivation.
func (h *InventoryHandler) VerifySummaries(c *gin.Context) {
	partIDs, ok := h.bindSummaryScope(c)
	if !ok {
		return
	}
	if err := h.aggregator.VerifySummary(c.Request.Context(), partIDs); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "summaries consistent")
}

func (h *InventoryHandler) bindSummaryScope(c *gin.Context) ([]id.ID, bool) {
	var req dto.SummaryRequest
	if !h.BindJSON(c, &req) {
		return nil, false
	}
	partIDs := make([]id.ID, 0, len(req.PartIDs))
	for _, raw := range req.PartIDs {
		parsed, err := dto.ParseID("partIds", raw)
		if err != nil {
			h.Error(c, err)
			return nil, false
		}
		partIDs = append(partIDs, parsed)
	}
	return partIDs, true
}
