package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"stocktrace/internal/domain/ledger"
	"stocktrace/internal/infrastructure/http/v1/dto"
)

// MovementHandler handles movement ledger endpoints.
type MovementHandler struct {
	*BaseHandler
	service *ledger.Service
}

// NewMovementHandler creates a movement handler.
func NewMovementHandler(base *BaseHandler, service *ledger.Service) *MovementHandler {
	return &MovementHandler{BaseHandler: base, service: service}
}

// Issue handles POST /movements/issue.
func (h *MovementHandler) Issue(c *gin.Context) {
	var req dto.IssueRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}
	rec, err := h.service.Issue(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rec)
}

// Adjust handles POST /movements/adjust.
func (h *MovementHandler) Adjust(c *gin.Context) {
	var req dto.AdjustRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}
	rec, err := h.service.Adjust(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rec)
}

// Transfer handles POST /movements/transfer - bin-to-bin within a storeroom.
func (h *MovementHandler) Transfer(c *gin.Context) {
	h.transfer(c, h.service.TransferBins)
}

// Relocate handles POST /movements/relocate - across storerooms or locations.
func (h *MovementHandler) Relocate(c *gin.Context) {
	h.transfer(c, h.service.Relocate)
}

func (h *MovementHandler) transfer(c *gin.Context, op func(ctx context.Context, in ledger.TransferInput) (*ledger.TransferPair, error)) {
	var req dto.TransferRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}
	pair, err := op(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.TransferPairResponse{Debit: pair.Debit, Credit: pair.Credit})
}

// Return handles POST /movements/return.
func (h *MovementHandler) Return(c *gin.Context) {
	var req dto.ReturnRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}
	rec, err := h.service.Return(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rec)
}

// Chain handles GET /movements/:id/chain - the provenance chain from
// the movement back to its originating receipt.
func (h *MovementHandler) Chain(c *gin.Context) {
	movementID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}
	chain, err := h.service.GetMovementChain(c.Request.Context(), movementID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse{Items: chain, Count: len(chain)})
}

// ByArrival handles GET /arrivals/:id/movements - everything traceable
// to one arrival.
func (h *MovementHandler) ByArrival(c *gin.Context) {
	arrivalID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}
	records, err := h.service.MovementsFromArrival(c.Request.Context(), arrivalID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse{Items: records, Count: len(records)})
}

// History handles GET /parts/:id/movements.
func (h *MovementHandler) History(c *gin.Context) {
	partID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var query dto.HistoryQuery
	if !h.BindQuery(c, &query) {
		return
	}
	filter, err := query.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}
	records, err := h.service.History(c.Request.Context(), partID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse{
		Items:  records,
		Count:  len(records),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}
