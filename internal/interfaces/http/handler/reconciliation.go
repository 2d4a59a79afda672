package handler

import (
	"context"

	ledgerapp "github.com/gamehub/backend/internal/application/ledger"
	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/gamehub/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ReconciliationUseCase lists and replays unreconciled settlements
type ReconciliationUseCase interface {
	ListPending(ctx context.Context, filter shared.Filter) ([]ledgerapp.UnreconciledResponse, int64, error)
	PendingCount(ctx context.Context) (int64, error)
	Resolve(ctx context.Context, actor partner.Actor, id uuid.UUID) (*ledgerapp.UnreconciledResponse, error)
}

// ReconciliationHandler exposes the reconciliation queue to system admins.
// Routes are mounted behind RequireSystemAdmin.
type ReconciliationHandler struct {
	BaseHandler
	service ReconciliationUseCase
}

// NewReconciliationHandler creates a new reconciliation handler
func NewReconciliationHandler(service ReconciliationUseCase) *ReconciliationHandler {
	return &ReconciliationHandler{service: service}
}

// ListPending godoc
// @Summary      List unreconciled settlements
// @Description  Transfers the aggregator accepted but the local ledger never recorded
// @Tags         reconciliation
// @Produce      json
// @Param        page      query int false "Page" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Success      200 {object} APIResponse[[]ledgerapp.UnreconciledResponse]
// @Failure      403 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /reconciliation/pending [get]
func (h *ReconciliationHandler) ListPending(c *gin.Context) {
	var req dto.PageQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindError(c, err)
		return
	}
	page, pageSize := pageOrDefault(req.Page, req.PageSize)
	records, total, err := h.service.ListPending(c.Request.Context(), shared.Filter{
		Page:     page,
		PageSize: pageSize,
		OrderBy:  "created_at",
		OrderDir: "asc",
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, records, total, page, pageSize)
}

// PendingCount godoc
// @Summary      Count unreconciled settlements
// @Tags         reconciliation
// @Produce      json
// @Success      200 {object} APIResponse[CountData]
// @Security     BearerAuth
// @Router       /reconciliation/pending/count [get]
func (h *ReconciliationHandler) PendingCount(c *gin.Context) {
	n, err := h.service.PendingCount(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, CountData{Count: n})
}

// Resolve godoc
// @Summary      Reconcile settlement
// @Description  Replay the local ledger commit of a pending settlement
// @Tags         reconciliation
// @Produce      json
// @Param        id path string true "Record ID" format(uuid)
// @Success      200 {object} APIResponse[ledgerapp.UnreconciledResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /reconciliation/{id}/resolve [post]
func (h *ReconciliationHandler) Resolve(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	rec, err := h.service.Resolve(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rec)
}
