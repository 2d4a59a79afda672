package handler

import (
	"context"

	transferapp "github.com/gamehub/backend/internal/application/transfer"
	"github.com/gamehub/backend/internal/domain/ledger"
	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/gamehub/backend/internal/domain/transfer"
	"github.com/gamehub/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferExecutor runs one deposit or withdrawal end to end
type TransferExecutor interface {
	Execute(ctx context.Context, actor partner.Actor, req transfer.Request) (*transferapp.Result, error)
}

// TransferRequest is the body of POST /transfers. An Idempotency-Key header
// takes precedence over idempotency_key.
type TransferRequest struct {
	TargetKind     string          `json:"target_kind" binding:"required,oneof=partner user"`
	TargetID       uuid.UUID       `json:"target_id" binding:"required"`
	Direction      string          `json:"direction" binding:"required,oneof=deposit withdrawal"`
	Amount         decimal.Decimal `json:"amount" binding:"required,gt=0" swaggertype:"string" example:"100.00"`
	Memo           string          `json:"memo" binding:"max=255"`
	IdempotencyKey string          `json:"idempotency_key" binding:"max=128"`
}

// TransferHandler handles balance transfers
type TransferHandler struct {
	BaseHandler
	orchestrator TransferExecutor
}

// NewTransferHandler creates a new transfer handler
func NewTransferHandler(orchestrator TransferExecutor) *TransferHandler {
	return &TransferHandler{orchestrator: orchestrator}
}

// Execute godoc
// @Summary      Deposit or withdraw
// @Description  Move balance between the caller and a partner or end user in its subtree. The aggregator is settled first; local balances change only after it accepts. Failures report the state the transfer ended in.
// @Tags         transfers
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key header string          false "Replay protection key"
// @Param        request         body   TransferRequest true  "Transfer"
// @Success      200 {object} APIResponse[transferapp.Result]
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Failure      502 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /transfers [post]
func (h *TransferHandler) Execute(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	kind, err := ledger.ParseSubjectKind(req.TargetKind)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	direction, err := transfer.ParseDirection(req.Direction)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	key := c.GetHeader(middleware.IdempotencyKeyHeader)
	if key == "" {
		key = req.IdempotencyKey
	}

	result, err := h.orchestrator.Execute(c.Request.Context(), actor, transfer.Request{
		Target:         ledger.Party{Kind: kind, ID: req.TargetID},
		Direction:      direction,
		Amount:         req.Amount,
		Memo:           req.Memo,
		IdempotencyKey: key,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
