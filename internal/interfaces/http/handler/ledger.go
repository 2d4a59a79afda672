package handler

import (
	"context"

	ledgerapp "github.com/gamehub/backend/internal/application/ledger"
	"github.com/gamehub/backend/internal/domain/ledger"
	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// LedgerQuery reads ledger rows visible to an actor
type LedgerQuery interface {
	ListEntries(ctx context.Context, actor partner.Actor, filter ledger.EntryFilter) ([]ledgerapp.EntryResponse, int64, error)
	GetTransfer(ctx context.Context, actor partner.Actor, transferID uuid.UUID) ([]ledgerapp.EntryResponse, error)
}

// StatementExporter renders a party's statement to object storage
type StatementExporter interface {
	Export(ctx context.Context, actor partner.Actor, req ledgerapp.StatementRequest) (*ledgerapp.StatementResponse, error)
}

// StatementQuery selects the party and period of an export
type StatementQuery struct {
	Kind      string `form:"kind" binding:"required,oneof=partner user"`
	SubjectID string `form:"subject_id" binding:"required,uuid"`
	From      string `form:"from"`
	To        string `form:"to"`
}

// LedgerHandler serves ledger history and statement exports
type LedgerHandler struct {
	BaseHandler
	ledger     LedgerQuery
	statements StatementExporter
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(ledger LedgerQuery, statements StatementExporter) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, statements: statements}
}

// ListEntries godoc
// @Summary      List ledger entries
// @Description  Page through ledger rows in the caller's subtree, newest first by default
// @Tags         ledger
// @Produce      json
// @Param        kind        query string false "partner or user"
// @Param        subject_id  query string false "Account the rows belong to"
// @Param        type        query string false "Transaction type"
// @Param        transfer_id query string false "Transfer"
// @Param        from        query string false "Start (RFC 3339 or YYYY-MM-DD)"
// @Param        to          query string false "End (RFC 3339 or YYYY-MM-DD)"
// @Param        page        query int    false "Page" default(1)
// @Param        page_size   query int    false "Page size" default(20)
// @Param        order_dir   query string false "asc or desc"
// @Success      200 {object} APIResponse[[]ledgerapp.EntryResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /ledger/entries [get]
func (h *LedgerHandler) ListEntries(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var q ledgerapp.EntryListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	filter, ok := h.entryFilter(c, q)
	if !ok {
		return
	}

	entries, total, err := h.ledger.ListEntries(c.Request.Context(), actor, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, entries, total, filter.Page, filter.PageSize)
}

func (h *LedgerHandler) entryFilter(c *gin.Context, q ledgerapp.EntryListQuery) (ledger.EntryFilter, bool) {
	page, pageSize := pageOrDefault(q.Page, q.PageSize)
	orderDir := q.OrderDir
	if orderDir == "" {
		orderDir = "desc"
	}
	filter := ledger.EntryFilter{
		Filter: shared.Filter{Page: page, PageSize: pageSize, OrderBy: "created_at", OrderDir: orderDir},
		Type:   ledger.TransactionType(q.Type),
	}

	if q.SubjectID != "" {
		if q.Kind == "" {
			h.BadRequest(c, "kind is required with subject_id")
			return filter, false
		}
		party := ledger.Party{Kind: ledger.SubjectKind(q.Kind), ID: uuid.MustParse(q.SubjectID)}
		filter.Subject = &party
	}
	if q.TransferID != "" {
		id := uuid.MustParse(q.TransferID)
		filter.TransferID = &id
	}

	var err error
	if filter.From, err = parseTimeQuery(q.From); err != nil {
		h.BadRequest(c, "Invalid from time")
		return filter, false
	}
	if filter.To, err = parseTimeQuery(q.To); err != nil {
		h.BadRequest(c, "Invalid to time")
		return filter, false
	}
	return filter, true
}

// GetTransfer godoc
// @Summary      Get transfer entries
// @Description  Every ledger row written by one transfer
// @Tags         ledger
// @Produce      json
// @Param        id path string true "Transfer ID" format(uuid)
// @Success      200 {object} APIResponse[[]ledgerapp.EntryResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /ledger/transfers/{id} [get]
func (h *LedgerHandler) GetTransfer(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	entries, err := h.ledger.GetTransfer(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entries)
}

// ExportStatement godoc
// @Summary      Export statement
// @Description  Write a CSV statement for one account to object storage and return a presigned download link
// @Tags         ledger
// @Produce      json
// @Param        kind       query string true  "partner or user"
// @Param        subject_id query string true  "Account"
// @Param        from       query string false "Start (RFC 3339 or YYYY-MM-DD)"
// @Param        to         query string false "End (RFC 3339 or YYYY-MM-DD)"
// @Success      200 {object} APIResponse[ledgerapp.StatementResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /ledger/statements [post]
func (h *LedgerHandler) ExportStatement(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var q StatementQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	from, err := parseTimeQuery(q.From)
	if err != nil {
		h.BadRequest(c, "Invalid from time")
		return
	}
	to, err := parseTimeQuery(q.To)
	if err != nil {
		h.BadRequest(c, "Invalid to time")
		return
	}

	statement, err := h.statements.Export(c.Request.Context(), actor, ledgerapp.StatementRequest{
		Party: ledger.Party{Kind: ledger.SubjectKind(q.Kind), ID: uuid.MustParse(q.SubjectID)},
		From:  from,
		To:    to,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, statement)
}
