package handler

import (
	"context"

	partnerapp "github.com/gamehub/backend/internal/application/partner"
	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PartnerUseCase is the partner management surface used by the handler
type PartnerUseCase interface {
	Create(ctx context.Context, actor partner.Actor, req partnerapp.CreatePartnerRequest) (*partnerapp.PartnerResponse, error)
	GetByID(ctx context.Context, actor partner.Actor, id uuid.UUID) (*partnerapp.PartnerResponse, error)
	List(ctx context.Context, actor partner.Actor, filter partnerapp.PartnerListFilter) ([]partnerapp.PartnerResponse, int64, error)
	Update(ctx context.Context, actor partner.Actor, id uuid.UUID, req partnerapp.UpdatePartnerRequest) (*partnerapp.PartnerResponse, error)
	ChangeStatus(ctx context.Context, actor partner.Actor, id uuid.UUID, req partnerapp.ChangePartnerStatusRequest) (*partnerapp.PartnerResponse, error)
	SetCredentials(ctx context.Context, actor partner.Actor, id uuid.UUID, req partnerapp.SetCredentialsRequest) (*partnerapp.PartnerResponse, error)
	Delete(ctx context.Context, actor partner.Actor, id uuid.UUID) error
}

// HierarchyUseCase answers subtree questions
type HierarchyUseCase interface {
	Subtree(ctx context.Context, actor partner.Actor, partnerID uuid.UUID) (*partnerapp.SubtreeResponse, error)
	FindHierarchyGap(ctx context.Context, actor partner.Actor, targetType partner.PartnerType) (*partner.HierarchyGap, error)
}

// PartnerHandler handles partner management and hierarchy queries
type PartnerHandler struct {
	BaseHandler
	partners  PartnerUseCase
	hierarchy HierarchyUseCase
}

// NewPartnerHandler creates a new partner handler
func NewPartnerHandler(partners PartnerUseCase, hierarchy HierarchyUseCase) *PartnerHandler {
	return &PartnerHandler{partners: partners, hierarchy: hierarchy}
}

// Create godoc
// @Summary      Create partner
// @Description  Create a partner below the caller. The parent defaults to the caller; it must lie in the caller's subtree and be exactly one tier above the new partner.
// @Tags         partners
// @Accept       json
// @Produce      json
// @Param        request body partnerapp.CreatePartnerRequest true "Partner"
// @Success      201 {object} APIResponse[partnerapp.PartnerResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /partners [post]
func (h *PartnerHandler) Create(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req partnerapp.CreatePartnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	p, err := h.partners.Create(c.Request.Context(), actor, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, p)
}

// List godoc
// @Summary      List partners
// @Description  List the partners in the caller's subtree
// @Tags         partners
// @Produce      json
// @Param        search       query string false "Username or nickname"
// @Param        partner_type query string false "Tier"
// @Param        status       query string false "Status"
// @Param        parent_id    query string false "Direct parent"
// @Param        page         query int    false "Page" default(1)
// @Param        page_size    query int    false "Page size" default(20)
// @Param        order_by     query string false "Sort column"
// @Param        order_dir    query string false "asc or desc"
// @Success      200 {object} APIResponse[[]partnerapp.PartnerResponse]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /partners [get]
func (h *PartnerHandler) List(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var filter partnerapp.PartnerListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BindError(c, err)
		return
	}
	partners, total, err := h.partners.List(c.Request.Context(), actor, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page, pageSize := pageOrDefault(filter.Page, filter.PageSize)
	h.SuccessWithMeta(c, partners, total, page, pageSize)
}

// GetByID godoc
// @Summary      Get partner
// @Tags         partners
// @Produce      json
// @Param        id path string true "Partner ID" format(uuid)
// @Success      200 {object} APIResponse[partnerapp.PartnerResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /partners/{id} [get]
func (h *PartnerHandler) GetByID(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	p, err := h.partners.GetByID(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, p)
}

// Update godoc
// @Summary      Update partner
// @Description  Edit the nickname or commission rates of a partner in the caller's subtree
// @Tags         partners
// @Accept       json
// @Produce      json
// @Param        id      path string                          true "Partner ID" format(uuid)
// @Param        request body partnerapp.UpdatePartnerRequest true "Changes"
// @Success      200 {object} APIResponse[partnerapp.PartnerResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /partners/{id} [put]
func (h *PartnerHandler) Update(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req partnerapp.UpdatePartnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	p, err := h.partners.Update(c.Request.Context(), actor, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, p)
}

// ChangeStatus godoc
// @Summary      Change partner status
// @Tags         partners
// @Accept       json
// @Produce      json
// @Param        id      path string                                true "Partner ID" format(uuid)
// @Param        request body partnerapp.ChangePartnerStatusRequest true "Status"
// @Success      200 {object} APIResponse[partnerapp.PartnerResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /partners/{id}/status [patch]
func (h *PartnerHandler) ChangeStatus(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req partnerapp.ChangePartnerStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	p, err := h.partners.ChangeStatus(c.Request.Context(), actor, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, p)
}

// SetCredentials godoc
// @Summary      Set aggregator credentials
// @Description  Replace the opcode, secret key and API token a partner settles with
// @Tags         partners
// @Accept       json
// @Produce      json
// @Param        id      path string                           true "Partner ID" format(uuid)
// @Param        request body partnerapp.SetCredentialsRequest true "Credentials"
// @Success      200 {object} APIResponse[partnerapp.PartnerResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /partners/{id}/credentials [put]
func (h *PartnerHandler) SetCredentials(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req partnerapp.SetCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	p, err := h.partners.SetCredentials(c.Request.Context(), actor, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, p)
}

// Delete godoc
// @Summary      Delete partner
// @Description  Delete a partner with no child partners and no end users
// @Tags         partners
// @Param        id path string true "Partner ID" format(uuid)
// @Success      204
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /partners/{id} [delete]
func (h *PartnerHandler) Delete(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.partners.Delete(c.Request.Context(), actor, id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Subtree godoc
// @Summary      Partner subtree
// @Description  Count the partners below a partner, per tier
// @Tags         partners
// @Produce      json
// @Param        id path string true "Partner ID" format(uuid)
// @Success      200 {object} APIResponse[partnerapp.SubtreeResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /partners/{id}/subtree [get]
func (h *PartnerHandler) Subtree(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	subtree, err := h.hierarchy.Subtree(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, subtree)
}

// HierarchyGap godoc
// @Summary      Check hierarchy gap
// @Description  Report the tiers between the caller and partner_type that have no active partner in the caller's subtree
// @Tags         partners
// @Produce      json
// @Param        partner_type query string true "Tier to create"
// @Success      200 {object} APIResponse[partner.HierarchyGap]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /partners/hierarchy-gap [get]
func (h *PartnerHandler) HierarchyGap(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var q partnerapp.HierarchyGapQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	targetType, err := partner.ParsePartnerType(q.Type)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	gap, err := h.hierarchy.FindHierarchyGap(c.Request.Context(), actor, targetType)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gap)
}
