package handler

import (
	"context"

	partnerapp "github.com/gamehub/backend/internal/application/partner"
	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EndUserUseCase manages player accounts
type EndUserUseCase interface {
	Create(ctx context.Context, actor partner.Actor, req partnerapp.CreateEndUserRequest) (*partnerapp.EndUserResponse, error)
	GetByID(ctx context.Context, actor partner.Actor, id uuid.UUID) (*partnerapp.EndUserResponse, error)
	List(ctx context.Context, actor partner.Actor, filter partnerapp.EndUserListFilter) ([]partnerapp.EndUserResponse, int64, error)
	ChangeStatus(ctx context.Context, actor partner.Actor, id uuid.UUID, req partnerapp.ChangeEndUserStatusRequest) (*partnerapp.EndUserResponse, error)
}

// EndUserHandler handles player account endpoints
type EndUserHandler struct {
	BaseHandler
	users EndUserUseCase
}

// NewEndUserHandler creates a new end user handler
func NewEndUserHandler(users EndUserUseCase) *EndUserHandler {
	return &EndUserHandler{users: users}
}

// Create godoc
// @Summary      Create end user
// @Description  Register a player under a store. Store callers default to themselves as referrer.
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request body partnerapp.CreateEndUserRequest true "End user"
// @Success      201 {object} APIResponse[partnerapp.EndUserResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /users [post]
func (h *EndUserHandler) Create(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req partnerapp.CreateEndUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	u, err := h.users.Create(c.Request.Context(), actor, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, u)
}

// List godoc
// @Summary      List end users
// @Tags         users
// @Produce      json
// @Param        search      query string false "Username or nickname"
// @Param        status      query string false "Status"
// @Param        referrer_id query string false "Referring store"
// @Param        page        query int    false "Page" default(1)
// @Param        page_size   query int    false "Page size" default(20)
// @Success      200 {object} APIResponse[[]partnerapp.EndUserResponse]
// @Security     BearerAuth
// @Router       /users [get]
func (h *EndUserHandler) List(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var filter partnerapp.EndUserListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BindError(c, err)
		return
	}
	users, total, err := h.users.List(c.Request.Context(), actor, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page, pageSize := pageOrDefault(filter.Page, filter.PageSize)
	h.SuccessWithMeta(c, users, total, page, pageSize)
}

// GetByID godoc
// @Summary      Get end user
// @Tags         users
// @Produce      json
// @Param        id path string true "End user ID" format(uuid)
// @Success      200 {object} APIResponse[partnerapp.EndUserResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /users/{id} [get]
func (h *EndUserHandler) GetByID(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	u, err := h.users.GetByID(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, u)
}

// ChangeStatus godoc
// @Summary      Change end user status
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        id      path string                                true "End user ID" format(uuid)
// @Param        request body partnerapp.ChangeEndUserStatusRequest true "Status"
// @Success      200 {object} APIResponse[partnerapp.EndUserResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /users/{id}/status [patch]
func (h *EndUserHandler) ChangeStatus(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req partnerapp.ChangeEndUserStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	u, err := h.users.ChangeStatus(c.Request.Context(), actor, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, u)
}
