package partner

import (
	"time"

	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// Partner DTOs
// =============================================================================

// CommissionInput carries commission percentages in requests
type CommissionInput struct {
	Rolling       decimal.Decimal `json:"rolling"`
	Losing        decimal.Decimal `json:"losing"`
	WithdrawalFee decimal.Decimal `json:"withdrawal_fee"`
}

func (c CommissionInput) toDomain() partner.CommissionRates {
	return partner.CommissionRates{Rolling: c.Rolling, Losing: c.Losing, WithdrawalFee: c.WithdrawalFee}
}

// CredentialsInput carries aggregator credentials in requests
type CredentialsInput struct {
	Opcode    string `json:"opcode" binding:"max=100"`
	SecretKey string `json:"secret_key" binding:"max=200"`
	APIToken  string `json:"api_token" binding:"max=500"`
}

func (c CredentialsInput) toDomain() partner.Credentials {
	return partner.Credentials{Opcode: c.Opcode, SecretKey: c.SecretKey, APIToken: c.APIToken}
}

// CreatePartnerRequest represents a request to create a partner
type CreatePartnerRequest struct {
	Username    string           `json:"username" binding:"required,min=3,max=50"`
	Nickname    string           `json:"nickname" binding:"max=100"`
	Password    string           `json:"password" binding:"required,min=8,max=72"`
	Type        string           `json:"partner_type" binding:"required,oneof=head_office main_office sub_office distributor store"`
	ParentID    *uuid.UUID       `json:"parent_id"`
	Commission  CommissionInput  `json:"commission"`
	Credentials CredentialsInput `json:"credentials"`
}

// UpdatePartnerRequest represents a request to edit a partner
type UpdatePartnerRequest struct {
	Nickname   *string          `json:"nickname" binding:"omitempty,min=1,max=100"`
	Commission *CommissionInput `json:"commission"`
}

// ChangePartnerStatusRequest represents a status change
type ChangePartnerStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active inactive blocked"`
}

// SetCredentialsRequest replaces a partner's aggregator credentials
type SetCredentialsRequest struct {
	CredentialsInput
}

// PartnerResponse represents a partner in API responses
type PartnerResponse struct {
	ID             uuid.UUID               `json:"id"`
	Username       string                  `json:"username"`
	Nickname       string                  `json:"nickname"`
	Type           string                  `json:"partner_type"`
	TypeName       string                  `json:"partner_type_name"`
	Level          int                     `json:"level"`
	ParentID       *uuid.UUID              `json:"parent_id,omitempty"`
	Balance        decimal.Decimal         `json:"balance"`
	Commission     partner.CommissionRates `json:"commission"`
	HasCredentials bool                    `json:"has_credentials"`
	Opcode         string                  `json:"opcode,omitempty"`
	Status         string                  `json:"status"`
	LastLoginAt    *time.Time              `json:"last_login_at,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
	Version        int                     `json:"version"`
}

// ToPartnerResponse converts a domain partner. Secrets never leave the service.
func ToPartnerResponse(p *partner.Partner) PartnerResponse {
	return PartnerResponse{
		ID:             p.ID,
		Username:       p.Username,
		Nickname:       p.Nickname,
		Type:           string(p.Type),
		TypeName:       p.Type.DisplayName(),
		Level:          p.Level,
		ParentID:       p.ParentID,
		Balance:        p.Balance,
		Commission:     p.Commission,
		HasCredentials: p.Credentials.IsComplete(),
		Opcode:         p.Credentials.Opcode,
		Status:         string(p.Status),
		LastLoginAt:    p.LastLoginAt,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
		Version:        p.Version,
	}
}

// ToPartnerResponses converts a slice of partners
func ToPartnerResponses(partners []partner.Partner) []PartnerResponse {
	out := make([]PartnerResponse, len(partners))
	for i := range partners {
		out[i] = ToPartnerResponse(&partners[i])
	}
	return out
}

// PartnerListFilter represents filter options for the partner list
type PartnerListFilter struct {
	Search   string `form:"search"`
	Type     string `form:"partner_type" binding:"omitempty,oneof=system_admin head_office main_office sub_office distributor store"`
	Status   string `form:"status" binding:"omitempty,oneof=active inactive blocked"`
	ParentID string `form:"parent_id" binding:"omitempty,uuid"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy  string `form:"order_by"`
	OrderDir string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// HierarchyGapQuery selects the tier to check
type HierarchyGapQuery struct {
	Type string `form:"partner_type" binding:"required,oneof=head_office main_office sub_office distributor store"`
}

// TierCount is the number of partners of one tier in a subtree
type TierCount struct {
	Type     string `json:"partner_type"`
	TypeName string `json:"partner_type_name"`
	Count    int    `json:"count"`
	Active   int    `json:"active"`
}

// SubtreeResponse summarises a partner's descendants
type SubtreeResponse struct {
	RootID uuid.UUID   `json:"root_id"`
	Total  int         `json:"total"`
	Tiers  []TierCount `json:"tiers"`
	IDs    []uuid.UUID `json:"ids"`
}

// =============================================================================
// End user DTOs
// =============================================================================

// CreateEndUserRequest represents a request to create a player account
type CreateEndUserRequest struct {
	Username   string     `json:"username" binding:"required,min=3,max=50"`
	Nickname   string     `json:"nickname" binding:"max=100"`
	ReferrerID *uuid.UUID `json:"referrer_id"`
}

// ChangeEndUserStatusRequest represents a status change
type ChangeEndUserStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=pending active suspended blocked"`
}

// EndUserResponse represents a player account in API responses
type EndUserResponse struct {
	ID         uuid.UUID       `json:"id"`
	Username   string          `json:"username"`
	Nickname   string          `json:"nickname"`
	ReferrerID uuid.UUID       `json:"referrer_id"`
	Balance    decimal.Decimal `json:"balance"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Version    int             `json:"version"`
}

// ToEndUserResponse converts a domain end user
func ToEndUserResponse(u *partner.EndUser) EndUserResponse {
	return EndUserResponse{
		ID:         u.ID,
		Username:   u.Username,
		Nickname:   u.Nickname,
		ReferrerID: u.ReferrerID,
		Balance:    u.Balance,
		Status:     string(u.Status),
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
		Version:    u.Version,
	}
}

// EndUserListFilter represents filter options for the end user list
type EndUserListFilter struct {
	Search     string `form:"search"`
	Status     string `form:"status" binding:"omitempty,oneof=pending active suspended blocked"`
	ReferrerID string `form:"referrer_id" binding:"omitempty,uuid"`
	Page       int    `form:"page" binding:"omitempty,min=1"`
	PageSize   int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy    string `form:"order_by"`
	OrderDir   string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// =============================================================================
// Auth DTOs
// =============================================================================

// LoginInput contains login credentials
type LoginInput struct {
	Username string
	Password string
	IP       string
}

// LoginResult is returned on successful login
type LoginResult struct {
	AccessToken           string          `json:"access_token"`
	RefreshToken          string          `json:"refresh_token"`
	AccessTokenExpiresAt  time.Time       `json:"access_token_expires_at"`
	RefreshTokenExpiresAt time.Time       `json:"refresh_token_expires_at"`
	TokenType             string          `json:"token_type"`
	Partner               PartnerResponse `json:"partner"`
}

// LogoutInput identifies the session being ended
type LogoutInput struct {
	PartnerID uuid.UUID
	TokenJTI  string
	TokenTTL  time.Duration
}

func normalizeFilter(page, pageSize int, orderBy, orderDir, defaultOrder string) (int, int, string, string) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if orderBy == "" {
		orderBy = defaultOrder
	}
	if orderDir == "" {
		orderDir = "desc"
	}
	return page, pageSize, orderBy, orderDir
}
