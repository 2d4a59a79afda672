package models

import (
	"time"

	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PartnerModel is the persistence model for the Partner aggregate.
type PartnerModel struct {
	AggregateModel
	Username          string                `gorm:"type:varchar(50);not null;uniqueIndex:idx_partners_username"`
	Nickname          string                `gorm:"type:varchar(100);not null"`
	Type              partner.PartnerType   `gorm:"type:varchar(20);not null;index:idx_partners_type"`
	Level             int                   `gorm:"not null"`
	ParentID          *uuid.UUID            `gorm:"type:uuid;index:idx_partners_parent"`
	Balance           decimal.Decimal       `gorm:"type:decimal(18,4);not null;default:0"`
	CommissionRolling decimal.Decimal       `gorm:"type:decimal(7,4);not null;default:0"`
	CommissionLosing  decimal.Decimal       `gorm:"type:decimal(7,4);not null;default:0"`
	WithdrawalFee     decimal.Decimal       `gorm:"type:decimal(7,4);not null;default:0"`
	Opcode            string                `gorm:"type:varchar(100)"`
	SecretKey         string                `gorm:"type:varchar(255)"`
	APIToken          string                `gorm:"column:api_token;type:varchar(255)"`
	Status            partner.PartnerStatus `gorm:"type:varchar(20);not null;default:'active'"`
	PasswordHash      string                `gorm:"type:varchar(255)"`
	LastLoginAt       *time.Time
}

// TableName returns the table name for GORM
func (PartnerModel) TableName() string {
	return "partners"
}

// ToDomain converts the persistence model to a domain Partner.
func (m *PartnerModel) ToDomain() *partner.Partner {
	return &partner.Partner{
		BaseAggregateRoot: m.aggregateRoot(),
		Username:          m.Username,
		Nickname:          m.Nickname,
		Type:              m.Type,
		Level:             m.Level,
		ParentID:          m.ParentID,
		Balance:           m.Balance,
		Commission: partner.CommissionRates{
			Rolling:       m.CommissionRolling,
			Losing:        m.CommissionLosing,
			WithdrawalFee: m.WithdrawalFee,
		},
		Credentials: partner.Credentials{
			Opcode:    m.Opcode,
			SecretKey: m.SecretKey,
			APIToken:  m.APIToken,
		},
		Status:       m.Status,
		PasswordHash: m.PasswordHash,
		LastLoginAt:  m.LastLoginAt,
	}
}

// FromDomain populates the persistence model from a domain Partner.
func (m *PartnerModel) FromDomain(p *partner.Partner) {
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	m.Username = p.Username
	m.Nickname = p.Nickname
	m.Type = p.Type
	m.Level = p.Level
	m.ParentID = p.ParentID
	m.Balance = p.Balance
	m.CommissionRolling = p.Commission.Rolling
	m.CommissionLosing = p.Commission.Losing
	m.WithdrawalFee = p.Commission.WithdrawalFee
	m.Opcode = p.Credentials.Opcode
	m.SecretKey = p.Credentials.SecretKey
	m.APIToken = p.Credentials.APIToken
	m.Status = p.Status
	m.PasswordHash = p.PasswordHash
	m.LastLoginAt = p.LastLoginAt
}

// PartnerModelFromDomain creates a new persistence model from a domain Partner.
func PartnerModelFromDomain(p *partner.Partner) *PartnerModel {
	m := &PartnerModel{}
	m.FromDomain(p)
	return m
}

// EndUserModel is the persistence model for the EndUser aggregate.
type EndUserModel struct {
	AggregateModel
	Username   string                `gorm:"type:varchar(50);not null;uniqueIndex:idx_end_users_username"`
	Nickname   string                `gorm:"type:varchar(100);not null"`
	ReferrerID uuid.UUID             `gorm:"type:uuid;not null;index:idx_end_users_referrer"`
	Balance    decimal.Decimal       `gorm:"type:decimal(18,4);not null;default:0"`
	Status     partner.EndUserStatus `gorm:"type:varchar(20);not null;default:'pending'"`
}

// TableName returns the table name for GORM
func (EndUserModel) TableName() string {
	return "end_users"
}

// ToDomain converts the persistence model to a domain EndUser.
func (m *EndUserModel) ToDomain() *partner.EndUser {
	return &partner.EndUser{
		BaseAggregateRoot: m.aggregateRoot(),
		Username:          m.Username,
		Nickname:          m.Nickname,
		ReferrerID:        m.ReferrerID,
		Balance:           m.Balance,
		Status:            m.Status,
	}
}

// FromDomain populates the persistence model from a domain EndUser.
func (m *EndUserModel) FromDomain(u *partner.EndUser) {
	m.FromDomainAggregateRoot(u.BaseAggregateRoot)
	m.Username = u.Username
	m.Nickname = u.Nickname
	m.ReferrerID = u.ReferrerID
	m.Balance = u.Balance
	m.Status = u.Status
}

// EndUserModelFromDomain creates a new persistence model from a domain EndUser.
func EndUserModelFromDomain(u *partner.EndUser) *EndUserModel {
	m := &EndUserModel{}
	m.FromDomain(u)
	return m
}
