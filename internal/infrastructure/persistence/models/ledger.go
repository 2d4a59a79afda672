package models

import (
	"time"

	"github.com/gamehub/backend/internal/domain/ledger"
	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerEntryModel is the persistence model for an append-only ledger row.
type LedgerEntryModel struct {
	ID              uuid.UUID              `gorm:"type:uuid;primaryKey"`
	SubjectKind     ledger.SubjectKind     `gorm:"type:varchar(10);not null;index:idx_ledger_subject,priority:1"`
	SubjectID       uuid.UUID              `gorm:"type:uuid;not null;index:idx_ledger_subject,priority:2"`
	TransactionType ledger.TransactionType `gorm:"type:varchar(30);not null;index:idx_ledger_type"`
	Amount          decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	BalanceBefore   decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	BalanceAfter    decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	FromPartyID     *uuid.UUID             `gorm:"type:uuid"`
	ToPartyID       *uuid.UUID             `gorm:"type:uuid"`
	ProcessedBy     uuid.UUID              `gorm:"type:uuid;not null"`
	Memo            string                 `gorm:"type:varchar(500)"`
	TransferID      *uuid.UUID             `gorm:"type:uuid;index:idx_ledger_transfer"`
	CreatedAt       time.Time              `gorm:"not null;index:idx_ledger_created"`
}

// TableName returns the table name for GORM
func (LedgerEntryModel) TableName() string {
	return "ledger_entries"
}

// ToDomain converts the persistence model to a domain Entry.
func (m *LedgerEntryModel) ToDomain() *ledger.Entry {
	return &ledger.Entry{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.CreatedAt,
		},
		SubjectKind:     m.SubjectKind,
		SubjectID:       m.SubjectID,
		TransactionType: m.TransactionType,
		Amount:          m.Amount,
		BalanceBefore:   m.BalanceBefore,
		BalanceAfter:    m.BalanceAfter,
		FromPartyID:     m.FromPartyID,
		ToPartyID:       m.ToPartyID,
		ProcessedBy:     m.ProcessedBy,
		Memo:            m.Memo,
		TransferID:      m.TransferID,
	}
}

// LedgerEntryModelFromDomain creates a new persistence model from a domain Entry.
func LedgerEntryModelFromDomain(e *ledger.Entry) *LedgerEntryModel {
	return &LedgerEntryModel{
		ID:              e.ID,
		SubjectKind:     e.SubjectKind,
		SubjectID:       e.SubjectID,
		TransactionType: e.TransactionType,
		Amount:          e.Amount,
		BalanceBefore:   e.BalanceBefore,
		BalanceAfter:    e.BalanceAfter,
		FromPartyID:     e.FromPartyID,
		ToPartyID:       e.ToPartyID,
		ProcessedBy:     e.ProcessedBy,
		Memo:            e.Memo,
		TransferID:      e.TransferID,
		CreatedAt:       e.CreatedAt,
	}
}

// UnreconciledSettlementModel is the persistence model for a settlement
// awaiting manual reconciliation.
type UnreconciledSettlementModel struct {
	AggregateModel
	TransferID         uuid.UUID                   `gorm:"type:uuid;not null;uniqueIndex"`
	Direction          string                      `gorm:"type:varchar(20);not null"`
	ActorID            uuid.UUID                   `gorm:"type:uuid;not null"`
	DebitKind          ledger.SubjectKind          `gorm:"type:varchar(10);not null"`
	DebitID            uuid.UUID                   `gorm:"type:uuid;not null"`
	CreditKind         ledger.SubjectKind          `gorm:"type:varchar(10);not null"`
	CreditID           uuid.UUID                   `gorm:"type:uuid;not null"`
	SingleSided        bool                        `gorm:"not null;default:false"`
	Amount             decimal.Decimal             `gorm:"type:decimal(18,4);not null"`
	SettledBalance     *decimal.Decimal            `gorm:"type:decimal(18,4)"`
	AggregatorResponse string                      `gorm:"type:text"`
	FailureReason      string                      `gorm:"type:text"`
	Memo               string                      `gorm:"type:varchar(500)"`
	Status             ledger.ReconciliationStatus `gorm:"type:varchar(20);not null;default:'pending';index"`
	ResolvedBy         *uuid.UUID                  `gorm:"type:uuid"`
	ResolvedAt         *time.Time
}

// TableName returns the table name for GORM
func (UnreconciledSettlementModel) TableName() string {
	return "unreconciled_settlements"
}

// ToDomain converts the persistence model to a domain UnreconciledSettlement.
func (m *UnreconciledSettlementModel) ToDomain() *ledger.UnreconciledSettlement {
	return &ledger.UnreconciledSettlement{
		BaseAggregateRoot:  m.aggregateRoot(),
		TransferID:         m.TransferID,
		Direction:          m.Direction,
		ActorID:            m.ActorID,
		Debit:              ledger.Party{Kind: m.DebitKind, ID: m.DebitID},
		Credit:             ledger.Party{Kind: m.CreditKind, ID: m.CreditID},
		SingleSided:        m.SingleSided,
		Amount:             m.Amount,
		SettledBalance:     m.SettledBalance,
		AggregatorResponse: m.AggregatorResponse,
		FailureReason:      m.FailureReason,
		Memo:               m.Memo,
		Status:             m.Status,
		ResolvedBy:         m.ResolvedBy,
		ResolvedAt:         m.ResolvedAt,
	}
}

// FromDomain populates the persistence model from a domain UnreconciledSettlement.
func (m *UnreconciledSettlementModel) FromDomain(u *ledger.UnreconciledSettlement) {
	m.FromDomainAggregateRoot(u.BaseAggregateRoot)
	m.TransferID = u.TransferID
	m.Direction = u.Direction
	m.ActorID = u.ActorID
	m.DebitKind = u.Debit.Kind
	m.DebitID = u.Debit.ID
	m.CreditKind = u.Credit.Kind
	m.CreditID = u.Credit.ID
	m.SingleSided = u.SingleSided
	m.Amount = u.Amount
	m.SettledBalance = u.SettledBalance
	m.AggregatorResponse = u.AggregatorResponse
	m.FailureReason = u.FailureReason
	m.Memo = u.Memo
	m.Status = u.Status
	m.ResolvedBy = u.ResolvedBy
	m.ResolvedAt = u.ResolvedAt
}

// UnreconciledSettlementModelFromDomain creates a new persistence model from a domain UnreconciledSettlement.
func UnreconciledSettlementModelFromDomain(u *ledger.UnreconciledSettlement) *UnreconciledSettlementModel {
	m := &UnreconciledSettlementModel{}
	m.FromDomain(u)
	return m
}

// AllModels returns every persistence model, in dependency order, for AutoMigrate
func AllModels() []any {
	return []any{
		&PartnerModel{},
		&EndUserModel{},
		&LedgerEntryModel{},
		&UnreconciledSettlementModel{},
	}
}
