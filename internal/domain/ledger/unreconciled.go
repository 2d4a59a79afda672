package ledger

import (
	"time"

	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReconciliationStatus tracks a settlement whose local commit failed
type ReconciliationStatus string

const (
	ReconciliationPending  ReconciliationStatus = "pending"
	ReconciliationResolved ReconciliationStatus = "resolved"
)

// UnreconciledSettlement records a transfer the aggregator accepted but the
// local ledger did not commit. It holds everything needed to replay the
// commit by hand.
type UnreconciledSettlement struct {
	shared.BaseAggregateRoot
	TransferID         uuid.UUID
	Direction          string
	ActorID            uuid.UUID
	Debit              Party
	Credit             Party
	SingleSided        bool
	Amount             decimal.Decimal
	SettledBalance     *decimal.Decimal
	AggregatorResponse string
	FailureReason      string
	Memo               string
	Status             ReconciliationStatus
	ResolvedBy         *uuid.UUID
	ResolvedAt         *time.Time
}

// NewUnreconciledSettlement creates a pending record
func NewUnreconciledSettlement(transferID uuid.UUID, direction string, actorID uuid.UUID, debit, credit Party, singleSided bool, amount decimal.Decimal, settled *decimal.Decimal, response, reason, memo string) *UnreconciledSettlement {
	return &UnreconciledSettlement{
		BaseAggregateRoot:  shared.NewBaseAggregateRoot(),
		TransferID:         transferID,
		Direction:          direction,
		ActorID:            actorID,
		Debit:              debit,
		Credit:             credit,
		SingleSided:        singleSided,
		Amount:             amount,
		SettledBalance:     settled,
		AggregatorResponse: response,
		FailureReason:      reason,
		Memo:               memo,
		Status:             ReconciliationPending,
	}
}

// Resolve marks the record as handled by an admin
func (u *UnreconciledSettlement) Resolve(adminID uuid.UUID) error {
	if u.Status == ReconciliationResolved {
		return shared.NewDomainError("INVALID_STATE", "Settlement is already reconciled")
	}
	now := time.Now()
	u.Status = ReconciliationResolved
	u.ResolvedBy = &adminID
	u.ResolvedAt = &now
	u.UpdatedAt = now
	u.IncrementVersion()
	return nil
}

func (u *UnreconciledSettlement) IsPending() bool {
	return u.Status == ReconciliationPending
}
