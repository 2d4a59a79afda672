package ledger

import (
	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const AggregateTypeTransfer = "Transfer"

const EventTypeBalanceTransferred = "BalanceTransferred"

// BalanceTransferredEvent is published after a transfer's ledger commit
type BalanceTransferredEvent struct {
	shared.BaseDomainEvent
	TransferID  uuid.UUID        `json:"transfer_id"`
	Direction   string           `json:"direction"`
	Target      Party            `json:"target"`
	Amount      decimal.Decimal  `json:"amount"`
	TargetAfter decimal.Decimal  `json:"target_balance"`
	ActorAfter  *decimal.Decimal `json:"actor_balance,omitempty"`
}

func NewBalanceTransferredEvent(transferID, actorID uuid.UUID, direction string, target Party, amount, targetAfter decimal.Decimal, actorAfter *decimal.Decimal) *BalanceTransferredEvent {
	return &BalanceTransferredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBalanceTransferred, AggregateTypeTransfer, transferID, actorID),
		TransferID:      transferID,
		Direction:       direction,
		Target:          target,
		Amount:          amount,
		TargetAfter:     targetAfter,
		ActorAfter:      actorAfter,
	}
}
