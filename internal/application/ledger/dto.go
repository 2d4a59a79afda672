package ledger

import (
	"time"

	"github.com/gamehub/backend/internal/domain/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryResponse represents one ledger row in API responses
type EntryResponse struct {
	ID              uuid.UUID       `json:"id"`
	SubjectKind     string          `json:"subject_kind"`
	SubjectID       uuid.UUID       `json:"subject_id"`
	TransactionType string          `json:"transaction_type"`
	Amount          decimal.Decimal `json:"amount"`
	BalanceBefore   decimal.Decimal `json:"balance_before"`
	BalanceAfter    decimal.Decimal `json:"balance_after"`
	FromPartyID     *uuid.UUID      `json:"from_party_id,omitempty"`
	ToPartyID       *uuid.UUID      `json:"to_party_id,omitempty"`
	ProcessedBy     uuid.UUID       `json:"processed_by"`
	Memo            string          `json:"memo"`
	TransferID      *uuid.UUID      `json:"transfer_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ToEntryResponse converts a domain ledger row
func ToEntryResponse(e *ledger.Entry) EntryResponse {
	return EntryResponse{
		ID:              e.ID,
		SubjectKind:     string(e.SubjectKind),
		SubjectID:       e.SubjectID,
		TransactionType: string(e.TransactionType),
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

// ToEntryResponses converts a slice of ledger rows
func ToEntryResponses(entries []ledger.Entry) []EntryResponse {
	out := make([]EntryResponse, len(entries))
	for i := range entries {
		out[i] = ToEntryResponse(&entries[i])
	}
	return out
}

// EntryListQuery are the query parameters of the ledger listing endpoint
type EntryListQuery struct {
	Page       int    `form:"page" binding:"omitempty,min=1"`
	PageSize   int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Kind       string `form:"kind" binding:"omitempty,oneof=partner user"`
	SubjectID  string `form:"subject_id" binding:"omitempty,uuid"`
	Type       string `form:"type" binding:"omitempty,oneof=deposit withdrawal admin_adjustment commission refund"`
	From       string `form:"from" binding:"omitempty"`
	To         string `form:"to" binding:"omitempty"`
	OrderDir   string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
	TransferID string `form:"transfer_id" binding:"omitempty,uuid"`
}

// UnreconciledResponse represents a pending reconciliation in API responses
type UnreconciledResponse struct {
	ID                 uuid.UUID        `json:"id"`
	TransferID         uuid.UUID        `json:"transfer_id"`
	Direction          string           `json:"direction"`
	ActorID            uuid.UUID        `json:"actor_id"`
	Debit              ledger.Party     `json:"debit"`
	Credit             ledger.Party     `json:"credit"`
	SingleSided        bool             `json:"single_sided"`
	Amount             decimal.Decimal  `json:"amount"`
	SettledBalance     *decimal.Decimal `json:"settled_balance,omitempty"`
	AggregatorResponse string           `json:"aggregator_response"`
	FailureReason      string           `json:"failure_reason"`
	Status             string           `json:"status"`
	ResolvedBy         *uuid.UUID       `json:"resolved_by,omitempty"`
	ResolvedAt         *time.Time       `json:"resolved_at,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
}

// ToUnreconciledResponse converts a domain record
func ToUnreconciledResponse(u *ledger.UnreconciledSettlement) UnreconciledResponse {
	return UnreconciledResponse{
		ID:                 u.ID,
		TransferID:         u.TransferID,
		Direction:          u.Direction,
		ActorID:            u.ActorID,
		Debit:              u.Debit,
		Credit:             u.Credit,
		SingleSided:        u.SingleSided,
		Amount:             u.Amount,
		SettledBalance:     u.SettledBalance,
		AggregatorResponse: u.AggregatorResponse,
		FailureReason:      u.FailureReason,
		Status:             string(u.Status),
		ResolvedBy:         u.ResolvedBy,
		ResolvedAt:         u.ResolvedAt,
		CreatedAt:          u.CreatedAt,
	}
}

func optionalID(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
