package ledger

import (
	"strings"
	"time"

	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType classifies a balance mutation
type TransactionType string

const (
	TransactionTypeDeposit         TransactionType = "deposit"
	TransactionTypeWithdrawal      TransactionType = "withdrawal"
	TransactionTypeAdminAdjustment TransactionType = "admin_adjustment"
	TransactionTypeCommission      TransactionType = "commission"
	TransactionTypeRefund          TransactionType = "refund"
)

func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeDeposit,
		TransactionTypeWithdrawal,
		TransactionTypeAdminAdjustment,
		TransactionTypeCommission,
		TransactionTypeRefund:
		return true
	}
	return false
}

func (t TransactionType) String() string {
	return string(t)
}

// SubjectKind says whether a ledger subject is a partner or an end user
type SubjectKind string

const (
	SubjectPartner SubjectKind = "partner"
	SubjectUser    SubjectKind = "user"
)

func (k SubjectKind) IsValid() bool {
	return k == SubjectPartner || k == SubjectUser
}

// ParseSubjectKind parses "partner" or "user"
func ParseSubjectKind(s string) (SubjectKind, error) {
	k := SubjectKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", shared.NewDomainError("INVALID_SUBJECT_KIND", "Party kind must be partner or user")
	}
	return k, nil
}

// Party identifies an account that holds a balance
type Party struct {
	Kind SubjectKind `json:"kind"`
	ID   uuid.UUID   `json:"id"`
}

func PartnerParty(id uuid.UUID) Party {
	return Party{Kind: SubjectPartner, ID: id}
}

func UserParty(id uuid.UUID) Party {
	return Party{Kind: SubjectUser, ID: id}
}

func (p Party) String() string {
	return string(p.Kind) + ":" + p.ID.String()
}

// Entry is an immutable audit row for one balance mutation. Corrections are
// new entries, never edits.
type Entry struct {
	shared.BaseEntity
	SubjectKind     SubjectKind
	SubjectID       uuid.UUID
	TransactionType TransactionType
	Amount          decimal.Decimal // signed
	BalanceBefore   decimal.Decimal
	BalanceAfter    decimal.Decimal
	FromPartyID     *uuid.UUID
	ToPartyID       *uuid.UUID
	ProcessedBy     uuid.UUID
	Memo            string
	TransferID      *uuid.UUID
}

// EntryParams are the inputs to NewEntry
type EntryParams struct {
	Subject       Party
	Type          TransactionType
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	From          *uuid.UUID
	To            *uuid.UUID
	ProcessedBy   uuid.UUID
	Memo          string
	TransferID    *uuid.UUID
}

// NewEntry builds a ledger row. BalanceAfter - BalanceBefore must equal Amount.
func NewEntry(p EntryParams) (*Entry, error) {
	if !p.Subject.Kind.IsValid() || p.Subject.ID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SUBJECT", "Ledger entry requires a partner or user subject")
	}
	if !p.Type.IsValid() {
		return nil, shared.NewDomainError("INVALID_TRANSACTION_TYPE", "Invalid ledger transaction type")
	}
	if p.Amount.IsZero() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Ledger entry amount cannot be zero")
	}
	if !p.BalanceAfter.Sub(p.BalanceBefore).Equal(p.Amount) {
		return nil, shared.NewDomainError("LEDGER_IMBALANCE",
			"Balance change "+p.BalanceAfter.Sub(p.BalanceBefore).String()+" does not match amount "+p.Amount.String())
	}
	return &Entry{
		BaseEntity:      shared.NewBaseEntity(),
		SubjectKind:     p.Subject.Kind,
		SubjectID:       p.Subject.ID,
		TransactionType: p.Type,
		Amount:          p.Amount,
		BalanceBefore:   p.BalanceBefore,
		BalanceAfter:    p.BalanceAfter,
		FromPartyID:     p.From,
		ToPartyID:       p.To,
		ProcessedBy:     p.ProcessedBy,
		Memo:            strings.TrimSpace(p.Memo),
		TransferID:      p.TransferID,
	}, nil
}

// Subject returns the party this row belongs to
func (e *Entry) Subject() Party {
	return Party{Kind: e.SubjectKind, ID: e.SubjectID}
}

func (e *Entry) IsCredit() bool {
	return e.Amount.IsPositive()
}

func (e *Entry) IsDebit() bool {
	return e.Amount.IsNegative()
}

// OccurredAt is the row's creation time
func (e *Entry) OccurredAt() time.Time {
	return e.CreatedAt
}
