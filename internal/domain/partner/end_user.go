package partner

import (
	"time"

	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EndUserStatus represents the status of a player account
type EndUserStatus string

const (
	EndUserStatusPending   EndUserStatus = "pending"
	EndUserStatusActive    EndUserStatus = "active"
	EndUserStatusSuspended EndUserStatus = "suspended"
	EndUserStatusBlocked   EndUserStatus = "blocked"
)

func (s EndUserStatus) IsValid() bool {
	switch s {
	case EndUserStatusPending, EndUserStatusActive, EndUserStatusSuspended, EndUserStatusBlocked:
		return true
	}
	return false
}

// EndUser is a player account managed by exactly one partner
type EndUser struct {
	shared.BaseAggregateRoot
	Username   string
	Nickname   string
	ReferrerID uuid.UUID
	Balance    decimal.Decimal
	Status     EndUserStatus
}

// NewEndUser creates a pending player under referrer
func NewEndUser(username, nickname string, referrer *Partner) (*EndUser, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if referrer == nil {
		return nil, shared.NewDomainError("INVALID_REFERRER", "End user requires a managing partner")
	}
	if !referrer.IsActive() {
		return nil, shared.NewDomainError("INVALID_REFERRER", "Managing partner is not active")
	}
	if nickname == "" {
		nickname = username
	}
	return &EndUser{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Username:          username,
		Nickname:          nickname,
		ReferrerID:        referrer.ID,
		Balance:           decimal.Zero,
		Status:            EndUserStatusPending,
	}, nil
}

// ChangeStatus moves the user to a new status
func (u *EndUser) ChangeStatus(status EndUserStatus) error {
	if !status.IsValid() {
		return shared.NewDomainError("INVALID_STATUS", "Unknown user status: "+string(status))
	}
	if u.Status == status {
		return nil
	}
	u.Status = status
	u.UpdatedAt = time.Now()
	u.IncrementVersion()
	return nil
}

// SetBalance records a balance computed by the ledger
func (u *EndUser) SetBalance(balance decimal.Decimal) {
	u.Balance = balance
	u.UpdatedAt = time.Now()
	u.IncrementVersion()
}

func (u *EndUser) IsBlocked() bool {
	return u.Status == EndUserStatusBlocked
}

// AccountName returns the aggregator account for this user
func (u *EndUser) AccountName(prefix string) string {
	return StripAccountPrefix(u.Username, prefix)
}
