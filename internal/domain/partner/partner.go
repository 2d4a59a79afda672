package partner

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// PartnerStatus represents the status of a partner
type PartnerStatus string

const (
	PartnerStatusActive   PartnerStatus = "active"
	PartnerStatusInactive PartnerStatus = "inactive"
	PartnerStatusBlocked  PartnerStatus = "blocked"
)

// IsValid returns true if the status is known
func (s PartnerStatus) IsValid() bool {
	switch s {
	case PartnerStatusActive, PartnerStatusInactive, PartnerStatusBlocked:
		return true
	}
	return false
}

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

const (
	minPasswordLength = 8
	bcryptCost        = 10
)

// Partner is a node in the reseller tree and the aggregate root for
// balance, commission and credential operations.
type Partner struct {
	shared.BaseAggregateRoot
	Username     string
	Nickname     string
	Type         PartnerType
	Level        int
	ParentID     *uuid.UUID
	Balance      decimal.Decimal
	Commission   CommissionRates
	Credentials  Credentials
	Status       PartnerStatus
	PasswordHash string
	LastLoginAt  *time.Time
}

// NewPartner creates a partner under parent. parent must be nil only for a
// system admin and must rank exactly one tier above partnerType otherwise.
func NewPartner(username, nickname string, partnerType PartnerType, parent *Partner, commission CommissionRates) (*Partner, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if !partnerType.IsValid() {
		return nil, shared.NewDomainError("INVALID_PARTNER_TYPE", "Unknown partner type: "+string(partnerType))
	}
	if strings.TrimSpace(nickname) == "" {
		nickname = username
	}

	p := &Partner{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Username:          username,
		Nickname:          nickname,
		Type:              partnerType,
		Level:             partnerType.Level(),
		Balance:           decimal.Zero,
		Commission:        commission,
		Status:            PartnerStatusActive,
	}
	if err := p.attachTo(parent); err != nil {
		return nil, err
	}

	var parentRates *CommissionRates
	if parent != nil {
		parentRates = &parent.Commission
	}
	if err := ValidateCommission(commission, partnerType, parentRates); err != nil {
		return nil, err
	}

	p.RecordEvent(NewPartnerCreatedEvent(p))
	return p, nil
}

func (p *Partner) attachTo(parent *Partner) error {
	if p.Type == PartnerTypeSystemAdmin {
		if parent != nil {
			return shared.NewDomainError("INVALID_PARENT", "System admin cannot have a parent")
		}
		return nil
	}
	if parent == nil {
		return shared.NewDomainError("INVALID_PARENT", p.Type.DisplayName()+" requires a parent partner")
	}
	if parent.Level+1 != p.Level {
		return shared.NewDomainError("INVALID_PARENT",
			fmt.Sprintf("%s must be created directly under a %s", p.Type.DisplayName(), mustTypeForLevel(p.Level-1).DisplayName()))
	}
	id := parent.ID
	p.ParentID = &id
	return nil
}

func mustTypeForLevel(level int) PartnerType {
	t, _ := PartnerTypeForLevel(level)
	return t
}

// UpdateProfile changes the display nickname
func (p *Partner) UpdateProfile(nickname string) error {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return shared.NewDomainError("INVALID_NICKNAME", "Nickname cannot be empty")
	}
	if len(nickname) > 100 {
		return shared.NewDomainError("INVALID_NICKNAME", "Nickname cannot exceed 100 characters")
	}
	p.Nickname = nickname
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
	return nil
}

// UpdateCommission replaces the rates after checking them against the parent
func (p *Partner) UpdateCommission(rates CommissionRates, parent *CommissionRates, actorID uuid.UUID) error {
	if err := ValidateCommission(rates, p.Type, parent); err != nil {
		return err
	}
	old := p.Commission
	p.Commission = rates
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
	p.RecordEvent(NewCommissionChangedEvent(p, old, actorID))
	return nil
}

// SetCredentials sets the aggregator credentials owned by this partner
func (p *Partner) SetCredentials(c Credentials) {
	p.Credentials = c
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
}

// SetPassword hashes and stores the dashboard login password
func (p *Partner) SetPassword(password string) error {
	if len(password) < minPasswordLength {
		return shared.NewDomainError("INVALID_PASSWORD", fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}
	if len(password) > 72 {
		return shared.NewDomainError("INVALID_PASSWORD", "Password cannot exceed 72 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return err
	}
	p.PasswordHash = string(hash)
	p.UpdatedAt = time.Now()
	return nil
}

// VerifyPassword reports whether password matches the stored hash
func (p *Partner) VerifyPassword(password string) bool {
	if p.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)) == nil
}

// CanLogin reports whether the partner may sign in to the dashboard
func (p *Partner) CanLogin() bool {
	return p.Status == PartnerStatusActive && p.PasswordHash != ""
}

// RecordLogin stamps the last login time
func (p *Partner) RecordLogin(at time.Time) {
	p.LastLoginAt = &at
}

// ChangeStatus moves the partner to a new status
func (p *Partner) ChangeStatus(status PartnerStatus, actorID uuid.UUID) error {
	if !status.IsValid() {
		return shared.NewDomainError("INVALID_STATUS", "Unknown partner status: "+string(status))
	}
	if p.Type == PartnerTypeSystemAdmin && status != PartnerStatusActive {
		return shared.NewDomainError("INVALID_STATE", "System admin cannot be deactivated")
	}
	if p.Status == status {
		return nil
	}
	old := p.Status
	p.Status = status
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
	p.RecordEvent(NewPartnerStatusChangedEvent(p, old, actorID))
	return nil
}

// SetBalance records a balance computed by the ledger. The ledger owns the
// arithmetic and the audit rows; this only moves the cached value.
func (p *Partner) SetBalance(balance decimal.Decimal) {
	p.Balance = balance
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
}

func (p *Partner) IsActive() bool {
	return p.Status == PartnerStatusActive
}

func (p *Partner) IsBlocked() bool {
	return p.Status == PartnerStatusBlocked
}

func (p *Partner) IsSystemAdmin() bool {
	return p.Type == PartnerTypeSystemAdmin
}

// AccountName returns the aggregator account for this partner: the username
// with the internal prefix stripped.
func (p *Partner) AccountName(prefix string) string {
	return StripAccountPrefix(p.Username, prefix)
}

// StripAccountPrefix removes an internal username prefix
func StripAccountPrefix(username, prefix string) string {
	if prefix == "" {
		return username
	}
	return strings.TrimPrefix(username, prefix)
}

func validateUsername(username string) error {
	if username == "" {
		return shared.NewDomainError("INVALID_USERNAME", "Username cannot be empty")
	}
	if len(username) < 3 || len(username) > 50 {
		return shared.NewDomainError("INVALID_USERNAME", "Username must be between 3 and 50 characters")
	}
	if !usernamePattern.MatchString(username) {
		return shared.NewDomainError("INVALID_USERNAME", "Username can only contain letters, numbers and underscores")
	}
	return nil
}
