package partner

import (
	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/google/uuid"
)

const AggregateTypePartner = "Partner"

const (
	EventTypePartnerCreated       = "PartnerCreated"
	EventTypePartnerStatusChanged = "PartnerStatusChanged"
	EventTypeCommissionChanged    = "PartnerCommissionChanged"
)

// PartnerCreatedEvent is published when a partner row is inserted
type PartnerCreatedEvent struct {
	shared.BaseDomainEvent
	PartnerID uuid.UUID   `json:"partner_id"`
	Username  string      `json:"username"`
	Type      PartnerType `json:"partner_type"`
	ParentID  *uuid.UUID  `json:"parent_id,omitempty"`
}

func NewPartnerCreatedEvent(p *Partner) *PartnerCreatedEvent {
	var actor uuid.UUID
	if p.ParentID != nil {
		actor = *p.ParentID
	}
	return &PartnerCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePartnerCreated, AggregateTypePartner, p.ID, actor),
		PartnerID:       p.ID,
		Username:        p.Username,
		Type:            p.Type,
		ParentID:        p.ParentID,
	}
}

// PartnerStatusChangedEvent is published when a partner is activated, deactivated or blocked
type PartnerStatusChangedEvent struct {
	shared.BaseDomainEvent
	PartnerID uuid.UUID     `json:"partner_id"`
	OldStatus PartnerStatus `json:"old_status"`
	NewStatus PartnerStatus `json:"new_status"`
}

func NewPartnerStatusChangedEvent(p *Partner, old PartnerStatus, actorID uuid.UUID) *PartnerStatusChangedEvent {
	return &PartnerStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePartnerStatusChanged, AggregateTypePartner, p.ID, actorID),
		PartnerID:       p.ID,
		OldStatus:       old,
		NewStatus:       p.Status,
	}
}

// CommissionChangedEvent is published when an admin edits a partner's rates
type CommissionChangedEvent struct {
	shared.BaseDomainEvent
	PartnerID     uuid.UUID       `json:"partner_id"`
	OldCommission CommissionRates `json:"old_commission"`
	NewCommission CommissionRates `json:"new_commission"`
}

func NewCommissionChangedEvent(p *Partner, old CommissionRates, actorID uuid.UUID) *CommissionChangedEvent {
	return &CommissionChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCommissionChanged, AggregateTypePartner, p.ID, actorID),
		PartnerID:       p.ID,
		OldCommission:   old,
		NewCommission:   p.Commission,
	}
}
