package partner

import (
	"context"
	"errors"
	"time"

	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/gamehub/backend/internal/domain/settlement"
	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/gamehub/backend/internal/domain/transfer"
	"github.com/gamehub/backend/internal/infrastructure/auth"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AccountProvisioner opens accounts on the aggregator. settlement.Gateway satisfies it.
type AccountProvisioner interface {
	CreateAccount(ctx context.Context, account string, creds partner.Credentials) (*settlement.Result, error)
}

// PartnerServiceConfig contains configuration for the partner service
type PartnerServiceConfig struct {
	// AccountPrefix is stripped from usernames before calling the aggregator
	AccountPrefix string
	// TokenTTL bounds how long a blocked partner's sessions stay revoked
	TokenTTL time.Duration
}

// PartnerService handles partner management
type PartnerService struct {
	partnerRepo    partner.PartnerRepository
	userRepo       partner.EndUserRepository
	hierarchy      *HierarchyService
	resolver       *CredentialResolver
	gateway        AccountProvisioner
	tokens         auth.TokenBlacklist
	eventPublisher shared.EventPublisher
	config         PartnerServiceConfig
	logger         *zap.Logger
}

// NewPartnerService creates a new PartnerService
func NewPartnerService(
	partnerRepo partner.PartnerRepository,
	userRepo partner.EndUserRepository,
	hierarchy *HierarchyService,
	resolver *CredentialResolver,
	gateway AccountProvisioner,
	tokens auth.TokenBlacklist,
	eventPublisher shared.EventPublisher,
	config PartnerServiceConfig,
	logger *zap.Logger,
) *PartnerService {
	if config.TokenTTL <= 0 {
		config.TokenTTL = 7 * 24 * time.Hour
	}
	return &PartnerService{
		partnerRepo:    partnerRepo,
		userRepo:       userRepo,
		hierarchy:      hierarchy,
		resolver:       resolver,
		gateway:        gateway,
		tokens:         tokens,
		eventPublisher: eventPublisher,
		config:         config,
		logger:         logger,
	}
}

// Create places a new partner in the tree. The hierarchy and commission are
// checked first, the account is provisioned on the aggregator, and only then
// is the row inserted.
func (s *PartnerService) Create(ctx context.Context, actor partner.Actor, req CreatePartnerRequest) (*PartnerResponse, error) {
	targetType, err := partner.ParsePartnerType(req.Type)
	if err != nil {
		return nil, err
	}

	exists, err := s.partnerRepo.ExistsByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "Partner with this username already exists")
	}

	gap, err := s.hierarchy.FindHierarchyGap(ctx, actor, targetType)
	if err != nil {
		return nil, err
	}
	if err := gap.Err(); err != nil {
		return nil, err
	}

	parentID := *gap.DirectParentID
	if req.ParentID != nil {
		ok, err := s.hierarchy.CanManagePartner(ctx, actor, *req.ParentID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, shared.NewDomainError("FORBIDDEN", "Parent partner is outside your hierarchy")
		}
		parentID = *req.ParentID
	}
	parent, err := s.partnerRepo.FindByID(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !parent.IsActive() {
		return nil, shared.NewDomainError("INVALID_PARENT", "Parent partner is not active")
	}

	p, err := partner.NewPartner(req.Username, req.Nickname, targetType, parent, req.Commission.toDomain())
	if err != nil {
		return nil, err
	}
	if err := p.SetPassword(req.Password); err != nil {
		return nil, err
	}

	creds := req.Credentials.toDomain()
	if !creds.IsEmpty() {
		if !creds.IsComplete() {
			return nil, shared.NewDomainError("INVALID_CREDENTIALS", "Opcode, secret key and API token must be set together")
		}
		p.Credentials = creds
	}

	if err := s.provision(ctx, p); err != nil {
		return nil, err
	}

	if err := s.partnerRepo.Save(ctx, p); err != nil {
		s.logger.Error("Partner provisioned on aggregator but insert failed",
			zap.String("username", p.Username),
			zap.String("partner_type", string(p.Type)),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Partner created",
		zap.String("partner_id", p.ID.String()),
		zap.String("username", p.Username),
		zap.String("partner_type", string(p.Type)),
		zap.String("parent_id", parent.ID.String()),
		zap.String("actor_id", actor.PartnerID.String()))

	s.publishEvents(ctx, p)
	response := ToPartnerResponse(p)
	return &response, nil
}

func (s *PartnerService) provision(ctx context.Context, p *partner.Partner) error {
	resolved, err := s.resolver.ResolveForPartner(ctx, p)
	if err != nil {
		return err
	}
	if _, err := s.gateway.CreateAccount(ctx, p.AccountName(s.config.AccountPrefix), resolved.Credentials); err != nil {
		return settlementFailure(err)
	}
	return nil
}

// GetByID retrieves a partner the actor can manage
func (s *PartnerService) GetByID(ctx context.Context, actor partner.Actor, id uuid.UUID) (*PartnerResponse, error) {
	p, err := s.loadManaged(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	response := ToPartnerResponse(p)
	return &response, nil
}

// List retrieves partners within the actor's subtree
func (s *PartnerService) List(ctx context.Context, actor partner.Actor, filter PartnerListFilter) ([]PartnerResponse, int64, error) {
	page, pageSize, orderBy, orderDir := normalizeFilter(filter.Page, filter.PageSize, filter.OrderBy, filter.OrderDir, "created_at")
	domainFilter := partner.PartnerFilter{
		Filter: shared.Filter{
			Page:     page,
			PageSize: pageSize,
			OrderBy:  orderBy,
			OrderDir: orderDir,
			Search:   filter.Search,
		},
		Type:   partner.PartnerType(filter.Type),
		Status: partner.PartnerStatus(filter.Status),
	}
	if filter.ParentID != "" {
		parentID, err := uuid.Parse(filter.ParentID)
		if err != nil {
			return nil, 0, shared.NewDomainError("INVALID_INPUT", "Invalid parent_id")
		}
		domainFilter.ParentID = &parentID
	}

	scope, err := s.hierarchy.ScopePartnerIDs(ctx, actor)
	if err != nil {
		return nil, 0, err
	}
	domainFilter.IDs = scope

	partners, err := s.partnerRepo.FindAll(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.partnerRepo.Count(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	return ToPartnerResponses(partners), total, nil
}

// Update edits nickname and commission. Commission is re-validated against
// the direct parent and may only be changed by someone above the partner.
func (s *PartnerService) Update(ctx context.Context, actor partner.Actor, id uuid.UUID, req UpdatePartnerRequest) (*PartnerResponse, error) {
	p, err := s.loadManaged(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	loadedVersion := p.Version

	if req.Nickname != nil {
		if err := p.UpdateProfile(*req.Nickname); err != nil {
			return nil, err
		}
	}

	if req.Commission != nil {
		if p.ID == actor.PartnerID && !actor.IsSystemAdmin() {
			return nil, shared.NewDomainError("FORBIDDEN", "Commission can only be changed by a higher tier")
		}
		var parentRates *partner.CommissionRates
		if p.ParentID != nil {
			parent, err := s.partnerRepo.FindByID(ctx, *p.ParentID)
			if err != nil {
				return nil, err
			}
			parentRates = &parent.Commission
		}
		if err := p.UpdateCommission(req.Commission.toDomain(), parentRates, actor.PartnerID); err != nil {
			return nil, err
		}
	}

	if p.Version != loadedVersion {
		p.Version = loadedVersion + 1
		if err := s.partnerRepo.SaveWithLock(ctx, p); err != nil {
			return nil, err
		}
		s.publishEvents(ctx, p)
	}

	response := ToPartnerResponse(p)
	return &response, nil
}

// ChangeStatus activates, deactivates or blocks a partner. Blocking revokes
// the partner's dashboard sessions.
func (s *PartnerService) ChangeStatus(ctx context.Context, actor partner.Actor, id uuid.UUID, req ChangePartnerStatusRequest) (*PartnerResponse, error) {
	if id == actor.PartnerID {
		return nil, shared.NewDomainError("FORBIDDEN", "You cannot change your own status")
	}
	p, err := s.loadManaged(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	loadedVersion := p.Version

	status := partner.PartnerStatus(req.Status)
	if err := p.ChangeStatus(status, actor.PartnerID); err != nil {
		return nil, err
	}
	if p.Version == loadedVersion {
		response := ToPartnerResponse(p)
		return &response, nil
	}
	if err := s.partnerRepo.SaveWithLock(ctx, p); err != nil {
		return nil, err
	}

	if status != partner.PartnerStatusActive && s.tokens != nil {
		if err := s.tokens.RevokePartner(ctx, p.ID.String(), s.config.TokenTTL); err != nil {
			s.logger.Warn("Failed to revoke sessions of deactivated partner",
				zap.String("partner_id", p.ID.String()),
				zap.Error(err))
		}
	}

	s.logger.Info("Partner status changed",
		zap.String("partner_id", p.ID.String()),
		zap.String("status", string(status)),
		zap.String("actor_id", actor.PartnerID.String()))

	s.publishEvents(ctx, p)
	response := ToPartnerResponse(p)
	return &response, nil
}

// SetCredentials replaces the aggregator credentials a partner owns. Empty
// input clears them so the partner inherits from its ancestors again.
func (s *PartnerService) SetCredentials(ctx context.Context, actor partner.Actor, id uuid.UUID, req SetCredentialsRequest) (*PartnerResponse, error) {
	if id == actor.PartnerID && !actor.IsSystemAdmin() {
		return nil, shared.NewDomainError("FORBIDDEN", "Credentials can only be changed by a higher tier")
	}
	p, err := s.loadManaged(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	creds := req.toDomain()
	if !creds.IsEmpty() && !creds.IsComplete() {
		return nil, shared.NewDomainError("INVALID_CREDENTIALS", "Opcode, secret key and API token must be set together")
	}
	p.SetCredentials(creds)
	if err := s.partnerRepo.SaveWithLock(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("Partner credentials updated",
		zap.String("partner_id", p.ID.String()),
		zap.Bool("cleared", creds.IsEmpty()),
		zap.String("actor_id", actor.PartnerID.String()))

	response := ToPartnerResponse(p)
	return &response, nil
}

// Delete removes a partner that has no child partners and no end users
func (s *PartnerService) Delete(ctx context.Context, actor partner.Actor, id uuid.UUID) error {
	if id == actor.PartnerID {
		return shared.NewDomainError("FORBIDDEN", "You cannot delete yourself")
	}
	p, err := s.loadManaged(ctx, actor, id)
	if err != nil {
		return err
	}
	if p.IsSystemAdmin() {
		return shared.NewDomainError("FORBIDDEN", "System admin cannot be deleted")
	}

	children, err := s.partnerRepo.CountChildren(ctx, id)
	if err != nil {
		return err
	}
	if children > 0 {
		return shared.NewDomainError("HAS_CHILDREN", "Partner still has child partners")
	}
	users, err := s.userRepo.CountByReferrer(ctx, id)
	if err != nil {
		return err
	}
	if users > 0 {
		return shared.NewDomainError("HAS_USERS", "Partner still manages end users")
	}

	if err := s.partnerRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Partner deleted",
		zap.String("partner_id", id.String()),
		zap.String("actor_id", actor.PartnerID.String()))
	return nil
}

// loadManaged loads a partner and hides it when it is outside the actor's subtree
func (s *PartnerService) loadManaged(ctx context.Context, actor partner.Actor, id uuid.UUID) (*partner.Partner, error) {
	ok, err := s.hierarchy.CanManagePartner(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.ErrNotFound
	}
	return s.partnerRepo.FindByID(ctx, id)
}

// publishEvents publishes domain events from the aggregate
func (s *PartnerService) publishEvents(ctx context.Context, p *partner.Partner) {
	if s.eventPublisher == nil {
		return
	}
	for _, event := range p.PendingEvents() {
		if err := s.eventPublisher.Publish(ctx, event); err != nil {
			s.logger.Warn("Failed to publish partner event",
				zap.String("event_type", event.EventType()),
				zap.Error(err))
		}
	}
	p.ClearEvents()
}

// settlementFailure reports an aggregator error with the aggregator's own message
func settlementFailure(err error) error {
	msg := err.Error()
	var se *settlement.Error
	if errors.As(err, &se) && se.Message != "" {
		msg = se.Message
	}
	return shared.NewDomainError(settlement.CodeSettlementFailed, msg+"; "+transfer.LocalRecordsUnchangedNote)
}
