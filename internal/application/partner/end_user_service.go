package partner

import (
	"context"

	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EndUserService handles player accounts managed by partners
type EndUserService struct {
	partnerRepo   partner.PartnerRepository
	userRepo      partner.EndUserRepository
	hierarchy     *HierarchyService
	resolver      *CredentialResolver
	gateway       AccountProvisioner
	accountPrefix string
	logger        *zap.Logger
}

// NewEndUserService creates a new EndUserService
func NewEndUserService(
	partnerRepo partner.PartnerRepository,
	userRepo partner.EndUserRepository,
	hierarchy *HierarchyService,
	resolver *CredentialResolver,
	gateway AccountProvisioner,
	accountPrefix string,
	logger *zap.Logger,
) *EndUserService {
	return &EndUserService{
		partnerRepo:   partnerRepo,
		userRepo:      userRepo,
		hierarchy:     hierarchy,
		resolver:      resolver,
		gateway:       gateway,
		accountPrefix: accountPrefix,
		logger:        logger,
	}
}

// Create provisions a player on the aggregator under a manageable partner and
// then inserts the row. The referrer defaults to the actor.
func (s *EndUserService) Create(ctx context.Context, actor partner.Actor, req CreateEndUserRequest) (*EndUserResponse, error) {
	referrerID := actor.PartnerID
	if req.ReferrerID != nil {
		referrerID = *req.ReferrerID
	}
	ok, err := s.hierarchy.CanManagePartner(ctx, actor, referrerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.NewDomainError("FORBIDDEN", "Referrer is outside your hierarchy")
	}
	referrer, err := s.partnerRepo.FindByID(ctx, referrerID)
	if err != nil {
		return nil, err
	}

	exists, err := s.userRepo.ExistsByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "User with this username already exists")
	}

	u, err := partner.NewEndUser(req.Username, req.Nickname, referrer)
	if err != nil {
		return nil, err
	}

	resolved, err := s.resolver.ResolveForPartner(ctx, referrer)
	if err != nil {
		return nil, err
	}
	if _, err := s.gateway.CreateAccount(ctx, u.AccountName(s.accountPrefix), resolved.Credentials); err != nil {
		return nil, settlementFailure(err)
	}
	if err := u.ChangeStatus(partner.EndUserStatusActive); err != nil {
		return nil, err
	}
	u.Version = 1

	if err := s.userRepo.Save(ctx, u); err != nil {
		s.logger.Error("End user provisioned on aggregator but insert failed",
			zap.String("username", u.Username),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("End user created",
		zap.String("user_id", u.ID.String()),
		zap.String("username", u.Username),
		zap.String("referrer_id", referrer.ID.String()))

	response := ToEndUserResponse(u)
	return &response, nil
}

// GetByID retrieves a user whose referrer the actor can manage
func (s *EndUserService) GetByID(ctx context.Context, actor partner.Actor, id uuid.UUID) (*EndUserResponse, error) {
	u, err := s.loadManaged(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	response := ToEndUserResponse(u)
	return &response, nil
}

// List retrieves users referred by partners in the actor's subtree
func (s *EndUserService) List(ctx context.Context, actor partner.Actor, filter EndUserListFilter) ([]EndUserResponse, int64, error) {
	page, pageSize, orderBy, orderDir := normalizeFilter(filter.Page, filter.PageSize, filter.OrderBy, filter.OrderDir, "created_at")
	domainFilter := partner.EndUserFilter{
		Filter: shared.Filter{
			Page:     page,
			PageSize: pageSize,
			OrderBy:  orderBy,
			OrderDir: orderDir,
			Search:   filter.Search,
		},
		Status: partner.EndUserStatus(filter.Status),
	}

	scope, err := s.hierarchy.ScopePartnerIDs(ctx, actor)
	if err != nil {
		return nil, 0, err
	}
	if filter.ReferrerID != "" {
		referrerID, err := uuid.Parse(filter.ReferrerID)
		if err != nil {
			return nil, 0, shared.NewDomainError("INVALID_INPUT", "Invalid referrer_id")
		}
		if scope != nil && !containsID(scope, referrerID) {
			return []EndUserResponse{}, 0, nil
		}
		scope = []uuid.UUID{referrerID}
	}
	domainFilter.ReferrerIDs = scope

	users, err := s.userRepo.FindAll(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.userRepo.Count(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}

	out := make([]EndUserResponse, len(users))
	for i := range users {
		out[i] = ToEndUserResponse(&users[i])
	}
	return out, total, nil
}

// ChangeStatus moves a user to a new status
func (s *EndUserService) ChangeStatus(ctx context.Context, actor partner.Actor, id uuid.UUID, req ChangeEndUserStatusRequest) (*EndUserResponse, error) {
	u, err := s.loadManaged(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	loadedVersion := u.Version
	if err := u.ChangeStatus(partner.EndUserStatus(req.Status)); err != nil {
		return nil, err
	}
	if u.Version != loadedVersion {
		if err := s.userRepo.SaveWithLock(ctx, u); err != nil {
			return nil, err
		}
		s.logger.Info("End user status changed",
			zap.String("user_id", u.ID.String()),
			zap.String("status", req.Status),
			zap.String("actor_id", actor.PartnerID.String()))
	}
	response := ToEndUserResponse(u)
	return &response, nil
}

func (s *EndUserService) loadManaged(ctx context.Context, actor partner.Actor, id uuid.UUID) (*partner.EndUser, error) {
	ok, err := s.hierarchy.CanManageUser(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.ErrNotFound
	}
	return s.userRepo.FindByID(ctx, id)
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
