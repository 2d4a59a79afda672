package partner

import (
	"context"
	"errors"

	ledgerapp "github.com/gamehub/backend/internal/application/ledger"
	"github.com/gamehub/backend/internal/domain/ledger"
	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var _ ledgerapp.AccessChecker = (*HierarchyService)(nil)

// HierarchyService answers subtree and placement questions about the partner tree
type HierarchyService struct {
	partnerRepo partner.PartnerRepository
	userRepo    partner.EndUserRepository
	logger      *zap.Logger
}

// NewHierarchyService creates a new HierarchyService
func NewHierarchyService(partnerRepo partner.PartnerRepository, userRepo partner.EndUserRepository, logger *zap.Logger) *HierarchyService {
	return &HierarchyService{
		partnerRepo: partnerRepo,
		userRepo:    userRepo,
		logger:      logger,
	}
}

// DescendantsOf returns every partner below partnerID, nearest tier first
func (s *HierarchyService) DescendantsOf(ctx context.Context, partnerID uuid.UUID) (*partner.Descendants, error) {
	return partner.CollectDescendants(ctx, partnerID, s.partnerRepo.FindChildrenOf)
}

// Subtree summarises the descendants of a partner the actor can manage
func (s *HierarchyService) Subtree(ctx context.Context, actor partner.Actor, partnerID uuid.UUID) (*SubtreeResponse, error) {
	ok, err := s.CanManagePartner(ctx, actor, partnerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.ErrNotFound
	}
	desc, err := s.DescendantsOf(ctx, partnerID)
	if err != nil {
		return nil, err
	}

	byType := map[partner.PartnerType]*TierCount{}
	for _, p := range desc.Partners {
		tc, ok := byType[p.Type]
		if !ok {
			tc = &TierCount{Type: string(p.Type), TypeName: p.Type.DisplayName()}
			byType[p.Type] = tc
		}
		tc.Count++
		if p.IsActive() {
			tc.Active++
		}
	}
	tiers := make([]TierCount, 0, len(byType))
	for _, t := range partner.AllPartnerTypes() {
		if tc, ok := byType[t]; ok {
			tiers = append(tiers, *tc)
		}
	}

	return &SubtreeResponse{RootID: partnerID, Total: desc.Len(), Tiers: tiers, IDs: desc.IDs()}, nil
}

// FindHierarchyGap reports whether the actor can place a new partner of
// targetType, and under which parent by default
func (s *HierarchyService) FindHierarchyGap(ctx context.Context, actor partner.Actor, targetType partner.PartnerType) (*partner.HierarchyGap, error) {
	actorPartner, err := s.partnerRepo.FindByID(ctx, actor.PartnerID)
	if err != nil {
		return nil, err
	}
	desc, err := s.DescendantsOf(ctx, actorPartner.ID)
	if err != nil {
		return nil, err
	}
	return partner.FindHierarchyGap(actorPartner, targetType, desc)
}

// CanManagePartner reports whether targetID is the actor or one of its
// descendants. System admins manage everything.
func (s *HierarchyService) CanManagePartner(ctx context.Context, actor partner.Actor, targetID uuid.UUID) (bool, error) {
	if actor.IsSystemAdmin() || targetID == actor.PartnerID {
		return true, nil
	}
	// walk up from the target; the tree is at most six tiers deep
	current := targetID
	for i := 0; i < partner.LevelStore; i++ {
		p, err := s.partnerRepo.FindByID(ctx, current)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		if p.ParentID == nil || p.Level <= actor.Level() {
			return false, nil
		}
		if *p.ParentID == actor.PartnerID {
			return true, nil
		}
		current = *p.ParentID
	}
	return false, nil
}

// CanManageUser reports whether the user's referrer is manageable by the actor
func (s *HierarchyService) CanManageUser(ctx context.Context, actor partner.Actor, userID uuid.UUID) (bool, error) {
	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if actor.IsSystemAdmin() {
		return true, nil
	}
	return s.CanManagePartner(ctx, actor, u.ReferrerID)
}

// CanAccessParty reports whether the actor may see or move the party's balance
func (s *HierarchyService) CanAccessParty(ctx context.Context, actor partner.Actor, party ledger.Party) (bool, error) {
	switch party.Kind {
	case ledger.SubjectPartner:
		return s.CanManagePartner(ctx, actor, party.ID)
	case ledger.SubjectUser:
		return s.CanManageUser(ctx, actor, party.ID)
	}
	return false, nil
}

// ScopePartnerIDs returns the actor plus its descendants, or nil for a system
// admin who sees everything
func (s *HierarchyService) ScopePartnerIDs(ctx context.Context, actor partner.Actor) ([]uuid.UUID, error) {
	if actor.IsSystemAdmin() {
		return nil, nil
	}
	desc, err := s.DescendantsOf(ctx, actor.PartnerID)
	if err != nil {
		return nil, err
	}
	return append([]uuid.UUID{actor.PartnerID}, desc.IDs()...), nil
}
