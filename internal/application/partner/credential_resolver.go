package partner

import (
	"context"

	"github.com/gamehub/backend/internal/domain/ledger"
	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SystemCredentials are the aggregator operators configured for system admins
type SystemCredentials struct {
	Opcodes   []string
	SecretKey string
	APIToken  string
}

// CredentialResolver finds the aggregator credentials that govern a balance holder
type CredentialResolver struct {
	partnerRepo partner.PartnerRepository
	userRepo    partner.EndUserRepository
	system      SystemCredentials
	logger      *zap.Logger
}

// NewCredentialResolver creates a new CredentialResolver
func NewCredentialResolver(
	partnerRepo partner.PartnerRepository,
	userRepo partner.EndUserRepository,
	system SystemCredentials,
	logger *zap.Logger,
) *CredentialResolver {
	return &CredentialResolver{
		partnerRepo: partnerRepo,
		userRepo:    userRepo,
		system:      system,
		logger:      logger,
	}
}

// Resolve returns the credentials for a party. Users start at their referrer.
func (r *CredentialResolver) Resolve(ctx context.Context, party ledger.Party) (*partner.ResolvedCredentials, error) {
	switch party.Kind {
	case ledger.SubjectPartner:
		p, err := r.partnerRepo.FindByID(ctx, party.ID)
		if err != nil {
			return nil, err
		}
		return r.ResolveForPartner(ctx, p)
	case ledger.SubjectUser:
		u, err := r.userRepo.FindByID(ctx, party.ID)
		if err != nil {
			return nil, err
		}
		referrer, err := r.partnerRepo.FindByID(ctx, u.ReferrerID)
		if err != nil {
			return nil, err
		}
		return r.ResolveForPartner(ctx, referrer)
	}
	return nil, shared.NewDomainError("INVALID_SUBJECT", "Unknown balance holder kind: "+string(party.Kind))
}

// ResolveForPartner walks up from p until a partner with complete credentials is found
func (r *CredentialResolver) ResolveForPartner(ctx context.Context, p *partner.Partner) (*partner.ResolvedCredentials, error) {
	resolved, err := partner.ResolveCredentials(ctx, r.withSystemCredentials(p), r.load)
	if err != nil {
		r.logger.Warn("Credential resolution failed",
			zap.String("partner_id", p.ID.String()),
			zap.String("username", p.Username),
			zap.Error(err))
		return nil, err
	}
	r.logger.Debug("Credentials resolved",
		zap.String("partner_id", p.ID.String()),
		zap.String("owner_id", resolved.OwnerID.String()),
		zap.Int("hops", resolved.Hops))
	return resolved, nil
}

func (r *CredentialResolver) load(ctx context.Context, id uuid.UUID) (*partner.Partner, error) {
	p, err := r.partnerRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.withSystemCredentials(p), nil
}

// withSystemCredentials fills a system admin's credentials from configuration.
// The first configured opcode wins; the stored row supplies any secret the
// configuration leaves empty.
func (r *CredentialResolver) withSystemCredentials(p *partner.Partner) *partner.Partner {
	if !p.IsSystemAdmin() || len(r.system.Opcodes) == 0 {
		return p
	}
	if len(r.system.Opcodes) > 1 {
		r.logger.Info("Several system opcodes configured, using the first",
			zap.String("opcode", r.system.Opcodes[0]),
			zap.Strings("configured", r.system.Opcodes))
	}

	filled := *p
	filled.Credentials.Opcode = r.system.Opcodes[0]
	if r.system.SecretKey != "" {
		filled.Credentials.SecretKey = r.system.SecretKey
	}
	if r.system.APIToken != "" {
		filled.Credentials.APIToken = r.system.APIToken
	}
	return &filled
}
