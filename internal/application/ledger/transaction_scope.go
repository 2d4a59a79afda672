package ledger

import (
	"context"

	"github.com/gamehub/backend/internal/domain/ledger"
	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/google/uuid"
)

// TransactionScope provides transactional access to balance-holding
// repositories. Everything done through repos inside fn commits or rolls
// back together.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories share one underlying database transaction
type TransactionalRepositories interface {
	PartnerRepo() partner.PartnerRepository
	EndUserRepo() partner.EndUserRepository
	EntryRepo() ledger.EntryRepository
	UnreconciledRepo() ledger.UnreconciledRepository
}

// AccessChecker decides which balance holders an actor may see
type AccessChecker interface {
	CanAccessParty(ctx context.Context, actor partner.Actor, party ledger.Party) (bool, error)
	// ScopePartnerIDs returns the actor and its descendants, or nil when the
	// actor sees everything
	ScopePartnerIDs(ctx context.Context, actor partner.Actor) ([]uuid.UUID, error)
}
