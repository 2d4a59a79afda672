package partner

import (
	"context"
	"time"

	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PartnerFilter narrows partner listings
type PartnerFilter struct {
	shared.Filter
	// IDs restricts the result to these partners; nil means no restriction
	IDs      []uuid.UUID
	Type     PartnerType
	Status   PartnerStatus
	ParentID *uuid.UUID
}

// PartnerRepository defines the interface for partner persistence
type PartnerRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Partner, error)

	FindByUsername(ctx context.Context, username string) (*Partner, error)

	// FindChildrenOf returns the direct children of all given parents
	FindChildrenOf(ctx context.Context, parentIDs []uuid.UUID) ([]Partner, error)

	// FindByType returns every partner of a tier, oldest first
	FindByType(ctx context.Context, partnerType PartnerType) ([]Partner, error)

	FindAll(ctx context.Context, filter PartnerFilter) ([]Partner, error)

	Count(ctx context.Context, filter PartnerFilter) (int64, error)

	// SumChildBalances sums the balances of parentID's direct children of one tier
	SumChildBalances(ctx context.Context, parentID uuid.UUID, childType PartnerType) (decimal.Decimal, error)

	CountChildren(ctx context.Context, parentID uuid.UUID) (int64, error)

	ExistsByUsername(ctx context.Context, username string) (bool, error)

	// Save creates or fully updates a partner without a version check
	Save(ctx context.Context, p *Partner) error

	// SaveWithLock updates a partner only if the stored version is p.Version-1
	SaveWithLock(ctx context.Context, p *Partner) error

	// UpdateLastLogin stamps the login time without touching balance or version
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error

	Delete(ctx context.Context, id uuid.UUID) error
}

// EndUserFilter narrows end user listings
type EndUserFilter struct {
	shared.Filter
	// ReferrerIDs restricts the result to users managed by these partners; nil means no restriction
	ReferrerIDs []uuid.UUID
	Status      EndUserStatus
}

// EndUserRepository defines the interface for end user persistence
type EndUserRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*EndUser, error)
	FindByUsername(ctx context.Context, username string) (*EndUser, error)
	FindAll(ctx context.Context, filter EndUserFilter) ([]EndUser, error)
	Count(ctx context.Context, filter EndUserFilter) (int64, error)
	CountByReferrer(ctx context.Context, referrerID uuid.UUID) (int64, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	Save(ctx context.Context, u *EndUser) error
	SaveWithLock(ctx context.Context, u *EndUser) error
}
