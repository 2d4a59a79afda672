package ledger

import (
	"context"

	"github.com/gamehub/backend/internal/domain/ledger"
	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// account is a balance holder loaded inside a transaction
type account interface {
	Balance() decimal.Decimal
	Version() int
	SetBalance(decimal.Decimal)
	save(ctx context.Context) error
}

type partnerAccount struct {
	p    *partner.Partner
	repo partner.PartnerRepository
}

func (a *partnerAccount) Balance() decimal.Decimal     { return a.p.Balance }
func (a *partnerAccount) Version() int                 { return a.p.Version }
func (a *partnerAccount) SetBalance(b decimal.Decimal) { a.p.SetBalance(b) }
func (a *partnerAccount) save(ctx context.Context) error {
	return a.repo.SaveWithLock(ctx, a.p)
}

type userAccount struct {
	u    *partner.EndUser
	repo partner.EndUserRepository
}

func (a *userAccount) Balance() decimal.Decimal     { return a.u.Balance }
func (a *userAccount) Version() int                 { return a.u.Version }
func (a *userAccount) SetBalance(b decimal.Decimal) { a.u.SetBalance(b) }
func (a *userAccount) save(ctx context.Context) error {
	return a.repo.SaveWithLock(ctx, a.u)
}

func loadAccount(ctx context.Context, repos TransactionalRepositories, party ledger.Party) (account, error) {
	switch party.Kind {
	case ledger.SubjectPartner:
		p, err := repos.PartnerRepo().FindByID(ctx, party.ID)
		if err != nil {
			return nil, err
		}
		return &partnerAccount{p: p, repo: repos.PartnerRepo()}, nil
	case ledger.SubjectUser:
		u, err := repos.EndUserRepo().FindByID(ctx, party.ID)
		if err != nil {
			return nil, err
		}
		return &userAccount{u: u, repo: repos.EndUserRepo()}, nil
	}
	return nil, shared.NewDomainError("INVALID_SUBJECT_KIND", "Unknown party kind: "+string(party.Kind))
}
