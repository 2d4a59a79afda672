package persistence

import (
	"context"
	"errors"
	"testing"

	appledger "github.com/gamehub/backend/internal/application/ledger"
	transferapp "github.com/gamehub/backend/internal/application/transfer"
	"github.com/gamehub/backend/internal/domain/ledger"
	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/gamehub/backend/internal/domain/settlement"
	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/gamehub/backend/internal/domain/transfer"
	"github.com/gamehub/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type openAccess struct{}

func (openAccess) CanAccessParty(context.Context, partner.Actor, ledger.Party) (bool, error) {
	return true, nil
}

type fixedResolver struct{}

func (fixedResolver) Resolve(context.Context, ledger.Party) (*partner.ResolvedCredentials, error) {
	return &partner.ResolvedCredentials{
		Credentials: partner.Credentials{Opcode: "HEAD", SecretKey: "head-secret", APIToken: "head-token"},
	}, nil
}

// nestedGateway accepts every call and runs nested inside the first deposit
type nestedGateway struct {
	nested func()
	calls  int
}

func (g *nestedGateway) Deposit(context.Context, settlement.Request) (*settlement.Result, error) {
	g.calls++
	if g.calls == 1 {
		g.nested()
	}
	return &settlement.Result{Raw: `{"RESULT":true}`}, nil
}

func (g *nestedGateway) Withdraw(context.Context, settlement.Request) (*settlement.Result, error) {
	return nil, errors.New("not used")
}

func (g *nestedGateway) CreateAccount(context.Context, string, partner.Credentials) (*settlement.Result, error) {
	return &settlement.Result{}, nil
}

func TestTransfer_SecondDepositDuringSettlement(t *testing.T) {
	db := setupPartnerTestDB(t)
	ctx := context.Background()
	partners := NewGormPartnerRepository(db)
	users := NewGormEndUserRepository(db)
	unreconciled := NewGormUnreconciledRepository(db)
	tree := seedPartnerTree(t, partners)

	scope := NewGormTransactionScope(db)
	ledgerSvc := appledger.NewService(scope, NewGormEntryRepository(db), nil, zap.NewNop())
	recorder := appledger.NewReconciliationService(scope, unreconciled, zap.NewNop())
	gateway := &nestedGateway{}
	svc := transferapp.NewOrchestrator(partners, users, openAccess{}, fixedResolver{}, gateway, ledgerSvc, recorder,
		transferapp.Config{AccountPrefix: "gh_"}, zap.NewNop())

	head := partner.ActorFromPartner(tree.head)
	req := transfer.Request{
		Target:    ledger.PartnerParty(tree.sub.ID),
		Direction: transfer.DirectionDeposit,
		Amount:    decimal.NewFromInt(1000),
	}
	var nestedErr error
	gateway.nested = func() { _, nestedErr = svc.Execute(ctx, head, req) }

	_, err := svc.Execute(ctx, head, req)
	require.NoError(t, nestedErr)

	var terr *transfer.Error
	require.True(t, errors.As(err, &terr), "got %v", err)
	assert.Equal(t, transfer.CodeLedgerCommitFailed, terr.Code)
	assert.ErrorIs(t, terr.Cause, shared.ErrConcurrencyConflict)

	storedHead, err := partners.FindByID(ctx, tree.head.ID)
	require.NoError(t, err)
	assert.True(t, storedHead.Balance.IsZero(), "head balance %s", storedHead.Balance)
	storedSub, err := partners.FindByID(ctx, tree.sub.ID)
	require.NoError(t, err)
	assert.True(t, storedSub.Balance.Equal(decimal.NewFromInt(1050)), "sub balance %s", storedSub.Balance)

	var rows int64
	require.NoError(t, db.Model(&models.LedgerEntryModel{}).Count(&rows).Error)
	assert.Equal(t, int64(2), rows, "only the first deposit is booked")

	pending, err := unreconciled.CountByStatus(ctx, ledger.ReconciliationPending)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
}
