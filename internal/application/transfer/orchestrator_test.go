package transfer

import (
	"context"
	"errors"
	"testing"
	"time"

	ledgerapp "github.com/gamehub/backend/internal/application/ledger"
	"github.com/gamehub/backend/internal/domain/ledger"
	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/gamehub/backend/internal/domain/settlement"
	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/gamehub/backend/internal/domain/transfer"
	"github.com/gamehub/backend/internal/infrastructure/cache"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var mainCreds = &partner.ResolvedCredentials{
	Credentials: partner.Credentials{Opcode: "MAIN", SecretKey: "main-secret", APIToken: "main-token"},
}

type fixture struct {
	w         *world
	resolver  *MockResolver
	gateway   *MockGateway
	ledger    *MockLedger
	recorder  *recordingRecorder
	publisher *capturingPublisher
	store     *cache.InMemoryIdempotencyStore
	svc       *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		w:         newWorld(),
		resolver:  new(MockResolver),
		gateway:   new(MockGateway),
		ledger:    new(MockLedger),
		recorder:  &recordingRecorder{},
		publisher: &capturingPublisher{},
		store:     cache.NewInMemoryIdempotencyStore(),
	}
	t.Cleanup(func() { _ = f.store.Close() })

	f.svc = NewOrchestrator(f.w.partners, f.w.users, f.w.access, f.resolver, f.gateway, f.ledger, f.recorder, Config{
		AccountPrefix: "gh_",
		MaxAmount:     decimal.NewFromInt(100000),
	}, zap.NewNop())
	f.svc.SetIdempotencyStore(f.store)
	f.svc.SetEventPublisher(f.publisher)
	return f
}

func amount(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func ptr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

func requireTransferError(t *testing.T, err error, code string, state transfer.State) *transfer.Error {
	t.Helper()
	var terr *transfer.Error
	require.True(t, errors.As(err, &terr), "expected transfer error, got %v", err)
	assert.Equal(t, code, terr.Code)
	assert.Equal(t, state, terr.State)
	return terr
}

func TestOrchestrator_Deposit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	target := ledger.PartnerParty(f.w.main1.ID)

	f.resolver.On("Resolve", mock.Anything, target).Return(mainCreds, nil)
	f.gateway.On("Deposit", mock.Anything, settlement.Request{
		Account:     "main_one",
		Amount:      amount(100),
		Credentials: mainCreds.Credentials,
	}).Return(&settlement.Result{NewBalance: ptr(amount(400)), Raw: `{"RESULT":true}`}, nil)
	f.ledger.On("ApplyPairedMutation", mock.Anything, mock.MatchedBy(func(m ledgerapp.PairedMutation) bool {
		return m.Debit == ledger.PartnerParty(f.w.head.ID) &&
			m.Credit == target &&
			m.Amount.Equal(amount(100)) &&
			m.Type == ledger.TransactionTypeDeposit &&
			m.CreditSettled != nil && m.CreditSettled.Equal(amount(400)) &&
			m.DebitSettled == nil &&
			m.DebitSeen != nil && m.DebitSeen.Balance.Equal(amount(1000)) && m.DebitSeen.Version == f.w.head.Version &&
			m.DebitMemo == "Deposit to gh_main_one (Main Office): weekly top-up" &&
			m.CreditMemo == "Deposit from gh_head (Head Office): weekly top-up"
	})).Return(&ledgerapp.MutationResult{DebitAfter: amount(900), CreditAfter: amount(400)}, nil)

	res, err := f.svc.Execute(ctx, partner.ActorFromPartner(f.w.head), transfer.Request{
		Target:    target,
		Direction: transfer.DirectionDeposit,
		Amount:    amount(100),
		Memo:      "weekly top-up",
	})
	require.NoError(t, err)
	assert.True(t, res.TargetBalance.Equal(amount(400)))
	require.NotNil(t, res.ActorBalance)
	assert.True(t, res.ActorBalance.Equal(amount(900)))
	assert.Equal(t, "done", res.State)
	assert.Equal(t, []string{"validating", "resolving_credentials", "settling", "committing_ledger", "done"}, res.History)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, ledger.EventTypeBalanceTransferred, f.publisher.events[0].EventType())
	f.gateway.AssertExpectations(t)
	f.ledger.AssertExpectations(t)
}

func TestOrchestrator_Withdrawal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	target := ledger.UserParty(f.w.player.ID)

	f.resolver.On("Resolve", mock.Anything, target).Return(mainCreds, nil)
	f.gateway.On("Withdraw", mock.Anything, mock.MatchedBy(func(r settlement.Request) bool {
		return r.Account == "player" && r.Amount.Equal(amount(15))
	})).Return(&settlement.Result{}, nil)
	f.ledger.On("ApplyPairedMutation", mock.Anything, mock.MatchedBy(func(m ledgerapp.PairedMutation) bool {
		return m.Debit == target && m.Credit == ledger.PartnerParty(f.w.sub.ID) &&
			m.Type == ledger.TransactionTypeWithdrawal && m.DebitSettled == nil
	})).Return(&ledgerapp.MutationResult{DebitAfter: amount(5), CreditAfter: amount(65)}, nil)

	res, err := f.svc.Execute(ctx, partner.ActorFromPartner(f.w.sub), transfer.Request{
		Target:    target,
		Direction: transfer.DirectionWithdrawal,
		Amount:    amount(15),
	})
	require.NoError(t, err)
	assert.True(t, res.TargetBalance.Equal(amount(5)))
	assert.True(t, res.ActorBalance.Equal(amount(65)))
}

func TestOrchestrator_SystemAdminIsSingleSided(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	target := ledger.PartnerParty(f.w.head.ID)

	f.resolver.On("Resolve", mock.Anything, target).Return(mainCreds, nil)
	f.gateway.On("Deposit", mock.Anything, mock.Anything).Return(&settlement.Result{}, nil)
	f.ledger.On("ApplySingleMutation", mock.Anything, mock.MatchedBy(func(m ledgerapp.SingleMutation) bool {
		return m.Party == target && m.Amount.Equal(amount(5000)) &&
			m.Counterparty != nil && *m.Counterparty == f.w.admin.ID
	})).Return(&ledgerapp.MutationResult{CreditAfter: amount(6000)}, nil)

	// the admin has no balance of its own
	res, err := f.svc.Execute(ctx, partner.ActorFromPartner(f.w.admin), transfer.Request{
		Target:    target,
		Direction: transfer.DirectionDeposit,
		Amount:    amount(5000),
	})
	require.NoError(t, err)
	assert.True(t, res.TargetBalance.Equal(amount(6000)))
	assert.Nil(t, res.ActorBalance)
	f.ledger.AssertNotCalled(t, "ApplyPairedMutation", mock.Anything, mock.Anything)
}

func TestOrchestrator_Rejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		actor func(w *world) *partner.Partner
		req   func(w *world) transfer.Request
		code  string
	}{
		{
			name:  "zero amount",
			actor: func(w *world) *partner.Partner { return w.head },
			req: func(w *world) transfer.Request {
				return transfer.Request{Target: ledger.PartnerParty(w.main1.ID), Direction: transfer.DirectionDeposit, Amount: decimal.Zero}
			},
			code: transfer.CodeValidationFailed,
		},
		{
			name:  "sub-cent amount",
			actor: func(w *world) *partner.Partner { return w.head },
			req: func(w *world) transfer.Request {
				return transfer.Request{Target: ledger.PartnerParty(w.main1.ID), Direction: transfer.DirectionDeposit, Amount: decimal.RequireFromString("0.004")}
			},
			code: transfer.CodeValidationFailed,
		},
		{
			name:  "above maximum",
			actor: func(w *world) *partner.Partner { return w.admin },
			req: func(w *world) transfer.Request {
				return transfer.Request{Target: ledger.PartnerParty(w.head.ID), Direction: transfer.DirectionDeposit, Amount: amount(100001)}
			},
			code: transfer.CodeValidationFailed,
		},
		{
			name:  "withdrawal above target balance",
			actor: func(w *world) *partner.Partner { return w.main1 },
			req: func(w *world) transfer.Request {
				return transfer.Request{Target: ledger.PartnerParty(w.sub.ID), Direction: transfer.DirectionWithdrawal, Amount: amount(51)}
			},
			code: transfer.CodeInsufficientBalance,
		},
		{
			name:  "deposit above actor balance",
			actor: func(w *world) *partner.Partner { return w.main1 },
			req: func(w *world) transfer.Request {
				return transfer.Request{Target: ledger.PartnerParty(w.sub.ID), Direction: transfer.DirectionDeposit, Amount: amount(301)}
			},
			code: transfer.CodeInsufficientBalance,
		},
		{
			name:  "head office ceiling",
			actor: func(w *world) *partner.Partner { return w.head },
			req: func(w *world) transfer.Request {
				// 300 + 200 + 600 > 1000
				return transfer.Request{Target: ledger.PartnerParty(w.main1.ID), Direction: transfer.DirectionDeposit, Amount: amount(600)}
			},
			code: transfer.CodeSubtreeCeiling,
		},
		{
			name:  "blocked target",
			actor: func(w *world) *partner.Partner { return w.sub },
			req: func(w *world) transfer.Request {
				return transfer.Request{Target: ledger.UserParty(w.blocked.ID), Direction: transfer.DirectionDeposit, Amount: amount(1)}
			},
			code: transfer.CodeTargetBlocked,
		},
		{
			name:  "target outside subtree",
			actor: func(w *world) *partner.Partner { return w.main2 },
			req: func(w *world) transfer.Request {
				return transfer.Request{Target: ledger.UserParty(w.player.ID), Direction: transfer.DirectionDeposit, Amount: amount(1)}
			},
			code: "NOT_FOUND",
		},
		{
			name:  "own account",
			actor: func(w *world) *partner.Partner { return w.sub },
			req: func(w *world) transfer.Request {
				return transfer.Request{Target: ledger.PartnerParty(w.sub.ID), Direction: transfer.DirectionDeposit, Amount: amount(1)}
			},
			code: transfer.CodeValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Execute(ctx, partner.ActorFromPartner(tt.actor(f.w)), tt.req(f.w))
			require.Error(t, err)
			requireTransferError(t, err, tt.code, transfer.StateRejected)

			f.resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
			f.gateway.AssertNotCalled(t, "Deposit", mock.Anything, mock.Anything)
			f.gateway.AssertNotCalled(t, "Withdraw", mock.Anything, mock.Anything)
			assert.Empty(t, f.publisher.events)
		})
	}
}

func TestOrchestrator_HeadOfficeCeilingBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	target := ledger.PartnerParty(f.w.main2.ID)

	f.resolver.On("Resolve", mock.Anything, target).Return(mainCreds, nil)
	f.gateway.On("Deposit", mock.Anything, mock.Anything).Return(&settlement.Result{}, nil)
	f.ledger.On("ApplyPairedMutation", mock.Anything, mock.Anything).
		Return(&ledgerapp.MutationResult{DebitAfter: amount(500), CreditAfter: amount(700)}, nil)

	// 300 + 200 + 500 == 1000 is allowed
	_, err := f.svc.Execute(ctx, partner.ActorFromPartner(f.w.head), transfer.Request{
		Target:    target,
		Direction: transfer.DirectionDeposit,
		Amount:    amount(500),
	})
	require.NoError(t, err)
}

func TestOrchestrator_CredentialFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	target := ledger.PartnerParty(f.w.sub.ID)

	f.resolver.On("Resolve", mock.Anything, target).
		Return(nil, shared.NewDomainError(partner.CodeCredentialsNotFound, "no ancestor of gh_sub has aggregator credentials"))

	_, err := f.svc.Execute(ctx, partner.ActorFromPartner(f.w.main1), transfer.Request{
		Target:    target,
		Direction: transfer.DirectionDeposit,
		Amount:    amount(10),
	})
	terr := requireTransferError(t, err, partner.CodeCredentialsNotFound, transfer.StateRejected)
	assert.Equal(t, transfer.CategoryCredential, terr.Category)
	f.gateway.AssertNotCalled(t, "Deposit", mock.Anything, mock.Anything)
}

func TestOrchestrator_SettlementFailureReleasesKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	target := ledger.PartnerParty(f.w.sub.ID)
	req := transfer.Request{
		Target:         target,
		Direction:      transfer.DirectionDeposit,
		Amount:         amount(10),
		IdempotencyKey: "req-1",
	}

	f.resolver.On("Resolve", mock.Anything, target).Return(mainCreds, nil)
	f.gateway.On("Deposit", mock.Anything, mock.Anything).Return(nil, &settlement.Error{
		Operation: settlement.OperationDeposit,
		Account:   "sub",
		Message:   "agent balance insufficient",
	}).Once()

	_, err := f.svc.Execute(ctx, partner.ActorFromPartner(f.w.main1), req)
	terr := requireTransferError(t, err, transfer.CodeSettlementFailed, transfer.StateFailed)
	assert.Contains(t, terr.Error(), "agent balance insufficient")
	assert.Contains(t, terr.Error(), transfer.LocalRecordsUnchangedNote)
	f.ledger.AssertNotCalled(t, "ApplyPairedMutation", mock.Anything, mock.Anything)
	assert.Empty(t, f.recorder.records)

	// the key was released, so the same request can be retried
	f.gateway.On("Deposit", mock.Anything, mock.Anything).Return(&settlement.Result{}, nil).Once()
	f.ledger.On("ApplyPairedMutation", mock.Anything, mock.Anything).
		Return(&ledgerapp.MutationResult{DebitAfter: amount(290), CreditAfter: amount(60)}, nil)
	_, err = f.svc.Execute(ctx, partner.ActorFromPartner(f.w.main1), req)
	require.NoError(t, err)

	// and a completed request blocks a replay
	_, err = f.svc.Execute(ctx, partner.ActorFromPartner(f.w.main1), req)
	assert.ErrorIs(t, err, shared.ErrDuplicateRequest)
}

func TestOrchestrator_SettlementTimeout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	target := ledger.PartnerParty(f.w.sub.ID)

	f.resolver.On("Resolve", mock.Anything, target).Return(mainCreds, nil)
	f.gateway.On("Withdraw", mock.Anything, mock.Anything).Return(nil, &settlement.Error{
		Operation: settlement.OperationWithdraw,
		Account:   "sub",
		Message:   "context deadline exceeded",
		Timeout:   true,
		Err:       context.DeadlineExceeded,
	})

	_, err := f.svc.Execute(ctx, partner.ActorFromPartner(f.w.main1), transfer.Request{
		Target:    target,
		Direction: transfer.DirectionWithdrawal,
		Amount:    amount(10),
	})
	requireTransferError(t, err, transfer.CodeSettlementFailed, transfer.StateFailed)
	f.ledger.AssertNotCalled(t, "ApplyPairedMutation", mock.Anything, mock.Anything)
}

func TestOrchestrator_LedgerCommitFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	target := ledger.PartnerParty(f.w.sub.ID)
	req := transfer.Request{
		Target:         target,
		Direction:      transfer.DirectionDeposit,
		Amount:         amount(10),
		Memo:           "promo",
		IdempotencyKey: "req-2",
	}

	f.resolver.On("Resolve", mock.Anything, target).Return(mainCreds, nil)
	f.gateway.On("Deposit", mock.Anything, mock.Anything).
		Return(&settlement.Result{NewBalance: ptr(amount(60)), Raw: `{"RESULT":true,"DATA":{"balance":60}}`}, nil)
	f.ledger.On("ApplyPairedMutation", mock.Anything, mock.Anything).Return(nil, shared.ErrConcurrencyConflict)

	_, err := f.svc.Execute(ctx, partner.ActorFromPartner(f.w.main1), req)
	terr := requireTransferError(t, err, transfer.CodeLedgerCommitFailed, transfer.StateFailed)
	assert.ErrorIs(t, terr.Cause, shared.ErrConcurrencyConflict)

	require.Len(t, f.recorder.records, 1)
	rec := f.recorder.records[0]
	assert.Equal(t, ledger.PartnerParty(f.w.main1.ID), rec.Debit)
	assert.Equal(t, target, rec.Credit)
	assert.False(t, rec.SingleSided)
	assert.True(t, rec.Amount.Equal(amount(10)))
	require.NotNil(t, rec.SettledBalance)
	assert.True(t, rec.SettledBalance.Equal(amount(60)))
	assert.Contains(t, rec.AggregatorResponse, "RESULT")
	assert.Contains(t, rec.Memo, "promo")
	assert.Empty(t, f.publisher.events)

	// the key stays claimed because the aggregator already moved the funds
	held, err := f.store.IsProcessed(ctx, "transfer:"+f.w.main1.ID.String()+":req-2")
	require.NoError(t, err)
	assert.True(t, held)
}

func TestOrchestrator_BalanceSpentDuringSettlement(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		actor  func(w *world) *partner.Partner
		req    func(w *world) transfer.Request
		debit  func(w *world) ledger.Party
		remain int64
	}{
		{
			name:  "deposit drains the actor",
			actor: func(w *world) *partner.Partner { return w.head },
			req: func(w *world) transfer.Request {
				return transfer.Request{Target: ledger.PartnerParty(w.sub.ID), Direction: transfer.DirectionDeposit, Amount: amount(1000)}
			},
			debit:  func(w *world) ledger.Party { return ledger.PartnerParty(w.head.ID) },
			remain: 0,
		},
		{
			name:  "withdrawal drains the target",
			actor: func(w *world) *partner.Partner { return w.sub },
			req: func(w *world) transfer.Request {
				return transfer.Request{Target: ledger.UserParty(w.player.ID), Direction: transfer.DirectionWithdrawal, Amount: amount(15)}
			},
			debit:  func(w *world) ledger.Party { return ledger.UserParty(w.player.ID) },
			remain: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorld()
			scope := &worldScope{w: w}
			resolver := new(MockResolver)
			resolver.On("Resolve", mock.Anything, mock.Anything).Return(mainCreds, nil)
			gateway := &reentrantGateway{}
			recorder := &recordingRecorder{}
			ledgerSvc := ledgerapp.NewService(scope, &scope.entries, nil, zap.NewNop())
			svc := NewOrchestrator(w.partners, w.users, w.access, resolver, gateway, ledgerSvc, recorder,
				Config{AccountPrefix: "gh_"}, zap.NewNop())

			actor := partner.ActorFromPartner(tt.actor(w))
			req := tt.req(w)
			var innerErr error
			gateway.during = func() { _, innerErr = svc.Execute(ctx, actor, req) }

			_, err := svc.Execute(ctx, actor, req)
			require.NoError(t, innerErr)
			terr := requireTransferError(t, err, transfer.CodeLedgerCommitFailed, transfer.StateFailed)
			assert.ErrorIs(t, terr.Cause, shared.ErrConcurrencyConflict)

			debit := tt.debit(w)
			var balance decimal.Decimal
			if debit.Kind == ledger.SubjectPartner {
				balance = w.partners.rows[debit.ID].Balance
			} else {
				balance = w.users.rows[debit.ID].Balance
			}
			assert.True(t, balance.Equal(amount(tt.remain)), "balance %s", balance)
			assert.Len(t, scope.entries.rows, 2, "only the first commit wrote rows")
			require.Len(t, recorder.records, 1)
			assert.Equal(t, 2, gateway.calls)
		})
	}
}

func TestAdvance_IllegalMoveIsAnError(t *testing.T) {
	m := transfer.NewMachine()
	assert.NotPanics(t, func() {
		err := advance(m, transfer.StateDone)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "illegal transfer transition")
	})
	assert.Equal(t, transfer.StateValidating, m.Current())

	cause := transfer.NewValidationError(transfer.CodeValidationFailed, "Amount must be greater than zero")
	err := end(m, transfer.StateFailed, cause)
	var terr *transfer.Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, transfer.CodeValidationFailed, terr.Code)
	assert.Contains(t, err.Error(), "transfer state machine")

	assert.NoError(t, advance(m, transfer.StateResolvingCredentials))
	assert.Equal(t, cause, end(m, transfer.StateRejected, cause))
}

func TestOrchestrator_ConcurrentDuplicateKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	actor := partner.ActorFromPartner(f.w.main1)

	claimed, err := f.store.MarkProcessed(ctx, "transfer:"+actor.PartnerID.String()+":in-flight", time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = f.svc.Execute(ctx, actor, transfer.Request{
		Target:         ledger.PartnerParty(f.w.sub.ID),
		Direction:      transfer.DirectionDeposit,
		Amount:         amount(1),
		IdempotencyKey: "in-flight",
	})
	assert.ErrorIs(t, err, shared.ErrDuplicateRequest)
	f.resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}
