package ledger

import (
	"context"
	"fmt"

	"github.com/gamehub/backend/internal/domain/ledger"
	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const reconcileMemo = "reconciled to aggregator balance"

// PairedMutation debits one party and credits another by the same amount
type PairedMutation struct {
	Debit      ledger.Party
	Credit     ledger.Party
	Amount     decimal.Decimal
	Type       ledger.TransactionType
	ActorID    uuid.UUID
	DebitMemo  string
	CreditMemo string
	TransferID uuid.UUID
	// Authoritative balances reported by the aggregator, when it returned one
	DebitSettled  *decimal.Decimal
	CreditSettled *decimal.Decimal
	// DebitSeen is the debit balance the caller validated against
	DebitSeen *Seen
}

// SingleMutation changes one party's balance by a signed amount
type SingleMutation struct {
	Party        ledger.Party
	Counterparty *uuid.UUID
	Amount       decimal.Decimal
	Type         ledger.TransactionType
	ActorID      uuid.UUID
	Memo         string
	TransferID   uuid.UUID
	Settled      *decimal.Decimal
	// Seen is the balance the caller validated a negative Amount against
	Seen *Seen
}

// Seen is a balance read outside the commit transaction. When the stored
// row has moved past Version by commit time, the balance must still cover
// the debit or the commit fails with CONCURRENCY_CONFLICT.
type Seen struct {
	Balance decimal.Decimal
	Version int
}

// MutationResult holds the committed balances and every row written
type MutationResult struct {
	DebitAfter  decimal.Decimal
	CreditAfter decimal.Decimal
	Entries     []*ledger.Entry
}

// Service maintains current balances and the append-only ledger. It trusts
// its callers for balance sufficiency; concurrent writers are caught by the
// version check on each balance row.
type Service struct {
	txScope   TransactionScope
	entryRepo ledger.EntryRepository
	access    AccessChecker
	logger    *zap.Logger
}

// NewService creates a new ledger Service
func NewService(txScope TransactionScope, entryRepo ledger.EntryRepository, access AccessChecker, logger *zap.Logger) *Service {
	return &Service{
		txScope:   txScope,
		entryRepo: entryRepo,
		access:    access,
		logger:    logger,
	}
}

// ApplyPairedMutation moves amount from Debit to Credit in one transaction:
// both balance updates and both ledger rows commit together or not at all.
func (s *Service) ApplyPairedMutation(ctx context.Context, m PairedMutation) (*MutationResult, error) {
	if !m.Amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Amount must be positive")
	}
	if m.Debit == m.Credit {
		return nil, shared.NewDomainError("INVALID_INPUT", "Cannot transfer a balance to the same account")
	}
	if m.TransferID == uuid.Nil {
		m.TransferID = uuid.New()
	}

	var result *MutationResult
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		result, err = commitPaired(ctx, repos, m)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Paired balance mutation committed",
		zap.String("transfer_id", m.TransferID.String()),
		zap.String("debit", m.Debit.String()),
		zap.String("credit", m.Credit.String()),
		zap.String("amount", m.Amount.String()),
		zap.Int("rows", len(result.Entries)))
	return result, nil
}

// ApplySingleMutation changes one party's balance; used when the other side
// is the system admin, which is never debited.
func (s *Service) ApplySingleMutation(ctx context.Context, m SingleMutation) (*MutationResult, error) {
	if m.Amount.IsZero() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Amount cannot be zero")
	}
	if m.TransferID == uuid.Nil {
		m.TransferID = uuid.New()
	}

	var result *MutationResult
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		result, err = commitSingle(ctx, repos, m)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Single balance mutation committed",
		zap.String("transfer_id", m.TransferID.String()),
		zap.String("party", m.Party.String()),
		zap.String("amount", m.Amount.String()),
		zap.Int("rows", len(result.Entries)))
	return result, nil
}

// stillCovers guards a debit validated on a stale read
func stillCovers(party ledger.Party, acct account, seen *Seen, amount decimal.Decimal) error {
	if seen == nil || acct.Version() == seen.Version {
		return nil
	}
	if acct.Balance().LessThan(amount) {
		return shared.NewDomainError(shared.ErrConcurrencyConflict.Code,
			fmt.Sprintf("Balance of %s changed from %s to %s during the transfer and no longer covers %s",
				party, seen.Balance.String(), acct.Balance().String(), amount.String()))
	}
	return nil
}

func commitPaired(ctx context.Context, repos TransactionalRepositories, m PairedMutation) (*MutationResult, error) {
	debit, err := loadAccount(ctx, repos, m.Debit)
	if err != nil {
		return nil, fmt.Errorf("load debit account %s: %w", m.Debit, err)
	}
	credit, err := loadAccount(ctx, repos, m.Credit)
	if err != nil {
		return nil, fmt.Errorf("load credit account %s: %w", m.Credit, err)
	}

	if err := stillCovers(m.Debit, debit, m.DebitSeen, m.Amount); err != nil {
		return nil, err
	}

	debitID, creditID := m.Debit.ID, m.Credit.ID
	transferID := m.TransferID

	debitRows, debitAfter, err := postings(m.Debit, debit.Balance(), m.Amount.Neg(), m.DebitSettled, ledger.EntryParams{
		Type: m.Type, From: &debitID, To: &creditID, ProcessedBy: m.ActorID, Memo: m.DebitMemo, TransferID: &transferID,
	})
	if err != nil {
		return nil, err
	}
	creditRows, creditAfter, err := postings(m.Credit, credit.Balance(), m.Amount, m.CreditSettled, ledger.EntryParams{
		Type: m.Type, From: &debitID, To: &creditID, ProcessedBy: m.ActorID, Memo: m.CreditMemo, TransferID: &transferID,
	})
	if err != nil {
		return nil, err
	}

	debit.SetBalance(debitAfter)
	if err := debit.save(ctx); err != nil {
		return nil, err
	}
	credit.SetBalance(creditAfter)
	if err := credit.save(ctx); err != nil {
		return nil, err
	}

	rows := append(debitRows, creditRows...)
	if err := repos.EntryRepo().CreateBatch(ctx, rows); err != nil {
		return nil, fmt.Errorf("insert ledger rows: %w", err)
	}

	return &MutationResult{DebitAfter: debitAfter, CreditAfter: creditAfter, Entries: rows}, nil
}

func commitSingle(ctx context.Context, repos TransactionalRepositories, m SingleMutation) (*MutationResult, error) {
	acct, err := loadAccount(ctx, repos, m.Party)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", m.Party, err)
	}
	if m.Amount.IsNegative() {
		if err := stillCovers(m.Party, acct, m.Seen, m.Amount.Neg()); err != nil {
			return nil, err
		}
	}

	partyID, transferID := m.Party.ID, m.TransferID
	params := ledger.EntryParams{Type: m.Type, ProcessedBy: m.ActorID, Memo: m.Memo, TransferID: &transferID}
	if m.Amount.IsPositive() {
		params.From, params.To = m.Counterparty, &partyID
	} else {
		params.From, params.To = &partyID, m.Counterparty
	}

	rows, after, err := postings(m.Party, acct.Balance(), m.Amount, m.Settled, params)
	if err != nil {
		return nil, err
	}

	acct.SetBalance(after)
	if err := acct.save(ctx); err != nil {
		return nil, err
	}
	if err := repos.EntryRepo().CreateBatch(ctx, rows); err != nil {
		return nil, fmt.Errorf("insert ledger rows: %w", err)
	}

	result := &MutationResult{Entries: rows}
	if m.Amount.IsPositive() {
		result.CreditAfter = after
	} else {
		result.DebitAfter = after
	}
	return result, nil
}

// postings builds the ledger rows for one party: the mutation itself and,
// when the aggregator reported a different balance, an adjustment row that
// brings the local balance in line. Every row keeps after-before == amount.
func postings(party ledger.Party, before, amount decimal.Decimal, settled *decimal.Decimal, base ledger.EntryParams) ([]*ledger.Entry, decimal.Decimal, error) {
	after := before.Add(amount)

	main := base
	main.Subject = party
	main.Amount = amount
	main.BalanceBefore = before
	main.BalanceAfter = after
	entry, err := ledger.NewEntry(main)
	if err != nil {
		return nil, decimal.Zero, err
	}
	rows := []*ledger.Entry{entry}

	if settled == nil || settled.Equal(after) {
		return rows, after, nil
	}

	adj := base
	adj.Subject = party
	adj.Type = ledger.TransactionTypeAdminAdjustment
	adj.Amount = settled.Sub(after)
	adj.BalanceBefore = after
	adj.BalanceAfter = *settled
	adj.Memo = reconcileMemo
	adjustment, err := ledger.NewEntry(adj)
	if err != nil {
		return nil, decimal.Zero, err
	}
	return append(rows, adjustment), *settled, nil
}

// ListEntries returns a page of ledger rows visible to the actor
func (s *Service) ListEntries(ctx context.Context, actor partner.Actor, filter ledger.EntryFilter) ([]EntryResponse, int64, error) {
	if filter.Subject != nil {
		ok, err := s.access.CanAccessParty(ctx, actor, *filter.Subject)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			return nil, 0, shared.ErrForbidden
		}
	}
	scope, err := s.access.ScopePartnerIDs(ctx, actor)
	if err != nil {
		return nil, 0, err
	}
	filter.ScopePartnerIDs = scope

	entries, err := s.entryRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.entryRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return ToEntryResponses(entries), total, nil
}

// GetTransfer returns every row written for one transfer. The actor must be
// able to see at least one of the rows.
func (s *Service) GetTransfer(ctx context.Context, actor partner.Actor, transferID uuid.UUID) ([]EntryResponse, error) {
	entries, err := s.entryRepo.FindByTransferID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, shared.ErrNotFound
	}
	for i := range entries {
		ok, err := s.access.CanAccessParty(ctx, actor, entries[i].Subject())
		if err != nil {
			return nil, err
		}
		if ok {
			return ToEntryResponses(entries), nil
		}
	}
	return nil, shared.ErrNotFound
}
