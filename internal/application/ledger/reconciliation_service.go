package ledger

import (
	"context"
	"fmt"

	"github.com/gamehub/backend/internal/domain/ledger"
	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReconciliationService tracks transfers that settled on the aggregator but
// failed to commit locally, and lets a system admin replay the commit.
type ReconciliationService struct {
	txScope TransactionScope
	repo    ledger.UnreconciledRepository
	logger  *zap.Logger
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(txScope TransactionScope, repo ledger.UnreconciledRepository, logger *zap.Logger) *ReconciliationService {
	return &ReconciliationService{
		txScope: txScope,
		repo:    repo,
		logger:  logger,
	}
}

// Record stores a pending reconciliation. It runs outside any transfer
// transaction because that transaction has already failed.
func (s *ReconciliationService) Record(ctx context.Context, rec *ledger.UnreconciledSettlement) error {
	if err := s.repo.Create(ctx, rec); err != nil {
		s.logger.Error("Failed to record unreconciled settlement",
			zap.String("transfer_id", rec.TransferID.String()),
			zap.String("amount", rec.Amount.String()),
			zap.String("aggregator_response", rec.AggregatorResponse),
			zap.Error(err))
		return err
	}
	s.logger.Warn("Unreconciled settlement recorded",
		zap.String("id", rec.ID.String()),
		zap.String("transfer_id", rec.TransferID.String()),
		zap.String("reason", rec.FailureReason))
	return nil
}

// ListPending returns settlements still awaiting reconciliation
func (s *ReconciliationService) ListPending(ctx context.Context, filter shared.Filter) ([]UnreconciledResponse, int64, error) {
	records, err := s.repo.FindByStatus(ctx, ledger.ReconciliationPending, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.CountByStatus(ctx, ledger.ReconciliationPending)
	if err != nil {
		return nil, 0, err
	}
	out := make([]UnreconciledResponse, len(records))
	for i := range records {
		out[i] = ToUnreconciledResponse(&records[i])
	}
	return out, total, nil
}

// PendingCount is polled by the reconciliation monitor
func (s *ReconciliationService) PendingCount(ctx context.Context) (int64, error) {
	return s.repo.CountByStatus(ctx, ledger.ReconciliationPending)
}

// Resolve replays the local commit of a pending settlement and marks it
// resolved in the same transaction. The replay uses current balances plus
// the recorded amount; the aggregator balance captured at failure time is
// not applied because it may be stale.
func (s *ReconciliationService) Resolve(ctx context.Context, actor partner.Actor, id uuid.UUID) (*UnreconciledResponse, error) {
	if !actor.IsSystemAdmin() {
		return nil, shared.NewDomainError("FORBIDDEN", "Only a system admin can reconcile settlements")
	}

	var resolved *ledger.UnreconciledSettlement
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		rec, err := repos.UnreconciledRepo().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if !rec.IsPending() {
			return shared.NewDomainError("INVALID_STATE", "Settlement is already reconciled")
		}

		memo := rec.Memo + " (reconciled)"
		if rec.SingleSided {
			party, amount := rec.Credit, rec.Amount
			if rec.Direction == string(ledger.TransactionTypeWithdrawal) {
				party, amount = rec.Debit, rec.Amount.Neg()
			}
			_, err = commitSingle(ctx, repos, SingleMutation{
				Party:      party,
				Amount:     amount,
				Type:       ledger.TransactionType(rec.Direction),
				ActorID:    actor.PartnerID,
				Memo:       memo,
				TransferID: rec.TransferID,
			})
		} else {
			_, err = commitPaired(ctx, repos, PairedMutation{
				Debit:      rec.Debit,
				Credit:     rec.Credit,
				Amount:     rec.Amount,
				Type:       ledger.TransactionType(rec.Direction),
				ActorID:    actor.PartnerID,
				DebitMemo:  memo,
				CreditMemo: memo,
				TransferID: rec.TransferID,
			})
		}
		if err != nil {
			return fmt.Errorf("replay ledger commit: %w", err)
		}

		if err := rec.Resolve(actor.PartnerID); err != nil {
			return err
		}
		if err := repos.UnreconciledRepo().SaveWithLock(ctx, rec); err != nil {
			return err
		}
		resolved = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Settlement reconciled",
		zap.String("id", id.String()),
		zap.String("transfer_id", resolved.TransferID.String()),
		zap.String("admin_id", actor.PartnerID.String()))

	resp := ToUnreconciledResponse(resolved)
	return &resp, nil
}
