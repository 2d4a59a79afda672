package transfer

import (
	"context"

	ledgerapp "github.com/gamehub/backend/internal/application/ledger"
	"github.com/gamehub/backend/internal/domain/ledger"
	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/gamehub/backend/internal/domain/transfer"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// commitPlan is the ledger side of a settled transfer. Deposits debit the
// actor and credit the target; withdrawals do the reverse. A system admin
// actor is never debited or credited, so only the target moves.
type commitPlan struct {
	transferID  uuid.UUID
	direction   transfer.Direction
	actorID     uuid.UUID
	target      ledger.Party
	debit       ledger.Party
	credit      ledger.Party
	singleSided bool
	amount      decimal.Decimal
	settled     *decimal.Decimal
	debitSeen   *ledgerapp.Seen
	memo        string
	debitMemo   string
	creditMemo  string
}

func (o *Orchestrator) planCommit(transferID uuid.UUID, actor partner.Actor, actorPartner *partner.Partner, target *party, req transfer.Request, settled *decimal.Decimal) *commitPlan {
	actorRef := ledger.PartnerParty(actor.PartnerID)
	actorLabel := actorPartner.Username + " (" + actorPartner.Type.DisplayName() + ")"

	c := &commitPlan{
		transferID:  transferID,
		direction:   req.Direction,
		actorID:     actor.PartnerID,
		target:      target.ref,
		singleSided: actor.IsSystemAdmin(),
		amount:      req.Amount,
		settled:     settled,
	}

	if req.Direction == transfer.DirectionWithdrawal {
		c.debit, c.credit = target.ref, actorRef
		c.debitSeen = &ledgerapp.Seen{Balance: target.balance, Version: target.version}
		c.debitMemo = withNote("Withdrawal by "+actorLabel, req.Memo)
		c.creditMemo = withNote("Withdrawal from "+target.label, req.Memo)
		c.memo = withNote("Withdrawal from "+target.label+" by "+actorLabel, req.Memo)
	} else {
		c.debit, c.credit = actorRef, target.ref
		if !c.singleSided {
			c.debitSeen = &ledgerapp.Seen{Balance: actorPartner.Balance, Version: actorPartner.Version}
		}
		c.debitMemo = withNote("Deposit to "+target.label, req.Memo)
		c.creditMemo = withNote("Deposit from "+actorLabel, req.Memo)
		c.memo = withNote("Deposit from "+actorLabel+" to "+target.label, req.Memo)
	}
	return c
}

func withNote(memo, note string) string {
	if note == "" {
		return memo
	}
	return memo + ": " + note
}

func (c *commitPlan) apply(ctx context.Context, w LedgerWriter) (*ledgerapp.MutationResult, error) {
	if c.singleSided {
		amount := c.amount
		memo := c.creditMemo
		if c.direction == transfer.DirectionWithdrawal {
			amount = amount.Neg()
			memo = c.debitMemo
		}
		actorID := c.actorID
		return w.ApplySingleMutation(ctx, ledgerapp.SingleMutation{
			Party:        c.target,
			Counterparty: &actorID,
			Amount:       amount,
			Type:         c.direction.LedgerType(),
			ActorID:      c.actorID,
			Memo:         memo,
			TransferID:   c.transferID,
			Settled:      c.settled,
			Seen:         c.debitSeen,
		})
	}

	m := ledgerapp.PairedMutation{
		Debit:      c.debit,
		Credit:     c.credit,
		Amount:     c.amount,
		Type:       c.direction.LedgerType(),
		ActorID:    c.actorID,
		DebitMemo:  c.debitMemo,
		CreditMemo: c.creditMemo,
		TransferID: c.transferID,
		DebitSeen:  c.debitSeen,
	}
	// the aggregator reports the target's balance
	if c.direction == transfer.DirectionWithdrawal {
		m.DebitSettled = c.settled
	} else {
		m.CreditSettled = c.settled
	}
	return w.ApplyPairedMutation(ctx, m)
}

func (c *commitPlan) result(r *ledgerapp.MutationResult) *Result {
	res := &Result{
		Direction: string(c.direction),
		Target:    c.target,
		Amount:    c.amount,
	}
	if c.direction == transfer.DirectionWithdrawal {
		res.TargetBalance = r.DebitAfter
		if !c.singleSided {
			actorAfter := r.CreditAfter
			res.ActorBalance = &actorAfter
		}
	} else {
		res.TargetBalance = r.CreditAfter
		if !c.singleSided {
			actorAfter := r.DebitAfter
			res.ActorBalance = &actorAfter
		}
	}
	return res
}
