package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	ledgerapp "github.com/gamehub/backend/internal/application/ledger"
	"github.com/gamehub/backend/internal/domain/ledger"
	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/gamehub/backend/internal/domain/settlement"
	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/gamehub/backend/internal/domain/transfer"
	"github.com/gamehub/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AccessChecker decides whether the actor may act on a balance holder
type AccessChecker interface {
	CanAccessParty(ctx context.Context, actor partner.Actor, party ledger.Party) (bool, error)
}

// CredentialResolver finds the aggregator credentials governing a party
type CredentialResolver interface {
	Resolve(ctx context.Context, party ledger.Party) (*partner.ResolvedCredentials, error)
}

// LedgerWriter commits balance mutations
type LedgerWriter interface {
	ApplyPairedMutation(ctx context.Context, m ledgerapp.PairedMutation) (*ledgerapp.MutationResult, error)
	ApplySingleMutation(ctx context.Context, m ledgerapp.SingleMutation) (*ledgerapp.MutationResult, error)
}

// SettlementRecorder stores settlements that could not be committed locally
type SettlementRecorder interface {
	Record(ctx context.Context, rec *ledger.UnreconciledSettlement) error
}

// Config holds orchestrator limits
type Config struct {
	AccountPrefix  string
	MaxAmount      decimal.Decimal
	IdempotencyTTL time.Duration
}

// Result describes a completed transfer
type Result struct {
	TransferID        uuid.UUID        `json:"transfer_id"`
	Direction         string           `json:"direction"`
	Target            ledger.Party     `json:"target"`
	Amount            decimal.Decimal  `json:"amount"`
	TargetBalance     decimal.Decimal  `json:"target_balance"`
	ActorBalance      *decimal.Decimal `json:"actor_balance,omitempty"`
	AggregatorBalance *decimal.Decimal `json:"aggregator_balance,omitempty"`
	AggregatorMessage string           `json:"aggregator_message,omitempty"`
	State             string           `json:"state"`
	History           []string         `json:"history"`
}

// Orchestrator runs deposits and withdrawals between an actor and a
// balance holder in its subtree: validate, resolve credentials, settle on
// the aggregator, then commit the local ledger.
type Orchestrator struct {
	partnerRepo    partner.PartnerRepository
	userRepo       partner.EndUserRepository
	access         AccessChecker
	resolver       CredentialResolver
	gateway        settlement.Gateway
	ledger         LedgerWriter
	recorder       SettlementRecorder
	idempotency    shared.IdempotencyStore
	eventPublisher shared.EventPublisher
	metrics        *telemetry.TransferMetrics
	config         Config
	logger         *zap.Logger
}

// NewOrchestrator creates a new transfer Orchestrator
func NewOrchestrator(
	partnerRepo partner.PartnerRepository,
	userRepo partner.EndUserRepository,
	access AccessChecker,
	resolver CredentialResolver,
	gateway settlement.Gateway,
	ledgerWriter LedgerWriter,
	recorder SettlementRecorder,
	config Config,
	logger *zap.Logger,
) *Orchestrator {
	if config.IdempotencyTTL <= 0 {
		config.IdempotencyTTL = 24 * time.Hour
	}
	return &Orchestrator{
		partnerRepo: partnerRepo,
		userRepo:    userRepo,
		access:      access,
		resolver:    resolver,
		gateway:     gateway,
		ledger:      ledgerWriter,
		recorder:    recorder,
		config:      config,
		logger:      logger,
	}
}

// SetIdempotencyStore enables duplicate request detection
func (o *Orchestrator) SetIdempotencyStore(store shared.IdempotencyStore) {
	o.idempotency = store
}

// SetEventPublisher sets the publisher for BalanceTransferred events
func (o *Orchestrator) SetEventPublisher(publisher shared.EventPublisher) {
	o.eventPublisher = publisher
}

// SetMetrics sets the transfer metrics collector
func (o *Orchestrator) SetMetrics(m *telemetry.TransferMetrics) {
	o.metrics = m
}

// party is a loaded transfer target
type party struct {
	ref      ledger.Party
	username string
	label    string
	balance  decimal.Decimal
	version  int
	blocked  bool
	partner  *partner.Partner
}

// Execute runs one transfer for actor. No balance or ledger row changes
// unless the aggregator accepted the request.
func (o *Orchestrator) Execute(ctx context.Context, actor partner.Actor, req transfer.Request) (*Result, error) {
	start := time.Now()
	transferID := uuid.New()

	ctx, span := telemetry.StartServiceSpan(ctx, "transfer", "execute")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTransferID, transferID.String(),
		telemetry.SpanAttrDirection, string(req.Direction),
		telemetry.SpanAttrAmount, req.Amount.String(),
		telemetry.SpanAttrActorID, actor.PartnerID.String(),
		telemetry.SpanAttrTargetKind, string(req.Target.Kind),
		telemetry.SpanAttrTargetID, req.Target.ID.String(),
	)

	if req.IdempotencyKey != "" && o.idempotency != nil {
		claimed, err := o.idempotency.MarkProcessed(ctx, o.idempotencyKey(actor, req.IdempotencyKey), o.config.IdempotencyTTL)
		if err != nil {
			o.logger.Error("Failed to claim idempotency key", zap.String("key", req.IdempotencyKey), zap.Error(err))
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("claim idempotency key: %w", err)
		}
		if !claimed {
			o.logger.Warn("Duplicate transfer request",
				zap.String("key", req.IdempotencyKey),
				zap.String("actor_id", actor.PartnerID.String()))
			o.metrics.RecordTransfer(ctx, string(req.Direction), telemetry.TransferOutcomeRejected, transfer.CategoryValidation, req.Amount, time.Since(start))
			return nil, shared.ErrDuplicateRequest
		}
	}

	machine := transfer.NewMachine()
	var (
		result *Result
		err    error
	)
	telemetry.WithProfilingLabels(ctx, telemetry.TransferOperationLabels(string(req.Direction)), func(c context.Context) {
		result, err = o.run(c, machine, transferID, actor, req)
	})
	telemetry.SetAttribute(span, telemetry.SpanAttrState, string(machine.Current()))

	if err != nil {
		telemetry.RecordError(span, err)
		o.finishFailed(ctx, machine, actor, req, err, time.Since(start))
		return nil, err
	}

	o.metrics.RecordTransfer(ctx, string(req.Direction), telemetry.TransferOutcomeDone, "", req.Amount, time.Since(start))
	telemetry.AddEvent(span, "transfer_completed", "target_balance", result.TargetBalance.String())
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, m *transfer.Machine, transferID uuid.UUID, actor partner.Actor, req transfer.Request) (*Result, error) {
	// Validating
	actorPartner, target, verr := o.validate(ctx, actor, req)
	if verr != nil {
		return nil, end(m, transfer.StateRejected, verr)
	}

	// ResolvingCredentials
	if err := advance(m, transfer.StateResolvingCredentials); err != nil {
		return nil, err
	}
	resolved, err := o.resolver.Resolve(ctx, target.ref)
	if err != nil {
		var de *shared.DomainError
		if errors.As(err, &de) {
			return nil, end(m, transfer.StateRejected, transfer.NewCredentialError(de))
		}
		o.logger.Error("Credential lookup failed", zap.String("target", target.ref.String()), zap.Error(err))
		return nil, end(m, transfer.StateRejected,
			transfer.NewCredentialError(shared.NewDomainError(transfer.CodeCredentialResolution, "Failed to resolve aggregator credentials")))
	}

	// Settling
	if err := advance(m, transfer.StateSettling); err != nil {
		return nil, err
	}
	account := partner.StripAccountPrefix(target.username, o.config.AccountPrefix)
	settled, err := o.settle(ctx, req.Direction, settlement.Request{
		Account:     account,
		Amount:      req.Amount,
		Credentials: resolved.Credentials,
	})
	if err != nil {
		o.logger.Warn("Aggregator rejected transfer",
			zap.String("transfer_id", transferID.String()),
			zap.String("direction", string(req.Direction)),
			zap.String("account", account),
			zap.String("opcode", resolved.Opcode),
			zap.String("amount", req.Amount.String()),
			zap.Error(err))
		return nil, end(m, transfer.StateFailed, transfer.NewSettlementError(aggregatorMessage(err), err))
	}

	// CommittingLedger
	if err := advance(m, transfer.StateCommittingLedger); err != nil {
		return nil, err
	}
	commit := o.planCommit(transferID, actor, actorPartner, target, req, settled.NewBalance)
	mutation, err := commit.apply(ctx, o.ledger)
	if err != nil {
		o.recordUnreconciled(ctx, transferID, actor, req, commit, settled, err)
		return nil, end(m, transfer.StateFailed, transfer.NewLedgerCommitError(
			"The aggregator accepted the transfer but the local ledger could not be updated; it has been queued for reconciliation", err))
	}

	if err := advance(m, transfer.StateDone); err != nil {
		return nil, err
	}
	result := commit.result(mutation)
	result.TransferID = transferID
	result.AggregatorBalance = settled.NewBalance
	result.AggregatorMessage = settled.Message
	result.State = string(m.Current())
	for _, s := range m.History() {
		result.History = append(result.History, string(s))
	}

	o.logger.Info("Transfer completed",
		zap.String("transfer_id", transferID.String()),
		zap.String("direction", string(req.Direction)),
		zap.String("actor_id", actor.PartnerID.String()),
		zap.String("target", target.ref.String()),
		zap.String("amount", req.Amount.String()),
		zap.String("target_balance", result.TargetBalance.String()))

	o.publish(ctx, transferID, actor, req, result)
	return result, nil
}

// validate runs every local check before any external call
func (o *Orchestrator) validate(ctx context.Context, actor partner.Actor, req transfer.Request) (*partner.Partner, *party, error) {
	if !req.Direction.IsValid() {
		return nil, nil, transfer.NewValidationError(transfer.CodeValidationFailed, "Direction must be deposit or withdrawal")
	}
	if !req.Amount.IsPositive() {
		return nil, nil, transfer.NewValidationError(transfer.CodeValidationFailed, "Amount must be greater than zero")
	}
	if !settlement.Representable(req.Amount) {
		return nil, nil, transfer.NewValidationError(transfer.CodeValidationFailed,
			fmt.Sprintf("Amount cannot have more than %d decimal places", settlement.AmountPlaces))
	}
	if o.config.MaxAmount.IsPositive() && req.Amount.GreaterThan(o.config.MaxAmount) {
		return nil, nil, transfer.NewValidationError(transfer.CodeValidationFailed,
			fmt.Sprintf("Amount exceeds the maximum of %s per transfer", o.config.MaxAmount.String()))
	}
	if req.Target.Kind == ledger.SubjectPartner && req.Target.ID == actor.PartnerID {
		return nil, nil, transfer.NewValidationError(transfer.CodeValidationFailed, "Cannot transfer to your own account")
	}

	target, err := o.loadParty(ctx, req.Target)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil, transfer.NewValidationError(shared.ErrNotFound.Code, "Transfer target not found")
		}
		return nil, nil, err
	}
	ok, err := o.access.CanAccessParty(ctx, actor, req.Target)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, transfer.NewValidationError(shared.ErrNotFound.Code, "Transfer target not found")
	}
	if target.blocked {
		return nil, nil, transfer.NewValidationError(transfer.CodeTargetBlocked, target.label+" is blocked")
	}

	actorPartner, err := o.partnerRepo.FindByID(ctx, actor.PartnerID)
	if err != nil {
		return nil, nil, err
	}

	switch req.Direction {
	case transfer.DirectionWithdrawal:
		if req.Amount.GreaterThan(target.balance) {
			return nil, nil, transfer.NewValidationError(transfer.CodeInsufficientBalance,
				fmt.Sprintf("%s has %s available, cannot withdraw %s", target.label, target.balance.String(), req.Amount.String()))
		}
	case transfer.DirectionDeposit:
		if !actor.IsSystemAdmin() && req.Amount.GreaterThan(actorPartner.Balance) {
			return nil, nil, transfer.NewValidationError(transfer.CodeInsufficientBalance,
				fmt.Sprintf("Your balance of %s does not cover a deposit of %s", actorPartner.Balance.String(), req.Amount.String()))
		}
		if actor.Type == partner.PartnerTypeHeadOffice && target.partner != nil && target.partner.Type == partner.PartnerTypeMainOffice {
			if err := o.checkSubtreeCeiling(ctx, actorPartner, req.Amount); err != nil {
				return nil, nil, err
			}
		}
	}
	return actorPartner, target, nil
}

// checkSubtreeCeiling keeps a head office's main office balances within the
// head office's own balance
func (o *Orchestrator) checkSubtreeCeiling(ctx context.Context, head *partner.Partner, amount decimal.Decimal) error {
	sum, err := o.partnerRepo.SumChildBalances(ctx, head.ID, partner.PartnerTypeMainOffice)
	if err != nil {
		return err
	}
	if sum.Add(amount).GreaterThan(head.Balance) {
		return transfer.NewValidationError(transfer.CodeSubtreeCeiling,
			fmt.Sprintf("Main office balances would total %s, above the head office balance of %s",
				sum.Add(amount).String(), head.Balance.String()))
	}
	return nil
}

func (o *Orchestrator) loadParty(ctx context.Context, ref ledger.Party) (*party, error) {
	switch ref.Kind {
	case ledger.SubjectPartner:
		p, err := o.partnerRepo.FindByID(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		return &party{
			ref:      ref,
			username: p.Username,
			label:    p.Username + " (" + p.Type.DisplayName() + ")",
			balance:  p.Balance,
			version:  p.Version,
			blocked:  p.IsBlocked(),
			partner:  p,
		}, nil
	case ledger.SubjectUser:
		u, err := o.userRepo.FindByID(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		return &party{
			ref:      ref,
			username: u.Username,
			label:    u.Username + " (Player)",
			balance:  u.Balance,
			version:  u.Version,
			blocked:  u.IsBlocked(),
		}, nil
	}
	return nil, transfer.NewValidationError(transfer.CodeValidationFailed, "Unknown target kind: "+string(ref.Kind))
}

func (o *Orchestrator) settle(ctx context.Context, direction transfer.Direction, req settlement.Request) (*settlement.Result, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "settlement", string(direction))
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrAccount, req.Account)

	var (
		res *settlement.Result
		err error
		op  = settlement.OperationDeposit
	)
	if direction == transfer.DirectionWithdrawal {
		op = settlement.OperationWithdraw
		res, err = o.gateway.Withdraw(ctx, req)
	} else {
		res, err = o.gateway.Deposit(ctx, req)
	}
	o.metrics.RecordAggregatorCall(ctx, string(op), err == nil)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if res == nil {
		res = &settlement.Result{}
	}
	return res, nil
}

func (o *Orchestrator) recordUnreconciled(ctx context.Context, transferID uuid.UUID, actor partner.Actor, req transfer.Request, c *commitPlan, settled *settlement.Result, cause error) {
	o.logger.Error("Ledger commit failed after aggregator settlement",
		zap.String("transfer_id", transferID.String()),
		zap.String("direction", string(req.Direction)),
		zap.String("actor_id", actor.PartnerID.String()),
		zap.String("debit", c.debit.String()),
		zap.String("credit", c.credit.String()),
		zap.Bool("single_sided", c.singleSided),
		zap.String("amount", req.Amount.String()),
		zap.String("aggregator_response", settled.Raw),
		zap.Error(cause))

	if o.recorder == nil {
		return
	}
	rec := ledger.NewUnreconciledSettlement(transferID, string(req.Direction.LedgerType()), actor.PartnerID,
		c.debit, c.credit, c.singleSided, req.Amount, settled.NewBalance, settled.Raw, cause.Error(), c.memo)
	// the request context may already be cancelled
	if err := o.recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		o.logger.Error("Unreconciled settlement was not stored",
			zap.String("transfer_id", transferID.String()),
			zap.Error(err))
	}
}

func (o *Orchestrator) publish(ctx context.Context, transferID uuid.UUID, actor partner.Actor, req transfer.Request, result *Result) {
	if o.eventPublisher == nil {
		return
	}
	event := ledger.NewBalanceTransferredEvent(transferID, actor.PartnerID, string(req.Direction),
		req.Target, req.Amount, result.TargetBalance, result.ActorBalance)
	if err := o.eventPublisher.Publish(ctx, event); err != nil {
		o.logger.Error("Failed to publish balance transferred event",
			zap.String("transfer_id", transferID.String()),
			zap.Error(err))
	}
}

func (o *Orchestrator) finishFailed(ctx context.Context, m *transfer.Machine, actor partner.Actor, req transfer.Request, err error, elapsed time.Duration) {
	outcome := telemetry.TransferOutcomeRejected
	category := transfer.CategoryValidation
	var terr *transfer.Error
	if errors.As(err, &terr) {
		category = terr.Category
		if terr.State == transfer.StateFailed {
			outcome = telemetry.TransferOutcomeFailed
		}
	} else if m.Current() != transfer.StateRejected {
		outcome = telemetry.TransferOutcomeFailed
	}
	o.metrics.RecordTransfer(ctx, string(req.Direction), outcome, category, req.Amount, elapsed)

	// a settled transfer keeps its key so a retry cannot settle twice
	if category == transfer.CategoryLedger || req.IdempotencyKey == "" || o.idempotency == nil {
		return
	}
	if rerr := o.idempotency.Release(ctx, o.idempotencyKey(actor, req.IdempotencyKey)); rerr != nil {
		o.logger.Warn("Failed to release idempotency key", zap.String("key", req.IdempotencyKey), zap.Error(rerr))
	}
}

func (o *Orchestrator) idempotencyKey(actor partner.Actor, key string) string {
	return "transfer:" + actor.PartnerID.String() + ":" + key
}

// advance moves m to next. An illegal move is an internal error, never a
// rejection of the request.
func advance(m *transfer.Machine, next transfer.State) error {
	if err := m.Transition(next); err != nil {
		return fmt.Errorf("transfer state machine: %w", err)
	}
	return nil
}

// end moves m to a terminal state and returns cause, joined with the state
// error if the move was illegal
func end(m *transfer.Machine, terminal transfer.State, cause error) error {
	if err := advance(m, terminal); err != nil {
		return errors.Join(err, cause)
	}
	return cause
}

// aggregatorMessage extracts the aggregator's own text from a gateway error
func aggregatorMessage(err error) string {
	var serr *settlement.Error
	if errors.As(err, &serr) && serr.Message != "" {
		return serr.Message
	}
	return err.Error()
}
