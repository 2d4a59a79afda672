// Package transfer holds the deposit/withdrawal request model and the
// state machine every transfer walks through.
package transfer

import (
	"fmt"
	"strings"

	"github.com/gamehub/backend/internal/domain/ledger"
	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// State is a step of the transfer workflow
type State string

const (
	StateValidating           State = "validating"
	StateResolvingCredentials State = "resolving_credentials"
	StateSettling             State = "settling"
	StateCommittingLedger     State = "committing_ledger"
	StateDone                 State = "done"
	StateRejected             State = "rejected"
	StateFailed               State = "failed"
)

var transitions = map[State][]State{
	StateValidating:           {StateResolvingCredentials, StateRejected},
	StateResolvingCredentials: {StateSettling, StateRejected},
	StateSettling:             {StateCommittingLedger, StateFailed},
	StateCommittingLedger:     {StateDone, StateFailed},
}

// IsTerminal reports whether no further transition is possible
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateRejected || s == StateFailed
}

// CanTransitionTo reports whether next is a legal successor of s
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Machine tracks a single transfer's progress and the path it took
type Machine struct {
	current State
	history []State
}

// NewMachine starts in Validating
func NewMachine() *Machine {
	return &Machine{current: StateValidating, history: []State{StateValidating}}
}

func (m *Machine) Current() State {
	return m.current
}

// History returns every state visited, in order
func (m *Machine) History() []State {
	out := make([]State, len(m.history))
	copy(out, m.history)
	return out
}

// Transition moves to next. An illegal move is a programming error and
// leaves the machine unchanged.
func (m *Machine) Transition(next State) error {
	if !m.current.CanTransitionTo(next) {
		return fmt.Errorf("illegal transfer transition %s -> %s", m.current, next)
	}
	m.current = next
	m.history = append(m.history, next)
	return nil
}

// Direction is the way funds flow between the actor and the target
type Direction string

const (
	// DirectionDeposit moves funds from the actor to the target
	DirectionDeposit Direction = "deposit"
	// DirectionWithdrawal moves funds from the target to the actor
	DirectionWithdrawal Direction = "withdrawal"
)

func (d Direction) IsValid() bool {
	return d == DirectionDeposit || d == DirectionWithdrawal
}

// ParseDirection parses "deposit" or "withdrawal"
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToLower(strings.TrimSpace(s)))
	if !d.IsValid() {
		return "", shared.NewDomainError(CodeValidationFailed, "Direction must be deposit or withdrawal")
	}
	return d, nil
}

// LedgerType maps a direction to the ledger transaction type
func (d Direction) LedgerType() ledger.TransactionType {
	if d == DirectionWithdrawal {
		return ledger.TransactionTypeWithdrawal
	}
	return ledger.TransactionTypeDeposit
}

// Request is the transient input to the orchestrator
type Request struct {
	Target         ledger.Party
	Direction      Direction
	Amount         decimal.Decimal
	Memo           string
	IdempotencyKey string
}
