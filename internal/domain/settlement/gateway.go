// Package settlement describes the boundary to the external aggregator that
// custodies player and reseller funds.
package settlement

import (
	"context"
	"fmt"

	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/shopspring/decimal"
)

// Operation names an aggregator call
type Operation string

const (
	OperationDeposit       Operation = "deposit"
	OperationWithdraw      Operation = "withdraw"
	OperationCreateAccount Operation = "create"
)

// CodeSettlementFailed is the error code for any aggregator failure
const CodeSettlementFailed = "SETTLEMENT_FAILED"

// AmountPlaces is the number of decimal places the aggregator accepts
const AmountPlaces int32 = 2

// Representable reports whether amount reaches the aggregator unrounded
func Representable(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(AmountPlaces))
}

// Request is one balance call against an aggregator account
type Request struct {
	Account     string
	Amount      decimal.Decimal
	Credentials partner.Credentials
}

// Result is a successful aggregator response
type Result struct {
	// NewBalance is the aggregator's authoritative balance, when it returned one
	NewBalance *decimal.Decimal
	Message    string
	Raw        string
}

// Gateway is the only component allowed to talk to the aggregator
type Gateway interface {
	Deposit(ctx context.Context, req Request) (*Result, error)
	Withdraw(ctx context.Context, req Request) (*Result, error)
	CreateAccount(ctx context.Context, account string, creds partner.Credentials) (*Result, error)
}

// Error is returned for transport failures, timeouts and rejected calls
type Error struct {
	Operation Operation
	Account   string
	// Message is the aggregator's own text, or the transport error
	Message string
	Raw     string
	Timeout bool
	Err     error
}

func (e *Error) Error() string {
	if e.Timeout {
		return fmt.Sprintf("aggregator %s for %s timed out: %s", e.Operation, e.Account, e.Message)
	}
	return fmt.Sprintf("aggregator %s for %s failed: %s", e.Operation, e.Account, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}
