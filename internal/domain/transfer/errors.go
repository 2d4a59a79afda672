package transfer

import (
	"github.com/gamehub/backend/internal/domain/shared"
)

// Error codes for each failure category of a transfer
const (
	CodeValidationFailed      = "VALIDATION_FAILED"
	CodeInsufficientBalance   = "INSUFFICIENT_BALANCE"
	CodeSubtreeCeiling        = "SUBTREE_BALANCE_CEILING"
	CodeTargetBlocked         = "TARGET_BLOCKED"
	CodeCredentialResolution  = "CREDENTIAL_RESOLUTION_FAILED"
	CodeSettlementFailed      = "SETTLEMENT_FAILED"
	CodeLedgerCommitFailed    = "LEDGER_COMMIT_FAILED"
	LocalRecordsUnchangedNote = "local records were not changed"
)

// Outcome categories used in logs and metrics
const (
	CategoryValidation = "validation"
	CategoryCredential = "credential"
	CategorySettlement = "settlement"
	CategoryLedger     = "ledger_commit"
)

// Error wraps a failed transfer with the state it ended in
type Error struct {
	*shared.DomainError
	State    State
	Category string
	Cause    error
}

func (e *Error) Unwrap() error {
	return e.DomainError
}

func rejection(category, code, message string, cause error) *Error {
	return &Error{
		DomainError: shared.NewDomainError(code, message),
		State:       StateRejected,
		Category:    category,
		Cause:       cause,
	}
}

// NewValidationError rejects a transfer before any I/O
func NewValidationError(code, message string) *Error {
	return rejection(CategoryValidation, code, message, nil)
}

// NewCredentialError rejects a transfer whose target has no resolvable credentials
func NewCredentialError(cause *shared.DomainError) *Error {
	return rejection(CategoryCredential, cause.Code, cause.Message, cause)
}

// NewSettlementError fails a transfer the aggregator refused or never answered
func NewSettlementError(aggregatorMessage string, cause error) *Error {
	return &Error{
		DomainError: shared.NewDomainError(CodeSettlementFailed, aggregatorMessage+"; "+LocalRecordsUnchangedNote),
		State:       StateFailed,
		Category:    CategorySettlement,
		Cause:       cause,
	}
}

// NewLedgerCommitError fails a transfer that settled externally but could
// not be recorded locally
func NewLedgerCommitError(message string, cause error) *Error {
	return &Error{
		DomainError: shared.NewDomainError(CodeLedgerCommitFailed, message),
		State:       StateFailed,
		Category:    CategoryLedger,
		Cause:       cause,
	}
}
