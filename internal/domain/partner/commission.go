package partner

import (
	"fmt"

	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Commission fields as they appear in violations and API payloads
const (
	CommissionFieldRolling       = "commission_rolling"
	CommissionFieldLosing        = "commission_losing"
	CommissionFieldWithdrawalFee = "withdrawal_fee"
)

// Error codes raised by the commission policy
const (
	CodeCommissionFixed          = "HEAD_OFFICE_COMMISSION_FIXED"
	CodeCommissionExceedsParent  = "COMMISSION_EXCEEDS_PARENT"
	CodeCommissionOutOfRange     = "COMMISSION_OUT_OF_RANGE"
	CodeCommissionParentRequired = "COMMISSION_PARENT_REQUIRED"
)

var (
	hundred = decimal.NewFromInt(100)
)

// CommissionRates holds the three percentages a partner earns or charges
type CommissionRates struct {
	Rolling       decimal.Decimal `json:"commission_rolling"`
	Losing        decimal.Decimal `json:"commission_losing"`
	WithdrawalFee decimal.Decimal `json:"withdrawal_fee"`
}

// FullCommission is the pinned head office rate set
func FullCommission() CommissionRates {
	return CommissionRates{Rolling: hundred, Losing: hundred, WithdrawalFee: hundred}
}

// NewCommissionRates builds a rate set from plain numbers
func NewCommissionRates(rolling, losing, fee float64) CommissionRates {
	return CommissionRates{
		Rolling:       decimal.NewFromFloat(rolling),
		Losing:        decimal.NewFromFloat(losing),
		WithdrawalFee: decimal.NewFromFloat(fee),
	}
}

type commissionField struct {
	name  string
	label string
	value func(CommissionRates) decimal.Decimal
}

// checked in this order; the first failing field is reported
var commissionFields = []commissionField{
	{CommissionFieldRolling, "rolling commission", func(r CommissionRates) decimal.Decimal { return r.Rolling }},
	{CommissionFieldLosing, "losing commission", func(r CommissionRates) decimal.Decimal { return r.Losing }},
	{CommissionFieldWithdrawalFee, "withdrawal fee", func(r CommissionRates) decimal.Decimal { return r.WithdrawalFee }},
}

// CommissionViolation describes the first rate that broke the policy
type CommissionViolation struct {
	Field string
	Limit decimal.Decimal
	err   *shared.DomainError
}

func (v *CommissionViolation) Error() string {
	return v.err.Message
}

// Unwrap exposes the domain error so HTTP handlers can map the code
func (v *CommissionViolation) Unwrap() error {
	return v.err
}

// Code returns the violation's error code
func (v *CommissionViolation) Code() string {
	return v.err.Code
}

func newViolation(field string, limit decimal.Decimal, code, message string) *CommissionViolation {
	return &CommissionViolation{
		Field: field,
		Limit: limit,
		err:   shared.NewDomainError(code, message),
	}
}

// ValidateCommission checks a partner's requested rates against its tier and
// its direct parent's rates. It has no side effects.
//
// Head office is pinned at 100/100/100. Every other tier must stay within
// [0, 100] and may not exceed the parent's value for any field.
func ValidateCommission(rates CommissionRates, partnerType PartnerType, parent *CommissionRates) error {
	if partnerType == PartnerTypeHeadOffice {
		for _, f := range commissionFields {
			if !f.value(rates).Equal(hundred) {
				return newViolation(f.name, hundred, CodeCommissionFixed,
					fmt.Sprintf("head office commission is fixed: %s must be 100", f.label))
			}
		}
		return nil
	}

	for _, f := range commissionFields {
		v := f.value(rates)
		if v.IsNegative() || v.GreaterThan(hundred) {
			return newViolation(f.name, hundred, CodeCommissionOutOfRange,
				fmt.Sprintf("%s must be between 0 and 100", f.label))
		}
	}

	if partnerType == PartnerTypeSystemAdmin {
		return nil
	}
	if parent == nil {
		return newViolation("", decimal.Zero, CodeCommissionParentRequired,
			"parent commission is required to validate "+partnerType.DisplayName()+" rates")
	}

	for _, f := range commissionFields {
		limit := f.value(*parent)
		if f.value(rates).GreaterThan(limit) {
			return newViolation(f.name, limit, CodeCommissionExceedsParent,
				fmt.Sprintf("%s exceeds parent limit (%s)", f.label, limit.String()))
		}
	}
	return nil
}
