// Package ledger holds the accounting period guard: which voucher mutations a
// period allows, how periods move between OPEN, CLOSED and LOCKED, and the
// voucher balance rule.
package ledger

import (
	"fmt"

	"github.com/garyjia/doc-approval/internal/domain/apperr"
	"github.com/garyjia/doc-approval/internal/domain/entity"
)

// Operation is a voucher mutation subject to the period guard
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
	OpPost   Operation = "POST"
	OpVoid   Operation = "VOID"
)

// CanMutate reports whether the operation is allowed on a voucher whose
// period has the given status
func CanMutate(voucherStatus, periodStatus string, op Operation) bool {
	return CheckMutation(voucherStatus, periodStatus, op) == nil
}

// CheckMutation is CanMutate with the reason. VOID is allowed in any period
// unless the voucher is already void; everything else needs an OPEN period.
func CheckMutation(voucherStatus, periodStatus string, op Operation) error {
	switch op {
	case OpVoid:
		if voucherStatus == entity.StatusVoid {
			return apperr.ErrVoucherVoid
		}
		return nil
	case OpCreate, OpUpdate, OpDelete, OpPost:
		switch periodStatus {
		case entity.PeriodOpen:
			return nil
		case entity.PeriodLocked:
			return fmt.Errorf("%w: %w", apperr.ErrPeriodNotOpen, apperr.ErrPeriodLocked)
		default:
			return apperr.ErrPeriodNotOpen
		}
	default:
		return fmt.Errorf("%w: unknown voucher operation %s", apperr.ErrInvalidInput, op)
	}
}

// ValidateLines checks that every line carries exactly one positive side
func ValidateLines(lines []entity.VoucherLine) error {
	if len(lines) == 0 {
		return fmt.Errorf("%w: voucher has no lines", apperr.ErrInvalidInput)
	}

	for i, l := range lines {
		if l.AccountCode == "" {
			return fmt.Errorf("%w: line %d has no account code", apperr.ErrInvalidInput, i+1)
		}
		if l.DebitAmount.IsNegative() || l.CreditAmount.IsNegative() {
			return fmt.Errorf("%w: line %d has a negative amount", apperr.ErrInvalidInput, i+1)
		}
		if l.DebitAmount.IsZero() == l.CreditAmount.IsZero() {
			return fmt.Errorf("%w: line %d must have exactly one of debit or credit", apperr.ErrInvalidInput, i+1)
		}
	}
	return nil
}

// CheckBalanced returns ErrUnbalancedVoucher unless debits equal credits
func CheckBalanced(v *entity.Voucher) error {
	debit, credit := v.Totals()
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: debit %s, credit %s, difference %s",
			apperr.ErrUnbalancedVoucher, debit.StringFixed(2), credit.StringFixed(2), debit.Sub(credit).Abs().StringFixed(2))
	}
	return nil
}
