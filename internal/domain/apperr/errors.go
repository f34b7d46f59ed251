// Package apperr holds the error taxonomy reported by the approval core.
// Callers classify failures with errors.Is; none of these are retried by the
// engine.
package apperr

import "errors"

var (
	// ErrInvalidTransition is returned when a document or voucher state
	// machine has no edge for the requested action, or the caller lacks the
	// capability the edge requires
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNoApproverResolvable is returned when a template step or the module
	// default rule produces nobody to approve
	ErrNoApproverResolvable = errors.New("no approver resolvable")

	// ErrStepNotFound is returned when the step does not exist or is not the
	// execution's current step
	ErrStepNotFound = errors.New("approval step not found")

	// ErrAlreadyDecided is returned when the step already carries a decision
	ErrAlreadyDecided = errors.New("approval step already decided")

	// ErrNotAuthorized is returned when the actor is neither the assigned
	// approver nor a valid delegate of that approver
	ErrNotAuthorized = errors.New("not authorized")

	// ErrUnbalancedVoucher is returned when total debits differ from total credits
	ErrUnbalancedVoucher = errors.New("voucher is unbalanced")

	// ErrPeriodNotOpen is returned when a mutation requires an OPEN period
	ErrPeriodNotOpen = errors.New("accounting period is not open")

	// ErrPeriodLocked is returned for any attempt to leave the LOCKED state
	ErrPeriodLocked = errors.New("accounting period is locked")

	// Supporting errors

	ErrNotFound         = errors.New("not found")
	ErrExecutionRunning = errors.New("document already has a running execution")
	ErrInvalidInput     = errors.New("invalid input")
	ErrVoucherVoid      = errors.New("voucher is void")
	ErrConcurrentUpdate = errors.New("concurrent update")
)
