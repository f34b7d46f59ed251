package workflow

import "github.com/garyjia/doc-approval/internal/domain/entity"

// State represents a document lifecycle state
type State string

const (
	StateDraft     State = entity.StatusDraft
	StatePending   State = entity.StatusPending
	StateApproved  State = entity.StatusApproved
	StateRejected  State = entity.StatusRejected
	StateCancelled State = entity.StatusCancelled
	StatePrinting  State = entity.StatusPrinting
	StateCompleted State = entity.StatusCompleted
	StateIssued    State = entity.StatusIssued
	StatePaid      State = entity.StatusPaid
	StatePosted    State = entity.StatusPosted
	StateVoid      State = entity.StatusVoid
)

var validStates = map[State]bool{
	StateDraft:     true,
	StatePending:   true,
	StateApproved:  true,
	StateRejected:  true,
	StateCancelled: true,
	StatePrinting:  true,
	StateCompleted: true,
	StateIssued:    true,
	StatePaid:      true,
	StatePosted:    true,
	StateVoid:      true,
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known document state
func (s State) IsValid() bool {
	return validStates[s]
}

// Action is a requested lifecycle operation on a document
type Action string

const (
	ActionSubmit        Action = "SUBMIT"
	ActionApprove       Action = "APPROVE"
	ActionReject        Action = "REJECT"
	ActionCancel        Action = "CANCEL"
	ActionStartPrinting Action = "START_PRINTING"
	ActionComplete      Action = "COMPLETE"
	ActionIssue         Action = "ISSUE"
	ActionPay           Action = "PAY"
	ActionPost          Action = "POST"
	ActionVoid          Action = "VOID"
	ActionWithdraw      Action = "WITHDRAW"
)

// String returns the string representation of the action
func (a Action) String() string {
	return string(a)
}

// Capability is the role in which an actor requests a transition
type Capability string

const (
	CapabilityNone     Capability = ""
	CapabilityOwner    Capability = "owner"
	CapabilityApprover Capability = "approver"
	CapabilityOperator Capability = "operator"
)
