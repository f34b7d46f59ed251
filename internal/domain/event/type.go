package event

// Type identifies the type of domain event
type Type string

const (
	TypeExecutionStarted   Type = "execution.started"
	TypeStepActivated      Type = "step.activated"
	TypeStepDecided        Type = "step.decided"
	TypeExecutionApproved  Type = "execution.approved"
	TypeExecutionRejected  Type = "execution.rejected"
	TypeExecutionCancelled Type = "execution.cancelled"
	TypeDocumentAdvanced   Type = "document.advanced"
	TypeVoucherPosted      Type = "voucher.posted"
	TypeVoucherVoided      Type = "voucher.voided"
	TypePeriodClosed       Type = "period.closed"
	TypePeriodReopened     Type = "period.reopened"
	TypePeriodLocked       Type = "period.locked"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeExecutionStarted,
		TypeStepActivated,
		TypeStepDecided,
		TypeExecutionApproved,
		TypeExecutionRejected,
		TypeExecutionCancelled,
		TypeDocumentAdvanced,
		TypeVoucherPosted,
		TypeVoucherVoided,
		TypePeriodClosed,
		TypePeriodReopened,
		TypePeriodLocked:
		return true
	default:
		return false
	}
}
