package workflow

import (
	"fmt"

	"github.com/garyjia/doc-approval/internal/domain/entity"
)

// backbone returns the approval transitions shared by every approval-driven
// document module. Extensions may add edges out of APPROVED only.
func backbone() StateMachineBuilder {
	b := NewBuilder()

	b.Configure(StateDraft).
		Permit(ActionSubmit, StatePending, CapabilityOwner).
		Permit(ActionCancel, StateCancelled, CapabilityOwner)

	b.Configure(StatePending).
		Permit(ActionApprove, StateApproved, CapabilityApprover).
		Permit(ActionReject, StateRejected, CapabilityApprover).
		Permit(ActionCancel, StateCancelled, CapabilityOwner)

	return b
}

// NewDocumentMachine builds the transition table for a document module
func NewDocumentMachine(module entity.ModuleType) (Machine, error) {
	return extend(backbone(), module)
}

// extend adds the module's post-approval edges to a copy of the backbone
func extend(base StateMachineBuilder, module entity.ModuleType) (Machine, error) {
	if module == entity.ModuleVoucher {
		return NewVoucherMachine(), nil
	}

	b := base.Clone()

	switch module {
	case entity.ModuleLeave:
	case entity.ModuleCard:
		b.Configure(StateApproved).Permit(ActionStartPrinting, StatePrinting, CapabilityOperator)
		b.Configure(StatePrinting).Permit(ActionComplete, StateCompleted, CapabilityOperator)
	case entity.ModuleStationery, entity.ModuleSeal:
		b.Configure(StateApproved).Permit(ActionIssue, StateIssued, CapabilityOperator)
	case entity.ModuleExpense:
		b.Configure(StateApproved).Permit(ActionPay, StatePaid, CapabilityOperator)
	default:
		return nil, fmt.Errorf("unknown module type: %s", module)
	}

	return b.Build(), nil
}

// NewVoucherMachine builds the voucher lifecycle table. Posting and voiding
// are further gated by the accounting period guard.
func NewVoucherMachine() Machine {
	b := NewBuilder()

	b.Configure(StateDraft).
		Permit(ActionSubmit, StatePending, CapabilityOwner).
		Permit(ActionPost, StatePosted, CapabilityOperator).
		Permit(ActionVoid, StateVoid, CapabilityOperator)

	b.Configure(StatePending).
		Permit(ActionPost, StatePosted, CapabilityOperator).
		Permit(ActionWithdraw, StateDraft, CapabilityOwner).
		Permit(ActionVoid, StateVoid, CapabilityOperator)

	b.Configure(StatePosted).
		Permit(ActionVoid, StateVoid, CapabilityOperator)

	return b.Build()
}

// Registry holds one machine per module type
type Registry struct {
	machines map[entity.ModuleType]Machine
}

// NewRegistry builds machines for every known module type
func NewRegistry() *Registry {
	r := &Registry{machines: make(map[entity.ModuleType]Machine)}
	base := backbone()
	for _, module := range entity.AllModuleTypes() {
		m, err := extend(base, module)
		if err != nil {
			panic(err)
		}
		r.machines[module] = m
	}
	return r
}

// For returns the machine for the module
func (r *Registry) For(module entity.ModuleType) (Machine, error) {
	m, ok := r.machines[module]
	if !ok {
		return nil, fmt.Errorf("%w: unknown module type %s", ErrInvalidState, module)
	}
	return m, nil
}
