package workflow

import "context"

// Machine is an immutable transition table. It holds no current state: every
// call maps (from, action, capability) to the next state or an error, so one
// Machine is shared by all documents of a module.
type Machine interface {
	// Transition returns the state reached by applying action from the given
	// state. It fails with ErrInvalidTransition when no edge exists or when
	// the edge requires a capability the actor lacks.
	Transition(ctx context.Context, from State, action Action, actor Capability) (State, error)
}
