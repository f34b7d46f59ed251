package workflow

import (
	"context"
	"fmt"
)

// StateMachineBuilder builds a transition table
type StateMachineBuilder interface {
	// Configure returns a state configuration for the given state
	Configure(state State) StateConfiguration

	// Clone returns an independent builder holding a copy of the current
	// configuration, used to extend a shared backbone per module
	Clone() StateMachineBuilder

	// Build creates an immutable machine from the current configuration
	Build() Machine
}

// StateConfiguration configures transitions for a specific state
type StateConfiguration interface {
	// Permit allows action to move to toState when the actor holds requires.
	// CapabilityNone means any actor may request the edge.
	Permit(action Action, toState State, requires Capability) StateConfiguration
}

// transition represents a state transition with its required capability
type transition struct {
	toState  State
	requires Capability
}

// stateConfig implements StateConfiguration
type stateConfig struct {
	fromState   State
	transitions map[Action][]transition
}

// stateMachineBuilder implements StateMachineBuilder
type stateMachineBuilder struct {
	configurations map[State]*stateConfig
}

// table implements Machine
type table struct {
	configurations map[State]*stateConfig
}

// NewBuilder creates a new state machine builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{
		configurations: make(map[State]*stateConfig),
	}
}

// Configure returns a state configuration for the given state
func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}

	config, exists := b.configurations[state]
	if !exists {
		config = &stateConfig{
			fromState:   state,
			transitions: make(map[Action][]transition),
		}
		b.configurations[state] = config
	}

	return config
}

// Clone returns an independent copy of the builder
func (b *stateMachineBuilder) Clone() StateMachineBuilder {
	return &stateMachineBuilder{configurations: copyConfigurations(b.configurations)}
}

// Build creates an immutable machine from the current configuration
func (b *stateMachineBuilder) Build() Machine {
	return &table{configurations: copyConfigurations(b.configurations)}
}

func copyConfigurations(src map[State]*stateConfig) map[State]*stateConfig {
	dst := make(map[State]*stateConfig, len(src))
	for state, config := range src {
		transitions := make(map[Action][]transition, len(config.transitions))
		for action, ts := range config.transitions {
			transitions[action] = append([]transition{}, ts...)
		}
		dst[state] = &stateConfig{
			fromState:   state,
			transitions: transitions,
		}
	}
	return dst
}

// Permit allows an action to transition to the target state
func (c *stateConfig) Permit(action Action, toState State, requires Capability) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}

	c.transitions[action] = append(c.transitions[action], transition{
		toState:  toState,
		requires: requires,
	})

	return c
}

// Transition applies action from the given state
func (m *table) Transition(ctx context.Context, from State, action Action, actor Capability) (State, error) {
	if !from.IsValid() {
		return from, fmt.Errorf("%w: %s", ErrInvalidState, from)
	}

	config, exists := m.configurations[from]
	if !exists {
		return from, fmt.Errorf("%w: cannot %s from absorbing state %s", ErrInvalidTransition, action, from)
	}

	transitions, exists := config.transitions[action]
	if !exists || len(transitions) == 0 {
		return from, fmt.Errorf("%w: cannot %s from state %s", ErrInvalidTransition, action, from)
	}

	var missing Capability
	for _, t := range transitions {
		if allows(t.requires, actor) {
			return t.toState, nil
		}
		missing = t.requires
	}

	return from, fmt.Errorf("%w: %s from state %s requires %s capability", ErrInvalidTransition, action, from, missing)
}

func allows(requires, actor Capability) bool {
	return requires == CapabilityNone || requires == actor
}
