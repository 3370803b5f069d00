package workflow

import "github.com/m-mizutani/goerr/v2"

// both non-terminal states leave the same way; a resumed context may suspend
// again on a later step
var transitions = map[State]map[Trigger]State{
	StateNew: {
		TriggerSuspend:  StateSuspended,
		TriggerComplete: StateDone,
		TriggerFail:     StateFailed,
		TriggerAbort:    StateAborted,
	},
	StateSuspended: {
		TriggerSuspend:  StateSuspended,
		TriggerComplete: StateDone,
		TriggerFail:     StateFailed,
		TriggerAbort:    StateAborted,
	},
}

// ContextMachine tracks the lifecycle state of one execution context and
// validates its transitions
type ContextMachine struct {
	current State
}

// NewContextMachine returns a lifecycle machine for an execution context
// currently in the given state
func NewContextMachine(current State) *ContextMachine {
	return &ContextMachine{current: current}
}

// State returns the current state
func (m *ContextMachine) State() State {
	return m.current
}

// Fire moves the machine along trigger, or leaves it untouched and returns
// ErrInvalidTransition when the current state does not permit it
func (m *ContextMachine) Fire(trigger Trigger) error {
	if !m.current.IsValid() {
		return goerr.Wrap(ErrInvalidState, "unknown context state", goerr.V("state", m.current))
	}

	next, ok := transitions[m.current][trigger]
	if !ok {
		return goerr.Wrap(ErrInvalidTransition, "trigger not permitted",
			goerr.V("trigger", trigger),
			goerr.V("state", m.current))
	}

	m.current = next
	return nil
}
