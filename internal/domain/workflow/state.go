package workflow

// State is the lifecycle state of an execution context
type State string

const (
	StateNew       State = "NEW"
	StateSuspended State = "SUSPENDED"
	StateDone      State = "DONE"
	StateFailed    State = "FAILED"
	StateAborted   State = "ABORTED"
)

// IsTerminal returns true if no further transitions are allowed from the state
func (s State) IsTerminal() bool {
	switch s {
	case StateDone, StateFailed, StateAborted:
		return true
	}
	return false
}

// IsResumable returns true if answers may resume a context in this state
func (s State) IsResumable() bool {
	return s == StateSuspended
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known lifecycle state
func (s State) IsValid() bool {
	switch s {
	case StateNew, StateSuspended, StateDone, StateFailed, StateAborted:
		return true
	}
	return false
}

// NonTerminalStates lists the states a context may still leave
func NonTerminalStates() []State {
	return []State{StateNew, StateSuspended}
}
