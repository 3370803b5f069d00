package workflow

// Trigger represents the outcome of a pass that causes a state transition
type Trigger string

const (
	TriggerSuspend  Trigger = "SUSPEND"
	TriggerComplete Trigger = "COMPLETE"
	TriggerFail     Trigger = "FAIL"
	TriggerAbort    Trigger = "ABORT"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
