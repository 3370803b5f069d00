// Package command holds the unit-of-work abstraction that case events are
// processed with: commands, the composites that chain them, and the
// execution context threaded through a pass.
package command

import "context"

// Result is the outcome of running a command
type Result int

const (
	// Complete means the command finished and the chain may proceed
	Complete Result = iota
	// Incomplete means the command is waiting for answers; the chain halts
	Incomplete
)

// String returns the string representation of the result
func (r Result) String() string {
	if r == Complete {
		return "complete"
	}
	return "incomplete"
}

// Command is one step of a command chain.
//
// Resume is called instead of Execute when a suspended context is replayed.
// It must be free of repeated side effects: re-check a precondition rather
// than re-issue a request. Undo is best-effort compensation, invoked only
// when a later step in the same pass fails.
type Command interface {
	Name() string
	Execute(ctx context.Context, c *Context) (Result, error)
	Resume(ctx context.Context, c *Context) (Result, error)
	Undo(ctx context.Context, c *Context)
}

// Base supplies the default Resume and Undo for leaf commands.
// Resume reports Complete and Undo does nothing.
type Base struct{}

// Resume reports Complete
func (Base) Resume(context.Context, *Context) (Result, error) {
	return Complete, nil
}

// Undo does nothing
func (Base) Undo(context.Context, *Context) {}

// Func adapts a function to a Command with default Resume and Undo
type Func struct {
	Base
	name string
	fn   func(ctx context.Context, c *Context) (Result, error)
}

// NewFunc creates a named command from a function
func NewFunc(name string, fn func(ctx context.Context, c *Context) (Result, error)) *Func {
	return &Func{name: name, fn: fn}
}

// Name returns the command name
func (f *Func) Name() string { return f.name }

// Execute runs the function
func (f *Func) Execute(ctx context.Context, c *Context) (Result, error) {
	return f.fn(ctx, c)
}

// composite is implemented by commands that hold other commands
type composite interface {
	Children() []Command
}

var (
	_ Command = (*Func)(nil)
	_ Command = (*Macro)(nil)
	_ Command = (*Gather)(nil)
)
