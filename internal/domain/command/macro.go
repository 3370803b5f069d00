package command

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
)

type stepMode int

const (
	modeExecute stepMode = iota
	modeResume
	modeReplay
)

// Macro runs its children in order. It halts on the first Incomplete child,
// and on error undoes the children completed in the same pass in reverse
// order before returning the error.
type Macro struct {
	name     string
	children []Command
}

// NewMacro creates an ordered command chain
func NewMacro(name string, children ...Command) *Macro {
	return &Macro{name: name, children: children}
}

// Name returns the chain name
func (m *Macro) Name() string { return m.name }

// Children returns the steps of the chain
func (m *Macro) Children() []Command { return m.children }

// Execute runs every child from the first
func (m *Macro) Execute(ctx context.Context, c *Context) (Result, error) {
	return m.walk(ctx, c, func(int) stepMode { return modeExecute })
}

// Resume continues from the cursor. Children before the cursor are replayed
// with Resume, the child at the cursor resumes with the rest of the cursor,
// and later children execute. Without a cursor every child is replayed.
func (m *Macro) Resume(ctx context.Context, c *Context) (Result, error) {
	at, ok := c.popCursor()
	if !ok {
		return m.walk(ctx, c, func(int) stepMode { return modeResume })
	}
	if at < 0 || at >= len(m.children) {
		return Incomplete, goerr.Wrap(ErrInvalidCursor, "cursor out of range",
			goerr.V("macro", m.name),
			goerr.V("index", at),
			goerr.V("steps", len(m.children)))
	}

	return m.walk(ctx, c, func(i int) stepMode {
		switch {
		case i < at:
			return modeReplay
		case i == at:
			return modeResume
		default:
			return modeExecute
		}
	})
}

// Undo compensates every child in reverse order
func (m *Macro) Undo(ctx context.Context, c *Context) {
	for i := len(m.children) - 1; i >= 0; i-- {
		m.children[i].Undo(ctx, c)
	}
}

func (m *Macro) walk(ctx context.Context, c *Context, modeFor func(int) stepMode) (Result, error) {
	completed := make([]Command, 0, len(m.children))

	for i, child := range m.children {
		res, err := runStep(ctx, c, child, modeFor(i))
		if err != nil {
			undoReverse(ctx, c, completed)
			return Incomplete, wrapStep(err, m.name, child, i)
		}
		if res == Incomplete {
			c.suspendAt(i)
			return Incomplete, nil
		}
		completed = append(completed, child)
		if c.Finished() {
			return Complete, nil
		}
	}

	return Complete, nil
}

func runStep(ctx context.Context, c *Context, child Command, mode stepMode) (Result, error) {
	switch mode {
	case modeReplay:
		rest := c.hideCursor()
		defer c.restoreCursor(rest)
		return child.Resume(ctx, c)
	case modeResume:
		return child.Resume(ctx, c)
	default:
		return child.Execute(ctx, c)
	}
}

func undoReverse(ctx context.Context, c *Context, completed []Command) {
	for i := len(completed) - 1; i >= 0; i-- {
		completed[i].Undo(ctx, c)
	}
}

// wrapStep annotates errors from leaf steps; composites have already done so
func wrapStep(err error, parent string, child Command, index int) error {
	if _, ok := child.(composite); ok {
		return err
	}
	return goerr.Wrap(err, "step failed",
		goerr.V("chain", parent),
		goerr.V("step", child.Name()),
		goerr.V("index", index))
}
