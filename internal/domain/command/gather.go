package command

import (
	"context"
	"fmt"
)

// Gather runs every child even when some are Incomplete, so one pass can
// request several independent pieces of information at once. It reports
// Incomplete if any child did.
type Gather struct {
	name     string
	children []Command
}

// NewGather creates a composite whose children run side by side. Children
// are replayed in full on every resume and keep no cursor of their own, so
// NewGather panics when a child is a Macro. A nested Gather is fine.
func NewGather(name string, children ...Command) *Gather {
	for _, child := range children {
		if _, ok := child.(*Macro); ok {
			panic(fmt.Sprintf("gather %s: child %s is a macro and would lose its cursor", name, child.Name()))
		}
	}
	return &Gather{name: name, children: children}
}

// Name returns the composite name
func (g *Gather) Name() string { return g.name }

// Children returns the gathered steps
func (g *Gather) Children() []Command { return g.children }

// Execute runs every child
func (g *Gather) Execute(ctx context.Context, c *Context) (Result, error) {
	return g.walk(ctx, c, modeExecute)
}

// Resume resumes every child
func (g *Gather) Resume(ctx context.Context, c *Context) (Result, error) {
	rest := c.hideCursor()
	defer c.restoreCursor(rest)
	return g.walk(ctx, c, modeResume)
}

// Undo compensates every child in reverse order
func (g *Gather) Undo(ctx context.Context, c *Context) {
	undoReverse(ctx, c, g.children)
}

func (g *Gather) walk(ctx context.Context, c *Context, mode stepMode) (Result, error) {
	completed := make([]Command, 0, len(g.children))
	result := Complete

	for i, child := range g.children {
		path := c.path
		res, err := runStep(ctx, c, child, mode)
		c.path = path
		if err != nil {
			undoReverse(ctx, c, completed)
			return Incomplete, wrapStep(err, g.name, child, i)
		}
		if c.Finished() {
			return Complete, nil
		}
		if res == Incomplete {
			result = Incomplete
			continue
		}
		completed = append(completed, child)
	}

	return result, nil
}
