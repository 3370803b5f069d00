package command

import (
	"context"
	"encoding/json"
	"maps"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/sykepenger/spesialist/internal/domain/event"
)

// Need is one information request accumulated during a pass
type Need struct {
	Kind   event.NeedKind
	Params map[string]any
}

// Context is the mutable per-pass state threaded through a command chain
type Context struct {
	id uuid.UUID

	// cursor is consumed while a suspended chain is replayed; path is
	// written when the chain suspends again
	resuming bool
	cursor   []int
	path     []int

	needs     map[event.NeedKind]map[string]any
	needOrder []event.NeedKind
	events    []event.Domain
	solutions map[event.NeedKind]json.RawMessage
	features  Features
	finished  bool
}

// Option configures a Context
type Option func(*Context)

// WithCursor marks the context as resumed from the given persisted path
func WithCursor(path []int) Option {
	return func(c *Context) {
		c.resuming = true
		c.cursor = append([]int(nil), path...)
	}
}

// WithSolutions loads collected answers into the context
func WithSolutions(solutions map[event.NeedKind]json.RawMessage) Option {
	return func(c *Context) {
		for k, v := range solutions {
			c.solutions[k] = v
		}
	}
}

// WithFeatures sets the feature toggles visible to steps
func WithFeatures(f Features) Option {
	return func(c *Context) {
		c.features = f.Clone()
	}
}

// NewContext creates an execution context for one attempt
func NewContext(id uuid.UUID, opts ...Option) *Context {
	c := &Context{
		id:        id,
		needs:     make(map[event.NeedKind]map[string]any),
		solutions: make(map[event.NeedKind]json.RawMessage),
		features:  Features{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the context identifier
func (c *Context) ID() uuid.UUID { return c.id }

// Resuming reports whether this context continues a suspended chain
func (c *Context) Resuming() bool { return c.resuming }

// Need requests external information. Params for a kind already requested
// in this pass are merged.
func (c *Context) Need(kind event.NeedKind, params map[string]any) {
	existing, ok := c.needs[kind]
	if !ok {
		existing = make(map[string]any, len(params))
		c.needs[kind] = existing
		c.needOrder = append(c.needOrder, kind)
	}
	maps.Copy(existing, params)
}

// Needs returns the requests of this pass in the order they were first made
func (c *Context) Needs() []Need {
	out := make([]Need, 0, len(c.needOrder))
	for _, kind := range c.needOrder {
		out = append(out, Need{Kind: kind, Params: maps.Clone(c.needs[kind])})
	}
	return out
}

// NeedKinds returns the requested kinds in order
func (c *Context) NeedKinds() []event.NeedKind {
	return append([]event.NeedKind(nil), c.needOrder...)
}

// HasNeeds reports whether any information was requested in this pass
func (c *Context) HasNeeds() bool { return len(c.needOrder) > 0 }

// Emit queues a domain event for publication after the pass
func (c *Context) Emit(evt event.Domain) {
	c.events = append(c.events, evt)
}

// Events returns the domain events queued in this pass
func (c *Context) Events() []event.Domain {
	return append([]event.Domain(nil), c.events...)
}

// Solution returns the raw answer for a need kind, if one was collected
func (c *Context) Solution(kind event.NeedKind) (json.RawMessage, bool) {
	raw, ok := c.solutions[kind]
	return raw, ok
}

// DecodeSolution unmarshals the answer for kind into v. It reports false
// when no answer was collected.
func (c *Context) DecodeSolution(kind event.NeedKind, v any) (bool, error) {
	raw, ok := c.solutions[kind]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, goerr.Wrap(err, "failed to decode solution", goerr.V("kind", kind))
	}
	return true, nil
}

// AddSolution records an answer
func (c *Context) AddSolution(kind event.NeedKind, raw json.RawMessage) {
	c.solutions[kind] = raw
}

// Features returns the toggles injected at creation
func (c *Context) Features() Features { return c.features }

// Finish ends the chain early: enclosing composites report Complete without
// running later steps
func (c *Context) Finish() { c.finished = true }

// Finished reports whether Finish was called in this pass
func (c *Context) Finished() bool { return c.finished }

// Path returns the cursor written when the pass suspended
func (c *Context) Path() []int {
	return append([]int(nil), c.path...)
}

// Run executes one pass of cmd. A resumed context calls Resume, a fresh one
// calls Execute. Needs, events and the path are reset first.
func (c *Context) Run(ctx context.Context, cmd Command) (Result, error) {
	c.path = nil
	c.needs = make(map[event.NeedKind]map[string]any)
	c.needOrder = nil
	c.events = nil
	c.finished = false

	var (
		res Result
		err error
	)
	if c.resuming {
		res, err = cmd.Resume(ctx, c)
	} else {
		res, err = cmd.Execute(ctx, c)
	}
	c.cursor = nil
	if err != nil {
		return Incomplete, err
	}
	if c.finished {
		return Complete, nil
	}
	return res, nil
}

func (c *Context) popCursor() (int, bool) {
	if len(c.cursor) == 0 {
		return 0, false
	}
	head := c.cursor[0]
	c.cursor = c.cursor[1:]
	return head, true
}

// hideCursor removes the remaining cursor so replayed steps resume from the top
func (c *Context) hideCursor() []int {
	rest := c.cursor
	c.cursor = nil
	return rest
}

func (c *Context) restoreCursor(rest []int) {
	c.cursor = rest
}

// suspendAt records that the enclosing composite halted at index i
func (c *Context) suspendAt(i int) {
	c.path = append([]int{i}, c.path...)
}
