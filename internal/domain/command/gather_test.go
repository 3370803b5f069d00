package command

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sykepenger/spesialist/internal/domain/event"
)

func needing(kind event.NeedKind) func(c *Context) (Result, error) {
	return func(c *Context) (Result, error) {
		if _, ok := c.Solution(kind); ok {
			return Complete, nil
		}
		c.Need(kind, nil)
		return Incomplete, nil
	}
}

func TestGather_CollectsEveryNeedInOnePass(t *testing.T) {
	rec := &recorder{}
	chain := NewMacro("chain",
		NewGather("info",
			&step{name: "personinfo", rec: rec, onExecute: needing(event.NeedPersoninfo), onResume: needing(event.NeedPersoninfo)},
			&step{name: "egen-ansatt", rec: rec, onExecute: needing(event.NeedEgenAnsatt), onResume: needing(event.NeedEgenAnsatt)},
		),
		&step{name: "after", rec: rec},
	)

	c := NewContext(uuid.New())
	res, err := c.Run(context.Background(), chain)

	require.NoError(t, err)
	assert.Equal(t, Incomplete, res)
	assert.Equal(t, []event.NeedKind{event.NeedPersoninfo, event.NeedEgenAnsatt}, c.NeedKinds())
	assert.Equal(t, []int{0}, c.Path())
	assert.NotContains(t, rec.calls, "execute:after")
}

func TestGather_ResumesWhenAllAnswered(t *testing.T) {
	rec := &recorder{}
	gather := NewGather("info",
		&step{name: "personinfo", rec: rec, onExecute: needing(event.NeedPersoninfo), onResume: needing(event.NeedPersoninfo)},
		&step{name: "egen-ansatt", rec: rec, onExecute: needing(event.NeedEgenAnsatt), onResume: needing(event.NeedEgenAnsatt)},
	)
	chain := NewMacro("chain", gather, &step{name: "after", rec: rec})

	first := NewContext(uuid.New())
	_, err := first.Run(context.Background(), chain)
	require.NoError(t, err)

	t.Run("partial answer keeps waiting", func(t *testing.T) {
		c := NewContext(first.ID(),
			WithCursor(first.Path()),
			WithSolutions(map[event.NeedKind]json.RawMessage{event.NeedPersoninfo: json.RawMessage(`{}`)}),
		)
		res, err := c.Run(context.Background(), chain)
		require.NoError(t, err)
		assert.Equal(t, Incomplete, res)
		assert.Equal(t, []event.NeedKind{event.NeedEgenAnsatt}, c.NeedKinds())
		assert.Equal(t, []int{0}, c.Path())
	})

	t.Run("full answer completes", func(t *testing.T) {
		rec.calls = nil
		c := NewContext(first.ID(),
			WithCursor(first.Path()),
			WithSolutions(map[event.NeedKind]json.RawMessage{
				event.NeedPersoninfo: json.RawMessage(`{}`),
				event.NeedEgenAnsatt: json.RawMessage(`false`),
			}),
		)
		res, err := c.Run(context.Background(), chain)
		require.NoError(t, err)
		assert.Equal(t, Complete, res)
		assert.False(t, c.HasNeeds())
		assert.Equal(t, []string{"resume:personinfo", "resume:egen-ansatt", "execute:after"}, rec.calls)
	})
}

func TestGather_ErrorUndoesCompletedSiblings(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	gather := NewGather("info",
		&step{name: "one", rec: rec},
		&step{name: "waiting", rec: rec, onExecute: incomplete},
		&step{name: "broken", rec: rec, onExecute: func(*Context) (Result, error) { return Complete, boom }},
	)

	_, err := NewContext(uuid.New()).Run(context.Background(), gather)

	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"execute:one", "execute:waiting", "execute:broken", "undo:one"}, rec.calls)
}

func TestGather_FinishStopsSiblings(t *testing.T) {
	rec := &recorder{}
	gather := NewGather("info",
		&step{name: "finisher", rec: rec, onExecute: func(c *Context) (Result, error) {
			c.Finish()
			return Complete, nil
		}},
		&step{name: "skipped", rec: rec},
	)

	res, err := NewContext(uuid.New()).Run(context.Background(), gather)

	require.NoError(t, err)
	assert.Equal(t, Complete, res)
	assert.Equal(t, []string{"execute:finisher"}, rec.calls)
}

func TestNewGather_RejectsMacroChildren(t *testing.T) {
	rec := &recorder{}

	assert.Panics(t, func() {
		NewGather("info", &step{name: "a", rec: rec}, NewMacro("nested", &step{name: "b", rec: rec}))
	})
	assert.NotPanics(t, func() {
		NewGather("info", &step{name: "a", rec: rec}, NewGather("nested", &step{name: "b", rec: rec}))
	})
}
