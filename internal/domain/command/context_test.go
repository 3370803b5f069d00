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

func TestContext_NeedMergesParams(t *testing.T) {
	c := NewContext(uuid.New())

	c.Need(event.NeedÅpneOppgaver, map[string]any{"ikkeEldreEnn": "2026-01-01"})
	c.Need(event.NeedRisikovurdering, map[string]any{"vedtaksperiodeId": "a"})
	c.Need(event.NeedÅpneOppgaver, map[string]any{"aktørId": "42"})

	needs := c.Needs()
	require.Len(t, needs, 2)
	assert.Equal(t, event.NeedÅpneOppgaver, needs[0].Kind)
	assert.Equal(t, map[string]any{"ikkeEldreEnn": "2026-01-01", "aktørId": "42"}, needs[0].Params)
	assert.Equal(t, event.NeedRisikovurdering, needs[1].Kind)
}

func TestContext_NeedsAreCopies(t *testing.T) {
	c := NewContext(uuid.New())
	c.Need(event.NeedPersoninfo, map[string]any{"a": 1})

	c.Needs()[0].Params["a"] = 2

	assert.Equal(t, 1, c.Needs()[0].Params["a"])
}

func TestContext_DecodeSolution(t *testing.T) {
	c := NewContext(uuid.New(), WithSolutions(map[event.NeedKind]json.RawMessage{
		event.NeedEgenAnsatt: json.RawMessage(`true`),
		event.NeedPersoninfo: json.RawMessage(`{"fornavn":`),
	}))

	var egenAnsatt bool
	ok, err := c.DecodeSolution(event.NeedEgenAnsatt, &egenAnsatt)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, egenAnsatt)

	var missing map[string]any
	ok, err = c.DecodeSolution(event.NeedRisikovurdering, &missing)
	require.NoError(t, err)
	assert.False(t, ok)

	var broken map[string]any
	_, err = c.DecodeSolution(event.NeedPersoninfo, &broken)
	assert.Error(t, err)
}

func TestContext_RunResetsPassState(t *testing.T) {
	c := NewContext(uuid.New())
	noisy := NewFunc("noisy", func(_ context.Context, c *Context) (Result, error) {
		c.Need(event.NeedPersoninfo, nil)
		c.Emit(event.NewDomain(event.NameOppgaveOpprettet, nil))
		return Incomplete, nil
	})
	_, err := c.Run(context.Background(), noisy)
	require.NoError(t, err)
	require.True(t, c.HasNeeds())

	quiet := NewFunc("quiet", func(context.Context, *Context) (Result, error) { return Complete, nil })
	res, err := c.Run(context.Background(), quiet)

	require.NoError(t, err)
	assert.Equal(t, Complete, res)
	assert.False(t, c.HasNeeds())
	assert.Empty(t, c.Events())
}

func TestContext_RunResumesTopLevelLeaf(t *testing.T) {
	rec := &recorder{}
	leaf := &step{name: "leaf", rec: rec, onExecute: incomplete}

	first := NewContext(uuid.New())
	res, err := first.Run(context.Background(), leaf)
	require.NoError(t, err)
	assert.Equal(t, Incomplete, res)
	assert.Empty(t, first.Path())

	_, err = NewContext(first.ID(), WithCursor(first.Path())).Run(context.Background(), leaf)
	require.NoError(t, err)
	assert.Equal(t, []string{"execute:leaf", "resume:leaf"}, rec.calls)
}

func TestContext_RunReportsErrorAsIncomplete(t *testing.T) {
	boom := errors.New("boom")
	failing := NewFunc("failing", func(context.Context, *Context) (Result, error) { return Complete, boom })

	res, err := NewContext(uuid.New()).Run(context.Background(), failing)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Incomplete, res)
}

func TestFeatures(t *testing.T) {
	f := Features{"risikovurdering": true}
	clone := f.Clone()
	clone["automatisering"] = true

	assert.True(t, f.Enabled("risikovurdering"))
	assert.False(t, f.Enabled("automatisering"))

	c := NewContext(uuid.New(), WithFeatures(f))
	f["risikovurdering"] = false
	assert.True(t, c.Features().Enabled("risikovurdering"), "context keeps the toggles it was created with")
}
