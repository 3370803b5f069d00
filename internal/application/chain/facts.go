package chain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"

	"github.com/sykepenger/spesialist/internal/application/port"
	"github.com/sykepenger/spesialist/internal/domain/command"
	"github.com/sykepenger/spesialist/internal/domain/entity"
	"github.com/sykepenger/spesialist/internal/domain/event"
)

// FactStep makes sure one fact is stored. It uses the fact store when the
// fact is already known, stores the answer when one was collected, and
// otherwise requests it. Execute and Resume behave the same.
type FactStep struct {
	facts    port.CaseFactRepository
	logger   *zap.Logger
	kind     event.NeedKind
	personID string
	caseID   *uuid.UUID
	params   map[string]any
	decode   func(json.RawMessage) error
}

// NewFactStep creates a step for a fact about a person (caseID nil) or a case
func NewFactStep(facts port.CaseFactRepository, logger *zap.Logger, kind event.NeedKind, personID string, caseID *uuid.UUID, params map[string]any) *FactStep {
	return &FactStep{
		facts:    facts,
		logger:   logger,
		kind:     kind,
		personID: personID,
		caseID:   caseID,
		params:   params,
		decode:   decoderFor(kind),
	}
}

// Name returns the step name
func (s *FactStep) Name() string { return "fakta:" + s.kind.String() }

// Execute ensures the fact
func (s *FactStep) Execute(ctx context.Context, c *command.Context) (command.Result, error) {
	return s.ensure(ctx, c)
}

// Resume ensures the fact
func (s *FactStep) Resume(ctx context.Context, c *command.Context) (command.Result, error) {
	return s.ensure(ctx, c)
}

// Undo does nothing. Stored facts are kept.
func (s *FactStep) Undo(context.Context, *command.Context) {}

func (s *FactStep) ensure(ctx context.Context, c *command.Context) (command.Result, error) {
	known, err := s.facts.Get(ctx, s.personID, s.caseID, s.kind)
	if err != nil {
		return command.Incomplete, err
	}
	if known != nil {
		return command.Complete, nil
	}

	raw, ok := c.Solution(s.kind)
	if !ok {
		s.logger.Info("Requesting fact", zap.String("kind", s.kind.String()), zap.String("context_id", c.ID().String()))
		c.Need(s.kind, s.params)
		return command.Incomplete, nil
	}

	if err := s.decode(raw); err != nil {
		return command.Incomplete, goerr.Wrap(err, "invalid solution", goerr.V("kind", s.kind))
	}
	return command.Complete, s.facts.Save(ctx, &entity.CaseFact{
		PersonID: s.personID,
		CaseID:   s.caseID,
		Kind:     s.kind,
		Data:     raw,
		StoredAt: time.Now(),
	})
}

func decoderFor(kind event.NeedKind) func(json.RawMessage) error {
	var target func() any
	switch kind {
	case event.NeedEgenAnsatt:
		target = func() any { return new(entity.EgenAnsattFact) }
	case event.NeedÅpneOppgaver:
		target = func() any { return new(entity.ÅpneOppgaverFact) }
	case event.NeedRisikovurdering:
		target = func() any { return new(entity.RisikovurderingFact) }
	case event.NeedPersoninfo:
		target = func() any { return new(entity.PersoninfoFact) }
	default:
		target = func() any { return new(json.RawMessage) }
	}
	return func(raw json.RawMessage) error {
		return json.Unmarshal(raw, target())
	}
}

// loadFact decodes a stored fact into v. It reports false when the fact is unknown.
func loadFact(ctx context.Context, facts port.CaseFactRepository, personID string, caseID *uuid.UUID, kind event.NeedKind, v any) (bool, error) {
	fact, err := facts.Get(ctx, personID, caseID, kind)
	if err != nil || fact == nil {
		return false, err
	}
	if err := json.Unmarshal(fact.Data, v); err != nil {
		return false, goerr.Wrap(err, "failed to decode stored fact", goerr.V("kind", kind))
	}
	return true, nil
}

// whenEnabled runs the wrapped step only while a feature is on
type whenEnabled struct {
	feature string
	step    command.Command
}

func (w *whenEnabled) Name() string { return w.step.Name() }

func (w *whenEnabled) Execute(ctx context.Context, c *command.Context) (command.Result, error) {
	if !c.Features().Enabled(w.feature) {
		return command.Complete, nil
	}
	return w.step.Execute(ctx, c)
}

func (w *whenEnabled) Resume(ctx context.Context, c *command.Context) (command.Result, error) {
	if !c.Features().Enabled(w.feature) {
		return command.Complete, nil
	}
	return w.step.Resume(ctx, c)
}

func (w *whenEnabled) Undo(ctx context.Context, c *command.Context) {
	w.step.Undo(ctx, c)
}
