package chain

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sykepenger/spesialist/internal/application/mediator"
	"github.com/sykepenger/spesialist/internal/application/port"
	"github.com/sykepenger/spesialist/internal/domain/command"
	"github.com/sykepenger/spesialist/internal/domain/entity"
	"github.com/sykepenger/spesialist/internal/domain/event"
)

// VedtaksperiodeForkastet returns the factory for the withdrawal chain
func VedtaksperiodeForkastet(deps Deps) mediator.Factory {
	deps = deps.withDefaults()
	return func(h *event.Hendelse) (command.Command, error) {
		caseID, err := requireCase(h)
		if err != nil {
			return nil, err
		}
		return command.NewMacro("vedtaksperiode_forkastet",
			&avbrytKommandokjeder{aborter: deps.Aborter, caseID: caseID, logger: deps.Logger},
			&invaliderOppgave{oppgaver: deps.Oppgaver, caseID: caseID, logger: deps.Logger},
		), nil
	}
}

// avbrytKommandokjeder aborts every other active context of the case
type avbrytKommandokjeder struct {
	command.Base
	aborter Aborter
	caseID  uuid.UUID
	logger  *zap.Logger
}

func (s *avbrytKommandokjeder) Name() string { return "avbryt_kommandokjeder" }

func (s *avbrytKommandokjeder) Execute(ctx context.Context, c *command.Context) (command.Result, error) {
	aborted, err := s.aborter.AbortActive(ctx, s.caseID, c.ID())
	if err != nil {
		return command.Incomplete, err
	}
	if len(aborted) > 0 {
		s.logger.Info("Aborted command contexts for withdrawn vedtaksperiode",
			zap.String("vedtaksperiode_id", s.caseID.String()),
			zap.Int("count", len(aborted)))
	}
	return command.Complete, nil
}

// invaliderOppgave invalidates the open oppgave of the case, if there is one
type invaliderOppgave struct {
	command.Base
	oppgaver port.OppgaveRepository
	caseID   uuid.UUID
	logger   *zap.Logger

	invalidated *entity.Oppgave
}

func (s *invaliderOppgave) Name() string { return "invalider_oppgave" }

func (s *invaliderOppgave) Execute(ctx context.Context, c *command.Context) (command.Result, error) {
	o, err := s.oppgaver.FindOpenByCase(ctx, s.caseID)
	if err != nil || o == nil {
		return command.Complete, err
	}
	if err := s.oppgaver.UpdateStatus(ctx, o.ID, entity.OppgaveInvalidert); err != nil {
		return command.Incomplete, err
	}
	s.invalidated = o

	c.Emit(event.NewDomain(event.NameOppgaveInvalidert, map[string]any{
		"oppgaveId": o.ID.String(),
		"status":    entity.OppgaveInvalidert,
	}))
	s.logger.Info("Oppgave invalidert",
		zap.String("oppgave_id", o.ID.String()),
		zap.String("vedtaksperiode_id", s.caseID.String()))
	return command.Complete, nil
}

func (s *invaliderOppgave) Undo(ctx context.Context, _ *command.Context) {
	if s.invalidated == nil {
		return
	}
	if err := s.oppgaver.UpdateStatus(ctx, s.invalidated.ID, s.invalidated.Status); err != nil {
		s.logger.Error("Failed to restore oppgave during undo",
			zap.String("oppgave_id", s.invalidated.ID.String()), zap.Error(err))
		return
	}
	s.invalidated = nil
}
