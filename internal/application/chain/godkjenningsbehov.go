package chain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sykepenger/spesialist/internal/application/mediator"
	"github.com/sykepenger/spesialist/internal/application/port"
	"github.com/sykepenger/spesialist/internal/domain/command"
	"github.com/sykepenger/spesialist/internal/domain/entity"
	"github.com/sykepenger/spesialist/internal/domain/event"
)

// Godkjenningsbehov returns the factory for the approval-request chain:
// check whether the request still needs handling, collect facts, try
// automatic approval and otherwise create an oppgave.
func Godkjenningsbehov(deps Deps) mediator.Factory {
	deps = deps.withDefaults()
	return func(h *event.Hendelse) (command.Command, error) {
		caseID, err := requireCase(h)
		if err != nil {
			return nil, err
		}

		msg := payload(h)
		periodetype := msg.Get("Godkjenning.periodetype").String()
		organisasjonsnummer := msg.Get("organisasjonsnummer").String()
		ikkeEldreEnn := h.ReceivedAt.AddDate(-1, 0, 0).Format(time.DateOnly)

		return command.NewMacro("godkjenningsbehov",
			&vurderVidereBehandling{oppgaver: deps.Oppgaver, caseID: caseID, hendelseID: h.ID, logger: deps.SensitiveLogger},
			command.NewGather("innhent",
				NewFactStep(deps.Facts, deps.Logger, event.NeedPersoninfo, h.PersonID, nil,
					map[string]any{"ident": h.PersonID}),
				NewFactStep(deps.Facts, deps.Logger, event.NeedEgenAnsatt, h.PersonID, nil,
					map[string]any{"ident": h.PersonID}),
				NewFactStep(deps.Facts, deps.Logger, event.NeedÅpneOppgaver, h.PersonID, &caseID,
					map[string]any{"ident": h.PersonID, "ikkeEldreEnn": ikkeEldreEnn}),
				&whenEnabled{
					feature: entity.FeatureRisikovurdering,
					step: NewFactStep(deps.Facts, deps.Logger, event.NeedRisikovurdering, h.PersonID, &caseID,
						map[string]any{
							"vedtaksperiodeId":      caseID.String(),
							"organisasjonsnummer":   organisasjonsnummer,
							"førstegangsbehandling": periodetype == entity.PeriodetypeFørstegangsbehandling,
						}),
				},
			),
			&automatisering{facts: deps.Facts, personID: h.PersonID, caseID: caseID, logger: deps.Logger},
			&opprettOppgave{oppgaver: deps.Oppgaver, caseID: caseID, hendelseID: h.ID, logger: deps.Logger},
		), nil
	}
}

// vurderVidereBehandling ends the chain when the case already has an open oppgave
type vurderVidereBehandling struct {
	command.Base
	oppgaver   port.OppgaveRepository
	caseID     uuid.UUID
	hendelseID uuid.UUID
	logger     *zap.Logger
}

func (s *vurderVidereBehandling) Name() string { return "vurder_videre_behandling" }

func (s *vurderVidereBehandling) Execute(ctx context.Context, c *command.Context) (command.Result, error) {
	open, err := s.oppgaver.FindOpenByCase(ctx, s.caseID)
	if err != nil {
		return command.Incomplete, err
	}
	if open != nil {
		s.logger.Info("Case already has an open oppgave, ignoring godkjenningsbehov",
			zap.String("hendelse_id", s.hendelseID.String()),
			zap.String("vedtaksperiode_id", s.caseID.String()),
			zap.String("oppgave_id", open.ID.String()))
		c.Finish()
	}
	return command.Complete, nil
}

// automatisering approves the period without a case worker when every rule passes
type automatisering struct {
	command.Base
	facts    port.CaseFactRepository
	personID string
	caseID   uuid.UUID
	logger   *zap.Logger
}

func (s *automatisering) Name() string { return "automatisering" }

func (s *automatisering) Execute(ctx context.Context, c *command.Context) (command.Result, error) {
	reasons, err := s.evaluate(ctx, c.Features())
	if err != nil {
		return command.Incomplete, err
	}

	if len(reasons) > 0 {
		s.logger.Info("Period cannot be approved automatically",
			zap.String("vedtaksperiode_id", s.caseID.String()),
			zap.Strings("reasons", reasons))
		return command.Complete, nil
	}
	if !c.Features().Enabled(entity.FeatureAutomatisering) {
		s.logger.Info("Period qualifies for automatic approval, automatisering is disabled",
			zap.String("vedtaksperiode_id", s.caseID.String()))
		return command.Complete, nil
	}

	c.Emit(event.NewDomain(event.NameVedtaksperiodeGodkjent, map[string]any{
		"automatiskBehandling": true,
		"saksbehandlerident":   "Automatisk behandlet",
		"godkjenttidspunkt":    time.Now().Format("2006-01-02T15:04:05.000000"),
	}))
	s.logger.Info("Period approved automatically", zap.String("vedtaksperiode_id", s.caseID.String()))
	c.Finish()
	return command.Complete, nil
}

// evaluate returns the reasons the period cannot be approved automatically
func (s *automatisering) evaluate(ctx context.Context, features command.Features) ([]string, error) {
	var reasons []string

	var egenAnsatt entity.EgenAnsattFact
	found, err := loadFact(ctx, s.facts, s.personID, nil, event.NeedEgenAnsatt, &egenAnsatt)
	if err != nil {
		return nil, err
	}
	if !found {
		reasons = append(reasons, "egen ansatt unknown")
	} else if egenAnsatt {
		reasons = append(reasons, "egen ansatt")
	}

	var åpne entity.ÅpneOppgaverFact
	found, err = loadFact(ctx, s.facts, s.personID, &s.caseID, event.NeedÅpneOppgaver, &åpne)
	if err != nil {
		return nil, err
	}
	switch {
	case !found:
		reasons = append(reasons, "open gosys oppgaver unknown")
	case åpne.OppslagFeilet || åpne.Antall == nil:
		reasons = append(reasons, "gosys lookup failed")
	case *åpne.Antall > 0:
		reasons = append(reasons, "open gosys oppgaver")
	}

	if !features.Enabled(entity.FeatureRisikovurdering) {
		reasons = append(reasons, "risikovurdering disabled")
		return reasons, nil
	}
	var risiko entity.RisikovurderingFact
	found, err = loadFact(ctx, s.facts, s.personID, &s.caseID, event.NeedRisikovurdering, &risiko)
	if err != nil {
		return nil, err
	}
	if !found {
		reasons = append(reasons, "risikovurdering missing")
	} else if !risiko.KanGodkjennesAutomatisk {
		reasons = append(reasons, "risikovurdering does not allow automatic approval")
	}

	return reasons, nil
}

// opprettOppgave creates the case worker oppgave
type opprettOppgave struct {
	command.Base
	oppgaver   port.OppgaveRepository
	caseID     uuid.UUID
	hendelseID uuid.UUID
	logger     *zap.Logger

	created *uuid.UUID
}

func (s *opprettOppgave) Name() string { return "opprett_oppgave" }

func (s *opprettOppgave) Execute(ctx context.Context, c *command.Context) (command.Result, error) {
	now := time.Now()
	o := &entity.Oppgave{
		ID:         uuid.New(),
		CaseID:     s.caseID,
		HendelseID: s.hendelseID,
		ContextID:  c.ID(),
		Status:     entity.OppgaveAvventerSaksbehandler,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.oppgaver.Create(ctx, o); err != nil {
		return command.Incomplete, err
	}
	s.created = &o.ID

	c.Emit(event.NewDomain(event.NameOppgaveOpprettet, map[string]any{
		"oppgaveId": o.ID.String(),
		"status":    o.Status,
	}))
	s.logger.Info("Created oppgave",
		zap.String("oppgave_id", o.ID.String()),
		zap.String("vedtaksperiode_id", s.caseID.String()))
	return command.Complete, nil
}

func (s *opprettOppgave) Undo(ctx context.Context, _ *command.Context) {
	if s.created == nil {
		return
	}
	if err := s.oppgaver.Delete(ctx, *s.created); err != nil {
		s.logger.Error("Failed to delete oppgave during undo",
			zap.String("oppgave_id", s.created.String()), zap.Error(err))
		return
	}
	s.created = nil
}
