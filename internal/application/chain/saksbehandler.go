package chain

import (
	"context"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"

	"github.com/sykepenger/spesialist/internal/application/mediator"
	"github.com/sykepenger/spesialist/internal/application/port"
	"github.com/sykepenger/spesialist/internal/domain/command"
	"github.com/sykepenger/spesialist/internal/domain/entity"
	"github.com/sykepenger/spesialist/internal/domain/event"
)

// vedtak is the case worker decision carried by saksbehandler_løsning
type vedtak struct {
	OppgaveID          uuid.UUID
	Godkjent           bool
	Saksbehandlerident string
	Godkjenttidspunkt  string
	Begrunnelser       []string
	Kommentar          string
}

func parseVedtak(h *event.Hendelse) (vedtak, error) {
	msg := payload(h)
	oppgaveID, err := uuid.Parse(msg.Get("oppgaveId").String())
	if err != nil {
		return vedtak{}, goerr.Wrap(err, "invalid oppgaveId", goerr.V("hendelse_id", h.ID))
	}
	v := vedtak{
		OppgaveID:          oppgaveID,
		Godkjent:           msg.Get("godkjent").Bool(),
		Saksbehandlerident: msg.Get("saksbehandlerident").String(),
		Godkjenttidspunkt:  msg.Get("godkjenttidspunkt").String(),
		Kommentar:          msg.Get("kommentar").String(),
	}
	for _, b := range msg.Get("begrunnelser").Array() {
		v.Begrunnelser = append(v.Begrunnelser, b.String())
	}
	return v, nil
}

// SaksbehandlerLøsning returns the factory for the case worker decision chain
func SaksbehandlerLøsning(deps Deps) mediator.Factory {
	deps = deps.withDefaults()
	return func(h *event.Hendelse) (command.Command, error) {
		caseID, err := requireCase(h)
		if err != nil {
			return nil, err
		}
		v, err := parseVedtak(h)
		if err != nil {
			return nil, err
		}

		return command.NewMacro("saksbehandler_løsning",
			&ferdigstillOppgave{oppgaver: deps.Oppgaver, caseID: caseID, vedtak: v, logger: deps.Logger},
			&publiserVedtak{vedtak: v},
		), nil
	}
}

// ferdigstillOppgave closes the oppgave the decision was made on
type ferdigstillOppgave struct {
	command.Base
	oppgaver port.OppgaveRepository
	caseID   uuid.UUID
	vedtak   vedtak
	logger   *zap.Logger

	done bool
}

func (s *ferdigstillOppgave) Name() string { return "ferdigstill_oppgave" }

func (s *ferdigstillOppgave) Execute(ctx context.Context, c *command.Context) (command.Result, error) {
	logger := s.logger.With(zap.String("oppgave_id", s.vedtak.OppgaveID.String()))

	o, err := s.oppgaver.GetByID(ctx, s.vedtak.OppgaveID)
	if err != nil {
		return command.Incomplete, err
	}
	switch {
	case o == nil:
		logger.Info("Ignoring decision for unknown oppgave")
		c.Finish()
		return command.Complete, nil
	case o.CaseID != s.caseID:
		logger.Info("Ignoring decision, oppgave belongs to another vedtaksperiode",
			zap.String("vedtaksperiode_id", s.caseID.String()))
		c.Finish()
		return command.Complete, nil
	case !o.IsOpen():
		logger.Info("Ignoring decision, oppgave is not awaiting a case worker", zap.String("status", o.Status))
		c.Finish()
		return command.Complete, nil
	}

	if err := s.oppgaver.UpdateStatus(ctx, o.ID, entity.OppgaveFerdigstilt); err != nil {
		return command.Incomplete, err
	}
	s.done = true

	c.Emit(event.NewDomain(event.NameOppgaveFerdigstilt, map[string]any{
		"oppgaveId":          o.ID.String(),
		"status":             entity.OppgaveFerdigstilt,
		"saksbehandlerident": s.vedtak.Saksbehandlerident,
	}))
	logger.Info("Oppgave ferdigstilt")
	return command.Complete, nil
}

func (s *ferdigstillOppgave) Undo(ctx context.Context, _ *command.Context) {
	if !s.done {
		return
	}
	if err := s.oppgaver.UpdateStatus(ctx, s.vedtak.OppgaveID, entity.OppgaveAvventerSaksbehandler); err != nil {
		s.logger.Error("Failed to reopen oppgave during undo",
			zap.String("oppgave_id", s.vedtak.OppgaveID.String()), zap.Error(err))
		return
	}
	s.done = false
}

// publiserVedtak emits the decision
type publiserVedtak struct {
	command.Base
	vedtak vedtak
}

func (s *publiserVedtak) Name() string { return "publiser_vedtak" }

func (s *publiserVedtak) Execute(_ context.Context, c *command.Context) (command.Result, error) {
	name := event.NameVedtaksperiodeAvvist
	fields := map[string]any{
		"oppgaveId":            s.vedtak.OppgaveID.String(),
		"saksbehandlerident":   s.vedtak.Saksbehandlerident,
		"godkjenttidspunkt":    s.vedtak.Godkjenttidspunkt,
		"automatiskBehandling": false,
	}
	if s.vedtak.Godkjent {
		name = event.NameVedtaksperiodeGodkjent
	} else {
		fields["begrunnelser"] = s.vedtak.Begrunnelser
		fields["kommentar"] = s.vedtak.Kommentar
	}
	c.Emit(event.NewDomain(name, fields))
	return command.Complete, nil
}
