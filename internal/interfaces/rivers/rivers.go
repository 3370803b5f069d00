// Package rivers declares the bus messages the service listens to and
// translates each into a case event or an answer for the mediator.
package rivers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sykepenger/spesialist/internal/application/mediator"
	"github.com/sykepenger/spesialist/internal/application/router"
	"github.com/sykepenger/spesialist/internal/domain/entity"
	"github.com/sykepenger/spesialist/internal/domain/event"
	"github.com/sykepenger/spesialist/pkg/utils"
)

// Mediator receives translated messages
type Mediator interface {
	OnEvent(ctx context.Context, h *event.Hendelse) (*mediator.Outcome, error)
	OnAnswer(ctx context.Context, a *event.Answer) (*mediator.Outcome, error)
}

// Register adds every river to r. Answers are registered first so that a
// behov carrying @løsning is never taken for a new request.
func Register(r router.Router, m Mediator, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rv := &rivers{mediator: m, logger: logger}

	r.RegisterNamed("løsning", LøsningShape(), rv.onAnswer)
	r.RegisterNamed("godkjenningsbehov", GodkjenningsbehovShape(), rv.onEvent(event.KindGodkjenningsbehov))
	r.RegisterNamed("saksbehandler_løsning", SaksbehandlerLøsningShape(), rv.onEvent(event.KindSaksbehandlerLøsning))
	r.RegisterNamed("vedtaksperiode_forkastet", VedtaksperiodeForkastetShape(), rv.onEvent(event.KindVedtaksperiodeForkastet))
}

func isOrgNumber(v gjson.Result) bool {
	return v.Type == gjson.String && utils.ValidateOrgNumber(v.Str) == nil
}

// GodkjenningsbehovShape matches approval requests
func GodkjenningsbehovShape() *router.Shape {
	return router.NewShape("godkjenningsbehov").
		DemandValue("@event_name", "behov").
		DemandAll("@behov", "Godkjenning").
		Reject("@løsning").
		RequireUUID("@id", "vedtaksperiodeId", "utbetalingId").
		Require("fødselsnummer", router.IsPersonID, "a fødselsnummer").
		Require("organisasjonsnummer", isOrgNumber, "an organisasjonsnummer").
		Require("@opprettet", router.IsTimestamp, "a timestamp").
		Require("Godkjenning.periodetype", router.IsOneOf(
			entity.PeriodetypeFørstegangsbehandling,
			entity.PeriodetypeForlengelse,
			entity.PeriodetypeInfotrygdforlengelse,
			entity.PeriodetypeOvergangFraIT,
		), "a periodetype")
}

// SaksbehandlerLøsningShape matches case worker decisions
func SaksbehandlerLøsningShape() *router.Shape {
	return router.NewShape("saksbehandler_løsning").
		DemandValue("@event_name", "saksbehandler_løsning").
		RequireUUID("@id", "oppgaveId", "vedtaksperiodeId").
		Require("fødselsnummer", router.IsPersonID, "a fødselsnummer").
		Require("godkjent", router.IsBool, "a boolean").
		RequireKey("saksbehandlerident").
		Require("godkjenttidspunkt", router.IsTimestamp, "a timestamp")
}

// VedtaksperiodeForkastetShape matches withdrawn periods
func VedtaksperiodeForkastetShape() *router.Shape {
	return router.NewShape("vedtaksperiode_forkastet").
		DemandValue("@event_name", "vedtaksperiode_forkastet").
		RequireUUID("@id", "vedtaksperiodeId").
		Require("fødselsnummer", router.IsPersonID, "a fødselsnummer")
}

// LøsningShape matches final answers to behov sent by a command context
func LøsningShape() *router.Shape {
	return router.NewShape("løsning").
		DemandValue("@event_name", "behov").
		DemandValue("@final", true).
		RequireUUID("@id", "contextId", "hendelseId").
		Require("@løsning", router.IsObject, "an object")
}

type rivers struct {
	mediator Mediator
	logger   *zap.Logger
}

func (rv *rivers) onEvent(kind event.Kind) router.Handler {
	return func(ctx context.Context, msg router.Message) error {
		h, err := ToHendelse(kind, msg)
		if err != nil {
			return err
		}
		_, err = rv.mediator.OnEvent(ctx, h)
		return err
	}
}

func (rv *rivers) onAnswer(ctx context.Context, msg router.Message) error {
	a, err := ToAnswer(msg)
	if err != nil {
		return err
	}
	if len(a.Solutions) == 0 {
		rv.logger.Info("Ignoring answer without solutions", zap.String("answer_id", a.ID.String()))
		return nil
	}
	_, err = rv.mediator.OnAnswer(ctx, a)
	return err
}

// ToHendelse builds the case event for a routed message
func ToHendelse(kind event.Kind, msg router.Message) (*event.Hendelse, error) {
	id, err := uuid.Parse(msg.Get("@id").String())
	if err != nil {
		return nil, goerr.Wrap(err, "invalid @id", goerr.V("kind", kind))
	}

	var caseID *uuid.UUID
	if v := msg.Get("vedtaksperiodeId"); v.Exists() {
		parsed, err := uuid.Parse(v.String())
		if err != nil {
			return nil, goerr.Wrap(err, "invalid vedtaksperiodeId", goerr.V("hendelse_id", id))
		}
		caseID = &parsed
	}

	h := event.NewHendelse(id, kind, caseID, msg.Get("fødselsnummer").String(), msg.Raw)
	if t, ok := router.ParseTimestamp(msg.Get("@opprettet").String()); ok {
		h.ReceivedAt = t
	}
	return h, nil
}

// ToAnswer builds the answer for a routed løsning. Every key under
// @løsning becomes one solution.
func ToAnswer(msg router.Message) (*event.Answer, error) {
	ids := make([]uuid.UUID, 3)
	for i, path := range []string{"@id", "contextId", "hendelseId"} {
		id, err := uuid.Parse(msg.Get(path).String())
		if err != nil {
			return nil, goerr.Wrap(err, "invalid answer id", goerr.V("path", path))
		}
		ids[i] = id
	}

	a := &event.Answer{
		ID:         ids[0],
		ContextID:  ids[1],
		HendelseID: ids[2],
		Solutions:  make(map[event.NeedKind]json.RawMessage),
		ReceivedAt: time.Now(),
	}
	msg.Get("@løsning").ForEach(func(key, value gjson.Result) bool {
		a.Solutions[event.NeedKind(key.String())] = json.RawMessage(value.Raw)
		return true
	})
	return a, nil
}
