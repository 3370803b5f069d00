// Package chain builds the command chains for each kind of case event
package chain

import (
	"context"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sykepenger/spesialist/internal/application/mediator"
	"github.com/sykepenger/spesialist/internal/application/port"
	"github.com/sykepenger/spesialist/internal/domain/event"
)

// ErrMissingCase is returned when a case-bound chain gets a hendelse without vedtaksperiodeId
var ErrMissingCase = goerr.New("hendelse has no vedtaksperiodeId")

// Aborter aborts the non-terminal contexts of a case
type Aborter interface {
	AbortActive(ctx context.Context, caseID uuid.UUID, except uuid.UUID) ([]uuid.UUID, error)
}

// Registrar accepts chain factories per hendelse kind
type Registrar interface {
	Register(kind event.Kind, factory mediator.Factory)
}

// Deps holds what the steps need
type Deps struct {
	Oppgaver port.OppgaveRepository
	Facts    port.CaseFactRepository
	Aborter  Aborter

	Logger *zap.Logger
	// SensitiveLogger receives entries that carry fødselsnummer
	SensitiveLogger *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.SensitiveLogger == nil {
		d.SensitiveLogger = zap.NewNop()
	}
	return d
}

// Register adds every chain to r
func Register(r Registrar, deps Deps) {
	deps = deps.withDefaults()
	r.Register(event.KindGodkjenningsbehov, Godkjenningsbehov(deps))
	r.Register(event.KindSaksbehandlerLøsning, SaksbehandlerLøsning(deps))
	r.Register(event.KindVedtaksperiodeForkastet, VedtaksperiodeForkastet(deps))
}

func requireCase(h *event.Hendelse) (uuid.UUID, error) {
	if h.CaseID == nil {
		return uuid.Nil, goerr.Wrap(ErrMissingCase, "cannot build chain",
			goerr.V("hendelse_id", h.ID),
			goerr.V("kind", h.Kind))
	}
	return *h.CaseID, nil
}

func payload(h *event.Hendelse) gjson.Result {
	return gjson.ParseBytes(h.Payload)
}
