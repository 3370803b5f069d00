// Package outbound turns what a command chain produced into bus messages
package outbound

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/sykepenger/spesialist/internal/application/mediator"
	"github.com/sykepenger/spesialist/internal/application/port"
	"github.com/sykepenger/spesialist/internal/domain/command"
	"github.com/sykepenger/spesialist/internal/domain/event"
)

// BehovEventName is the @event_name of information requests
const BehovEventName = "behov"

const timestampLayout = "2006-01-02T15:04:05.000000"

// Publisher builds behov and domain event messages and hands them to the bus
type Publisher struct {
	bus       port.MessagePublisher
	sensitive *zap.Logger
	logger    *zap.Logger
	now       func() time.Time
	newID     func() uuid.UUID
}

var _ mediator.Publisher = (*Publisher)(nil)

// Option configures the publisher
type Option func(*Publisher)

// WithLogger sets the ordinary logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithSensitiveLogger sets the logger that receives full message bodies
func WithSensitiveLogger(logger *zap.Logger) Option {
	return func(p *Publisher) {
		p.sensitive = logger
	}
}

// WithClock overrides the @opprettet clock
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

// WithIDGenerator overrides the @id generator
func WithIDGenerator(gen func() uuid.UUID) Option {
	return func(p *Publisher) {
		p.newID = gen
	}
}

// NewPublisher creates a publisher writing to bus
func NewPublisher(bus port.MessagePublisher, opts ...Option) *Publisher {
	p := &Publisher{
		bus:       bus,
		sensitive: zap.NewNop(),
		logger:    zap.NewNop(),
		now:       time.Now,
		newID:     uuid.New,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends the domain events in order, then one behov per request kind
func (p *Publisher) Publish(ctx context.Context, h *event.Hendelse, contextID uuid.UUID, events []event.Domain, needs []command.Need) error {
	if len(events) == 0 && len(needs) == 0 {
		return nil
	}

	msgs := make([]port.OutboundMessage, 0, len(events)+len(needs))
	for _, evt := range events {
		value, err := p.domainMessage(h, evt)
		if err != nil {
			return err
		}
		msgs = append(msgs, port.OutboundMessage{Key: h.Key(), Value: value, Name: evt.Name})
	}

	seen := make(map[event.NeedKind]bool, len(needs))
	for _, need := range needs {
		if seen[need.Kind] {
			continue
		}
		seen[need.Kind] = true

		value, err := p.behovMessage(h, contextID, need)
		if err != nil {
			return err
		}
		msgs = append(msgs, port.OutboundMessage{Key: h.Key(), Value: value, Name: BehovEventName})
	}

	for _, msg := range msgs {
		p.sensitive.Info("Publishing message",
			zap.String("key", msg.Key),
			zap.String("event_name", msg.Name),
			zap.ByteString("message", msg.Value))
	}

	if err := p.bus.Publish(ctx, msgs...); err != nil {
		return goerr.Wrap(err, "failed to publish messages",
			goerr.V("hendelse_id", h.ID),
			goerr.V("context_id", contextID),
			goerr.V("count", len(msgs)))
	}

	p.logger.Info("Published messages",
		zap.String("hendelse_id", h.ID.String()),
		zap.String("context_id", contextID.String()),
		zap.Int("events", len(events)),
		zap.Int("behov", len(seen)))
	return nil
}

func (p *Publisher) behovMessage(h *event.Hendelse, contextID uuid.UUID, need command.Need) ([]byte, error) {
	params := need.Params
	if params == nil {
		params = map[string]any{}
	}

	b := newBuilder()
	b.set("@event_name", BehovEventName)
	b.set("@behov", []string{need.Kind.String()})
	p.envelope(b, h)
	b.set("contextId", contextID.String())
	b.set(need.Kind.String(), params)

	if b.err != nil {
		return nil, goerr.Wrap(b.err, "failed to build behov", goerr.V("kind", need.Kind))
	}
	return b.doc, nil
}

func (p *Publisher) domainMessage(h *event.Hendelse, evt event.Domain) ([]byte, error) {
	b := newBuilder()
	for k, v := range evt.Fields {
		b.set(k, v)
	}
	// envelope fields win over anything the step set
	b.set("@event_name", evt.Name)
	p.envelope(b, h)

	if b.err != nil {
		return nil, goerr.Wrap(b.err, "failed to build domain event", goerr.V("name", evt.Name))
	}
	return b.doc, nil
}

func (p *Publisher) envelope(b *builder, h *event.Hendelse) {
	b.set("@id", p.newID().String())
	b.set("@opprettet", p.now().Format(timestampLayout))
	b.set("hendelseId", h.ID.String())
	b.set("fødselsnummer", h.PersonID)
	if h.CaseID != nil {
		b.set("vedtaksperiodeId", h.CaseID.String())
	}
}

// builder accumulates sjson writes and keeps the first error
type builder struct {
	doc []byte
	err error
}

func newBuilder() *builder {
	return &builder{doc: []byte(`{}`)}
}

func (b *builder) set(key string, value any) {
	if b.err != nil {
		return
	}
	b.doc, b.err = sjson.SetBytes(b.doc, escapeKey(key), value)
}

// escapeKey makes a top-level key literal. sjson treats @ and the wildcard
// characters as path syntax.
func escapeKey(key string) string {
	var sb strings.Builder
	for _, r := range key {
		switch r {
		case '@', '.', '*', '?', '|', '#', '\\', ':':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
