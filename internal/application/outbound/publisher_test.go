package outbound

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/sykepenger/spesialist/internal/application/port"
	"github.com/sykepenger/spesialist/internal/domain/command"
	"github.com/sykepenger/spesialist/internal/domain/event"
)

type MockBus struct {
	mock.Mock
}

func (m *MockBus) Publish(ctx context.Context, msgs ...port.OutboundMessage) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

var (
	fixedTime = time.Date(2026, 10, 1, 12, 30, 0, 0, time.UTC)
	caseID    = uuid.MustParse("4d0f2a6e-5a55-4c47-9e0b-8f1c3b7f5a10")
	contextID = uuid.MustParse("a3b1c2d4-0000-4000-8000-000000000001")
)

func newTestPublisher(bus *MockBus) *Publisher {
	return NewPublisher(bus,
		WithClock(func() time.Time { return fixedTime }),
		WithIDGenerator(func() uuid.UUID { return uuid.MustParse("11111111-1111-4111-8111-111111111111") }),
	)
}

func testHendelse() *event.Hendelse {
	id := caseID
	return event.NewHendelse(uuid.MustParse("22222222-2222-4222-8222-222222222222"),
		event.KindGodkjenningsbehov, &id, "12020052345", []byte(`{}`))
}

func captured(bus *MockBus) []port.OutboundMessage {
	return bus.Calls[0].Arguments.Get(1).([]port.OutboundMessage)
}

func TestPublish_EventsBeforeBehov(t *testing.T) {
	bus := new(MockBus)
	bus.On("Publish", mock.Anything, mock.Anything).Return(nil)
	p := newTestPublisher(bus)

	err := p.Publish(context.Background(), testHendelse(), contextID,
		[]event.Domain{
			event.NewDomain(event.NameOppgaveOpprettet, map[string]any{"oppgaveId": "o-1"}),
			event.NewDomain(event.NameVedtaksperiodeGodkjent, nil),
		},
		[]command.Need{
			{Kind: event.NeedEgenAnsatt, Params: map[string]any{"ident": "12020052345"}},
			{Kind: event.NeedPersoninfo},
		})
	require.NoError(t, err)

	msgs := captured(bus)
	require.Len(t, msgs, 4)
	assert.Equal(t, []string{event.NameOppgaveOpprettet, event.NameVedtaksperiodeGodkjent, BehovEventName, BehovEventName},
		[]string{msgs[0].Name, msgs[1].Name, msgs[2].Name, msgs[3].Name})
	for _, msg := range msgs {
		assert.Equal(t, caseID.String(), msg.Key)
	}
	bus.AssertExpectations(t)
}

func TestPublish_BehovFields(t *testing.T) {
	bus := new(MockBus)
	bus.On("Publish", mock.Anything, mock.Anything).Return(nil)
	p := newTestPublisher(bus)
	h := testHendelse()

	err := p.Publish(context.Background(), h, contextID, nil, []command.Need{
		{Kind: event.NeedEgenAnsatt, Params: map[string]any{"ident": "12020052345"}},
	})
	require.NoError(t, err)

	doc := gjson.ParseBytes(captured(bus)[0].Value)
	assert.Equal(t, "behov", doc.Get("@event_name").String())
	assert.Equal(t, `["EgenAnsatt"]`, doc.Get("@behov").Raw)
	assert.Equal(t, "11111111-1111-4111-8111-111111111111", doc.Get("@id").String())
	assert.Equal(t, "2026-10-01T12:30:00.000000", doc.Get("@opprettet").String())
	assert.Equal(t, contextID.String(), doc.Get("contextId").String())
	assert.Equal(t, h.ID.String(), doc.Get("hendelseId").String())
	assert.Equal(t, "12020052345", doc.Get("fødselsnummer").String())
	assert.Equal(t, caseID.String(), doc.Get("vedtaksperiodeId").String())
	assert.Equal(t, "12020052345", doc.Get("EgenAnsatt.ident").String())
}

func TestPublish_DomainEventFields(t *testing.T) {
	bus := new(MockBus)
	bus.On("Publish", mock.Anything, mock.Anything).Return(nil)
	p := newTestPublisher(bus)

	err := p.Publish(context.Background(), testHendelse(), contextID, []event.Domain{
		event.NewDomain(event.NameVedtaksperiodeGodkjent, map[string]any{
			"automatiskBehandling": true,
			"@event_name":          "overridden",
		}),
	}, nil)
	require.NoError(t, err)

	doc := gjson.ParseBytes(captured(bus)[0].Value)
	assert.Equal(t, event.NameVedtaksperiodeGodkjent, doc.Get("@event_name").String())
	assert.True(t, doc.Get("automatiskBehandling").Bool())
	assert.False(t, doc.Get("contextId").Exists())
	assert.Equal(t, caseID.String(), doc.Get("vedtaksperiodeId").String())
}

func TestPublish_OneBehovPerKind(t *testing.T) {
	bus := new(MockBus)
	bus.On("Publish", mock.Anything, mock.Anything).Return(nil)
	p := newTestPublisher(bus)

	err := p.Publish(context.Background(), testHendelse(), contextID, nil, []command.Need{
		{Kind: event.NeedÅpneOppgaver},
		{Kind: event.NeedÅpneOppgaver},
	})
	require.NoError(t, err)

	msgs := captured(bus)
	require.Len(t, msgs, 1)
	assert.Equal(t, `["ÅpneOppgaver"]`, gjson.GetBytes(msgs[0].Value, "@behov").Raw)
}

func TestPublish_KeyFallsBackToPerson(t *testing.T) {
	bus := new(MockBus)
	bus.On("Publish", mock.Anything, mock.Anything).Return(nil)
	p := newTestPublisher(bus)
	h := event.NewHendelse(uuid.New(), event.KindGodkjenningsbehov, nil, "12020052345", nil)

	require.NoError(t, p.Publish(context.Background(), h, contextID, []event.Domain{event.NewDomain("x", nil)}, nil))

	msg := captured(bus)[0]
	assert.Equal(t, "12020052345", msg.Key)
	assert.False(t, gjson.GetBytes(msg.Value, "vedtaksperiodeId").Exists())
}

func TestPublish_NothingToSend(t *testing.T) {
	bus := new(MockBus)
	p := newTestPublisher(bus)

	require.NoError(t, p.Publish(context.Background(), testHendelse(), contextID, nil, nil))
	bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestPublish_BusError(t *testing.T) {
	bus := new(MockBus)
	down := errors.New("broker unavailable")
	bus.On("Publish", mock.Anything, mock.Anything).Return(down)
	p := newTestPublisher(bus)

	err := p.Publish(context.Background(), testHendelse(), contextID, []event.Domain{event.NewDomain("x", nil)}, nil)

	assert.ErrorIs(t, err, down)
}

func TestEscapeKey(t *testing.T) {
	assert.Equal(t, `\@event_name`, escapeKey("@event_name"))
	assert.Equal(t, "fødselsnummer", escapeKey("fødselsnummer"))
	assert.Equal(t, `a\.b`, escapeKey("a.b"))
}
