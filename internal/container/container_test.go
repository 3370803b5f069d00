package container

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

type chanReader struct {
	ch chan kafkago.Message

	mu        sync.Mutex
	committed int
}

func newChanReader() *chanReader {
	return &chanReader{ch: make(chan kafkago.Message, 16)}
}

func (r *chanReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	select {
	case msg := <-r.ch:
		return msg, nil
	case <-ctx.Done():
		return kafkago.Message{}, ctx.Err()
	}
}

func (r *chanReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed += len(msgs)
	return nil
}

func (r *chanReader) Close() error { return nil }

func (r *chanReader) push(value string) {
	r.ch <- kafkago.Message{Topic: "tbd.rapid.v1", Partition: 0, Value: []byte(value)}
}

type recordingWriter struct {
	mu   sync.Mutex
	msgs []kafkago.Message
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func (w *recordingWriter) named(name string) []gjson.Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []gjson.Result
	for _, m := range w.msgs {
		doc := gjson.ParseBytes(m.Value)
		if doc.Get(`\@event_name`).String() == name {
			out = append(out, doc)
		}
	}
	return out
}

const (
	fnr      = "12020052345"
	orgnr    = "987654321"
	caseUUID = "4d0f2a6e-5a55-4c47-9e0b-8f1c3b7f5a10"
)

func godkjenningsbehov(id uuid.UUID) string {
	return `{
		"@event_name": "behov",
		"@behov": ["Godkjenning"],
		"@id": "` + id.String() + `",
		"@opprettet": "2026-10-01T12:00:00.123456",
		"fødselsnummer": "` + fnr + `",
		"vedtaksperiodeId": "` + caseUUID + `",
		"utbetalingId": "9a1f7d3e-2b4c-4d5e-8f60-718293a4b5c6",
		"organisasjonsnummer": "` + orgnr + `",
		"Godkjenning": {"periodetype": "FØRSTEGANGSBEHANDLING"}
	}`
}

func startContainer(t *testing.T) (*Container, *chanReader, *recordingWriter) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "spesialist.db")
	cfg.Subscriber.RetryBackoff = 0
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0

	reader := newChanReader()
	writer := &recordingWriter{}
	c, err := NewContainer(cfg, zap.NewNop(), WithKafkaReader(reader), WithKafkaWriter(writer))
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	return c, reader, writer
}

func TestContainer_GodkjenningsbehovRoundTrip(t *testing.T) {
	c, reader, writer := startContainer(t)
	defer func() { require.NoError(t, c.Close()) }()

	reader.push(godkjenningsbehov(uuid.New()))

	require.Eventually(t, func() bool { return len(writer.named("behov")) == 3 }, 5*time.Second, 10*time.Millisecond)
	behov := writer.named("behov")
	var kinds []string
	for _, b := range behov {
		kinds = append(kinds, b.Get(`\@behov.0`).String())
		assert.Equal(t, fnr, b.Get("fødselsnummer").String())
	}
	assert.ElementsMatch(t, []string{"HentPersoninfoV2", "EgenAnsatt", "ÅpneOppgaver"}, kinds)

	contextID := behov[0].Get("contextId").String()
	hendelseID := behov[0].Get("hendelseId").String()
	reader.push(`{
		"@event_name": "behov",
		"@behov": ["HentPersoninfoV2", "EgenAnsatt", "ÅpneOppgaver"],
		"@final": true,
		"@id": "` + uuid.NewString() + `",
		"contextId": "` + contextID + `",
		"hendelseId": "` + hendelseID + `",
		"@løsning": {
			"HentPersoninfoV2": {"fornavn": "Kari", "etternavn": "Nordmann", "fødselsdato": "2000-02-12", "kjønn": "Kvinne", "adressebeskyttelse": "Ugradert"},
			"EgenAnsatt": false,
			"ÅpneOppgaver": {"antall": 0, "oppslagFeilet": false}
		}
	}`)

	require.Eventually(t, func() bool { return len(writer.named("oppgave_opprettet")) == 1 }, 5*time.Second, 10*time.Millisecond)
	opprettet := writer.named("oppgave_opprettet")[0]
	assert.Equal(t, caseUUID, opprettet.Get("vedtaksperiodeId").String())

	status := c.Health(context.Background())
	assert.True(t, status.Overall)
	assert.True(t, c.Ready())
}

func TestContainer_DecodeErrorIsCommitted(t *testing.T) {
	c, reader, writer := startContainer(t)
	defer func() { require.NoError(t, c.Close()) }()

	// demanded by the godkjenningsbehov shape but without fødselsnummer
	reader.push(`{"@event_name":"behov","@behov":["Godkjenning"],"@id":"` + uuid.NewString() + `"}`)

	require.Eventually(t, func() bool {
		reader.mu.Lock()
		defer reader.mu.Unlock()
		return reader.committed == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, writer.named("behov"))
}

func TestContainer_HealthEndpoints(t *testing.T) {
	c, _, _ := startContainer(t)
	defer func() { require.NoError(t, c.Close()) }()

	resp, err := http.Get("http://" + c.HTTPServer().ListenAddr() + "/isready")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "READY", string(body))
}

func TestContainer_Lifecycle(t *testing.T) {
	c, _, _ := startContainer(t)

	assert.Error(t, c.Start(context.Background()))
	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close())
	assert.Error(t, c.Start(context.Background()))

	status := c.Health(context.Background())
	assert.False(t, status.Overall)
	assert.Equal(t, "not initialized", status.Components["database"].Message)
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(DefaultConfig(), nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Database.Path = ""
	_, err = NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestConvertToZapFields(t *testing.T) {
	fields := convertToZapFields("route", "godkjenningsbehov", 42, "ignored", "error", io.EOF, "dangling")

	require.Len(t, fields, 2)
	assert.Equal(t, "route", fields[0].Key)
	assert.Equal(t, "error", fields[1].Key)
}
