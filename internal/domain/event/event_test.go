package event

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestKind_IsValid(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		want bool
	}{
		{"godkjenningsbehov", KindGodkjenningsbehov, true},
		{"saksbehandler løsning", KindSaksbehandlerLøsning, true},
		{"vedtaksperiode forkastet", KindVedtaksperiodeForkastet, true},
		{"unknown", Kind("utbetaling_endret"), false},
		{"empty", Kind(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.IsValid())
		})
	}
}

func TestHendelse_Key(t *testing.T) {
	t.Run("uses case id when present", func(t *testing.T) {
		caseID := uuid.New()
		h := NewHendelse(uuid.New(), KindGodkjenningsbehov, &caseID, "12020052345", []byte(`{}`))

		assert.Equal(t, caseID.String(), h.Key())
		assert.Equal(t, caseID.String(), h.CaseIDString())
	})

	t.Run("falls back to person id", func(t *testing.T) {
		h := NewHendelse(uuid.New(), KindGodkjenningsbehov, nil, "12020052345", []byte(`{}`))

		assert.Equal(t, "12020052345", h.Key())
		assert.Empty(t, h.CaseIDString())
	})

	t.Run("sets received timestamp", func(t *testing.T) {
		h := NewHendelse(uuid.New(), KindVedtaksperiodeForkastet, nil, "1", nil)
		assert.False(t, h.ReceivedAt.IsZero())
	})
}

func TestDomain_With(t *testing.T) {
	original := NewDomain(NameOppgaveOpprettet, map[string]any{"oppgaveId": "a"})
	updated := original.With("status", "AvventerSaksbehandler")

	assert.Len(t, original.Fields, 1, "original must not be mutated")
	assert.Equal(t, "AvventerSaksbehandler", updated.Fields["status"])
	assert.Equal(t, "a", updated.Fields["oppgaveId"])
	assert.Equal(t, NameOppgaveOpprettet, updated.Name)
}

func TestNewDomain_NilFields(t *testing.T) {
	d := NewDomain(NameVedtaksperiodeAvvist, nil)
	assert.NotNil(t, d.Fields)
}

func TestAnswer_Kinds(t *testing.T) {
	a := &Answer{Solutions: map[NeedKind]json.RawMessage{
		NeedEgenAnsatt:   json.RawMessage(`false`),
		NeedÅpneOppgaver: json.RawMessage(`{"antall":0}`),
	}}

	assert.ElementsMatch(t, []NeedKind{NeedEgenAnsatt, NeedÅpneOppgaver}, a.Kinds())
}
