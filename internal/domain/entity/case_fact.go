package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sykepenger/spesialist/internal/domain/event"
)

// CaseFact is a stored answer that later steps and chains may reuse.
// CaseID is nil for person-level facts such as personinfo.
type CaseFact struct {
	PersonID string          `json:"person_id"`
	CaseID   *uuid.UUID      `json:"case_id,omitempty"`
	Kind     event.NeedKind  `json:"kind"`
	Data     json.RawMessage `json:"data"`
	StoredAt time.Time       `json:"stored_at"`
}

// EgenAnsattFact is the decoded EgenAnsatt answer
type EgenAnsattFact bool

// ÅpneOppgaverFact is the decoded ÅpneOppgaver answer
type ÅpneOppgaverFact struct {
	Antall        *int `json:"antall"`
	OppslagFeilet bool `json:"oppslagFeilet"`
}

// RisikovurderingFact is the decoded Risikovurdering answer
type RisikovurderingFact struct {
	KanGodkjennesAutomatisk bool     `json:"kanGodkjennesAutomatisk"`
	Funn                    []string `json:"funn"`
}

// PersoninfoFact is the decoded HentPersoninfoV2 answer
type PersoninfoFact struct {
	Fornavn            string `json:"fornavn"`
	Mellomnavn         string `json:"mellomnavn,omitempty"`
	Etternavn          string `json:"etternavn"`
	Fødselsdato        string `json:"fødselsdato"`
	Kjønn              string `json:"kjønn"`
	Adressebeskyttelse string `json:"adressebeskyttelse"`
}
