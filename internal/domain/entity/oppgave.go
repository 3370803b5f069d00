package entity

import (
	"time"

	"github.com/google/uuid"
)

// Oppgave is a task for a human case worker (saksbehandler)
type Oppgave struct {
	ID         uuid.UUID `json:"id"`
	CaseID     uuid.UUID `json:"case_id"`
	HendelseID uuid.UUID `json:"hendelse_id"`
	ContextID  uuid.UUID `json:"context_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsOpen reports whether the oppgave still awaits a decision
func (o *Oppgave) IsOpen() bool {
	return o.Status == OppgaveAvventerSaksbehandler
}
