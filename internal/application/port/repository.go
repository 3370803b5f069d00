package port

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/sykepenger/spesialist/internal/domain/entity"
	"github.com/sykepenger/spesialist/internal/domain/event"
)

// HendelseRepository defines persistence operations for case events
type HendelseRepository interface {
	Save(ctx context.Context, h *event.Hendelse) error
	GetByID(ctx context.Context, id uuid.UUID) (*event.Hendelse, error)
}

// ContextRepository defines persistence operations for command contexts.
// Records are append-only: every state change adds a row.
type ContextRepository interface {
	// Append records a new state for a context
	Append(ctx context.Context, rec *entity.ContextRecord) error

	// Latest returns the current state of a context
	Latest(ctx context.Context, contextID uuid.UUID) (*entity.ContextRecord, error)

	// LatestForHendelse returns the current state of the newest context of a hendelse
	LatestForHendelse(ctx context.Context, hendelseID uuid.UUID) (*entity.ContextRecord, error)

	// FindActive returns the non-terminal context for a case and kind, if any
	FindActive(ctx context.Context, caseID uuid.UUID, kind event.Kind) (*entity.ContextRecord, error)

	// ListActiveForCase returns every non-terminal context for a case
	ListActiveForCase(ctx context.Context, caseID uuid.UUID) ([]*entity.ContextRecord, error)

	// History returns every recorded state of a context, oldest first
	History(ctx context.Context, contextID uuid.UUID) ([]*entity.ContextRecord, error)
}

// SolutionRepository stores the solution bundle of a suspended context
type SolutionRepository interface {
	Add(ctx context.Context, contextID uuid.UUID, kind event.NeedKind, raw json.RawMessage) error
	List(ctx context.Context, contextID uuid.UUID) (map[event.NeedKind]json.RawMessage, error)
	Clear(ctx context.Context, contextID uuid.UUID) error
}

// CaseFactRepository defines persistence operations for stored answers
type CaseFactRepository interface {
	Save(ctx context.Context, fact *entity.CaseFact) error
	Get(ctx context.Context, personID string, caseID *uuid.UUID, kind event.NeedKind) (*entity.CaseFact, error)
}

// OppgaveRepository defines persistence operations for oppgaver
type OppgaveRepository interface {
	Create(ctx context.Context, o *entity.Oppgave) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Oppgave, error)
	FindOpenByCase(ctx context.Context, caseID uuid.UUID) (*entity.Oppgave, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
