package mediator

import (
	"github.com/google/uuid"

	"github.com/sykepenger/spesialist/internal/domain/command"
	"github.com/sykepenger/spesialist/internal/domain/event"
	"github.com/sykepenger/spesialist/internal/domain/workflow"
)

// Outcome describes what one OnEvent or OnAnswer call did
type Outcome struct {
	ContextID uuid.UUID
	State     workflow.State

	// Duplicate is set when the hendelse was already being handled or done
	Duplicate bool
	// Stale is set when an answer did not fit a suspended context
	Stale bool
	// Waiting lists request kinds still unanswered after a partial answer
	Waiting []event.NeedKind

	// Events and Needs are what the pass produced and handed to the publisher
	Events []event.Domain
	Needs  []command.Need
}

// Ran reports whether a pass was executed
func (o *Outcome) Ran() bool {
	return !o.Duplicate && !o.Stale && len(o.Waiting) == 0
}
