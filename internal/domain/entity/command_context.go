package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/sykepenger/spesialist/internal/domain/event"
	"github.com/sykepenger/spesialist/internal/domain/workflow"
)

// ContextRecord is one row of the append-only command_context table.
// The latest row for a context is its current state; earlier rows are its history.
type ContextRecord struct {
	Seq        int64            `json:"seq"`
	ContextID  uuid.UUID        `json:"context_id"`
	HendelseID uuid.UUID        `json:"hendelse_id"`
	CaseID     *uuid.UUID       `json:"case_id,omitempty"`
	Kind       event.Kind       `json:"kind"`
	State      workflow.State   `json:"state"`
	Path       []int            `json:"path"`
	Needs      []event.NeedKind `json:"needs"`
	CreatedAt  time.Time        `json:"created_at"`
}

// NewContextRecord starts a fresh attempt for a hendelse
func NewContextRecord(h *event.Hendelse) *ContextRecord {
	return &ContextRecord{
		ContextID:  uuid.New(),
		HendelseID: h.ID,
		CaseID:     h.CaseID,
		Kind:       h.Kind,
		State:      workflow.StateNew,
		CreatedAt:  time.Now(),
	}
}

// Next returns the row recording a transition of the same context
func (r *ContextRecord) Next(state workflow.State, path []int, needs []event.NeedKind) *ContextRecord {
	return &ContextRecord{
		ContextID:  r.ContextID,
		HendelseID: r.HendelseID,
		CaseID:     r.CaseID,
		Kind:       r.Kind,
		State:      state,
		Path:       append([]int(nil), path...),
		Needs:      append([]event.NeedKind(nil), needs...),
		CreatedAt:  time.Now(),
	}
}

// Awaits reports whether kind was requested in the last pass
func (r *ContextRecord) Awaits(kind event.NeedKind) bool {
	for _, n := range r.Needs {
		if n == kind {
			return true
		}
	}
	return false
}
