package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Hendelse is an immutable record of one inbound trigger
type Hendelse struct {
	ID         uuid.UUID       `json:"id"`
	Kind       Kind            `json:"kind"`
	CaseID     *uuid.UUID      `json:"case_id,omitempty"`
	PersonID   string          `json:"person_id"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

// NewHendelse creates a case event received now
func NewHendelse(id uuid.UUID, kind Kind, caseID *uuid.UUID, personID string, payload []byte) *Hendelse {
	return &Hendelse{
		ID:         id,
		Kind:       kind,
		CaseID:     caseID,
		PersonID:   personID,
		Payload:    json.RawMessage(payload),
		ReceivedAt: time.Now(),
	}
}

// Key returns the serialization key: the case ID when present, else the person ID
func (h *Hendelse) Key() string {
	if h.CaseID != nil {
		return h.CaseID.String()
	}
	return h.PersonID
}

// CaseIDString returns the case ID as a string, or "" for case-independent events
func (h *Hendelse) CaseIDString() string {
	if h.CaseID == nil {
		return ""
	}
	return h.CaseID.String()
}

// Domain is an outbound domain event accumulated by a command chain
type Domain struct {
	Name   string
	Fields map[string]any
}

// NewDomain creates a domain event with the given fields
func NewDomain(name string, fields map[string]any) Domain {
	if fields == nil {
		fields = map[string]any{}
	}
	return Domain{Name: name, Fields: fields}
}

// With returns a copy of the event with an added field
func (d Domain) With(key string, value any) Domain {
	fields := make(map[string]any, len(d.Fields)+1)
	for k, v := range d.Fields {
		fields[k] = v
	}
	fields[key] = value
	return Domain{Name: d.Name, Fields: fields}
}

// Answer carries solutions (løsninger) for a suspended context
type Answer struct {
	ID         uuid.UUID
	ContextID  uuid.UUID
	HendelseID uuid.UUID
	Solutions  map[NeedKind]json.RawMessage
	ReceivedAt time.Time
}

// Kinds returns the need kinds answered
func (a *Answer) Kinds() []NeedKind {
	kinds := make([]NeedKind, 0, len(a.Solutions))
	for k := range a.Solutions {
		kinds = append(kinds, k)
	}
	return kinds
}
