package mediator

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/sykepenger/spesialist/internal/domain/command"
	"github.com/sykepenger/spesialist/internal/domain/entity"
	"github.com/sykepenger/spesialist/internal/domain/event"
)

type fakeHendelseRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*event.Hendelse
}

func newFakeHendelseRepo() *fakeHendelseRepo {
	return &fakeHendelseRepo{items: make(map[uuid.UUID]*event.Hendelse)}
}

func (f *fakeHendelseRepo) Save(ctx context.Context, h *event.Hendelse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[h.ID]; !ok {
		f.items[h.ID] = h
	}
	return nil
}

func (f *fakeHendelseRepo) GetByID(ctx context.Context, id uuid.UUID) (*event.Hendelse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id], nil
}

// fakeContextRepo keeps the append-only log in memory
type fakeContextRepo struct {
	mu   sync.Mutex
	rows []*entity.ContextRecord
}

func (f *fakeContextRepo) Append(ctx context.Context, rec *entity.ContextRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.Seq = int64(len(f.rows) + 1)
	f.rows = append(f.rows, rec)
	return nil
}

func (f *fakeContextRepo) latestWhere(match func(*entity.ContextRecord) bool) *entity.ContextRecord {
	for i := len(f.rows) - 1; i >= 0; i-- {
		if match(f.rows[i]) {
			return f.rows[i]
		}
	}
	return nil
}

func (f *fakeContextRepo) Latest(ctx context.Context, contextID uuid.UUID) (*entity.ContextRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latestWhere(func(r *entity.ContextRecord) bool { return r.ContextID == contextID }), nil
}

func (f *fakeContextRepo) LatestForHendelse(ctx context.Context, hendelseID uuid.UUID) (*entity.ContextRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latestWhere(func(r *entity.ContextRecord) bool { return r.HendelseID == hendelseID }), nil
}

func (f *fakeContextRepo) current() []*entity.ContextRecord {
	seen := make(map[uuid.UUID]bool)
	var out []*entity.ContextRecord
	for i := len(f.rows) - 1; i >= 0; i-- {
		r := f.rows[i]
		if seen[r.ContextID] {
			continue
		}
		seen[r.ContextID] = true
		out = append([]*entity.ContextRecord{r}, out...)
	}
	return out
}

func (f *fakeContextRepo) FindActive(ctx context.Context, caseID uuid.UUID, kind event.Kind) (*entity.ContextRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.current() {
		if r.CaseID != nil && *r.CaseID == caseID && r.Kind == kind && !r.State.IsTerminal() {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeContextRepo) ListActiveForCase(ctx context.Context, caseID uuid.UUID) ([]*entity.ContextRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.ContextRecord
	for _, r := range f.current() {
		if r.CaseID != nil && *r.CaseID == caseID && !r.State.IsTerminal() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeContextRepo) History(ctx context.Context, contextID uuid.UUID) ([]*entity.ContextRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.ContextRecord
	for _, r := range f.rows {
		if r.ContextID == contextID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeContextRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeSolutionRepo struct {
	mu      sync.Mutex
	bundles map[uuid.UUID]map[event.NeedKind]json.RawMessage
	writes  int
}

func newFakeSolutionRepo() *fakeSolutionRepo {
	return &fakeSolutionRepo{bundles: make(map[uuid.UUID]map[event.NeedKind]json.RawMessage)}
}

func (f *fakeSolutionRepo) Add(ctx context.Context, contextID uuid.UUID, kind event.NeedKind, raw json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bundles[contextID] == nil {
		f.bundles[contextID] = make(map[event.NeedKind]json.RawMessage)
	}
	f.bundles[contextID][kind] = raw
	f.writes++
	return nil
}

func (f *fakeSolutionRepo) List(ctx context.Context, contextID uuid.UUID) (map[event.NeedKind]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[event.NeedKind]json.RawMessage)
	for k, v := range f.bundles[contextID] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeSolutionRepo) Clear(ctx context.Context, contextID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.bundles, contextID)
	return nil
}

type fakeTxManager struct{}

func (fakeTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type publication struct {
	contextID uuid.UUID
	events    []event.Domain
	needs     []command.Need
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []publication
	err  error
}

func (f *fakePublisher) Publish(ctx context.Context, h *event.Hendelse, contextID uuid.UUID, events []event.Domain, needs []command.Need) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, publication{contextID: contextID, events: events, needs: needs})
	return f.err
}

func (f *fakePublisher) allEvents() []event.Domain {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []event.Domain
	for _, p := range f.sent {
		out = append(out, p.events...)
	}
	return out
}

func (f *fakePublisher) allNeeds() []command.Need {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []command.Need
	for _, p := range f.sent {
		out = append(out, p.needs...)
	}
	return out
}
