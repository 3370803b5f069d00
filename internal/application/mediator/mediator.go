// Package mediator drives case events through their command chains. It
// creates and resumes execution contexts, persists every state change, and
// hands what a pass produced to the publisher.
package mediator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sykepenger/spesialist/internal/application/port"
	"github.com/sykepenger/spesialist/internal/domain/command"
	"github.com/sykepenger/spesialist/internal/domain/entity"
	"github.com/sykepenger/spesialist/internal/domain/event"
	"github.com/sykepenger/spesialist/internal/domain/workflow"
	"github.com/sykepenger/spesialist/pkg/utils"
)

// Factory builds the command chain for one pass over a hendelse. It is
// called again for every pass, so steps may keep per-pass state.
type Factory func(h *event.Hendelse) (command.Command, error)

// Publisher sends what a pass produced to the bus
type Publisher interface {
	Publish(ctx context.Context, h *event.Hendelse, contextID uuid.UUID, events []event.Domain, needs []command.Need) error
}

// Mediator is the top-level loop for case events and answers
type Mediator struct {
	hendelser port.HendelseRepository
	contexts  port.ContextRepository
	solutions port.SolutionRepository
	tx        port.TransactionManager
	publisher Publisher
	logger    *zap.Logger
	features  command.Features

	mu        sync.RWMutex
	factories map[event.Kind]Factory

	guard *keyedMutex
	inst  *instruments

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures the mediator
type Option func(*Mediator)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(m *Mediator) {
		m.logger = logger
	}
}

// WithFeatures sets the feature toggles injected into every context
func WithFeatures(f command.Features) Option {
	return func(m *Mediator) {
		m.features = f.Clone()
	}
}

// WithTracerProvider overrides the global tracer provider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Mediator) {
		m.tracerProvider = tp
	}
}

// WithMeterProvider overrides the global meter provider
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(m *Mediator) {
		m.meterProvider = mp
	}
}

// New creates a mediator
func New(
	hendelser port.HendelseRepository,
	contexts port.ContextRepository,
	solutions port.SolutionRepository,
	tx port.TransactionManager,
	publisher Publisher,
	opts ...Option,
) (*Mediator, error) {
	m := &Mediator{
		hendelser: hendelser,
		contexts:  contexts,
		solutions: solutions,
		tx:        tx,
		publisher: publisher,
		logger:    zap.NewNop(),
		features:  command.Features{},
		factories: make(map[event.Kind]Factory),
		guard:     newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(m)
	}

	inst, err := newInstruments(m.tracerProvider, m.meterProvider)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create mediator instruments")
	}
	m.inst = inst
	return m, nil
}

// Register maps a hendelse kind to the factory of its command chain
func (m *Mediator) Register(kind event.Kind, factory Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[kind] = factory
}

// Kinds returns the registered hendelse kinds
func (m *Mediator) Kinds() []event.Kind {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kinds := make([]event.Kind, 0, len(m.factories))
	for k := range m.factories {
		kinds = append(kinds, k)
	}
	return kinds
}

func (m *Mediator) factory(kind event.Kind) (Factory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.factories[kind]
	if !ok {
		return nil, goerr.Wrap(ErrUnknownKind, "cannot handle hendelse", goerr.V("kind", kind))
	}
	return f, nil
}

// OnEvent handles a routed case event. A hendelse whose latest context is
// SUSPENDED or DONE is a duplicate and is ignored; DONE counts as a duplicate
// so a redelivered event never repeats a finished chain, while FAILED and
// ABORTED hendelser get a new context. A second trigger for a case that has
// a non-terminal context of the same kind is ignored too.
//
// A context still in NEW was stored by a process that stopped before its
// first pass. It is run now instead of being treated as a duplicate.
func (m *Mediator) OnEvent(ctx context.Context, h *event.Hendelse) (*Outcome, error) {
	if h == nil {
		return nil, ErrNilHendelse
	}
	if _, err := m.factory(h.Kind); err != nil {
		return nil, err
	}

	unlock := m.guard.Lock(h.Key())
	defer unlock()

	logger := m.logger.With(
		zap.String("hendelse_id", h.ID.String()),
		zap.String("kind", string(h.Kind)),
		zap.String("case_id", h.CaseIDString()),
	)

	latest, err := m.contexts.LatestForHendelse(ctx, h.ID)
	if err != nil {
		return nil, err
	}
	if latest != nil && latest.State == workflow.StateNew {
		logger.Warn("Running command context left in NEW",
			zap.String("context_id", latest.ContextID.String()))
		return m.pass(ctx, h, latest, nil)
	}
	if latest != nil && (!latest.State.IsTerminal() || latest.State == workflow.StateDone) {
		logger.Info("Ignoring duplicate hendelse",
			zap.String("context_id", latest.ContextID.String()),
			zap.String("state", string(latest.State)))
		return &Outcome{ContextID: latest.ContextID, State: latest.State, Duplicate: true}, nil
	}

	if h.CaseID != nil {
		active, err := m.contexts.FindActive(ctx, *h.CaseID, h.Kind)
		if err != nil {
			return nil, err
		}
		if active != nil && active.State == workflow.StateNew {
			if active, err = m.runStalled(ctx, active); err != nil {
				return nil, err
			}
		}
		if active != nil {
			logger.Info("Ignoring hendelse, case already has an active context",
				zap.String("context_id", active.ContextID.String()),
				zap.String("state", string(active.State)))
			return &Outcome{ContextID: active.ContextID, State: active.State, Duplicate: true}, nil
		}
	}

	rec := entity.NewContextRecord(h)
	err = m.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := m.hendelser.Save(txCtx, h); err != nil {
			return err
		}
		return m.contexts.Append(txCtx, rec)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create command context", goerr.V("hendelse_id", h.ID))
	}

	logger.Info("Created command context", zap.String("context_id", rec.ContextID.String()))
	return m.pass(ctx, h, rec, nil)
}

// runStalled runs the first pass of another hendelse's context left in NEW,
// then returns whatever context is active for the case afterwards. The
// caller holds the case guard.
func (m *Mediator) runStalled(ctx context.Context, rec *entity.ContextRecord) (*entity.ContextRecord, error) {
	stalled, err := m.hendelser.GetByID(ctx, rec.HendelseID)
	if err != nil {
		return nil, err
	}
	if stalled == nil {
		return rec, nil
	}

	m.logger.Warn("Running command context left in NEW",
		zap.String("context_id", rec.ContextID.String()),
		zap.String("hendelse_id", rec.HendelseID.String()))
	if _, err := m.pass(ctx, stalled, rec, nil); err != nil && !IsChainFailure(err) {
		return nil, err
	}
	return m.contexts.FindActive(ctx, *rec.CaseID, rec.Kind)
}

// OnAnswer collects an answer into the bundle of a suspended context and
// resumes the chain once every requested kind has been answered. Answers
// that do not fit a suspended context are stale: logged and dropped without
// touching any state.
func (m *Mediator) OnAnswer(ctx context.Context, a *event.Answer) (*Outcome, error) {
	logger := m.logger.With(
		zap.String("context_id", a.ContextID.String()),
		zap.String("hendelse_id", a.HendelseID.String()),
		zap.String("answer_id", a.ID.String()),
	)

	h, err := m.hendelser.GetByID(ctx, a.HendelseID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		logger.Info("Discarding answer for unknown hendelse")
		return &Outcome{ContextID: a.ContextID, Stale: true}, nil
	}

	unlock := m.guard.Lock(h.Key())
	defer unlock()

	rec, err := m.contexts.Latest(ctx, a.ContextID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.State != workflow.StateSuspended || rec.HendelseID != a.HendelseID {
		state := workflow.State("")
		if rec != nil {
			state = rec.State
		}
		logger.Info("Discarding answer, command context is not suspended", zap.String("state", string(state)))
		return &Outcome{ContextID: a.ContextID, State: state, Stale: true}, nil
	}

	accepted := make(map[event.NeedKind]json.RawMessage, len(a.Solutions))
	for kind, raw := range a.Solutions {
		if rec.Awaits(kind) {
			accepted[kind] = raw
		}
	}
	if len(accepted) == 0 {
		logger.Info("Discarding answer, no requested kind answered", zap.Any("kinds", a.Kinds()))
		return &Outcome{ContextID: rec.ContextID, State: rec.State, Stale: true}, nil
	}

	var bundle map[event.NeedKind]json.RawMessage
	err = m.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		for kind, raw := range accepted {
			if err := m.solutions.Add(txCtx, rec.ContextID, kind, raw); err != nil {
				return err
			}
		}
		var err error
		bundle, err = m.solutions.List(txCtx, rec.ContextID)
		return err
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to store answer", goerr.V("context_id", rec.ContextID))
	}

	var waiting []event.NeedKind
	for _, kind := range rec.Needs {
		if _, ok := bundle[kind]; !ok {
			waiting = append(waiting, kind)
		}
	}
	if len(waiting) > 0 {
		logger.Info("Answer stored, waiting for more", zap.Any("waiting", waiting))
		return &Outcome{ContextID: rec.ContextID, State: rec.State, Waiting: waiting}, nil
	}

	return m.pass(ctx, h, rec, bundle)
}

// AbortActive aborts every non-terminal context of a case except one, and
// discards their bundles. It is meant to be called by a step inside a pass,
// which already holds the case guard.
func (m *Mediator) AbortActive(ctx context.Context, caseID uuid.UUID, except uuid.UUID) ([]uuid.UUID, error) {
	active, err := m.contexts.ListActiveForCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	var aborted []uuid.UUID
	for _, rec := range active {
		if rec.ContextID == except {
			continue
		}
		machine := workflow.NewContextMachine(rec.State)
		if err := machine.Fire(workflow.TriggerAbort); err != nil {
			return aborted, err
		}
		if err := m.contexts.Append(ctx, rec.Next(machine.State(), nil, nil)); err != nil {
			return aborted, err
		}
		if err := m.solutions.Clear(ctx, rec.ContextID); err != nil {
			return aborted, err
		}
		m.logger.Info("Aborted command context",
			zap.String("context_id", rec.ContextID.String()),
			zap.String("case_id", caseID.String()),
			zap.String("kind", string(rec.Kind)))
		aborted = append(aborted, rec.ContextID)
	}
	return aborted, nil
}

// pass runs the chain once against rec, persists the resulting state and
// publishes what the chain produced. The chain runs inside the same
// transaction that stores its new state, so a failing pass leaves none of
// its own writes behind.
func (m *Mediator) pass(ctx context.Context, h *event.Hendelse, rec *entity.ContextRecord, bundle map[event.NeedKind]json.RawMessage) (*Outcome, error) {
	started := time.Now()
	resuming := rec.State == workflow.StateSuspended

	ctx, span := m.inst.tracer.Start(ctx, "mediator.pass", trace.WithAttributes(
		attribute.String("kind", string(h.Kind)),
		attribute.String("context_id", rec.ContextID.String()),
		attribute.String("hendelse_id", h.ID.String()),
		attribute.Bool("resuming", resuming),
	))
	defer span.End()

	logger := m.logger.With(
		zap.String("context_id", rec.ContextID.String()),
		zap.String("hendelse_id", h.ID.String()),
		zap.String("kind", string(h.Kind)),
	)

	opts := []command.Option{command.WithFeatures(m.features)}
	if resuming {
		opts = append(opts, command.WithCursor(rec.Path), command.WithSolutions(bundle))
	}
	cctx := command.NewContext(rec.ContextID, opts...)
	machine := workflow.NewContextMachine(rec.State)

	err := m.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		factory, err := m.factory(h.Kind)
		if err != nil {
			return err
		}
		chain, err := factory(h)
		if err != nil {
			return goerr.Wrap(err, "failed to build command chain")
		}

		res, err := cctx.Run(txCtx, chain)
		if err != nil {
			return err
		}

		trigger := workflow.TriggerComplete
		if res == command.Incomplete {
			trigger = workflow.TriggerSuspend
		}
		if err := machine.Fire(trigger); err != nil {
			return err
		}

		var next *entity.ContextRecord
		if machine.State() == workflow.StateSuspended {
			next = rec.Next(machine.State(), cctx.Path(), cctx.NeedKinds())
		} else {
			next = rec.Next(machine.State(), nil, nil)
		}
		if err := m.contexts.Append(txCtx, next); err != nil {
			return err
		}
		if resuming {
			return m.solutions.Clear(txCtx, rec.ContextID)
		}
		return nil
	})
	if err != nil {
		return m.fail(ctx, h, rec, span, started, err)
	}

	outcome := &Outcome{
		ContextID: rec.ContextID,
		State:     machine.State(),
		Events:    cctx.Events(),
	}
	if outcome.State == workflow.StateSuspended {
		outcome.Needs = cctx.Needs()
		if len(outcome.Needs) == 0 {
			logger.Warn("Command context suspended without requesting anything")
		}
	}

	span.SetAttributes(attribute.String("state", string(outcome.State)))
	m.inst.record(ctx, h.Kind, outcome.State, started)
	logger.Info("Command context pass finished",
		zap.String("state", string(outcome.State)),
		zap.Ints("path", cctx.Path()),
		zap.Int("events", len(outcome.Events)),
		zap.Int("needs", len(outcome.Needs)),
		zap.Duration("duration", time.Since(started)))

	if err := m.publisher.Publish(ctx, h, rec.ContextID, outcome.Events, outcome.Needs); err != nil {
		logger.Error("Failed to publish pass output, case state is already stored", utils.ErrorFields(err)...)
	}
	return outcome, nil
}

// fail records FAILED for a pass whose chain raised. Nothing is published.
// The returned error carries TagChainFailed once FAILED is stored.
func (m *Mediator) fail(ctx context.Context, h *event.Hendelse, rec *entity.ContextRecord, span trace.Span, started time.Time, cause error) (*Outcome, error) {
	span.RecordError(cause)
	span.SetStatus(codes.Error, "command chain failed")

	machine := workflow.NewContextMachine(rec.State)
	if err := machine.Fire(workflow.TriggerFail); err != nil {
		return nil, goerr.Wrap(err, "cannot mark command context failed", goerr.V("context_id", rec.ContextID))
	}

	err := m.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := m.contexts.Append(txCtx, rec.Next(machine.State(), nil, nil)); err != nil {
			return err
		}
		return m.solutions.Clear(txCtx, rec.ContextID)
	})
	if err != nil {
		m.logger.Error("Failed to record failed command context", utils.ErrorFields(err)...)
		return nil, goerr.Wrap(cause, "command chain failed, state not recorded",
			goerr.V("context_id", rec.ContextID),
			goerr.V("hendelse_id", h.ID),
			goerr.V("record_error", err.Error()))
	}

	wrapped := goerr.Wrap(cause, "command chain failed",
		goerr.T(TagChainFailed),
		goerr.V("context_id", rec.ContextID),
		goerr.V("hendelse_id", h.ID),
		goerr.V("kind", h.Kind))

	m.inst.record(ctx, h.Kind, workflow.StateFailed, started)
	m.logger.Error("Command context failed", utils.ErrorFields(wrapped)...)
	return &Outcome{ContextID: rec.ContextID, State: workflow.StateFailed}, wrapped
}
