package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"

	"github.com/sykepenger/spesialist/internal/application/port"
	"github.com/sykepenger/spesialist/internal/domain/entity"
	"github.com/sykepenger/spesialist/internal/infrastructure/persistence/sqlite"
)

// ErrOppgaveNotFound is returned when updating an oppgave that does not exist
var ErrOppgaveNotFound = goerr.New("oppgave not found")

// OppgaveRepository implements port.OppgaveRepository
type OppgaveRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewOppgaveRepository creates a new oppgave repository
func NewOppgaveRepository(db *sqlite.DB, logger *zap.Logger) port.OppgaveRepository {
	return &OppgaveRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new oppgave
func (r *OppgaveRepository) Create(ctx context.Context, o *entity.Oppgave) error {
	query := `
		INSERT INTO oppgave (
			id, case_id, hendelse_id, context_id, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		o.ID.String(),
		o.CaseID.String(),
		o.HendelseID.String(),
		o.ContextID.String(),
		o.Status,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create oppgave", zap.String("oppgave_id", o.ID.String()), zap.Error(err))
		return goerr.Wrap(err, "failed to create oppgave", goerr.V("oppgave_id", o.ID))
	}
	return nil
}

// GetByID retrieves an oppgave by ID
func (r *OppgaveRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Oppgave, error) {
	query := `
		SELECT id, case_id, hendelse_id, context_id, status, created_at, updated_at
		FROM oppgave
		WHERE id = ?
	`
	return r.queryOne(ctx, query, id.String())
}

// FindOpenByCase retrieves the oppgave awaiting a decision for a case
func (r *OppgaveRepository) FindOpenByCase(ctx context.Context, caseID uuid.UUID) (*entity.Oppgave, error) {
	query := `
		SELECT id, case_id, hendelse_id, context_id, status, created_at, updated_at
		FROM oppgave
		WHERE case_id = ? AND status = ?
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.queryOne(ctx, query, caseID.String(), entity.OppgaveAvventerSaksbehandler)
}

// UpdateStatus updates the status of an oppgave
func (r *OppgaveRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	query := `UPDATE oppgave SET status = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query, status, time.Now(), id.String())
	if err != nil {
		r.logger.Error("Failed to update status", zap.String("oppgave_id", id.String()), zap.String("status", status), zap.Error(err))
		return goerr.Wrap(err, "failed to update oppgave status", goerr.V("oppgave_id", id), goerr.V("status", status))
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return goerr.Wrap(ErrOppgaveNotFound, "failed to update oppgave status", goerr.V("oppgave_id", id))
	}
	return nil
}

// Delete removes an oppgave
func (r *OppgaveRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Executor(ctx).ExecContext(ctx, `DELETE FROM oppgave WHERE id = ?`, id.String())
	if err != nil {
		r.logger.Error("Failed to delete oppgave", zap.String("oppgave_id", id.String()), zap.Error(err))
		return goerr.Wrap(err, "failed to delete oppgave", goerr.V("oppgave_id", id))
	}
	return nil
}

func (r *OppgaveRepository) queryOne(ctx context.Context, query string, args ...interface{}) (*entity.Oppgave, error) {
	var o entity.Oppgave
	err := r.db.Executor(ctx).QueryRowContext(ctx, query, args...).Scan(
		&o.ID,
		&o.CaseID,
		&o.HendelseID,
		&o.ContextID,
		&o.Status,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get oppgave", zap.Any("args", args), zap.Error(err))
		return nil, goerr.Wrap(err, "failed to get oppgave")
	}
	return &o, nil
}

// Verify interface compliance
var _ port.OppgaveRepository = (*OppgaveRepository)(nil)
