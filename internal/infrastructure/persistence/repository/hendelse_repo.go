package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"

	"github.com/sykepenger/spesialist/internal/application/port"
	"github.com/sykepenger/spesialist/internal/domain/event"
	"github.com/sykepenger/spesialist/internal/infrastructure/persistence/sqlite"
)

// HendelseRepository implements port.HendelseRepository
type HendelseRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewHendelseRepository creates a new hendelse repository
func NewHendelseRepository(db *sqlite.DB, logger *zap.Logger) port.HendelseRepository {
	return &HendelseRepository{
		db:     db,
		logger: logger,
	}
}

// Save stores a hendelse. Saving the same id twice is a no-op.
func (r *HendelseRepository) Save(ctx context.Context, h *event.Hendelse) error {
	query := `
		INSERT INTO hendelse (id, kind, case_id, person_id, payload, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		h.ID.String(),
		string(h.Kind),
		nullUUID(h.CaseID),
		h.PersonID,
		string(h.Payload),
		h.ReceivedAt,
	)
	if err != nil {
		r.logger.Error("Failed to save hendelse", zap.String("hendelse_id", h.ID.String()), zap.Error(err))
		return goerr.Wrap(err, "failed to save hendelse", goerr.V("hendelse_id", h.ID))
	}
	return nil
}

// GetByID retrieves a hendelse, or nil when unknown
func (r *HendelseRepository) GetByID(ctx context.Context, id uuid.UUID) (*event.Hendelse, error) {
	query := `
		SELECT id, kind, case_id, person_id, payload, received_at
		FROM hendelse
		WHERE id = ?
	`

	var (
		h       event.Hendelse
		kind    string
		caseID  sql.NullString
		payload string
	)
	err := r.db.Executor(ctx).QueryRowContext(ctx, query, id.String()).Scan(
		&h.ID,
		&kind,
		&caseID,
		&h.PersonID,
		&payload,
		&h.ReceivedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get hendelse", zap.String("hendelse_id", id.String()), zap.Error(err))
		return nil, goerr.Wrap(err, "failed to get hendelse", goerr.V("hendelse_id", id))
	}

	h.Kind = event.Kind(kind)
	h.Payload = []byte(payload)
	if h.CaseID, err = scanUUID(caseID); err != nil {
		return nil, err
	}
	return &h, nil
}

// Verify interface compliance
var _ port.HendelseRepository = (*HendelseRepository)(nil)
