package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"

	"github.com/sykepenger/spesialist/internal/application/port"
	"github.com/sykepenger/spesialist/internal/domain/event"
	"github.com/sykepenger/spesialist/internal/infrastructure/persistence/sqlite"
)

// SolutionRepository implements port.SolutionRepository
type SolutionRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewSolutionRepository creates a new solution bundle repository
func NewSolutionRepository(db *sqlite.DB, logger *zap.Logger) port.SolutionRepository {
	return &SolutionRepository{
		db:     db,
		logger: logger,
	}
}

// Add stores one answer. A repeated answer for the same kind replaces the earlier one.
func (r *SolutionRepository) Add(ctx context.Context, contextID uuid.UUID, kind event.NeedKind, raw json.RawMessage) error {
	query := `
		INSERT INTO context_solution (context_id, kind, data)
		VALUES (?, ?, ?)
		ON CONFLICT(context_id, kind) DO UPDATE SET data = excluded.data, received_at = CURRENT_TIMESTAMP
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query, contextID.String(), string(kind), string(raw))
	if err != nil {
		r.logger.Error("Failed to add solution",
			zap.String("context_id", contextID.String()),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return goerr.Wrap(err, "failed to add solution", goerr.V("context_id", contextID), goerr.V("kind", kind))
	}
	return nil
}

// List returns the bundle collected so far
func (r *SolutionRepository) List(ctx context.Context, contextID uuid.UUID) (map[event.NeedKind]json.RawMessage, error) {
	query := `SELECT kind, data FROM context_solution WHERE context_id = ?`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, contextID.String())
	if err != nil {
		r.logger.Error("Failed to list solutions", zap.String("context_id", contextID.String()), zap.Error(err))
		return nil, goerr.Wrap(err, "failed to list solutions", goerr.V("context_id", contextID))
	}
	defer rows.Close()

	bundle := make(map[event.NeedKind]json.RawMessage)
	for rows.Next() {
		var kind, data string
		if err := rows.Scan(&kind, &data); err != nil {
			return nil, goerr.Wrap(err, "failed to scan solution")
		}
		bundle[event.NeedKind(kind)] = json.RawMessage(data)
	}
	return bundle, rows.Err()
}

// Clear discards the bundle
func (r *SolutionRepository) Clear(ctx context.Context, contextID uuid.UUID) error {
	_, err := r.db.Executor(ctx).ExecContext(ctx, `DELETE FROM context_solution WHERE context_id = ?`, contextID.String())
	if err != nil {
		r.logger.Error("Failed to clear solutions", zap.String("context_id", contextID.String()), zap.Error(err))
		return goerr.Wrap(err, "failed to clear solutions", goerr.V("context_id", contextID))
	}
	return nil
}

// Verify interface compliance
var _ port.SolutionRepository = (*SolutionRepository)(nil)
